package jobs

import (
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// ContractSweeper is the slice of the contract store the sweeps need.
type ContractSweeper interface {
	ExpireStale() (int64, error)
	ReevaluateAllPending() (int, error)
}

// SessionPurger is the slice of the USSD session store the purge needs.
type SessionPurger interface {
	PurgeExpired(grace time.Duration) (int64, error)
}

// AuditSweeper is the slice of the audit retention worker the sweep needs.
type AuditSweeper interface {
	Sweep()
}

// ExpiryJob moves pending/confirmed contracts past their confirmation
// window to expired.
type ExpiryJob struct {
	contracts ContractSweeper
	interval  time.Duration
	log       *zap.Logger
}

// NewExpiryJob creates the contract expiry sweep.
func NewExpiryJob(contracts ContractSweeper, interval time.Duration, log *zap.Logger) *ExpiryJob {
	if log == nil {
		log = zap.NewNop()
	}
	return &ExpiryJob{contracts: contracts, interval: interval, log: log}
}

func (j *ExpiryJob) Name() string { return "contract_expiry_sweep" }

func (j *ExpiryJob) Schedule() gocron.JobDefinition { return gocron.DurationJob(j.interval) }

func (j *ExpiryJob) Execute() {
	expired, err := j.contracts.ExpireStale()
	if err != nil {
		j.log.Error("contract expiry sweep failed", zap.Error(err))
		return
	}
	if expired > 0 {
		j.log.Info("contracts expired", zap.Int64("count", expired))
	}
}

// QuorumRecoveryJob re-evaluates quorum for pending contracts. A crash
// between the last signature write and the status promotion leaves a fully
// signed contract pending; this job is the idempotent repair.
type QuorumRecoveryJob struct {
	contracts ContractSweeper
	interval  time.Duration
	log       *zap.Logger
}

// NewQuorumRecoveryJob creates the quorum recovery sweep.
func NewQuorumRecoveryJob(contracts ContractSweeper, interval time.Duration, log *zap.Logger) *QuorumRecoveryJob {
	if log == nil {
		log = zap.NewNop()
	}
	return &QuorumRecoveryJob{contracts: contracts, interval: interval, log: log}
}

func (j *QuorumRecoveryJob) Name() string { return "quorum_recovery" }

func (j *QuorumRecoveryJob) Schedule() gocron.JobDefinition { return gocron.DurationJob(j.interval) }

func (j *QuorumRecoveryJob) Execute() {
	promoted, err := j.contracts.ReevaluateAllPending()
	if err != nil {
		j.log.Error("quorum recovery sweep failed", zap.Error(err))
		return
	}
	if promoted > 0 {
		j.log.Info("contracts promoted by quorum recovery", zap.Int("count", promoted))
	}
}

// SessionPurgeJob deletes long-expired USSD sessions. Recently expired ones
// are kept for the grace window so an expired-session hit can still reset
// in place.
type SessionPurgeJob struct {
	sessions SessionPurger
	interval time.Duration
	grace    time.Duration
	log      *zap.Logger
}

// NewSessionPurgeJob creates the session purge sweep.
func NewSessionPurgeJob(sessions SessionPurger, interval, grace time.Duration, log *zap.Logger) *SessionPurgeJob {
	if log == nil {
		log = zap.NewNop()
	}
	return &SessionPurgeJob{sessions: sessions, interval: interval, grace: grace, log: log}
}

func (j *SessionPurgeJob) Name() string { return "ussd_session_purge" }

func (j *SessionPurgeJob) Schedule() gocron.JobDefinition { return gocron.DurationJob(j.interval) }

func (j *SessionPurgeJob) Execute() {
	purged, err := j.sessions.PurgeExpired(j.grace)
	if err != nil {
		j.log.Error("session purge failed", zap.Error(err))
		return
	}
	if purged > 0 {
		j.log.Info("ussd sessions purged", zap.Int64("count", purged))
	}
}

// AuditRetentionJob runs the audit store's daily retention sweep.
type AuditRetentionJob struct {
	worker AuditSweeper
	log    *zap.Logger
}

// NewAuditRetentionJob creates the audit retention sweep.
func NewAuditRetentionJob(worker AuditSweeper, log *zap.Logger) *AuditRetentionJob {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuditRetentionJob{worker: worker, log: log}
}

func (j *AuditRetentionJob) Name() string { return "audit_retention" }

func (j *AuditRetentionJob) Schedule() gocron.JobDefinition {
	return gocron.DurationJob(24 * time.Hour)
}

func (j *AuditRetentionJob) Execute() { j.worker.Sweep() }

// RegisterMaintenance wires the standard sweep set into a manager.
func RegisterMaintenance(m *Manager, cfg *Config, contracts ContractSweeper, sessions SessionPurger, auditWorker AuditSweeper, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	if !cfg.Enabled {
		log.Info("maintenance jobs disabled")
		return nil
	}
	for _, job := range []Job{
		NewExpiryJob(contracts, cfg.ExpiryInterval, log),
		NewQuorumRecoveryJob(contracts, cfg.QuorumInterval, log),
		NewSessionPurgeJob(sessions, cfg.SessionPurgeInterval, cfg.SessionPurgeGrace, log),
		NewAuditRetentionJob(auditWorker, log),
	} {
		if err := m.Register(job); err != nil {
			return err
		}
	}
	return nil
}
