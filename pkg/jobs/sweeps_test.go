package jobs

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSweeper struct {
	expired     int64
	promoted    int
	expireErr   error
	expireCalls int
	quorumCalls int
}

func (f *fakeSweeper) ExpireStale() (int64, error) {
	f.expireCalls++
	return f.expired, f.expireErr
}

func (f *fakeSweeper) ReevaluateAllPending() (int, error) {
	f.quorumCalls++
	return f.promoted, nil
}

type fakePurger struct {
	grace  time.Duration
	purged int64
	calls  int
}

func (f *fakePurger) PurgeExpired(grace time.Duration) (int64, error) {
	f.calls++
	f.grace = grace
	return f.purged, nil
}

type fakeAudit struct{ calls int }

func (f *fakeAudit) Sweep() { f.calls++ }

func TestExpiryJob_Execute(t *testing.T) {
	sweeper := &fakeSweeper{expired: 3}
	job := NewExpiryJob(sweeper, time.Minute, nil)

	assert.Equal(t, "contract_expiry_sweep", job.Name())
	job.Execute()
	assert.Equal(t, 1, sweeper.expireCalls)

	sweeper.expireErr = errors.New("db down")
	job.Execute()
	assert.Equal(t, 2, sweeper.expireCalls)
}

func TestQuorumRecoveryJob_Execute(t *testing.T) {
	sweeper := &fakeSweeper{promoted: 1}
	job := NewQuorumRecoveryJob(sweeper, time.Minute, nil)

	assert.Equal(t, "quorum_recovery", job.Name())
	job.Execute()
	assert.Equal(t, 1, sweeper.quorumCalls)
}

func TestSessionPurgeJob_PassesGrace(t *testing.T) {
	purger := &fakePurger{purged: 4}
	job := NewSessionPurgeJob(purger, time.Hour, 24*time.Hour, nil)

	job.Execute()
	assert.Equal(t, 1, purger.calls)
	assert.Equal(t, 24*time.Hour, purger.grace)
}

func TestRegisterMaintenance(t *testing.T) {
	m, err := NewManager(nil)
	require.NoError(t, err)
	defer m.Stop()

	sweeper := &fakeSweeper{}
	purger := &fakePurger{}
	auditWorker := &fakeAudit{}

	require.NoError(t, RegisterMaintenance(m, DefaultConfig(), sweeper, purger, auditWorker, nil))
	assert.Len(t, m.scheduler.Jobs(), 4)
}

func TestRegisterMaintenance_Disabled(t *testing.T) {
	m, err := NewManager(nil)
	require.NoError(t, err)
	defer m.Stop()

	cfg := DefaultConfig()
	cfg.Enabled = false
	require.NoError(t, RegisterMaintenance(m, cfg, &fakeSweeper{}, &fakePurger{}, &fakeAudit{}, nil))
	assert.Empty(t, m.scheduler.Jobs())
}

func TestManager_RunsJobOnSchedule(t *testing.T) {
	m, err := NewManager(nil)
	require.NoError(t, err)

	sweeper := &fakeSweeper{}
	require.NoError(t, m.Register(NewExpiryJob(sweeper, 20*time.Millisecond, nil)))
	m.Start()
	defer m.Stop()

	assert.Eventually(t, func() bool { return sweeper.expireCalls >= 2 },
		2*time.Second, 10*time.Millisecond)
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("VOICEPACT_JOBS_EXPIRY_INTERVAL", "30s")
	t.Setenv("VOICEPACT_JOBS_SESSION_PURGE_GRACE", "1h")
	t.Setenv("VOICEPACT_JOBS_ENABLED", "false")

	cfg := ConfigFromEnv()
	assert.Equal(t, 30*time.Second, cfg.ExpiryInterval)
	assert.Equal(t, time.Hour, cfg.SessionPurgeGrace)
	assert.False(t, cfg.Enabled)

	t.Setenv("VOICEPACT_JOBS_EXPIRY_INTERVAL", "garbage")
	cfg = ConfigFromEnv()
	assert.Equal(t, 10*time.Minute, cfg.ExpiryInterval)
}