package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/voicepact/voicepact/pkg/audit"
	"github.com/voicepact/voicepact/pkg/config"
	"github.com/voicepact/voicepact/pkg/contract"
	vcrypto "github.com/voicepact/voicepact/pkg/crypto"
	"github.com/voicepact/voicepact/pkg/gateway"
	"github.com/voicepact/voicepact/pkg/jobs"
	"github.com/voicepact/voicepact/pkg/notify"
	"github.com/voicepact/voicepact/pkg/payment"
	"github.com/voicepact/voicepact/pkg/sms"
	"github.com/voicepact/voicepact/pkg/ussd"
	"github.com/voicepact/voicepact/pkg/voice"
)

// Server wires the stores, gateway client, and background workers behind a
// single HTTP router.
type Server struct {
	cfg    *config.Config
	router chi.Router
	db     *gorm.DB
	logger *slog.Logger
	zlog   *zap.Logger

	crypto     *vcrypto.Service
	gateway    *gateway.Client
	contracts  *contract.Store
	renderer   *contract.Renderer
	sessions   *ussd.SessionStore
	engine     *ussd.Engine
	smsLogs    *sms.LogStore
	smsService *sms.Service
	payments   *payment.Store
	auditStore *audit.Store
	retention  *audit.RetentionWorker
	hub        *notify.Hub
	dispatcher *notify.Dispatcher
	voiceSvc   *voice.Service
	jobManager *jobs.Manager

	httpServer *http.Server
	startedAt  time.Time
}

// New builds a fully wired server from configuration. The slog logger covers
// the HTTP surface; the zap logger is threaded into stores and workers.
func New(cfg *config.Config, logger *slog.Logger, zlog *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if zlog == nil {
		zlog = zap.NewNop()
	}

	db, err := OpenDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}

	cryptoSvc, err := cfg.CryptoService()
	if err != nil {
		return nil, fmt.Errorf("crypto service: %w", err)
	}

	s := &Server{
		cfg:       cfg,
		db:        db,
		logger:    logger,
		zlog:      zlog,
		crypto:    cryptoSvc,
		startedAt: time.Now(),
	}

	s.gateway = gateway.NewClient(cfg.GatewayClientConfig(), zlog.Named("gateway"))

	s.contracts = contract.NewStore(db, cryptoSvc)
	s.renderer = contract.NewRenderer()
	s.sessions = ussd.NewSessionStore(db)
	s.engine = ussd.NewEngine(s.sessions, s.contracts, zlog.Named("ussd"))
	s.smsLogs = sms.NewLogStore(db)
	s.smsService = sms.NewService(s.gateway, s.smsLogs,
		sms.NewDispatcher(s.contracts, zlog.Named("sms")), s.contracts, zlog.Named("sms"))
	s.payments = payment.NewStore(db, s.contracts, cryptoSvc, s.gateway, zlog.Named("payment"))

	auditCfg := audit.ConfigFromEnv()
	s.auditStore = audit.NewStore(db, cryptoSvc, zlog.Named("audit"))
	s.retention = audit.NewRetentionWorker(s.auditStore, auditCfg.RetentionDays, zlog.Named("audit"))

	s.hub = notify.NewHub(zlog.Named("notify"))
	s.dispatcher = notify.NewDispatcher(s.hub, zlog.Named("notify"))

	if auditCfg.Enabled {
		s.contracts.SetAuditor(&eventFan{
			audit:      s.auditStore,
			dispatcher: s.dispatcher,
			contracts:  s.contracts,
		})
	}
	s.payments.SetNotifier(s.dispatcher)

	s.voiceSvc = voice.NewService(s.contracts, s.renderer, func(contractID string) {
		s.dispatcher.RequestConfirmations(s.smsService, contractID)
	}, zlog.Named("voice"))

	s.jobManager, err = jobs.NewManager(zlog.Named("jobs"))
	if err != nil {
		return nil, fmt.Errorf("job manager: %w", err)
	}
	if err := jobs.RegisterMaintenance(s.jobManager, jobs.ConfigFromEnv(),
		s.contracts, s.sessions, s.retention, zlog.Named("jobs")); err != nil {
		return nil, fmt.Errorf("register maintenance jobs: %w", err)
	}

	return s, nil
}

// Migrate creates or updates every table the server owns.
func (s *Server) Migrate() error {
	migrations := []struct {
		name string
		run  func() error
	}{
		{"contracts", s.contracts.AutoMigrate},
		{"sessions", s.sessions.AutoMigrate},
		{"sms logs", s.smsLogs.AutoMigrate},
		{"payments", s.payments.AutoMigrate},
		{"audit events", s.auditStore.AutoMigrate},
	}
	for _, m := range migrations {
		if err := m.run(); err != nil {
			return fmt.Errorf("migrate %s: %w", m.name, err)
		}
	}
	return nil
}

// MountRoutes creates the HTTP router with all feature routes mounted.
func (s *Server) MountRoutes() chi.Router {
	s.router = chi.NewRouter()

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.requestLogger)

	allowedOrigins := s.cfg.CORS.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"https://*", "http://*"}
	}
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Voicepact-Signature"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	s.router.Mount("/api/v1/contracts", contract.NewRouter(s.contracts, s.renderer))
	s.router.Mount("/api/v1/ussd", ussd.NewRouter(s.engine))
	s.router.Mount("/api/v1/sms", sms.NewRouter(s.smsService))
	s.router.Mount("/api/v1/payments", payment.NewRouter(s.payments, s.crypto, s.zlog.Named("payment")))
	s.router.Mount("/api/v1/voice", voice.NewRouter(s.voiceSvc))
	s.router.Mount("/api/v1/audit", audit.NewRouter(s.auditStore))
	s.router.Mount("/ws", notify.NewRouter(s.hub, s.contracts))

	s.router.Get("/healthz", s.healthHandler)
	s.router.Get("/livez", s.healthHandler)
	s.router.Get("/readyz", s.readyHandler)

	return s.router
}

// Run migrates the schema, starts the background workers, and serves HTTP
// until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Migrate(); err != nil {
		return err
	}
	if s.router == nil {
		s.MountRoutes()
	}

	hubCtx, cancelHub := context.WithCancel(context.Background())
	defer cancelHub()
	go s.hub.Run(hubCtx)

	s.jobManager.Start()
	defer s.jobManager.Stop()

	s.httpServer = &http.Server{
		Addr:              s.cfg.Server.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", s.httpServer.Addr)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start).Round(time.Millisecond).String(),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

// eventFan forwards contract actions to the audit trail and pushes status
// changes to connected websocket clients.
type eventFan struct {
	audit      *audit.Store
	dispatcher *notify.Dispatcher
	contracts  *contract.Store
}

func (f *eventFan) RecordAction(contractID, action, actor string, oldValues, newValues map[string]any) {
	f.audit.RecordAction(contractID, action, actor, oldValues, newValues)

	if action != "status_change" {
		return
	}
	status, _ := newValues["status"].(string)
	c, err := f.contracts.GetContract(contractID)
	if err != nil {
		return
	}
	parties := make([]string, 0, len(c.Parties))
	for _, p := range c.Parties {
		parties = append(parties, p.PhoneNumber)
	}
	f.dispatcher.ContractUpdated(contractID, status, parties)
}
