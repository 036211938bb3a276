// internal/app/server.go
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"entitlement-service/internal/config"
	"entitlement-service/internal/db"
	"entitlement-service/internal/domain/billing"
	"entitlement-service/internal/domain/user"
	billingHandler "entitlement-service/internal/handlers/billing"
	wsHandler "entitlement-service/internal/handlers/websocket"
	stripeint "entitlement-service/internal/integration/stripe"
	"entitlement-service/internal/middleware"
	"entitlement-service/internal/pkg/jwt"
	"entitlement-service/internal/pkg/ratelimit"
	"entitlement-service/internal/pkg/session"
	"entitlement-service/internal/repository/memory"
	"entitlement-service/internal/repository/postgres"
	billingUsecase "entitlement-service/internal/service/billing"
	"entitlement-service/internal/service/email"
	"entitlement-service/internal/websocket"
	wsHandlers "entitlement-service/internal/websocket/handler"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Server struct {
	cfg     config.AppConfig
	engine  *gin.Engine
	http    *http.Server
	logger  *zap.Logger
	cleanup []func()
}

// NewServer loads configuration and wires every dependency. Nothing listens
// until Start.
func NewServer() (*Server, error) {
	cfg := config.Load()

	// ----- Logger -----
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.IsDevelopment() {
		logger, err = zap.NewDevelopment()
	} else {
		gin.SetMode(gin.ReleaseMode)
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	s := &Server{cfg: cfg, engine: gin.New(), logger: logger}
	if err := s.wire(context.Background()); err != nil {
		s.close()
		return nil, err
	}

	s.http = &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func (s *Server) wire(ctx context.Context) error {
	logger := s.logger

	// ----- Storage -----
	records, users, err := s.openStorage(ctx)
	if err != nil {
		return err
	}

	// ----- Redis (optional) -----
	redisClient := s.openRedis()

	// ----- JWT Verifier -----
	verifier, err := jwt.LoadVerifier(s.cfg.JWT)
	if err != nil {
		return fmt.Errorf("failed to load JWT verifier: %w", err)
	}

	// ----- Payment provider -----
	if s.cfg.Billing.StripeSecretKey == "" {
		logger.Warn("STRIPE_SECRET_KEY not set, provider calls will fail")
	}
	if s.cfg.Billing.StripeWebhookSecret == "" {
		logger.Warn("STRIPE_WEBHOOK_SECRET not set, all webhooks will be rejected")
	}
	provider := stripeint.NewClient(s.cfg.Billing.StripeSecretKey, logger)

	// ----- WebSocket Hub -----
	hubCtx, stopHub := context.WithCancel(context.Background())
	s.cleanup = append(s.cleanup, stopHub)
	hub := websocket.NewHub(verifier, logger)
	go hub.Run(hubCtx)

	// ----- Services (Usecases) -----
	notifiers := []billingUsecase.Option{billingUsecase.WithNotifier(hub)}
	if s.cfg.SMTPHost != "" {
		sender := email.NewEmailSender(email.SMTPConfig{
			Host:     s.cfg.SMTPHost,
			Port:     s.cfg.SMTPPort,
			Username: s.cfg.SMTPUser,
			Password: s.cfg.SMTPPass,
			FromName: s.cfg.SMTPFromName,
			Secure:   s.cfg.SMTPSecure,
		})
		notifiers = append(notifiers, billingUsecase.WithNotifier(email.NewBillingMailer(sender, users, s.cfg.AppName, logger)))
	} else {
		logger.Info("SMTP_HOST not set, billing emails disabled")
	}
	billingService := billingUsecase.NewService(records, users, provider, s.cfg.Billing, logger, notifiers...)

	var dedup billing.EventDeduplicator
	var limiter middleware.Limiter
	var authOpts []middleware.AuthOption
	if redisClient != nil {
		dedup = stripeint.NewRedisEventDeduplicator(redisClient, s.cfg.Billing.WebhookDedupTTL)
		limiter = ratelimit.NewRateLimiter(redisClient)
		authOpts = append(authOpts, middleware.WithRevocationCheck(session.NewRevocationList(redisClient)))
	}
	webhooks := billingUsecase.NewWebhookProcessor(billingService,
		stripeint.NewEventVerifier(s.cfg.Billing.StripeWebhookSecret), dedup, logger)

	hub.RegisterHandler(wsHandlers.NewEntitlementHandler(billingService, logger))

	// ----- Handlers -----
	handlers := &Handlers{
		BillingHandler: billingHandler.NewBillingHandler(billingService, webhooks, logger),
		WSHandler:      wsHandler.NewWebSocketHandler(hub, s.cfg.FrontendOrigins, logger),
		AuthMiddleware: middleware.NewAuthMiddleware(verifier, authOpts...),
		Entitlement:    middleware.RequireEntitlement(billingService, s.cfg.Billing.DisableGuard, logger),
		Limiter:        limiter,
	}

	// ----- Middlewares -----
	s.engine.Use(
		middleware.RecoveryMiddleware(logger),
		middleware.LoggingMiddleware(logger),
		middleware.CORSMiddleware(s.cfg.FrontendOrigins),
	)

	SetupRouter(s.engine, s.cfg, logger, handlers)
	return nil
}

func (s *Server) openStorage(ctx context.Context) (billing.RecordRepository, user.Directory, error) {
	switch s.cfg.StorageDriver {
	case "memory":
		s.logger.Warn("using in-memory storage, state is lost on restart")
		return memory.NewSubscriptionRecordRepository(), memory.NewUserRepository(), nil

	case "postgres", "":
		pool, err := db.ConnectDB(s.cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		s.cleanup = append(s.cleanup, pool.Close)

		if err := db.Migrate(ctx, pool, s.logger); err != nil {
			return nil, nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		s.logger.Info("connected to PostgreSQL")

		pg := postgres.NewDB(pool)
		return postgres.NewSubscriptionRecordRepository(pg), postgres.NewUserRepository(pg), nil

	default:
		return nil, nil, fmt.Errorf("unknown STORAGE_DRIVER %q", s.cfg.StorageDriver)
	}
}

// openRedis returns nil when Redis is not configured or unreachable; webhook
// dedup and rate limiting are then disabled.
func (s *Server) openRedis() *redis.Client {
	if s.cfg.RedisAddr == "" {
		return nil
	}

	client, err := db.NewRedisClient(db.RedisConfig{
		Addr:     s.cfg.RedisAddr,
		Password: s.cfg.RedisPass,
		PoolSize: 10,
	})
	if err != nil {
		s.logger.Warn("redis unavailable, webhook dedup and rate limiting disabled",
			zap.String("addr", s.cfg.RedisAddr),
			zap.Error(err),
		)
		return nil
	}

	s.logger.Info("connected to Redis", zap.String("addr", s.cfg.RedisAddr))
	s.cleanup = append(s.cleanup, func() { _ = client.Close() })
	return client
}

// Start serves HTTP until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("server running", zap.String("addr", s.cfg.HTTPAddr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, then releases pools and the hub.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.http.Shutdown(ctx)
	s.close()
	return err
}

func (s *Server) close() {
	for i := len(s.cleanup) - 1; i >= 0; i-- {
		s.cleanup[i]()
	}
	s.cleanup = nil
	_ = s.logger.Sync()
}
