package main

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/gigflow/backend/internal/apperr"
	"github.com/gigflow/backend/internal/audit"
	"github.com/gigflow/backend/internal/authz"
	"github.com/gigflow/backend/internal/config"
	"github.com/gigflow/backend/internal/events"
	"github.com/gigflow/backend/internal/handlers"
	"github.com/gigflow/backend/internal/lock"
	"github.com/gigflow/backend/internal/metrics"
	"github.com/gigflow/backend/internal/middleware"
	"github.com/gigflow/backend/internal/models"
	"github.com/gigflow/backend/internal/notify"
	"github.com/gigflow/backend/internal/storage"
	"github.com/gigflow/backend/internal/store"
	"github.com/gigflow/backend/internal/utils"
	"github.com/gigflow/backend/internal/workflow"
	"github.com/gigflow/backend/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// appServices holds all initialized services and handlers needed by the application.
type appServices struct {
	redis       *redis.Client
	hub         *events.Hub
	queue       notify.Queue
	worker      *notify.Worker
	cleaner     *audit.Cleaner
	stopRelay   context.CancelFunc
	rateLimiter *middleware.RateLimiter
	engine      *workflow.Engine
	corsOrigins []string

	authHandler      *handlers.AuthHandler
	userHandler      *handlers.UserHandler
	projectHandler   *handlers.ProjectHandler
	proposalHandler  *handlers.ProposalHandler
	contractHandler  *handlers.ContractHandler
	milestoneHandler *handlers.MilestoneHandler
	fileHandler      *handlers.FileHandler
	dashboardHandler *handlers.DashboardHandler
	auditLogHandler  *handlers.AuditLogHandler
	sseHandler       *handlers.SSEHandler
	healthHandler    *handlers.HealthHandler
}

// bootstrap initializes all application dependencies: database, engine, schedulers.
func bootstrap(cfg *config.Config) *appServices {
	utils.SetJWTSecret(cfg.JWT.Secret)

	// Initialize database
	if err := models.InitDB(&cfg.Database); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	// Auto migrate database
	if err := models.AutoMigrate(models.GetDB()); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}

	s := store.New(models.GetDB())
	az := authz.New(s, authz.WithContractDeletePolicy(cfg.Workflow.ContractDeletePolicy))

	svc := &appServices{
		hub:         events.NewHub(),
		rateLimiter: middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst),
		corsOrigins: cfg.CORS.AllowOrigins,
	}
	svc.hub.OnCountChange(func(n int) { metrics.SSEClients.Set(float64(n)) })

	// Project locks and the SSE fan-out go through Redis when it is enabled so
	// several API instances can share one database.
	var locker lock.Locker = lock.NewMemoryLocker()
	publishers := events.Multi{}
	if cfg.Redis.Enabled {
		svc.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := svc.redis.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.Warnf("Redis unavailable at %s, using in-process locks and events: %v", cfg.Redis.Addr, err)
			svc.redis.Close()
			svc.redis = nil
		}
	}
	if svc.redis != nil {
		locker = lock.NewRedisLocker(svc.redis,
			time.Duration(cfg.Workflow.LockTTLSeconds)*time.Second,
			time.Duration(cfg.Workflow.LockWaitSeconds)*time.Second)

		broadcaster := events.NewRedisBroadcaster(svc.redis)
		relayCtx, stop := context.WithCancel(context.Background())
		svc.stopRelay = stop
		go func() {
			if err := broadcaster.Relay(relayCtx, svc.hub); err != nil {
				logger.Error().Err(err).Msg("Event relay stopped")
			}
		}()
		publishers = append(publishers, broadcaster)
		logger.Infof("Redis locks and event relay enabled at %s", cfg.Redis.Addr)
	} else {
		publishers = append(publishers, svc.hub)
	}

	// Outbound webhook notifications
	if cfg.Notify.WebhookURL != "" {
		sender := notify.NewWebhookSender(cfg.Notify.WebhookURL, time.Duration(cfg.Notify.TimeoutSeconds)*time.Second)
		svc.queue = notify.NewQueue(&cfg.Redis, sender.Send)
		if svc.queue.IsAsync() {
			svc.worker = notify.NewWorker(&cfg.Redis)
			if svc.worker != nil {
				svc.worker.SetProcessor(sender.Send)
				if err := svc.worker.Start(); err != nil {
					logger.Error().Err(err).Msg("Failed to start notify worker")
				}
			}
		}
		publishers = append(publishers, notify.NewDispatcher(svc.queue))
	}

	blobs, err := storage.NewLocalStorage(cfg.Storage.Root, int64(cfg.Storage.MaxUploadMB)<<20)
	if err != nil {
		logger.Fatalf("Failed to initialize file storage: %v", err)
	}

	engine := workflow.New(s, az,
		workflow.WithLocker(locker),
		workflow.WithPublisher(publishers),
		workflow.WithStorage(blobs),
		workflow.WithRejectSiblings(cfg.Workflow.RejectSiblingsOnAccept),
	)

	// Audit retention
	auditService := audit.NewService(s)
	svc.cleaner = audit.NewCleaner(auditService, cfg.Audit.RetentionDays)
	if err := svc.cleaner.Start(cfg.Audit.CleanupCron); err != nil {
		logger.Warn().Err(err).Msg("Failed to start audit log cleanup scheduler")
	}

	svc.engine = engine
	ensureAdmin(engine)

	svc.authHandler = handlers.NewAuthHandler(engine, &cfg.JWT)
	svc.userHandler = handlers.NewUserHandler(engine)
	svc.projectHandler = handlers.NewProjectHandler(engine)
	svc.proposalHandler = handlers.NewProposalHandler(engine)
	svc.contractHandler = handlers.NewContractHandler(engine)
	svc.milestoneHandler = handlers.NewMilestoneHandler(engine)
	svc.fileHandler = handlers.NewFileHandler(engine)
	svc.dashboardHandler = handlers.NewDashboardHandler(engine)
	svc.auditLogHandler = handlers.NewAuditLogHandler(auditService)
	svc.sseHandler = handlers.NewSSEHandler(svc.hub)
	svc.healthHandler = handlers.NewHealthHandler(models.GetDB(), svc.queue, svc.hub)
	return svc
}

// ensureAdmin creates the account named by ADMIN_EMAIL and ADMIN_PASSWORD
// unless it already exists.
func ensureAdmin(engine *workflow.Engine) {
	email, password := os.Getenv("ADMIN_EMAIL"), os.Getenv("ADMIN_PASSWORD")
	if email == "" || password == "" {
		return
	}
	_, err := engine.RegisterUser(context.Background(), authz.System(), workflow.RegisterInput{
		Name:     "Administrator",
		Email:    email,
		Password: password,
		Role:     models.RoleAdmin,
	})
	var appErr *apperr.Error
	switch {
	case err == nil:
		logger.Infof("Created admin user %s", email)
	case errors.As(err, &appErr) && appErr.Kind == apperr.KindValidation && appErr.Field == "email":
		logger.Debug().Str("email", email).Msg("Admin user already exists")
	default:
		logger.Warn().Err(err).Msg("Failed to create admin user")
	}
}

// shutdown gracefully stops all services.
func (s *appServices) shutdown() {
	s.rateLimiter.Stop()
	s.cleaner.Stop()
	logger.Info().Msg("Audit cleanup scheduler stopped")

	if s.worker != nil {
		s.worker.Stop()
	}
	if s.queue != nil {
		s.queue.Close()
	}
	if s.stopRelay != nil {
		s.stopRelay()
	}
	if s.redis != nil {
		s.redis.Close()
	}
}
