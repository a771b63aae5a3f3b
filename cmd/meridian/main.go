package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/meridian-erp/meridian-erp/internal/app"
	"github.com/meridian-erp/meridian-erp/internal/commission"
	"github.com/meridian-erp/meridian-erp/internal/dashboard"
	"github.com/meridian-erp/meridian-erp/internal/logistics"
	"github.com/meridian-erp/meridian-erp/internal/notify"
	"github.com/meridian-erp/meridian-erp/internal/participants"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/shared"
	"github.com/meridian-erp/meridian-erp/jobs"
)

// queueNotifier hands transition notifications to the worker instead of
// delivering them inline.
type queueNotifier struct {
	client *jobs.Client
	logger *slog.Logger
}

func (n queueNotifier) Dispatch(ctx context.Context, in notify.DispatchInput) notify.DeliveryResult {
	payload := jobs.NotificationDeliverPayload{
		RecipientName:  in.Recipient.Name,
		RecipientPhone: in.Recipient.Phone,
		TemplateType:   string(in.TemplateType),
		PartnerName:    in.Data.PartnerName,
		OrderNumber:    in.Data.OrderNumber,
		ShipmentNumber: in.Data.ShipmentNumber,
		Amount:         in.Data.Amount,
		BoxesCount:     in.Data.BoxesCount,
		TrackingNumber: in.Data.TrackingNumber,
		OrderID:        in.OrderID,
		ShipmentID:     in.ShipmentID,
	}
	info, err := n.client.EnqueueNotificationDeliver(ctx, payload)
	if err != nil {
		n.logger.Warn("enqueue notification", slog.Any("error", err))
		return notify.DeliveryResult{Status: notify.StatusFailed, Err: err}
	}
	return notify.DeliveryResult{MessageID: info.ID, Status: notify.StatusDraft}
}

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)
	entityLocker := shared.NewEntityLocker(redisClient, cfg.EntityLockTTL)

	participantsRepo := participants.NewPgRepository(dbpool)
	participantsService := participants.NewService(participantsRepo, logger)
	participantsHandler := participants.NewHandler(logger, participantsService)

	commissionRepo := commission.NewPgRepository(dbpool)
	commissionService := commission.NewService(commissionRepo, participantsService, logger)
	commissionService.SetAuditTrail(auditLogger)
	commissionHandler := commission.NewHandler(logger, commissionService)

	var transport notify.Transport = notify.LogTransport{Logger: logger}
	if cfg.WhatsAppAPIURL != "" {
		transport = notify.NewWhatsAppTransport(cfg.WhatsAppAPIURL, cfg.WhatsAppAPIToken, cfg.WhatsAppSender)
	}
	notifyRepo := notify.NewPgRepository(dbpool)
	dispatcher := notify.NewDispatcher(notifyRepo, transport, logger)
	notifyHandler := notify.NewHandler(logger, dispatcher, notifyRepo)

	var notifier logistics.Notifier = dispatcher
	if cfg.NotifyAsync {
		jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		if err != nil {
			logger.Error("init job client", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			if err := jobClient.Close(); err != nil {
				logger.Warn("job client close", slog.Any("error", err))
			}
		}()
		notifier = queueNotifier{client: jobClient, logger: logger}
	}

	logisticsRepo := logistics.NewPgRepository(dbpool)
	logisticsService := logistics.NewService(logisticsRepo, commissionService, participantsService, entityLocker, logger)
	logisticsService.SetAuditTrail(auditLogger)
	logisticsService.SetNotifier(notifier)
	logisticsService.SetIdempotencyStore(idempotencyStore)
	logisticsHandler := logistics.NewHandler(logger, logisticsService)

	dashboardCache := dashboard.NewCache(redisClient, cfg.DashboardCacheTTL)
	dashboardService := dashboard.NewService(dashboard.NewPgRepository(dbpool), dashboardCache, logger)
	dashboardHandler := dashboard.NewHandler(logger, dashboardService)
	commissionService.SetRollupInvalidator(dashboardService)
	logisticsService.SetRollupInvalidator(dashboardService)
	if err := dashboardCache.ListenForInvalidation(ctx, ""); err != nil {
		logger.Warn("dashboard cache subscribe", slog.Any("error", err))
	}

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:              logger,
		Config:              cfg,
		ParticipantsHandler: participantsHandler,
		CommissionHandler:   commissionHandler,
		LogisticsHandler:    logisticsHandler,
		DashboardHandler:    dashboardHandler,
		NotifyHandler:       notifyHandler,
		JobHandler:          jobHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
