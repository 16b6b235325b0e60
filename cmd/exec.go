package cmd

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/elpekaan/eventgram-api/config"
	"github.com/elpekaan/eventgram-api/internal/handlers"
	"github.com/elpekaan/eventgram-api/internal/kafka"
	"github.com/elpekaan/eventgram-api/internal/services"
	"github.com/elpekaan/eventgram-api/internal/services/bank"
	"github.com/elpekaan/eventgram-api/internal/store"
	"github.com/elpekaan/eventgram-api/monitoring"
	"github.com/elpekaan/eventgram-api/security"
	"github.com/elpekaan/eventgram-api/utils"
	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	pubnub "github.com/pubnub/go/v7"
	"golang.org/x/sync/errgroup"
)

func Start() error {
	app := pocketbase.New()

	// Load configuration
	cfg := config.LoadConfig()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := store.Open(ctx, cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	var monitor *monitoring.Monitor
	if cfg.EnableMetrics {
		monitor = monitoring.NewMonitor()
	}

	// Redis backs the availability cache and the scan throttle; both degrade to no-ops without it.
	redisClient, err := utils.NewRedisClient(ctx, cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		slog.Warn("Redis unavailable, running without cache and scan throttle", "error", err)
		redisClient = nil
	} else {
		defer redisClient.Close()
	}

	var cache *services.AvailabilityCache
	if redisClient != nil {
		cache = services.NewAvailabilityCache(redisClient, cfg.AvailabilityTTL, monitor)
	}

	// Initialize PubNub
	pnConfig := pubnub.NewConfigWithUserId(pubnub.UserId(cfg.PubNubUUID))
	pnConfig.PublishKey = cfg.PubNubPublishKey
	pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
	pnConfig.SecretKey = cfg.PubNubSecretKey
	pn := pubnub.NewPubNub(pnConfig)

	producer, err := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaMockMode)
	if err != nil {
		return err
	}
	defer producer.Close()

	notifier := services.MultiNotifier{
		services.NewBreakerNotifier(services.NewPubNubNotifier(pn), notifyBreaker("pubnub", cfg)),
		services.NewBreakerNotifier(producer, notifyBreaker("kafka", cfg)),
	}

	// Initialize services
	deps := services.Deps{
		Store:    db,
		Notifier: notifier,
		Cache:    cache,
		Clock:    services.SystemClock{},
		Policy:   policyFrom(cfg),
		Monitor:  monitor,
	}
	ledger := services.NewInventoryLedger(deps.Clock)
	issuer := services.NewTicketIssuer(deps.Clock, nil)
	orderService := services.NewOrderService(deps, ledger, issuer)
	transferService := services.NewTransferService(deps, issuer)
	checkInService := services.NewCheckInService(deps)
	paymentService := services.NewPaymentService(deps, orderService, transferService, ledger)
	sweeper := services.NewSweeper(deps, orderService, transferService, cfg.SweepInterval, cfg.SweepBatchSize)

	// Initialize handlers
	orderHandler := handlers.NewOrderHandler(orderService, paymentService)
	transferHandler := handlers.NewTransferHandler(transferService)
	checkInHandler := handlers.NewCheckInHandler(checkInService)
	paymentHandler := handlers.NewPaymentHandler(paymentService, cfg.StripeWebhookSecret)
	adminHandler := handlers.NewAdminHandler(sweeper, paymentService)
	throttle := security.NewScanThrottle(redisClient, cfg.ScanThrottleLimit, cfg.ScanThrottleWindow, handlers.DeviceHeader)

	// Start background workers
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sweeper.Run(gctx) })

	if cfg.PubNubSubscribeKey != "" {
		listener := bank.NewListener(bank.Config{
			SubscribeKey: cfg.PubNubSubscribeKey,
			SecretKey:    cfg.PubNubSecretKey,
			CipherKey:    cfg.PubNubCipherKey,
			UUID:         cfg.PubNubUUID + "-bank",
			Channel:      cfg.BankChannel,
		}, paymentService)
		g.Go(func() error { return listener.Run(gctx) })
	}

	if cfg.KafkaConsumePayments {
		consumer, err := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaGroupID, cfg.KafkaPaymentTopic)
		if err != nil {
			return err
		}
		defer consumer.Close()
		g.Go(func() error { return consumer.Run(gctx, paymentService) })
	}

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		// Order endpoints
		e.Router.POST("/api/v1/orders", orderHandler.CreateOrder).Bind(apis.RequireAuth())
		e.Router.GET("/api/v1/orders/{orderId}", orderHandler.GetOrder).Bind(apis.RequireAuth())
		e.Router.POST("/api/v1/orders/{orderId}/cancel", orderHandler.CancelOrder).Bind(apis.RequireAuth())
		e.Router.POST("/api/v1/orders/{orderId}/refund", orderHandler.RequestRefund).Bind(apis.RequireAuth())
		e.Router.GET("/api/v1/ticket-types/{ticketTypeId}/availability", orderHandler.Availability)

		// Transfer endpoints
		e.Router.POST("/api/v1/transfers", transferHandler.CreateTransfer).Bind(apis.RequireAuth())
		e.Router.GET("/api/v1/transfers/{transferId}", transferHandler.GetTransfer).Bind(apis.RequireAuth())
		e.Router.POST("/api/v1/transfers/{transferId}/approve", transferHandler.Approve).Bind(apis.RequireAuth())
		e.Router.POST("/api/v1/transfers/{transferId}/reject", transferHandler.Reject).Bind(apis.RequireAuth())
		e.Router.POST("/api/v1/transfers/{transferId}/accept", transferHandler.Accept).Bind(apis.RequireAuth())
		e.Router.POST("/api/v1/transfers/{transferId}/cancel", transferHandler.Cancel).Bind(apis.RequireAuth())

		// Check-in endpoints
		e.Router.POST("/api/v1/checkins", checkInHandler.CheckIn).Bind(apis.RequireAuth()).BindFunc(throttle.Middleware)
		e.Router.GET("/api/v1/events/{eventId}/checkin-stats", checkInHandler.EventStats).Bind(apis.RequireAuth())

		// Payment callbacks
		e.Router.POST("/api/v1/webhooks/stripe", paymentHandler.StripeWebhook)

		// Admin endpoints
		e.Router.POST("/api/v1/admin/sweep", adminHandler.Sweep).Bind(apis.RequireSuperuserAuth())
		e.Router.POST("/api/v1/admin/refunds/{refundId}/approve", adminHandler.ApproveRefund).Bind(apis.RequireSuperuserAuth())
		e.Router.POST("/api/v1/admin/refunds/{refundId}/reject", adminHandler.RejectRefund).Bind(apis.RequireSuperuserAuth())
		e.Router.POST("/api/v1/admin/chargebacks/{chargebackId}/resolve", adminHandler.ResolveChargeback).Bind(apis.RequireSuperuserAuth())

		if monitor != nil {
			e.Router.GET("/metrics", apis.WrapStdHandler(monitor.Handler()))
		}

		// Health check
		e.Router.GET("/health", func(e *core.RequestEvent) error {
			if redisClient != nil {
				if err := utils.RedisHealthCheck(e.Request.Context(), redisClient); err != nil {
					return e.JSON(http.StatusServiceUnavailable, map[string]string{
						"status": "degraded",
						"error":  err.Error(),
					})
				}
			}
			return e.JSON(http.StatusOK, map[string]string{"status": "healthy"})
		})

		log.Println("Server routes registered")
		return e.Next()
	})

	// Start server
	serveErr := app.Start()
	cancel()

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("Background worker stopped with error", "error", err)
	}
	log.Println("Shutdown complete")
	return serveErr
}

func policyFrom(cfg *config.Config) services.Policy {
	return services.Policy{
		ReservationWindow:     cfg.ReservationWindow,
		CommissionRate:        cfg.TransferCommissionRate,
		VenueApprovalWindow:   cfg.TransferVenueApprovalWindow,
		BuyerAcceptanceWindow: cfg.TransferBuyerAcceptanceWindow,
		PaymentWindow:         cfg.TransferPaymentWindow,
		GeofenceRadiusMeters:  cfg.GeofenceRadiusMeters,
		RefundFeeRate:         cfg.RefundFeeRate,
	}
}

func notifyBreaker(name string, cfg *config.Config) *utils.CircuitBreaker {
	return utils.NewCircuitBreakerWithSettings(name, utils.BreakerSettings{
		MaxRequests:  20,
		Interval:     time.Minute,
		Timeout:      cfg.NotifyBreakerTimeout,
		FailureRatio: 0.6,
	})
}
