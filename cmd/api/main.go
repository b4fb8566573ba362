package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/butstore/whatsapp-bridge/cmd/mainconfig"
	"github.com/butstore/whatsapp-bridge/internal/api/router"
	"github.com/butstore/whatsapp-bridge/internal/channels/whatsapp"
	appconfig "github.com/butstore/whatsapp-bridge/internal/config"
	"github.com/butstore/whatsapp-bridge/internal/events"
	"github.com/butstore/whatsapp-bridge/internal/http/handlers"
	"github.com/butstore/whatsapp-bridge/internal/inbound"
	"github.com/butstore/whatsapp-bridge/internal/messaging"
	"github.com/butstore/whatsapp-bridge/internal/notify"
	"github.com/butstore/whatsapp-bridge/internal/observability/metrics"
	"github.com/butstore/whatsapp-bridge/internal/orders"
	"github.com/butstore/whatsapp-bridge/internal/shopify"
	"github.com/butstore/whatsapp-bridge/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting whatsapp-bridge API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"beta_mode", cfg.BetaMode,
	)

	awsCfg, err := mainconfig.LoadAWSConfig(context.Background(), cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}
	dynamoClient := dynamodb.NewFromConfig(awsCfg)

	// Stores
	messageStore := messaging.NewStore(dynamoClient, cfg.MessagesTable, logger)
	confirmationStore := orders.NewStore(dynamoClient, cfg.ConfirmationsTable, logger)
	interactionStore := inbound.NewInteractionStore(dynamoClient, cfg.InteractionsTable, logger)

	// Webhook event dedupe (optional, needs Redis)
	var dedupe *events.ProcessedStore
	if cfg.RedisAddr != "" {
		opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		dedupe = events.NewProcessedStore(redis.NewClient(opts), 0)
		logger.Info("webhook dedupe enabled", "redis_addr", cfg.RedisAddr)
	} else {
		logger.Warn("REDIS_ADDR not set, webhook dedupe disabled")
	}

	// Outbound messaging
	metricsRegistry := prometheus.NewRegistry()
	metricsRegistry.MustRegister(collectors.NewGoCollector())
	metricsRegistry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	bridgeMetrics := metrics.NewBridgeMetrics(metricsRegistry)

	waClient := whatsapp.NewClient(cfg.WhatsAppToken, cfg.WhatsAppPhoneID)
	if cfg.GraphAPIBase != "" {
		waClient.SetGraphAPIBase(cfg.GraphAPIBase)
	}
	mirror := messaging.NewMirror(cfg.BetaMode, waClient,
		messaging.NormalizePhone(cfg.TestRecipient, cfg.DefaultCountryCode), logger)
	sender := messaging.NewSender(messaging.SenderConfig{
		Client:  waClient,
		Store:   messageStore,
		Mirror:  mirror,
		Logger:  logger,
		Metrics: bridgeMetrics,
	})

	// Shopify order tagging
	shopifyClient := shopify.NewClient(cfg.ShopifyStore, cfg.ShopifyAPIKey, cfg.ShopifyAPIVersion, logger)
	tagUpdater := orders.NewTagUpdater(confirmationStore, shopifyClient, logger)

	// Support escalation
	emailSender := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger)
	var notifier *notify.Service
	if svc := notify.NewService(notify.ServiceConfig{
		Sender:       sender,
		Email:        emailSender,
		SupportPhone: messaging.NormalizePhone(cfg.SupportPhone, cfg.DefaultCountryCode),
		SupportEmail: cfg.SupportEmail,
		Logger:       logger,
	}); svc != nil {
		notifier = svc
	} else {
		logger.Warn("SUPPORT_PHONE not set, cancellation alerts disabled")
	}

	// Inbound intent routing
	routerCfg := inbound.RouterConfig{
		Sender:             sender,
		Tags:               tagUpdater,
		Confirmations:      confirmationStore,
		Shopify:            shopifyClient,
		Interactions:       interactionStore,
		SupportLink:        cfg.SupportLink,
		DefaultCountryCode: cfg.DefaultCountryCode,
		Logger:             logger,
		Metrics:            bridgeMetrics,
	}
	if notifier != nil {
		routerCfg.Notifier = notifier
	}
	intentRouter := inbound.NewRouter(routerCfg)

	// Handlers
	shopifyWebhookCfg := handlers.ShopifyWebhookConfig{
		Secret:             cfg.ShopifyWebhookSecret,
		Confirmations:      confirmationStore,
		Sender:             sender,
		DefaultCountryCode: cfg.DefaultCountryCode,
		Logger:             logger,
		Metrics:            bridgeMetrics,
	}
	whatsappWebhookCfg := handlers.WhatsAppWebhookConfig{
		VerifyToken:   cfg.WhatsAppVerifyToken,
		Router:        intentRouter,
		Messages:      messageStore,
		Confirmations: confirmationStore,
		Logger:        logger,
		Metrics:       bridgeMetrics,
	}
	if dedupe != nil {
		shopifyWebhookCfg.Dedupe = dedupe
		whatsappWebhookCfg.Dedupe = dedupe
	}
	shopifyWebhook := handlers.NewShopifyWebhookHandler(shopifyWebhookCfg)
	whatsappWebhooks := handlers.NewWhatsAppWebhookHandler(whatsappWebhookCfg)
	adminMessaging := handlers.NewAdminMessagingHandler(handlers.AdminMessagingConfig{
		Sender:             sender,
		Messages:           messageStore,
		Confirmations:      confirmationStore,
		DefaultCountryCode: cfg.DefaultCountryCode,
		Logger:             logger,
	})
	imageProxy := handlers.NewImageProxyHandler(cfg.WhatsAppToken, logger)

	r := router.New(&router.Config{
		Logger:             logger,
		ShopifyWebhook:     shopifyWebhook,
		WhatsAppWebhooks:   whatsappWebhooks,
		AdminMessaging:     adminMessaging,
		ImageProxy:         imageProxy,
		MetricsHandler:     promhttp.HandlerFor(metricsRegistry, promhttp.HandlerOpts{}),
		AdminAuthSecret:    cfg.AdminJWTSecret,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
