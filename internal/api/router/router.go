package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/butstore/whatsapp-bridge/internal/http/handlers"
	httpmiddleware "github.com/butstore/whatsapp-bridge/internal/http/middleware"
	"github.com/butstore/whatsapp-bridge/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger             *logging.Logger
	ShopifyWebhook     *handlers.ShopifyWebhookHandler
	WhatsAppWebhooks   *handlers.WhatsAppWebhookHandler
	AdminMessaging     *handlers.AdminMessagingHandler
	ImageProxy         *handlers.ImageProxyHandler
	MetricsHandler     http.Handler
	AdminAuthSecret    string
	CORSAllowedOrigins []string
}

// New creates a Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints (webhooks, health, metrics)
	r.Group(func(public chi.Router) {
		public.Get("/health", healthCheck)
		if cfg.ShopifyWebhook != nil {
			public.Post("/webhooks/shopify", cfg.ShopifyWebhook.Handle)
		}
		if cfg.WhatsAppWebhooks != nil {
			public.Get("/webhooks/whatsapp", cfg.WhatsAppWebhooks.Verify)
			public.Post("/webhooks/whatsapp", cfg.WhatsAppWebhooks.Receive)
		}
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.ImageProxy != nil {
			public.With(httpmiddleware.RateLimit(5, 20)).Get("/proxy/image", cfg.ImageProxy.Handle)
		}
	})

	// Admin endpoints behind JWT auth
	if cfg.AdminMessaging != nil {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			admin.Post("/messages/text", cfg.AdminMessaging.SendText)
			admin.Post("/messages/template", cfg.AdminMessaging.SendTemplate)
			admin.Get("/messages", cfg.AdminMessaging.ListMessages)
		})
	}

	return r
}

func healthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
