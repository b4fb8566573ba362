package config

import (
	"os"
	"strconv"
	"strings"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	PublicBaseURL string

	// WhatsApp Business (Meta Graph API)
	WhatsAppToken       string
	WhatsAppPhoneID     string
	WhatsAppVerifyToken string
	GraphAPIBase        string

	// Shopify Admin API
	ShopifyStore         string
	ShopifyAPIKey        string
	ShopifyAPIVersion    string
	ShopifyWebhookSecret string

	// Beta mirroring: duplicate outbound sends to a test recipient
	BetaMode      bool
	TestRecipient string

	// Support escalation
	SupportPhone string
	SupportEmail string
	SupportLink  string

	DefaultCountryCode string

	// DynamoDB tables
	ConfirmationsTable string
	MessagesTable      string
	InteractionsTable  string

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	AdminJWTSecret     string
	CORSAllowedOrigins []string

	// SendGrid Email Configuration
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),

		WhatsAppToken:       getEnv("WHATSAPP_TOKEN", ""),
		WhatsAppPhoneID:     getEnv("WHATSAPP_PHONE_ID", ""),
		WhatsAppVerifyToken: getEnv("WHATSAPP_VERIFY_TOKEN", ""),
		GraphAPIBase:        getEnv("GRAPH_API_BASE", ""),

		ShopifyStore:         getEnv("SHOPIFY_STORE", ""),
		ShopifyAPIKey:        getEnv("SHOPIFY_API_KEY", ""),
		ShopifyAPIVersion:    getEnv("SHOPIFY_API_VERSION", "2024-07"),
		ShopifyWebhookSecret: getEnv("SHOPIFY_WEBHOOK_SECRET", ""),

		BetaMode:      getEnvAsBool("BETA_MODE", false),
		TestRecipient: getEnv("TEST_PHONE", ""),

		SupportPhone: getEnv("SUPPORT_PHONE", ""),
		SupportEmail: getEnv("SUPPORT_EMAIL", ""),
		SupportLink:  getEnv("SUPPORT_LINK", "https://wa.me/"+sanitizeDigits(getEnv("SUPPORT_PHONE", ""))),

		DefaultCountryCode: getEnv("DEFAULT_COUNTRY_CODE", "20"),

		ConfirmationsTable: getEnv("CONFIRMATIONS_TABLE", "confirmations"),
		MessagesTable:      getEnv("MESSAGES_TABLE", "whatsapp_messages"),
		InteractionsTable:  getEnv("INTERACTIONS_TABLE", "whatsapp_interactions"),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		AdminJWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),
		CORSAllowedOrigins: splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "")),

		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "BUT Store"),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func splitCSV(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func sanitizeDigits(value string) string {
	var b strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
