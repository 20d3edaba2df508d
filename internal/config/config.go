package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	DatabaseURL    string
	HTTPListenAddr string
	MetricsAddr    string
	LogLevel       string
	ServiceName    string
	Environment    string
	RequestTimeout time.Duration

	// Dashboard sessions are issued by the external identity provider as
	// HS256 JWTs carrying a tenant_id claim.
	SessionJWTSecret string
	SessionJWTIssuer string

	// AdminToken guards the internal operations endpoints.
	AdminToken string

	PayFastMerchantID  string
	PayFastMerchantKey string
	PayFastPassphrase  string
	PayFastProcessURL  string
	PayFastReturnURL   string
	PayFastCancelURL   string
	PayFastNotifyURL   string

	BlobBackend  string
	BlobLocalDir string
	S3Endpoint   string
	S3Region     string
	S3Bucket     string
	S3Prefix     string
	S3AccessKey  string
	S3SecretKey  string

	InvoiceRenderer string
	ChromeURL       string
	InvoiceCurrency string

	AggregationBatchSize  int
	AggregationMaxBatches int
	AggregationCron       string
	InvoiceCron           string

	TemporalAddress       string
	TemporalNamespace     string
	TemporalTaskQueue     string
	TemporalTLSCert       string
	TemporalTLSKey        string
	TemporalTLSCACert     string
	TemporalTLSServerName string
}

func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		HTTPListenAddr: getEnv("HTTP_LISTEN_ADDR", ":8080"),
		MetricsAddr:    getEnv("METRICS_ADDR", ""),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		ServiceName:    getEnv("SERVICE_NAME", ""),
		Environment:    getEnv("ENVIRONMENT", ""),

		SessionJWTSecret: getEnv("SESSION_JWT_SECRET", ""),
		SessionJWTIssuer: getEnv("SESSION_JWT_ISSUER", ""),
		AdminToken:       getEnv("ADMIN_TOKEN", ""),

		PayFastMerchantID:  getEnv("PAYFAST_MERCHANT_ID", ""),
		PayFastMerchantKey: getEnv("PAYFAST_MERCHANT_KEY", ""),
		PayFastPassphrase:  getEnv("PAYFAST_PASSPHRASE", ""),
		PayFastProcessURL:  getEnv("PAYFAST_PROCESS_URL", "https://sandbox.payfast.co.za/eng/process"),
		PayFastReturnURL:   getEnv("PAYFAST_RETURN_URL", ""),
		PayFastCancelURL:   getEnv("PAYFAST_CANCEL_URL", ""),
		PayFastNotifyURL:   getEnv("PAYFAST_NOTIFY_URL", ""),

		BlobBackend:  strings.ToLower(getEnv("BLOB_BACKEND", "local")),
		BlobLocalDir: getEnv("BLOB_LOCAL_DIR", "./data/invoices"),
		S3Endpoint:   getEnv("S3_ENDPOINT", ""),
		S3Region:     getEnv("S3_REGION", "us-east-1"),
		S3Bucket:     getEnv("S3_BUCKET", ""),
		S3Prefix:     getEnv("S3_PREFIX", ""),
		S3AccessKey:  getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:  getEnv("S3_SECRET_KEY", ""),

		InvoiceRenderer: strings.ToLower(getEnv("INVOICE_RENDERER", "fpdf")),
		ChromeURL:       getEnv("CHROME_URL", ""),
		InvoiceCurrency: strings.ToUpper(getEnv("INVOICE_CURRENCY", "USD")),

		AggregationCron: getEnv("AGGREGATION_CRON", "*/5 * * * *"),
		InvoiceCron:     getEnv("INVOICE_CRON", "0 6 1 * *"),

		TemporalAddress:       getEnv("TEMPORAL_ADDRESS", "localhost:7233"),
		TemporalNamespace:     getEnv("TEMPORAL_NAMESPACE", "default"),
		TemporalTaskQueue:     getEnv("TEMPORAL_TASK_QUEUE", "metering-tasks"),
		TemporalTLSCert:       getEnv("TEMPORAL_TLS_CERT", ""),
		TemporalTLSKey:        getEnv("TEMPORAL_TLS_KEY", ""),
		TemporalTLSCACert:     getEnv("TEMPORAL_TLS_CA", ""),
		TemporalTLSServerName: getEnv("TEMPORAL_TLS_SERVER_NAME", ""),
	}

	var err error
	if cfg.RequestTimeout, err = getEnvDuration("REQUEST_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.AggregationBatchSize, err = getEnvInt("AGGREGATION_BATCH_SIZE", 500); err != nil {
		return nil, err
	}
	if cfg.AggregationMaxBatches, err = getEnvInt("AGGREGATION_MAX_BATCHES", 20); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the settings required by the given component are
// present and consistent. Components: billing-api, billing-worker, billingctl.
func (c *Config) Validate(component string) error {
	var missing []string
	require := func(key, value string) {
		if value == "" {
			missing = append(missing, key)
		}
	}

	require("DATABASE_URL", c.DatabaseURL)

	switch component {
	case "billing-api":
		require("HTTP_LISTEN_ADDR", c.HTTPListenAddr)
		require("SESSION_JWT_SECRET", c.SessionJWTSecret)
		require("ADMIN_TOKEN", c.AdminToken)
	case "billing-worker":
		require("TEMPORAL_ADDRESS", c.TemporalAddress)
		require("AGGREGATION_CRON", c.AggregationCron)
		require("INVOICE_CRON", c.InvoiceCron)
	case "billingctl":
	default:
		return fmt.Errorf("unknown component %q", component)
	}

	if c.BlobBackend == "s3" {
		require("S3_BUCKET", c.S3Bucket)
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}

	if (c.TemporalTLSCert == "") != (c.TemporalTLSKey == "") {
		return fmt.Errorf("TEMPORAL_TLS_CERT and TEMPORAL_TLS_KEY must both be set")
	}
	if c.BlobBackend != "local" && c.BlobBackend != "s3" {
		return fmt.Errorf("BLOB_BACKEND must be local or s3, got %q", c.BlobBackend)
	}
	if c.InvoiceRenderer != "fpdf" && c.InvoiceRenderer != "chromedp" {
		return fmt.Errorf("INVOICE_RENDERER must be fpdf or chromedp, got %q", c.InvoiceRenderer)
	}
	if len(c.InvoiceCurrency) != 3 {
		return fmt.Errorf("INVOICE_CURRENCY must be a 3-letter ISO code, got %q", c.InvoiceCurrency)
	}
	if c.AggregationBatchSize <= 0 {
		return fmt.Errorf("AGGREGATION_BATCH_SIZE must be positive")
	}
	if c.AggregationMaxBatches <= 0 {
		return fmt.Errorf("AGGREGATION_MAX_BATCHES must be positive")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}
