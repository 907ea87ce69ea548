package config

import (
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	DatabaseURL string // PAYD_DATABASE_URL (required)
	HTTPAddr    string // PAYD_HTTP_ADDR (default ":8080")
	NATSURL     string // PAYD_NATS_URL (optional, empty = no events or jobs)
	AuthToken   string // PAYD_AUTH_TOKEN (optional, empty = auth disabled)

	// Circuit settings file (optional TOML, see circuits.go)
	CircuitsFile string // PAYD_CIRCUITS_FILE

	// Assessment service endpoints (optional; empty = approve locally)
	FraudURL      string // PAYD_FRAUD_URL
	ComplianceURL string // PAYD_COMPLIANCE_URL
	RiskURL       string // PAYD_RISK_URL

	// Archival settings
	ArchiveS3Bucket    string // PAYD_ARCHIVE_S3_BUCKET (enables S3 when set)
	ArchiveS3Endpoint  string // PAYD_ARCHIVE_S3_ENDPOINT (custom endpoint for MinIO)
	ArchiveS3Region    string // PAYD_ARCHIVE_S3_REGION (default "us-east-1")
	ArchiveS3KeyPrefix string // PAYD_ARCHIVE_S3_KEY_PREFIX (default "payd/archive")
	RetentionDays      int    // PAYD_RETENTION_DAYS (default 365)
}

func Load() (*Config, error) {
	c := &Config{
		DatabaseURL:        os.Getenv("PAYD_DATABASE_URL"),
		HTTPAddr:           envOrDefault("PAYD_HTTP_ADDR", ":8080"),
		NATSURL:            os.Getenv("PAYD_NATS_URL"),
		AuthToken:          os.Getenv("PAYD_AUTH_TOKEN"),
		CircuitsFile:       os.Getenv("PAYD_CIRCUITS_FILE"),
		FraudURL:           os.Getenv("PAYD_FRAUD_URL"),
		ComplianceURL:      os.Getenv("PAYD_COMPLIANCE_URL"),
		RiskURL:            os.Getenv("PAYD_RISK_URL"),
		ArchiveS3Bucket:    os.Getenv("PAYD_ARCHIVE_S3_BUCKET"),
		ArchiveS3Endpoint:  os.Getenv("PAYD_ARCHIVE_S3_ENDPOINT"),
		ArchiveS3Region:    envOrDefault("PAYD_ARCHIVE_S3_REGION", "us-east-1"),
		ArchiveS3KeyPrefix: envOrDefault("PAYD_ARCHIVE_S3_KEY_PREFIX", "payd/archive"),
	}
	if c.DatabaseURL == "" {
		return nil, fmt.Errorf("PAYD_DATABASE_URL is required")
	}

	retentionStr := envOrDefault("PAYD_RETENTION_DAYS", "365")
	retention, err := strconv.Atoi(retentionStr)
	if err != nil {
		return nil, fmt.Errorf("PAYD_RETENTION_DAYS: %w", err)
	}
	if retention < 0 {
		return nil, fmt.Errorf("PAYD_RETENTION_DAYS must not be negative")
	}
	c.RetentionDays = retention

	return c, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
