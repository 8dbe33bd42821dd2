package models

import "time"

// Config represents the application configuration
type Config struct {
	Database  DatabaseConfig
	Provider  ProviderConfig
	Retry     RetryConfig
	Scheduler SchedulerConfig
	Server    ServerConfig
	Audit     AuditConfig
	Formance  FormanceConfig
	Ingest    IngestConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// ProviderConfig holds the Open Finance aggregator settings
type ProviderConfig struct {
	Name         string
	BaseURL      string
	ClientId     string
	ClientSecret string
	RedirectURL  string
	TokenTTL     time.Duration
	HTTPTimeout  time.Duration
	PageSize     int
	MaxPages     int
}

// RetryConfig holds the backoff policy applied to every provider call
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// SchedulerConfig holds background sync settings
type SchedulerConfig struct {
	PollingInterval time.Duration
	DaysBack        int
	MaxRecoveryDays int
	SyncTimeout     time.Duration
	Concurrency     int
}

// ServerConfig holds HTTP API settings
type ServerConfig struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// AuditConfig holds the optional RabbitMQ fan-out for audit events
type AuditConfig struct {
	AmqpURL    string
	Exchange   string
	RoutingKey string
}

// FormanceConfig holds the optional Formance ledger mirror settings
type FormanceConfig struct {
	StackURL     string
	ClientID     string
	ClientSecret string
	LedgerName   string
}

// Enabled reports whether a Formance stack has been configured.
func (c FormanceConfig) Enabled() bool {
	return c.StackURL != ""
}

// IngestConfig holds transaction ingestion settings
type IngestConfig struct {
	CategoryRulesFile string
}
