/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"open-finance-sync-go/internal/models"
)

func Load() (*models.Config, error) {
	connMaxLifetime, err := getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	connMaxIdleTime, err := getEnvDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Second)
	if err != nil {
		return nil, err
	}

	pingTimeout, err := getEnvDuration("DB_PING_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	tokenTTL, err := getEnvDuration("OPEN_FINANCE_TOKEN_TTL", time.Hour)
	if err != nil {
		return nil, err
	}

	httpTimeout, err := getEnvDuration("OPEN_FINANCE_HTTP_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, err
	}

	initialDelay, err := getEnvDuration("RETRY_INITIAL_DELAY", time.Second)
	if err != nil {
		return nil, err
	}

	maxDelay, err := getEnvDuration("RETRY_MAX_DELAY", 10*time.Second)
	if err != nil {
		return nil, err
	}

	pollingInterval, err := getEnvDuration("SYNC_POLLING_INTERVAL", 6*time.Hour)
	if err != nil {
		return nil, err
	}

	syncTimeout, err := getEnvDuration("SYNC_TIMEOUT", 10*time.Minute)
	if err != nil {
		return nil, err
	}

	shutdownTimeout, err := getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}

	return &models.Config{
		Database: models.DatabaseConfig{
			Path:            getEnvString("DATABASE_PATH", "open_finance.db"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: connMaxLifetime,
			ConnMaxIdleTime: connMaxIdleTime,
			PingTimeout:     pingTimeout,
		},
		Provider: models.ProviderConfig{
			Name:         getEnvString("OPEN_FINANCE_PROVIDER", "pluggy"),
			BaseURL:      getEnvString("OPEN_FINANCE_BASE_URL", "https://api.pluggy.ai"),
			ClientId:     os.Getenv("OPEN_FINANCE_CLIENT_ID"),
			ClientSecret: os.Getenv("OPEN_FINANCE_CLIENT_SECRET"),
			RedirectURL:  os.Getenv("OPEN_FINANCE_REDIRECT_URL"),
			TokenTTL:     tokenTTL,
			HTTPTimeout:  httpTimeout,
			PageSize:     getEnvInt("OPEN_FINANCE_PAGE_SIZE", 500),
			MaxPages:     getEnvInt("OPEN_FINANCE_MAX_PAGES", 5),
		},
		Retry: models.RetryConfig{
			MaxAttempts:   getEnvInt("RETRY_MAX_ATTEMPTS", 3),
			InitialDelay:  initialDelay,
			MaxDelay:      maxDelay,
			BackoffFactor: getEnvFloat("RETRY_BACKOFF_FACTOR", 2),
		},
		Scheduler: models.SchedulerConfig{
			PollingInterval: pollingInterval,
			DaysBack:        getEnvInt("SYNC_DAYS_BACK", 7),
			MaxRecoveryDays: getEnvInt("SYNC_MAX_RECOVERY_DAYS", 90),
			SyncTimeout:     syncTimeout,
			Concurrency:     getEnvInt("SYNC_CONCURRENCY", 4),
		},
		Server: models.ServerConfig{
			Addr:            getEnvString("SERVER_ADDR", ":8080"),
			ShutdownTimeout: shutdownTimeout,
		},
		Audit: models.AuditConfig{
			AmqpURL:    os.Getenv("AUDIT_AMQP_URL"),
			Exchange:   getEnvString("AUDIT_EXCHANGE", "audit_events"),
			RoutingKey: getEnvString("AUDIT_ROUTING_KEY", "open_finance.sync"),
		},
		Formance: models.FormanceConfig{
			StackURL:     os.Getenv("FORMANCE_STACK_URL"),
			ClientID:     os.Getenv("FORMANCE_CLIENT_ID"),
			ClientSecret: os.Getenv("FORMANCE_CLIENT_SECRET"),
			LedgerName:   getEnvString("FORMANCE_LEDGER", "open-finance"),
		},
		Ingest: models.IngestConfig{
			CategoryRulesFile: os.Getenv("CATEGORY_RULES_FILE"),
		},
	}, nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
