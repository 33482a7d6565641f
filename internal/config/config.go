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

	"speed-ledger-go/internal/models"
)

func Load() (*models.Config, error) {
	// The first malformed duration fails the whole load.
	var firstErr error
	duration := func(key string, def time.Duration) time.Duration {
		d, err := getEnvDuration(key, def)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		return d
	}

	mode, err := models.ParseDepositMode(getEnvString("DEPOSIT_MODE", string(models.ModeAddressMatch)))
	if err != nil {
		return nil, err
	}

	cfg := &models.Config{
		Database: models.DatabaseConfig{
			Driver:          getEnvString("DATABASE_DRIVER", "sqlite3"),
			DSN:             getEnvString("DATABASE_URL", "ledger.db"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: duration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime: duration("DB_CONN_MAX_IDLE_TIME", 30*time.Second),
			PingTimeout:     duration("DB_PING_TIMEOUT", 5*time.Second),
			TxTimeout:       duration("DB_TX_TIMEOUT", 15*time.Second),
		},
		Server: models.ServerConfig{
			Addr:            getEnvString("HTTP_ADDR", ":8080"),
			APIKey:          os.Getenv("LEDGER_API_KEY"),
			ShutdownTimeout: duration("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Webhook: models.WebhookConfig{
			DepositSecret:    os.Getenv("SPEED_DEPOSIT_WEBHOOK_SECRET"),
			WithdrawalSecret: os.Getenv("SPEED_WITHDRAW_WEBHOOK_SECRET"),
			HookdeckSecret:   os.Getenv("HOOKDECK_SIGNING_SECRET"),
			Tolerance:        duration("WEBHOOK_TOLERANCE", 5*time.Minute),
		},
		Speed: models.SpeedConfig{
			DepositURL:    getEnvString("SPEED_DEPOSIT_URL", "https://api.tryspeed.com/payments"),
			WithdrawalURL: getEnvString("SPEED_WITHDRAW_URL", "https://api.tryspeed.com/send"),
			SecretKey:     os.Getenv("SPEED_SECRET_KEY"),
			APIVersion:    getEnvString("SPEED_API_VERSION", "2022-10-15"),
			Timeout:       duration("SPEED_TIMEOUT", 15*time.Second),
		},
		Ledger: models.LedgerConfig{
			DepositMode:        mode,
			RailsFile:          os.Getenv("RAILS_FILE"),
			DefaultCurrency:    getEnvString("DEFAULT_CURRENCY", "USD"),
			DefaultTarget:      getEnvString("DEFAULT_TARGET_CURRENCY", "SATS"),
			WithdrawalCooldown: duration("WITHDRAWAL_COOLDOWN", 5*time.Minute),
			DepositCooldown:    duration("DEPOSIT_COOLDOWN", 5*time.Minute),
			MaxAttempts:        getEnvInt("RECONCILE_MAX_ATTEMPTS", 5),
			RetryBaseDelay:     duration("RECONCILE_RETRY_BASE_DELAY", 100*time.Millisecond),
		},
		Mirror: models.MirrorConfig{
			Enabled:       getEnvBool("MIRROR_ENABLED", false),
			RedisAddr:     getEnvString("MIRROR_REDIS_ADDR", "localhost:6379"),
			RedisPassword: os.Getenv("MIRROR_REDIS_PASSWORD"),
			RedisDB:       getEnvInt("MIRROR_REDIS_DB", 0),
			Channel:       getEnvString("MIRROR_CHANNEL", "ledger:mirror"),
			QueueSize:     getEnvInt("MIRROR_QUEUE_SIZE", 256),
			WriteTimeout:  duration("MIRROR_WRITE_TIMEOUT", 2*time.Second),
		},
		Monitor: models.MonitorConfig{
			Enabled:         getEnvBool("MONITOR_ENABLED", true),
			StaleAfter:      duration("MONITOR_STALE_AFTER", 6*time.Hour),
			PollingInterval: duration("MONITOR_POLLING_INTERVAL", 5*time.Minute),
			CleanupInterval: duration("MONITOR_CLEANUP_INTERVAL", time.Hour),
			BatchSize:       getEnvInt("MONITOR_BATCH_SIZE", 100),
		},
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return cfg, nil
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

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
