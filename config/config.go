package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Server configuration
	Port        string
	Environment string

	// Storage
	SQLitePath string

	// Redis configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// Distributed lock
	LockTTL     time.Duration
	LockRetries int
	LockBackoff time.Duration

	// Transactions
	TxTimeout time.Duration

	// Reservations
	ReservationTTL time.Duration

	// Background workers
	ExpiryInterval    time.Duration
	ReconcileInterval time.Duration
	WorkerBatchSize   int

	// Outbox relay
	RelayInterval time.Duration
	RelayBatch    int

	// Transfers
	TransferCooldown    time.Duration
	MaxTransfers        int
	BlackoutStart       string // RFC3339, optional platform-wide default
	BlackoutEnd         string

	// QR tokens
	QRSecretHex string
	QRImageSize int

	// PubNub (outbox relay transport)
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubUserID       string
	PubNubChannel      string

	// Scan rate limiting
	ScanRateLimit  int
	ScanRateWindow time.Duration

	// Monitoring
	EnableMetrics bool
	MetricsPort   string
}

func LoadConfig() *Config {
	return &Config{
		// Server
		Port:        getEnv("PORT", "8090"),
		Environment: getEnv("ENVIRONMENT", "development"),

		// Storage
		SQLitePath: getEnv("SQLITE_PATH", "data/ticketing.db"),

		// Redis
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// Lock
		LockTTL:     getEnvAsDuration("LOCK_TTL", "10s"),
		LockRetries: getEnvAsInt("LOCK_RETRIES", 3),
		LockBackoff: getEnvAsDuration("LOCK_BACKOFF", "50ms"),

		// Transactions
		TxTimeout: getEnvAsDuration("TX_TIMEOUT", "5s"),

		// Reservations
		ReservationTTL: getEnvAsDuration("RESERVATION_TTL", "10m"),

		// Workers
		ExpiryInterval:    getEnvAsDuration("EXPIRY_INTERVAL", "30s"),
		ReconcileInterval: getEnvAsDuration("RECONCILE_INTERVAL", "5m"),
		WorkerBatchSize:   getEnvAsInt("WORKER_BATCH_SIZE", 100),

		// Outbox relay
		RelayInterval: getEnvAsDuration("RELAY_INTERVAL", "5s"),
		RelayBatch:    getEnvAsInt("RELAY_BATCH", 50),

		// Transfers
		TransferCooldown: getEnvAsDuration("TRANSFER_COOLDOWN", "24h"),
		MaxTransfers:     getEnvAsInt("MAX_TRANSFERS_PER_TICKET", 3),
		BlackoutStart:    getEnv("TRANSFER_BLACKOUT_START", ""),
		BlackoutEnd:      getEnv("TRANSFER_BLACKOUT_END", ""),

		// QR
		QRSecretHex: getEnv("QR_SECRET", ""),
		QRImageSize: getEnvAsInt("QR_IMAGE_SIZE", 256),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubUserID:       getEnv("PUBNUB_USER_ID", "ticketing-core"),
		PubNubChannel:      getEnv("PUBNUB_CHANNEL", "ticketing-events"),

		// Rate limiting
		ScanRateLimit:  getEnvAsInt("SCAN_RATE_LIMIT", 30),
		ScanRateWindow: getEnvAsDuration("SCAN_RATE_WINDOW", "1m"),

		// Monitoring
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
		MetricsPort:   getEnv("METRICS_PORT", "9090"),
	}
}

// Validate rejects configurations the engines cannot run safely with.
// Called once at startup.
func (c *Config) Validate() error {
	if c.ReservationTTL <= 0 {
		return fmt.Errorf("RESERVATION_TTL must be positive")
	}
	if c.LockTTL <= 0 {
		return fmt.Errorf("LOCK_TTL must be positive")
	}
	if c.TxTimeout <= 0 {
		return fmt.Errorf("TX_TIMEOUT must be positive")
	}
	// a stuck transaction must not outlive its lock
	if c.TxTimeout >= c.LockTTL {
		return fmt.Errorf("TX_TIMEOUT (%s) must be shorter than LOCK_TTL (%s)", c.TxTimeout, c.LockTTL)
	}
	if c.LockRetries < 0 {
		return fmt.Errorf("LOCK_RETRIES must not be negative")
	}
	if c.ExpiryInterval <= 0 || c.ReconcileInterval <= 0 || c.RelayInterval <= 0 {
		return fmt.Errorf("worker intervals must be positive")
	}
	if c.WorkerBatchSize <= 0 || c.RelayBatch <= 0 {
		return fmt.Errorf("batch sizes must be positive")
	}
	if c.TransferCooldown < 0 {
		return fmt.Errorf("TRANSFER_COOLDOWN must not be negative")
	}
	if c.MaxTransfers < 0 {
		return fmt.Errorf("MAX_TRANSFERS_PER_TICKET must not be negative")
	}
	secret, err := hex.DecodeString(c.QRSecretHex)
	if err != nil || len(secret) != 32 {
		return fmt.Errorf("QR_SECRET must be 64 hex characters (32 bytes)")
	}
	if (c.BlackoutStart == "") != (c.BlackoutEnd == "") {
		return fmt.Errorf("TRANSFER_BLACKOUT_START and TRANSFER_BLACKOUT_END must be set together")
	}
	if c.BlackoutStart != "" {
		start, err := time.Parse(time.RFC3339, c.BlackoutStart)
		if err != nil {
			return fmt.Errorf("TRANSFER_BLACKOUT_START: %w", err)
		}
		end, err := time.Parse(time.RFC3339, c.BlackoutEnd)
		if err != nil {
			return fmt.Errorf("TRANSFER_BLACKOUT_END: %w", err)
		}
		if !end.After(start) {
			return fmt.Errorf("transfer blackout window must end after it starts")
		}
	}
	return nil
}

// QRSecret returns the decoded 32-byte token sealing key. Validate must have
// passed first.
func (c *Config) QRSecret() []byte {
	secret, _ := hex.DecodeString(c.QRSecretHex)
	return secret
}

// BlackoutWindow returns the platform-wide default blackout bounds, or ok
// false when none is configured.
func (c *Config) BlackoutWindow() (start, end time.Time, ok bool) {
	if c.BlackoutStart == "" || c.BlackoutEnd == "" {
		return time.Time{}, time.Time{}, false
	}
	start, err := time.Parse(time.RFC3339, c.BlackoutStart)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	end, err = time.Parse(time.RFC3339, c.BlackoutEnd)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
