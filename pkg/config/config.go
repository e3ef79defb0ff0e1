// Package config loads service configuration from the environment.
package config

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Fees      FeeConfig
	Treasury  TreasuryConfig
	Executor  ExecutorConfig
	Broadcast BroadcastConfig
	Wallet    WalletConfig
}

type WalletConfig struct {
	// EncryptionSecret seals generated private keys at rest. Any length;
	// the key provider derives a fixed-size key from it.
	EncryptionSecret string
	// SimulatedBalance is the balance reported for every address when no
	// chain connection is configured.
	SimulatedBalance decimal.Decimal
	BalanceCacheTTL  time.Duration
}

type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
}

// FeeTier is one contiguous amount band with its own fee formula. Max == nil
// means unbounded; exactly one of FlatFee / Percentage is set.
type FeeTier struct {
	Min        decimal.Decimal  `json:"min"`
	Max        *decimal.Decimal `json:"max"`
	FlatFee    *decimal.Decimal `json:"flat_fee"`
	Percentage *decimal.Decimal `json:"percentage"`
	Label      string           `json:"label"`
}

type FeeConfig struct {
	Tiers    []FeeTier
	Currency string
}

// TreasuryConfig maps "chain:network" to the platform fee-collection address.
type TreasuryConfig struct {
	Wallets map[string]string
}

type ExecutorConfig struct {
	Concurrency   int
	MaxRecipients int
}

type BroadcastConfig struct {
	ConfirmInterval time.Duration
	ConfirmTimeout  time.Duration
}

func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:  getDurationEnv("SERVER_IDLE_TIMEOUT", 120*time.Second),
		},
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getIntEnv("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 25),
			ConnMaxLifetime: getDurationEnv("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL:      normalizeRedisURL(getEnv("REDIS_URL", "localhost:6379")),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:     getEnv("JWT_SECRET", "change-this-secret"),
			Expiration: getDurationEnv("JWT_EXPIRATION", 15*time.Minute),
		},
		Fees: FeeConfig{
			Tiers:    loadFeeTiers(),
			Currency: getEnv("FEE_CURRENCY", "USD"),
		},
		Treasury: TreasuryConfig{
			Wallets: loadTreasuryWallets(),
		},
		Executor: ExecutorConfig{
			Concurrency:   getIntEnv("EXECUTOR_CONCURRENCY", 5),
			MaxRecipients: getIntEnv("EXECUTOR_MAX_RECIPIENTS", 200),
		},
		Broadcast: BroadcastConfig{
			ConfirmInterval: getDurationEnv("BROADCAST_CONFIRM_INTERVAL", 15*time.Second),
			ConfirmTimeout:  getDurationEnv("BROADCAST_CONFIRM_TIMEOUT", 10*time.Minute),
		},
		Wallet: WalletConfig{
			EncryptionSecret: getEnv("WALLET_ENCRYPTION_SECRET", "change-this-wallet-secret"),
			SimulatedBalance: getDecimalEnv("SIMULATED_BALANCE", decimal.NewFromInt(10000)),
			BalanceCacheTTL:  getDurationEnv("BALANCE_CACHE_TTL", 10*time.Second),
		},
	}
}

// DefaultFeeTiers returns the standard tier table. Bands are closed-open:
// an amount exactly on a boundary belongs to the upper tier.
func DefaultFeeTiers() []FeeTier {
	return []FeeTier{
		{Min: dec(0), Max: decPtr(10), FlatFee: decPtr(0), Label: "$0-$10"},
		{Min: dec(10), Max: decPtr(50), FlatFee: decPtr(0.10), Label: "$10.01-$50"},
		{Min: dec(50), Max: decPtr(100), FlatFee: decPtr(0.25), Label: "$51-$100"},
		{Min: dec(100), Max: decPtr(500), FlatFee: decPtr(0.50), Label: "$101-$500"},
		{Min: dec(500), Max: decPtr(1000), FlatFee: decPtr(1.00), Label: "$501-$1,000"},
		{Min: dec(1000), Max: nil, Percentage: decPtr(0.005), Label: "$1,001+"},
	}
}

// loadFeeTiers reads FEE_TIERS as a JSON array, falling back to the defaults.
func loadFeeTiers() []FeeTier {
	raw := os.Getenv("FEE_TIERS")
	if raw == "" {
		return DefaultFeeTiers()
	}
	var tiers []FeeTier
	if err := json.Unmarshal([]byte(raw), &tiers); err != nil || len(tiers) == 0 {
		return DefaultFeeTiers()
	}
	return tiers
}

// loadTreasuryWallets reads TREASURY_WALLETS as a comma-separated list of
// chain:network:address entries.
func loadTreasuryWallets() map[string]string {
	wallets := make(map[string]string)
	raw := os.Getenv("TREASURY_WALLETS")
	for _, entry := range strings.Split(raw, ",") {
		parts := strings.SplitN(strings.TrimSpace(entry), ":", 3)
		if len(parts) != 3 || parts[2] == "" {
			continue
		}
		key := strings.ToLower(parts[0]) + ":" + strings.ToLower(parts[1])
		wallets[key] = parts[2]
	}
	return wallets
}

func dec(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

func decPtr(v float64) *decimal.Decimal {
	d := decimal.NewFromFloat(v)
	return &d
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func normalizeRedisURL(url string) string {
	// Strip redis:// or redis+tls:// scheme if present
	if strings.HasPrefix(url, "redis+tls://") {
		return url[len("redis+tls://"):]
	}
	if strings.HasPrefix(url, "redis://") {
		return url[len("redis://"):]
	}
	return url
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getDecimalEnv(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
