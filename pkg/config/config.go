package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/tendant/chi-demo/app"
	"github.com/tendant/simple-deviceid/pkg/identity"
	"github.com/tendant/simple-deviceid/pkg/ratelimit"
)

// Config holds the settings of the device id service
type Config struct {
	// Storage: postgres, file, memory or none
	PersistenceType string `env:"DEVICEID_PERSISTENCE_TYPE" env-default:"memory"`
	DataDir         string `env:"DEVICEID_DATA_DIR" env-default:"./data"`
	Database        DatabaseConfig

	// Device matching
	MaxProfilesAllowed int  `env:"DEVICEID_MAX_PROFILES_ALLOWED" env-default:"5"`
	AutoStoreProfiles  bool `env:"DEVICEID_AUTO_STORE_PROFILES" env-default:"false"`

	// Comma separated realm:username pairs registered as active identities when identities
	// are kept in memory, e.g. "/:alice,/customers:bob"
	SeedIdentities string `env:"DEVICEID_SEED_IDENTITIES" env-default:""`

	// HS256 secret guarding the API. Empty disables authentication.
	JWTSecret string `env:"DEVICEID_JWT_SECRET" env-default:""`

	RateLimit RateLimitConfig

	// Request handling
	RequestTimeout time.Duration `env:"DEVICEID_REQUEST_TIMEOUT" env-default:"10s"`
	LogLevel       string        `env:"DEVICEID_LOG_LEVEL" env-default:"info"`

	AppConfig app.AppConfig
}

// Load reads the configuration from the environment
func Load() (Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to read configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values cleanenv cannot check on its own
func (c Config) Validate() error {
	switch c.PersistenceType {
	case "postgres", "postgresql", "file", "memory", "inmem", "none", "noop":
	default:
		return fmt.Errorf("unsupported persistence type: %s", c.PersistenceType)
	}
	if c.PersistenceType == "file" && c.DataDir == "" {
		return fmt.Errorf("DEVICEID_DATA_DIR is required for file persistence")
	}
	if c.MaxProfilesAllowed < 1 {
		return fmt.Errorf("DEVICEID_MAX_PROFILES_ALLOWED must be at least 1, got %d", c.MaxProfilesAllowed)
	}
	if _, err := c.Seeds(); err != nil {
		return err
	}
	return nil
}

// UsesPostgres reports whether a database pool is needed
func (c Config) UsesPostgres() bool {
	return c.PersistenceType == "postgres" || c.PersistenceType == "postgresql"
}

// Seeds parses SeedIdentities
func (c Config) Seeds() ([]identity.Identity, error) {
	if strings.TrimSpace(c.SeedIdentities) == "" {
		return nil, nil
	}

	var seeds []identity.Identity
	for _, entry := range strings.Split(c.SeedIdentities, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		idx := strings.LastIndex(entry, ":")
		if idx <= 0 || idx == len(entry)-1 {
			return nil, fmt.Errorf("invalid seed identity %q, expected realm:username", entry)
		}
		seeds = append(seeds, identity.Identity{
			Realm:    entry[:idx],
			Username: entry[idx+1:],
			Active:   true,
		})
	}
	return seeds, nil
}

// RateLimitConfig holds per-client and per-subject limits for the API
type RateLimitConfig struct {
	Enabled              bool          `env:"DEVICEID_RATELIMIT_ENABLED" env-default:"true"`
	PerClientCapacity    int           `env:"DEVICEID_RATELIMIT_CLIENT_CAPACITY" env-default:"120"`
	PerClientRefillRate  float64       `env:"DEVICEID_RATELIMIT_CLIENT_REFILL_RATE" env-default:"2"`
	PerSubjectCapacity   int           `env:"DEVICEID_RATELIMIT_SUBJECT_CAPACITY" env-default:"300"`
	PerSubjectRefillRate float64       `env:"DEVICEID_RATELIMIT_SUBJECT_REFILL_RATE" env-default:"5"`
	BucketTTL            time.Duration `env:"DEVICEID_RATELIMIT_BUCKET_TTL" env-default:"1h"`

	// TrustProxyHeaders reads X-Forwarded-For and X-Real-IP for rate limit keys and for the
	// clientDeviceIpAddress fallback used when a request body has no client_ip. Enable it only
	// behind a proxy that sets those headers.
	TrustProxyHeaders bool `env:"DEVICEID_TRUST_PROXY_HEADERS" env-default:"false"`
}

// ToMiddlewareConfig converts to the ratelimit package configuration
func (r RateLimitConfig) ToMiddlewareConfig() ratelimit.Config {
	return ratelimit.Config{
		PerClientEnabled:     r.Enabled,
		PerClientCapacity:    r.PerClientCapacity,
		PerClientRefillRate:  r.PerClientRefillRate,
		PerSubjectEnabled:    r.Enabled,
		PerSubjectCapacity:   r.PerSubjectCapacity,
		PerSubjectRefillRate: r.PerSubjectRefillRate,
		BucketTTL:            r.BucketTTL,
		TrustProxyHeaders:    r.TrustProxyHeaders,
	}
}
