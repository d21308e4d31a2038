package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config holds application configuration derived from environment variables.
type Config struct {
	Port     int
	LogLevel string

	// Backend negotiation
	UseBinaryBackend       bool
	BinaryHost             string
	BinaryPort             int
	BinaryConnectTimeout   time.Duration
	RedisURL               string
	StandardConnectTimeout time.Duration
	CommandTimeout         time.Duration
	MockFallback           bool
	MockSweepInterval      time.Duration // 0 = lazy expiry only

	// Near cache in front of the active backend
	NearCacheEnabled bool
	NearCacheMaxCost int64
	NearCacheTTL     time.Duration

	// Cache-aside behavior
	DefaultTTL     time.Duration
	MissLatencyMin time.Duration
	MissLatencyMax time.Duration

	// Traffic generator
	TrafficRate       float64 // operations per second
	TrafficPattern    string  // constant, spike, wave, random
	TrafficOperation  string  // read, write, mixed
	TrafficPopulation int
	TrafficSkew       float64
	TrafficAutostart  bool

	// API surface
	APIRateLimit      float64
	APIRateLimitBurst int
}

var cached *Config

// Load reads env vars once and caches them.
func Load() *Config {
	if cached != nil {
		return cached
	}
	cached = &Config{
		Port:     GetEnvAsInt("PORT", 4000),
		LogLevel: strings.ToLower(GetEnvString("LOG_LEVEL", "info")),

		UseBinaryBackend:       GetEnvAsBool("USE_BINARY_BACKEND", false),
		BinaryHost:             GetEnvString("BINARY_BACKEND_HOST", "localhost"),
		BinaryPort:             GetEnvAsInt("BINARY_BACKEND_PORT", 6379),
		BinaryConnectTimeout:   GetEnvAsMillis("BINARY_CONNECT_TIMEOUT_MS", 2000),
		RedisURL:               GetEnvString("REDIS_URL", "redis://localhost:6379"),
		StandardConnectTimeout: GetEnvAsMillis("STANDARD_CONNECT_TIMEOUT_MS", 2000),
		CommandTimeout:         GetEnvAsMillis("COMMAND_TIMEOUT_MS", 5000),
		MockFallback:           GetEnvAsBool("MOCK_FALLBACK_ENABLED", true),
		MockSweepInterval:      GetEnvAsMillis("MOCK_SWEEP_INTERVAL_MS", 0),

		NearCacheEnabled: GetEnvAsBool("NEAR_CACHE_ENABLED", false),
		NearCacheMaxCost: int64(GetEnvAsInt("NEAR_CACHE_MAX_COST", 64<<20)),
		NearCacheTTL:     GetEnvAsMillis("NEAR_CACHE_TTL_MS", 5000),

		DefaultTTL:     time.Duration(GetEnvAsInt("CACHE_DEFAULT_TTL_SECONDS", 60)) * time.Second,
		MissLatencyMin: GetEnvAsMillis("MISS_LATENCY_MIN_MS", 600),
		MissLatencyMax: GetEnvAsMillis("MISS_LATENCY_MAX_MS", 1200),

		TrafficRate:       GetEnvAsFloat("TRAFFIC_RATE", 8),
		TrafficPattern:    strings.ToLower(GetEnvString("TRAFFIC_PATTERN", "constant")),
		TrafficOperation:  strings.ToLower(GetEnvString("TRAFFIC_OPERATION", "mixed")),
		TrafficPopulation: GetEnvAsInt("TRAFFIC_POPULATION", 200),
		TrafficSkew:       GetEnvAsFloat("TRAFFIC_SKEW", 1.2),
		TrafficAutostart:  GetEnvAsBool("TRAFFIC_AUTOSTART", true),

		APIRateLimit:      GetEnvAsFloat("API_RATE_LIMIT", 20),
		APIRateLimitBurst: GetEnvAsInt("API_RATE_LIMIT_BURST", 40),
	}
	return cached
}

// ResetForTest clears cached config; for use in tests only.
func ResetForTest() { cached = nil }

// BinaryAddr returns host:port of the binary backend.
func (c *Config) BinaryAddr() string {
	return fmt.Sprintf("%s:%d", c.BinaryHost, c.BinaryPort)
}

// Validate reports every inconsistent setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.BinaryPort <= 0 || c.BinaryPort > 65535 {
		errs = append(errs, fmt.Errorf("binary backend port %d out of range", c.BinaryPort))
	}
	if c.BinaryConnectTimeout <= 0 || c.StandardConnectTimeout <= 0 || c.CommandTimeout <= 0 {
		errs = append(errs, errors.New("timeouts must be positive"))
	}
	if c.MissLatencyMin < 0 || c.MissLatencyMax < c.MissLatencyMin {
		errs = append(errs, fmt.Errorf("miss latency range [%s, %s] is invalid", c.MissLatencyMin, c.MissLatencyMax))
	}
	if c.DefaultTTL <= 0 {
		errs = append(errs, errors.New("default TTL must be positive"))
	}
	if c.TrafficRate <= 0 {
		errs = append(errs, fmt.Errorf("traffic rate %g must be positive", c.TrafficRate))
	}
	if c.TrafficPopulation < 1 {
		errs = append(errs, fmt.Errorf("traffic population %d must be at least 1", c.TrafficPopulation))
	}
	if c.TrafficSkew < 0 {
		errs = append(errs, fmt.Errorf("traffic skew %g must not be negative", c.TrafficSkew))
	}
	if c.NearCacheEnabled && c.NearCacheMaxCost <= 0 {
		errs = append(errs, errors.New("near cache max cost must be positive"))
	}
	return errors.Join(errs...)
}
