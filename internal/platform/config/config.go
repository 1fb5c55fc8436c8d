package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process-level configuration.
type Server struct {
	Addr          string
	Mode          string // "memory" or "postgres"
	PostgresURL   string
	Redis         RedisConfig
	KafkaBrokers  []string
	AdminToken    string
	JWTSigningKey string

	TreasuryAccount string
	RoyaltyBps      uint32
}

// RedisConfig holds render-cache connection settings. An empty URL
// disables the cache.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// RenderCacheTTL bounds how long a rendered image stays cached. Cache
// entries are also invalidated on every identity mutation, so the TTL is
// a backstop, not the consistency mechanism.
var RenderCacheTTL = 10 * time.Minute

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("SIGIL_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	mode := os.Getenv("SIGIL_MODE")
	if mode == "" {
		mode = "memory"
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Development default, must be overridden in production.
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	treasury := os.Getenv("SIGIL_TREASURY_ACCOUNT")
	if treasury == "" {
		treasury = "treasury"
	}

	royaltyBps := uint32(500)
	if raw := os.Getenv("SIGIL_ROYALTY_BPS"); raw != "" {
		if parsed, err := strconv.ParseUint(raw, 10, 32); err == nil && parsed <= 10_000 {
			royaltyBps = uint32(parsed)
		}
	}

	var brokers []string
	if raw := os.Getenv("KAFKA_BROKERS"); raw != "" {
		for _, b := range strings.Split(raw, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
	}

	return Server{
		Addr:            addr,
		Mode:            mode,
		PostgresURL:     os.Getenv("POSTGRES_URL"),
		Redis:           redisFromEnv(),
		KafkaBrokers:    brokers,
		AdminToken:      os.Getenv("SIGIL_ADMIN_TOKEN"),
		JWTSigningKey:   jwtSigningKey,
		TreasuryAccount: treasury,
		RoyaltyBps:      royaltyBps,
	}
}

func redisFromEnv() RedisConfig {
	return RedisConfig{
		URL:          os.Getenv("REDIS_URL"),
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}
