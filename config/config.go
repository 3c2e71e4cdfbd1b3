package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every tunable the service reads at startup. Values come from
// the environment (optionally loaded from a .env file) with CLI flags taking
// precedence, matching the single-binary contract of --port,
// --cassandra-host, --cassandra-port.
type Config struct {
	Addr    string
	Env     string
	LogLevel string

	// CassandraHost/CassandraPort name the wide-column transport the way the
	// external contract expects them; they're composed into RedisURL because
	// Redis is the concrete transport backing the Store adapter.
	CassandraHost string
	CassandraPort int
	RedisURL      string

	DefaultTimeout  time.Duration
	GracefulTimeout time.Duration
	MaxBodyBytes    int64

	RateLimitEnabled bool
	RateLimitRPM     int
	RateLimitBurst   int
}

// Load reads .env (if present), environment variables, then CLI flags, in
// that order of increasing precedence, and returns a populated Config.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Addr:             getEnv("HIITRACK_ADDR", ":"+getEnv("PORT", "8080")),
		Env:              getEnv("HIITRACK_ENV", "development"),
		LogLevel:         getEnv("HIITRACK_LOG_LEVEL", "info"),
		CassandraHost:    getEnv("CASSANDRA_HOST", "127.0.0.1"),
		CassandraPort:    getEnvInt("CASSANDRA_PORT", 6379),
		DefaultTimeout:   getEnvDuration("HIITRACK_STORE_TIMEOUT", 5*time.Second),
		GracefulTimeout:  getEnvDuration("HIITRACK_GRACEFUL_TIMEOUT", 15*time.Second),
		MaxBodyBytes:     int64(getEnvInt("HIITRACK_MAX_BODY_BYTES", 1<<20)),
		RateLimitEnabled: getEnvBool("HIITRACK_RATE_LIMIT_ENABLED", false),
		RateLimitRPM:     getEnvInt("HIITRACK_RATE_LIMIT_RPM", 600),
		RateLimitBurst:   getEnvInt("HIITRACK_RATE_LIMIT_BURST", 50),
	}

	var port int
	fs := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	fs.IntVar(&port, "port", 0, "HTTP port to listen on")
	fs.StringVar(&cfg.CassandraHost, "cassandra-host", cfg.CassandraHost, "wide-column store host")
	fs.IntVar(&cfg.CassandraPort, "cassandra-port", cfg.CassandraPort, "wide-column store port")
	_ = fs.Parse(os.Args[1:])
	if port != 0 {
		cfg.Addr = fmt.Sprintf(":%d", port)
	}

	cfg.RedisURL = fmt.Sprintf("redis://%s:%d", cfg.CassandraHost, cfg.CassandraPort)
	return cfg
}

func (c *Config) IsDevelopment() bool { return c.Env == "development" }
func (c *Config) IsProduction() bool  { return c.Env == "production" }

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
