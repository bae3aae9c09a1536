// Package config reads service settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

type Config struct {
	Debug bool
	Port  string

	DatabaseDriver string
	DatabaseURL    string

	// RedisURL is optional; without it boards are not cached and events stay
	// on the local hub.
	RedisURL      string
	BoardCacheTTL time.Duration
	EventsChannel string

	PublishWorkers        int
	PublishBuffer         int
	PublishHandoffTimeout time.Duration
	SubscriberBuffer      int

	CORSOrigins []string
}

// Load reads .env (if present) and then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv, applying defaults for unset keys.
func FromEnv(getenv func(string) string) (Config, error) {
	p := parser{getenv: getenv}
	cfg := Config{
		Debug:                 p.bool("DEBUG", false),
		Port:                  p.string("PORT", "3000"),
		DatabaseDriver:        p.string("DATABASE_DRIVER", "sqlite"),
		DatabaseURL:           p.string("DATABASE_URL", "file:taskboard.db?_foreign_keys=on"),
		RedisURL:              getenv("REDIS_CONNECTION_STRING"),
		BoardCacheTTL:         p.duration("BOARD_CACHE_TTL", 5*time.Minute),
		EventsChannel:         p.string("EVENTS_CHANNEL", "board-events"),
		PublishWorkers:        p.positiveInt("PUBLISH_WORKERS", 8),
		PublishBuffer:         p.positiveInt("PUBLISH_BUFFER", 1024),
		PublishHandoffTimeout: p.duration("PUBLISH_HANDOFF_TIMEOUT", 15*time.Millisecond),
		SubscriberBuffer:      p.positiveInt("SUBSCRIBER_BUFFER", 64),
		CORSOrigins:           p.list("CORS_ORIGINS", []string{"http://localhost:5173"}),
	}
	switch cfg.DatabaseDriver {
	case "sqlite", "postgres":
	default:
		p.fail("DATABASE_DRIVER", fmt.Errorf("must be sqlite or postgres, got %q", cfg.DatabaseDriver))
	}
	if len(p.errs) > 0 {
		return Config{}, errors.Join(p.errs...)
	}
	return cfg, nil
}

// ParseRedisConnection accepts either a redis:// URL or the
// "host:port,password=...,ssl=true" form.
func ParseRedisConnection(conn string) (*redis.Options, error) {
	if conn == "" {
		return nil, errors.New("empty redis connection string")
	}
	if opts, err := redis.ParseURL(conn); err == nil {
		return opts, nil
	}
	parts := strings.Split(conn, ",")
	opts := &redis.Options{Addr: strings.TrimSpace(parts[0])}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.EqualFold(strings.TrimSpace(kv[1]), "true") {
				opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
			}
		}
	}
	return opts, nil
}

type parser struct {
	getenv func(string) string
	errs   []error
}

func (p *parser) fail(key string, err error) {
	p.errs = append(p.errs, fmt.Errorf("invalid %s: %w", key, err))
}

func (p *parser) string(key, def string) string {
	if v := p.getenv(key); v != "" {
		return v
	}
	return def
}

func (p *parser) bool(key string, def bool) bool {
	v := p.getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return b
}

func (p *parser) positiveInt(key string, def int) int {
	v := p.getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, err)
		return def
	}
	if n <= 0 {
		p.fail(key, errors.New("must be greater than zero"))
		return def
	}
	return n
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := p.getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, err)
		return def
	}
	if d < 0 {
		p.fail(key, errors.New("must not be negative"))
		return def
	}
	return d
}

func (p *parser) list(key string, def []string) []string {
	v := p.getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
