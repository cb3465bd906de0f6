// Package config loads chat server settings from defaults, an optional .env
// file, CHAT_* environment variables and command-line flags, in that order of
// precedence (flags win).
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "CHAT_"

// RateLimitConfig defines per-connection chat throttling. A zero Burst
// disables the limiter.
type RateLimitConfig struct {
	Burst          int           `env:"BURST" envDefault:"20"`
	RefillInterval time.Duration `env:"REFILL_INTERVAL" envDefault:"1s"`
}

// HashConfig selects the password hashing scheme used for new and existing
// credentials.
type HashConfig struct {
	Algorithm  string `env:"ALGORITHM" envDefault:"sha1"`
	Iterations int    `env:"ITERATIONS" envDefault:"1000"`
}

type LogConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"text"`
}

// Config holds the server configuration.
//
// WebSocketAddr may be empty to disable the HTTP/WebSocket listener.
// HandshakeTimeout bounds the time a client may spend before logging in;
// zero disables it.
// DatabaseDSN is either a postgres URL or "memory" for a process-local store.
type Config struct {
	Addr             string          `env:"ADDR" envDefault:":1337"`
	WebSocketAddr    string          `env:"WS_ADDR" envDefault:":8080"`
	AllowedOrigins   []string        `env:"ALLOWED_ORIGINS" envDefault:"http://localhost:8080" envSeparator:","`
	DatabaseDSN      string          `env:"DATABASE_DSN" envDefault:"memory"`
	MaxLineLength    int             `env:"MAX_LINE_LENGTH" envDefault:"4096"`
	SendQueueSize    int             `env:"SEND_QUEUE_SIZE" envDefault:"256"`
	WriteTimeout     time.Duration   `env:"WRITE_TIMEOUT" envDefault:"10s"`
	HandshakeTimeout time.Duration   `env:"HANDSHAKE_TIMEOUT" envDefault:"60s"`
	MaxConnections   int             `env:"MAX_CONNECTIONS" envDefault:"0"`
	ShutdownTimeout  time.Duration   `env:"SHUTDOWN_TIMEOUT" envDefault:"5s"`
	RateLimit        RateLimitConfig `envPrefix:"RATE_LIMIT_"`
	Hash             HashConfig      `envPrefix:"HASH_"`
	Log              LogConfig       `envPrefix:"LOG_"`
}

// Default returns a Config populated only from the envDefault tags.
func Default() *Config {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{
		Prefix:      EnvPrefix,
		Environment: map[string]string{},
	}); err != nil {
		// envDefault values are static; a failure here is a programming error.
		panic(fmt.Sprintf("config: invalid defaults: %v", err))
	}
	return Sanitize(cfg)
}

// Load builds a Config from the process environment and the given
// command-line arguments (usually os.Args[1:]).
//
// Supported flags:
//
//	-a string   TCP listen address
//	-w string   WebSocket/HTTP listen address ("" disables)
//	-d string   database DSN or "memory"
//	-l string   log level
//	-e string   .env file to load (default ".env", missing file is ignored)
func Load(args []string) (*Config, error) {
	var (
		addr, wsAddr, dsn, level string
		envFile                  string
	)

	flags := flag.NewFlagSet("server", flag.ContinueOnError)
	flags.StringVar(&addr, "a", "", "address and port for the chat listener")
	flags.StringVar(&wsAddr, "w", "", "address and port for the websocket listener")
	flags.StringVar(&dsn, "d", "", "database DSN")
	flags.StringVar(&level, "l", "", "log level")
	flags.StringVar(&envFile, "e", ".env", "path to .env file")

	if err := flags.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	if err := loadEnvFile(envFile); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	flags.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "a":
			cfg.Addr = addr
		case "w":
			cfg.WebSocketAddr = wsAddr
		case "d":
			cfg.DatabaseDSN = dsn
		case "l":
			cfg.Log.Level = level
		}
	})

	return Sanitize(cfg), nil
}

func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	// godotenv never overrides variables that are already set.
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Sanitize replaces invalid values with defaults. It returns cfg for chaining.
func Sanitize(cfg *Config) *Config {
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = ":1337"
	}
	if cfg.DatabaseDSN == "" {
		cfg.DatabaseDSN = "memory"
	}
	if cfg.MaxLineLength <= 0 {
		cfg.MaxLineLength = 4096
	}
	if cfg.SendQueueSize <= 0 {
		cfg.SendQueueSize = 256
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.HandshakeTimeout < 0 {
		cfg.HandshakeTimeout = 0
	}
	if cfg.MaxConnections < 0 {
		cfg.MaxConnections = 0
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	if cfg.RateLimit.Burst < 0 {
		cfg.RateLimit.Burst = 0
	}
	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = time.Second
	}
	cfg.Hash.Algorithm = strings.ToLower(strings.TrimSpace(cfg.Hash.Algorithm))
	if cfg.Hash.Algorithm == "" {
		cfg.Hash.Algorithm = "sha1"
	}
	if cfg.Hash.Iterations <= 0 {
		cfg.Hash.Iterations = 1000
	}

	origins := make([]string, 0, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	cfg.AllowedOrigins = origins

	return cfg
}
