// Package config loads service settings from the environment, optionally
// layered over a YAML file named by CONFIG_FILE.
package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

const envConfigFile = "CONFIG_FILE"

// Change notice transports accepted in Notifier.
const (
	NotifyRedis = "redis"
	NotifyQueue = "queue"
)

type Config struct {
	Debug     bool `yaml:"debug"`
	LocalMode bool `yaml:"localMode"`

	StorageConnectionString string `yaml:"storageConnectionString"`
	TasksTable              string `yaml:"tasksTable"`
	ChangeQueue             string `yaml:"changeQueue"`

	RedisConnectionString string        `yaml:"redisConnectionString"`
	UpdatesChannel        string        `yaml:"updatesChannel"`
	Notifier              string        `yaml:"notifier"`
	CacheTTL              time.Duration `yaml:"cacheTTL"`
	IdempotencyTTL        time.Duration `yaml:"idempotencyTTL"`

	Auth0Domain    string        `yaml:"auth0Domain"`
	Auth0Audience  string        `yaml:"auth0Audience"`
	AuthTestMode   bool          `yaml:"authTestMode"`
	TestJWTSecret  string        `yaml:"testJWTSecret"`
	JWKSCacheTTL   time.Duration `yaml:"jwksCacheTTL"`
	ListenAddr     string        `yaml:"listenAddr"`
	ShutdownWindow time.Duration `yaml:"shutdownWindow"`
	SessionIdleTTL time.Duration `yaml:"sessionIdleTTL"`
}

// Defaults returns the settings used when neither the file nor the
// environment names a value.
func Defaults() Config {
	return Config{
		TasksTable:     "tasks",
		ChangeQueue:    "task-changes",
		UpdatesChannel: "task-updates",
		Notifier:       NotifyRedis,
		CacheTTL:       10 * time.Minute,
		IdempotencyTTL: 24 * time.Hour,
		JWKSCacheTTL:   15 * time.Minute,
		ListenAddr:     ":8080",
		ShutdownWindow: 10 * time.Second,
		SessionIdleTTL: 30 * time.Minute,
	}
}

// Load reads the process environment.
func Load() (Config, error) {
	return load(os.LookupEnv)
}

func load(lookup func(string) (string, bool)) (Config, error) {
	cfg := Defaults()
	if path, ok := lookup(envConfigFile); ok && path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	var errs []error
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}
	boolean := func(name string, dst *bool) {
		if v, ok := lookup(name); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("invalid %s: %w", name, err))
				return
			}
			*dst = b
		}
	}
	duration := func(name string, dst *time.Duration) {
		if v, ok := lookup(name); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil || d < 0 {
				errs = append(errs, fmt.Errorf("invalid %s: %q", name, v))
				return
			}
			*dst = d
		}
	}

	boolean("DEBUG", &cfg.Debug)
	boolean("LOCAL_MODE", &cfg.LocalMode)
	str("STORAGE_CONNECTION_STRING", &cfg.StorageConnectionString)
	str("TASKS_TABLE", &cfg.TasksTable)
	str("CHANGE_QUEUE", &cfg.ChangeQueue)
	str("REDIS_CONNECTION_STRING", &cfg.RedisConnectionString)
	str("TASK_UPDATES_CHANNEL", &cfg.UpdatesChannel)
	str("NOTIFIER", &cfg.Notifier)
	duration("TASKS_CACHE_TTL", &cfg.CacheTTL)
	duration("IDEMPOTENCY_TTL", &cfg.IdempotencyTTL)
	duration("SESSION_IDLE_TTL", &cfg.SessionIdleTTL)
	str("AUTH0_DOMAIN", &cfg.Auth0Domain)
	str("AUTH0_AUDIENCE", &cfg.Auth0Audience)
	if v, ok := lookup("AUTH0_TEST_MODE"); ok && v != "" {
		cfg.AuthTestMode = v == "1" || strings.EqualFold(v, "true")
	}
	str("TEST_JWT_SECRET", &cfg.TestJWTSecret)
	duration("JWKS_CACHE_TTL", &cfg.JWKSCacheTTL)
	duration("SHUTDOWN_WINDOW", &cfg.ShutdownWindow)
	if v, ok := lookup("PORT"); ok && v != "" {
		cfg.ListenAddr = ":" + v
	}
	str("LISTEN_ADDR", &cfg.ListenAddr)

	cfg.Notifier = strings.ToLower(cfg.Notifier)
	if cfg.Notifier != NotifyRedis && cfg.Notifier != NotifyQueue {
		errs = append(errs, fmt.Errorf("invalid NOTIFIER: %q", cfg.Notifier))
	}

	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}
	return cfg, nil
}

// RequireStorage checks the table and queue settings.
func (c Config) RequireStorage() error {
	if c.StorageConnectionString == "" || c.TasksTable == "" || c.ChangeQueue == "" {
		return errors.New("missing storage config")
	}
	return nil
}

// RequireRedis checks the cache and bus settings.
func (c Config) RequireRedis() error {
	if c.RedisConnectionString == "" || c.UpdatesChannel == "" {
		return errors.New("missing redis config")
	}
	return nil
}

// RequireAuth checks token verification settings.
func (c Config) RequireAuth() error {
	if c.AuthTestMode {
		if c.TestJWTSecret == "" {
			return errors.New("TEST_JWT_SECRET must be set when AUTH0_TEST_MODE=1")
		}
		return nil
	}
	if c.Auth0Domain == "" || c.Auth0Audience == "" {
		return errors.New("missing Auth0 config")
	}
	return nil
}

// JWKSURL is the Auth0 key set location.
func (c Config) JWKSURL() string {
	return fmt.Sprintf("https://%s/.well-known/jwks.json", c.Auth0Domain)
}

// Issuer is the expected token issuer.
func (c Config) Issuer() string {
	return "https://" + c.Auth0Domain + "/"
}

// RedisOptions accepts either a redis:// URL or an Azure-style
// "host:port,password=...,ssl=True" connection string.
func (c Config) RedisOptions() (*redis.Options, error) {
	if c.RedisConnectionString == "" {
		return nil, errors.New("missing redis config")
	}
	if opts, err := redis.ParseURL(c.RedisConnectionString); err == nil {
		return opts, nil
	}
	parts := strings.Split(c.RedisConnectionString, ",")
	opts := &redis.Options{Addr: parts[0]}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(kv[0]) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.ToLower(kv[1]) == "true" {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts, nil
}
