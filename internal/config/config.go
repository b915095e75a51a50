// Package config loads settings from the environment and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/multierr"

	"github.com/andresmejia3/rotisserie/internal/feeder"
	"github.com/andresmejia3/rotisserie/internal/store"
	"github.com/andresmejia3/rotisserie/internal/types"
)

// Keys and the environment variables they are read from.
var envKeys = map[string]string{
	"redis.addr":        "REDIS_ADDR",
	"redis.password":    "REDIS_PASSWORD",
	"redis.read_key":    "REDIS_READ_KEY",
	"redis.write_key":   "REDIS_WRITE_KEY",
	"token":             "TOKEN",
	"twitch.client_id":  "TWITCH_CLIENT_ID",
	"twitch.url":        "ROTISSERIE_TWITCH_URL",
	"debug":             "OCR_DEBUG",
	"debug_dir":         "ROTISSERIE_DEBUG_DIR",
	"ocr_url":           "ROTISSERIE_OCR_URL",
	"port":              "PORT",
	"store":             "ROTISSERIE_STORE",
	"postgres.host":     "POSTGRES_HOST",
	"postgres.port":     "POSTGRES_PORT",
	"postgres.user":     "POSTGRES_USER",
	"postgres.password": "POSTGRES_PASSWORD",
	"postgres.db":       "POSTGRES_DB",
	"models.pubg":       "ROTISSERIE_MODEL_PUBG",
	"models.fortnite":   "ROTISSERIE_MODEL_FORTNITE",
	"models.blackout":   "ROTISSERIE_MODEL_BLACKOUT",
	"engine_script":     "ROTISSERIE_ENGINE_SCRIPT",
	"engines":           "ROTISSERIE_ENGINES",
	"whitelist":         "ROTISSERIE_WHITELIST",
	"blacklist":         "ROTISSERIE_BLACKLIST",
	"channels":          "ROTISSERIE_CHANNELS",
	"feed_interval":     "ROTISSERIE_FEED_INTERVAL",
	"capture_timeout":   "ROTISSERIE_CAPTURE_TIMEOUT",
	"resolve_timeout":   "ROTISSERIE_RESOLVE_TIMEOUT",
	"idle_backoff":      "ROTISSERIE_IDLE_BACKOFF",
}

var defaults = map[string]interface{}{
	"redis.addr":      "redis-master:6379",
	"redis.read_key":  "stream-list",
	"redis.write_key": "stream-by-alive",
	"ocr_url":         "http://rotisserie-ocr:3001",
	"twitch.url":      feeder.DefaultTwitchURL,
	"port":            3001,
	"store":           store.BackendRedis,
	"postgres.port":   "5432",
	"debug_dir":       "debug",
	"engine_script":   "python/engine.py",
	"engines":         1,
	"feed_interval":   feeder.DefaultInterval,
	"capture_timeout": 10 * time.Second,
	"resolve_timeout": 15 * time.Second,
	"idle_backoff":    3 * time.Second,
}

type Config struct {
	Redis struct {
		Addr     string
		Password string
		ReadKey  string
		WriteKey string
	}
	Postgres struct {
		Host     string
		Port     string
		User     string
		Password string
		DB       string
		// URL overrides the individual fields when set (--db).
		URL string
	}
	// Twitch enables live channel discovery in the feeder when ClientID is set.
	Twitch struct {
		ClientID string
		URL      string
	}
	Store          string
	Token          string
	Debug          bool
	DebugDir       string
	OCRURL         string
	Port           int
	Models         map[types.Title]string
	EngineScript   string
	Engines        int
	Whitelist      []string
	Blacklist      []string
	Channels       []string
	FeedInterval   time.Duration
	CaptureTimeout time.Duration
	ResolveTimeout time.Duration
	IdleBackoff    time.Duration
}

// NewViper returns a viper instance with defaults and environment bindings applied.
// file may be empty.
func NewViper(file string) (*viper.Viper, error) {
	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	for k, env := range envKeys {
		if err := v.BindEnv(k, env); err != nil {
			return nil, err
		}
	}
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", file, err)
		}
	}
	return v, nil
}

// Load reads settings from the environment and, if file is set, a YAML/JSON/TOML file.
func Load(file string) (*Config, error) {
	v, err := NewViper(file)
	if err != nil {
		return nil, err
	}
	return FromViper(v), nil
}

func FromViper(v *viper.Viper) *Config {
	c := &Config{
		Store:          strings.ToLower(v.GetString("store")),
		Token:          v.GetString("token"),
		Debug:          v.GetBool("debug"),
		DebugDir:       v.GetString("debug_dir"),
		OCRURL:         v.GetString("ocr_url"),
		Port:           v.GetInt("port"),
		EngineScript:   v.GetString("engine_script"),
		Engines:        v.GetInt("engines"),
		Whitelist:      feeder.ParseList(v.GetString("whitelist")),
		Blacklist:      feeder.ParseList(v.GetString("blacklist")),
		Channels:       feeder.ParseList(v.GetString("channels")),
		FeedInterval:   v.GetDuration("feed_interval"),
		CaptureTimeout: v.GetDuration("capture_timeout"),
		ResolveTimeout: v.GetDuration("resolve_timeout"),
		IdleBackoff:    v.GetDuration("idle_backoff"),
		Models:         map[types.Title]string{},
	}
	c.Twitch.ClientID = v.GetString("twitch.client_id")
	c.Twitch.URL = v.GetString("twitch.url")
	c.Redis.Addr = v.GetString("redis.addr")
	c.Redis.Password = v.GetString("redis.password")
	c.Redis.ReadKey = v.GetString("redis.read_key")
	c.Redis.WriteKey = v.GetString("redis.write_key")
	c.Postgres.Host = v.GetString("postgres.host")
	c.Postgres.Port = v.GetString("postgres.port")
	c.Postgres.User = v.GetString("postgres.user")
	c.Postgres.Password = v.GetString("postgres.password")
	c.Postgres.DB = v.GetString("postgres.db")
	for _, t := range types.Titles {
		if p := v.GetString("models." + string(t)); p != "" {
			c.Models[t] = p
		}
	}
	return c
}

// PostgresURL builds the connection string from the POSTGRES_* settings,
// falling back to a local database when no host is configured.
func (c *Config) PostgresURL() string {
	if c.Postgres.URL != "" {
		return c.Postgres.URL
	}
	if c.Postgres.Host == "" {
		return "postgres://localhost:5432/rotisserie"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", c.Postgres.User, c.Postgres.Password, c.Postgres.Host, c.Postgres.Port, c.Postgres.DB)
}

// StoreOptions converts the configuration for store.Open.
func (c *Config) StoreOptions() store.Options {
	return store.Options{
		Backend:       c.Store,
		RedisAddr:     c.Redis.Addr,
		RedisPassword: c.Redis.Password,
		ReadKey:       c.Redis.ReadKey,
		WriteKey:      c.Redis.WriteKey,
		PostgresURL:   c.PostgresURL(),
	}
}

// Requirement names a group of settings a command depends on.
type Requirement int

const (
	NeedStore Requirement = iota
	NeedModels
	NeedOCR
	NeedChannels
)

// MinTimeout is the shortest accepted capture or resolve timeout. Durations need a unit;
// a bare "10" is read as nanoseconds and rejected here.
const MinTimeout = time.Second

// ErrMissing is wrapped by Validate for each absent required setting.
var ErrMissing = errors.New("missing configuration")

// Validate checks the settings required by a command. All problems are reported together.
func (c *Config) Validate(needs ...Requirement) error {
	var err error
	for _, n := range needs {
		switch n {
		case NeedStore:
			switch c.Store {
			case store.BackendRedis:
				if c.Redis.Addr == "" {
					err = multierr.Append(err, fmt.Errorf("%w: REDIS_ADDR", ErrMissing))
				}
				if c.Redis.ReadKey == "" || c.Redis.WriteKey == "" {
					err = multierr.Append(err, fmt.Errorf("%w: REDIS_READ_KEY and REDIS_WRITE_KEY", ErrMissing))
				}
			case store.BackendPostgres:
			default:
				err = multierr.Append(err, fmt.Errorf("ROTISSERIE_STORE must be %q or %q, got %q", store.BackendRedis, store.BackendPostgres, c.Store))
			}
		case NeedModels:
			if len(c.Models) == 0 {
				err = multierr.Append(err, fmt.Errorf("%w: at least one of ROTISSERIE_MODEL_{PUBG,FORTNITE,BLACKOUT}", ErrMissing))
			}
			if c.Engines < 1 {
				err = multierr.Append(err, fmt.Errorf("ROTISSERIE_ENGINES must be at least 1, got %d", c.Engines))
			}
		case NeedOCR:
			if c.OCRURL == "" {
				err = multierr.Append(err, fmt.Errorf("%w: ROTISSERIE_OCR_URL", ErrMissing))
			}
		case NeedChannels:
			if len(c.Channels) == 0 && len(c.Whitelist) == 0 && c.Twitch.ClientID == "" {
				err = multierr.Append(err, fmt.Errorf("%w: TWITCH_CLIENT_ID, ROTISSERIE_CHANNELS or ROTISSERIE_WHITELIST", ErrMissing))
			}
		}
	}
	if c.CaptureTimeout < MinTimeout {
		err = multierr.Append(err, fmt.Errorf("ROTISSERIE_CAPTURE_TIMEOUT must be at least %s with a unit (e.g. 10s), got %s", MinTimeout, c.CaptureTimeout))
	}
	if c.ResolveTimeout < MinTimeout {
		err = multierr.Append(err, fmt.Errorf("ROTISSERIE_RESOLVE_TIMEOUT must be at least %s with a unit (e.g. 15s), got %s", MinTimeout, c.ResolveTimeout))
	}
	if c.IdleBackoff <= 0 || c.FeedInterval < 0 {
		err = multierr.Append(err, errors.New("ROTISSERIE_IDLE_BACKOFF and ROTISSERIE_FEED_INTERVAL must be positive"))
	}
	return err
}
