package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kjstillabower/weather-widget/internal/widget"
)

const defaultWeatherAPIURL = "https://api.openweathermap.org/data/2.5/weather"

// Config holds service configuration loaded from YAML and env.
type Config struct {
	ServerPort string

	// WeatherAPIKey is the default credential for widgets without their own. May be empty.
	WeatherAPIKey     string
	WeatherAPIURL     string
	WeatherAPITimeout time.Duration

	RequestTimeout time.Duration

	CacheBackend          string // "in_memory" or "memcached"
	CacheSweepInterval    time.Duration
	CacheWarm             bool
	CacheWarmInterval     time.Duration
	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	CoalesceEnabled bool
	CoalesceTimeout time.Duration

	RateLimitRPS            int
	RateLimitBurst          int
	CircuitBreakerEnabled   bool
	CircuitFailureThreshold int
	CircuitSuccessThreshold int
	CircuitOpenTimeout      time.Duration

	ShutdownTimeout time.Duration

	DegradedWindow     time.Duration
	DegradedErrorPct   int
	DegradedMinSamples int

	AdminUser         string
	AdminPasswordHash string
	AdminJWTSecret    string
	AdminTokenTTL     time.Duration

	Widgets []WidgetConfig
}

// WidgetConfig is one entry of the widgets list.
type WidgetConfig struct {
	ID       string
	Settings widget.RawSettings
}

// AdminEnabled reports whether the admin routes can authenticate anyone.
func (c *Config) AdminEnabled() bool {
	return c.AdminPasswordHash != "" && c.AdminJWTSecret != ""
}

type fileWidget struct {
	ID                 string `yaml:"id"`
	widget.RawSettings `yaml:",inline"`
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	WeatherAPI struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"weather_api"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Cache struct {
		Backend       string `yaml:"backend"`
		SweepInterval string `yaml:"sweep_interval"`
		Warm          bool   `yaml:"warm"`
		WarmInterval  string `yaml:"warm_interval"`
		Memcached     struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	Service struct {
		CoalesceEnabled bool   `yaml:"coalesce_enabled"`
		CoalesceTimeout string `yaml:"coalesce_timeout"`
	} `yaml:"service"`

	Reliability struct {
		RateLimitRPS   int `yaml:"rate_limit_rps"`
		RateLimitBurst int `yaml:"rate_limit_burst"`
		CircuitBreaker struct {
			Enabled          bool   `yaml:"enabled"`
			FailureThreshold int    `yaml:"failure_threshold"`
			SuccessThreshold int    `yaml:"success_threshold"`
			OpenTimeout      string `yaml:"open_timeout"`
		} `yaml:"circuit_breaker"`
	} `yaml:"reliability"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`

	Health struct {
		DegradedWindow     string `yaml:"degraded_window"`
		DegradedErrorPct   int    `yaml:"degraded_error_pct"`
		DegradedMinSamples int    `yaml:"degraded_min_samples"`
	} `yaml:"health"`

	Admin struct {
		User     string `yaml:"user"`
		TokenTTL string `yaml:"token_ttl"`
	} `yaml:"admin"`

	Widgets []fileWidget `yaml:"widgets"`
}

type secretsFile struct {
	WeatherAPIKey     string `yaml:"weather_api_key"`
	AdminPasswordHash string `yaml:"admin_password_hash"`
	AdminJWTSecret    string `yaml:"admin_jwt_secret"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev) and the optional
// config/secrets.yaml, relative to the working directory. Call from project root.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}
	return LoadFrom(filepath.Join(cwd, "config"), env)
}

// LoadFrom reads {dir}/{env}.yaml and {dir}/secrets.yaml, then applies env overrides:
// WEATHER_API_KEY, CACHE_BACKEND, MEMCACHED_ADDRS, ADMIN_JWT_SECRET.
func LoadFrom(dir, env string) (*Config, error) {
	configPath := filepath.Join(dir, env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	sec, err := loadSecrets(filepath.Join(dir, "secrets.yaml"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{}

	cfg.ServerPort = fc.Server.Port
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}

	cfg.WeatherAPIKey = firstNonEmpty(os.Getenv("WEATHER_API_KEY"), sec.WeatherAPIKey)
	cfg.WeatherAPIURL = firstNonEmpty(strings.TrimSpace(fc.WeatherAPI.URL), defaultWeatherAPIURL)
	cfg.WeatherAPITimeout = parseDurationOrZero(fc.WeatherAPI.Timeout, 10*time.Second)
	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 15*time.Second)

	cfg.CacheBackend = strings.ToLower(firstNonEmpty(
		strings.TrimSpace(os.Getenv("CACHE_BACKEND")),
		strings.TrimSpace(fc.Cache.Backend),
		"in_memory"))
	cfg.CacheSweepInterval = parseDuration(fc.Cache.SweepInterval, time.Minute)
	cfg.CacheWarm = fc.Cache.Warm
	cfg.CacheWarmInterval = parseDuration(fc.Cache.WarmInterval, 10*time.Minute)
	cfg.MemcachedAddrs = firstNonEmpty(
		strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS")),
		strings.TrimSpace(fc.Cache.Memcached.Addrs),
		"localhost:11211")
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	cfg.CoalesceEnabled = fc.Service.CoalesceEnabled
	cfg.CoalesceTimeout = parseDuration(fc.Service.CoalesceTimeout, 12*time.Second)

	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 100
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 250
	}
	cb := fc.Reliability.CircuitBreaker
	cfg.CircuitBreakerEnabled = cb.Enabled
	cfg.CircuitFailureThreshold = cb.FailureThreshold
	if cfg.CircuitFailureThreshold <= 0 {
		cfg.CircuitFailureThreshold = 5
	}
	cfg.CircuitSuccessThreshold = cb.SuccessThreshold
	if cfg.CircuitSuccessThreshold <= 0 {
		cfg.CircuitSuccessThreshold = 2
	}
	cfg.CircuitOpenTimeout = parseDuration(cb.OpenTimeout, 30*time.Second)

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)

	cfg.DegradedWindow = parseDuration(fc.Health.DegradedWindow, 60*time.Second)
	cfg.DegradedErrorPct = fc.Health.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 50
	}
	cfg.DegradedMinSamples = fc.Health.DegradedMinSamples
	if cfg.DegradedMinSamples <= 0 {
		cfg.DegradedMinSamples = 5
	}

	cfg.AdminUser = firstNonEmpty(strings.TrimSpace(fc.Admin.User), "admin")
	cfg.AdminTokenTTL = parseDuration(fc.Admin.TokenTTL, time.Hour)
	cfg.AdminPasswordHash = sec.AdminPasswordHash
	cfg.AdminJWTSecret = firstNonEmpty(os.Getenv("ADMIN_JWT_SECRET"), sec.AdminJWTSecret)

	for _, w := range fc.Widgets {
		cfg.Widgets = append(cfg.Widgets, WidgetConfig{ID: strings.TrimSpace(w.ID), Settings: w.RawSettings})
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadSecrets(path string) (secretsFile, error) {
	var sec secretsFile
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return sec, nil
		}
		return sec, fmt.Errorf("read secrets file: %w", err)
	}
	if err := yaml.Unmarshal(data, &sec); err != nil {
		return sec, fmt.Errorf("parse secrets file: %w", err)
	}
	return sec, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Zero and negative durations are returned as-is for validate to reject.
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load checks. RequestTimeout is raised above WeatherAPITimeout
// so a handler never gives up before the upstream call it is waiting on.
func validate(cfg *Config) error {
	if cfg.WeatherAPITimeout <= 0 {
		return fmt.Errorf("weather_api.timeout must be positive")
	}
	if cfg.RequestTimeout <= cfg.WeatherAPITimeout {
		cfg.RequestTimeout = cfg.WeatherAPITimeout + time.Second
	}
	switch cfg.CacheBackend {
	case "in_memory", "memcached":
	default:
		return fmt.Errorf("cache.backend must be in_memory or memcached, got %q", cfg.CacheBackend)
	}
	seen := make(map[string]bool, len(cfg.Widgets))
	for i, w := range cfg.Widgets {
		if w.ID == "" {
			return fmt.Errorf("widgets[%d]: id is required", i)
		}
		if seen[w.ID] {
			return fmt.Errorf("widgets[%d]: duplicate id %q", i, w.ID)
		}
		seen[w.ID] = true
	}
	return nil
}
