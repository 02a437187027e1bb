package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Upstream  UpstreamConfig  `yaml:"upstream"`
	Limiter   LimiterConfig   `yaml:"limiter"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Worker    WorkerConfig    `yaml:"worker"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`
	Mode string `yaml:"mode"` // debug, release, test
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite, mysql, postgres
	DSN    string `yaml:"dsn"`
}

// RedisConfig for the optional asynq foreground dispatch queue
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type UpstreamConfig struct {
	BaseURL           string `yaml:"base_url"`
	TimeoutSeconds    int    `yaml:"timeout_seconds"`
	SessionTTLMinutes int    `yaml:"session_ttl_minutes"`
	PageSize          int    `yaml:"page_size"`
	UserAgent         string `yaml:"user_agent"`
}

// LimiterConfig controls the shared outbound token bucket.
type LimiterConfig struct {
	RefillPerSecond float64    `yaml:"refill_per_second"`
	BucketSize      int        `yaml:"bucket_size"`
	ForegroundBurst int        `yaml:"foreground_burst"`
	Costs           CostConfig `yaml:"costs"`
}

// CostConfig is the per-endpoint cost table, in bucket units.
// Search cost scales with the number of records expected so a large
// catalog scrape weighs several times a small interactive lookup.
type CostConfig struct {
	Terms        float64 `yaml:"terms"`
	Subjects     float64 `yaml:"subjects"`
	SearchBase   float64 `yaml:"search_base"`
	SearchPer100 float64 `yaml:"search_per_100"`
	MeetingTimes float64 `yaml:"meeting_times"`
}

type SchedulerConfig struct {
	TickSeconds          int      `yaml:"tick_seconds"`
	MinIntervalMinutes   int      `yaml:"min_interval_minutes"`
	MaxIntervalHours     int      `yaml:"max_interval_hours"`
	MinSpacingMinutes    int      `yaml:"min_spacing_minutes"`
	PrioritySubjects     []string `yaml:"priority_subjects"`
	PriorityDivisor      float64  `yaml:"priority_divisor"`
	ReadOnlyMultiplier   float64  `yaml:"read_only_multiplier"`
	JitterPct            float64  `yaml:"jitter_pct"`
	ZeroChangeGrowth     float64  `yaml:"zero_change_growth"`
	ChangeShrink         float64  `yaml:"change_shrink"`
	ZeroCourseRetryHours int      `yaml:"zero_course_retry_hours"`
	StaleElevationFactor float64  `yaml:"stale_elevation_factor"`
	HolidayMultiplier    float64  `yaml:"holiday_multiplier"`
	FullRefreshCron      string   `yaml:"full_refresh_cron"`
	ReferenceRefreshCron string   `yaml:"reference_refresh_cron"`
}

type WorkerConfig struct {
	Count                  int `yaml:"count"`
	JobTimeoutMinutes      int `yaml:"job_timeout_minutes"`
	MaxRetries             int `yaml:"max_retries"`
	LockExpiryMinutes      int `yaml:"lock_expiry_minutes"`
	BackoffBaseMinutes     int `yaml:"backoff_base_minutes"`
	BackoffMaxMinutes      int `yaml:"backoff_max_minutes"`
	ShutdownTimeoutSeconds int `yaml:"shutdown_timeout_seconds"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

var GlobalConfig *Config

func Load(configPath string) (*Config, error) {
	// Pick up a local .env before reading the environment.
	_ = godotenv.Load()

	if configPath == "" {
		configPath = "config.yaml"
	}

	var cfg *Config

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg = DefaultConfig()
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, err
		}

		cfg = DefaultConfig()
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	cfg.overrideFromEnv()
	GlobalConfig = cfg
	return cfg, nil
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: "8080",
			Mode: "debug",
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "coursepulse.db",
		},
		Redis: RedisConfig{
			Enabled: false,
			Addr:    "localhost:6379",
			DB:      0,
		},
		Upstream: UpstreamConfig{
			BaseURL:           "https://selfservice.example.edu/courses",
			TimeoutSeconds:    30,
			SessionTTLMinutes: 25,
			PageSize:          50,
			UserAgent:         "coursepulse/1.0",
		},
		Limiter: LimiterConfig{
			RefillPerSecond: 1.0,
			BucketSize:      20,
			ForegroundBurst: 20,
			Costs: CostConfig{
				Terms:        1,
				Subjects:     1,
				SearchBase:   1,
				SearchPer100: 1.5,
				MeetingTimes: 0.5,
			},
		},
		Scheduler: SchedulerConfig{
			TickSeconds:          60,
			MinIntervalMinutes:   60,
			MaxIntervalHours:     24,
			MinSpacingMinutes:    5,
			PrioritySubjects:     nil,
			PriorityDivisor:      3,
			ReadOnlyMultiplier:   5,
			JitterPct:            0.15,
			ZeroChangeGrowth:     0.25,
			ChangeShrink:         0.5,
			ZeroCourseRetryHours: 12,
			StaleElevationFactor: 2.0,
			HolidayMultiplier:    2.0,
			FullRefreshCron:      "0 */4 * * *",
			ReferenceRefreshCron: "30 2 * * *",
		},
		Worker: WorkerConfig{
			Count:                  4,
			JobTimeoutMinutes:      5,
			MaxRetries:             3,
			LockExpiryMinutes:      10,
			BackoffBaseMinutes:     1,
			BackoffMaxMinutes:      30,
			ShutdownTimeoutSeconds: 8,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func (c *Config) overrideFromEnv() {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		c.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		c.Server.Port = port
	}
	if mode := os.Getenv("SERVER_MODE"); mode != "" {
		c.Server.Mode = mode
	}
	if driver := os.Getenv("DB_DRIVER"); driver != "" {
		c.Database.Driver = driver
	}
	if dsn := os.Getenv("DB_DSN"); dsn != "" {
		c.Database.DSN = dsn
	}
	if baseURL := os.Getenv("UPSTREAM_BASE_URL"); baseURL != "" {
		c.Upstream.BaseURL = baseURL
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if subjects := os.Getenv("PRIORITY_SUBJECTS"); subjects != "" {
		c.Scheduler.PrioritySubjects = splitAndTrim(subjects, ",")
	}
	if count := os.Getenv("WORKER_COUNT"); count != "" {
		if n, err := strconv.Atoi(count); err == nil && n > 0 {
			c.Worker.Count = n
		}
	}
	// Redis URL override (format: redis://:password@host:port/db)
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		c.Redis.Enabled = true
		c.parseRedisURL(redisURL)
	}
}

// parseRedisURL parses a Redis URL and sets config values
// Format: redis://:password@host:port/db
func (c *Config) parseRedisURL(redisURL string) {
	url := strings.TrimPrefix(redisURL, "redis://")

	if atIdx := strings.Index(url, "@"); atIdx != -1 {
		authPart := url[:atIdx]
		url = url[atIdx+1:]
		if colonIdx := strings.Index(authPart, ":"); colonIdx != -1 {
			c.Redis.Password = authPart[colonIdx+1:]
		}
	}

	if slashIdx := strings.LastIndex(url, "/"); slashIdx != -1 {
		dbStr := url[slashIdx+1:]
		url = url[:slashIdx]
		if db, err := strconv.Atoi(dbStr); err == nil {
			c.Redis.DB = db
		}
	}

	c.Redis.Addr = url
}

func (c *Config) Save(configPath string) error {
	if configPath == "" {
		configPath = "config.yaml"
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(configPath, data, 0644)
}

func splitAndTrim(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
