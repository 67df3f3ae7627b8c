package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP     HTTP     `yaml:"http"`
	DB       *DB      `yaml:"db"`
	Redis    *Redis   `yaml:"redis"`
	RMQ      *RMQ     `yaml:"rmq"`
	Auth     Auth     `yaml:"auth"`
	Tracking Tracking `yaml:"tracking"`
	Otp      Otp      `yaml:"otp"`
}

type HTTP struct {
	Addr              string        `yaml:"addr" envconfig:"HTTP_ADDR"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" envconfig:"HTTP_READ_HEADER_TIMEOUT"`
	IdleTimeout       time.Duration `yaml:"idle_timeout" envconfig:"HTTP_IDLE_TIMEOUT"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" envconfig:"HTTP_SHUTDOWN_TIMEOUT"`
}

type DB struct {
	Host     string `yaml:"host" envconfig:"DB_HOST"`
	Port     int    `yaml:"port" envconfig:"DB_PORT"`
	User     string `yaml:"user" envconfig:"DB_USER"`
	Password string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name     string `yaml:"name" envconfig:"DB_NAME"`
}

func (d *DB) DSN() string {
	return fmt.Sprintf(
		"postgresql://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

type Redis struct {
	Addr     string `yaml:"addr" envconfig:"REDIS_ADDR"`
	Password string `yaml:"password" envconfig:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" envconfig:"REDIS_DB"`
}

type RMQ struct {
	Host     string `yaml:"host" envconfig:"RMQ_HOST"`
	Port     int    `yaml:"port" envconfig:"RMQ_PORT"`
	User     string `yaml:"user" envconfig:"RMQ_USER"`
	Password string `yaml:"password" envconfig:"RMQ_PASSWORD"`
}

type Auth struct {
	Secret   string        `yaml:"secret" envconfig:"JWT_SECRET"`
	TokenTTL time.Duration `yaml:"token_ttl" envconfig:"JWT_TOKEN_TTL"`
}

type Tracking struct {
	CacheTTL        time.Duration `yaml:"cache_ttl" envconfig:"TRACKING_CACHE_TTL"`
	GeofenceRadiusM float64       `yaml:"geofence_radius_m" envconfig:"TRACKING_GEOFENCE_RADIUS_M"`
	ResolveTimeout  time.Duration `yaml:"resolve_timeout" envconfig:"TRACKING_RESOLVE_TIMEOUT"`
}

type Otp struct {
	TTL         time.Duration `yaml:"ttl" envconfig:"OTP_TTL"`
	MaxAttempts int           `yaml:"max_attempts" envconfig:"OTP_MAX_ATTEMPTS"`
}

// Load reads the yaml config file, overlays environment variables, and fills
// in defaults for anything still unset. A missing file is not an error so
// that a pure-env deployment works.
func Load(path string) (*Config, error) {
	cfg := &Config{DB: &DB{}, Redis: &Redis{}, RMQ: &RMQ{}}

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":3000"
	}
	if c.HTTP.ReadHeaderTimeout == 0 {
		c.HTTP.ReadHeaderTimeout = 10 * time.Second
	}
	if c.HTTP.IdleTimeout == 0 {
		c.HTTP.IdleTimeout = 120 * time.Second
	}
	if c.HTTP.ShutdownTimeout == 0 {
		c.HTTP.ShutdownTimeout = 10 * time.Second
	}
	if c.DB.Host == "" {
		c.DB.Host = "localhost"
	}
	if c.DB.Port == 0 {
		c.DB.Port = 5432
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.RMQ.Host == "" {
		c.RMQ.Host = "localhost"
	}
	if c.RMQ.Port == 0 {
		c.RMQ.Port = 5672
	}
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = 24 * time.Hour
	}
	if c.Tracking.CacheTTL == 0 {
		c.Tracking.CacheTTL = 30 * time.Second
	}
	if c.Tracking.GeofenceRadiusM == 0 {
		c.Tracking.GeofenceRadiusM = 100
	}
	if c.Tracking.ResolveTimeout == 0 {
		c.Tracking.ResolveTimeout = 2 * time.Second
	}
	if c.Otp.TTL == 0 {
		c.Otp.TTL = 15 * time.Minute
	}
	if c.Otp.MaxAttempts == 0 {
		c.Otp.MaxAttempts = 5
	}
}
