package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		// dev | staging | prod
		Env string `yaml:"env"`
	} `yaml:"app"`

	Server struct {
		Addr string `yaml:"addr"`
		// BaseURL es la URL pública del servicio, usada para construir
		// redirect URIs. Ej: https://id.example.com
		BaseURL string `yaml:"base_url"`
	} `yaml:"server"`

	// Pages define destinos de redirección post-login.
	Pages struct {
		Landing    string `yaml:"landing"`
		LoginError string `yaml:"login_error"`
	} `yaml:"pages"`

	Storage struct {
		// memory | postgres
		Driver   string `yaml:"driver"`
		DSN      string `yaml:"dsn"`
		Postgres struct {
			MaxConns int `yaml:"max_conns"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	Cache struct {
		// memory | redis
		Kind  string `yaml:"kind"`
		Redis struct {
			Addr   string `yaml:"addr"`
			DB     int    `yaml:"db"`
			Prefix string `yaml:"prefix"`
		} `yaml:"redis"`
		Memory struct {
			DefaultTTL string `yaml:"default_ttl"`
		} `yaml:"memory"`
	} `yaml:"cache"`

	Flow struct {
		// StateTTL limita la vida de un authorization request pendiente.
		StateTTL string `yaml:"state_ttl"`
		// ExchangeTimeout acota la llamada de token exchange al IdP upstream.
		ExchangeTimeout string `yaml:"exchange_timeout"`
	} `yaml:"flow"`

	Scripts struct {
		// Timeout acota la ejecución de hooks lua por realm.
		Timeout string `yaml:"timeout"`
	} `yaml:"scripts"`

	JWT struct {
		Issuer     string `yaml:"issuer"`
		SessionTTL string `yaml:"session_ttl"`
	} `yaml:"jwt"`

	Realms struct {
		// System es el realm protegido: sus providers no pueden eliminarse.
		System string `yaml:"system"`
	} `yaml:"realms"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// Load lee el YAML (si existe) y aplica overrides desde variables de entorno.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setIf(&cfg.App.Env, "IDBRIDGE_ENV")
	setIf(&cfg.Server.Addr, "IDBRIDGE_ADDR")
	setIf(&cfg.Server.BaseURL, "IDBRIDGE_BASE_URL")
	setIf(&cfg.Storage.Driver, "IDBRIDGE_STORAGE_DRIVER")
	setIf(&cfg.Storage.DSN, "IDBRIDGE_STORAGE_DSN")
	setIf(&cfg.Cache.Kind, "IDBRIDGE_CACHE_KIND")
	setIf(&cfg.Cache.Redis.Addr, "IDBRIDGE_REDIS_ADDR")
	setIf(&cfg.Cache.Redis.Prefix, "IDBRIDGE_REDIS_PREFIX")
	setIf(&cfg.JWT.Issuer, "IDBRIDGE_ISSUER")
	setIf(&cfg.Log.Level, "IDBRIDGE_LOG_LEVEL")
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = "http://localhost:8080"
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "memory"
	}
	if cfg.Cache.Kind == "" {
		cfg.Cache.Kind = "memory"
	}
	if cfg.Flow.StateTTL == "" {
		cfg.Flow.StateTTL = "10m"
	}
	if cfg.Flow.ExchangeTimeout == "" {
		cfg.Flow.ExchangeTimeout = "10s"
	}
	if cfg.Scripts.Timeout == "" {
		cfg.Scripts.Timeout = "500ms"
	}
	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = strings.TrimRight(cfg.Server.BaseURL, "/")
	}
	if cfg.JWT.SessionTTL == "" {
		cfg.JWT.SessionTTL = "15m"
	}
	if cfg.Realms.System == "" {
		cfg.Realms.System = "system"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

func setIf(dst *string, env string) {
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		*dst = v
	}
}

// StateTTL parsea Flow.StateTTL con fallback a 10 minutos.
func (c *Config) StateTTL() time.Duration {
	return parseDur(c.Flow.StateTTL, 10*time.Minute)
}

// ExchangeTimeout parsea Flow.ExchangeTimeout con fallback a 10 segundos.
func (c *Config) ExchangeTimeout() time.Duration {
	return parseDur(c.Flow.ExchangeTimeout, 10*time.Second)
}

// ScriptTimeout parsea Scripts.Timeout con fallback a 500ms.
func (c *Config) ScriptTimeout() time.Duration {
	return parseDur(c.Scripts.Timeout, 500*time.Millisecond)
}

// MemoryTTL parsea Cache.Memory.DefaultTTL con fallback a 10 minutos.
func (c *Config) MemoryTTL() time.Duration {
	return parseDur(c.Cache.Memory.DefaultTTL, 10*time.Minute)
}

// SessionTTL parsea JWT.SessionTTL con fallback a 15 minutos.
func (c *Config) SessionTTL() time.Duration {
	return parseDur(c.JWT.SessionTTL, 15*time.Minute)
}

func parseDur(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
