package config

import (
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Addr           string        `validate:"required"`
	SessionBackend string        `validate:"oneof=memory redis sqlite postgres"`
	SessionTTL     time.Duration `validate:"gt=0"`
	SessionCookie  string        `validate:"required"`
	SecureCookie   bool
	RedisURL       string `validate:"required_if=SessionBackend redis"`
	DBPath         string `validate:"required_if=SessionBackend sqlite"`
	DatabaseURL    string `validate:"required_if=SessionBackend postgres"`
	PurgeInterval  time.Duration
	LogDir         string
	LogLevel       string
	TemplateFile   string
	// ExpiredNotice is empty when NoExpiredNotice is set.
	ExpiredNotice   string
	NoExpiredNotice bool
	MetricsEnabled  bool
	MCP             MCPConfig
}

type MCPConfig struct {
	ServerName     string `validate:"required"`
	ServerVersion  string `validate:"required"`
	Transport      string `validate:"oneof=stdio http"`
	HTTPAddr       string `validate:"required_if=Transport http"`
	HealthPath     string
	ConfirmToken   string
	AuditEnabled   bool
	IdempotencyTTL time.Duration `validate:"gt=0"`
}

const defaultExpiredNotice = "Confirmation token has expired, please try action again."

// FromEnv reads .env (when present), the optional CONFIG_FILE and the
// environment, in increasing priority.
func FromEnv() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, errors.Wrap(err, "load .env")
	}
	return Load(os.Getenv("CONFIG_FILE"))
}

// Load builds the configuration from path (yaml, json or toml; may be empty)
// overlaid with environment variables.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AllowEmptyEnv(true)
	v.AutomaticEnv()

	if path = strings.TrimSpace(path); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "read config file %s", path)
		}
	}

	cfg := Config{
		Addr:           getString(v, "SERVER_ADDR"),
		SessionBackend: sessionBackend(getString(v, "SESSION_BACKEND")),
		SessionTTL:     getSeconds(v, "SESSION_TTL_SECONDS"),
		SessionCookie:  getString(v, "SESSION_COOKIE"),
		SecureCookie:   getBool(v, "SESSION_SECURE_COOKIE"),
		RedisURL:       getString(v, "REDIS_URL"),
		DBPath:         getString(v, "DB_PATH"),
		DatabaseURL:    getString(v, "DATABASE_URL"),
		PurgeInterval:  getSeconds(v, "SESSION_PURGE_INTERVAL_SECONDS"),
		LogDir:         strings.TrimSpace(v.GetString("LOG_DIR")),
		LogLevel:       getString(v, "LOG_LEVEL"),
		TemplateFile:   strings.TrimSpace(v.GetString("TEMPLATE_FILE")),
		MetricsEnabled: getBool(v, "METRICS_ENABLED"),
		MCP: MCPConfig{
			ServerName:     getString(v, "MCP_SERVER_NAME"),
			ServerVersion:  getString(v, "MCP_SERVER_VERSION"),
			Transport:      strings.ToLower(getString(v, "MCP_TRANSPORT")),
			HTTPAddr:       getString(v, "MCP_HTTP_ADDR"),
			HealthPath:     getString(v, "MCP_HEALTH_PATH"),
			ConfirmToken:   strings.TrimSpace(v.GetString("MCP_CONFIRM_TOKEN")),
			AuditEnabled:   getBool(v, "MCP_AUDIT_ENABLED"),
			IdempotencyTTL: getSeconds(v, "MCP_IDEMPOTENCY_TTL_SECONDS"),
		},
	}

	// an explicitly empty notice turns the notice off
	cfg.ExpiredNotice = v.GetString("EXPIRED_NOTICE")
	if cfg.ExpiredNotice == "" {
		if v.IsSet("EXPIRED_NOTICE") {
			cfg.NoExpiredNotice = true
		} else {
			cfg.ExpiredNotice = defaultExpiredNotice
		}
	}

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

var defaults = map[string]any{
	"SERVER_ADDR":                    ":6365",
	"SESSION_BACKEND":                "memory",
	"SESSION_TTL_SECONDS":            1800,
	"SESSION_COOKIE":                 "confirm_sid",
	"SESSION_SECURE_COOKIE":          false,
	"DB_PATH":                        "/app/data/sessions.db",
	"SESSION_PURGE_INTERVAL_SECONDS": 300,
	"LOG_LEVEL":                      "info",
	"METRICS_ENABLED":                true,
	"MCP_SERVER_NAME":                "confirm-dialog-mcp",
	"MCP_SERVER_VERSION":             "0.1.0",
	"MCP_TRANSPORT":                  "stdio",
	"MCP_HTTP_ADDR":                  ":8088",
	"MCP_HEALTH_PATH":                "/healthz",
	"MCP_AUDIT_ENABLED":              true,
	"MCP_IDEMPOTENCY_TTL_SECONDS":    3600,
}

// sessionBackend accepts "postgresql" as an alias of "postgres".
func sessionBackend(name string) string {
	name = strings.ToLower(name)
	if name == "postgresql" {
		return "postgres"
	}
	return name
}

func setDefaults(v *viper.Viper) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

// getString falls back to the default when the value is blank, so an empty
// variable behaves like an unset one.
func getString(v *viper.Viper, key string) string {
	if s := strings.TrimSpace(v.GetString(key)); s != "" {
		return s
	}
	if def, ok := defaults[key].(string); ok {
		return def
	}
	return ""
}

func getBool(v *viper.Viper, key string) bool {
	if strings.TrimSpace(v.GetString(key)) == "" {
		def, _ := defaults[key].(bool)
		return def
	}
	return v.GetBool(key)
}

func getSeconds(v *viper.Viper, key string) time.Duration {
	n := v.GetInt(key)
	if n <= 0 {
		if def, ok := defaults[key].(int); ok {
			n = def
		}
	}
	return time.Duration(n) * time.Second
}
