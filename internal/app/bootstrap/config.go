// internal/app/bootstrap/config.go
package bootstrap

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/dalemusser/classhub/internal/app/system/auditlog"
	"github.com/dalemusser/classhub/internal/app/system/timeouts"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// EnvPrefix prefixes every environment variable ClassHub reads.
const EnvPrefix = "CLASSHUB"

// Development-only secrets. ValidateConfig rejects them in prod.
const (
	devSessionKey  = "dev-only-change-me-please-0123456789ABCDEF"
	devTokenSecret = "dev-only-token-secret-change-me-0123456789"
)

// AppKey declares one configuration key. The type of Default decides the
// flag type and how the value is read back.
type AppKey struct {
	Name    string
	Default any
	Desc    string
}

// appConfigKeys defines the configuration keys for ClassHub.
// These are loaded with support for:
//   - Config files: mongo_uri, session_name, etc.
//   - Environment variables: CLASSHUB_MONGO_URI, CLASSHUB_SESSION_NAME, etc.
//   - Command-line flags: --mongo_uri, --session_name, etc.
var appConfigKeys = []AppKey{
	{Name: "env", Default: "dev", Desc: "Runtime environment: 'dev' or 'prod'"},
	{Name: "log_level", Default: "info", Desc: "Log level (debug, info, warn, error)"},
	{Name: "http_addr", Default: ":3000", Desc: "HTTP listen address"},
	{Name: "shutdown_timeout", Default: 15 * time.Second, Desc: "Grace period for in-flight requests on shutdown"},
	{Name: "memory", Default: false, Desc: "Use the in-memory store instead of MongoDB (data is lost on exit)"},

	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "classhub", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size"},

	{Name: "redis_addr", Default: "", Desc: "Redis address for cross-instance change signals (blank disables)"},
	{Name: "redis_password", Default: "", Desc: "Redis password"},
	{Name: "redis_db", Default: 0, Desc: "Redis database number"},

	{Name: "backend_poll_interval", Default: 100 * time.Millisecond, Desc: "Delay between backend readiness checks"},
	{Name: "backend_max_attempts", Default: 100, Desc: "Readiness checks before bootstrap gives up"},

	{Name: "session_key", Default: devSessionKey, Desc: "Session signing key (must be strong in production)"},
	{Name: "session_name", Default: "classhub-session", Desc: "Session cookie name"},
	{Name: "session_domain", Default: "", Desc: "Session cookie domain (blank means current host)"},
	{Name: "session_max_age", Default: 24 * time.Hour, Desc: "Session cookie lifetime"},
	{Name: "csrf_trusted_origins", Default: "", Desc: "Comma-separated hosts allowed to send cross-origin writes"},

	{Name: "token_secret", Default: devTokenSecret, Desc: "ID token signing secret (at least 32 bytes)"},
	{Name: "token_ttl", Default: time.Hour, Desc: "ID token lifetime"},
	{Name: "max_failed_attempts", Default: 5, Desc: "Failed sign-ins before an account is locked"},
	{Name: "lock_duration", Default: 15 * time.Minute, Desc: "How long a locked account stays locked"},

	{Name: "auth_ip_limit", Default: 20, Desc: "Sign-in/sign-up requests allowed per client address per window"},
	{Name: "auth_ip_window", Default: time.Minute, Desc: "Window for auth_ip_limit"},
	{Name: "auth_email_limit", Default: 5, Desc: "Sign-in attempts allowed per email per window"},
	{Name: "auth_email_window", Default: 5 * time.Minute, Desc: "Window for auth_email_limit"},

	{Name: "static_dir", Default: "./public", Desc: "Directory of HTML/JS/CSS served at /"},
	{Name: "cors_origins", Default: "*", Desc: "Comma-separated allowed CORS origins"},
	{Name: "timeout_ping", Default: timeouts.DefaultPing, Desc: "Budget for health checks and readiness checks"},
	{Name: "timeout_short", Default: timeouts.DefaultShort, Desc: "Budget for single-document reads and sign-in"},
	{Name: "timeout_medium", Default: timeouts.DefaultMedium, Desc: "Budget for list queries and writes"},
	{Name: "timeout_long", Default: timeouts.DefaultLong, Desc: "Budget for multi-collection operations"},
	{Name: "default_language", Default: "es", Desc: "Message language when the client sends no Accept-Language"},

	{Name: "audit_log_auth", Default: "all", Desc: "Audit destination for sign-in events: all, db, log, off"},
	{Name: "audit_log_admin", Default: "all", Desc: "Audit destination for admin actions: all, db, log, off"},
	{Name: "admin_email", Default: "", Desc: "Administrator created on startup if missing"},
	{Name: "admin_password", Default: "", Desc: "Password for admin_email"},
	{Name: "admin_name", Default: "Administrador", Desc: "Display name for admin_email"},
}

// BindFlags declares one flag per configuration key on cmd and binds it to v.
func BindFlags(cmd *cobra.Command, v *viper.Viper) error {
	flags := cmd.Flags()
	for _, k := range appConfigKeys {
		switch d := k.Default.(type) {
		case string:
			flags.String(k.Name, d, k.Desc)
		case int:
			flags.Int(k.Name, d, k.Desc)
		case bool:
			flags.Bool(k.Name, d, k.Desc)
		case time.Duration:
			flags.Duration(k.Name, d, k.Desc)
		default:
			return fmt.Errorf("config key %s: unsupported default type %T", k.Name, k.Default)
		}
		if err := v.BindPFlag(k.Name, flags.Lookup(k.Name)); err != nil {
			return fmt.Errorf("bind flag %s: %w", k.Name, err)
		}
	}
	return nil
}

// LoadConfig reads configuration into an AppConfig.
//
// A .env file in the working directory is loaded into the environment first
// when present. configFile names a YAML/JSON/TOML file; when blank, an
// optional classhub.yaml in the working directory is used.
func LoadConfig(v *viper.Viper, configFile string, logger *zap.Logger) (AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return AppConfig{}, fmt.Errorf("load .env: %w", err)
	}

	for _, k := range appConfigKeys {
		v.SetDefault(k.Name, k.Default)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("classhub")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return AppConfig{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		logger.Info("config file loaded", zap.String("file", v.ConfigFileUsed()))
	}

	cfg := AppConfig{
		Env:             strings.ToLower(v.GetString("env")),
		LogLevel:        v.GetString("log_level"),
		HTTPAddr:        v.GetString("http_addr"),
		ShutdownTimeout: v.GetDuration("shutdown_timeout"),
		Memory:          v.GetBool("memory"),

		MongoURI:         v.GetString("mongo_uri"),
		MongoDatabase:    v.GetString("mongo_database"),
		MongoMaxPoolSize: uint64(v.GetInt("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(v.GetInt("mongo_min_pool_size")),

		RedisAddr:     v.GetString("redis_addr"),
		RedisPassword: v.GetString("redis_password"),
		RedisDB:       v.GetInt("redis_db"),

		BackendPollInterval: v.GetDuration("backend_poll_interval"),
		BackendMaxAttempts:  v.GetInt("backend_max_attempts"),

		SessionKey:    v.GetString("session_key"),
		SessionName:   v.GetString("session_name"),
		SessionDomain: v.GetString("session_domain"),
		SessionMaxAge: v.GetDuration("session_max_age"),

		CSRFTrustedOrigins: splitList(v.GetString("csrf_trusted_origins")),

		TokenSecret:       v.GetString("token_secret"),
		TokenTTL:          v.GetDuration("token_ttl"),
		MaxFailedAttempts: v.GetInt("max_failed_attempts"),
		LockDuration:      v.GetDuration("lock_duration"),

		AuthIPLimit:     v.GetInt("auth_ip_limit"),
		AuthIPWindow:    v.GetDuration("auth_ip_window"),
		AuthEmailLimit:  v.GetInt("auth_email_limit"),
		AuthEmailWindow: v.GetDuration("auth_email_window"),

		StaticDir:       v.GetString("static_dir"),
		CORSOrigins:     splitList(v.GetString("cors_origins")),
		DefaultLanguage: v.GetString("default_language"),

		TimeoutPing:   v.GetDuration("timeout_ping"),
		TimeoutShort:  v.GetDuration("timeout_short"),
		TimeoutMedium: v.GetDuration("timeout_medium"),
		TimeoutLong:   v.GetDuration("timeout_long"),

		AuditLogAuth:  strings.ToLower(strings.TrimSpace(v.GetString("audit_log_auth"))),
		AuditLogAdmin: strings.ToLower(strings.TrimSpace(v.GetString("audit_log_admin"))),
		AdminEmail:    strings.TrimSpace(v.GetString("admin_email")),
		AdminPassword: v.GetString("admin_password"),
		AdminName:     v.GetString("admin_name"),
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ValidateConfig performs app-specific config validation.
//
// Return nil to accept the loaded config, or an error to abort startup.
// The MongoDB URI is checked up front to catch configuration errors before
// attempting to connect.
func ValidateConfig(cfg AppConfig, logger *zap.Logger) error {
	if cfg.Env != "dev" && cfg.Env != "prod" {
		return fmt.Errorf("env must be 'dev' or 'prod', got %q", cfg.Env)
	}

	if !cfg.Memory {
		if err := wafflemongo.ValidateURI(cfg.MongoURI); err != nil {
			logger.Error("invalid MongoDB URI", zap.Error(err))
			return fmt.Errorf("invalid MongoDB URI: %w", err)
		}
		if cfg.MongoDatabase == "" {
			return errors.New("mongo_database is required")
		}
	}

	if len(cfg.SessionKey) < 32 {
		return errors.New("session_key must be at least 32 bytes")
	}
	if len(cfg.TokenSecret) < 32 {
		return errors.New("token_secret must be at least 32 bytes")
	}
	if cfg.Env == "prod" && (cfg.SessionKey == devSessionKey || cfg.TokenSecret == devTokenSecret) {
		return errors.New("session_key and token_secret must be set in prod")
	}

	for key, dest := range map[string]string{"audit_log_auth": cfg.AuditLogAuth, "audit_log_admin": cfg.AuditLogAdmin} {
		switch dest {
		case "", auditlog.DestAll, auditlog.DestDB, auditlog.DestLog, auditlog.DestOff:
		default:
			return fmt.Errorf("%s must be all, db, log or off, got %q", key, dest)
		}
	}

	for key, d := range map[string]time.Duration{
		"timeout_ping":   cfg.TimeoutPing,
		"timeout_short":  cfg.TimeoutShort,
		"timeout_medium": cfg.TimeoutMedium,
		"timeout_long":   cfg.TimeoutLong,
	} {
		if d < 0 {
			return fmt.Errorf("%s must not be negative, got %v", key, d)
		}
	}

	if cfg.AdminEmail != "" && cfg.AdminPassword == "" {
		return errors.New("admin_email requires admin_password")
	}
	return nil
}
