// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds everything ClassHub reads at startup.
//
// Values come from command-line flags, CLASSHUB_* environment variables
// (optionally seeded from a .env file), a config file, and the defaults in
// appConfigKeys, in that order of precedence.
//
// The struct is passed to every lifecycle hook, so any setting needed during
// startup, request handling, or shutdown lives here.
type AppConfig struct {
	// Process
	Env             string        // "dev" or "prod"
	LogLevel        string        // zap level name
	HTTPAddr        string        // listen address, e.g. ":3000"
	ShutdownTimeout time.Duration // grace period for in-flight requests

	// Memory runs on the in-process document store instead of MongoDB.
	// Nothing survives a restart.
	Memory bool

	// MongoDB connection configuration
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64
	MongoMinPoolSize uint64

	// Redis relays store change signals between instances when set.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Backend bootstrap polling
	BackendPollInterval time.Duration
	BackendMaxAttempts  int

	// Session management configuration
	SessionKey    string        // Secret key for signing session cookies (must be strong in production)
	SessionName   string        // Cookie name for sessions (default: classhub-session)
	SessionDomain string        // Cookie domain (blank means current host)
	SessionMaxAge time.Duration // Cookie lifetime

	// Hosts (host[:port]) other than the portal's own that may send writes,
	// e.g. a separately hosted front end.
	CSRFTrustedOrigins []string

	// Identity service
	TokenSecret       string        // HS256 signing secret for ID tokens
	TokenTTL          time.Duration // ID token lifetime
	MaxFailedAttempts int           // failed sign-ins before the account locks
	LockDuration      time.Duration // how long a locked account stays locked

	// Sign-in/sign-up throttling
	AuthIPLimit     int
	AuthIPWindow    time.Duration
	AuthEmailLimit  int
	AuthEmailWindow time.Duration

	// Static assets
	StaticDir   string   // directory served at /
	CORSOrigins []string // allowed origins ("*" for any)

	// Store and identity call budgets; zero keeps the built-in default.
	TimeoutPing   time.Duration
	TimeoutShort  time.Duration
	TimeoutMedium time.Duration
	TimeoutLong   time.Duration

	// Language of messages when the client sends no Accept-Language.
	DefaultLanguage string

	// Audit destinations per category: all, db, log or off.
	AuditLogAuth  string
	AuditLogAdmin string

	// Administrator created (or confirmed) on startup. Blank email skips it.
	AdminEmail    string
	AdminPassword string
	AdminName     string
}
