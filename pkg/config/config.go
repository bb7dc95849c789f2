package config

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/joho/godotenv"
)

// Config is the umbrella configuration object produced by Initialize and
// threaded through every long-lived component: the store, the event bus,
// the gateway, the routing engine and the cleanup scheduler.
type Config struct {
	configDir string

	// Environment is "production" or "development" (default). It gates
	// the auth secret's fail-fast requirement and the gateway's
	// agent_id-only fallback (spec §4.7, §6.3).
	Environment string `yaml:"environment"`

	Server   *ServerConfig
	Database *DatabaseConfig
	Gateway  *GatewayConfig
	Auth     *AuthConfig
	Routing  *RoutingConfig
	Cleanup  *CleanupConfig
	RateLimit *RateLimitConfig
}

// IsProduction reports whether the process is running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// ServerConfig controls the HTTP surface.
type ServerConfig struct {
	Host             string   `yaml:"host"`
	Port             int      `yaml:"port"`
	ReadTimeout      Duration `yaml:"read_timeout"`
	WriteTimeout     Duration `yaml:"write_timeout"`
	ShutdownTimeout  Duration `yaml:"shutdown_timeout"`
	AllowedOrigins   []string `yaml:"allowed_origins"`
}

// DatabaseConfig describes the Postgres connection backing the store.
type DatabaseConfig struct {
	DSN             string   `yaml:"dsn"`
	MaxOpenConns    int      `yaml:"max_open_conns"`
	MaxIdleConns    int      `yaml:"max_idle_conns"`
	ConnMaxLifetime Duration `yaml:"conn_max_lifetime"`
}

// GatewayConfig tunes the real-time gateway's listener and wire protocol
// timings (spec §4.7, §6.2/§6.3). The gateway listens on its own port,
// distinct from the HTTP surface's ServerConfig.Port.
type GatewayConfig struct {
	Host              string   `yaml:"host"`
	Port              int      `yaml:"port"`
	HeartbeatInterval Duration `yaml:"heartbeat_interval"`
	HeartbeatTimeout  Duration `yaml:"heartbeat_timeout"`
	AckRetryInterval  Duration `yaml:"ack_retry_interval"`
	AckStaleAfter     Duration `yaml:"ack_stale_after"`
	AckMaxAttempts    int      `yaml:"ack_max_attempts"`
	CatchupLimit      int      `yaml:"catchup_limit"`
}

// AuthConfig holds the HMAC token secret and lifetime (spec §6.3).
type AuthConfig struct {
	SecretEnv  string   `yaml:"secret_env"`
	TokenTTL   Duration `yaml:"token_ttl"`
	secretVal  string
}

// RoutingConfig tunes the keyword→tool routing engine (spec §4.5, SPEC_FULL §13.1/§13.2).
type RoutingConfig struct {
	AcceptNudge       float64  `yaml:"accept_nudge"`
	RejectNudge       float64  `yaml:"reject_nudge"`
	AccuracyWindow    Duration `yaml:"accuracy_window"`
}

// CleanupConfig tunes the periodic retention scheduler (spec §4.6).
type CleanupConfig struct {
	Interval               Duration `yaml:"interval"`
	MessageTTL             Duration `yaml:"message_ttl"`
	SessionIdleTTL         Duration `yaml:"session_idle_ttl"`
	AgentContextTTL        Duration `yaml:"agent_context_ttl"`
	StuckSubtaskThreshold  Duration `yaml:"stuck_subtask_threshold"`
	CompactSnapshotTTL     Duration `yaml:"compact_snapshot_ttl"`
	CompactSnapshotEvery   int      `yaml:"compact_snapshot_every"`
	ReadBroadcastTTL       Duration `yaml:"read_broadcast_ttl"`
	// InactiveMinutes is the idle tolerance (spec §6.8 "Inactive minutes")
	// shared by the orphaned-session, stale-agent-context and
	// stuck-subtask tasks: each also requires no recent activity within
	// this window before acting, on top of its own staleness threshold.
	InactiveMinutes        Duration `yaml:"inactive_minutes"`
}

// RateLimitConfig tunes per-IP token-bucket limits on the HTTP surface (spec §6.9).
type RateLimitConfig struct {
	TokenEndpointRPS   float64 `yaml:"token_endpoint_rps"`
	TokenEndpointBurst int     `yaml:"token_endpoint_burst"`
	WriteRPS           float64 `yaml:"write_rps"`
	WriteBurst         int     `yaml:"write_burst"`
}

// Secret returns the HMAC secret resolved from the environment variable named
// by SecretEnv. Resolved once during Initialize so later lookups can't race a
// changed environment.
func (a *AuthConfig) Secret() string {
	return a.secretVal
}

// ConfigDir returns the directory configuration was loaded from.
func (c *Config) ConfigDir() string {
	return c.configDir
}

// Initialize loads, merges, validates and returns ready-to-use configuration.
//
// Steps performed:
//  1. Load .env (if present) into the process environment
//  2. Load dcm.yaml from configDir
//  3. Expand environment variables
//  4. Merge user values over built-in defaults
//  5. Resolve the auth secret from its environment variable
//  6. Validate all configuration (fail-fast)
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("initializing configuration")

	if err := godotenv.Load(); err != nil {
		log.Debug("no .env file loaded", "error", err)
	}

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	log.Info("configuration initialized",
		"server_addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		"gateway_heartbeat", cfg.Gateway.HeartbeatInterval,
		"routing_accuracy_window", cfg.Routing.AccuracyWindow)

	return cfg, nil
}

func validate(cfg *Config) error {
	return NewValidator(cfg).ValidateAll()
}
