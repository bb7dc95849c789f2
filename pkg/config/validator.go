package config

import (
	"fmt"
	"log/slog"
)

// Validator validates configuration comprehensively with clear error messages.
type Validator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration.
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateAll performs fail-fast validation in dependency order: server,
// database, gateway, auth, routing, cleanup, rate limiting.
func (v *Validator) ValidateAll() error {
	if err := v.validateServer(); err != nil {
		return fmt.Errorf("server validation failed: %w", err)
	}
	if err := v.validateDatabase(); err != nil {
		return fmt.Errorf("database validation failed: %w", err)
	}
	if err := v.validateGateway(); err != nil {
		return fmt.Errorf("gateway validation failed: %w", err)
	}
	if err := v.validateAuth(); err != nil {
		return fmt.Errorf("auth validation failed: %w", err)
	}
	if err := v.validateRouting(); err != nil {
		return fmt.Errorf("routing validation failed: %w", err)
	}
	if err := v.validateCleanup(); err != nil {
		return fmt.Errorf("cleanup validation failed: %w", err)
	}
	if err := v.validateRateLimit(); err != nil {
		return fmt.Errorf("rate_limit validation failed: %w", err)
	}
	return nil
}

func (v *Validator) validateServer() error {
	s := v.cfg.Server
	if s.Port <= 0 || s.Port > 65535 {
		return NewValidationError("server", "", "port", fmt.Errorf("must be between 1 and 65535, got %d", s.Port))
	}
	if s.ReadTimeout.Std() <= 0 {
		return NewValidationError("server", "", "read_timeout", fmt.Errorf("must be positive"))
	}
	if s.WriteTimeout.Std() <= 0 {
		return NewValidationError("server", "", "write_timeout", fmt.Errorf("must be positive"))
	}
	return nil
}

func (v *Validator) validateDatabase() error {
	d := v.cfg.Database
	if d.DSN == "" {
		return NewValidationError("database", "", "dsn", fmt.Errorf("required (set database.dsn or DCM_DATABASE_DSN)"))
	}
	if d.MaxOpenConns < 1 {
		return NewValidationError("database", "", "max_open_conns", fmt.Errorf("must be at least 1"))
	}
	if d.MaxIdleConns < 0 || d.MaxIdleConns > d.MaxOpenConns {
		return NewValidationError("database", "", "max_idle_conns", fmt.Errorf("must be between 0 and max_open_conns"))
	}
	return nil
}

func (v *Validator) validateGateway() error {
	g := v.cfg.Gateway
	if g.Port <= 0 || g.Port > 65535 {
		return NewValidationError("gateway", "", "port", fmt.Errorf("must be between 1 and 65535, got %d", g.Port))
	}
	if g.HeartbeatInterval.Std() <= 0 {
		return NewValidationError("gateway", "", "heartbeat_interval", fmt.Errorf("must be positive"))
	}
	if g.HeartbeatTimeout.Std() <= g.HeartbeatInterval.Std() {
		return NewValidationError("gateway", "", "heartbeat_timeout", fmt.Errorf("must exceed heartbeat_interval"))
	}
	if g.AckRetryInterval.Std() <= 0 {
		return NewValidationError("gateway", "", "ack_retry_interval", fmt.Errorf("must be positive"))
	}
	if g.AckStaleAfter.Std() <= g.AckRetryInterval.Std() {
		return NewValidationError("gateway", "", "ack_stale_after", fmt.Errorf("must exceed ack_retry_interval"))
	}
	if g.AckMaxAttempts < 1 {
		return NewValidationError("gateway", "", "ack_max_attempts", fmt.Errorf("must be at least 1"))
	}
	if g.CatchupLimit < 1 {
		return NewValidationError("gateway", "", "catchup_limit", fmt.Errorf("must be at least 1"))
	}
	return nil
}

// validateAuth enforces spec §6.3's "the secret is configuration; in
// production mode, a missing secret MUST abort startup; in
// non-production, a placeholder is tolerated with a warning."
func (v *Validator) validateAuth() error {
	a := v.cfg.Auth
	if a.SecretEnv == "" {
		return NewValidationError("auth", "", "secret_env", fmt.Errorf("required"))
	}
	if a.Secret() == "" {
		if v.cfg.IsProduction() {
			return NewValidationError("auth", "", "secret_env", fmt.Errorf("environment variable %s is not set", a.SecretEnv))
		}
		slog.Warn("auth secret is unset; tolerated in non-production mode, do not deploy like this",
			"secret_env", a.SecretEnv)
	}
	if a.TokenTTL.Std() <= 0 {
		return NewValidationError("auth", "", "token_ttl", fmt.Errorf("must be positive"))
	}
	return nil
}

func (v *Validator) validateRouting() error {
	r := v.cfg.Routing
	if r.AcceptNudge <= 0 || r.AcceptNudge > 1 {
		return NewValidationError("routing", "", "accept_nudge", fmt.Errorf("must be in (0,1], got %v", r.AcceptNudge))
	}
	if r.RejectNudge >= 0 || r.RejectNudge < -1 {
		return NewValidationError("routing", "", "reject_nudge", fmt.Errorf("must be in [-1,0), got %v", r.RejectNudge))
	}
	if r.AccuracyWindow.Std() <= 0 {
		return NewValidationError("routing", "", "accuracy_window", fmt.Errorf("must be positive"))
	}
	return nil
}

func (v *Validator) validateCleanup() error {
	c := v.cfg.Cleanup
	if c.Interval.Std() <= 0 {
		return NewValidationError("cleanup", "", "interval", fmt.Errorf("must be positive"))
	}
	if c.CompactSnapshotEvery < 1 {
		return NewValidationError("cleanup", "", "compact_snapshot_every", fmt.Errorf("must be at least 1"))
	}
	for field, d := range map[string]Duration{
		"message_ttl":              c.MessageTTL,
		"session_idle_ttl":         c.SessionIdleTTL,
		"agent_context_ttl":        c.AgentContextTTL,
		"stuck_subtask_threshold":  c.StuckSubtaskThreshold,
		"compact_snapshot_ttl":     c.CompactSnapshotTTL,
		"read_broadcast_ttl":       c.ReadBroadcastTTL,
		"inactive_minutes":         c.InactiveMinutes,
	} {
		if d.Std() <= 0 {
			return NewValidationError("cleanup", "", field, fmt.Errorf("must be positive"))
		}
	}
	return nil
}

func (v *Validator) validateRateLimit() error {
	r := v.cfg.RateLimit
	if r.TokenEndpointRPS <= 0 {
		return NewValidationError("rate_limit", "", "token_endpoint_rps", fmt.Errorf("must be positive"))
	}
	if r.TokenEndpointBurst < 1 {
		return NewValidationError("rate_limit", "", "token_endpoint_burst", fmt.Errorf("must be at least 1"))
	}
	if r.WriteRPS <= 0 {
		return NewValidationError("rate_limit", "", "write_rps", fmt.Errorf("must be positive"))
	}
	if r.WriteBurst < 1 {
		return NewValidationError("rate_limit", "", "write_burst", fmt.Errorf("must be at least 1"))
	}
	return nil
}
