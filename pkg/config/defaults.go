package config

import "time"

// defaultConfig returns the built-in configuration applied before any dcm.yaml
// overrides are merged in. Every field here has a sane out-of-the-box value
// so a freshly cloned deployment can boot against nothing but a database DSN.
func defaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: &ServerConfig{
			Host:            "127.0.0.1",
			Port:            3847,
			ReadTimeout:     Duration(10 * time.Second),
			WriteTimeout:    Duration(10 * time.Second),
			ShutdownTimeout: Duration(15 * time.Second),
			AllowedOrigins:  []string{"http://localhost:3000", "http://127.0.0.1:3000"},
		},
		Database: &DatabaseConfig{
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: Duration(30 * time.Minute),
		},
		Gateway: &GatewayConfig{
			Host:              "127.0.0.1",
			Port:              3849,
			HeartbeatInterval: Duration(30 * time.Second),
			HeartbeatTimeout:  Duration(60 * time.Second),
			AckRetryInterval:  Duration(2 * time.Second),
			AckStaleAfter:     Duration(5 * time.Second),
			AckMaxAttempts:    3,
			CatchupLimit:      200,
		},
		Auth: &AuthConfig{
			SecretEnv: "DCM_AUTH_SECRET",
			TokenTTL:  Duration(time.Hour),
		},
		Routing: &RoutingConfig{
			AcceptNudge:    0.3,
			RejectNudge:    -0.1,
			AccuracyWindow: Duration(24 * time.Hour),
		},
		Cleanup: &CleanupConfig{
			Interval:              Duration(60 * time.Second),
			MessageTTL:            Duration(time.Hour),
			SessionIdleTTL:        Duration(30 * time.Minute),
			AgentContextTTL:       Duration(30 * time.Minute),
			StuckSubtaskThreshold: Duration(30 * time.Minute),
			CompactSnapshotTTL:    Duration(24 * time.Hour),
			CompactSnapshotEvery:  10,
			ReadBroadcastTTL:      Duration(24 * time.Hour),
			InactiveMinutes:       Duration(10 * time.Minute),
		},
		RateLimit: &RateLimitConfig{
			TokenEndpointRPS:   10.0 / (15 * 60),
			TokenEndpointBurst: 10,
			WriteRPS:           1,
			WriteBurst:         60,
		},
	}
}
