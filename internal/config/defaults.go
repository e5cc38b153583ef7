package config

// DefaultFallbackMessage is posted when the answer service cannot be reached.
const DefaultFallbackMessage = "Sorry, too many requests. Try again in a minute!"

func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:                     "0.0.0.0",
			Port:                     8000,
			ReadHeaderTimeoutSeconds: 10,
			ShutdownTimeoutSeconds:   10,
			MaxBodyBytes:             1 << 20,
		},
		Slack: SlackConfig{
			ReplayWindowSeconds: 300,
		},
		Backend: BackendConfig{
			TimeoutSeconds:  200,
			RateBurst:       5,
			FallbackMessage: DefaultFallbackMessage,
		},
		Dedup: DedupConfig{
			Capacity:   2048,
			TTLSeconds: 600,
		},
		Pipeline: PipelineConfig{
			QueueSize:        256,
			MaxConcurrent:    64,
			PublishTimeoutMs: 2000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled:  true,
			Endpoint: "/metrics",
		},
		Audit: AuditConfig{
			Enabled:       false,
			DBPath:        "~/.relaybot/audit.db",
			RetentionDays: 30,
		},
	}
}
