package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`

	// RedisAddr enables the Redis presence store; empty keeps presence
	// in process memory.
	RedisAddr     string `mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password" yaml:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db" yaml:"redis_db"`

	JWTSecret   string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string `mapstructure:"jwt_audience" yaml:"jwt_audience"`

	// PresenceGrace is how long a user stays online after their last
	// connection closes, absorbing reconnects without presence flapping.
	PresenceGrace time.Duration `mapstructure:"presence_grace" yaml:"presence_grace"`
	StoreTimeout  time.Duration `mapstructure:"store_timeout" yaml:"store_timeout"`
	MaxMessageLen int           `mapstructure:"max_message_len" yaml:"max_message_len"`
	// EventRateLimit caps events per connection per minute; 0 disables.
	EventRateLimit int `mapstructure:"event_rate_limit" yaml:"event_rate_limit"`
	// DedupWindow is how long request-id results are remembered for
	// at-least-once retry deduplication.
	DedupWindow time.Duration `mapstructure:"dedup_window" yaml:"dedup_window"`

	LogLevel string `mapstructure:"log_level" yaml:"log_level"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		DatabasePath:      "pulse.db",
		JWTSecret:         "dev-secret-change-me",
		JWTIssuer:         "pulsechat",
		JWTAudience:       "pulse-server",
		PresenceGrace:     5 * time.Second,
		StoreTimeout:      5 * time.Second,
		MaxMessageLen:     4096,
		EventRateLimit:    240,
		DedupWindow:       30 * time.Second,
		LogLevel:          "info",
	}
}
