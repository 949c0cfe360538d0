// Package server provides configuration helpers that define runtime defaults,
// file and environment overrides, and validation for the relay service.
package server

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"gopkg.in/ini.v1"

	"github.com/Tyrowin/gorelay/internal/chat"
)

// DefaultConfigPath is read when RELAY_CONFIG is not set. A missing file is not
// an error.
const DefaultConfigPath = "configs/relay.ini"

// RateLimitConfig defines the parameters for per-connection message rate
// limiting. A zero Burst, the default, disables it.
type RateLimitConfig struct {
	Burst          int           `env:"RATE_LIMIT_BURST" validate:"gte=0"`
	RefillInterval time.Duration `env:"RATE_LIMIT_REFILL_INTERVAL" validate:"gt=0"`
}

// ChatConfig tunes the shared chat room.
type ChatConfig struct {
	MailboxSize         int    `env:"MAILBOX_SIZE" validate:"gt=0"`
	MaxParticipants     int    `env:"MAX_PARTICIPANTS" validate:"gte=0"`
	MaxConsecutiveDrops int    `env:"MAX_CONSECUTIVE_DROPS" validate:"gte=0"`
	Greeting            string `env:"CHAT_GREETING"`
}

// Config holds the server configuration settings including security controls.
type Config struct {
	Port            string        `env:"SERVER_PORT" validate:"required"`
	AllowedOrigins  []string      `validate:"dive,required"`
	MaxMessageSize  int64         `env:"MAX_MESSAGE_SIZE" validate:"gt=0"`
	RateLimit       RateLimitConfig
	Chat            ChatConfig
	EchoGreeting    string        `env:"ECHO_GREETING" validate:"required"`
	RootGreeting    string        `env:"ROOT_GREETING"`
	PingInterval    time.Duration `env:"PING_INTERVAL" validate:"gt=0,ltfield=PongWait"`
	PongWait        time.Duration `env:"PONG_WAIT" validate:"gt=0"`
	WriteWait       time.Duration `env:"WRITE_WAIT" validate:"gt=0"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" validate:"gt=0"`
	LogLevel        string        `env:"LOG_LEVEL" validate:"oneof=trace debug info warn error"`
	LogFormat       string        `env:"LOG_FORMAT" validate:"oneof=auto console json"`
}

var validate = validator.New()

func defaultConfig() Config {
	return Config{
		Port: ":8080",
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		MaxMessageSize: 4096,
		RateLimit: RateLimitConfig{
			RefillInterval: time.Second,
		},
		Chat: ChatConfig{
			MailboxSize: chat.DefaultMailboxSize,
			Greeting:    chat.DefaultChatGreeting,
		},
		EchoGreeting:    chat.DefaultEchoGreeting,
		RootGreeting:    "root",
		PingInterval:    54 * time.Second,
		PongWait:        60 * time.Second,
		WriteWait:       10 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		LogLevel:        "info",
		LogFormat:       "auto",
	}
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// LoadConfig builds the effective configuration: defaults, then the INI file at
// path (if it exists), then environment variables. The result is sanitized and
// validated.
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	if err := applyINI(&cfg, path); err != nil {
		return nil, err
	}
	if err := applyEnv(&cfg, os.Environ()); err != nil {
		return nil, err
	}

	cfg = sanitizeConfig(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func applyINI(cfg *Config, path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	file, err := ini.Load(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	srv := file.Section("server")
	cfg.Port = srv.Key("port").MustString(cfg.Port)
	if srv.HasKey("allowed_origins") {
		cfg.AllowedOrigins = srv.Key("allowed_origins").Strings(",")
	}
	cfg.MaxMessageSize = srv.Key("max_message_size").MustInt64(cfg.MaxMessageSize)
	cfg.RootGreeting = srv.Key("root_greeting").MustString(cfg.RootGreeting)
	cfg.EchoGreeting = srv.Key("echo_greeting").MustString(cfg.EchoGreeting)
	cfg.PingInterval = srv.Key("ping_interval").MustDuration(cfg.PingInterval)
	cfg.PongWait = srv.Key("pong_wait").MustDuration(cfg.PongWait)
	cfg.WriteWait = srv.Key("write_wait").MustDuration(cfg.WriteWait)
	cfg.ShutdownTimeout = srv.Key("shutdown_timeout").MustDuration(cfg.ShutdownTimeout)

	room := file.Section("chat")
	cfg.Chat.MailboxSize = room.Key("mailbox_size").MustInt(cfg.Chat.MailboxSize)
	cfg.Chat.MaxParticipants = room.Key("max_participants").MustInt(cfg.Chat.MaxParticipants)
	cfg.Chat.MaxConsecutiveDrops = room.Key("max_consecutive_drops").MustInt(cfg.Chat.MaxConsecutiveDrops)
	if room.HasKey("greeting") {
		// An empty value turns the chat greeting off.
		cfg.Chat.Greeting = room.Key("greeting").String()
	}
	cfg.RateLimit.Burst = room.Key("rate_limit_burst").MustInt(cfg.RateLimit.Burst)
	cfg.RateLimit.RefillInterval = room.Key("rate_limit_refill_interval").MustDuration(cfg.RateLimit.RefillInterval)

	logs := file.Section("log")
	cfg.LogLevel = logs.Key("level").MustString(cfg.LogLevel)
	cfg.LogFormat = logs.Key("format").MustString(cfg.LogFormat)

	return nil
}

// applyEnv overlays variables present in environ; absent ones keep the
// current value.
func applyEnv(cfg *Config, environ []string) error {
	es, err := env.EnvironToEnvSet(environ)
	if err != nil {
		return fmt.Errorf("read environment: %w", err)
	}

	if origins, ok := es["ALLOWED_ORIGINS"]; ok {
		cfg.AllowedOrigins = parseOrigins(origins)
	}

	if err := env.Unmarshal(es, cfg); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	return nil
}

func sanitizeConfig(cfg Config) Config {
	cfg.Port = strings.TrimSpace(cfg.Port)
	if cfg.Port != "" && !strings.Contains(cfg.Port, ":") {
		cfg.Port = ":" + cfg.Port
	}

	cfg.AllowedOrigins = parseOrigins(strings.Join(cfg.AllowedOrigins, ","))
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))

	return cfg
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// RoomOptions translates the chat settings into room options.
func (c Config) RoomOptions() []chat.Option {
	return []chat.Option{
		chat.WithMailboxSize(c.Chat.MailboxSize),
		chat.WithMaxParticipants(c.Chat.MaxParticipants),
		chat.WithMaxConsecutiveDrops(c.Chat.MaxConsecutiveDrops),
		chat.WithGreeting(c.Chat.Greeting),
		chat.WithRateLimit(c.RateLimit.Burst, c.RateLimit.RefillInterval),
	}
}
