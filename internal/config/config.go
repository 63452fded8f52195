package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode   string `mapstructure:"mode"`
	Listen string `mapstructure:"listen"`

	SignalURL string `mapstructure:"signal_url"`
	MeetingID string `mapstructure:"meeting_id"`
	GroupID   string `mapstructure:"group_id"`
	UserID    string `mapstructure:"user_id"`
	UserName  string `mapstructure:"user_name"`

	AudioFile   string   `mapstructure:"audio_file"`
	VideoFile   string   `mapstructure:"video_file"`
	VideoLayers []string `mapstructure:"video_layers"`
	StartMuted  bool     `mapstructure:"start_muted"`
	ICEServers  []string `mapstructure:"ice_servers"`

	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	TransportTimeout  time.Duration `mapstructure:"transport_timeout"`
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout"`
	SimulcastBitrates []uint64      `mapstructure:"simulcast_bitrates"`

	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`

	ChatLimit    int           `mapstructure:"chat_limit"`
	ChatInterval time.Duration `mapstructure:"chat_interval"`
	ChatHistory  int           `mapstructure:"chat_history"`

	LogLevel string `mapstructure:"log_level"`
}

// Load reads config/config.<CONFIG_ENV>.yaml (env defaults to dev). A
// missing file falls back to defaults and MEET_* environment variables.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return load(fmt.Sprintf("config/config.%s.yaml", env), false)
}

// LoadFile reads an explicit config file, which must exist.
func LoadFile(path string) (*Config, error) {
	return load(path, true)
}

func load(fileName string, required bool) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.SetEnvPrefix("MEET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if _, err := os.Stat(fileName); err != nil && !required && errors.Is(err, os.ErrNotExist) {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", fileName, err)
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("config loaded")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("listen", "127.0.0.1:8090")
	v.SetDefault("signal_url", "ws://127.0.0.1:3000/signal")
	v.SetDefault("meeting_id", "")
	v.SetDefault("group_id", "")
	v.SetDefault("user_id", "")
	v.SetDefault("user_name", "meetclient")
	v.SetDefault("audio_file", "")
	v.SetDefault("video_file", "")
	v.SetDefault("video_layers", []string{})
	v.SetDefault("start_muted", false)
	v.SetDefault("ice_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("request_timeout", "5s")
	v.SetDefault("transport_timeout", "10s")
	v.SetDefault("connect_timeout", "15s")
	v.SetDefault("simulcast_bitrates", []uint64{100_000, 300_000, 900_000})
	v.SetDefault("read_limit", 1<<20)
	v.SetDefault("ping_period", "25s")
	v.SetDefault("chat_limit", 5)
	v.SetDefault("chat_interval", "10s")
	v.SetDefault("chat_history", 200)
	v.SetDefault("log_level", "info")
}

func (c *Config) Validate() error {
	var errs []error
	if c.SignalURL == "" {
		errs = append(errs, errors.New("signal_url is required"))
	}
	if c.RequestTimeout <= 0 || c.TransportTimeout <= 0 || c.ConnectTimeout <= 0 {
		errs = append(errs, errors.New("timeouts must be positive"))
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	return errors.Join(errs...)
}

// Level returns the configured zerolog level, info when unset.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
