package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode       string `mapstructure:"mode"`
	Port       int    `mapstructure:"port"`
	StaticPath string `mapstructure:"static_path"`
	Secret     string `mapstructure:"secret"`

	EgressURL string `mapstructure:"egress_url"`

	Sync SyncConfig `mapstructure:"sync"`
}

// SyncConfig carries every rate/staleness window used by the synchronizers.
// Defaults match live-tested values; override per environment.
type SyncConfig struct {
	CursorInterval    time.Duration `mapstructure:"cursor_interval"`
	CursorTTL         time.Duration `mapstructure:"cursor_ttl"`
	SelectionSettle   time.Duration `mapstructure:"selection_settle"`
	AudioFreshness    time.Duration `mapstructure:"audio_freshness"`
	AudioEchoWindow   time.Duration `mapstructure:"audio_echo_window"`
	AudioDriftMax     time.Duration `mapstructure:"audio_drift_max"`
	MaxReplays        int           `mapstructure:"max_replays"`
	BoardFlushWait    time.Duration `mapstructure:"board_flush_wait"`
	BoardEchoWindow   time.Duration `mapstructure:"board_echo_window"`
	BoardSettleWindow time.Duration `mapstructure:"board_settle_window"`
	GracePeriod       time.Duration `mapstructure:"grace_period"`
	TickInterval      time.Duration `mapstructure:"tick_interval"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("egress_url", "")

	v.SetDefault("sync.cursor_interval", "16ms")
	v.SetDefault("sync.cursor_ttl", "3s")
	v.SetDefault("sync.selection_settle", "10ms")
	v.SetDefault("sync.audio_freshness", "2s")
	v.SetDefault("sync.audio_echo_window", "100ms")
	v.SetDefault("sync.audio_drift_max", "1s")
	v.SetDefault("sync.max_replays", 0)
	v.SetDefault("sync.board_flush_wait", "250ms")
	v.SetDefault("sync.board_echo_window", "50ms")
	v.SetDefault("sync.board_settle_window", "150ms")
	v.SetDefault("sync.grace_period", "10m")
	v.SetDefault("sync.tick_interval", "1s")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("config file not found (%s), using defaults\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// DefaultSync returns the built-in windows without touching the filesystem.
// Client-side embedders usually take this and tweak nothing.
func DefaultSync() SyncConfig {
	return SyncConfig{
		CursorInterval:    16 * time.Millisecond,
		CursorTTL:         3 * time.Second,
		SelectionSettle:   10 * time.Millisecond,
		AudioFreshness:    2 * time.Second,
		AudioEchoWindow:   100 * time.Millisecond,
		AudioDriftMax:     time.Second,
		MaxReplays:        0,
		BoardFlushWait:    250 * time.Millisecond,
		BoardEchoWindow:   50 * time.Millisecond,
		BoardSettleWindow: 150 * time.Millisecond,
		GracePeriod:       10 * time.Minute,
		TickInterval:      time.Second,
	}
}
