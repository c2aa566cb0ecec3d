package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Mode       string `mapstructure:"mode"`
	Port       int    `mapstructure:"port"`
	LogLevel   string `mapstructure:"log_level"`
	StaticPath string `mapstructure:"static_path"`

	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	PongWait   time.Duration `mapstructure:"pong_wait"`
	WriteWait  time.Duration `mapstructure:"write_wait"`
	SendBuffer int           `mapstructure:"send_buffer"`

	Space SpaceConfig `mapstructure:"space"`
	Join  JoinLimit   `mapstructure:"join"`
	ICE   ICEConfig   `mapstructure:"ice"`
}

type SpaceConfig struct {
	MaxParticipants int     `mapstructure:"max_participants"`
	TickRate        int     `mapstructure:"tick_rate"`
	ArenaSize       float64 `mapstructure:"arena_size"`
	SpawnHeight     float64 `mapstructure:"spawn_height"`
}

// JoinLimit is a per-connection token bucket on join attempts.
type JoinLimit struct {
	Rate  float64 `mapstructure:"rate"`
	Burst int     `mapstructure:"burst"`
}

type ICEConfig struct {
	STUNURLs     []string      `mapstructure:"stun_urls"`
	TURNURLs     []string      `mapstructure:"turn_urls"`
	TURNSecret   string        `mapstructure:"turn_secret"`
	TURNTTL      time.Duration `mapstructure:"turn_ttl"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
}

// TickPeriod is the broadcast interval derived from the tick rate.
func (s SpaceConfig) TickPeriod() time.Duration {
	if s.TickRate <= 0 {
		return time.Second / 60
	}
	return time.Second / time.Duration(s.TickRate)
}

// Flags declares the command-line overrides understood by Load.
func Flags() *pflag.FlagSet {
	set := pflag.NewFlagSet("space", pflag.ContinueOnError)
	set.String("config", "", "path to a config file (default config/config.$CONFIG_ENV.yaml)")
	set.Int("port", 8080, "listen port")
	set.String("mode", "release", "gin mode: release or debug")
	set.String("log_level", "info", "zerolog level")
	return set
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("static_path", "")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("pong_wait", "60s")
	v.SetDefault("write_wait", "5s")
	v.SetDefault("send_buffer", 64)

	v.SetDefault("space.max_participants", 4)
	v.SetDefault("space.tick_rate", 60)
	v.SetDefault("space.arena_size", 7.0)
	v.SetDefault("space.spawn_height", 0.5)

	v.SetDefault("join.rate", 1.0)
	v.SetDefault("join.burst", 5)

	v.SetDefault("ice.stun_urls", []string{"stun:stun.l.google.com:19302", "stun:global.stun.twilio.com:3478"})
	v.SetDefault("ice.turn_urls", []string{})
	v.SetDefault("ice.turn_secret", "")
	v.SetDefault("ice.turn_ttl", "24h")
	v.SetDefault("ice.fetch_timeout", "3s")
}

// Load reads .env, then config/config.<CONFIG_ENV>.yaml, then SPACE_*
// environment variables, then flags. Later sources win.
func Load(args []string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Str("module", "config").Msg("failed to read .env")
	}

	flags := Flags()
	if err := flags.Parse(args); err != nil {
		return nil, fmt.Errorf("failed to parse flags: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	fileName, _ := flags.GetString("config")
	if fileName == "" {
		env := os.Getenv("CONFIG_ENV")
		if env == "" {
			env = "dev"
		}
		fileName = fmt.Sprintf("config/config.%s.yaml", env)
	}
	v.SetConfigFile(fileName)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	v.SetEnvPrefix("SPACE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	flags.VisitAll(func(f *pflag.Flag) {
		if f.Name == "config" || !f.Changed {
			return
		}
		_ = v.BindPFlag(f.Name, f)
	})

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Int("max_participants", cfg.Space.MaxParticipants).
		Int("tick_rate", cfg.Space.TickRate).
		Msg("config ready")
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.Space.MaxParticipants <= 0 {
		return fmt.Errorf("space.max_participants must be positive, got %d", c.Space.MaxParticipants)
	}
	if c.Space.TickRate <= 0 {
		return fmt.Errorf("space.tick_rate must be positive, got %d", c.Space.TickRate)
	}
	if c.SendBuffer <= 0 {
		return fmt.Errorf("send_buffer must be positive, got %d", c.SendBuffer)
	}
	return nil
}
