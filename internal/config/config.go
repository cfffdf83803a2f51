package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/dkeye/SFU/internal/core"
	"github.com/dkeye/SFU/internal/domain"
)

var (
	ErrPortRange = errors.New("rtc.min_port must not exceed rtc.max_port")
	ErrNoCodecs  = errors.New("rtc.codecs must not be empty")
	ErrTLSFiles  = errors.New("tls certificate or key not found")
)

type CodecConfig struct {
	Kind       string         `mapstructure:"kind"`
	MimeType   string         `mapstructure:"mime_type"`
	ClockRate  uint32         `mapstructure:"clock_rate"`
	Channels   uint16         `mapstructure:"channels"`
	Parameters map[string]any `mapstructure:"parameters"`
}

type RTCConfig struct {
	MinPort                uint16        `mapstructure:"min_port"`
	MaxPort                uint16        `mapstructure:"max_port"`
	LogLevel               string        `mapstructure:"log_level"`
	LogTags                []string      `mapstructure:"log_tags"`
	ListenIP               string        `mapstructure:"listen_ip"`
	AnnouncedIP            string        `mapstructure:"announced_ip"`
	MaxIncomingBitrate     uint32        `mapstructure:"max_incoming_bitrate"`
	InitialOutgoingBitrate uint32        `mapstructure:"initial_outgoing_bitrate"`
	HandshakeTimeout       time.Duration `mapstructure:"handshake_timeout"`
	Codecs                 []CodecConfig `mapstructure:"codecs"`
}

type RedisConfig struct {
	Addr   string `mapstructure:"addr"`
	Prefix string `mapstructure:"prefix"`
}

type Config struct {
	Mode           string        `mapstructure:"mode"`
	ListenIP       string        `mapstructure:"listen_ip"`
	Port           int           `mapstructure:"port"`
	Path           string        `mapstructure:"path"`
	TLSEnabled     bool          `mapstructure:"tls_enabled"`
	TLSCert        string        `mapstructure:"tls_cert"`
	TLSKey         string        `mapstructure:"tls_key"`
	StaticPath     string        `mapstructure:"static_path"`
	Secret         string        `mapstructure:"secret"`
	ReadLimit      int64         `mapstructure:"read_limit"`
	PingPeriod     time.Duration `mapstructure:"ping_period"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	SendBuffer     int           `mapstructure:"send_buffer"`
	RateLimit      int           `mapstructure:"rate_limit"`
	RateInterval   time.Duration `mapstructure:"rate_interval"`
	LogLevel       string        `mapstructure:"log_level"`
	LogFormat      string        `mapstructure:"log_format"`
	MetricsEnabled bool          `mapstructure:"metrics_enabled"`
	RTC            RTCConfig     `mapstructure:"rtc"`
	Redis          RedisConfig   `mapstructure:"redis"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("listen_ip", "")
	v.SetDefault("port", 3000)
	v.SetDefault("path", "/ws")
	v.SetDefault("tls_enabled", false)
	v.SetDefault("tls_cert", "./certs/fullchain.pem")
	v.SetDefault("tls_key", "./certs/privkey.pem")
	v.SetDefault("static_path", "")
	v.SetDefault("secret", "")
	v.SetDefault("read_limit", 65536)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("write_timeout", "5s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("rate_limit", 20)
	v.SetDefault("rate_interval", "1s")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
	v.SetDefault("metrics_enabled", true)

	v.SetDefault("rtc.min_port", 10000)
	v.SetDefault("rtc.max_port", 20000)
	v.SetDefault("rtc.log_level", "warn")
	v.SetDefault("rtc.log_tags", []string{"info", "ice", "dtls", "rtp", "srtp", "rtcp"})
	v.SetDefault("rtc.listen_ip", "0.0.0.0")
	v.SetDefault("rtc.announced_ip", "")
	v.SetDefault("rtc.max_incoming_bitrate", 1500000)
	v.SetDefault("rtc.initial_outgoing_bitrate", 1000000)
	v.SetDefault("rtc.handshake_timeout", 10*time.Second)
	v.SetDefault("rtc.codecs", []map[string]any{
		{
			"kind":       "audio",
			"mime_type":  "audio/opus",
			"clock_rate": 48000,
			"channels":   2,
		},
		{
			"kind":       "video",
			"mime_type":  "video/VP8",
			"clock_rate": 90000,
			"parameters": map[string]any{"x-google-start-bitrate": 1000},
		},
	})

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.prefix", "sfu")
}

// Load reads config/config.<CONFIG_ENV>.yaml (dev by default). SFU_* env
// vars override file values, e.g. SFU_RTC_ANNOUNCED_IP.
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
	v.SetEnvPrefix("SFU")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("path", cfg.Path).Msg("config ready")
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.RTC.MinPort > c.RTC.MaxPort {
		return ErrPortRange
	}
	if len(c.RTC.Codecs) == 0 {
		return ErrNoCodecs
	}
	for _, cc := range c.RTC.Codecs {
		if _, err := domain.ParseKind(cc.Kind); err != nil {
			return fmt.Errorf("codec %s: %w", cc.MimeType, err)
		}
	}
	return nil
}

// CheckTLS verifies that the TLS material exists when TLS is enabled.
func (c *Config) CheckTLS() error {
	if !c.TLSEnabled {
		return nil
	}
	for _, f := range []string{c.TLSCert, c.TLSKey} {
		if _, err := os.Stat(f); err != nil {
			return fmt.Errorf("%w: %s", ErrTLSFiles, f)
		}
	}
	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.ListenIP, c.Port)
}

// MediaCodecs converts the configured codec list into router codecs.
func (c *Config) MediaCodecs() []core.RTPCodecCapability {
	out := make([]core.RTPCodecCapability, 0, len(c.RTC.Codecs))
	for _, cc := range c.RTC.Codecs {
		out = append(out, core.RTPCodecCapability{
			Kind:       domain.MediaKind(cc.Kind),
			MimeType:   cc.MimeType,
			ClockRate:  cc.ClockRate,
			Channels:   cc.Channels,
			Parameters: cc.Parameters,
		})
	}
	return out
}

func (c *Config) ListenIPs() []core.ListenIP {
	return []core.ListenIP{{IP: c.RTC.ListenIP, AnnouncedIP: c.RTC.AnnouncedIP}}
}
