package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type ICEServer struct {
	URLs       []string `mapstructure:"urls"`
	Username   string   `mapstructure:"username"`
	Credential string   `mapstructure:"credential"`
}

type Codec struct {
	Kind      string `mapstructure:"kind"`
	MimeType  string `mapstructure:"mime_type"`
	ClockRate uint32 `mapstructure:"clock_rate"`
	Channels  uint16 `mapstructure:"channels"`
}

type RTC struct {
	ListenIP    string      `mapstructure:"listen_ip"`
	AnnouncedIP string      `mapstructure:"announced_ip"`
	MinPort     uint16      `mapstructure:"min_port"`
	MaxPort     uint16      `mapstructure:"max_port"`
	PreferUDP   bool        `mapstructure:"prefer_udp"`
	ICEServers  []ICEServer `mapstructure:"ice_servers"`
}

type Config struct {
	Mode        string        `mapstructure:"mode"`
	Port        int           `mapstructure:"port"`
	StaticPath  string        `mapstructure:"static_path"`
	ReadLimit   int64         `mapstructure:"read_limit"`
	PingPeriod  time.Duration `mapstructure:"ping_period"`
	Secret      string        `mapstructure:"secret"`
	GracePeriod time.Duration `mapstructure:"grace_period"`
	RTC         RTC           `mapstructure:"rtc"`
	Codecs      []Codec       `mapstructure:"codecs"`
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
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("grace_period", "5s")
	v.SetDefault("rtc.listen_ip", "0.0.0.0")
	v.SetDefault("rtc.min_port", 40000)
	v.SetDefault("rtc.max_port", 40100)
	v.SetDefault("rtc.prefer_udp", true)

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if len(cfg.Codecs) == 0 {
		cfg.Codecs = DefaultCodecs()
	}
	fmt.Printf("🧩 Mode: %s | Port: %d | Grace: %s\n", cfg.Mode, cfg.Port, cfg.GracePeriod)
	return &cfg, nil
}

// DefaultCodecs is the codec list used when the config names none:
// stereo Opus and VP8.
func DefaultCodecs() []Codec {
	return []Codec{
		{Kind: "audio", MimeType: "audio/opus", ClockRate: 48000, Channels: 2},
		{Kind: "video", MimeType: "video/VP8", ClockRate: 90000},
	}
}
