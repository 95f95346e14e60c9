package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Mode            string        `mapstructure:"mode"`
	Port            int           `mapstructure:"port"`
	Secret          string        `mapstructure:"secret"`
	LogLevel        string        `mapstructure:"log_level"`
	ReadLimit       int64         `mapstructure:"read_limit"`
	PingPeriod      time.Duration `mapstructure:"ping_period"`
	PongWait        time.Duration `mapstructure:"pong_wait"`
	WriteWait       time.Duration `mapstructure:"write_wait"`
	SendBuffer      int           `mapstructure:"send_buffer"`
	PublishLimit    int           `mapstructure:"publish_limit"`
	PublishInterval time.Duration `mapstructure:"publish_interval"`
	QueueSize       int           `mapstructure:"queue_size"`
	SlowConsumer    string        `mapstructure:"slow_consumer"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedRooms    []int64       `mapstructure:"allowed_rooms"`
	Storage         Storage       `mapstructure:"storage"`
}

type Storage struct {
	Driver        string `mapstructure:"driver"`
	SQLitePath    string `mapstructure:"sqlite_path"`
	DatabaseURL   string `mapstructure:"database_url"`
	AppendRetries int    `mapstructure:"append_retries"`
}

// Load reads config/config.<CONFIG_ENV>.yaml; CHAT_* variables override it.
// A .env file is loaded into the environment first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

// LoadFile reads the given YAML file. A missing file falls back to defaults.
func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)

	v.SetEnvPrefix("chat")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	fmt.Printf("🧩 Mode: %s | Port: %d | Storage: %s\n", cfg.Mode, cfg.Port, cfg.Storage.Driver)
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("secret", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("pong_wait", "60s")
	v.SetDefault("write_wait", "10s")
	v.SetDefault("send_buffer", 32)
	v.SetDefault("publish_limit", 30)
	v.SetDefault("publish_interval", "1s")
	v.SetDefault("queue_size", 64)
	v.SetDefault("slow_consumer", "drop")
	v.SetDefault("shutdown_timeout", "5s")
	v.SetDefault("allowed_rooms", []int64{})
	v.SetDefault("storage.driver", "memory")
	v.SetDefault("storage.sqlite_path", "./data/chat.db")
	v.SetDefault("storage.database_url", "")
	v.SetDefault("storage.append_retries", 3)
}

func (c *Config) Validate() error {
	switch c.Mode {
	case "release", "debug", "test":
	default:
		return fmt.Errorf("config: unknown mode %q", c.Mode)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", c.Port)
	}
	if c.PingPeriod <= 0 || c.PongWait <= c.PingPeriod {
		return fmt.Errorf("config: pong_wait (%s) must exceed ping_period (%s)", c.PongWait, c.PingPeriod)
	}
	if c.SendBuffer <= 0 || c.QueueSize <= 0 {
		return fmt.Errorf("config: send_buffer and queue_size must be positive")
	}
	for _, id := range c.AllowedRooms {
		if id <= 0 {
			return fmt.Errorf("config: allowed_rooms entry %d must be positive", id)
		}
	}
	switch c.SlowConsumer {
	case "drop", "close":
	default:
		return fmt.Errorf("config: unknown slow_consumer %q", c.SlowConsumer)
	}
	switch c.Storage.Driver {
	case "memory":
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("config: storage.sqlite_path is required for sqlite")
		}
	case "postgres":
		if c.Storage.DatabaseURL == "" {
			return fmt.Errorf("config: storage.database_url is required for postgres")
		}
	default:
		return fmt.Errorf("config: unknown storage.driver %q", c.Storage.Driver)
	}
	return nil
}
