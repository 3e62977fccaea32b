package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode            string        `mapstructure:"mode"`
	Port            int           `mapstructure:"port"`
	GatewayURL      string        `mapstructure:"gateway_url"`
	Token           string        `mapstructure:"token"`
	CameraID        string        `mapstructure:"camera_id"`
	QualityInterval time.Duration `mapstructure:"quality_interval"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	SinkPath        string        `mapstructure:"sink_path"`
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
	v.SetDefault("port", 8089)
	v.SetDefault("gateway_url", "http://127.0.0.1:8000")
	v.SetDefault("camera_id", "shop_cam_1")
	v.SetDefault("quality_interval", "1s")
	v.SetDefault("poll_interval", "30s")
	v.SetDefault("sink_path", "")

	v.SetEnvPrefix("SHOPWATCH")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("config file not found (%s), using defaults\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
