package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type APIConfig struct {
	BaseURL string
	Timeout time.Duration
}

type StoreConfig struct {
	Path       string
	Passphrase string
}

type KeepaliveConfig struct {
	Interval    time.Duration
	RenewWithin time.Duration
}

type Config struct {
	Environment string
	API         APIConfig
	Store       StoreConfig
	Keepalive   KeepaliveConfig
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("dailypost")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if dir, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(dir, "dailypost"))
	}

	v.SetEnvPrefix("DAILYPOST")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.StringToTimeDurationHookFunc()
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.Store.Path == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("resolve config dir: %w", err)
		}
		cfg.Store.Path = filepath.Join(dir, "dailypost", "tokens.json")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("api.baseurl", "http://localhost:3000/api")
	v.SetDefault("api.timeout", "15s")

	v.SetDefault("keepalive.interval", "1m")
	v.SetDefault("keepalive.renewwithin", "3m")
}
