package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

type config struct {
	Addr      string   `mapstructure:"addr"`
	BasePath  string   `mapstructure:"base_path"`
	Dashboard string   `mapstructure:"dashboard"`
	Manifests []string `mapstructure:"manifests"`
	LogLevel  string   `mapstructure:"log_level"`
	Metrics   bool     `mapstructure:"metrics"`
	Columns   int      `mapstructure:"columns"`
}

// loadConfig reads freeboard.yaml (or the explicit file) and FREEBOARD_*
// environment overrides. A missing default file is not an error.
func loadConfig(g *globals) (*config, error) {
	v := viper.New()
	if g != nil && g.Config != "" {
		v.SetConfigFile(g.Config)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("freeboard")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("FREEBOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("addr", ":8080")
	v.SetDefault("base_path", "/freeboard")
	v.SetDefault("dashboard", "")
	v.SetDefault("manifests", []string{})
	v.SetDefault("log_level", "info")
	v.SetDefault("metrics", true)
	v.SetDefault("columns", 3)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("freeboardctl: read config: %w", err)
		}
	}

	cfg := &config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("freeboardctl: decode config: %w", err)
	}
	if g != nil && g.LogLevel != "" {
		cfg.LogLevel = g.LogLevel
	}
	return cfg, nil
}

func newLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		logger.WithField("level", level).Warn("unknown log level, using info")
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)
	return logger
}
