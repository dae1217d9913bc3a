package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"time"

	"github.com/spf13/viper"
)

func setDefaults() {
	viper.SetDefault("loglevel", "info")
	viper.SetDefault("logfile", "")
	viper.SetDefault("listen_addr", ":8085")
	viper.SetDefault("server_url", "http://localhost:8085")
	viper.SetDefault("poll_interval", time.Second)
	viper.SetDefault("poll_timeout", 5*time.Second)
	viper.SetDefault("transport_failure_threshold", 10)
	viper.SetDefault("candidate_buffer_cap", 64)
	viper.SetDefault("call_ttl", 2*time.Hour)
	viper.SetDefault("ice_servers", []string{})
}

// Load installs defaults and reads the optional config file. A missing
// file is fine; an unreadable one is not.
func Load(configFilePath string) error {
	setDefaults()

	if configFilePath == "" {
		return nil
	}
	viper.SetConfigFile(configFilePath)
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
			slog.Info("no config file found", "path", configFilePath)
			return nil
		}
		return err
	}
	return nil
}
