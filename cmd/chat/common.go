package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/MelvinVerLia/SiLaporRT-sub001/config"
	"github.com/MelvinVerLia/SiLaporRT-sub001/pkg/logger"
)

// loadConfig honours --config by exporting it as CONFIG_PATH.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		if err := os.Setenv("CONFIG_PATH", path); err != nil {
			return nil, err
		}
	}
	return config.LoadConfig()
}

func initLogger(cfg *config.Config) *slog.Logger {
	return logger.Init(logger.Config{
		Env:       logger.Env(cfg.Logging.Env),
		Service:   cfg.Logging.Service,
		Version:   cfg.Logging.Version,
		Backend:   logger.Backend(cfg.Logging.Backend),
		AddSource: cfg.Logging.AddSource,
		Debug:     cfg.Logging.Debug,
	})
}
