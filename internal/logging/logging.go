// Package logging centralizes zap.Logger construction so every rx-player
// component shares one consistently configured logger.
package logging

import "go.uber.org/zap"

// New builds a zap.Logger for the given level name: "debug", "info", "warn"
// or "error". Unknown or empty level falls back to "info". "debug" uses
// zap's development config (human-readable console encoding); everything
// else uses the production JSON config with the level floor applied.
func New(level string) (*zap.Logger, error) {
	var cfg zap.Config
	if level == "debug" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}

	lvl, err := zap.ParseAtomicLevel(level)
	if err == nil {
		cfg.Level = lvl
	}

	return cfg.Build()
}
