package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/musikai/musikd/internal/shared"
)

func main() {
	logger := shared.NewLogger(nil)

	if err := shared.LoadEnvFile(); err != nil {
		logger.Warn("failed to load .env file", "error", err)
	}

	config := shared.DefaultConfig()
	if _, err := os.Stat("config.toml"); err == nil {
		if loadedConfig, err := shared.LoadConfig("config.toml"); err == nil {
			config = loadedConfig
		} else {
			logger.Warn("failed to load config.toml, using defaults", "error", err)
		}
	}
	shared.ApplyEnvOverrides(config)

	runner := NewRunner(RunnerOpts{
		Config: config,
		Logger: logger,
	})

	app := &cli.Command{
		Name:     "musikd",
		Usage:    "Convert YouTube playlists to Spotify playlists",
		Version:  "1.0.0",
		Commands: runner.register(),
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		logger.Fatalf("application error: %v", err)
	}
}
