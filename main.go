package main

import (
	"fmt"
	"os"

	"github.com/shelfvision/shelfvision-go/cmd"
	"github.com/shelfvision/shelfvision-go/internal/conf"
	"github.com/shelfvision/shelfvision-go/internal/logging"
)

func main() {
	logging.Init()

	settings, err := conf.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading configuration: %v\n", err)
		os.Exit(1)
	}

	if settings.Main.Log.Enabled {
		closeLog, err := logging.SetupFileOutput(settings.Main.Log.Path, logging.FileLoggerOptions{
			MaxSizeMB:  int(settings.Main.Log.MaxSize >> 20),
			MaxBackups: settings.Main.Log.MaxBackups,
			MaxAgeDays: settings.Main.Log.MaxAgeDays,
		})
		if err != nil {
			logging.Warn("file logging unavailable, logging to stdout only",
				"path", settings.Main.Log.Path, "error", err)
		} else {
			defer func() { _ = closeLog() }()
		}
	}

	rootCmd := cmd.RootCommand(settings)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
