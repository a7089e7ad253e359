package cmd

import (
	"github.com/spf13/cobra"

	"github.com/shelfvision/shelfvision-go/cmd/dataset"
	"github.com/shelfvision/shelfvision-go/cmd/rebuild"
	"github.com/shelfvision/shelfvision-go/cmd/serve"
	"github.com/shelfvision/shelfvision-go/cmd/train"
	"github.com/shelfvision/shelfvision-go/internal/conf"
)

// RootCommand creates and returns the root command.
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "shelfvision",
		Short: "ShelfVision catalog product recognition service",
	}

	rootCmd.PersistentFlags().BoolVar(&settings.Main.Debug, "debug", settings.Main.Debug, "Enable debug output")

	rootCmd.AddCommand(
		serve.Command(settings),
		train.Command(settings),
		rebuild.Command(settings),
		dataset.Command(settings),
	)
	return rootCmd
}
