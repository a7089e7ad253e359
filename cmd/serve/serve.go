// Package serve implements the API server command.
package serve

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/shelfvision/shelfvision-go/internal/conf"
	"github.com/shelfvision/shelfvision-go/internal/server"
)

// Command creates the serve command.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the recognition API server",
		Long:  "Start the HTTP API serving recognition, feedback and feature cache management.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return server.Run(settings)
		},
	}
	if err := setupFlags(cmd, settings); err != nil {
		return cmd
	}
	return cmd
}

func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().StringVar(&settings.WebServer.Port, "port", viper.GetString("webserver.port"), "HTTP listen port")
	cmd.Flags().StringVar(&settings.Vision.Detector.ModelPath, "detectormodel", viper.GetString("vision.detector.modelpath"), "Path to the detector tflite model")
	cmd.Flags().StringVar(&settings.Vision.Classifier.ModelPath, "classifiermodel", viper.GetString("vision.classifier.modelpath"), "Path to the embedding tflite model")
	cmd.Flags().BoolVar(&settings.OCR.Enabled, "ocr", viper.GetBool("ocr.enabled"), "Enable OCR text assist")

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	return nil
}
