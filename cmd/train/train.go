// Package train implements the offline training command.
package train

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/shelfvision/shelfvision-go/internal/conf"
	"github.com/shelfvision/shelfvision-go/internal/errors"
	"github.com/shelfvision/shelfvision-go/internal/server"
	"github.com/shelfvision/shelfvision-go/internal/training"
)

// Command creates the train command.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Run the offline training pipeline",
		Long:  "Snapshot the dataset, embed every image and promote new reference vectors if held-out accuracy holds up.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTraining(cmd, settings)
		},
	}
	if err := setupFlags(cmd, settings); err != nil {
		return cmd
	}
	return cmd
}

func runTraining(cmd *cobra.Command, settings *conf.Settings) error {
	deps, err := server.Build(settings)
	if err != nil {
		return err
	}
	defer deps.Close()

	if deps.Embedder == nil {
		return errors.Newf("training requires a loaded classifier model").
			Component("training").
			Category(errors.CategoryModelInit).
			Build()
	}

	p := training.New(&settings.Training, deps.DS, deps.Embedder, deps.Rebuilder)
	report, err := p.Run(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Printf("dataset version: %s\n", report.Fingerprint)
	fmt.Printf("products: %d, vectors: %d, eval samples: %d\n",
		report.Products, report.TrainedVectors, report.EvalSamples)
	fmt.Printf("accuracy: %.4f (baseline %.4f)\n", report.Accuracy, report.BaselineAccuracy)
	if report.Promoted {
		fmt.Println("result: promoted")
	} else {
		fmt.Println("result: promotion blocked, accuracy regressed")
	}
	return nil
}

func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().StringVar(&settings.Training.DatasetPath, "dataset", viper.GetString("training.datasetpath"), "Dataset root directory")
	cmd.Flags().StringVar(&settings.Training.SnapshotPath, "snapshots", viper.GetString("training.snapshotpath"), "Snapshot artifact directory")
	cmd.Flags().IntVar(&settings.Training.Concurrency, "concurrency", viper.GetInt("training.concurrency"), "Parallel embedding workers")

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	return nil
}
