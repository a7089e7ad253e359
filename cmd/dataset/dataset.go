// Package dataset implements dataset versioning commands.
package dataset

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shelfvision/shelfvision-go/internal/conf"
	"github.com/shelfvision/shelfvision-go/internal/dataset"
)

// Command creates the dataset command group.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dataset",
		Short: "Manage dataset versions",
	}
	cmd.AddCommand(snapshotCommand(settings), diffCommand(settings))
	return cmd
}

func snapshotCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot",
		Short: "Hash the dataset and record its version",
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := dataset.TakeSnapshot(settings.Training.DatasetPath, settings.Training.SnapshotPath)
			if err != nil {
				return err
			}
			fmt.Printf("fingerprint: %s\nfiles: %d\n", snap.Fingerprint, snap.FileCount)
			return nil
		},
	}
}

func diffCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "diff <fingerprint-a> <fingerprint-b>",
		Short: "Compare two recorded dataset versions",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := dataset.LoadSnapshotByFingerprint(settings.Training.SnapshotPath, args[0])
			if err != nil {
				return err
			}
			to, err := dataset.LoadSnapshotByFingerprint(settings.Training.SnapshotPath, args[1])
			if err != nil {
				return err
			}

			d := dataset.Diff(from, to)
			if d.Empty() {
				fmt.Println("datasets are identical")
				return nil
			}
			for _, p := range d.Added {
				fmt.Printf("A %s\n", p)
			}
			for _, p := range d.Removed {
				fmt.Printf("D %s\n", p)
			}
			for _, p := range d.Modified {
				fmt.Printf("M %s\n", p)
			}
			return nil
		},
	}
}
