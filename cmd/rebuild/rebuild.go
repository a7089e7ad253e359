// Package rebuild implements the feature cache rebuild command.
package rebuild

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shelfvision/shelfvision-go/internal/conf"
	"github.com/shelfvision/shelfvision-go/internal/datastore"
	"github.com/shelfvision/shelfvision-go/internal/errors"
	"github.com/shelfvision/shelfvision-go/internal/featurecache"
)

// Command creates the rebuild command.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild [product-id...]",
		Short: "Rebuild feature caches from stored training images",
		Long:  "Recompute per-product reference vectors. Without arguments every product is rebuilt.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ds := datastore.New(settings)
			if ds == nil {
				return errors.Newf("no database output enabled").
					Component("server").
					Category(errors.CategoryConfiguration).
					Build()
			}
			if err := ds.Open(); err != nil {
				return err
			}
			defer func() { _ = ds.Close() }()

			rebuilder := featurecache.NewRebuilder(ds, settings.Vision.Classifier.EmbeddingSize, nil)
			if len(args) == 0 {
				if err := rebuilder.RebuildAll(cmd.Context(), settings.Rebuild.Concurrency); err != nil {
					return err
				}
				fmt.Println("all product caches rebuilt")
				return nil
			}
			for _, productID := range args {
				if err := rebuilder.Rebuild(cmd.Context(), productID); err != nil {
					return err
				}
				fmt.Printf("rebuilt %s\n", productID)
			}
			return nil
		},
	}
}
