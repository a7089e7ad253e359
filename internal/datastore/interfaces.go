// interfaces.go defines the interface for the database operations
package datastore

import (
	"time"

	"gorm.io/gorm"

	"github.com/shelfvision/shelfvision-go/internal/conf"
	"github.com/shelfvision/shelfvision-go/internal/errors"
)

// Interface abstracts the underlying database implementation and defines
// the operations the recognition pipeline needs.
type Interface interface {
	Open() error
	Close() error

	// Training images
	SaveTrainingImage(img *TrainingImage) error
	GetTrainingImage(id uint) (*TrainingImage, error)
	GetTrainingImagesByProduct(productID string) ([]TrainingImage, error)
	SetTrainingImageVerified(id uint, verified bool) error
	DeleteTrainingImage(id uint) error
	DeleteTrainingImagesBySource(source string) error
	ProductIDsWithTrainingImages() ([]string, error)

	// Feature cache
	ReplaceFeatureCache(row *ProductFeatureCache) error
	DeleteFeatureCache(productID string) error
	GetFeatureCache(productID string) (*ProductFeatureCache, error)
	GetAllFeatureCaches() ([]ProductFeatureCache, error)
}

// DataStore implements Interface using a GORM database.
type DataStore struct {
	DB *gorm.DB // GORM database instance
}

// New creates a new datastore instance based on the provided settings.
func New(settings *conf.Settings) Interface {
	switch {
	case settings.Output.SQLite.Enabled:
		return &SQLiteStore{Settings: settings}
	case settings.Output.MySQL.Enabled:
		return &MySQLStore{Settings: settings}
	default:
		return nil
	}
}

// SaveTrainingImage inserts a new training image record.
func (ds *DataStore) SaveTrainingImage(img *TrainingImage) error {
	if img.ProductID == "" {
		return errors.Newf("training image has no product id").
			Component("datastore").
			Category(errors.CategoryValidation).
			Build()
	}
	if img.CreatedAt.IsZero() {
		img.CreatedAt = time.Now()
	}
	if err := ds.DB.Create(img).Error; err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			ProductContext(img.ProductID).
			Context("operation", "save_training_image").
			Build()
	}
	return nil
}

// GetTrainingImage fetches one training image by id.
func (ds *DataStore) GetTrainingImage(id uint) (*TrainingImage, error) {
	var img TrainingImage
	if err := ds.DB.First(&img, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Newf("training image %d not found", id).
				Component("datastore").
				Category(errors.CategoryNotFound).
				Build()
		}
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "get_training_image").
			Build()
	}
	return &img, nil
}

// GetTrainingImagesByProduct returns all training images for a product in a
// stable order. The deterministic ordering matters: aggregation must see the
// same input sequence for the same input set.
func (ds *DataStore) GetTrainingImagesByProduct(productID string) ([]TrainingImage, error) {
	var imgs []TrainingImage
	err := ds.DB.Where("product_id = ?", productID).Order("id ASC").Find(&imgs).Error
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			ProductContext(productID).
			Context("operation", "get_training_images_by_product").
			Build()
	}
	return imgs, nil
}

// SetTrainingImageVerified flips the verified flag, the only mutation a
// training image supports.
func (ds *DataStore) SetTrainingImageVerified(id uint, verified bool) error {
	res := ds.DB.Model(&TrainingImage{}).Where("id = ?", id).Update("verified", verified)
	if res.Error != nil {
		return errors.New(res.Error).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "set_training_image_verified").
			Build()
	}
	if res.RowsAffected == 0 {
		return errors.Newf("training image %d not found", id).
			Component("datastore").
			Category(errors.CategoryNotFound).
			Build()
	}
	return nil
}

// DeleteTrainingImage removes one training image.
func (ds *DataStore) DeleteTrainingImage(id uint) error {
	res := ds.DB.Delete(&TrainingImage{}, id)
	if res.Error != nil {
		return errors.New(res.Error).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "delete_training_image").
			Build()
	}
	if res.RowsAffected == 0 {
		return errors.Newf("training image %d not found", id).
			Component("datastore").
			Category(errors.CategoryNotFound).
			Build()
	}
	return nil
}

// DeleteTrainingImagesBySource removes every training image of one source,
// used by the training pipeline to replace the previous run's rows before
// inserting the new ones. Feedback rows are never touched this way.
func (ds *DataStore) DeleteTrainingImagesBySource(source string) error {
	if source == "" {
		return errors.Newf("delete by source requires a source").
			Component("datastore").
			Category(errors.CategoryValidation).
			Build()
	}
	if err := ds.DB.Where("source = ?", source).Delete(&TrainingImage{}).Error; err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "delete_training_images_by_source").
			Build()
	}
	return nil
}

// ProductIDsWithTrainingImages lists distinct product ids that currently
// have at least one training image, ordered for deterministic bulk rebuilds.
func (ds *DataStore) ProductIDsWithTrainingImages() ([]string, error) {
	var ids []string
	err := ds.DB.Model(&TrainingImage{}).
		Distinct("product_id").
		Order("product_id ASC").
		Pluck("product_id", &ids).Error
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "product_ids_with_training_images").
			Build()
	}
	return ids, nil
}

// ReplaceFeatureCache swaps in a freshly aggregated cache row for a product
// inside one transaction. Readers see either the old row or the new one,
// never a partially written row.
func (ds *DataStore) ReplaceFeatureCache(row *ProductFeatureCache) error {
	if row.ProductID == "" {
		return errors.Newf("feature cache row has no product id").
			Component("datastore").
			Category(errors.CategoryValidation).
			Build()
	}
	row.UpdatedAt = time.Now()

	err := ds.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("product_id = ?", row.ProductID).Delete(&ProductFeatureCache{}).Error; err != nil {
			return err
		}
		row.ID = 0
		return tx.Create(row).Error
	})
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			ProductContext(row.ProductID).
			Context("operation", "replace_feature_cache").
			Build()
	}
	return nil
}

// DeleteFeatureCache removes the cache row for a product. Deleting a row
// that does not exist is not an error; bulk rebuilds re-run this freely.
func (ds *DataStore) DeleteFeatureCache(productID string) error {
	err := ds.DB.Where("product_id = ?", productID).Delete(&ProductFeatureCache{}).Error
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			ProductContext(productID).
			Context("operation", "delete_feature_cache").
			Build()
	}
	return nil
}

// GetFeatureCache fetches the cache row for one product.
func (ds *DataStore) GetFeatureCache(productID string) (*ProductFeatureCache, error) {
	var row ProductFeatureCache
	err := ds.DB.Where("product_id = ?", productID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Newf("no feature cache for product %s", productID).
				Component("datastore").
				Category(errors.CategoryNotFound).
				Build()
		}
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "get_feature_cache").
			Build()
	}
	return &row, nil
}

// GetAllFeatureCaches returns every cache row, ordered by product id.
func (ds *DataStore) GetAllFeatureCaches() ([]ProductFeatureCache, error) {
	var rows []ProductFeatureCache
	if err := ds.DB.Order("product_id ASC").Find(&rows).Error; err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "get_all_feature_caches").
			Build()
	}
	return rows, nil
}

// Close closes the underlying database connection.
func (ds *DataStore) Close() error {
	if ds.DB == nil {
		return nil
	}
	sqlDB, err := ds.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
