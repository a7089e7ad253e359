// model.go defines the persisted data model for the recognition pipeline.
package datastore

import "time"

// TrainingImage is one labeled example for a catalog product. The feature
// vector is stored in the fixed-schema binary encoding of vectorcodec.go;
// a row with a malformed or wrong-dimension vector is skipped at
// aggregation time, never treated as valid.
type TrainingImage struct {
	ID              uint   `gorm:"primaryKey"`
	ProductID       string `gorm:"index:idx_training_images_product;not null"`
	Vector          []byte // fixed-schema embedding payload
	ColorDescriptor []byte // auxiliary color histogram payload
	Confidence      float64
	Verified        bool   `gorm:"index:idx_training_images_verified"`
	Source          string `gorm:"type:varchar(32)"` // "upload", "feedback" or "training"
	CreatedBy       string
	CreatedAt       time.Time `gorm:"index"`
}

// ProductFeatureCache is the derived per-product reference row consumed at
// inference time. It is always a pure function of the product's current
// valid training vectors and is replaced wholesale on rebuild.
type ProductFeatureCache struct {
	ID         uint   `gorm:"primaryKey"`
	ProductID  string `gorm:"uniqueIndex;not null"`
	Vector     []byte // aggregated embedding payload
	ImageCount int    // contributing valid vectors
	UpdatedAt  time.Time
}
