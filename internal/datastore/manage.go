package datastore

import (
	"log/slog"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/shelfvision/shelfvision-go/internal/logging"
)

var log = logging.ForService("datastore")

// createGormLogger returns a gorm logger that stays quiet unless debug is
// enabled; slow queries are always reported.
func createGormLogger(debug bool) gormlogger.Interface {
	level := gormlogger.Error
	if debug {
		level = gormlogger.Info
	}
	return gormlogger.Default.LogMode(level)
}

// performAutoMigration migrates the schema for the pipeline-owned tables.
func performAutoMigration(db *gorm.DB, debug bool, dbType, connectionInfo string) error {
	start := time.Now()
	if err := db.AutoMigrate(&TrainingImage{}, &ProductFeatureCache{}); err != nil {
		return err
	}
	if debug {
		log.Debug("schema migration complete",
			slog.String("db_type", dbType),
			slog.String("connection", connectionInfo),
			slog.Duration("elapsed", time.Since(start)))
	}
	return nil
}
