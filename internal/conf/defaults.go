package conf

import (
	"time"

	"github.com/spf13/viper"
)

// setDefaultConfig registers the default value for every setting so a
// missing config file still yields a runnable configuration.
func setDefaultConfig() {
	// Main
	viper.SetDefault("main.name", "shelfvision")
	viper.SetDefault("main.debug", false)
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "logs/shelfvision.log")
	viper.SetDefault("main.log.maxsize", int64(100*1024*1024))
	viper.SetDefault("main.log.maxbackups", 3)
	viper.SetDefault("main.log.maxagedays", 28)

	// Vision: Stage-1 detector
	viper.SetDefault("vision.detector.modelpath", "")
	viper.SetDefault("vision.detector.labelpath", "")
	viper.SetDefault("vision.detector.threshold", 0.5)
	viper.SetDefault("vision.detector.maxdetections", 32)
	viper.SetDefault("vision.detector.threads", 0)
	viper.SetDefault("vision.detector.usexnnpack", true)

	// Vision: Stage-2 classifier
	viper.SetDefault("vision.classifier.backend", "pretrained")
	viper.SetDefault("vision.classifier.modelpath", "")
	viper.SetDefault("vision.classifier.embeddingsize", 1280)
	viper.SetDefault("vision.classifier.inputsize", 224)
	viper.SetDefault("vision.classifier.threshold", 0.75)
	viper.SetDefault("vision.classifier.margin", 0.05)
	viper.SetDefault("vision.classifier.threads", 0)
	viper.SetDefault("vision.classifier.usexnnpack", true)

	// OCR
	viper.SetDefault("ocr.enabled", true)
	viper.SetDefault("ocr.language", "eng")
	viper.SetDefault("ocr.dictionarypath", "")
	viper.SetDefault("ocr.mintextlength", 3)

	// Fusion weights, normalized at load
	viper.SetDefault("fusion.embeddingweight", 0.6)
	viper.SetDefault("fusion.ocrweight", 0.1)
	viper.SetDefault("fusion.textmatchweight", 0.3)

	// Active learning
	viper.SetDefault("learning.sessionttl", 30*time.Minute)
	viper.SetDefault("learning.cleanupinterval", 5*time.Minute)

	// Training pipeline
	viper.SetDefault("training.datasetpath", "dataset")
	viper.SetDefault("training.snapshotpath", "snapshots")
	viper.SetDefault("training.augmentationsperimage", 2)
	viper.SetDefault("training.minaccuracydelta", 0.01)
	viper.SetDefault("training.concurrency", 4)

	// Feature cache rebuild
	viper.SetDefault("rebuild.concurrency", 4)

	// Output
	viper.SetDefault("output.sqlite.enabled", true)
	viper.SetDefault("output.sqlite.path", "shelfvision.db")
	viper.SetDefault("output.mysql.enabled", false)
	viper.SetDefault("output.mysql.username", "shelfvision")
	viper.SetDefault("output.mysql.password", "")
	viper.SetDefault("output.mysql.database", "shelfvision")
	viper.SetDefault("output.mysql.host", "localhost")
	viper.SetDefault("output.mysql.port", "3306")

	// Web server
	viper.SetDefault("webserver.enabled", true)
	viper.SetDefault("webserver.port", "8080")
	viper.SetDefault("webserver.debug", false)
}
