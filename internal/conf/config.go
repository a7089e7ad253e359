// Package conf defines the application settings and loads them with viper.
package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// LogConfig contains settings for log files.
type LogConfig struct {
	Enabled    bool   // true to enable this log
	Path       string // path to log file
	MaxSize    int64  // max log size in bytes before rotation
	MaxBackups int    // rotated files to keep
	MaxAgeDays int    // days to retain rotated files
}

// MainSettings contains general application settings.
type MainSettings struct {
	Name  string    // node name, used to identify the instance
	Debug bool      // enable debug mode
	Log   LogConfig // main log settings
}

// DetectorSettings contains settings for the Stage-1 object detector.
type DetectorSettings struct {
	ModelPath     string  // path to the tflite detection model, empty disables the detector
	LabelPath     string  // path to the detector class label file
	Threshold     float64 // minimum detection confidence, detections strictly below never reach Stage-2
	MaxDetections int     // cap on detections per image
	Threads       int     // tflite interpreter threads, 0 = all CPUs
	UseXNNPACK    bool    // enable the XNNPACK delegate
}

// ClassifierSettings contains settings for the Stage-2 embedding classifier.
type ClassifierSettings struct {
	Backend       string  // "pretrained" or "metric"
	ModelPath     string  // path to the tflite embedding model
	EmbeddingSize int     // pipeline-wide fixed embedding dimensionality
	InputSize     int     // model input width/height in pixels
	Threshold     float64 // minimum cosine similarity for a match
	Margin        float64 // best match must beat the runner-up by this much
	Threads       int     // tflite interpreter threads, 0 = all CPUs
	UseXNNPACK    bool    // enable the XNNPACK delegate
}

// VisionSettings groups the model inference settings.
type VisionSettings struct {
	Detector   DetectorSettings
	Classifier ClassifierSettings
}

// OCRSettings contains settings for the text-assist matcher.
type OCRSettings struct {
	Enabled        bool   // false skips OCR entirely, embedding-only scoring
	Language       string // tesseract language code
	DictionaryPath string // path to the catalog brand/product-name dictionary (yaml)
	MinTextLength  int    // extracted text shorter than this is ignored
}

// FusionSettings holds the tunable score fusion weights. The weights are
// normalized at load time; fused confidence is the weighted mean of the
// component scores, which keeps the fusion monotonic in each input.
type FusionSettings struct {
	EmbeddingWeight float64
	OCRWeight       float64
	TextMatchWeight float64
}

// LearningSettings contains settings for the active-learning feedback loop.
type LearningSettings struct {
	SessionTTL      time.Duration // how long a pending recognition session is kept
	CleanupInterval time.Duration // expired session sweep interval
}

// TrainingSettings contains settings for the offline training pipeline.
type TrainingSettings struct {
	DatasetPath           string  // root directory of the training dataset
	SnapshotPath          string  // directory for dataset snapshot artifacts
	AugmentationsPerImage int     // augmented variants generated per source image
	MinAccuracyDelta      float64 // allowed top-1 regression before promotion is blocked
	Concurrency           int     // parallel embedding extraction workers
}

// SQLiteSettings contains SQLite output settings.
type SQLiteSettings struct {
	Enabled bool
	Path    string
}

// MySQLSettings contains MySQL output settings.
type MySQLSettings struct {
	Enabled  bool
	Username string
	Password string
	Database string
	Host     string
	Port     string
}

// OutputSettings contains database output settings.
type OutputSettings struct {
	SQLite SQLiteSettings
	MySQL  MySQLSettings
}

// WebServerSettings contains settings for the API server.
type WebServerSettings struct {
	Enabled bool
	Port    string
	Debug   bool
}

// RebuildSettings contains settings for feature cache rebuilds.
type RebuildSettings struct {
	Concurrency int // parallel product rebuilds in a bulk rebuild
}

// Settings is the root configuration object.
type Settings struct {
	Main      MainSettings
	Vision    VisionSettings
	OCR       OCRSettings
	Fusion    FusionSettings
	Learning  LearningSettings
	Training  TrainingSettings
	Rebuild   RebuildSettings
	Output    OutputSettings
	WebServer WebServerSettings
}

var (
	settingsInstance *Settings
	once             sync.Once
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment into a Settings struct.
func Load() (*Settings, error) {
	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, err
	}

	NormalizeFusionWeights(&settings.Fusion)

	settingsMutex.Lock()
	settingsInstance = settings
	settingsMutex.Unlock()
	return settings, nil
}

// initViper initializes viper with default values and reads the configuration file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("shelfvision")
	viper.AutomaticEnv()

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return err
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	setDefaultConfig()

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errorsAs(err, &configFileNotFoundError) {
			return fmt.Errorf("fatal error reading config file: %w", err)
		}
		// No config file found, defaults apply.
	}

	return nil
}

// Setting returns the currently loaded settings, loading them on first use.
func Setting() *Settings {
	once.Do(func() {
		if settingsInstance == nil {
			if _, err := Load(); err != nil {
				panic(fmt.Sprintf("error loading settings: %v", err))
			}
		}
	})
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// GetDefaultConfigPaths returns the directories searched for config.yaml.
func GetDefaultConfigPaths() ([]string, error) {
	paths := []string{"."}

	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		paths = append(paths, filepath.Join(xdg, "shelfvision"))
	} else if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "shelfvision"))
	}

	paths = append(paths, "/etc/shelfvision")
	return paths, nil
}

// NormalizeFusionWeights scales the fusion weights to sum to 1. Zero or
// negative totals fall back to embedding-only scoring.
func NormalizeFusionWeights(f *FusionSettings) {
	total := f.EmbeddingWeight + f.OCRWeight + f.TextMatchWeight
	if total <= 0 {
		f.EmbeddingWeight = 1
		f.OCRWeight = 0
		f.TextMatchWeight = 0
		return
	}
	f.EmbeddingWeight /= total
	f.OCRWeight /= total
	f.TextMatchWeight /= total
}
