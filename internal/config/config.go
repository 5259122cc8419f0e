package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Backend names accepted by SOURCE_BACKEND and OUTPUT_BACKEND.
const (
	BackendLocal = "local"
	BackendDrive = "drive"
	BackendS3    = "s3"
)

const (
	maxBatchSize = 1_000_000
	maxWorkers   = 256
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	// Input sources.
	SourceBackend     string
	DetectionsDir     string
	ReferencesDir     string
	GoogleAPIKey      string
	DriveFolderID     string
	ShapefileFolderID string
	SourceTimeout     time.Duration
	SourceCacheSize   int

	// Artifact output.
	OutputBackend string
	OutputDir     string
	OutputGzip    bool
	S3Bucket      string
	AWSRegion     string
	S3Timeout     time.Duration
	S3Retries     int

	// Processing.
	BatchSize int
	Workers   int

	// Optional Kafka sink; disabled when no brokers are configured.
	KafkaBrokers   []string
	KafkaSinkTopic string

	Schedule          string
	SyntheticFallback bool
	SyntheticCount    int

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

// KafkaEnabled reports whether enriched chunks should be published.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}
	sourceTimeout, err := parseDuration("SOURCE_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}
	s3Timeout, err := parseDuration("S3_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	cacheSize, err := parseInt("SOURCE_CACHE_SIZE", 64, 0, 1<<20)
	if err != nil {
		return nil, err
	}
	s3Retries, err := parseInt("S3_RETRIES", 3, 1, 20)
	if err != nil {
		return nil, err
	}
	batchSize, err := parseInt("BATCH_SIZE", 50_000, 1, maxBatchSize)
	if err != nil {
		return nil, err
	}
	workers, err := parseInt("WORKERS", runtime.NumCPU(), 1, maxWorkers)
	if err != nil {
		return nil, err
	}
	syntheticCount, err := parseInt("SYNTHETIC_COUNT", 1000, 1, maxBatchSize)
	if err != nil {
		return nil, err
	}
	outputGzip, err := parseBool("OUTPUT_GZIP")
	if err != nil {
		return nil, err
	}
	syntheticFallback, err := parseBool("SYNTHETIC_FALLBACK")
	if err != nil {
		return nil, err
	}

	var brokers []string
	if raw := os.Getenv("KAFKA_BROKERS"); strings.TrimSpace(raw) != "" {
		brokers = sharedcfg.ParseBrokers(raw)
	}

	cfg := &Config{
		SourceBackend:     strings.ToLower(sharedcfg.EnvOrDefault("SOURCE_BACKEND", BackendLocal)),
		DetectionsDir:     sharedcfg.EnvOrDefault("DETECTIONS_DIR", "data/raw"),
		ReferencesDir:     sharedcfg.EnvOrDefault("REFERENCES_DIR", "data/shapefiles"),
		GoogleAPIKey:      os.Getenv("GOOGLE_API_KEY"),
		DriveFolderID:     os.Getenv("DRIVE_FOLDER_ID"),
		ShapefileFolderID: os.Getenv("SHAPEFILE_FOLDER_ID"),
		SourceTimeout:     sourceTimeout,
		SourceCacheSize:   cacheSize,

		OutputBackend: strings.ToLower(sharedcfg.EnvOrDefault("OUTPUT_BACKEND", BackendLocal)),
		OutputDir:     sharedcfg.EnvOrDefault("OUTPUT_DIR", "data/processed"),
		OutputGzip:    outputGzip,
		S3Bucket:      os.Getenv("S3_BUCKET"),
		AWSRegion:     sharedcfg.EnvOrDefault("AWS_REGION", "us-east-1"),
		S3Timeout:     s3Timeout,
		S3Retries:     s3Retries,

		BatchSize: batchSize,
		Workers:   workers,

		KafkaBrokers:   brokers,
		KafkaSinkTopic: sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "enriched-heat-spots"),

		Schedule:          strings.TrimSpace(os.Getenv("PIPELINE_SCHEDULE")),
		SyntheticFallback: syntheticFallback,
		SyntheticCount:    syntheticCount,

		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
	}

	switch cfg.SourceBackend {
	case BackendLocal:
	case BackendDrive:
		if cfg.GoogleAPIKey == "" {
			return nil, errors.New("GOOGLE_API_KEY is required when SOURCE_BACKEND is drive")
		}
		if cfg.DriveFolderID == "" {
			return nil, errors.New("DRIVE_FOLDER_ID is required when SOURCE_BACKEND is drive")
		}
	default:
		return nil, fmt.Errorf("invalid SOURCE_BACKEND %q: want local or drive", cfg.SourceBackend)
	}

	switch cfg.OutputBackend {
	case BackendLocal:
	case BackendS3:
		if cfg.S3Bucket == "" {
			return nil, errors.New("S3_BUCKET is required when OUTPUT_BACKEND is s3")
		}
	default:
		return nil, fmt.Errorf("invalid OUTPUT_BACKEND %q: want local or s3", cfg.OutputBackend)
	}

	if cfg.KafkaEnabled() && cfg.KafkaSinkTopic == "" {
		return nil, errors.New("KAFKA_SINK_TOPIC is required when KAFKA_BROKERS is set")
	}

	return cfg, nil
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseInt(key string, def, lo, hi int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < lo || n > hi {
		return 0, fmt.Errorf("invalid %s: must be an integer between %d and %d", key, lo, hi)
	}
	return n, nil
}

func parseBool(key string) (bool, error) {
	s := os.Getenv(key)
	if s == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s", key)
	}
	return b, nil
}
