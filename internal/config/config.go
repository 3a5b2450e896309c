package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/goccy/go-yaml"
)

// ConfigFileEnv names the environment variable pointing at an optional YAML file.
// The file is a flat mapping of the same keys read from the environment, e.g.
//
//	SESSION_ROOT: /var/lib/img2pdf
//	MAX_DIMENSION: 2048
//
// Real environment variables always take precedence over file values.
const ConfigFileEnv = "IMG2PDF_CONFIG"

// maxConfigFileSize bounds the YAML file read from disk.
const maxConfigFileSize = 1 << 20

// SessionConfig holds the batch pipeline settings.
type SessionConfig struct {
	RootDir             string
	MaxDimension        int
	MaxPixels           int64
	JPEGQuality         int
	MaxUploadBytes      int64
	MaxFilesPerBatch    int
	Workers             int
	InactivityThreshold time.Duration
	ReapInterval        time.Duration
	NormalizeTimeout    time.Duration
	MaxDocumentBytes    int64
}

// MinIOConfig holds object storage settings for the optional document archive.
type MinIOConfig struct {
	Enabled   bool
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// LogConfig selects the zap logger level and encoding.
type LogConfig struct {
	Level  string
	Format string
}

// AppConfig is the centralized configuration struct for the application.
// It is populated from environment variables. Sensitive values are not hardcoded.
type AppConfig struct {
	AppHost string
	Port    string
	Session SessionConfig
	MinIO   MinIOConfig
	Log     LogConfig
}

// Load reads configuration from environment variables, falling back to the YAML
// file named by IMG2PDF_CONFIG and then to defaults.
// A .env file can be auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
func Load() (*AppConfig, error) {
	src := source{}
	if path := os.Getenv(ConfigFileEnv); path != "" {
		values, err := readFile(path)
		if err != nil {
			return nil, err
		}
		src.file = values
	}

	cfg := &AppConfig{
		AppHost: src.str("APP_HOST", "localhost:8080"),
		Port:    src.str("PORT", "8080"),
		Session: SessionConfig{
			RootDir:             src.str("SESSION_ROOT", filepath.Join(os.TempDir(), "img2pdf")),
			MaxDimension:        src.int("MAX_DIMENSION", 2048),
			MaxPixels:           src.int64("MAX_PIXELS", 64*1024*1024),
			JPEGQuality:         src.int("JPEG_QUALITY", 90),
			MaxUploadBytes:      src.int64("MAX_UPLOAD_BYTES", 32<<20),
			MaxFilesPerBatch:    src.int("MAX_FILES_PER_BATCH", 50),
			Workers:             src.int("WORKERS", 0),
			InactivityThreshold: src.duration("SESSION_INACTIVITY", time.Hour),
			ReapInterval:        src.duration("REAP_INTERVAL", 5*time.Minute),
			NormalizeTimeout:    src.duration("NORMALIZE_TIMEOUT", 30*time.Second),
			MaxDocumentBytes:    src.int64("MAX_DOCUMENT_BYTES", 512<<20),
		},
		MinIO: MinIOConfig{
			Enabled:   src.bool("ARCHIVE_ENABLED", false),
			Endpoint:  src.str("MINIO_ENDPOINT", ""),
			AccessKey: src.str("MINIO_ACCESS_KEY", ""),
			SecretKey: src.str("MINIO_SECRET_KEY", ""),
			Bucket:    src.str("MINIO_BUCKET", ""),
			UseSSL:    src.bool("MINIO_USE_SSL", false),
		},
		Log: LogConfig{
			Level:  src.str("LOG_LEVEL", "info"),
			Format: src.str("LOG_FORMAT", "json"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *AppConfig) Validate() error {
	s := c.Session
	var errs []error
	if s.RootDir == "" {
		errs = append(errs, errors.New("SESSION_ROOT is required"))
	}
	if s.MaxDimension <= 0 {
		errs = append(errs, fmt.Errorf("MAX_DIMENSION must be positive, got %d", s.MaxDimension))
	}
	if s.MaxPixels <= 0 {
		errs = append(errs, fmt.Errorf("MAX_PIXELS must be positive, got %d", s.MaxPixels))
	}
	if s.JPEGQuality < 1 || s.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("JPEG_QUALITY must be within 1..100, got %d", s.JPEGQuality))
	}
	if s.MaxUploadBytes <= 0 || s.MaxFilesPerBatch <= 0 {
		errs = append(errs, errors.New("MAX_UPLOAD_BYTES and MAX_FILES_PER_BATCH must be positive"))
	}
	if s.InactivityThreshold <= 0 || s.ReapInterval <= 0 {
		errs = append(errs, errors.New("SESSION_INACTIVITY and REAP_INTERVAL must be positive"))
	}
	if c.MinIO.Enabled && (c.MinIO.Endpoint == "" || c.MinIO.Bucket == "") {
		errs = append(errs, errors.New("ARCHIVE_ENABLED requires MINIO_ENDPOINT and MINIO_BUCKET"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

func readFile(path string) (map[string]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("config file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file %s exceeds %d bytes", path, maxConfigFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config file: %w", err)
	}
	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	values := make(map[string]string, len(raw))
	for k, v := range raw {
		if v == nil {
			continue
		}
		values[k] = fmt.Sprint(v)
	}
	return values, nil
}

// source resolves a key from the environment first, then from the config file.
type source struct {
	file map[string]string
}

func (s source) lookup(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return s.file[key]
}

func (s source) str(key, def string) string {
	if v := s.lookup(key); v != "" {
		return v
	}
	return def
}

func (s source) bool(key string, def bool) bool {
	if v := s.lookup(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func (s source) int(key string, def int) int {
	if v := s.lookup(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}

func (s source) int64(key string, def int64) int64 {
	if v := s.lookup(key); v != "" {
		i, err := strconv.ParseInt(v, 10, 64)
		if err == nil {
			return i
		}
	}
	return def
}

func (s source) duration(key string, def time.Duration) time.Duration {
	if v := s.lookup(key); v != "" {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}
