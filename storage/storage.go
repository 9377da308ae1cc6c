package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
)

// ErrObjectNotFound is returned by Download when nothing is stored under a key
var ErrObjectNotFound = errors.New("object not found")

// Storage interface for narration clip storage
type Storage interface {
	// Upload stores an object under key and returns the storage path
	Upload(ctx context.Context, key string, contentType string, data io.Reader) (string, error)

	// Download retrieves an object by storage path
	Download(ctx context.Context, storagePath string) (io.ReadCloser, error)

	// Delete removes an object by storage path
	Delete(ctx context.Context, storagePath string) error
}

// StorageType represents the storage backend type
type StorageType string

const (
	StorageTypeLocal StorageType = "local"
	StorageTypeS3    StorageType = "s3"
)

// StorageConfig holds configuration for storage
type StorageConfig struct {
	Type         StorageType
	LocalPath    string // For local storage
	S3Bucket     string // For S3 storage
	S3Region     string // For S3 storage
	S3Endpoint   string // S3-compatible endpoint, empty for AWS
	AWSAccessKey string
	AWSSecretKey string
}

// NewStorage creates a new storage instance based on configuration
func NewStorage(cfg StorageConfig) (Storage, error) {
	switch cfg.Type {
	case StorageTypeLocal, "":
		if cfg.LocalPath == "" {
			cfg.LocalPath = "./storage/audio" // Default local storage path
		}
		return NewLocalStorage(cfg.LocalPath)
	case StorageTypeS3:
		if cfg.S3Bucket == "" {
			return nil, errors.New("S3 bucket is required for S3 storage")
		}
		if cfg.S3Region == "" {
			cfg.S3Region = "us-east-1" // Default region
		}
		return NewS3Storage(cfg)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}

// NarrationKey is the storage key of a reading's narration clip
func NarrationKey(installationID uuid.UUID, readingID string) string {
	id := installationID.String()
	// Sanitize reading id
	readingID = strings.ReplaceAll(readingID, "/", "_")
	readingID = strings.ReplaceAll(readingID, "\\", "_")
	readingID = strings.ReplaceAll(readingID, "..", "_")

	// Shard by installation prefix
	return path.Join("narration", id[:2], id, readingID+".wav")
}

// contentTypeFor determines content type from key
func contentTypeFor(key string) string {
	switch path.Ext(key) {
	case ".wav":
		return "audio/wav"
	case ".pcm":
		return "audio/L16"
	default:
		return "application/octet-stream"
	}
}
