package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

var log = logrus.New()

// ErrNotFound is returned when the store is reachable but holds no object for the id.
var ErrNotFound = errors.New("file not found")

// UnavailableError reports that the store itself could not serve the request.
// It is kept distinct from ErrNotFound so a missing receipt is never confused
// with an outage.
type UnavailableError struct {
	Driver string
	FileID string
	Err    error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s storage unavailable for file %s: %v", e.Driver, e.FileID, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// FileStore reads and writes uploaded attachment blobs.
type FileStore interface {
	Get(ctx context.Context, fileID string) ([]byte, error)
	Put(ctx context.Context, fileID string, data []byte) error
	Delete(ctx context.Context, fileID string) error
}

// Config selects and configures a FileStore driver
type Config struct {
	// Driver is one of "local", "s3" or "http"
	Driver string

	// Local disk settings
	LocalPath string

	// S3 settings, an endpoint means an S3-compatible service such as MinIO
	S3Endpoint   string
	S3Region     string
	S3Bucket     string
	S3AccessKey  string
	S3SecretKey  string
	S3DisableSSL bool
	S3MaxRetries int

	// HTTP file gateway settings
	GatewayURL               string
	GatewayToken             string
	GatewayRequestsPerSecond float64
	GatewayMaxRetries        int
}

// New creates the FileStore for the configured driver
func New(config Config) (FileStore, error) {
	log.Info("Initializing file store: ", config.Driver)

	switch strings.ToLower(config.Driver) {
	case "", "local":
		if config.LocalPath == "" {
			return nil, fmt.Errorf("missing local storage path")
		}
		return NewLocalStore(config.LocalPath)

	case "s3":
		if config.S3Bucket == "" || config.S3Region == "" {
			return nil, fmt.Errorf("missing required S3 configuration")
		}
		log.WithFields(logrus.Fields{
			"bucket":   config.S3Bucket,
			"endpoint": config.S3Endpoint,
		}).Info("Using S3 file store")
		return newS3Store(config)

	case "http":
		if config.GatewayURL == "" {
			return nil, fmt.Errorf("missing file gateway URL")
		}
		log.WithField("url", config.GatewayURL).Info("Using HTTP file gateway")
		return newHTTPStore(config), nil

	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", config.Driver)
	}
}

// SetLogLevel sets the log level for the storage package
func SetLogLevel(level logrus.Level) {
	log.SetLevel(level)
}

func validateFileID(fileID string) error {
	if fileID == "" || strings.ContainsAny(fileID, `/\`) || strings.Contains(fileID, "..") {
		return fmt.Errorf("invalid file id %q", fileID)
	}
	return nil
}

// AddHook registers hook on the logger of the storage package
func AddHook(hook logrus.Hook) {
	log.AddHook(hook)
}
