package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"kulumasiina/attachment"
	"kulumasiina/bookkeeping"
	"kulumasiina/export"
	"kulumasiina/report"
	"kulumasiina/storage"
)

// Logger
var log = logrus.New()

// Config holds the values of environment variables
type Config struct {
	Port     int    `default:"8080"`
	LogLevel string `default:"info" split_words:"true"`

	DatabasePath string `default:"db/kulumasiina.db" split_words:"true"`

	StorageDriver    string `default:"local" split_words:"true"`
	StorageLocalPath string `default:"data" split_words:"true"`

	S3Endpoint  string `envconfig:"AWS_S3_ENDPOINT"`
	S3Region    string `envconfig:"AWS_REGION"`
	S3Bucket    string `envconfig:"AWS_S3_BUCKET"`
	S3AccessKey string `envconfig:"AWS_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"AWS_SECRET_ACCESS_KEY"`

	FileGatewayURL   string  `envconfig:"FILE_GATEWAY_URL"`
	FileGatewayToken string  `envconfig:"FILE_GATEWAY_TOKEN"`
	FileGatewayRPS   float64 `envconfig:"FILE_GATEWAY_RPS" default:"10"`

	MileageReimbursementRate decimal.Decimal `default:"0.25" split_words:"true"`
	MileageProductID         string          `envconfig:"MILEAGE_PRODUCT_ID" default:"v2025_kmkorv"`
	OrganizationName         string          `default:"FYYSIKKOKILTA RY" split_words:"true"`
	CompressPDF              bool            `envconfig:"COMPRESS_PDF" default:"true"`

	AttachmentConcurrency int `default:"4" split_words:"true"`
	ExportConcurrency     int `default:"2" split_words:"true"`

	// Zero disables the cleanup of archived entries
	ArchivedEntriesAgeLimitDays int `default:"0" split_words:"true"`

	SentryDSN string `envconfig:"SENTRY_DSN"`
}

// App struct to hold dependencies
type App struct {
	Repo          ClaimStore
	Exporter      Exporter
	Cleaner       ArchiveCleaner
	Store         storage.FileStore
	StorageDriver string
	StartedAt     time.Time

	// ArchiveAgeLimit is how long archived entries are kept
	ArchiveAgeLimit time.Duration
}

func main() {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		log.Fatalf("Error loading env vars: %v", err)
	}

	// Initialize logrus logger
	initLogger(config.LogLevel)

	// Validate Environment Variables
	if err := validateConfig(config); err != nil {
		log.Fatal(err)
	}

	if hook := NewSentryHook(config.SentryDSN); hook != nil {
		addLogHook(hook)
		defer sentry.Flush(2 * time.Second)
	}

	// Initialize file store
	store, err := storage.New(storage.Config{
		Driver:                   config.StorageDriver,
		LocalPath:                config.StorageLocalPath,
		S3Endpoint:               config.S3Endpoint,
		S3Region:                 config.S3Region,
		S3Bucket:                 config.S3Bucket,
		S3AccessKey:              config.S3AccessKey,
		S3SecretKey:              config.S3SecretKey,
		GatewayURL:               config.FileGatewayURL,
		GatewayToken:             config.FileGatewayToken,
		GatewayRequestsPerSecond: config.FileGatewayRPS,
	})
	if err != nil {
		log.Fatalf("Failed to create file store: %v", err)
	}

	// Initialize Database
	repo := NewClaimRepository(InitializeDB(config.DatabasePath))

	// Document pipeline
	normalizer := attachment.NewNormalizer(store, config.AttachmentConcurrency)
	generator := report.NewGenerator(report.Config{
		OrganizationName: config.OrganizationName,
		MileageRate:      config.MileageReimbursementRate,
		Compress:         config.CompressPDF,
	}, normalizer)
	composer := &bookkeeping.Composer{MileageProductID: config.MileageProductID}
	exporter := export.NewService(export.Config{
		MileageRate: config.MileageReimbursementRate,
		Concurrency: config.ExportConcurrency,
	}, generator, composer)

	// Initialize App with dependencies
	app := &App{
		Repo:            repo,
		Exporter:        exporter,
		Cleaner:         repo,
		Store:           store,
		StorageDriver:   strings.ToLower(config.StorageDriver),
		StartedAt:       time.Now(),
		ArchiveAgeLimit: time.Duration(config.ArchivedEntriesAgeLimitDays) * 24 * time.Hour,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if app.ArchiveAgeLimit > 0 {
		StartBackgroundTasks(ctx, app)
	} else {
		log.Infoln("Cleanup of archived entries disabled")
	}

	router := newRouter(app)

	log.Infof("Server started on port :%d", config.Port)
	if err := router.Run(fmt.Sprintf(":%d", config.Port)); err != nil {
		log.Fatalf("Failed to run server: %v", err)
	}
}

func newRouter(app *App) *gin.Engine {
	// Create a Gin router with default middleware (logger and recovery)
	router := gin.Default()
	router.Use(SentryMiddleware())

	// API routes
	api := router.Group("/api")
	{
		api.GET("/health", app.healthHandler)

		api.GET("/entry/multi/csv", app.multiExportHandler)
		api.GET("/entry/multi/zip", app.multiExportHandler)
		api.GET("/entry/multi/paid", app.paidExportHandler)

		api.GET("/entry/:id/pdf", app.entryPDFHandler)
		api.GET("/entry/:id/csv", app.entryCSVHandler)
	}

	return router
}

func initLogger(logLevel string) {
	var level logrus.Level
	switch strings.ToLower(logLevel) {
	case "debug":
		level = logrus.DebugLevel
	case "info", "":
		level = logrus.InfoLevel
	case "warn":
		level = logrus.WarnLevel
	case "error":
		level = logrus.ErrorLevel
	default:
		log.Fatalf("Invalid log level: '%s'.", logLevel)
	}

	log.SetLevel(level)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	storage.SetLogLevel(level)
	attachment.SetLogLevel(level)
	report.SetLogLevel(level)
	bookkeeping.SetLogLevel(level)
	export.SetLogLevel(level)
}

// addLogHook registers hook on the root logger and on every package logger
func addLogHook(hook logrus.Hook) {
	log.AddHook(hook)
	storage.AddHook(hook)
	attachment.AddHook(hook)
	report.AddHook(hook)
	bookkeeping.AddHook(hook)
	export.AddHook(hook)
}

// validateConfig ensures the environment describes a usable setup
func validateConfig(config Config) error {
	if config.Port <= 0 || config.Port > 65535 {
		return fmt.Errorf("please set PORT to a valid port number, got %d", config.Port)
	}

	if !config.MileageReimbursementRate.IsPositive() {
		return fmt.Errorf("please set MILEAGE_REIMBURSEMENT_RATE to a positive number")
	}

	if config.MileageProductID == "" {
		return fmt.Errorf("please set the MILEAGE_PRODUCT_ID environment variable")
	}

	if config.AttachmentConcurrency < 1 || config.ExportConcurrency < 1 {
		return fmt.Errorf("please set ATTACHMENT_CONCURRENCY and EXPORT_CONCURRENCY to at least 1")
	}

	if config.ArchivedEntriesAgeLimitDays < 0 {
		return fmt.Errorf("please set ARCHIVED_ENTRIES_AGE_LIMIT_DAYS to zero or a positive number of days")
	}

	switch strings.ToLower(config.StorageDriver) {
	case "local":
		if config.StorageLocalPath == "" {
			return fmt.Errorf("please set the STORAGE_LOCAL_PATH environment variable")
		}
	case "s3":
		if config.S3Bucket == "" || config.S3Region == "" {
			return fmt.Errorf("please set AWS_S3_BUCKET and AWS_REGION for the s3 storage driver")
		}
	case "http":
		if config.FileGatewayURL == "" {
			return fmt.Errorf("please set FILE_GATEWAY_URL for the http storage driver")
		}
	default:
		return fmt.Errorf("please set STORAGE_DRIVER to 'local', 's3' or 'http'")
	}

	return nil
}
