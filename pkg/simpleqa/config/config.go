package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/tendant/simple-qa/pkg/simpleqa"
	"github.com/tendant/simple-qa/pkg/simpleqa/events"
	amqpevents "github.com/tendant/simple-qa/pkg/simpleqa/events/amqp"
	"github.com/tendant/simple-qa/pkg/simpleqa/repo/memory"
	repopg "github.com/tendant/simple-qa/pkg/simpleqa/repo/postgres"
	fsstorage "github.com/tendant/simple-qa/pkg/simpleqa/storage/fs"
	memorystorage "github.com/tendant/simple-qa/pkg/simpleqa/storage/memory"
	s3storage "github.com/tendant/simple-qa/pkg/simpleqa/storage/s3"
	"golang.org/x/crypto/bcrypt"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:           "8080",
		Environment:    "development",
		DatabaseType:   "memory",
		Storage:        StorageConfig{Type: "memory"},
		MaxUploadBytes: simpleqa.DefaultMaxUploadBytes,
		BcryptCost:     bcrypt.DefaultCost,
		AMQPQueue:      amqpevents.DefaultQueue,
		LogLevel:       "info",
		LogFormat:      "text",

		EnableEventLogging: true,
	}
}

// ServerConfig represents server configuration for the simple-qa service
type ServerConfig struct {
	Port        string
	Environment string // development, production, testing

	// Database configuration
	DatabaseURL  string
	DatabaseType string // "memory", "postgres"
	DBSchema     string // Postgres schema to use; empty keeps the server default

	// Blob storage configuration
	Storage StorageConfig

	// Lifecycle limits
	MaxUploadBytes int64
	BcryptCost     int

	// Events
	EnableEventLogging bool
	AMQPURL            string // empty disables publishing
	AMQPQueue          string
	Registerer         prometheus.Registerer // nil disables event metrics

	// Logging
	LogLevel  string // debug, info, warn, error
	LogFormat string // text, json
}

// StorageConfig selects and configures the blob store
type StorageConfig struct {
	Type string // "memory", "fs", "s3"

	// fs
	BaseDir string

	// s3
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	CreateBucket    bool
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	if c.DatabaseType != "memory" && c.DatabaseType != "postgres" {
		return errors.New("database_type must be 'memory' or 'postgres'")
	}

	if c.DatabaseType == "postgres" && c.DatabaseURL == "" {
		return errors.New("database_url is required when using postgres")
	}

	switch c.Storage.Type {
	case "memory":
	case "fs":
		if c.Storage.BaseDir == "" {
			return errors.New("base directory is required for fs storage")
		}
	case "s3":
		if c.Storage.Bucket == "" {
			return errors.New("bucket is required for s3 storage")
		}
	default:
		return fmt.Errorf("unsupported storage type: %s", c.Storage.Type)
	}

	if c.MaxUploadBytes <= 0 {
		return errors.New("max_upload_bytes must be positive")
	}

	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("bcrypt_cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}

	if c.LogFormat != "text" && c.LogFormat != "json" {
		return errors.New("log_format must be 'text' or 'json'")
	}

	return nil
}

// Components holds everything Build wired together. Close releases the
// database pool and broker connection.
type Components struct {
	Service     simpleqa.Service
	Repository  simpleqa.Repository
	BlobStore   simpleqa.BlobStore
	Attachments *simpleqa.Attachments
	Pool        *pgxpool.Pool // nil for the memory repository

	closers []func()
}

// Close releases resources in reverse order of acquisition
func (c *Components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

// BuildService creates a Service instance from the server configuration
func (c *ServerConfig) BuildService(ctx context.Context) (simpleqa.Service, error) {
	components, err := c.Build(ctx, slog.Default())
	if err != nil {
		return nil, err
	}
	return components.Service, nil
}

// Build creates the repository, blob store, event sinks and service
func (c *ServerConfig) Build(ctx context.Context, logger *slog.Logger) (*Components, error) {
	if logger == nil {
		logger = slog.Default()
	}
	components := &Components{}

	repo, pool, err := c.buildRepository(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build repository: %w", err)
	}
	components.Repository = repo
	if pool != nil {
		components.Pool = pool
		components.closers = append(components.closers, pool.Close)
	}

	store, err := c.buildStorageBackend(ctx)
	if err != nil {
		components.Close()
		return nil, fmt.Errorf("failed to build storage backend %s: %w", c.Storage.Type, err)
	}
	components.BlobStore = store

	sink, err := c.buildEventSink(logger, components)
	if err != nil {
		components.Close()
		return nil, fmt.Errorf("failed to build event sink: %w", err)
	}

	svc, err := simpleqa.New(
		simpleqa.WithRepository(repo),
		simpleqa.WithBlobStore(store),
		simpleqa.WithEventSink(sink),
		simpleqa.WithLogger(logger),
		simpleqa.WithMaxUploadBytes(c.MaxUploadBytes),
		simpleqa.WithBcryptCost(c.BcryptCost),
	)
	if err != nil {
		components.Close()
		return nil, err
	}
	components.Service = svc
	components.Attachments = simpleqa.NewAttachments(repo, store, simpleqa.AttachmentsConfig{
		MaxUploadBytes: c.MaxUploadBytes,
		EventSink:      sink,
		Logger:         logger,
	})

	return components, nil
}

// buildRepository creates a Repository based on the configuration
func (c *ServerConfig) buildRepository(ctx context.Context) (simpleqa.Repository, *pgxpool.Pool, error) {
	switch c.DatabaseType {
	case "memory":
		return memory.New(), nil, nil
	case "postgres":
		pool, err := NewPool(ctx, c.DatabaseURL, c.DBSchema)
		if err != nil {
			return nil, nil, err
		}
		return repopg.NewWithPool(pool), pool, nil
	default:
		return nil, nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}

// NewPool opens a pgx pool, sets search_path when schema is given and pings
// the server.
func NewPool(ctx context.Context, databaseURL, schema string) (*pgxpool.Pool, error) {
	if databaseURL == "" {
		return nil, errors.New("database_url is required")
	}
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
	}
	if schema != "" {
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			_, err := conn.Exec(ctx, "SET search_path TO "+pgx.Identifier{schema}.Sanitize())
			return err
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	return pool, nil
}

// buildStorageBackend creates a BlobStore based on the storage configuration
func (c *ServerConfig) buildStorageBackend(ctx context.Context) (simpleqa.BlobStore, error) {
	switch c.Storage.Type {
	case "memory":
		return memorystorage.New(), nil

	case "fs":
		return fsstorage.New(fsstorage.Config{BaseDir: c.Storage.BaseDir})

	case "s3":
		return s3storage.New(ctx, s3storage.Config{
			Region:                 c.Storage.Region,
			Bucket:                 c.Storage.Bucket,
			AccessKeyID:            c.Storage.AccessKeyID,
			SecretAccessKey:        c.Storage.SecretAccessKey,
			Endpoint:               c.Storage.Endpoint,
			UsePathStyle:           c.Storage.UsePathStyle,
			CreateBucketIfNotExist: c.Storage.CreateBucket,
		})

	default:
		return nil, fmt.Errorf("unsupported storage type: %s", c.Storage.Type)
	}
}

func (c *ServerConfig) buildEventSink(logger *slog.Logger, components *Components) (simpleqa.EventSink, error) {
	var sinks []simpleqa.EventSink

	if c.EnableEventLogging {
		sinks = append(sinks, simpleqa.NewLoggingEventSink(logger))
	}
	if c.Registerer != nil {
		sinks = append(sinks, events.NewMetricsSink(c.Registerer))
	}
	if c.AMQPURL != "" {
		publisher, err := amqpevents.Dial(c.AMQPURL, c.AMQPQueue)
		if err != nil {
			return nil, err
		}
		components.closers = append(components.closers, func() {
			if err := publisher.Close(); err != nil {
				logger.Warn("failed to close event publisher", "error", err)
			}
		})
		sinks = append(sinks, publisher)
	}

	if len(sinks) == 0 {
		return simpleqa.NewNoopEventSink(), nil
	}
	return events.NewMulti(sinks...), nil
}
