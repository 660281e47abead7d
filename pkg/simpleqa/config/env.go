package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// envConfig is the process environment as read by cleanenv
type envConfig struct {
	Port        string `env:"PORT" env-default:"8080"`
	Environment string `env:"ENVIRONMENT" env-default:"development"`

	DatabaseURL string `env:"DATABASE_URL" env-default:"memory"`
	DBSchema    string `env:"DB_SCHEMA"`

	StorageURL      string `env:"STORAGE_URL" env-default:"memory://"`
	S3Endpoint      string `env:"S3_ENDPOINT"`
	S3UsePathStyle  bool   `env:"S3_USE_PATH_STYLE" env-default:"false"`
	S3CreateBucket  bool   `env:"S3_CREATE_BUCKET" env-default:"false"`
	AWSRegion       string `env:"AWS_REGION"`
	AccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`

	MaxUploadBytes int64 `env:"MAX_UPLOAD_BYTES" env-default:"2000000"`
	BcryptCost     int   `env:"BCRYPT_COST" env-default:"10"`

	EventLogging bool   `env:"EVENT_LOGGING" env-default:"true"`
	AMQPURL      string `env:"AMQP_URL"`
	AMQPQueue    string `env:"AMQP_QUEUE" env-default:"simpleqa.events"`

	LogLevel  string `env:"LOG_LEVEL" env-default:"info"`
	LogFormat string `env:"LOG_FORMAT" env-default:"text"`
}

// WithEnv reads configuration from the process environment. Apply it before
// programmatic options so those can still override individual fields.
//
// Database:
//
//	DATABASE_URL - "memory" (default) or "postgres://..." / "postgresql://..."
//	DB_SCHEMA    - search_path for every pooled connection
//
// Storage:
//
//	STORAGE_URL - one of:
//	              "memory://" (default)
//	              "file:///path/to/data"
//	              "s3://bucket?region=us-east-1&endpoint=http://localhost:9000"
//	S3_ENDPOINT, S3_USE_PATH_STYLE, AWS_REGION, AWS_ACCESS_KEY_ID,
//	AWS_SECRET_ACCESS_KEY fill in what the URL leaves out.
func WithEnv() Option {
	return func(c *ServerConfig) error {
		var env envConfig
		if err := cleanenv.ReadEnv(&env); err != nil {
			return fmt.Errorf("failed to read environment: %w", err)
		}

		c.Port = env.Port
		c.Environment = env.Environment
		c.DBSchema = env.DBSchema
		c.MaxUploadBytes = env.MaxUploadBytes
		c.BcryptCost = env.BcryptCost
		c.EnableEventLogging = env.EventLogging
		c.AMQPURL = env.AMQPURL
		c.AMQPQueue = env.AMQPQueue
		c.LogLevel = strings.ToLower(env.LogLevel)
		c.LogFormat = strings.ToLower(env.LogFormat)

		if err := applyDatabaseURL(env.DatabaseURL, c); err != nil {
			return err
		}
		return applyStorageURL(env, c)
	}
}

// applyDatabaseURL detects the repository type from DATABASE_URL
func applyDatabaseURL(dbURL string, c *ServerConfig) error {
	switch {
	case dbURL == "" || dbURL == "memory":
		c.DatabaseType = "memory"
		c.DatabaseURL = ""
	case strings.HasPrefix(dbURL, "postgresql://"), strings.HasPrefix(dbURL, "postgres://"):
		c.DatabaseType = "postgres"
		c.DatabaseURL = dbURL
	default:
		return fmt.Errorf("unsupported DATABASE_URL format: %s (use 'memory' or 'postgresql://...')", dbURL)
	}
	return nil
}

// applyStorageURL configures the blob store from STORAGE_URL
func applyStorageURL(env envConfig, c *ServerConfig) error {
	raw := env.StorageURL
	if raw == "" || raw == "memory" || raw == "memory://" {
		c.Storage = StorageConfig{Type: "memory"}
		return nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid STORAGE_URL: %w", err)
	}

	switch u.Scheme {
	case "file":
		path := u.Host + u.Path
		if path == "" {
			return fmt.Errorf("filesystem path cannot be empty in STORAGE_URL")
		}
		c.Storage = StorageConfig{Type: "fs", BaseDir: path}
		return nil

	case "s3":
		if u.Host == "" {
			return fmt.Errorf("S3 bucket name cannot be empty in STORAGE_URL")
		}
		q := u.Query()
		storage := StorageConfig{
			Type:            "s3",
			Bucket:          u.Host,
			Region:          firstNonEmpty(q.Get("region"), env.AWSRegion, "us-east-1"),
			Endpoint:        firstNonEmpty(q.Get("endpoint"), env.S3Endpoint),
			AccessKeyID:     env.AccessKeyID,
			SecretAccessKey: env.SecretAccessKey,
			UsePathStyle:    env.S3UsePathStyle || q.Get("path_style") == "true",
			CreateBucket:    env.S3CreateBucket,
		}
		c.Storage = storage
		return nil
	}

	return fmt.Errorf("unsupported STORAGE_URL format: %s (use 'memory://', 'file://...', or 's3://...')", raw)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
