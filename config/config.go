// Package config reads the service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	// Design storage: memory, filesystem, sqlite, postgres or s3.
	StorageType      string `env:"STORAGE_TYPE,default=memory"`
	LocalStoragePath string `env:"LOCAL_STORAGE_PATH,default=./data"`
	DataSourceName   string `env:"DATA_SOURCE_NAME,default=designlab.db"`
	DatabaseURL      string `env:"DATABASE_URL"`
	S3BucketName     string `env:"S3_BUCKET_NAME"`

	// Media storage: memory, filesystem or s3.
	MediaStorageType string `env:"MEDIA_STORAGE_TYPE,default=filesystem"`
	MediaPath        string `env:"MEDIA_PATH,default=./media"`
	MediaBucketName  string `env:"MEDIA_BUCKET_NAME"`
	MediaPublicURL   string `env:"MEDIA_PUBLIC_URL,default=/media"`
	MaxUploadBytes   int64  `env:"MAX_UPLOAD_BYTES,default=10485760"`

	CatalogPath   string `env:"CATALOG_PATH,default=./catalog.yaml"`
	DefaultTenant string `env:"DEFAULT_TENANT,default=default"`

	CanvasWidth    int           `env:"CANVAS_WIDTH,default=800"`
	CanvasHeight   int           `env:"CANVAS_HEIGHT,default=600"`
	ImageTimeout   time.Duration `env:"IMAGE_FETCH_TIMEOUT,default=10s"`
	RenderCache    string        `env:"RENDER_CACHE,default=memory"`
	RenderCacheTTL time.Duration `env:"RENDER_CACHE_TTL,default=1h"`
	RedisURL       string        `env:"REDIS_URL"`

	// Extra hosts artwork may be fetched from, separated by semicolons. Our own media URLs
	// are always allowed.
	ImageHosts []string `env:"IMAGE_HOSTS"`

	JWTSecret          string `env:"JWT_SECRET"`
	GitHubClientID     string `env:"GITHUB_CLIENT_ID"`
	GitHubClientSecret string `env:"GITHUB_CLIENT_SECRET"`
	GitHubRedirectURL  string `env:"GITHUB_REDIRECT_URL"`
	OIDCIssuerURL      string `env:"OIDC_ISSUER_URL"`
	OIDCClientID       string `env:"OIDC_CLIENT_ID"`
	OIDCClientSecret   string `env:"OIDC_CLIENT_SECRET"`
	OIDCRedirectURL    string `env:"OIDC_REDIRECT_URL"`

	UploadRatePerMinute float64 `env:"UPLOAD_RATE_PER_MINUTE,default=30"`
	UploadRateBurst     int     `env:"UPLOAD_RATE_BURST,default=5"`
}

// Load reads an optional .env file and decodes the environment into a Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found")
	}
	return FromEnv()
}

func FromEnv() (*Config, error) {
	var cfg Config
	// Defaults still apply when no variable is set at all.
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.StorageType {
	case "memory", "filesystem", "sqlite":
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL must be set for postgres storage type")
		}
	case "s3":
		if c.S3BucketName == "" {
			return errors.New("S3_BUCKET_NAME must be set for s3 storage type")
		}
	default:
		return fmt.Errorf("unknown STORAGE_TYPE %q", c.StorageType)
	}

	switch c.MediaStorageType {
	case "memory", "filesystem":
	case "s3":
		if c.MediaBucketName == "" {
			return errors.New("MEDIA_BUCKET_NAME must be set for s3 media storage")
		}
	default:
		return fmt.Errorf("unknown MEDIA_STORAGE_TYPE %q", c.MediaStorageType)
	}

	switch c.RenderCache {
	case "none", "memory":
	case "redis":
		if c.RedisURL == "" {
			return errors.New("REDIS_URL must be set for the redis render cache")
		}
	default:
		return fmt.Errorf("unknown RENDER_CACHE %q", c.RenderCache)
	}

	if c.CanvasWidth <= 0 || c.CanvasHeight <= 0 {
		return fmt.Errorf("canvas size must be positive, got %dx%d", c.CanvasWidth, c.CanvasHeight)
	}
	return nil
}
