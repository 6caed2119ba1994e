package stores

import (
	"context"
	"fmt"

	"designlab/config"
	"designlab/core"
	"designlab/stores/aws"
	"designlab/stores/filesystem"
	"designlab/stores/memory"
	"designlab/stores/postgres"
	"designlab/stores/sqlite"

	"github.com/sirupsen/logrus"
)

// GetStore builds the design store selected by STORAGE_TYPE.
func GetStore(ctx context.Context, cfg *config.Config) (core.DesignStore, error) {
	storageField := logrus.Fields{
		"storageType": cfg.StorageType,
	}

	var (
		store core.DesignStore
		err   error
	)
	switch cfg.StorageType {
	case "filesystem":
		storageField["basePath"] = cfg.LocalStoragePath
		store, err = filesystem.NewStore(cfg.LocalStoragePath)
	case "sqlite":
		storageField["dataSourceName"] = cfg.DataSourceName
		store, err = sqlite.NewStore(cfg.DataSourceName)
	case "postgres":
		store, err = postgres.NewStore(ctx, cfg.DatabaseURL)
	case "s3":
		storageField["bucketName"] = cfg.S3BucketName
		client, cerr := aws.NewClient(ctx)
		if cerr != nil {
			return nil, cerr
		}
		store = aws.NewStore(client, cfg.S3BucketName)
	case "memory", "":
		store = memory.NewStore()
		storageField["storageType"] = "in-memory"
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.StorageType)
	}
	if err != nil {
		return nil, err
	}

	logrus.WithFields(storageField).Info("Use storage")
	return store, nil
}

// GetMediaStore builds the media store selected by MEDIA_STORAGE_TYPE.
func GetMediaStore(ctx context.Context, cfg *config.Config) (core.MediaStore, error) {
	mediaField := logrus.Fields{
		"mediaStorageType": cfg.MediaStorageType,
		"publicURL":        cfg.MediaPublicURL,
	}

	var (
		store core.MediaStore
		err   error
	)
	switch cfg.MediaStorageType {
	case "filesystem", "":
		mediaField["root"] = cfg.MediaPath
		store, err = filesystem.NewMediaStore(cfg.MediaPath, cfg.MediaPublicURL)
	case "memory":
		store = memory.NewMediaStore(cfg.MediaPublicURL)
	case "s3":
		mediaField["bucketName"] = cfg.MediaBucketName
		client, cerr := aws.NewClient(ctx)
		if cerr != nil {
			return nil, cerr
		}
		store = aws.NewMediaStore(client, cfg.MediaBucketName, cfg.MediaPublicURL)
	default:
		return nil, fmt.Errorf("unknown media storage type %q", cfg.MediaStorageType)
	}
	if err != nil {
		return nil, err
	}

	logrus.WithFields(mediaField).Info("Use media storage")
	return store, nil
}
