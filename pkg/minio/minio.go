package minio

import (
	"context"
	"time"

	"outreach-controlplane/pkg/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Client = fx.Module("minio.client", fx.Provide(registerClient))

// registerClient returns nil when MINIO.ENABLE is off; consumers treat that as
// exports disabled.
func registerClient(c *config.Config) (*minio.Client, error) {
	if !c.Minio.Enable {
		return nil, nil
	}

	client, err := minio.New(c.Minio.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(c.Minio.AccessKey, c.Minio.SecretKey, ""),
		Secure: c.Minio.Secure,
	})
	if err != nil {
		zap.L().Error("failed to create MinIO client", zap.Error(err))
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	log := zap.L().With(zap.String("endpoint", c.Minio.Endpoint), zap.String("bucket", c.Minio.BucketName))
	exists, err := client.BucketExists(ctx, c.Minio.BucketName)
	if err != nil {
		log.Error("failed to check if bucket exists", zap.Error(err))
		return nil, err
	}
	if !exists {
		if err := client.MakeBucket(ctx, c.Minio.BucketName, minio.MakeBucketOptions{}); err != nil {
			log.Error("failed to create bucket", zap.Error(err))
			return nil, err
		}
		log.Info("MinIO bucket created")
	}

	log.Info("MinIO client initialized")
	return client, nil
}
