package storage

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/hugh/easy-diagrams/pkg/config"
)

type S3Mirror struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Mirror uses static keys when configured and the default AWS
// credential chain otherwise.
func NewS3Mirror(ctx context.Context, cfg config.StorageConfig) (*S3Mirror, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return &S3Mirror{
		client: s3.NewFromConfig(awsCfg),
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

func (m *S3Mirror) Put(ctx context.Context, diagramID string, image []byte) error {
	_, err := m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(m.bucket),
		Key:          aws.String(ObjectKey(m.prefix, diagramID)),
		Body:         bytes.NewReader(image),
		ContentType:  aws.String("image/png"),
		CacheControl: aws.String("public, max-age=60"),
	})
	if err != nil {
		return fmt.Errorf("s3 put %s: %w", diagramID, err)
	}
	return nil
}

func (m *S3Mirror) Delete(ctx context.Context, diagramID string) error {
	_, err := m.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(ObjectKey(m.prefix, diagramID)),
	})
	if err != nil {
		return fmt.Errorf("s3 delete %s: %w", diagramID, err)
	}
	return nil
}
