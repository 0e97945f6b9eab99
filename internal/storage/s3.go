package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/brazil-data-cube/bdc-collection-builder-sub001/config"
)

// Uploader pushes published scene files to the object store.
type Uploader struct {
	client *s3.Client
	bucket string
}

func NewUploader(ctx context.Context, conf config.StorageConfig) (*Uploader, error) {
	if conf.S3BucketName == "" {
		return nil, errors.New("s3 bucket name is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(conf.S3Region),
	}
	if conf.AwsAccessKeyId != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(conf.AwsAccessKeyId, conf.AwsSecretAccessKey, "")))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if conf.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(conf.S3Endpoint)
			o.UsePathStyle = true
		}
	})

	return &Uploader{client: client, bucket: conf.S3BucketName}, nil
}

// Upload puts one local file under key. The key defaults to the file's base
// name when empty.
func (u *Uploader) Upload(ctx context.Context, filePath, key string) error {
	if key == "" {
		key = filepath.Base(filePath)
	}

	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
		Body:   file,
	})
	return err
}

// Exists checks the object store for an already-uploaded key with the
// expected size, so a re-dispatched upload can short-circuit.
func (u *Uploader) Exists(ctx context.Context, key string, size int64) (bool, error) {
	head, err := u.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		// HeadObject on a missing key errors; treat every error as absent
		// and let the subsequent put surface real failures.
		return false, nil
	}
	if head.ContentLength != nil && *head.ContentLength != size {
		return false, fmt.Errorf("object %s exists with size %d, expected %d", key, *head.ContentLength, size)
	}
	return true, nil
}
