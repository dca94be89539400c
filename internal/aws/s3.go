package aws

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Store puts report files into an S3 bucket.
type S3Store struct {
	uploader *manager.Uploader
	region   string
	bucket   string
}

// NewS3Store creates a store using static credentials.
func NewS3Store(ctx context.Context, region, accessKey, secretKey, bucket string) (*S3Store, error) {
	if accessKey == "" || secretKey == "" {
		return nil, fmt.Errorf("AWS credentials not set")
	}
	if region == "" {
		return nil, fmt.Errorf("AWS_REGION not set")
	}
	if bucket == "" {
		return nil, fmt.Errorf("S3 bucket name not set")
	}

	awsCfg, err := config.LoadDefaultConfig(
		ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	slog.Info("S3 object store initialized.", "bucket", bucket, "region", region)
	return &S3Store{
		uploader: manager.NewUploader(s3.NewFromConfig(awsCfg)),
		region:   region,
		bucket:   bucket,
	}, nil
}

// Put uploads data to key and returns the object's public URL.
func (s *S3Store) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	ctxUpload, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	_, err := s.uploader.Upload(ctxUpload, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("s3 upload failed: %w", err)
	}
	return PublicURL(s.bucket, s.region, key), nil
}

// PublicURL returns the virtual-hosted URL of an S3 object.
func PublicURL(bucket, region, key string) string {
	u := url.URL{
		Scheme: "https",
		Host:   bucket + ".s3." + region + ".amazonaws.com",
		Path:   "/" + strings.TrimPrefix(key, "/"),
	}
	return u.String()
}
