package s3store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"github.com/zlnvch/garden/awsconfig"
	"github.com/zlnvch/garden/logging"
	"github.com/zlnvch/garden/objectstore"
)

type S3ObjectStore struct {
	client  *s3.Client
	bucket  string
	baseURL string
}

// NewS3ObjectStore checks the bucket is reachable. publicBaseURL prefixes
// returned object URLs; when empty the bucket's virtual-host URL is used, or
// the emulator path in dev mode.
func NewS3ObjectStore(ctx context.Context, devMode bool, s3Endpoint string, bucket string, publicBaseURL string) (*S3ObjectStore, error) {
	cfg, err := awsconfig.Load(ctx, devMode)
	if err != nil {
		return nil, err
	}

	endpoint := awsconfig.Endpoint(devMode, s3Endpoint)
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = endpoint
		// Local emulators don't resolve bucket subdomains
		o.UsePathStyle = endpoint != nil
	})

	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); err != nil {
		return nil, fmt.Errorf("bucket %q not reachable: %w", bucket, err)
	}

	baseURL := strings.TrimSuffix(publicBaseURL, "/")
	if baseURL == "" {
		if endpoint != nil {
			baseURL = strings.TrimSuffix(*endpoint, "/") + "/" + bucket
		} else {
			baseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", bucket, cfg.Region)
		}
	}

	return &S3ObjectStore{client: client, bucket: bucket, baseURL: baseURL}, nil
}

func (s3Store *S3ObjectStore) Upload(ctx context.Context, filename string, data []byte, contentType string) (objectstore.Object, error) {
	_, err := s3Store.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(s3Store.bucket),
		Key:          aws.String(filename),
		Body:         bytes.NewReader(data),
		ContentType:  aws.String(contentType),
		CacheControl: aws.String(objectstore.CacheControl),
		// Conditional write: reject instead of replacing an existing key
		IfNoneMatch: aws.String("*"),
	})
	if err != nil {
		if isExistsError(err) {
			return objectstore.Object{}, fmt.Errorf("%s: %w", filename, objectstore.ErrObjectExists)
		}
		logging.Logger.Error("s3 upload failed", zap.String("key", filename), zap.Error(err))
		return objectstore.Object{}, fmt.Errorf("failed to upload object: %w", err)
	}

	return objectstore.Object{
		URL:  s3Store.baseURL + "/" + filename,
		Path: filename,
	}, nil
}

func isExistsError(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "PreconditionFailed", "ConditionalRequestConflict":
		return true
	}
	return false
}
