package awsconfig

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

// Load returns the AWS config shared by the store, object and queue clients.
// Dev mode uses dummy static credentials so local emulators accept requests.
func Load(ctx context.Context, devMode bool) (aws.Config, error) {
	if devMode {
		return config.LoadDefaultConfig(ctx,
			config.WithRegion("us-east-1"),
			config.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider("dummy", "dummy", ""),
			),
		)
	}

	// Production/Fargate: default chain (Task Role and AWS endpoints)
	return config.LoadDefaultConfig(ctx)
}

// Endpoint returns the override for a local emulator, or nil for the AWS
// default.
func Endpoint(devMode bool, endpoint string) *string {
	if !devMode || endpoint == "" {
		return nil
	}
	return aws.String(endpoint)
}
