// Package objstore holds the S3 plumbing shared by batch sources and sinks.
package objstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const scheme = "s3://"

// IsURI reports whether location names an S3 object.
func IsURI(location string) bool {
	return strings.HasPrefix(location, scheme)
}

// ParseURI splits "s3://bucket/key/path" into bucket and key.
func ParseURI(location string) (bucket, key string, err error) {
	if !IsURI(location) {
		return "", "", fmt.Errorf("objstore.ParseURI: %q is not an s3 uri", location)
	}
	rest := strings.TrimPrefix(location, scheme)
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("objstore.ParseURI: %q must be s3://bucket/key", location)
	}
	return bucket, key, nil
}

// NewClient builds an S3 client from the default AWS credential chain.
// AWS_ENDPOINT_URL_S3 points it at an S3-compatible store; pathStyle is
// usually required for those.
func NewClient(ctx context.Context, pathStyle bool) (*s3.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("objstore.NewClient: %w", err)
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = pathStyle
	}), nil
}
