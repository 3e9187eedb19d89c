package source

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/pkordes/ride-duration/internal/domain"
)

// S3GetAPI is the part of *s3.Client the S3 loader uses.
type S3GetAPI interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3 loads a batch file from an S3 object.
type S3 struct {
	client S3GetAPI
	bucket string
	key    string
	format Format
	layout Layout
}

// NewS3 constructs an S3 loader.
func NewS3(client S3GetAPI, bucket, key string, format Format, layout Layout) *S3 {
	return &S3{client: client, bucket: bucket, key: key, format: format, layout: layout}
}

// Location returns the s3:// uri.
func (s *S3) Location() string { return "s3://" + s.bucket + "/" + s.key }

// Load downloads and decodes the object.
func (s *S3) Load(ctx context.Context) ([]domain.TripRecord, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		return nil, fmt.Errorf("source.S3.Load: %w: %w", domain.ErrSourceUnavailable, err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("source.S3.Load: %w: read body: %w", domain.ErrSourceUnavailable, err)
	}

	records, err := decode(bytes.NewReader(body), int64(len(body)), s.format, s.layout)
	if err != nil {
		return nil, fmt.Errorf("source.S3.Load: %w", err)
	}
	return records, nil
}
