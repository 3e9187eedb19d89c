package sink

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/pkordes/ride-duration/internal/domain"
)

// S3PutAPI is the part of *s3.Client the S3 sink uses.
type S3PutAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3 uploads each period as a single object. The body is fully encoded in
// memory first, so a failed encode never reaches the bucket and a failed
// upload leaves no object behind.
type S3 struct {
	client S3PutAPI
	bucket string
	key    string
	format Format
}

// NewS3 constructs an S3 sink. key may contain {year} and {month}.
func NewS3(client S3PutAPI, bucket, key string, format Format) *S3 {
	return &S3{client: client, bucket: bucket, key: key, format: format}
}

// Location returns the s3:// uri pattern.
func (s *S3) Location() string { return "s3://" + s.bucket + "/" + s.key }

// Close is a no-op.
func (s *S3) Close() error { return nil }

// Write encodes results and puts them under the period's key.
func (s *S3) Write(ctx context.Context, period domain.Period, results []domain.ScoredRecord) error {
	var buf bytes.Buffer
	if err := encode(&buf, s.format, results); err != nil {
		return fmt.Errorf("sink.S3.Write: %w: encode: %w", domain.ErrSinkWrite, err)
	}

	key := period.Expand(s.key)
	contentType := "application/vnd.apache.parquet"
	if s.format == FormatCSV {
		contentType = "text/csv"
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(buf.Bytes()),
		ContentLength: aws.Int64(int64(buf.Len())),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("sink.S3.Write: %w: s3://%s/%s: %w", domain.ErrSinkWrite, s.bucket, key, err)
	}
	return nil
}
