// Package sink publishes scored batches. Every sink either makes the whole
// result set visible at its destination or leaves the destination untouched;
// failures match domain.ErrSinkWrite.
//
// Locations are templates: {year} and {month} are expanded per written
// period, so one sink serves a whole backfill.
package sink

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/pkordes/ride-duration/internal/domain"
	"github.com/pkordes/ride-duration/internal/objstore"
)

// Sink writes complete result sets. Close releases any connection it holds.
type Sink interface {
	Write(ctx context.Context, period domain.Period, results []domain.ScoredRecord) error
	Location() string
	Close() error
}

// Options configures the transports Open may build.
type Options struct {
	// S3 is used for s3:// locations; nil builds a client from the default
	// AWS credential chain.
	S3 S3PutAPI
	// S3PathStyle forces path-style addressing on the default client.
	S3PathStyle bool
	// MQTTClientID names the publishing client for mqtt:// locations.
	MQTTClientID string
}

// Open returns the sink for location:
//
//	s3://bucket/key.parquet          single PutObject
//	sqlite:///path/to/scores.db      one transaction
//	postgres://user@host/db          one transaction (predictions table)
//	redis://host:6379/0?key=...      MULTI/EXEC list replace + publish
//	mqtt://host:1883/topic           one message
//	path/to/{year}-{month}.parquet   temp file + rename (.parquet or .csv)
func Open(ctx context.Context, location string, opts Options) (Sink, error) {
	scheme, _, _ := strings.Cut(location, "://")
	if scheme == location {
		scheme = ""
	}

	switch scheme {
	case "s3":
		bucket, key, err := objstore.ParseURI(location)
		if err != nil {
			return nil, fmt.Errorf("sink.Open: %w", err)
		}
		format, err := formatOf(key)
		if err != nil {
			return nil, fmt.Errorf("sink.Open: %w", err)
		}
		client := opts.S3
		if client == nil {
			c, err := objstore.NewClient(ctx, opts.S3PathStyle)
			if err != nil {
				return nil, fmt.Errorf("sink.Open: %w", err)
			}
			client = c
		}
		return NewS3(client, bucket, key, format), nil

	case "sqlite":
		return OpenSQLite(ctx, strings.TrimPrefix(location, "sqlite://"))

	case "postgres", "postgresql":
		return OpenPostgres(ctx, location)

	case "redis", "rediss":
		return OpenRedis(ctx, location)

	case "mqtt", "tcp", "ssl", "ws", "wss":
		u, err := url.Parse(location)
		if err != nil {
			return nil, fmt.Errorf("sink.Open: %w", err)
		}
		topic := strings.TrimPrefix(u.Path, "/")
		if topic == "" {
			return nil, fmt.Errorf("sink.Open: %q has no topic path", location)
		}
		if u.Scheme == "mqtt" {
			u.Scheme = "tcp"
		}
		broker := u.Scheme + "://" + u.Host
		return OpenMQTT(ctx, broker, topic, opts.MQTTClientID)

	case "":
		format, err := formatOf(location)
		if err != nil {
			return nil, fmt.Errorf("sink.Open: %w", err)
		}
		return NewFile(location, format), nil

	default:
		return nil, fmt.Errorf("sink.Open: unsupported location scheme %q", scheme)
	}
}
