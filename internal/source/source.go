// Package source loads batches of trip records from files, object storage,
// HTTP URLs, and pushed event payloads. Every loader preserves row order and
// reports failures as domain.ErrSourceUnavailable or domain.ErrSchemaMismatch.
package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/pkordes/ride-duration/internal/domain"
	"github.com/pkordes/ride-duration/internal/objstore"
)

// Source yields one batch of trip records in their original order.
// service.Source is the consumer-side twin of this interface.
type Source interface {
	Load(ctx context.Context) ([]domain.TripRecord, error)
	Location() string
}

// Layout names the column set of a trip file.
type Layout string

const (
	// LayoutFHV is the for-hire-vehicle layout (no trip distance).
	LayoutFHV Layout = "fhv"
	// LayoutYellow is the yellow-taxi layout.
	LayoutYellow Layout = "yellow"
)

// ParseLayout validates a layout name.
func ParseLayout(s string) (Layout, error) {
	switch l := Layout(strings.ToLower(strings.TrimSpace(s))); l {
	case LayoutFHV, LayoutYellow:
		return l, nil
	default:
		return "", fmt.Errorf("%w: unknown trip layout %q (want fhv or yellow)", domain.ErrValidation, s)
	}
}

// columns maps TripRecord fields to the column names of a layout.
// An empty name means the layout has no such column.
type columns struct {
	pickup     string
	dropoff    string
	puLocation string
	doLocation string
	distance   string
}

func (l Layout) columns() columns {
	if l == LayoutYellow {
		return columns{
			pickup:     "tpep_pickup_datetime",
			dropoff:    "tpep_dropoff_datetime",
			puLocation: "PULocationID",
			doLocation: "DOLocationID",
			distance:   "trip_distance",
		}
	}
	return columns{
		pickup:     "pickup_datetime",
		dropoff:    "dropOff_datetime",
		puLocation: "PUlocationID",
		doLocation: "DOlocationID",
	}
}

// Format is the encoding of a batch file.
type Format string

const (
	FormatParquet Format = "parquet"
	FormatCSV     Format = "csv"
)

// FormatOf infers the format from the location's extension. URL query
// strings are ignored.
func FormatOf(location string) (Format, error) {
	p := location
	if u, err := url.Parse(location); err == nil && u.Scheme != "" && len(u.Scheme) > 1 {
		p = u.Path
	}
	switch strings.ToLower(path.Ext(p)) {
	case ".parquet":
		return FormatParquet, nil
	case ".csv":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("%w: cannot infer format of %q (want .parquet or .csv)", domain.ErrSourceUnavailable, location)
	}
}

// Options configures the transports Open may build.
type Options struct {
	// HTTPClient is used for http(s) locations. Defaults to a client with a
	// one-minute timeout.
	HTTPClient *http.Client
	// S3 is used for s3:// locations. When nil a client is built from the
	// default AWS credential chain.
	S3 S3GetAPI
	// S3PathStyle forces path-style addressing on the default client.
	S3PathStyle bool
}

// Open returns the loader for location: s3://bucket/key, http(s)://..., or a
// local path. The format comes from the extension.
func Open(ctx context.Context, location string, layout Layout, opts Options) (Source, error) {
	format, err := FormatOf(location)
	if err != nil {
		return nil, fmt.Errorf("source.Open: %w", err)
	}

	switch {
	case objstore.IsURI(location):
		bucket, key, err := objstore.ParseURI(location)
		if err != nil {
			return nil, fmt.Errorf("source.Open: %w: %w", domain.ErrSourceUnavailable, err)
		}
		client := opts.S3
		if client == nil {
			c, err := objstore.NewClient(ctx, opts.S3PathStyle)
			if err != nil {
				return nil, fmt.Errorf("source.Open: %w: %w", domain.ErrSourceUnavailable, err)
			}
			client = c
		}
		return NewS3(client, bucket, key, format, layout), nil

	case strings.HasPrefix(location, "http://"), strings.HasPrefix(location, "https://"):
		client := opts.HTTPClient
		if client == nil {
			client = &http.Client{Timeout: time.Minute}
		}
		return NewHTTP(client, location, format, layout), nil

	default:
		return NewFile(location, format, layout), nil
	}
}

// decode reads a whole batch from r in the given format and layout.
func decode(r io.ReaderAt, size int64, format Format, layout Layout) ([]domain.TripRecord, error) {
	switch format {
	case FormatParquet:
		if layout == LayoutYellow {
			return readParquet[yellowRow](r, size, layout.columns())
		}
		return readParquet[fhvRow](r, size, layout.columns())
	case FormatCSV:
		return readCSV(io.NewSectionReader(r, 0, size), layout.columns())
	default:
		return nil, fmt.Errorf("%w: unsupported format %q", domain.ErrSourceUnavailable, format)
	}
}

func missingTimestamp(row int, column string) error {
	return fmt.Errorf("%w: row %d has no %s", domain.ErrSchemaMismatch, row, column)
}
