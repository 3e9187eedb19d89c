package sink

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/parquet-go/parquet-go"

	"github.com/pkordes/ride-duration/internal/domain"
)

// Format is the encoding of a result file.
type Format string

const (
	FormatParquet Format = "parquet"
	FormatCSV     Format = "csv"
)

func formatOf(p string) (Format, error) {
	switch strings.ToLower(path.Ext(p)) {
	case ".parquet":
		return FormatParquet, nil
	case ".csv":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("cannot infer output format of %q (want .parquet or .csv)", p)
	}
}

// encode writes results in format to w.
func encode(w io.Writer, format Format, results []domain.ScoredRecord) error {
	switch format {
	case FormatParquet:
		return parquet.Write(w, results)
	case FormatCSV:
		return encodeCSV(w, results)
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

func encodeCSV(w io.Writer, results []domain.ScoredRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"ride_id", "predicted_duration"}); err != nil {
		return err
	}
	for _, r := range results {
		if err := cw.Write([]string{r.RideID, strconv.FormatFloat(r.PredictedDuration, 'g', -1, 64)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// File writes each period to the path its pattern expands to.
type File struct {
	pattern string
	format  Format
}

// NewFile constructs a File sink. pattern may contain {year} and {month}.
func NewFile(pattern string, format Format) *File {
	return &File{pattern: pattern, format: format}
}

// Location returns the path pattern.
func (f *File) Location() string { return f.pattern }

// Close is a no-op.
func (f *File) Close() error { return nil }

// Write encodes results and atomically replaces the period's file.
func (f *File) Write(ctx context.Context, period domain.Period, results []domain.ScoredRecord) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("sink.File.Write: %w: %w", domain.ErrSinkWrite, err)
	}
	dst := period.Expand(f.pattern)
	err := atomicWrite(dst, func(w io.Writer) error {
		return encode(w, f.format, results)
	})
	if err != nil {
		return fmt.Errorf("sink.File.Write: %w: %s: %w", domain.ErrSinkWrite, dst, err)
	}
	return nil
}

// atomicWrite writes to a temporary file next to dst and renames it over dst
// once fully written and synced. On any error the temporary file is removed
// and dst is left as it was.
func atomicWrite(dst string, write func(io.Writer) error) (err error) {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dst)+".tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err = write(tmp); err != nil {
		return err
	}
	if err = tmp.Chmod(0o644); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}
