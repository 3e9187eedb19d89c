package source

import (
	"context"
	"fmt"
	"os"

	"github.com/pkordes/ride-duration/internal/domain"
)

// File loads a batch from a local parquet or CSV file.
type File struct {
	path   string
	format Format
	layout Layout
}

// NewFile constructs a File loader.
func NewFile(path string, format Format, layout Layout) *File {
	return &File{path: path, format: format, layout: layout}
}

// Location returns the file path.
func (f *File) Location() string { return f.path }

// Load reads the whole file.
func (f *File) Load(ctx context.Context) ([]domain.TripRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fh, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("source.File.Load: %w: %w", domain.ErrSourceUnavailable, err)
	}
	defer fh.Close()

	st, err := fh.Stat()
	if err != nil {
		return nil, fmt.Errorf("source.File.Load: %w: %w", domain.ErrSourceUnavailable, err)
	}
	records, err := decode(fh, st.Size(), f.format, f.layout)
	if err != nil {
		return nil, fmt.Errorf("source.File.Load: %w", err)
	}
	return records, nil
}
