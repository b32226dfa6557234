// Package ocr defines the extraction collaborator the mapping pipeline
// pulls item fields from. Extraction itself happens elsewhere; this package
// only carries the boundary so runs can backfill items whose extracted
// payload was not stored at intake.
package ocr

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoResult indicates the extractor holds nothing for the requested path.
var ErrNoResult = errors.New("ocr: no extraction result")

// Extractor produces the flat field map for a stored document.
type Extractor interface {
	Extract(ctx context.Context, sourcePath string) (map[string]string, error)
}

// StaticExtractor serves pre-recorded field maps keyed by source path.
type StaticExtractor struct {
	Results map[string]map[string]string
}

// Extract returns the recorded fields for path, or ErrNoResult.
func (s *StaticExtractor) Extract(_ context.Context, sourcePath string) (map[string]string, error) {
	fields, ok := s.Results[sourcePath]
	if !ok {
		return nil, fmt.Errorf("ocr: %q: %w", sourcePath, ErrNoResult)
	}
	out := make(map[string]string, len(fields))
	for name, value := range fields {
		out[name] = value
	}
	return out, nil
}
