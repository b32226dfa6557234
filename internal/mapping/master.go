package mapping

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/docmapper/docmapper/internal/storage"
	log "github.com/sirupsen/logrus"
)

// ErrFormat indicates the master CSV could not be parsed. A partially
// indexed master dataset is worse than none, so parsing never loads partial
// results.
var ErrFormat = errors.New("mapping: malformed master csv")

// ErrNotFound indicates the master CSV blob does not exist.
var ErrNotFound = errors.New("mapping: master csv not found")

// MasterIndex is the in-memory index over a master dataset, keyed by the
// normalized join-key tuple. It is built once per run and is safe for
// concurrent reads; nothing writes to it after Load returns.
type MasterIndex struct {
	Headers  []string
	RowCount int

	keys  []string
	index map[string]map[string]string
}

// tupleKey builds the lookup key for a normalized join-key tuple. The unit
// separator keeps multi-key tuples unambiguous.
func tupleKey(values []string) string {
	return strings.Join(values, "\x1f")
}

// Lookup returns the master row matching the normalized tuple. A tuple with
// any empty component never matches.
func (m *MasterIndex) Lookup(normalized []string) (map[string]string, bool) {
	for _, v := range normalized {
		if v == "" {
			return nil, false
		}
	}
	row, ok := m.index[tupleKey(normalized)]
	return row, ok
}

// LoadMaster reads the master CSV at path from the store and indexes it by
// the normalized values of joinKeys, in the declared key order. Duplicate
// keys in the source keep the last row, logged as a warning.
func LoadMaster(ctx context.Context, store storage.Store, path string, joinKeys []string, policy NormalizePolicy) (*MasterIndex, error) {
	headers, rows, errRead := readMasterCSV(ctx, store, path)
	if errRead != nil {
		return nil, errRead
	}

	headerSet := make(map[string]struct{}, len(headers))
	for _, h := range headers {
		headerSet[h] = struct{}{}
	}
	for _, key := range joinKeys {
		if _, ok := headerSet[key]; !ok {
			return nil, fmt.Errorf("load master %s: join key %q not in csv headers: %w", path, key, ErrFormat)
		}
	}

	idx := &MasterIndex{
		Headers:  headers,
		RowCount: len(rows),
		keys:     append([]string(nil), joinKeys...),
		index:    make(map[string]map[string]string, len(rows)),
	}

	for rowNum, row := range rows {
		normalized := make([]string, len(joinKeys))
		empty := false
		for i, key := range joinKeys {
			normalized[i] = policy.Normalize(row[key], key)
			if normalized[i] == "" {
				empty = true
			}
		}
		if empty {
			// Blank keys never participate in joins.
			continue
		}
		key := tupleKey(normalized)
		if _, exists := idx.index[key]; exists {
			log.Warnf("load master %s: duplicate join key %q at row %d, last row wins", path, strings.Join(normalized, ","), rowNum+2)
		}
		idx.index[key] = row
	}

	return idx, nil
}

// MasterPreview is the lightweight header/row-count view used by the admin
// preview endpoint. It never builds the join index.
type MasterPreview struct {
	Headers  []string `json:"headers"`
	RowCount int      `json:"row_count"`
}

// PreviewMaster returns headers and row count for the CSV at path.
func PreviewMaster(ctx context.Context, store storage.Store, path string) (*MasterPreview, error) {
	data, errGet := getMasterBytes(ctx, store, path)
	if errGet != nil {
		return nil, errGet
	}

	reader := csv.NewReader(bytes.NewReader(data))
	headers, errHeader := reader.Read()
	if errHeader != nil {
		return nil, fmt.Errorf("preview master %s: read header: %w", path, ErrFormat)
	}
	for i, h := range headers {
		headers[i] = strings.TrimSpace(h)
	}

	count := 0
	for {
		_, errRow := reader.Read()
		if errors.Is(errRow, io.EOF) {
			break
		}
		if errRow != nil {
			return nil, fmt.Errorf("preview master %s: row %d: %v: %w", path, count+2, errRow, ErrFormat)
		}
		count++
	}

	return &MasterPreview{Headers: headers, RowCount: count}, nil
}

// readMasterCSV fetches and fully parses the master CSV. Any unparsable row
// fails the whole load.
func readMasterCSV(ctx context.Context, store storage.Store, path string) ([]string, []map[string]string, error) {
	data, errGet := getMasterBytes(ctx, store, path)
	if errGet != nil {
		return nil, nil, errGet
	}

	reader := csv.NewReader(bytes.NewReader(data))
	headers, errHeader := reader.Read()
	if errHeader != nil {
		return nil, nil, fmt.Errorf("load master %s: read header: %w", path, ErrFormat)
	}
	for i, h := range headers {
		headers[i] = strings.TrimSpace(h)
	}

	var rows []map[string]string
	for {
		record, errRow := reader.Read()
		if errors.Is(errRow, io.EOF) {
			break
		}
		if errRow != nil {
			return nil, nil, fmt.Errorf("load master %s: row %d: %v: %w", path, len(rows)+2, errRow, ErrFormat)
		}
		row := make(map[string]string, len(headers))
		for i, h := range headers {
			row[h] = record[i]
		}
		rows = append(rows, row)
	}

	return headers, rows, nil
}

func getMasterBytes(ctx context.Context, store storage.Store, path string) ([]byte, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("master csv: empty path: %w", ErrNotFound)
	}
	data, errGet := store.Get(ctx, path)
	if errGet != nil {
		if errors.Is(errGet, storage.ErrNotFound) {
			return nil, fmt.Errorf("master csv %s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("master csv %s: %w", path, errGet)
	}
	return data, nil
}
