// Package dataset persists crawl output as a record-oriented JSON array and a
// flattened CSV table, and reads both back for downstream analysis.
package dataset

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/JakeFAU/openrice-crawler/internal/crawler"
)

// ColumnMode selects how the CSV header is derived.
type ColumnMode string

const (
	// ColumnsFirst takes the header from the first row; fields only later
	// rows carry are not written.
	ColumnsFirst ColumnMode = "first"
	// ColumnsUnion takes the header from every row's fields in first-seen order.
	ColumnsUnion ColumnMode = "union"
)

// Content types for dataset artifacts.
const (
	ContentTypeJSON = "application/json; charset=utf-8"
	ContentTypeCSV  = "text/csv; charset=utf-8"
)

// Config controls Sink behavior.
type Config struct {
	Columns        ColumnMode
	SkipValidation bool
}

// Paths names the files Write produces. An empty path skips that format.
type Paths struct {
	JSON string
	CSV  string
}

// Artifact describes one written file.
type Artifact struct {
	Path        string
	ContentType string
	Bytes       int
}

// Sink writes datasets to the local filesystem.
type Sink struct {
	cfg    Config
	logger *zap.Logger
}

// NewSink builds a Sink. An unknown column mode is rejected.
func NewSink(cfg Config, logger *zap.Logger) (*Sink, error) {
	switch cfg.Columns {
	case "":
		cfg.Columns = ColumnsFirst
	case ColumnsFirst, ColumnsUnion:
	default:
		return nil, fmt.Errorf("unknown csv column mode %q", cfg.Columns)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{cfg: cfg, logger: logger}, nil
}

// Write persists records to every path set in paths. Any failure is a
// *PersistenceError.
func (s *Sink) Write(ctx context.Context, records []crawler.ListingRecord, paths Paths) ([]Artifact, error) {
	var artifacts []Artifact
	if paths.JSON != "" {
		if err := ctx.Err(); err != nil {
			return artifacts, persistErr("write", paths.JSON, err)
		}
		n, err := s.WriteJSON(paths.JSON, records)
		if err != nil {
			return artifacts, err
		}
		artifacts = append(artifacts, Artifact{Path: paths.JSON, ContentType: ContentTypeJSON, Bytes: n})
	}
	if paths.CSV != "" {
		if err := ctx.Err(); err != nil {
			return artifacts, persistErr("write", paths.CSV, err)
		}
		n, err := s.WriteCSV(paths.CSV, RecordRows(records))
		if err != nil {
			return artifacts, err
		}
		artifacts = append(artifacts, Artifact{Path: paths.CSV, ContentType: ContentTypeCSV, Bytes: n})
	}
	return artifacts, nil
}

// EncodeJSON renders records as a 4-space indented array with non-ASCII text
// and HTML characters written verbatim.
func EncodeJSON(records []crawler.ListingRecord) ([]byte, error) {
	if records == nil {
		records = []crawler.ListingRecord{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(records); err != nil {
		return nil, fmt.Errorf("encode dataset: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteJSON validates and writes records to path, returning the byte count.
func (s *Sink) WriteJSON(path string, records []crawler.ListingRecord) (int, error) {
	data, err := EncodeJSON(records)
	if err != nil {
		return 0, persistErr("encode", path, err)
	}
	if !s.cfg.SkipValidation {
		if err := Validate(data); err != nil {
			return 0, persistErr("validate", path, err)
		}
	}
	if err := writeFileAtomic(path, data); err != nil {
		return 0, persistErr("write", path, err)
	}
	s.logger.Info("dataset written",
		zap.String("format", "json"),
		zap.String("path", path),
		zap.Int("records", len(records)),
		zap.Int("bytes", len(data)),
	)
	return len(data), nil
}

// WriteCSV flattens rows to path. An empty input produces an empty file and
// a warning rather than an error.
func (s *Sink) WriteCSV(path string, rows []Row) (int, error) {
	if len(rows) == 0 {
		s.logger.Warn("no rows to write; creating empty csv", zap.String("path", path))
		if err := writeFileAtomic(path, nil); err != nil {
			return 0, persistErr("write", path, err)
		}
		return 0, nil
	}
	header := Columns(rows, s.cfg.Columns)
	if s.cfg.Columns == ColumnsFirst {
		if missing := droppedFields(rows, header); len(missing) > 0 {
			s.logger.Warn("fields absent from the first row are not written",
				zap.String("path", path),
				zap.Strings("fields", missing),
			)
		}
	}
	var buf bytes.Buffer
	if err := EncodeCSV(&buf, header, rows); err != nil {
		return 0, persistErr("encode", path, err)
	}
	if err := writeFileAtomic(path, buf.Bytes()); err != nil {
		return 0, persistErr("write", path, err)
	}
	s.logger.Info("dataset written",
		zap.String("format", "csv"),
		zap.String("path", path),
		zap.Int("rows", len(rows)),
		zap.Int("columns", len(header)),
		zap.Int("bytes", buf.Len()),
	)
	return buf.Len(), nil
}

// Columns derives the CSV header for rows under mode.
func Columns(rows []Row, mode ColumnMode) []string {
	if len(rows) == 0 {
		return nil
	}
	if mode != ColumnsUnion {
		return append([]string(nil), rows[0].Fields...)
	}
	seen := make(map[string]struct{})
	var header []string
	for _, row := range rows {
		for _, field := range row.Fields {
			if _, ok := seen[field]; ok {
				continue
			}
			seen[field] = struct{}{}
			header = append(header, field)
		}
	}
	return header
}

func droppedFields(rows []Row, header []string) []string {
	kept := make(map[string]struct{}, len(header))
	for _, h := range header {
		kept[h] = struct{}{}
	}
	var missing []string
	for _, field := range Columns(rows, ColumnsUnion) {
		if _, ok := kept[field]; !ok {
			missing = append(missing, field)
		}
	}
	return missing
}

// EncodeCSV writes header and rows to w; absent values are empty cells.
func EncodeCSV(w io.Writer, header []string, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	record := make([]string, len(header))
	for _, row := range rows {
		for i, field := range header {
			record[i] = row.Get(field)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// ReadJSON loads a dataset written by WriteJSON.
func ReadJSON(path string) ([]crawler.ListingRecord, error) {
	// #nosec G304 -- dataset paths come from operator configuration.
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset %s: %w", path, err)
	}
	var records []crawler.ListingRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode dataset %s: %w", path, err)
	}
	return records, nil
}

// ReadRows loads a CSV table. An empty file yields no rows and no error.
func ReadRows(path string) ([]Row, error) {
	// #nosec G304 -- dataset paths come from operator configuration.
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open table %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return DecodeCSV(f)
}

// DecodeCSV reads a header row followed by data rows.
func DecodeCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	var rows []Row
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row %d: %w", len(rows)+1, err)
		}
		row := NewRow()
		for i, field := range header {
			if i < len(record) {
				row.Set(field, record[i])
			}
		}
		rows = append(rows, row)
	}
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
