// Package tabular reads and writes the delimited address files a
// geocoding run consumes and produces.
package tabular

import (
	"encoding/csv"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/sells-group/geocode-cli/internal/model"
)

var (
	// ErrFieldCount marks a data row whose field count differs from the header's.
	ErrFieldCount = errors.New("row field count differs from header")
	// ErrMissingColumn marks a header lacking one of the required columns.
	ErrMissingColumn = errors.New("required column missing from header")
	// ErrWriterClosed marks a write attempted after Close.
	ErrWriterClosed = errors.New("writer is closed")
)

// Reader yields input records in file order. Implementations own an
// explicit row counter: the header is row 1, so the first record
// returned carries Row == 2.
type Reader interface {
	// Read returns the next record, or io.EOF after the last one.
	Read() (model.Record, error)
	// Close releases the underlying file.
	Close() error
}

// Options configures how an input file is opened and parsed.
type Options struct {
	Delimiter rune      // field separator, default ','
	Encoding  string    // IANA charset name, default utf-8
	FieldMap  *FieldMap // optional header aliasing
	SheetName string    // xlsx only, default first sheet
}

// Open opens path with the right reader for its extension: .xlsx files
// load through the spreadsheet reader, everything else parses as
// delimited text.
func Open(path string, opts Options) (Reader, error) {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return newXLSXReader(path, opts)
	}
	return newCSVReader(path, opts)
}

type csvReader struct {
	f      *os.File
	csv    *csv.Reader
	header []string
	row    int // last consumed source row; the header is row 1
}

func newCSVReader(path string, opts Options) (*csvReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "tabular: open input %s", path)
	}

	var src io.Reader = f
	if enc := opts.Encoding; enc != "" && !strings.EqualFold(enc, "utf-8") {
		e, err := htmlindex.Get(enc)
		if err != nil {
			f.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "tabular: unsupported encoding %q", enc)
		}
		src = e.NewDecoder().Reader(f)
	}

	cr := csv.NewReader(src)
	if opts.Delimiter != 0 {
		cr.Comma = opts.Delimiter
	}
	// Field counts are checked against the header explicitly, so row
	// numbers can be reported.
	cr.FieldsPerRecord = -1

	r := &csvReader{f: f, csv: cr}
	if err := r.readHeader(opts.FieldMap); err != nil {
		f.Close() //nolint:errcheck
		return nil, err
	}
	return r, nil
}

func (r *csvReader) readHeader(fm *FieldMap) error {
	raw, err := r.csv.Read()
	if err == io.EOF {
		return eris.New("tabular: input file is empty")
	}
	if err != nil {
		return eris.Wrap(err, "tabular: read header")
	}
	r.row = 1
	r.header = canonicalHeader(raw, fm)
	return validateHeader(r.header)
}

func (r *csvReader) Read() (model.Record, error) {
	raw, err := r.csv.Read()
	if err == io.EOF {
		return model.Record{}, io.EOF
	}
	if err != nil {
		return model.Record{}, eris.Wrapf(err, "tabular: read row %d", r.row+1)
	}
	r.row++
	if len(raw) != len(r.header) {
		return model.Record{}, eris.Wrapf(ErrFieldCount,
			"tabular: row %d has %d fields, header has %d", r.row, len(raw), len(r.header))
	}
	return model.Record{Row: r.row, Fields: mapRow(r.header, raw)}, nil
}

func (r *csvReader) Close() error {
	if err := r.f.Close(); err != nil {
		return eris.Wrap(err, "tabular: close input")
	}
	return nil
}

// canonicalHeader trims header cells and applies field-map aliases.
// Excel exports prepend a BOM to the first cell; strip it before
// matching names.
func canonicalHeader(raw []string, fm *FieldMap) []string {
	header := make([]string, len(raw))
	for i, h := range raw {
		if i == 0 {
			h = strings.TrimPrefix(h, "﻿")
		}
		header[i] = fm.Apply(strings.TrimSpace(h))
	}
	return header
}

func validateHeader(header []string) error {
	have := make(map[string]bool, len(header))
	for _, h := range header {
		have[h] = true
	}
	var missing []string
	for _, col := range model.RequiredColumns {
		if !have[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return eris.Wrapf(ErrMissingColumn, "tabular: header missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// mapRow pairs each header with the corresponding value in the row.
func mapRow(header []string, row []string) map[string]string {
	fields := make(map[string]string, len(header))
	for i, h := range header {
		fields[h] = row[i]
	}
	return fields
}
