package tabular

import (
	"io"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/geocode-cli/internal/model"
)

// xlsxReader serves spreadsheet input through the Reader interface.
// The file is loaded up front (the format is not streamable), then
// rows are handed out one at a time with the same numbering and
// field-count rules as the delimited reader.
type xlsxReader struct {
	header []string
	rows   [][]string
	pos    int
	row    int
}

func newXLSXReader(path string, opts Options) (*xlsxReader, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "tabular: open xlsx %s", path)
	}

	sheet, err := pickSheet(f, opts.SheetName)
	if err != nil {
		return nil, err
	}
	if len(sheet.Rows) == 0 {
		return nil, eris.New("tabular: input file is empty")
	}

	r := &xlsxReader{row: 1}
	r.header = canonicalHeader(rowToStrings(sheet.Rows[0]), opts.FieldMap)
	if err := validateHeader(r.header); err != nil {
		return nil, err
	}

	for _, row := range sheet.Rows[1:] {
		r.rows = append(r.rows, rowToStrings(row))
	}
	return r, nil
}

func pickSheet(f *xlsx.File, name string) (*xlsx.Sheet, error) {
	if name != "" {
		sheet, ok := f.Sheet[name]
		if !ok {
			return nil, eris.Errorf("tabular: xlsx sheet %q not found", name)
		}
		return sheet, nil
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("tabular: xlsx has no sheets")
	}
	return f.Sheets[0], nil
}

func (r *xlsxReader) Read() (model.Record, error) {
	if r.pos >= len(r.rows) {
		return model.Record{}, io.EOF
	}
	raw := r.rows[r.pos]
	r.pos++
	r.row++

	// The format drops trailing blank cells, so short rows are padded;
	// rows longer than the header are still malformed.
	if len(raw) > len(r.header) {
		return model.Record{}, eris.Wrapf(ErrFieldCount,
			"tabular: row %d has %d fields, header has %d", r.row, len(raw), len(r.header))
	}
	for len(raw) < len(r.header) {
		raw = append(raw, "")
	}
	return model.Record{Row: r.row, Fields: mapRow(r.header, raw)}, nil
}

func (r *xlsxReader) Close() error {
	return nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for i, cell := range row.Cells {
		cells[i] = cell.String()
	}
	return cells
}
