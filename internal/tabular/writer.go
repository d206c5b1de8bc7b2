package tabular

import (
	"encoding/csv"
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/geocode-cli/internal/model"
)

// writerState tracks the writer lifecycle: Created, HeaderWritten,
// RowsWritten, Closed. Closed is terminal.
type writerState int

const (
	stateCreated writerState = iota
	stateHeaderWritten
	stateRowsWritten
	stateClosed
)

// Writer appends geocoded records to a CSV file in the fixed output
// column order. The header is written exactly once before any row;
// each row is flushed as it is written so partial output survives an
// aborted run.
type Writer struct {
	f       *os.File
	csv     *csv.Writer
	columns []string
	state   writerState
	rows    int
}

// NewWriter creates (or truncates) the output file at path.
func NewWriter(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, eris.Wrapf(err, "tabular: create output %s", path)
	}
	return &Writer{
		f:       f,
		csv:     csv.NewWriter(f),
		columns: model.OutputColumns,
	}, nil
}

// WriteHeader emits the column header row. Write calls it implicitly,
// but callers that may produce zero rows call it up front so even an
// empty run yields a well-formed file.
func (w *Writer) WriteHeader() error {
	switch w.state {
	case stateClosed:
		return eris.Wrap(ErrWriterClosed, "tabular: write header")
	case stateHeaderWritten, stateRowsWritten:
		return eris.New("tabular: header already written")
	}
	if err := w.csv.Write(w.columns); err != nil {
		return eris.Wrap(err, "tabular: write header")
	}
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return eris.Wrap(err, "tabular: write header")
	}
	w.state = stateHeaderWritten
	return nil
}

// Write appends one record. The row must supply exactly the output
// column set.
func (w *Writer) Write(row map[string]string) error {
	if w.state == stateClosed {
		return eris.Wrap(ErrWriterClosed, "tabular: write row")
	}
	if w.state == stateCreated {
		if err := w.WriteHeader(); err != nil {
			return err
		}
	}
	if err := w.validateRow(row); err != nil {
		return err
	}

	vals := make([]string, len(w.columns))
	for i, col := range w.columns {
		vals[i] = row[col]
	}
	if err := w.csv.Write(vals); err != nil {
		return eris.Wrap(err, "tabular: write row")
	}
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return eris.Wrap(err, "tabular: write row")
	}

	w.state = stateRowsWritten
	w.rows++
	return nil
}

func (w *Writer) validateRow(row map[string]string) error {
	var missing, extra []string
	for _, col := range w.columns {
		if _, ok := row[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(row) > len(w.columns)-len(missing) {
		want := make(map[string]bool, len(w.columns))
		for _, col := range w.columns {
			want[col] = true
		}
		for k := range row {
			if !want[k] {
				extra = append(extra, k)
			}
		}
		sort.Strings(extra)
	}
	if len(missing) > 0 || len(extra) > 0 {
		return eris.Errorf("tabular: row keys do not match output columns (missing [%s], extra [%s])",
			strings.Join(missing, " "), strings.Join(extra, " "))
	}
	return nil
}

// Rows returns the number of data rows written so far.
func (w *Writer) Rows() int {
	return w.rows
}

// Close flushes buffered output and releases the file. Closing an
// already-closed writer is a no-op.
func (w *Writer) Close() error {
	if w.state == stateClosed {
		return nil
	}
	w.state = stateClosed

	w.csv.Flush()
	flushErr := w.csv.Error()
	closeErr := w.f.Close()
	if flushErr != nil {
		return eris.Wrap(flushErr, "tabular: flush output")
	}
	if closeErr != nil {
		return eris.Wrap(closeErr, "tabular: close output")
	}
	return nil
}
