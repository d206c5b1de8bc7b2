package tabular

import (
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/geocode-cli/internal/model"
)

func sampleRow(name string) map[string]string {
	rec := model.Record{Fields: map[string]string{
		model.ColName:    name,
		model.ColDBA:     "",
		model.ColStreet:  "8983 Potter Road",
		model.ColStreet2: "",
		model.ColCity:    "Des Plaines",
		model.ColState:   "IL",
		model.ColZip:     "60016",
	}}
	return rec.Enriched("8983 POTTER RD, DES PLAINES, IL, 60016", "42.048", "-87.8924")
}

func readBack(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestWriterHeaderAndRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	w, err := NewWriter(path)
	require.NoError(t, err)

	require.NoError(t, w.Write(sampleRow("First Co")))
	require.NoError(t, w.Write(sampleRow("Second Co")))
	require.NoError(t, w.Close())

	rows := readBack(t, path)
	require.Len(t, rows, 3)
	assert.Equal(t, model.OutputColumns, rows[0])
	assert.Equal(t, "First Co", rows[1][0])
	assert.Equal(t, "Second Co", rows[2][0])
	assert.Equal(t, "-87.8924", rows[1][9])
}

func TestWriterExplicitHeaderOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	w, err := NewWriter(path)
	require.NoError(t, err)

	require.NoError(t, w.WriteHeader())
	require.NoError(t, w.Close())

	rows := readBack(t, path)
	require.Len(t, rows, 1)
	assert.Equal(t, model.OutputColumns, rows[0])
}

func TestWriterHeaderExactlyOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	w, err := NewWriter(path)
	require.NoError(t, err)

	require.NoError(t, w.WriteHeader())
	require.NoError(t, w.Write(sampleRow("Only Co")))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), "MATCH_ADDR"))
}

func TestWriterHeaderAfterRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	w, err := NewWriter(path)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Write(sampleRow("Row Co")))
	err = w.WriteHeader()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already written")
}

func TestWriterQuoting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	w, err := NewWriter(path)
	require.NoError(t, err)

	row := sampleRow(`Smith, Jones & "Co"`)
	require.NoError(t, w.Write(row))
	require.NoError(t, w.Close())

	rows := readBack(t, path)
	assert.Equal(t, `Smith, Jones & "Co"`, rows[1][0])
}

func TestWriterRejectsMissingKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	w, err := NewWriter(path)
	require.NoError(t, err)
	defer w.Close()

	row := sampleRow("Partial Co")
	delete(row, model.ColLatY)

	err = w.Write(row)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LAT_Y")
}

func TestWriterRejectsExtraKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	w, err := NewWriter(path)
	require.NoError(t, err)
	defer w.Close()

	row := sampleRow("Extra Co")
	row["SCORE"] = "0.9"

	err = w.Write(row)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SCORE")
}

func TestWriterClosedIsTerminal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	w, err := NewWriter(path)
	require.NoError(t, err)

	require.NoError(t, w.Write(sampleRow("Done Co")))
	require.NoError(t, w.Close())

	err = w.Write(sampleRow("Late Co"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrWriterClosed))

	err = w.WriteHeader()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrWriterClosed))

	// Closing again is a no-op.
	assert.NoError(t, w.Close())
}

func TestWriterRowsCount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	w, err := NewWriter(path)
	require.NoError(t, err)
	defer w.Close()

	assert.Equal(t, 0, w.Rows())
	require.NoError(t, w.Write(sampleRow("A")))
	require.NoError(t, w.Write(sampleRow("B")))
	assert.Equal(t, 2, w.Rows())
}

func TestWriterRowsSurviveWithoutClose(t *testing.T) {
	// Rows are flushed as written, so output is readable even if the
	// process dies before Close.
	path := filepath.Join(t.TempDir(), "out.csv")
	w, err := NewWriter(path)
	require.NoError(t, err)

	require.NoError(t, w.Write(sampleRow("Flushed Co")))

	rows := readBack(t, path)
	require.Len(t, rows, 2)
	assert.Equal(t, "Flushed Co", rows[1][0])
	require.NoError(t, w.Close())
}
