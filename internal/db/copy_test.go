package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyFrom_EmptyRows(t *testing.T) {
	n, err := CopyFrom(context.TODO(), nil, "geocode_rows", []string{"a", "b"}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCopyFrom_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"geocode_rows"}, []string{"run_id", "row_idx"}).WillReturnResult(3)

	rows := [][]any{{"r1", 2}, {"r1", 3}, {"r1", 4}}
	n, err := CopyFrom(context.Background(), mock, "geocode_rows", []string{"run_id", "row_idx"}, rows)
	assert.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"geocode_rows"}, []string{"run_id", "row_idx"}).WillReturnError(fmt.Errorf("copy failed"))

	rows := [][]any{{"r1", 2}}
	_, err = CopyFrom(context.Background(), mock, "geocode_rows", []string{"run_id", "row_idx"}, rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO geocode_rows")
	assert.NoError(t, mock.ExpectationsWereMet())
}
