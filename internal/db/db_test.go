package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyFrom_EmptyRows(t *testing.T) {
	n, err := CopyFrom(context.TODO(), nil, "overlay_tiles", []string{"key", "mass"}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCopyFrom_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"overlay_tiles"}, []string{"key", "zone1", "mass"}).WillReturnResult(2)

	rows := [][]any{{"k", "A", 1.5}, {"k", "B", 2.5}}
	n, err := CopyFrom(context.Background(), mock, "overlay_tiles", []string{"key", "zone1", "mass"}, rows)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"overlay_tiles"}, []string{"key"}).WillReturnError(fmt.Errorf("copy failed"))

	_, err = CopyFrom(context.Background(), mock, "overlay_tiles", []string{"key"}, [][]any{{"k"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO overlay_tiles")
	assert.NoError(t, mock.ExpectationsWereMet())
}
