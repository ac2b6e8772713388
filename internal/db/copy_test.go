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
	n, err := CopyFrom(context.Background(), nil, "links", []string{"source", "url"}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCopyFrom_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"storemap", "links"}, []string{"source", "url"}).WillReturnResult(2)

	rows := [][]any{{"aldi_sued", "https://a"}, {"aldi_sued", "https://b"}}
	n, err := CopyFrom(context.Background(), mock, "storemap.links", []string{"source", "url"}, rows)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"links"}, []string{"url"}).WillReturnError(fmt.Errorf("permission denied"))

	_, err = CopyFrom(context.Background(), mock, "links", []string{"url"}, [][]any{{"x"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO links")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdentifier(t *testing.T) {
	assert.Equal(t, `"links"`, identifier("links").Sanitize())
	assert.Equal(t, `"storemap"."locations"`, identifier("storemap.locations").Sanitize())
}
