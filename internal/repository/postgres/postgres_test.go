package postgres

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strata/internal/repository"
)

func TestCursorRoundTrip(t *testing.T) {
	a := &Adapter{}
	for _, id := range []int64{1, 42, 1 << 40} {
		cursor := a.EncodeCursor(id)
		got, err := a.DecodeCursor(cursor)
		require.NoError(t, err)
		assert.Equal(t, id, got)
	}

	_, err := a.DecodeCursor("not a cursor")
	assert.Error(t, err)
	_, err = a.DecodeCursor("AAAA")
	assert.Error(t, err)
}

func TestIsUniqueViolation(t *testing.T) {
	a := &Adapter{}
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: repository.ConstraintEntityName}
	wrapped := fmt.Errorf("failed to set entity name: %w", pgErr)

	assert.True(t, a.IsUniqueViolation(wrapped, repository.ConstraintEntityName))
	assert.False(t, a.IsUniqueViolation(wrapped, repository.ConstraintEntityUUID))
	assert.False(t, a.IsUniqueViolation(&pgconn.PgError{Code: "23503"}, repository.ConstraintEntityName))
	assert.False(t, a.IsUniqueViolation(fmt.Errorf("boom"), repository.ConstraintEntityName))
}

func TestRebindIsApplied(t *testing.T) {
	assert.Equal(t, "SELECT $1, $2", repository.RebindDollar("SELECT ?, ?"))
}
