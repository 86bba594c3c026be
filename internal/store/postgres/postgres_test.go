package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/predictionledger/internal/domain"
)

func TestListQuery(t *testing.T) {
	q, args := listQuery(domain.ListOpts{})
	assert.Equal(t, "SELECT id, event, detail, created_at FROM audit_log WHERE 1=1 ORDER BY created_at DESC, id DESC", q)
	assert.Empty(t, args)

	since := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	q, args = listQuery(domain.ListOpts{Since: &since, Limit: 20, Offset: 40})
	assert.Contains(t, q, "created_at >= $1")
	assert.Contains(t, q, "LIMIT $2")
	assert.Contains(t, q, "OFFSET $3")
	assert.NotContains(t, q, "created_at <=")
	assert.Equal(t, []any{since, 20, 40}, args)
}

func TestMigrationNamesSorted(t *testing.T) {
	names, err := migrationNames()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Equal(t, "001_audit_log.sql", names[0])
	assert.IsNonDecreasing(t, names)
}

func TestNewRejectsEmptyDSN(t *testing.T) {
	_, err := New(context.Background(), ClientConfig{DSN: "  "})
	assert.Error(t, err)
}
