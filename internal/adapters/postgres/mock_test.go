package postgres

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v3"
)

// newPoolMock builds a pgx pool mock that is closed when the test ends.
func newPoolMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(mock.Close)
	return mock
}

// setupMockContext stores the mock as the active transaction so conn()
// resolves to it instead of a live pool.
func setupMockContext(mock pgxmock.PgxPoolIface) context.Context {
	return context.WithValue(context.Background(), txKey, mock)
}
