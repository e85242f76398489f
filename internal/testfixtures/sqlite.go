package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/example/courtbooking/internal/persistence/sqlite"
)

// NewSQLiteLedger opens a migrated payment ledger in a temporary directory.
// The connection pool is closed when the test ends.
func NewSQLiteLedger(tb testing.TB) *sqlite.PaymentLedger {
	tb.Helper()

	pool, err := sqlite.Open(context.Background(), filepath.Join(tb.TempDir(), "payments.db"))
	if err != nil {
		tb.Fatalf("failed to open payment ledger: %v", err)
	}
	tb.Cleanup(func() {
		_ = pool.Close()
	})
	return sqlite.NewPaymentLedger(pool)
}
