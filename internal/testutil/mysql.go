package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/event-seat-reservation/internal/database"
)

// NewTestDB connects to the MySQL database named by TEST_MYSQL_DSN, applies
// the schema and empties every table.  The test is skipped when the
// variable is unset or the server cannot be reached.
func NewTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	dsn := os.Getenv("TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("skipping MySQL integration tests: TEST_MYSQL_DSN is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := database.Open(ctx, database.Params{DSN: dsn})
	if err != nil {
		t.Skipf("skipping MySQL integration tests: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := database.EnsureSchema(ctx, db); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	TruncateAll(t, ctx, db)
	return db
}

// TruncateAll empties every table of the schema.
func TruncateAll(t *testing.T, ctx context.Context, db *sqlx.DB) {
	t.Helper()
	stmts := []string{
		`SET FOREIGN_KEY_CHECKS = 0`,
		`TRUNCATE TABLE seat_holds`,
		`TRUNCATE TABLE bookings`,
		`TRUNCATE TABLE retrieval_codes`,
		`TRUNCATE TABLE event_config`,
		`TRUNCATE TABLE seats`,
		`SET FOREIGN_KEY_CHECKS = 1`,
	}
	conn, err := db.Connx(ctx)
	if err != nil {
		t.Fatalf("acquire connection: %v", err)
	}
	defer conn.Close()
	for _, stmt := range stmts {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("truncate: %v", err)
		}
	}
}
