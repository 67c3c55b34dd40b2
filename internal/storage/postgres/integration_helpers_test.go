package postgres

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// integrationDSN берёт DSN тестовой базы из окружения; без него тест пропускается.
func integrationDSN(t *testing.T) string {
	t.Helper()
	for _, key := range []string{"COFFEE_POSTGRES_TEST_DSN", "COFFEE_POSTGRES_DSN"} {
		if dsn := strings.TrimSpace(os.Getenv(key)); dsn != "" {
			return dsn
		}
	}
	t.Skip("COFFEE_POSTGRES_TEST_DSN is not set")
	return ""
}

// openIntegrationStore открывает базу без миграций.
func openIntegrationStore(t *testing.T) *Store {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	store, err := Open(ctx, integrationDSN(t))
	if err != nil {
		t.Skipf("postgres is not available: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// openMigratedStore открывает базу, применяет все миграции и очищает таблицы.
func openMigratedStore(t *testing.T) *Store {
	t.Helper()
	store := openIntegrationStore(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, store.MigrateUp(ctx, 0))

	_, err := store.DB().ExecContext(ctx, `
		TRUNCATE idempotency_keys, outbox_messages, timeline_events,
			order_line_items, orders,
			sellers, suppliers, importers, customers,
			coffees, coffee_types, streets, districts
		RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
	return store
}
