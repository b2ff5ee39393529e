package postgres

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// Интеграционные тесты запускаются только при заданном SHOP_POSTGRES_TEST_DSN.
func openPostgresStoreForIntegrationTest(t *testing.T) *Store {
	t.Helper()

	store := openRawPostgresStoreForIntegrationTest(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := store.MigrateUp(ctx, 0); err != nil {
		t.Fatalf("migrate up: %v", err)
	}
	truncateAllTablesForIntegrationTest(t, store)

	return store
}

func openRawPostgresStoreForIntegrationTest(t *testing.T) *Store {
	t.Helper()

	dsn := strings.TrimSpace(os.Getenv("SHOP_POSTGRES_TEST_DSN"))
	if dsn == "" {
		t.Skip("SHOP_POSTGRES_TEST_DSN is not set, skipping postgres integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open postgres store: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func truncateAllTablesForIntegrationTest(t *testing.T, store *Store) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := store.DB().ExecContext(ctx, `
		TRUNCATE TABLE
			idempotency_keys,
			outbox_messages,
			timeline_events,
			order_items,
			orders,
			promotion_products,
			promotions,
			variations,
			products,
			users
		RESTART IDENTITY CASCADE
	`)
	if err != nil {
		t.Fatalf("truncate integration tables: %v", err)
	}
}

// seedCatalog создаёт пользователя, товар и вариацию с заданным остатком.
func seedCatalog(t *testing.T, store *Store, sku string, stock int) (domain.User, domain.Product, domain.Variation) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	user := domain.User{
		ID:           domain.NewID(),
		Name:         "Ana",
		Email:        "ana@example.com",
		RegisteredAt: now,
		ShippingAddress: domain.Address{
			Street: "Rua A", Number: "10", City: "Recife", State: "PE", PostalCode: "50000-000",
		},
	}
	if err := NewUserRepository(store).Create(ctx, user); err != nil {
		t.Fatalf("create user: %v", err)
	}

	product := domain.Product{
		ID:           domain.NewID(),
		Name:         "T-shirt",
		BasePrice:    decimal.RequireFromString("100.00"),
		Category:     domain.CategoryApparel,
		RegisteredAt: now,
	}
	catalog := NewCatalogRepository(store)
	if err := catalog.CreateProduct(ctx, product); err != nil {
		t.Fatalf("create product: %v", err)
	}

	variation := domain.Variation{
		ID:         domain.NewID(),
		ProductID:  product.ID,
		SKU:        sku,
		Attributes: map[string]string{"size": "M"},
		PriceDelta: decimal.RequireFromString("10.00"),
		Stock:      stock,
		ImageURLs:  []string{"https://cdn.example.com/v1.png"},
	}
	if err := catalog.CreateVariation(ctx, variation); err != nil {
		t.Fatalf("create variation: %v", err)
	}
	return user, product, variation
}
