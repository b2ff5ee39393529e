package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/storage/memory"
)

func TestCatalogRepository_Variations(t *testing.T) {
	ctx := context.Background()
	catalog, product := seedCatalog(t, 5)

	err := catalog.CreateVariation(ctx, domain.Variation{ProductID: product.ID, SKU: "V1"})
	assert.ErrorIs(t, err, domain.ErrDuplicateSKU)

	err = catalog.CreateVariation(ctx, domain.Variation{ProductID: domain.NewID(), SKU: "V9"})
	assert.ErrorIs(t, err, domain.ErrProductNotFound)

	_, err = catalog.GetVariationBySKU(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrVariationNotFound)

	list, err := catalog.ListVariationsByProduct(ctx, product.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "V1", list[0].SKU)
	assert.Equal(t, "V2", list[1].SKU)
}

func TestCatalogRepository_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	catalog := memory.NewCatalogRepository()
	product := domain.Product{ID: domain.NewID(), Name: "Shirt", BasePrice: decimal.NewFromInt(10), Category: domain.CategoryApparel}
	require.NoError(t, catalog.CreateProduct(ctx, product))
	require.NoError(t, catalog.CreateVariation(ctx, domain.Variation{
		ProductID: product.ID, SKU: "S-RED", Attributes: map[string]string{"color": "red"},
	}))

	v, err := catalog.GetVariationBySKU(ctx, "S-RED")
	require.NoError(t, err)
	v.Attributes["color"] = "blue"

	again, err := catalog.GetVariationBySKU(ctx, "S-RED")
	require.NoError(t, err)
	assert.Equal(t, "red", again.Attributes["color"])

	assert.ErrorIs(t, catalog.CreateProduct(ctx, product), domain.ErrAlreadyExists)
	_, err = catalog.GetProduct(ctx, domain.NewID())
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
}

func TestPromotionRepository_ListActiveForProduct(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewPromotionRepository()
	productID := domain.NewID()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	active := domain.Promotion{ID: "p1", Name: "a", StartsAt: now.Add(-time.Hour), EndsAt: now.Add(time.Hour),
		Kind: domain.DiscountPercentage, Value: decimal.NewFromInt(10), ApplicableProductIDs: []string{productID}}
	expired := active
	expired.ID, expired.EndsAt = "p2", now.Add(-time.Minute)
	other := active
	other.ID, other.ApplicableProductIDs = "p3", []string{domain.NewID()}

	for _, p := range []domain.Promotion{active, expired, other} {
		require.NoError(t, repo.Create(ctx, p))
	}

	list, err := repo.ListActiveForProduct(ctx, productID, now)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "p1", list[0].ID)

	_, err = repo.Get(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrPromotionNotFound)
}

func TestUserRepository(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewUserRepository()
	user := domain.User{ID: domain.NewID(), Name: "Ana", Email: "ana@example.com"}

	require.NoError(t, repo.Create(ctx, user))
	assert.ErrorIs(t, repo.Create(ctx, user), domain.ErrAlreadyExists)

	ok, err := repo.Exists(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Exists(ctx, domain.NewID())
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = repo.Get(ctx, domain.NewID())
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestCatalogRepository_ListAndUpdateProducts(t *testing.T) {
	ctx := context.Background()
	catalog, product := seedCatalog(t, 5)
	lamp := domain.Product{ID: domain.NewID(), Name: "Desk Lamp", BasePrice: decimal.NewFromInt(40), Category: domain.CategoryDecor}
	require.NoError(t, catalog.CreateProduct(ctx, lamp))

	minPrice := decimal.NewFromInt(50)
	found, err := catalog.ListProducts(ctx, domain.ProductFilter{MinPrice: &minPrice})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, product.ID, found[0].ID)

	found, err = catalog.ListProducts(ctx, domain.ProductFilter{Name: "lamp"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, lamp.ID, found[0].ID)

	all, err := catalog.ListProducts(ctx, domain.ProductFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Desk Lamp", all[0].Name)

	lamp.BasePrice = decimal.NewFromInt(45)
	require.NoError(t, catalog.UpdateProduct(ctx, lamp))
	got, err := catalog.GetProduct(ctx, lamp.ID)
	require.NoError(t, err)
	assert.True(t, got.BasePrice.Equal(decimal.NewFromInt(45)))

	assert.ErrorIs(t, catalog.UpdateProduct(ctx, domain.Product{ID: domain.NewID()}), domain.ErrProductNotFound)
}

func TestCatalogRepository_AdjustStock(t *testing.T) {
	ctx := context.Background()
	catalog, _ := seedCatalog(t, 5)

	v, err := catalog.AdjustStock(ctx, "V1", 3)
	require.NoError(t, err)
	assert.Equal(t, 8, v.Stock)

	v, err = catalog.AdjustStock(ctx, "V1", -8)
	require.NoError(t, err)
	assert.Zero(t, v.Stock)

	_, err = catalog.AdjustStock(ctx, "V1", -1)
	var stockErr *domain.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 0, stockErr.Available)
	assert.Equal(t, 1, stockErr.Requested)

	_, err = catalog.AdjustStock(ctx, "missing", 1)
	assert.ErrorIs(t, err, domain.ErrVariationNotFound)
}
