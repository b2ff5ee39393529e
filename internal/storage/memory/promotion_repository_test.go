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

func TestPromotionRepository_ListByState(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewPromotionRepository()
	productID := domain.NewID()
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	promo := func(name string, start time.Time, kind domain.DiscountKind) domain.Promotion {
		p := domain.Promotion{
			ID:                   domain.NewID(),
			Name:                 name,
			StartsAt:             start,
			EndsAt:               start.Add(48 * time.Hour),
			Kind:                 kind,
			Value:                decimal.NewFromInt(10),
			ApplicableProductIDs: []string{productID},
		}
		require.NoError(t, repo.Create(ctx, p))
		return p
	}
	expired := promo("carnival", now.Add(-30*24*time.Hour), domain.DiscountPercentage)
	active := promo("june", now.Add(-time.Hour), domain.DiscountFixedAmount)
	upcoming := promo("black friday", now.Add(24*time.Hour), domain.DiscountPercentage)

	tests := []struct {
		name   string
		filter domain.PromotionFilter
		want   []string
	}{
		{name: "all in start order", filter: domain.PromotionFilter{At: now}, want: []string{expired.ID, active.ID, upcoming.ID}},
		{name: "active", filter: domain.PromotionFilter{State: domain.PromotionActive, At: now}, want: []string{active.ID}},
		{name: "upcoming", filter: domain.PromotionFilter{State: domain.PromotionUpcoming, At: now}, want: []string{upcoming.ID}},
		{name: "expired", filter: domain.PromotionFilter{State: domain.PromotionExpired, At: now}, want: []string{expired.ID}},
		{name: "by kind", filter: domain.PromotionFilter{Kind: domain.DiscountPercentage, At: now}, want: []string{expired.ID, upcoming.ID}},
		{name: "limit", filter: domain.PromotionFilter{At: now, Limit: 1}, want: []string{expired.ID}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := repo.List(ctx, tc.filter)
			require.NoError(t, err)
			ids := make([]string, 0, len(got))
			for _, p := range got {
				ids = append(ids, p.ID)
			}
			assert.Equal(t, tc.want, ids)
		})
	}
}
