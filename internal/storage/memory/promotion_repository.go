package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

type promotionRepositoryInMemory struct {
	mu     sync.RWMutex
	promos map[string]domain.Promotion
}

// NewPromotionRepository создаёт in-memory реализацию PromotionRepository.
func NewPromotionRepository() domain.PromotionRepository {
	return &promotionRepositoryInMemory{promos: make(map[string]domain.Promotion)}
}

func (r *promotionRepositoryInMemory) Create(_ context.Context, promotion domain.Promotion) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.promos[promotion.ID]; exists {
		return domain.ErrAlreadyExists
	}
	r.promos[promotion.ID] = clonePromotion(promotion)
	return nil
}

func (r *promotionRepositoryInMemory) Get(_ context.Context, id string) (domain.Promotion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	promotion, ok := r.promos[id]
	if !ok {
		return domain.Promotion{}, domain.ErrPromotionNotFound
	}
	return clonePromotion(promotion), nil
}

// ListActiveForProduct отдаёт акции в порядке начала, чтобы результат не зависел от обхода map.
func (r *promotionRepositoryInMemory) ListActiveForProduct(_ context.Context, productID string, now time.Time) ([]domain.Promotion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Promotion, 0)
	for _, promotion := range r.promos {
		if promotion.ActiveAt(now) && promotion.AppliesTo(productID) {
			result = append(result, clonePromotion(promotion))
		}
	}
	sortPromotions(result)
	return result, nil
}

// List возвращает акции по фильтру в порядке начала.
func (r *promotionRepositoryInMemory) List(_ context.Context, filter domain.PromotionFilter) ([]domain.Promotion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Promotion, 0)
	for _, promotion := range r.promos {
		if filter.Matches(promotion) {
			result = append(result, clonePromotion(promotion))
		}
	}
	sortPromotions(result)
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func sortPromotions(promos []domain.Promotion) {
	sort.Slice(promos, func(i, j int) bool {
		if !promos[i].StartsAt.Equal(promos[j].StartsAt) {
			return promos[i].StartsAt.Before(promos[j].StartsAt)
		}
		return promos[i].ID < promos[j].ID
	})
}

func clonePromotion(src domain.Promotion) domain.Promotion {
	dst := src
	dst.ApplicableProductIDs = append([]string(nil), src.ApplicableProductIDs...)
	return dst
}

var _ domain.PromotionRepository = (*promotionRepositoryInMemory)(nil)
