package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

type promotionRepository struct {
	db *sql.DB
}

// NewPromotionRepository создаёт PostgreSQL-реализацию PromotionRepository.
func NewPromotionRepository(store *Store) domain.PromotionRepository {
	return &promotionRepository{db: store.DB()}
}

func (r *promotionRepository) Create(ctx context.Context, promotion domain.Promotion) (err error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO promotions (id, name, starts_at, ends_at, kind, value)
		VALUES ($1,$2,$3,$4,$5,$6)
	`,
		promotion.ID, promotion.Name, promotion.StartsAt, promotion.EndsAt,
		string(promotion.Kind), promotion.Value,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("insert promotion: %w", err)
	}

	for i, productID := range promotion.ApplicableProductIDs {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO promotion_products (promotion_id, product_id, position)
			VALUES ($1,$2,$3)
		`, promotion.ID, productID, i); err != nil {
			return fmt.Errorf("insert promotion product: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create promotion: %w", err)
	}
	return nil
}

func (r *promotionRepository) Get(ctx context.Context, id string) (domain.Promotion, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		promotion domain.Promotion
		kind      string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, starts_at, ends_at, kind, value
		FROM promotions
		WHERE id = $1
	`, id).Scan(&promotion.ID, &promotion.Name, &promotion.StartsAt, &promotion.EndsAt, &kind, &promotion.Value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Promotion{}, domain.ErrPromotionNotFound
		}
		return domain.Promotion{}, fmt.Errorf("select promotion: %w", err)
	}
	promotion.Kind = domain.DiscountKind(kind)
	promotion.StartsAt = promotion.StartsAt.UTC()
	promotion.EndsAt = promotion.EndsAt.UTC()

	if promotion.ApplicableProductIDs, err = r.loadProducts(ctx, promotion.ID); err != nil {
		return domain.Promotion{}, err
	}
	return promotion, nil
}

// ListActiveForProduct сортирует по началу акции и id, как и in-memory реализация.
func (r *promotionRepository) ListActiveForProduct(ctx context.Context, productID string, now time.Time) ([]domain.Promotion, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return r.queryPromotions(ctx, `
		SELECT p.id, p.name, p.starts_at, p.ends_at, p.kind, p.value
		FROM promotions p
		JOIN promotion_products pp ON pp.promotion_id = p.id
		WHERE pp.product_id = $1
		  AND p.starts_at <= $2
		  AND p.ends_at >= $2
		ORDER BY p.starts_at ASC, p.id ASC
	`, productID, now)
}

func (r *promotionRepository) List(ctx context.Context, filter domain.PromotionFilter) ([]domain.Promotion, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var cond conditions
	if filter.Kind != "" {
		cond.add(`kind = ?`, string(filter.Kind))
	}
	switch filter.State {
	case domain.PromotionActive:
		cond.add(`starts_at <= ?`, filter.At)
		cond.add(`ends_at >= ?`, filter.At)
	case domain.PromotionUpcoming:
		cond.add(`starts_at > ?`, filter.At)
	case domain.PromotionExpired:
		cond.add(`ends_at < ?`, filter.At)
	}
	query := `SELECT id, name, starts_at, ends_at, kind, value FROM promotions` +
		cond.where() + ` ORDER BY starts_at ASC, id ASC` + cond.limit(filter.Limit)
	return r.queryPromotions(ctx, query, cond.args...)
}

func (r *promotionRepository) queryPromotions(ctx context.Context, query string, args ...any) ([]domain.Promotion, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list promotions: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Promotion, 0)
	for rows.Next() {
		var (
			promotion domain.Promotion
			kind      string
		)
		if err := rows.Scan(&promotion.ID, &promotion.Name, &promotion.StartsAt, &promotion.EndsAt, &kind, &promotion.Value); err != nil {
			return nil, fmt.Errorf("scan promotion: %w", err)
		}
		promotion.Kind = domain.DiscountKind(kind)
		promotion.StartsAt = promotion.StartsAt.UTC()
		promotion.EndsAt = promotion.EndsAt.UTC()
		result = append(result, promotion)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate promotions: %w", err)
	}
	rows.Close()

	for i := range result {
		if result[i].ApplicableProductIDs, err = r.loadProducts(ctx, result[i].ID); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (r *promotionRepository) loadProducts(ctx context.Context, promotionID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT product_id
		FROM promotion_products
		WHERE promotion_id = $1
		ORDER BY position ASC
	`, promotionID)
	if err != nil {
		return nil, fmt.Errorf("load promotion products: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan promotion product: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate promotion products: %w", err)
	}
	return ids, nil
}

var _ domain.PromotionRepository = (*promotionRepository)(nil)
