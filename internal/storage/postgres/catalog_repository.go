package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

type catalogRepository struct {
	db *sql.DB
}

// NewCatalogRepository создаёт PostgreSQL-реализацию CatalogRepository.
func NewCatalogRepository(store *Store) domain.CatalogRepository {
	return &catalogRepository{db: store.DB()}
}

func (r *catalogRepository) CreateProduct(ctx context.Context, product domain.Product) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO products (id, name, description, base_price, category, brand, registered_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`,
		product.ID, product.Name, product.Description, product.BasePrice,
		string(product.Category), product.Brand, product.RegisteredAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

const productColumns = `id, name, description, base_price, category, brand, registered_at`

func (r *catalogRepository) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	product, err := scanProduct(r.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, err
	}
	return product, nil
}

func (r *catalogRepository) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var cond conditions
	if filter.Name != "" {
		cond.add(`position(lower(?) in lower(name)) > 0`, filter.Name)
	}
	if filter.Category != "" {
		cond.add(`category = ?`, string(filter.Category))
	}
	if filter.MinPrice != nil {
		cond.add(`base_price >= ?`, *filter.MinPrice)
	}
	if filter.MaxPrice != nil {
		cond.add(`base_price <= ?`, *filter.MaxPrice)
	}
	query := `SELECT ` + productColumns + ` FROM products` + cond.where() + ` ORDER BY name ASC, id ASC` + cond.limit(filter.Limit)

	rows, err := r.db.QueryContext(ctx, query, cond.args...)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Product, 0)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, product)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return result, nil
}

// UpdateProduct не трогает registered_at: дата регистрации задаётся один раз.
func (r *catalogRepository) UpdateProduct(ctx context.Context, product domain.Product) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE products
		SET name = $1,
		    description = $2,
		    base_price = $3,
		    category = $4,
		    brand = $5
		WHERE id = $6
	`,
		product.Name, product.Description, product.BasePrice,
		string(product.Category), product.Brand, product.ID,
	)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var (
		product  domain.Product
		category string
	)
	if err := row.Scan(
		&product.ID, &product.Name, &product.Description, &product.BasePrice,
		&category, &product.Brand, &product.RegisteredAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, err
		}
		return domain.Product{}, fmt.Errorf("scan product: %w", err)
	}
	product.Category = domain.Category(category)
	product.RegisteredAt = product.RegisteredAt.UTC()
	return product, nil
}

func (r *catalogRepository) CreateVariation(ctx context.Context, variation domain.Variation) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	attributes, images, err := encodeVariationJSON(variation)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO variations (id, product_id, sku, attributes, price_delta, stock, image_urls)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`,
		variation.ID, variation.ProductID, variation.SKU, attributes,
		variation.PriceDelta, variation.Stock, images,
	)
	if err != nil {
		switch {
		case isForeignKeyViolation(err):
			return domain.ErrProductNotFound
		case isUniqueViolation(err) && uniqueConstraint(err) == "variations_sku_key":
			return domain.ErrDuplicateSKU
		case isUniqueViolation(err):
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("insert variation: %w", err)
	}
	return nil
}

const variationColumns = `id, product_id, sku, attributes, price_delta, stock, image_urls`

func (r *catalogRepository) GetVariationBySKU(ctx context.Context, sku string) (domain.Variation, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `SELECT `+variationColumns+` FROM variations WHERE sku = $1`, sku)
	variation, err := scanVariation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Variation{}, domain.ErrVariationNotFound
		}
		return domain.Variation{}, err
	}
	return variation, nil
}

func (r *catalogRepository) ListVariationsByProduct(ctx context.Context, productID string) ([]domain.Variation, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+variationColumns+`
		FROM variations
		WHERE product_id = $1
		ORDER BY sku ASC
	`, productID)
	if err != nil {
		return nil, fmt.Errorf("list variations: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Variation, 0)
	for rows.Next() {
		variation, err := scanVariation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, variation)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate variations: %w", err)
	}
	return result, nil
}

// AdjustStock меняет остаток одним условным UPDATE, поэтому конкурирует с Place без гонок.
func (r *catalogRepository) AdjustStock(ctx context.Context, sku string, delta int) (domain.Variation, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	variation, err := scanVariation(r.db.QueryRowContext(ctx, `
		UPDATE variations
		SET stock = stock + $1
		WHERE sku = $2
		  AND stock + $1 >= 0
		RETURNING `+variationColumns,
		delta, sku,
	))
	if err == nil {
		return variation, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.Variation{}, fmt.Errorf("adjust stock for %s: %w", sku, err)
	}

	var available int
	err = r.db.QueryRowContext(ctx, `SELECT stock FROM variations WHERE sku = $1`, sku).Scan(&available)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Variation{}, domain.ErrVariationNotFound
		}
		return domain.Variation{}, fmt.Errorf("read stock for %s: %w", sku, err)
	}
	return domain.Variation{}, &domain.InsufficientStockError{SKU: sku, Available: available, Requested: -delta}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVariation(row rowScanner) (domain.Variation, error) {
	var (
		variation  domain.Variation
		attributes []byte
		images     []byte
	)
	if err := row.Scan(
		&variation.ID, &variation.ProductID, &variation.SKU, &attributes,
		&variation.PriceDelta, &variation.Stock, &images,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Variation{}, err
		}
		return domain.Variation{}, fmt.Errorf("scan variation: %w", err)
	}

	variation.Attributes = map[string]string{}
	if err := json.Unmarshal(attributes, &variation.Attributes); err != nil {
		return domain.Variation{}, fmt.Errorf("decode attributes of %s: %w", variation.SKU, err)
	}
	variation.ImageURLs = []string{}
	if err := json.Unmarshal(images, &variation.ImageURLs); err != nil {
		return domain.Variation{}, fmt.Errorf("decode image urls of %s: %w", variation.SKU, err)
	}
	return variation, nil
}

func encodeVariationJSON(variation domain.Variation) (string, string, error) {
	attrs := variation.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}
	images := variation.ImageURLs
	if images == nil {
		images = []string{}
	}

	attrsRaw, err := json.Marshal(attrs)
	if err != nil {
		return "", "", fmt.Errorf("marshal attributes: %w", err)
	}
	imagesRaw, err := json.Marshal(images)
	if err != nil {
		return "", "", fmt.Errorf("marshal image urls: %w", err)
	}
	return string(attrsRaw), string(imagesRaw), nil
}

var _ domain.CatalogRepository = (*catalogRepository)(nil)
