package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

// Place в одной транзакции вставляет заказ и условно списывает остатки.
// UPDATE ... WHERE stock >= qty не даёт уйти в минус при конкурентных заказах,
// а CHECK (stock >= 0) в схеме страхует на уровне БД.
func (r *orderRepository) Place(ctx context.Context, order domain.Order) (err error) {
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

	_, demand := domain.StockDemand(order.Items)
	// Фиксированный порядок блокировок строк исключает взаимные deadlock между заказами.
	skus := make([]string, 0, len(demand))
	for sku := range demand {
		skus = append(skus, sku)
	}
	sort.Strings(skus)

	for _, sku := range skus {
		if err = decrementStockTx(ctx, tx, sku, demand[sku]); err != nil {
			return err
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (
			id, user_id, status, payment_method, total, version, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`,
		order.ID, order.UserID, string(order.Status), string(order.PaymentMethod),
		order.Total, order.Version, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return domain.ErrAlreadyExists
		case isForeignKeyViolation(err):
			return domain.ErrUserNotFound
		}
		return fmt.Errorf("insert order: %w", err)
	}

	for i, item := range order.Items {
		attributes, marshalErr := json.Marshal(nonNilAttributes(item.Attributes))
		if marshalErr != nil {
			err = fmt.Errorf("marshal item attributes: %w", marshalErr)
			return err
		}
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (
				order_id, position, product_id, product_name, sku, attributes, quantity, unit_price, promotion_id
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`,
			order.ID, i, item.ProductID, item.ProductName, item.SKU, string(attributes),
			item.Quantity, item.UnitPrice, nullString(item.PromotionID),
		); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit place order: %w", err)
	}
	return nil
}

func decrementStockTx(ctx context.Context, tx *sql.Tx, sku string, qty int) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE variations
		SET stock = stock - $1
		WHERE sku = $2
		  AND stock >= $1
	`, qty, sku)
	if err != nil {
		return fmt.Errorf("decrement stock for %s: %w", sku, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 1 {
		return nil
	}

	var available int
	err = tx.QueryRowContext(ctx, `SELECT stock FROM variations WHERE sku = $1`, sku).Scan(&available)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrVariationNotFound
		}
		return fmt.Errorf("read stock for %s: %w", sku, err)
	}
	return &domain.InsufficientStockError{SKU: sku, Available: available, Requested: qty}
}

const orderColumns = `id, user_id, status, payment_method, total, version, created_at, updated_at`

func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	order, err := scanOrder(r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, err
	}

	if order.Items, err = r.loadItems(ctx, order.ID); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

func (r *orderRepository) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var cond conditions
	cond.add(`user_id = ?`, userID)
	return r.queryOrders(ctx, &cond, limit)
}

func (r *orderRepository) List(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var cond conditions
	if filter.Status != "" {
		cond.add(`status = ?`, string(filter.Status))
	}
	if filter.PaymentMethod != "" {
		cond.add(`payment_method = ?`, string(filter.PaymentMethod))
	}
	if !filter.From.IsZero() {
		cond.add(`created_at >= ?`, filter.From)
	}
	if !filter.To.IsZero() {
		cond.add(`created_at <= ?`, filter.To)
	}
	return r.queryOrders(ctx, &cond, filter.Limit)
}

func (r *orderRepository) queryOrders(ctx context.Context, cond *conditions, limit int) ([]domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders` + cond.where() +
		` ORDER BY created_at DESC, id DESC` + cond.limit(limit)

	rows, err := r.db.QueryContext(ctx, query, cond.args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}
	rows.Close()

	for i := range orders {
		if orders[i].Items, err = r.loadItems(ctx, orders[i].ID); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (r *orderRepository) UpdateStatus(ctx context.Context, id string, expectedVersion int64, status domain.OrderStatus, at time.Time) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	order, err := scanOrder(r.db.QueryRowContext(ctx, `
		UPDATE orders
		SET status = $1,
		    version = version + 1,
		    updated_at = $2
		WHERE id = $3
		  AND version = $4
		RETURNING `+orderColumns,
		string(status), at.UTC(), id, expectedVersion,
	))
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, err
		}
		exists, existsErr := r.orderExists(ctx, id)
		if existsErr != nil {
			return domain.Order{}, existsErr
		}
		if !exists {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, domain.ErrOrderVersionConflict
	}

	if order.Items, err = r.loadItems(ctx, order.ID); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order   domain.Order
		status  string
		payment string
	)
	if err := row.Scan(
		&order.ID, &order.UserID, &status, &payment,
		&order.Total, &order.Version, &order.CreatedAt, &order.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, err
		}
		return domain.Order{}, fmt.Errorf("scan order: %w", err)
	}
	order.Status = domain.OrderStatus(status)
	order.PaymentMethod = domain.PaymentMethod(payment)
	order.CreatedAt = order.CreatedAt.UTC()
	order.UpdatedAt = order.UpdatedAt.UTC()
	return order, nil
}

func (r *orderRepository) loadItems(ctx context.Context, orderID string) ([]domain.LineItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT product_id, product_name, sku, attributes, quantity, unit_price, promotion_id
		FROM order_items
		WHERE order_id = $1
		ORDER BY position ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.LineItem, 0)
	for rows.Next() {
		var (
			item       domain.LineItem
			attributes []byte
			promotion  sql.NullString
		)
		if err := rows.Scan(
			&item.ProductID, &item.ProductName, &item.SKU, &attributes,
			&item.Quantity, &item.UnitPrice, &promotion,
		); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		item.Attributes = map[string]string{}
		if err := json.Unmarshal(attributes, &item.Attributes); err != nil {
			return nil, fmt.Errorf("decode item attributes: %w", err)
		}
		item.PromotionID = promotion.String
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}
	return items, nil
}

func (r *orderRepository) orderExists(ctx context.Context, orderID string) (bool, error) {
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, orderID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check order exists: %w", err)
	}
	return exists, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nonNilAttributes(attrs map[string]string) map[string]string {
	if attrs == nil {
		return map[string]string{}
	}
	return attrs
}

var _ domain.OrderRepository = (*orderRepository)(nil)
