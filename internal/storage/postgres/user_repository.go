package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// addressRecord — JSONB-представление адреса доставки.
type addressRecord struct {
	Street     string `json:"street"`
	Number     string `json:"number"`
	Complement string `json:"complement,omitempty"`
	District   string `json:"district"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
}

type userRepository struct {
	db *sql.DB
}

// NewUserRepository создаёт PostgreSQL-реализацию UserRepository.
func NewUserRepository(store *Store) domain.UserRepository {
	return &userRepository{db: store.DB()}
}

func (r *userRepository) Create(ctx context.Context, user domain.User) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	address, err := json.Marshal(addressRecord(user.ShippingAddress))
	if err != nil {
		return fmt.Errorf("marshal shipping address: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, phone, shipping_address, registered_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, user.ID, user.Name, user.Email, user.Phone, string(address), user.RegisteredAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *userRepository) Get(ctx context.Context, id string) (domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		user    domain.User
		address []byte
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, email, phone, shipping_address, registered_at
		FROM users
		WHERE id = $1
	`, id).Scan(&user.ID, &user.Name, &user.Email, &user.Phone, &address, &user.RegisteredAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.User{}, domain.ErrUserNotFound
		}
		return domain.User{}, fmt.Errorf("select user: %w", err)
	}

	var rec addressRecord
	if err := json.Unmarshal(address, &rec); err != nil {
		return domain.User{}, fmt.Errorf("decode shipping address of user %s: %w", id, err)
	}
	user.ShippingAddress = domain.Address(rec)
	user.RegisteredAt = user.RegisteredAt.UTC()
	return user, nil
}

func (r *userRepository) Exists(ctx context.Context, id string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check user exists: %w", err)
	}
	return exists, nil
}

var _ domain.UserRepository = (*userRepository)(nil)
