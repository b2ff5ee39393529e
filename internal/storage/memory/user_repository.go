package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

type userRepositoryInMemory struct {
	mu    sync.RWMutex
	users map[string]domain.User
}

// NewUserRepository создаёт in-memory реализацию UserRepository.
func NewUserRepository() domain.UserRepository {
	return &userRepositoryInMemory{users: make(map[string]domain.User)}
}

func (r *userRepositoryInMemory) Create(_ context.Context, user domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.users[user.ID]; exists {
		return domain.ErrAlreadyExists
	}
	r.users[user.ID] = user
	return nil
}

func (r *userRepositoryInMemory) Get(_ context.Context, id string) (domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return user, nil
}

func (r *userRepositoryInMemory) Exists(_ context.Context, id string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.users[id]
	return ok, nil
}

var _ domain.UserRepository = (*userRepositoryInMemory)(nil)
