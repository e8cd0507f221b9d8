package repository

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"sample-app/internal/domain"
)

// MemoryUserRepository guarda usuarios en memoria. El chequeo de email y la
// escritura ocurren bajo el mismo lock.
type MemoryUserRepository struct {
	mu      sync.RWMutex
	byID    map[string]domain.User
	byEmail map[string]string
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		byID:    make(map[string]domain.User),
		byEmail: make(map[string]string),
	}
}

func canonicalEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (r *MemoryUserRepository) Create(_ context.Context, user domain.User) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := canonicalEmail(user.Email)
	if _, taken := r.byEmail[key]; taken {
		return "", ErrEmailConflict
	}
	now := time.Now().UTC()
	user.ID = uuid.NewString()
	user.Email = strings.TrimSpace(user.Email)
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	r.byID[user.ID] = user
	r.byEmail[key] = user.ID
	return user.ID, nil
}

func (r *MemoryUserRepository) Update(_ context.Context, user domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.byID[user.ID]
	if !ok {
		return ErrNotFound
	}
	key := canonicalEmail(user.Email)
	if owner, taken := r.byEmail[key]; taken && owner != user.ID {
		return ErrEmailConflict
	}
	delete(r.byEmail, canonicalEmail(current.Email))
	user.Email = strings.TrimSpace(user.Email)
	user.CreatedAt = current.CreatedAt
	user.UpdatedAt = time.Now().UTC()
	r.byID[user.ID] = user
	r.byEmail[key] = user.ID
	return nil
}

func (r *MemoryUserRepository) GetByID(_ context.Context, id string) (domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.byID[id]
	if !ok {
		return domain.User{}, ErrNotFound
	}
	return user, nil
}

func (r *MemoryUserRepository) FindByEmail(_ context.Context, email string) (domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byEmail[canonicalEmail(email)]
	if !ok {
		return domain.User{}, ErrNotFound
	}
	return r.byID[id], nil
}

func (r *MemoryUserRepository) ExistsWithEmail(_ context.Context, email, excludingID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byEmail[canonicalEmail(email)]
	return ok && id != excludingID, nil
}
