// internal/repository/memory/user_repo.go
package memory

import (
	"context"
	"sync"
	"time"

	"entitlement-service/internal/domain/user"
	xerrors "entitlement-service/internal/pkg/errors"
)

type UserRepository struct {
	mu    sync.Mutex
	users map[string]*user.User
}

func NewUserRepository(users ...*user.User) *UserRepository {
	r := &UserRepository{users: make(map[string]*user.User)}
	for _, u := range users {
		r.Put(u)
	}
	return r
}

// Put inserts or replaces a user.
func (r *UserRepository) Put(u *user.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *u
	r.users[u.ID] = &cp
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *UserRepository) UpdateStripeCustomerID(ctx context.Context, id, customerID string) error {
	return r.update(id, func(u *user.User) { u.StripeCustomerID = &customerID })
}

func (r *UserRepository) UpdateSubscriptionRef(ctx context.Context, id, recordID string) error {
	return r.update(id, func(u *user.User) { u.SubscriptionRecordID = &recordID })
}

func (r *UserRepository) update(id string, fn func(*user.User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return xerrors.ErrNotFound
	}
	fn(u)
	u.UpdatedAt = time.Now()
	return nil
}
