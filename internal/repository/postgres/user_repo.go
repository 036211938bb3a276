// internal/repository/postgres/user_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"entitlement-service/internal/domain/user"
	xerrors "entitlement-service/internal/pkg/errors"
)

type UserRepository struct {
	db *DB
}

func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByID retrieves a user by id
func (r *UserRepository) FindByID(ctx context.Context, id string) (*user.User, error) {
	query := `
		SELECT id, email, full_name, stripe_customer_id, subscription_record_id, created_at, updated_at
		FROM users
		WHERE id = $1
	`

	var u user.User
	err := r.db.Pool().QueryRow(ctx, query, id).Scan(
		&u.ID, &u.Email, &u.FullName, &u.StripeCustomerID, &u.SubscriptionRecordID,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return &u, nil
}

// UpdateStripeCustomerID stores the provider customer id
func (r *UserRepository) UpdateStripeCustomerID(ctx context.Context, id, customerID string) error {
	query := `UPDATE users SET stripe_customer_id = $2, updated_at = NOW() WHERE id = $1`
	return r.exec(ctx, query, id, customerID)
}

// UpdateSubscriptionRef links the user's subscription record
func (r *UserRepository) UpdateSubscriptionRef(ctx context.Context, id, recordID string) error {
	query := `UPDATE users SET subscription_record_id = $2, updated_at = NOW() WHERE id = $1`
	return r.exec(ctx, query, id, recordID)
}

func (r *UserRepository) exec(ctx context.Context, query string, args ...any) error {
	tag, err := r.db.Pool().Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}
