// internal/domain/user/entity.go
package user

import (
	"context"
	"time"
)

// User is the slice of the user directory the billing subsystem reads.
type User struct {
	ID                   string    `json:"id" db:"id"`
	Email                string    `json:"email" db:"email"`
	FullName             string    `json:"full_name" db:"full_name"`
	StripeCustomerID     *string   `json:"stripe_customer_id,omitempty" db:"stripe_customer_id"`
	SubscriptionRecordID *string   `json:"subscription_record_id,omitempty" db:"subscription_record_id"`
	CreatedAt            time.Time `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time `json:"updated_at" db:"updated_at"`
}

func (u *User) CustomerID() string {
	if u == nil || u.StripeCustomerID == nil {
		return ""
	}
	return *u.StripeCustomerID
}

// Directory is the user store. FindByID returns xerrors.ErrNotFound for unknown ids.
type Directory interface {
	FindByID(ctx context.Context, id string) (*User, error)
	UpdateStripeCustomerID(ctx context.Context, id, customerID string) error
	UpdateSubscriptionRef(ctx context.Context, id, recordID string) error
}
