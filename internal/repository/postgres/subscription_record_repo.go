// internal/repository/postgres/subscription_record_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"

	"entitlement-service/internal/domain/billing"
	xerrors "entitlement-service/internal/pkg/errors"
)

// errInsertConflict signals that a concurrent insert won the race for user_id.
var errInsertConflict = errors.New("subscription record inserted concurrently")

const upsertAttempts = 2

type SubscriptionRecordRepository struct {
	db *DB
}

func NewSubscriptionRecordRepository(db *DB) *SubscriptionRecordRepository {
	return &SubscriptionRecordRepository{db: db}
}

const recordColumns = `
	id, user_id, plan, status, stripe_subscription_id, stripe_price_id,
	current_period_start, current_period_end, trial_ends_at, trial_days,
	upgraded_at, canceled_at, version, created_at, updated_at`

// FindByUser retrieves the user's record, or nil if there is none.
func (r *SubscriptionRecordRepository) FindByUser(ctx context.Context, userID string) (*billing.SubscriptionRecord, error) {
	query := `SELECT` + recordColumns + ` FROM subscription_records WHERE user_id = $1`

	rec, err := scanRecord(r.db.Pool().QueryRow(ctx, query, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find subscription record: %w", err)
	}
	return rec, nil
}

// UpsertConditional locks the user's row, evaluates cond against it and
// writes the patched record. A lost insert race is retried once so that
// cond is evaluated against the winner's row.
func (r *SubscriptionRecordRepository) UpsertConditional(ctx context.Context, userID string, patch billing.RecordPatch, cond billing.Condition) (*billing.SubscriptionRecord, bool, error) {
	var (
		out     *billing.SubscriptionRecord
		applied bool
		err     error
	)
	for attempt := 0; attempt < upsertAttempts; attempt++ {
		err = r.db.WithTx(ctx, func(tx pgx.Tx) error {
			existing, err := r.findForUpdate(ctx, tx, userID)
			if err != nil {
				return err
			}
			if cond != nil && !cond(existing) {
				out, applied = existing, false
				return nil
			}

			if existing == nil {
				rec := &billing.SubscriptionRecord{ID: ulid.Make().String(), UserID: userID}
				patch.Apply(rec)
				if err := r.insert(ctx, tx, rec); err != nil {
					return err
				}
				out, applied = rec, true
				return nil
			}

			patch.Apply(existing)
			if err := r.update(ctx, tx, existing); err != nil {
				return err
			}
			out, applied = existing, true
			return nil
		})
		if !errors.Is(err, errInsertConflict) {
			break
		}
	}
	if err != nil {
		return nil, false, err
	}
	return out, applied, nil
}

// UpdateStatus sets status unconditionally and applies extra.
func (r *SubscriptionRecordRepository) UpdateStatus(ctx context.Context, userID string, status billing.SubscriptionStatus, extra billing.RecordPatch) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		existing, err := r.findForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}
		if existing == nil {
			return xerrors.ErrNotFound
		}
		extra.Status = &status
		extra.Apply(existing)
		return r.update(ctx, tx, existing)
	})
}

func (r *SubscriptionRecordRepository) findForUpdate(ctx context.Context, tx pgx.Tx, userID string) (*billing.SubscriptionRecord, error) {
	query := `SELECT` + recordColumns + ` FROM subscription_records WHERE user_id = $1 FOR UPDATE`

	rec, err := scanRecord(tx.QueryRow(ctx, query, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock subscription record: %w", err)
	}
	return rec, nil
}

func (r *SubscriptionRecordRepository) insert(ctx context.Context, tx pgx.Tx, rec *billing.SubscriptionRecord) error {
	query := `
		INSERT INTO subscription_records (
			id, user_id, plan, status, stripe_subscription_id, stripe_price_id,
			current_period_start, current_period_end, trial_ends_at, trial_days,
			upgraded_at, canceled_at, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 1)
		ON CONFLICT (user_id) DO NOTHING
		RETURNING version, created_at, updated_at
	`

	err := tx.QueryRow(ctx, query,
		rec.ID, rec.UserID, nullString(string(rec.Plan)), nullString(string(rec.Status)),
		nullString(rec.StripeSubscriptionID), nullString(rec.StripePriceID),
		rec.CurrentPeriodStart, rec.CurrentPeriodEnd, rec.TrialEndsAt, rec.TrialDays,
		rec.UpgradedAt, rec.CanceledAt,
	).Scan(&rec.Version, &rec.CreatedAt, &rec.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return errInsertConflict
	}
	if err != nil {
		return fmt.Errorf("failed to create subscription record: %w", err)
	}
	return nil
}

func (r *SubscriptionRecordRepository) update(ctx context.Context, tx pgx.Tx, rec *billing.SubscriptionRecord) error {
	query := `
		UPDATE subscription_records
		SET plan = $2, status = $3, stripe_subscription_id = $4, stripe_price_id = $5,
		    current_period_start = $6, current_period_end = $7, trial_ends_at = $8, trial_days = $9,
		    upgraded_at = $10, canceled_at = $11,
		    version = version + 1, updated_at = NOW()
		WHERE user_id = $1
		RETURNING version, updated_at
	`

	err := tx.QueryRow(ctx, query,
		rec.UserID, nullString(string(rec.Plan)), nullString(string(rec.Status)),
		nullString(rec.StripeSubscriptionID), nullString(rec.StripePriceID),
		rec.CurrentPeriodStart, rec.CurrentPeriodEnd, rec.TrialEndsAt, rec.TrialDays,
		rec.UpgradedAt, rec.CanceledAt,
	).Scan(&rec.Version, &rec.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return xerrors.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update subscription record: %w", err)
	}
	return nil
}

func scanRecord(row pgx.Row) (*billing.SubscriptionRecord, error) {
	var (
		rec                    billing.SubscriptionRecord
		plan, status           *string
		subID, priceID         *string
		periodStart, periodEnd *time.Time
	)

	err := row.Scan(
		&rec.ID, &rec.UserID, &plan, &status, &subID, &priceID,
		&periodStart, &periodEnd, &rec.TrialEndsAt, &rec.TrialDays,
		&rec.UpgradedAt, &rec.CanceledAt, &rec.Version, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Plan = billing.Plan(deref(plan))
	rec.Status = billing.SubscriptionStatus(deref(status))
	rec.StripeSubscriptionID = deref(subID)
	rec.StripePriceID = deref(priceID)
	rec.CurrentPeriodStart = periodStart
	rec.CurrentPeriodEnd = periodEnd
	return &rec, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
