// internal/repository/memory/subscription_record_repo.go
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"entitlement-service/internal/domain/billing"
	xerrors "entitlement-service/internal/pkg/errors"
)

// SubscriptionRecordRepository keeps records in process memory. It is used
// by STORAGE_DRIVER=memory and by tests.
type SubscriptionRecordRepository struct {
	mu      sync.Mutex
	records map[string]*billing.SubscriptionRecord
	now     func() time.Time
}

func NewSubscriptionRecordRepository() *SubscriptionRecordRepository {
	return &SubscriptionRecordRepository{
		records: make(map[string]*billing.SubscriptionRecord),
		now:     time.Now,
	}
}

func (r *SubscriptionRecordRepository) FindByUser(ctx context.Context, userID string) (*billing.SubscriptionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[userID]
	if !ok {
		return nil, nil
	}
	out := *rec
	return &out, nil
}

func (r *SubscriptionRecordRepository) UpsertConditional(ctx context.Context, userID string, patch billing.RecordPatch, cond billing.Condition) (*billing.SubscriptionRecord, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	existing := r.records[userID]
	if cond != nil && !cond(existing) {
		if existing == nil {
			return nil, false, nil
		}
		out := *existing
		return &out, false, nil
	}

	var rec billing.SubscriptionRecord
	if existing != nil {
		rec = *existing
	} else {
		rec = billing.SubscriptionRecord{
			ID:        ulid.Make().String(),
			UserID:    userID,
			CreatedAt: now,
		}
	}
	patch.Apply(&rec)
	rec.Version++
	rec.UpdatedAt = now
	r.records[userID] = &rec

	out := rec
	return &out, true, nil
}

func (r *SubscriptionRecordRepository) UpdateStatus(ctx context.Context, userID string, status billing.SubscriptionStatus, extra billing.RecordPatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.records[userID]
	if !ok {
		return xerrors.ErrNotFound
	}
	rec := *existing
	extra.Status = &status
	extra.Apply(&rec)
	rec.Version++
	rec.UpdatedAt = r.now()
	r.records[userID] = &rec
	return nil
}

// Put stores rec as-is, replacing any record for the same user.
func (r *SubscriptionRecordRepository) Put(rec billing.SubscriptionRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec.ID == "" {
		rec.ID = ulid.Make().String()
	}
	r.records[rec.UserID] = &rec
}
