package postgres

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"entitlement-service/internal/db"
	"entitlement-service/internal/domain/billing"
	xerrors "entitlement-service/internal/pkg/errors"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// openTestDB connects to TEST_DATABASE_URL and migrates it. Tests are
// skipped when it is unset.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	pool, err := db.ConnectDB(dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, db.Migrate(context.Background(), pool, zap.NewNop()))
	return NewDB(pool)
}

func createUser(t *testing.T, d *DB) string {
	t.Helper()
	id := "user_" + ulid.Make().String()
	_, err := d.Pool().Exec(context.Background(),
		`INSERT INTO users (id, email, full_name) VALUES ($1, $2, $3)`,
		id, id+"@example.com", "Test User")
	require.NoError(t, err)
	return id
}

func ptr[T any](v T) *T { return &v }

func TestSubscriptionRecordRepository_Upsert(t *testing.T) {
	d := openTestDB(t)
	repo := NewSubscriptionRecordRepository(d)
	ctx := context.Background()
	userID := createUser(t, d)

	rec, err := repo.FindByUser(ctx, userID)
	require.NoError(t, err)
	assert.Nil(t, rec)

	ends := time.Now().Add(7 * 24 * time.Hour).UTC().Truncate(time.Second)
	rec, applied, err := repo.UpsertConditional(ctx, userID, billing.RecordPatch{
		Status:      ptr(billing.StatusTrialing),
		TrialEndsAt: &ends,
		TrialDays:   ptr(7),
	}, billing.StatusMissing)
	require.NoError(t, err)
	require.True(t, applied)
	assert.EqualValues(t, 1, rec.Version)
	assert.NotEmpty(t, rec.ID)

	// StatusMissing no longer holds.
	_, applied, err = repo.UpsertConditional(ctx, userID, billing.RecordPatch{Status: ptr(billing.StatusTrialExpired)}, billing.StatusMissing)
	require.NoError(t, err)
	assert.False(t, applied)

	rec, applied, err = repo.UpsertConditional(ctx, userID, billing.RecordPatch{
		Status:               ptr(billing.StatusActive),
		Plan:                 ptr(billing.PlanYearly),
		StripeSubscriptionID: ptr("sub_1"),
		StripePriceID:        ptr("price_yearly"),
	}, billing.StatusNot(billing.StatusActive))
	require.NoError(t, err)
	require.True(t, applied)
	assert.EqualValues(t, 2, rec.Version)

	stored, err := repo.FindByUser(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, billing.StatusActive, stored.Status)
	assert.Equal(t, billing.PlanYearly, stored.Plan)
	assert.Equal(t, "sub_1", stored.StripeSubscriptionID)
	require.NotNil(t, stored.TrialEndsAt)
	assert.True(t, ends.Equal(*stored.TrialEndsAt))
}

func TestSubscriptionRecordRepository_UpdateStatus(t *testing.T) {
	d := openTestDB(t)
	repo := NewSubscriptionRecordRepository(d)
	ctx := context.Background()
	userID := createUser(t, d)

	err := repo.UpdateStatus(ctx, userID, billing.StatusCanceled, billing.RecordPatch{})
	assert.True(t, xerrors.Is(err, xerrors.ErrNotFound))

	_, _, err = repo.UpsertConditional(ctx, userID, billing.RecordPatch{
		Status:               ptr(billing.StatusActive),
		Plan:                 ptr(billing.PlanMonthly),
		StripeSubscriptionID: ptr("sub_1"),
		StripePriceID:        ptr("price_monthly"),
	}, billing.Always)
	require.NoError(t, err)

	canceledAt := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, repo.UpdateStatus(ctx, userID, billing.StatusCanceled, billing.RecordPatch{CanceledAt: &canceledAt}))

	rec, err := repo.FindByUser(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, billing.StatusCanceled, rec.Status)
	assert.Equal(t, billing.PlanNone, rec.Plan)
	require.NotNil(t, rec.CanceledAt)
}

func TestSubscriptionRecordRepository_ConcurrentCreate(t *testing.T) {
	d := openTestDB(t)
	repo := NewSubscriptionRecordRepository(d)
	userID := createUser(t, d)

	const writers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := repo.UpsertConditional(context.Background(), userID,
				billing.RecordPatch{Status: ptr(billing.StatusTrialing)}, billing.StatusMissing)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, applied)
}

func TestUserRepository(t *testing.T) {
	d := openTestDB(t)
	repo := NewUserRepository(d)
	ctx := context.Background()
	userID := createUser(t, d)

	_, err := repo.FindByID(ctx, "missing")
	assert.True(t, xerrors.Is(err, xerrors.ErrNotFound))

	require.NoError(t, repo.UpdateStripeCustomerID(ctx, userID, "cus_1"))
	u, err := repo.FindByID(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "cus_1", u.CustomerID())

	assert.True(t, xerrors.Is(repo.UpdateStripeCustomerID(ctx, "missing", "cus_2"), xerrors.ErrNotFound))
}
