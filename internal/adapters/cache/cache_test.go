package cache

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/bgc-lifecycle/internal/core"
)

var computedAt = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func testEntry(key string) *core.CacheEntry {
	score := 15
	mismatch := core.DriftShouldBeInProgress
	return &core.CacheEntry{
		Key: key,
		Payload: &core.Snapshot{
			Views: []core.AccountLifecycleView{{
				AccountEmail:      "a@x.com",
				InferredStage:     core.StageBgcPending,
				FirstEventPerType: core.FirstEvents{core.EventBgcSubmitted: computedAt.Add(-72 * time.Hour)},
				Mismatch:          &mismatch,
				RiskScore:         &score,
				RiskBand:          core.RiskLow,
			}},
			Result: core.ScanResult{ScanID: "scan-1", Mode: core.ScanFull, AccountsScanned: 1},
		},
		ComputedAt: computedAt,
		TTL:        5 * time.Minute,
		ExpiresAt:  computedAt.Add(5 * time.Minute),
	}
}

// exerciseRepository runs the behavior every snapshot repository shares
func exerciseRepository(t *testing.T, repo core.SnapshotRepository) {
	t.Helper()
	ctx := context.Background()

	_, err := repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrSnapshotNotFound)

	require.NoError(t, repo.Set(ctx, testEntry("k")))
	got, err := repo.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, computedAt.Equal(got.ComputedAt))
	require.Len(t, got.Payload.Views, 1)
	view := got.Payload.Views[0]
	assert.Equal(t, core.StageBgcPending, view.InferredStage)
	require.NotNil(t, view.Mismatch)
	assert.Equal(t, core.DriftShouldBeInProgress, *view.Mismatch)
	assert.True(t, view.FirstEventPerType.Has(core.EventBgcSubmitted))

	replacement := testEntry("k")
	replacement.Payload.Result.ScanID = "scan-2"
	require.NoError(t, repo.Set(ctx, replacement))
	got, err = repo.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "scan-2", got.Payload.Result.ScanID)

	require.NoError(t, repo.Delete(ctx, "k"))
	_, err = repo.Get(ctx, "k")
	assert.ErrorIs(t, err, core.ErrSnapshotNotFound)
}

func TestMemoryCache(t *testing.T) {
	cache := NewMemoryCache(zap.NewNop(), 0, time.Hour)
	exerciseRepository(t, cache)
}

func TestMemoryCache_Cleanup(t *testing.T) {
	cache := NewMemoryCache(zap.NewNop(), 0, time.Hour)
	ctx := context.Background()
	require.NoError(t, cache.Set(ctx, testEntry("k")))

	cache.now = func() time.Time { return computedAt.Add(30 * time.Minute) }
	require.NoError(t, cache.Cleanup(ctx))
	_, err := cache.Get(ctx, "k")
	require.NoError(t, err, "within retention")

	cache.now = func() time.Time { return computedAt.Add(2 * time.Hour) }
	require.NoError(t, cache.Cleanup(ctx))
	_, err = cache.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteCache(t *testing.T) {
	cache, err := NewSQLiteCache(":memory:", zap.NewNop(), 0, time.Hour)
	require.NoError(t, err)
	defer cache.Stop()

	exerciseRepository(t, cache)
}

func TestSQLiteCache_Cleanup(t *testing.T) {
	cache, err := NewSQLiteCache(":memory:", zap.NewNop(), 0, time.Hour)
	require.NoError(t, err)
	defer cache.Stop()
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, testEntry("k")))
	cache.now = func() time.Time { return computedAt.Add(2 * time.Hour) }
	require.NoError(t, cache.Cleanup(ctx))

	_, err = cache.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMySQLCache(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS lifecycle_snapshots").
		WillReturnResult(sqlmock.NewResult(0, 0))

	cache, err := NewMySQLCacheFromDB(db, zap.NewNop(), 0, time.Hour)
	require.NoError(t, err)
	ctx := context.Background()

	entry := testEntry("k")
	payload, err := encodeEntry(entry)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO lifecycle_snapshots").
		WithArgs("k", string(payload), "2026-03-02T12:00:00Z", computedAt.Add(5*time.Minute+time.Hour).Unix()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, cache.Set(ctx, entry))

	mock.ExpectQuery("SELECT payload FROM lifecycle_snapshots").
		WithArgs("k").
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow(string(payload)))
	got, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "scan-1", got.Payload.Result.ScanID)

	mock.ExpectQuery("SELECT payload FROM lifecycle_snapshots").
		WithArgs("gone").
		WillReturnRows(sqlmock.NewRows([]string{"payload"}))
	_, err = cache.Get(ctx, "gone")
	assert.ErrorIs(t, err, ErrNotFound)

	cache.now = func() time.Time { return computedAt }
	mock.ExpectExec("DELETE FROM lifecycle_snapshots WHERE purge_after").
		WithArgs(computedAt.Unix()).
		WillReturnResult(sqlmock.NewResult(0, 2))
	require.NoError(t, cache.Cleanup(ctx))

	mock.ExpectClose()
	cache.Stop()
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCache_Expiration(t *testing.T) {
	cache := NewRedisCache(nil, zap.NewNop(), time.Hour)
	cache.now = func() time.Time { return computedAt }

	assert.Equal(t, 5*time.Minute+time.Hour, cache.expiration(testEntry("k")))

	cache.now = func() time.Time { return computedAt.Add(48 * time.Hour) }
	assert.Equal(t, time.Second, cache.expiration(testEntry("k")))
}

func TestDecodeEntry_RejectsEmptyPayload(t *testing.T) {
	_, err := decodeEntry([]byte(`{"key":"k"}`))
	assert.Error(t, err)

	_, err = decodeEntry([]byte(`not json`))
	assert.Error(t, err)
}
