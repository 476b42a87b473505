package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davilam/campaign-reports-go/internal/metrics"
	"github.com/davilam/campaign-reports-go/internal/models"
)

// flakyBackend fails every call while down.
type flakyBackend struct {
	mem  *Memory
	down bool
}

func (f *flakyBackend) Get(ctx context.Context, key string) ([]byte, error) {
	if f.down {
		return nil, errors.New("backend down")
	}
	return f.mem.Get(ctx, key)
}

func (f *flakyBackend) Put(ctx context.Context, key string, val []byte) error {
	if f.down {
		return errors.New("backend down")
	}
	return f.mem.Put(ctx, key, val)
}

func (f *flakyBackend) Name() string { return "flaky" }
func (f *flakyBackend) Close() error { return nil }

func testEntry(fp, campaign string) *models.Entry {
	return &models.Entry{
		Fingerprint: fp,
		CampaignKey: campaign,
		Aggregate:   models.Aggregate{CampaignKey: campaign, ComputedAt: time.Unix(1700000000, 0).UTC()},
		Artifact:    models.Artifact{Bytes: []byte("report"), Fingerprint: fp},
		ComputedAt:  time.Unix(1700000000, 0).UTC(),
	}
}

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestFingerprintDeterministic(t *testing.T) {
	a := Fingerprint("camp-1", 1, "rev-a")
	b := Fingerprint("camp-1", 1, "rev-a")
	c := Fingerprint("camp-1", 2, "rev-a")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestPutGetRoundtrip(t *testing.T) {
	cache := New(testLogger(), metrics.Nop(), NewMemory())
	e := testEntry("fp-1", "camp-1")
	require.NoError(t, cache.Put(context.Background(), e))

	got, err := cache.Get(context.Background(), "camp-1")
	require.NoError(t, err)
	assert.Equal(t, "fp-1", got.Fingerprint)
	assert.False(t, got.Degraded)
	assert.Equal(t, []byte("report"), got.Artifact.Bytes)
}

func TestGetNotFound(t *testing.T) {
	cache := New(testLogger(), metrics.Nop(), NewMemory())
	_, err := cache.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPutFallsBackWhenPrimaryDown(t *testing.T) {
	primary := &flakyBackend{mem: NewMemory(), down: true}
	sqlite, err := NewSQLite(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	defer sqlite.Close()

	cache := New(testLogger(), metrics.Nop(), primary, sqlite)
	require.NoError(t, cache.Put(context.Background(), testEntry("fp-1", "camp-1")))

	got, err := cache.Get(context.Background(), "camp-1")
	require.NoError(t, err)
	assert.Equal(t, "fp-1", got.Fingerprint)
	assert.False(t, got.Degraded, "fallback read is a normal read, not degraded")
}

func TestGetDegradedWhenAllBackendsDown(t *testing.T) {
	b := &flakyBackend{mem: NewMemory()}
	cache := New(testLogger(), metrics.Nop(), b)
	require.NoError(t, cache.Put(context.Background(), testEntry("fp-1", "camp-1")))

	b.down = true
	got, err := cache.Get(context.Background(), "camp-1")
	require.NoError(t, err)
	assert.True(t, got.Degraded)
	assert.Equal(t, "fp-1", got.Fingerprint)
}

func TestPutAllBackendsDownIsPersistenceError(t *testing.T) {
	cache := New(testLogger(), metrics.Nop(), &flakyBackend{mem: NewMemory(), down: true})
	err := cache.Put(context.Background(), testEntry("fp-1", "camp-1"))
	var perr *PersistenceError
	assert.ErrorAs(t, err, &perr)
}

func TestSupersededEntryRetrievableByFingerprint(t *testing.T) {
	cache := New(testLogger(), metrics.Nop(), NewMemory())
	require.NoError(t, cache.Put(context.Background(), testEntry("fp-old", "camp-1")))
	require.NoError(t, cache.Put(context.Background(), testEntry("fp-new", "camp-1")))

	cur, err := cache.Get(context.Background(), "camp-1")
	require.NoError(t, err)
	assert.Equal(t, "fp-new", cur.Fingerprint)

	old, err := cache.GetByFingerprint(context.Background(), "fp-old")
	require.NoError(t, err)
	assert.Equal(t, "fp-old", old.Fingerprint)
}

func TestSQLiteBackendRoundtrip(t *testing.T) {
	sq, err := NewSQLite(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	defer sq.Close()

	require.NoError(t, sq.Put(context.Background(), "k", []byte("v1")))
	require.NoError(t, sq.Put(context.Background(), "k", []byte("v2"))) // upsert swap

	got, err := sq.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)

	_, err = sq.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
