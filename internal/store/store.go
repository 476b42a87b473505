package store

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/davilam/campaign-reports-go/internal/metrics"
	"github.com/davilam/campaign-reports-go/internal/models"
)

var ErrNotFound = errors.New("store: not found")

// PersistenceError: every backend refused the write. Terminal for the
// pipeline run that hit it.
type PersistenceError struct {
	Backends []string
	Err      error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("store: all backends failed (%s): %v", strings.Join(e.Backends, ", "), e.Err)
}
func (e *PersistenceError) Unwrap() error { return e.Err }

// Fingerprint derives the deterministic cache key for a (campaign,
// contract version, source revision) triple.
func Fingerprint(campaignKey string, contractVersion int, revision string) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%s", campaignKey, contractVersion, revision)))
	return fmt.Sprintf("%x", h)
}

// Backend is one key-value store. Get returns ErrNotFound for a
// missing key; any other error means the backend is unavailable.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Name() string
	Close() error
}

// Cache persists entries across a priority-ordered backend chain plus
// an in-process memory tier that serves degraded reads when every
// backend is down.
type Cache struct {
	backends []Backend
	mem      *Memory
	log      *slog.Logger
	met      *metrics.Pipeline
}

func New(log *slog.Logger, met *metrics.Pipeline, backends ...Backend) *Cache {
	return &Cache{backends: backends, mem: NewMemory(), log: log, met: met}
}

func entryKey(fp string) string     { return "entry/" + fp }
func currentKey(camp string) string { return "current/" + camp }

// Put writes the immutable entry record first and the current pointer
// second, so a reader either sees the old complete entry or the new
// one — never a partial swap. First backend that takes both wins;
// exhausting the chain is a PersistenceError.
func (c *Cache) Put(ctx context.Context, e *models.Entry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("store: marshal entry: %w", err)
	}

	var tried []string
	var lastErr error
	for _, be := range c.backends {
		if err := be.Put(ctx, entryKey(e.Fingerprint), b); err != nil {
			tried = append(tried, be.Name())
			lastErr = err
			c.log.Warn("backend put failed", slog.String("backend", be.Name()), slog.String("err", err.Error()))
			continue
		}
		if err := be.Put(ctx, currentKey(e.CampaignKey), []byte(e.Fingerprint)); err != nil {
			tried = append(tried, be.Name())
			lastErr = err
			c.log.Warn("backend pointer put failed", slog.String("backend", be.Name()), slog.String("err", err.Error()))
			continue
		}
		c.mem.set(entryKey(e.Fingerprint), b)
		c.mem.set(currentKey(e.CampaignKey), []byte(e.Fingerprint))
		return nil
	}
	return &PersistenceError{Backends: tried, Err: lastErr}
}

// Get returns the current entry for a campaign. Backends are tried in
// priority order; if all are unavailable the memory tier serves the
// last cached entry annotated as degraded.
func (c *Cache) Get(ctx context.Context, campaignKey string) (*models.Entry, error) {
	sawMissing := false
	for _, be := range c.backends {
		fp, err := be.Get(ctx, currentKey(campaignKey))
		if errors.Is(err, ErrNotFound) {
			sawMissing = true
			continue
		}
		if err != nil {
			c.log.Warn("backend get failed", slog.String("backend", be.Name()), slog.String("err", err.Error()))
			continue
		}
		raw, err := be.Get(ctx, entryKey(string(fp)))
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				sawMissing = true
			}
			continue
		}
		e, err := decodeEntry(raw)
		if err != nil {
			continue
		}
		c.mem.set(currentKey(campaignKey), fp)
		c.mem.set(entryKey(e.Fingerprint), raw)
		c.met.CacheReads.WithLabelValues("hit").Inc()
		return e, nil
	}

	// nivel degradado: memoria de proceso
	if fp, ok := c.mem.get(currentKey(campaignKey)); ok {
		if raw, ok := c.mem.get(entryKey(string(fp))); ok {
			if e, err := decodeEntry(raw); err == nil {
				if sawMissing {
					// a backend answered authoritatively: no entry
					c.met.CacheReads.WithLabelValues("miss").Inc()
					return nil, ErrNotFound
				}
				e.Degraded = true
				c.met.CacheReads.WithLabelValues("degraded").Inc()
				return e, nil
			}
		}
	}
	c.met.CacheReads.WithLabelValues("miss").Inc()
	return nil, ErrNotFound
}

// GetByFingerprint serves audit reads of superseded entries.
func (c *Cache) GetByFingerprint(ctx context.Context, fp string) (*models.Entry, error) {
	for _, be := range c.backends {
		raw, err := be.Get(ctx, entryKey(fp))
		if err != nil {
			continue
		}
		return decodeEntry(raw)
	}
	if raw, ok := c.mem.get(entryKey(fp)); ok {
		e, err := decodeEntry(raw)
		if err == nil {
			e.Degraded = true
		}
		return e, err
	}
	return nil, ErrNotFound
}

func (c *Cache) Close() error {
	var first error
	for _, be := range c.backends {
		if err := be.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func decodeEntry(raw []byte) (*models.Entry, error) {
	var e models.Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("store: decode entry: %w", err)
	}
	return &e, nil
}
