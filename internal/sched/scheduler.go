package sched

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/davilam/campaign-reports-go/internal/aggregate"
	"github.com/davilam/campaign-reports-go/internal/config"
	"github.com/davilam/campaign-reports-go/internal/metrics"
	"github.com/davilam/campaign-reports-go/internal/models"
	"github.com/davilam/campaign-reports-go/internal/normalize"
	"github.com/davilam/campaign-reports-go/internal/render"
	"github.com/davilam/campaign-reports-go/internal/source"
	"github.com/davilam/campaign-reports-go/internal/store"
)

type State string

const (
	StateIdle        State = "idle"
	StateFetching    State = "fetching"
	StateNormalizing State = "normalizing"
	StateAggregating State = "aggregating"
	StateRendering   State = "rendering"
	StatePersisted   State = "persisted"
	StateFailed      State = "failed"
)

// RunStatus is the externally visible view of a campaign's last run.
type RunStatus struct {
	RunID       string    `json:"run_id"`
	CampaignKey string    `json:"campaign_key"`
	State       State     `json:"state"`
	Err         string    `json:"error,omitempty"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	StartedAt   time.Time `json:"started_at,omitempty"`
	FinishedAt  time.Time `json:"finished_at,omitempty"`
}

// Scheduler orchestrates campaign runs: cron or on-demand triggers,
// single-flight per campaign key, bounded per-channel fetch
// parallelism, serialized store writes per key.
type Scheduler struct {
	cfg     config.Config
	adapter *source.Adapter
	cache   *store.Cache
	tmpl    *render.Template
	log     *slog.Logger
	met     *metrics.Pipeline

	group singleflight.Group
	cron  *cron.Cron

	mu      sync.Mutex
	status  map[string]RunStatus
	writeMu map[string]*sync.Mutex // serializa escrituras por campaña
}

func New(cfg config.Config, adapter *source.Adapter, cache *store.Cache, tmpl *render.Template, log *slog.Logger, met *metrics.Pipeline) *Scheduler {
	return &Scheduler{
		cfg:     cfg,
		adapter: adapter,
		cache:   cache,
		tmpl:    tmpl,
		log:     log,
		met:     met,
		status:  make(map[string]RunStatus),
		writeMu: make(map[string]*sync.Mutex),
	}
}

// Start registers one cron entry per scheduled campaign.
func (s *Scheduler) Start() error {
	s.cron = cron.New()
	for _, camp := range s.cfg.Campaigns {
		if camp.Schedule == "" {
			continue
		}
		key := camp.Key
		if _, err := s.cron.AddFunc(camp.Schedule, func() {
			if _, err := s.Trigger(context.Background(), key); err != nil {
				s.log.Error("scheduled run failed", slog.String("campaign", key), slog.String("err", err.Error()))
			}
		}); err != nil {
			return fmt.Errorf("sched: campaign %s schedule %q: %w", key, camp.Schedule, err)
		}
	}
	s.cron.Start()
	return nil
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// Known reports whether a campaign key is declared in configuration.
func (s *Scheduler) Known(key string) bool {
	_, ok := s.cfg.FindCampaign(key)
	return ok
}

// Status returns the last known run status for a campaign key.
func (s *Scheduler) Status(key string) (RunStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.status[key]
	return st, ok
}

// Trigger starts an on-demand run. Concurrent triggers for the same
// campaign key coalesce onto the in-flight run and share its outcome.
func (s *Scheduler) Trigger(ctx context.Context, key string) (*models.Entry, error) {
	camp, ok := s.cfg.FindCampaign(key)
	if !ok {
		return nil, fmt.Errorf("sched: unknown campaign %q", key)
	}
	v, err, shared := s.group.Do(key, func() (any, error) {
		// detached from the trigger's context: a coalesced caller
		// hanging up must not cancel the shared run
		return s.run(context.WithoutCancel(ctx), camp)
	})
	if shared {
		s.log.Debug("trigger coalesced", slog.String("campaign", key))
	}
	if err != nil {
		return nil, err
	}
	return v.(*models.Entry), nil
}

func (s *Scheduler) setState(key, runID string, st State, err error, fp string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.status[key]
	cur.RunID = runID
	cur.CampaignKey = key
	cur.State = st
	cur.Fingerprint = fp
	if st == StateFetching {
		cur.StartedAt = time.Now()
		cur.FinishedAt = time.Time{}
		cur.Err = ""
	}
	if st == StateFailed || st == StateIdle {
		cur.FinishedAt = time.Now()
	}
	if err != nil {
		cur.Err = err.Error()
	}
	s.status[key] = cur
}

func (s *Scheduler) keyMutex(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.writeMu[key]
	if !ok {
		m = &sync.Mutex{}
		s.writeMu[key] = m
	}
	return m
}

func (s *Scheduler) stage(name State, fn func() error) error {
	start := time.Now()
	err := fn()
	s.met.StageDuration.WithLabelValues(string(name)).Observe(time.Since(start).Seconds())
	if err != nil {
		s.met.StageFailures.WithLabelValues(string(name)).Inc()
	}
	return err
}

// run drives one campaign through the full state machine. A failure
// leaves the previous cache entry untouched.
func (s *Scheduler) run(ctx context.Context, camp config.Campaign) (*models.Entry, error) {
	runID := uuid.NewString()
	log := s.log.With(slog.String("campaign", camp.Key), slog.String("run", runID))

	contract, err := camp.Contract()
	if err != nil {
		return nil, err
	}

	fail := func(st State, err error) (*models.Entry, error) {
		s.setState(camp.Key, runID, StateFailed, fmt.Errorf("%s: %w", st, err), "")
		s.met.RunsTotal.WithLabelValues("failed").Inc()
		log.Error("run failed", slog.String("stage", string(st)), slog.String("err", err.Error()))
		return nil, fmt.Errorf("run %s failed at %s: %w", runID, st, err)
	}

	// Fetching: canales en paralelo, con tope
	s.setState(camp.Key, runID, StateFetching, nil, "")
	rowsByChannel := make([][]models.Row, len(camp.Channels))
	diagsByChannel := make([][]models.Diagnostic, len(camp.Channels))
	err = s.stage(StateFetching, func() error {
		fctx, cancel := context.WithTimeout(ctx, s.cfg.StageTimeout())
		defer cancel()
		g, gctx := errgroup.WithContext(fctx)
		limit := s.cfg.FetchParallelism
		if limit <= 0 {
			limit = 1
		}
		g.SetLimit(limit)
		for i, ch := range camp.Channels {
			i, ch := i, ch
			g.Go(func() error {
				rows, diags, err := s.adapter.Fetch(gctx, ch)
				if err != nil {
					return err
				}
				rowsByChannel[i] = rows
				diagsByChannel[i] = diags
				return nil
			})
		}
		return g.Wait()
	})
	if err != nil {
		return fail(StateFetching, err)
	}

	// Normalizing
	s.setState(camp.Key, runID, StateNormalizing, nil, "")
	var records []models.Record
	var diags []models.Diagnostic
	err = s.stage(StateNormalizing, func() error {
		mismatches := 0
		for i, ch := range camp.Channels {
			diags = append(diags, diagsByChannel[i]...)
			recs, nd := normalize.Normalize(ch, rowsByChannel[i], contract)
			records = append(records, recs...)
			diags = append(diags, nd...)
			for _, d := range nd {
				if d.Kind == models.DiagSchemaMismatch {
					mismatches++
				}
			}
		}
		// hasta cierto punto un esquema roto es recuperable con ceros
		if mismatches > s.cfg.SchemaTolerance {
			return fmt.Errorf("schema mismatches (%d) beyond tolerance (%d)", mismatches, s.cfg.SchemaTolerance)
		}
		return nil
	})
	if err != nil {
		return fail(StateNormalizing, err)
	}

	// Aggregating
	s.setState(camp.Key, runID, StateAggregating, nil, "")
	var agg models.Aggregate
	_ = s.stage(StateAggregating, func() error {
		agg = aggregate.Build(camp.Key, contract, records, diags, s.cfg.TopPublishers, time.Now())
		return nil
	})

	// Rendering: estricto, un placeholder sin resolver aborta
	s.setState(camp.Key, runID, StateRendering, nil, "")
	fp := store.Fingerprint(camp.Key, camp.ContractVersion, sourceRevision(rowsByChannel))
	var artifact models.Artifact
	err = s.stage(StateRendering, func() error {
		out, _, rerr := s.tmpl.Render(render.Values(agg, contract), render.Strict)
		if rerr != nil {
			return rerr
		}
		artifact = models.Artifact{Bytes: out, Fingerprint: fp, RenderedAt: agg.ComputedAt}
		return nil
	})
	if err != nil {
		return fail(StateRendering, err)
	}

	// Persist: escritura serializada por clave
	entry := &models.Entry{
		Fingerprint: fp,
		CampaignKey: camp.Key,
		Aggregate:   agg,
		Artifact:    artifact,
		ComputedAt:  agg.ComputedAt,
	}
	err = s.stage(StatePersisted, func() error {
		pctx, cancel := context.WithTimeout(ctx, s.cfg.StageTimeout())
		defer cancel()
		m := s.keyMutex(camp.Key)
		m.Lock()
		defer m.Unlock()
		return s.cache.Put(pctx, entry)
	})
	if err != nil {
		return fail(StatePersisted, err)
	}

	s.setState(camp.Key, runID, StateIdle, nil, fp)
	s.met.RunsTotal.WithLabelValues("persisted").Inc()
	log.Info("run persisted",
		slog.String("fingerprint", fp),
		slog.Int("records", len(records)),
		slog.Int("diagnostics", len(diags)))
	return entry, nil
}

// sourceRevision hashes the fetched rows into the revision marker that
// feeds the fingerprint: same source data, same fingerprint.
func sourceRevision(rowsByChannel [][]models.Row) string {
	h := sha256.New()
	for _, rows := range rowsByChannel {
		for _, r := range rows {
			fmt.Fprintf(h, "%d|%s\n", r.Index, strings.Join(r.Cells, "\x1f"))
		}
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}
