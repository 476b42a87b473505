package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/davilam/campaign-reports-go/internal/config"
	"github.com/davilam/campaign-reports-go/internal/metrics"
	"github.com/davilam/campaign-reports-go/internal/models"
	"github.com/davilam/campaign-reports-go/internal/utils"
)

// Locator addresses one tab of one external sheet.
type Locator struct {
	SpreadsheetID string
	Tab           string
}

// Provider is the external tabular data provider. Implementations own
// authentication and rate-limit details.
type Provider interface {
	Read(ctx context.Context, loc Locator, rangeSpec string) ([][]string, error)
}

// ErrEmptyResult: source reachable but no rows. Not a failure; the
// adapter turns it into zero rows plus a warning diagnostic.
var ErrEmptyResult = errors.New("source: empty result")

// AuthError is non-retryable and escalates immediately.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string { return fmt.Sprintf("source: auth failed: %v", e.Err) }
func (e *AuthError) Unwrap() error { return e.Err }

// TransientError covers network and rate-limit failures, retried with
// bounded backoff.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("source: transient fetch failure: %v", e.Err)
}
func (e *TransientError) Unwrap() error { return e.Err }

func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// Adapter fetches raw rows for one (campaign, channel, tab) triple.
// Holds no cross-channel state.
type Adapter struct {
	p          Provider
	log        *slog.Logger
	met        *metrics.Pipeline
	maxRetries int
	base       time.Duration
}

func NewAdapter(p Provider, log *slog.Logger, met *metrics.Pipeline, maxRetries int) *Adapter {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Adapter{p: p, log: log, met: met, maxRetries: maxRetries, base: 100 * time.Millisecond}
}

// Fetch reads all rows for one channel source. Transient failures are
// retried; auth failures escalate untouched. An empty source yields
// zero rows and a diagnostic, never an error.
func (a *Adapter) Fetch(ctx context.Context, src config.ChannelSource) ([]models.Row, []models.Diagnostic, error) {
	loc := Locator{SpreadsheetID: src.SpreadsheetID, Tab: src.Tab}

	var cells [][]string
	b := utils.Backoff{
		Base:       a.base,
		Jitter:     150 * time.Millisecond,
		MaxRetries: a.maxRetries - 1,
		Retryable:  IsTransient,
	}
	err := b.Do(ctx, func(attempt int) error {
		if attempt > 0 {
			a.met.FetchRetries.Inc()
			a.log.Warn("retrying fetch",
				slog.String("channel", src.Channel),
				slog.Int("attempt", attempt))
		}
		var rerr error
		cells, rerr = a.p.Read(ctx, loc, src.Range)
		return rerr
	})
	if errors.Is(err, ErrEmptyResult) || (err == nil && len(cells) == 0) {
		diag := models.Diagnostic{
			Kind:    models.DiagEmptySource,
			Channel: src.Channel,
			Row:     -1,
			Detail:  fmt.Sprintf("tab %s returned no rows", src.Tab),
		}
		return nil, []models.Diagnostic{diag}, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("channel %s: %w", src.Channel, err)
	}

	rows := make([]models.Row, 0, len(cells))
	for i, c := range cells {
		rows = append(rows, models.Row{Index: i, Cells: c})
	}
	return rows, nil, nil
}
