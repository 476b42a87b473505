package models

import "time"

// Canonical metric fields every channel mapping must resolve.
const (
	FieldDate             = "date"
	FieldSpend            = "spend"
	FieldImpressions      = "impressions"
	FieldClicks           = "clicks"
	FieldVideoStarts      = "video_starts"
	FieldVideoQ25         = "video_q25"
	FieldVideoQ50         = "video_q50"
	FieldVideoQ75         = "video_q75"
	FieldVideoCompletions = "video_completions"
)

func CanonicalFields() []string {
	return []string{
		FieldDate,
		FieldSpend,
		FieldImpressions,
		FieldClicks,
		FieldVideoStarts,
		FieldVideoQ25,
		FieldVideoQ50,
		FieldVideoQ75,
		FieldVideoCompletions,
	}
}

func IsCanonicalField(name string) bool {
	for _, f := range CanonicalFields() {
		if f == name {
			return true
		}
	}
	return false
}

// Row is one raw source row: ordered string cells tagged with the
// source row index. Discarded after normalization.
type Row struct {
	Index int
	Cells []string
}

// Record is one normalized (date, channel) metric row.
type Record struct {
	Date             time.Time          `json:"date"`
	Channel          string             `json:"channel"`
	Publisher        string             `json:"publisher,omitempty"`
	Spend            float64            `json:"spend"`
	Impressions      int64              `json:"impressions"`
	Clicks           int64              `json:"clicks"`
	VideoStarts      int64              `json:"video_starts"`
	VideoQ25         int64              `json:"video_q25"`
	VideoQ50         int64              `json:"video_q50"`
	VideoQ75         int64              `json:"video_q75"`
	VideoCompletions int64              `json:"video_completions"`
	Extra            map[string]float64 `json:"extra,omitempty"`
}

type KPI struct {
	Type   string  `json:"type"`
	Value  float64 `json:"value"`
	Target float64 `json:"target"`
}

// Contract is the immutable reference data used for pacing.
type Contract struct {
	Client   string             `json:"client"`
	Campaign string             `json:"campaign"`
	Version  int                `json:"version"`
	Start    time.Time          `json:"start"`
	End      time.Time          `json:"end"`
	Budgets  map[string]float64 `json:"budgets"` // per channel
	KPI      KPI                `json:"kpi"`
}

func (c Contract) TotalBudget() float64 {
	var t float64
	for _, b := range c.Budgets {
		t += b
	}
	return t
}

func (c Contract) Contains(d time.Time) bool {
	return !d.Before(c.Start) && !d.After(c.End)
}

type DiagKind string

const (
	DiagSchemaMismatch DiagKind = "schema_mismatch"
	DiagOutOfPeriod    DiagKind = "out_of_period"
	DiagEmptySource    DiagKind = "empty_source"
	DiagBadDate        DiagKind = "bad_date"
)

// Diagnostic is a recoverable condition collected along the pipeline.
// Never raised; surfacing is a rendering/ops concern downstream.
type Diagnostic struct {
	Kind    DiagKind `json:"kind"`
	Channel string   `json:"channel,omitempty"`
	Row     int      `json:"row"` // -1 when not row-scoped
	Field   string   `json:"field,omitempty"`
	Detail  string   `json:"detail,omitempty"`
}

// ChannelTotals is one channel rollup (or the campaign total when
// Channel == "total"). Ratio pointers are nil when undefined.
type ChannelTotals struct {
	Channel          string   `json:"channel"`
	Spend            float64  `json:"spend"`
	Impressions      int64    `json:"impressions"`
	Clicks           int64    `json:"clicks"`
	VideoStarts      int64    `json:"video_starts"`
	VideoQ25         int64    `json:"video_q25"`
	VideoQ50         int64    `json:"video_q50"`
	VideoQ75         int64    `json:"video_q75"`
	VideoCompletions int64    `json:"video_completions"`
	CPV              *float64 `json:"cpv"`
	VTR              *float64 `json:"vtr"`
	CTR              *float64 `json:"ctr"`
	Pacing           *float64 `json:"pacing"`
}

type PublisherRank struct {
	Publisher   string  `json:"publisher"`
	Spend       float64 `json:"spend"`
	Impressions int64   `json:"impressions"`
}

// FunnelAnomaly records a quartile monotonicity violation. The source
// values stay as delivered; the anomaly makes them visible.
type FunnelAnomaly struct {
	Date    time.Time `json:"date"`
	Channel string    `json:"channel"`
	Detail  string    `json:"detail"`
}

// Aggregate is the campaign rollup as of ComputedAt. Recomputed
// wholesale each run, never mutated incrementally.
type Aggregate struct {
	CampaignKey   string          `json:"campaign_key"`
	Channels      []ChannelTotals `json:"channels"`
	Totals        ChannelTotals   `json:"totals"`
	TopPublishers []PublisherRank `json:"top_publishers,omitempty"`
	Anomalies     []FunnelAnomaly `json:"anomalies,omitempty"`
	Diagnostics   []Diagnostic    `json:"diagnostics,omitempty"`
	ComputedAt    time.Time       `json:"computed_at"`
}

// Artifact is the rendered report. Superseded, never mutated.
type Artifact struct {
	Bytes       []byte    `json:"bytes"`
	Fingerprint string    `json:"fingerprint"`
	RenderedAt  time.Time `json:"rendered_at"`
}

// Entry is one cache record keyed by fingerprint. Degraded marks a
// read served from the in-process tier only; it is never persisted.
type Entry struct {
	Fingerprint string    `json:"fingerprint"`
	CampaignKey string    `json:"campaign_key"`
	Aggregate   Aggregate `json:"aggregate"`
	Artifact    Artifact  `json:"artifact"`
	ComputedAt  time.Time `json:"computed_at"`
	Degraded    bool      `json:"-"`
}
