package render

import (
	"sort"
	"strconv"
	"strings"

	"github.com/davilam/campaign-reports-go/internal/models"
)

// Values flattens an aggregate into the placeholder value map. All
// formatting is deterministic so rendering stays idempotent.
func Values(agg models.Aggregate, contract models.Contract) map[string]string {
	t := agg.Totals
	v := map[string]string{
		"CLIENT":            contract.Client,
		"CAMPAIGN":          contract.Campaign,
		"PERIOD_START":      contract.Start.Format("2006-01-02"),
		"PERIOD_END":        contract.End.Format("2006-01-02"),
		"TOTAL_SPEND":       money(t.Spend),
		"TOTAL_IMPRESSIONS": strconv.FormatInt(t.Impressions, 10),
		"TOTAL_CLICKS":      strconv.FormatInt(t.Clicks, 10),
		"VIDEO_STARTS":      strconv.FormatInt(t.VideoStarts, 10),
		"VIDEO_COMPLETIONS": strconv.FormatInt(t.VideoCompletions, 10),
		"CPV":               ratio(t.CPV, 2),
		"VTR":               ratio(t.VTR, 4),
		"CTR":               ratio(t.CTR, 4),
		"PACING":            ratio(t.Pacing, 2),
		"TOP_PUBLISHERS":    publisherList(agg.TopPublishers),
		"ANOMALY_COUNT":     strconv.Itoa(len(agg.Anomalies)),
		"COMPUTED_AT":       agg.ComputedAt.UTC().Format("2006-01-02 15:04"),
	}
	return v
}

func money(f float64) string { return strconv.FormatFloat(f, 'f', 2, 64) }

func ratio(p *float64, decimals int) string {
	if p == nil {
		return "n/a"
	}
	return strconv.FormatFloat(*p, 'f', decimals, 64)
}

func publisherList(ranks []models.PublisherRank) string {
	if len(ranks) == 0 {
		return "-"
	}
	sorted := make([]models.PublisherRank, len(ranks))
	copy(sorted, ranks)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Spend != sorted[j].Spend {
			return sorted[i].Spend > sorted[j].Spend
		}
		return sorted[i].Publisher < sorted[j].Publisher
	})
	names := make([]string, len(sorted))
	for i, r := range sorted {
		names[i] = r.Publisher
	}
	return strings.Join(names, ", ")
}
