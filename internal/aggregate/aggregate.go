package aggregate

import (
	"fmt"
	"sort"
	"time"

	"github.com/davilam/campaign-reports-go/internal/models"
)

// Build computes the campaign rollup from the full record set as of
// now. Pure function: no retained state, recomputed wholesale each
// run. Campaign totals are the sum of per-channel totals by
// construction (the reconciliation invariant lives in tests).
func Build(campaignKey string, contract models.Contract, records []models.Record, diags []models.Diagnostic, topN int, now time.Time) models.Aggregate {
	byChannel := map[string]*models.ChannelTotals{}
	var anomalies []models.FunnelAnomaly

	for _, r := range records {
		ct, ok := byChannel[r.Channel]
		if !ok {
			ct = &models.ChannelTotals{Channel: r.Channel}
			byChannel[r.Channel] = ct
		}
		ct.Spend += r.Spend
		ct.Impressions += r.Impressions
		ct.Clicks += r.Clicks
		ct.VideoStarts += r.VideoStarts
		ct.VideoQ25 += r.VideoQ25
		ct.VideoQ50 += r.VideoQ50
		ct.VideoQ75 += r.VideoQ75
		ct.VideoCompletions += r.VideoCompletions

		if detail, bad := funnelViolation(r); bad {
			// se registra, no se corrige
			anomalies = append(anomalies, models.FunnelAnomaly{
				Date:    r.Date,
				Channel: r.Channel,
				Detail:  detail,
			})
		}
	}

	channels := make([]models.ChannelTotals, 0, len(byChannel))
	totals := models.ChannelTotals{Channel: "total"}
	for _, ct := range byChannel {
		totals.Spend += ct.Spend
		totals.Impressions += ct.Impressions
		totals.Clicks += ct.Clicks
		totals.VideoStarts += ct.VideoStarts
		totals.VideoQ25 += ct.VideoQ25
		totals.VideoQ50 += ct.VideoQ50
		totals.VideoQ75 += ct.VideoQ75
		totals.VideoCompletions += ct.VideoCompletions

		deriveRatios(ct)
		ct.Pacing = pacing(ct.Spend, contract.Budgets[ct.Channel], contract, now)
		channels = append(channels, *ct)
	}
	// orden determinista
	sort.Slice(channels, func(i, j int) bool { return channels[i].Channel < channels[j].Channel })

	deriveRatios(&totals)
	totals.Pacing = pacing(totals.Spend, contract.TotalBudget(), contract, now)

	return models.Aggregate{
		CampaignKey:   campaignKey,
		Channels:      channels,
		Totals:        totals,
		TopPublishers: topPublishers(records, topN),
		Anomalies:     anomalies,
		Diagnostics:   diags,
		ComputedAt:    now,
	}
}

// deriveRatios fills CPV, VTR, CTR; nil when the denominator is zero.
func deriveRatios(ct *models.ChannelTotals) {
	ct.CPV = ratio(ct.Spend, float64(ct.VideoCompletions))
	ct.VTR = ratio(float64(ct.VideoCompletions), float64(ct.VideoStarts))
	ct.CTR = ratio(float64(ct.Clicks), float64(ct.Impressions))
}

func ratio(num, den float64) *float64 {
	if den == 0 {
		return nil
	}
	v := num / den
	return &v
}

// pacing compares actual spend progression against the contractually
// expected progression: spend / (budget * elapsedFraction), elapsed
// clamped to [0,1]. Nil when budget or elapsed is zero.
func pacing(spend, budget float64, contract models.Contract, now time.Time) *float64 {
	period := contract.End.Sub(contract.Start)
	if period <= 0 || budget == 0 {
		return nil
	}
	elapsed := float64(now.Sub(contract.Start)) / float64(period)
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed > 1 {
		elapsed = 1
	}
	expected := budget * elapsed
	return ratio(spend, expected)
}

// funnelViolation checks completions <= q75 <= q50 <= q25 <= starts.
func funnelViolation(r models.Record) (string, bool) {
	steps := []struct {
		name  string
		value int64
	}{
		{models.FieldVideoStarts, r.VideoStarts},
		{models.FieldVideoQ25, r.VideoQ25},
		{models.FieldVideoQ50, r.VideoQ50},
		{models.FieldVideoQ75, r.VideoQ75},
		{models.FieldVideoCompletions, r.VideoCompletions},
	}
	for i := 1; i < len(steps); i++ {
		if steps[i].value > steps[i-1].value {
			return fmt.Sprintf("%s %d > %s %d",
				steps[i].name, steps[i].value, steps[i-1].name, steps[i-1].value), true
		}
	}
	return "", false
}

// topPublishers ranks publishers by spend descending, name ascending
// on ties, capped at n.
func topPublishers(records []models.Record, n int) []models.PublisherRank {
	if n <= 0 {
		n = 5
	}
	byPub := map[string]*models.PublisherRank{}
	for _, r := range records {
		if r.Publisher == "" {
			continue
		}
		pr, ok := byPub[r.Publisher]
		if !ok {
			pr = &models.PublisherRank{Publisher: r.Publisher}
			byPub[r.Publisher] = pr
		}
		pr.Spend += r.Spend
		pr.Impressions += r.Impressions
	}
	if len(byPub) == 0 {
		return nil
	}
	ranks := make([]models.PublisherRank, 0, len(byPub))
	for _, pr := range byPub {
		ranks = append(ranks, *pr)
	}
	sort.Slice(ranks, func(i, j int) bool {
		if ranks[i].Spend != ranks[j].Spend {
			return ranks[i].Spend > ranks[j].Spend
		}
		return ranks[i].Publisher < ranks[j].Publisher
	})
	if len(ranks) > n {
		ranks = ranks[:n]
	}
	return ranks
}
