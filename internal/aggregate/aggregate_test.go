package aggregate

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davilam/campaign-reports-go/internal/models"
)

func contract() models.Contract {
	start, _ := time.Parse("2006-01-02", "2025-09-08")
	end, _ := time.Parse("2006-01-02", "2025-10-05")
	return models.Contract{
		Client:   "acme",
		Campaign: "q4-video",
		Version:  1,
		Start:    start,
		End:      end,
		Budgets:  map[string]float64{"youtube": 20000, "dv360": 10000},
	}
}

func TestTotalsEqualSumOfChannels(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	channels := []string{"youtube", "dv360", "meta"}
	var records []models.Record
	for i := 0; i < 200; i++ {
		records = append(records, models.Record{
			Date:             contract().Start.AddDate(0, 0, i%28),
			Channel:          channels[rng.Intn(len(channels))],
			Spend:            float64(rng.Intn(10000)) / 100,
			Impressions:      int64(rng.Intn(100000)),
			Clicks:           int64(rng.Intn(1000)),
			VideoStarts:      int64(rng.Intn(50000)),
			VideoCompletions: int64(rng.Intn(1000)),
		})
	}

	agg := Build("camp-1", contract(), records, nil, 5, time.Now())

	var spend float64
	var imps, clicks, starts, completions int64
	for _, ch := range agg.Channels {
		spend += ch.Spend
		imps += ch.Impressions
		clicks += ch.Clicks
		starts += ch.VideoStarts
		completions += ch.VideoCompletions
	}
	assert.InDelta(t, spend, agg.Totals.Spend, 1e-9)
	assert.Equal(t, imps, agg.Totals.Impressions)
	assert.Equal(t, clicks, agg.Totals.Clicks)
	assert.Equal(t, starts, agg.Totals.VideoStarts)
	assert.Equal(t, completions, agg.Totals.VideoCompletions)
}

func TestRatiosUndefinedOnZeroDenominator(t *testing.T) {
	records := []models.Record{{
		Date:    contract().Start,
		Channel: "youtube",
		Spend:   500,
		// sin impresiones, starts ni completions
	}}
	agg := Build("camp-1", contract(), records, nil, 5, time.Now())
	require.Len(t, agg.Channels, 1)
	ch := agg.Channels[0]
	assert.Nil(t, ch.CPV)
	assert.Nil(t, ch.VTR)
	assert.Nil(t, ch.CTR)
}

func TestFunnelAnomalyFlaggedNotCorrected(t *testing.T) {
	records := []models.Record{{
		Date:             contract().Start,
		Channel:          "youtube",
		VideoStarts:      100,
		VideoQ25:         90,
		VideoQ50:         95, // viola q50 <= q25
		VideoQ75:         40,
		VideoCompletions: 30,
	}}
	agg := Build("camp-1", contract(), records, nil, 5, time.Now())
	require.Len(t, agg.Anomalies, 1)
	assert.Equal(t, "youtube", agg.Anomalies[0].Channel)
	// los valores quedan como llegaron
	assert.Equal(t, int64(95), agg.Channels[0].VideoQ50)
}

func TestPacingHalfwayOnBudget(t *testing.T) {
	c := contract()
	// mitad del periodo, mitad del presupuesto del canal gastado
	now := c.Start.Add(c.End.Sub(c.Start) / 2)
	records := []models.Record{{
		Date:    c.Start,
		Channel: "youtube",
		Spend:   10000,
	}}
	agg := Build("camp-1", c, records, nil, 5, now)
	require.Len(t, agg.Channels, 1)
	require.NotNil(t, agg.Channels[0].Pacing)
	assert.InDelta(t, 1.0, *agg.Channels[0].Pacing, 1e-9)
}

func TestPacingClampedAfterPeriodEnd(t *testing.T) {
	c := contract()
	now := c.End.AddDate(0, 1, 0)
	records := []models.Record{{Date: c.Start, Channel: "youtube", Spend: 20000}}
	agg := Build("camp-1", c, records, nil, 5, now)
	require.NotNil(t, agg.Channels[0].Pacing)
	assert.InDelta(t, 1.0, *agg.Channels[0].Pacing, 1e-9)
}

func TestTopPublishersOrderAndTies(t *testing.T) {
	c := contract()
	records := []models.Record{
		{Date: c.Start, Channel: "youtube", Publisher: "zeta", Spend: 100},
		{Date: c.Start, Channel: "youtube", Publisher: "alpha", Spend: 100},
		{Date: c.Start, Channel: "youtube", Publisher: "mid", Spend: 300},
		{Date: c.Start, Channel: "youtube", Publisher: "tiny", Spend: 1},
	}
	agg := Build("camp-1", c, records, nil, 3, time.Now())
	require.Len(t, agg.TopPublishers, 3)
	assert.Equal(t, "mid", agg.TopPublishers[0].Publisher)
	// empate roto por nombre ascendente
	assert.Equal(t, "alpha", agg.TopPublishers[1].Publisher)
	assert.Equal(t, "zeta", agg.TopPublishers[2].Publisher)
}
