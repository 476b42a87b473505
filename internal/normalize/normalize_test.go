package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davilam/campaign-reports-go/internal/config"
	"github.com/davilam/campaign-reports-go/internal/models"
)

func testChannel() config.ChannelSource {
	return config.ChannelSource{
		Channel: "youtube",
		Mapping: map[string]string{
			"Day":         models.FieldDate,
			"Cost":        models.FieldSpend,
			"Impr.":       models.FieldImpressions,
			"Clicks":      models.FieldClicks,
			"Starts":      models.FieldVideoStarts,
			"25%":         models.FieldVideoQ25,
			"50%":         models.FieldVideoQ50,
			"75%":         models.FieldVideoQ75,
			"Completions": models.FieldVideoCompletions,
		},
		PublisherColumn: "Publisher",
	}
}

func testContract() models.Contract {
	start, _ := time.Parse("2006-01-02", "2025-09-08")
	end, _ := time.Parse("2006-01-02", "2025-10-05")
	return models.Contract{Start: start, End: end}
}

func rows(cells ...[]string) []models.Row {
	out := make([]models.Row, len(cells))
	for i, c := range cells {
		out[i] = models.Row{Index: i, Cells: c}
	}
	return out
}

func TestNormalizeCaseInsensitiveHeaders(t *testing.T) {
	in := rows(
		[]string{"DAY", "cost", "IMPR.", "clicks", "starts", "25%", "50%", "75%", "COMPLETIONS", "publisher"},
		[]string{"2025-09-10", "€1.000,50", "5000", "120", "900", "800", "700", "600", "500", "pub-a"},
	)
	recs, diags := Normalize(testChannel(), in, testContract())
	require.Len(t, recs, 1)
	assert.Empty(t, diags)

	r := recs[0]
	assert.Equal(t, "youtube", r.Channel)
	assert.Equal(t, 1000.50, r.Spend)
	assert.Equal(t, int64(5000), r.Impressions)
	assert.Equal(t, int64(500), r.VideoCompletions)
	assert.Equal(t, "pub-a", r.Publisher)
}

func TestNormalizeMissingColumnDefaultsToZero(t *testing.T) {
	ch := testChannel()
	ch.Mapping["Conversions"] = models.FieldClicks // column absent from the sheet
	delete(ch.Mapping, "Clicks")

	in := rows(
		[]string{"Day", "Cost", "Impr.", "Starts", "25%", "50%", "75%", "Completions"},
		[]string{"2025-09-10", "100", "1000", "900", "800", "700", "600", "500"},
	)
	recs, diags := Normalize(ch, in, testContract())
	require.Len(t, recs, 1)
	assert.Equal(t, int64(0), recs[0].Clicks)

	var found bool
	for _, d := range diags {
		if d.Kind == models.DiagSchemaMismatch && d.Field == models.FieldClicks {
			found = true
		}
	}
	assert.True(t, found, "expected schema mismatch diagnostic for clicks")
}

func TestNormalizeOutOfPeriodKeptAndFlagged(t *testing.T) {
	in := rows(
		[]string{"Day", "Cost", "Impr.", "Clicks", "Starts", "25%", "50%", "75%", "Completions"},
		[]string{"2025-08-01", "50", "100", "10", "90", "80", "70", "60", "50"},
	)
	recs, diags := Normalize(testChannel(), in, testContract())
	require.Len(t, recs, 1, "out-of-period rows are kept, not discarded")

	var flagged bool
	for _, d := range diags {
		if d.Kind == models.DiagOutOfPeriod {
			flagged = true
		}
	}
	assert.True(t, flagged)
}

func TestNormalizeBadDateSkipsRow(t *testing.T) {
	in := rows(
		[]string{"Day", "Cost", "Impr.", "Clicks", "Starts", "25%", "50%", "75%", "Completions"},
		[]string{"not-a-date", "50", "100", "10", "90", "80", "70", "60", "50"},
		[]string{"2025-09-10", "50", "100", "10", "90", "80", "70", "60", "50"},
	)
	recs, diags := Normalize(testChannel(), in, testContract())
	require.Len(t, recs, 1)

	var bad bool
	for _, d := range diags {
		if d.Kind == models.DiagBadDate {
			bad = true
		}
	}
	assert.True(t, bad)
}

func TestNormalizeEmptyInput(t *testing.T) {
	recs, diags := Normalize(testChannel(), nil, testContract())
	assert.Empty(t, recs)
	assert.Empty(t, diags)
}
