package normalize

import (
	"fmt"
	"strings"
	"time"

	"github.com/davilam/campaign-reports-go/internal/config"
	"github.com/davilam/campaign-reports-go/internal/models"
)

var dateLayouts = []string{"2006-01-02", "02/01/2006", "2006/01/02"}

// Normalize maps raw rows onto canonical records using the channel's
// declared field mapping. Pure: same inputs, same output. Recoverable
// conditions become diagnostics, never errors — a missing column
// yields zeros, an out-of-period row is kept and flagged.
func Normalize(src config.ChannelSource, rows []models.Row, contract models.Contract) ([]models.Record, []models.Diagnostic) {
	if len(rows) == 0 {
		return nil, nil
	}

	var diags []models.Diagnostic

	// índice de cabeceras, case-insensitive
	header := map[string]int{}
	for i, cell := range rows[0].Cells {
		header[strings.ToLower(strings.TrimSpace(cell))] = i
	}

	cols := map[string]int{} // canonical field -> column, -1 when absent
	for canonical, raw := range src.FieldColumns() {
		idx, ok := header[strings.ToLower(strings.TrimSpace(raw))]
		if !ok {
			idx = -1
			diags = append(diags, models.Diagnostic{
				Kind:    models.DiagSchemaMismatch,
				Channel: src.Channel,
				Row:     -1,
				Field:   canonical,
				Detail:  fmt.Sprintf("column %q not found, defaulting to 0", raw),
			})
		}
		cols[canonical] = idx
	}

	pubCol := -1
	if src.PublisherColumn != "" {
		if idx, ok := header[strings.ToLower(src.PublisherColumn)]; ok {
			pubCol = idx
		}
	}
	extraCols := map[string]int{} // metric name -> column
	for raw, name := range src.ExtraColumns {
		if idx, ok := header[strings.ToLower(strings.TrimSpace(raw))]; ok {
			extraCols[name] = idx
		}
	}

	records := make([]models.Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		cell := func(field string) string {
			idx := cols[field]
			if idx < 0 || idx >= len(row.Cells) {
				return ""
			}
			return row.Cells[idx]
		}

		date, ok := parseDate(cell(models.FieldDate))
		if !ok {
			diags = append(diags, models.Diagnostic{
				Kind:    models.DiagBadDate,
				Channel: src.Channel,
				Row:     row.Index,
				Field:   models.FieldDate,
				Detail:  fmt.Sprintf("unparseable date %q", cell(models.FieldDate)),
			})
			continue
		}

		rec := models.Record{
			Date:             date,
			Channel:          src.Channel,
			Spend:            Coerce(cell(models.FieldSpend)),
			Impressions:      CoerceInt(cell(models.FieldImpressions)),
			Clicks:           CoerceInt(cell(models.FieldClicks)),
			VideoStarts:      CoerceInt(cell(models.FieldVideoStarts)),
			VideoQ25:         CoerceInt(cell(models.FieldVideoQ25)),
			VideoQ50:         CoerceInt(cell(models.FieldVideoQ50)),
			VideoQ75:         CoerceInt(cell(models.FieldVideoQ75)),
			VideoCompletions: CoerceInt(cell(models.FieldVideoCompletions)),
		}
		if pubCol >= 0 && pubCol < len(row.Cells) {
			rec.Publisher = strings.TrimSpace(row.Cells[pubCol])
		}
		for name, idx := range extraCols {
			if idx >= len(row.Cells) {
				continue
			}
			if rec.Extra == nil {
				rec.Extra = map[string]float64{}
			}
			rec.Extra[name] = Coerce(row.Cells[idx])
		}

		if !contract.Contains(date) {
			diags = append(diags, models.Diagnostic{
				Kind:    models.DiagOutOfPeriod,
				Channel: src.Channel,
				Row:     row.Index,
				Detail:  date.Format("2006-01-02") + " outside contract period",
			})
		}

		records = append(records, rec)
	}
	return records, diags
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, s); err == nil {
			return d, true
		}
	}
	return time.Time{}, false
}
