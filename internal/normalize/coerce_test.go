package normalize

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCoerceMalformedNeverPanics(t *testing.T) {
	cases := map[string]float64{
		"":           0,
		"   ":        0,
		"abc":        0,
		"12abc":      0,
		"10%":        0,
		"-5":         0,
		"-5.5":       0,
		"1e3":        0, // exponent counts as residue
		"$100":       100,
		"$ 42":       42,
		"€1.234,56":  1234.56,
		"1,234.56":   1234.56,
		"£ 2,500.00": 2500,
		"12,5":       12.5,
		"1 000":      1000,
		"1\u00a0000": 1000,
		"1.234.567":  1234567,
		"1,234,567":  1234567,
		"3.14":       3.14,
		"0":          0,
		"+7":         7,
		"¥1000":      1000,
		"  250.75  ": 250.75,
	}
	for in, want := range cases {
		got := Coerce(in)
		assert.Equalf(t, want, got, "Coerce(%q)", in)
		assert.Falsef(t, math.IsNaN(got) || math.IsInf(got, 0), "Coerce(%q) not finite", in)
		assert.GreaterOrEqualf(t, got, 0.0, "Coerce(%q) negative", in)
	}
}

func TestCoerceIntTruncates(t *testing.T) {
	assert.Equal(t, int64(12), CoerceInt("12,9"))
	assert.Equal(t, int64(0), CoerceInt("garbage"))
	assert.Equal(t, int64(1234), CoerceInt("1.234,99"))
}
