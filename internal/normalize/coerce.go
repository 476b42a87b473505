package normalize

import (
	"math"
	"strconv"
	"strings"
)

// currency symbols stripped before parsing
const currencyRunes = "$€£¥₹"

// Coerce turns a raw cell into a finite non-negative float. Any
// failure path returns 0 — never an error, never a panic. Rules:
// strip currency symbols and whitespace; comma is the decimal
// separator only when no dot conflicts; with both separators present
// the last one wins as decimal; any other residue rejects the value.
func Coerce(raw string) float64 {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0
	}

	var b strings.Builder
	for _, r := range s {
		switch {
		case r == ' ' || r == '\t' || r == '\u00a0':
			// thousands or padding whitespace
		case strings.ContainsRune(currencyRunes, r):
		default:
			b.WriteRune(r)
		}
	}
	s = b.String()
	if s == "" {
		return 0
	}

	neg := false
	if s[0] == '+' || s[0] == '-' {
		neg = s[0] == '-'
		s = s[1:]
	}
	for _, r := range s {
		if (r < '0' || r > '9') && r != '.' && r != ',' {
			return 0 // residuo no numérico
		}
	}

	s = resolveSeparators(s)

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	if neg || f < 0 {
		return 0
	}
	return f
}

// CoerceInt truncates the coerced float.
func CoerceInt(raw string) int64 { return int64(Coerce(raw)) }

func resolveSeparators(s string) string {
	dots := strings.Count(s, ".")
	commas := strings.Count(s, ",")
	switch {
	case dots > 0 && commas > 0:
		// el último separador es el decimal
		if strings.LastIndex(s, ".") > strings.LastIndex(s, ",") {
			return strings.ReplaceAll(s, ",", "")
		}
		s = strings.ReplaceAll(s, ".", "")
		return strings.Replace(s, ",", ".", 1)
	case commas == 1:
		return strings.Replace(s, ",", ".", 1)
	case commas > 1:
		return strings.ReplaceAll(s, ",", "")
	case dots > 1:
		return strings.ReplaceAll(s, ".", "")
	default:
		return s
	}
}
