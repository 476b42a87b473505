package render

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

type Mode int

const (
	// Strict aborts on any placeholder/value mismatch; the previous
	// artifact stays in place.
	Strict Mode = iota
	// Lenient leaves unresolved placeholders as-is, for diagnostic
	// previews only.
	Lenient
)

var placeholderRe = regexp.MustCompile(`\{\{([A-Z0-9_]+)\}\}`)

// RenderError: the template and the supplied values disagree.
type RenderError struct {
	Missing []string // placeholders with no value
	Extra   []string // values with no placeholder
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render: missing values for %v, extra values %v", e.Missing, e.Extra)
}

// Template carries the raw bytes plus the placeholder set enumerated
// at load time — never discovered lazily during substitution.
type Template struct {
	raw   []byte
	names []string // sorted, unique
}

func Load(b []byte) (*Template, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("render: empty template")
	}
	set := map[string]struct{}{}
	for _, m := range placeholderRe.FindAllSubmatch(b, -1) {
		set[string(m[1])] = struct{}{}
	}
	names := make([]string, 0, len(set))
	for n := range set {
		names = append(names, n)
	}
	sort.Strings(names)
	raw := make([]byte, len(b))
	copy(raw, b)
	return &Template{raw: raw, names: names}, nil
}

func (t *Template) Placeholders() []string {
	out := make([]string, len(t.names))
	copy(out, t.names)
	return out
}

// Render substitutes values into the template. Pure and idempotent:
// equal template and values produce byte-identical output. The
// returned slice lists unresolved placeholders (lenient mode only).
func (t *Template) Render(values map[string]string, mode Mode) ([]byte, []string, error) {
	var missing, extra []string
	for _, n := range t.names {
		if _, ok := values[n]; !ok {
			missing = append(missing, n)
		}
	}
	known := map[string]struct{}{}
	for _, n := range t.names {
		known[n] = struct{}{}
	}
	for k := range values {
		if _, ok := known[k]; !ok {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)

	if mode == Strict && (len(missing) > 0 || len(extra) > 0) {
		return nil, nil, &RenderError{Missing: missing, Extra: extra}
	}

	pairs := make([]string, 0, 2*len(values))
	for _, n := range t.names {
		if v, ok := values[n]; ok {
			pairs = append(pairs, "{{"+n+"}}", v)
		}
	}
	out := strings.NewReplacer(pairs...).Replace(string(t.raw))
	return []byte(out), missing, nil
}
