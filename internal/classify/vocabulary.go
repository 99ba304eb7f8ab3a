package classify

import (
	"sort"
	"strings"

	"docstyler/internal/domain"
)

// Vocabulary is the closed set of markers a run may assign: every style marker
// plus both boundary markers of every removal definition.
type Vocabulary struct {
	markers map[string]struct{}
}

func NewVocabulary(set *domain.StyleSet) *Vocabulary {
	v := &Vocabulary{markers: make(map[string]struct{})}
	if set == nil {
		return v
	}
	for _, st := range set.Styles {
		v.add(st.Marker)
	}
	for _, r := range set.Removals {
		v.add(r.StartMarker)
		v.add(r.EndMarker)
	}
	return v
}

func (v *Vocabulary) add(marker string) {
	marker = strings.TrimSpace(marker)
	if marker != "" {
		v.markers[marker] = struct{}{}
	}
}

func (v *Vocabulary) Contains(marker string) bool {
	_, ok := v.markers[marker]
	return ok
}

func (v *Vocabulary) Len() int {
	return len(v.markers)
}

// Markers returns the vocabulary sorted, for logging and tests.
func (v *Vocabulary) Markers() []string {
	out := make([]string, 0, len(v.markers))
	for m := range v.markers {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// Resolve maps a model-emitted marker onto the vocabulary. It accepts an exact
// match, then the marker wrapped in double brackets, then the marker with any
// stray brackets stripped and rewrapped.
func (v *Vocabulary) Resolve(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if v.Contains(raw) {
		return raw, true
	}
	if !strings.HasPrefix(raw, "[[") && !strings.HasSuffix(raw, "]]") {
		if wrapped := "[[" + raw + "]]"; v.Contains(wrapped) {
			return wrapped, true
		}
	}
	inner := strings.TrimSpace(strings.Trim(raw, "[]"))
	if inner == "" {
		return "", false
	}
	if rewrapped := "[[" + inner + "]]"; v.Contains(rewrapped) {
		return rewrapped, true
	}
	return "", false
}
