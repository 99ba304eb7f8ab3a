package docx

import (
	"log"
	"slices"
	"sort"

	"docstyler/internal/domain"
)

// maxRemovalShare caps a single range at half of the document.
const maxRemovalShare = 0.5

// Range is an inclusive span of record positions bounded by a removal
// definition's start and end markers.
type Range struct {
	Name  string
	Start int
	End   int
}

func (r Range) Len() int { return r.End - r.Start + 1 }

// IdentifyRemovalRanges pairs every start marker with the next end marker of
// the same definition. A start without an end is reported and ignored.
func IdentifyRemovalRanges(paragraphs []domain.Paragraph, removals []domain.RemovalDefinition) []Range {
	var ranges []Range
	for _, def := range removals {
		start := -1
		for i, p := range paragraphs {
			if start < 0 && slices.Contains(p.Markers, def.StartMarker) {
				start = i
			}
			if start >= 0 && slices.Contains(p.Markers, def.EndMarker) {
				ranges = append(ranges, Range{Name: def.Name, Start: start, End: i})
				start = -1
			}
		}
		if start >= 0 {
			log.Printf("docx removal %q start at %d has no end marker, ignored", def.Name, start)
		}
	}
	return ranges
}

// ValidateRemovalRanges drops ranges that fall outside the document, cover
// more than half of it, or overlap an earlier accepted range.
func ValidateRemovalRanges(ranges []Range, total int) []Range {
	sorted := append([]Range(nil), ranges...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].End < sorted[j].End
	})

	var valid []Range
	for _, r := range sorted {
		if r.Start < 0 || r.End >= total || r.End < r.Start {
			log.Printf("docx removal range %d-%d out of bounds total=%d, ignored", r.Start, r.End, total)
			continue
		}
		if float64(r.Len()) > float64(total)*maxRemovalShare {
			log.Printf("docx removal range %d-%d too large (%d of %d), ignored", r.Start, r.End, r.Len(), total)
			continue
		}
		overlaps := false
		for _, v := range valid {
			if !(r.End < v.Start || r.Start > v.End) {
				log.Printf("docx removal range %d-%d overlaps %d-%d, ignored", r.Start, r.End, v.Start, v.End)
				overlaps = true
				break
			}
		}
		if !overlaps {
			valid = append(valid, r)
		}
	}
	return valid
}
