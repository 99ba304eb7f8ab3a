package classify

import (
	"strings"

	"docstyler/internal/domain"
)

const (
	veryShortLimit      = 10
	maxResidueExamples  = 20
	residueExampleLimit = 120
	formattingChars     = ".-_=~*#@$%&()[]{}|\\/:;,<>!? \t\n0123456789"
)

type ResidueExample struct {
	Index int
	Text  string
}

// Residue breaks down the records that ended unmarked, to tell leftover
// formatting apart from real content the model missed.
type Residue struct {
	Empty       int
	VeryShort   int
	Formatting  int
	RealContent int
	Examples    []ResidueExample
}

func AnalyzeResidue(paragraphs []domain.Paragraph) Residue {
	var r Residue
	for _, p := range paragraphs {
		if p.Marked() {
			continue
		}
		text := strings.TrimSpace(p.Text)
		switch {
		case text == "":
			r.Empty++
		case len([]rune(text)) < veryShortLimit:
			r.VeryShort++
		case strings.Trim(text, formattingChars) == "":
			r.Formatting++
		default:
			r.RealContent++
			if len(r.Examples) < maxResidueExamples {
				r.Examples = append(r.Examples, ResidueExample{Index: p.Index, Text: truncateRunes(text, residueExampleLimit)})
			}
		}
	}
	return r
}
