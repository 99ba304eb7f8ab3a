package domain

// Kind identifies which document element a Paragraph was extracted from.
type Kind string

const (
	KindParagraph Kind = "paragraph"
	KindTable     Kind = "table"
)

// Status tells apart "the model found no marker" from "the model never saw this record".
type Status string

const (
	StatusPending    Status = "pending"
	StatusClassified Status = "classified"
	StatusFailed     Status = "failed"
)

type Run struct {
	Text      string
	Bold      bool
	Italic    bool
	Underline bool
	FontSize  float64 // points, 0 when inherited
	Color     string  // RRGGBB, empty when inherited
}

// SourceRef locates the element inside the original container. Only the docx
// package reads it.
type SourceRef struct {
	BodyPos   int // position among the body's top-level paragraphs and tables
	ParaIndex int // position among body-level paragraphs, -1 for tables
}

// Paragraph is one classifiable document element. Index is assigned once by the
// reader, in document order, and is never renumbered.
type Paragraph struct {
	Index    int
	Kind     Kind
	Text     string
	Style    string
	Runs     []Run
	HasImage bool
	Source   SourceRef

	Markers []string
	Status  Status
}

func (p Paragraph) Marked() bool {
	return len(p.Markers) > 0
}

// Clone returns a copy that shares no slices with p.
func (p Paragraph) Clone() Paragraph {
	c := p
	if p.Runs != nil {
		c.Runs = append([]Run(nil), p.Runs...)
	}
	if p.Markers != nil {
		c.Markers = append([]string(nil), p.Markers...)
	}
	return c
}

func CloneAll(paragraphs []Paragraph) []Paragraph {
	out := make([]Paragraph, len(paragraphs))
	for i, p := range paragraphs {
		out[i] = p.Clone()
	}
	return out
}

// CountMarked rescans the sequence; marked/unmarked are never kept as running totals.
func CountMarked(paragraphs []Paragraph) (marked, unmarked int) {
	for _, p := range paragraphs {
		if p.Marked() {
			marked++
		} else {
			unmarked++
		}
	}
	return marked, unmarked
}

func Unmarked(paragraphs []Paragraph) []Paragraph {
	var out []Paragraph
	for _, p := range paragraphs {
		if !p.Marked() {
			out = append(out, p)
		}
	}
	return out
}
