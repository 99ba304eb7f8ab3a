package docx

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"os"
	"sort"

	"docstyler/internal/domain"
)

type registeredStyle struct {
	def domain.StyleDefinition
	id  string
}

// ApplyStats reports how many records received a style.
type ApplyStats struct {
	Total    int
	Styled   int
	Unstyled int
	ByStyle  map[string]int
}

// Applier accumulates style assignments and removals for one document and
// renders them when the document is written.
type Applier struct {
	doc     *Document
	catalog *styleCatalog

	styles      map[string]registeredStyle // by marker
	newStyles   []string                   // rendered definitions to append
	stylesPart  []byte
	createdPart bool

	assigned map[int]string // body position -> styleId
	removed  map[int]bool   // body position
}

func NewApplier(doc *Document) (*Applier, error) {
	part := doc.parts[stylesPart]
	catalog, err := readStyleCatalog(part)
	if err != nil {
		return nil, fmt.Errorf("%w: styles: %v", ErrMalformed, err)
	}
	return &Applier{
		doc:        doc,
		catalog:    catalog,
		styles:     make(map[string]registeredStyle),
		stylesPart: part,
		assigned:   make(map[int]string),
		removed:    make(map[int]bool),
	}, nil
}

// RegisterStyles makes every definition available as a paragraph style. A
// style whose name already exists in the document is reused as is.
func (a *Applier) RegisterStyles(defs []domain.StyleDefinition) {
	for _, def := range defs {
		if _, ok := a.styles[def.Marker]; ok {
			continue
		}
		if id, ok := a.catalog.byName[def.WordStyle]; ok {
			a.styles[def.Marker] = registeredStyle{def: def, id: id}
			log.Printf("docx style reused name=%q id=%s marker=%s", def.WordStyle, id, def.Marker)
			continue
		}
		id := a.catalog.newStyleID(def.WordStyle)
		a.catalog.byName[def.WordStyle] = id
		a.styles[def.Marker] = registeredStyle{def: def, id: id}
		a.newStyles = append(a.newStyles, styleDefinitionXML(a.catalog.prefix, id, def.WordStyle, def.Color))
		log.Printf("docx style registered name=%q id=%s marker=%s color=%s", def.WordStyle, id, def.Marker, def.Color)
	}
}

// Apply assigns each paragraph record the style of its first registered
// marker. Table records and records without such a marker keep their style.
func (a *Applier) Apply(paragraphs []domain.Paragraph) ApplyStats {
	stats := ApplyStats{Total: len(paragraphs), ByStyle: make(map[string]int)}
	for _, p := range paragraphs {
		st, ok := a.firstStyle(p.Markers)
		if !ok || p.Kind != domain.KindParagraph {
			stats.Unstyled++
			continue
		}
		if p.Source.BodyPos < 0 || p.Source.BodyPos >= len(a.doc.body.elements) {
			log.Printf("docx record %d has no source element (body_pos=%d), skipped", p.Index, p.Source.BodyPos)
			stats.Unstyled++
			continue
		}
		a.assigned[p.Source.BodyPos] = st.id
		stats.Styled++
		stats.ByStyle[st.def.Name]++
	}
	log.Printf("docx apply total=%d styled=%d unstyled=%d", stats.Total, stats.Styled, stats.Unstyled)
	return stats
}

func (a *Applier) firstStyle(markers []string) (registeredStyle, bool) {
	for _, m := range markers {
		if st, ok := a.styles[m]; ok {
			return st, true
		}
	}
	return registeredStyle{}, false
}

// RemoveMarked deletes every body element inside a valid removal range and
// returns the ranges that were applied. Paragraphs that carry section
// properties are kept so page layout survives.
func (a *Applier) RemoveMarked(paragraphs []domain.Paragraph, removals []domain.RemovalDefinition) []Range {
	ranges := ValidateRemovalRanges(IdentifyRemovalRanges(paragraphs, removals), len(paragraphs))
	for _, r := range ranges {
		for i := r.Start; i <= r.End; i++ {
			pos := paragraphs[i].Source.BodyPos
			if pos < 0 || pos >= len(a.doc.body.elements) {
				continue
			}
			if a.doc.body.elements[pos].hasSectPr {
				log.Printf("docx kept section break at record %d inside removal %q", paragraphs[i].Index, r.Name)
				continue
			}
			a.removed[pos] = true
		}
		log.Printf("docx removal %q records=%d-%d", r.Name, r.Start, r.End)
	}
	return ranges
}

type edit struct {
	span
	repl string
}

func (a *Applier) render() (map[string][]byte, error) {
	parts := make(map[string][]byte, len(a.doc.parts)+1)
	for k, v := range a.doc.parts {
		parts[k] = v
	}

	if len(a.newStyles) > 0 {
		part := a.stylesPart
		if len(part) == 0 {
			part = minimalStylesXML()
			if err := linkStylesPart(parts); err != nil {
				return nil, fmt.Errorf("link styles part: %w", err)
			}
		}
		closeTag := "</" + a.catalog.prefix + ":styles>"
		var frag bytes.Buffer
		for _, s := range a.newStyles {
			frag.WriteString(s)
		}
		updated, err := insertBeforeClose(part, closeTag, frag.String())
		if err != nil {
			return nil, err
		}
		parts[stylesPart] = updated
	}

	if len(a.assigned) > 0 || len(a.removed) > 0 {
		parts[documentPart] = applyEdits(a.doc.parts[documentPart], a.edits())
	}
	return parts, nil
}

func (a *Applier) edits() []edit {
	data := a.doc.parts[documentPart]
	pfx := a.doc.body.prefix + ":"
	var edits []edit
	for pos, el := range a.doc.body.elements {
		if a.removed[pos] {
			edits = append(edits, edit{span: el.outer})
			continue
		}
		id, ok := a.assigned[pos]
		if !ok {
			continue
		}
		pStyle := fmt.Sprintf(`<%spStyle %sval="%s"/>`, pfx, pfx, id)
		switch {
		case el.selfClosing:
			raw := string(data[el.outer.start:el.outer.end])
			edits = append(edits, edit{span: el.outer, repl: raw[:len(raw)-2] + "><" + pfx + "pPr>" + pStyle + "</" + pfx + "pPr></" + pfx + "p>"})
		case el.pStyle.valid():
			edits = append(edits, edit{span: el.pStyle, repl: pStyle})
		case el.pPr.valid() && el.pPrSelfClosing:
			raw := string(data[el.pPr.start:el.pPr.end])
			edits = append(edits, edit{span: el.pPr, repl: raw[:len(raw)-2] + ">" + pStyle + "</" + pfx + "pPr>"})
		case el.pPr.valid():
			edits = append(edits, edit{span: span{el.pPrOpenEnd, el.pPrOpenEnd}, repl: pStyle})
		default:
			edits = append(edits, edit{span: span{el.openEnd, el.openEnd}, repl: "<" + pfx + "pPr>" + pStyle + "</" + pfx + "pPr>"})
		}
	}
	return edits
}

// applyEdits splices non-overlapping edits into data.
func applyEdits(data []byte, edits []edit) []byte {
	sort.SliceStable(edits, func(i, j int) bool { return edits[i].start < edits[j].start })
	var out bytes.Buffer
	out.Grow(len(data))
	var cursor int64
	for _, e := range edits {
		out.Write(data[cursor:e.start])
		out.WriteString(e.repl)
		cursor = e.end
	}
	out.Write(data[cursor:])
	return out.Bytes()
}

func (a *Applier) WriteTo(w io.Writer) (int64, error) {
	parts, err := a.render()
	if err != nil {
		return 0, err
	}
	return a.doc.write(w, parts)
}

// Save writes the styled package to path.
func (a *Applier) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := a.WriteTo(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	log.Printf("docx saved path=%s styled=%d removed=%d", path, len(a.assigned), len(a.removed))
	return nil
}
