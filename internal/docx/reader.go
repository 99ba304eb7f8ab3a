package docx

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"docstyler/internal/domain"
)

const wordNS = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"

// span is a byte range [start, end) of document.xml.
type span struct {
	start, end int64
}

func (s span) valid() bool { return s.end > s.start }

// element is one top-level child of w:body with the offsets needed to edit it.
type element struct {
	kind        domain.Kind
	bodyPos     int
	paraIndex   int
	outer       span
	selfClosing bool
	openEnd     int64 // just past the start tag

	pPr            span
	pPrOpenEnd     int64
	pPrSelfClosing bool
	pStyle         span

	style     string
	text      string
	runs      []domain.Run
	hasImage  bool
	hasSectPr bool
}

type body struct {
	prefix   string
	elements []*element
	sections int
}

// records lists paragraphs and non-empty tables in body order.
func (b *body) records() []domain.Paragraph {
	var out []domain.Paragraph
	for _, el := range b.elements {
		if el.kind == domain.KindTable && strings.TrimSpace(el.text) == "" {
			continue
		}
		out = append(out, domain.Paragraph{
			Index:    len(out),
			Kind:     el.kind,
			Text:     el.text,
			Style:    el.style,
			Runs:     append([]domain.Run(nil), el.runs...),
			HasImage: el.hasImage,
			Source:   domain.SourceRef{BodyPos: el.bodyPos, ParaIndex: el.paraIndex},
			Status:   domain.StatusPending,
		})
	}
	return out
}

type frame struct {
	name  string
	start int64
}

type bodyParser struct {
	data   []byte
	prefix string
	stack  []frame
	out    *body

	bodyDepth int
	cur       *element
	run       *domain.Run
	text      strings.Builder
	row       []string
	cellText  strings.Builder
	tableRows []string
	paraCount int
	inCell    bool
}

func parseBody(data []byte) (*body, error) {
	p := &bodyParser{data: data, prefix: "w", out: &body{}, bodyDepth: -1}
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		pos := dec.InputOffset()
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		after := dec.InputOffset()
		switch t := tok.(type) {
		case xml.StartElement:
			p.start(t, pos, after)
		case xml.EndElement:
			if err := p.end(t, after); err != nil {
				return nil, err
			}
		case xml.CharData:
			p.chars(t)
		}
	}
	if p.bodyDepth < 0 {
		return nil, fmt.Errorf("document has no body")
	}
	p.out.prefix = p.prefix
	return p.out, nil
}

func (p *bodyParser) parentIs(local string) bool {
	return len(p.stack) > 0 && p.stack[len(p.stack)-1].name == local
}

func (p *bodyParser) selfClosing(pos, after int64) bool {
	return bytes.HasSuffix(bytes.TrimRight(p.data[pos:after], " \t\r\n"), []byte("/>"))
}

func (p *bodyParser) start(t xml.StartElement, pos, after int64) {
	if len(p.stack) == 0 {
		for _, a := range t.Attr {
			if a.Name.Space == "xmlns" && a.Value == wordNS {
				p.prefix = a.Name.Local
			}
		}
	}
	depth := len(p.stack)
	local := ""
	if t.Name.Space == wordNS {
		local = t.Name.Local
	}

	switch {
	case local == "body" && p.bodyDepth < 0:
		p.bodyDepth = depth + 1
	case p.bodyDepth >= 0 && depth == p.bodyDepth:
		p.beginTopLevel(local, pos, after)
	case p.cur != nil:
		p.beginNested(t, local, depth, pos, after)
	}
	p.stack = append(p.stack, frame{name: local, start: pos})
}

func (p *bodyParser) beginTopLevel(local string, pos, after int64) {
	switch local {
	case "p":
		p.cur = &element{kind: domain.KindParagraph, paraIndex: p.paraCount, openEnd: after, selfClosing: p.selfClosing(pos, after)}
		p.paraCount++
	case "tbl":
		p.cur = &element{kind: domain.KindTable, paraIndex: -1, openEnd: after}
		p.tableRows = nil
	case "sectPr":
		p.out.sections++
		return
	default:
		return
	}
	p.cur.outer.start = pos
	p.cur.bodyPos = len(p.out.elements)
	p.text.Reset()
}

func (p *bodyParser) beginNested(t xml.StartElement, local string, depth int, pos, after int64) {
	el := p.cur
	if el.kind == domain.KindParagraph && depth == p.bodyDepth+1 && local == "pPr" {
		el.pPr.start = pos
		el.pPrOpenEnd = after
		el.pPrSelfClosing = p.selfClosing(pos, after)
	}
	if el.kind == domain.KindParagraph && depth == p.bodyDepth+2 && p.parentIs("pPr") && local == "pStyle" {
		el.pStyle.start = pos
		el.style = p.attr(t, "val")
	}

	switch local {
	case "sectPr":
		el.hasSectPr = true
		p.out.sections++
	case "drawing", "pict":
		el.hasImage = true
	case "r":
		p.run = &domain.Run{}
	case "b", "i", "u", "sz", "color":
		if p.run != nil && p.parentIs("rPr") {
			applyRunProperty(p.run, local, p.attr(t, "val"))
		}
	case "tab":
		if p.parentIs("r") {
			p.write("\t")
		}
	case "br", "cr":
		if p.parentIs("r") {
			p.write("\n")
		}
	case "tr":
		if depth == p.bodyDepth+1 {
			p.row = nil
		}
	case "tc":
		if depth == p.bodyDepth+2 {
			p.inCell = true
			p.cellText.Reset()
		}
	}
}

func (p *bodyParser) end(t xml.EndElement, after int64) error {
	if len(p.stack) == 0 {
		return fmt.Errorf("unbalanced end element %s", t.Name.Local)
	}
	top := p.stack[len(p.stack)-1]
	p.stack = p.stack[:len(p.stack)-1]
	depth := len(p.stack)
	el := p.cur
	if el == nil {
		return nil
	}

	if depth == p.bodyDepth {
		el.outer.end = after
		if el.kind == domain.KindParagraph {
			el.text = p.text.String()
		} else {
			el.text = strings.Join(p.tableRows, "\n")
		}
		p.out.elements = append(p.out.elements, el)
		p.cur = nil
		return nil
	}

	switch top.name {
	case "pPr":
		if depth == p.bodyDepth+1 && el.kind == domain.KindParagraph {
			el.pPr.end = after
		}
	case "pStyle":
		if depth == p.bodyDepth+2 && el.pStyle.start == top.start {
			el.pStyle.end = after
		}
	case "r":
		if p.run != nil && el.kind == domain.KindParagraph {
			el.runs = append(el.runs, *p.run)
		}
		p.run = nil
	case "p":
		if p.inCell {
			p.cellText.WriteString("\n")
		}
	case "tc":
		if depth == p.bodyDepth+2 && p.inCell {
			if s := strings.TrimSpace(p.cellText.String()); s != "" {
				p.row = append(p.row, s)
			}
			p.inCell = false
		}
	case "tr":
		if depth == p.bodyDepth+1 && len(p.row) > 0 {
			p.tableRows = append(p.tableRows, strings.Join(p.row, " | "))
		}
	}
	return nil
}

func (p *bodyParser) chars(c xml.CharData) {
	if p.cur == nil || !p.parentIs("t") {
		return
	}
	p.write(string(c))
}

func (p *bodyParser) write(s string) {
	if p.cur.kind == domain.KindTable {
		if p.inCell {
			p.cellText.WriteString(s)
		}
		return
	}
	p.text.WriteString(s)
	if p.run != nil {
		p.run.Text += s
	}
}

func (p *bodyParser) attr(t xml.StartElement, local string) string {
	for _, a := range t.Attr {
		if a.Name.Space == wordNS && a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

func applyRunProperty(run *domain.Run, local, val string) {
	on := val == "" || (val != "0" && val != "false" && val != "none")
	switch local {
	case "b":
		run.Bold = on
	case "i":
		run.Italic = on
	case "u":
		run.Underline = on
	case "sz":
		if halfPoints, err := strconv.ParseFloat(val, 64); err == nil {
			run.FontSize = halfPoints / 2
		}
	case "color":
		if val != "auto" {
			run.Color = val
		}
	}
}
