package docx

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"
)

const (
	stylesContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.styles+xml"
	stylesRelType     = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/styles"
	packageRelsNS     = "http://schemas.openxmlformats.org/package/2006/relationships"
)

// styleCatalog is the set of styles already defined in styles.xml.
type styleCatalog struct {
	prefix string
	byName map[string]string // display name -> styleId
	ids    map[string]bool
}

func readStyleCatalog(data []byte) (*styleCatalog, error) {
	cat := &styleCatalog{prefix: "w", byName: make(map[string]string), ids: make(map[string]bool)}
	if len(data) == 0 {
		return cat, nil
	}
	dec := xml.NewDecoder(bytes.NewReader(data))
	first := true
	currentID := ""
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return cat, nil
		}
		if err != nil {
			return nil, err
		}
		t, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if first {
			first = false
			for _, a := range t.Attr {
				if a.Name.Space == "xmlns" && a.Value == wordNS {
					cat.prefix = a.Name.Local
				}
			}
		}
		if t.Name.Space != wordNS {
			continue
		}
		switch t.Name.Local {
		case "style":
			currentID = attrValue(t, "styleId")
			if currentID != "" {
				cat.ids[currentID] = true
			}
		case "name":
			if currentID != "" {
				cat.byName[attrValue(t, "val")] = currentID
			}
		}
	}
}

func attrValue(t xml.StartElement, local string) string {
	for _, a := range t.Attr {
		if a.Name.Space == wordNS && a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// newStyleID derives a styleId from a display name the way Word does, keeping
// ASCII letters and digits, and suffixes a number on collision.
func (c *styleCatalog) newStyleID(name string) string {
	var b strings.Builder
	for _, r := range name {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
		}
	}
	base := b.String()
	if base == "" {
		base = "Estilo"
	}
	id := base
	for n := 2; c.ids[id]; n++ {
		id = fmt.Sprintf("%s%d", base, n)
	}
	c.ids[id] = true
	return id
}

// styleDefinitionXML renders a visible quick-style paragraph style based on
// Normal, optionally coloured.
func styleDefinitionXML(prefix, id, name, color string) string {
	p := prefix + ":"
	var b strings.Builder
	fmt.Fprintf(&b, `<%sstyle %stype="paragraph" %scustomStyle="1" %sstyleId="%s">`, p, p, p, p, id)
	fmt.Fprintf(&b, `<%sname %sval="%s"/>`, p, p, escapeAttr(name))
	fmt.Fprintf(&b, `<%sbasedOn %sval="Normal"/>`, p, p)
	fmt.Fprintf(&b, `<%suiPriority %sval="1"/>`, p, p)
	fmt.Fprintf(&b, `<%sqFormat/>`, p)
	if hex := normalizeColor(color); hex != "" {
		fmt.Fprintf(&b, `<%srPr><%scolor %sval="%s"/></%srPr>`, p, p, p, hex, p)
	}
	fmt.Fprintf(&b, `</%sstyle>`, p)
	return b.String()
}

// normalizeColor turns "#1f4e79" into "1F4E79"; anything that is not six hex
// digits yields "".
func normalizeColor(color string) string {
	hex := strings.ToUpper(strings.TrimPrefix(strings.TrimSpace(color), "#"))
	if len(hex) != 6 {
		return ""
	}
	for _, r := range hex {
		if !strings.ContainsRune("0123456789ABCDEF", r) {
			return ""
		}
	}
	return hex
}

func escapeAttr(s string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(s))
	return strings.ReplaceAll(buf.String(), `"`, "&#34;")
}

func minimalStylesXML() []byte {
	return []byte(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n" +
		`<w:styles xmlns:w="` + wordNS + `">` +
		`<w:style w:type="paragraph" w:default="1" w:styleId="Normal"><w:name w:val="Normal"/><w:qFormat/></w:style>` +
		`</w:styles>`)
}

// insertBeforeClose inserts fragment before the last closing tag named
// closeTag, e.g. "</w:styles>".
func insertBeforeClose(data []byte, closeTag, fragment string) ([]byte, error) {
	at := bytes.LastIndex(data, []byte(closeTag))
	if at < 0 {
		return nil, fmt.Errorf("closing tag %s not found", closeTag)
	}
	out := make([]byte, 0, len(data)+len(fragment))
	out = append(out, data[:at]...)
	out = append(out, fragment...)
	out = append(out, data[at:]...)
	return out, nil
}

// linkStylesPart registers a newly created styles part in the content types
// and in the main document's relationships.
func linkStylesPart(parts map[string][]byte) error {
	types, ok := parts[contentTypesPart]
	if !ok {
		return fmt.Errorf("missing %s", contentTypesPart)
	}
	if !bytes.Contains(types, []byte(`PartName="/word/styles.xml"`)) {
		updated, err := insertBeforeClose(types, "</Types>", `<Override PartName="/word/styles.xml" ContentType="`+stylesContentType+`"/>`)
		if err != nil {
			return err
		}
		parts[contentTypesPart] = updated
	}

	rels, ok := parts[documentRelsPart]
	if !ok {
		rels = []byte(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n" + `<Relationships xmlns="` + packageRelsNS + `"></Relationships>`)
	}
	if !bytes.Contains(rels, []byte(stylesRelType)) {
		updated, err := insertBeforeClose(rels, "</Relationships>", `<Relationship Id="rIdDocstylerStyles" Type="`+stylesRelType+`" Target="styles.xml"/>`)
		if err != nil {
			return err
		}
		rels = updated
	}
	parts[documentRelsPart] = rels
	return nil
}
