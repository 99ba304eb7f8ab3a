// Package docx reads the body of a WordprocessingML package and rewrites
// paragraph styles in place. Only the parts it edits are re-encoded; every
// other part of the package is copied through untouched.
package docx

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sort"

	"docstyler/internal/domain"
)

const (
	documentPart     = "word/document.xml"
	stylesPart       = "word/styles.xml"
	contentTypesPart = "[Content_Types].xml"
	documentRelsPart = "word/_rels/document.xml.rels"
	corePart         = "docProps/core.xml"
)

var (
	ErrNotDocx   = errors.New("file is not a word document")
	ErrMalformed = errors.New("malformed document xml")
)

// Document is an opened .docx held in memory.
type Document struct {
	path    string
	files   []*zip.File
	parts   map[string][]byte
	body    *body
	records []domain.Paragraph
}

func Open(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, err
	}
	doc.path = path
	return doc, nil
}

// Parse opens a .docx from bytes.
func Parse(data []byte) (*Document, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotDocx, err)
	}
	doc := &Document{files: zr.File, parts: make(map[string][]byte)}
	for _, name := range []string{documentPart, stylesPart, contentTypesPart, documentRelsPart, corePart} {
		content, ok, err := readPart(zr, name)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		if ok {
			doc.parts[name] = content
		}
	}
	content, ok := doc.parts[documentPart]
	if !ok {
		return nil, fmt.Errorf("%w: missing %s", ErrNotDocx, documentPart)
	}
	doc.body, err = parseBody(content)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	doc.records = doc.body.records()
	return doc, nil
}

func readPart(zr *zip.Reader, name string) ([]byte, bool, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, false, err
		}
		defer rc.Close()
		content, err := io.ReadAll(rc)
		if err != nil {
			return nil, false, err
		}
		return content, true, nil
	}
	return nil, false, nil
}

func (d *Document) Path() string {
	return d.path
}

// Paragraphs returns the classifiable records in body order. Index is the
// record's position in that order. The returned slice is a copy.
func (d *Document) Paragraphs() []domain.Paragraph {
	return domain.CloneAll(d.records)
}

// WriteTo writes the package, substituting any parts that were rewritten.
func (d *Document) WriteTo(w io.Writer) (int64, error) {
	return d.write(w, d.parts)
}

func (d *Document) write(w io.Writer, replaced map[string][]byte) (int64, error) {
	cw := &countingWriter{w: w}
	zw := zip.NewWriter(cw)
	written := make(map[string]bool, len(replaced))
	for _, f := range d.files {
		content, ok := replaced[f.Name]
		if !ok {
			if err := zw.Copy(f); err != nil {
				return cw.n, fmt.Errorf("copy %s: %w", f.Name, err)
			}
			continue
		}
		if err := writeEntry(zw, f.FileHeader, content); err != nil {
			return cw.n, err
		}
		written[f.Name] = true
	}
	// parts created during styling, e.g. a styles.xml the source lacked
	var added []string
	for name := range replaced {
		if !written[name] && !d.hasFile(name) {
			added = append(added, name)
		}
	}
	sort.Strings(added)
	for _, name := range added {
		if err := writeEntry(zw, zip.FileHeader{Name: name, Method: zip.Deflate}, replaced[name]); err != nil {
			return cw.n, err
		}
	}
	if err := zw.Close(); err != nil {
		return cw.n, fmt.Errorf("close archive: %w", err)
	}
	return cw.n, nil
}

func writeEntry(zw *zip.Writer, header zip.FileHeader, content []byte) error {
	h := header
	h.CompressedSize64, h.UncompressedSize64, h.CRC32 = 0, 0, 0
	if h.Method == zip.Store {
		h.Method = zip.Deflate
	}
	fw, err := zw.CreateHeader(&h)
	if err != nil {
		return fmt.Errorf("create %s: %w", h.Name, err)
	}
	if _, err := fw.Write(content); err != nil {
		return fmt.Errorf("write %s: %w", h.Name, err)
	}
	return nil
}

func (d *Document) hasFile(name string) bool {
	for _, f := range d.files {
		if f.Name == name {
			return true
		}
	}
	return false
}

// Save writes the package to path.
func (d *Document) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := d.WriteTo(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	log.Printf("docx saved path=%s", path)
	return nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
