package docx

import (
	"encoding/xml"
	"log"

	"docstyler/internal/domain"
)

type CoreProperties struct {
	Author   string
	Title    string
	Created  string
	Modified string
}

// Info summarises the package, counting body-level elements only.
type Info struct {
	TotalParagraphs int
	TotalImages     int
	TotalTables     int
	TotalSections   int
	Core            CoreProperties
}

type coreXML struct {
	Creator  string `xml:"http://purl.org/dc/elements/1.1/ creator"`
	Title    string `xml:"http://purl.org/dc/elements/1.1/ title"`
	Created  string `xml:"http://purl.org/dc/terms/ created"`
	Modified string `xml:"http://purl.org/dc/terms/ modified"`
}

func (d *Document) Info() Info {
	var info Info
	for _, el := range d.body.elements {
		switch el.kind {
		case domain.KindParagraph:
			info.TotalParagraphs++
			if el.hasImage {
				info.TotalImages++
			}
		case domain.KindTable:
			info.TotalTables++
		}
	}
	info.TotalSections = d.body.sections

	if data, ok := d.parts[corePart]; ok {
		var core coreXML
		if err := xml.Unmarshal(data, &core); err != nil {
			log.Printf("docx core properties unreadable (non-fatal): %v", err)
		} else {
			info.Core = CoreProperties{Author: core.Creator, Title: core.Title, Created: core.Created, Modified: core.Modified}
		}
	}
	return info
}
