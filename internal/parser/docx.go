package parser

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/nguyenthenguyen/docx"
)

// parseDOCX returns the non-empty body paragraphs one per line, followed by
// one line per table row with its non-empty cells joined by " | ".
func parseDOCX(_ context.Context, f File) (string, error) {
	doc, err := docx.ReadDocxFromMemory(bytes.NewReader(f.Data), int64(len(f.Data)))
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	defer doc.Close()

	paragraphs, rows, err := documentText(doc.Editable().GetContent())
	if err != nil {
		return "", fmt.Errorf("read docx body: %w", err)
	}
	return strings.Join(append(paragraphs, rows...), "\n"), nil
}

// documentText walks word/document.xml. Paragraphs nested in tables
// contribute to their cell instead of the body list.
func documentText(body string) (paragraphs, rows []string, err error) {
	dec := xml.NewDecoder(strings.NewReader(body))

	var (
		para      strings.Builder
		cell      []string
		row       []string
		tableDeep int
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "tbl":
				tableDeep++
			case "tr":
				row = row[:0]
			case "tc":
				cell = cell[:0]
			case "p":
				para.Reset()
			case "t":
				var text string
				if err := dec.DecodeElement(&text, &t); err != nil {
					return nil, nil, err
				}
				para.WriteString(text)
			case "tab":
				para.WriteByte('\t')
			case "br", "cr":
				para.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "p":
				text := para.String()
				if strings.TrimSpace(text) == "" {
					continue
				}
				if tableDeep > 0 {
					cell = append(cell, text)
				} else {
					paragraphs = append(paragraphs, text)
				}
			case "tc":
				if text := strings.Join(cell, "\n"); strings.TrimSpace(text) != "" {
					row = append(row, text)
				}
			case "tr":
				if len(row) > 0 {
					rows = append(rows, strings.Join(row, " | "))
				}
			case "tbl":
				tableDeep--
			}
		}
	}
	return paragraphs, rows, nil
}
