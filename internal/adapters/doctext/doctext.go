// Package doctext turns office documents into plain text an LLM can read.
package doctext

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

// Media types handled here.
const (
	MediaTypeText = "text/plain"
	MediaTypeDocx = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MediaTypeXlsx = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// ErrUnsupported is returned for media types that cannot be converted to text.
var ErrUnsupported = errors.New("document type cannot be converted to text")

// maxRowsPerSheet bounds the spreadsheet text handed to a model.
const maxRowsPerSheet = 500

// Supports reports whether Extract can convert mediaType.
func Supports(mediaType string) bool {
	switch mediaType {
	case MediaTypeText, MediaTypeDocx, MediaTypeXlsx:
		return true
	}
	return false
}

// Extract returns the text content of a document.
func Extract(mediaType string, content []byte) (string, error) {
	switch mediaType {
	case MediaTypeText:
		if !utf8.Valid(content) {
			return "", fmt.Errorf("text document is not valid UTF-8")
		}
		return string(content), nil
	case MediaTypeDocx:
		return docxText(content)
	case MediaTypeXlsx:
		return spreadsheetText(content)
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupported, mediaType)
}

// spreadsheetText renders every sheet as tab-separated rows under a "# Sheet" heading.
func spreadsheetText(content []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("open spreadsheet: %w", err)
	}
	defer func() { _ = f.Close() }()

	var sb strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("read sheet %q: %w", sheet, err)
		}
		fmt.Fprintf(&sb, "# %s\n", sheet)
		for i, row := range rows {
			if i == maxRowsPerSheet {
				fmt.Fprintf(&sb, "... %d more rows\n", len(rows)-maxRowsPerSheet)
				break
			}
			if strings.TrimSpace(strings.Join(row, "")) == "" {
				continue
			}
			sb.WriteString(strings.Join(row, "\t"))
			sb.WriteByte('\n')
		}
	}
	return sb.String(), nil
}

// docxText collects the text runs of word/document.xml, one line per paragraph.
func docxText(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	var body *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			body = f
			break
		}
	}
	if body == nil {
		return "", fmt.Errorf("docx has no word/document.xml")
	}
	rc, err := body.Open()
	if err != nil {
		return "", fmt.Errorf("open docx body: %w", err)
	}
	defer rc.Close()

	var sb strings.Builder
	dec := xml.NewDecoder(rc)
	inText := false
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse docx body: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				sb.WriteByte('\t')
			case "br":
				sb.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				sb.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}
	return sb.String(), nil
}
