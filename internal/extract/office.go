package extract

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"
)

// extractSpreadsheet reads every cell of every sheet, one tab-separated row
// per line. CLIN pricing tables usually live in spreadsheets, so cell order
// is preserved.
func (r *Router) extractSpreadsheet(path string) (*Result, error) {
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return r.extractTextFile(path)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, &Error{Reason: ReasonUnsupportedFormat, File: filepath.Base(path), Err: err}
	}
	defer f.Close()

	var b strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("## " + sheet + "\n")
		for _, row := range rows {
			line := strings.TrimRight(strings.Join(row, "\t"), "\t")
			if strings.TrimSpace(line) == "" {
				continue
			}
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	return &Result{Text: b.String(), Method: MethodSpreadsheet}, nil
}

// extractWord handles .docx; legacy binary .doc has no portable reader.
// RTF is read as plain text, its markup passes through.
func (r *Router) extractWord(path string) (*Result, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".rtf" {
		return r.extractTextFile(path)
	}
	if ext != ".docx" {
		return nil, &Error{Reason: ReasonUnsupportedFormat, File: filepath.Base(path)}
	}

	text, err := wordprocessingText(path, func(name string) bool {
		return name == "word/document.xml"
	})
	if err != nil {
		return nil, fmt.Errorf("read docx %s: %w", path, err)
	}
	return &Result{Text: text, Method: MethodWordXML}, nil
}

// extractSlides handles .pptx slide XML in slide order.
func (r *Router) extractSlides(path string) (*Result, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".pptx" {
		return nil, &Error{Reason: ReasonUnsupportedFormat, File: filepath.Base(path)}
	}

	text, err := wordprocessingText(path, func(name string) bool {
		return strings.HasPrefix(name, "ppt/slides/slide") && strings.HasSuffix(name, ".xml")
	})
	if err != nil {
		return nil, fmt.Errorf("read pptx %s: %w", path, err)
	}
	return &Result{Text: text, Method: MethodSlidesXML}, nil
}

// wordprocessingText pulls the character data out of OOXML parts selected by
// the filter. Paragraph boundaries become newlines.
func wordprocessingText(path string, want func(string) bool) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", err
	}
	defer zr.Close()

	var parts []string
	for _, f := range zr.File {
		if want(f.Name) {
			parts = append(parts, f.Name)
		}
	}
	sort.Strings(parts)

	var b strings.Builder
	for _, name := range parts {
		for _, f := range zr.File {
			if f.Name != name {
				continue
			}
			rc, err := f.Open()
			if err != nil {
				return "", err
			}
			text, err := ooxmlCharData(rc)
			rc.Close()
			if err != nil {
				return "", err
			}
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			b.WriteString(text)
		}
	}
	return strings.TrimSpace(b.String()), nil
}

// ooxmlCharData streams an OOXML part and collects text runs. Paragraph (w:p)
// and slide text body (a:p) ends emit newlines, table cells a tab.
func ooxmlCharData(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var b strings.Builder
	inText := false

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}

		switch el := tok.(type) {
		case xml.StartElement:
			if el.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			switch el.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteString("\n")
			case "tc":
				b.WriteString("\t")
			}
		case xml.CharData:
			if inText {
				b.Write(el)
			}
		}
	}
	return b.String(), nil
}
