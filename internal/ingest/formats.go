package ingest

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/gen2brain/go-fitz"
	"github.com/nguyenthenguyen/docx"
)

// decodePDF concatenates page text in page order.
func decodePDF(ctx context.Context, data []byte) (string, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()

	pages := doc.NumPage()
	if pages <= 0 {
		return "", errors.New("pdf has no pages")
	}
	var sb strings.Builder
	for page := 0; page < pages; page++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}
		text, err := doc.Text(page)
		if err != nil {
			return "", fmt.Errorf("extract text from page %d: %w", page+1, err)
		}
		sb.WriteString(text)
	}
	return sb.String(), nil
}

// decodeDOCX returns the text of every paragraph in document.xml, each
// followed by one newline.
func decodeDOCX(ctx context.Context, data []byte) (string, error) {
	r, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	defer r.Close()
	return paragraphText(r.Editable().GetContent())
}

// paragraphText walks WordprocessingML and flattens w:p elements. Tabs and
// explicit breaks inside a paragraph are kept.
func paragraphText(content string) (string, error) {
	dec := xml.NewDecoder(strings.NewReader(content))
	var (
		sb     strings.Builder
		inText bool
		depth  int
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse document.xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				depth++
			case "t":
				inText = true
			case "tab":
				if depth > 0 {
					sb.WriteByte('\t')
				}
			case "br", "cr":
				if depth > 0 {
					sb.WriteByte('\n')
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "p":
				if depth > 0 {
					depth--
				}
				if depth == 0 {
					sb.WriteByte('\n')
				}
			case "t":
				inText = false
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}
	return sb.String(), nil
}

func decodeTXT(_ context.Context, data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", errors.New("text is not valid UTF-8")
	}
	return string(data), nil
}
