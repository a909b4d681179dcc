package document

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"golang.org/x/text/encoding/charmap"

	"github.com/NathanYKo/RAG-Document-System/models"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// cleanText collapses whitespace runs into single spaces and trims the ends.
// Chunk offsets are computed on the cleaned text, so it must be stable for
// a given input.
func cleanText(text string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(text, " "))
}

// extractText pulls raw text out of an uploaded file based on its type
func extractText(content []byte, fileType models.FileType) (string, error) {
	switch fileType {
	case models.FileTypePDF:
		return extractPDF(content)
	case models.FileTypeDOCX:
		return extractDOCX(content)
	case models.FileTypeTXT:
		return extractTXT(content)
	default:
		return "", fmt.Errorf("no extractor for file type %q", fileType)
	}
}

// extractPDF concatenates the plain text of every page.
func extractPDF(content []byte) (text string, err error) {
	// The pdf package panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("malformed PDF: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("failed to read PDF text: %w", err)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", fmt.Errorf("failed to read PDF text: %w", err)
	}
	return buf.String(), nil
}

// extractDOCX reads word/document.xml out of the zip container and joins
// paragraph texts with single spaces.
func extractDOCX(content []byte) (string, error) {
	archive, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("failed to open DOCX archive: %w", err)
	}

	var docXML []byte
	for _, f := range archive.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("failed to open document body: %w", err)
		}
		docXML, err = io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("failed to read document body: %w", err)
		}
		break
	}
	if docXML == nil {
		return "", fmt.Errorf("DOCX archive has no word/document.xml")
	}

	return parseDocumentXML(docXML)
}

// parseDocumentXML walks WordprocessingML, collecting the text runs (w:t)
// of each paragraph (w:p).
func parseDocumentXML(docXML []byte) (string, error) {
	decoder := xml.NewDecoder(bytes.NewReader(docXML))

	var paragraphs []string
	var current strings.Builder

	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to parse document body: %w", err)
		}

		switch elem := token.(type) {
		case xml.StartElement:
			if elem.Name.Local == "t" {
				var run string
				if err := decoder.DecodeElement(&run, &elem); err != nil {
					return "", fmt.Errorf("failed to parse document body: %w", err)
				}
				current.WriteString(run)
			}
		case xml.EndElement:
			if elem.Name.Local == "p" && current.Len() > 0 {
				paragraphs = append(paragraphs, current.String())
				current.Reset()
			}
		}
	}
	if current.Len() > 0 {
		paragraphs = append(paragraphs, current.String())
	}

	return strings.Join(paragraphs, " "), nil
}

// extractTXT decodes plain text as UTF-8, falling back to Latin-1 for
// legacy exports that are not valid UTF-8.
func extractTXT(content []byte) (string, error) {
	if utf8.Valid(content) {
		return string(content), nil
	}

	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(content)
	if err != nil {
		return "", fmt.Errorf("failed to decode text file: %w", err)
	}
	return string(decoded), nil
}
