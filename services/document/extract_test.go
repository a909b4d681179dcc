package document

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NathanYKo/RAG-Document-System/models"
)

func TestCleanText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"collapses spaces", "hello    world", "hello world"},
		{"collapses mixed whitespace", "hello\n\tworld\r\n again", "hello world again"},
		{"trims ends", "  hello world  ", "hello world"},
		{"empty", "", ""},
		{"whitespace only", " \n\t ", ""},
		{"already clean", "hello world", "hello world"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, cleanText(tt.input))
		})
	}
}

func TestExtractTXT(t *testing.T) {
	t.Run("utf-8 passthrough", func(t *testing.T) {
		text, err := extractTXT([]byte("héllo wörld"))
		require.NoError(t, err)
		assert.Equal(t, "héllo wörld", text)
	})

	t.Run("latin-1 fallback", func(t *testing.T) {
		// "café" in Latin-1; the lone 0xE9 byte is not valid UTF-8.
		text, err := extractTXT([]byte{'c', 'a', 'f', 0xE9})
		require.NoError(t, err)
		assert.Equal(t, "café", text)
	})

	t.Run("empty file", func(t *testing.T) {
		text, err := extractTXT(nil)
		require.NoError(t, err)
		assert.Equal(t, "", text)
	})
}

// buildDOCX assembles a minimal DOCX container around the given
// word/document.xml body.
func buildDOCX(t *testing.T, documentXML string) []byte {
	t.Helper()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	f, err := w.Create("word/document.xml")
	require.NoError(t, err)
	_, err = f.Write([]byte(documentXML))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestExtractDOCX(t *testing.T) {
	t.Run("joins paragraphs with single spaces", func(t *testing.T) {
		content := buildDOCX(t, `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>First </w:t></w:r><w:r><w:t>paragraph.</w:t></w:r></w:p>
    <w:p><w:r><w:t>Second paragraph.</w:t></w:r></w:p>
    <w:p></w:p>
  </w:body>
</w:document>`)

		text, err := extractDOCX(content)
		require.NoError(t, err)
		assert.Equal(t, "First paragraph. Second paragraph.", text)
	})

	t.Run("not a zip archive", func(t *testing.T) {
		_, err := extractDOCX([]byte("plainly not a docx"))
		assert.Error(t, err)
	})

	t.Run("missing document body", func(t *testing.T) {
		var buf bytes.Buffer
		w := zip.NewWriter(&buf)
		f, err := w.Create("word/styles.xml")
		require.NoError(t, err)
		_, err = f.Write([]byte("<styles/>"))
		require.NoError(t, err)
		require.NoError(t, w.Close())

		_, err = extractDOCX(buf.Bytes())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "word/document.xml")
	})

	t.Run("malformed body xml", func(t *testing.T) {
		content := buildDOCX(t, "<w:document><w:body><w:p><w:t>unclosed")
		_, err := extractDOCX(content)
		assert.Error(t, err)
	})
}

func TestExtractPDF_Malformed(t *testing.T) {
	_, err := extractPDF([]byte("not a pdf at all"))
	assert.Error(t, err)
}

func TestExtractText_UnsupportedType(t *testing.T) {
	_, err := extractText([]byte("content"), models.FileType("md"))
	assert.Error(t, err)
}
