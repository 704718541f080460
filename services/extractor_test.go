package services

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"rag-chatbot-platform/models"
)

// noOCRExtractor builds an extractor whose OCR engine resolves no binaries.
func noOCRExtractor() *Extractor {
	return NewExtractor(&OCREngine{})
}

func writeTempFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func writeZipFixture(t *testing.T, name string, entries map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for entryName, content := range entries {
		w, err := zw.Create(entryName)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

func TestExtractTextFileUTF8(t *testing.T) {
	path := writeTempFile(t, "plain.txt", []byte("hello, 世界"))
	text, err := noOCRExtractor().Extract(context.Background(), path, models.TypeText)
	require.NoError(t, err)
	assert.Equal(t, "hello, 世界", text)
}

func TestExtractTextFileLatin1Fallback(t *testing.T) {
	// 0xE9 is é in ISO 8859-1 but an invalid UTF-8 sequence.
	path := writeTempFile(t, "legacy.txt", []byte{'c', 'a', 'f', 0xE9})
	text, err := noOCRExtractor().Extract(context.Background(), path, models.TypeText)
	require.NoError(t, err)
	assert.Equal(t, "café", text)
}

func TestExtractUnsupportedType(t *testing.T) {
	path := writeTempFile(t, "data.bin", []byte{0x00, 0x01})
	text, err := noOCRExtractor().Extract(context.Background(), path, models.TypeOther)
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestExtractMissingFile(t *testing.T) {
	_, err := noOCRExtractor().Extract(context.Background(), "/nonexistent/file.txt", models.TypeText)
	assert.Error(t, err)
}

func TestExtractImageWithoutOCR(t *testing.T) {
	path := writeTempFile(t, "scan.png", []byte("not really a png"))
	text, err := noOCRExtractor().Extract(context.Background(), path, models.TypeImage)
	require.NoError(t, err)
	assert.Equal(t, PlaceholderOCRUnavailable, text)
}

func TestExtractDocx(t *testing.T) {
	documentXML := `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>Opening paragraph</w:t></w:r></w:p>
    <w:tbl>
      <w:tr>
        <w:tc><w:p><w:r><w:t>Name</w:t></w:r></w:p></w:tc>
        <w:tc><w:p><w:r><w:t>Role</w:t></w:r></w:p></w:tc>
      </w:tr>
      <w:tr>
        <w:tc><w:p><w:r><w:t>Ada</w:t></w:r></w:p></w:tc>
        <w:tc><w:p><w:r><w:t>Engineer</w:t></w:r></w:p></w:tc>
      </w:tr>
    </w:tbl>
    <w:p><w:r><w:t>Closing </w:t></w:r><w:r><w:t>paragraph</w:t></w:r></w:p>
  </w:body>
</w:document>`
	path := writeZipFixture(t, "doc.docx", map[string]string{
		"word/document.xml": documentXML,
		"[Content_Types].xml": `<Types/>`,
	})

	text, err := noOCRExtractor().Extract(context.Background(), path, models.TypeDocx)
	require.NoError(t, err)
	assert.Equal(t, "Opening paragraph\nName | Role\nAda | Engineer\nClosing paragraph", text)
}

func TestExtractDocxNotAZip(t *testing.T) {
	path := writeTempFile(t, "broken.docx", []byte("this is not a zip archive"))
	_, err := noOCRExtractor().Extract(context.Background(), path, models.TypeDocx)
	assert.Error(t, err)
}

func TestExtractDocxMissingDocumentXML(t *testing.T) {
	path := writeZipFixture(t, "empty.docx", map[string]string{
		"[Content_Types].xml": `<Types/>`,
	})
	_, err := noOCRExtractor().Extract(context.Background(), path, models.TypeDocx)
	assert.Error(t, err)
}

func TestExtractPptxOrdersSlides(t *testing.T) {
	slide := func(body string) string {
		return `<?xml version="1.0"?>
<p:sld xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main" xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main">
  <p:cSld><p:spTree><p:sp><p:txBody>` + body + `</p:txBody></p:sp></p:spTree></p:cSld>
</p:sld>`
	}
	path := writeZipFixture(t, "deck.pptx", map[string]string{
		"ppt/slides/slide2.xml":  slide(`<a:p><a:r><a:t>Second slide</a:t></a:r></a:p>`),
		"ppt/slides/slide1.xml":  slide(`<a:p><a:r><a:t>First slide</a:t></a:r></a:p>`),
		"ppt/slides/slide10.xml": slide(`<a:p><a:r><a:t>Tenth slide</a:t></a:r></a:p>`),
		"ppt/slides/slide3.xml":  slide(``), // textless slides are omitted
	})

	text, err := noOCRExtractor().Extract(context.Background(), path, models.TypePptx)
	require.NoError(t, err)
	assert.Equal(t,
		"[Slide 1]\nFirst slide\n\n[Slide 2]\nSecond slide\n\n[Slide 10]\nTenth slide",
		text)
}

func TestExtractXlsx(t *testing.T) {
	wb := excelize.NewFile()
	require.NoError(t, wb.SetCellValue("Sheet1", "A1", "Product"))
	require.NoError(t, wb.SetCellValue("Sheet1", "B1", "Units"))
	require.NoError(t, wb.SetCellValue("Sheet1", "A2", "Widget"))
	require.NoError(t, wb.SetCellValue("Sheet1", "B2", 42))

	path := filepath.Join(t.TempDir(), "inventory.xlsx")
	require.NoError(t, wb.SaveAs(path))
	require.NoError(t, wb.Close())

	text, err := noOCRExtractor().Extract(context.Background(), path, models.TypeXlsx)
	require.NoError(t, err)
	assert.Contains(t, text, "[Sheet: Sheet1]")
	assert.Contains(t, text, "Product | Units")
	assert.Contains(t, text, "Widget | 42")
}

func TestTypeForFilename(t *testing.T) {
	cases := map[string]models.DocumentType{
		"notes.TXT":    models.TypeText,
		"report.pdf":   models.TypePDF,
		"deck.pptx":    models.TypePptx,
		"data.xlsx":    models.TypeXlsx,
		"memo.docx":    models.TypeDocx,
		"photo.JPeG":   models.TypeImage,
		"archive.zip":  models.TypeOther,
		"no-extension": models.TypeOther,
		"trailing.":    models.TypeOther,
	}
	for filename, want := range cases {
		assert.Equal(t, want, models.TypeForFilename(filename), filename)
	}

	assert.True(t, models.IsSupportedFilename("a.md"))
	assert.False(t, models.IsSupportedFilename("a.exe"))
}
