package services

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"

	"rag-chatbot-platform/internal/logger"
	"rag-chatbot-platform/models"
)

// Extractor converts a raw file into plain text by declared type. Each format
// has one strategy; unknown types yield empty text rather than an error so the
// lifecycle layer can record the document as unusable without a crash.
type Extractor struct {
	ocr        *OCREngine
	strategies map[models.DocumentType]func(context.Context, string) (string, error)
}

func NewExtractor(ocr *OCREngine) *Extractor {
	e := &Extractor{ocr: ocr}
	e.strategies = map[models.DocumentType]func(context.Context, string) (string, error){
		models.TypeText:  e.extractTextFile,
		models.TypePDF:   e.extractPDF,
		models.TypeDocx:  e.extractDocx,
		models.TypeXlsx:  e.extractXlsx,
		models.TypePptx:  e.extractPptx,
		models.TypeImage: e.extractImage,
	}
	return e
}

// Extract dispatches on the declared type. Empty output is not an error here;
// the caller decides what an empty document means.
func (e *Extractor) Extract(ctx context.Context, filePath string, fileType models.DocumentType) (string, error) {
	strategy, ok := e.strategies[fileType]
	if !ok {
		logger.Warn("unsupported file type", "type", string(fileType), "path", filePath)
		return "", nil
	}

	text, err := strategy(ctx, filePath)
	if err != nil {
		return "", fmt.Errorf("extracting %s: %w", fileType, err)
	}
	return text, nil
}

// textDecoders is the ordered encoding fallback chain for plain-text files.
var textDecoders = []struct {
	name    string
	decoder *encoding.Decoder
}{
	{"latin-1", charmap.ISO8859_1.NewDecoder()},
	{"cp1252", charmap.Windows1252.NewDecoder()},
}

func (e *Extractor) extractTextFile(_ context.Context, filePath string) (string, error) {
	raw, err := os.ReadFile(filePath)
	if err != nil {
		return "", err
	}

	if utf8.Valid(raw) {
		return string(raw), nil
	}

	for _, enc := range textDecoders {
		decoded, err := enc.decoder.Bytes(raw)
		if err != nil {
			continue
		}
		return string(decoded), nil
	}

	// Permissive fallback: drop invalid byte sequences instead of failing.
	return strings.ToValidUTF8(string(raw), ""), nil
}

func (e *Extractor) extractPDF(ctx context.Context, filePath string) (string, error) {
	text, err := e.extractPDFStructural(filePath)
	if err != nil {
		// Scanned or malformed PDFs often defeat structural extraction; try
		// OCR before giving up.
		if e.ocr.PDFCapable() {
			logger.Info("structural PDF extraction failed, attempting OCR", "path", filePath, "error", err)
			if ocrText, ocrErr := e.ocr.PDFToText(ctx, filePath); ocrErr == nil {
				return ocrText, nil
			} else {
				logger.Error("OCR fallback failed", "path", filePath, "error", ocrErr)
			}
		}
		return "", err
	}

	if strings.TrimSpace(text) == "" && e.ocr.PDFCapable() {
		logger.Info("no text found in PDF, attempting OCR", "path", filePath)
		return e.ocr.PDFToText(ctx, filePath)
	}

	return text, nil
}

func (e *Extractor) extractPDFStructural(filePath string) (text string, err error) {
	// The pdf library panics on some malformed inputs; convert to an error so
	// the OCR fallback still runs.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf parsing panicked: %v", r)
		}
	}()

	f, reader, err := pdf.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	var parts []string
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		fonts := make(map[string]*pdf.Font)
		pageText, err := page.GetPlainText(fonts)
		if err != nil {
			logger.Warn("failed to extract PDF page", "page", i, "error", err)
			continue
		}
		if pageText != "" {
			parts = append(parts, pageText)
		}
	}

	return strings.Join(parts, "\n"), nil
}

func (e *Extractor) extractDocx(_ context.Context, filePath string) (string, error) {
	zr, err := zip.OpenReader(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open docx: %w", err)
	}
	defer zr.Close()

	var doc io.ReadCloser
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			doc, err = f.Open()
			if err != nil {
				return "", err
			}
			break
		}
	}
	if doc == nil {
		return "", fmt.Errorf("docx has no word/document.xml")
	}
	defer doc.Close()

	return parseDocxXML(doc)
}

// parseDocxXML walks the WordprocessingML token stream emitting one line per
// paragraph and one " | "-joined line per table row, in document order.
func parseDocxXML(r io.Reader) (string, error) {
	decoder := xml.NewDecoder(r)

	var (
		parts      []string
		para       strings.Builder
		cell       strings.Builder
		row        []string
		tableDepth int
	)

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("malformed docx xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "tbl":
				tableDepth++
			case "tc":
				cell.Reset()
			case "p":
				if tableDepth == 0 {
					para.Reset()
				}
			case "t":
				var text string
				if err := decoder.DecodeElement(&text, &t); err != nil {
					return "", fmt.Errorf("malformed docx xml: %w", err)
				}
				if tableDepth > 0 {
					cell.WriteString(text)
				} else {
					para.WriteString(text)
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "tbl":
				tableDepth--
			case "tc":
				if s := strings.TrimSpace(cell.String()); s != "" {
					row = append(row, s)
				}
			case "tr":
				if len(row) > 0 {
					parts = append(parts, strings.Join(row, " | "))
				}
				row = nil
			case "p":
				if tableDepth == 0 {
					if s := strings.TrimSpace(para.String()); s != "" {
						parts = append(parts, s)
					}
				}
			}
		}
	}

	return strings.Join(parts, "\n"), nil
}

func (e *Extractor) extractXlsx(_ context.Context, filePath string) (string, error) {
	wb, err := excelize.OpenFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open workbook: %w", err)
	}
	defer wb.Close()

	var parts []string
	for _, sheet := range wb.GetSheetList() {
		parts = append(parts, fmt.Sprintf("[Sheet: %s]", sheet))

		rows, err := wb.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("failed to read sheet %q: %w", sheet, err)
		}
		for _, cells := range rows {
			var filled []string
			for _, cell := range cells {
				if cell != "" {
					filled = append(filled, cell)
				}
			}
			if len(filled) > 0 {
				parts = append(parts, strings.Join(filled, " | "))
			}
		}

		parts = append(parts, "") // blank line between sheets
	}

	return strings.Join(parts, "\n"), nil
}

func (e *Extractor) extractPptx(_ context.Context, filePath string) (string, error) {
	zr, err := zip.OpenReader(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open pptx: %w", err)
	}
	defer zr.Close()

	type slideFile struct {
		num  int
		file *zip.File
	}
	var slides []slideFile
	for _, f := range zr.File {
		dir, name := path.Split(f.Name)
		if dir != "ppt/slides/" || !strings.HasPrefix(name, "slide") || !strings.HasSuffix(name, ".xml") {
			continue
		}
		num, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "slide"), ".xml"))
		if err != nil {
			continue
		}
		slides = append(slides, slideFile{num: num, file: f})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })

	var blocks []string
	for _, s := range slides {
		rc, err := s.file.Open()
		if err != nil {
			return "", err
		}
		lines, err := parseSlideXML(rc)
		rc.Close()
		if err != nil {
			return "", err
		}
		if len(lines) == 0 {
			// slides with no text content are omitted
			continue
		}
		blocks = append(blocks, fmt.Sprintf("[Slide %d]\n%s", s.num, strings.Join(lines, "\n")))
	}

	return strings.Join(blocks, "\n\n"), nil
}

// parseSlideXML collects DrawingML text, one line per <a:p> paragraph.
func parseSlideXML(r io.Reader) ([]string, error) {
	decoder := xml.NewDecoder(r)

	var (
		lines []string
		line  strings.Builder
	)

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("malformed slide xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				var text string
				if err := decoder.DecodeElement(&text, &t); err != nil {
					return nil, fmt.Errorf("malformed slide xml: %w", err)
				}
				line.WriteString(text)
			}
		case xml.EndElement:
			if t.Name.Local == "p" {
				if s := strings.TrimSpace(line.String()); s != "" {
					lines = append(lines, s)
				}
				line.Reset()
			}
		}
	}

	return lines, nil
}

// OCR sentinel strings. Returning a placeholder instead of an error lets an
// image document finish the pipeline as processed-with-no-usable-content.
const (
	PlaceholderOCRUnavailable = "[Image file - OCR not available]"
	PlaceholderNoTextInImage  = "[No text detected in image]"
)

func (e *Extractor) extractImage(ctx context.Context, filePath string) (string, error) {
	if !e.ocr.Available() {
		logger.Warn("OCR not available, install tesseract for image text extraction", "path", filePath)
		return PlaceholderOCRUnavailable, nil
	}

	text, err := e.ocr.ImageToText(ctx, filePath)
	if err != nil {
		return "", fmt.Errorf("image OCR failed: %w", err)
	}

	if strings.TrimSpace(text) == "" {
		return PlaceholderNoTextInImage, nil
	}
	return strings.TrimSpace(text), nil
}
