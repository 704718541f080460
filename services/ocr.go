package services

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"rag-chatbot-platform/internal/config"
	"rag-chatbot-platform/internal/logger"
)

// OCREngine shells out to tesseract for image-to-text and to pdftoppm for
// rendering PDF pages before OCR. Both binaries are optional; when either is
// missing the corresponding capability is reported unavailable instead of
// failing at call time.
type OCREngine struct {
	tesseractPath string
	pdftoppmPath  string
}

// NewOCREngine resolves the binaries from config or PATH.
func NewOCREngine(cfg *config.Config) *OCREngine {
	e := &OCREngine{
		tesseractPath: cfg.TesseractPath,
		pdftoppmPath:  cfg.PdftoppmPath,
	}
	if e.tesseractPath == "" {
		if p, err := exec.LookPath("tesseract"); err == nil {
			e.tesseractPath = p
		}
	}
	if e.pdftoppmPath == "" {
		if p, err := exec.LookPath("pdftoppm"); err == nil {
			e.pdftoppmPath = p
		}
	}
	return e
}

// Available reports whether image OCR can run.
func (e *OCREngine) Available() bool {
	return e != nil && e.tesseractPath != ""
}

// PDFCapable reports whether scanned-PDF OCR can run (needs page rendering).
func (e *OCREngine) PDFCapable() bool {
	return e.Available() && e.pdftoppmPath != ""
}

// ImageToText runs tesseract on a single image file.
func (e *OCREngine) ImageToText(ctx context.Context, imagePath string) (string, error) {
	if !e.Available() {
		return "", fmt.Errorf("tesseract not available")
	}

	ocrCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	// "-" writes the recognized text to stdout
	cmd := exec.CommandContext(ocrCtx, e.tesseractPath, imagePath, "-")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("tesseract failed: %v, stderr: %s", err, stderr.String())
	}

	return stdout.String(), nil
}

// PDFToText renders every page of a PDF to an image and OCRs each one. Page
// output is prefixed with a "[Page N]" marker; blank pages are skipped.
func (e *OCREngine) PDFToText(ctx context.Context, pdfPath string) (string, error) {
	if !e.PDFCapable() {
		return "", fmt.Errorf("pdf OCR not available")
	}

	tmpDir, err := os.MkdirTemp("", "ocr-pages-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	renderCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	prefix := filepath.Join(tmpDir, "page")
	cmd := exec.CommandContext(renderCtx, e.pdftoppmPath, "-png", "-r", "200", pdfPath, prefix)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("pdftoppm failed: %v, stderr: %s", err, stderr.String())
	}

	pages, err := filepath.Glob(prefix + "*.png")
	if err != nil {
		return "", err
	}
	if len(pages) == 0 {
		return "", fmt.Errorf("pdftoppm produced no pages")
	}
	sort.Strings(pages)

	var parts []string
	for i, page := range pages {
		pageText, err := e.ImageToText(ctx, page)
		if err != nil {
			logger.Warn("page OCR failed", "page", i+1, "error", err)
			continue
		}
		if strings.TrimSpace(pageText) != "" {
			parts = append(parts, fmt.Sprintf("[Page %d]\n%s", i+1, pageText))
		}
	}

	return strings.Join(parts, "\n\n"), nil
}
