package report

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	apperrors "callpulse/internal/errors"
)

// printTimeout bounds the headless chrome session for one report.
const printTimeout = 2 * time.Minute

// A4 paper size in inches.
const (
	paperWidthInches  = 8.27
	paperHeightInches = 11.69
)

// writePDF renders the HTML report to a temp file and prints it to PDF
// with headless chrome.
func (g *Generator) writePDF(ctx context.Context, doc Document, path string) error {
	tmp, err := os.CreateTemp("", "callpulse-report-*.html")
	if err != nil {
		return apperrors.NewReportError("create temp html", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	if err := g.writeHTML(doc, tmpPath); err != nil {
		return err
	}

	pdf, err := printHTML(ctx, tmpPath)
	if err != nil {
		if isChromeMissing(err) {
			return fmt.Errorf("%w: %v", apperrors.ErrChromeUnavailable, err)
		}
		return apperrors.NewReportError("print pdf", err)
	}

	if err := os.WriteFile(path, pdf, 0o644); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrReportWriteFailed, err)
	}
	return nil
}

// printHTML opens the file in a headless browser and returns the
// printed PDF bytes.
func printHTML(ctx context.Context, htmlPath string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, printTimeout)
	defer cancel()

	abs, err := filepath.Abs(htmlPath)
	if err != nil {
		return nil, err
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	var pdf []byte
	err = chromedp.Run(browserCtx,
		chromedp.Navigate("file://"+abs),
		chromedp.ActionFunc(func(ctx context.Context) error {
			buf, _, err := page.PrintToPDF().
				WithPrintBackground(true).
				WithPaperWidth(paperWidthInches).
				WithPaperHeight(paperHeightInches).
				Do(ctx)
			if err != nil {
				return err
			}
			pdf = buf
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}
	return pdf, nil
}

// isChromeMissing reports whether the error came from a missing
// browser binary rather than from the print itself.
func isChromeMissing(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, exec.ErrNotFound) {
		return true
	}
	return strings.Contains(err.Error(), "executable file not found")
}
