package report

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"callpulse/internal/config"
	apperrors "callpulse/internal/errors"
)

// Report formats accepted by the generator. The format doubles as the
// file extension.
const (
	FormatHTML = "html"
	FormatText = "txt"
	FormatXLSX = "xlsx"
	FormatPDF  = "pdf"
)

// Generator assembles and writes reports in the configured format.
type Generator struct {
	logger  *slog.Logger
	cfg     config.ReportConfig
	builder *Builder
}

// NewGenerator creates a report generator.
func NewGenerator(logger *slog.Logger, cfg config.ReportConfig) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		logger:  logger,
		cfg:     cfg,
		builder: NewBuilder(logger, cfg),
	}
}

// Generate assembles the document and writes one report file under
// outputDir, named with the generation timestamp. An empty format
// falls back to the configured format, then to HTML. Returns the
// written path.
func (g *Generator) Generate(ctx context.Context, data Data, outputDir, format string) (string, error) {
	start := time.Now()

	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = g.cfg.Format
	}
	if format == "" {
		format = FormatHTML
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", apperrors.NewReportError("create output directory", err)
	}

	doc := g.builder.Comprehensive(data)
	name := fmt.Sprintf("%s_%s.%s", config.ReportFilePrefix, doc.GeneratedAt.Format(config.ReportTimestampText), format)
	path := filepath.Join(outputDir, name)

	var err error
	switch format {
	case FormatHTML:
		err = g.writeHTML(doc, path)
	case FormatText:
		err = g.writeText(doc, path)
	case FormatXLSX:
		err = g.writeXLSX(doc, path)
	case FormatPDF:
		err = g.writePDF(ctx, doc, path)
	default:
		return "", fmt.Errorf("%w: %q", apperrors.ErrUnsupportedFormat, format)
	}
	if err != nil {
		return "", err
	}

	g.logger.InfoContext(ctx, "report generated",
		slog.String("format", format),
		slog.String("path", path),
		slog.Int("sections", len(doc.Sections)),
		slog.Duration("duration", time.Since(start)),
	)

	return path, nil
}
