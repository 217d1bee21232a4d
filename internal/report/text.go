package report

import (
	"fmt"
	"os"
	"strings"

	apperrors "callpulse/internal/errors"
)

// textWidth is the column width of the plain text report.
const textWidth = 80

// writeText renders the document as 80-column plain text.
func (g *Generator) writeText(doc Document, path string) error {
	if err := os.WriteFile(path, []byte(renderText(doc)), 0o644); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrReportWriteFailed, err)
	}
	return nil
}

func renderText(doc Document) string {
	rule := strings.Repeat("=", textWidth)

	var b strings.Builder
	b.WriteString(rule + "\n")
	b.WriteString(centerText(doc.Title, textWidth) + "\n")
	b.WriteString(rule + "\n")
	fmt.Fprintf(&b, "Generated: %s\n", doc.GeneratedAt.Format("2006-01-02 15:04:05"))
	if doc.Data.SourceFile != "" {
		fmt.Fprintf(&b, "Source: %s\n", doc.Data.SourceFile)
	}
	if doc.Data.RowCount > 0 {
		fmt.Fprintf(&b, "Rows analyzed: %d\n", doc.Data.RowCount)
	}
	b.WriteString(rule + "\n")

	for _, section := range doc.Sections {
		b.WriteString("\n" + rule + "\n")
		b.WriteString(section.Title + "\n")
		b.WriteString(rule + "\n")
		b.WriteString(wrapText(section.Body, textWidth) + "\n")
	}

	return b.String()
}

func centerText(text string, width int) string {
	if len(text) >= width {
		return text
	}
	pad := (width - len(text)) / 2
	return strings.Repeat(" ", pad) + text
}

// wrapText greedily wraps each line at width, preserving the line's
// leading indentation on continuation lines.
func wrapText(text string, width int) string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		out = append(out, wrapLine(line, width)...)
	}
	return strings.Join(out, "\n")
}

func wrapLine(line string, width int) []string {
	if len(line) <= width {
		return []string{line}
	}

	indent := line[:len(line)-len(strings.TrimLeft(line, " "))]
	words := strings.Fields(line)
	if len(words) == 0 {
		return []string{line}
	}

	var (
		lines   []string
		current = indent + words[0]
	)
	for _, word := range words[1:] {
		if len(current)+1+len(word) > width {
			lines = append(lines, current)
			current = indent + word
			continue
		}
		current += " " + word
	}
	lines = append(lines, current)
	return lines
}
