package dataset

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"callpulse/internal/errors"
)

// timeLayouts are tried in order when inferring date columns.
var timeLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"02/01/2006",
	"01/02/2006",
	"2006/01/02",
	"Jan 2, 2006",
}

// missingTokens are cell values treated as missing, compared lowercase.
var missingTokens = map[string]struct{}{
	"":     {},
	"na":   {},
	"n/a":  {},
	"nan":  {},
	"null": {},
	"none": {},
	"-":    {},
}

var nonIdentChars = regexp.MustCompile(`[^a-z0-9_]+`)

// LoaderConfig holds configuration options for the Loader.
type LoaderConfig struct {
	Delimiter     rune // zero means sniff from the first line
	InferenceRows int  // how many rows to sample for type inference
}

// Loader reads call-center CSV exports into a Frame. Headers are
// normalized to snake_case and column types are inferred by sampling,
// so exports from different telephony systems load without a fixed
// schema definition.
type Loader struct {
	logger *slog.Logger
	cfg    LoaderConfig
}

// NewLoader creates a loader with the given configuration.
func NewLoader(logger *slog.Logger, cfg LoaderConfig) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.InferenceRows <= 0 {
		cfg.InferenceRows = 200
	}
	return &Loader{logger: logger, cfg: cfg}
}

// Load reads the CSV file at path into a Frame.
func (l *Loader) Load(ctx context.Context, path string) (*Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", errors.ErrDataFileNotFound, path)
		}
		return nil, errors.NewDataError(fmt.Sprintf("open %s", path), err)
	}
	defer file.Close()

	frame, err := l.Read(ctx, file, path)
	if err != nil {
		return nil, err
	}

	l.logger.InfoContext(ctx, "dataset loaded",
		slog.String("path", path),
		slog.Int("rows", frame.NumRows()),
		slog.Int("columns", frame.NumColumns()))

	return frame, nil
}

// LoadDir reads every file in dir matching pattern (default "*.csv")
// and concatenates the results into a single frame.
func (l *Loader) LoadDir(ctx context.Context, dir, pattern string) (*Frame, error) {
	if pattern == "" {
		pattern = "*.csv"
	}

	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, errors.NewDataError(fmt.Sprintf("scan %s", dir), err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: no files matching %q in %s", errors.ErrDataFileNotFound, pattern, dir)
	}
	sort.Strings(matches)

	frames := make([]*Frame, 0, len(matches))
	for _, path := range matches {
		frame, err := l.Load(ctx, path)
		if err != nil {
			return nil, err
		}
		frames = append(frames, frame)
	}

	combined, err := Concat(frames)
	if err != nil {
		return nil, errors.NewDataError(fmt.Sprintf("combine files from %s", dir), err)
	}

	l.logger.InfoContext(ctx, "directory loaded",
		slog.String("dir", dir),
		slog.Int("files", len(matches)),
		slog.Int("rows", combined.NumRows()))

	return combined, nil
}

// Read parses CSV data from r into a Frame. name is used in error messages.
func (l *Loader) Read(ctx context.Context, r io.Reader, name string) (*Frame, error) {
	br := bufio.NewReader(r)

	delim := l.cfg.Delimiter
	if delim == 0 {
		sniffed, err := sniffDelimiter(br)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", errors.ErrDataFileEmpty, name)
		}
		delim = sniffed
	}

	reader := csv.NewReader(br)
	reader.Comma = delim
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", errors.ErrDataMalformed, name, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s", errors.ErrDataFileEmpty, name)
	}
	if len(records) == 1 {
		return nil, fmt.Errorf("%w: %s has a header but no data rows", errors.ErrDataFileEmpty, name)
	}

	headers := normalizeHeaders(records[0])
	rows := records[1:]

	// Pad ragged rows so every column has the full row count.
	cells := make([][]string, len(headers))
	for j := range headers {
		cells[j] = make([]string, len(rows))
	}
	for i, row := range rows {
		for j := range headers {
			if j < len(row) {
				cells[j][i] = strings.TrimSpace(row[j])
			}
		}
	}

	frame := NewFrame()
	for j, header := range headers {
		series := l.buildSeries(header, cells[j])
		if err := frame.AddSeries(series); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", errors.ErrDataMalformed, name, err)
		}
	}

	l.logger.DebugContext(ctx, "column types inferred",
		slog.Any("numeric", frame.NumericColumns()),
		slog.Any("categorical", frame.CategoricalColumns()))

	return frame, nil
}

// buildSeries infers the column type from a sample and parses all cells.
func (l *Loader) buildSeries(name string, raw []string) *Series {
	colType := l.inferType(name, raw)

	s := &Series{
		Name:  name,
		Type:  colType,
		Raw:   raw,
		Valid: make([]bool, len(raw)),
	}

	switch colType {
	case TypeNumeric:
		s.Float = make([]float64, len(raw))
		for i, cell := range raw {
			if isMissing(cell) {
				s.Float[i] = math.NaN()
				continue
			}
			v, err := parseNumber(cell)
			if err != nil {
				s.Float[i] = math.NaN()
				continue
			}
			s.Float[i] = v
			s.Valid[i] = true
		}
	case TypeTime:
		s.Time = make([]time.Time, len(raw))
		for i, cell := range raw {
			if isMissing(cell) {
				continue
			}
			t, ok := parseTime(cell)
			if !ok {
				continue
			}
			s.Time[i] = t
			s.Valid[i] = true
		}
	default:
		for i, cell := range raw {
			s.Valid[i] = !isMissing(cell)
		}
	}

	return s
}

// inferType samples the column and classifies it. A column qualifies as
// numeric or time when at least 80% of its sampled non-missing cells parse.
func (l *Loader) inferType(name string, raw []string) ColumnType {
	sampled := 0
	numeric := 0
	times := 0

	for _, cell := range raw {
		if sampled >= l.cfg.InferenceRows {
			break
		}
		if isMissing(cell) {
			continue
		}
		sampled++
		if _, err := parseNumber(cell); err == nil {
			numeric++
			continue
		}
		if _, ok := parseTime(cell); ok {
			times++
		}
	}

	if sampled == 0 {
		return TypeText
	}

	threshold := (sampled * 4) / 5
	// Date-named columns get first claim on the time type; telephony
	// exports sometimes emit dates as plain numbers (20240131).
	if strings.Contains(name, "date") && times > 0 && times >= threshold {
		return TypeTime
	}
	if numeric >= threshold && numeric >= times {
		return TypeNumeric
	}
	if times >= threshold {
		return TypeTime
	}
	return TypeText
}

// sniffDelimiter inspects the first line without consuming the reader.
func sniffDelimiter(br *bufio.Reader) (rune, error) {
	const peekSize = 4096
	head, err := br.Peek(peekSize)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return 0, err
	}
	if len(head) == 0 {
		return 0, io.EOF
	}

	line := string(head)
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}

	best := ','
	bestCount := strings.Count(line, ",")
	for _, candidate := range []rune{';', '\t', '|'} {
		if count := strings.Count(line, string(candidate)); count > bestCount {
			best = candidate
			bestCount = count
		}
	}
	return best, nil
}

// normalizeHeaders converts headers to snake_case and fills in names for
// blank or duplicate columns.
func normalizeHeaders(headers []string) []string {
	out := make([]string, len(headers))
	seen := make(map[string]int)

	for i, h := range headers {
		name := NormalizeName(h)
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		if n, dup := seen[name]; dup {
			seen[name] = n + 1
			name = fmt.Sprintf("%s_%d", name, n+1)
		}
		seen[name] = 1
		out[i] = name
	}
	return out
}

// NormalizeName converts a column header to snake_case: lowercased, with
// runs of spaces, dashes and other punctuation collapsed to single
// underscores.
func NormalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.TrimPrefix(name, "\uFEFF")
	name = nonIdentChars.ReplaceAllString(name, "_")
	return strings.Trim(name, "_")
}

// isMissing reports whether a cell should be treated as a missing value.
func isMissing(cell string) bool {
	_, ok := missingTokens[strings.ToLower(strings.TrimSpace(cell))]
	return ok
}

// parseNumber parses a numeric cell, tolerating thousands separators and
// trailing percent signs.
func parseNumber(cell string) (float64, error) {
	cleaned := strings.TrimSpace(cell)
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	percent := strings.HasSuffix(cleaned, "%")
	cleaned = strings.TrimSuffix(cleaned, "%")

	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, err
	}
	if percent {
		v /= 100
	}
	return v, nil
}

// parseTime tries the known layouts in order.
func parseTime(cell string) (time.Time, bool) {
	cleaned := strings.TrimSpace(cell)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, cleaned); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
