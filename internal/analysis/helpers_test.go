package analysis

import (
	"log/slog"
	"math"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"callpulse/internal/dataset"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func numCol(name string, vals ...float64) *dataset.Series {
	s := &dataset.Series{
		Name:  name,
		Type:  dataset.TypeNumeric,
		Float: vals,
		Raw:   make([]string, len(vals)),
		Valid: make([]bool, len(vals)),
	}
	for i, v := range vals {
		if math.IsNaN(v) {
			continue
		}
		s.Raw[i] = strconv.FormatFloat(v, 'g', -1, 64)
		s.Valid[i] = true
	}
	return s
}

func textCol(name string, vals ...string) *dataset.Series {
	s := &dataset.Series{
		Name:  name,
		Type:  dataset.TypeText,
		Raw:   vals,
		Valid: make([]bool, len(vals)),
	}
	for i, v := range vals {
		s.Valid[i] = v != ""
	}
	return s
}

func timeCol(name string, times ...time.Time) *dataset.Series {
	s := &dataset.Series{
		Name:  name,
		Type:  dataset.TypeTime,
		Raw:   make([]string, len(times)),
		Time:  times,
		Valid: make([]bool, len(times)),
	}
	for i, ts := range times {
		if ts.IsZero() {
			continue
		}
		s.Raw[i] = ts.Format("2006-01-02")
		s.Valid[i] = true
	}
	return s
}

func buildFrame(t *testing.T, series ...*dataset.Series) *dataset.Frame {
	t.Helper()
	f := dataset.NewFrame()
	for _, s := range series {
		require.NoError(t, f.AddSeries(s))
	}
	return f
}

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}
