package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"strconv"
	"time"

	"callpulse/internal/config"
)

// Columns in output order. Every metric column the KPI calculators
// recognize is populated so a generated file exercises the full report.
var columns = []string{
	config.ColDate,
	config.ColAgentID,
	config.ColTeam,
	config.ColHandleTime,
	config.ColFirstCallRes,
	config.ColCallsOffered,
	config.ColCallsAnswered,
	config.ColAnswerTime,
	config.ColLoggedTime,
	config.ColProductiveTime,
	config.ColScheduledTime,
	config.ColActualTime,
	config.ColQAScore,
	config.ColCSATScore,
	config.ColNPSScore,
	config.ColCompliancePass,
	config.ColErrorCount,
	config.ColTotalInteractions,
}

const (
	agentCount   = 8
	teamCount    = 2
	shiftSeconds = 8 * 60 * 60
	dateLayout   = "2006-01-02"
)

func main() {
	rows := flag.Int("rows", 120, "number of data rows to generate")
	out := flag.String("out", "sample_calls.csv", "output CSV path")
	seed := flag.Int64("seed", 42, "random seed; the same seed always produces the same file")
	flag.Parse()

	if *rows < 1 {
		fmt.Fprintln(os.Stderr, "error: -rows must be at least 1")
		os.Exit(2)
	}

	records := generateRows(*rows, *seed)
	if err := writeCSV(*out, records); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Wrote %d rows to %s\n", *rows, *out)
}

// generateRows produces n data rows plus a header. Each agent carries a
// fixed skill level that drives handle time down and the quality scores
// up, so correlation analysis on the output finds real relationships.
func generateRows(n int, seed int64) [][]string {
	rng := rand.New(rand.NewSource(seed))

	skills := make([]float64, agentCount)
	for i := range skills {
		skills[i] = 0.6 + 0.4*rng.Float64()
	}

	records := make([][]string, 0, n+1)
	records = append(records, columns)

	start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		agent := i % agentCount
		day := start.AddDate(0, 0, i/agentCount)
		skill := skills[agent]

		handleTime := 420 - 180*skill + rng.NormFloat64()*30
		if handleTime < 60 {
			handleTime = 60
		}

		fcr := 0
		if rng.Float64() < 0.55+0.4*skill {
			fcr = 1
		}

		offered := 80 + rng.Intn(60)
		answered := offered - rng.Intn(6)

		answerTime := 12 + rng.Intn(30) - int(10*skill)
		if answerTime < 1 {
			answerTime = 1
		}

		logged := shiftSeconds - rng.Intn(1800)
		productive := int(float64(logged) * (0.62 + 0.25*skill))
		if productive > logged {
			productive = logged
		}
		actual := logged + rng.Intn(900) - 450

		qa := clamp(58+38*skill+rng.NormFloat64()*5, 0, 100)
		csat := clamp(2.6+2.0*skill+rng.NormFloat64()*0.3, 1, 5)
		nps := clamp(-25+110*skill+rng.NormFloat64()*15, -100, 100)

		compliance := 0
		if rng.Float64() < 0.82+0.15*skill {
			compliance = 1
		}

		errors := rng.Intn(5) - int(3*skill)
		if errors < 0 {
			errors = 0
		}

		records = append(records, []string{
			day.Format(dateLayout),
			fmt.Sprintf("A%03d", agent+1),
			fmt.Sprintf("Team-%d", agent%teamCount+1),
			strconv.Itoa(int(handleTime)),
			strconv.Itoa(fcr),
			strconv.Itoa(offered),
			strconv.Itoa(answered),
			strconv.Itoa(answerTime),
			strconv.Itoa(logged),
			strconv.Itoa(productive),
			strconv.Itoa(shiftSeconds),
			strconv.Itoa(actual),
			fmt.Sprintf("%.1f", qa),
			fmt.Sprintf("%.1f", csat),
			strconv.Itoa(int(nps)),
			strconv.Itoa(compliance),
			strconv.Itoa(errors),
			strconv.Itoa(answered + rng.Intn(12)),
		})
	}

	return records
}

func writeCSV(path string, records [][]string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.WriteAll(records); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	writer.Flush()
	return writer.Error()
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}
