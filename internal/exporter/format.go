package exporter

import (
	"fmt"
	"strconv"
)

// formatFloat formats a metric value for CSV output with exactly 2
// decimal places, so values like 13.4 appear as 13.40.
func formatFloat(f float64) string {
	return fmt.Sprintf("%.2f", f)
}

// formatCoefficient keeps four decimal places for correlation output.
func formatCoefficient(f float64) string {
	return fmt.Sprintf("%.4f", f)
}

// formatInt formats an int value for CSV output.
func formatInt(i int) string {
	return strconv.Itoa(i)
}

// formatBool formats a boolean value for CSV output.
func formatBool(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
