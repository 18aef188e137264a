package scrape

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var digitRun = regexp.MustCompile(`\d+`)

// parseDecimal converts a published numeric field to a float. The listing
// uses a comma as decimal separator and percentage fields carry a trailing
// percent sign.
func parseDecimal(s string) (float64, error) {
	cleaned := strings.TrimSpace(s)
	cleaned = strings.TrimSpace(strings.TrimSuffix(cleaned, "%"))
	cleaned = strings.ReplaceAll(cleaned, ",", ".")
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("parse decimal %q: %w", s, err)
	}
	return v, nil
}

// firstDigits returns the first run of digits in s, if any.
func firstDigits(s string) (string, bool) {
	m := digitRun.FindString(s)
	return m, m != ""
}
