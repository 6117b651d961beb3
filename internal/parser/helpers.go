package parser

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/flowrun/flowrun/internal/ast"
)

func parseIntLiteral(lit string) (int64, error) {
	return strconv.ParseInt(lit, 10, 64)
}

func parseFloatLiteral(lit string) (float64, error) {
	return strconv.ParseFloat(lit, 64)
}

// durationSuffixes maps the DSL's duration units to a time.Duration
// multiplier. Suffixes are tried in order, so "ms" must come before "s".
var durationSuffixes = []struct {
	suffix string
	unit   time.Duration
}{
	{"ms", time.Millisecond},
	{"min", time.Minute},
	{"s", time.Second},
	{"h", time.Hour},
	{"d", 24 * time.Hour},
}

// parseDurationLiteral parses a DURATION token's literal (e.g. "250ms",
// "5s", "1min", "2h", "1d") into a time.Duration.
func parseDurationLiteral(lit string) (time.Duration, error) {
	for _, s := range durationSuffixes {
		if strings.HasSuffix(lit, s.suffix) {
			numPart := strings.TrimSuffix(lit, s.suffix)
			n, err := strconv.ParseInt(numPart, 10, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid duration literal %q", lit)
			}
			return time.Duration(n) * s.unit, nil
		}
	}
	return 0, fmt.Errorf("unrecognized duration unit in %q", lit)
}

// parseRateLiteral parses a RATE token's literal (e.g. "100/s") into a
// count and interval.
func parseRateLiteral(lit string) (ast.Rate, error) {
	parts := strings.SplitN(lit, "/", 2)
	if len(parts) != 2 {
		return ast.Rate{}, fmt.Errorf("invalid rate literal %q", lit)
	}
	count, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return ast.Rate{}, fmt.Errorf("invalid rate literal %q", lit)
	}
	d, err := parseDurationLiteral("1" + parts[1])
	if err != nil {
		return ast.Rate{}, fmt.Errorf("invalid rate literal %q", lit)
	}
	return ast.Rate{Count: count, Interval: d}, nil
}
