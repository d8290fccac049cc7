// Package comparator decides whether a program's output matches the expected
// answer, ignoring layout noise and tolerating floating point error.
package comparator

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// Epsilon is both the absolute tolerance near zero and the relative tolerance
// elsewhere.
const Epsilon = 1e-9

var numberPattern = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)

// Result is the outcome of Compare.
type Result struct {
	Matched bool
	// MismatchTokenIndex is the index of the first differing token, or -1
	// when the outputs match.
	MismatchTokenIndex int
}

// Normalize unifies line endings, strips trailing whitespace from each line,
// drops blank lines and trims the result.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = strings.TrimRightFunc(line, unicode.IsSpace)
		if line == "" {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// Compare matches expected against actual token by token.
func Compare(expected, actual string) Result {
	want := strings.Fields(Normalize(expected))
	got := strings.Fields(Normalize(actual))

	if len(want) != len(got) {
		return Result{MismatchTokenIndex: min(len(want), len(got))}
	}
	for i := range want {
		if !tokensEqual(want[i], got[i]) {
			return Result{MismatchTokenIndex: i}
		}
	}
	return Result{Matched: true, MismatchTokenIndex: -1}
}

// Close reports whether a and b are equal within Epsilon: absolute when both
// are near zero, relative otherwise.
func Close(a, b float64) bool {
	diff := math.Abs(a - b)
	scale := math.Max(math.Abs(a), math.Abs(b))
	if scale < Epsilon {
		return diff < Epsilon
	}
	return diff/scale < Epsilon
}

func tokensEqual(want, got string) bool {
	if a, ok := parseNumber(want); ok {
		if b, ok := parseNumber(got); ok {
			return Close(a, b)
		}
	}
	return want == got
}

// parseNumber accepts signed decimal and scientific notation only; words
// such as "inf" or "nan" are compared as text.
func parseNumber(tok string) (float64, bool) {
	if !numberPattern.MatchString(tok) {
		return 0, false
	}
	v, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
