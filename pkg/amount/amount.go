// Package amount parses free-text rupiah expressions as shop staff type them:
// "4000", "4k", "850rb", "1.5jt", and sums like "2k + 7k + 8k" or
// "100k, 50k, 25k".
package amount

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

// ErrInvalidFormat is returned when no usable numeric expression is present.
var ErrInvalidFormat = errors.New("invalid amount format")

var (
	prefixRE   = regexp.MustCompile(`^rp\.?\s*`)
	millionRE  = regexp.MustCompile(`(jt|juta|m|million)$`)
	thousandRE = regexp.MustCompile(`(k|rb|ribu|thousand)$`)
	groupRE    = regexp.MustCompile(`,(\d{3})(\D|$)`)
)

// stripGroupingCommas removes commas that group digits ("4,000",
// "1,500,000"): a comma followed by exactly three digits and then a non-digit
// or end of string. List commas ("2000, 7000") are left for the sum split.
// Iterated because adjacent groups share the boundary character.
func stripGroupingCommas(text string) string {
	for {
		out := groupRE.ReplaceAllString(text, "$1$2")
		if out == text {
			return out
		}
		text = out
	}
}

// Parse converts a free-text amount expression into whole rupiah.
//
// Digit-grouping commas are stripped first, then a top-level '+' or ',' splits
// the text into sub-expressions that are parsed independently and summed.
// Sub-expressions that do not parse contribute nothing; a sum whose total is
// zero is rejected, since it means nothing parsed. That guard also rejects a literal "0 + 0" — a known quirk carried
// over on purpose, a plain "0" still parses fine.
func Parse(text string) (int64, error) {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return 0, ErrInvalidFormat
	}
	text = prefixRE.ReplaceAllString(text, "")
	text = stripGroupingCommas(text)

	if strings.ContainsAny(text, "+,") {
		parts := strings.FieldsFunc(text, func(r rune) bool { return r == '+' || r == ',' })
		var total int64
		for _, p := range parts {
			n, err := parseSingle(p)
			if err != nil {
				continue
			}
			total += n
		}
		if total == 0 {
			return 0, ErrInvalidFormat
		}
		return total, nil
	}

	return parseSingle(text)
}

// parseSingle parses one expression: optional magnitude suffix, grouping
// separators stripped before the multiplier applies.
func parseSingle(text string) (int64, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, ErrInvalidFormat
	}

	var multiplier int64 = 1
	if loc := millionRE.FindStringIndex(text); loc != nil {
		multiplier = 1_000_000
		text = strings.TrimSpace(text[:loc[0]])
	} else if loc := thousandRE.FindStringIndex(text); loc != nil {
		multiplier = 1_000
		text = strings.TrimSpace(text[:loc[0]])
	}

	text = strings.NewReplacer(".", "", ",", "", " ", "").Replace(text)
	if text == "" {
		return 0, ErrInvalidFormat
	}

	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, ErrInvalidFormat
	}
	if f < 0 {
		return 0, ErrInvalidFormat
	}
	return int64(f) * multiplier, nil
}

// FormatRupiah renders n as "Rp1.234.567" with a leading minus for negatives.
// Display formatting for chat messages belongs to the transport; this is for
// logs and CLI output.
func FormatRupiah(n int64) string {
	neg := n < 0
	if neg {
		n = -n
	}
	s := strconv.FormatInt(n, 10)
	var b strings.Builder
	for i, d := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(d)
	}
	if neg {
		return "-Rp" + b.String()
	}
	return "Rp" + b.String()
}
