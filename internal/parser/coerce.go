package parser

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// dateLayouts are tried in order. Single-digit day and hour layouts also
// accept two digits.
var dateLayouts = []string{
	"2-Jan-2006 3:04 PM",
	"2-Jan-2006",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"1/2/2006",
}

var (
	nonMoneyRe   = regexp.MustCompile(`[^\d.]`)
	leadingIntRe = regexp.MustCompile(`^\s*(\d+)`)
)

// ParseDate parses a portal date. Unrecognized non-empty values log a warning
// and return nil.
func ParseDate(s string) *time.Time {
	s = cleanText(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	zap.L().Warn("parser: unrecognized date", zap.String("value", s))
	return nil
}

// ParseMoney strips everything but digits and dots and parses the rest.
// "PHP 1,234,567.89" becomes 1234567.89; nothing numeric yields nil.
func ParseMoney(s string) *float64 {
	digits := nonMoneyRe.ReplaceAllString(s, "")
	if digits == "" {
		return nil
	}
	f, err := strconv.ParseFloat(digits, 64)
	if err != nil {
		return nil
	}
	return &f
}

// LeadingInt returns the integer at the start of s ("120 Day(s)" -> 120).
func LeadingInt(s string) *int {
	m := leadingIntRe.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	return &n
}

// cleanText collapses runs of whitespace (including non-breaking spaces) and trims.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
