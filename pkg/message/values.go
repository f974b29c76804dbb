package message

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ISO 20022 leaf value layouts
const (
	DateLayout     = "2006-01-02"
	DateTimeLayout = "2006-01-02T15:04:05"
)

var decimalPattern = regexp.MustCompile(`^[+-]?([0-9]+(\.[0-9]*)?|\.[0-9]+)$`)

var dateLayouts = []string{
	DateLayout,
	"2006-01-02Z07:00",
}

var dateTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	DateTimeLayout,
}

// ParseDecimal parses an xs:decimal lexical value. Exponents are rejected.
func ParseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if !decimalPattern.MatchString(s) {
		return decimal.Zero, fmt.Errorf("invalid decimal %q", s)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	return d, nil
}

// DecimalDigits returns the significant total and fraction digits of a
// decimal lexical value, ignoring sign, leading and trailing zeros
func DecimalDigits(s string) (total, fraction int) {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "+-")
	intPart, fracPart, _ := strings.Cut(s, ".")
	intPart = strings.TrimLeft(intPart, "0")
	fracPart = strings.TrimRight(fracPart, "0")
	return len(intPart) + len(fracPart), len(fracPart)
}

// ParseDate parses an ISODate, with optional zone designator.
// Dates without zone are returned in UTC.
func ParseDate(s string) (time.Time, error) {
	return parseWith(strings.TrimSpace(s), dateLayouts, "date")
}

// ParseDateTime parses an ISODateTime. Values without zone are taken as UTC.
func ParseDateTime(s string) (time.Time, error) {
	return parseWith(strings.TrimSpace(s), dateTimeLayouts, "date-time")
}

// ParseDateOrDateTime accepts either an ISODate or an ISODateTime
func ParseDateOrDateTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "T") {
		return ParseDateTime(s)
	}
	return ParseDate(s)
}

// ParseBoolean parses an xs:boolean
func ParseBoolean(s string) (bool, error) {
	switch strings.TrimSpace(s) {
	case "true", "1":
		return true, nil
	case "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", s)
}

func parseWith(s string, layouts []string, kind string) (time.Time, error) {
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid %s %q", kind, s)
}
