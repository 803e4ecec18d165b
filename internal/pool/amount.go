package pool

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// satsPerCoin is the number of satoshis in one whole unit.
const satsPerCoin = 100_000_000

// Sats converts a pool amount string such as "0.00001234 BTC" into satoshis.
// The magnitude before the first space is read as a decimal number,
// multiplied by 10^8, and truncated; digits beyond satoshi granularity are
// dropped. The arithmetic is done on the decimal text, not on floats, so no
// precision is lost.
func Sats(text string) (int64, error) {
	magnitude, _, _ := strings.Cut(strings.TrimSpace(text), " ")

	negative := false
	switch {
	case strings.HasPrefix(magnitude, "-"):
		negative = true
		magnitude = magnitude[1:]
	case strings.HasPrefix(magnitude, "+"):
		magnitude = magnitude[1:]
	}

	intPart, fracPart, hasFrac := strings.Cut(magnitude, ".")
	if intPart == "" && fracPart == "" {
		return 0, &ParseError{Input: text}
	}
	if hasFrac && !digitsOnly(fracPart) {
		return 0, &ParseError{Input: text}
	}

	whole := int64(0)
	if intPart != "" {
		parsed, err := strconv.ParseInt(intPart, 10, 64)
		if err != nil {
			return 0, &ParseError{Input: text, Err: err}
		}
		whole = parsed
	}

	frac := int64(0)
	if fracPart != "" {
		padded := fracPart
		if len(padded) > 8 {
			padded = padded[:8]
		} else {
			padded += strings.Repeat("0", 8-len(padded))
		}
		parsed, err := strconv.ParseInt(padded, 10, 64)
		if err != nil {
			return 0, &ParseError{Input: text, Err: err}
		}
		frac = parsed
	}

	sats := whole*satsPerCoin + frac
	if negative {
		sats = -sats
	}
	return sats, nil
}

func digitsOnly(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// timestampLayouts are the ISO-8601-like shapes the pool's CSV export has
// been seen to use. Zone-less values are read as UTC.
var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02 15:04",
	"2006-01-02",
}

// Timestamp parses an ISO-8601-like date-time string into UTC epoch seconds.
func Timestamp(text string) (int64, error) {
	trimmed := strings.TrimSpace(text)
	for _, layout := range timestampLayouts {
		parsed, err := time.Parse(layout, trimmed)
		if err == nil {
			return parsed.UTC().Unix(), nil
		}
	}
	return 0, &ParseError{Input: text, Err: fmt.Errorf("unrecognized timestamp")}
}
