package ves

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	errNoMatch     = errors.New("no rate announcement found")
	errInvalidDate = errors.New("invalid date")
	errInvalidTime = errors.New("invalid time")
	errInvalidRate = errors.New("invalid rate")
)

var (
	// noiseRegex matches everything a rate announcement doesn't need
	noiseRegex = regexp.MustCompile(`[^0-9BbSs/,.:;% ]+`)

	// announcementRegex extracts the date, time and value of an announcement:
	//   - [d]d/[m]m/[yy]yy date
	//   - [h]h:MM time, without running into a currency symbol
	//   - the value following the "Bs." currency marker
	announcementRegex = regexp.MustCompile(
		`(?is)(\d{1,2}/\d{1,2}/\d{2,4})` +
			`[^BS/]*?` +
			`((?:10|11|12|\d)[:.;]*\d{2})\b` +
			`[^B]*?` +
			`Bs. ([0-9.,]+\d)`,
	)
)

// sanitizeMessage replaces noise characters with whitespace
func sanitizeMessage(message string) string {
	return noiseRegex.ReplaceAllString(message, " ")
}

// parseMessage extracts the announced (raw, not normalized) rate from the message text
func parseMessage(message string) (time.Time, int64, error) {
	match := announcementRegex.FindStringSubmatch(sanitizeMessage(message))
	if match == nil {
		return time.Time{}, 0, errNoMatch
	}

	year, month, day, err := parseDate(match[1])
	if err != nil {
		return time.Time{}, 0, err
	}

	hour, minute, err := parseTime(match[2])
	if err != nil {
		return time.Time{}, 0, err
	}

	value, err := parseValue(match[3])
	if err != nil {
		return time.Time{}, 0, err
	}

	at := time.Date(year, month, day, hour, minute, 0, 0, Location)

	// time.Date normalizes overflows (31/02), which are not real dates
	if at.Day() != day || at.Month() != month {
		return time.Time{}, 0, fmt.Errorf("%w: %q", errInvalidDate, match[1])
	}

	return at, value, nil
}

// parseDate parses a d/m/y date. Years below 2000 are assumed to be 2000+year
func parseDate(v string) (int, time.Month, int, error) {
	parts := strings.Split(v, "/")
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("%w: %q", errInvalidDate, v)
	}

	values := make([]int, 3)

	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("%w: %q", errInvalidDate, v)
		}

		values[i] = n
	}

	day, month, year := values[0], values[1], values[2]

	if year < 2000 {
		year += 2000
	}

	if month < 1 || month > 12 || day < 1 || day > 31 {
		return 0, 0, 0, fmt.Errorf("%w: %q", errInvalidDate, v)
	}

	return year, time.Month(month), day, nil
}

// parseTime parses an [h]h:MM time. The channel posts in the afternoon using
// 12-hour notation without AM / PM, so hours below 7 are shifted by 12
func parseTime(v string) (int, int, error) {
	if len(v) < 3 {
		return 0, 0, fmt.Errorf("%w: %q", errInvalidTime, v)
	}

	hour, err := strconv.Atoi(strings.Trim(v[:len(v)-2], ":;."))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", errInvalidTime, v)
	}

	minute, err := strconv.Atoi(v[len(v)-2:])
	if err != nil || minute > 59 {
		return 0, 0, fmt.Errorf("%w: %q", errInvalidTime, v)
	}

	if hour < 7 {
		hour += 12
	}

	return hour, minute, nil
}

// parseValue parses the announced value to the fixed-point representation.
// Separators are used inconsistently by the source, so a separator is only
// treated as decimal when it is followed by exactly two digits:
//
//	"1.234,56" -> 1234 * 10000 + 56 * 100
//	"1.234"    -> 1234 * 10000
func parseValue(v string) (int64, error) {
	if len(v) >= 3 && (v[len(v)-3] == '.' || v[len(v)-3] == ',') {
		cents, err := strconv.ParseInt(v[len(v)-2:], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", errInvalidRate, v)
		}

		var whole int64

		if intPart := stripSeparators(v[:len(v)-3]); intPart != "" {
			whole, err = strconv.ParseInt(intPart, 10, 64)
			if err != nil {
				return 0, fmt.Errorf("%w: %q", errInvalidRate, v)
			}
		}

		return scaleValue(v, whole, cents*100)
	}

	whole, err := strconv.ParseInt(stripSeparators(v), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", errInvalidRate, v)
	}

	return scaleValue(v, whole, 0)
}

// scaleValue returns whole * 10000 + frac, rejecting values that overflow
func scaleValue(v string, whole, frac int64) (int64, error) {
	if whole > (math.MaxInt64-frac)/10000 {
		return 0, fmt.Errorf("%w: %q out of range", errInvalidRate, v)
	}

	return whole*10000 + frac, nil
}

func stripSeparators(v string) string {
	return strings.NewReplacer(".", "", ",", "").Replace(v)
}

// excerpt returns a short, single-line excerpt of the message, for logging
func excerpt(message string) string {
	const maxLen = 100

	if r := []rune(message); len(r) > maxLen {
		message = string(r[:maxLen])
	}

	return strings.ReplaceAll(message, "\n", "")
}
