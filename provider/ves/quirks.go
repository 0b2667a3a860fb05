package ves

import (
	"time"

	"github.com/sig-0/vedollar/storage/types"
)

// quirk is a single hand-maintained correction for a known bad record.
// Rules match normalized values
type quirk struct {
	match   func(o *types.Observation) bool
	correct func(o *types.Observation)
	name    string
	source  types.Source
}

// quirks is the ordered correction table. The first matching rule wins
var quirks = []quirk{
	{
		name:   "mistyped value",
		source: types.SourceParalelo,
		match: func(o *types.Observation) bool {
			return onDay(o.Time, 2024, time.May, 29) && o.Rate == 411_1000
		},
		correct: func(o *types.Observation) {
			o.Rate = 41_1000
		},
	},
	{
		name:   "wrong year and value",
		source: types.SourceParalelo,
		match: func(o *types.Observation) bool {
			return o.Time.Equal(vetTime(2024, time.January, 3, 12, 45)) && o.Rate == 6_0800
		},
		correct: func(o *types.Observation) {
			o.Time = withYear(o.Time, 2025)
			o.Rate = 67_0800
		},
	},
	{
		// Start-of-year posts still carrying the previous year
		name:   "wrong year 2024 -> 2025",
		source: types.SourceParalelo,
		match: func(o *types.Observation) bool {
			return betweenDays(o.Time, vetDay(2024, time.January, 6), vetDay(2024, time.January, 8)) &&
				o.Rate >= 64_0000 && o.Rate <= 70_0000
		},
		correct: func(o *types.Observation) {
			o.Time = withYear(o.Time, 2025)
		},
	},
	{
		name:   "wrong year 2022 -> 2023",
		source: types.SourceParalelo,
		match: func(o *types.Observation) bool {
			return betweenDays(o.Time, vetDay(2022, time.January, 5), vetDay(2022, time.January, 9)) &&
				o.Rate >= 20_0000 && o.Rate <= 22_0000
		},
		correct: func(o *types.Observation) {
			o.Time = withYear(o.Time, 2023)
		},
	},
	{
		name:   "missing digit",
		source: types.SourceParalelo,
		match: func(o *types.Observation) bool {
			return o.Time.Equal(vetTime(2021, time.February, 16, 9, 0)) && o.Rate == 1733
		},
		correct: func(o *types.Observation) {
			o.Rate = 17330
		},
	},
	{
		name:   "missing digit",
		source: types.SourceParalelo,
		match: func(o *types.Observation) bool {
			return o.Time.Equal(vetTime(2020, time.July, 23, 13, 0)) && o.Rate == 261
		},
		correct: func(o *types.Observation) {
			o.Rate = 2610
		},
	},
	{
		// The message value is unparseable, the rate is hard-coded
		name:   "parser failure",
		source: types.SourceParalelo,
		match: func(o *types.Observation) bool {
			return onDay(o.Time, 2020, time.March, 13) && o.Rate == 0
		},
		correct: func(o *types.Observation) {
			o.Rate = 775
		},
	},
}

// Correct applies the first matching correction rule to the observation, in place.
// Returns the name of the applied rule, if any
func Correct(o *types.Observation) (string, bool) {
	for _, q := range quirks {
		if q.source != o.Source || !q.match(o) {
			continue
		}

		q.correct(o)

		return q.name, true
	}

	return "", false
}

func vetTime(year int, month time.Month, day, hour, minute int) time.Time {
	return time.Date(year, month, day, hour, minute, 0, 0, Location)
}

func vetDay(year int, month time.Month, day int) time.Time {
	return vetTime(year, month, day, 0, 0)
}

// onDay checks if the instant falls on the given Venezuelan calendar day
func onDay(t time.Time, year int, month time.Month, day int) bool {
	y, m, d := t.In(Location).Date()

	return y == year && m == month && d == day
}

// betweenDays checks if the instant's calendar day is within [from, to]
func betweenDays(t time.Time, from, to time.Time) bool {
	day := vetDay(t.In(Location).Date())

	return !day.Before(from) && !day.After(to)
}

func withYear(t time.Time, year int) time.Time {
	t = t.In(Location)

	return time.Date(year, t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), Location)
}
