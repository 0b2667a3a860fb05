package ves

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sig-0/vedollar/storage/types"
)

func paralelo(at time.Time, rate int64) *types.Observation {
	return &types.Observation{
		Time:   at,
		Source: types.SourceParalelo,
		Rate:   rate,
	}
}

func TestCorrect(t *testing.T) {
	t.Parallel()

	testTable := []struct {
		in           *types.Observation
		expectedTime time.Time
		name         string
		expectedRate int64
		corrected    bool
	}{
		{
			name:         "mistyped value",
			in:           paralelo(vetTime(2024, time.May, 29, 13, 0), 411_1000),
			expectedTime: vetTime(2024, time.May, 29, 13, 0),
			expectedRate: 41_1000,
			corrected:    true,
		},
		{
			name:         "wrong year and value",
			in:           paralelo(vetTime(2024, time.January, 3, 12, 45), 6_0800),
			expectedTime: vetTime(2025, time.January, 3, 12, 45),
			expectedRate: 67_0800,
			corrected:    true,
		},
		{
			name:         "wrong year 2024 -> 2025",
			in:           paralelo(vetTime(2024, time.January, 7, 9, 0), 65_5000),
			expectedTime: vetTime(2025, time.January, 7, 9, 0),
			expectedRate: 65_5000,
			corrected:    true,
		},
		{
			name:         "wrong year 2022 -> 2023",
			in:           paralelo(vetTime(2022, time.January, 9, 13, 0), 21_0000),
			expectedTime: vetTime(2023, time.January, 9, 13, 0),
			expectedRate: 21_0000,
			corrected:    true,
		},
		{
			name:         "missing digit (2021)",
			in:           paralelo(vetTime(2021, time.February, 16, 9, 0), 1733),
			expectedTime: vetTime(2021, time.February, 16, 9, 0),
			expectedRate: 17330,
			corrected:    true,
		},
		{
			name:         "missing digit (2020)",
			in:           paralelo(vetTime(2020, time.July, 23, 13, 0), 261),
			expectedTime: vetTime(2020, time.July, 23, 13, 0),
			expectedRate: 2610,
			corrected:    true,
		},
		{
			name:         "parser failure",
			in:           paralelo(vetTime(2020, time.March, 13, 9, 0), 0),
			expectedTime: vetTime(2020, time.March, 13, 9, 0),
			expectedRate: 775,
			corrected:    true,
		},
		{
			name:         "value off by one digit",
			in:           paralelo(vetTime(2021, time.February, 16, 9, 0), 1734),
			expectedTime: vetTime(2021, time.February, 16, 9, 0),
			expectedRate: 1734,
		},
		{
			name:         "time off by one minute",
			in:           paralelo(vetTime(2021, time.February, 16, 9, 1), 1733),
			expectedTime: vetTime(2021, time.February, 16, 9, 1),
			expectedRate: 1733,
		},
		{
			name:         "year off by one",
			in:           paralelo(vetTime(2023, time.January, 3, 12, 45), 6_0800),
			expectedTime: vetTime(2023, time.January, 3, 12, 45),
			expectedRate: 6_0800,
		},
		{
			name:         "outside the year window",
			in:           paralelo(vetTime(2024, time.January, 9, 9, 0), 65_5000),
			expectedTime: vetTime(2024, time.January, 9, 9, 0),
			expectedRate: 65_5000,
		},
		{
			name:         "valid record",
			in:           paralelo(vetTime(2024, time.May, 29, 13, 0), 41_1000),
			expectedTime: vetTime(2024, time.May, 29, 13, 0),
			expectedRate: 41_1000,
		},
		{
			name: "rule scoped to another source",
			in: &types.Observation{
				Time:   vetTime(2021, time.February, 16, 9, 0),
				Source: types.SourceBCV,
				Rate:   1733,
			},
			expectedTime: vetTime(2021, time.February, 16, 9, 0),
			expectedRate: 1733,
		},
	}

	for _, testCase := range testTable {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			_, corrected := Correct(testCase.in)

			assert.Equal(t, testCase.corrected, corrected)
			assert.True(t, testCase.expectedTime.Equal(testCase.in.Time))
			assert.Equal(t, testCase.expectedRate, testCase.in.Rate)
		})
	}
}

func TestCorrect_FirstMatchWins(t *testing.T) {
	t.Parallel()

	o := paralelo(vetTime(2024, time.January, 3, 12, 45), 6_0800)

	rule, ok := Correct(o)

	assert.True(t, ok)
	assert.Equal(t, "wrong year and value", rule)
	assert.Equal(t, 2025, o.Time.Year())
}
