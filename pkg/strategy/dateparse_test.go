package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Sunday.
var fixedNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestParseDateExpression(t *testing.T) {
	fallback := 30 * 24 * time.Hour
	tests := []struct {
		name       string
		text       string
		start, end time.Time
		confidence float64
	}{
		{"yesterday", "yesterday", day(2025, 6, 14), day(2025, 6, 15), 0.95},
		{"today", "what happened today", day(2025, 6, 15), fixedNow.Add(time.Nanosecond), 0.95},
		{"last n days", "last 3 days", fixedNow.AddDate(0, 0, -3), fixedNow.Add(time.Nanosecond), 0.9},
		{"number words", "past two hours", fixedNow.Add(-2 * time.Hour), fixedNow.Add(time.Nanosecond), 0.9},
		{"weeks ago", "2 weeks ago", day(2025, 5, 26), day(2025, 6, 2), 0.85},
		{"last week", "last week", day(2025, 6, 2), day(2025, 6, 9), 0.9},
		{"this month", "this month", day(2025, 6, 1), fixedNow.Add(time.Nanosecond), 0.9},
		{"since date", "since 2025-01-01", day(2025, 1, 1), fixedNow.Add(time.Nanosecond), 0.9},
		{"after date", "after 2025-06-01", day(2025, 6, 2), fixedNow.Add(time.Nanosecond), 0.85},
		{"before date", "before 2025-06-01", day(2025, 6, 1).Add(-fallback), day(2025, 6, 1), 0.8},
		{"between dates", "between 2025-01-01 and 2025-01-31", day(2025, 1, 1), day(2025, 2, 1), 0.95},
		{"iso date", "notes on 2025-03-04", day(2025, 3, 4), day(2025, 3, 5), 0.95},
		{"past month name", "in march", day(2025, 3, 1), day(2025, 4, 1), 0.7},
		{"future month name wraps", "in december", day(2024, 12, 1), day(2025, 1, 1), 0.7},
		{"month and year", "november 2023", day(2023, 11, 1), day(2023, 12, 1), 0.85},
		{"vague", "recently", fixedNow.AddDate(0, 0, -7), fixedNow.Add(time.Nanosecond), 0.6},
		{"case insensitive", "YESTERDAY", day(2025, 6, 14), day(2025, 6, 15), 0.95},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseDateExpression(tt.text, fixedNow, fallback)
			require.True(t, ok)
			assert.True(t, tt.start.Equal(got.Range.Start), "start %v, want %v", got.Range.Start, tt.start)
			assert.True(t, tt.end.Equal(got.Range.End), "end %v, want %v", got.Range.End, tt.end)
			assert.InDelta(t, tt.confidence, got.Confidence, 1e-9)
		})
	}
}

func TestParseDateExpression_NoMatch(t *testing.T) {
	for _, text := range []string{"", "hello world", "may I ask something", "ask me anything"} {
		_, ok := ParseDateExpression(text, fixedNow, time.Hour)
		assert.False(t, ok, text)
	}
}

func TestParseDateExpression_Remainder(t *testing.T) {
	got, ok := ParseDateExpression("meeting notes from yesterday please", fixedNow, time.Hour)
	require.True(t, ok)
	assert.Equal(t, "yesterday", got.Expression)
	assert.Equal(t, "meeting notes from please", got.Remainder)
}

func TestTimeRange_Contains(t *testing.T) {
	r := TimeRange{Start: day(2025, 1, 1), End: day(2025, 1, 2)}
	assert.True(t, r.Contains(day(2025, 1, 1)))
	assert.True(t, r.Contains(day(2025, 1, 1).Add(23*time.Hour)))
	assert.False(t, r.Contains(day(2025, 1, 2)))
	assert.False(t, r.Contains(day(2024, 12, 31)))
}
