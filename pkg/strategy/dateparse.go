package strategy

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// TimeRange is a half-open interval [Start, End).
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls inside the range.
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// ParsedDate is the outcome of parsing a natural-language time expression.
type ParsedDate struct {
	Range      TimeRange
	Confidence float64
	// Expression is the matched part of the input.
	Expression string
	// Remainder is the input with the expression removed.
	Remainder string
}

type dateRule struct {
	re         *regexp.Regexp
	confidence float64
	resolve    func(m []string, now time.Time, fallback time.Duration) (TimeRange, bool)
}

const isoDate = `(\d{4}-\d{2}-\d{2}(?:[t ]\d{2}:\d{2}(?::\d{2})?(?:z|[+-]\d{2}:\d{2})?)?)`

var monthNames = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June, "july": time.July,
	"august": time.August, "september": time.September, "october": time.October,
	"november": time.November, "december": time.December,
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"jun": time.June, "jul": time.July, "aug": time.August, "sep": time.September,
	"sept": time.September, "oct": time.October, "nov": time.November, "dec": time.December,
}

var numberWords = map[string]int{
	"a": 1, "an": 1, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10, "twelve": 12,
}

const unitPattern = `(minute|hour|day|week|month|year)s?`
const countPattern = `(\d+|a|an|one|two|three|four|five|six|seven|eight|nine|ten|twelve)`

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func startOfWeek(t time.Time) time.Time {
	d := startOfDay(t)
	offset := (int(d.Weekday()) + 6) % 7 // Monday first
	return d.AddDate(0, 0, -offset)
}

func startOfMonth(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
}

func startOfYear(t time.Time) time.Time {
	return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, t.Location())
}

const monthPattern = `(january|february|march|april|may|june|july|august|september|october|november|december|jan|feb|mar|apr|jun|jul|aug|sept|sep|oct|nov|dec)`

// resolveMonth expands a month name and optional year to the whole month,
// picking the most recent such month when no year is given.
func resolveMonth(m []string, now time.Time, _ time.Duration) (TimeRange, bool) {
	month := monthNames[m[1]]
	year := now.Year()
	if m[2] != "" {
		year, _ = strconv.Atoi(m[2])
	} else if month > now.Month() {
		year--
	}
	s := time.Date(year, month, 1, 0, 0, 0, 0, now.Location())
	return TimeRange{s, s.AddDate(0, 1, 0)}, true
}

func parseCount(s string) int {
	if n, ok := numberWords[s]; ok {
		return n
	}
	n, _ := strconv.Atoi(s)
	return n
}

func subtractUnit(t time.Time, n int, unit string) time.Time {
	switch unit {
	case "minute":
		return t.Add(-time.Duration(n) * time.Minute)
	case "hour":
		return t.Add(-time.Duration(n) * time.Hour)
	case "day":
		return t.AddDate(0, 0, -n)
	case "week":
		return t.AddDate(0, 0, -7*n)
	case "month":
		return t.AddDate(0, -n, 0)
	default:
		return t.AddDate(-n, 0, 0)
	}
}

func unitSpan(t time.Time, unit string) TimeRange {
	switch unit {
	case "minute":
		s := t.Truncate(time.Minute)
		return TimeRange{s, s.Add(time.Minute)}
	case "hour":
		s := t.Truncate(time.Hour)
		return TimeRange{s, s.Add(time.Hour)}
	case "day":
		s := startOfDay(t)
		return TimeRange{s, s.AddDate(0, 0, 1)}
	case "week":
		s := startOfWeek(t)
		return TimeRange{s, s.AddDate(0, 0, 7)}
	case "month":
		s := startOfMonth(t)
		return TimeRange{s, s.AddDate(0, 1, 0)}
	default:
		s := startOfYear(t)
		return TimeRange{s, s.AddDate(1, 0, 0)}
	}
}

// parseISO accepts a date or a date-time in the layouts ISO 8601 users
// type. Dates without a zone are taken in loc.
func parseISO(s string, loc *time.Location) (time.Time, bool, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02T15:04", "2006-01-02 15:04"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, false, true
		}
	}
	if t, err := time.ParseInLocation("2006-01-02", s, loc); err == nil {
		return t, true, true
	}
	return time.Time{}, false, false
}

var dateRules = []dateRule{
	{
		re:         regexp.MustCompile(`\bbetween\s+` + isoDate + `\s+and\s+` + isoDate),
		confidence: 0.95,
		resolve: func(m []string, now time.Time, _ time.Duration) (TimeRange, bool) {
			a, _, ok1 := parseISO(m[1], now.Location())
			b, dayOnly, ok2 := parseISO(m[2], now.Location())
			if !ok1 || !ok2 {
				return TimeRange{}, false
			}
			if dayOnly {
				b = b.AddDate(0, 0, 1)
			}
			if !a.Before(b) {
				return TimeRange{}, false
			}
			return TimeRange{a, b}, true
		},
	},
	{
		re:         regexp.MustCompile(`\bsince\s+` + isoDate),
		confidence: 0.9,
		resolve: func(m []string, now time.Time, _ time.Duration) (TimeRange, bool) {
			a, _, ok := parseISO(m[1], now.Location())
			return TimeRange{a, now.Add(time.Nanosecond)}, ok && a.Before(now)
		},
	},
	{
		re:         regexp.MustCompile(`\bafter\s+` + isoDate),
		confidence: 0.85,
		resolve: func(m []string, now time.Time, _ time.Duration) (TimeRange, bool) {
			a, dayOnly, ok := parseISO(m[1], now.Location())
			if dayOnly {
				a = a.AddDate(0, 0, 1)
			}
			return TimeRange{a, now.Add(time.Nanosecond)}, ok && a.Before(now)
		},
	},
	{
		re:         regexp.MustCompile(`\bbefore\s+` + isoDate),
		confidence: 0.8,
		resolve: func(m []string, now time.Time, fallback time.Duration) (TimeRange, bool) {
			b, _, ok := parseISO(m[1], now.Location())
			return TimeRange{b.Add(-fallback), b}, ok
		},
	},
	{
		re:         regexp.MustCompile(`\b(?:last|past|previous)\s+` + countPattern + `\s+` + unitPattern + `\b`),
		confidence: 0.9,
		resolve: func(m []string, now time.Time, _ time.Duration) (TimeRange, bool) {
			n := parseCount(m[1])
			return TimeRange{subtractUnit(now, n, m[2]), now.Add(time.Nanosecond)}, n > 0
		},
	},
	{
		re:         regexp.MustCompile(`\b` + countPattern + `\s+` + unitPattern + `\s+ago\b`),
		confidence: 0.85,
		resolve: func(m []string, now time.Time, _ time.Duration) (TimeRange, bool) {
			n := parseCount(m[1])
			return unitSpan(subtractUnit(now, n, m[2]), m[2]), n > 0
		},
	},
	{
		re:         regexp.MustCompile(`\btoday\b`),
		confidence: 0.95,
		resolve: func(_ []string, now time.Time, _ time.Duration) (TimeRange, bool) {
			return TimeRange{startOfDay(now), now.Add(time.Nanosecond)}, true
		},
	},
	{
		re:         regexp.MustCompile(`\byesterday\b`),
		confidence: 0.95,
		resolve: func(_ []string, now time.Time, _ time.Duration) (TimeRange, bool) {
			s := startOfDay(now)
			return TimeRange{s.AddDate(0, 0, -1), s}, true
		},
	},
	{
		re:         regexp.MustCompile(`\b(this|last|previous)\s+(week|month|year)\b`),
		confidence: 0.9,
		resolve: func(m []string, now time.Time, _ time.Duration) (TimeRange, bool) {
			current := unitSpan(now, m[2])
			if m[1] == "this" {
				return TimeRange{current.Start, now.Add(time.Nanosecond)}, true
			}
			return unitSpan(subtractUnit(current.Start, 1, m[2]), m[2]), true
		},
	},
	{
		re:         regexp.MustCompile(`\b(?:on\s+)?` + isoDate),
		confidence: 0.95,
		resolve: func(m []string, now time.Time, _ time.Duration) (TimeRange, bool) {
			t, dayOnly, ok := parseISO(m[1], now.Location())
			if !ok {
				return TimeRange{}, false
			}
			if dayOnly {
				return TimeRange{t, t.AddDate(0, 0, 1)}, true
			}
			return TimeRange{t, t.Add(time.Second)}, true
		},
	},
	{
		re:         regexp.MustCompile(`\bin\s+` + monthPattern + `(?:\s+(\d{4}))?\b`),
		confidence: 0.7,
		resolve:    resolveMonth,
	},
	{
		re:         regexp.MustCompile(`\b` + monthPattern + `\s+(\d{4})\b`),
		confidence: 0.85,
		resolve:    resolveMonth,
	},
	{
		re:         regexp.MustCompile(`\b(?:recently|lately|recent)\b`),
		confidence: 0.6,
		resolve: func(_ []string, now time.Time, _ time.Duration) (TimeRange, bool) {
			return TimeRange{now.AddDate(0, 0, -7), now.Add(time.Nanosecond)}, true
		},
	},
}

// ParseDateExpression finds the time expression in text. The longest
// match wins, then the most confident one. fallback bounds open-ended
// expressions such as "before <date>".
func ParseDateExpression(text string, now time.Time, fallback time.Duration) (ParsedDate, bool) {
	lower := strings.ToLower(text)
	if len(lower) != len(text) {
		text = lower
	}
	var (
		best     ParsedDate
		bestSpan int
		found    bool
	)
	for _, rule := range dateRules {
		loc := rule.re.FindStringSubmatchIndex(lower)
		if loc == nil {
			continue
		}
		m := make([]string, len(loc)/2)
		for i := range m {
			if loc[2*i] >= 0 {
				m[i] = lower[loc[2*i]:loc[2*i+1]]
			}
		}
		r, ok := rule.resolve(m, now, fallback)
		if !ok || !r.Start.Before(r.End) {
			continue
		}
		span := loc[1] - loc[0]
		if found && (span < bestSpan || (span == bestSpan && rule.confidence <= best.Confidence)) {
			continue
		}
		bestSpan = span
		best = ParsedDate{
			Range:      r,
			Confidence: rule.confidence,
			Expression: strings.TrimSpace(text[loc[0]:loc[1]]),
			Remainder:  strings.Join(strings.Fields(text[:loc[0]]+" "+text[loc[1]:]), " "),
		}
		found = true
	}
	return best, found
}
