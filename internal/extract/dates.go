package extract

import (
	"regexp"
	"strings"
	"time"
)

const monthNames = `(?:Jan(?:uary)?|Feb(?:ruary)?|Mar(?:ch)?|Apr(?:il)?|May|June?|July?|Aug(?:ust)?|Sep(?:t(?:ember)?)?|Oct(?:ober)?|Nov(?:ember)?|Dec(?:ember)?)`

var (
	dateRe = regexp.MustCompile(
		`\b` + monthNames + `\.?\s+\d{1,2}(?:st|nd|rd|th)?,?\s+\d{4}\b` +
			`|\b\d{1,2}(?:st|nd|rd|th)?\s+` + monthNames + `\.?,?\s+\d{4}\b` +
			`|\b\d{4}-\d{2}-\d{2}(?:T\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:Z|[+-]\d{2}:\d{2}))?\b` +
			`|\b\d{1,2}/\d{1,2}/\d{4}\b` +
			`|\b\d{4}/\d{1,2}/\d{1,2}\b`)

	ordinalRe = regexp.MustCompile(`(\d)(?:st|nd|rd|th)\b`)

	expectedRe = regexp.MustCompile(`(?i)\bexpected to (?:close|complete|be completed|be finalized)\s+(?:in|by|during|before|at)?\s*(?:the\s+)?(` +
		`(?:first|second|1st|2nd) half of \d{4}` +
		`|(?:Q[1-4]|(?:first|second|third|fourth) quarter(?: of)?) \d{4}` +
		`|end of (?:the year|\d{4})` +
		`|` + monthNames + `\.?\s+\d{1,2}(?:st|nd|rd|th)?,?\s+\d{4}` +
		`|` + monthNames + `\.?\s+\d{4}` +
		`|\d{4}-\d{2}-\d{2}` +
		`|\d{4})`)

	monthYearRe = regexp.MustCompile(`(?i)^(` + monthNames + `)\.?\s+(\d{4})$`)
	quarterRe   = regexp.MustCompile(`(?i)^(?:q([1-4])|(first|second|third|fourth) quarter(?: of)?) (\d{4})$`)
	halfRe      = regexp.MustCompile(`(?i)^(first|second|1st|2nd) half of (\d{4})$`)
	yearEndRe   = regexp.MustCompile(`(?i)^end of (\d{4})$`)
	yearRe      = regexp.MustCompile(`^(\d{4})$`)
)

var dateLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02",
	"January 2 2006",
	"Jan 2 2006",
	"2 January 2006",
	"2 Jan 2006",
	"1/2/2006",
	"2006/1/2",
	"2006-01-02 15:04:05",
	"Mon, 2 Jan 2006 15:04:05 MST",
}

// ParseDate parses the date formats found in news copy and metadata. Dates
// without a time of day are returned as UTC midnight; timestamps keep their
// instant, converted to UTC. ok is false when nothing matches.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, time.RFC3339Nano, time.RFC1123Z, time.RFC1123, "Mon, 2 Jan 2006 15:04:05 MST"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}

	clean := ordinalRe.ReplaceAllString(s, "$1")
	clean = strings.NewReplacer(",", "", ".", "").Replace(clean)
	clean = strings.Join(strings.Fields(clean), " ")
	clean = strings.Replace(clean, "Sept ", "Sep ", 1)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, clean); err == nil {
			return truncateDay(t), true
		}
	}
	return time.Time{}, false
}

// findDate returns the first parseable date in text outside skip, or nil
func findDate(text string, skip [2]int) *time.Time {
	for _, loc := range dateRe.FindAllStringIndex(text, -1) {
		if loc[0] < skip[1] && loc[1] > skip[0] {
			continue
		}
		if t, ok := ParseDate(text[loc[0]:loc[1]]); ok {
			t = truncateDay(t)
			return &t
		}
	}
	return nil
}

// findExpectedCompletion resolves "expected to close in Q3 2025" style
// phrases to the last day of the named period. It also returns the span of
// the phrase so the announcement date search can skip it.
func findExpectedCompletion(text string) (*time.Time, [2]int) {
	m := expectedRe.FindStringSubmatchIndex(text)
	if m == nil {
		return nil, [2]int{}
	}
	span := [2]int{m[0], m[1]}
	t, ok := periodEnd(text[m[2]:m[3]])
	if !ok {
		return nil, span
	}
	return &t, span
}

func periodEnd(p string) (time.Time, bool) {
	if t, ok := ParseDate(p); ok {
		return truncateDay(t), true
	}
	if m := monthYearRe.FindStringSubmatch(p); m != nil {
		month := strings.TrimSuffix(strings.Replace(m[1], "Sept", "Sep", 1), ".")
		if t, err := time.Parse("Jan 2006", month[:3]+" "+m[2]); err == nil {
			return t.AddDate(0, 1, -1), true
		}
	}
	if m := quarterRe.FindStringSubmatch(p); m != nil {
		q := map[string]int{"1": 1, "2": 2, "3": 3, "4": 4, "first": 1, "second": 2, "third": 3, "fourth": 4}[strings.ToLower(m[1]+m[2])]
		return monthEnd(m[3], q*3)
	}
	if m := halfRe.FindStringSubmatch(p); m != nil {
		h := strings.ToLower(m[1])
		if h == "first" || h == "1st" {
			return monthEnd(m[2], 6)
		}
		return monthEnd(m[2], 12)
	}
	if m := yearEndRe.FindStringSubmatch(p); m != nil {
		return monthEnd(m[1], 12)
	}
	if m := yearRe.FindStringSubmatch(p); m != nil {
		return monthEnd(m[1], 12)
	}
	return time.Time{}, false
}

func monthEnd(year string, month int) (time.Time, bool) {
	y, err := time.Parse("2006", year)
	if err != nil {
		return time.Time{}, false
	}
	return time.Date(y.Year(), time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC), true
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
