// Package datefind locates calendar dates in free text and renders them in a
// single display form.
package datefind

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// Layout is the display form of every found date, e.g. "Jan 02, 2006".
const Layout = "Jan 02, 2006"

// Date is one date found in a text.
type Date struct {
	Raw   string // surface text as it appears in the input
	Start int
	End   int
	Time  time.Time
}

// String renders the date in Layout.
func (d Date) String() string { return d.Time.Format(Layout) }

const monthExpr = `(?:jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)`

var (
	candidateRe = regexp.MustCompile(`(?i)\b(?:` +
		monthExpr + `\.?\s+\d{1,2}(?:st|nd|rd|th)?,?\s+\d{4}` +
		`|\d{1,2}(?:st|nd|rd|th)?\s+(?:of\s+)?` + monthExpr + `\.?,?\s+\d{4}` +
		`|\d{4}[-/.]\d{1,2}[-/.]\d{1,2}` +
		`|\d{1,2}[-/.]\d{1,2}[-/.](?:\d{4}|\d{2})` +
		`)\b`)

	isoRe      = regexp.MustCompile(`^(\d{4})[-/.](\d{1,2})[-/.](\d{1,2})$`)
	numericRe  = regexp.MustCompile(`^(\d{1,2})[-/.](\d{1,2})[-/.](\d{2}|\d{4})$`)
	monthRe    = regexp.MustCompile(`(?i)` + monthExpr)
	dayRe      = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)?\b`)
	yearRe     = regexp.MustCompile(`\b(\d{4})\b`)
	monthNames = map[string]time.Month{
		"jan": time.January, "feb": time.February, "mar": time.March,
		"apr": time.April, "may": time.May, "jun": time.June,
		"jul": time.July, "aug": time.August, "sep": time.September,
		"oct": time.October, "nov": time.November, "dec": time.December,
	}
)

// Find returns every complete date (day, month and year) in text order.
// Candidates that do not form a valid calendar date are skipped.
func Find(text string) []Date {
	locs := candidateRe.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return nil
	}
	out := make([]Date, 0, len(locs))
	for _, loc := range locs {
		raw := text[loc[0]:loc[1]]
		t, err := parse(raw)
		if err != nil {
			continue
		}
		out = append(out, Date{Raw: raw, Start: loc[0], End: loc[1], Time: t})
	}
	return out
}

// Format returns the display form of every date found in text.
func Format(text string) []string {
	dates := Find(text)
	out := make([]string, 0, len(dates))
	for _, d := range dates {
		out = append(out, d.String())
	}
	return out
}

func parse(raw string) (time.Time, error) {
	if m := isoRe.FindStringSubmatch(raw); m != nil {
		return parseParts(m[1], m[2], m[3])
	}
	if m := numericRe.FindStringSubmatch(raw); m != nil {
		year := expandYear(m[3])
		t, err := parseParts(year, m[1], m[2])
		if err == nil {
			return t, nil
		}
		return parseParts(year, m[2], m[1])
	}
	return parseWithMonthName(raw)
}

// parseParts validates y/m/d through dateparse using an unambiguous ISO form.
func parseParts(year, month, day string) (time.Time, error) {
	m, err := strconv.Atoi(month)
	if err != nil {
		return time.Time{}, err
	}
	d, err := strconv.Atoi(day)
	if err != nil {
		return time.Time{}, err
	}
	if m < 1 || m > 12 || d < 1 || d > 31 {
		return time.Time{}, fmt.Errorf("invalid month/day %s/%s", month, day)
	}
	return dateparse.ParseIn(fmt.Sprintf("%s-%02d-%02d", year, m, d), time.UTC)
}

func parseWithMonthName(raw string) (time.Time, error) {
	mon := monthRe.FindString(raw)
	if mon == "" {
		return time.Time{}, fmt.Errorf("no month in %q", raw)
	}
	month, ok := monthNames[strings.ToLower(mon[:3])]
	if !ok {
		return time.Time{}, fmt.Errorf("unknown month %q", mon)
	}
	year := yearRe.FindString(raw)
	if year == "" {
		return time.Time{}, fmt.Errorf("no year in %q", raw)
	}
	var day string
	for _, m := range dayRe.FindAllStringSubmatch(raw, -1) {
		if m[1] != year {
			day = m[1]
			break
		}
	}
	if day == "" {
		return time.Time{}, fmt.Errorf("no day in %q", raw)
	}
	d, err := strconv.Atoi(day)
	if err != nil {
		return time.Time{}, err
	}
	return dateparse.ParseIn(fmt.Sprintf("%s %d, %s", month.String(), d, year), time.UTC)
}

// expandYear maps two-digit years onto 1969-2068, the same pivot time.Parse
// uses for "06".
func expandYear(y string) string {
	if len(y) != 2 {
		return y
	}
	n, _ := strconv.Atoi(y)
	if n >= 69 {
		return strconv.Itoa(1900 + n)
	}
	return strconv.Itoa(2000 + n)
}
