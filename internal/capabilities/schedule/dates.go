package schedule

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidDate = errors.New("INVALID_DATE")
	ErrInvalidTime = errors.New("INVALID_TIME")
)

var weekdays = map[string]time.Weekday{
	"domingo": time.Sunday,
	"segunda": time.Monday,
	"terça":   time.Tuesday,
	"terca":   time.Tuesday,
	"quarta":  time.Wednesday,
	"quinta":  time.Thursday,
	"sexta":   time.Friday,
	"sábado":  time.Saturday,
	"sabado":  time.Saturday,
}

var (
	numericDate = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})(?:/(\d{2,4}))?$`)
	clockTime   = regexp.MustCompile(`^(\d{1,2})(?:(?::|h)(\d{2})?)?$`)
)

// ResolveDate turns a Portuguese date expression into a calendar day in
// now's location. Weekdays resolve to their next occurrence, never today.
// A D/M date without year that already passed rolls over to next year.
func ResolveDate(expr string, now time.Time) (time.Time, error) {
	expr = strings.ToLower(strings.TrimSpace(expr))
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	switch expr {
	case "hoje":
		return today, nil
	case "amanhã", "amanha":
		return today.AddDate(0, 0, 1), nil
	case "depois de amanhã", "depois de amanha":
		return today.AddDate(0, 0, 2), nil
	}

	if day, ok := weekdays[strings.TrimSuffix(expr, "-feira")]; ok {
		delta := (int(day) - int(today.Weekday()) + 7) % 7
		if delta == 0 {
			delta = 7
		}
		return today.AddDate(0, 0, delta), nil
	}

	m := numericDate.FindStringSubmatch(expr)
	if m == nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, expr)
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	year := today.Year()
	explicitYear := m[3] != ""
	if explicitYear {
		year, _ = strconv.Atoi(m[3])
		if year < 100 {
			year += 2000
		}
	}

	date := time.Date(year, time.Month(month), day, 0, 0, 0, 0, now.Location())
	// time.Date normalizes 31/02 into March; reject instead
	if date.Day() != day || int(date.Month()) != month {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, expr)
	}
	if !explicitYear && date.Before(today) {
		date = date.AddDate(1, 0, 0)
	}
	return date, nil
}

// ParseClock accepts "14:00", "14h", "14h30" and "9".
func ParseClock(expr string) (hour, minute int, err error) {
	m := clockTime.FindStringSubmatch(strings.ToLower(strings.TrimSpace(expr)))
	if m == nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTime, expr)
	}
	hour, _ = strconv.Atoi(m[1])
	if m[2] != "" {
		minute, _ = strconv.Atoi(m[2])
	}
	if hour > 23 || minute > 59 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTime, expr)
	}
	return hour, minute, nil
}

// FormatSlot renders a slot the way the assistant answers: "12/05 às 14:00".
func FormatSlot(t time.Time) string {
	return fmt.Sprintf("%02d/%02d às %02d:%02d", t.Day(), int(t.Month()), t.Hour(), t.Minute())
}
