package calendar

import "time"

// isUSHoliday reports whether date (interpreted as a calendar date, time
// portion ignored) is a NYSE market holiday. Exchange-observed holidays
// only; no attempt is made to track every historical one-off closure.
func isUSHoliday(date time.Time) bool {
	_, m, d := date.Date()
	switch {
	case m == time.January && d == 1:
		return true // New Year's Day
	case m == time.January && isNthWeekday(date, time.Monday, 3):
		return true // Martin Luther King Jr. Day
	case m == time.February && isNthWeekday(date, time.Monday, 3):
		return true // Washington's Birthday
	case isGoodFriday(date):
		return true
	case m == time.May && isLastWeekday(date, time.Monday):
		return true // Memorial Day
	case m == time.June && d == 19:
		return true // Juneteenth
	case m == time.July && d == 4:
		return true // Independence Day
	case m == time.September && isNthWeekday(date, time.Monday, 1):
		return true // Labor Day
	case m == time.November && isNthWeekday(date, time.Thursday, 4):
		return true // Thanksgiving
	case m == time.December && d == 25:
		return true // Christmas
	}
	return false
}

// isUKHoliday reports whether date is an LSE market holiday (England & Wales
// bank holidays the exchange observes).
func isUKHoliday(date time.Time) bool {
	m, d := date.Month(), date.Day()
	switch {
	case m == time.January && d == 1:
		return true // New Year's Day
	case isGoodFriday(date):
		return true
	case isEasterMonday(date):
		return true
	case m == time.May && isNthWeekday(date, time.Monday, 1):
		return true // Early May bank holiday
	case m == time.May && isLastWeekday(date, time.Monday):
		return true // Spring bank holiday
	case m == time.August && isLastWeekday(date, time.Monday):
		return true // Summer bank holiday
	case m == time.December && d == 25:
		return true // Christmas Day
	case m == time.December && d == 26:
		return true // Boxing Day
	}
	return false
}

// isNthWeekday reports whether date is the nth occurrence of weekday within
// its month (n is 1-based).
func isNthWeekday(date time.Time, weekday time.Weekday, n int) bool {
	if date.Weekday() != weekday {
		return false
	}
	return (date.Day()-1)/7+1 == n
}

// isLastWeekday reports whether date is the last occurrence of weekday
// within its month.
func isLastWeekday(date time.Time, weekday time.Weekday) bool {
	if date.Weekday() != weekday {
		return false
	}
	nextWeek := date.AddDate(0, 0, 7)
	return nextWeek.Month() != date.Month()
}

// isGoodFriday reports whether date is the Friday before Easter Sunday.
func isGoodFriday(date time.Time) bool {
	easter := easterSunday(date.Year())
	goodFriday := easter.AddDate(0, 0, -2)
	return sameDate(date, goodFriday)
}

// isEasterMonday reports whether date is the Monday after Easter Sunday.
func isEasterMonday(date time.Time) bool {
	easter := easterSunday(date.Year())
	monday := easter.AddDate(0, 0, 1)
	return sameDate(date, monday)
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// easterSunday computes the Gregorian-calendar date of Easter Sunday for
// year using the anonymous Gregorian algorithm (Meeus/Jones/Butcher).
func easterSunday(year int) time.Time {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}
