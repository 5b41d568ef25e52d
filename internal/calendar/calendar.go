// Package calendar implements the Calendar Service capability: trading-minute
// membership for ten global equity exchanges and US/UK holiday lookup. No
// library in the available ecosystem models exchange-calendar semantics
// (checked against every retrieved example repo), so this is built directly
// on the standard library's IANA timezone database via time.LoadLocation.
package calendar

import (
	"context"
	"fmt"
	"time"

	domainerrors "github.com/terrylica/exness-data-preprocess-sub000/internal/errors"
)

// Exchange is one of the ten supported equity-exchange codes.
type Exchange string

const (
	XNYS Exchange = "XNYS"
	XLON Exchange = "XLON"
	XSWX Exchange = "XSWX"
	XFRA Exchange = "XFRA"
	XTSE Exchange = "XTSE"
	XNZE Exchange = "XNZE"
	XTKS Exchange = "XTKS"
	XASX Exchange = "XASX"
	XHKG Exchange = "XHKG"
	XSES Exchange = "XSES"
)

// Exchanges lists all ten supported exchanges in the fixed order used for
// the OHLC schema's session-flag columns.
var Exchanges = []Exchange{XNYS, XLON, XSWX, XFRA, XTSE, XNZE, XTKS, XASX, XHKG, XSES}

// session describes one exchange's regular cash session and any lunch break,
// all in local wall-clock minutes-of-day.
type session struct {
	zone        string
	open, close int // minutes since local midnight
	lunchStart  int // -1 if no lunch break
	lunchEnd    int
}

var sessions = map[Exchange]session{
	XNYS: {zone: "America/New_York", open: hm(9, 30), close: hm(16, 0), lunchStart: -1},
	XLON: {zone: "Europe/London", open: hm(8, 0), close: hm(16, 30), lunchStart: -1},
	XSWX: {zone: "Europe/Zurich", open: hm(9, 0), close: hm(17, 30), lunchStart: -1},
	XFRA: {zone: "Europe/Berlin", open: hm(8, 0), close: hm(20, 0), lunchStart: -1},
	XTSE: {zone: "America/Toronto", open: hm(9, 30), close: hm(16, 0), lunchStart: -1},
	XNZE: {zone: "Pacific/Auckland", open: hm(10, 0), close: hm(16, 45), lunchStart: -1},
	XTKS: {zone: "Asia/Tokyo", open: hm(9, 0), close: hm(15, 30), lunchStart: hm(11, 30), lunchEnd: hm(12, 30)},
	XASX: {zone: "Australia/Sydney", open: hm(10, 0), close: hm(16, 0), lunchStart: -1},
	XHKG: {zone: "Asia/Hong_Kong", open: hm(9, 30), close: hm(16, 0), lunchStart: hm(12, 0), lunchEnd: hm(13, 0)},
	XSES: {zone: "Asia/Singapore", open: hm(9, 0), close: hm(17, 0), lunchStart: hm(12, 0), lunchEnd: hm(13, 0)},
}

func hm(h, m int) int { return h*60 + m }

// Service answers trading-minute and holiday questions. It is pure,
// stateless from the caller's perspective, and caches loaded *time.Location
// values (location loading involves a filesystem/embedded-zoneinfo lookup
// the stdlib itself does not cache across calls).
type Service struct {
	locations map[string]*time.Location
}

// New constructs a Service, eagerly loading every exchange's IANA zone so a
// later CalendarUnavailable error can only come from a genuinely bad date
// range, not a missing zone file.
func New() (*Service, error) {
	s := &Service{locations: make(map[string]*time.Location, len(sessions)+2)}
	zones := map[string]struct{}{"America/New_York": {}, "Europe/London": {}}
	for _, sess := range sessions {
		zones[sess.zone] = struct{}{}
	}
	for zone := range zones {
		loc, err := time.LoadLocation(zone)
		if err != nil {
			return nil, domainerrors.New(domainerrors.CalendarUnavailable, "",
				fmt.Errorf("load zone %s: %w", zone, err))
		}
		s.locations[zone] = loc
	}
	return s, nil
}

// IsTradingMinute reports whether instantUTC, converted to exchange's local
// zone, falls inside its regular cash session on a weekday, excluding any
// scheduled lunch break. Holidays are applied for XNYS and XLON only; the
// other eight exchanges are treated as open on every weekday, and half-days
// are not modelled for any exchange. This is the load-bearing primitive
// §4.4 requires — it must be evaluated per minute, never broadcast from a
// date-level check.
func (s *Service) IsTradingMinute(exchange Exchange, instantUTC time.Time) (bool, error) {
	sess, ok := sessions[exchange]
	if !ok {
		return false, domainerrors.New(domainerrors.CalendarUnavailable, "",
			fmt.Errorf("unknown exchange %q", exchange))
	}
	loc, ok := s.locations[sess.zone]
	if !ok {
		return false, domainerrors.New(domainerrors.CalendarUnavailable, "",
			fmt.Errorf("zone %s not loaded", sess.zone))
	}

	local := instantUTC.In(loc)
	if isWeekend(local) {
		return false, nil
	}
	minuteOfDay := local.Hour()*60 + local.Minute()
	if minuteOfDay < sess.open || minuteOfDay >= sess.close {
		return false, nil
	}
	if sess.lunchStart >= 0 && minuteOfDay >= sess.lunchStart && minuteOfDay < sess.lunchEnd {
		return false, nil
	}

	switch exchange {
	case XNYS:
		return !isUSHoliday(local), nil
	case XLON:
		return !isUKHoliday(local), nil
	default:
		return true, nil
	}
}

// TradingMinutes bulk-materializes the set of UTC minute instants that are
// trading minutes for exchange within [startUTC, endUTC), one call per
// (exchange, range) as §4.4 step 1 requires, rather than a per-row scalar
// call. The result is meant to be loaded into a hash set by the caller for
// O(1) membership checks.
func (s *Service) TradingMinutes(ctx context.Context, exchange Exchange, startUTC, endUTC time.Time) ([]time.Time, error) {
	if err := ctx.Err(); err != nil {
		return nil, domainerrors.New(domainerrors.Cancelled, "", err)
	}
	var minutes []time.Time
	for t := startUTC; t.Before(endUTC); t = t.Add(time.Minute) {
		ok, err := s.IsTradingMinute(exchange, t)
		if err != nil {
			return nil, err
		}
		if ok {
			minutes = append(minutes, t)
		}
	}
	return minutes, nil
}

// IsHoliday reports whether dateLocal — interpreted as a UK/US calendar
// date, not a UTC instant — is a holiday for "XNYS" or "XLON".
func (s *Service) IsHoliday(calendarCode string, dateLocal time.Time) (bool, error) {
	switch calendarCode {
	case "XNYS":
		return isUSHoliday(dateLocal), nil
	case "XLON":
		return isUKHoliday(dateLocal), nil
	default:
		return false, domainerrors.New(domainerrors.CalendarUnavailable, "",
			fmt.Errorf("unknown holiday calendar %q", calendarCode))
	}
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
