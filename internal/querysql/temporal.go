package querysql

import (
	"time"

	"github.com/roach88/tql/internal/grammar"
	"github.com/roach88/tql/internal/queryir"
)

// TemporalRange lowers a temporal function to the half-open interval
// [start, end) relative to now, in now's location.
//
//	MES(0)           first instant of this month .. first instant of next month
//	MES(-1)          the previous calendar month
//	ULTIMOS MES(12)  now - 12 months .. now
//	PROXIMOS DIA(7)  now .. now + 7 days
//
// Weeks start on Monday.
func TemporalRange(t *queryir.TemporalFunction, now time.Time) (start, end time.Time) {
	switch t.Window {
	case queryir.WindowLast:
		return shift(now, t.Unit, -t.Offset), now
	case queryir.WindowNext:
		return now, shift(now, t.Unit, t.Offset)
	default:
		start = shift(truncate(now, t.Unit), t.Unit, t.Offset)
		return start, shift(start, t.Unit, 1)
	}
}

// truncate returns the first instant of the unit containing t.
func truncate(t time.Time, u grammar.Unit) time.Time {
	y, m, d := t.Date()
	loc := t.Location()
	switch u {
	case grammar.UnitWeek:
		back := (int(t.Weekday()) + 6) % 7
		return time.Date(y, m, d-back, 0, 0, 0, 0, loc)
	case grammar.UnitMonth:
		return time.Date(y, m, 1, 0, 0, 0, 0, loc)
	case grammar.UnitQuarter:
		q := (int(m)-1)/3*3 + 1
		return time.Date(y, time.Month(q), 1, 0, 0, 0, 0, loc)
	case grammar.UnitYear:
		return time.Date(y, time.January, 1, 0, 0, 0, 0, loc)
	default:
		return time.Date(y, m, d, 0, 0, 0, 0, loc)
	}
}

// shift moves t by n units using calendar arithmetic. Month-based shifts
// clamp the day to the end of the target month: one month before March 31
// is February 28, not March 3.
func shift(t time.Time, u grammar.Unit, n int) time.Time {
	switch u {
	case grammar.UnitWeek:
		return t.AddDate(0, 0, 7*n)
	case grammar.UnitMonth:
		return addMonths(t, n)
	case grammar.UnitQuarter:
		return addMonths(t, 3*n)
	case grammar.UnitYear:
		return addMonths(t, 12*n)
	default:
		return t.AddDate(0, 0, n)
	}
}

func addMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := daysIn(first); d > last {
		d = last
	}
	return first.AddDate(0, 0, d-1)
}

// daysIn returns the number of days in t's month.
func daysIn(t time.Time) int {
	y, m, _ := t.Date()
	return time.Date(y, m+1, 0, 0, 0, 0, 0, t.Location()).Day()
}
