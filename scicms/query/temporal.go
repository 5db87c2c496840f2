package query

import (
	"strings"
	"time"

	"github.com/borisblack/scicms-client-sub000/types"
)

// unit is the coarsest unit implied by a matched format; the parsed
// value is expanded to the inclusive range covering one unit.
type unit int

const (
	unitSecond unit = iota
	unitMinute
	unitHour
	unitDay
	unitMonth
	unitYear
)

// next returns the start of the following unit
func (u unit) next(t time.Time) time.Time {
	switch u {
	case unitSecond:
		return t.Add(time.Second)
	case unitMinute:
		return t.Add(time.Minute)
	case unitHour:
		return t.Add(time.Hour)
	case unitDay:
		return t.AddDate(0, 0, 1)
	case unitMonth:
		return t.AddDate(0, 1, 0)
	default:
		return t.AddDate(1, 0, 0)
	}
}

type temporalFormat struct {
	layout string
	unit   unit
}

// Trial order matters: the first layout that consumes the whole input wins.
var (
	dateFormats = []temporalFormat{
		{"02.01.2006", unitDay},
		{"2006-01-02", unitDay},
		{"01.2006", unitMonth},
		{"2006-01", unitMonth},
		{"2006", unitYear},
	}

	dateTimeFormats = append([]temporalFormat{
		{"02.01.2006 15:04:05", unitSecond},
		{"02.01.2006 15:04", unitMinute},
		{time.RFC3339, unitSecond},
		{"2006-01-02T15:04:05", unitSecond},
		{"2006-01-02 15:04:05", unitSecond},
		{"2006-01-02T15:04", unitMinute},
		{"2006-01-02 15:04", unitMinute},
		{"02.01.2006 15", unitHour},
		{"2006-01-02T15", unitHour},
		{"2006-01-02 15", unitHour},
	}, dateFormats...)

	timeFormats = []temporalFormat{
		{"15:04:05", unitSecond},
		{"15:04", unitMinute},
		{"15", unitHour},
	}
)

// Canonical output layouts per temporal kind
const (
	DateLayout     = "2006-01-02"
	TimeLayout     = "15:04:05"
	DateTimeLayout = "2006-01-02T15:04:05.000Z07:00"
)

// TemporalRange is the inclusive range a temporal filter expands to
type TemporalRange struct {
	Type  types.AttrType
	Start time.Time
	End   time.Time
}

// Gte returns the formatted lower boundary
func (r TemporalRange) Gte() string { return FormatTemporal(r.Type, r.Start) }

// Lte returns the formatted upper boundary
func (r TemporalRange) Lte() string { return FormatTemporal(r.Type, r.End) }

// Predicate returns the range predicate fragment
func (r TemporalRange) Predicate() map[string]interface{} {
	return map[string]interface{}{"gte": r.Gte(), "lte": r.Lte()}
}

// formatsFor returns the trial list for a temporal attribute type
func formatsFor(t types.AttrType) []temporalFormat {
	switch t {
	case types.TypeDate:
		return dateFormats
	case types.TypeTime:
		return timeFormats
	default:
		return dateTimeFormats
	}
}

// ParseTemporal resolves raw against the accepted formats of the attribute
// type and expands it to an inclusive range. Layouts without a zone are
// interpreted in loc.
func ParseTemporal(t types.AttrType, raw string, loc *time.Location) (TemporalRange, error) {
	if loc == nil {
		loc = time.UTC
	}
	value := strings.TrimSpace(raw)

	for _, f := range formatsFor(t) {
		parsed, err := time.ParseInLocation(f.layout, value, loc)
		if err != nil {
			continue
		}

		start := parsed.Truncate(time.Second)
		next := f.unit.next(start)

		var end time.Time
		switch t {
		case types.TypeDate:
			end = next.AddDate(0, 0, -1)
		case types.TypeTime:
			end = next.Add(-time.Second)
		default:
			end = next.Add(-time.Millisecond)
		}
		return TemporalRange{Type: t, Start: start, End: end}, nil
	}

	return TemporalRange{}, &types.FilterFormatError{Value: raw, Kind: string(t)}
}

// FormatTemporal renders a boundary in the backend's canonical form.
// Date-times are rendered in UTC.
func FormatTemporal(t types.AttrType, tm time.Time) string {
	switch t {
	case types.TypeDate:
		return tm.Format(DateLayout)
	case types.TypeTime:
		return tm.Format(TimeLayout)
	default:
		return tm.UTC().Format(DateTimeLayout)
	}
}
