package xlsxrd

import (
	"math"
	"strings"
	"time"
)

// Serial date handling. Date cells store a count of days since the
// 1900 system epoch, with the time of day in the fraction. The epoch is
// 1899-12-30 so that the sheet's serial arithmetic, including its
// treatment of the phantom 1900 leap day, lands on the right calendar
// dates for everything after February 1900.

const (
	minDateYear = 1900
	maxDateYear = 2100

	// displayTimeLayout is how date cells render under the common
	// mm/dd/yyyy hh:mm:ss display format.
	displayTimeLayout = "01/02/2006 15:04:05"
	displayDateLayout = "01/02/2006"
)

var serialEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// SerialDate converts a day serial to a UTC time. Zero and negative
// serials are rejected, as are serials landing outside the years 1900
// through 2100; the second result is false for those.
func SerialDate(serial float64) (time.Time, bool) {
	if serial <= 0 || math.IsNaN(serial) || math.IsInf(serial, 0) {
		return time.Time{}, false
	}
	days := int(math.Floor(serial))
	secs := int(math.Round((serial - math.Floor(serial)) * 86400))
	if secs >= 86400 {
		days++
		secs -= 86400
	}
	t := serialEpoch.AddDate(0, 0, days).Add(time.Duration(secs) * time.Second)
	if y := t.Year(); y < minDateYear || y > maxDateYear {
		return time.Time{}, false
	}
	return t, true
}

// ParseDateString parses a rendered date cell, with or without a time of
// day. The result carries no zone; it is the wall-clock reading as
// displayed. The same 1900 through 2100 window applies.
func ParseDateString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	t, err := time.Parse(displayTimeLayout, s)
	if err != nil {
		t, err = time.Parse(displayDateLayout, s)
		if err != nil {
			return time.Time{}, false
		}
	}
	if y := t.Year(); y < minDateYear || y > maxDateYear {
		return time.Time{}, false
	}
	return t, true
}

// DateOf reads a cell as a point in time: numeric cells through
// SerialDate, text cells through ParseDateString. Anything else is not
// a date.
func DateOf(v CellValue) (time.Time, bool) {
	switch v.Kind {
	case CellNumber:
		return SerialDate(v.Number)
	case CellText:
		return ParseDateString(v.Text)
	default:
		return time.Time{}, false
	}
}

// FormatInZone renders a UTC serial time as it would display in the
// given zone.
func FormatInZone(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(displayTimeLayout)
}
