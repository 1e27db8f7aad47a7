package cmn

import "time"

const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD date string as UTC midnight.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

// FormatDate formats t as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// FormatMonth formats t as YYYY-MM, the date component used for
// monthly-partitioned tasks.
func FormatMonth(t time.Time) string {
	return t.Format("2006-01")
}
