package pool

import (
	"time"
)

// Layouts tried after the fast path, date and clock joined by a space.
var stampLayouts = []string{
	"2006/01/02 15:04",
	"2006/01/02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
}

// ParseStamp parses the date and clock columns of a sensor file row
// ("2017/08/10" "00:00") as a UTC time. Both "/" and "-" date separators are
// accepted, seconds are optional.
func ParseStamp(date, clock []byte) (time.Time, error) {
	if t, ok := parseStampFast(date, clock); ok {
		return t, nil
	}

	s := string(date) + " " + string(clock)
	for _, layout := range stampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, ErrInvalidTimestamp
}

// parseStampFast handles YYYY?MM?DD with HH:MM or HH:MM:SS using direct
// byte arithmetic.
func parseStampFast(date, clock []byte) (time.Time, bool) {
	if len(date) != 10 || date[4] != date[7] || (date[4] != '/' && date[4] != '-') {
		return time.Time{}, false
	}
	if (len(clock) != 5 && len(clock) != 8) || clock[2] != ':' {
		return time.Time{}, false
	}

	year := parseInt4(date[0:4])
	month := parseInt2(date[5:7])
	day := parseInt2(date[8:10])
	hour := parseInt2(clock[0:2])
	minute := parseInt2(clock[3:5])
	second := 0
	if len(clock) == 8 {
		if clock[5] != ':' {
			return time.Time{}, false
		}
		second = parseInt2(clock[6:8])
	}

	if year < 0 || month < 1 || month > 12 || day < 1 || day > 31 ||
		hour < 0 || hour > 23 || minute < 0 || minute > 59 || second < 0 || second > 59 {
		return time.Time{}, false
	}

	t := time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC)
	// time.Date normalises out-of-range days; reject those.
	if t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}

// parseInt4 parses a 4-byte integer without allocation.
func parseInt4(b []byte) int {
	if len(b) != 4 || !isDigits(b) {
		return -1
	}
	return int(b[0]-'0')*1000 + int(b[1]-'0')*100 + int(b[2]-'0')*10 + int(b[3]-'0')
}

// parseInt2 parses a 2-byte integer without allocation.
func parseInt2(b []byte) int {
	if len(b) != 2 || !isDigits(b) {
		return -1
	}
	return int(b[0]-'0')*10 + int(b[1]-'0')
}

func isDigits(b []byte) bool {
	for _, c := range b {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// ErrInvalidTimestamp indicates a timestamp parsing error.
var ErrInvalidTimestamp = &TimestampError{"invalid timestamp format"}

// TimestampError represents a timestamp parsing error.
type TimestampError struct {
	msg string
}

func (e *TimestampError) Error() string {
	return e.msg
}
