// pkg/model/date.go
package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// RawDateLayout is the day/month/2-digit-year layout used by the raw exports.
// Go's two-digit year pivot matches the source: 69-99 -> 19xx, 00-68 -> 20xx.
const RawDateLayout = "2/1/06"

// ISODateLayout is the layout dates are persisted with
const ISODateLayout = "2006-01-02"

// Date is a calendar date without time-of-day or zone
type Date struct {
	t time.Time
}

// NewDate builds a Date from its components
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseRawDate parses the dd/mm/yy text found in the raw files.
// Zero padding is optional ("1/2/23" and "01/02/23" are the same day).
func ParseRawDate(s string) (Date, error) {
	t, err := time.Parse(RawDateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, err
	}
	return Date{t: t}, nil
}

// ParseISODate parses a YYYY-MM-DD string
func ParseISODate(s string) (Date, error) {
	t, err := time.Parse(ISODateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, err
	}
	return Date{t: t}, nil
}

// Time returns the date as midnight UTC
func (d Date) Time() time.Time { return d.t }

// Year returns the calendar year
func (d Date) Year() int { return d.t.Year() }

// IsZero reports whether the date is unset
func (d Date) IsZero() bool { return d.t.IsZero() }

// Equal compares two dates
func (d Date) Equal(other Date) bool { return d.t.Equal(other.t) }

// Before reports whether d is strictly before other
func (d Date) Before(other Date) bool { return d.t.Before(other.t) }

// DaysSince returns the whole number of days from other to d
func (d Date) DaysSince(other Date) int {
	return int(d.t.Sub(other.t).Hours() / 24)
}

// String returns the ISO-8601 form
func (d Date) String() string {
	if d.t.IsZero() {
		return ""
	}
	return d.t.Format(ISODateLayout)
}

// Value implements driver.Valuer; dates are stored as ISO-8601 text
func (d Date) Value() (driver.Value, error) {
	if d.t.IsZero() {
		return nil, nil
	}
	return d.String(), nil
}

// Scan implements sql.Scanner
func (d *Date) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*d = Date{}
		return nil
	case string:
		parsed, err := ParseISODate(v)
		if err != nil {
			return fmt.Errorf("cannot scan %q into Date: %w", v, err)
		}
		*d = parsed
		return nil
	case []byte:
		return d.Scan(string(v))
	case time.Time:
		*d = NewDate(v.Year(), v.Month(), v.Day())
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Date", src)
	}
}

// MarshalJSON writes the ISO form
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON reads the ISO form
func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseISODate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
