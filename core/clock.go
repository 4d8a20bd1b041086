package core

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var errInvalidClockTime = errors.New("time must be of form HH:MM")

// ClockTime is a wall-clock time of day (HH:MM), independent of any date or time zone.
type ClockTime struct {
	Hour   int
	Minute int
}

func ParseClockTime(s string) (ClockTime, error) {
	s = CleanString(s)
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return ClockTime{}, errInvalidClockTime
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return ClockTime{}, errInvalidClockTime
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return ClockTime{}, errInvalidClockTime
	}
	return ClockTime{Hour: h, Minute: m}, nil
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

func (c ClockTime) IsZero() bool {
	return c.Hour == 0 && c.Minute == 0
}

func (c ClockTime) minutes() int {
	return c.Hour*60 + c.Minute
}

func (c ClockTime) Before(o ClockTime) bool {
	return c.minutes() < o.minutes()
}

// On returns the instant at which the clock shows `c` on the given civil date in `loc`.
func (c ClockTime) On(year int, month time.Month, day int, loc *time.Location) time.Time {
	return time.Date(year, month, day, c.Hour, c.Minute, 0, 0, loc)
}

func (c ClockTime) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *ClockTime) UnmarshalText(data []byte) error {
	ct, err := ParseClockTime(string(data))
	if err != nil {
		return err
	}
	*c = ct
	return nil
}

// UnmarshalParam binds echo query/path params.
func (c *ClockTime) UnmarshalParam(param string) error {
	return c.UnmarshalText([]byte(param))
}

func (c *ClockTime) Scan(value interface{}) error {
	switch v := value.(type) {
	case time.Time:
		*c = ClockTime{Hour: v.Hour(), Minute: v.Minute()}
		return nil
	case []byte:
		return c.UnmarshalText(v)
	case string:
		return c.UnmarshalText([]byte(v))
	default:
		return errors.Errorf("cannot scan %T into ClockTime", value)
	}
}

func (c ClockTime) Value() (driver.Value, error) {
	return c.String(), nil
}
