package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FlexFloat is a float64 that accepts either a JSON number or a quoted
// numeric string. Upstream producers are inconsistent about which form
// they emit, so coercion happens once here instead of at every call site.
type FlexFloat float64

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*f = 0
		return nil
	}
	s = strings.Trim(s, `"`)
	if s == "" {
		return fmt.Errorf("empty numeric field")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid numeric field %q", s)
	}
	*f = FlexFloat(v)
	return nil
}

// Float64 returns the plain value.
func (f FlexFloat) Float64() float64 {
	return float64(f)
}

// FlexInt is an int64 that accepts either a JSON number or a quoted
// integer string.
type FlexInt int64

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexInt) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*f = 0
		return nil
	}
	s = strings.Trim(s, `"`)
	if s == "" {
		return fmt.Errorf("empty numeric field")
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid integer field %q", s)
	}
	*f = FlexInt(v)
	return nil
}

// Int64 returns the plain value.
func (f FlexInt) Int64() int64 {
	return int64(f)
}

// eventTimeLayouts covers the timestamp forms seen on bus messages.
var eventTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999",
}

// ParseEventTime parses a message timestamp, interpreting zoneless forms
// in the given location.
func ParseEventTime(s string, loc *time.Location) (time.Time, error) {
	for _, layout := range eventTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// Control commands understood by the command stream.
const (
	CommandStop = "stop"
)

// ControlCommand is an out-of-band instruction from the command topic.
type ControlCommand struct {
	Command string `json:"command" validate:"required"`
}
