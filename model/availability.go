package model

import (
	"fmt"
	"strings"
)

// Availability classifies how readily an object can be retrieved. The values
// are ordered: a higher value is less available.
type Availability int

const (
	Online Availability = iota
	Nearline
	Offline
	Unavailable
)

var availabilityNames = [...]string{"ONLINE", "NEARLINE", "OFFLINE", "UNAVAILABLE"}

func (a Availability) String() string {
	if a < Online || a > Unavailable {
		return fmt.Sprintf("Availability(%d)", int(a))
	}
	return availabilityNames[a]
}

// ParseAvailability parses the DICOM Instance Availability code string.
func ParseAvailability(s string) (Availability, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for i, name := range availabilityNames {
		if s == name {
			return Availability(i), nil
		}
	}
	return Online, fmt.Errorf("unknown availability %q", s)
}

// Worst returns the less available of a and b.
func Worst(a, b Availability) Availability {
	if b > a {
		return b
	}
	return a
}

// MarshalText implements encoding.TextMarshaler.
func (a Availability) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler so configuration files
// can name availabilities.
func (a *Availability) UnmarshalText(text []byte) error {
	v, err := ParseAvailability(string(text))
	if err != nil {
		return err
	}
	*a = v
	return nil
}
