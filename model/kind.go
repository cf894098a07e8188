package model

import (
	"fmt"
	"strings"
)

// EntityKind is the closed set of entity types an attribute filter can be
// declared for.
type EntityKind int

const (
	KindPatient EntityKind = iota
	KindStudy
	KindSeries
	KindInstance
	KindVisit
	KindServiceRequest
	KindRequestedProcedure
	KindScheduledProcedureStep
	KindPerformedProcedureStep
)

var kindNames = [...]string{
	"Patient",
	"Study",
	"Series",
	"Instance",
	"Visit",
	"ServiceRequest",
	"RequestedProcedure",
	"ScheduledProcedureStep",
	"PerformedProcedureStep",
}

// EntityKinds lists every kind in declaration order.
func EntityKinds() []EntityKind {
	out := make([]EntityKind, len(kindNames))
	for i := range kindNames {
		out[i] = EntityKind(i)
	}
	return out
}

func (k EntityKind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("EntityKind(%d)", int(k))
	}
	return kindNames[k]
}

// ParseEntityKind accepts a kind name, case-insensitively.
func ParseEntityKind(s string) (EntityKind, error) {
	for i, name := range kindNames {
		if strings.EqualFold(s, name) {
			return EntityKind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown entity kind %q", s)
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *EntityKind) UnmarshalText(text []byte) error {
	v, err := ParseEntityKind(string(text))
	if err != nil {
		return err
	}
	*k = v
	return nil
}
