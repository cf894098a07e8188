package types

import (
	"fmt"
	"strings"

	archiveerrors "github.com/caio-sobreiro/dicomarchive/errors"
)

// QueryLevel represents the level of C-FIND query
type QueryLevel string

const (
	QueryLevelPatient QueryLevel = "PATIENT"
	QueryLevelStudy   QueryLevel = "STUDY"
	QueryLevelSeries  QueryLevel = "SERIES"
	QueryLevelImage   QueryLevel = "IMAGE"
)

// ParseQueryLevel parses a Query/Retrieve Level value. INSTANCE is accepted
// as a synonym of IMAGE.
func ParseQueryLevel(s string) (QueryLevel, error) {
	switch l := QueryLevel(strings.ToUpper(strings.TrimSpace(s))); l {
	case QueryLevelPatient, QueryLevelStudy, QueryLevelSeries, QueryLevelImage:
		return l, nil
	case "INSTANCE":
		return QueryLevelImage, nil
	}
	return "", fmt.Errorf("%w: %q", archiveerrors.ErrUnknownLevel, s)
}

// Depth returns 0 for PATIENT down to 3 for IMAGE, and -1 for anything else.
func (l QueryLevel) Depth() int {
	switch l {
	case QueryLevelPatient:
		return 0
	case QueryLevelStudy:
		return 1
	case QueryLevelSeries:
		return 2
	case QueryLevelImage:
		return 3
	}
	return -1
}
