package match

import (
	"strings"
)

// upperSentinel sorts after every character DA, TM and DT values use, so an
// upper bound also admits longer values that share its prefix: "-1200"
// accepts "120000.5".
const upperSentinel = "~"

// Range matches DA, TM and DT values: "a-b", "a-", "-b", or a single value
// compared by equality. Values are compared as strings, which orders
// correctly for the fixed-width DICOM formats.
func Range(col, value string, matchUnknown bool) Predicate {
	value = strings.TrimSpace(value)
	if value == "" || value == "-" {
		return Predicate{}
	}

	lo, hi, isRange := strings.Cut(value, "-")
	if !isRange {
		return orUnknown(Predicate{SQL: col + " = ?", Args: []any{value}}, col, matchUnknown)
	}

	var p Predicate
	switch {
	case lo != "" && hi != "":
		p = Predicate{SQL: col + " BETWEEN ? AND ?", Args: []any{lo, hi + upperSentinel}}
	case lo != "":
		p = Predicate{SQL: col + " >= ?", Args: []any{lo}}
	default:
		p = Predicate{SQL: col + " <= ?", Args: []any{hi + upperSentinel}}
	}
	if !matchUnknown {
		p = And(p, Predicate{SQL: col + " <> ''"})
	}
	return orUnknown(p, col, matchUnknown)
}

// DateTimeRange matches a date and a time key held in separate columns. When
// both keys are ranges they are combined into one datetime range over the
// concatenated columns, so "20240101-20240102" with "2300-0100" spans the
// night. Otherwise each key is matched on its own.
func DateTimeRange(dateCol, timeCol, date, tm string, matchUnknown bool) Predicate {
	date, tm = strings.TrimSpace(date), strings.TrimSpace(tm)
	dlo, dhi, dRange := strings.Cut(date, "-")
	tlo, thi, tRange := strings.Cut(tm, "-")
	if !dRange || !tRange {
		return And(Range(dateCol, date, matchUnknown), Range(timeCol, tm, matchUnknown))
	}

	expr := "(" + dateCol + " || " + timeCol + ")"
	var p Predicate
	switch {
	case dlo != "" && dhi != "":
		p = Predicate{SQL: expr + " BETWEEN ? AND ?", Args: []any{dlo + tlo, dhi + thi + upperSentinel}}
	case dlo != "":
		p = Predicate{SQL: expr + " >= ?", Args: []any{dlo + tlo}}
	case dhi != "":
		p = Predicate{SQL: expr + " <= ?", Args: []any{dhi + thi + upperSentinel}}
	default:
		return Range(timeCol, tm, matchUnknown)
	}
	if !matchUnknown {
		p = And(p, Predicate{SQL: dateCol + " <> ''"})
	}
	return orUnknown(p, dateCol, matchUnknown)
}
