// Package match builds SQL predicates for DICOM attribute matching.
//
// Every constructor returns a Predicate with positional "?" arguments. An
// empty Predicate means the key does not constrain the query.
package match

import (
	"strings"

	"github.com/jmoiron/sqlx"
)

// Predicate is a boolean SQL expression with its bind arguments.
type Predicate struct {
	SQL  string
	Args []any
}

// IsEmpty reports whether p constrains nothing.
func (p Predicate) IsEmpty() bool {
	return p.SQL == ""
}

// And joins the non-empty predicates with AND.
func And(preds ...Predicate) Predicate {
	return join(" AND ", preds)
}

// Or joins the non-empty predicates with OR. If any alternative is empty the
// disjunction matches everything and the result is empty.
func Or(preds ...Predicate) Predicate {
	for _, p := range preds {
		if p.IsEmpty() {
			return Predicate{}
		}
	}
	return join(" OR ", preds)
}

func join(sep string, preds []Predicate) Predicate {
	var parts []string
	var args []any
	for _, p := range preds {
		if p.IsEmpty() {
			continue
		}
		parts = append(parts, p.SQL)
		args = append(args, p.Args...)
	}
	switch len(parts) {
	case 0:
		return Predicate{}
	case 1:
		return Predicate{SQL: parts[0], Args: args}
	}
	return Predicate{SQL: "(" + strings.Join(parts, sep) + ")", Args: args}
}

// MatchAll is the pattern WildcardToPattern returns for values that match
// any string.
const MatchAll = "%"

// ContainsWildcard reports whether s uses the DICOM * or ? wildcards.
func ContainsWildcard(s string) bool {
	return strings.ContainsAny(s, "*?")
}

// WildcardToPattern converts a DICOM wildcard value into a LIKE pattern with
// backslash as the escape character. Runs of * collapse into one %, ? maps
// to _ and literal %, _ and \ are escaped.
func WildcardToPattern(s string) string {
	var b strings.Builder
	prevStar := false
	for _, r := range s {
		switch r {
		case '*':
			if !prevStar {
				b.WriteByte('%')
			}
			prevStar = true
			continue
		case '?':
			b.WriteByte('_')
		case '%', '_', '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
		prevStar = false
	}
	return b.String()
}

func unknown(col string) Predicate {
	return Predicate{SQL: "COALESCE(" + col + ", '') = ''"}
}

func orUnknown(p Predicate, col string, matchUnknown bool) Predicate {
	if p.IsEmpty() || !matchUnknown {
		return p
	}
	u := unknown(col)
	return Predicate{SQL: "(" + p.SQL + " OR " + u.SQL + ")", Args: p.Args}
}

// ExactOrWildcard matches col against a single value. Values without
// wildcards compare by equality, values with wildcards by LIKE. caseFold
// compares upper-cased text; matchUnknown also accepts rows where col is
// empty.
func ExactOrWildcard(col, value string, caseFold, matchUnknown bool) Predicate {
	value = strings.TrimSpace(value)
	if value == "" {
		return Predicate{}
	}

	var p Predicate
	if ContainsWildcard(value) {
		pattern := WildcardToPattern(value)
		if pattern == MatchAll {
			return Predicate{}
		}
		if caseFold {
			p = Predicate{SQL: "UPPER(" + col + ") LIKE UPPER(?) ESCAPE '\\'", Args: []any{pattern}}
		} else {
			p = Predicate{SQL: col + " LIKE ? ESCAPE '\\'", Args: []any{pattern}}
		}
	} else if caseFold {
		p = Predicate{SQL: "UPPER(" + col + ") = UPPER(?)", Args: []any{value}}
	} else {
		p = Predicate{SQL: col + " = ?", Args: []any{value}}
	}
	return orUnknown(p, col, matchUnknown)
}

// ListOfValues matches col against one value by equality, or several by
// set membership.
func ListOfValues(col string, values []string) Predicate {
	var vs []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			vs = append(vs, v)
		}
	}
	switch len(vs) {
	case 0:
		return Predicate{}
	case 1:
		return Predicate{SQL: col + " = ?", Args: []any{vs[0]}}
	}
	query, args, err := sqlx.In(col+" IN (?)", vs)
	if err != nil {
		// sqlx.In only fails for empty slices, which are handled above.
		panic(err)
	}
	return Predicate{SQL: query, Args: args}
}

// UIDs matches a List of UID Matching key, a backslash separated list.
func UIDs(col, value string) Predicate {
	if strings.TrimSpace(value) == "" || value == "*" {
		return Predicate{}
	}
	return ListOfValues(col, strings.Split(value, "\\"))
}

// Custom matches a deployment-defined custom attribute column.
func Custom(col, value string, matchUnknown bool) Predicate {
	return ExactOrWildcard(col, value, false, matchUnknown)
}
