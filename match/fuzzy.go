package match

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// fold strips diacritics so "Müller" and "Muller" share a code.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

var soundexDigits = map[rune]byte{
	'B': '1', 'F': '1', 'P': '1', 'V': '1',
	'C': '2', 'G': '2', 'J': '2', 'K': '2', 'Q': '2', 'S': '2', 'X': '2', 'Z': '2',
	'D': '3', 'T': '3',
	'L': '4',
	'M': '5', 'N': '5',
	'R': '6',
}

// Soundex returns the four character American Soundex code of s, or "" when
// s has no Latin letters.
func Soundex(s string) string {
	s = strings.ToUpper(fold(s))

	var code []byte
	var last byte
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			continue
		}
		d := soundexDigits[r]
		if len(code) == 0 {
			code = append(code, byte(r))
			last = d
			continue
		}
		switch {
		case d == 0:
			// H and W do not separate letters with the same code; vowels do.
			if r != 'H' && r != 'W' {
				last = 0
			}
		case d != last:
			code = append(code, d)
			last = d
		}
		if len(code) == 4 {
			break
		}
	}
	if len(code) == 0 {
		return ""
	}
	for len(code) < 4 {
		code = append(code, '0')
	}
	return string(code)
}

// PhoneticCodes returns the Soundex codes of the family and given name
// components of a DICOM person name. Only the alphabetic group is used.
func PhoneticCodes(pn string) (family, given string) {
	alpha, _, _ := strings.Cut(pn, "=")
	parts := strings.Split(alpha, "^")
	family = Soundex(parts[0])
	if len(parts) > 1 {
		given = Soundex(parts[1])
	}
	return family, given
}
