package filestore

import (
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/caio-sobreiro/dicomarchive/dicom"
)

// DefaultPathFormat spreads objects by receive date and hashed UIDs.
const DefaultPathFormat = "{yyyy}/{MM}/{dd}/{StudyInstanceUID,hash}/{SeriesInstanceUID,hash}/{SOPInstanceUID,hash}"

var dateLayouts = map[string]string{
	"yyyy": "2006",
	"MM":   "01",
	"dd":   "02",
	"HH":   "15",
	"mm":   "04",
	"ss":   "05",
}

type segment struct {
	literal string
	layout  string
	tag     dicom.Tag
	isAttr  bool
	hash    bool
}

// PathFormat derives a relative storage path from a dataset and the receive
// time. Placeholders are {yyyy} {MM} {dd} {HH} {mm} {ss} for the time,
// {Keyword} for an attribute value and {Keyword,hash} for the FNV-32 hash of
// it. Keywords may also be written as gggg,eeee tags.
type PathFormat struct {
	pattern  string
	segments []segment
}

// ParsePathFormat compiles pattern.
func ParsePathFormat(pattern string) (*PathFormat, error) {
	if strings.TrimSpace(pattern) == "" {
		return nil, fmt.Errorf("empty path format")
	}
	f := &PathFormat{pattern: pattern}
	rest := pattern
	for rest != "" {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			f.segments = append(f.segments, segment{literal: rest})
			break
		}
		if open > 0 {
			f.segments = append(f.segments, segment{literal: rest[:open]})
		}
		end := strings.IndexByte(rest[open:], '}')
		if end < 0 {
			return nil, fmt.Errorf("path format %q: unclosed placeholder", pattern)
		}
		seg, err := parsePlaceholder(rest[open+1 : open+end])
		if err != nil {
			return nil, fmt.Errorf("path format %q: %w", pattern, err)
		}
		f.segments = append(f.segments, seg)
		rest = rest[open+end+1:]
	}
	return f, nil
}

// MustParsePathFormat is ParsePathFormat that panics on error.
func MustParsePathFormat(pattern string) *PathFormat {
	f, err := ParsePathFormat(pattern)
	if err != nil {
		panic(err)
	}
	return f
}

func parsePlaceholder(p string) (segment, error) {
	if layout, ok := dateLayouts[p]; ok {
		return segment{layout: layout}, nil
	}
	name, hash := p, false
	if i := strings.LastIndex(p, ","); i >= 0 && strings.TrimSpace(p[i+1:]) == "hash" {
		name, hash = p[:i], true
	}
	tag, err := dicom.ParseTag(name)
	if err != nil {
		return segment{}, err
	}
	return segment{tag: tag, isAttr: true, hash: hash}, nil
}

// Format renders the path for ds received at t.
func (f *PathFormat) Format(ds *dicom.Dataset, t time.Time) string {
	var b strings.Builder
	for _, seg := range f.segments {
		switch {
		case seg.layout != "":
			b.WriteString(t.Format(seg.layout))
		case seg.isAttr:
			v := ds.GetString(seg.tag)
			if seg.hash {
				h := fnv.New32()
				h.Write([]byte(v))
				fmt.Fprintf(&b, "%08X", h.Sum32())
			} else {
				b.WriteString(sanitize(v))
			}
		default:
			b.WriteString(seg.literal)
		}
	}
	return b.String()
}

func (f *PathFormat) String() string {
	return f.pattern
}

// sanitize keeps an attribute value from escaping its path segment.
func sanitize(v string) string {
	if v == "" {
		return "UNKNOWN"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', 0:
			return '_'
		}
		return r
	}, v)
}
