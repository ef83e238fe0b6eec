package delta

import (
	"maps"
	"reflect"
	"strings"
	"unicode/utf8"
)

// Attributes are the formatting marks of a run (bold, italic, href, ...).
type Attributes map[string]any

// Clone returns a shallow copy, or nil when empty.
func (a Attributes) Clone() Attributes {
	if len(a) == 0 {
		return nil
	}
	return maps.Clone(a)
}

// Equal reports whether two attribute sets carry the same marks.
func (a Attributes) Equal(b Attributes) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return reflect.DeepEqual(map[string]any(a), map[string]any(b))
}

// Run is one text segment sharing a set of attributes.
type Run struct {
	Insert     string     `json:"insert"`
	Attributes Attributes `json:"attributes,omitempty"`
}

// Delta is rich text as an ordered list of runs.
// Offsets are counted in runes.
type Delta []Run

// FromText wraps plain text in a single unformatted run.
func FromText(s string) Delta {
	if s == "" {
		return Delta{}
	}
	return Delta{{Insert: s}}
}

// Length is the number of runes across all runs.
func Length(d Delta) int {
	n := 0
	for _, r := range d {
		n += utf8.RuneCountInString(r.Insert)
	}
	return n
}

// TextOf concatenates the inserts of every run.
func TextOf(d Delta) string {
	var sb strings.Builder
	for _, r := range d {
		sb.WriteString(r.Insert)
	}
	return sb.String()
}

// Slice returns the runs covering [start, end). Boundary runs are split and
// keep their attributes; out of range bounds clamp to the length.
func Slice(d Delta, start, end int) Delta {
	n := Length(d)
	start = clamp(start, 0, n)
	end = clamp(end, 0, n)
	out := Delta{}
	if end <= start {
		return out
	}

	pos := 0
	for _, r := range d {
		runes := []rune(r.Insert)
		rs, re := pos, pos+len(runes)
		pos = re
		if re <= start {
			continue
		}
		if rs >= end {
			break
		}
		from := max(start, rs) - rs
		to := min(end, re) - rs
		out = append(out, Run{Insert: string(runes[from:to]), Attributes: r.Attributes.Clone()})
	}
	return out
}

// SliceFrom returns everything from start to the end.
func SliceFrom(d Delta, start int) Delta {
	return Slice(d, start, Length(d))
}

// SplitAt cuts a delta in two at index.
func SplitAt(d Delta, index int) (before, after Delta) {
	return Slice(d, 0, index), SliceFrom(d, index)
}

// Concat appends b to a and normalizes the result.
func Concat(a, b Delta) Delta {
	out := make(Delta, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	return Normalize(out)
}

// Normalize drops empty runs and merges neighbours with equal attributes.
func Normalize(d Delta) Delta {
	out := Delta{}
	for _, r := range d {
		if r.Insert == "" {
			continue
		}
		if last := len(out) - 1; last >= 0 && out[last].Attributes.Equal(r.Attributes) {
			out[last].Insert += r.Insert
			continue
		}
		out = append(out, Run{Insert: r.Insert, Attributes: r.Attributes.Clone()})
	}
	return out
}

// Clone deep-copies the run list.
func Clone(d Delta) Delta {
	out := make(Delta, len(d))
	for i, r := range d {
		out[i] = Run{Insert: r.Insert, Attributes: r.Attributes.Clone()}
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
