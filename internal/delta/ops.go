package delta

import (
	"fmt"
	"unicode/utf8"
)

type Kind string

const (
	KindRetain Kind = "retain"
	KindInsert Kind = "insert"
	KindDelete Kind = "delete"
)

// Op is one positional edit against a text sequence.
type Op struct {
	Kind  Kind       `json:"kind"`
	Count int        `json:"count,omitempty"` // retain/delete length
	Text  string     `json:"text,omitempty"`  // insert text
	Attrs Attributes `json:"attrs,omitempty"` // insert marks, or format marks on retain
}

func Retain(n int) Op { return Op{Kind: KindRetain, Count: n} }

func Delete(n int) Op { return Op{Kind: KindDelete, Count: n} }

func Insert(text string, attrs Attributes) Op {
	return Op{Kind: KindInsert, Text: text, Attrs: attrs.Clone()}
}

// DiffForReplace builds retain(start), delete(deleteLen), insert... against d.
// start and deleteLen are clamped to d; zero-length deletes and empty inserts
// are dropped, so a replacement that changes nothing yields no ops.
func DiffForReplace(d Delta, start, deleteLen int, insert Delta) []Op {
	n := Length(d)
	start = clamp(start, 0, n)
	deleteLen = clamp(deleteLen, 0, n-start)

	var inserts []Op
	for _, r := range insert {
		if r.Insert == "" {
			continue
		}
		inserts = append(inserts, Insert(r.Insert, r.Attributes))
	}
	if deleteLen == 0 && len(inserts) == 0 {
		return nil
	}

	ops := make([]Op, 0, 2+len(inserts))
	if start > 0 {
		ops = append(ops, Retain(start))
	}
	if deleteLen > 0 {
		ops = append(ops, Delete(deleteLen))
	}
	return append(ops, inserts...)
}

// Apply composes ops onto d. Retains and deletes past the end clamp.
// A retain with attributes formats the covered runs; a nil value removes a mark.
func Apply(d Delta, ops []Op) (Delta, error) {
	n := Length(d)
	out := Delta{}
	pos := 0
	for _, op := range ops {
		switch op.Kind {
		case KindRetain:
			if op.Count < 0 {
				return nil, fmt.Errorf("apply delta: negative retain %d", op.Count)
			}
			end := min(pos+op.Count, n)
			seg := Slice(d, pos, end)
			if len(op.Attrs) > 0 {
				for i := range seg {
					seg[i].Attributes = mergeAttrs(seg[i].Attributes, op.Attrs)
				}
			}
			out = append(out, seg...)
			pos = end
		case KindDelete:
			if op.Count < 0 {
				return nil, fmt.Errorf("apply delta: negative delete %d", op.Count)
			}
			pos = min(pos+op.Count, n)
		case KindInsert:
			out = append(out, Run{Insert: op.Text, Attributes: op.Attrs.Clone()})
		default:
			return nil, fmt.Errorf("apply delta: unknown op kind %q", op.Kind)
		}
	}
	out = append(out, SliceFrom(d, pos)...)
	return Normalize(out), nil
}

// Invert returns the ops that take Apply(base, ops) back to base.
func Invert(base Delta, ops []Op) []Op {
	n := Length(base)
	var inv []Op
	pos := 0
	for _, op := range ops {
		switch op.Kind {
		case KindRetain:
			end := min(pos+op.Count, n)
			if len(op.Attrs) == 0 {
				inv = appendRetain(inv, end-pos)
			} else {
				for _, r := range Slice(base, pos, end) {
					prior := Attributes{}
					for k := range op.Attrs {
						prior[k] = r.Attributes[k]
					}
					inv = append(inv, Op{Kind: KindRetain, Count: utf8.RuneCountInString(r.Insert), Attrs: prior})
				}
			}
			pos = end
		case KindDelete:
			end := min(pos+op.Count, n)
			for _, r := range Slice(base, pos, end) {
				inv = append(inv, Insert(r.Insert, r.Attributes))
			}
			pos = end
		case KindInsert:
			if l := utf8.RuneCountInString(op.Text); l > 0 {
				inv = append(inv, Delete(l))
			}
		}
	}
	return trimTrailingRetain(inv)
}

func appendRetain(ops []Op, n int) []Op {
	if n <= 0 {
		return ops
	}
	if last := len(ops) - 1; last >= 0 && ops[last].Kind == KindRetain && len(ops[last].Attrs) == 0 {
		ops[last].Count += n
		return ops
	}
	return append(ops, Retain(n))
}

func trimTrailingRetain(ops []Op) []Op {
	for len(ops) > 0 {
		last := ops[len(ops)-1]
		if last.Kind != KindRetain || len(last.Attrs) > 0 {
			break
		}
		ops = ops[:len(ops)-1]
	}
	return ops
}

func mergeAttrs(base, patch Attributes) Attributes {
	out := Attributes{}
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		if v == nil {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
