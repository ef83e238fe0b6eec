package domain

// Point is a caret position: a plain-text offset inside one block's delta.
type Point struct {
	BlockID string `json:"blockId"`
	Offset  int    `json:"offset"`
}

// Range is a selection between two points. Anchor and Focus are not ordered.
type Range struct {
	Anchor Point `json:"anchor"`
	Focus  Point `json:"focus"`
}

// Caret returns a collapsed range at p.
func Caret(blockID string, offset int) Range {
	p := Point{BlockID: blockID, Offset: offset}
	return Range{Anchor: p, Focus: p}
}

func (r Range) IsCollapsed() bool {
	return r.Anchor == r.Focus
}

// Collapse returns a collapsed range at the anchor.
func (r Range) Collapse() Range {
	return Range{Anchor: r.Anchor, Focus: r.Anchor}
}
