// Package selection translates between block-id selections and the
// coordinates editing surfaces work in.
package selection

import (
	"fmt"
	"slices"

	"blockdoc/internal/delta"
	"blockdoc/internal/domain"
)

// Projector maps a block-id range to a surface-native selection N and back.
type Projector[N any] interface {
	Project(r domain.Range) (N, error)
	Unproject(n N) (domain.Range, error)
}

// Source yields the document state selections are resolved against.
// *docstore.Doc satisfies it.
type Source interface {
	Snapshot() *domain.Snapshot
}

// ─── Flat offsets ────────────────────────────────────────────

// FlatRange is a selection over the document's plain text, where the text
// blocks are joined in document order with a single "\n".
type FlatRange struct {
	Anchor int `json:"anchor"`
	Focus  int `json:"focus"`
}

type FlatProjector struct {
	src Source
}

var _ Projector[FlatRange] = (*FlatProjector)(nil)

func NewFlatProjector(src Source) *FlatProjector {
	return &FlatProjector{src: src}
}

type span struct {
	id    string
	start int
	n     int
}

func textSpans(s *domain.Snapshot) []span {
	var out []span
	pos := 0
	for _, id := range s.DocumentOrder() {
		b := s.Blocks[id]
		if b == nil || b.TextID == "" {
			continue
		}
		n := delta.Length(s.Texts[b.TextID])
		out = append(out, span{id: id, start: pos, n: n})
		pos += n + 1
	}
	return out
}

func (p *FlatProjector) Project(r domain.Range) (FlatRange, error) {
	spans := textSpans(p.src.Snapshot())
	a, err := flatOffset(spans, r.Anchor)
	if err != nil {
		return FlatRange{}, err
	}
	f, err := flatOffset(spans, r.Focus)
	if err != nil {
		return FlatRange{}, err
	}
	return FlatRange{Anchor: a, Focus: f}, nil
}

func flatOffset(spans []span, pt domain.Point) (int, error) {
	i := slices.IndexFunc(spans, func(s span) bool { return s.id == pt.BlockID })
	if i < 0 {
		return 0, fmt.Errorf("project point in %s: %w", pt.BlockID, domain.ErrNotFound)
	}
	return spans[i].start + max(0, min(pt.Offset, spans[i].n)), nil
}

// Unproject resolves flat offsets, clamping past either end of the document.
// An offset on a separator belongs to the end of the preceding block.
func (p *FlatProjector) Unproject(n FlatRange) (domain.Range, error) {
	spans := textSpans(p.src.Snapshot())
	if len(spans) == 0 {
		return domain.Range{}, fmt.Errorf("unproject flat range: no text blocks: %w", domain.ErrNotFound)
	}
	return domain.Range{Anchor: flatPoint(spans, n.Anchor), Focus: flatPoint(spans, n.Focus)}, nil
}

func flatPoint(spans []span, off int) domain.Point {
	for _, s := range spans {
		if off <= s.start+s.n {
			return domain.Point{BlockID: s.id, Offset: max(0, off-s.start)}
		}
	}
	last := spans[len(spans)-1]
	return domain.Point{BlockID: last.id, Offset: last.n}
}

// ─── Tree paths ──────────────────────────────────────────────

// PathPoint addresses a block by child indices from the page, plus an offset
// into its text.
type PathPoint struct {
	Path   []int `json:"path"`
	Offset int   `json:"offset"`
}

type PathRange struct {
	Anchor PathPoint `json:"anchor"`
	Focus  PathPoint `json:"focus"`
}

type PathProjector struct {
	src Source
}

var _ Projector[PathRange] = (*PathProjector)(nil)

func NewPathProjector(src Source) *PathProjector {
	return &PathProjector{src: src}
}

func (p *PathProjector) Project(r domain.Range) (PathRange, error) {
	s := p.src.Snapshot()
	a, err := pathOf(s, r.Anchor)
	if err != nil {
		return PathRange{}, err
	}
	f, err := pathOf(s, r.Focus)
	if err != nil {
		return PathRange{}, err
	}
	return PathRange{Anchor: a, Focus: f}, nil
}

func pathOf(s *domain.Snapshot, pt domain.Point) (PathPoint, error) {
	var path []int
	id := pt.BlockID
	for id != s.PageID {
		b, ok := s.Blocks[id]
		if !ok || b.ParentID == "" || len(path) > len(s.Blocks) {
			return PathPoint{}, fmt.Errorf("path of %s: %w", pt.BlockID, domain.ErrNotFound)
		}
		i := slices.Index(s.ChildIDs(b.ParentID), id)
		if i < 0 {
			return PathPoint{}, fmt.Errorf("path of %s: detached: %w", pt.BlockID, domain.ErrNotFound)
		}
		path = append(path, i)
		id = b.ParentID
	}
	slices.Reverse(path)
	return PathPoint{Path: path, Offset: pt.Offset}, nil
}

func (p *PathProjector) Unproject(n PathRange) (domain.Range, error) {
	s := p.src.Snapshot()
	a, err := pointAt(s, n.Anchor)
	if err != nil {
		return domain.Range{}, err
	}
	f, err := pointAt(s, n.Focus)
	if err != nil {
		return domain.Range{}, err
	}
	return domain.Range{Anchor: a, Focus: f}, nil
}

func pointAt(s *domain.Snapshot, pp PathPoint) (domain.Point, error) {
	if len(pp.Path) == 0 {
		return domain.Point{}, fmt.Errorf("resolve empty path: %w", domain.ErrInvalidOperation)
	}
	id := s.PageID
	for depth, i := range pp.Path {
		children := s.ChildIDs(id)
		if i < 0 || i >= len(children) {
			return domain.Point{}, fmt.Errorf("resolve path %v at depth %d: %w", pp.Path, depth, domain.ErrNotFound)
		}
		id = children[i]
	}
	n := delta.Length(s.Texts[s.Blocks[id].TextID])
	return domain.Point{BlockID: id, Offset: max(0, min(pp.Offset, n))}, nil
}
