package engine

import (
	"fmt"
	"slices"

	"blockdoc/internal/delta"
	"blockdoc/internal/domain"
)

// DeleteBackward handles Backspace: a range is deleted, otherwise one rune
// before the caret, otherwise the block-level rules at offset 0 apply.
func (e *Engine) DeleteBackward(sel domain.Range) (Result, error) {
	if !sel.IsCollapsed() {
		return e.DeleteText(sel)
	}
	return e.run("deleteBackward", sel, func(o *op) (domain.Range, error) {
		b, offset, err := o.point(sel.Anchor)
		if err != nil {
			return sel, err
		}
		if offset == 0 || b.TextID == "" {
			o.rename("deleteBlockBackward")
			return o.deleteBlockBackward(b, sel)
		}
		if err := o.replace(b.ID, offset-1, 1, nil); err != nil {
			return sel, err
		}
		return domain.Caret(b.ID, offset-1), nil
	})
}

// DeleteBlockBackward applies the offset-0 Backspace rules to the block at p.
func (e *Engine) DeleteBlockBackward(p domain.Point) (Result, error) {
	sel := domain.Range{Anchor: p, Focus: p}
	return e.run("deleteBlockBackward", sel, func(o *op) (domain.Range, error) {
		b, err := o.GetBlock(p.BlockID)
		if err != nil {
			return sel, err
		}
		return o.deleteBlockBackward(b, sel)
	})
}

// deleteBlockBackward demotes a formatted block, lifts a nested last child,
// or merges the block into the previous text block. At the top of the
// document it does nothing.
func (o *op) deleteBlockBackward(b *domain.Block, sel domain.Range) (domain.Range, error) {
	if b.ParentID == "" {
		return sel, fmt.Errorf("delete backward from root page: %w", domain.ErrInvalidOperation)
	}
	if b.Type != domain.DefaultBlockType {
		return o.demote(b)
	}

	nested, err := o.IsNested(b.ID)
	if err != nil {
		return sel, err
	}
	if nested {
		next, err := o.NextSibling(b.ID)
		if err != nil {
			return sel, err
		}
		if next == "" {
			o.rename("liftBlock")
			_, err := o.lift(b.ID)
			return domain.Caret(b.ID, 0), err
		}
	}

	prev, err := o.PreviousTextBlock(b.ID)
	if err != nil || prev == "" {
		return sel, err
	}
	oldLen, err := o.merge(prev, b.ID)
	if err != nil {
		return sel, err
	}
	return domain.Caret(prev, oldLen), nil
}

// DeleteForward handles Delete: a range is deleted, otherwise one rune after
// the caret, otherwise the next text block is merged into this one.
func (e *Engine) DeleteForward(sel domain.Range) (Result, error) {
	if !sel.IsCollapsed() {
		return e.DeleteText(sel)
	}
	return e.run("deleteForward", sel, func(o *op) (domain.Range, error) {
		b, offset, err := o.point(sel.Anchor)
		if err != nil {
			return sel, err
		}
		if b.TextID == "" {
			return sel, nil
		}
		n, err := o.TextLength(b.ID)
		if err != nil {
			return sel, err
		}
		if offset >= n {
			o.rename("deleteBlockForward")
			return o.deleteBlockForward(b, sel)
		}
		if err := o.replace(b.ID, offset, 1, nil); err != nil {
			return sel, err
		}
		return domain.Caret(b.ID, offset), nil
	})
}

// DeleteBlockForward merges the next text block into the block at p.
func (e *Engine) DeleteBlockForward(p domain.Point) (Result, error) {
	sel := domain.Range{Anchor: p, Focus: p}
	return e.run("deleteBlockForward", sel, func(o *op) (domain.Range, error) {
		b, err := o.GetBlock(p.BlockID)
		if err != nil {
			return sel, err
		}
		return o.deleteBlockForward(b, sel)
	})
}

func (o *op) deleteBlockForward(b *domain.Block, sel domain.Range) (domain.Range, error) {
	if b.TextID == "" {
		return sel, nil
	}
	next, err := o.NextTextBlock(b.ID)
	if err != nil || next == "" {
		return sel, err
	}
	oldLen, err := o.merge(b.ID, next)
	if err != nil {
		return sel, err
	}
	return domain.Caret(b.ID, oldLen), nil
}

// DeleteText removes the text covered by a range. Across blocks, the start
// block keeps the text before the range and receives the text after it; the
// blocks in between and the end block are removed after handing their
// surviving children to the start block.
func (e *Engine) DeleteText(rng domain.Range) (Result, error) {
	return e.run("deleteText", rng, func(o *op) (domain.Range, error) {
		p, err := o.deleteRange(rng)
		if err != nil {
			return rng, err
		}
		return domain.Range{Anchor: p, Focus: p}, nil
	})
}

func (o *op) deleteRange(rng domain.Range) (domain.Point, error) {
	start, end, err := o.ordered(rng)
	if err != nil {
		return domain.Point{}, err
	}
	if start.BlockID == end.BlockID {
		if end.Offset > start.Offset {
			if err := o.replace(start.BlockID, start.Offset, end.Offset-start.Offset, nil); err != nil {
				return domain.Point{}, err
			}
		}
		return start, nil
	}

	sb, err := o.GetBlock(start.BlockID)
	if err != nil {
		return domain.Point{}, err
	}
	eb, err := o.GetBlock(end.BlockID)
	if err != nil {
		return domain.Point{}, err
	}
	if sb.TextID == "" || eb.TextID == "" {
		return domain.Point{}, fmt.Errorf("delete range between %s and %s: endpoints need text: %w", sb.ID, eb.ID, domain.ErrInvalidOperation)
	}

	order, err := o.DocumentOrder(o.PageID())
	if err != nil {
		return domain.Point{}, err
	}
	si, ei := slices.Index(order, sb.ID), slices.Index(order, eb.ID)
	middle := order[si+1 : ei]

	startText, err := o.Text(sb.ID)
	if err != nil {
		return domain.Point{}, err
	}
	endText, err := o.Text(eb.ID)
	if err != nil {
		return domain.Point{}, err
	}
	after := delta.SliceFrom(endText, end.Offset)

	// Deepest first, so a block's covered children are gone before it is.
	for i := len(middle) - 1; i >= 0; i-- {
		if err := o.adoptChildren(middle[i], sb.ID); err != nil {
			return domain.Point{}, err
		}
		if err := o.Delete(middle[i]); err != nil {
			return domain.Point{}, err
		}
	}

	if err := o.ApplyDelta(sb.ID, delta.DiffForReplace(startText, start.Offset, delta.Length(startText)-start.Offset, after)); err != nil {
		return domain.Point{}, err
	}
	if err := o.adoptChildren(eb.ID, sb.ID); err != nil {
		return domain.Point{}, err
	}
	if err := o.Delete(eb.ID); err != nil {
		return domain.Point{}, err
	}
	return start, nil
}

// MergeText appends source's text to target, moves source's children under
// target and deletes source. Merging a block with itself does nothing.
func (e *Engine) MergeText(targetID, sourceID string) (Result, error) {
	sel := domain.Caret(targetID, 0)
	return e.run("mergeText", sel, func(o *op) (domain.Range, error) {
		if targetID == sourceID {
			if _, err := o.GetBlock(targetID); err != nil {
				return sel, err
			}
			return sel, nil
		}
		oldLen, err := o.merge(targetID, sourceID)
		if err != nil {
			return sel, err
		}
		return domain.Caret(targetID, oldLen), nil
	})
}

// DeleteEntireDocument replaces everything under the page with one empty
// default block.
func (e *Engine) DeleteEntireDocument() (Result, error) {
	return e.run("deleteEntireDocument", domain.Range{}, func(o *op) (domain.Range, error) {
		page := o.PageID()
		children, err := o.ChildrenOf(page)
		if err != nil {
			return domain.Range{}, err
		}
		if len(children) == 1 {
			if blank, err := o.isBlank(children[0]); err != nil || blank {
				return domain.Caret(children[0], 0), err
			}
		}

		nb, err := o.CreateBlock(domain.DefaultBlockType, nil, nil)
		if err != nil {
			return domain.Range{}, err
		}
		if err := o.Attach(nb.ID, page, len(children)); err != nil {
			return domain.Range{}, err
		}
		for _, id := range children {
			if err := o.DeleteSubtree(id); err != nil {
				return domain.Range{}, err
			}
		}
		return domain.Caret(nb.ID, 0), nil
	})
}

// isBlank reports whether a block is an empty default block with no children.
func (o *op) isBlank(id string) (bool, error) {
	b, err := o.GetBlock(id)
	if err != nil || b.Type != domain.DefaultBlockType {
		return false, err
	}
	children, err := o.ChildrenOf(id)
	if err != nil || len(children) > 0 {
		return false, err
	}
	n, err := o.TextLength(id)
	return n == 0, err
}
