package engine

import (
	"fmt"

	"blockdoc/internal/delta"
	"blockdoc/internal/domain"
	"blockdoc/internal/policy"
)

// InsertBreak handles Enter. A range is deleted first, in the same
// transaction, then the caret's block is split.
func (e *Engine) InsertBreak(sel domain.Range) (Result, error) {
	return e.run("insertBreak", sel, func(o *op) (domain.Range, error) {
		at, err := o.collapse(sel)
		if err != nil {
			return sel, err
		}
		return o.splitAt(at)
	})
}

// InsertSoftBreak handles Shift+Enter: a newline inside the same block.
func (e *Engine) InsertSoftBreak(sel domain.Range) (Result, error) {
	return e.run("insertSoftBreak", sel, func(o *op) (domain.Range, error) {
		at, err := o.collapse(sel)
		if err != nil {
			return sel, err
		}
		b, offset, err := o.point(at)
		if err != nil {
			return sel, err
		}
		if b.TextID == "" {
			return sel, nil
		}
		if err := o.replace(b.ID, offset, 0, delta.FromText("\n")); err != nil {
			return sel, err
		}
		return domain.Caret(b.ID, offset+1), nil
	})
}

// collapse deletes a non-empty range and returns the point left behind.
func (o *op) collapse(sel domain.Range) (domain.Point, error) {
	if sel.IsCollapsed() {
		return sel.Anchor, nil
	}
	return o.deleteRange(sel)
}

func (o *op) splitAt(at domain.Point) (domain.Range, error) {
	b, offset, err := o.point(at)
	if err != nil {
		return domain.Range{}, err
	}
	if b.ParentID == "" {
		return domain.Range{}, fmt.Errorf("split root page: %w", domain.ErrInvalidOperation)
	}
	pol := o.Policy(b.Type)

	if b.TextID == "" {
		nb, err := o.insertSibling(b, 1, domain.DefaultBlockType, nil)
		if err != nil {
			return domain.Range{}, err
		}
		return domain.Caret(nb.ID, 0), nil
	}
	if pol.SoftBreakOnEnter {
		if err := o.replace(b.ID, offset, 0, delta.FromText("\n")); err != nil {
			return domain.Range{}, err
		}
		return domain.Caret(b.ID, offset+1), nil
	}

	text, err := o.Text(b.ID)
	if err != nil {
		return domain.Range{}, err
	}
	length := delta.Length(text)

	if length == 0 {
		if b.Type != domain.DefaultBlockType {
			return o.demote(b)
		}
		leaf, err := o.isLastLeaf(b.ID)
		if err != nil {
			return domain.Range{}, err
		}
		if leaf {
			o.rename("liftBlock")
			_, err := o.lift(b.ID)
			return domain.Caret(b.ID, 0), err
		}
	}

	if offset == 0 && length > 0 {
		bt, data := domain.DefaultBlockType, map[string]any(nil)
		if pol.SameTypeAbove {
			bt, data = b.Type, b.Data
		}
		if _, err := o.insertSibling(b, 0, bt, data); err != nil {
			return domain.Range{}, err
		}
		return domain.Caret(b.ID, 0), nil
	}

	behavior, nextType := pol.ResolveSplit(b.Type, b.Data)
	after := delta.SliceFrom(text, offset)
	if err := o.ApplyDelta(b.ID, delta.DiffForReplace(text, offset, length-offset, nil)); err != nil {
		return domain.Range{}, err
	}
	nb, err := o.CreateBlock(nextType, nil, after)
	if err != nil {
		return domain.Range{}, err
	}

	if behavior == policy.SplitChild {
		if err := o.Attach(nb.ID, b.ID, 0); err != nil {
			return domain.Range{}, err
		}
		return domain.Caret(nb.ID, 0), nil
	}
	if pol.ChildrenMigrate(behavior) {
		children, err := o.ChildrenOf(b.ID)
		if err != nil {
			return domain.Range{}, err
		}
		for i, c := range children {
			if err := o.Move(c, nb.ID, i); err != nil {
				return domain.Range{}, err
			}
		}
	}
	index, err := o.IndexOf(b.ID)
	if err != nil {
		return domain.Range{}, err
	}
	if err := o.Attach(nb.ID, b.ParentID, index+1); err != nil {
		return domain.Range{}, err
	}
	return domain.Caret(nb.ID, 0), nil
}

// insertSibling creates an empty block next to b: before it when shift is 0,
// after it when shift is 1.
func (o *op) insertSibling(b *domain.Block, shift int, bt domain.BlockType, data map[string]any) (*domain.Block, error) {
	nb, err := o.CreateBlock(bt, data, nil)
	if err != nil {
		return nil, err
	}
	index, err := o.IndexOf(b.ID)
	if err != nil {
		return nil, err
	}
	return nb, o.Attach(nb.ID, b.ParentID, index+shift)
}
