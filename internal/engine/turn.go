package engine

import (
	"fmt"

	"blockdoc/internal/delta"
	"blockdoc/internal/domain"
)

// TurnToBlock rewrites a block's type and payload in place. Nil data takes
// the new type's default payload. The id and children are kept, and so is
// the text unless the new type carries none. Asking for the current type and
// payload commits nothing. A block turned into a toggle heading absorbs its
// following siblings like AddBlock does.
func (e *Engine) TurnToBlock(id string, bt domain.BlockType, data map[string]any) (Result, error) {
	sel := domain.Caret(id, 0)
	return e.run("turnToBlock", sel, func(o *op) (domain.Range, error) {
		return sel, o.turnTo(id, bt, data)
	})
}

func (o *op) turnTo(id string, bt domain.BlockType, data map[string]any) error {
	b, err := o.GetBlock(id)
	if err != nil {
		return err
	}
	if b.ParentID == "" {
		return fmt.Errorf("turn root page into %s: %w", bt, domain.ErrInvalidOperation)
	}
	if data == nil {
		data = o.Policy(bt).DefaultData
	}
	if b.Type == bt && domain.DataEqual(b.Data, data) {
		return nil
	}
	if err := o.SetType(id, bt, data); err != nil {
		return err
	}
	turned, err := o.GetBlock(id)
	if err != nil {
		return err
	}
	return o.extendToggleHeading(turned)
}

// SetBlockData shallow-merges patch into a block's payload. A nil value
// removes the key.
func (e *Engine) SetBlockData(id string, patch map[string]any) (Result, error) {
	sel := domain.Caret(id, 0)
	return e.run("setBlockData", sel, func(o *op) (domain.Range, error) {
		_, err := o.SetData(id, patch)
		return sel, err
	})
}

// ToggleToggleList flips the collapsed flag of a toggle list.
func (e *Engine) ToggleToggleList(id string, sel domain.Range) (Result, error) {
	return e.toggleFlag(id, sel, domain.BlockTypeToggleList, "collapsed")
}

// ToggleTodoList flips the checked flag of a todo item.
func (e *Engine) ToggleTodoList(id string, sel domain.Range) (Result, error) {
	return e.toggleFlag(id, sel, domain.BlockTypeTodoList, "checked")
}

// toggleFlag flips a boolean payload field. The selection is kept unless it
// lies inside the block's descendants, in which case it moves to the start
// of the block. Blocks of another type are left alone.
func (e *Engine) toggleFlag(id string, sel domain.Range, bt domain.BlockType, key string) (Result, error) {
	return e.run("setBlockData", sel, func(o *op) (domain.Range, error) {
		b, err := o.GetBlock(id)
		if err != nil {
			return sel, err
		}
		if b.Type != bt {
			return sel, nil
		}
		on, _ := b.Data[key].(bool)
		if _, err := o.SetData(id, map[string]any{key: !on}); err != nil {
			return sel, err
		}
		if o.IsAncestor(id, sel.Anchor.BlockID) || o.IsAncestor(id, sel.Focus.BlockID) {
			return domain.Caret(id, 0), nil
		}
		return sel, nil
	})
}

// AddBlock creates a block under parentID at index, seeded with text. A
// toggle heading (toggle list with a level) absorbs the following siblings
// up to the next heading of the same or a higher level.
func (e *Engine) AddBlock(parentID string, index int, bt domain.BlockType, data map[string]any, text delta.Delta) (Result, error) {
	return e.run("addBlock", domain.Range{}, func(o *op) (domain.Range, error) {
		parent, err := o.GetBlock(parentID)
		if err != nil {
			return domain.Range{}, err
		}
		if !o.Policy(parent.Type).CanHaveChildren {
			return domain.Range{}, fmt.Errorf("add block under %s (%s): %w", parentID, parent.Type, domain.ErrInvalidOperation)
		}
		nb, err := o.CreateBlock(bt, data, text)
		if err != nil {
			return domain.Range{}, err
		}
		if err := o.Attach(nb.ID, parentID, index); err != nil {
			return domain.Range{}, err
		}
		if err := o.extendToggleHeading(nb); err != nil {
			return domain.Range{}, err
		}
		n, err := o.TextLength(nb.ID)
		return domain.Caret(nb.ID, n), err
	})
}

// demote handles Backspace at the start of, or Enter in an empty, formatted
// block. A toggle heading drops its level and stays a toggle list; anything
// else becomes the default type.
func (o *op) demote(b *domain.Block) (domain.Range, error) {
	if b.Type == domain.BlockTypeToggleList && headingLevel(b.Data) > 0 {
		o.rename("setBlockData")
		_, err := o.SetData(b.ID, map[string]any{"level": nil})
		return domain.Caret(b.ID, 0), err
	}
	o.rename("turnToBlock")
	return domain.Caret(b.ID, 0), o.SetType(b.ID, domain.DefaultBlockType, nil)
}

func (o *op) extendToggleHeading(b *domain.Block) error {
	level := headingLevel(b.Data)
	if b.Type != domain.BlockTypeToggleList || level == 0 {
		return nil
	}
	for {
		next, err := o.NextSibling(b.ID)
		if err != nil || next == "" {
			return err
		}
		nb, err := o.GetBlock(next)
		if err != nil {
			return err
		}
		if l := headingLevel(nb.Data); l > 0 && l <= level {
			return nil
		}
		children, err := o.ChildrenOf(b.ID)
		if err != nil {
			return err
		}
		if err := o.Move(next, b.ID, len(children)); err != nil {
			return err
		}
	}
}

// headingLevel reads data["level"], which may have come through JSON.
func headingLevel(data map[string]any) int {
	switch v := data["level"].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case uint64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
