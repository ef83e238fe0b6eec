package engine

import (
	"blockdoc/internal/domain"
)

// TabEvent indents the blocks touched by sel, or lifts them when shift is set.
func (e *Engine) TabEvent(sel domain.Range, shift bool) (Result, error) {
	if shift {
		return e.Outdent(sel)
	}
	return e.Indent(sel)
}

// Indent makes each touched block the last child of its previous sibling,
// front to back. Blocks without a previous sibling, or whose previous sibling
// cannot own children, are skipped. Ids are kept, so the selection stays valid.
func (e *Engine) Indent(sel domain.Range) (Result, error) {
	return e.run("indentBlock", sel, func(o *op) (domain.Range, error) {
		ids, err := o.touched(sel)
		if err != nil {
			return sel, err
		}
		for _, id := range ids {
			prev, err := o.PrevSibling(id)
			if err != nil {
				return sel, err
			}
			if prev == "" {
				continue
			}
			pb, err := o.GetBlock(prev)
			if err != nil {
				return sel, err
			}
			if !o.Policy(pb.Type).CanHaveChildren {
				continue
			}
			children, err := o.ChildrenOf(prev)
			if err != nil {
				return sel, err
			}
			if err := o.Move(id, prev, len(children)); err != nil {
				return sel, err
			}
		}
		return sel, nil
	})
}

// Outdent makes each touched block the next sibling of its parent, back to
// front so earlier blocks land before later ones. Blocks directly under the
// page are skipped.
func (e *Engine) Outdent(sel domain.Range) (Result, error) {
	return e.run("liftBlock", sel, func(o *op) (domain.Range, error) {
		ids, err := o.touched(sel)
		if err != nil {
			return sel, err
		}
		for i := len(ids) - 1; i >= 0; i-- {
			if _, err := o.lift(ids[i]); err != nil {
				return sel, err
			}
		}
		return sel, nil
	})
}
