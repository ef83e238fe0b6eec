package repo

import (
	"fmt"
	"slices"

	"blockdoc/internal/domain"
)

// IndexOf returns the position of a block in its parent's children.
func (r *Repo) IndexOf(id string) (int, error) {
	b, err := r.GetBlock(id)
	if err != nil {
		return 0, err
	}
	if b.ParentID == "" {
		return 0, fmt.Errorf("index of %s: not attached: %w", id, domain.ErrInvalidOperation)
	}
	siblings, err := r.ChildrenOf(b.ParentID)
	if err != nil {
		return 0, err
	}
	i := slices.Index(siblings, id)
	if i < 0 {
		return 0, fmt.Errorf("block %s missing from parent %s: %w", id, b.ParentID, domain.ErrNotFound)
	}
	return i, nil
}

// Parent returns the parent block, or nil for the root and detached blocks.
func (r *Repo) Parent(id string) (*domain.Block, error) {
	b, err := r.GetBlock(id)
	if err != nil {
		return nil, err
	}
	if b.ParentID == "" {
		return nil, nil
	}
	return r.GetBlock(b.ParentID)
}

// PrevSibling returns the id of the sibling before id, or "".
func (r *Repo) PrevSibling(id string) (string, error) {
	return r.sibling(id, -1)
}

// NextSibling returns the id of the sibling after id, or "".
func (r *Repo) NextSibling(id string) (string, error) {
	return r.sibling(id, 1)
}

func (r *Repo) sibling(id string, step int) (string, error) {
	b, err := r.GetBlock(id)
	if err != nil {
		return "", err
	}
	if b.ParentID == "" {
		return "", nil
	}
	siblings, err := r.ChildrenOf(b.ParentID)
	if err != nil {
		return "", err
	}
	i := slices.Index(siblings, id)
	if i < 0 {
		return "", fmt.Errorf("block %s missing from parent %s: %w", id, b.ParentID, domain.ErrNotFound)
	}
	if i += step; i < 0 || i >= len(siblings) {
		return "", nil
	}
	return siblings[i], nil
}

// DocumentOrder lists every block below root in pre-order, root excluded.
func (r *Repo) DocumentOrder(root string) ([]string, error) {
	var out []string
	var walk func(id string) error
	walk = func(id string) error {
		children, err := r.ChildrenOf(id)
		if err != nil {
			return err
		}
		for _, c := range children {
			out = append(out, c)
			if err := walk(c); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(root); err != nil {
		return nil, err
	}
	return out, nil
}

// PreviousTextBlock returns the nearest text-bearing block before id in
// document order, or "" at the top of the document.
func (r *Repo) PreviousTextBlock(id string) (string, error) {
	return r.textNeighbour(id, -1)
}

// NextTextBlock returns the nearest text-bearing block after id in document
// order, or "" at the end.
func (r *Repo) NextTextBlock(id string) (string, error) {
	return r.textNeighbour(id, 1)
}

func (r *Repo) textNeighbour(id string, step int) (string, error) {
	order, err := r.DocumentOrder(r.PageID())
	if err != nil {
		return "", err
	}
	i := slices.Index(order, id)
	if i < 0 {
		return "", fmt.Errorf("block %s not in document: %w", id, domain.ErrNotFound)
	}
	for i += step; i >= 0 && i < len(order); i += step {
		b, err := r.GetBlock(order[i])
		if err != nil {
			return "", err
		}
		if b.TextID != "" {
			return b.ID, nil
		}
	}
	return "", nil
}

// IsAncestor reports whether ancestor lies on the parent chain of id.
func (r *Repo) IsAncestor(ancestor, id string) bool {
	seen := map[string]bool{}
	for cur := id; cur != "" && !seen[cur]; {
		seen[cur] = true
		b, ok := r.tx.Block(cur)
		if !ok {
			return false
		}
		if b.ParentID == ancestor {
			return true
		}
		cur = b.ParentID
	}
	return false
}

// Depth is the number of ancestors between id and the page. Direct children
// of the page have depth 0.
func (r *Repo) Depth(id string) (int, error) {
	depth := -1
	for cur := id; cur != r.PageID(); depth++ {
		b, err := r.GetBlock(cur)
		if err != nil {
			return 0, err
		}
		if b.ParentID == "" {
			return 0, fmt.Errorf("block %s is detached: %w", id, domain.ErrInvalidOperation)
		}
		cur = b.ParentID
	}
	return max(depth, 0), nil
}

// IsNested reports whether a block sits below another block rather than
// directly under the page.
func (r *Repo) IsNested(id string) (bool, error) {
	b, err := r.GetBlock(id)
	if err != nil {
		return false, err
	}
	return b.ParentID != "" && b.ParentID != r.PageID(), nil
}
