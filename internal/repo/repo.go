// Package repo implements block-level reads and writes on top of an open
// document transaction. Nothing here commits; the caller owns the Tx.
package repo

import (
	"fmt"

	"blockdoc/internal/delta"
	"blockdoc/internal/docstore"
	"blockdoc/internal/domain"
	"blockdoc/internal/policy"

	"github.com/google/uuid"
)

type Repo struct {
	tx  *docstore.Tx
	tbl *policy.Table
}

func New(tx *docstore.Tx, tbl *policy.Table) *Repo {
	return &Repo{tx: tx, tbl: tbl}
}

// PageID is the root block of the document.
func (r *Repo) PageID() string { return r.tx.PageID() }

// Policy returns the policy of a block type.
func (r *Repo) Policy(bt domain.BlockType) policy.Policy { return r.tbl.Lookup(bt) }

// GetBlock returns a copy of a block.
func (r *Repo) GetBlock(id string) (*domain.Block, error) {
	b, ok := r.tx.Block(id)
	if !ok {
		return nil, fmt.Errorf("block %s: %w", id, domain.ErrNotFound)
	}
	return b, nil
}

// ChildrenOf returns the ordered child ids of a block.
func (r *Repo) ChildrenOf(id string) ([]string, error) {
	b, err := r.GetBlock(id)
	if err != nil {
		return nil, err
	}
	list, ok := r.tx.Children(b.ChildrenID)
	if !ok {
		return nil, fmt.Errorf("children of %s: %w", id, domain.ErrNotFound)
	}
	return list, nil
}

// CreateBlock creates a detached block with its own children list and, for
// text-bearing types, a text sequence seeded with seed. Nil data takes the
// type's default payload.
func (r *Repo) CreateBlock(bt domain.BlockType, data map[string]any, seed delta.Delta) (*domain.Block, error) {
	if data == nil {
		data = r.tbl.DefaultData(bt)
	}
	id := uuid.New().String()
	b := &domain.Block{
		ID:         id,
		Type:       bt,
		ChildrenID: id,
		Data:       domain.CloneData(data),
	}
	if err := r.tx.CreateChildren(b.ChildrenID); err != nil {
		return nil, fmt.Errorf("create block: %w", err)
	}
	if r.tbl.TextBearing(bt) {
		b.TextID = id
		if err := r.tx.CreateText(b.TextID, seed); err != nil {
			return nil, fmt.Errorf("create block: %w", err)
		}
	}
	if err := r.tx.PutBlock(b); err != nil {
		return nil, fmt.Errorf("create block: %w", err)
	}
	return b.Clone(), nil
}

// Attach inserts a detached block into parent's children at index. The index
// is clamped to the list bounds.
func (r *Repo) Attach(id, parentID string, index int) error {
	b, err := r.GetBlock(id)
	if err != nil {
		return err
	}
	if b.ParentID != "" || id == r.PageID() {
		return fmt.Errorf("attach %s: already attached: %w", id, domain.ErrInvalidOperation)
	}
	parent, err := r.GetBlock(parentID)
	if err != nil {
		return err
	}
	if parentID == id || r.IsAncestor(id, parentID) {
		return fmt.Errorf("attach %s under its descendant %s: %w", id, parentID, domain.ErrInvalidOperation)
	}
	if err := r.tx.InsertChild(parent.ChildrenID, index, id); err != nil {
		return fmt.Errorf("attach %s: %w", id, err)
	}
	b.ParentID = parentID
	return r.tx.PutBlock(b)
}

// Detach removes a block from its parent's children and returns where it was.
func (r *Repo) Detach(id string) (parentID string, index int, err error) {
	b, err := r.GetBlock(id)
	if err != nil {
		return "", 0, err
	}
	if b.ParentID == "" {
		return "", 0, fmt.Errorf("detach %s: not attached: %w", id, domain.ErrInvalidOperation)
	}
	index, err = r.IndexOf(id)
	if err != nil {
		return "", 0, err
	}
	parent, err := r.GetBlock(b.ParentID)
	if err != nil {
		return "", 0, err
	}
	if err := r.tx.RemoveChild(parent.ChildrenID, index); err != nil {
		return "", 0, fmt.Errorf("detach %s: %w", id, err)
	}
	parentID = b.ParentID
	b.ParentID = ""
	if err := r.tx.PutBlock(b); err != nil {
		return "", 0, err
	}
	return parentID, index, nil
}

// Move detaches a block and attaches it at a new position. The index is
// interpreted after the detach.
func (r *Repo) Move(id, parentID string, index int) error {
	if parentID == id || r.IsAncestor(id, parentID) {
		return fmt.Errorf("move %s under its descendant %s: %w", id, parentID, domain.ErrInvalidOperation)
	}
	if _, _, err := r.Detach(id); err != nil {
		return err
	}
	return r.Attach(id, parentID, index)
}

// Delete removes a block, its text and its empty children list. A block that
// still owns children is refused; callers decide where the children go first.
func (r *Repo) Delete(id string) error {
	if id == r.PageID() {
		return fmt.Errorf("delete root page: %w", domain.ErrInvalidOperation)
	}
	b, err := r.GetBlock(id)
	if err != nil {
		return err
	}
	children, err := r.ChildrenOf(id)
	if err != nil {
		return err
	}
	if len(children) > 0 {
		return fmt.Errorf("delete %s: %d children still attached: %w", id, len(children), domain.ErrInvalidOperation)
	}
	if b.ParentID != "" {
		if _, _, err := r.Detach(id); err != nil {
			return err
		}
	}
	if b.TextID != "" {
		if err := r.tx.RemoveText(b.TextID); err != nil {
			return fmt.Errorf("delete %s: %w", id, err)
		}
	}
	if err := r.tx.RemoveChildren(b.ChildrenID); err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	return r.tx.RemoveBlock(id)
}

// DeleteSubtree deletes a block and all of its descendants, deepest first.
func (r *Repo) DeleteSubtree(id string) error {
	children, err := r.ChildrenOf(id)
	if err != nil {
		return err
	}
	for i := len(children) - 1; i >= 0; i-- {
		if err := r.DeleteSubtree(children[i]); err != nil {
			return err
		}
	}
	return r.Delete(id)
}

// Text returns the delta of a text-bearing block, or nil for blocks without text.
func (r *Repo) Text(id string) (delta.Delta, error) {
	b, err := r.GetBlock(id)
	if err != nil {
		return nil, err
	}
	if b.TextID == "" {
		return nil, nil
	}
	d, ok := r.tx.Text(b.TextID)
	if !ok {
		return nil, fmt.Errorf("text of %s: %w", id, domain.ErrNotFound)
	}
	return d, nil
}

// TextLength returns the plain-text length of a block.
func (r *Repo) TextLength(id string) (int, error) {
	d, err := r.Text(id)
	if err != nil {
		return 0, err
	}
	return delta.Length(d), nil
}

// ApplyDelta composes ops onto the text of a block.
func (r *Repo) ApplyDelta(id string, ops []delta.Op) error {
	b, err := r.GetBlock(id)
	if err != nil {
		return err
	}
	if b.TextID == "" {
		if len(ops) == 0 {
			return nil
		}
		return fmt.Errorf("block %s (%s) carries no text: %w", id, b.Type, domain.ErrInvalidOperation)
	}
	return r.tx.ApplyDelta(b.TextID, ops)
}

// SetData merges patch into the payload of a block. A nil value removes a key.
// It reports whether anything changed.
func (r *Repo) SetData(id string, patch map[string]any) (bool, error) {
	b, err := r.GetBlock(id)
	if err != nil {
		return false, err
	}
	next := domain.CloneData(b.Data)
	for k, v := range patch {
		if v == nil {
			delete(next, k)
			continue
		}
		next[k] = v
	}
	if domain.DataEqual(b.Data, next) {
		return false, nil
	}
	b.Data = next
	return true, r.tx.PutBlock(b)
}

// SetType changes the type and payload of a block, creating or removing its
// text sequence so the text invariant keeps holding. Nil data takes the new
// type's default payload. Children are kept.
func (r *Repo) SetType(id string, bt domain.BlockType, data map[string]any) error {
	b, err := r.GetBlock(id)
	if err != nil {
		return err
	}
	if b.ParentID == "" {
		return fmt.Errorf("set type of root page %s: %w", id, domain.ErrInvalidOperation)
	}
	if data == nil {
		data = r.tbl.DefaultData(bt)
	}
	wantText := r.tbl.TextBearing(bt)
	switch {
	case wantText && b.TextID == "":
		b.TextID = b.ID
		if err := r.tx.CreateText(b.TextID, nil); err != nil {
			return fmt.Errorf("set type of %s: %w", id, err)
		}
	case !wantText && b.TextID != "":
		if err := r.tx.RemoveText(b.TextID); err != nil {
			return fmt.Errorf("set type of %s: %w", id, err)
		}
		b.TextID = ""
	}
	b.Type = bt
	b.Data = domain.CloneData(data)
	return r.tx.PutBlock(b)
}
