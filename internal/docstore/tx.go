package docstore

import (
	"fmt"

	"blockdoc/internal/delta"
	"blockdoc/internal/domain"
)

// Tx is an open transaction. Every write is applied immediately, so later
// reads inside the same transaction see it, and recorded for commit or
// rollback. A Tx must not be used after its callback returns.
type Tx struct {
	doc  *Doc
	name string
	ops  []domain.Op
}

// Name is the label the transaction will be committed under.
func (tx *Tx) Name() string { return tx.name }

// Rename relabels the transaction, e.g. when an Enter turns out to be a lift.
func (tx *Tx) Rename(name string) { tx.name = name }

// Ops returns the ops applied so far.
func (tx *Tx) Ops() []domain.Op {
	return append([]domain.Op(nil), tx.ops...)
}

// PageID is the root block id of the document.
func (tx *Tx) PageID() string {
	return tx.doc.pageID
}

func (tx *Tx) apply(op domain.Op) error {
	rec, err := tx.doc.exec(op)
	if err != nil {
		return err
	}
	tx.ops = append(tx.ops, rec)
	return nil
}

// ── Reads ──────────────────────────────────────────────────

// Block returns a copy of a block.
func (tx *Tx) Block(id string) (*domain.Block, bool) {
	b, ok := tx.doc.blocks[id]
	return b.Clone(), ok
}

// Children returns a copy of a children list.
func (tx *Tx) Children(listID string) ([]string, bool) {
	list, ok := tx.doc.children[listID]
	if !ok {
		return nil, false
	}
	return append([]string{}, list...), true
}

// Text returns a copy of a text sequence.
func (tx *Tx) Text(textID string) (delta.Delta, bool) {
	t, ok := tx.doc.texts[textID]
	if !ok {
		return nil, false
	}
	return delta.Clone(t), true
}

// ── Writes ─────────────────────────────────────────────────

// PutBlock inserts or replaces a block record.
func (tx *Tx) PutBlock(b *domain.Block) error {
	if b == nil || b.ID == "" {
		return fmt.Errorf("put block without id: %w", domain.ErrInvalidOperation)
	}
	return tx.apply(domain.Op{Kind: domain.OpSetBlock, Key: b.ID, Block: b})
}

// RemoveBlock drops a block record.
func (tx *Tx) RemoveBlock(id string) error {
	return tx.apply(domain.Op{Kind: domain.OpSetBlock, Key: id})
}

// CreateChildren creates an empty children list.
func (tx *Tx) CreateChildren(listID string) error {
	return tx.apply(domain.Op{Kind: domain.OpSetChildren, Key: listID, Create: true})
}

// RemoveChildren drops a children list.
func (tx *Tx) RemoveChildren(listID string) error {
	return tx.apply(domain.Op{Kind: domain.OpSetChildren, Key: listID})
}

// CreateText creates a text sequence seeded with seed.
func (tx *Tx) CreateText(textID string, seed delta.Delta) error {
	return tx.apply(domain.Op{Kind: domain.OpSetText, Key: textID, Create: true, Text: delta.Normalize(seed)})
}

// RemoveText drops a text sequence.
func (tx *Tx) RemoveText(textID string) error {
	return tx.apply(domain.Op{Kind: domain.OpSetText, Key: textID})
}

// InsertChild inserts childID into a children list. index is clamped.
func (tx *Tx) InsertChild(listID string, index int, childID string) error {
	list, ok := tx.doc.children[listID]
	if !ok {
		return fmt.Errorf("children %s: %w", listID, domain.ErrNotFound)
	}
	index = max(0, min(index, len(list)))
	return tx.apply(domain.Op{Kind: domain.OpInsertChild, Key: listID, Index: index, Child: childID})
}

// RemoveChild removes the entry at index from a children list.
func (tx *Tx) RemoveChild(listID string, index int) error {
	list, ok := tx.doc.children[listID]
	if !ok {
		return fmt.Errorf("children %s: %w", listID, domain.ErrNotFound)
	}
	if index < 0 || index >= len(list) {
		return fmt.Errorf("remove child %d of %d: %w", index, len(list), domain.ErrInvalidOperation)
	}
	return tx.apply(domain.Op{Kind: domain.OpRemoveChild, Key: listID, Index: index, Child: list[index]})
}

// ApplyDelta composes ops onto a text sequence. An empty op list is a no-op.
func (tx *Tx) ApplyDelta(textID string, ops []delta.Op) error {
	if _, ok := tx.doc.texts[textID]; !ok {
		return fmt.Errorf("text %s: %w", textID, domain.ErrNotFound)
	}
	if len(ops) == 0 {
		return nil
	}
	return tx.apply(domain.Op{Kind: domain.OpApplyDelta, Key: textID, Delta: ops})
}
