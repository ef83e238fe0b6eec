package docstore

import (
	"fmt"
	"sync"

	"blockdoc/internal/domain"
)

// DefaultUndoLimit bounds the undo stack when no limit is given.
const DefaultUndoLimit = 100

type undoEntry struct {
	name string
	ops  []domain.Op
}

// UndoManager groups local changes into undo units, one per transaction.
// Remote and replayed changes are not tracked.
type UndoManager struct {
	doc   *Doc
	limit int

	mu   sync.Mutex
	undo []undoEntry
	redo []undoEntry

	stop func()
}

// NewUndoManager starts tracking local changes on doc.
func NewUndoManager(doc *Doc, limit int) *UndoManager {
	if limit <= 0 {
		limit = DefaultUndoLimit
	}
	u := &UndoManager{doc: doc, limit: limit}
	u.stop = doc.Observe(u.record)
	return u
}

func (u *UndoManager) record(c *domain.Change) {
	if c.Origin != domain.OriginLocal {
		return
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.undo = append(u.undo, undoEntry{name: c.Name, ops: append([]domain.Op(nil), c.Ops...)})
	if len(u.undo) > u.limit {
		u.undo = u.undo[len(u.undo)-u.limit:]
	}
	u.redo = nil
}

func (u *UndoManager) CanUndo() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.undo) > 0
}

func (u *UndoManager) CanRedo() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.redo) > 0
}

// Labels returns the operation names on both stacks, oldest first.
func (u *UndoManager) Labels() (undo, redo []string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, e := range u.undo {
		undo = append(undo, e.name)
	}
	for _, e := range u.redo {
		redo = append(redo, e.name)
	}
	return undo, redo
}

// Undo reverts the most recent local transaction. It returns nil when there
// is nothing to undo. If the inverse no longer applies (a remote change
// touched the same blocks) the entry is kept and the error returned.
func (u *UndoManager) Undo() (*domain.Change, error) {
	u.mu.Lock()
	if len(u.undo) == 0 {
		u.mu.Unlock()
		return nil, nil
	}
	e := u.undo[len(u.undo)-1]
	u.undo = u.undo[:len(u.undo)-1]
	u.mu.Unlock()

	change, err := u.doc.Commit(e.name, domain.OriginUndo, domain.InvertOps(e.ops))
	if err != nil {
		u.mu.Lock()
		u.undo = append(u.undo, e)
		u.mu.Unlock()
		return nil, fmt.Errorf("undo %s: %w", e.name, err)
	}

	u.mu.Lock()
	u.redo = append(u.redo, e)
	u.mu.Unlock()
	return change, nil
}

// Redo re-applies the most recently undone transaction.
func (u *UndoManager) Redo() (*domain.Change, error) {
	u.mu.Lock()
	if len(u.redo) == 0 {
		u.mu.Unlock()
		return nil, nil
	}
	e := u.redo[len(u.redo)-1]
	u.redo = u.redo[:len(u.redo)-1]
	u.mu.Unlock()

	change, err := u.doc.Commit(e.name, domain.OriginRedo, e.ops)
	if err != nil {
		u.mu.Lock()
		u.redo = append(u.redo, e)
		u.mu.Unlock()
		return nil, fmt.Errorf("redo %s: %w", e.name, err)
	}

	u.mu.Lock()
	u.undo = append(u.undo, e)
	if len(u.undo) > u.limit {
		u.undo = u.undo[len(u.undo)-u.limit:]
	}
	u.mu.Unlock()
	return change, nil
}

// Clear drops both stacks.
func (u *UndoManager) Clear() {
	u.mu.Lock()
	u.undo, u.redo = nil, nil
	u.mu.Unlock()
}

// Close stops tracking.
func (u *UndoManager) Close() {
	u.stop()
}
