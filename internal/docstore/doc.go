package docstore

import (
	"fmt"
	"sync"
	"time"

	"blockdoc/internal/delta"
	"blockdoc/internal/domain"

	"github.com/google/uuid"
)

// Doc is one shared document: a blocks map, a children-lists map and a text
// map, mutated only through transactions.
//
// Writers are serialized by commitMu, which is also held while observers run,
// so observers see changes in commit order. Readers only take mu.
type Doc struct {
	commitMu sync.Mutex

	mu       sync.RWMutex
	id       string
	pageID   string
	version  uint64
	blocks   map[string]*domain.Block
	children map[string][]string
	texts    map[string]delta.Delta

	obsMu     sync.Mutex
	observers map[int]func(*domain.Change)
	nextObs   int
}

// NewDocument creates a document holding a root page with one empty paragraph.
func NewDocument(docID string) *Doc {
	pageID := uuid.New().String()
	paraID := uuid.New().String()
	return Load(&domain.Snapshot{
		DocID:  docID,
		PageID: pageID,
		Blocks: map[string]*domain.Block{
			pageID: {ID: pageID, Type: domain.BlockTypePage, ChildrenID: pageID, Data: map[string]any{}},
			paraID: {ID: paraID, Type: domain.BlockTypeParagraph, ParentID: pageID, ChildrenID: paraID, TextID: paraID, Data: map[string]any{}},
		},
		Children: map[string][]string{
			pageID: {paraID},
			paraID: {},
		},
		Texts: map[string]delta.Delta{
			paraID: {},
		},
	})
}

// Load builds a document from a snapshot. The snapshot is copied.
func Load(s *domain.Snapshot) *Doc {
	c := copySnapshot(s)
	return &Doc{
		id:        c.DocID,
		pageID:    c.PageID,
		version:   c.Version,
		blocks:    c.Blocks,
		children:  c.Children,
		texts:     c.Texts,
		observers: make(map[int]func(*domain.Change)),
	}
}

func (d *Doc) ID() string     { return d.id }
func (d *Doc) PageID() string { return d.pageID }

func (d *Doc) Version() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.version
}

// Block returns a copy of a block.
func (d *Doc) Block(id string) (*domain.Block, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	b, ok := d.blocks[id]
	return b.Clone(), ok
}

// Snapshot returns a deep copy of the current state.
func (d *Doc) Snapshot() *domain.Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return copySnapshot(&domain.Snapshot{
		DocID:     d.id,
		PageID:    d.pageID,
		Version:   d.version,
		Blocks:    d.blocks,
		Children:  d.children,
		Texts:     d.texts,
		UpdatedAt: time.Now().UTC(),
	})
}

// Observe registers fn to receive every committed change. The returned func
// unregisters it. Observers run synchronously and must not start a
// transaction on the same document.
func (d *Doc) Observe(fn func(*domain.Change)) func() {
	d.obsMu.Lock()
	defer d.obsMu.Unlock()
	id := d.nextObs
	d.nextObs++
	d.observers[id] = fn
	return func() {
		d.obsMu.Lock()
		delete(d.observers, id)
		d.obsMu.Unlock()
	}
}

// Transact runs fn against a transaction and commits whatever it applied as
// one change. If fn fails every applied step is rolled back and nothing is
// emitted. A transaction that applied nothing emits nothing and returns nil.
func (d *Doc) Transact(name string, origin domain.Origin, fn func(tx *Tx) error) (*domain.Change, error) {
	d.commitMu.Lock()
	defer d.commitMu.Unlock()

	change, err := d.transact(name, origin, fn)
	if err != nil {
		return nil, err
	}
	d.notify(change)
	return change, nil
}

func (d *Doc) transact(name string, origin domain.Origin, fn func(tx *Tx) error) (*domain.Change, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	tx := &Tx{doc: d, name: name}
	if err := fn(tx); err != nil {
		d.rollback(tx.ops)
		return nil, err
	}
	return d.seal(tx.name, origin, tx.ops), nil
}

// Plan runs fn against a transaction, then rolls it back and returns the
// primitive ops it produced. Nothing is committed or emitted.
func (d *Doc) Plan(fn func(tx *Tx) error) ([]domain.Op, error) {
	d.commitMu.Lock()
	defer d.commitMu.Unlock()
	ops, _, err := d.plan("", fn)
	return ops, err
}

func (d *Doc) plan(name string, fn func(tx *Tx) error) ([]domain.Op, string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	tx := &Tx{doc: d, name: name}
	err := fn(tx)
	d.rollback(tx.ops)
	if err != nil {
		return nil, "", err
	}
	return tx.ops, tx.name, nil
}

// Commit applies a planned op list atomically. Ops that no longer fit the
// current state fail the whole commit.
func (d *Doc) Commit(name string, origin domain.Origin, ops []domain.Op) (*domain.Change, error) {
	return d.CommitChecked(name, origin, ops, nil)
}

// CommitChecked is Commit with check run against the resulting state before
// the change is sealed. When check fails the ops are rolled back, the
// version stays put and observers hear nothing. check must not keep the
// snapshot it is given.
func (d *Doc) CommitChecked(name string, origin domain.Origin, ops []domain.Op, check func(*domain.Snapshot) error) (*domain.Change, error) {
	d.commitMu.Lock()
	defer d.commitMu.Unlock()
	return d.commit(name, origin, ops, check)
}

func (d *Doc) commit(name string, origin domain.Origin, ops []domain.Op, check func(*domain.Snapshot) error) (*domain.Change, error) {
	change, err := d.apply(name, origin, ops, check)
	if err != nil {
		return nil, err
	}
	d.notify(change)
	return change, nil
}

func (d *Doc) apply(name string, origin domain.Origin, ops []domain.Op, check func(*domain.Snapshot) error) (*domain.Change, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	applied := make([]domain.Op, 0, len(ops))
	for i, op := range ops {
		rec, err := d.exec(op)
		if err != nil {
			d.rollback(applied)
			return nil, fmt.Errorf("commit %s: op %d (%s %s): %w", name, i, op.Kind, op.Key, err)
		}
		applied = append(applied, rec)
	}
	if check != nil && len(applied) > 0 {
		if err := check(d.view()); err != nil {
			d.rollback(applied)
			return nil, err
		}
	}
	return d.seal(name, origin, applied), nil
}

// view shares the live maps without copying. Caller holds mu.
func (d *Doc) view() *domain.Snapshot {
	return &domain.Snapshot{
		DocID:    d.id,
		PageID:   d.pageID,
		Version:  d.version,
		Blocks:   d.blocks,
		Children: d.children,
		Texts:    d.texts,
	}
}

// PlanAndCommit plans fn and commits the result without letting another
// writer in between. The change carries the name the Tx ended up with.
func (d *Doc) PlanAndCommit(name string, origin domain.Origin, fn func(tx *Tx) error) (*domain.Change, error) {
	d.commitMu.Lock()
	defer d.commitMu.Unlock()
	ops, name, err := d.plan(name, fn)
	if err != nil {
		return nil, err
	}
	return d.commit(name, origin, ops, nil)
}

// seal bumps the version for a non-empty op list. Caller holds mu.
func (d *Doc) seal(name string, origin domain.Origin, ops []domain.Op) *domain.Change {
	if len(ops) == 0 {
		return nil
	}
	d.version++
	return &domain.Change{
		ID:        uuid.New().String(),
		DocID:     d.id,
		Name:      name,
		Origin:    origin,
		Version:   d.version,
		Ops:       ops,
		CreatedAt: time.Now().UTC(),
	}
}

func (d *Doc) notify(change *domain.Change) {
	if change == nil {
		return
	}
	d.obsMu.Lock()
	fns := make([]func(*domain.Change), 0, len(d.observers))
	for i := 0; i < d.nextObs; i++ {
		if fn, ok := d.observers[i]; ok {
			fns = append(fns, fn)
		}
	}
	d.obsMu.Unlock()

	for _, fn := range fns {
		fn(change)
	}
}

// rollback undoes applied ops in reverse. Caller holds mu.
func (d *Doc) rollback(applied []domain.Op) {
	for i := len(applied) - 1; i >= 0; i-- {
		if err := d.applyOp(applied[i].Invert()); err != nil {
			panic(fmt.Sprintf("docstore: rollback of %s %s failed: %v", applied[i].Kind, applied[i].Key, err))
		}
	}
}

// exec applies op and returns it with its inverse information taken from the
// current state, so the recorded op always inverts exactly. Caller holds mu.
func (d *Doc) exec(op domain.Op) (domain.Op, error) {
	switch op.Kind {
	case domain.OpSetBlock:
		op.Prev = d.blocks[op.Key].Clone()
		op.Block = op.Block.Clone()
	case domain.OpSetChildren:
		if !op.Create {
			op.Items = append([]string{}, d.children[op.Key]...)
		}
	case domain.OpSetText:
		if !op.Create {
			op.Text = delta.Clone(d.texts[op.Key])
		}
	case domain.OpApplyDelta:
		op.Inverse = delta.Invert(d.texts[op.Key], op.Delta)
	}
	if err := d.applyOp(op); err != nil {
		return domain.Op{}, err
	}
	return op, nil
}

// applyOp mutates state. Caller holds mu.
func (d *Doc) applyOp(op domain.Op) error {
	switch op.Kind {
	case domain.OpSetBlock:
		if op.Block == nil {
			if _, ok := d.blocks[op.Key]; !ok {
				return fmt.Errorf("block %s: %w", op.Key, domain.ErrNotFound)
			}
			delete(d.blocks, op.Key)
			return nil
		}
		if op.Block.ID != op.Key {
			return fmt.Errorf("block key %s holds %s: %w", op.Key, op.Block.ID, domain.ErrInvalidOperation)
		}
		d.blocks[op.Key] = op.Block.Clone()

	case domain.OpSetChildren:
		_, exists := d.children[op.Key]
		if op.Create {
			if exists {
				return fmt.Errorf("children %s already exists: %w", op.Key, domain.ErrInvalidOperation)
			}
			d.children[op.Key] = append([]string{}, op.Items...)
			return nil
		}
		if !exists {
			return fmt.Errorf("children %s: %w", op.Key, domain.ErrNotFound)
		}
		delete(d.children, op.Key)

	case domain.OpSetText:
		_, exists := d.texts[op.Key]
		if op.Create {
			if exists {
				return fmt.Errorf("text %s already exists: %w", op.Key, domain.ErrInvalidOperation)
			}
			d.texts[op.Key] = delta.Clone(op.Text)
			return nil
		}
		if !exists {
			return fmt.Errorf("text %s: %w", op.Key, domain.ErrNotFound)
		}
		delete(d.texts, op.Key)

	case domain.OpInsertChild:
		list, ok := d.children[op.Key]
		if !ok {
			return fmt.Errorf("children %s: %w", op.Key, domain.ErrNotFound)
		}
		if op.Index < 0 || op.Index > len(list) {
			return fmt.Errorf("insert at %d of %d: %w", op.Index, len(list), domain.ErrInvalidOperation)
		}
		d.children[op.Key] = insertAt(list, op.Index, op.Child)

	case domain.OpRemoveChild:
		list, ok := d.children[op.Key]
		if !ok {
			return fmt.Errorf("children %s: %w", op.Key, domain.ErrNotFound)
		}
		if op.Index < 0 || op.Index >= len(list) || list[op.Index] != op.Child {
			return fmt.Errorf("remove %s at %d: %w", op.Child, op.Index, domain.ErrInvalidOperation)
		}
		d.children[op.Key] = removeAt(list, op.Index)

	case domain.OpApplyDelta:
		text, ok := d.texts[op.Key]
		if !ok {
			return fmt.Errorf("text %s: %w", op.Key, domain.ErrNotFound)
		}
		next, err := delta.Apply(text, op.Delta)
		if err != nil {
			return err
		}
		d.texts[op.Key] = next

	default:
		return fmt.Errorf("unknown op kind %q: %w", op.Kind, domain.ErrInvalidOperation)
	}
	return nil
}

func insertAt(list []string, index int, id string) []string {
	out := make([]string, 0, len(list)+1)
	out = append(out, list[:index]...)
	out = append(out, id)
	return append(out, list[index:]...)
}

func removeAt(list []string, index int) []string {
	out := make([]string, 0, len(list)-1)
	out = append(out, list[:index]...)
	return append(out, list[index+1:]...)
}

func copySnapshot(s *domain.Snapshot) *domain.Snapshot {
	out := &domain.Snapshot{
		DocID:     s.DocID,
		PageID:    s.PageID,
		Version:   s.Version,
		UpdatedAt: s.UpdatedAt,
		Blocks:    make(map[string]*domain.Block, len(s.Blocks)),
		Children:  make(map[string][]string, len(s.Children)),
		Texts:     make(map[string]delta.Delta, len(s.Texts)),
	}
	for k, b := range s.Blocks {
		out.Blocks[k] = b.Clone()
	}
	for k, list := range s.Children {
		out.Children[k] = append([]string{}, list...)
	}
	for k, t := range s.Texts {
		out.Texts[k] = delta.Clone(t)
	}
	return out
}
