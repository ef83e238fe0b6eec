// Package engine implements the structural editing operations of a block
// document: split, merge, indent, lift, turn-into and range deletion. Each
// public operation is planned against a transaction and committed as one
// change carrying the operation name.
package engine

import (
	"fmt"
	"slices"
	"time"

	"blockdoc/internal/delta"
	"blockdoc/internal/docstore"
	"blockdoc/internal/domain"
	"blockdoc/internal/policy"
	"blockdoc/internal/repo"

	"github.com/rs/zerolog"
)

// Operation outcomes reported to a Recorder.
const (
	OutcomeCommitted = "committed"
	OutcomeNoop      = "noop"
	OutcomeFailed    = "failed"
)

// Recorder receives one observation per engine call.
type Recorder interface {
	ObserveOperation(name, outcome string, elapsed time.Duration)
}

// Result is the outcome of an operation. Change is nil when the operation
// found nothing to do.
type Result struct {
	Selection domain.Range   `json:"selection"`
	Change    *domain.Change `json:"change,omitempty"`
}

type Engine struct {
	doc *docstore.Doc
	tbl *policy.Table
	log zerolog.Logger
	rec Recorder
}

type Option func(*Engine)

func WithLogger(log zerolog.Logger) Option {
	return func(e *Engine) { e.log = log.With().Str("component", "engine").Logger() }
}

func WithRecorder(rec Recorder) Option {
	return func(e *Engine) { e.rec = rec }
}

func New(doc *docstore.Doc, tbl *policy.Table, opts ...Option) *Engine {
	e := &Engine{doc: doc, tbl: tbl, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Doc() *docstore.Doc { return e.doc }

func (e *Engine) Table() *policy.Table { return e.tbl }

// op is the planning context handed to operation bodies.
type op struct {
	*repo.Repo
	tx *docstore.Tx
}

// rename relabels the transaction when a gesture resolves to another
// operation, so undo history shows what actually happened.
func (o *op) rename(name string) { o.tx.Rename(name) }

// run plans body inside one transaction and commits it. On failure the
// document is untouched and the caller's selection is returned unchanged.
func (e *Engine) run(name string, sel domain.Range, body func(o *op) (domain.Range, error)) (Result, error) {
	start := time.Now()
	next := sel
	change, err := e.doc.PlanAndCommit(name, domain.OriginLocal, func(tx *docstore.Tx) error {
		s, err := body(&op{Repo: repo.New(tx, e.tbl), tx: tx})
		if err != nil {
			return err
		}
		next = s
		return nil
	})

	outcome := OutcomeCommitted
	switch {
	case err != nil:
		outcome = OutcomeFailed
		e.log.Debug().Err(err).Str("op", name).Msg("operation failed")
	case change == nil:
		outcome = OutcomeNoop
	default:
		name = change.Name
		e.log.Debug().Str("op", name).Uint64("version", change.Version).Int("ops", len(change.Ops)).Msg("operation committed")
	}
	if e.rec != nil {
		e.rec.ObserveOperation(name, outcome, time.Since(start))
	}
	if err != nil {
		return Result{Selection: sel}, err
	}
	return Result{Selection: next, Change: change}, nil
}

// ── Planning helpers ───────────────────────────────────────

// point resolves a selection point to its block and an offset clamped to the
// block's text.
func (o *op) point(p domain.Point) (*domain.Block, int, error) {
	b, err := o.GetBlock(p.BlockID)
	if err != nil {
		return nil, 0, err
	}
	n, err := o.TextLength(b.ID)
	if err != nil {
		return nil, 0, err
	}
	return b, max(0, min(p.Offset, n)), nil
}

// ordered returns the range endpoints in document order with clamped offsets.
func (o *op) ordered(rng domain.Range) (start, end domain.Point, err error) {
	_, ao, err := o.point(rng.Anchor)
	if err != nil {
		return start, end, err
	}
	_, fo, err := o.point(rng.Focus)
	if err != nil {
		return start, end, err
	}
	a := domain.Point{BlockID: rng.Anchor.BlockID, Offset: ao}
	f := domain.Point{BlockID: rng.Focus.BlockID, Offset: fo}
	if a.BlockID == f.BlockID {
		if a.Offset > f.Offset {
			a, f = f, a
		}
		return a, f, nil
	}
	order, err := o.DocumentOrder(o.PageID())
	if err != nil {
		return start, end, err
	}
	ai, fi := slices.Index(order, a.BlockID), slices.Index(order, f.BlockID)
	if ai < 0 || fi < 0 {
		return start, end, fmt.Errorf("selection outside the document: %w", domain.ErrNotFound)
	}
	if ai > fi {
		a, f = f, a
	}
	return a, f, nil
}

// touched lists the blocks a range covers in document order, keeping only
// those whose parent is not itself covered.
func (o *op) touched(rng domain.Range) ([]string, error) {
	start, end, err := o.ordered(rng)
	if err != nil {
		return nil, err
	}
	if start.BlockID == end.BlockID {
		return []string{start.BlockID}, nil
	}
	order, err := o.DocumentOrder(o.PageID())
	if err != nil {
		return nil, err
	}
	span := order[slices.Index(order, start.BlockID) : slices.Index(order, end.BlockID)+1]
	var out []string
	for _, id := range span {
		covered := false
		for _, other := range out {
			if o.IsAncestor(other, id) {
				covered = true
				break
			}
		}
		if !covered {
			out = append(out, id)
		}
	}
	return out, nil
}

// replace swaps [at, at+n) of a block's text for insert.
func (o *op) replace(id string, at, n int, insert delta.Delta) error {
	text, err := o.Text(id)
	if err != nil {
		return err
	}
	return o.ApplyDelta(id, delta.DiffForReplace(text, at, n, insert))
}

// adoptChildren moves every child of source under target. A target that may
// own children takes them at the source's slot when source is its child, and
// at the front otherwise; any other target gets them as following siblings.
func (o *op) adoptChildren(source, target string) error {
	children, err := o.ChildrenOf(source)
	if err != nil || len(children) == 0 {
		return err
	}
	tb, err := o.GetBlock(target)
	if err != nil {
		return err
	}

	parent, index := target, 0
	if o.Policy(tb.Type).CanHaveChildren {
		sb, err := o.GetBlock(source)
		if err != nil {
			return err
		}
		if sb.ParentID == target {
			if index, err = o.IndexOf(source); err != nil {
				return err
			}
		}
	} else {
		if tb.ParentID == "" {
			return fmt.Errorf("lift children past root %s: %w", target, domain.ErrInvalidOperation)
		}
		parent = tb.ParentID
		i, err := o.IndexOf(target)
		if err != nil {
			return err
		}
		index = i + 1
	}

	for i, c := range children {
		if err := o.Move(c, parent, index+i); err != nil {
			return err
		}
	}
	return nil
}

// merge appends source's text to target, hands over its children and deletes
// it. It returns target's length before the merge.
func (o *op) merge(target, source string) (int, error) {
	tb, err := o.GetBlock(target)
	if err != nil {
		return 0, err
	}
	sb, err := o.GetBlock(source)
	if err != nil {
		return 0, err
	}
	if o.IsAncestor(source, target) {
		return 0, fmt.Errorf("merge %s into its descendant %s: %w", source, target, domain.ErrInvalidOperation)
	}
	if tb.TextID == "" || sb.TextID == "" {
		return 0, fmt.Errorf("merge %s into %s: both need text: %w", source, target, domain.ErrInvalidOperation)
	}
	tt, err := o.Text(target)
	if err != nil {
		return 0, err
	}
	st, err := o.Text(source)
	if err != nil {
		return 0, err
	}
	oldLen := delta.Length(tt)
	if err := o.ApplyDelta(target, delta.DiffForReplace(tt, oldLen, 0, st)); err != nil {
		return 0, err
	}
	if err := o.adoptChildren(source, target); err != nil {
		return 0, err
	}
	return oldLen, o.Delete(source)
}

// lift makes a nested block the next sibling of its parent. It reports false
// for blocks directly under the page.
func (o *op) lift(id string) (bool, error) {
	b, err := o.GetBlock(id)
	if err != nil {
		return false, err
	}
	if b.ParentID == "" || b.ParentID == o.PageID() {
		return false, nil
	}
	parent, err := o.GetBlock(b.ParentID)
	if err != nil {
		return false, err
	}
	pi, err := o.IndexOf(parent.ID)
	if err != nil {
		return false, err
	}
	return true, o.Move(id, parent.ParentID, pi+1)
}

// isLastLeaf reports whether a nested block has no children and no following
// sibling, the shape in which Enter and Backspace lift instead of editing.
func (o *op) isLastLeaf(id string) (bool, error) {
	nested, err := o.IsNested(id)
	if err != nil || !nested {
		return false, err
	}
	next, err := o.NextSibling(id)
	if err != nil || next != "" {
		return false, err
	}
	children, err := o.ChildrenOf(id)
	return len(children) == 0, err
}
