package domain

import (
	"time"

	"blockdoc/internal/delta"
)

// Origin identifies where a change came from.
type Origin string

const (
	OriginLocal  Origin = "local"
	OriginRemote Origin = "remote"
	OriginUndo   Origin = "undo"
	OriginRedo   Origin = "redo"
	OriginReplay Origin = "replay"
)

type OpKind string

const (
	OpSetBlock    OpKind = "set_block"    // blocks map set; nil Block removes
	OpSetChildren OpKind = "set_children" // create or remove a children list
	OpSetText     OpKind = "set_text"     // create or remove a text sequence
	OpInsertChild OpKind = "insert_child" // children list insert
	OpRemoveChild OpKind = "remove_child" // children list delete
	OpApplyDelta  OpKind = "apply_delta"  // text sequence delta apply
)

// Op is one primitive store mutation. Every op carries enough of the prior
// state to be inverted without consulting the store.
type Op struct {
	Kind    OpKind      `json:"kind"`
	Key     string      `json:"key"`
	Block   *Block      `json:"block,omitempty"`
	Prev    *Block      `json:"prev,omitempty"`
	Create  bool        `json:"create,omitempty"`
	Items   []string    `json:"items,omitempty"`
	Text    delta.Delta `json:"text,omitempty"`
	Index   int         `json:"index,omitempty"`
	Child   string      `json:"child,omitempty"`
	Delta   []delta.Op  `json:"delta,omitempty"`
	Inverse []delta.Op  `json:"inverse,omitempty"`
}

// Invert returns the op that undoes o.
func (o Op) Invert() Op {
	switch o.Kind {
	case OpSetBlock:
		return Op{Kind: OpSetBlock, Key: o.Key, Block: o.Prev, Prev: o.Block}
	case OpSetChildren, OpSetText:
		inv := o
		inv.Create = !o.Create
		return inv
	case OpInsertChild:
		return Op{Kind: OpRemoveChild, Key: o.Key, Index: o.Index, Child: o.Child}
	case OpRemoveChild:
		return Op{Kind: OpInsertChild, Key: o.Key, Index: o.Index, Child: o.Child}
	case OpApplyDelta:
		return Op{Kind: OpApplyDelta, Key: o.Key, Delta: o.Inverse, Inverse: o.Delta}
	}
	return o
}

// InvertOps returns the inverse of an op list, in reverse order.
func InvertOps(ops []Op) []Op {
	out := make([]Op, 0, len(ops))
	for i := len(ops) - 1; i >= 0; i-- {
		out = append(out, ops[i].Invert())
	}
	return out
}

// Change is one committed transaction.
type Change struct {
	ID        string    `json:"id"`
	DocID     string    `json:"docId"`
	Name      string    `json:"name"`
	Origin    Origin    `json:"origin"`
	Version   uint64    `json:"version"`
	Ops       []Op      `json:"ops"`
	CreatedAt time.Time `json:"createdAt"`
}
