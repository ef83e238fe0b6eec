package policy

import (
	"fmt"
	"slices"
	"sync"

	"blockdoc/internal/domain"
)

// SplitBehavior says where the continuation block of an Enter goes.
type SplitBehavior string

const (
	SplitSibling SplitBehavior = "sibling"
	SplitChild   SplitBehavior = "child"
)

// Policy is the structural capability record of one block type.
type Policy struct {
	CanHaveChildren     bool             `yaml:"canHaveChildren" json:"canHaveChildren"`
	SplitBehavior       SplitBehavior    `yaml:"splitBehavior" json:"splitBehavior"`
	NextLineType        domain.BlockType `yaml:"nextLineType" json:"nextLineType"`
	DefaultData         map[string]any   `yaml:"defaultData" json:"defaultData"`
	TextBearing         bool             `yaml:"textBearing" json:"textBearing"`
	ChildrenFollowSplit bool             `yaml:"childrenFollowSplit" json:"childrenFollowSplit"`
	// SameTypeAbove makes Enter at offset 0 insert a block of this type above
	// instead of a default block.
	SameTypeAbove bool `yaml:"sameTypeAbove" json:"sameTypeAbove"`
	// CollapseKey names a boolean data field; while it is true a child split
	// becomes a sibling split of the same type.
	CollapseKey      string `yaml:"collapseKey" json:"collapseKey,omitempty"`
	SoftBreakOnEnter bool   `yaml:"softBreakOnEnter" json:"softBreakOnEnter"`
}

// ResolveSplit returns the effective split placement and continuation type
// for a block of type self carrying data.
func (p Policy) ResolveSplit(self domain.BlockType, data map[string]any) (SplitBehavior, domain.BlockType) {
	if p.CollapseKey != "" {
		if collapsed, _ := data[p.CollapseKey].(bool); collapsed {
			return SplitSibling, self
		}
	}
	next := p.NextLineType
	if next == "" {
		next = domain.DefaultBlockType
	}
	if p.SplitBehavior == SplitChild {
		return SplitChild, next
	}
	return SplitSibling, next
}

// ChildrenMigrate reports whether a split hands the children to the new line.
func (p Policy) ChildrenMigrate(behavior SplitBehavior) bool {
	return behavior == SplitSibling && p.ChildrenFollowSplit
}

func (p Policy) clone() Policy {
	p.DefaultData = domain.CloneData(p.DefaultData)
	return p
}

// Table maps block types to their policy. Lookups are safe while the table is
// being replaced by a reload.
type Table struct {
	mu       sync.RWMutex
	entries  map[domain.BlockType]Policy
	fallback Policy
}

// New builds a table from explicit entries and the policy used for unknown types.
func New(entries map[domain.BlockType]Policy, fallback Policy) *Table {
	t := &Table{entries: make(map[domain.BlockType]Policy, len(entries)), fallback: fallback.clone()}
	for k, v := range entries {
		t.entries[k] = v.clone()
	}
	return t
}

// Lookup returns the policy of bt, or the fallback for unknown types.
func (t *Table) Lookup(bt domain.BlockType) Policy {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if p, ok := t.entries[bt]; ok {
		return p.clone()
	}
	return t.fallback.clone()
}

// Known reports whether bt has its own entry.
func (t *Table) Known(bt domain.BlockType) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.entries[bt]
	return ok
}

func (t *Table) TextBearing(bt domain.BlockType) bool {
	return t.Lookup(bt).TextBearing
}

func (t *Table) CanHaveChildren(bt domain.BlockType) bool {
	return t.Lookup(bt).CanHaveChildren
}

// DefaultData returns a fresh copy of the default payload of bt.
func (t *Table) DefaultData(bt domain.BlockType) map[string]any {
	return t.Lookup(bt).DefaultData
}

// Types lists the configured block types in sorted order.
func (t *Table) Types() []domain.BlockType {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]domain.BlockType, 0, len(t.entries))
	for k := range t.entries {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// Replace swaps in the entries of other.
func (t *Table) Replace(other *Table) {
	other.mu.RLock()
	entries := make(map[domain.BlockType]Policy, len(other.entries))
	for k, v := range other.entries {
		entries[k] = v.clone()
	}
	fallback := other.fallback.clone()
	other.mu.RUnlock()

	t.mu.Lock()
	t.entries = entries
	t.fallback = fallback
	t.mu.Unlock()
}

// Compatible returns an error when next disagrees with t about which types
// carry text. Documents already open were validated against t.
func (t *Table) Compatible(next *Table) error {
	cur, curFallback := t.snapshot()
	nxt, nxtFallback := next.snapshot()
	if curFallback.TextBearing != nxtFallback.TextBearing {
		return fmt.Errorf("fallback: textBearing changes from %t to %t", curFallback.TextBearing, nxtFallback.TextBearing)
	}
	types := make([]domain.BlockType, 0, len(cur)+len(nxt))
	for bt := range cur {
		types = append(types, bt)
	}
	for bt := range nxt {
		types = append(types, bt)
	}
	slices.Sort(types)
	for _, bt := range slices.Compact(types) {
		if before, after := t.TextBearing(bt), next.TextBearing(bt); before != after {
			return fmt.Errorf("%s: textBearing changes from %t to %t", bt, before, after)
		}
	}
	return nil
}

func (t *Table) snapshot() (map[domain.BlockType]Policy, Policy) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	entries := make(map[domain.BlockType]Policy, len(t.entries))
	for k, v := range t.entries {
		entries[k] = v.clone()
	}
	return entries, t.fallback.clone()
}
