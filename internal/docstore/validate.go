package docstore

import (
	"fmt"

	"blockdoc/internal/domain"
)

// Validate checks the tree invariants of a snapshot: a single parentless page root,
// every other block listed exactly once under its parent, no cycles, no
// dangling or duplicate children, and a text sequence iff the type is
// text-bearing.
func Validate(s *domain.Snapshot, textBearing func(domain.BlockType) bool) error {
	root, ok := s.Blocks[s.PageID]
	if !ok {
		return fmt.Errorf("root %s missing", s.PageID)
	}
	if root.ParentID != "" {
		return fmt.Errorf("root %s has parent %s", root.ID, root.ParentID)
	}
	if root.Type != domain.BlockTypePage {
		return fmt.Errorf("root %s is a %s, not a page", root.ID, root.Type)
	}

	seen := map[string]bool{}
	var walk func(id string, depth int) error
	walk = func(id string, depth int) error {
		if depth > len(s.Blocks) {
			return fmt.Errorf("cycle through %s", id)
		}
		b := s.Blocks[id]
		list, ok := s.Children[b.ChildrenID]
		if !ok {
			return fmt.Errorf("block %s: children list %s missing", id, b.ChildrenID)
		}
		for _, cid := range list {
			child, ok := s.Blocks[cid]
			if !ok {
				return fmt.Errorf("block %s: dangling child %s", id, cid)
			}
			if seen[cid] {
				return fmt.Errorf("block %s listed more than once", cid)
			}
			seen[cid] = true
			if child.ParentID != id {
				return fmt.Errorf("block %s listed under %s but parent is %q", cid, id, child.ParentID)
			}
			if err := walk(cid, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	seen[root.ID] = true
	if err := walk(root.ID, 0); err != nil {
		return err
	}

	texts := map[string]bool{}
	lists := map[string]bool{}
	for id, b := range s.Blocks {
		if !seen[id] {
			return fmt.Errorf("block %s is unreachable from the root", id)
		}
		if b.ID != id {
			return fmt.Errorf("block key %s holds id %s", id, b.ID)
		}
		lists[b.ChildrenID] = true
		wantText := textBearing(b.Type)
		switch {
		case wantText && b.TextID == "":
			return fmt.Errorf("block %s (%s) has no text", id, b.Type)
		case !wantText && b.TextID != "":
			return fmt.Errorf("block %s (%s) must not carry text", id, b.Type)
		}
		if b.TextID != "" {
			if _, ok := s.Texts[b.TextID]; !ok {
				return fmt.Errorf("block %s: text %s missing", id, b.TextID)
			}
			if texts[b.TextID] {
				return fmt.Errorf("text %s shared by several blocks", b.TextID)
			}
			texts[b.TextID] = true
		}
	}
	for id := range s.Texts {
		if !texts[id] {
			return fmt.Errorf("text %s has no block", id)
		}
	}
	for id := range s.Children {
		if !lists[id] {
			return fmt.Errorf("children list %s has no block", id)
		}
	}
	return nil
}
