package domain

import (
	"time"

	"blockdoc/internal/delta"
)

// Snapshot is the complete state of one document.
type Snapshot struct {
	DocID     string                 `json:"docId"`
	PageID    string                 `json:"pageId"`
	Version   uint64                 `json:"version"`
	Blocks    map[string]*Block      `json:"blocks"`
	Children  map[string][]string    `json:"children"`
	Texts     map[string]delta.Delta `json:"texts"`
	UpdatedAt time.Time              `json:"updatedAt"`
}

// DocumentInfo is the listing view of a stored snapshot.
type DocumentInfo struct {
	DocID     string    `json:"docId"`
	PageID    string    `json:"pageId"`
	Version   uint64    `json:"version"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PlainText returns the text of a block, or "" for blocks without text.
func (s *Snapshot) PlainText(blockID string) string {
	b, ok := s.Blocks[blockID]
	if !ok || b.TextID == "" {
		return ""
	}
	return delta.TextOf(s.Texts[b.TextID])
}

// ChildIDs returns the ordered children of a block.
func (s *Snapshot) ChildIDs(blockID string) []string {
	b, ok := s.Blocks[blockID]
	if !ok {
		return nil
	}
	return s.Children[b.ChildrenID]
}

// DocumentOrder returns every block below the page in pre-order.
func (s *Snapshot) DocumentOrder() []string {
	var out []string
	var walk func(id string)
	walk = func(id string) {
		for _, c := range s.ChildIDs(id) {
			out = append(out, c)
			walk(c)
		}
	}
	walk(s.PageID)
	return out
}
