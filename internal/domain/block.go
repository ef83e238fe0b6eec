package domain

import (
	"bytes"
	"encoding/json"
	"reflect"

	"github.com/mohae/deepcopy"
)

type BlockType string

const (
	BlockTypePage         BlockType = "page"
	BlockTypeParagraph    BlockType = "paragraph"
	BlockTypeHeading      BlockType = "heading"
	BlockTypeBulletedList BlockType = "bulleted_list"
	BlockTypeNumberedList BlockType = "numbered_list"
	BlockTypeToggleList   BlockType = "toggle_list"
	BlockTypeTodoList     BlockType = "todo_list"
	BlockTypeQuote        BlockType = "quote"
	BlockTypeCallout      BlockType = "callout"
	BlockTypeDivider      BlockType = "divider"
	BlockTypeCode         BlockType = "code"
	BlockTypeImage        BlockType = "image"
	BlockTypeEquation     BlockType = "equation"
	BlockTypeFile         BlockType = "file"
	BlockTypeSubpage      BlockType = "subpage"
	BlockTypeOutline      BlockType = "outline"
)

// DefaultBlockType is the plain text type other blocks collapse into.
const DefaultBlockType = BlockTypeParagraph

// Block is one node of the document tree.
type Block struct {
	ID         string         `json:"id"`
	Type       BlockType      `json:"type"`
	ParentID   string         `json:"parentId,omitempty"` // empty only for the root page
	ChildrenID string         `json:"childrenId"`
	TextID     string         `json:"textId,omitempty"` // set iff the type carries text
	Data       map[string]any `json:"data"`
}

// Clone returns a deep copy, including the data payload.
func (b *Block) Clone() *Block {
	if b == nil {
		return nil
	}
	c := *b
	c.Data = CloneData(b.Data)
	return &c
}

// CloneData deep-copies a block payload. A nil payload becomes an empty map.
func CloneData(data map[string]any) map[string]any {
	if len(data) == 0 {
		return map[string]any{}
	}
	return deepcopy.Copy(data).(map[string]any)
}

// DataEqual compares two payloads by value. Nil and empty are equal, and
// numbers compare equal whatever Go type a decoder gave them, so a level of
// int 1 matches the float64 1 that comes back from JSON.
func DataEqual(a, b map[string]any) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	if reflect.DeepEqual(a, b) {
		return true
	}
	ja, err := json.Marshal(a)
	if err != nil {
		return false
	}
	jb, err := json.Marshal(b)
	return err == nil && bytes.Equal(ja, jb)
}
