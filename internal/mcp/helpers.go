package mcpserver

import (
	"encoding/json"
	"fmt"

	"blockdoc/internal/delta"
	"blockdoc/internal/domain"

	"github.com/mark3labs/mcp-go/mcp"
)

// parseJSON parses a JSON string into the target type.
func parseJSON(data string, target any) error {
	return json.Unmarshal([]byte(data), target)
}

// selectionArgs declares the caret parameters shared by the editing tools.
func selectionArgs() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("docId", mcp.Description("Document ID (optional, defaults to active document)")),
		mcp.WithString("blockId", mcp.Description("Block holding the caret (anchor)"), mcp.Required()),
		mcp.WithNumber("offset", mcp.Description("Caret offset in characters (anchor)"), mcp.Required()),
		mcp.WithString("focusBlockId", mcp.Description("Focus block for a range selection (optional, defaults to blockId)")),
		mcp.WithNumber("focusOffset", mcp.Description("Focus offset for a range selection (optional, defaults to offset)")),
	}
}

// rangeFromArgs builds the selection described by selectionArgs.
func rangeFromArgs(req mcp.CallToolRequest) (domain.Range, error) {
	blockID := req.GetString("blockId", "")
	if blockID == "" {
		return domain.Range{}, fmt.Errorf("blockId is required: %w", domain.ErrInvalidOperation)
	}
	offset := req.GetInt("offset", 0)
	rng := domain.Caret(blockID, offset)
	if focus := req.GetString("focusBlockId", ""); focus != "" {
		rng.Focus.BlockID = focus
	}
	rng.Focus.Offset = req.GetInt("focusOffset", offset)
	return rng, nil
}

// dataArg decodes an optional JSON object argument.
func dataArg(req mcp.CallToolRequest, key string) (map[string]any, error) {
	raw := req.GetString(key, "")
	if raw == "" {
		return nil, nil
	}
	var data map[string]any
	if err := parseJSON(raw, &data); err != nil {
		return nil, fmt.Errorf("parse %s: %w: %v", key, domain.ErrInvalidOperation, err)
	}
	return data, nil
}

// textArg accepts either plain text or a JSON delta (an array of runs).
func textArg(req mcp.CallToolRequest, key string) (delta.Delta, error) {
	raw := req.GetString(key, "")
	if raw == "" {
		return nil, nil
	}
	if raw[0] == '[' {
		var d delta.Delta
		if err := parseJSON(raw, &d); err == nil {
			return d, nil
		}
	}
	return delta.FromText(raw), nil
}
