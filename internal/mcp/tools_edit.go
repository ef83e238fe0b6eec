package mcpserver

import (
	"context"

	"blockdoc/internal/delta"
	"blockdoc/internal/domain"
	"blockdoc/internal/engine"
	"blockdoc/internal/service"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerEditTools() {
	// ── insert_text ────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("insert_text",
		append([]mcp.ToolOption{
			mcp.WithDescription("Type text at the selection. A range selection is deleted first. Markdown shortcuts (\"# \", \"- \", \"[] \", \"**bold**\") are applied as in an editor."),
			mcp.WithString("text", mcp.Description("Text to insert"), mcp.Required()),
			mcp.WithString("attributes", mcp.Description("JSON object of inline attributes, e.g. {\"bold\":true} (optional)")),
		}, selectionArgs()...)...,
	), s.handleInsertText)

	// ── insert_break ───────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("insert_break",
		append([]mcp.ToolOption{
			mcp.WithDescription("Press Enter: split the block at the caret"),
		}, selectionArgs()...)...,
	), s.handleInsertBreak)

	// ── insert_soft_break ──────────────────────────────
	s.mcp.AddTool(mcp.NewTool("insert_soft_break",
		append([]mcp.ToolOption{
			mcp.WithDescription("Press Shift+Enter: insert a line break inside the block"),
		}, selectionArgs()...)...,
	), s.handleInsertSoftBreak)

	// ── delete_backward ────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("delete_backward",
		append([]mcp.ToolOption{
			mcp.WithDescription("Press Backspace at the selection"),
		}, selectionArgs()...)...,
	), s.handleDeleteBackward)

	// ── delete_forward ─────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("delete_forward",
		append([]mcp.ToolOption{
			mcp.WithDescription("Press Delete at the selection"),
		}, selectionArgs()...)...,
	), s.handleDeleteForward)

	// ── delete_text ────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("delete_text",
		append([]mcp.ToolOption{
			mcp.WithDescription("Delete the range between (blockId, offset) and (focusBlockId, focusOffset), merging the end block into the start block"),
		}, selectionArgs()...)...,
	), s.handleDeleteText)

	// ── merge_blocks ───────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("merge_blocks",
		mcp.WithDescription("Append the text of sourceId to targetId and remove sourceId"),
		mcp.WithString("docId", mcp.Description("Document ID (optional, defaults to active document)")),
		mcp.WithString("targetId", mcp.Description("Block receiving the text"), mcp.Required()),
		mcp.WithString("sourceId", mcp.Description("Block being merged away"), mcp.Required()),
	), s.handleMergeBlocks)

	// ── indent / outdent ───────────────────────────────
	s.mcp.AddTool(mcp.NewTool("indent",
		append([]mcp.ToolOption{
			mcp.WithDescription("Press Tab: nest the selected blocks under their previous sibling"),
		}, selectionArgs()...)...,
	), s.handleIndent)
	s.mcp.AddTool(mcp.NewTool("outdent",
		append([]mcp.ToolOption{
			mcp.WithDescription("Press Shift+Tab: lift the selected blocks one level"),
		}, selectionArgs()...)...,
	), s.handleOutdent)

	// ── turn_into ──────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("turn_into",
		mcp.WithDescription("Change a block's type, keeping its id, children and (when the new type has text) its text"),
		mcp.WithString("docId", mcp.Description("Document ID (optional, defaults to active document)")),
		mcp.WithString("blockId", mcp.Description("Block ID"), mcp.Required()),
		mcp.WithString("type", mcp.Description("Block type: paragraph, heading, bulleted_list, numbered_list, todo_list, toggle_list, quote, callout, code, divider, ..."), mcp.Required()),
		mcp.WithString("data", mcp.Description("JSON payload for the new type, e.g. {\"level\":2} (optional, defaults to the type's default data)")),
	), s.handleTurnInto)

	// ── set_block_data ─────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("set_block_data",
		mcp.WithDescription("Merge a JSON patch into a block's data payload"),
		mcp.WithString("docId", mcp.Description("Document ID (optional, defaults to active document)")),
		mcp.WithString("blockId", mcp.Description("Block ID"), mcp.Required()),
		mcp.WithString("data", mcp.Description("JSON object patch"), mcp.Required()),
	), s.handleSetBlockData)

	// ── toggle_todo / toggle_collapsed ─────────────────
	s.mcp.AddTool(mcp.NewTool("toggle_todo",
		mcp.WithDescription("Check or uncheck a todo item"),
		mcp.WithString("docId", mcp.Description("Document ID (optional, defaults to active document)")),
		mcp.WithString("blockId", mcp.Description("Todo block ID"), mcp.Required()),
	), s.handleToggleTodo)
	s.mcp.AddTool(mcp.NewTool("toggle_collapsed",
		mcp.WithDescription("Collapse or expand a toggle list"),
		mcp.WithString("docId", mcp.Description("Document ID (optional, defaults to active document)")),
		mcp.WithString("blockId", mcp.Description("Toggle block ID"), mcp.Required()),
	), s.handleToggleCollapsed)

	// ── add_block ──────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("add_block",
		mcp.WithDescription("Insert a new block under parentId at index. Defaults to appending to the page."),
		mcp.WithString("docId", mcp.Description("Document ID (optional, defaults to active document)")),
		mcp.WithString("type", mcp.Description("Block type"), mcp.Required()),
		mcp.WithString("parentId", mcp.Description("Parent block ID (optional, defaults to the page)")),
		mcp.WithNumber("index", mcp.Description("Child index (optional, defaults to the end)")),
		mcp.WithString("text", mcp.Description("Initial text, plain or a JSON delta array (optional)")),
		mcp.WithString("data", mcp.Description("JSON payload (optional)")),
	), s.handleAddBlock)

	// ── clear_document (destructive) ───────────────────
	s.mcp.AddTool(mcp.NewTool("clear_document",
		mcp.WithDescription("🛑 DESTRUCTIVE: Remove every block and leave a single empty paragraph"),
		mcp.WithString("docId", mcp.Description("Document ID (optional, defaults to active document)")),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleClearDocument)
}

// editResult is what every editing tool reports back.
type editResult struct {
	Operation string       `json:"operation"`
	Committed bool         `json:"committed"`
	Version   uint64       `json:"version"`
	Selection domain.Range `json:"selection"`
}

func (s *Server) editResult(sess *service.Session, name string, res engine.Result) (*mcp.CallToolResult, error) {
	out := editResult{Operation: name, Selection: res.Selection, Version: sess.Doc.Version()}
	if res.Change != nil {
		out.Operation = res.Change.Name
		out.Committed = true
	}
	return jsonResult(out)
}

// withRange runs a selection-based engine call against the target document.
func (s *Server) withRange(ctx context.Context, req mcp.CallToolRequest, name string,
	fn func(e *engine.Engine, rng domain.Range) (engine.Result, error)) (*mcp.CallToolResult, error) {
	sess, err := s.session(ctx, req)
	if err != nil {
		return s.toolError(name, err)
	}
	rng, err := rangeFromArgs(req)
	if err != nil {
		return s.toolError(name, err)
	}
	res, err := fn(sess.Engine, rng)
	if err != nil {
		return s.toolError(name, err)
	}
	return s.editResult(sess, name, res)
}

// withBlock runs a block-id based engine call against the target document.
func (s *Server) withBlock(ctx context.Context, req mcp.CallToolRequest, name string,
	fn func(e *engine.Engine, id string) (engine.Result, error)) (*mcp.CallToolResult, error) {
	sess, err := s.session(ctx, req)
	if err != nil {
		return s.toolError(name, err)
	}
	id := req.GetString("blockId", "")
	if id == "" {
		return mcp.NewToolResultError("blockId is required"), nil
	}
	res, err := fn(sess.Engine, id)
	if err != nil {
		return s.toolError(name, err)
	}
	return s.editResult(sess, name, res)
}

func (s *Server) handleInsertText(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text := req.GetString("text", "")
	attrs, err := dataArg(req, "attributes")
	if err != nil {
		return s.toolError("insert_text", err)
	}
	return s.withRange(ctx, req, "insert_text", func(e *engine.Engine, rng domain.Range) (engine.Result, error) {
		return e.InsertText(rng, text, delta.Attributes(attrs))
	})
}

func (s *Server) handleInsertBreak(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.withRange(ctx, req, "insert_break", (*engine.Engine).InsertBreak)
}

func (s *Server) handleInsertSoftBreak(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.withRange(ctx, req, "insert_soft_break", (*engine.Engine).InsertSoftBreak)
}

func (s *Server) handleDeleteBackward(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.withRange(ctx, req, "delete_backward", (*engine.Engine).DeleteBackward)
}

func (s *Server) handleDeleteForward(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.withRange(ctx, req, "delete_forward", (*engine.Engine).DeleteForward)
}

func (s *Server) handleDeleteText(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.withRange(ctx, req, "delete_text", (*engine.Engine).DeleteText)
}

func (s *Server) handleIndent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.withRange(ctx, req, "indent", (*engine.Engine).Indent)
}

func (s *Server) handleOutdent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.withRange(ctx, req, "outdent", (*engine.Engine).Outdent)
}

func (s *Server) handleMergeBlocks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(ctx, req)
	if err != nil {
		return s.toolError("merge_blocks", err)
	}
	target := req.GetString("targetId", "")
	source := req.GetString("sourceId", "")
	if target == "" || source == "" {
		return mcp.NewToolResultError("targetId and sourceId are required"), nil
	}
	res, err := sess.Engine.MergeText(target, source)
	if err != nil {
		return s.toolError("merge_blocks", err)
	}
	return s.editResult(sess, "merge_blocks", res)
}

func (s *Server) handleTurnInto(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	bt := domain.BlockType(req.GetString("type", ""))
	if bt == "" {
		return mcp.NewToolResultError("type is required"), nil
	}
	data, err := dataArg(req, "data")
	if err != nil {
		return s.toolError("turn_into", err)
	}
	return s.withBlock(ctx, req, "turn_into", func(e *engine.Engine, id string) (engine.Result, error) {
		return e.TurnToBlock(id, bt, data)
	})
}

func (s *Server) handleSetBlockData(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	patch, err := dataArg(req, "data")
	if err != nil {
		return s.toolError("set_block_data", err)
	}
	if patch == nil {
		return mcp.NewToolResultError("data is required"), nil
	}
	return s.withBlock(ctx, req, "set_block_data", func(e *engine.Engine, id string) (engine.Result, error) {
		return e.SetBlockData(id, patch)
	})
}

func (s *Server) handleToggleTodo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.withBlock(ctx, req, "toggle_todo", func(e *engine.Engine, id string) (engine.Result, error) {
		return e.ToggleTodoList(id, domain.Caret(id, 0))
	})
}

func (s *Server) handleToggleCollapsed(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.withBlock(ctx, req, "toggle_collapsed", func(e *engine.Engine, id string) (engine.Result, error) {
		return e.ToggleToggleList(id, domain.Caret(id, 0))
	})
}

func (s *Server) handleAddBlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(ctx, req)
	if err != nil {
		return s.toolError("add_block", err)
	}
	bt := domain.BlockType(req.GetString("type", ""))
	if bt == "" {
		return mcp.NewToolResultError("type is required"), nil
	}
	parent := req.GetString("parentId", sess.Doc.PageID())
	index := req.GetInt("index", len(sess.Doc.Snapshot().ChildIDs(parent)))
	data, err := dataArg(req, "data")
	if err != nil {
		return s.toolError("add_block", err)
	}
	text, err := textArg(req, "text")
	if err != nil {
		return s.toolError("add_block", err)
	}
	res, err := sess.Engine.AddBlock(parent, index, bt, data, text)
	if err != nil {
		return s.toolError("add_block", err)
	}
	return s.editResult(sess, "add_block", res)
}

func (s *Server) handleClearDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(ctx, req)
	if err != nil {
		return s.toolError("clear_document", err)
	}
	res, err := sess.Engine.DeleteEntireDocument()
	if err != nil {
		return s.toolError("clear_document", err)
	}
	return s.editResult(sess, "clear_document", res)
}
