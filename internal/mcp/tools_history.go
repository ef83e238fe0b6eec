package mcpserver

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerHistoryTools() {
	docArg := mcp.WithString("docId", mcp.Description("Document ID (optional, defaults to active document)"))

	s.mcp.AddTool(mcp.NewTool("undo",
		mcp.WithDescription("Undo the last editing operation"),
		docArg,
	), s.handleUndo)

	s.mcp.AddTool(mcp.NewTool("redo",
		mcp.WithDescription("Redo the last undone operation"),
		docArg,
	), s.handleRedo)

	s.mcp.AddTool(mcp.NewTool("history",
		mcp.WithDescription("List the operation names on the undo and redo stacks, oldest first"),
		docArg,
	), s.handleHistory)

	s.mcp.AddTool(mcp.NewTool("checkpoint",
		mcp.WithDescription("Persist a snapshot of the document and compact its change log"),
		docArg,
	), s.handleCheckpoint)
}

type historyResult struct {
	Applied bool   `json:"applied"`
	Name    string `json:"operation,omitempty"`
	Version uint64 `json:"version"`
}

func (s *Server) handleUndo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docID, err := s.resolveDocID(req.GetArguments())
	if err != nil {
		return s.toolError("undo", err)
	}
	c, err := s.docs.Undo(ctx, docID)
	if err != nil {
		return s.toolError("undo", err)
	}
	if c == nil {
		return jsonResult(historyResult{})
	}
	return jsonResult(historyResult{Applied: true, Name: c.Name, Version: c.Version})
}

func (s *Server) handleRedo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docID, err := s.resolveDocID(req.GetArguments())
	if err != nil {
		return s.toolError("redo", err)
	}
	c, err := s.docs.Redo(ctx, docID)
	if err != nil {
		return s.toolError("redo", err)
	}
	if c == nil {
		return jsonResult(historyResult{})
	}
	return jsonResult(historyResult{Applied: true, Name: c.Name, Version: c.Version})
}

func (s *Server) handleHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(ctx, req)
	if err != nil {
		return s.toolError("history", err)
	}
	undo, redo := sess.Undo.Labels()
	if undo == nil {
		undo = []string{}
	}
	if redo == nil {
		redo = []string{}
	}
	return jsonResult(map[string][]string{"undo": undo, "redo": redo})
}

func (s *Server) handleCheckpoint(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(ctx, req)
	if err != nil {
		return s.toolError("checkpoint", err)
	}
	res, err := s.docs.Checkpoint(ctx, sess.Doc.ID())
	if err != nil {
		return s.toolError("checkpoint", err)
	}
	return jsonResult(res)
}
