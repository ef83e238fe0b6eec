package mcpserver

import (
	"context"
	"fmt"

	"blockdoc/internal/domain"
	"blockdoc/internal/selection"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerDocumentTools() {
	// ── list_documents ─────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("list_documents",
		mcp.WithDescription("List all stored documents"),
	), s.handleListDocuments)

	// ── open_document ──────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("open_document",
		mcp.WithDescription("Open (or create) a document and make it the active document"),
		mcp.WithString("docId", mcp.Description("Document ID"), mcp.Required()),
	), s.handleOpenDocument)

	// ── set_active_document ────────────────────────────
	s.mcp.AddTool(mcp.NewTool("set_active_document",
		mcp.WithDescription("Set the active document for subsequent tool calls. Tools that accept docId will default to this."),
		mcp.WithString("docId", mcp.Description("ID of the document to make active"), mcp.Required()),
	), s.handleSetActiveDocument)

	// ── read_document ──────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("read_document",
		mcp.WithDescription("Read a document as an outline of blocks in document order, with ids, types, paths and text"),
		mcp.WithString("docId", mcp.Description("Document ID (optional, defaults to active document)")),
	), s.handleReadDocument)

	// ── locate_offset ──────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("locate_offset",
		mcp.WithDescription("Translate an offset into the document's plain text (blocks joined by newlines) into a block caret and tree path"),
		mcp.WithString("docId", mcp.Description("Document ID (optional, defaults to active document)")),
		mcp.WithNumber("offset", mcp.Description("Offset into the plain text"), mcp.Required()),
	), s.handleLocateOffset)

	// ── delete_document (destructive) ──────────────────
	s.mcp.AddTool(mcp.NewTool("delete_document",
		mcp.WithDescription("🛑 DESTRUCTIVE: Delete a stored document and its change log"),
		mcp.WithString("docId", mcp.Description("Document ID"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleDeleteDocument)
}

func boolPtr(v bool) *bool { return &v }

// outlineEntry is one block of read_document's outline.
type outlineEntry struct {
	ID    string           `json:"id"`
	Type  domain.BlockType `json:"type"`
	Path  []int            `json:"path"`
	Text  string           `json:"text,omitempty"`
	Data  map[string]any   `json:"data,omitempty"`
	Depth int              `json:"depth"`
}

type outline struct {
	DocID   string         `json:"docId"`
	PageID  string         `json:"pageId"`
	Version uint64         `json:"version"`
	Blocks  []outlineEntry `json:"blocks"`
}

func buildOutline(snap *domain.Snapshot) outline {
	out := outline{DocID: snap.DocID, PageID: snap.PageID, Version: snap.Version, Blocks: []outlineEntry{}}
	var walk func(id string, path []int)
	walk = func(id string, path []int) {
		for i, child := range snap.ChildIDs(id) {
			b := snap.Blocks[child]
			p := append(append([]int(nil), path...), i)
			entry := outlineEntry{ID: child, Path: p, Depth: len(p) - 1}
			if b != nil {
				entry.Type = b.Type
				entry.Text = snap.PlainText(child)
				if len(b.Data) > 0 {
					entry.Data = b.Data
				}
			}
			out.Blocks = append(out.Blocks, entry)
			walk(child, p)
		}
	}
	walk(snap.PageID, nil)
	return out
}

func (s *Server) handleListDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docs, err := s.docs.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	if docs == nil {
		docs = []domain.DocumentInfo{}
	}
	return jsonResult(docs)
}

func (s *Server) handleOpenDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docID := req.GetString("docId", "")
	if docID == "" {
		return mcp.NewToolResultError("docId is required"), nil
	}
	sess, err := s.docs.Open(ctx, docID)
	if err != nil {
		return s.toolError("open_document", err)
	}
	s.setActive(docID)
	return jsonResult(buildOutline(sess.Doc.Snapshot()))
}

func (s *Server) handleSetActiveDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docID := req.GetString("docId", "")
	if docID == "" {
		return mcp.NewToolResultError("docId is required"), nil
	}
	s.setActive(docID)
	return textResult(fmt.Sprintf("Active document set to %s", docID)), nil
}

func (s *Server) handleReadDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(ctx, req)
	if err != nil {
		return s.toolError("read_document", err)
	}
	return jsonResult(buildOutline(sess.Doc.Snapshot()))
}

func (s *Server) handleLocateOffset(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(ctx, req)
	if err != nil {
		return s.toolError("locate_offset", err)
	}
	off := req.GetInt("offset", 0)
	rng, err := selection.NewFlatProjector(sess.Doc).Unproject(selection.FlatRange{Anchor: off, Focus: off})
	if err != nil {
		return s.toolError("locate_offset", err)
	}
	path, err := selection.NewPathProjector(sess.Doc).Project(rng)
	if err != nil {
		return s.toolError("locate_offset", err)
	}
	return jsonResult(map[string]any{
		"blockId": rng.Anchor.BlockID,
		"offset":  rng.Anchor.Offset,
		"path":    path.Anchor.Path,
	})
}

func (s *Server) handleDeleteDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docID := req.GetString("docId", "")
	if docID == "" {
		return mcp.NewToolResultError("docId is required"), nil
	}
	if err := s.docs.Delete(ctx, docID); err != nil {
		return s.toolError("delete_document", err)
	}
	s.mu.Lock()
	if s.activeDocID == docID {
		s.activeDocID = ""
	}
	s.mu.Unlock()
	return textResult(fmt.Sprintf("Document %s deleted", docID)), nil
}
