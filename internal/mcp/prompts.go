package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	s.mcp.AddPrompt(mcp.NewPrompt("draft_outline",
		mcp.WithPromptDescription("Draft a structured outline (headings, nested lists, todos) in a document"),
		mcp.WithArgument("topic",
			mcp.ArgumentDescription("Topic of the outline"),
			mcp.RequiredArgument(),
		),
		mcp.WithArgument("docId",
			mcp.ArgumentDescription("Document to write into (defaults to the active document)"),
		),
	), s.handleDraftOutlinePrompt)

	s.mcp.AddPrompt(mcp.NewPrompt("restructure_document",
		mcp.WithPromptDescription("Reorganize an existing document using indent, outdent and turn_into"),
		mcp.WithArgument("docId",
			mcp.ArgumentDescription("Document to restructure"),
			mcp.RequiredArgument(),
		),
	), s.handleRestructurePrompt)
}

func (s *Server) handleDraftOutlinePrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	topic := req.Params.Arguments["topic"]
	target := "the active document"
	if docID := req.Params.Arguments["docId"]; docID != "" {
		target = fmt.Sprintf("document %q (call open_document first)", docID)
	}
	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Draft an outline for: %s", topic),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Draft an outline about "%s" in %s. Follow these steps:

1. Use read_document to find the first block and its id
2. insert_text "# " at offset 0 of that block to turn it into a heading, then insert_text "%s"
3. Use insert_break at the end of a block to start the next one, and markdown prefixes ("- ", "1. ", "[] ") to pick its type
4. Use indent on list items that belong under the previous item

Check the result with read_document when you are done.`, topic, target, topic),
				},
			},
		},
	}, nil
}

func (s *Server) handleRestructurePrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	docID := req.Params.Arguments["docId"]
	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Restructure document %s", docID),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Restructure document %q:

1. open_document, then read the outline it returns (ids, types, paths)
2. Group related paragraphs under headings; use turn_into to change block types
3. Use indent and outdent to fix nesting, and merge_blocks to join fragments
4. Every step is undoable; run history to review what you did and undo if a step went wrong
5. Finish with checkpoint to persist the result`, docID),
				},
			},
		},
	}, nil
}
