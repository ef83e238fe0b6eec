package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"blockdoc/internal/domain"
	"blockdoc/internal/service"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
)

// Server is the MCP server for blockdoc.
// It exposes editing tools, document resources and prompts so AI agents can
// work on a document the same way an editor surface does.
type Server struct {
	mcp  *server.MCPServer
	docs *service.DocumentService
	log  zerolog.Logger

	// Active document context (set by set_active_document / open_document)
	mu          sync.Mutex
	activeDocID string
}

// Deps holds the dependencies passed from main to the MCP server.
type Deps struct {
	Documents *service.DocumentService
	Logger    zerolog.Logger
	Version   string
}

// New creates and configures a new MCP server with all tools and resources.
func New(deps Deps) *Server {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := &Server{
		docs: deps.Documents,
		log:  deps.Logger.With().Str("component", "mcp").Logger(),
	}

	s.mcp = server.NewMCPServer(
		"blockdoc-mcp",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, false),
		server.WithPromptCapabilities(true),
	)

	s.registerDocumentTools()
	s.registerEditTools()
	s.registerHistoryTools()
	s.registerResources()
	s.registerPrompts()

	return s
}

// MCP returns the underlying server, for in-process transports.
func (s *Server) MCP() *server.MCPServer { return s.mcp }

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	s.log.Info().Msg("starting stdio server")
	return server.ServeStdio(s.mcp)
}

// ── Helpers ────────────────────────────────────────────────

// textResult creates a simple text tool result.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

// jsonResult serializes v to JSON and wraps it in a text tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return textResult(string(data)), nil
}

// toolError reports domain failures to the agent as a tool error instead of
// a protocol error, so it can correct the call and retry.
func (s *Server) toolError(op string, err error) (*mcp.CallToolResult, error) {
	if !errors.Is(err, domain.ErrNotFound) && !errors.Is(err, domain.ErrInvalidOperation) {
		s.log.Error().Err(err).Str("tool", op).Msg("tool failed")
	}
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", op, err)), nil
}

func (s *Server) setActive(docID string) {
	s.mu.Lock()
	s.activeDocID = docID
	s.mu.Unlock()
}

// resolveDocID returns the docId from tool args or falls back to the active document.
func (s *Server) resolveDocID(args map[string]any) (string, error) {
	if id, ok := args["docId"].(string); ok && id != "" {
		return id, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeDocID != "" {
		return s.activeDocID, nil
	}
	return "", fmt.Errorf("no docId provided and no active document set (use open_document first): %w", domain.ErrInvalidOperation)
}

// session opens the document the call targets.
func (s *Server) session(ctx context.Context, req mcp.CallToolRequest) (*service.Session, error) {
	docID, err := s.resolveDocID(req.GetArguments())
	if err != nil {
		return nil, err
	}
	return s.docs.Open(ctx, docID)
}
