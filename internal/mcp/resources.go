package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"blockdoc/internal/domain"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerResources() {
	// ── blockdoc://documents ───────────────────────────
	s.mcp.AddResource(mcp.NewResource(
		"blockdoc://documents",
		"All Documents",
		mcp.WithMIMEType("application/json"),
	), s.handleDocumentsResource)

	// ── blockdoc://document/{docId}/outline ────────────
	s.mcp.AddResourceTemplate(
		mcp.NewResourceTemplate(
			"blockdoc://document/{docId}/outline",
			"Outline of a Document",
		),
		s.handleOutlineResource,
	)
}

func (s *Server) handleDocumentsResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	docs, err := s.docs.List(ctx)
	if err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []domain.DocumentInfo{}
	}
	data, _ := json.MarshalIndent(docs, "", "  ")
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "blockdoc://documents",
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleOutlineResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := req.Params.URI
	docID := docIDFromURI(uri)
	if docID == "" {
		return nil, fmt.Errorf("could not extract docId from URI: %s", uri)
	}
	sess, err := s.docs.Open(ctx, docID)
	if err != nil {
		return nil, err
	}
	data, _ := json.MarshalIndent(buildOutline(sess.Doc.Snapshot()), "", "  ")
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// docIDFromURI extracts the document id from "blockdoc://document/{id}/outline".
func docIDFromURI(uri string) string {
	rest, ok := strings.CutPrefix(uri, "blockdoc://document/")
	if !ok {
		return ""
	}
	id, _, ok := strings.Cut(rest, "/")
	if !ok {
		return ""
	}
	return id
}
