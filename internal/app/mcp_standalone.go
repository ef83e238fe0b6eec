package app

import (
	mcpserver "blockdoc/internal/mcp"
)

// ServeMCP runs the MCP editing tools on stdin/stdout until the client
// disconnects or the process is interrupted.
func (a *App) ServeMCP(version string) error {
	srv := mcpserver.New(mcpserver.Deps{
		Documents: a.documents,
		Logger:    a.log,
		Version:   version,
	})
	return srv.ServeStdio()
}
