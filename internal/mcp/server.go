// Package mcp exposes the governance pipeline as MCP tools so agent
// runtimes can submit signals and gate actions over stdio.
package mcp

import (
	"context"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/trustgate/internal/server"
)

// Server wraps the MCP SDK server around the shared evaluation pipeline.
type Server struct {
	core      *server.Server
	cfg       server.Config
	deps      server.Deps
	mcpServer *mcpsdk.Server
}

// New creates an MCP server over the same component set the HTTP
// surface uses. Both surfaces share one pipeline, so a decision made
// through a tool call lands on the same evidence chain.
func New(cfg server.Config, deps server.Deps) *Server {
	if cfg.SnapshotMaxAge <= 0 {
		cfg.SnapshotMaxAge = time.Minute
	}
	s := &Server{
		core: server.New(cfg, deps),
		cfg:  cfg,
		deps: deps,
	}

	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "trustgate",
			Version: "0.1.0",
		},
		nil,
	)

	s.registerTools()
	return s
}

// Run starts the MCP server on stdio transport. Blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// registerTools adds all trustgate tools to the MCP server.
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "trustgate_evaluate",
		Description: "Evaluate a proposed action against the active constraint set. Denied actions return an error result with the reason; escalated actions return an escalation_id to poll.",
	}, s.handleEvaluate)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "trustgate_signal",
		Description: "Submit a trust signal (behavioral, compliance, identity, or context) for an entity. Returns the score before and after.",
	}, s.handleSignal)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "trustgate_score",
		Description: "Read an entity's current trust score and tier.",
	}, s.handleScore)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "trustgate_pending",
		Description: "List escalations awaiting human resolution, optionally filtered by route.",
	}, s.handlePending)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "trustgate_resolve",
		Description: "Approve or deny a pending escalation. Escalations that require justification reject resolutions without one.",
	}, s.handleResolve)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "trustgate_verify",
		Description: "Verify the integrity of the evidence chain (hash links and signatures).",
	}, s.handleVerify)
}
