// Package mcp exposes stackmem's memory operations as MCP tools over
// stdio, so AI assistants can push frames, record work, and retrieve
// context directly.
package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/stackmem/stackmem/internal/archive"
	"github.com/stackmem/stackmem/internal/config"
	"github.com/stackmem/stackmem/internal/frame"
	"github.com/stackmem/stackmem/internal/retrieval"
	"github.com/stackmem/stackmem/internal/tier"
)

// Server wires the MCP tool handlers to the core stores and engines.
type Server struct {
	frames    *frame.Store
	manager   *tier.Manager
	archiver  *archive.Archiver
	retriever *retrieval.Engine
	cfg       func() config.Config
	mcp       *server.MCPServer
}

// NewServer creates the MCP server. cfg is called per request so config
// reloads apply without a restart.
func NewServer(frames *frame.Store, manager *tier.Manager, archiver *archive.Archiver, retriever *retrieval.Engine, cfg func() config.Config, version string) *Server {
	s := &Server{
		frames:    frames,
		manager:   manager,
		archiver:  archiver,
		retriever: retriever,
		cfg:       cfg,
	}

	m := server.NewMCPServer("stackmem", version)

	m.AddTool(mcp.NewTool("push_frame",
		mcp.WithDescription("Begin a unit of work: push a frame onto the session's stack."),
		mcp.WithString("run_id", mcp.Required(), mcp.Description("Session/run identifier")),
		mcp.WithString("name", mcp.Required(), mcp.Description("What this unit of work is")),
		mcp.WithString("parent_id", mcp.Description("Parent frame ID; omit for a new root")),
		mcp.WithString("type", mcp.Description("task or subtask (default task)")),
	), s.handlePushFrame)

	m.AddTool(mcp.NewTool("close_frame",
		mcp.WithDescription("End a unit of work: close a frame. Children must be closed first."),
		mcp.WithString("frame_id", mcp.Required(), mcp.Description("Frame to close")),
	), s.handleCloseFrame)

	m.AddTool(mcp.NewTool("record_tool_use",
		mcp.WithDescription("Record a tool invocation against the active frame, feeding importance scoring."),
		mcp.WithString("frame_id", mcp.Required(), mcp.Description("Frame the tool ran under")),
		mcp.WithString("tool", mcp.Required(), mcp.Description("Tool name, e.g. edit, read, bash")),
		mcp.WithNumber("files_affected", mcp.Description("How many files the invocation touched")),
		mcp.WithBoolean("permanent", mcp.Description("Whether the change is permanent")),
		mcp.WithNumber("ref_count", mcp.Description("How many later operations referenced this one")),
	), s.handleRecordToolUse)

	m.AddTool(mcp.NewTool("get_stack",
		mcp.WithDescription("Return the active frame path for a session, root first."),
		mcp.WithString("run_id", mcp.Required(), mcp.Description("Session/run identifier")),
	), s.handleGetStack)

	m.AddTool(mcp.NewTool("retrieve_context",
		mcp.WithDescription("Rank recorded work by relevance to a query. Every call is audited."),
		mcp.WithString("query", mcp.Required(), mcp.Description("What you are looking for")),
		mcp.WithString("run_id", mcp.Description("Session whose active path informs the analysis")),
	), s.handleRetrieveContext)

	m.AddTool(mcp.NewTool("archive_closed",
		mcp.WithDescription("Archive closed root frames as scored traces in tiered storage."),
		mcp.WithString("run_id", mcp.Description("Only archive frames from this run")),
	), s.handleArchiveClosed)

	m.AddTool(mcp.NewTool("memory_stats",
		mcp.WithDescription("Report tier counts, sizes, and compression ratios."),
	), s.handleMemoryStats)

	s.mcp = m
	return s
}

// ServeStdio blocks, serving MCP over stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}
