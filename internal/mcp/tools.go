package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/stackmem/stackmem/internal/frame"
	"github.com/stackmem/stackmem/internal/tier"
)

func (s *Server) handlePushFrame(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID, err := req.RequireString("run_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: run_id"), nil
	}
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: name"), nil
	}
	parentID := req.GetString("parent_id", "")
	frameType := frame.FrameType(req.GetString("type", string(frame.TypeTask)))

	f, pushErr := s.frames.Push(ctx, runID, parentID, name, frameType)
	if pushErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to push frame: %v", pushErr)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Pushed frame %s (%s: %s)", f.ID, f.Type, f.Name)), nil
}

func (s *Server) handleCloseFrame(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("frame_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: frame_id"), nil
	}
	if closeErr := s.frames.Close(ctx, id); closeErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to close frame: %v", closeErr)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Closed frame %s.", id)), nil
}

func (s *Server) handleRecordToolUse(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	frameID, err := req.RequireString("frame_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: frame_id"), nil
	}
	tool, err := req.RequireString("tool")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: tool"), nil
	}

	ev := frame.ToolEvent{
		FrameID:       frameID,
		Tool:          tool,
		FilesAffected: req.GetInt("files_affected", 0),
		IsPermanent:   req.GetBool("permanent", false),
		RefCount:      req.GetInt("ref_count", 0),
	}
	if recErr := s.frames.RecordToolEvent(ctx, ev); recErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to record tool use: %v", recErr)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Recorded %s against frame %s.", tool, frameID)), nil
}

func (s *Server) handleGetStack(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID, err := req.RequireString("run_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: run_id"), nil
	}

	path, pathErr := s.frames.ActivePath(ctx, runID)
	if pathErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read stack: %v", pathErr)), nil
	}
	if len(path) == 0 {
		return mcp.NewToolResultText("No active frames."), nil
	}

	var sb strings.Builder
	for i, f := range path {
		fmt.Fprintf(&sb, "%s%s: %s (id %s)\n", strings.Repeat("  ", i), f.Type, f.Name, f.ID)
	}
	return mcp.NewToolResultText(sb.String()), nil
}

func (s *Server) handleRetrieveContext(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: query"), nil
	}
	runID := req.GetString("run_id", "")

	res, qErr := s.retriever.Query(ctx, query, runID, s.cfg().RetrievalConfigValue())
	if qErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("retrieval failed: %v", qErr)), nil
	}
	if len(res.Frames) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No relevant work found (provider=%s).", res.Provider)), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Provider: %s (confidence %.2f, %d tokens)\n\n", res.Provider, res.Confidence, res.TokensUsed)
	for _, f := range res.Frames {
		fmt.Fprintf(&sb, "- [%.2f] %s: %s (id %s)\n", f.RankScore, f.Type, f.Name, f.ID)
	}
	return mcp.NewToolResultText(sb.String()), nil
}

func (s *Server) handleArchiveClosed(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID := req.GetString("run_id", "")

	cfg := s.cfg()
	weights, err := cfg.Weights()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid scoring weights: %v", err)), nil
	}
	res, runErr := s.archiver.Run(ctx, runID, weights, cfg.ToolScores())
	if runErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("archive failed: %v", runErr)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Archived %d traces (%d already archived, %d errors).",
		res.Archived, res.Skipped, len(res.Errors))), nil
}

func (s *Server) handleMemoryStats(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.manager.Stats(ctx, s.cfg().TierConfig())
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read stats: %v", err)), nil
	}

	var sb strings.Builder
	for _, t := range []tier.Tier{tier.Hot, tier.Warm, tier.Cold} {
		ts := stats.ByTier[t]
		fmt.Fprintf(&sb, "%s: %d traces, %d bytes (%.0f%% compression)\n",
			t, ts.Count, ts.OriginalSize, ts.CompressionRatio*100)
	}
	fmt.Fprintf(&sb, "total: %d bytes original, %d compressed\n", stats.TotalSize, stats.CompressedSize)
	return mcp.NewToolResultText(sb.String()), nil
}
