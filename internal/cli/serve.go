package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stackmem/stackmem/internal/config"
	"github.com/stackmem/stackmem/internal/mcp"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve stackmem's memory operations over MCP (stdio)",
		Long: `Start an MCP server on stdin/stdout exposing push_frame, close_frame,
record_tool_use, get_stack, retrieve_context, archive_closed, and
memory_stats, so AI assistants can use stackmem directly as a tool provider.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()

			watcher, err := config.NewWatcher(a.root)
			if err != nil {
				return err
			}
			defer watcher.Close()

			srv := mcp.NewServer(a.frames, a.manager, a.archiver, a.retriever, watcher.Current, version)
			if err := srv.ServeStdio(); err != nil {
				return fmt.Errorf("mcp server: %w", err)
			}
			return nil
		},
	}
}
