package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stackmem/stackmem/internal/frame"
)

func newPushCmd() *cobra.Command {
	var (
		runID     string
		parentID  string
		frameType string
		input     string
	)

	cmd := &cobra.Command{
		Use:   "push <name>",
		Short: "Push a new frame onto a session's work stack",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			f, err := a.frames.Push(ctx, runID, parentID, args[0], frame.FrameType(frameType))
			if err != nil {
				return err
			}
			if input != "" {
				if err := a.frames.AppendInput(ctx, f.ID, input); err != nil {
					return err
				}
			}
			fmt.Printf("Pushed %s %q (id %s)\n", f.Type, f.Name, f.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&runID, "run", "default", "Session/run identifier")
	cmd.Flags().StringVar(&parentID, "parent", "", "Parent frame ID (omit for a new root)")
	cmd.Flags().StringVar(&frameType, "type", "task", "Frame type: task or subtask")
	cmd.Flags().StringVar(&input, "input", "", "Serialized input to record on the frame")

	return cmd
}

func newCloseCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "close <frame-id>",
		Short: "Close a frame, recording when the work ended",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			if output != "" {
				if err := a.frames.AppendOutput(ctx, args[0], output); err != nil {
					return err
				}
			}
			if err := a.frames.Close(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("Closed frame %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&output, "output", "", "Serialized output to record before closing")

	return cmd
}

func newStackCmd() *cobra.Command {
	var runID string

	cmd := &cobra.Command{
		Use:   "stack",
		Short: "Show a session's active frame path, root first",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()

			path, err := a.frames.ActivePath(cmd.Context(), runID)
			if err != nil {
				return err
			}
			if len(path) == 0 {
				fmt.Println("No active frames.")
				return nil
			}
			for i, f := range path {
				fmt.Printf("%s%s: %s (id %s, since %s)\n",
					strings.Repeat("  ", i), f.Type, f.Name, f.ID,
					f.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&runID, "run", "default", "Session/run identifier")

	return cmd
}

func newRecordCmd() *cobra.Command {
	var (
		frameID   string
		files     int
		permanent bool
		refs      int
	)

	cmd := &cobra.Command{
		Use:   "record <tool>",
		Short: "Record a tool invocation against a frame",
		Long: `Log one tool invocation (and its raw importance signals) against a frame.
These signals feed the score engine when the frame is archived.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()

			ev := frame.ToolEvent{
				FrameID:       frameID,
				Tool:          args[0],
				FilesAffected: files,
				IsPermanent:   permanent,
				RefCount:      refs,
			}
			if err := a.frames.RecordToolEvent(cmd.Context(), ev); err != nil {
				return err
			}
			fmt.Printf("Recorded %s against frame %s\n", args[0], frameID)
			return nil
		},
	}

	cmd.Flags().StringVar(&frameID, "frame", "", "Frame the tool ran under")
	cmd.Flags().IntVar(&files, "files", 0, "Files affected by the invocation")
	cmd.Flags().BoolVar(&permanent, "permanent", false, "Mark the change permanent")
	cmd.Flags().IntVar(&refs, "refs", 0, "Reference count")
	_ = cmd.MarkFlagRequired("frame")

	return cmd
}
