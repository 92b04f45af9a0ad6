package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kagedl/resumedl/internal/facade"
	"github.com/kagedl/resumedl/utils"
)

// taskActionCmd builds the pause/resume/cancel/delete sub-commands, which
// all share the same {task_id} -> {task_id, success, new_status} shape
// (spec §6).
func taskActionCmd(use, short string, run func(a *app, ctx context.Context, taskID string) facade.Envelope) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [TASK_ID]",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			env := run(a, cmd.Context(), args[0])
			if !env.Success {
				utils.PrintError(fmt.Sprintf("%s: %s", env.Error.Code, env.Error.Message))
				os.Exit(1)
			}
			switch v := env.Data.(type) {
			case facade.TaskActionResult:
				utils.PrintSuccess(fmt.Sprintf("%s -> %s", v.TaskID, v.NewStatus))
			case facade.DeleteDownloadResult:
				utils.PrintSuccess(fmt.Sprintf("%s deleted", v.TaskID))
			}
			return nil
		},
	}
}

func newPauseCmd() *cobra.Command {
	return taskActionCmd("pause", "Pause a running download", func(a *app, ctx context.Context, taskID string) facade.Envelope {
		return a.facade.PauseDownload(taskID)
	})
}

func newResumeCmd() *cobra.Command {
	return taskActionCmd("resume", "Resume a paused download", func(a *app, ctx context.Context, taskID string) facade.Envelope {
		return a.facade.ResumeDownload(ctx, taskID)
	})
}

func newCancelCmd() *cobra.Command {
	return taskActionCmd("cancel", "Cancel a download, discarding part files", func(a *app, ctx context.Context, taskID string) facade.Envelope {
		return a.facade.CancelDownload(taskID)
	})
}

func newDeleteCmd() *cobra.Command {
	return taskActionCmd("delete", "Delete a terminal task's record", func(a *app, ctx context.Context, taskID string) facade.Envelope {
		return a.facade.DeleteDownload(taskID)
	})
}
