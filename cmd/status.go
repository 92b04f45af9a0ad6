package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kagedl/resumedl/internal/facade"
	"github.com/kagedl/resumedl/internal/model"
	"github.com/kagedl/resumedl/utils"
)

func newStatusCmd() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "status [TASK_ID]",
		Short: "Print a task's current status and progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			taskID := args[0]

			if watch {
				watchTask(a, taskID)
				return nil
			}

			env := a.facade.GetDownloadStatus(taskID)
			if !env.Success {
				utils.PrintError(fmt.Sprintf("%s: %s", env.Error.Code, env.Error.Message))
				os.Exit(1)
			}
			printStatus(env.Data.(facade.DownloadStatusResult))
			return nil
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "Render live progress until the task reaches a terminal status")
	return cmd
}

func printStatus(r facade.DownloadStatusResult) {
	fmt.Printf("%s %s\n", r.TaskID, r.Status)
	fmt.Printf("  %s  %d/%d bytes  %.1f KB/s  eta %ds\n",
		utils.PrintProgressBar(r.Progress.Downloaded, r.Progress.Total, 30),
		r.Progress.Downloaded, r.Progress.Total, r.Progress.Speed/1024, r.Progress.ETA)
	if r.Error != nil {
		fmt.Printf("  error: %s: %s\n", r.Error.Code, r.Error.Message)
	}
}

func newListCmd() *cobra.Command {
	var (
		status string
		limit  int
		offset int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List known download tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			env := a.facade.ListDownloads(facade.ListDownloadsParams{
				Status: model.Status(status),
				Limit:  limit,
				Offset: offset,
			})
			if !env.Success {
				utils.PrintError(fmt.Sprintf("%s: %s", env.Error.Code, env.Error.Message))
				os.Exit(1)
			}
			result := env.Data.(facade.ListDownloadsResult)
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}
			fmt.Println(utils.RenderTaskTable(result.Tasks))
			fmt.Printf("%d of %d tasks shown\n", len(result.Tasks), result.Total)
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (Pending, Downloading, Paused, Completed, Failed, Cancelled)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum tasks to show")
	cmd.Flags().IntVar(&offset, "offset", 0, "Pagination offset")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print raw JSON instead of a table")
	return cmd
}
