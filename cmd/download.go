package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kagedl/resumedl/internal/facade"
	"github.com/kagedl/resumedl/internal/model"
	"github.com/kagedl/resumedl/utils"
)

// parseHeaderArgs turns repeated "Key: Value" flag values into a header
// map, the same split-on-first-colon rule the teacher's ParseHeaderArgs
// uses for its -H flag.
func parseHeaderArgs(headers []string) map[string]string {
	result := make(map[string]string)
	for _, header := range headers {
		parts := strings.SplitN(header, ":", 2)
		if len(parts) == 2 {
			result[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}
	return result
}

func newDownloadCmd() *cobra.Command {
	var (
		output         string
		filename       string
		maxConcurrency int
		chunkSize      int64
		timeoutMs      int64
		retryCount     int
		workMode       string
		enableResume   bool
		maxBytesPerSec int64
		headers        []string
		watch          bool
	)

	cmd := &cobra.Command{
		Use:   "download [URL]",
		Short: "Start a segmented download and print its task id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			env := a.facade.DownloadFile(context.Background(), facade.DownloadFileParams{
				URL:            args[0],
				OutputPath:     output,
				Filename:       filename,
				MaxConcurrency: maxConcurrency,
				ChunkSize:      chunkSize,
				TimeoutMs:      timeoutMs,
				RetryCount:     retryCount,
				WorkMode:       model.WorkMode(workMode),
				EnableResume:   &enableResume,
				Headers:        parseHeaderArgs(headers),
				MaxBytesPerSec: maxBytesPerSec,
			})
			if !env.Success {
				utils.PrintError(fmt.Sprintf("%s: %s", env.Error.Code, env.Error.Message))
				os.Exit(1)
			}
			result := env.Data.(facade.DownloadFileResult)
			utils.PrintSuccess(fmt.Sprintf("task %s started: %s", result.TaskID, result.Message))

			if watch && workMode != string(model.WorkModeBlocking) {
				watchTask(a, result.TaskID)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file path (required)")
	cmd.Flags().StringVar(&filename, "filename", "", "Override the inferred output filename")
	cmd.Flags().IntVarP(&maxConcurrency, "connections", "c", 4, "Segment worker pool size (max_concurrency, 1-16)")
	cmd.Flags().Int64Var(&chunkSize, "chunk-size", 1048576, "Planner chunk size hint in bytes")
	cmd.Flags().Int64VarP(&timeoutMs, "timeout", "t", 30000, "Per-attempt timeout in milliseconds")
	cmd.Flags().IntVarP(&retryCount, "retry-count", "r", 3, "Retries per segment before it is rebalanced or failed")
	cmd.Flags().StringVarP(&workMode, "work-mode", "w", string(model.WorkModeNonBlocking), "blocking|non_blocking|persistent|temporary")
	cmd.Flags().BoolVar(&enableResume, "enable-resume", true, "Adopt a saved resume record when the task starts; records are saved either way")
	cmd.Flags().Int64Var(&maxBytesPerSec, "max-bytes-per-sec", 0, "Bandwidth cap in bytes/sec (0 = unlimited)")
	cmd.Flags().StringArrayVarP(&headers, "header", "H", nil, "Custom header 'Key: Value'; repeatable")
	cmd.Flags().BoolVar(&watch, "watch", true, "Render live progress for non-blocking downloads until they finish")
	cmd.MarkFlagRequired("output")

	return cmd
}

// watchTask renders a TaskMonitor against the live orchestrator state until
// the task reaches a terminal status.
func watchTask(a *app, taskID string) {
	monitor := utils.NewTaskMonitor(func() (model.TaskRecord, bool) {
		rec, err := a.orch.Get(taskID)
		if err != nil {
			return model.TaskRecord{}, false
		}
		return rec, true
	})
	monitor.Start()
	monitor.Wait()
}
