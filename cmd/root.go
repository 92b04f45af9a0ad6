// Package cmd is the cobra CLI surface over the download core, one
// sub-command per Tool Facade method except pre_request (which only `serve`
// reaches), plus a `serve` command exposing the
// same facade over a newline-delimited JSON stdio transport (spec §6).
package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kagedl/resumedl/internal/config"
	"github.com/kagedl/resumedl/internal/facade"
	"github.com/kagedl/resumedl/internal/logging"
	"github.com/kagedl/resumedl/internal/orchestrator"
	"github.com/kagedl/resumedl/internal/registry"
	"github.com/kagedl/resumedl/internal/resume"
	"github.com/kagedl/resumedl/internal/session"
)

var (
	configPath     string
	debug          bool
	jsonLogs       bool
	resumeDir      string
	registryPath   string
	maxTasks       int
	proxyURL       string
	highThreadMode bool
)

// ResumedlVersion is set at build time via -ldflags, matching the
// teacher's DanzoVersion pattern.
var ResumedlVersion = "dev"

var rootCmd = &cobra.Command{
	Use:     "resumedl",
	Short:   "resumedl is a segmented, resumable HTTP/HTTPS download tool server",
	Version: ResumedlVersion,
}

// Execute runs the CLI, matching the teacher's cmd.Execute() entry point.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML settings file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "Emit structured JSON logs instead of a console stream")
	rootCmd.PersistentFlags().StringVar(&resumeDir, "resume-dir", "", "Directory for resume records (overrides config)")
	rootCmd.PersistentFlags().StringVar(&registryPath, "registry-path", "", "Path to the task registry file (overrides config)")
	rootCmd.PersistentFlags().IntVar(&maxTasks, "max-concurrent-tasks", 0, "Process-wide Downloading cap (overrides config)")
	rootCmd.PersistentFlags().StringVar(&proxyURL, "proxy", "", "HTTP/HTTPS proxy URL for all requests")
	rootCmd.PersistentFlags().BoolVar(&highThreadMode, "high-thread-mode", false, "Tune dial socket buffers for high-concurrency downloads (overrides config)")

	rootCmd.AddCommand(
		newDownloadCmd(),
		newStatusCmd(),
		newListCmd(),
		newPauseCmd(),
		newResumeCmd(),
		newCancelCmd(),
		newDeleteCmd(),
		newVerifyCmd(),
		newStatsCmd(),
		newServeCmd(),
	)
}

// app bundles the wired collaborators one CLI invocation needs, built once
// per process the way the teacher's rootCmd.Run built one HTTPClientConfig
// for every job in the batch.
type app struct {
	facade *facade.Facade
	orch   *orchestrator.Orchestrator
}

func buildApp() (*app, error) {
	settings, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if resumeDir != "" {
		settings.ResumeDir = resumeDir
	}
	if registryPath != "" {
		settings.RegistryPath = registryPath
	}
	if maxTasks > 0 {
		settings.MaxConcurrentTasks = maxTasks
	}
	if debug {
		settings.DebugLogging = true
	}
	if jsonLogs {
		settings.JSONLogging = true
	}
	if highThreadMode {
		settings.HighThreadMode = true
	}
	logging.Init(settings.DebugLogging, settings.JSONLogging)

	reg, err := registry.New(settings.RegistryPath)
	if err != nil {
		return nil, fmt.Errorf("loading task registry: %w", err)
	}
	resumes, err := resume.NewStore(settings.ResumeDir)
	if err != nil {
		return nil, fmt.Errorf("opening resume store: %w", err)
	}
	sessions := session.NewManager(session.ClientConfig{
		Timeout:        60 * time.Second,
		KeepAliveTO:    90 * time.Second,
		ProxyURL:       proxyURL,
		HighThreadMode: settings.HighThreadMode,
	})
	orch := orchestrator.New(sessions, reg, resumes, settings.MaxConcurrentTasks)

	return &app{facade: facade.New(orch, sessions), orch: orch}, nil
}
