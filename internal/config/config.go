// Package config loads the process-wide settings that sit above any single
// DownloadConfig: where task and resume state live on disk, and how many
// tasks may download concurrently. It layers defaults, an optional YAML
// file, and environment overrides the way the teacher's cmd/root.go layers
// flag defaults under explicit flags -- except here env vars play the role
// flags play for the teacher's single-shot CLI, since this process is a
// long-lived tool server rather than a one-shot download command.
package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kagedl/resumedl/internal/corerrors"
	"github.com/kagedl/resumedl/internal/registry"
	"github.com/kagedl/resumedl/internal/resume"
)

// Settings is the process-wide configuration (spec §4.6, §4.7's defaults,
// generalized into one loadable struct).
type Settings struct {
	MaxConcurrentTasks int           `yaml:"max_concurrent_tasks"`
	ResumeDir          string        `yaml:"resume_dir"`
	RegistryPath       string        `yaml:"registry_path"`
	RetentionMaxAge    time.Duration `yaml:"retention_max_age"`
	DebugLogging       bool          `yaml:"debug"`
	JSONLogging        bool          `yaml:"json_logging"`
	HighThreadMode     bool          `yaml:"high_thread_mode"`
}

// Defaults returns spec §4.6's process-wide defaults.
func Defaults() Settings {
	return Settings{
		MaxConcurrentTasks: 5,
		ResumeDir:          resume.DefaultDir,
		RegistryPath:       registry.DefaultPath,
		RetentionMaxAge:    resume.DefaultMaxAge,
	}
}

// yamlSettings mirrors Settings but with RetentionMaxAge as a duration
// string, since yaml.v3 does not know how to unmarshal time.Duration
// directly from a "168h" style value.
type yamlSettings struct {
	MaxConcurrentTasks int    `yaml:"max_concurrent_tasks"`
	ResumeDir          string `yaml:"resume_dir"`
	RegistryPath       string `yaml:"registry_path"`
	RetentionMaxAge    string `yaml:"retention_max_age"`
	Debug              bool   `yaml:"debug"`
	JSONLogging        bool   `yaml:"json_logging"`
	HighThreadMode     bool   `yaml:"high_thread_mode"`
}

// Load builds Settings from defaults, an optional YAML file at path (skipped
// entirely if path is empty or the file does not exist), then environment
// variable overrides. Cobra flags are expected to override the returned
// Settings directly in cmd, the same precedence order the teacher's flags
// take over their own zero-value defaults.
func Load(path string) (Settings, error) {
	s := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Settings{}, corerrors.Wrap(corerrors.ClassifyTransportError(err), "reading config file", err)
			}
		} else {
			var y yamlSettings
			if err := yaml.Unmarshal(data, &y); err != nil {
				return Settings{}, corerrors.Wrap(corerrors.CodeInvalidConfig, "parsing config file", err)
			}
			applyYAML(&s, y)
		}
	}

	applyEnv(&s)

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func applyYAML(s *Settings, y yamlSettings) {
	if y.MaxConcurrentTasks != 0 {
		s.MaxConcurrentTasks = y.MaxConcurrentTasks
	}
	if y.ResumeDir != "" {
		s.ResumeDir = y.ResumeDir
	}
	if y.RegistryPath != "" {
		s.RegistryPath = y.RegistryPath
	}
	if y.RetentionMaxAge != "" {
		if d, err := time.ParseDuration(y.RetentionMaxAge); err == nil {
			s.RetentionMaxAge = d
		}
	}
	s.DebugLogging = y.Debug
	s.JSONLogging = y.JSONLogging
	s.HighThreadMode = y.HighThreadMode
}

const (
	envMaxConcurrentTasks = "RESUMEDL_MAX_CONCURRENT_TASKS"
	envResumeDir          = "RESUMEDL_RESUME_DIR"
	envRegistryPath       = "RESUMEDL_REGISTRY_PATH"
	envRetentionMaxAge    = "RESUMEDL_RETENTION_MAX_AGE"
	envDebug              = "RESUMEDL_DEBUG"
	envHighThreadMode     = "RESUMEDL_HIGH_THREAD_MODE"
)

func applyEnv(s *Settings) {
	if v := os.Getenv(envMaxConcurrentTasks); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			s.MaxConcurrentTasks = n
		}
	}
	if v := os.Getenv(envResumeDir); v != "" {
		s.ResumeDir = v
	}
	if v := os.Getenv(envRegistryPath); v != "" {
		s.RegistryPath = v
	}
	if v := os.Getenv(envRetentionMaxAge); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			s.RetentionMaxAge = d
		}
	}
	if v := os.Getenv(envDebug); v != "" {
		s.DebugLogging = v == "1" || v == "true"
	}
	if v := os.Getenv(envHighThreadMode); v != "" {
		s.HighThreadMode = v == "1" || v == "true"
	}
}

// Validate rejects settings outside the bounds the orchestrator and
// registry expect, returning a Config.Invalid error (spec §7).
func (s Settings) Validate() error {
	if s.MaxConcurrentTasks < 1 {
		return corerrors.New(corerrors.CodeInvalidConfig, "max_concurrent_tasks must be >= 1")
	}
	if s.RetentionMaxAge < 0 {
		return corerrors.New(corerrors.CodeInvalidConfig, "retention_max_age must be >= 0")
	}
	return nil
}
