// Package config loads per-project execution settings from a
// .opensprint.yaml file, layered over built-in defaults and then
// environment variable overrides, the way the teacher's config package
// layers DefaultConfig() under a repo-local YAML file under env.go's
// applyEnvOverrides.
package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/opensprint/core/internal/model"
)

const (
	DefaultConcurrency           = 4
	DefaultSimpleComplexityAgent  = "claude"
	DefaultComplexComplexityAgent = "claude"
	DefaultTestCommand            = "npm test"
	DefaultUnknownScopeStrategy   = "conservative"
	DefaultGitWorkingMode         = model.GitModeWorktree
	FileName                      = ".opensprint.yaml"
)

// File is the on-disk shape of a project's .opensprint.yaml.
type File struct {
	RepoPath          string   `yaml:"repo_path"`
	Concurrency       int      `yaml:"concurrency"`
	SimpleAgent       string   `yaml:"simple_complexity_agent"`
	ComplexAgent      string   `yaml:"complex_complexity_agent"`
	GitWorkingMode    string   `yaml:"git_working_mode"`
	TestCommand       string   `yaml:"test_command"`
	DeploymentTargets []string `yaml:"deployment_targets"`
	UnknownScope      string   `yaml:"unknown_scope_strategy"`
}

// Default returns a File with every field set to its built-in default.
func Default() *File {
	return &File{
		Concurrency:    DefaultConcurrency,
		SimpleAgent:    DefaultSimpleComplexityAgent,
		ComplexAgent:   DefaultComplexComplexityAgent,
		GitWorkingMode: string(DefaultGitWorkingMode),
		TestCommand:    DefaultTestCommand,
		UnknownScope:   DefaultUnknownScopeStrategy,
	}
}

// Load reads path, falling back to Default() if the file does not exist.
// Fields present in the file overlay the defaults; fields absent keep
// their default value. Environment overrides are applied last.
func Load(path string) (*File, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if uerr := yaml.Unmarshal(data, cfg); uerr != nil {
			return nil, uerr
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// ToProject converts a loaded File into the model.Project the rest of the
// core operates on.
func ToProject(id string, f *File) model.Project {
	mode := model.GitWorkingMode(f.GitWorkingMode)
	if mode == "" {
		mode = DefaultGitWorkingMode
	}
	concurrency := f.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return model.Project{
		ID:       id,
		RepoPath: f.RepoPath,
		Settings: model.ProjectSettings{
			SimpleComplexityAgent:  orDefault(f.SimpleAgent, DefaultSimpleComplexityAgent),
			ComplexComplexityAgent: orDefault(f.ComplexAgent, DefaultComplexComplexityAgent),
			GitWorkingMode:         mode,
			TestCommand:            orDefault(f.TestCommand, DefaultTestCommand),
			DeploymentTargets:      f.DeploymentTargets,
			UnknownScopeStrategy:   orDefault(f.UnknownScope, DefaultUnknownScopeStrategy),
			Concurrency:            concurrency,
		},
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
