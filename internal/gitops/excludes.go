package gitops

import (
	gitignore "github.com/sabhiram/go-gitignore"
)

// RuntimeExcludePatterns is the single authoritative list of gitignore-style
// patterns matching orchestrator state that must never be committed to the
// integration branch. Per the spec's design notes, WIP-commit, merge
// auto-resolve, and the cleanup step must all consult this one list;
// divergence between call sites is a known source of subtle bugs, so every
// call site in this package goes through IsRuntimeExcluded.
var RuntimeExcludePatterns = []string{
	".opensprint/pending-commits.json",
	".opensprint/sessions/",
	".opensprint/active/",
}

var runtimeExcludeMatcher = gitignore.CompileIgnoreLines(RuntimeExcludePatterns...)

// IsRuntimeExcluded reports whether path falls under one of the
// runtime-exclude patterns, using gitignore match semantics (directory
// prefixes, trailing slashes) instead of a plain strings.HasPrefix check.
func IsRuntimeExcluded(path string) bool {
	return runtimeExcludeMatcher.MatchesPath(path)
}
