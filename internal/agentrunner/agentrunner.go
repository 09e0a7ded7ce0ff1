// Package agentrunner implements the AgentRunner and MergerAgent
// collaborators (spec §6) by shelling out to the claude/codex CLIs.
//
// Grounded verbatim in the teacher's internal/provider package
// (ClaudeProvider/CodexProvider subprocess invocation, StreamHandler JSON
// parsing, provider.FromConfig selection) generalized from "invoke a
// provider for a unit" to "spawn the agent bound to a task's coding
// attempt or merge-conflict resolution", per collab.AgentRunner's chunked
// output + kill-signal contract.
package agentrunner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/opensprint/core/internal/collab"
	"github.com/opensprint/core/internal/model"
	"github.com/opensprint/core/internal/provider"
)

// Runner implements collab.AgentRunner and collab.MergerAgent over the
// teacher's provider.Provider subprocess abstraction.
type Runner struct {
	mu     sync.Mutex
	cancel context.CancelFunc
}

// New creates an agent runner. One Runner is bound to a single Slot at a
// time — the scheduler creates a fresh Runner per admitted task.
func New() *Runner {
	return &Runner{}
}

// providerFor resolves which CLI to invoke for a coding attempt. The
// complex-complexity agent is preferred when configured; it falls back to
// the simple-complexity agent, then to the teacher's own Claude default.
func providerFor(cfg model.ProjectSettings) (provider.Provider, error) {
	agentType := cfg.ComplexComplexityAgent
	if agentType == "" {
		agentType = cfg.SimpleComplexityAgent
	}
	p, err := provider.FromConfig(provider.Config{Type: provider.ProviderType(agentType)})
	if err != nil {
		return nil, err
	}
	if cp, ok := p.(*provider.ClaudeProvider); ok {
		cp.SetPTY(true)
	}
	return p, nil
}

// chunkWriter forwards every Write to chunks as an AgentChunk while also
// buffering everything seen, so Failure Policy's reason enrichment can
// search the accumulated output log after the process exits.
type chunkWriter struct {
	chunks chan<- collab.AgentChunk
	buf    bytes.Buffer
	mu     sync.Mutex
}

func (w *chunkWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	w.buf.Write(p)
	w.mu.Unlock()

	cp := make([]byte, len(p))
	copy(cp, p)
	if w.chunks != nil {
		select {
		case w.chunks <- collab.AgentChunk{Data: cp}:
		default:
			// A slow/absent subscriber never blocks the agent subprocess.
		}
	}
	return len(p), nil
}

func (w *chunkWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}

// Spawn runs the configured provider's CLI with prompt (systemPrompt, if
// non-empty, is prepended) in cwd, streaming output chunks until the
// process exits or ctx is cancelled (directly, or via Kill).
func (r *Runner) Spawn(ctx context.Context, cfg model.ProjectSettings, prompt, systemPrompt, cwd string, chunks chan<- collab.AgentChunk) (collab.AgentResult, error) {
	p, err := providerFor(cfg)
	if err != nil {
		return collab.AgentResult{}, err
	}

	full := prompt
	if systemPrompt != "" {
		full = systemPrompt + "\n\n" + prompt
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.cancel = nil
		r.mu.Unlock()
	}()

	out := &chunkWriter{chunks: chunks}
	invokeErr := p.Invoke(runCtx, full, cwd, out, out)

	killed := runCtx.Err() == context.Canceled && ctx.Err() == nil
	if invokeErr != nil {
		if killed {
			return collab.AgentResult{ExitCode: -1, Killed: true}, nil
		}
		return collab.AgentResult{ExitCode: 1}, invokeErr
	}
	return collab.AgentResult{ExitCode: 0}, nil
}

// Kill cancels the in-flight Spawn, if any. Killing a subprocess is the
// only cancellation primitive the core exposes (spec §5).
func (r *Runner) Kill(ctx context.Context) error {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

// mergerPrompt renders the merger-agent instructions for a conflict
// resolution attempt, grounded in the teacher's
// Worker.resolveConflictsWithClaude prompt construction.
func mergerPrompt(req collab.MergerAgentRequest) string {
	return fmt.Sprintf(
		"Resolve the git conflicts on the following files for task %q (branch %s), phase %s.\n"+
			"Conflicted files:\n  - %s\n"+
			"After resolving, the change must satisfy: %s\n"+
			"Stage your resolution; do not commit.",
		req.Task.Title, req.Branch, req.Phase,
		joinLines(req.ConflictFiles),
		nonEmpty(req.TestCommand, "the project's existing test suite"),
	)
}

func joinLines(files []string) string {
	if len(files) == 0 {
		return "(none listed)"
	}
	var b bytes.Buffer
	for i, f := range files {
		if i > 0 {
			b.WriteString("\n  - ")
		}
		b.WriteString(f)
	}
	return b.String()
}

func nonEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// MergerRunner implements collab.MergerAgent by invoking a dedicated
// Claude CLI session (always Claude regardless of task provider, matching
// the teacher's ClaudeCommand-for-conflict-resolution convention in
// orchestrator.Config) to resolve the conflicted files in place.
type MergerRunner struct {
	Command string
}

// RunMergerAgent shells out once per spec §4.6.5/§6 MergerAgent contract,
// discarding conflict-resolution chatter to an internal buffer and
// reporting resolved=true only when the subprocess exits cleanly.
func (m *MergerRunner) RunMergerAgent(ctx context.Context, req collab.MergerAgentRequest) (bool, error) {
	p := provider.NewClaude(m.Command)
	var buf bytes.Buffer
	err := p.Invoke(ctx, mergerPrompt(req), req.Cwd, &buf, &buf)
	if err != nil {
		return false, err
	}
	return true, nil
}

var _ collab.AgentRunner = (*Runner)(nil)
var _ collab.MergerAgent = (*MergerRunner)(nil)
var _ io.Writer = (*chunkWriter)(nil)
