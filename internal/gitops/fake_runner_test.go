package gitops

import (
	"context"
	"fmt"
	"strings"
)

// fakeRunner is a scriptable Runner for unit tests, grounded in the
// teacher's internal/git/fake_runner_test.go seam (Runner injected via
// SetDefaultRunner so callers never shell out to real git in tests).
type fakeRunner struct {
	responses map[string][]fakeResponse
	calls     [][]string
}

type fakeResponse struct {
	stdout string
	err    error
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{responses: map[string][]fakeResponse{}}
}

// on queues a response for the next call matching args, in order.
func (f *fakeRunner) on(args []string, stdout string, err error) {
	k := key(args)
	f.responses[k] = append(f.responses[k], fakeResponse{stdout: stdout, err: err})
}

func key(args []string) string { return strings.Join(args, " ") }

func (f *fakeRunner) Run(ctx context.Context, dir string, args ...string) (string, error) {
	f.calls = append(f.calls, args)
	k := key(args)
	if queue, ok := f.responses[k]; ok && len(queue) > 0 {
		resp := queue[0]
		f.responses[k] = queue[1:]
		return resp.stdout, resp.err
	}
	return "", nil
}

func conflictErr(msg string) error { return fmt.Errorf("exit status 1: %s", msg) }
