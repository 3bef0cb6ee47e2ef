package cliexec

import (
	"context"
	"strings"
	"sync"
)

// FakeExecutor is a scripted Executor for tests. Responses are keyed by the
// joined argument list; Execute falls back to a NotFound-shaped failure for
// any unscripted invocation. Rescripting a key mid-test is allowed, which
// is how tests model a CLI that starts failing and later recovers.
type FakeExecutor struct {
	mu        sync.Mutex
	responses map[string]Result
	calls     []string
}

// NewFakeExecutor constructs an empty FakeExecutor.
func NewFakeExecutor() *FakeExecutor {
	return &FakeExecutor{responses: make(map[string]Result)}
}

// On scripts the Result returned for the given argument list.
func (f *FakeExecutor) On(result Result, args ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[strings.Join(args, " ")] = result
}

// Calls returns every argument list Execute was invoked with, in order.
func (f *FakeExecutor) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.calls...)
}

func (f *FakeExecutor) Execute(_ context.Context, args ...string) (Result, error) {
	key := strings.Join(args, " ")
	f.mu.Lock()
	f.calls = append(f.calls, key)
	result, ok := f.responses[key]
	f.mu.Unlock()
	if !ok {
		return Result{Success: false, Stderr: "no such command", ExitCode: 127}, nil
	}
	return result, nil
}
