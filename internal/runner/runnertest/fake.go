// Package runnertest provides a scripted runner.Runner for tests.
package runnertest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"opentune/internal/runner"
)

// Response is what the fake returns for a matching command.
type Response struct {
	Result runner.Result
	Err    error

	// Do runs before the response is returned, e.g. to create files the
	// real tool would have produced.
	Do func(cmd runner.Command)
}

type rule struct {
	match    func(cmd runner.Command) bool
	response Response
	times    int // 0 means unlimited
}

// Fake records every command and answers from registered rules. Commands that
// match no rule succeed with empty output.
type Fake struct {
	mu    sync.Mutex
	rules []*rule
	calls []runner.Command
}

// New creates an empty Fake.
func New() *Fake {
	return &Fake{}
}

// On registers a response for commands whose "name args..." line contains
// all of the given fragments. Later registrations take precedence.
func (f *Fake) On(resp Response, fragments ...string) *Fake {
	return f.OnFunc(func(cmd runner.Command) bool {
		line := cmd.String()
		for _, frag := range fragments {
			if !strings.Contains(line, frag) {
				return false
			}
		}
		return true
	}, resp)
}

// Once is like On but the rule is consumed after one match.
func (f *Fake) Once(resp Response, fragments ...string) *Fake {
	f.On(resp, fragments...)
	f.mu.Lock()
	f.rules[len(f.rules)-1].times = 1
	f.mu.Unlock()
	return f
}

// OnFunc registers a response for commands accepted by match.
func (f *Fake) OnFunc(match func(cmd runner.Command) bool, resp Response) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, &rule{match: match, response: resp})
	return f
}

// Run implements runner.Runner.
func (f *Fake) Run(ctx context.Context, cmd runner.Command) (runner.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	var resp *Response
	for i := len(f.rules) - 1; i >= 0; i-- {
		r := f.rules[i]
		if r.times < 0 || !r.match(cmd) {
			continue
		}
		if r.times == 1 {
			r.times = -1
		}
		resp = &r.response
		break
	}
	f.mu.Unlock()

	if resp == nil {
		return runner.Result{}, nil
	}
	if resp.Do != nil {
		resp.Do(cmd)
	}
	return resp.Result, resp.Err
}

// Calls returns the recorded commands.
func (f *Fake) Calls() []runner.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]runner.Command, len(f.calls))
	copy(out, f.calls)
	return out
}

// Lines returns the recorded commands rendered with Command.String.
func (f *Fake) Lines() []string {
	calls := f.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.String()
	}
	return out
}

// Count returns how many recorded commands contain all fragments.
func (f *Fake) Count(fragments ...string) int {
	n := 0
	for _, line := range f.Lines() {
		matched := true
		for _, frag := range fragments {
			if !strings.Contains(line, frag) {
				matched = false
				break
			}
		}
		if matched {
			n++
		}
	}
	return n
}

// Exit builds a Response with the given exit code and stderr.
func Exit(code int, stderr string) Response {
	return Response{Result: runner.Result{ExitCode: code, Stderr: stderr}}
}

// Stdout builds a successful Response with the given stdout.
func Stdout(format string, args ...any) Response {
	return Response{Result: runner.Result{Stdout: fmt.Sprintf(format, args...)}}
}
