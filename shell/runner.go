// Package shell runs external tools on behalf of the pipeline. Every
// destructive call goes through Runner.RunOrSimulate so dry-run cannot be
// bypassed by a new call site.
package shell

import (
	"bytes"
	"fmt"
	"os/exec"
	"strings"

	"github.com/google/shlex"

	"github.com/nyx-io/provisioner/types"
)

// TailLines is how many trailing diagnostic lines are kept from a failed
// tool invocation.
const TailLines = 20

type Runner struct {
	ctx types.RunContext
	log types.Logger
}

func NewRunner(ctx types.RunContext, log types.Logger) *Runner {
	return &Runner{ctx: ctx, log: log}
}

// DryRun reports whether the runner simulates mutating calls.
func (r *Runner) DryRun() bool {
	return r.ctx.DryRun
}

// RunOrSimulate is the single gate for mutating operations. Under dry-run it
// emits exactly one structured log line and reports success; otherwise it
// executes the command and returns its error together with the diagnostic
// tail.
func (r *Runner) RunOrSimulate(description string, name string, args ...string) ([]string, error) {
	if r.ctx.DryRun {
		r.log.WouldPerform(description)
		return nil, nil
	}
	r.log.Debugf("running: %s %s", name, strings.Join(args, " "))
	cmd := exec.Command(name, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	tail := Tail(out.String(), TailLines)
	if err != nil {
		return tail, fmt.Errorf("%s: %w", description, err)
	}
	return tail, nil
}

// RunOrSimulateLine is RunOrSimulate for a full command line, split with
// shell quoting rules.
func (r *Runner) RunOrSimulateLine(description, line string) ([]string, error) {
	fields, err := shlex.Split(line)
	if err != nil {
		return nil, fmt.Errorf("parsing command %q: %w", line, err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty command for %q", description)
	}
	return r.RunOrSimulate(description, fields[0], fields[1:]...)
}

// Output runs a non-mutating query command and returns its stdout. Queries
// run even under dry-run; they do not change state.
func (r *Runner) Output(name string, args ...string) (string, error) {
	r.log.Debugf("querying: %s %s", name, strings.Join(args, " "))
	cmd := exec.Command(name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s: %w (%s)", name, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// Tail returns the last n non-empty lines of s.
func Tail(s string, n int) []string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}
