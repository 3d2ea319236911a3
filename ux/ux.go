// Package ux renders operator-facing output: step headers, confirmation
// prompts and the liveness spinner around background child operations.
// Everything shown here is mirrored to the durable log.
package ux

import (
	"bufio"
	"io"
	"os"
	"strings"
	"time"

	"github.com/pterm/pterm"

	"github.com/nyx-io/provisioner/shell"
	"github.com/nyx-io/provisioner/types"
)

// pollInterval is how often the spinner checks a background task for
// liveness. Feedback only; the task's outcome is taken from Wait.
const pollInterval = 150 * time.Millisecond

type UX struct {
	ctx types.RunContext
	log types.Logger
	// in is the confirmation input stream, stdin outside tests.
	in io.Reader
}

func New(ctx types.RunContext, log types.Logger) *UX {
	if ctx.NoColor {
		pterm.DisableColor()
	}
	return &UX{ctx: ctx, log: log, in: os.Stdin}
}

// NewWithInput returns a UX reading confirmations from in, for tests.
func NewWithInput(ctx types.RunContext, log types.Logger, in io.Reader) *UX {
	u := New(ctx, log)
	u.in = in
	return u
}

// Step announces a pipeline stage.
func (u *UX) Step(msg string) {
	u.log.Infof("step: %s", msg)
	if !u.ctx.Quiet {
		pterm.DefaultSection.Println(msg)
	}
}

// Success reports a completed stage.
func (u *UX) Success(msg string) {
	u.log.Infof("success: %s", msg)
	if !u.ctx.Quiet {
		pterm.Success.Println(msg)
	}
}

// Warn surfaces a recoverable condition.
func (u *UX) Warn(msg string) {
	u.log.Warnf("%s", msg)
	if !u.ctx.Quiet {
		pterm.Warning.Println(msg)
	}
}

// Fail reports a failed stage together with the diagnostic tail of the
// underlying tool.
func (u *UX) Fail(res types.ValidationResult) {
	u.log.Errorf("%s: %s", res.Kind, res.Message)
	u.log.Tail(string(res.Kind), res.Tail)
	if u.ctx.Quiet {
		return
	}
	pterm.Error.Println(res.Message)
	for _, line := range res.Tail {
		pterm.Println(pterm.Gray("  " + line))
	}
}

// Confirm asks a yes/no question. Force-yes answers affirmatively without
// prompting; non-interactive returns the default. Only an explicit "y" or
// "yes" counts as affirmative.
func (u *UX) Confirm(prompt string, defaultYes bool) bool {
	if u.ctx.ForceYes {
		u.log.Infof("confirm %q: forced yes", prompt)
		return true
	}
	if u.ctx.NonInteractive {
		u.log.Infof("confirm %q: non-interactive, default %v", prompt, defaultYes)
		return defaultYes
	}
	suffix := " [y/N] "
	if defaultYes {
		suffix = " [Y/n] "
	}
	pterm.Print(prompt + suffix)
	reader := bufio.NewReader(u.in)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return defaultYes
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	if answer == "" {
		u.log.Infof("confirm %q: default %v", prompt, defaultYes)
		return defaultYes
	}
	ok := answer == "y" || answer == "yes"
	u.log.Infof("confirm %q: %v", prompt, ok)
	return ok
}

// Track animates a spinner while the background task runs, then prints a
// success or failure glyph derived from the task's final status and returns
// that status.
func (u *UX) Track(t *shell.TaskHandle, label string) error {
	var spinner *pterm.SpinnerPrinter
	if !u.ctx.Quiet {
		spinner, _ = pterm.DefaultSpinner.Start(label)
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
poll:
	for {
		select {
		case <-t.Done():
			break poll
		case <-ticker.C:
			// Liveness poll only. The spinner animates itself; the
			// tick keeps the loop responsive to completion.
		}
	}

	err := t.Wait()
	if spinner != nil {
		if err != nil {
			spinner.Fail(label)
		} else {
			spinner.Success(label)
		}
	}
	if err != nil {
		u.log.Errorf("%s: %v", t.Description, err)
	} else {
		u.log.Infof("%s: done", t.Description)
	}
	return err
}
