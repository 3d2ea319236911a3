// Package buildcheck confirms a configuration is buildable before anything
// irreversible happens, by driving the build evaluator in its non-mutating
// dry mode.
package buildcheck

import (
	"fmt"

	"github.com/nyx-io/provisioner/shell"
	"github.com/nyx-io/provisioner/types"
	"github.com/nyx-io/provisioner/ux"
)

type Validator struct {
	runner *shell.Runner
	log    types.Logger
	ux     *ux.UX
}

func New(runner *shell.Runner, log types.Logger, u *ux.UX) *Validator {
	return &Validator{runner: runner, log: log, ux: u}
}

// TargetRef renders the evaluator reference for a machine in the staged
// tree.
func TargetRef(stagedDir, machine string) string {
	return fmt.Sprintf("%s#nixosConfigurations.%s.config.system.build.toplevel", stagedDir, machine)
}

// Validate runs the evaluator against targetRef without building anything.
// Under dry-run the invocation itself is simulated and reported as success.
// A failure carries the evaluator's diagnostic tail for triage.
func (v *Validator) Validate(targetRef string) types.ValidationResult {
	if v.runner.DryRun() {
		v.log.WouldPerform(fmt.Sprintf("dry-build %s", targetRef))
		return types.Pass()
	}

	task := v.runner.Start(
		fmt.Sprintf("dry-build %s", targetRef),
		"nix", "build", "--dry-run", "--no-link", targetRef,
	)
	if err := v.ux.Track(task, "Validating configuration build"); err != nil {
		return types.Failf(types.BuildValidationError, "configuration %s does not build: %v", targetRef, err).
			WithTail(task.Tail())
	}
	return types.Pass()
}
