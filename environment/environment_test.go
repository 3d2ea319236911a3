package environment

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nyx-io/provisioner/types"
	"github.com/nyx-io/provisioner/ux"
)

func newTestValidator(t *testing.T, ctx types.RunContext) *Validator {
	t.Helper()
	ctx.Quiet = true
	log := types.NewNullLogger()
	v := NewValidator(ctx, log, ux.New(ctx, log), "")
	// No probes: network checks are exercised separately from Validate.
	v.HTTPEndpoints = nil
	v.PingHosts = nil
	return v
}

func TestValidateRejectsRoot(t *testing.T) {
	v := newTestValidator(t, types.RunContext{DryRun: true})
	v.geteuid = func() int { return 0 }

	res := v.Validate()
	if res.OK {
		t.Fatal("running as root must fail")
	}
	if res.Kind != types.EnvironmentError {
		t.Errorf("kind: got %s", res.Kind)
	}
}

func TestValidateRequiresSudoOutsideDryRun(t *testing.T) {
	v := newTestValidator(t, types.RunContext{})
	v.geteuid = func() int { return 1000 }
	v.lookPath = func(string) (string, error) { return "", os.ErrNotExist }

	if res := v.Validate(); res.OK {
		t.Error("missing sudo must fail outside dry-run")
	}

	dry := newTestValidator(t, types.RunContext{DryRun: true})
	dry.geteuid = func() int { return 1000 }
	dry.lookPath = func(string) (string, error) { return "", os.ErrNotExist }
	if res := dry.Validate(); !res.OK {
		t.Errorf("sudo check must be skipped under dry-run: %s", res.Message)
	}
}

func TestMissingLiveMarkerIsGatedNotFatal(t *testing.T) {
	// Non-interactive with default "no" refuses to continue.
	v := newTestValidator(t, types.RunContext{DryRun: true, NonInteractive: true})
	v.geteuid = func() int { return 1000 }
	v.LiveMarker = "/etc/NIXOS"
	v.Root = t.TempDir()

	if res := v.Validate(); res.OK {
		t.Error("declined confirmation must fail the validation")
	}

	// Force-yes passes the gate.
	forced := newTestValidator(t, types.RunContext{DryRun: true, ForceYes: true})
	forced.geteuid = func() int { return 1000 }
	forced.LiveMarker = "/etc/NIXOS"
	forced.Root = t.TempDir()
	if res := forced.Validate(); !res.OK {
		t.Errorf("forced confirmation must pass: %s", res.Message)
	}

	// A present marker needs no confirmation at all.
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "etc"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "etc", "NIXOS"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	present := newTestValidator(t, types.RunContext{DryRun: true, NonInteractive: true})
	present.geteuid = func() int { return 1000 }
	present.LiveMarker = "/etc/NIXOS"
	present.Root = root
	if res := present.Validate(); !res.OK {
		t.Errorf("marker present must pass: %s", res.Message)
	}
}

func TestBootMode(t *testing.T) {
	root := t.TempDir()
	v := newTestValidator(t, types.RunContext{DryRun: true})
	v.Root = root

	if got := v.BootMode(); got != "legacy" {
		t.Errorf("without efi dir: got %q", got)
	}

	if err := os.MkdirAll(filepath.Join(root, "sys", "firmware", "efi"), 0o755); err != nil {
		t.Fatal(err)
	}
	if got := v.BootMode(); got != "UEFI" {
		t.Errorf("with efi dir: got %q", got)
	}
}
