package cli

import (
	"fmt"
	"path/filepath"

	"github.com/pterm/pterm"
	vfs "github.com/twpayne/go-vfs/v4"
	"github.com/urfave/cli/v2"

	"github.com/nyx-io/provisioner/account"
	"github.com/nyx-io/provisioner/blockdev"
	"github.com/nyx-io/provisioner/buildcheck"
	"github.com/nyx-io/provisioner/config"
	"github.com/nyx-io/provisioner/deps"
	"github.com/nyx-io/provisioner/environment"
	"github.com/nyx-io/provisioner/gitrepo"
	"github.com/nyx-io/provisioner/machines"
	"github.com/nyx-io/provisioner/partitioner"
	"github.com/nyx-io/provisioner/shell"
	"github.com/nyx-io/provisioner/types"
	"github.com/nyx-io/provisioner/ux"
)

// pipeline wires every stage together. It is strictly sequential and
// fail-fast: the first failing stage aborts the run with a non-zero exit
// and the failing tool's diagnostic tail on the interactive stream.
type pipeline struct {
	runCtx   types.RunContext
	log      types.Logger
	ux       *ux.UX
	runner   *shell.Runner
	defaults config.Defaults
	fsys     vfs.FS
}

func newPipeline(c *cli.Context) (*pipeline, error) {
	runCtx := ContextFromFlags(c)
	defaults, err := loadDefaults(c)
	if err != nil {
		return nil, err
	}
	log := types.NewLogger(runCtx.LogPath, runCtx.LogLevel(), runCtx.Quiet, runCtx.NoColor)
	u := ux.New(runCtx, log)
	return &pipeline{
		runCtx:   runCtx,
		log:      log,
		ux:       u,
		runner:   shell.NewRunner(runCtx, log),
		defaults: defaults,
		fsys:     vfs.OSFS,
	}, nil
}

func (p *pipeline) close() {
	p.log.Close()
}

// fail reports the result and converts it to the process exit error.
func (p *pipeline) fail(res types.ValidationResult) error {
	p.ux.Fail(res)
	return cli.Exit(fmt.Sprintf("%s: %s", res.Kind, res.Message), 1)
}

func (p *pipeline) check() error {
	p.ux.Step("Validating environment")
	env := environment.NewValidator(p.runCtx, p.log, p.ux, p.defaults.LiveMarker)
	if res := env.Validate(); !res.OK {
		return p.fail(res)
	}
	p.ux.Success("Environment looks usable")

	p.ux.Step("Resolving tool dependencies")
	if res := deps.Resolve(p.log, deps.Required()...); !res.OK {
		return p.fail(res)
	}
	p.ux.Success("All required tools present")
	return nil
}

func (p *pipeline) stage() (types.RepoStaging, error) {
	p.ux.Step("Staging configuration repository")
	stager := gitrepo.NewStager(p.runner, p.fsys, p.log, p.ux)
	staging, res := stager.Stage(p.defaults.RepoURL, p.defaults.Branch, p.defaults.StagingDir)
	if !res.OK {
		return staging, p.fail(res)
	}
	p.ux.Success(fmt.Sprintf("Configuration staged at %s", staging.TargetDir))
	return staging, nil
}

func (p *pipeline) listMachines() error {
	if _, err := p.stage(); err != nil {
		return err
	}
	list, res := machines.Discover(p.fsys, filepath.Join(p.defaults.StagingDir, p.defaults.MachinesSubdir))
	if !res.OK {
		return p.fail(res)
	}
	for _, m := range list {
		pterm.Println(m.Name)
	}
	return nil
}

func (p *pipeline) printPlan(c *cli.Context) error {
	device := c.String(deviceFlag.Name)
	if device == "" {
		return cli.Exit("--device is required", 1)
	}
	mode, err := types.ParseInstallMode(c.String(modeFlag.Name))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	plan, res := p.computePlan(device, mode)
	if !res.OK {
		return p.fail(res)
	}
	p.describePlan(plan)
	return nil
}

func (p *pipeline) computePlan(device string, mode types.InstallMode) (*partitioner.Plan, types.ValidationResult) {
	disk, err := blockdev.Probe(blockdev.NewPaths(""), p.runner, device, &p.log)
	if err != nil {
		return nil, types.Failf(types.DiskError, "probing %s: %v", device, err)
	}
	planner := partitioner.NewPlanner(p.defaults.ESPSizeMiB, p.defaults.FreeSpaceMinBytes)
	if mode == types.ModeDualBoot {
		return planner.PlanDualBoot(disk)
	}
	return planner.PlanFresh(disk)
}

func (p *pipeline) describePlan(plan *partitioner.Plan) {
	bootAction := "reuse existing"
	if plan.Boot.Create {
		bootAction = "create"
	}
	p.log.Infof("plan for %s (%s): boot %s %s, root create %s",
		plan.Disk.Path, plan.Mode, bootAction, plan.Boot.Path, plan.Root.Path)
	if p.runCtx.Quiet {
		return
	}
	data := pterm.TableData{
		{"Role", "Action", "Device", "Sectors"},
		{"boot", bootAction, plan.Boot.Path, sectorSpan(plan.Boot)},
		{"root", "create", plan.Root.Path, sectorSpan(plan.Root)},
	}
	_ = pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func sectorSpan(part partitioner.PlannedPartition) string {
	if !part.Create {
		return "-"
	}
	if part.EndSector == 0 {
		return fmt.Sprintf("%d-end", part.StartSector)
	}
	return fmt.Sprintf("%d-%d", part.StartSector, part.EndSector)
}

func (p *pipeline) install(c *cli.Context) error {
	device := c.String(deviceFlag.Name)
	if device == "" {
		return cli.Exit("--device is required", 1)
	}
	mode, err := types.ParseInstallMode(c.String(modeFlag.Name))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	// Gate everything on the environment and tool checks.
	if err := p.check(); err != nil {
		return err
	}

	staging, err := p.stage()
	if err != nil {
		return err
	}

	p.ux.Step("Selecting target machine")
	catalogDir := filepath.Join(staging.TargetDir, p.defaults.MachinesSubdir)
	catalog, res := machines.Discover(p.fsys, catalogDir)
	if !res.OK {
		// Under dry-run the clone was simulated, so the catalog may not
		// exist on disk. The machine flag stands in for discovery.
		if !p.runCtx.DryRun {
			return p.fail(res)
		}
		name := c.String(machineFlag.Name)
		if name == "" {
			return cli.Exit("--machine is required under dry-run when no staged catalog exists", 1)
		}
		catalog = []types.MachineDescriptor{{Name: name, ConfigPath: filepath.Join(catalogDir, name)}}
	}
	machine, err := p.selectMachine(c, catalog)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	p.ux.Success(fmt.Sprintf("Installing machine %q", machine.Name))

	p.ux.Step("Resolving default account")
	resolver := account.NewResolver(p.runner, p.fsys, p.log, p.defaults.FallbackUser)
	detected := resolver.ResolveDefaultUser(staging.TargetDir)
	requested := account.Suggest(c.String(userFlag.Name))
	if requested == "" {
		requested = detected
	}
	if err := account.ValidateUsername(requested); err != nil {
		return cli.Exit(err.Error(), 1)
	}
	if p.runCtx.DryRun {
		if requested != detected {
			p.log.WouldPerform(fmt.Sprintf("write user override for %s (%s instead of %s)", machine.Name, requested, detected))
		}
	} else if overridePath, err := resolver.WriteUserOverride(machine, requested, detected); err != nil {
		return cli.Exit(err.Error(), 1)
	} else if overridePath != "" {
		p.ux.Success(fmt.Sprintf("Account override written to %s", overridePath))
	}

	p.ux.Step("Planning disk layout")
	plan, res := p.computePlan(device, mode)
	if !res.OK {
		return p.fail(res)
	}
	p.describePlan(plan)

	warning := fmt.Sprintf("About to repartition %s (%s mode). This cannot be undone. Continue?", device, mode)
	if !p.ux.Confirm(warning, false) {
		return cli.Exit("aborted by operator", 1)
	}

	p.ux.Step("Applying partition plan")
	if res := partitioner.Apply(p.runner, plan); !res.OK {
		return p.fail(res)
	}
	// The plan's paths are predictions; the kernel decides the real
	// numbering. Re-probe and resolve before anything formats.
	if !p.runCtx.DryRun {
		probed, err := blockdev.Probe(blockdev.NewPaths(""), p.runner, device, &p.log)
		if err != nil {
			return p.fail(types.Failf(types.DiskError, "re-probing %s after partitioning: %v", device, err))
		}
		if err := partitioner.ResolveCreated(probed, plan); err != nil {
			return p.fail(types.Failf(types.DiskError, "%v", err))
		}
	}
	if plan.Boot.Format {
		if res := partitioner.FormatPartition(p.runner, p.log, plan.Boot.Path, types.RoleESP); !res.OK {
			return p.fail(res)
		}
	}
	if hook := p.defaults.PostPartitionHook; hook != "" {
		if tail, err := p.runner.RunOrSimulateLine("run post-partition hook", hook); err != nil {
			return p.fail(types.Failf(types.DiskError, "post-partition hook failed: %v", err).WithTail(tail))
		}
	}
	p.ux.Success("Partitions ready")

	p.ux.Step("Validating configuration build")
	checker := buildcheck.New(p.runner, p.log, p.ux)
	if res := checker.Validate(buildcheck.TargetRef(staging.TargetDir, machine.Name)); !res.OK {
		return p.fail(res)
	}
	p.ux.Success("Configuration builds cleanly")

	p.ux.Success(fmt.Sprintf("Target prepared. Next: mount %s and run the system installation for %q.",
		plan.Root.Path, machine.Name))
	return nil
}

func (p *pipeline) selectMachine(c *cli.Context, catalog []types.MachineDescriptor) (types.MachineDescriptor, error) {
	if name := c.String(machineFlag.Name); name != "" {
		return findMachine(catalog, name)
	}
	if p.runCtx.NonInteractive || p.runCtx.Quiet {
		return types.MachineDescriptor{}, fmt.Errorf("--machine is required in non-interactive mode")
	}
	name, err := pterm.DefaultInteractiveSelect.
		WithOptions(machineNames(catalog)).
		Show("Select target machine")
	if err != nil {
		return types.MachineDescriptor{}, err
	}
	return findMachine(catalog, name)
}
