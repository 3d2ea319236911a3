// Package cli exposes the installer commands. Flags map one to one onto
// the RunContext; the pipeline itself lives in pipeline.go.
package cli

import (
	"fmt"

	vfs "github.com/twpayne/go-vfs/v4"
	"github.com/urfave/cli/v2"

	"github.com/nyx-io/provisioner/config"
	"github.com/nyx-io/provisioner/types"
)

var (
	dryRunFlag = &cli.BoolFlag{
		Name:    "dry-run",
		Usage:   "simulate every mutating operation, log what would happen",
		EnvVars: []string{"PROVISIONER_DRY_RUN"},
	}

	nonInteractiveFlag = &cli.BoolFlag{
		Name:    "non-interactive",
		Usage:   "never prompt; confirmations take their default answer",
		EnvVars: []string{"PROVISIONER_NON_INTERACTIVE"},
	}

	yesFlag = &cli.BoolFlag{
		Name:    "yes",
		Aliases: []string{"y"},
		Usage:   "answer every confirmation affirmatively",
		EnvVars: []string{"PROVISIONER_YES"},
	}

	quietFlag = &cli.BoolFlag{
		Name:    "quiet",
		Aliases: []string{"q"},
		Usage:   "suppress the interactive stream (the log file is always written)",
		EnvVars: []string{"PROVISIONER_QUIET"},
	}

	debugFlag = &cli.BoolFlag{
		Name:    "debug",
		Usage:   "log debug records",
		EnvVars: []string{"PROVISIONER_DEBUG"},
	}

	noColorFlag = &cli.BoolFlag{
		Name:    "no-color",
		Usage:   "disable colored output",
		EnvVars: []string{"NO_COLOR"},
	}

	logFileFlag = &cli.StringFlag{
		Name:    "log-file",
		Value:   "/tmp/nyx-provisioner.log",
		Usage:   "durable log destination",
		EnvVars: []string{"PROVISIONER_LOG_FILE"},
	}

	configFlag = &cli.StringFlag{
		Name:    "config",
		Value:   "/etc/nyx-provisioner.yaml",
		Usage:   "installer defaults file",
		EnvVars: []string{"PROVISIONER_CONFIG"},
	}

	deviceFlag = &cli.StringFlag{
		Name:  "device",
		Usage: "target block device, e.g. /dev/nvme0n1",
	}

	modeFlag = &cli.StringFlag{
		Name:  "mode",
		Value: string(types.ModeFresh),
		Usage: "install mode: fresh (wipe disk) or dual-boot (coexist)",
	}

	machineFlag = &cli.StringFlag{
		Name:  "machine",
		Usage: "target machine from the configuration catalog",
	}

	userFlag = &cli.StringFlag{
		Name:  "user",
		Usage: "account name for the installed system (defaults to the configuration's)",
	}

	repoFlag = &cli.StringFlag{
		Name:  "repo",
		Usage: "configuration repository URL (overrides the defaults file)",
	}

	branchFlag = &cli.StringFlag{
		Name:  "branch",
		Usage: "configuration repository branch (overrides the defaults file)",
	}
)

func globalFlags() []cli.Flag {
	return []cli.Flag{
		dryRunFlag, nonInteractiveFlag, yesFlag, quietFlag, debugFlag,
		noColorFlag, logFileFlag, configFlag,
	}
}

// ContextFromFlags builds the immutable RunContext. Read once; nothing
// re-reads the environment afterwards.
func ContextFromFlags(c *cli.Context) types.RunContext {
	return types.RunContext{
		DryRun:         c.Bool(dryRunFlag.Name),
		NonInteractive: c.Bool(nonInteractiveFlag.Name),
		ForceYes:       c.Bool(yesFlag.Name),
		Quiet:          c.Bool(quietFlag.Name),
		Debug:          c.Bool(debugFlag.Name),
		NoColor:        c.Bool(noColorFlag.Name),
		LogPath:        c.String(logFileFlag.Name),
	}
}

func loadDefaults(c *cli.Context) (config.Defaults, error) {
	d, err := config.Load(vfs.OSFS, c.String(configFlag.Name))
	if err != nil {
		return d, err
	}
	if v := c.String(repoFlag.Name); v != "" {
		d.RepoURL = v
	}
	if v := c.String(branchFlag.Name); v != "" {
		d.Branch = v
	}
	return d, nil
}

// CliCommands returns the installer's command set.
func CliCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "install",
			Usage: "run the full provisioning pipeline against a target disk",
			Flags: append(globalFlags(), deviceFlag, modeFlag, machineFlag, userFlag, repoFlag, branchFlag),
			Action: func(c *cli.Context) error {
				p, err := newPipeline(c)
				if err != nil {
					return cli.Exit(err.Error(), 1)
				}
				defer p.close()
				return p.install(c)
			},
		},
		{
			Name:  "check",
			Usage: "validate the environment and external tool dependencies only",
			Flags: globalFlags(),
			Action: func(c *cli.Context) error {
				p, err := newPipeline(c)
				if err != nil {
					return cli.Exit(err.Error(), 1)
				}
				defer p.close()
				return p.check()
			},
		},
		{
			Name:  "machines",
			Usage: "list installable machines in the staged configuration",
			Flags: append(globalFlags(), repoFlag, branchFlag),
			Action: func(c *cli.Context) error {
				p, err := newPipeline(c)
				if err != nil {
					return cli.Exit(err.Error(), 1)
				}
				defer p.close()
				return p.listMachines()
			},
		},
		{
			Name:  "plan",
			Usage: "compute and print the partition plan without mutating anything",
			Flags: append(globalFlags(), deviceFlag, modeFlag),
			Action: func(c *cli.Context) error {
				p, err := newPipeline(c)
				if err != nil {
					return cli.Exit(err.Error(), 1)
				}
				defer p.close()
				return p.printPlan(c)
			},
		},
	}
}

func machineNames(list []types.MachineDescriptor) []string {
	names := make([]string, len(list))
	for i, m := range list {
		names[i] = m.Name
	}
	return names
}

func findMachine(list []types.MachineDescriptor, name string) (types.MachineDescriptor, error) {
	for _, m := range list {
		if m.Name == name {
			return m, nil
		}
	}
	return types.MachineDescriptor{}, fmt.Errorf("machine %q not in catalog %v", name, machineNames(list))
}
