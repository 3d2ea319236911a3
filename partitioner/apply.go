package partitioner

import (
	"fmt"
	"time"

	"github.com/nyx-io/provisioner/shell"
	"github.com/nyx-io/provisioner/types"
)

// settleDelay gives the kernel time to register new device nodes after a
// table change, before anything formats them.
const settleDelay = 2 * time.Second

// Apply executes a computed plan against the device. Every mutation goes
// through the runner's execute-or-simulate gate; under dry-run nothing
// reaches the partition editor.
func Apply(runner *shell.Runner, plan *Plan) types.ValidationResult {
	dev := plan.Disk.Path

	if plan.Mode == types.ModeFresh {
		if tail, err := runner.RunOrSimulate(
			fmt.Sprintf("wipe partition table on %s", dev),
			"parted", "-s", dev, "mklabel", "gpt",
		); err != nil {
			return types.Failf(types.DiskError, "wiping %s: %v", dev, err).WithTail(tail)
		}
	}

	if plan.Boot.Create {
		if res := createPartition(runner, dev, plan.Boot, "ESP", "fat32"); !res.OK {
			return res
		}
		if tail, err := runner.RunOrSimulate(
			fmt.Sprintf("mark partition %d on %s as EFI system", plan.Boot.Number, dev),
			"parted", "-s", dev, "set", fmt.Sprintf("%d", plan.Boot.Number), "esp", "on",
		); err != nil {
			return types.Failf(types.DiskError, "flagging boot partition on %s: %v", dev, err).WithTail(tail)
		}
	}

	if res := createPartition(runner, dev, plan.Root, "primary", "ext4"); !res.OK {
		return res
	}
	plan.State = PartitionsCreated

	return Rescan(runner, dev)
}

func createPartition(runner *shell.Runner, dev string, part PlannedPartition, name, fsHint string) types.ValidationResult {
	end := "100%"
	if part.EndSector > 0 {
		end = fmt.Sprintf("%ds", part.EndSector)
	}
	tail, err := runner.RunOrSimulate(
		fmt.Sprintf("create %s partition %d on %s", part.Role, part.Number, dev),
		"parted", "-s", dev, "mkpart", name, fsHint,
		fmt.Sprintf("%ds", part.StartSector), end,
	)
	if err != nil {
		return types.Failf(types.DiskError, "creating %s partition on %s: %v", part.Role, dev, err).WithTail(tail)
	}
	return types.Pass()
}

// ResolveCreated replaces the plan's predicted device paths and numbers
// with the ones an after-apply probe actually reports, matched by start
// sector. Predicted paths are a planning aid only; the kernel assigns the
// real numbering. Reused partitions are left untouched.
func ResolveCreated(disk *types.Disk, plan *Plan) error {
	for _, planned := range []*PlannedPartition{&plan.Boot, &plan.Root} {
		if !planned.Create {
			continue
		}
		part := partitionAtSector(disk, planned.StartSector)
		if part == nil {
			return fmt.Errorf("created %s partition not found at sector %d on %s",
				planned.Role, planned.StartSector, disk.Path)
		}
		planned.Path = part.Path
		planned.Number = part.Number
	}
	return nil
}

func partitionAtSector(disk *types.Disk, start uint64) *types.Partition {
	for _, part := range disk.Partitions {
		if part.StartSector == start {
			return part
		}
	}
	return nil
}

// Rescan asks the kernel to re-read the partition table and pauses briefly
// so new device nodes exist before the next stage formats them.
func Rescan(runner *shell.Runner, dev string) types.ValidationResult {
	if tail, err := runner.RunOrSimulate(
		fmt.Sprintf("re-scan partition table of %s", dev),
		"partprobe", dev,
	); err != nil {
		return types.Failf(types.DiskError, "re-scanning %s: %v", dev, err).WithTail(tail)
	}
	// Settle failing is not fatal; the sleep below covers it.
	_, _ = runner.RunOrSimulate("settle udev queue", "udevadm", "settle")
	if !runner.DryRun() {
		time.Sleep(settleDelay)
	}
	return types.Pass()
}
