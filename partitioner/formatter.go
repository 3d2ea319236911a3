package partitioner

import (
	"fmt"

	"github.com/nyx-io/provisioner/shell"
	"github.com/nyx-io/provisioner/types"
)

// BootLabel is the volume label of a freshly formatted boot partition.
const BootLabel = "NYXBOOT"

// FormatPartition applies the filesystem appropriate to the role. Boot
// partitions always get FAT32 with the fixed label; the root filesystem is
// a policy of the configuration being installed and is left to the caller.
// Re-formatting is destructive; callers gate it with confirmation.
func FormatPartition(runner *shell.Runner, log types.Logger, path string, role types.PartitionRole) types.ValidationResult {
	switch role {
	case types.RoleESP:
		tail, err := runner.RunOrSimulate(
			fmt.Sprintf("format %s as FAT32 (%s)", path, BootLabel),
			"mkfs.fat", "-F", "32", "-n", BootLabel, path,
		)
		if err != nil {
			return types.Failf(types.DiskError, "formatting %s: %v", path, err).WithTail(tail)
		}
		return types.Pass()
	default:
		log.Infof("leaving %s (%s) unformatted; the installed configuration decides its filesystem", path, role)
		return types.Pass()
	}
}
