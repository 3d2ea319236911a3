// Package partitioner computes and applies partition layouts. Planning is
// pure: it never touches the device, so every layout decision is testable
// against a probed Disk model. Apply is the only mutating entry point and
// routes every command through the execute-or-simulate gate.
package partitioner

import (
	"github.com/diskfs/go-diskfs/partition/gpt"

	"github.com/nyx-io/provisioner/constants"
	"github.com/nyx-io/provisioner/types"
)

// PlanState orders the planner's progress. A plan only ever moves forward.
type PlanState int

const (
	Unplanned PlanState = iota
	ESPResolved
	RootRegionChosen
	PartitionsCreated
)

// PlannedPartition is one partition the plan will create or reuse.
type PlannedPartition struct {
	Path   string
	Number int
	Role   types.PartitionRole
	// StartSector/EndSector are only set for partitions to be created.
	StartSector uint64
	EndSector   uint64
	// Create is false when an existing partition is reused unmodified.
	Create bool
	// Format is true when the partition receives a filesystem here
	// rather than by the installed configuration.
	Format bool
}

// Plan is a complete layout decision: exactly one boot and one root
// partition, always.
type Plan struct {
	Mode  types.InstallMode
	Disk  *types.Disk
	State PlanState
	Boot  PlannedPartition
	Root  PlannedPartition
}

type Planner struct {
	// ESPSizeMiB is the size of a freshly created boot partition.
	ESPSizeMiB uint64
	// FreeSpaceMin is the dual-boot precondition on the largest
	// contiguous free region.
	FreeSpaceMin uint64
}

func NewPlanner(espSizeMiB, freeSpaceMin uint64) *Planner {
	return &Planner{ESPSizeMiB: espSizeMiB, FreeSpaceMin: freeSpaceMin}
}

// CheckFreeSpace succeeds iff the largest contiguous free region on the
// disk is at least threshold bytes.
func CheckFreeSpace(disk *types.Disk, threshold uint64) types.ValidationResult {
	region, ok := disk.LargestFreeRegion()
	if !ok || region.SizeBytes() < threshold {
		var have uint64
		if ok {
			have = region.SizeBytes()
		}
		return types.Failf(types.DiskError,
			"largest free region on %s is %d bytes, need at least %d", disk.Path, have, threshold)
	}
	return types.Pass()
}

// PlanFresh computes the wipe-and-repartition layout: a boot partition of
// the configured size at the start of the device and a root partition
// spanning the remainder. Prior contents of the disk are irrelevant.
func (p *Planner) PlanFresh(disk *types.Disk) (*Plan, types.ValidationResult) {
	sectorSz := disk.SectorSize
	if sectorSz == 0 {
		sectorSz = constants.SectorSize
	}
	espSectors := p.ESPSizeMiB * constants.MiB / sectorSz
	bootStart := constants.MiB / sectorSz // 1 MiB alignment
	if disk.SizeBytes/sectorSz < bootStart+espSectors {
		return nil, types.Failf(types.DiskError, "%s is too small for a %d MiB boot partition", disk.Path, p.ESPSizeMiB)
	}

	plan := &Plan{Mode: types.ModeFresh, Disk: disk, State: Unplanned}
	plan.Boot = PlannedPartition{
		Path:        disk.PartitionPath(1),
		Number:      1,
		Role:        types.RoleESP,
		StartSector: bootStart,
		EndSector:   bootStart + espSectors - 1,
		Create:      true,
		Format:      true,
	}
	plan.State = ESPResolved

	plan.Root = PlannedPartition{
		Path:        disk.PartitionPath(2),
		Number:      2,
		Role:        types.RoleRoot,
		StartSector: plan.Boot.EndSector + 1,
		// EndSector 0 means "to the end of the device".
		Create: true,
	}
	plan.State = RootRegionChosen
	return plan, types.Pass()
}

// PlanDualBoot computes the coexistence layout. The free-space precondition
// is enforced on the single largest contiguous region; smaller regions are
// never used. An existing partition already carrying the EFI-System type is
// reused unmodified; otherwise a boot partition is carved from the front of
// the free region. The root partition takes what remains of that region.
func (p *Planner) PlanDualBoot(disk *types.Disk) (*Plan, types.ValidationResult) {
	if res := CheckFreeSpace(disk, p.FreeSpaceMin); !res.OK {
		return nil, res
	}
	region, _ := disk.LargestFreeRegion()
	sectorSz := region.SectorSize
	if sectorSz == 0 {
		sectorSz = constants.SectorSize
	}

	plan := &Plan{Mode: types.ModeDualBoot, Disk: disk, State: Unplanned}
	nextNumber := nextPartitionNumber(disk)
	rootStart := region.StartSector

	if existing := findESP(disk); existing != nil {
		plan.Boot = PlannedPartition{
			Path:   existing.Path,
			Number: existing.Number,
			Role:   types.RoleESP,
			Create: false,
		}
	} else {
		espSectors := p.ESPSizeMiB * constants.MiB / sectorSz
		plan.Boot = PlannedPartition{
			Path:        disk.PartitionPath(nextNumber),
			Number:      nextNumber,
			Role:        types.RoleESP,
			StartSector: region.StartSector,
			EndSector:   region.StartSector + espSectors - 1,
			Create:      true,
			Format:      true,
		}
		rootStart = plan.Boot.EndSector + 1
		nextNumber++
	}
	plan.State = ESPResolved

	if region.EndSector <= rootStart {
		return nil, types.Failf(types.DiskError, "free region on %s exhausted by the boot partition", disk.Path)
	}
	plan.Root = PlannedPartition{
		Path:        disk.PartitionPath(nextNumber),
		Number:      nextNumber,
		Role:        types.RoleRoot,
		StartSector: rootStart,
		EndSector:   region.EndSector,
		Create:      true,
	}
	plan.State = RootRegionChosen
	return plan, types.Pass()
}

// nextPartitionNumber returns the first partition number above every
// occupied slot. Counting entries instead would collide with existing
// partitions on tables with numbering gaps.
func nextPartitionNumber(disk *types.Disk) int {
	n := 0
	for _, part := range disk.Partitions {
		if part.Number > n {
			n = part.Number
		}
	}
	return n + 1
}

// findESP returns the first existing partition tagged with the canonical
// EFI-System type, or nil.
func findESP(disk *types.Disk) *types.Partition {
	for _, part := range disk.Partitions {
		if part.Role == types.RoleESP {
			return part
		}
	}
	return nil
}

// ESPTypeGUID is the canonical EFI-System partition type identifier.
func ESPTypeGUID() string {
	return string(gpt.EFISystemPartition)
}
