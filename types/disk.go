package types

import (
	"fmt"
	"strings"
)

// PartitionRole classifies a partition by what the installer uses it for.
type PartitionRole string

const (
	RoleESP   PartitionRole = "esp"
	RoleRoot  PartitionRole = "root"
	RoleSwap  PartitionRole = "swap"
	RoleOther PartitionRole = "other"
)

// Partition describes one entry of a device's partition table.
type Partition struct {
	// Name is the kernel name, e.g. "sda1" or "nvme0n1p1".
	Name string
	// Path is the device node, e.g. "/dev/sda1".
	Path string
	// Disk is the device node of the parent disk.
	Disk string
	// Number is the partition-table slot, starting at 1.
	Number int
	Role   PartitionRole
	// FS is the detected filesystem type, empty when unformatted.
	FS string
	// FilesystemLabel is the filesystem volume label, if any.
	FilesystemLabel string
	SizeBytes       uint64
	// TypeGUID is the GPT partition type identifier.
	TypeGUID string
	// UUID is the GPT partition entry identifier.
	UUID       string
	MountPoint string
	// StartSector and EndSector bound the partition on the parent disk.
	StartSector uint64
	EndSector   uint64
}

type PartitionList []*Partition

// FreeRegion is a contiguous unallocated span of a disk, in sectors.
type FreeRegion struct {
	StartSector uint64
	EndSector   uint64
	SectorSize  uint64
}

// SizeBytes returns the byte size of the region.
func (r FreeRegion) SizeBytes() uint64 {
	if r.EndSector <= r.StartSector {
		return 0
	}
	return (r.EndSector - r.StartSector + 1) * r.SectorSize
}

// Disk models the probed state of a block device. It is never mutated in
// place; callers re-probe after every mutating operation.
type Disk struct {
	// Name is the kernel name, e.g. "sda".
	Name string
	// Path is the device node, e.g. "/dev/sda".
	Path       string
	SizeBytes  uint64
	SectorSize uint64
	// UUID is the partition-table identifier.
	UUID string
	// FirstUsableSector and LastUsableSector bound the allocatable span
	// of a GPT disk.
	FirstUsableSector uint64
	LastUsableSector  uint64
	Partitions        PartitionList
	// FreeRegions are the unallocated spans, ordered by start offset.
	FreeRegions []FreeRegion
}

// LargestFreeRegion returns the single biggest contiguous free region, or
// false when the disk has none. Smaller regions are deliberately ignored by
// the planner.
func (d *Disk) LargestFreeRegion() (FreeRegion, bool) {
	var best FreeRegion
	found := false
	for _, r := range d.FreeRegions {
		if !found || r.SizeBytes() > best.SizeBytes() {
			best = r
			found = true
		}
	}
	return best, found
}

// PartitionPath returns the device node of partition number n on the disk,
// honoring the kernel's "p" infix for nvme and mmcblk devices.
func (d *Disk) PartitionPath(n int) string {
	if strings.Contains(d.Path, "nvme") || strings.Contains(d.Path, "mmcblk") {
		return fmt.Sprintf("%sp%d", d.Path, n)
	}
	return fmt.Sprintf("%s%d", d.Path, n)
}

// InstallMode selects how the target disk is treated.
type InstallMode string

const (
	// ModeFresh wipes the whole disk and repartitions it.
	ModeFresh InstallMode = "fresh"
	// ModeDualBoot preserves the existing partition table and installs
	// alongside whatever is already there.
	ModeDualBoot InstallMode = "dual-boot"
)

// ParseInstallMode maps a user-supplied string to an InstallMode.
func ParseInstallMode(s string) (InstallMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fresh", "wipe":
		return ModeFresh, nil
	case "dual-boot", "dualboot", "coexist":
		return ModeDualBoot, nil
	}
	return "", fmt.Errorf("invalid install mode %q (want fresh or dual-boot)", s)
}
