// Package mocks fabricates the sysfs, udev and mounts files the blockdev
// probe reads, under a temporary chroot, so tests can present arbitrary
// disks without touching real devices.
package mocks

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nyx-io/provisioner/blockdev"
	"github.com/nyx-io/provisioner/types"
)

type BlockdevMock struct {
	Chroot string
	paths  *blockdev.Paths
	disks  []types.Disk
	mounts []string
}

// AddDisk registers a disk to be materialized by CreateDevices.
func (m *BlockdevMock) AddDisk(disk types.Disk) {
	m.disks = append(m.disks, disk)
}

// CreateDevices writes the fake sysfs tree, udev database and mounts file
// under a fresh temp dir and points the probe's chroot env var at it.
func (m *BlockdevMock) CreateDevices() {
	d, _ := os.MkdirTemp("", "blockdevmock")
	m.Chroot = d
	m.paths = blockdev.NewPaths(d)
	_ = os.Setenv(blockdev.ChrootEnv, d)
	_ = os.MkdirAll(m.paths.SysBlock, 0o755)
	_ = os.MkdirAll(m.paths.RunUdevData, 0o755)
	procDir, _ := filepath.Split(m.paths.ProcMounts)
	_ = os.MkdirAll(procDir, 0o755)

	for diskIdx, disk := range m.disks {
		diskPath := filepath.Join(m.paths.SysBlock, disk.Name)
		_ = os.Mkdir(diskPath, 0o755)
		_ = os.WriteFile(filepath.Join(diskPath, "dev"), []byte(fmt.Sprintf("%d:0\n", diskIdx)), 0o644)
		// sysfs size files count 512-byte sectors.
		_ = os.WriteFile(filepath.Join(diskPath, "size"), []byte(strconv.FormatUint(disk.SizeBytes/512, 10)), 0o644)
		diskUdev := []string{fmt.Sprintf("E:ID_PART_TABLE_UUID=%s\n", disk.UUID)}
		_ = os.WriteFile(filepath.Join(m.paths.RunUdevData, fmt.Sprintf("b%d:0", diskIdx)), []byte(strings.Join(diskUdev, "")), 0o644)

		for partIdx, partition := range disk.Partitions {
			partDir := filepath.Join(diskPath, partition.Name)
			_ = os.Mkdir(partDir, 0o755)
			_ = os.WriteFile(filepath.Join(partDir, "dev"), []byte(fmt.Sprintf("%d:6%d\n", diskIdx, partIdx)), 0o644)
			_ = os.WriteFile(filepath.Join(partDir, "size"), []byte(fmt.Sprintf("%d\n", partition.SizeBytes/512)), 0o644)

			data := []string{}
			if partition.FilesystemLabel != "" {
				data = append(data, fmt.Sprintf("E:ID_FS_LABEL=%s\n", partition.FilesystemLabel))
			}
			if partition.FS != "" {
				data = append(data, fmt.Sprintf("E:ID_FS_TYPE=%s\n", partition.FS))
			}
			if partition.UUID != "" {
				data = append(data, fmt.Sprintf("E:ID_PART_ENTRY_UUID=%s\n", partition.UUID))
			}
			if partition.TypeGUID != "" {
				data = append(data, fmt.Sprintf("E:ID_PART_ENTRY_TYPE=%s\n", partition.TypeGUID))
			}
			if partition.Number > 0 {
				data = append(data, fmt.Sprintf("E:ID_PART_ENTRY_NUMBER=%d\n", partition.Number))
			}
			if partition.EndSector > 0 {
				data = append(data, fmt.Sprintf("E:ID_PART_ENTRY_OFFSET=%d\n", partition.StartSector))
				data = append(data, fmt.Sprintf("E:ID_PART_ENTRY_SIZE=%d\n", partition.EndSector-partition.StartSector+1))
			}
			_ = os.WriteFile(filepath.Join(m.paths.RunUdevData, fmt.Sprintf("b%d:6%d", diskIdx, partIdx)), []byte(strings.Join(data, "")), 0o644)

			if partition.MountPoint != "" {
				fs := partition.FS
				if fs == "" {
					fs = "ext4"
				}
				m.mounts = append(m.mounts, fmt.Sprintf("%s %s %s ro,relatime 0 0\n",
					filepath.Join("/dev", partition.Name), partition.MountPoint, fs))
			}
		}
	}
	_ = os.WriteFile(m.paths.ProcMounts, []byte(strings.Join(m.mounts, "")), 0o644)
}

// Clean removes the fake tree and unsets the chroot override.
func (m *BlockdevMock) Clean() {
	_ = os.Unsetenv(blockdev.ChrootEnv)
	if m.Chroot != "" {
		_ = os.RemoveAll(m.Chroot)
	}
	m.mounts = nil
}
