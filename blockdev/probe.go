package blockdev

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/diskfs/go-diskfs/partition/gpt"
	"github.com/gofrs/uuid"

	"github.com/nyx-io/provisioner/types"
)

// GetDisks scans sysfs for whole disks and their partitions. Unused loop
// devices are skipped.
func GetDisks(paths *Paths, logger *types.Logger) []*types.Disk {
	if logger == nil {
		l := types.NewNullLogger()
		logger = &l
	}
	disks := make([]*types.Disk, 0)
	logger.Logger.Debug().Str("path", paths.SysBlock).Msg("Scanning for disks")
	files, err := os.ReadDir(paths.SysBlock)
	if err != nil {
		return nil
	}
	for _, file := range files {
		dname := file.Name()
		size := diskSizeBytes(paths, dname, logger)
		if strings.HasPrefix(dname, "loop") && size == 0 {
			continue
		}
		// Device-mapper nodes are views over other disks; the
		// installer only plans on whole physical devices.
		if strings.HasPrefix(dname, "dm-") {
			continue
		}
		d := &types.Disk{
			Name:       dname,
			Path:       filepath.Join("/dev", dname),
			SizeBytes:  size,
			SectorSize: sectorSize,
			UUID:       diskUUID(paths, dname, logger),
		}
		d.Partitions = getPartitions(paths, dname, logger)
		disks = append(disks, d)
	}
	return disks
}

// GetDisk probes a single disk by device path, e.g. "/dev/sda".
func GetDisk(paths *Paths, devicePath string, logger *types.Logger) (*types.Disk, error) {
	name := filepath.Base(devicePath)
	for _, d := range GetDisks(paths, logger) {
		if d.Name == name {
			return d, nil
		}
	}
	return nil, fmt.Errorf("block device %s not found", devicePath)
}

func getPartitions(paths *Paths, diskName string, logger *types.Logger) types.PartitionList {
	out := make(types.PartitionList, 0)
	path := filepath.Join(paths.SysBlock, diskName)
	files, err := os.ReadDir(path)
	if err != nil {
		logger.Logger.Error().Err(err).Msg("failed to read disk partitions")
		return out
	}
	for _, file := range files {
		fname := file.Name()
		if !strings.HasPrefix(fname, diskName) {
			continue
		}
		partitionPath := filepath.Join(diskName, fname)
		sizeBytes := partitionSizeBytes(paths, partitionPath, logger)
		mp, fs := partitionInfo(paths, fname, logger)
		info, err := udevInfoPartition(paths, partitionPath, logger)
		if err != nil {
			info = map[string]string{}
		}
		if fs == "" {
			fs = info["ID_FS_TYPE"]
		}
		start := parseUint(info["ID_PART_ENTRY_OFFSET"])
		length := parseUint(info["ID_PART_ENTRY_SIZE"])
		var end uint64
		if length > 0 {
			end = start + length - 1
		}
		p := &types.Partition{
			Name:            fname,
			Path:            filepath.Join("/dev", fname),
			Disk:            filepath.Join("/dev", diskName),
			Number:          int(parseUint(info["ID_PART_ENTRY_NUMBER"])),
			SizeBytes:       sizeBytes,
			MountPoint:      mp,
			FS:              fs,
			FilesystemLabel: info["ID_FS_LABEL"],
			UUID:            info["ID_PART_ENTRY_UUID"],
			TypeGUID:        info["ID_PART_ENTRY_TYPE"],
			StartSector:     start,
			EndSector:       end,
		}
		p.Role = ClassifyRole(p.TypeGUID)
		out = append(out, p)
	}
	return out
}

// ClassifyRole maps a GPT type GUID to the role the installer cares about.
func ClassifyRole(typeGUID string) types.PartitionRole {
	if typeGUID == "" {
		return types.RoleOther
	}
	switch {
	case guidEqual(typeGUID, string(gpt.EFISystemPartition)):
		return types.RoleESP
	case guidEqual(typeGUID, string(gpt.LinuxFilesystem)):
		return types.RoleRoot
	case guidEqual(typeGUID, string(gpt.LinuxSwap)):
		return types.RoleSwap
	}
	return types.RoleOther
}

// guidEqual compares two GUID spellings regardless of case or formatting.
func guidEqual(a, b string) bool {
	ua, errA := uuid.FromString(a)
	ub, errB := uuid.FromString(b)
	if errA != nil || errB != nil {
		return strings.EqualFold(a, b)
	}
	return ua == ub
}

func diskSizeBytes(paths *Paths, disk string, logger *types.Logger) uint64 {
	// /sys/block/$DEVICE/size counts 512-byte sectors.
	path := filepath.Join(paths.SysBlock, disk, "size")
	contents, err := os.ReadFile(path)
	if err != nil {
		logger.Logger.Debug().Str("path", path).Err(err).Msg("failed to read disk size")
		return 0
	}
	size, err := strconv.ParseUint(strings.TrimSpace(string(contents)), 10, 64)
	if err != nil {
		logger.Logger.Error().Str("path", path).Err(err).Msg("failed to parse disk size")
		return 0
	}
	return size * sectorSize
}

func partitionSizeBytes(paths *Paths, partitionPath string, logger *types.Logger) uint64 {
	path := filepath.Join(paths.SysBlock, partitionPath, "size")
	contents, err := os.ReadFile(path)
	if err != nil {
		logger.Logger.Error().Str("file", path).Err(err).Msg("failed to read partition size")
		return 0
	}
	size, err := strconv.ParseUint(strings.TrimSpace(string(contents)), 10, 64)
	if err != nil {
		logger.Logger.Error().Str("contents", string(contents)).Err(err).Msg("failed to parse partition size")
		return 0
	}
	return size * sectorSize
}

// partitionInfo reads the mountpoint and filesystem type from the mounts
// table. Entries look like:
// /dev/sda6 / ext4 rw,relatime,errors=remount-ro,data=ordered 0 0
func partitionInfo(paths *Paths, part string, logger *types.Logger) (string, string) {
	if !strings.HasPrefix(part, "/dev") {
		part = "/dev/" + part
	}
	r, err := os.Open(paths.ProcMounts)
	if err != nil {
		logger.Logger.Error().Str("file", paths.ProcMounts).Err(err).Msg("failed to open mounts")
		return "", ""
	}
	defer r.Close()

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		entry := parseMountEntry(scanner.Text())
		if entry == nil || entry.Partition != part {
			continue
		}
		return entry.Mountpoint, entry.FilesystemType
	}
	return "", ""
}

type mountEntry struct {
	Partition      string
	Mountpoint     string
	FilesystemType string
}

func parseMountEntry(line string) *mountEntry {
	if len(line) == 0 || line[0] != '/' {
		return nil
	}
	fields := strings.Fields(line)
	if len(fields) < 4 {
		return nil
	}
	// Mountpoints encode space, tab, newline and backslash per getmntent.
	r := strings.NewReplacer("\\011", "\t", "\\012", "\n", "\\040", " ", "\\\\", "\\")
	return &mountEntry{
		Partition:      fields[0],
		Mountpoint:     r.Replace(fields[1]),
		FilesystemType: fields[2],
	}
}

func diskUUID(paths *Paths, diskName string, logger *types.Logger) string {
	info, err := udevInfoPartition(paths, diskName, logger)
	if err != nil {
		return UNKNOWN
	}
	if id, ok := info["ID_PART_TABLE_UUID"]; ok {
		return id
	}
	return UNKNOWN
}

func udevInfoPartition(paths *Paths, partitionPath string, logger *types.Logger) (map[string]string, error) {
	devNo, err := os.ReadFile(filepath.Join(paths.SysBlock, partitionPath, "dev"))
	if err != nil {
		logger.Logger.Debug().Err(err).Str("path", partitionPath).Msg("no dev file for udev lookup")
		return nil, err
	}
	return UdevInfo(paths, string(devNo), logger)
}

// UdevInfo returns the udev runtime database entries for a device number.
func UdevInfo(paths *Paths, devNo string, logger *types.Logger) (map[string]string, error) {
	udevID := "b" + strings.TrimSpace(devNo)
	udevBytes, err := os.ReadFile(filepath.Join(paths.RunUdevData, udevID))
	if err != nil {
		logger.Logger.Debug().Err(err).Str("id", udevID).Msg("failed to read udev data")
		return nil, err
	}
	udevInfo := make(map[string]string)
	for _, udevLine := range strings.Split(string(udevBytes), "\n") {
		if strings.HasPrefix(udevLine, "E:") {
			if s := strings.SplitN(udevLine[2:], "=", 2); len(s) == 2 {
				udevInfo[s[0]] = s[1]
			}
		}
	}
	return udevInfo, nil
}

func parseUint(s string) uint64 {
	if s == "" {
		return 0
	}
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return n
}
