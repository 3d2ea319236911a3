package blockdev

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/nyx-io/provisioner/shell"
	"github.com/nyx-io/provisioner/types"
)

// sfdisk --json output. The JSON dump is the structured alternative to
// scraping human-readable partition listings.
type sfdiskDump struct {
	PartitionTable struct {
		Label      string        `json:"label"`
		ID         string        `json:"id"`
		Device     string        `json:"device"`
		Unit       string        `json:"unit"`
		FirstLBA   uint64        `json:"firstlba"`
		LastLBA    uint64        `json:"lastlba"`
		SectorSize uint64        `json:"sectorsize"`
		Partitions []sfdiskEntry `json:"partitions"`
	} `json:"partitiontable"`
}

type sfdiskEntry struct {
	Node  string `json:"node"`
	Start uint64 `json:"start"`
	Size  uint64 `json:"size"`
	Type  string `json:"type"`
	UUID  string `json:"uuid"`
	Name  string `json:"name"`
}

// QueryTable reads the partition table of devicePath with sfdisk's JSON
// dump and merges geometry into disk: usable LBA bounds, sector size, and
// per-partition start/end and type GUID where the udev probe had none.
func QueryTable(runner *shell.Runner, disk *types.Disk) error {
	out, err := runner.Output("sfdisk", "--json", disk.Path)
	if err != nil {
		return fmt.Errorf("querying partition table of %s: %w", disk.Path, err)
	}
	var dump sfdiskDump
	if err := json.Unmarshal([]byte(out), &dump); err != nil {
		return fmt.Errorf("parsing sfdisk output for %s: %w", disk.Path, err)
	}
	t := dump.PartitionTable
	if t.SectorSize > 0 {
		disk.SectorSize = t.SectorSize
	}
	disk.FirstUsableSector = t.FirstLBA
	disk.LastUsableSector = t.LastLBA
	if t.ID != "" {
		disk.UUID = t.ID
	}
	for _, entry := range t.Partitions {
		for _, p := range disk.Partitions {
			if p.Path != entry.Node {
				continue
			}
			p.StartSector = entry.Start
			if entry.Size > 0 {
				p.EndSector = entry.Start + entry.Size - 1
			}
			if p.TypeGUID == "" {
				p.TypeGUID = entry.Type
				p.Role = ClassifyRole(p.TypeGUID)
			}
		}
	}
	disk.FreeRegions = ComputeFreeRegions(disk)
	return nil
}

// ComputeFreeRegions derives the unallocated spans of the disk from its
// partition list and usable bounds. Regions smaller than 1 MiB are noise
// from alignment and are dropped.
func ComputeFreeRegions(disk *types.Disk) []types.FreeRegion {
	sectorSz := disk.SectorSize
	if sectorSz == 0 {
		sectorSz = sectorSize
	}
	first := disk.FirstUsableSector
	if first == 0 {
		// GPT reserves 34 sectors at the front when the probe could
		// not tell.
		first = 2048
	}
	last := disk.LastUsableSector
	if last == 0 && disk.SizeBytes > sectorSz {
		last = disk.SizeBytes/sectorSz - 34
	}
	if last <= first {
		return nil
	}

	parts := make([]*types.Partition, 0, len(disk.Partitions))
	for _, p := range disk.Partitions {
		if p.EndSector > 0 {
			parts = append(parts, p)
		}
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].StartSector < parts[j].StartSector })

	minSectors := (1024 * 1024) / sectorSz
	var regions []types.FreeRegion
	cursor := first
	for _, p := range parts {
		if p.StartSector > cursor && p.StartSector-cursor >= minSectors {
			regions = append(regions, types.FreeRegion{
				StartSector: cursor,
				EndSector:   p.StartSector - 1,
				SectorSize:  sectorSz,
			})
		}
		if p.EndSector+1 > cursor {
			cursor = p.EndSector + 1
		}
	}
	if last > cursor && last-cursor+1 >= minSectors {
		regions = append(regions, types.FreeRegion{
			StartSector: cursor,
			EndSector:   last,
			SectorSize:  sectorSz,
		})
	}
	return regions
}

// Probe returns the full model of devicePath: sysfs and udev data merged
// with the sfdisk geometry and the computed free regions. The runner may be
// nil when only sysfs data is wanted.
func Probe(paths *Paths, runner *shell.Runner, devicePath string, logger *types.Logger) (*types.Disk, error) {
	disk, err := GetDisk(paths, devicePath, logger)
	if err != nil {
		return nil, err
	}
	if runner != nil {
		if err := QueryTable(runner, disk); err != nil {
			// A blank disk has no table to dump; fall back to the
			// sysfs view with the whole span free.
			logger.Logger.Debug().Err(err).Str("device", devicePath).Msg("no partition table, computing free span")
			disk.FreeRegions = ComputeFreeRegions(disk)
		}
	} else {
		disk.FreeRegions = ComputeFreeRegions(disk)
	}
	return disk, nil
}
