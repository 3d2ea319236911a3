package blockdev

import (
	"encoding/json"
	"testing"

	"github.com/nyx-io/provisioner/types"
)

const sampleDump = `{
   "partitiontable": {
      "label": "gpt",
      "id": "1F9E80D9-DD78-024F-94A3-B61EC82B18C8",
      "device": "/dev/sda",
      "unit": "sectors",
      "firstlba": 2048,
      "lastlba": 83886046,
      "sectorsize": 512,
      "partitions": [
         {"node": "/dev/sda1", "start": 2048, "size": 1048576, "type": "C12A7328-F81F-11D2-BA4B-00A2C93EC93B", "uuid": "AA", "name": "ESP"},
         {"node": "/dev/sda2", "start": 1050624, "size": 20971520, "type": "0FC63DAF-8483-4772-8E79-3D69D8477DE4", "uuid": "BB"}
      ]
   }
}`

func TestSfdiskDumpParsing(t *testing.T) {
	var dump sfdiskDump
	if err := json.Unmarshal([]byte(sampleDump), &dump); err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	pt := dump.PartitionTable
	if pt.Label != "gpt" {
		t.Errorf("label: got %q", pt.Label)
	}
	if pt.FirstLBA != 2048 || pt.LastLBA != 83886046 || pt.SectorSize != 512 {
		t.Errorf("geometry: got %d/%d/%d", pt.FirstLBA, pt.LastLBA, pt.SectorSize)
	}
	if len(pt.Partitions) != 2 {
		t.Fatalf("partitions: got %d", len(pt.Partitions))
	}
	if pt.Partitions[0].Node != "/dev/sda1" || pt.Partitions[0].Start != 2048 {
		t.Errorf("first partition: %+v", pt.Partitions[0])
	}
}

func TestComputeFreeRegions(t *testing.T) {
	disk := &types.Disk{
		Path:              "/dev/sda",
		SectorSize:        512,
		FirstUsableSector: 2048,
		LastUsableSector:  83886046, // ~40 GiB
		Partitions: types.PartitionList{
			{Name: "sda1", StartSector: 2048, EndSector: 1050623},
			{Name: "sda2", StartSector: 1050624, EndSector: 22022143},
		},
	}

	regions := ComputeFreeRegions(disk)
	if len(regions) != 1 {
		t.Fatalf("expected one trailing free region, got %d: %+v", len(regions), regions)
	}
	if regions[0].StartSector != 22022144 {
		t.Errorf("region start: got %d", regions[0].StartSector)
	}
	if regions[0].EndSector != 83886046 {
		t.Errorf("region end: got %d", regions[0].EndSector)
	}
}

func TestComputeFreeRegionsWithGap(t *testing.T) {
	disk := &types.Disk{
		Path:              "/dev/sda",
		SectorSize:        512,
		FirstUsableSector: 2048,
		LastUsableSector:  41943006,
		Partitions: types.PartitionList{
			{Name: "sda1", StartSector: 2048, EndSector: 1050623},
			// Gap of ~5 GiB between sda1 and sda2.
			{Name: "sda2", StartSector: 11536384, EndSector: 41943006},
		},
	}

	regions := ComputeFreeRegions(disk)
	if len(regions) != 1 {
		t.Fatalf("expected one gap region, got %d: %+v", len(regions), regions)
	}
	if regions[0].StartSector != 1050624 || regions[0].EndSector != 11536383 {
		t.Errorf("gap bounds: got %d-%d", regions[0].StartSector, regions[0].EndSector)
	}
	wantBytes := (uint64(11536383) - 1050624 + 1) * 512
	if got := regions[0].SizeBytes(); got != wantBytes {
		t.Errorf("gap size: got %d, want %d", got, wantBytes)
	}
}

func TestComputeFreeRegionsBlankDisk(t *testing.T) {
	disk := &types.Disk{
		Path:       "/dev/sdb",
		SectorSize: 512,
		SizeBytes:  40 * 1024 * 1024 * 1024,
	}
	regions := ComputeFreeRegions(disk)
	if len(regions) != 1 {
		t.Fatalf("expected the whole span free, got %d regions", len(regions))
	}
	if regions[0].StartSector != 2048 {
		t.Errorf("start: got %d", regions[0].StartSector)
	}
	if regions[0].EndSector != disk.SizeBytes/512-34 {
		t.Errorf("end: got %d", regions[0].EndSector)
	}
}

func TestParseMountEntry(t *testing.T) {
	entry := parseMountEntry(`/dev/sda6 /mnt/with\040space ext4 rw,relatime 0 0`)
	if entry == nil {
		t.Fatal("expected an entry")
	}
	if entry.Mountpoint != "/mnt/with space" {
		t.Errorf("mountpoint: got %q", entry.Mountpoint)
	}
	if parseMountEntry("proc /proc proc rw 0 0") != nil {
		t.Error("non-device lines must be skipped")
	}
	if parseMountEntry("") != nil {
		t.Error("empty lines must be skipped")
	}
}
