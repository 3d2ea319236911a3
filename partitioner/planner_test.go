package partitioner_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nyx-io/provisioner/constants"
	"github.com/nyx-io/provisioner/partitioner"
	"github.com/nyx-io/provisioner/types"
)

func TestPartitioner(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Partitioner test suite")
}

// blankDisk returns a disk with no partition table and the whole span free.
func blankDisk(sizeBytes uint64) *types.Disk {
	d := &types.Disk{
		Name:       "sda",
		Path:       "/dev/sda",
		SizeBytes:  sizeBytes,
		SectorSize: 512,
	}
	d.FreeRegions = []types.FreeRegion{
		{StartSector: 2048, EndSector: sizeBytes/512 - 34, SectorSize: 512},
	}
	return d
}

var _ = Describe("CheckFreeSpace", func() {
	It("succeeds iff the largest contiguous region meets the threshold", func() {
		d := &types.Disk{SectorSize: 512, FreeRegions: []types.FreeRegion{
			{StartSector: 0, EndSector: 2047, SectorSize: 512},          // 1 MiB
			{StartSector: 10000, EndSector: 4204399, SectorSize: 512},   // ~2 GiB
			{StartSector: 9000000, EndSector: 9002047, SectorSize: 512}, // 1 MiB
		}}
		Expect(partitioner.CheckFreeSpace(d, 2*constants.GiB).OK).To(BeTrue())
		Expect(partitioner.CheckFreeSpace(d, 3*constants.GiB).OK).To(BeFalse())
	})

	It("fails on a disk without free regions", func() {
		res := partitioner.CheckFreeSpace(&types.Disk{Path: "/dev/sdz"}, constants.GiB)
		Expect(res.OK).To(BeFalse())
		Expect(res.Kind).To(Equal(types.DiskError))
	})
})

var _ = Describe("PlanFresh", func() {
	planner := partitioner.NewPlanner(512, 20*constants.GiB)

	It("yields exactly one boot and one root partition on a 40 GB disk", func() {
		plan, res := planner.PlanFresh(blankDisk(40 * constants.GiB))
		Expect(res.OK).To(BeTrue())
		Expect(plan.State).To(Equal(partitioner.RootRegionChosen))

		// Boot partition: fixed size at the start of the device.
		Expect(plan.Boot.Create).To(BeTrue())
		Expect(plan.Boot.Number).To(Equal(1))
		Expect(plan.Boot.Role).To(Equal(types.RoleESP))
		Expect(plan.Boot.Format).To(BeTrue())
		bootBytes := (plan.Boot.EndSector - plan.Boot.StartSector + 1) * 512
		Expect(bootBytes).To(BeNumerically("<=", 512*constants.MiB))
		Expect(plan.Boot.StartSector).To(Equal(uint64(2048)))

		// Root partition: the remainder.
		Expect(plan.Root.Create).To(BeTrue())
		Expect(plan.Root.Number).To(Equal(2))
		Expect(plan.Root.StartSector).To(Equal(plan.Boot.EndSector + 1))
		Expect(plan.Root.EndSector).To(BeZero()) // to the end of the device
	})

	It("ignores prior contents of the disk", func() {
		d := blankDisk(40 * constants.GiB)
		d.Partitions = types.PartitionList{
			{Name: "sda1", Path: "/dev/sda1", Number: 1, Role: types.RoleOther, StartSector: 2048, EndSector: 204800},
		}
		plan, res := planner.PlanFresh(d)
		Expect(res.OK).To(BeTrue())
		Expect(plan.Boot.Number).To(Equal(1))
		Expect(plan.Root.Number).To(Equal(2))
	})

	It("rejects a disk smaller than the boot partition", func() {
		_, res := planner.PlanFresh(blankDisk(256 * constants.MiB))
		Expect(res.OK).To(BeFalse())
		Expect(res.Kind).To(Equal(types.DiskError))
	})
})

var _ = Describe("PlanDualBoot", func() {
	planner := partitioner.NewPlanner(512, 20*constants.GiB)

	// dualBootDisk has a foreign OS in sda1/sda2 and ~25 GB free at the end.
	dualBootDisk := func(withESP bool) *types.Disk {
		freeSectors := uint64(25 * constants.GiB / 512)
		espEnd := uint64(2048 + (300*constants.MiB)/512 - 1)
		d := &types.Disk{
			Name:       "sda",
			Path:       "/dev/sda",
			SizeBytes:  60 * constants.GiB,
			SectorSize: 512,
			Partitions: types.PartitionList{
				{
					Name: "sda1", Path: "/dev/sda1", Number: 1,
					Role:        types.RoleOther,
					StartSector: 2048, EndSector: espEnd,
				},
				{
					Name: "sda2", Path: "/dev/sda2", Number: 2,
					Role:        types.RoleOther,
					StartSector: espEnd + 1, EndSector: espEnd + 1 + (30*constants.GiB)/512,
				},
			},
		}
		if withESP {
			d.Partitions[0].Role = types.RoleESP
			d.Partitions[0].TypeGUID = partitioner.ESPTypeGUID()
		}
		start := d.Partitions[1].EndSector + 1
		d.FreeRegions = []types.FreeRegion{
			{StartSector: start, EndSector: start + freeSectors - 1, SectorSize: 512},
		}
		return d
	}

	It("reuses an existing EFI-type partition unmodified", func() {
		plan, res := planner.PlanDualBoot(dualBootDisk(true))
		Expect(res.OK).To(BeTrue())
		Expect(plan.Boot.Create).To(BeFalse())
		Expect(plan.Boot.Format).To(BeFalse())
		Expect(plan.Boot.Path).To(Equal("/dev/sda1"))
		Expect(plan.Boot.Number).To(Equal(1))

		// Exactly one new partition: the root, inside the free region.
		Expect(plan.Root.Create).To(BeTrue())
		Expect(plan.Root.Number).To(Equal(3))
		region := dualBootDisk(true).FreeRegions[0]
		Expect(plan.Root.StartSector).To(Equal(region.StartSector))
		Expect(plan.Root.EndSector).To(Equal(region.EndSector))
	})

	It("creates and formats a boot partition when none exists", func() {
		plan, res := planner.PlanDualBoot(dualBootDisk(false))
		Expect(res.OK).To(BeTrue())
		Expect(plan.Boot.Create).To(BeTrue())
		Expect(plan.Boot.Format).To(BeTrue())
		Expect(plan.Boot.Number).To(Equal(3))
		Expect(plan.Root.Number).To(Equal(4))
		// Boot is carved from the front of the free region, root follows.
		region := dualBootDisk(false).FreeRegions[0]
		Expect(plan.Boot.StartSector).To(Equal(region.StartSector))
		Expect(plan.Root.StartSector).To(Equal(plan.Boot.EndSector + 1))
		Expect(plan.Root.EndSector).To(Equal(region.EndSector))
	})

	It("aborts when the largest free region is below the threshold", func() {
		d := dualBootDisk(true)
		d.FreeRegions = []types.FreeRegion{
			{StartSector: 4096, EndSector: 4096 + (10*constants.GiB)/512, SectorSize: 512},
		}
		_, res := planner.PlanDualBoot(d)
		Expect(res.OK).To(BeFalse())
		Expect(res.Kind).To(Equal(types.DiskError))
	})

	It("numbers new partitions above every occupied slot on a gapped table", func() {
		// Tables with a deleted middle slot keep their high numbers; a
		// count-based prediction would collide with /dev/sda3.
		d := dualBootDisk(false)
		d.Partitions[1].Number = 3
		d.Partitions[1].Name = "sda3"
		d.Partitions[1].Path = "/dev/sda3"

		plan, res := planner.PlanDualBoot(d)
		Expect(res.OK).To(BeTrue())
		Expect(plan.Boot.Number).To(Equal(4))
		Expect(plan.Boot.Path).To(Equal("/dev/sda4"))
		Expect(plan.Root.Number).To(Equal(5))
		Expect(plan.Root.Path).To(Equal("/dev/sda5"))
	})

	It("uses only the single largest region when several exist", func() {
		d := dualBootDisk(true)
		big := d.FreeRegions[0]
		d.FreeRegions = []types.FreeRegion{
			{StartSector: 4096, EndSector: 4096 + 4096, SectorSize: 512},
			big,
		}
		plan, res := planner.PlanDualBoot(d)
		Expect(res.OK).To(BeTrue())
		Expect(plan.Root.StartSector).To(Equal(big.StartSector))
	})
})
