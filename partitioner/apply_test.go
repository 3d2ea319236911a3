package partitioner_test

import (
	"bytes"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nyx-io/provisioner/constants"
	"github.com/nyx-io/provisioner/partitioner"
	"github.com/nyx-io/provisioner/shell"
	"github.com/nyx-io/provisioner/types"
)

var _ = Describe("Apply under dry-run", func() {
	var buf bytes.Buffer
	var runner *shell.Runner

	BeforeEach(func() {
		buf.Reset()
		log := types.NewBufferLogger(&buf)
		runner = shell.NewRunner(types.RunContext{DryRun: true}, log)
	})

	It("simulates every mutation of a fresh plan and succeeds", func() {
		planner := partitioner.NewPlanner(512, 20*constants.GiB)
		plan, res := planner.PlanFresh(blankDisk(40 * constants.GiB))
		Expect(res.OK).To(BeTrue())

		Expect(partitioner.Apply(runner, plan).OK).To(BeTrue())
		Expect(plan.State).To(Equal(partitioner.PartitionsCreated))

		out := buf.String()
		Expect(strings.Count(out, "would perform")).To(Equal(6))
		Expect(out).To(ContainSubstring("would perform: wipe partition table on /dev/sda"))
		Expect(out).To(ContainSubstring("would perform: create esp partition 1 on /dev/sda"))
		Expect(out).To(ContainSubstring("would perform: mark partition 1 on /dev/sda as EFI system"))
		Expect(out).To(ContainSubstring("would perform: create root partition 2 on /dev/sda"))
		Expect(out).To(ContainSubstring("would perform: re-scan partition table of /dev/sda"))
	})

	It("does not touch a reused boot partition in a dual-boot plan", func() {
		plan := &partitioner.Plan{
			Mode: types.ModeDualBoot,
			Disk: blankDisk(60 * constants.GiB),
			Boot: partitioner.PlannedPartition{Path: "/dev/sda1", Number: 1, Role: types.RoleESP},
			Root: partitioner.PlannedPartition{
				Path: "/dev/sda3", Number: 3, Role: types.RoleRoot,
				StartSector: 4096, EndSector: 8192, Create: true,
			},
		}
		Expect(partitioner.Apply(runner, plan).OK).To(BeTrue())

		out := buf.String()
		Expect(out).ToNot(ContainSubstring("wipe partition table"))
		Expect(out).ToNot(ContainSubstring("esp partition"))
		Expect(out).To(ContainSubstring("would perform: create root partition 3 on /dev/sda"))
	})

	It("simulates boot formatting and reports success", func() {
		log := types.NewBufferLogger(&buf)
		res := partitioner.FormatPartition(runner, log, "/dev/sda1", types.RoleESP)
		Expect(res.OK).To(BeTrue())
		Expect(buf.String()).To(ContainSubstring("would perform: format /dev/sda1 as FAT32"))
	})

	It("defers root formatting to the installed configuration", func() {
		log := types.NewBufferLogger(&buf)
		res := partitioner.FormatPartition(runner, log, "/dev/sda2", types.RoleRoot)
		Expect(res.OK).To(BeTrue())
		Expect(buf.String()).ToNot(ContainSubstring("would perform: format"))
	})
})

var _ = Describe("ResolveCreated", func() {
	plan := func() *partitioner.Plan {
		return &partitioner.Plan{
			Mode: types.ModeDualBoot,
			Boot: partitioner.PlannedPartition{
				Path: "/dev/sda3", Number: 3, Role: types.RoleESP,
				StartSector: 4096, EndSector: 1052671, Create: true, Format: true,
			},
			Root: partitioner.PlannedPartition{
				Path: "/dev/sda4", Number: 4, Role: types.RoleRoot,
				StartSector: 1052672, EndSector: 8388607, Create: true,
			},
		}
	}

	It("takes paths and numbers from the probed table, matched by start sector", func() {
		probed := &types.Disk{
			Path: "/dev/sda",
			Partitions: types.PartitionList{
				{Name: "sda1", Path: "/dev/sda1", Number: 1, StartSector: 2048, EndSector: 4095},
				{Name: "sda4", Path: "/dev/sda4", Number: 4, StartSector: 4096, EndSector: 1052671},
				{Name: "sda5", Path: "/dev/sda5", Number: 5, StartSector: 1052672, EndSector: 8388607},
			},
		}
		p := plan()
		Expect(partitioner.ResolveCreated(probed, p)).To(Succeed())
		Expect(p.Boot.Path).To(Equal("/dev/sda4"))
		Expect(p.Boot.Number).To(Equal(4))
		Expect(p.Root.Path).To(Equal("/dev/sda5"))
		Expect(p.Root.Number).To(Equal(5))
	})

	It("leaves a reused boot partition untouched", func() {
		probed := &types.Disk{
			Path: "/dev/sda",
			Partitions: types.PartitionList{
				{Name: "sda5", Path: "/dev/sda5", Number: 5, StartSector: 1052672, EndSector: 8388607},
			},
		}
		p := plan()
		p.Boot = partitioner.PlannedPartition{Path: "/dev/sda1", Number: 1, Role: types.RoleESP}
		p.Root.StartSector = 1052672
		Expect(partitioner.ResolveCreated(probed, p)).To(Succeed())
		Expect(p.Boot.Path).To(Equal("/dev/sda1"))
		Expect(p.Root.Path).To(Equal("/dev/sda5"))
	})

	It("errors when a created partition is missing from the probe", func() {
		probed := &types.Disk{Path: "/dev/sda"}
		err := partitioner.ResolveCreated(probed, plan())
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("not found at sector"))
	})
})
