// Package blockdev probes block devices through sysfs and the udev runtime
// database, and asks sfdisk for the partition-table geometry in its JSON
// query mode. Probing is read-only; mutations live in the partitioner.
package blockdev

import (
	"fmt"
	"os"
	"strings"
)

const (
	sectorSize = 512
	// UNKNOWN marks a value the probe could not determine.
	UNKNOWN = "unknown"
	// ChrootEnv overrides the probe root, mainly for tests.
	ChrootEnv = "PROVISIONER_CHROOT"
)

// Paths locates the kernel interfaces the probe reads. A prefix redirects
// everything under a fake root.
type Paths struct {
	SysBlock    string
	RunUdevData string
	ProcMounts  string
}

func NewPaths(withOptionalPrefix string) *Paths {
	p := &Paths{
		SysBlock:    "/sys/block/",
		RunUdevData: "/run/udev/data",
		ProcMounts:  "/proc/mounts",
	}

	// The env var takes precedence over the argument.
	if val, exists := os.LookupEnv(ChrootEnv); exists {
		withOptionalPrefix = val
	}
	if withOptionalPrefix != "" {
		withOptionalPrefix = strings.TrimSuffix(withOptionalPrefix, "/")
		p.SysBlock = fmt.Sprintf("%s%s", withOptionalPrefix, p.SysBlock)
		p.RunUdevData = fmt.Sprintf("%s%s", withOptionalPrefix, p.RunUdevData)
		p.ProcMounts = fmt.Sprintf("%s%s", withOptionalPrefix, p.ProcMounts)
	}
	return p
}
