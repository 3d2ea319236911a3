// Package constants holds values shared across the project.
package constants

const (
	MiB = uint64(1024 * 1024)
	GiB = 1024 * MiB

	FilePerm = 0o644
	DirPerm  = 0o755

	// SectorSize is the logical sector size assumed when a probe cannot
	// report one.
	SectorSize = uint64(512)
)
