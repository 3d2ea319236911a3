// Package config loads the installer defaults. Values come from an optional
// YAML file and can be overridden one by one through the environment; the
// environment itself may be seeded from a .env file at startup.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	vfs "github.com/twpayne/go-vfs/v4"
	"gopkg.in/yaml.v3"

	"github.com/nyx-io/provisioner/constants"
)

// Defaults is the run-independent installer configuration.
type Defaults struct {
	// RepoURL is the remote configuration repository.
	RepoURL string `yaml:"repoUrl"`
	// Branch is the branch staged from RepoURL.
	Branch string `yaml:"branch"`
	// StagingDir is where the repository is checked out for this run.
	StagingDir string `yaml:"stagingDir"`
	// MachinesSubdir is the catalog directory inside the staged tree.
	MachinesSubdir string `yaml:"machinesSubdir"`
	// ESPSizeMiB is the size of a freshly created boot partition.
	ESPSizeMiB uint64 `yaml:"espSizeMiB"`
	// FreeSpaceMinBytes is the dual-boot free space precondition.
	FreeSpaceMinBytes uint64 `yaml:"freeSpaceMinBytes"`
	// LiveMarker is the file expected on the installer environment.
	LiveMarker string `yaml:"liveMarker"`
	// FallbackUser seeds the account prompt when detection fails.
	FallbackUser string `yaml:"fallbackUser"`
	// PostPartitionHook is an optional command line run after the
	// partitions are created and formatted, with shell quoting rules.
	PostPartitionHook string `yaml:"postPartitionHook"`
}

// New returns the built-in defaults.
func New() Defaults {
	return Defaults{
		RepoURL:           "https://github.com/nyx-io/fleet-config",
		Branch:            "main",
		StagingDir:        "/tmp/nyx-config",
		MachinesSubdir:    "machines",
		ESPSizeMiB:        512,
		FreeSpaceMinBytes: 20 * constants.GiB,
		LiveMarker:        "/etc/NIXOS",
		FallbackUser:      "nixos",
	}
}

// Load reads path from fsys on top of the built-in defaults, then applies
// environment overrides. A missing file is not an error; a malformed one is.
func Load(fsys vfs.FS, path string) (Defaults, error) {
	d := New()
	if path != "" {
		data, err := fsys.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &d); err != nil {
				return d, fmt.Errorf("parsing config %s: %w", path, err)
			}
		case errors.Is(err, fs.ErrNotExist):
			// Built-in defaults apply.
		default:
			return d, fmt.Errorf("reading config %s: %w", path, err)
		}
	}
	d.applyEnv()
	return d, nil
}

func (d *Defaults) applyEnv() {
	if v := os.Getenv("PROVISIONER_REPO_URL"); v != "" {
		d.RepoURL = v
	}
	if v := os.Getenv("PROVISIONER_BRANCH"); v != "" {
		d.Branch = v
	}
	if v := os.Getenv("PROVISIONER_STAGING_DIR"); v != "" {
		d.StagingDir = v
	}
	if v := os.Getenv("PROVISIONER_ESP_SIZE_MIB"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			d.ESPSizeMiB = n
		}
	}
	if v := os.Getenv("PROVISIONER_FREE_SPACE_MIN"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			d.FreeSpaceMinBytes = n
		}
	}
	if v := os.Getenv("PROVISIONER_FALLBACK_USER"); v != "" {
		d.FallbackUser = v
	}
	if v := os.Getenv("PROVISIONER_POST_PARTITION_HOOK"); v != "" {
		d.PostPartitionHook = v
	}
}
