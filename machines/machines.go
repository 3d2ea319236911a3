// Package machines enumerates the selectable target machines of a staged
// configuration tree.
package machines

import (
	"path/filepath"
	"sort"

	vfs "github.com/twpayne/go-vfs/v4"

	"github.com/nyx-io/provisioner/types"
)

// templatesDir is the catalog entry holding scaffolding for new machines;
// it is never installable.
const templatesDir = "templates"

// Discover lists the machine directories under rootDir, excluding the
// templates entry, in lexicographic order. An absent root or an empty
// result is a discovery failure.
func Discover(fsys vfs.FS, rootDir string) ([]types.MachineDescriptor, types.ValidationResult) {
	entries, err := fsys.ReadDir(rootDir)
	if err != nil {
		return nil, types.Failf(types.DiscoveryError, "machine catalog %s not readable: %v", rootDir, err)
	}

	var found []types.MachineDescriptor
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == templatesDir {
			continue
		}
		found = append(found, types.MachineDescriptor{
			Name:       entry.Name(),
			ConfigPath: filepath.Join(rootDir, entry.Name()),
		})
	}
	if len(found) == 0 {
		return nil, types.Failf(types.DiscoveryError, "no machines found under %s", rootDir)
	}
	sort.Slice(found, func(i, j int) bool { return found[i].Name < found[j].Name })
	return found, types.Pass()
}
