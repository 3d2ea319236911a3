// Package deps maps the capabilities the pipeline needs to the binaries
// that provide them and reports which are missing. It never installs
// anything; acquisition is the operator's job.
package deps

import (
	"fmt"
	"os/exec"
	"sort"

	"github.com/hashicorp/go-multierror"

	"github.com/nyx-io/provisioner/types"
)

// Capability names an external tool requirement in pipeline terms rather
// than binary names, so the table is the only place binaries are chosen.
type Capability string

const (
	PartitionEditor Capability = "partition-table-editor"
	PartitionQuery  Capability = "partition-table-query"
	DeviceRescan    Capability = "device-rescan"
	FSFormatter     Capability = "filesystem-formatter"
	VCSClient       Capability = "vcs-client"
	BuildEvaluator  Capability = "build-evaluator"
)

type provider struct {
	Binary      string
	Remediation string
}

var table = map[Capability]provider{
	PartitionEditor: {"parted", "install parted"},
	PartitionQuery:  {"sfdisk", "install util-linux (provides sfdisk)"},
	DeviceRescan:    {"partprobe", "install parted (provides partprobe)"},
	FSFormatter:     {"mkfs.fat", "install dosfstools (provides mkfs.fat)"},
	VCSClient:       {"git", "install git"},
	BuildEvaluator:  {"nix", "install nix with flakes enabled"},
}

// Required is the capability set of the full install pipeline.
func Required() []Capability {
	caps := make([]Capability, 0, len(table))
	for c := range table {
		caps = append(caps, c)
	}
	sort.Slice(caps, func(i, j int) bool { return caps[i] < caps[j] })
	return caps
}

// Binary returns the binary backing a capability.
func Binary(c Capability) string {
	return table[c].Binary
}

// Resolve checks that every requested capability is present on the
// execution path and lists every missing one with its remediation.
func Resolve(log types.Logger, required ...Capability) types.ValidationResult {
	return resolve(log, exec.LookPath, required...)
}

func resolve(log types.Logger, lookPath func(string) (string, error), required ...Capability) types.ValidationResult {
	var errs *multierror.Error
	for _, cap := range required {
		p, ok := table[cap]
		if !ok {
			errs = multierror.Append(errs, fmt.Errorf("unknown capability %q", cap))
			continue
		}
		path, err := lookPath(p.Binary)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: %s not found on PATH; %s", cap, p.Binary, p.Remediation))
			continue
		}
		log.Debugf("%s: %s", cap, path)
	}
	if err := errs.ErrorOrNil(); err != nil {
		return types.Failf(types.DependencyError, "%v", err)
	}
	return types.Pass()
}
