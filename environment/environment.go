// Package environment validates the host the installer runs on: process
// privilege, escalation capability, the live-installer marker, network
// reachability and boot firmware mode.
package environment

import (
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/avast/retry-go"
	"github.com/hashicorp/go-multierror"
	"github.com/zcalusic/sysinfo"

	"github.com/nyx-io/provisioner/types"
	"github.com/nyx-io/provisioner/ux"
)

const probeTimeout = 3 * time.Second

// Validator checks installer preconditions. Root is an optional path prefix
// so tests can point it at a fabricated tree.
type Validator struct {
	ctx types.RunContext
	log types.Logger
	ux  *ux.UX

	// Root prefixes every absolute path the validator inspects.
	Root string
	// LiveMarker is the file whose presence identifies the installer
	// environment. Its absence is a warning, not a hard failure.
	LiveMarker string
	// HTTPEndpoints are probed first, in order.
	HTTPEndpoints []string
	// PingHosts are probed with ICMP when no HTTP endpoint answered.
	PingHosts []string

	lookPath func(string) (string, error)
	geteuid  func() int
}

func NewValidator(ctx types.RunContext, log types.Logger, u *ux.UX, liveMarker string) *Validator {
	return &Validator{
		ctx:        ctx,
		log:        log,
		ux:         u,
		LiveMarker: liveMarker,
		HTTPEndpoints: []string{
			"https://cache.nixos.org",
			"https://github.com",
		},
		PingHosts: []string{"1.1.1.1", "8.8.8.8"},
		lookPath:  exec.LookPath,
		geteuid:   os.Geteuid,
	}
}

// Validate runs every environment check and aggregates the failures. The
// missing live marker is surfaced as a warning plus a confirmation gate
// rather than a hard error.
func (v *Validator) Validate() types.ValidationResult {
	var errs *multierror.Error

	if v.geteuid() == 0 {
		errs = multierror.Append(errs, fmt.Errorf("running as root; run as a normal user, privileged operations escalate individually"))
	}

	if !v.ctx.DryRun {
		if _, err := v.lookPath("sudo"); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("sudo not available: %w", err))
		}
	}

	if v.LiveMarker != "" {
		if _, err := os.Stat(v.path(v.LiveMarker)); err != nil {
			v.ux.Warn(fmt.Sprintf("installer environment marker %s not found", v.LiveMarker))
			if !v.ux.Confirm("Not running from the installer environment. Continue anyway?", false) {
				errs = multierror.Append(errs, fmt.Errorf("aborted: not an installer environment"))
			}
		}
	}

	if err := v.checkNetwork(); err != nil {
		errs = multierror.Append(errs, err)
	}

	v.log.Infof("boot firmware: %s", v.BootMode())
	v.logHostSummary()

	if err := errs.ErrorOrNil(); err != nil {
		return types.Failf(types.EnvironmentError, "%v", err)
	}
	return types.Pass()
}

// BootMode reports "UEFI" or "legacy" from the firmware interface exposed by
// the kernel. Informational only; the planner never branches on it.
func (v *Validator) BootMode() string {
	if _, err := os.Stat(v.path("/sys/firmware/efi")); err == nil {
		return "UEFI"
	}
	return "legacy"
}

// checkNetwork passes as soon as a single endpoint answers. HTTP endpoints
// go first; ICMP is the fallback for hosts behind proxies that swallow HTTP.
// An empty probe list disables the check.
func (v *Validator) checkNetwork() error {
	if len(v.HTTPEndpoints) == 0 && len(v.PingHosts) == 0 {
		return nil
	}
	client := &http.Client{Timeout: probeTimeout}
	err := retry.Do(
		func() error {
			for _, url := range v.HTTPEndpoints {
				resp, err := client.Head(url)
				if err != nil {
					v.log.Debugf("probe %s: %v", url, err)
					continue
				}
				resp.Body.Close()
				v.log.Debugf("probe %s: reachable", url)
				return nil
			}
			for _, host := range v.PingHosts {
				if err := exec.Command("ping", "-c", "1", "-W", "2", host).Run(); err != nil {
					v.log.Debugf("ping %s: %v", host, err)
					continue
				}
				v.log.Debugf("ping %s: reachable", host)
				return nil
			}
			return fmt.Errorf("no endpoint reachable")
		},
		retry.Attempts(2), retry.Delay(time.Second),
	)
	if err != nil {
		return fmt.Errorf("network unreachable: %w", err)
	}
	return nil
}

func (v *Validator) logHostSummary() {
	var si sysinfo.SysInfo
	si.GetSysInfo()
	v.log.Infof("host: %s, os: %s %s, kernel: %s",
		si.Node.Hostname, si.OS.Name, si.OS.Version, si.Kernel.Release)
}

func (v *Validator) path(p string) string {
	if v.Root == "" {
		return p
	}
	return filepath.Join(v.Root, p)
}
