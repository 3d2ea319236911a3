// Package account determines the configuration's default user account and
// writes a per-machine override when the operator picks a different name.
package account

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/itchyny/gojq"
	vfs "github.com/twpayne/go-vfs/v4"

	"github.com/nyx-io/provisioner/constants"
	"github.com/nyx-io/provisioner/shell"
	"github.com/nyx-io/provisioner/types"
)

// usernamePattern is the accepted account name shape: starts with a
// lowercase letter, then lowercase alphanumerics, hyphen or underscore.
var usernamePattern = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

// flakeUserPattern is the best-effort fallback over the top-level flake
// file when the evaluator is unavailable.
var flakeUserPattern = regexp.MustCompile(`defaultUser\s*=\s*"([a-z][a-z0-9_-]*)"`)

// reservedUsernames can never be used for the operator account.
var reservedUsernames = map[string]struct{}{
	"root": {}, "daemon": {}, "bin": {}, "sys": {}, "nobody": {},
	"messagebus": {}, "sshd": {}, "nixbld": {}, "wheel": {}, "admin": {},
}

const maxUsernameLen = 32

type Resolver struct {
	runner   *shell.Runner
	fsys     vfs.FS
	log      types.Logger
	fallback string
}

func NewResolver(runner *shell.Runner, fsys vfs.FS, log types.Logger, fallback string) *Resolver {
	return &Resolver{runner: runner, fsys: fsys, log: log, fallback: fallback}
}

// ResolveDefaultUser returns the default account declared by the staged
// configuration. Primary path is the build evaluator; if that is
// unavailable the flake file is pattern matched; as a last resort the fixed
// fallback applies. Never a hard error, the value only seeds a default.
func (r *Resolver) ResolveDefaultUser(stagedDir string) string {
	out, err := r.runner.Output("nix", "eval", "--json", fmt.Sprintf("%s#installSettings", stagedDir))
	if err == nil {
		if name, qerr := queryDefaultUser([]byte(out)); qerr == nil && name != "" {
			r.log.Debugf("default user from evaluator: %s", name)
			return name
		}
	} else {
		r.log.Debugf("evaluator unavailable for user detection: %v", err)
	}

	if name := r.parseFlakeUser(stagedDir); name != "" {
		r.log.Debugf("default user from flake text: %s", name)
		return name
	}

	r.log.Debugf("default user fallback: %s", r.fallback)
	return r.fallback
}

// queryDefaultUser extracts .defaultUser from the evaluator's JSON output.
func queryDefaultUser(data []byte) (string, error) {
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", err
	}
	query, err := gojq.Parse(".defaultUser")
	if err != nil {
		return "", err
	}
	iter := query.Run(doc)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, ok := v.(error); ok {
			return "", err
		}
		if s, ok := v.(string); ok {
			return s, nil
		}
	}
	return "", nil
}

func (r *Resolver) parseFlakeUser(stagedDir string) string {
	data, err := r.fsys.ReadFile(filepath.Join(stagedDir, "flake.nix"))
	if err != nil {
		return ""
	}
	if m := flakeUserPattern.FindSubmatch(data); m != nil {
		return string(m[1])
	}
	return ""
}

// ValidateUsername rejects names longer than 32 characters, names not
// matching the accepted shape, and reserved system names.
func ValidateUsername(name string) error {
	if len(name) == 0 {
		return fmt.Errorf("username is empty")
	}
	if len(name) > maxUsernameLen {
		return fmt.Errorf("username %q longer than %d characters", name, maxUsernameLen)
	}
	if !usernamePattern.MatchString(name) {
		return fmt.Errorf("username %q must start with a lowercase letter and use only lowercase letters, digits, hyphen or underscore", name)
	}
	if _, reserved := reservedUsernames[name]; reserved {
		return fmt.Errorf("username %q is reserved", name)
	}
	return nil
}

// WriteUserOverride writes a minimal override fragment for machine when the
// requested name differs from the detected one. It returns the path of the
// created file, or empty when nothing was written. Existing overrides are
// never merged or deleted.
func (r *Resolver) WriteUserOverride(machine types.MachineDescriptor, requested, detected string) (string, error) {
	if requested == detected {
		return "", nil
	}
	if err := ValidateUsername(requested); err != nil {
		return "", err
	}

	path := filepath.Join(machine.ConfigPath, "user-override.nix")
	content := fmt.Sprintf(`# Written by the installer for %s.
{ ... }:
{
  installSettings.defaultUser = %q;
}
`, machine.Name, requested)
	if err := r.fsys.WriteFile(path, []byte(content), constants.FilePerm); err != nil {
		return "", fmt.Errorf("writing user override for %s: %w", machine.Name, err)
	}
	r.log.Infof("wrote user override %s (%s instead of %s)", path, requested, detected)
	return path, nil
}

// Suggest normalizes an operator-entered name for prompting, trimming
// whitespace and lowering case.
func Suggest(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
