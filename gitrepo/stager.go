// Package gitrepo stages the remote configuration repository for a run.
// Staged state is deterministic: a stale copy is deleted up front and a
// partial tree left by a failed fetch is removed as well; the diagnostic
// tail of the fetch is preserved for triage instead of the tree.
package gitrepo

import (
	"errors"
	"fmt"
	"io/fs"

	vfs "github.com/twpayne/go-vfs/v4"

	"github.com/nyx-io/provisioner/shell"
	"github.com/nyx-io/provisioner/types"
	"github.com/nyx-io/provisioner/ux"
)

type Stager struct {
	runner *shell.Runner
	fsys   vfs.FS
	log    types.Logger
	ux     *ux.UX
}

func NewStager(runner *shell.Runner, fsys vfs.FS, log types.Logger, u *ux.UX) *Stager {
	return &Stager{runner: runner, fsys: fsys, log: log, ux: u}
}

// Stage fetches a shallow, single-branch copy of url at branch into
// targetDir, replacing whatever was there. The fetch runs as a background
// child wrapped by the liveness spinner.
func (s *Stager) Stage(url, branch, targetDir string) (types.RepoStaging, types.ValidationResult) {
	staging := types.RepoStaging{
		RemoteURL: url,
		Branch:    branch,
		TargetDir: targetDir,
		Status:    types.StagingPending,
	}

	if s.runner.DryRun() {
		if _, err := s.fsys.Stat(targetDir); err == nil {
			s.log.WouldPerform(fmt.Sprintf("remove stale staging dir %s", targetDir))
		}
		s.log.WouldPerform(fmt.Sprintf("clone %s (branch %s) into %s", url, branch, targetDir))
		staging.Status = types.StagingReady
		return staging, types.Pass()
	}

	if err := s.removeStale(targetDir); err != nil {
		staging.Status = types.StagingFailed
		return staging, types.Failf(types.RepositoryError, "removing stale staging dir %s: %v", targetDir, err)
	}

	staging.Status = types.StagingCloning
	task := s.runner.Start(
		fmt.Sprintf("clone %s", url),
		"git", "clone", "--depth", "1", "--single-branch", "--branch", branch, url, targetDir,
	)
	if err := s.ux.Track(task, fmt.Sprintf("Fetching configuration (%s)", branch)); err != nil {
		staging.Status = types.StagingFailed
		// Never leave a half-written tree behind; the tail carries
		// what the operator needs.
		if rmErr := s.removeStale(targetDir); rmErr != nil {
			s.log.Warnf("could not clean up partial staging dir %s: %v", targetDir, rmErr)
		}
		return staging, types.Failf(types.RepositoryError, "fetching %s: %v", url, err).WithTail(task.Tail())
	}

	staging.Status = types.StagingReady
	return staging, types.Pass()
}

func (s *Stager) removeStale(dir string) error {
	_, err := s.fsys.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	s.log.Debugf("removing stale staging dir %s", dir)
	return s.fsys.RemoveAll(dir)
}
