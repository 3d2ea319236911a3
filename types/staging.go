package types

// MachineDescriptor names one selectable target machine in the staged
// configuration tree.
type MachineDescriptor struct {
	Name       string
	ConfigPath string
}

// StagingStatus tracks the lifecycle of the staged repository copy.
type StagingStatus string

const (
	StagingPending StagingStatus = "pending"
	StagingCloning StagingStatus = "cloning"
	StagingReady   StagingStatus = "ready"
	StagingFailed  StagingStatus = "failed"
)

// RepoStaging records where the remote configuration repository is fetched
// to for the current run. A stale copy is always deleted first; staged state
// must be reproducible, never merged.
type RepoStaging struct {
	RemoteURL string
	Branch    string
	TargetDir string
	Status    StagingStatus
}
