package fleet

import (
	"errors"
	"fmt"
)

// Spec declares a fleet: a named pool of ephemeral CI worker slots registered
// against one org/repo scope. All slots share the resource shape, base image
// and retry policy; per-slot variation is the ordinal only.
type Spec struct {
	Name           string `json:"name"`
	Org            string `json:"org"`
	Repo           string `json:"repo,omitempty"` // empty means organization-scoped
	CredentialFile string `json:"credentialFile"`
	WorkDir        string `json:"workDir"`
	BaseImage      string `json:"baseImage"`
	Slots          int    `json:"slots"`
	IdleTarget     int    `json:"idleTarget"`
	CPUs           int    `json:"cpus"`
	MemoryMB       int    `json:"memoryMB"`
}

// RepoURL is the URL the runner registers against.
func (s *Spec) RepoURL() string {
	if s.Repo == "" {
		return fmt.Sprintf("https://github.com/%s", s.Org)
	}
	return fmt.Sprintf("https://github.com/%s/%s", s.Org, s.Repo)
}

func (s *Spec) Validate() error {
	if s.Name == "" {
		return errors.New("fleet name must not be empty")
	}
	if s.Org == "" {
		return errors.New("org must not be empty")
	}
	if s.WorkDir == "" {
		return errors.New("working directory must not be empty")
	}
	if s.BaseImage == "" {
		return errors.New("base image must not be empty")
	}
	if s.Slots <= 0 {
		return fmt.Errorf("slot count must be positive, got %d", s.Slots)
	}
	if s.IdleTarget < 0 || s.IdleTarget > s.Slots {
		return fmt.Errorf("idle target %d out of range [0, %d]", s.IdleTarget, s.Slots)
	}
	return nil
}

// NameCollisionError reports that a batch with the fleet's name is already
// active in the scheduler. Submitting twice is refused before any state is
// created.
type NameCollisionError struct {
	Name string
}

func (e *NameCollisionError) Error() string {
	return fmt.Sprintf("a fleet named %q is already active in the scheduler", e.Name)
}

// ErrExistingWorkingDir refuses re-submission into a directory that already
// holds a fleet's artifacts. The operator picks a fresh directory or cleans
// up; silent reuse would mix attempts from two fleets.
var ErrExistingWorkingDir = errors.New("working directory already exists")
