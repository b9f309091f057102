package image

import (
	"archive/tar"
	"context"
	"fmt"
	"os"

	"github.com/mtorres/runnerfleet/internal/disk"
	"github.com/mtorres/runnerfleet/internal/fleet"
)

// FSSize is the fixed size of the overlay filesystem. The bootstrap script
// plus its two log files fit with room to spare.
const FSSize = "100M"

// ProvisionError wraps a failure while synthesizing an overlay disk. The
// calling hook exits non-zero on it, which fails the attempt and lets the
// scheduler retry.
type ProvisionError struct {
	WorkerName string
	Err        error
}

func (e *ProvisionError) Error() string {
	return fmt.Sprintf("provisioning overlay disk for %s: %v", e.WorkerName, e.Err)
}

func (e *ProvisionError) Unwrap() error { return e.Err }

// Provisioner builds per-attempt bootable overlay disks.
type Provisioner struct {
	tool disk.Tool
}

func NewProvisioner(tool disk.Tool) *Provisioner {
	return &Provisioner{tool: tool}
}

// Build renders the bootstrap script for one attempt, packs it into a tar
// archive, materializes the archive as a small ext4 image, and compresses
// that into the final overlay disk at workDir/input_disk_<workerName>.qcow2.
// The intermediate archive and raw image are private temp files removed on
// every exit path; on failure the final path is absent.
func (p *Provisioner) Build(ctx context.Context, workDir, repoURL, token, workerName string) (string, error) {
	finalPath := fleet.InputDiskPath(workDir, workerName)

	script, err := fleet.RenderBootstrap(repoURL, token, workerName)
	if err != nil {
		return "", &ProvisionError{WorkerName: workerName, Err: err}
	}

	archive, err := os.CreateTemp(workDir, ".archive-*.tar")
	if err != nil {
		return "", &ProvisionError{WorkerName: workerName, Err: err}
	}
	defer os.Remove(archive.Name())

	if err := writeScriptArchive(archive, script); err != nil {
		archive.Close()
		return "", &ProvisionError{WorkerName: workerName, Err: err}
	}
	if err := archive.Close(); err != nil {
		return "", &ProvisionError{WorkerName: workerName, Err: err}
	}

	raw, err := os.CreateTemp(workDir, ".image-*.raw")
	if err != nil {
		return "", &ProvisionError{WorkerName: workerName, Err: err}
	}
	raw.Close()
	defer os.Remove(raw.Name())

	if err := p.tool.MakeFS(ctx, archive.Name(), raw.Name(), FSSize); err != nil {
		return "", &ProvisionError{WorkerName: workerName, Err: err}
	}

	if err := p.tool.Convert(ctx, raw.Name(), finalPath); err != nil {
		// Never leave a partial disk where the scheduler would pick it up.
		os.Remove(finalPath)
		return "", &ProvisionError{WorkerName: workerName, Err: err}
	}

	return finalPath, nil
}

// writeScriptArchive emits a tar stream holding the bootstrap script as its
// single entry, executable.
func writeScriptArchive(w *os.File, script []byte) error {
	tw := tar.NewWriter(w)
	hdr := &tar.Header{
		Name: fleet.BootstrapScriptName,
		Mode: 0755,
		Size: int64(len(script)),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("writing archive header: %w", err)
	}
	if _, err := tw.Write(script); err != nil {
		return fmt.Errorf("writing archive body: %w", err)
	}
	return tw.Close()
}
