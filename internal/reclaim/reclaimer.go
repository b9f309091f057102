package reclaim

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/mtorres/runnerfleet/internal/disk"
	"github.com/mtorres/runnerfleet/internal/fleet"
)

// ReclaimError reports a failed log extraction. It never changes the
// attempt's outcome: the after hook logs it and still exits clean, and the
// overlay disk is deleted regardless so storage stays bounded.
type ReclaimError struct {
	DiskPath string
	Err      error
}

func (e *ReclaimError) Error() string {
	return fmt.Sprintf("reclaiming logs from %s: %v", e.DiskPath, e.Err)
}

func (e *ReclaimError) Unwrap() error { return e.Err }

// Reclaimer extracts the bootstrap script's captured output from a returned
// overlay disk.
type Reclaimer struct {
	tool disk.Tool
}

func NewReclaimer(tool disk.Tool) *Reclaimer {
	return &Reclaimer{tool: tool}
}

// Reclaim mounts diskPath read-only into a private scratch directory, copies
// the two runner log files into destDir with the job id and retry counter
// embedded in their names, then unmounts and deletes both the scratch
// directory and the disk itself. The disk is deleted even when mounting or
// copying failed.
func (r *Reclaimer) Reclaim(ctx context.Context, diskPath, destDir, jobID, retry string) error {
	err := r.extract(ctx, diskPath, destDir, jobID, retry)

	if rmErr := os.Remove(diskPath); rmErr != nil && !os.IsNotExist(rmErr) {
		log.Printf("Warning: failed to delete overlay disk %s: %v", diskPath, rmErr)
	}

	if err != nil {
		return &ReclaimError{DiskPath: diskPath, Err: err}
	}
	return nil
}

func (r *Reclaimer) extract(ctx context.Context, diskPath, destDir, jobID, retry string) error {
	scratch, err := os.MkdirTemp("", "reclaim-*")
	if err != nil {
		return fmt.Errorf("creating scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	if err := r.tool.Mount(ctx, diskPath, scratch); err != nil {
		return err
	}
	defer func() {
		if err := r.tool.Unmount(ctx, scratch); err != nil {
			log.Printf("Warning: failed to unmount %s: %v", scratch, err)
		}
	}()

	var errs []error
	for _, name := range []string{fleet.StdoutLogName, fleet.StderrLogName} {
		src := filepath.Join(scratch, name)
		dst := filepath.Join(destDir, fleet.CreateFilename(name, jobID, retry))
		if err := copyFile(src, dst); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copying %s: %w", src, err)
	}
	return out.Close()
}
