package disk

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Tool drives the external disk-imaging utilities: building a small
// filesystem image out of a tar archive, compressing it into the overlay
// format the hypervisor boots from, and mounting a returned overlay to pull
// files back out.
type Tool interface {
	MakeFS(ctx context.Context, archivePath, imagePath, size string) error
	Convert(ctx context.Context, srcPath, dstPath string) error
	Mount(ctx context.Context, diskPath, mountDir string) error
	Unmount(ctx context.Context, mountDir string) error
}

type tool struct{}

// NewTool verifies the required binaries are present before returning a Tool.
func NewTool() (Tool, error) {
	for _, bin := range []string{"virt-make-fs", "qemu-img", "guestmount", "guestunmount"} {
		if _, err := exec.LookPath(bin); err != nil {
			return nil, fmt.Errorf("%s not found in PATH: %w", bin, err)
		}
	}
	return &tool{}, nil
}

func run(ctx context.Context, bin string, args ...string) error {
	cmd := exec.CommandContext(ctx, bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s %s failed: %w\nstderr: %s", bin, strings.Join(args, " "), err, stderr.String())
	}
	return nil
}

func (t *tool) MakeFS(ctx context.Context, archivePath, imagePath, size string) error {
	return run(ctx, "virt-make-fs", "--format=raw", "--type=ext4", "--size="+size, archivePath, imagePath)
}

func (t *tool) Convert(ctx context.Context, srcPath, dstPath string) error {
	return run(ctx, "qemu-img", "convert", "-c", "-O", "qcow2", srcPath, dstPath)
}

func (t *tool) Mount(ctx context.Context, diskPath, mountDir string) error {
	return run(ctx, "guestmount", "-a", diskPath, "-m", "/dev/sda", "--ro", mountDir)
}

func (t *tool) Unmount(ctx context.Context, mountDir string) error {
	return run(ctx, "guestunmount", mountDir)
}
