package reclaim

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/mtorres/runnerfleet/internal/disk"
	"github.com/mtorres/runnerfleet/internal/fleet"
)

func writeDisk(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "output_disk_ci-pool-slot0-0.qcow2")
	if err := os.WriteFile(path, []byte("fake qcow2"), 0644); err != nil {
		t.Fatalf("writing fake disk: %v", err)
	}
	return path
}

func TestReclaim(t *testing.T) {
	diskPath := writeDisk(t)
	destDir := t.TempDir()

	mock := disk.NewMockTool()
	mock.MountFiles = map[string]string{
		fleet.StdoutLogName: "runner configured\n",
		fleet.StderrLogName: "",
	}

	rec := NewReclaimer(mock)
	if err := rec.Reclaim(context.Background(), diskPath, destDir, "slot0", "3"); err != nil {
		t.Fatalf("Reclaim failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(destDir, "runner-stdout_slot0_3.log"))
	if err != nil {
		t.Fatalf("stdout log not reclaimed: %v", err)
	}
	if string(data) != "runner configured\n" {
		t.Errorf("unexpected stdout content %q", data)
	}
	if _, err := os.Stat(filepath.Join(destDir, "runner-stderr_slot0_3.log")); err != nil {
		t.Errorf("stderr log not reclaimed: %v", err)
	}

	// Disk consumed.
	if _, err := os.Stat(diskPath); !os.IsNotExist(err) {
		t.Error("overlay disk not deleted after reclaim")
	}
	if len(mock.UnmountCalls) != 1 {
		t.Errorf("expected 1 unmount, got %d", len(mock.UnmountCalls))
	}
}

func TestReclaim_MountFailureStillDeletesDisk(t *testing.T) {
	diskPath := writeDisk(t)

	mock := disk.NewMockTool()
	mock.MountErr = errors.New("guestmount exploded")

	rec := NewReclaimer(mock)
	err := rec.Reclaim(context.Background(), diskPath, t.TempDir(), "slot1", "0")

	var recErr *ReclaimError
	if !errors.As(err, &recErr) {
		t.Fatalf("expected ReclaimError, got %v", err)
	}
	if _, statErr := os.Stat(diskPath); !os.IsNotExist(statErr) {
		t.Error("overlay disk survived a failed reclaim")
	}
}

func TestReclaim_MissingLogsStillDeletesDisk(t *testing.T) {
	diskPath := writeDisk(t)

	// Mount succeeds but the disk holds no log files (VM never booted far
	// enough to write them).
	mock := disk.NewMockTool()

	rec := NewReclaimer(mock)
	err := rec.Reclaim(context.Background(), diskPath, t.TempDir(), "slot2", "1")
	if err == nil {
		t.Fatal("expected error for missing log files")
	}
	if _, statErr := os.Stat(diskPath); !os.IsNotExist(statErr) {
		t.Error("overlay disk survived a failed reclaim")
	}
}
