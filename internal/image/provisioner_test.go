package image

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mtorres/runnerfleet/internal/disk"
	"github.com/mtorres/runnerfleet/internal/fleet"
)

func TestBuild(t *testing.T) {
	workDir := t.TempDir()
	mock := disk.NewMockTool()
	prov := NewProvisioner(mock)

	path, err := prov.Build(context.Background(), workDir, "https://github.com/o/r", "TOK", "ci-pool-slot0-0")
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if path != filepath.Join(workDir, "input_disk_ci-pool-slot0-0.qcow2") {
		t.Errorf("unexpected disk path %q", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("final disk missing: %v", err)
	}

	if len(mock.MakeFSCalls) != 1 || mock.MakeFSCalls[0][2] != FSSize {
		t.Errorf("unexpected MakeFS calls: %v", mock.MakeFSCalls)
	}

	// The mock copies the archive through both stages, so the final "disk"
	// is the tar archive itself: verify the embedded script.
	name, mode, script := extractSingleEntry(t, path)
	if name != fleet.BootstrapScriptName {
		t.Errorf("expected %s entry, got %q", fleet.BootstrapScriptName, name)
	}
	if mode != 0755 {
		t.Errorf("expected mode 0755, got %o", mode)
	}
	if !strings.Contains(string(script), "--token TOK") {
		t.Error("script missing substituted token")
	}
}

func TestBuild_Deterministic(t *testing.T) {
	mock := disk.NewMockTool()
	prov := NewProvisioner(mock)

	dirA, dirB := t.TempDir(), t.TempDir()
	pathA, err := prov.Build(context.Background(), dirA, "https://github.com/o/r", "TOK", "w1")
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	pathB, err := prov.Build(context.Background(), dirB, "https://github.com/o/r", "TOK", "w1")
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	_, _, scriptA := extractSingleEntry(t, pathA)
	_, _, scriptB := extractSingleEntry(t, pathB)
	if !bytes.Equal(scriptA, scriptB) {
		t.Error("identical inputs produced different embedded scripts")
	}
}

func TestBuild_TempCleanup(t *testing.T) {
	workDir := t.TempDir()
	mock := disk.NewMockTool()
	prov := NewProvisioner(mock)

	if _, err := prov.Build(context.Background(), workDir, "u", "t", "w"); err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	entries, err := os.ReadDir(workDir)
	if err != nil {
		t.Fatalf("reading workdir: %v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".archive-") || strings.HasPrefix(e.Name(), ".image-") {
			t.Errorf("temp file %s left behind", e.Name())
		}
	}
}

func TestBuild_ToolFailureLeavesNoDisk(t *testing.T) {
	workDir := t.TempDir()
	mock := disk.NewMockTool()
	mock.ConvertErr = errors.New("qemu-img exploded")
	prov := NewProvisioner(mock)

	_, err := prov.Build(context.Background(), workDir, "u", "t", "w1")
	var provErr *ProvisionError
	if !errors.As(err, &provErr) {
		t.Fatalf("expected ProvisionError, got %v", err)
	}

	if _, statErr := os.Stat(fleet.InputDiskPath(workDir, "w1")); !os.IsNotExist(statErr) {
		t.Error("partial disk left in place after failure")
	}

	entries, _ := os.ReadDir(workDir)
	if len(entries) != 0 {
		t.Errorf("expected empty workdir after failure, found %d entries", len(entries))
	}
}

func TestBuild_MakeFSFailure(t *testing.T) {
	workDir := t.TempDir()
	mock := disk.NewMockTool()
	mock.MakeFSErr = errors.New("virt-make-fs exploded")
	prov := NewProvisioner(mock)

	if _, err := prov.Build(context.Background(), workDir, "u", "t", "w1"); err == nil {
		t.Fatal("expected error when filesystem build fails")
	}
	entries, _ := os.ReadDir(workDir)
	if len(entries) != 0 {
		t.Errorf("expected empty workdir after failure, found %d entries", len(entries))
	}
}

func extractSingleEntry(t *testing.T, archivePath string) (string, int64, []byte) {
	t.Helper()
	f, err := os.Open(archivePath)
	if err != nil {
		t.Fatalf("opening archive: %v", err)
	}
	defer f.Close()

	tr := tar.NewReader(f)
	hdr, err := tr.Next()
	if err != nil {
		t.Fatalf("reading archive entry: %v", err)
	}
	data, err := io.ReadAll(tr)
	if err != nil {
		t.Fatalf("reading archive body: %v", err)
	}
	if _, err := tr.Next(); err != io.EOF {
		t.Fatal("expected exactly one archive entry")
	}
	return hdr.Name, hdr.Mode, data
}
