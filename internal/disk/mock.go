package disk

import (
	"context"
	"os"
	"path/filepath"
)

// MockTool implements the Tool interface for testing. By default MakeFS and
// Convert copy their input through so tests can inspect what ended up inside
// the final disk, and Mount populates the mount dir via MountFiles.
type MockTool struct {
	MakeFSCalls  [][3]string // archive, image, size
	ConvertCalls [][2]string
	MountCalls   []string
	UnmountCalls []string

	MakeFSErr  error
	ConvertErr error
	MountErr   error
	UnmountErr error

	// MountFiles are written into the mount dir on Mount, keyed by filename.
	MountFiles map[string]string
}

func NewMockTool() *MockTool {
	return &MockTool{}
}

func (m *MockTool) MakeFS(ctx context.Context, archivePath, imagePath, size string) error {
	m.MakeFSCalls = append(m.MakeFSCalls, [3]string{archivePath, imagePath, size})
	if m.MakeFSErr != nil {
		return m.MakeFSErr
	}
	data, err := os.ReadFile(archivePath)
	if err != nil {
		return err
	}
	return os.WriteFile(imagePath, data, 0644)
}

func (m *MockTool) Convert(ctx context.Context, srcPath, dstPath string) error {
	m.ConvertCalls = append(m.ConvertCalls, [2]string{srcPath, dstPath})
	if m.ConvertErr != nil {
		return m.ConvertErr
	}
	data, err := os.ReadFile(srcPath)
	if err != nil {
		return err
	}
	return os.WriteFile(dstPath, data, 0644)
}

func (m *MockTool) Mount(ctx context.Context, diskPath, mountDir string) error {
	m.MountCalls = append(m.MountCalls, diskPath)
	if m.MountErr != nil {
		return m.MountErr
	}
	for name, content := range m.MountFiles {
		if err := os.WriteFile(filepath.Join(mountDir, name), []byte(content), 0644); err != nil {
			return err
		}
	}
	return nil
}

func (m *MockTool) Unmount(ctx context.Context, mountDir string) error {
	m.UnmountCalls = append(m.UnmountCalls, mountDir)
	return m.UnmountErr
}
