// Package localvol implements volume and file access against the real
// filesystem, for devices that mount as plain USB storage.
package localvol

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/stomybooks/stomy-sync/pkg/devices"
)

// Service probes mounted volumes and copies files. It implements
// devices.VolumeService and transfer.FileService.
type Service struct {
	mountRoots []string
}

// NewService builds a Service scanning the platform's removable-volume
// mount points. Extra roots (e.g. from configuration) can be passed in.
func NewService(extraRoots ...string) *Service {
	return &Service{
		mountRoots: append(defaultMountRoots(), extraRoots...),
	}
}

func defaultMountRoots() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{"/Volumes"}
	default:
		return []string{"/media", "/run/media", "/mnt"}
	}
}

// ListMountedVolumes returns the directories under the mount roots. Each
// entry is a candidate device mount; the detector decides which ones are
// actually e-readers.
func (s *Service) ListMountedVolumes(_ context.Context) ([]string, error) {
	volumes := []string{}
	for _, root := range s.mountRoots {
		entries, err := os.ReadDir(root)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, errors.WithStack(err)
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			volumes = append(volumes, filepath.Join(root, entry.Name()))
		}
	}
	return volumes, nil
}

func (s *Service) PathExists(_ context.Context, path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, errors.WithStack(err)
}

func (s *Service) GetStorageInfo(_ context.Context, path string) (devices.StorageInfo, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return devices.StorageInfo{}, errors.WithStack(err)
	}
	blockSize := int64(stat.Bsize)
	return devices.StorageInfo{
		TotalBytes: int64(stat.Blocks) * blockSize,
		FreeBytes:  int64(stat.Bavail) * blockSize,
	}, nil
}

// CountFiles counts files with the given extensions (no leading dot),
// walking the path recursively. Unreadable subtrees are skipped rather
// than failing the count.
func (s *Service) CountFiles(_ context.Context, path string, extensions []string) (int, error) {
	wanted := map[string]bool{}
	for _, ext := range extensions {
		wanted[strings.ToLower(ext)] = true
	}

	count := 0
	err := filepath.WalkDir(path, func(_ string, d os.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(d.Name()), "."))
		if wanted[ext] {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, errors.WithStack(err)
	}
	return count, nil
}

func (s *Service) CreateDirectory(_ context.Context, path string) error {
	return errors.WithStack(os.MkdirAll(path, 0o755))
}

func (s *Service) FileSize(_ context.Context, path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	return info.Size(), nil
}

// CopyFile copies source to target via a temp file in the target
// directory, renaming on success so a yanked cable never leaves a partial
// book visible. The copy loop checks the context between chunks.
func (s *Service) CopyFile(ctx context.Context, sourcePath, targetPath string) error {
	source, err := os.Open(sourcePath)
	if err != nil {
		return errors.WithStack(err)
	}
	defer source.Close()

	tmp, err := os.CreateTemp(filepath.Dir(targetPath), ".stomy-sync-*")
	if err != nil {
		return errors.WithStack(err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := copyChunks(ctx, tmp, source); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.WithStack(err)
	}
	if err := tmp.Close(); err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(os.Rename(tmpPath, targetPath))
}

func copyChunks(ctx context.Context, dst io.Writer, src io.Reader) error {
	buf := make([]byte, 1<<20)
	for {
		if err := ctx.Err(); err != nil {
			return errors.WithStack(err)
		}
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, writeErr := dst.Write(buf[:n]); writeErr != nil {
				return errors.WithStack(writeErr)
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return errors.WithStack(readErr)
		}
	}
}
