package devices

import "context"

// StorageInfo reports capacity for a mounted volume.
type StorageInfo struct {
	TotalBytes int64
	FreeBytes  int64
}

// VolumeService enumerates mounted storage volumes and probes their
// contents. Implemented by pkg/localvol for real mounts and by
// pkg/fakedevice for tests and the simulated device.
type VolumeService interface {
	ListMountedVolumes(ctx context.Context) ([]string, error)
	PathExists(ctx context.Context, path string) (bool, error)
	GetStorageInfo(ctx context.Context, path string) (StorageInfo, error)
	CountFiles(ctx context.Context, path string, extensions []string) (int, error)
}
