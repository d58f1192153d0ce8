package devices

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/robinjoseph08/golib/logger"
)

// Detector matches mounted volumes against device profiles. Each Detect
// call is independent and idempotent; callers diff successive results to
// derive connect/disconnect events.
type Detector struct {
	volumes VolumeService
	log     logger.Logger
}

func NewDetector(volumes VolumeService) *Detector {
	return &Detector{
		volumes: volumes,
		log:     logger.New(),
	}
}

// Detect scans currently mounted volumes and returns a descriptor for every
// volume that matches one of the given profiles. The first matching profile
// wins for a volume. Probe errors are treated as "no match" for that
// volume/profile combination and never abort detection of the rest.
func (d *Detector) Detect(ctx context.Context, profiles []Profile) []Device {
	volumes, err := d.volumes.ListMountedVolumes(ctx)
	if err != nil {
		d.log.Err(err).Error("failed to list mounted volumes")
		return nil
	}

	detected := make([]Device, 0)
	for _, volume := range volumes {
		for _, profile := range profiles {
			if !d.matches(ctx, volume, profile) {
				continue
			}
			detected = append(detected, d.buildDevice(ctx, volume, profile))
			break
		}
	}

	return detected
}

// matches evaluates a profile's criteria against one volume. All criteria
// present on the profile must hold; absent criteria are skipped.
func (d *Detector) matches(ctx context.Context, volumePath string, profile Profile) bool {
	criteria := profile.Criteria

	if criteria.VolumeName != "" {
		volumeName := strings.ToLower(filepath.Base(volumePath))
		if !strings.Contains(volumeName, strings.ToLower(criteria.VolumeName)) {
			return false
		}
	}

	for _, marker := range criteria.MarkerPaths {
		exists, err := d.volumes.PathExists(ctx, filepath.Join(volumePath, marker))
		if err != nil || !exists {
			return false
		}
	}

	for _, signature := range criteria.SignatureFiles {
		exists, err := d.volumes.PathExists(ctx, filepath.Join(volumePath, signature))
		if err != nil || !exists {
			return false
		}
	}

	return true
}

func (d *Detector) buildDevice(ctx context.Context, volumePath string, profile Profile) Device {
	volumeName := filepath.Base(volumePath)
	syncPath := filepath.Join(volumePath, profile.SyncPath)

	// A device with unreadable storage info reports zero capacity rather
	// than failing detection outright.
	info, err := d.volumes.GetStorageInfo(ctx, volumePath)
	if err != nil {
		d.log.Err(err).Warn("failed to read storage info", logger.Data{"volume": volumePath})
		info = StorageInfo{}
	}
	if info.FreeBytes > info.TotalBytes {
		info.FreeBytes = info.TotalBytes
	}

	bookCount, err := d.volumes.CountFiles(ctx, syncPath, profile.SupportedFormats)
	if err != nil {
		d.log.Err(err).Warn("failed to count books", logger.Data{"path": syncPath})
		bookCount = 0
	}

	return Device{
		ID:               fmt.Sprintf("%s-%s", profile.Type, volumeName),
		Type:             profile.Type,
		Name:             profile.Name,
		Model:            volumeName,
		Manufacturer:     profile.Manufacturer,
		Transport:        profile.Transport,
		MountPath:        volumePath,
		SyncPath:         syncPath,
		TotalBytes:       info.TotalBytes,
		FreeBytes:        info.FreeBytes,
		SupportedFormats: profile.SupportedFormats,
		BookCount:        bookCount,
	}
}
