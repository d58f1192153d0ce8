package devices

import (
	"fmt"
	"path/filepath"
	"time"
)

// Device is a live, detected device instance. Instances are superseded, not
// mutated, on each detection pass; identity is by mount path + profile type
// rather than object reference.
type Device struct {
	ID               string     `json:"id"`
	Type             string     `json:"type"`
	Name             string     `json:"name"`
	Model            string     `json:"model"`
	Manufacturer     string     `json:"manufacturer"`
	Transport        Transport  `json:"transport"`
	MountPath        string     `json:"mount_path"`
	SyncPath         string     `json:"sync_path"`
	TotalBytes       int64      `json:"total_bytes"`
	FreeBytes        int64      `json:"free_bytes"`
	SupportedFormats []string   `json:"supported_formats"`
	BookCount        int        `json:"book_count"`
	LastSyncAt       *time.Time `json:"last_sync_at,omitempty"`
}

// Key is the device's identity for diffing and per-device serialization.
func (d Device) Key() string {
	return fmt.Sprintf("%s|%s", d.MountPath, d.Type)
}

// VolumeName returns the base name of the device's mount path.
func (d Device) VolumeName() string {
	return filepath.Base(d.MountPath)
}

// SupportsFormat reports whether the device accepts the given file format
// (lowercase extension without dot).
func (d Device) SupportsFormat(format string) bool {
	p := Profile{SupportedFormats: d.SupportedFormats}
	return p.SupportsFormat(format)
}

// Diff compares two detection passes and returns the devices that appeared
// and disappeared. Callers polling Detect use this to derive connect and
// disconnect events; the detector itself keeps no state between passes.
func Diff(previous, current []Device) (connected, disconnected []Device) {
	prev := make(map[string]Device, len(previous))
	for _, d := range previous {
		prev[d.Key()] = d
	}
	curr := make(map[string]Device, len(current))
	for _, d := range current {
		curr[d.Key()] = d
		if _, ok := prev[d.Key()]; !ok {
			connected = append(connected, d)
		}
	}
	for _, d := range previous {
		if _, ok := curr[d.Key()]; !ok {
			disconnected = append(disconnected, d)
		}
	}
	return connected, disconnected
}
