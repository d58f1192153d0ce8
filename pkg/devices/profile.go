package devices

import "strings"

// Transport identifies how a device family is reached once detected.
type Transport string

const (
	TransportUSBMount  Transport = "usb-mount"
	TransportUSBWebAPI Transport = "usb-web-api"
	TransportSSH       Transport = "ssh"
)

// Criteria describes how to recognize a device family from a mounted
// volume. All non-empty criteria must hold for a match; empty criteria are
// skipped rather than treated as failures.
type Criteria struct {
	VolumeName     string   // case-insensitive substring of the volume's base name
	MarkerPaths    []string // directories that must exist under the mount
	SignatureFiles []string // files that must exist under the mount
}

// Profile is the static descriptor of one supported device family. Profiles
// are defined at build time and never mutated; new device support is a new
// registry entry, not new code.
type Profile struct {
	Type               string
	Name               string
	Manufacturer       string
	Transport          Transport
	Criteria           Criteria
	SyncPath           string // device-relative directory synced books go to
	DatabasePath       string // device-relative path of the reading database, if any
	SupportedFormats   []string
	RequiresConversion bool
	MaxFileSizeMB      int // 0 = no device-imposed ceiling
}

// SupportsFormat reports whether the profile accepts the given file format
// (lowercase extension without dot).
func (p Profile) SupportsFormat(format string) bool {
	format = strings.ToLower(format)
	for _, f := range p.SupportedFormats {
		if f == format {
			return true
		}
	}
	return false
}
