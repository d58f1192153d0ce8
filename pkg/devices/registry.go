package devices

// Device family types known to the registry.
const (
	TypeKobo       = "kobo"
	TypeKindle     = "kindle"
	TypePocketBook = "pocketbook"
	TypeSonyPRS    = "sony-prs"
	TypeCybook     = "cybook"
	TypeBeBook     = "bebook"
	TypeRemarkable = "remarkable"
	TypeGenericUSB = "generic-usb"
)

var profiles = []Profile{
	{
		Type:         TypeKobo,
		Name:         "Kobo eReader",
		Manufacturer: "Rakuten Kobo",
		Transport:    TransportUSBMount,
		Criteria: Criteria{
			VolumeName:  "KOBOeReader",
			MarkerPaths: []string{".kobo"},
		},
		SyncPath:         ".kobo",
		DatabasePath:     ".kobo/KoboReader.sqlite",
		SupportedFormats: []string{"epub", "kepub", "pdf", "cbz", "mobi", "txt"},
	},
	{
		Type:         TypeKindle,
		Name:         "Kindle",
		Manufacturer: "Amazon",
		Transport:    TransportUSBMount,
		Criteria: Criteria{
			VolumeName:  "Kindle",
			MarkerPaths: []string{"documents", "system"},
		},
		SyncPath:           "documents",
		SupportedFormats:   []string{"mobi", "azw", "azw3", "pdf", "txt"},
		RequiresConversion: true, // EPUB must be converted before transfer
	},
	{
		Type:         TypePocketBook,
		Name:         "PocketBook",
		Manufacturer: "PocketBook International",
		Transport:    TransportUSBMount,
		Criteria: Criteria{
			VolumeName:  "POCKETBOOK",
			MarkerPaths: []string{"Books", "system"},
		},
		SyncPath:         "Books",
		SupportedFormats: []string{"epub", "pdf", "fb2", "mobi", "cbz", "cbr", "txt"},
	},
	{
		Type:         TypeSonyPRS,
		Name:         "Sony Reader",
		Manufacturer: "Sony",
		Transport:    TransportUSBMount,
		Criteria: Criteria{
			MarkerPaths:    []string{"database"},
			SignatureFiles: []string{"database/books.db"},
		},
		SyncPath:         "database/media/books",
		DatabasePath:     "database/books.db",
		SupportedFormats: []string{"epub", "pdf", "txt"},
	},
	{
		Type:         TypeCybook,
		Name:         "Cybook",
		Manufacturer: "Bookeen",
		Transport:    TransportUSBMount,
		Criteria: Criteria{
			VolumeName:  "CYBOOK",
			MarkerPaths: []string{"Digital Editions"},
		},
		SyncPath:         "Books",
		SupportedFormats: []string{"epub", "pdf", "fb2", "txt", "html"},
	},
	{
		Type:         TypeBeBook,
		Name:         "BeBook",
		Manufacturer: "BeBook",
		Transport:    TransportUSBMount,
		Criteria: Criteria{
			VolumeName:  "BEBOOK",
			MarkerPaths: []string{"books"},
		},
		SyncPath:         "books",
		SupportedFormats: []string{"epub", "pdf", "fb2", "txt", "html"},
	},
	{
		Type:         TypeRemarkable,
		Name:         "reMarkable",
		Manufacturer: "reMarkable AS",
		Transport:    TransportUSBWebAPI,
		Criteria: Criteria{
			VolumeName: "reMarkable",
		},
		SyncPath:         "/",
		SupportedFormats: []string{"epub", "pdf"},
		MaxFileSizeMB:    100, // USB web API upload limit
	},
	{
		Type:         TypeGenericUSB,
		Name:         "USB Storage",
		Manufacturer: "Generic",
		Transport:    TransportUSBMount,
		Criteria: Criteria{
			MarkerPaths: []string{"Books"},
		},
		SyncPath:         "Books",
		SupportedFormats: []string{"epub", "pdf", "mobi", "azw", "cbz", "txt"},
	},
}

// Lookup returns the profile for a device family type.
func Lookup(deviceType string) (Profile, bool) {
	for _, p := range profiles {
		if p.Type == deviceType {
			return p, true
		}
	}
	return Profile{}, false
}

// All returns every registered profile. The returned slice is a copy; the
// registry itself is immutable.
func All() []Profile {
	out := make([]Profile, len(profiles))
	copy(out, profiles)
	return out
}
