package checkpoint

import "github.com/llahellec/de-spotify/internal/models"

type (
	LookupStore   = Store[models.LookupRow]
	MasterStore   = Store[models.MasterRecord]
	DownloadStore = Store[models.DownloadRecord]
)

// OpenLookup opens a provider checkpoint, falling back to the library export.
func OpenLookup(path, input string) (*LookupStore, []models.LookupRow, error) {
	return Open[models.LookupRow](path, input, LookupCodec{})
}

// LoadLookup reads an existing provider checkpoint.
func LoadLookup(path string) ([]models.LookupRow, Layout, error) {
	return Load[models.LookupRow](path, LookupCodec{})
}

// NewMaster creates the reconciled checkpoint using the track columns of layout.
func NewMaster(path string, layout Layout) *MasterStore {
	return New[models.MasterRecord](path, layout, MasterCodec{})
}

// LoadMaster reads an existing reconciled checkpoint.
func LoadMaster(path string) ([]models.MasterRecord, Layout, error) {
	return Load[models.MasterRecord](path, MasterCodec{})
}

// OpenDownloads opens the download checkpoint, falling back to the reconciled checkpoint.
func OpenDownloads(path, master string) (*DownloadStore, []models.DownloadRecord, error) {
	return Open[models.DownloadRecord](path, master, DownloadCodec{})
}

// NewDownloads creates a download checkpoint using the track columns of layout.
func NewDownloads(path string, layout Layout) *DownloadStore {
	return New[models.DownloadRecord](path, layout, DownloadCodec{})
}

// LoadDownloads reads an existing download checkpoint.
func LoadDownloads(path string) ([]models.DownloadRecord, Layout, error) {
	return Load[models.DownloadRecord](path, DownloadCodec{})
}
