package ledger

// StorageType distinguishes internal storage from removable media.
type StorageType int

const (
	StorageInternal  StorageType = 0
	StorageRemovable StorageType = 1
)

// MediaTypeImage is the only media_type the scanner visits.
const MediaTypeImage = 0

// MediaItem is one catalog row.
type MediaItem struct {
	MediaID     string
	Path        string
	StorageID   string
	StorageType StorageType
	Width       int
	Height      int
	Orientation int
	MIMEType    string
}

// Face is one detected face in original-image coordinates.
type Face struct {
	FaceID      string
	MediaID     string
	X           int
	Y           int
	W           int
	H           int
	Orientation int
}

// Color is an averaged RGB sample stored alongside a media row.
type Color struct {
	R uint8
	G uint8
	B uint8
}

// Stats summarises catalog and scan progress.
type Stats struct {
	Media     int
	Removable int
	Scanned   int
	Pending   int
	Faces     int
}
