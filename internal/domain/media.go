package domain

import "time"

// Media is a stored blob. Its logical identity is (Hash, Size); that pair
// carries a unique index in the store.
type Media struct {
	ID int64

	Hash string
	Size int64

	// FilePath is the blob's location under the entity's media directory;
	// unique across rows.
	FilePath string

	FileID     string
	AccessHash int64

	Discriminator string // "photo" | "document" | "voice" | "video" | "sticker"
	MimeType      string
	Name          string
	Extension     string

	DurationSeconds int
	Width           int
	Height          int

	IndexedAt  time.Time
	LastUsedAt time.Time
}

// RemoteMediaDescriptor is the tagged variant over Telegram's polymorphic
// media classes (tg.MessageMediaClass), built by the telegram adapter
// and consumed by the metadata extractor.
//
// Exactly one of Photo / Document / WebPage is non-nil.
type RemoteMediaDescriptor struct {
	Photo    *RemotePhoto
	Document *RemoteDocument
	WebPage  *RemoteWebPage
}

// RemotePhoto is a server-side photo with its available size variants.
type RemotePhoto struct {
	FileID        string
	RemoteID      int64  // raw Telegram photo id, for InputPhotoFileLocation
	AccessHash    int64
	FileReference []byte // opaque token required alongside ID/AccessHash to fetch the blob
	ThumbSize     string // largest PhotoSize's Type, selects which size to fetch
	// Size is the byte size of the largest PhotoSize entry.
	Size   int64
	Width  int
	Height int
}

// RemoteDocument is the Document{attributes, mime, size} shape.
type RemoteDocument struct {
	FileID        string
	RemoteID      int64  // raw Telegram document id, for InputDocumentFileLocation
	AccessHash    int64
	FileReference []byte // opaque token required alongside ID/AccessHash to fetch the blob
	MimeType      string
	Size          int64

	Filename   string // from DocumentAttributeFilename, if present
	IsVoice    bool
	IsVideo    bool
	IsAnimated bool
	Duration   int // seconds, from Video/Audio attribute
	Width      int
	Height     int
}

// RemoteWebPage is the WebPage{...} shape: a link preview snapshot, never
// itself downloaded as a blob.
type RemoteWebPage struct {
	URL         string
	Title       string
	Description string
	SiteName    string
}

// ExtractedMetadata is the (name, ext, size, duration, width, height) tuple
// the metadata extractor produces from either a local file or a
// RemoteMediaDescriptor.
type ExtractedMetadata struct {
	Name      string
	Extension string
	Size      int64
	Duration  int
	Width     int
	Height    int

	// Remote-only fields; zero value when extracted from a local file.
	FileID        string
	RemoteID      int64
	AccessHash    int64
	FileReference []byte
	ThumbSize     string
	IsPhoto       bool // distinguishes InputPhotoFileLocation from InputDocumentFileLocation
}
