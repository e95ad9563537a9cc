package store

import (
	"strconv"
	"time"
)

// Status is the transfer lifecycle state of a FileMetadata record.
// Records created by asset classification start at StatusWaiting and are
// advanced by the transfer subsystem; records created by a remote listing
// fetch are already synced and start at StatusCompleted.
type Status int

const (
	StatusNew Status = iota
	StatusWaiting
	StatusInProgress
	StatusCompleted
	StatusFailed
)

// Session identifies the transfer-session tier a job runs under.
type Session string

const (
	// SessionBackground is the restricted background session used for
	// incremental auto-uploads on any network.
	SessionBackground Session = "background"

	// SessionBackgroundWWAN is the Wi-Fi-only background session.
	SessionBackgroundWWAN Session = "background-wwan"

	// SessionUpload is the unrestricted session used for explicit bulk
	// re-uploads.
	SessionUpload Session = "upload"
)

// Selector values record which policy triggered a queued job.
const (
	SelectorAutoUpload    = "upload-autoupload"
	SelectorAutoUploadAll = "upload-autoupload-all"
	SelectorDownloadFile  = "download-file"
)

// File class categories derived from content type.
const (
	ClassFileImage     = "image"
	ClassFileVideo     = "video"
	ClassFileDocument  = "document"
	ClassFileDirectory = "directory"
	ClassFileUnknown   = "unknown"
)

// FileMetadata is one remote file or folder known to the client.
// (Account, ServerURL, FileName) is the identity; a second write with the
// same identity updates in place.
type FileMetadata struct {
	Account   string `json:"account"`
	ServerURL string `json:"serverUrl"`
	FileName  string `json:"fileName"`

	// ObjectID is assigned at creation and stable across renames when
	// the backend supports it. Locally created records get a UUID until
	// the server reports its own.
	ObjectID string `json:"objectId"`

	Etag        string `json:"etag"`
	IsDirectory bool   `json:"directory"`
	ContentType string `json:"contentType"`
	ClassFile   string `json:"classFile"`
	Size        int64  `json:"size"`
	MTime       int64  `json:"mtime"`
	Favorite    bool   `json:"favorite"`

	Status               Status  `json:"status"`
	Session              Session `json:"session,omitempty"`
	SessionSelector      string  `json:"sessionSelector,omitempty"`
	AssetLocalIdentifier string  `json:"assetLocalIdentifier,omitempty"`
	IsAutoupload         bool    `json:"autoupload,omitempty"`
	IsLivePhoto          bool    `json:"livePhoto,omitempty"`
}

// DirectorySnapshot is the cached listing state of one remote folder.
// Etag equality with a freshly probed tag means the child-record set is
// unchanged and no re-fetch is needed.
type DirectorySnapshot struct {
	Account   string `json:"account"`
	ServerURL string `json:"serverUrl"`
	Etag      string `json:"etag"`

	// RichContentText is the free-form folder description some servers
	// attach to a directory.
	RichContentText string `json:"richContentText,omitempty"`
}

// LedgerEntry records that a local asset has already been considered for
// an account, independent of whether the resulting upload succeeded.
// CreatedAt participates in the identity because asset identifiers can be
// reused by the library across edits.
type LedgerEntry struct {
	Account         string `json:"account"`
	LocalIdentifier string `json:"localIdentifier"`
	CreatedAt       int64  `json:"createdAt"` // unix milliseconds
}

// Key returns the composite dedup key for the entry within its account.
func (e LedgerEntry) Key() string {
	return e.LocalIdentifier + "\x00" + strconv.FormatInt(e.CreatedAt, 10)
}

// LedgerKey builds a composite dedup key without constructing an entry.
func LedgerKey(localIdentifier string, createdAt time.Time) string {
	return localIdentifier + "\x00" + strconv.FormatInt(createdAt.UnixMilli(), 10)
}
