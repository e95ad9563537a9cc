// Package reconcile holds the two reconciliation engines: directory
// listings against the metadata cache, and local media assets against
// the upload queue. Both follow the same rule: detect what changed,
// merge it into persisted state exactly once, hand off work without
// duplication.
package reconcile

import (
	"strings"

	"github.com/jthorburn/photosync/internal/account"
	"github.com/jthorburn/photosync/internal/media"
	"github.com/jthorburn/photosync/internal/store"
)

// TriggerKind distinguishes why an asset reconciliation pass runs.
type TriggerKind int

const (
	// TriggerIncremental is the normal auto-upload path: manual refresh,
	// scheduled tick, library watcher, authorization change.
	TriggerIncremental TriggerKind = iota

	// TriggerBulk is the explicit "re-upload everything" command.
	TriggerBulk
)

// Selector returns the session selector string recorded on queued jobs.
func (t TriggerKind) Selector() string {
	if t == TriggerBulk {
		return store.SelectorAutoUploadAll
	}

	return store.SelectorAutoUpload
}

// Classify maps an asset's media type, the account policy and the
// trigger kind to a transfer-session tier. Pure decision table, no side
// effects. Live-photo pairing never changes the tier; it only sets a
// flag the scheduler reads.
func Classify(mediaType media.MediaType, policy account.UploadPolicy, trigger TriggerKind) store.Session {
	if trigger == TriggerBulk {
		return store.SessionUpload
	}

	switch mediaType {
	case media.MediaImage:
		if policy.WiFiOnlyImage {
			return store.SessionBackgroundWWAN
		}
	case media.MediaVideo:
		if policy.WiFiOnlyVideo {
			return store.SessionBackgroundWWAN
		}
	}

	return store.SessionBackground
}

// classFileFor derives the record's file class from content type, with
// the directory flag taking precedence.
func classFileFor(contentType string, directory bool) string {
	switch {
	case directory:
		return store.ClassFileDirectory
	case strings.HasPrefix(contentType, "image/"):
		return store.ClassFileImage
	case strings.HasPrefix(contentType, "video/"):
		return store.ClassFileVideo
	case strings.HasPrefix(contentType, "text/"),
		contentType == "application/pdf":
		return store.ClassFileDocument
	default:
		return store.ClassFileUnknown
	}
}

// classFileForMedia maps an asset's media type to its record class.
func classFileForMedia(t media.MediaType) string {
	switch t {
	case media.MediaImage:
		return store.ClassFileImage
	case media.MediaVideo:
		return store.ClassFileVideo
	default:
		return store.ClassFileUnknown
	}
}
