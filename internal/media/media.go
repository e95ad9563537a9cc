// Package media enumerates the local media library. The reconcilers
// consume the Source interface; the concrete implementation here walks a
// library directory on disk.
package media

import (
	"context"
	"time"
)

// MediaType classifies an asset by capture kind.
type MediaType int

const (
	MediaUnknown MediaType = iota
	MediaImage
	MediaVideo
)

// String returns the lower-case name of the media type.
func (t MediaType) String() string {
	switch t {
	case MediaImage:
		return "image"
	case MediaVideo:
		return "video"
	default:
		return "unknown"
	}
}

// Asset is one item of the local media library.
type Asset struct {
	// LocalIdentifier is stable for the asset's lifetime but may be
	// reused by the library across edits, which is why dedup identity
	// also includes CreatedAt.
	LocalIdentifier string

	// FileName is the asset's original file name, without directory.
	FileName string

	// CreatedAt is the capture timestamp. The zero value means the
	// library could not provide one; such assets are skipped by the
	// reconciler.
	CreatedAt time.Time

	MediaType MediaType

	// LivePhoto is set when the asset has a paired companion movie.
	LivePhoto bool
}

// TypeFilter selects which media types an enumeration returns. Both
// false yields nothing; callers short-circuit that case before
// enumerating.
type TypeFilter struct {
	Image bool
	Video bool
}

// Matches reports whether the filter admits the given type.
func (f TypeFilter) Matches(t MediaType) bool {
	switch t {
	case MediaImage:
		return f.Image
	case MediaVideo:
		return f.Video
	default:
		return false
	}
}

// Source enumerates the local media library.
//
//go:generate mockgen -source=media.go -destination=mock_media.go -package=media
type Source interface {
	// FetchAssets returns the library's assets admitted by the filter,
	// in creation-time order. scope limits enumeration to one album;
	// empty means the whole library.
	FetchAssets(ctx context.Context, filter TypeFilter, scope string) ([]Asset, error)
}
