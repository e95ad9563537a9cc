// Package remote talks to the account's remote file store: folder
// listings with entity tags, folder creation, and the optional
// change-notify feed.
package remote

import (
	"context"
	"errors"
)

// Entry is one child of a listed remote folder.
type Entry struct {
	Name        string
	ID          string
	Etag        string
	ContentType string
	Size        int64
	MTime       int64 // unix milliseconds
	Directory   bool
	Favorite    bool
}

// Listing is a remote folder's content snapshot.
type Listing struct {
	Etag          string
	RichWorkspace string
	Entries       []Entry
}

// Lister is the remote-store surface the reconcilers consume.
//
//go:generate mockgen -source=remote.go -destination=mock_remote.go -package=remote
type Lister interface {
	// Probe returns the folder's current entity tag without fetching
	// its children.
	Probe(ctx context.Context, dir string) (string, error)

	// List returns the folder's entity tag and full child set.
	List(ctx context.Context, dir string) (Listing, error)

	// CreateFolder creates the folder at path. Creating an existing
	// folder is not an error.
	CreateFolder(ctx context.Context, path string) error
}

// TransientError wraps an error that is likely temporary and safe to
// retry on the next reconciliation pass.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err (or any error in its chain) is a
// TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
