package media

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/text/unicode/norm"
)

var imageExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".heic": {},
	".heif": {}, ".tiff": {}, ".tif": {}, ".dng": {}, ".webp": {},
}

var videoExtensions = map[string]struct{}{
	".mov": {}, ".mp4": {}, ".m4v": {}, ".avi": {}, ".mkv": {}, ".webm": {},
}

// candidate is one media file found during the walk, collected before
// live-photo companions are resolved so pairing does not depend on walk
// order.
type candidate struct {
	relPath string
	name    string
	mtime   int64
	size    int64
	media   MediaType
}

// Library is a filesystem-backed media library rooted at a directory.
// Albums are the first-level subdirectories.
type Library struct {
	dir string
}

// NewLibrary creates a library over the given directory.
func NewLibrary(dir string) *Library {
	return &Library{dir: dir}
}

// Dir returns the library root directory.
func (l *Library) Dir() string {
	return l.dir
}

// FetchAssets implements Source. Assets are returned in creation-time
// order (ties broken by identifier) so reconciliation batches are
// deterministic. An image with a same-base companion movie beside it is
// reported as a live photo and the companion itself is not enumerated.
func (l *Library) FetchAssets(ctx context.Context, filter TypeFilter, scope string) ([]Asset, error) {
	root := l.dir
	if scope != "" {
		root = filepath.Join(l.dir, scope)
	}

	var (
		candidates []candidate
		imageBases = make(map[string]struct{})
	)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != root {
				return filepath.SkipDir
			}

			return nil
		}

		name := norm.NFC.String(d.Name())

		mediaType := typeForName(name)
		if mediaType == MediaUnknown {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("reading file info for %s: %w", path, err)
		}

		rel, err := filepath.Rel(l.dir, path)
		if err != nil {
			return fmt.Errorf("relativizing %s: %w", path, err)
		}

		rel = norm.NFC.String(filepath.ToSlash(rel))

		if mediaType == MediaImage {
			imageBases[strings.TrimSuffix(rel, filepath.Ext(rel))] = struct{}{}
		}

		candidates = append(candidates, candidate{
			relPath: rel,
			name:    name,
			mtime:   info.ModTime().UnixMilli(),
			size:    info.Size(),
			media:   mediaType,
		})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking media library: %w", err)
	}

	var assets []Asset

	for _, c := range candidates {
		base := strings.TrimSuffix(c.relPath, filepath.Ext(c.relPath))

		livePhoto := false

		if c.media == MediaVideo {
			// A movie sharing its base name with an image is that
			// image's live-photo companion, not a standalone asset.
			if _, paired := imageBases[base]; paired {
				continue
			}
		} else if hasCompanionMovie(candidates, base, c.relPath) {
			livePhoto = true
		}

		if !filter.Matches(c.media) {
			continue
		}

		assets = append(assets, Asset{
			LocalIdentifier: identifierFor(c.relPath, c.size),
			FileName:        c.name,
			CreatedAt:       unixMilliTime(c.mtime),
			MediaType:       c.media,
			LivePhoto:       livePhoto,
		})
	}

	sort.SliceStable(assets, func(i, j int) bool {
		if !assets[i].CreatedAt.Equal(assets[j].CreatedAt) {
			return assets[i].CreatedAt.Before(assets[j].CreatedAt)
		}

		return assets[i].LocalIdentifier < assets[j].LocalIdentifier
	})

	return assets, nil
}

func hasCompanionMovie(candidates []candidate, base, self string) bool {
	for _, c := range candidates {
		if c.relPath == self || c.media != MediaVideo {
			continue
		}

		if strings.TrimSuffix(c.relPath, filepath.Ext(c.relPath)) == base {
			return true
		}
	}

	return false
}

// identifierFor derives the asset's local identifier from its library
// path and size. blake2b keeps identifiers short and collision-safe; the
// creation timestamp in the dedup key covers in-place edits.
func identifierFor(relPath string, size int64) string {
	sum := blake2b.Sum256([]byte(fmt.Sprintf("%s|%d", relPath, size)))
	return fmt.Sprintf("%x", sum[:16])
}

func unixMilliTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}

	return time.UnixMilli(ms).UTC()
}

func typeForName(name string) MediaType {
	ext := strings.ToLower(filepath.Ext(name))

	if _, ok := imageExtensions[ext]; ok {
		return MediaImage
	}

	if _, ok := videoExtensions[ext]; ok {
		return MediaVideo
	}

	return MediaUnknown
}
