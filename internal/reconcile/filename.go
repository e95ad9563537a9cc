package reconcile

import (
	"fmt"
	"path"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/jthorburn/photosync/internal/media"
)

// defaultMask is the candidate-name mask applied when none is
// configured. It sorts lexically in capture order, which keeps
// same-moment captures contiguous in the destination listing.
const defaultMask = "yyyyMMdd_HHmmss"

// Naming controls how candidate upload names are derived and compared.
type Naming struct {
	// Mask is the date mask for generated names. Tokens yyyy MM dd HH
	// mm ss are substituted from the asset's creation date.
	Mask string

	// KeepOriginal uses the asset's original file name instead of the
	// mask.
	KeepOriginal bool

	// FormatCompatibility applies the backend's HEIC-to-jpg transcoding
	// to the name used for "already exists remotely" probes.
	FormatCompatibility bool
}

// CandidateName derives the deterministic upload name for an asset.
// Names are NFC-normalized so comparisons against server-reported names
// never fail on decomposed input.
func (n Naming) CandidateName(asset media.Asset) string {
	original := norm.NFC.String(asset.FileName)

	if n.KeepOriginal && original != "" {
		return original
	}

	ext := strings.ToLower(path.Ext(original))
	if ext == "" {
		ext = defaultExtension(asset.MediaType)
	}

	mask := n.Mask
	if mask == "" {
		mask = defaultMask
	}

	t := asset.CreatedAt.UTC()

	replacer := strings.NewReplacer(
		"yyyy", fmt.Sprintf("%04d", t.Year()),
		"MM", fmt.Sprintf("%02d", int(t.Month())),
		"dd", fmt.Sprintf("%02d", t.Day()),
		"HH", fmt.Sprintf("%02d", t.Hour()),
		"mm", fmt.Sprintf("%02d", t.Minute()),
		"ss", fmt.Sprintf("%02d", t.Second()),
	)

	return replacer.Replace(mask) + ext
}

// SearchName returns the name to probe the metadata cache with. When
// compatibility mode is on, HEIC uploads are transcoded to jpg by the
// backend, so the remote record carries the jpg name.
func (n Naming) SearchName(candidate string) string {
	if !n.FormatCompatibility {
		return candidate
	}

	if strings.EqualFold(path.Ext(candidate), ".heic") {
		return strings.TrimSuffix(candidate, path.Ext(candidate)) + ".jpg"
	}

	return candidate
}

// SubfolderPath returns the destination path for an asset under the
// upload root, honoring the per-year/month subfolder policy.
func SubfolderPath(root string, createdAt time.Time, subfolders bool) string {
	if !subfolders {
		return root
	}

	t := createdAt.UTC()

	return fmt.Sprintf("%s/%04d/%02d", root, t.Year(), int(t.Month()))
}

func defaultExtension(t media.MediaType) string {
	if t == media.MediaVideo {
		return ".mov"
	}

	return ".jpg"
}
