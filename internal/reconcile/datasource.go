package reconcile

import (
	"sort"
	"strings"

	"github.com/jthorburn/photosync/internal/store"
)

// SortKey selects the ordering field of a DataSourceView.
type SortKey string

const (
	SortByName SortKey = "fileName"
	SortByDate SortKey = "date"
	SortBySize SortKey = "size"
)

// GroupField selects how view records are partitioned into sections.
type GroupField string

const (
	GroupNone        GroupField = ""
	GroupByClassFile GroupField = "classFile"
)

// ViewConfig parameterizes the ordering and grouping of a view.
type ViewConfig struct {
	Sort             SortKey
	Ascending        bool
	DirectoriesFirst bool
	FavoritesFirst   bool
	GroupBy          GroupField
}

// Section is one named group of a view; member order follows the view's
// sort key.
type Section struct {
	Name    string
	Records []store.FileMetadata
}

// DataSourceView is a stable ordered, grouped view over one directory's
// merged records. Views are immutable snapshots; a refresh builds a new
// one rather than mutating a shared instance.
type DataSourceView struct {
	Scope           Scope
	Etag            string
	RichContentText string
	Sections        []Section
}

// AllRecords returns the view's records across sections, in view order.
func (v *DataSourceView) AllRecords() []store.FileMetadata {
	var out []store.FileMetadata
	for _, s := range v.Sections {
		out = append(out, s.Records...)
	}

	return out
}

// IsEmpty reports whether the view has no records.
func (v *DataSourceView) IsEmpty() bool {
	for _, s := range v.Sections {
		if len(s.Records) > 0 {
			return false
		}
	}

	return true
}

// BuildView orders and groups the records into a view. snap may be nil
// when the directory has never been listed.
func BuildView(scope Scope, recs []store.FileMetadata, snap *store.DirectorySnapshot, cfg ViewConfig) *DataSourceView {
	v := &DataSourceView{Scope: scope}

	if snap != nil {
		v.Etag = snap.Etag
		v.RichContentText = snap.RichContentText
	}

	sorted := make([]store.FileMetadata, len(recs))
	copy(sorted, recs)

	sort.SliceStable(sorted, func(i, j int) bool {
		return less(sorted[i], sorted[j], cfg)
	})

	if cfg.GroupBy == GroupNone {
		v.Sections = []Section{{Records: sorted}}
		return v
	}

	// Grouping preserves the sorted order within each section; section
	// names are ordered by first appearance of the group.
	index := make(map[string]int)

	for _, rec := range sorted {
		name := groupName(rec, cfg.GroupBy)

		i, ok := index[name]
		if !ok {
			i = len(v.Sections)
			index[name] = i
			v.Sections = append(v.Sections, Section{Name: name})
		}

		v.Sections[i].Records = append(v.Sections[i].Records, rec)
	}

	return v
}

func groupName(rec store.FileMetadata, field GroupField) string {
	switch field {
	case GroupByClassFile:
		return rec.ClassFile
	default:
		return ""
	}
}

func less(a, b store.FileMetadata, cfg ViewConfig) bool {
	if cfg.FavoritesFirst && a.Favorite != b.Favorite {
		return a.Favorite
	}

	if cfg.DirectoriesFirst && a.IsDirectory != b.IsDirectory {
		return a.IsDirectory
	}

	ord := compare(a, b, cfg.Sort)
	if ord == 0 {
		// Stable tiebreak so equal keys still give a deterministic view.
		ord = strings.Compare(a.FileName, b.FileName)
	}

	if cfg.Ascending {
		return ord < 0
	}

	return ord > 0
}

func compare(a, b store.FileMetadata, key SortKey) int {
	switch key {
	case SortByDate:
		switch {
		case a.MTime < b.MTime:
			return -1
		case a.MTime > b.MTime:
			return 1
		default:
			return 0
		}
	case SortBySize:
		switch {
		case a.Size < b.Size:
			return -1
		case a.Size > b.Size:
			return 1
		default:
			return 0
		}
	default:
		return strings.Compare(strings.ToLower(a.FileName), strings.ToLower(b.FileName))
	}
}
