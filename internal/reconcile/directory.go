package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	pserrors "github.com/jthorburn/photosync/internal/errors"
	"github.com/jthorburn/photosync/internal/remote"
	"github.com/jthorburn/photosync/internal/store"
	"github.com/jthorburn/photosync/internal/transfer"
)

// Scope identifies one remote folder of one account.
type Scope struct {
	Account   string
	ServerURL string
}

func (s Scope) key() string {
	return s.Account + "\x00" + s.ServerURL
}

// DirectoryReconciler keeps the metadata cache of remote folders up to
// date and produces ordered views over the merged records. Refreshes for
// the same scope are coalesced: a trigger arriving while a pass is in
// flight shares that pass's result instead of racing it.
type DirectoryReconciler struct {
	st        *store.Store
	lister    remote.Lister
	scheduler transfer.Scheduler
	cfg       ViewConfig
	logger    *slog.Logger

	group singleflight.Group
}

// NewDirectoryReconciler creates a reconciler with the given collaborators.
func NewDirectoryReconciler(st *store.Store, lister remote.Lister, scheduler transfer.Scheduler, cfg ViewConfig, logger *slog.Logger) *DirectoryReconciler {
	return &DirectoryReconciler{
		st:        st,
		lister:    lister,
		scheduler: scheduler,
		cfg:       cfg,
		logger:    logger,
	}
}

// Refresh reconciles the scope and returns the resulting view.
//
// With forced false, a cached snapshot whose entity tag matches a fresh
// probe short-circuits the pass: the view is rebuilt from the cache with
// zero store writes and zero listing fetches. Otherwise the full listing
// is fetched, partitioned into added, updated and removed records, and
// merged atomically together with the new snapshot.
//
// A transport failure leaves the snapshot and cached records untouched.
func (r *DirectoryReconciler) Refresh(ctx context.Context, scope Scope, forced bool) (*DataSourceView, error) {
	v, err, shared := r.group.Do(scope.key(), func() (any, error) {
		return r.refresh(ctx, scope, forced)
	})
	if err != nil {
		return nil, err
	}

	if shared {
		r.logger.Debug("refresh coalesced with in-flight pass",
			slog.String("serverUrl", scope.ServerURL),
		)
	}

	return v.(*DataSourceView), nil
}

func (r *DirectoryReconciler) refresh(ctx context.Context, scope Scope, forced bool) (*DataSourceView, error) {
	snap, err := r.st.Directory(scope.Account, scope.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("loading directory snapshot: %w", err)
	}

	if !forced && snap != nil {
		etag, err := r.lister.Probe(ctx, scope.ServerURL)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", pserrors.ErrListingFetch, err)
		}

		if etag == snap.Etag {
			r.logger.Debug("directory unchanged",
				slog.String("serverUrl", scope.ServerURL),
				slog.String("etag", etag),
			)

			return r.buildView(scope, snap)
		}
	}

	// Fetch the remote listing and the previously merged records
	// concurrently; neither depends on the other.
	var (
		listing remote.Listing
		prev    []store.FileMetadata
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error

		listing, err = r.lister.List(gctx, scope.ServerURL)
		if err != nil {
			return fmt.Errorf("%w: %w", pserrors.ErrListingFetch, err)
		}

		return nil
	})

	g.Go(func() error {
		var err error

		prev, err = r.st.MetadataForDirectory(scope.Account, scope.ServerURL)
		if err != nil {
			return fmt.Errorf("loading cached records: %w", err)
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	merge, added, updated := r.partition(scope, listing, prev)

	// A re-fetch that changed nothing, snapshot included, needs no
	// transaction at all.
	if len(merge.Upserts) == 0 && len(merge.Removes) == 0 && snap != nil && *snap == merge.Snapshot {
		return r.buildView(scope, snap)
	}

	if err := r.st.ApplyDirectoryMerge(merge); err != nil {
		return nil, fmt.Errorf("applying directory merge: %w", err)
	}

	r.logger.Info("directory merged",
		slog.String("serverUrl", scope.ServerURL),
		slog.String("etag", listing.Etag),
		slog.Int("added", added),
		slog.Int("updated", updated),
		slog.Int("removed", len(merge.Removes)),
	)

	// Advisory: offer new and changed plain files for local mirroring.
	// The scheduler owns download admission.
	for _, rec := range merge.Upserts {
		if !rec.IsDirectory {
			r.scheduler.ConsiderDownload(rec)
		}
	}

	return r.buildView(scope, &merge.Snapshot)
}

// partition computes the three-way split of a fresh listing against the
// previously merged records. Unchanged records are left out of the merge
// entirely so a re-merge of an identical listing writes nothing new.
// Records still waiting on or undergoing upload are never treated as
// removed: they are local intent, not remote state.
func (r *DirectoryReconciler) partition(scope Scope, listing remote.Listing, prev []store.FileMetadata) (store.DirectoryMerge, int, int) {
	prevByName := make(map[string]store.FileMetadata, len(prev))
	for _, rec := range prev {
		prevByName[rec.FileName] = rec
	}

	merge := store.DirectoryMerge{
		Snapshot: store.DirectorySnapshot{
			Account:         scope.Account,
			ServerURL:       scope.ServerURL,
			Etag:            listing.Etag,
			RichContentText: listing.RichWorkspace,
		},
	}

	var added, updated int

	seen := make(map[string]struct{}, len(listing.Entries))

	for _, entry := range listing.Entries {
		seen[entry.Name] = struct{}{}

		old, exists := prevByName[entry.Name]

		rec := recordFromEntry(scope, entry)

		if exists {
			// Carry the local-asset back-reference across listing
			// merges; the server knows nothing about it.
			rec.AssetLocalIdentifier = old.AssetLocalIdentifier
			rec.IsAutoupload = old.IsAutoupload
			rec.IsLivePhoto = old.IsLivePhoto

			if unchangedBy(old, rec) {
				continue
			}

			updated++
		} else {
			added++
		}

		merge.Upserts = append(merge.Upserts, rec)
	}

	for _, rec := range prev {
		if _, ok := seen[rec.FileName]; ok {
			continue
		}

		// A record absent from the listing is a remote deletion only if
		// it was synced; waiting or in-progress uploads stay queued.
		if rec.Status == store.StatusWaiting || rec.Status == store.StatusInProgress {
			continue
		}

		merge.Removes = append(merge.Removes, rec)
	}

	return merge, added, updated
}

func (r *DirectoryReconciler) buildView(scope Scope, snap *store.DirectorySnapshot) (*DataSourceView, error) {
	recs, err := r.st.MetadataForDirectory(scope.Account, scope.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("loading records for view: %w", err)
	}

	return BuildView(scope, recs, snap, r.cfg), nil
}

// recordFromEntry builds the synced record for one listing entry. The
// server's object id wins over any locally assigned one.
func recordFromEntry(scope Scope, entry remote.Entry) store.FileMetadata {
	return store.FileMetadata{
		Account:     scope.Account,
		ServerURL:   scope.ServerURL,
		FileName:    entry.Name,
		ObjectID:    entry.ID,
		Etag:        entry.Etag,
		IsDirectory: entry.Directory,
		ContentType: entry.ContentType,
		ClassFile:   classFileFor(entry.ContentType, entry.Directory),
		Size:        entry.Size,
		MTime:       entry.MTime,
		Favorite:    entry.Favorite,
		Status:      store.StatusCompleted,
	}
}

// unchangedBy reports whether the fresh record carries no content change
// over the cached one. Etag equality is authoritative when both sides
// have one; otherwise size and mtime decide.
func unchangedBy(old, fresh store.FileMetadata) bool {
	if old.Status != store.StatusCompleted {
		return false
	}

	if old.Etag != "" && fresh.Etag != "" {
		return old.Etag == fresh.Etag &&
			old.Favorite == fresh.Favorite &&
			old.ObjectID == fresh.ObjectID
	}

	return old.Size == fresh.Size &&
		old.MTime == fresh.MTime &&
		old.Favorite == fresh.Favorite
}
