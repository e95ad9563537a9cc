package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/jthorburn/photosync/internal/account"
	pserrors "github.com/jthorburn/photosync/internal/errors"
	"github.com/jthorburn/photosync/internal/media"
	"github.com/jthorburn/photosync/internal/remote"
	"github.com/jthorburn/photosync/internal/store"
	"github.com/jthorburn/photosync/internal/transfer"
)

// AssetReconciler turns newly discovered local assets into queued upload
// jobs, exactly once per asset. Passes for the same account are
// coalesced: a trigger arriving while a pass runs shares its result.
type AssetReconciler struct {
	st        *store.Store
	source    media.Source
	lister    remote.Lister
	scheduler transfer.Scheduler
	naming    Naming
	logger    *slog.Logger

	group singleflight.Group
	locks *keyedMutex
}

// NewAssetReconciler creates a reconciler with the given collaborators.
func NewAssetReconciler(st *store.Store, source media.Source, lister remote.Lister, scheduler transfer.Scheduler, naming Naming, logger *slog.Logger) *AssetReconciler {
	return &AssetReconciler{
		st:        st,
		source:    source,
		lister:    lister,
		scheduler: scheduler,
		naming:    naming,
		logger:    logger,
		locks:     newKeyedMutex(),
	}
}

// ReconcileNewAssets runs one reconciliation pass for the account and
// returns the number of newly queued uploads. A policy that admits no
// media type is a configured no-op, not an error. A folder-creation
// failure aborts the whole batch before any record or ledger entry is
// written.
func (r *AssetReconciler) ReconcileNewAssets(ctx context.Context, acct account.Context, trigger TriggerKind) (int, error) {
	v, err, shared := r.group.Do(acct.Name, func() (any, error) {
		unlock := r.locks.lock(acct.Name)
		defer unlock()

		return r.reconcile(ctx, acct, trigger)
	})
	if err != nil {
		return 0, err
	}

	if shared {
		r.logger.Debug("asset pass coalesced with in-flight pass",
			slog.String("account", acct.Name),
		)
	}

	return v.(int), nil
}

func (r *AssetReconciler) reconcile(ctx context.Context, acct account.Context, trigger TriggerKind) (int, error) {
	policy := acct.Policy

	if !policy.Enabled || (!policy.Image && !policy.Video) {
		r.logger.Debug("auto-upload disabled for account", slog.String("account", acct.Name))
		return 0, nil
	}

	assets, err := r.source.FetchAssets(ctx, media.TypeFilter{Image: policy.Image, Video: policy.Video}, "")
	if err != nil {
		return 0, fmt.Errorf("enumerating assets: %w", err)
	}

	if len(assets) == 0 {
		r.logger.Info("no assets found", slog.String("account", acct.Name))
		return 0, nil
	}

	dedup, err := NewDedupIndex(r.st, acct.Name)
	if err != nil {
		return 0, err
	}

	// Select the assets this pass will actually consider: dedup against
	// the ledger and drop assets the library gave no creation time.
	// Folder creation below depends on this set, and the per-asset loop
	// re-walks it in the same order.
	fresh := assets[:0:0]

	for _, asset := range assets {
		if asset.CreatedAt.IsZero() {
			r.logger.Debug("skipping asset without creation date",
				slog.String("localIdentifier", asset.LocalIdentifier),
			)

			continue
		}

		if dedup.Contains(asset.LocalIdentifier, asset.CreatedAt) {
			continue
		}

		fresh = append(fresh, asset)
	}

	if len(fresh) == 0 {
		r.logger.Info("no new assets", slog.String("account", acct.Name), slog.Int("enumerated", len(assets)))
		return 0, nil
	}

	r.logger.Info("new assets found",
		slog.String("account", acct.Name),
		slog.Int("count", len(fresh)),
	)

	root := acct.UploadRoot()

	// Precondition gate: every destination folder must exist before any
	// per-asset work, because job destinations depend on it.
	if err := r.createFolders(ctx, root, fresh, policy.CreateSubfolders); err != nil {
		return 0, fmt.Errorf("%w: %w", pserrors.ErrFolderCreate, err)
	}

	var (
		batch []store.FileMetadata
		jobs  []transfer.UploadJob
	)

	for _, asset := range fresh {
		name := r.naming.CandidateName(asset)
		dest := SubfolderPath(root, asset.CreatedAt, policy.CreateSubfolders)

		// A record already present at the destination under the
		// transcode-normalized name means this asset was handled before
		// the ledger knew about it. Record it and move on.
		existing, err := r.st.Metadata(acct.Name, dest, r.naming.SearchName(name))
		if err != nil {
			return 0, fmt.Errorf("probing existing record: %w", err)
		}

		if existing != nil {
			dedup.Mark(asset.LocalIdentifier, asset.CreatedAt)
			continue
		}

		rec := store.FileMetadata{
			Account:              acct.Name,
			ServerURL:            dest,
			FileName:             name,
			ObjectID:             uuid.NewString(),
			ClassFile:            classFileForMedia(asset.MediaType),
			MTime:                asset.CreatedAt.UnixMilli(),
			Status:               store.StatusWaiting,
			Session:              Classify(asset.MediaType, policy, trigger),
			SessionSelector:      trigger.Selector(),
			AssetLocalIdentifier: asset.LocalIdentifier,
			IsAutoupload:         trigger == TriggerIncremental,
			IsLivePhoto:          asset.LivePhoto && policy.LivePhoto,
		}

		batch = append(batch, rec)
		jobs = append(jobs, transfer.UploadJob{Metadata: rec})
		dedup.Mark(asset.LocalIdentifier, asset.CreatedAt)

		r.logger.Debug("auto-upload queued",
			slog.String("fileName", name),
			slog.String("serverUrl", dest),
			slog.String("session", string(rec.Session)),
		)
	}

	// Durable trace first, ledger second, hand-off last: a crash between
	// these steps re-queues at worst, never double-queues.
	if err := r.st.UpsertMetadataBatch(batch); err != nil {
		return 0, fmt.Errorf("persisting queued records: %w", err)
	}

	if err := dedup.Flush(); err != nil {
		return 0, err
	}

	if len(jobs) > 0 {
		if err := r.scheduler.Enqueue(ctx, jobs); err != nil {
			return 0, fmt.Errorf("enqueueing upload jobs: %w", err)
		}
	}

	r.logger.Info("asset reconciliation complete",
		slog.String("account", acct.Name),
		slog.String("selector", trigger.Selector()),
		slog.Int("queued", len(batch)),
	)

	return len(batch), nil
}

// createFolders ensures the upload root and every needed year/month
// subfolder exists, parents before children.
func (r *AssetReconciler) createFolders(ctx context.Context, root string, assets []media.Asset, subfolders bool) error {
	paths := map[string]struct{}{root: {}}

	if subfolders {
		for _, asset := range assets {
			month := SubfolderPath(root, asset.CreatedAt, true)
			year := month[:len(month)-3]

			paths[year] = struct{}{}
			paths[month] = struct{}{}
		}
	}

	ordered := make([]string, 0, len(paths))
	for p := range paths {
		ordered = append(ordered, p)
	}

	sort.Strings(ordered)

	for _, p := range ordered {
		if err := r.lister.CreateFolder(ctx, p); err != nil {
			return fmt.Errorf("creating folder %s: %w", p, err)
		}
	}

	return nil
}

// RealignLedger rebuilds the account's ledger from the current library:
// every asset of either media type, ignoring the upload policy. It never
// touches metadata records and never queues uploads. Returns the number
// of entries inserted.
func (r *AssetReconciler) RealignLedger(ctx context.Context, acct account.Context) (int, error) {
	// Serialized with reconcile passes but never coalesced into one: a
	// realign must always run, even if a pass is in flight.
	unlock := r.locks.lock(acct.Name)
	defer unlock()

	return r.realign(ctx, acct)
}

func (r *AssetReconciler) realign(ctx context.Context, acct account.Context) (int, error) {
	assets, err := r.source.FetchAssets(ctx, media.TypeFilter{Image: true, Video: true}, "")
	if err != nil {
		return 0, fmt.Errorf("enumerating assets: %w", err)
	}

	if err := r.st.ClearLedger(acct.Name); err != nil {
		return 0, fmt.Errorf("clearing ledger: %w", err)
	}

	entries := make([]store.LedgerEntry, 0, len(assets))

	for _, asset := range assets {
		if asset.CreatedAt.IsZero() {
			continue
		}

		entries = append(entries, store.LedgerEntry{
			Account:         acct.Name,
			LocalIdentifier: asset.LocalIdentifier,
			CreatedAt:       asset.CreatedAt.UnixMilli(),
		})
	}

	if err := r.st.InsertLedger(acct.Name, entries); err != nil {
		return 0, fmt.Errorf("inserting ledger entries: %w", err)
	}

	r.logger.Info("ledger realigned",
		slog.String("account", acct.Name),
		slog.Int("entries", len(entries)),
	)

	return len(entries), nil
}
