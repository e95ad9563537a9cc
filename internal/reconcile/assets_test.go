package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/jthorburn/photosync/internal/account"
	pserrors "github.com/jthorburn/photosync/internal/errors"
	"github.com/jthorburn/photosync/internal/media"
	"github.com/jthorburn/photosync/internal/remote"
	"github.com/jthorburn/photosync/internal/store"
	"github.com/jthorburn/photosync/internal/transfer"
)

func testAccount(subfolders bool) account.Context {
	return account.Context{
		Name:    "anna@cloud.example.com",
		BaseURL: "/remote",
		Policy: account.UploadPolicy{
			Enabled:          true,
			Image:            true,
			Video:            true,
			CreateSubfolders: subfolders,
		},
	}
}

func heicAsset(id string, created time.Time) media.Asset {
	return media.Asset{
		LocalIdentifier: id,
		FileName:        id + ".HEIC",
		CreatedAt:       created,
		MediaType:       media.MediaImage,
	}
}

func newAssetReconciler(t *testing.T, ctrl *gomock.Controller) (*AssetReconciler, *store.Store, *media.MockSource, *remote.MockLister, *transfer.MockScheduler) {
	t.Helper()

	st := openReconcileStore(t)
	source := media.NewMockSource(ctrl)
	lister := remote.NewMockLister(ctrl)
	scheduler := transfer.NewMockScheduler(ctrl)

	naming := Naming{FormatCompatibility: true}
	r := NewAssetReconciler(st, source, lister, scheduler, naming, quietLogger)

	return r, st, source, lister, scheduler
}

func TestReconcileQueuesNewAssets(t *testing.T) {
	ctrl := gomock.NewController(t)
	r, st, source, lister, scheduler := newAssetReconciler(t, ctrl)
	acct := testAccount(true)

	may := time.Date(2023, 5, 12, 10, 30, 0, 0, time.UTC)
	assets := []media.Asset{
		heicAsset("asset-1", may),
		heicAsset("asset-2", may.Add(time.Minute)),
	}

	source.EXPECT().
		FetchAssets(gomock.Any(), media.TypeFilter{Image: true, Video: true}, "").
		Return(assets, nil)

	// Root first, then year, then month. Parents before children.
	gomock.InOrder(
		lister.EXPECT().CreateFolder(gomock.Any(), "/remote/Photos").Return(nil),
		lister.EXPECT().CreateFolder(gomock.Any(), "/remote/Photos/2023").Return(nil),
		lister.EXPECT().CreateFolder(gomock.Any(), "/remote/Photos/2023/05").Return(nil),
	)

	var handed []transfer.UploadJob

	scheduler.EXPECT().
		Enqueue(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, jobs []transfer.UploadJob) error {
			handed = jobs
			return nil
		})

	queued, err := r.ReconcileNewAssets(context.Background(), acct, TriggerIncremental)
	require.NoError(t, err)
	assert.Equal(t, 2, queued)
	require.Len(t, handed, 2)

	recs, err := st.MetadataForDirectory(acct.Name, "/remote/Photos/2023/05")
	require.NoError(t, err)
	require.Len(t, recs, 2)

	for _, rec := range recs {
		assert.Equal(t, store.StatusWaiting, rec.Status)
		assert.Equal(t, store.SessionBackground, rec.Session)
		assert.Equal(t, store.SelectorAutoUpload, rec.SessionSelector)
		assert.Equal(t, store.ClassFileImage, rec.ClassFile)
		assert.True(t, rec.IsAutoupload)
		assert.NotEmpty(t, rec.ObjectID)
		assert.NotEmpty(t, rec.AssetLocalIdentifier)
	}

	assert.Equal(t, "20230512_103000.heic", recs[0].FileName)

	count, err := st.LedgerCount(acct.Name)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestReconcileSecondPassIsNoOp(t *testing.T) {
	ctrl := gomock.NewController(t)
	r, st, source, lister, scheduler := newAssetReconciler(t, ctrl)
	acct := testAccount(false)

	assets := []media.Asset{heicAsset("asset-1", time.Date(2023, 5, 12, 10, 30, 0, 0, time.UTC))}

	source.EXPECT().FetchAssets(gomock.Any(), gomock.Any(), "").Return(assets, nil).Times(2)
	lister.EXPECT().CreateFolder(gomock.Any(), "/remote/Photos").Return(nil)
	scheduler.EXPECT().Enqueue(gomock.Any(), gomock.Any()).Return(nil)

	queued, err := r.ReconcileNewAssets(context.Background(), acct, TriggerIncremental)
	require.NoError(t, err)
	assert.Equal(t, 1, queued)

	writes := st.Writes()

	// Every asset is already ledgered; the pass ends before folder
	// creation and hands nothing to the scheduler.
	queued, err = r.ReconcileNewAssets(context.Background(), acct, TriggerIncremental)
	require.NoError(t, err)
	assert.Equal(t, 0, queued)
	assert.Equal(t, writes, st.Writes())
}

func TestReconcileReQueuesChangedCreationDate(t *testing.T) {
	ctrl := gomock.NewController(t)
	r, st, source, lister, scheduler := newAssetReconciler(t, ctrl)
	acct := testAccount(false)

	created := time.Date(2023, 5, 12, 10, 30, 0, 0, time.UTC)

	source.EXPECT().FetchAssets(gomock.Any(), gomock.Any(), "").
		Return([]media.Asset{heicAsset("asset-1", created)}, nil)
	lister.EXPECT().CreateFolder(gomock.Any(), "/remote/Photos").Return(nil).Times(2)
	scheduler.EXPECT().Enqueue(gomock.Any(), gomock.Any()).Return(nil).Times(2)

	_, err := r.ReconcileNewAssets(context.Background(), acct, TriggerIncremental)
	require.NoError(t, err)

	// Same identifier, edited capture date: a distinct identity, so it
	// is queued again.
	source.EXPECT().FetchAssets(gomock.Any(), gomock.Any(), "").
		Return([]media.Asset{heicAsset("asset-1", created.Add(time.Hour))}, nil)

	queued, err := r.ReconcileNewAssets(context.Background(), acct, TriggerIncremental)
	require.NoError(t, err)
	assert.Equal(t, 1, queued)

	count, err := st.LedgerCount(acct.Name)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestReconcileSkipsAssetsWithoutCreationDate(t *testing.T) {
	ctrl := gomock.NewController(t)
	r, _, source, lister, scheduler := newAssetReconciler(t, ctrl)
	acct := testAccount(false)

	assets := []media.Asset{
		{LocalIdentifier: "undated", FileName: "undated.jpg", MediaType: media.MediaImage},
		heicAsset("dated", time.Date(2023, 5, 12, 10, 30, 0, 0, time.UTC)),
	}

	source.EXPECT().FetchAssets(gomock.Any(), gomock.Any(), "").Return(assets, nil)
	lister.EXPECT().CreateFolder(gomock.Any(), "/remote/Photos").Return(nil)
	scheduler.EXPECT().Enqueue(gomock.Any(), gomock.Any()).Return(nil)

	queued, err := r.ReconcileNewAssets(context.Background(), acct, TriggerIncremental)
	require.NoError(t, err)
	assert.Equal(t, 1, queued)
}

func TestReconcileDisabledPolicyIsNoOp(t *testing.T) {
	tests := []struct {
		name   string
		policy account.UploadPolicy
	}{
		{name: "feature off", policy: account.UploadPolicy{Enabled: false, Image: true, Video: true}},
		{name: "no media types", policy: account.UploadPolicy{Enabled: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			r, _, _, _, _ := newAssetReconciler(t, ctrl)

			acct := testAccount(false)
			acct.Policy = tt.policy

			// No FetchAssets expectation: the gate fires before the
			// library is touched.
			queued, err := r.ReconcileNewAssets(context.Background(), acct, TriggerIncremental)
			require.NoError(t, err)
			assert.Equal(t, 0, queued)
		})
	}
}

func TestReconcileFolderCreationAbortsBatch(t *testing.T) {
	ctrl := gomock.NewController(t)
	r, st, source, lister, _ := newAssetReconciler(t, ctrl)
	acct := testAccount(false)

	source.EXPECT().FetchAssets(gomock.Any(), gomock.Any(), "").
		Return([]media.Asset{heicAsset("asset-1", time.Date(2023, 5, 12, 10, 30, 0, 0, time.UTC))}, nil)
	lister.EXPECT().CreateFolder(gomock.Any(), "/remote/Photos").
		Return(&remote.TransientError{Err: errors.New("503")})

	queued, err := r.ReconcileNewAssets(context.Background(), acct, TriggerIncremental)
	require.Error(t, err)
	assert.ErrorIs(t, err, pserrors.ErrFolderCreate)
	assert.Equal(t, 0, queued)

	// Nothing durable happened: no records, no ledger entries, and the
	// scheduler mock saw no Enqueue.
	recs, err := st.MetadataForDirectory(acct.Name, "/remote/Photos")
	require.NoError(t, err)
	assert.Empty(t, recs)

	count, err := st.LedgerCount(acct.Name)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestReconcileTranscodedNameAlreadySynced(t *testing.T) {
	ctrl := gomock.NewController(t)
	r, st, source, lister, _ := newAssetReconciler(t, ctrl)
	acct := testAccount(false)

	// The backend transcoded an earlier HEIC upload to jpg, so the
	// cached record carries the jpg name.
	require.NoError(t, st.UpsertMetadata(store.FileMetadata{
		Account:   acct.Name,
		ServerURL: "/remote/Photos",
		FileName:  "20230512_103000.jpg",
		Status:    store.StatusCompleted,
		ClassFile: store.ClassFileImage,
	}))

	source.EXPECT().FetchAssets(gomock.Any(), gomock.Any(), "").
		Return([]media.Asset{heicAsset("asset-1", time.Date(2023, 5, 12, 10, 30, 0, 0, time.UTC))}, nil)
	lister.EXPECT().CreateFolder(gomock.Any(), "/remote/Photos").Return(nil)

	// No Enqueue expectation: the asset is only ledgered.
	queued, err := r.ReconcileNewAssets(context.Background(), acct, TriggerIncremental)
	require.NoError(t, err)
	assert.Equal(t, 0, queued)

	count, err := st.LedgerCount(acct.Name)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestReconcileBulkTrigger(t *testing.T) {
	ctrl := gomock.NewController(t)
	r, st, source, lister, scheduler := newAssetReconciler(t, ctrl)
	acct := testAccount(false)

	source.EXPECT().FetchAssets(gomock.Any(), gomock.Any(), "").
		Return([]media.Asset{heicAsset("asset-1", time.Date(2023, 5, 12, 10, 30, 0, 0, time.UTC))}, nil)
	lister.EXPECT().CreateFolder(gomock.Any(), "/remote/Photos").Return(nil)
	scheduler.EXPECT().Enqueue(gomock.Any(), gomock.Any()).Return(nil)

	queued, err := r.ReconcileNewAssets(context.Background(), acct, TriggerBulk)
	require.NoError(t, err)
	assert.Equal(t, 1, queued)

	rec, err := st.Metadata(acct.Name, "/remote/Photos", "20230512_103000.heic")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, store.SessionUpload, rec.Session)
	assert.Equal(t, store.SelectorAutoUploadAll, rec.SessionSelector)
	assert.False(t, rec.IsAutoupload)
}

func TestReconcileEnqueueFailureKeepsDurableState(t *testing.T) {
	ctrl := gomock.NewController(t)
	r, st, source, lister, scheduler := newAssetReconciler(t, ctrl)
	acct := testAccount(false)

	source.EXPECT().FetchAssets(gomock.Any(), gomock.Any(), "").
		Return([]media.Asset{heicAsset("asset-1", time.Date(2023, 5, 12, 10, 30, 0, 0, time.UTC))}, nil)
	lister.EXPECT().CreateFolder(gomock.Any(), "/remote/Photos").Return(nil)
	scheduler.EXPECT().Enqueue(gomock.Any(), gomock.Any()).Return(errors.New("queue full"))

	_, err := r.ReconcileNewAssets(context.Background(), acct, TriggerIncremental)
	require.Error(t, err)

	// Record and ledger entry were written before the hand-off, so a
	// retry resumes from the cache instead of re-deriving the job.
	rec, err := st.Metadata(acct.Name, "/remote/Photos", "20230512_103000.heic")
	require.NoError(t, err)
	assert.NotNil(t, rec)

	count, err := st.LedgerCount(acct.Name)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRealignLedgerRebuildsFromLibrary(t *testing.T) {
	ctrl := gomock.NewController(t)
	r, st, source, _, _ := newAssetReconciler(t, ctrl)
	acct := testAccount(false)

	require.NoError(t, st.InsertLedger(acct.Name, []store.LedgerEntry{
		{Account: acct.Name, LocalIdentifier: "stale", CreatedAt: 1},
	}))

	created := time.Date(2023, 5, 12, 10, 30, 0, 0, time.UTC)
	assets := []media.Asset{
		heicAsset("asset-1", created),
		{LocalIdentifier: "clip-1", FileName: "clip-1.mov", CreatedAt: created, MediaType: media.MediaVideo},
		{LocalIdentifier: "undated", FileName: "undated.jpg", MediaType: media.MediaImage},
	}

	// Realign ignores the upload policy and enumerates both media types.
	source.EXPECT().
		FetchAssets(gomock.Any(), media.TypeFilter{Image: true, Video: true}, "").
		Return(assets, nil)

	inserted, err := r.RealignLedger(context.Background(), acct)
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)

	keys, err := st.LedgerKeys(acct.Name)
	require.NoError(t, err)
	assert.Len(t, keys, 2)
	assert.NotContains(t, keys, store.LedgerKey("stale", time.UnixMilli(1)))
}

func TestRealignLedgerAfterQueueEnablesRequeue(t *testing.T) {
	ctrl := gomock.NewController(t)
	r, st, source, lister, scheduler := newAssetReconciler(t, ctrl)
	acct := testAccount(false)

	created := time.Date(2023, 5, 12, 10, 30, 0, 0, time.UTC)
	assets := []media.Asset{
		{LocalIdentifier: "asset-1", FileName: "asset-1.jpg", CreatedAt: created, MediaType: media.MediaImage},
	}

	source.EXPECT().FetchAssets(gomock.Any(), gomock.Any(), "").Return(assets, nil).Times(2)
	lister.EXPECT().CreateFolder(gomock.Any(), "/remote/Photos").Return(nil).Times(2)
	scheduler.EXPECT().Enqueue(gomock.Any(), gomock.Any()).Return(nil)

	_, err := r.ReconcileNewAssets(context.Background(), acct, TriggerIncremental)
	require.NoError(t, err)

	// Realigning from an empty library clears the ledger entirely.
	source.EXPECT().
		FetchAssets(gomock.Any(), media.TypeFilter{Image: true, Video: true}, "").
		Return(nil, nil)

	inserted, err := r.RealignLedger(context.Background(), acct)
	require.NoError(t, err)
	assert.Equal(t, 0, inserted)

	// The next pass sees the asset as new again, but the cached waiting
	// record at the destination absorbs it without a second queue entry.
	queued, err := r.ReconcileNewAssets(context.Background(), acct, TriggerIncremental)
	require.NoError(t, err)
	assert.Equal(t, 0, queued)

	count, err := st.LedgerCount(acct.Name)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
