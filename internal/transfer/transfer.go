// Package transfer defines the hand-off boundary between the
// reconcilers and the subsystem that moves bytes. The reconcilers only
// construct job descriptors; admission, retries and the network sessions
// themselves live behind the Scheduler interface.
package transfer

import (
	"context"

	"github.com/jthorburn/photosync/internal/store"
)

// UploadJob is one queue-ready upload. The FileMetadata record is the
// durable trace; the descriptor itself is never persisted.
type UploadJob struct {
	Metadata store.FileMetadata
}

// Scheduler accepts classified work from the reconcilers.
//
//go:generate mockgen -source=transfer.go -destination=mock_transfer.go -package=transfer
type Scheduler interface {
	// Enqueue accepts a whole reconciliation batch in one call,
	// preserving the order the reconciler produced.
	Enqueue(ctx context.Context, jobs []UploadJob) error

	// ConsiderDownload offers a remote record for local mirroring. The
	// offer is advisory; the scheduler owns download admission.
	ConsiderDownload(rec store.FileMetadata)
}
