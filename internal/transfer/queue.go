package transfer

import (
	"context"
	"log/slog"
	"sync"

	"github.com/jthorburn/photosync/internal/store"
)

// Queue is an in-memory Scheduler. It holds accepted jobs in arrival
// order for the transfer workers to drain; this core never transfers
// bytes itself.
type Queue struct {
	logger *slog.Logger

	mu        sync.Mutex
	jobs      []UploadJob
	downloads []store.FileMetadata
}

// NewQueue creates an empty queue.
func NewQueue(logger *slog.Logger) *Queue {
	return &Queue{logger: logger}
}

// Enqueue implements Scheduler.
func (q *Queue) Enqueue(_ context.Context, jobs []UploadJob) error {
	if len(jobs) == 0 {
		return nil
	}

	q.mu.Lock()
	q.jobs = append(q.jobs, jobs...)
	q.mu.Unlock()

	q.logger.Info("upload jobs queued", slog.Int("count", len(jobs)))

	return nil
}

// ConsiderDownload implements Scheduler. Only plain media files are
// admitted for mirroring; everything else is dropped here.
func (q *Queue) ConsiderDownload(rec store.FileMetadata) {
	if rec.IsDirectory {
		return
	}

	if rec.ClassFile != store.ClassFileImage && rec.ClassFile != store.ClassFileVideo {
		return
	}

	q.mu.Lock()
	q.downloads = append(q.downloads, rec)
	q.mu.Unlock()

	q.logger.Debug("download candidate",
		slog.String("serverUrl", rec.ServerURL),
		slog.String("fileName", rec.FileName),
	)
}

// Pending returns a copy of the queued upload jobs in arrival order.
func (q *Queue) Pending() []UploadJob {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]UploadJob, len(q.jobs))
	copy(out, q.jobs)

	return out
}

// Downloads returns a copy of the admitted download candidates.
func (q *Queue) Downloads() []store.FileMetadata {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]store.FileMetadata, len(q.downloads))
	copy(out, q.downloads)

	return out
}
