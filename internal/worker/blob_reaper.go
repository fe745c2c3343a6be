package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/stockroomhq/stockroom/internal/service"
	"github.com/stockroomhq/stockroom/internal/storage"
)

// ImageRefCounter counts product rows referencing a blob key.
type ImageRefCounter interface {
	CountByImageRef(key string) (int, error)
}

// BlobReaper periodically removes image blobs no product row references.
// Orphans appear when a delete's blob cleanup fails after the row is gone;
// the grace window keeps it from racing an in-flight create, whose blob
// exists briefly before its row does.
type BlobReaper struct {
	blob     storage.BlobStore
	refs     ImageRefCounter
	interval time.Duration
	grace    time.Duration

	now func() time.Time
}

// NewBlobReaper constructs a BlobReaper.
func NewBlobReaper(blob storage.BlobStore, refs ImageRefCounter, interval, grace time.Duration) *BlobReaper {
	return &BlobReaper{
		blob:     blob,
		refs:     refs,
		interval: interval,
		grace:    grace,
		now:      time.Now,
	}
}

// Start begins the periodic reap loop until context is canceled.
func (w *BlobReaper) Start(ctx context.Context) {
	log.Info().Dur("interval", w.interval).Dur("grace", w.grace).Msg("Starting blob reaper")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.Run(ctx)
		case <-ctx.Done():
			log.Info().Msg("Blob reaper stopped")
			return
		}
	}
}

// Run performs a single reap pass.
func (w *BlobReaper) Run(ctx context.Context) {
	objects, err := w.blob.List(ctx, service.ImageKeyPrefix)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list image blobs")
		return
	}

	cutoff := w.now().Add(-w.grace)
	reaped := 0
	for _, obj := range objects {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if obj.LastModified.After(cutoff) {
			continue
		}

		count, err := w.refs.CountByImageRef(obj.Key)
		if err != nil {
			log.Error().Err(err).Str("key", obj.Key).Msg("Failed to count blob references")
			continue
		}
		if count > 0 {
			continue
		}

		if err := w.blob.Delete(ctx, obj.Key); err != nil {
			log.Warn().Err(err).Str("key", obj.Key).Msg("Failed to delete orphaned blob")
			continue
		}
		reaped++
	}

	if reaped > 0 {
		log.Info().Int("count", reaped).Msg("Reaped orphaned image blobs")
	}
}
