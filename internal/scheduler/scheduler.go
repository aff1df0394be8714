package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/marcwinter/streamlens/pkg/catalog"
)

// Scheduler runs periodic snapshot synchronization and taxonomy refresh.
type Scheduler struct {
	sync    *catalog.Synchronizer
	tags    *catalog.TagReconciler
	syncInt time.Duration
	tagInt  time.Duration
	log     zerolog.Logger
}

// New creates a new scheduler.
func New(sync *catalog.Synchronizer, tags *catalog.TagReconciler, syncInt, tagInt time.Duration, log zerolog.Logger) *Scheduler {
	if syncInt == 0 {
		syncInt = 5 * time.Minute
	}
	if tagInt == 0 {
		tagInt = 24 * time.Hour
	}
	return &Scheduler{
		sync:    sync,
		tags:    tags,
		syncInt: syncInt,
		tagInt:  tagInt,
		log:     log.With().Str("component", "scheduler").Logger(),
	}
}

// Run starts the scheduler loop. Blocks until ctx is cancelled. Job failures
// are logged and the loop keeps going; the previously committed generation
// stays authoritative until a later run succeeds.
func (s *Scheduler) Run(ctx context.Context) error {
	syncTicker := time.NewTicker(s.syncInt)
	tagTicker := time.NewTicker(s.tagInt)
	defer syncTicker.Stop()
	defer tagTicker.Stop()

	s.log.Info().
		Dur("sync_interval", s.syncInt).
		Dur("tag_refresh_interval", s.tagInt).
		Msg("scheduler running")

	// Populate the snapshot immediately on start.
	s.runSync(ctx)

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("scheduler stopped")
			return ctx.Err()
		case <-syncTicker.C:
			s.runSync(ctx)
		case <-tagTicker.C:
			if err := s.tags.ResolveAll(ctx); err != nil {
				s.log.Error().Err(err).Msg("taxonomy refresh failed")
			}
		}
	}
}

func (s *Scheduler) runSync(ctx context.Context) {
	err := s.sync.Sync(ctx)
	switch {
	case err == nil:
	case errors.Is(err, catalog.ErrSyncInProgress):
		s.log.Warn().Msg("sync still running, skipping tick")
	default:
		s.log.Error().Err(err).Msg("sync failed")
	}
}
