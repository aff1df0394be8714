package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/marcwinter/streamlens/internal/metrics"
	"github.com/marcwinter/streamlens/internal/store"
	"github.com/marcwinter/streamlens/pkg/stats"
	"github.com/marcwinter/streamlens/pkg/twitch"
)

// ErrSyncInProgress is returned when a Sync is invoked while another run is
// in flight. Runs are never interleaved; two concurrent generation swaps
// would race to flip the archive flag.
var ErrSyncInProgress = errors.New("catalog: synchronization already in progress")

const (
	defaultPageBudget = 10
	defaultPageSize   = 100
)

// Synchronizer replaces the stored stream snapshot with a fresh generation
// fetched from the upstream listing.
type Synchronizer struct {
	api        StreamsAPI
	store      store.Store
	tags       *TagReconciler
	stats      *stats.Engine
	log        zerolog.Logger
	pageBudget int
	pageSize   int
	running    atomic.Bool
}

// NewSynchronizer creates a synchronizer. pageBudget and pageSize fall back
// to the defaults (10 pages of 100) when zero.
func NewSynchronizer(api StreamsAPI, st store.Store, tags *TagReconciler, engine *stats.Engine, log zerolog.Logger, pageBudget, pageSize int) *Synchronizer {
	if pageBudget <= 0 {
		pageBudget = defaultPageBudget
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &Synchronizer{
		api:        api,
		store:      st,
		tags:       tags,
		stats:      engine,
		log:        log.With().Str("component", "sync").Logger(),
		pageBudget: pageBudget,
		pageSize:   pageSize,
	}
}

// Sync fetches up to pageBudget pages of live streams, deduplicates them and
// swaps them in as the new generation in a single transaction, then resolves
// any tag IDs the generation references and recomputes the general
// aggregates.
//
// The upstream population mutates between page calls, so the accumulated set
// can contain duplicate IDs across pages or miss a stream that moved out of
// range mid-run. That bounded inconsistency is accepted: duplicates are
// collapsed (last page wins) and gaps are left to the next run.
//
// Any fetch or transaction error aborts the run and the previously committed
// generation remains authoritative. A second concurrent call is rejected
// with ErrSyncInProgress.
func (s *Synchronizer) Sync(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		metrics.SyncRuns.WithLabelValues("rejected").Inc()
		return ErrSyncInProgress
	}
	defer s.running.Store(false)

	if err := s.sync(ctx); err != nil {
		metrics.SyncRuns.WithLabelValues("error").Inc()
		return err
	}
	metrics.SyncRuns.WithLabelValues("ok").Inc()
	return nil
}

func (s *Synchronizer) sync(ctx context.Context) error {
	start := time.Now()

	var fetched []twitch.Stream
	cursor := ""
	pages := 0

	for page := 0; page < s.pageBudget; page++ {
		fetchStart := time.Now()
		p, err := s.api.GetStreams(ctx, twitch.StreamsParams{First: s.pageSize, After: cursor})
		if err != nil {
			return fmt.Errorf("sync: fetch page %d: %w", page+1, err)
		}
		metrics.FetchDuration.WithLabelValues("streams").Observe(time.Since(fetchStart).Seconds())
		metrics.SyncPages.Inc()
		pages++

		fetched = append(fetched, p.Data...)
		if p.Cursor == "" {
			break
		}
		cursor = p.Cursor
	}

	generation := dedupeStreams(fetched)
	if len(generation) == 0 {
		// An empty upstream answer never replaces a committed generation.
		return fmt.Errorf("sync: upstream returned no streams after %d pages", pages)
	}

	if err := s.store.ReplaceStreams(ctx, generation); err != nil {
		return fmt.Errorf("sync: swap generation: %w", err)
	}
	metrics.GenerationSize.Set(float64(len(generation)))

	s.log.Info().
		Int("pages", pages).
		Int("fetched", len(fetched)).
		Int("streams", len(generation)).
		Dur("elapsed", time.Since(start)).
		Msg("generation committed")

	if err := s.tags.EnsureResolved(ctx, referencedTagIDs(generation)); err != nil {
		return fmt.Errorf("sync: resolve tags: %w", err)
	}

	if err := s.stats.Recompute(ctx, stats.ScopeGeneral); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	return nil
}

// dedupeStreams collapses duplicate IDs across pages. The later occurrence
// wins, and output order follows first appearance, so the result is
// deterministic for a given page sequence.
func dedupeStreams(fetched []twitch.Stream) []store.Stream {
	byID := make(map[string]twitch.Stream, len(fetched))
	for _, s := range fetched {
		byID[s.ID] = s
	}

	seen := make(map[string]bool, len(byID))
	generation := make([]store.Stream, 0, len(byID))
	for _, s := range fetched {
		if seen[s.ID] {
			continue
		}
		seen[s.ID] = true
		generation = append(generation, toStoreStream(byID[s.ID]))
	}
	return generation
}

// referencedTagIDs returns the sorted distinct tag IDs of a generation.
func referencedTagIDs(streams []store.Stream) []string {
	set := make(map[string]bool)
	for _, s := range streams {
		for _, id := range s.TagIDs {
			set[id] = true
		}
	}

	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
