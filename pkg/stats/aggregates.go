// Package stats maintains the precomputed statistics derived from the current
// catalog generation, and computes per-user overlap against it on demand.
package stats

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/marcwinter/streamlens/internal/cache"
	"github.com/marcwinter/streamlens/internal/metrics"
	"github.com/marcwinter/streamlens/internal/store"
)

// Scope selects which family of cache slots a recomputation refreshes.
type Scope string

const (
	// ScopeGeneral covers everything derived from the stream snapshot.
	ScopeGeneral Scope = "general"
	// ScopeTaxonomy covers the cached tag set.
	ScopeTaxonomy Scope = "taxonomy"
)

// Cache slot keys.
const (
	KeyStreams    = "catalog.streams"
	KeyTags       = "catalog.tags"
	KeyGeneral    = "aggregates.general"
	keyUserPrefix = "aggregates.user."
)

// TopN is the size of the cached top-streams slot.
const TopN = 100

// GeneralAggregates are the snapshot-scoped statistics, recomputed as a whole
// after every successful synchronization.
type GeneralAggregates struct {
	GamesTotalStreams map[string]int   `json:"games_total_streams"`
	GamesViewerCount  map[string]int64 `json:"games_viewer_count"`
	MedianViewerCount float64          `json:"median_viewer_count"`
	TopHundred        []store.Stream   `json:"top_hundred"`
	StreamsByDateHour map[string]int   `json:"streams_by_time"`
	StreamsByHour     map[string]int   `json:"streams_by_time_only"`
}

// UserAggregates are the per-user overlap statistics against the current
// generation. LowestFollowingDiffTop is nil when the user follows nothing or
// the snapshot is empty.
type UserAggregates struct {
	TopStreamsFollowing    []store.Stream `json:"top_streams_following"`
	LowestFollowingDiffTop *int64         `json:"lowest_following_diff_top"`
	SharedTags             []string       `json:"shared_tags"`
}

// Engine owns the invalidation and recomputation contract for the aggregate
// cache. All slots of a scope are computed first and published together, so a
// reader sees either the previous consistent set or the new one.
type Engine struct {
	store store.Store
	cache cache.Cache
	log   zerolog.Logger
}

// NewEngine creates an aggregate engine.
func NewEngine(s store.Store, c cache.Cache, log zerolog.Logger) *Engine {
	return &Engine{store: s, cache: c, log: log.With().Str("component", "stats").Logger()}
}

// Recompute refreshes every cache slot in the given scope from the store.
// It is idempotent: recomputing twice over unchanged data publishes identical
// values.
func (e *Engine) Recompute(ctx context.Context, scope Scope) error {
	switch scope {
	case ScopeGeneral:
		if err := e.recomputeGeneral(ctx); err != nil {
			return fmt.Errorf("recompute general aggregates: %w", err)
		}
	case ScopeTaxonomy:
		if err := e.recomputeTaxonomy(ctx); err != nil {
			return fmt.Errorf("recompute taxonomy aggregates: %w", err)
		}
	default:
		return fmt.Errorf("recompute: unknown scope %q", scope)
	}

	metrics.CacheRecomputes.WithLabelValues(string(scope)).Inc()
	return nil
}

func (e *Engine) recomputeGeneral(ctx context.Context) error {
	streams, err := e.store.ListCurrentStreams(ctx)
	if err != nil {
		return err
	}
	counts, err := e.store.GameStreamCounts(ctx)
	if err != nil {
		return err
	}
	viewers, err := e.store.GameViewerCounts(ctx)
	if err != nil {
		return err
	}

	agg := &GeneralAggregates{
		GamesTotalStreams: counts,
		GamesViewerCount:  viewers,
		MedianViewerCount: medianViewerCount(streams),
		TopHundred:        topStreams(streams, TopN),
		StreamsByDateHour: make(map[string]int),
		StreamsByHour:     make(map[string]int),
	}
	for i := range streams {
		started := streams[i].StartedAt.UTC()
		agg.StreamsByDateHour[started.Format("2006-01-02 15")]++
		agg.StreamsByHour[started.Format("15")]++
	}

	return e.cache.SetMulti(ctx, map[string]any{
		KeyStreams: streams,
		KeyGeneral: agg,
	})
}

func (e *Engine) recomputeTaxonomy(ctx context.Context) error {
	tags, err := e.store.ListTags(ctx)
	if err != nil {
		return err
	}

	byID := make(map[string]store.Tag, len(tags))
	for _, t := range tags {
		byID[t.ID] = t
	}
	return e.cache.Set(ctx, KeyTags, byID)
}

// General returns the cached general aggregates. ok is false when they have
// not been computed yet or the cache backend is unavailable; neither is fatal
// to the read path.
func (e *Engine) General(ctx context.Context) (*GeneralAggregates, bool, error) {
	var agg GeneralAggregates
	if err := e.cache.Get(ctx, KeyGeneral, &agg); err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			e.log.Warn().Err(err).Msg("aggregate cache unavailable, serving absent")
		}
		return nil, false, nil
	}
	return &agg, true, nil
}

// CurrentStreams returns the cached current generation, falling back to the
// store when the slot is absent or the cache is unavailable.
func (e *Engine) CurrentStreams(ctx context.Context) ([]store.Stream, error) {
	var streams []store.Stream
	err := e.cache.Get(ctx, KeyStreams, &streams)
	if err == nil {
		return streams, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		e.log.Warn().Err(err).Msg("stream cache unavailable, reading store")
	}
	return e.store.ListCurrentStreams(ctx)
}

// Tags returns the cached taxonomy keyed by ID, falling back to the store.
func (e *Engine) Tags(ctx context.Context) (map[string]store.Tag, error) {
	var byID map[string]store.Tag
	err := e.cache.Get(ctx, KeyTags, &byID)
	if err == nil {
		return byID, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		e.log.Warn().Err(err).Msg("tag cache unavailable, reading store")
	}

	tags, err := e.store.ListTags(ctx)
	if err != nil {
		return nil, err
	}
	byID = make(map[string]store.Tag, len(tags))
	for _, t := range tags {
		byID[t.ID] = t
	}
	return byID, nil
}

// UserOverlap computes the overlap statistics between the streams a user
// follows and the current generation. It is computed on demand, not on
// snapshot change, because it depends on the user's own followed feed. The
// result is cached best-effort under the user's key.
func (e *Engine) UserOverlap(ctx context.Context, userID string, followed []store.Stream) (*UserAggregates, error) {
	current, err := e.CurrentStreams(ctx)
	if err != nil {
		return nil, fmt.Errorf("user overlap: %w", err)
	}

	followedIDs := make(map[string]bool, len(followed))
	for _, s := range followed {
		followedIDs[s.ID] = true
	}

	agg := &UserAggregates{
		TopStreamsFollowing: []store.Stream{},
		SharedTags:          []string{},
	}
	for _, s := range current {
		if followedIDs[s.ID] {
			agg.TopStreamsFollowing = append(agg.TopStreamsFollowing, s)
		}
	}

	// How many viewers the user's least-watched followed stream needs to gain
	// to displace the bottom of the current set. One more than the plain
	// difference, since it has to push the last one off.
	if len(followed) > 0 && len(current) > 0 {
		diff := int64(minViewerCount(current)) - int64(minViewerCount(followed)) + 1
		agg.LowestFollowingDiffTop = &diff
	}

	agg.SharedTags = sharedTagIDs(followed, current)

	if err := e.cache.Set(ctx, keyUserPrefix+userID, agg); err != nil {
		e.log.Warn().Err(err).Str("user_id", userID).Msg("user aggregate cache write failed")
	}
	return agg, nil
}

// medianViewerCount averages the 1-based ranks ceil(n/2) and ceil((n+1)/2) of
// the sorted viewer counts: the middle value for odd n, the mean of the two
// middle values for even n. Returns 0 for an empty snapshot.
func medianViewerCount(streams []store.Stream) float64 {
	n := len(streams)
	if n == 0 {
		return 0
	}

	counts := make([]int, n)
	for i := range streams {
		counts[i] = streams[i].ViewerCount
	}
	sort.Ints(counts)

	lo := (n + 1) / 2
	hi := (n + 2) / 2
	return float64(counts[lo-1]+counts[hi-1]) / 2
}

// topStreams returns the n most-viewed streams, ties broken by ID ascending.
func topStreams(streams []store.Stream, n int) []store.Stream {
	top := make([]store.Stream, len(streams))
	copy(top, streams)
	sort.SliceStable(top, func(i, j int) bool {
		if top[i].ViewerCount != top[j].ViewerCount {
			return top[i].ViewerCount > top[j].ViewerCount
		}
		return top[i].ID < top[j].ID
	})

	if len(top) > n {
		top = top[:n]
	}
	return top
}

func minViewerCount(streams []store.Stream) int {
	min := streams[0].ViewerCount
	for _, s := range streams[1:] {
		if s.ViewerCount < min {
			min = s.ViewerCount
		}
	}
	return min
}

// sharedTagIDs returns the sorted intersection of the distinct tag IDs on
// each side.
func sharedTagIDs(a, b []store.Stream) []string {
	inA := make(map[string]bool)
	for _, s := range a {
		for _, id := range s.TagIDs {
			inA[id] = true
		}
	}

	seen := make(map[string]bool)
	shared := []string{}
	for _, s := range b {
		for _, id := range s.TagIDs {
			if inA[id] && !seen[id] {
				seen[id] = true
				shared = append(shared, id)
			}
		}
	}
	sort.Strings(shared)
	return shared
}
