package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/marcwinter/streamlens/internal/metrics"
	"github.com/marcwinter/streamlens/internal/store"
	"github.com/marcwinter/streamlens/pkg/stats"
	"github.com/marcwinter/streamlens/pkg/twitch"
)

const defaultTagBatchSize = 100

// TagReconciler fills gaps in the locally stored tag taxonomy. Tags are
// referenced by streams but fetched lazily: only IDs unknown to the store are
// looked up.
type TagReconciler struct {
	api       TagsAPI
	store     store.Store
	stats     *stats.Engine
	log       zerolog.Logger
	batchSize int
}

// NewTagReconciler creates a reconciler. batchSize falls back to 100.
func NewTagReconciler(api TagsAPI, st store.Store, engine *stats.Engine, log zerolog.Logger, batchSize int) *TagReconciler {
	if batchSize <= 0 {
		batchSize = defaultTagBatchSize
	}
	return &TagReconciler{
		api:       api,
		store:     st,
		stats:     engine,
		log:       log.With().Str("component", "tags").Logger(),
		batchSize: batchSize,
	}
}

// EnsureResolved fetches and upserts the tags among candidateIDs that are not
// stored yet, then recomputes the taxonomy aggregates. An empty candidate set
// is a no-op: no store access, no fetches.
//
// The missing set is the symmetric difference of the stored and candidate
// IDs, not a plain subtraction: IDs found on either side but not the other
// are fetched. With the store query filtered to the candidates the two
// constructions coincide, but the tolerant both-directions form is kept
// deliberately.
func (r *TagReconciler) EnsureResolved(ctx context.Context, candidateIDs []string) error {
	if len(candidateIDs) == 0 {
		return nil
	}

	existing, err := r.store.ExistingTagIDs(ctx, candidateIDs)
	if err != nil {
		return fmt.Errorf("ensure tags: query existing: %w", err)
	}

	missing := symmetricDiff(existing, candidateIDs)
	if len(missing) == 0 {
		return nil
	}

	var tags []store.Tag
	for _, batch := range chunk(missing, r.batchSize) {
		batchTags, err := r.fetchTags(ctx, batch, true)
		if err != nil {
			return err
		}
		tags = append(tags, batchTags...)
	}

	if err := r.upsertAndRecompute(ctx, tags); err != nil {
		return err
	}

	r.log.Info().Int("missing", len(missing)).Int("resolved", len(tags)).Msg("tag gaps filled")
	return nil
}

// ResolveAll refreshes the complete taxonomy: every page of the unfiltered
// tag listing is fetched and upserted. Existing tags are never removed.
func (r *TagReconciler) ResolveAll(ctx context.Context) error {
	tags, err := r.fetchTags(ctx, nil, false)
	if err != nil {
		return err
	}

	if err := r.upsertAndRecompute(ctx, tags); err != nil {
		return err
	}

	r.log.Info().Int("tags", len(tags)).Msg("full taxonomy refreshed")
	return nil
}

// fetchTags pages the tag listing, optionally filtered to a batch of IDs,
// until the cursor is exhausted.
func (r *TagReconciler) fetchTags(ctx context.Context, ids []string, auto bool) ([]store.Tag, error) {
	var tags []store.Tag
	cursor := ""

	for {
		fetchStart := time.Now()
		page, err := r.api.GetStreamTags(ctx, twitch.TagsParams{
			First:  r.batchSize,
			After:  cursor,
			TagIDs: ids,
		})
		if err != nil {
			return nil, fmt.Errorf("ensure tags: fetch page: %w", err)
		}
		metrics.FetchDuration.WithLabelValues("tags").Observe(time.Since(fetchStart).Seconds())

		for _, t := range page.Data {
			tags = append(tags, toStoreTag(t, auto))
		}
		if page.Cursor == "" {
			return tags, nil
		}
		cursor = page.Cursor
	}
}

func (r *TagReconciler) upsertAndRecompute(ctx context.Context, tags []store.Tag) error {
	if err := r.store.UpsertTags(ctx, tags); err != nil {
		return fmt.Errorf("ensure tags: upsert: %w", err)
	}
	metrics.TagUpserts.Add(float64(len(tags)))

	if err := r.stats.Recompute(ctx, stats.ScopeTaxonomy); err != nil {
		return fmt.Errorf("ensure tags: %w", err)
	}
	return nil
}

// symmetricDiff returns the IDs present in exactly one of the two sets:
// first the a-side leftovers, then the b-side ones, each in input order.
func symmetricDiff(a, b []string) []string {
	inA := make(map[string]bool, len(a))
	for _, id := range a {
		inA[id] = true
	}
	inB := make(map[string]bool, len(b))
	for _, id := range b {
		inB[id] = true
	}

	var diff []string
	for _, id := range a {
		if !inB[id] {
			diff = append(diff, id)
		}
	}
	for _, id := range b {
		if !inA[id] {
			diff = append(diff, id)
		}
	}
	return diff
}

func chunk(ids []string, size int) [][]string {
	var chunks [][]string
	for len(ids) > size {
		chunks = append(chunks, ids[:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		chunks = append(chunks, ids)
	}
	return chunks
}
