package catalog

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/marcwinter/streamlens/pkg/stats"
)

// Entity identifies a stored entity type whose mutations invalidate cached
// aggregates.
type Entity string

const (
	EntityStream Entity = "stream"
	EntityTag    Entity = "tag"
)

// Event is an entity lifecycle event.
type Event string

const (
	EventCreated      Event = "created"
	EventUpdated      Event = "updated"
	EventDeleted      Event = "deleted"
	EventRestored     Event = "restored"
	EventForceDeleted Event = "force_deleted"
)

// Hooks routes entity lifecycle events to the aggregate scope they
// invalidate. Collaborators that mutate stream or tag rows out of band
// (admin tooling, migrations) call Notify to keep the cache consistent.
type Hooks struct {
	stats  *stats.Engine
	scopes map[Entity]stats.Scope
	log    zerolog.Logger
}

// NewHooks creates the lifecycle hook dispatcher.
func NewHooks(engine *stats.Engine, log zerolog.Logger) *Hooks {
	return &Hooks{
		stats: engine,
		scopes: map[Entity]stats.Scope{
			EntityStream: stats.ScopeGeneral,
			EntityTag:    stats.ScopeTaxonomy,
		},
		log: log.With().Str("component", "hooks").Logger(),
	}
}

// Notify recomputes the aggregate scope mapped to the mutated entity. Every
// lifecycle event of an entity invalidates the same scope; the event is
// recorded for the operator's benefit only.
func (h *Hooks) Notify(ctx context.Context, entity Entity, event Event) error {
	scope, ok := h.scopes[entity]
	if !ok {
		return fmt.Errorf("hooks: unknown entity %q", entity)
	}

	h.log.Debug().Str("entity", string(entity)).Str("event", string(event)).Msg("lifecycle invalidation")
	return h.stats.Recompute(ctx, scope)
}
