// Package server exposes the read path and the manual sync trigger over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/marcwinter/streamlens/internal/store"
	"github.com/marcwinter/streamlens/pkg/catalog"
	"github.com/marcwinter/streamlens/pkg/stats"
	"github.com/marcwinter/streamlens/pkg/twitch"
)

// followedPageBudget bounds the followed-streams fetch the same way the
// snapshot fetch is bounded.
const followedPageBudget = 10

// FollowedAPI fetches the streams a user follows, with the user's own token.
type FollowedAPI interface {
	GetFollowedStreams(ctx context.Context, userID, userToken string, p twitch.StreamsParams) (*twitch.StreamsPage, error)
}

// Server provides the HTTP API.
type Server struct {
	engine   *stats.Engine
	sync     *catalog.Synchronizer
	followed FollowedAPI
	log      zerolog.Logger
	port     int
}

// New creates a new HTTP server.
func New(engine *stats.Engine, sync *catalog.Synchronizer, followed FollowedAPI, port int, log zerolog.Logger) *Server {
	if port == 0 {
		port = 8080
	}
	return &Server{
		engine:   engine,
		sync:     sync,
		followed: followed,
		log:      log.With().Str("component", "server").Logger(),
		port:     port,
	}
}

// Routes builds the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/streams", s.handleStreams)
		r.Get("/tags", s.handleTags)
		r.Get("/aggregates", s.handleAggregates)
		r.Get("/users/{userID}/stats", s.handleUserStats)
		r.Post("/sync", s.handleSync)
	})
	return r
}

// ListenAndServe starts the HTTP server and shuts it down when ctx is
// cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.Routes(),
	}

	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	s.log.Info().Str("addr", srv.Addr).Msg("listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStreams(w http.ResponseWriter, r *http.Request) {
	streams, err := s.engine.CurrentStreams(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  streams,
		"count": len(streams),
	})
}

func (s *Server) handleTags(w http.ResponseWriter, r *http.Request) {
	tags, err := s.engine.Tags(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  tags,
		"count": len(tags),
	})
}

func (s *Server) handleAggregates(w http.ResponseWriter, r *http.Request) {
	agg, ok, err := s.engine.General(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if !ok {
		// Not computed yet (or the cache backend is down): an empty answer,
		// not a failure.
		writeJSON(w, http.StatusOK, map[string]any{"computed": false})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"computed": true,
		"data":     agg,
	})
}

func (s *Server) handleUserStats(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	token := bearerToken(r)
	if token == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing bearer token"})
		return
	}

	general, computed, err := s.engine.General(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	resp := map[string]any{
		"computed": computed,
		"general":  general,
		"user":     nil,
	}

	// The followed feed belongs to the user, not to us; when it cannot be
	// fetched the response degrades to no overlap data instead of failing.
	followed, err := s.fetchFollowed(r.Context(), userID, token)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("followed streams unavailable")
		writeJSON(w, http.StatusOK, resp)
		return
	}

	overlap, err := s.engine.UserOverlap(r.Context(), userID, followed)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	resp["user"] = overlap
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	err := s.sync.Sync(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case errors.Is(err, catalog.ErrSyncInProgress):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		s.log.Error().Err(err).Msg("manual sync failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

func (s *Server) fetchFollowed(ctx context.Context, userID, token string) ([]store.Stream, error) {
	var followed []store.Stream
	cursor := ""

	for page := 0; page < followedPageBudget; page++ {
		p, err := s.followed.GetFollowedStreams(ctx, userID, token, twitch.StreamsParams{
			First: 100,
			After: cursor,
		})
		if err != nil {
			return nil, err
		}
		for _, st := range p.Data {
			followed = append(followed, store.Stream{
				ID:          st.ID,
				UserID:      st.UserID,
				UserName:    st.UserName,
				GameID:      st.GameID,
				GameName:    st.GameName,
				Title:       st.Title,
				ViewerCount: st.ViewerCount,
				TagIDs:      st.TagIDs,
				StartedAt:   st.StartedAt,
			})
		}
		if p.Cursor == "" {
			break
		}
		cursor = p.Cursor
	}
	return followed, nil
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
