package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcwinter/streamlens/internal/cache"
	"github.com/marcwinter/streamlens/internal/store"
	"github.com/marcwinter/streamlens/pkg/catalog"
	"github.com/marcwinter/streamlens/pkg/stats"
	"github.com/marcwinter/streamlens/pkg/twitch"
)

type fakeStreamsAPI struct {
	streams []twitch.Stream
}

func (f *fakeStreamsAPI) GetStreams(ctx context.Context, p twitch.StreamsParams) (*twitch.StreamsPage, error) {
	return &twitch.StreamsPage{Data: f.streams}, nil
}

type fakeTagsAPI struct{}

func (fakeTagsAPI) GetStreamTags(ctx context.Context, p twitch.TagsParams) (*twitch.TagsPage, error) {
	page := &twitch.TagsPage{}
	for _, id := range p.TagIDs {
		page.Data = append(page.Data, twitch.Tag{
			TagID:             id,
			LocalizationNames: map[string]string{"en-us": "Name " + id},
		})
	}
	return page, nil
}

type fakeFollowedAPI struct {
	streams []twitch.Stream
	err     error
	token   string
}

func (f *fakeFollowedAPI) GetFollowedStreams(ctx context.Context, userID, userToken string, p twitch.StreamsParams) (*twitch.StreamsPage, error) {
	f.token = userToken
	if f.err != nil {
		return nil, f.err
	}
	return &twitch.StreamsPage{Data: f.streams}, nil
}

func liveStream(id string, viewers int, tagIDs ...string) twitch.Stream {
	return twitch.Stream{
		ID:          id,
		UserID:      "u" + id,
		UserName:    "user-" + id,
		GameID:      "g1",
		GameName:    "Game One",
		Title:       "t",
		ViewerCount: viewers,
		TagIDs:      tagIDs,
		StartedAt:   time.Date(2022, 11, 23, 9, 0, 0, 0, time.UTC),
	}
}

type serverFixture struct {
	store    store.Store
	engine   *stats.Engine
	sync     *catalog.Synchronizer
	followed *fakeFollowedAPI
	ts       *httptest.Server
}

func newServerFixture(t *testing.T, upstream []twitch.Stream) *serverFixture {
	t.Helper()
	db, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	kv := cache.NewMemory()
	engine := stats.NewEngine(db, kv, zerolog.Nop())
	tags := catalog.NewTagReconciler(fakeTagsAPI{}, db, engine, zerolog.Nop(), 100)
	sync := catalog.NewSynchronizer(&fakeStreamsAPI{streams: upstream}, db, tags, engine, zerolog.Nop(), 10, 100)
	followed := &fakeFollowedAPI{}

	s := New(engine, sync, followed, 0, zerolog.Nop())
	ts := httptest.NewServer(s.Routes())
	t.Cleanup(ts.Close)

	return &serverFixture{store: db, engine: engine, sync: sync, followed: followed, ts: ts}
}

func getJSON(t *testing.T, url string, headers map[string]string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestHealth(t *testing.T) {
	f := newServerFixture(t, nil)

	status, body := getJSON(t, f.ts.URL+"/health", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}

func TestStreamsEndpoint(t *testing.T) {
	f := newServerFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.store.ReplaceStreams(ctx, []store.Stream{
		{ID: "1", UserID: "u1", ViewerCount: 10, StartedAt: time.Now().UTC()},
		{ID: "2", UserID: "u2", ViewerCount: 20, StartedAt: time.Now().UTC()},
	}))

	status, body := getJSON(t, f.ts.URL+"/api/v1/streams", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 2.0, body["count"])
}

func TestTagsEndpoint(t *testing.T) {
	f := newServerFixture(t, nil)
	require.NoError(t, f.store.UpsertTags(context.Background(), []store.Tag{{ID: "x", Name: "X"}}))

	status, body := getJSON(t, f.ts.URL+"/api/v1/tags", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1.0, body["count"])
}

func TestAggregatesBeforeAndAfterSync(t *testing.T) {
	f := newServerFixture(t, []twitch.Stream{liveStream("1", 10), liveStream("2", 30)})

	status, body := getJSON(t, f.ts.URL+"/api/v1/aggregates", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["computed"])

	resp, err := http.Post(f.ts.URL+"/api/v1/sync", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	status, body = getJSON(t, f.ts.URL+"/api/v1/aggregates", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["computed"])

	data, ok := body["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 20.0, data["median_viewer_count"])
}

func TestSyncEndpointEmptyUpstreamFails(t *testing.T) {
	f := newServerFixture(t, nil)

	resp, err := http.Post(f.ts.URL+"/api/v1/sync", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestUserStatsRequiresBearerToken(t *testing.T) {
	f := newServerFixture(t, nil)

	status, body := getJSON(t, f.ts.URL+"/api/v1/users/u1/stats", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Contains(t, body["error"], "bearer")
}

func TestUserStatsOverlap(t *testing.T) {
	f := newServerFixture(t, []twitch.Stream{
		liveStream("b", 50, "shared"),
		liveStream("c", 40, "only-top"),
	})
	require.NoError(t, f.sync.Sync(context.Background()))

	f.followed.streams = []twitch.Stream{
		liveStream("a", 5, "shared", "only-followed"),
		liveStream("b", 50, "shared"),
	}

	status, body := getJSON(t, f.ts.URL+"/api/v1/users/u1/stats", map[string]string{
		"Authorization": "Bearer user-token",
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "user-token", f.followed.token)

	user, ok := body["user"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 36.0, user["lowest_following_diff_top"])
	assert.Equal(t, []any{"shared"}, user["shared_tags"])
}

func TestUserStatsDegradesWhenFollowedUnavailable(t *testing.T) {
	f := newServerFixture(t, []twitch.Stream{liveStream("1", 10)})
	require.NoError(t, f.sync.Sync(context.Background()))

	f.followed.err = errors.New("token expired")

	status, body := getJSON(t, f.ts.URL+"/api/v1/users/u1/stats", map[string]string{
		"Authorization": "Bearer stale-token",
	})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["computed"])
	assert.Nil(t, body["user"])
}

func TestMetricsExposed(t *testing.T) {
	f := newServerFixture(t, nil)

	resp, err := http.Get(f.ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
