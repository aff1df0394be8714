package twitch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetStreamsPagination(t *testing.T) {
	var gotAfter, gotFirst, gotType string

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/streams", r.URL.Path)
		gotAfter = r.URL.Query().Get("after")
		gotFirst = r.URL.Query().Get("first")
		gotType = r.URL.Query().Get("type")

		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"id": "1", "user_name": "alice", "viewer_count": 100},
				{"id": "2", "user_name": "bob", "viewer_count": 50},
			},
			"pagination": map[string]string{"cursor": "next-cursor"},
		})
	}))
	defer ts.Close()

	c := NewClient("client-id", "app-token", WithBaseURL(ts.URL))

	page, err := c.GetStreams(context.Background(), StreamsParams{First: 100, After: "prev"})
	require.NoError(t, err)

	assert.Equal(t, "prev", gotAfter)
	assert.Equal(t, "100", gotFirst)
	assert.Equal(t, "live", gotType)
	assert.Equal(t, "next-cursor", page.Cursor)
	require.Len(t, page.Data, 2)
	assert.Equal(t, "alice", page.Data[0].UserName)
	assert.Equal(t, 100, page.Data[0].ViewerCount)
}

func TestGetStreamsAuthHeaders(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "client-id", r.Header.Get("Client-Id"))
		assert.Equal(t, "Bearer app-token", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]any{"data": []any{}, "pagination": map[string]string{}})
	}))
	defer ts.Close()

	c := NewClient("client-id", "app-token", WithBaseURL(ts.URL))
	page, err := c.GetStreams(context.Background(), StreamsParams{First: 10})
	require.NoError(t, err)
	assert.Empty(t, page.Cursor)
	assert.Empty(t, page.Data)
}

func TestGetStreamsRateLimited(t *testing.T) {
	calls := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	c := NewClient("id", "tok", WithBaseURL(ts.URL))
	_, err := c.GetStreams(context.Background(), StreamsParams{First: 100})

	require.ErrorIs(t, err, ErrRateLimited)
	// Retry policy is the caller's; the client makes exactly one attempt.
	assert.Equal(t, 1, calls)
}

func TestGetStreamsServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal", http.StatusInternalServerError)
	}))
	defer ts.Close()

	c := NewClient("id", "tok", WithBaseURL(ts.URL))
	_, err := c.GetStreams(context.Background(), StreamsParams{First: 100})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestGetStreamsMalformedBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{not json"))
	}))
	defer ts.Close()

	c := NewClient("id", "tok", WithBaseURL(ts.URL))
	_, err := c.GetStreams(context.Background(), StreamsParams{First: 100})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode")
}

func TestGetStreamTagsBatchFilter(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/tags/streams", r.URL.Path)
		assert.Equal(t, []string{"t1", "t2"}, r.URL.Query()["tag_id"])

		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{
					"tag_id":                    "t1",
					"localization_names":        map[string]string{"en-us": "Speedrun"},
					"localization_descriptions": map[string]string{"en-us": "Going fast"},
				},
			},
			"pagination": map[string]string{},
		})
	}))
	defer ts.Close()

	c := NewClient("id", "tok", WithBaseURL(ts.URL))
	page, err := c.GetStreamTags(context.Background(), TagsParams{First: 100, TagIDs: []string{"t1", "t2"}})
	require.NoError(t, err)

	require.Len(t, page.Data, 1)
	assert.Equal(t, "t1", page.Data[0].TagID)
	assert.Equal(t, "Speedrun", page.Data[0].LocalizationNames["en-us"])
}

func TestGetFollowedStreamsUsesUserToken(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/streams/followed", r.URL.Path)
		assert.Equal(t, "Bearer user-token", r.Header.Get("Authorization"))
		assert.Equal(t, "u42", r.URL.Query().Get("user_id"))
		json.NewEncoder(w).Encode(map[string]any{"data": []any{}, "pagination": map[string]string{}})
	}))
	defer ts.Close()

	c := NewClient("id", "app-token", WithBaseURL(ts.URL))
	_, err := c.GetFollowedStreams(context.Background(), "u42", "user-token", StreamsParams{First: 100})
	require.NoError(t, err)
}
