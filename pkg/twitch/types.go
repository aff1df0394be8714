package twitch

import "time"

// Stream is a live channel as returned by the streams endpoints.
type Stream struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	UserName     string    `json:"user_name"`
	GameID       string    `json:"game_id"`
	GameName     string    `json:"game_name"`
	Type         string    `json:"type"`
	Title        string    `json:"title"`
	ViewerCount  int       `json:"viewer_count"`
	ThumbnailURL string    `json:"thumbnail_url"`
	TagIDs       []string  `json:"tag_ids"`
	StartedAt    time.Time `json:"started_at"`
}

// Tag is a taxonomy entry with per-locale names and descriptions.
// Tag IDs are opaque strings; some are not numeric.
type Tag struct {
	TagID                    string            `json:"tag_id"`
	IsAuto                   bool              `json:"is_auto"`
	LocalizationNames        map[string]string `json:"localization_names"`
	LocalizationDescriptions map[string]string `json:"localization_descriptions"`
}

// StreamsPage is one page of a cursor-paginated streams listing.
// An empty Cursor means the listing is exhausted.
type StreamsPage struct {
	Data   []Stream
	Cursor string
}

// TagsPage is one page of a cursor-paginated tag listing.
type TagsPage struct {
	Data   []Tag
	Cursor string
}

// StreamsParams controls a GetStreams call.
type StreamsParams struct {
	First int    // page size, capped at 100 by the API
	After string // pagination cursor from the previous page
}

// TagsParams controls a GetStreamTags call.
type TagsParams struct {
	First  int
	After  string
	TagIDs []string // optional filter, at most 100 per request
}
