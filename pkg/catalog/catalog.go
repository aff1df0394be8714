// Package catalog keeps the local stream snapshot and tag taxonomy in sync
// with the upstream catalog API.
package catalog

import (
	"context"

	"github.com/marcwinter/streamlens/internal/store"
	"github.com/marcwinter/streamlens/pkg/twitch"
)

// StreamsAPI is the part of the upstream client the synchronizer uses.
type StreamsAPI interface {
	GetStreams(ctx context.Context, p twitch.StreamsParams) (*twitch.StreamsPage, error)
}

// TagsAPI is the part of the upstream client the tag reconciler uses.
type TagsAPI interface {
	GetStreamTags(ctx context.Context, p twitch.TagsParams) (*twitch.TagsPage, error)
}

// localeEnglish is the single localization kept for tag names and
// descriptions.
const localeEnglish = "en-us"

func toStoreStream(s twitch.Stream) store.Stream {
	return store.Stream{
		ID:           s.ID,
		UserID:       s.UserID,
		UserName:     s.UserName,
		GameID:       s.GameID,
		GameName:     s.GameName,
		Title:        s.Title,
		ViewerCount:  s.ViewerCount,
		ThumbnailURL: s.ThumbnailURL,
		TagIDs:       s.TagIDs,
		StartedAt:    s.StartedAt,
	}
}

func toStoreTag(t twitch.Tag, auto bool) store.Tag {
	return store.Tag{
		ID:          t.TagID,
		Name:        t.LocalizationNames[localeEnglish],
		Description: t.LocalizationDescriptions[localeEnglish],
		Auto:        auto,
	}
}
