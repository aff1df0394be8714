package store

const schema = `
CREATE TABLE IF NOT EXISTS streams (
    auto_id       INTEGER PRIMARY KEY AUTOINCREMENT,
    id            TEXT NOT NULL,
    user_id       TEXT NOT NULL,
    user_name     TEXT NOT NULL DEFAULT '',
    game_id       TEXT NOT NULL DEFAULT '',
    game_name     TEXT NOT NULL DEFAULT '',
    title         TEXT NOT NULL DEFAULT '',
    viewer_count  INTEGER NOT NULL DEFAULT 0,
    thumbnail_url TEXT NOT NULL DEFAULT '',
    tag_ids       TEXT NOT NULL DEFAULT '[]',
    started_at    DATETIME NOT NULL,
    is_archived   BOOLEAN NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_streams_id ON streams(id);
CREATE INDEX IF NOT EXISTS idx_streams_game ON streams(game_id);
CREATE INDEX IF NOT EXISTS idx_streams_archived ON streams(is_archived);
CREATE INDEX IF NOT EXISTS idx_streams_viewers ON streams(viewer_count);

CREATE TABLE IF NOT EXISTS stream_tags (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    auto        BOOLEAN NOT NULL DEFAULT 0
);
`
