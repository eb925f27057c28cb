package store

// schema contains all application table definitions.
//
// Tables:
//   - messages        - one row per archived message, (id, entity_id) PK
//   - media_files     - content-addressed blob index; (hash, size) unique
//   - replies         - quoted-message snapshot, child of messages
//   - buttons         - inline keyboard buttons, child of messages
//   - links           - in-text hyperlinks, child of messages
//   - reactions       - emoji tallies, child of messages
//   - web_previews    - link-preview snapshots, referenced by messages
//   - backup_metadata - schema version, hash algorithm, last media index time
const schema = `
CREATE TABLE IF NOT EXISTS messages (
    id                INTEGER NOT NULL,
    entity_id         INTEGER NOT NULL,
    timestamp         INTEGER NOT NULL,
    text              TEXT,

    media_type        TEXT NOT NULL DEFAULT '',
    service_kind      TEXT,
    forward_from      TEXT,
    sender_id         INTEGER,
    view_count        INTEGER DEFAULT 0,
    reply_to          INTEGER,
    is_pinned         INTEGER DEFAULT 0,
    is_service        INTEGER DEFAULT 0,
    is_voice          INTEGER DEFAULT 0,
    extracted_at      INTEGER NOT NULL,
    web_preview_id    INTEGER,

    media_ref         INTEGER,

    PRIMARY KEY (id, entity_id)
);
CREATE INDEX IF NOT EXISTS idx_messages_entity_ts ON messages(entity_id, timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_messages_media_ref ON messages(media_ref);

CREATE TABLE IF NOT EXISTS media_files (
    id                 INTEGER PRIMARY KEY AUTOINCREMENT,
    file_path          TEXT UNIQUE,
    hash               TEXT NOT NULL,
    size               INTEGER NOT NULL,
    file_id            TEXT,
    access_hash        INTEGER,
    discriminator      TEXT,
    mime_type          TEXT,
    name               TEXT,
    extension          TEXT,
    duration_seconds   INTEGER,
    width              INTEGER,
    height             INTEGER,
    indexed_at         INTEGER NOT NULL,
    last_used_at       INTEGER NOT NULL,
    UNIQUE (hash, size)
);
CREATE INDEX IF NOT EXISTS idx_media_hash ON media_files(hash);
CREATE INDEX IF NOT EXISTS idx_media_file_id ON media_files(file_id);
CREATE INDEX IF NOT EXISTS idx_media_name ON media_files(name);
CREATE INDEX IF NOT EXISTS idx_media_size ON media_files(size);
CREATE INDEX IF NOT EXISTS idx_media_size_duration ON media_files(size, duration_seconds);
CREATE INDEX IF NOT EXISTS idx_media_dimensions ON media_files(width, height);
CREATE INDEX IF NOT EXISTS idx_media_file_path ON media_files(file_path);

CREATE TABLE IF NOT EXISTS replies (
    message_id        INTEGER NOT NULL,
    entity_id         INTEGER NOT NULL,
    quoted_message_id INTEGER,
    quoted_text       TEXT,
    quoted_sender_id  INTEGER,
    PRIMARY KEY (message_id, entity_id)
);

CREATE TABLE IF NOT EXISTS buttons (
    message_id INTEGER NOT NULL,
    entity_id  INTEGER NOT NULL,
    row        INTEGER NOT NULL,
    col        INTEGER NOT NULL,
    text       TEXT,
    url        TEXT,
    PRIMARY KEY (message_id, entity_id, row, col)
);

-- In-text links get their own table, separate from "buttons": a shared
-- table would collide on (message_id, entity_id, 0, 0) and silently drop
-- either the first button or the first in-text link.
CREATE TABLE IF NOT EXISTS links (
    message_id INTEGER NOT NULL,
    entity_id  INTEGER NOT NULL,
    position   INTEGER NOT NULL,
    url        TEXT NOT NULL,
    PRIMARY KEY (message_id, entity_id, position)
);

CREATE TABLE IF NOT EXISTS reactions (
    message_id INTEGER NOT NULL,
    entity_id  INTEGER NOT NULL,
    emoji      TEXT NOT NULL,
    count      INTEGER NOT NULL DEFAULT 1,
    PRIMARY KEY (message_id, entity_id, emoji)
);

CREATE TABLE IF NOT EXISTS web_previews (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    url         TEXT NOT NULL,
    title       TEXT,
    description TEXT,
    site_name   TEXT
);

CREATE TABLE IF NOT EXISTS backup_metadata (
    key        TEXT PRIMARY KEY,
    value      TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);
`

// currentSchemaVersion is the schema version this binary understands.
// Store.migrate brings older stores up to this version on open.
const currentSchemaVersion = 1
