// Author: tan91
// GitHub: https://github.com/NUDTTAN91
// Blog: https://blog.csdn.net/ZXW_NUDT

package store

import (
	"database/sql"
	"log"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
    id                 BIGSERIAL PRIMARY KEY,
    username           TEXT NOT NULL UNIQUE,
    display_name       TEXT NOT NULL,
    email              TEXT,
    password_hash      TEXT NOT NULL,
    role               TEXT NOT NULL DEFAULT 'user',
    status             TEXT NOT NULL DEFAULT 'active',
    avatar             TEXT,
    bio                TEXT,
    token_version      INTEGER NOT NULL DEFAULT 1,
    writeup_count      INTEGER NOT NULL DEFAULT 0,
    total_upvotes      INTEGER NOT NULL DEFAULT 0,
    ctf_participation  INTEGER NOT NULL DEFAULT 0,
    contribution_score INTEGER NOT NULL DEFAULT 0,
    title              TEXT NOT NULL DEFAULT 'Initiate',
    rank               INTEGER NOT NULL DEFAULT 0,
    last_login_ip      TEXT,
    last_login_at      TIMESTAMPTZ,
    created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS user_login_history (
    id         BIGSERIAL PRIMARY KEY,
    user_id    BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    ip_address TEXT,
    user_agent TEXT,
    login_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS writeups (
    id         BIGSERIAL PRIMARY KEY,
    author_id  BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    title      TEXT NOT NULL,
    content    TEXT NOT NULL DEFAULT '',
    ctf_name   TEXT NOT NULL DEFAULT '',
    category   TEXT NOT NULL DEFAULT 'MISC',
    tags       TEXT NOT NULL DEFAULT '[]',
    upvotes    INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_writeups_author ON writeups(author_id);
CREATE INDEX IF NOT EXISTS idx_writeups_created ON writeups(created_at);
CREATE INDEX IF NOT EXISTS idx_writeups_upvotes ON writeups(upvotes);

CREATE TABLE IF NOT EXISTS writeup_upvotes (
    writeup_id BIGINT NOT NULL REFERENCES writeups(id) ON DELETE CASCADE,
    user_id    BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (writeup_id, user_id)
);

CREATE TABLE IF NOT EXISTS ctf_events (
    id         BIGSERIAL PRIMARY KEY,
    name       TEXT NOT NULL,
    organizer  TEXT NOT NULL DEFAULT '',
    format     TEXT NOT NULL DEFAULT 'jeopardy',
    weight     REAL NOT NULL DEFAULT 0,
    url        TEXT NOT NULL DEFAULT '',
    start_time TIMESTAMPTZ NOT NULL,
    end_time   TIMESTAMPTZ NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_ctf_events_start ON ctf_events(start_time);

CREATE TABLE IF NOT EXISTS event_interests (
    event_id   BIGINT NOT NULL REFERENCES ctf_events(id) ON DELETE CASCADE,
    user_id    BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (event_id, user_id)
);

CREATE TABLE IF NOT EXISTS announcements (
    id         BIGSERIAL PRIMARY KEY,
    title      TEXT NOT NULL,
    content    TEXT NOT NULL DEFAULT '',
    is_pinned  BOOLEAN NOT NULL DEFAULT FALSE,
    created_by BIGINT REFERENCES users(id) ON DELETE SET NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS system_logs (
    id         BIGSERIAL PRIMARY KEY,
    type       TEXT NOT NULL,
    level      TEXT NOT NULL DEFAULT 'info',
    user_id    BIGINT,
    ip_address TEXT,
    message    TEXT NOT NULL,
    details    JSONB,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_system_logs_created ON system_logs(created_at);
CREATE INDEX IF NOT EXISTS idx_system_logs_type ON system_logs(type);
`

// Migrate 启动时建表（幂等，全部CREATE IF NOT EXISTS）
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return err
	}
	log.Printf("[Store] schema ready")
	return nil
}
