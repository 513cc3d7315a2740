package postgres

const schema = `
CREATE TABLE IF NOT EXISTS entities (
    id          TEXT PRIMARY KEY,
    title       TEXT NOT NULL DEFAULT '',
    status      TEXT NOT NULL DEFAULT '',
    labels      TEXT[] NOT NULL DEFAULT '{}',
    sequence    BIGSERIAL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS entity_messages (
    id          TEXT PRIMARY KEY,
    entity_id   TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
    author      TEXT NOT NULL DEFAULT '',
    body        TEXT NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_entity_messages_entity ON entity_messages(entity_id, created_at);

CREATE TABLE IF NOT EXISTS jobs (
    id          UUID PRIMARY KEY,
    entity_ids  TEXT[] NOT NULL,
    options     JSONB NOT NULL DEFAULT '{}',
    status      TEXT NOT NULL,
    metadata    JSONB NOT NULL DEFAULT '{}',
    error       TEXT,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status, created_at);

CREATE TABLE IF NOT EXISTS suggestions (
    type        TEXT NOT NULL,
    source_id   TEXT NOT NULL,
    related_id  TEXT NOT NULL DEFAULT '',
    result      JSONB NOT NULL DEFAULT '{}',
    active      BOOLEAN NOT NULL DEFAULT true,
    accepted    BOOLEAN NOT NULL DEFAULT false,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (type, source_id, related_id)
);

CREATE INDEX IF NOT EXISTS idx_suggestions_source ON suggestions(source_id, type);
`
