package store

// Schema is the SQL DDL for all pipeline tables. Execute it via
// [Store.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS legislatures (
    id               TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
    code             TEXT NOT NULL UNIQUE,
    name             TEXT NOT NULL,
    government_level TEXT NOT NULL DEFAULT 'federal',
    metadata         JSONB NOT NULL DEFAULT '{}',
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS debates (
    id               TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
    legislature_id   TEXT NOT NULL REFERENCES legislatures(id),
    external_id      TEXT NOT NULL,
    title            TEXT NOT NULL DEFAULT '',
    date             DATE NOT NULL,
    session_type     TEXT NOT NULL DEFAULT 'house',
    status           TEXT NOT NULL DEFAULT 'detected',
    video_url        TEXT NOT NULL DEFAULT '',
    hansard_url      TEXT NOT NULL DEFAULT '',
    source_urls      JSONB NOT NULL DEFAULT '[]',
    metadata         JSONB NOT NULL DEFAULT '{}',
    duration_seconds INTEGER NOT NULL DEFAULT 0,
    error_message    TEXT NOT NULL DEFAULT '',
    retry_count      INTEGER NOT NULL DEFAULT 0,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (legislature_id, external_id)
);
CREATE INDEX IF NOT EXISTS idx_debates_status ON debates(status);
CREATE INDEX IF NOT EXISTS idx_debates_date ON debates(date);

CREATE TABLE IF NOT EXISTS debate_speakers (
    id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
    debate_id   TEXT NOT NULL REFERENCES debates(id) ON DELETE CASCADE,
    name        TEXT NOT NULL,
    party       TEXT NOT NULL DEFAULT '',
    riding      TEXT NOT NULL DEFAULT '',
    external_id TEXT NOT NULL DEFAULT '',
    metadata    JSONB NOT NULL DEFAULT '{}',
    UNIQUE (debate_id, name)
);

CREATE TABLE IF NOT EXISTS debate_contributions (
    id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
    debate_id      TEXT NOT NULL REFERENCES debates(id) ON DELETE CASCADE,
    speaker_id     TEXT NOT NULL DEFAULT '',
    speaker_name   TEXT NOT NULL DEFAULT '',
    text           TEXT NOT NULL,
    text_fr        TEXT NOT NULL DEFAULT '',
    sequence_order INTEGER NOT NULL DEFAULT 0,
    start_time     DOUBLE PRECISION NOT NULL DEFAULT 0,
    end_time       DOUBLE PRECISION NOT NULL DEFAULT 0,
    metadata       JSONB NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_contributions_debate ON debate_contributions(debate_id, sequence_order);

CREATE TABLE IF NOT EXISTS debate_topics (
    id                TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
    debate_id         TEXT NOT NULL REFERENCES debates(id) ON DELETE CASCADE,
    topic_title       TEXT NOT NULL,
    topic_external_id TEXT NOT NULL DEFAULT '',
    section           TEXT NOT NULL DEFAULT '',
    speech_count      INTEGER NOT NULL DEFAULT 0,
    speaker_count     INTEGER NOT NULL DEFAULT 0,
    parties_involved  JSONB NOT NULL DEFAULT '[]',
    sequence_order    INTEGER NOT NULL DEFAULT 0,
    UNIQUE (debate_id, topic_title)
);

CREATE TABLE IF NOT EXISTS debate_transcripts (
    id                      TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
    debate_id               TEXT NOT NULL REFERENCES debates(id) ON DELETE CASCADE,
    language                TEXT NOT NULL DEFAULT 'en',
    raw_text                TEXT NOT NULL DEFAULT '',
    segments                JSONB NOT NULL DEFAULT '[]',
    whisper_model           TEXT NOT NULL DEFAULT '',
    avg_confidence          DOUBLE PRECISION NOT NULL DEFAULT 0,
    word_count              INTEGER NOT NULL DEFAULT 0,
    processing_time_seconds INTEGER NOT NULL DEFAULT 0,
    created_at              TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_transcripts_debate ON debate_transcripts(debate_id);

CREATE TABLE IF NOT EXISTS debate_media_assets (
    id               TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
    debate_id        TEXT NOT NULL REFERENCES debates(id) ON DELETE CASCADE,
    media_type       TEXT NOT NULL DEFAULT 'audio',
    source           TEXT NOT NULL DEFAULT '',
    original_url     TEXT NOT NULL DEFAULT '',
    local_path       TEXT NOT NULL DEFAULT '',
    file_size_bytes  BIGINT NOT NULL DEFAULT 0,
    duration_seconds INTEGER NOT NULL DEFAULT 0,
    language         TEXT NOT NULL DEFAULT '',
    status           TEXT NOT NULL DEFAULT 'ready',
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS debate_votes (
    id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
    debate_id   TEXT NOT NULL REFERENCES debates(id) ON DELETE CASCADE,
    motion_text TEXT NOT NULL DEFAULT '',
    bill_number TEXT NOT NULL DEFAULT '',
    result      TEXT NOT NULL DEFAULT '',
    yea_count   INTEGER NOT NULL DEFAULT 0,
    nay_count   INTEGER NOT NULL DEFAULT 0,
    abstentions INTEGER NOT NULL DEFAULT 0,
    external_id TEXT NOT NULL DEFAULT '',
    metadata    JSONB NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS debate_summaries (
    id               TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
    debate_id        TEXT NOT NULL REFERENCES debates(id) ON DELETE CASCADE,
    language         TEXT NOT NULL DEFAULT 'en',
    summary_text     TEXT NOT NULL DEFAULT '',
    key_participants JSONB NOT NULL DEFAULT '[]',
    key_issues       JSONB NOT NULL DEFAULT '[]',
    outcome_text     TEXT NOT NULL DEFAULT '',
    llm_model        TEXT NOT NULL DEFAULT '',
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (debate_id, language)
);

CREATE TABLE IF NOT EXISTS debate_categories (
    id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
    debate_id  TEXT NOT NULL REFERENCES debates(id) ON DELETE CASCADE,
    topic_slug TEXT NOT NULL,
    confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
    is_primary BOOLEAN NOT NULL DEFAULT false
);

CREATE TABLE IF NOT EXISTS debate_posts (
    id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
    debate_id     TEXT NOT NULL REFERENCES debates(id) ON DELETE CASCADE,
    forum_post_id TEXT NOT NULL DEFAULT '',
    forum_url     TEXT NOT NULL DEFAULT '',
    title         TEXT NOT NULL DEFAULT '',
    topic_slug    TEXT NOT NULL DEFAULT '',
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
`
