package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// maxRetryPrefix is prepended to the final error message when a debate's
// retry budget is exhausted.
const maxRetryPrefix = "Max retries exceeded. Last error: "

// UpsertLegislature inserts the legislature or refreshes its name/level if
// the code already exists, and returns the stored record.
func (s *Store) UpsertLegislature(ctx context.Context, leg *Legislature) (*Legislature, error) {
	metaJSON, err := json.Marshal(emptyMap(leg.Metadata))
	if err != nil {
		return nil, fmt.Errorf("store: marshal legislature metadata: %w", err)
	}

	const query = `
		INSERT INTO legislatures (code, name, government_level, metadata)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (code) DO UPDATE SET
			name = EXCLUDED.name,
			government_level = EXCLUDED.government_level
		RETURNING id, created_at`

	out := *leg
	err = s.db.QueryRow(ctx, query, leg.Code, leg.Name, leg.GovernmentLevel, metaJSON).
		Scan(&out.ID, &out.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("store: upsert legislature %q: %w", leg.Code, err)
	}
	return &out, nil
}

// LegislatureByCode returns the legislature with the given code.
func (s *Store) LegislatureByCode(ctx context.Context, code string) (*Legislature, error) {
	const query = `
		SELECT id, code, name, government_level, metadata, created_at
		FROM legislatures WHERE code = $1`

	leg := &Legislature{}
	var metaJSON []byte
	err := s.db.QueryRow(ctx, query, code).
		Scan(&leg.ID, &leg.Code, &leg.Name, &leg.GovernmentLevel, &metaJSON, &leg.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("store: legislature %q: %w", code, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: legislature by code: %w", err)
	}
	if err := json.Unmarshal(metaJSON, &leg.Metadata); err != nil {
		return nil, fmt.Errorf("store: unmarshal legislature metadata: %w", err)
	}
	return leg, nil
}

// CreateDebate inserts a new debate. Returns [ErrConflict] when a debate with
// the same (legislature_id, external_id) already exists.
func (s *Store) CreateDebate(ctx context.Context, d *Debate) error {
	srcJSON, err := json.Marshal(emptySlice(d.SourceURLs))
	if err != nil {
		return fmt.Errorf("store: marshal source_urls: %w", err)
	}
	metaJSON, err := json.Marshal(emptyMap(d.Metadata))
	if err != nil {
		return fmt.Errorf("store: marshal metadata: %w", err)
	}
	if d.Status == "" {
		d.Status = StatusDetected
	}
	if d.SessionType == "" {
		d.SessionType = SessionHouse
	}

	const query = `
		INSERT INTO debates (
			legislature_id, external_id, title, date, session_type, status,
			video_url, hansard_url, source_urls, metadata, duration_seconds
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING id, created_at, updated_at`

	err = s.db.QueryRow(ctx, query,
		d.LegislatureID, d.ExternalID, d.Title, d.Date, d.SessionType, d.Status,
		d.VideoURL, d.HansardURL, srcJSON, metaJSON, d.DurationSeconds,
	).Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("store: debate %s/%s: %w", d.LegislatureID, d.ExternalID, ErrConflict)
		}
		return fmt.Errorf("store: create debate: %w", err)
	}
	return nil
}

const debateColumns = `
	d.id, d.legislature_id, d.external_id, d.title, d.date, d.session_type,
	d.status, d.video_url, d.hansard_url, d.source_urls, d.metadata,
	d.duration_seconds, d.error_message, d.retry_count, d.created_at, d.updated_at,
	l.id, l.code, l.name, l.government_level`

// scanDebate reads one joined debates+legislatures row.
func scanDebate(row pgx.Row) (*Debate, error) {
	d := &Debate{Legislature: &Legislature{}}
	var srcJSON, metaJSON []byte
	err := row.Scan(
		&d.ID, &d.LegislatureID, &d.ExternalID, &d.Title, &d.Date, &d.SessionType,
		&d.Status, &d.VideoURL, &d.HansardURL, &srcJSON, &metaJSON,
		&d.DurationSeconds, &d.ErrorMessage, &d.RetryCount, &d.CreatedAt, &d.UpdatedAt,
		&d.Legislature.ID, &d.Legislature.Code, &d.Legislature.Name, &d.Legislature.GovernmentLevel,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(srcJSON, &d.SourceURLs); err != nil {
		return nil, fmt.Errorf("unmarshal source_urls: %w", err)
	}
	if err := json.Unmarshal(metaJSON, &d.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return d, nil
}

// DebateByID returns the debate with its legislature joined.
func (s *Store) DebateByID(ctx context.Context, id string) (*Debate, error) {
	query := `
		SELECT ` + debateColumns + `
		FROM debates d JOIN legislatures l ON l.id = d.legislature_id
		WHERE d.id = $1`

	d, err := scanDebate(s.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("store: debate %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: debate by id: %w", err)
	}
	return d, nil
}

// DebateByExternalID returns the debate identified by (legislature, external
// ID) — the poller's idempotency key.
func (s *Store) DebateByExternalID(ctx context.Context, legislatureID, externalID string) (*Debate, error) {
	query := `
		SELECT ` + debateColumns + `
		FROM debates d JOIN legislatures l ON l.id = d.legislature_id
		WHERE d.legislature_id = $1 AND d.external_id = $2`

	d, err := scanDebate(s.db.QueryRow(ctx, query, legislatureID, externalID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("store: debate %s/%s: %w", legislatureID, externalID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: debate by external id: %w", err)
	}
	return d, nil
}

// UpdateDebateStatus moves the debate to the given status. Entering a working
// status clears the error message a failed earlier attempt left behind, so a
// recovered debate does not reach published still wearing a stale error.
// Parking in [StatusError] keeps the message recorded by
// [Store.MarkDebateError].
func (s *Store) UpdateDebateStatus(ctx context.Context, debateID string, status Status) error {
	const query = `
		UPDATE debates
		SET status = $2,
		    error_message = CASE WHEN $2 = 'error' THEN error_message ELSE '' END,
		    updated_at = now()
		WHERE id = $1`
	tag, err := s.db.Exec(ctx, query, debateID, status)
	if err != nil {
		return fmt.Errorf("store: update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("store: debate %q: %w", debateID, ErrNotFound)
	}
	return nil
}

// MarkDebateError increments the debate's retry counter and records msg.
// It returns true when the retry budget still has room — the caller should
// re-queue the stage after its backoff. When the budget is exhausted the
// debate is parked in the error status with the final message prefixed by
// "Max retries exceeded. Last error: ", and false is returned.
func (s *Store) MarkDebateError(ctx context.Context, debateID, msg string) (bool, error) {
	const bump = `
		UPDATE debates SET retry_count = retry_count + 1, updated_at = now()
		WHERE id = $1
		RETURNING retry_count`

	var retries int
	err := s.db.QueryRow(ctx, bump, debateID).Scan(&retries)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, fmt.Errorf("store: debate %q: %w", debateID, ErrNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("store: mark error: %w", err)
	}

	if retries > s.maxRetries {
		const park = `
			UPDATE debates SET status = $2, error_message = $3, updated_at = now()
			WHERE id = $1`
		if _, err := s.db.Exec(ctx, park, debateID, StatusError, maxRetryPrefix+msg); err != nil {
			return false, fmt.Errorf("store: park errored debate: %w", err)
		}
		return false, nil
	}

	const record = `UPDATE debates SET error_message = $2, updated_at = now() WHERE id = $1`
	if _, err := s.db.Exec(ctx, record, debateID, msg); err != nil {
		return false, fmt.Errorf("store: record error message: %w", err)
	}
	return true, nil
}

// ResetDebateForRetrigger moves the debate back to the given stage status and
// clears the stored error message. The retry counter is deliberately left
// intact so a repeatedly failing debate cannot be retriggered forever.
func (s *Store) ResetDebateForRetrigger(ctx context.Context, debateID string, status Status) error {
	const query = `
		UPDATE debates SET status = $2, error_message = '', updated_at = now()
		WHERE id = $1`
	tag, err := s.db.Exec(ctx, query, debateID, status)
	if err != nil {
		return fmt.Errorf("store: reset for retrigger: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("store: debate %q: %w", debateID, ErrNotFound)
	}
	return nil
}

// DetectedFields carries the refreshed values applied when a scheduled debate
// is observed again by a poller with real source material.
type DetectedFields struct {
	Title      string
	VideoURL   string
	HansardURL string
	SourceURLs []SourceURL
	Metadata   map[string]any
}

// UpdateDebateDetected refreshes a scheduled debate's title, URLs and
// metadata and moves it to the detected status.
func (s *Store) UpdateDebateDetected(ctx context.Context, debateID string, f DetectedFields) error {
	srcJSON, err := json.Marshal(emptySlice(f.SourceURLs))
	if err != nil {
		return fmt.Errorf("store: marshal source_urls: %w", err)
	}
	metaJSON, err := json.Marshal(emptyMap(f.Metadata))
	if err != nil {
		return fmt.Errorf("store: marshal metadata: %w", err)
	}

	const query = `
		UPDATE debates SET
			status = $2, title = $3, video_url = $4, hansard_url = $5,
			source_urls = $6, metadata = $7, updated_at = now()
		WHERE id = $1`
	tag, err := s.db.Exec(ctx, query, debateID, StatusDetected,
		f.Title, f.VideoURL, f.HansardURL, srcJSON, metaJSON)
	if err != nil {
		return fmt.Errorf("store: update detected: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("store: debate %q: %w", debateID, ErrNotFound)
	}
	return nil
}

// UpdateDebateDuration records the sitting length once media probing learns it.
func (s *Store) UpdateDebateDuration(ctx context.Context, debateID string, seconds int) error {
	const query = `UPDATE debates SET duration_seconds = $2, updated_at = now() WHERE id = $1`
	if _, err := s.db.Exec(ctx, query, debateID, seconds); err != nil {
		return fmt.Errorf("store: update duration: %w", err)
	}
	return nil
}

// MergeDebateMetadata folds the given keys into the debate's metadata JSONB.
func (s *Store) MergeDebateMetadata(ctx context.Context, debateID string, patch map[string]any) error {
	patchJSON, err := json.Marshal(emptyMap(patch))
	if err != nil {
		return fmt.Errorf("store: marshal metadata patch: %w", err)
	}
	const query = `UPDATE debates SET metadata = metadata || $2::jsonb, updated_at = now() WHERE id = $1`
	if _, err := s.db.Exec(ctx, query, debateID, patchJSON); err != nil {
		return fmt.Errorf("store: merge metadata: %w", err)
	}
	return nil
}

// ListFilter narrows ListDebates results. Zero values mean "no filter".
type ListFilter struct {
	Status          Status
	LegislatureCode string
	Limit           int
}

// ListDebates returns debates newest-first, optionally filtered by status and
// legislature code. The default limit is 50.
func (s *Store) ListDebates(ctx context.Context, f ListFilter) ([]*Debate, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT ` + debateColumns + `
		FROM debates d JOIN legislatures l ON l.id = d.legislature_id
		WHERE ($1 = '' OR d.status = $1)
		  AND ($2 = '' OR l.code = $2)
		ORDER BY d.created_at DESC
		LIMIT $3`

	rows, err := s.db.Query(ctx, query, string(f.Status), f.LegislatureCode, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list debates: %w", err)
	}
	defer rows.Close()

	var out []*Debate
	for rows.Next() {
		d, err := scanDebate(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan debate: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// CountDebatesByStatus returns the number of debates in each status.
func (s *Store) CountDebatesByStatus(ctx context.Context) (map[Status]int, error) {
	const query = `SELECT status, count(*) FROM debates GROUP BY status`
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: count by status: %w", err)
	}
	defer rows.Close()

	out := make(map[Status]int)
	for rows.Next() {
		var (
			st Status
			n  int
		)
		if err := rows.Scan(&st, &n); err != nil {
			return nil, fmt.Errorf("store: scan status count: %w", err)
		}
		out[st] = n
	}
	return out, rows.Err()
}

// RecentErrors returns the most recently errored debates, newest first.
func (s *Store) RecentErrors(ctx context.Context, limit int) ([]ErrorRow, error) {
	if limit <= 0 {
		limit = 10
	}
	const query = `
		SELECT id, title, error_message, updated_at
		FROM debates WHERE status = $1
		ORDER BY updated_at DESC LIMIT $2`

	rows, err := s.db.Query(ctx, query, StatusError, limit)
	if err != nil {
		return nil, fmt.Errorf("store: recent errors: %w", err)
	}
	defer rows.Close()

	var out []ErrorRow
	for rows.Next() {
		var e ErrorRow
		if err := rows.Scan(&e.DebateID, &e.Title, &e.ErrorMessage, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: scan error row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// DebatesDetectedSince returns detected debates whose sitting date falls on or
// after cutoff. Used by the auto-trigger rule (sitting within the last 2 days).
func (s *Store) DebatesDetectedSince(ctx context.Context, cutoff time.Time) ([]*Debate, error) {
	query := `
		SELECT ` + debateColumns + `
		FROM debates d JOIN legislatures l ON l.id = d.legislature_id
		WHERE d.status = $1 AND d.date >= $2
		ORDER BY d.date`

	rows, err := s.db.Query(ctx, query, StatusDetected, cutoff)
	if err != nil {
		return nil, fmt.Errorf("store: detected since: %w", err)
	}
	defer rows.Close()

	var out []*Debate
	for rows.Next() {
		d, err := scanDebate(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan debate: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
