package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// UpsertSummary stores a summary, replacing any previous one for the same
// (debate, language). Summaries are regenerated on retrigger, so the upsert
// keeps the table single-rowed per language.
func (s *Store) UpsertSummary(ctx context.Context, sum *Summary) error {
	participantsJSON, err := json.Marshal(emptySlice(sum.KeyParticipants))
	if err != nil {
		return fmt.Errorf("store: marshal key_participants: %w", err)
	}
	issuesJSON, err := json.Marshal(emptySlice(sum.KeyIssues))
	if err != nil {
		return fmt.Errorf("store: marshal key_issues: %w", err)
	}

	const query = `
		INSERT INTO debate_summaries (
			debate_id, language, summary_text, key_participants, key_issues,
			outcome_text, llm_model
		) VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (debate_id, language) DO UPDATE SET
			summary_text = EXCLUDED.summary_text,
			key_participants = EXCLUDED.key_participants,
			key_issues = EXCLUDED.key_issues,
			outcome_text = EXCLUDED.outcome_text,
			llm_model = EXCLUDED.llm_model
		RETURNING id, created_at`

	err = s.db.QueryRow(ctx, query,
		sum.DebateID, sum.Language, sum.SummaryText, participantsJSON, issuesJSON,
		sum.OutcomeText, sum.LLMModel,
	).Scan(&sum.ID, &sum.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: upsert summary %s/%s: %w", sum.DebateID, sum.Language, err)
	}
	return nil
}

// SummaryByLanguage returns the debate's summary in the given language.
func (s *Store) SummaryByLanguage(ctx context.Context, debateID, language string) (*Summary, error) {
	const query = `
		SELECT id, debate_id, language, summary_text, key_participants, key_issues,
		       outcome_text, llm_model, created_at
		FROM debate_summaries WHERE debate_id = $1 AND language = $2`

	sum := &Summary{}
	var participantsJSON, issuesJSON []byte
	err := s.db.QueryRow(ctx, query, debateID, language).Scan(
		&sum.ID, &sum.DebateID, &sum.Language, &sum.SummaryText,
		&participantsJSON, &issuesJSON, &sum.OutcomeText, &sum.LLMModel, &sum.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("store: summary %s/%s: %w", debateID, language, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: summary by language: %w", err)
	}
	if err := json.Unmarshal(participantsJSON, &sum.KeyParticipants); err != nil {
		return nil, fmt.Errorf("store: unmarshal key_participants: %w", err)
	}
	if err := json.Unmarshal(issuesJSON, &sum.KeyIssues); err != nil {
		return nil, fmt.Errorf("store: unmarshal key_issues: %w", err)
	}
	return sum, nil
}

// ReplaceCategories deletes the debate's existing categories and inserts the
// new set. Categorisation is recomputed wholesale, never patched.
func (s *Store) ReplaceCategories(ctx context.Context, debateID string, cats []*Category) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM debate_categories WHERE debate_id = $1`, debateID); err != nil {
		return fmt.Errorf("store: clear categories: %w", err)
	}

	const query = `
		INSERT INTO debate_categories (debate_id, topic_slug, confidence, is_primary)
		VALUES ($1,$2,$3,$4)
		RETURNING id`

	for _, c := range cats {
		if err := s.db.QueryRow(ctx, query, debateID, c.TopicSlug, c.Confidence, c.IsPrimary).Scan(&c.ID); err != nil {
			return fmt.Errorf("store: insert category %q: %w", c.TopicSlug, err)
		}
	}
	return nil
}

// PrimaryCategory returns the debate's primary category, or [ErrNotFound].
func (s *Store) PrimaryCategory(ctx context.Context, debateID string) (*Category, error) {
	const query = `
		SELECT id, debate_id, topic_slug, confidence, is_primary
		FROM debate_categories WHERE debate_id = $1 AND is_primary LIMIT 1`

	c := &Category{}
	err := s.db.QueryRow(ctx, query, debateID).
		Scan(&c.ID, &c.DebateID, &c.TopicSlug, &c.Confidence, &c.IsPrimary)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("store: primary category for %q: %w", debateID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: primary category: %w", err)
	}
	return c, nil
}

// InsertPost records the forum post created for a debate.
func (s *Store) InsertPost(ctx context.Context, p *Post) error {
	const query = `
		INSERT INTO debate_posts (debate_id, forum_post_id, forum_url, title, topic_slug)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING id, created_at`

	err := s.db.QueryRow(ctx, query,
		p.DebateID, p.ForumPostID, p.ForumURL, p.Title, p.TopicSlug,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: insert post: %w", err)
	}
	return nil
}

// PostByDebate returns the forum post record for a debate, or [ErrNotFound].
func (s *Store) PostByDebate(ctx context.Context, debateID string) (*Post, error) {
	const query = `
		SELECT id, debate_id, forum_post_id, forum_url, title, topic_slug, created_at
		FROM debate_posts WHERE debate_id = $1 ORDER BY created_at DESC LIMIT 1`

	p := &Post{}
	err := s.db.QueryRow(ctx, query, debateID).Scan(
		&p.ID, &p.DebateID, &p.ForumPostID, &p.ForumURL, &p.Title, &p.TopicSlug, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("store: post for debate %q: %w", debateID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: post by debate: %w", err)
	}
	return p, nil
}
