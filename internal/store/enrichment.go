package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// UpsertSpeaker inserts the speaker or refreshes their party/riding/metadata
// if the (debate, name) pair already exists.
func (s *Store) UpsertSpeaker(ctx context.Context, sp *Speaker) error {
	metaJSON, err := json.Marshal(emptyMap(sp.Metadata))
	if err != nil {
		return fmt.Errorf("store: marshal speaker metadata: %w", err)
	}

	const query = `
		INSERT INTO debate_speakers (debate_id, name, party, riding, external_id, metadata)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (debate_id, name) DO UPDATE SET
			party = EXCLUDED.party,
			riding = EXCLUDED.riding,
			external_id = EXCLUDED.external_id,
			metadata = EXCLUDED.metadata
		RETURNING id`

	err = s.db.QueryRow(ctx, query,
		sp.DebateID, sp.Name, sp.Party, sp.Riding, sp.ExternalID, metaJSON,
	).Scan(&sp.ID)
	if err != nil {
		return fmt.Errorf("store: upsert speaker %q: %w", sp.Name, err)
	}
	return nil
}

// SpeakersByDebate returns all speakers recorded for the debate.
func (s *Store) SpeakersByDebate(ctx context.Context, debateID string) ([]*Speaker, error) {
	const query = `
		SELECT id, debate_id, name, party, riding, external_id, metadata
		FROM debate_speakers WHERE debate_id = $1 ORDER BY name`

	rows, err := s.db.Query(ctx, query, debateID)
	if err != nil {
		return nil, fmt.Errorf("store: speakers by debate: %w", err)
	}
	defer rows.Close()

	var out []*Speaker
	for rows.Next() {
		sp := &Speaker{}
		var metaJSON []byte
		if err := rows.Scan(&sp.ID, &sp.DebateID, &sp.Name, &sp.Party, &sp.Riding, &sp.ExternalID, &metaJSON); err != nil {
			return nil, fmt.Errorf("store: scan speaker: %w", err)
		}
		if err := json.Unmarshal(metaJSON, &sp.Metadata); err != nil {
			return nil, fmt.Errorf("store: unmarshal speaker metadata: %w", err)
		}
		out = append(out, sp)
	}
	return out, rows.Err()
}

// ReplaceContributions stores the given contributions in order, dropping any
// rows a previous run stored for the debate. A stage retry or an admin
// retrigger rebuilds the whole set, so replacing keeps sequence_order dense.
func (s *Store) ReplaceContributions(ctx context.Context, contribs []*Contribution) error {
	if len(contribs) == 0 {
		return nil
	}
	if _, err := s.db.Exec(ctx,
		`DELETE FROM debate_contributions WHERE debate_id = $1`, contribs[0].DebateID); err != nil {
		return fmt.Errorf("store: clear contributions: %w", err)
	}

	const query = `
		INSERT INTO debate_contributions (
			debate_id, speaker_id, speaker_name, text, text_fr,
			sequence_order, start_time, end_time, metadata
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING id`

	for _, c := range contribs {
		metaJSON, err := json.Marshal(emptyMap(c.Metadata))
		if err != nil {
			return fmt.Errorf("store: marshal contribution metadata: %w", err)
		}
		err = s.db.QueryRow(ctx, query,
			c.DebateID, c.SpeakerID, c.SpeakerName, c.Text, c.TextFR,
			c.SequenceOrder, c.StartTime, c.EndTime, metaJSON,
		).Scan(&c.ID)
		if err != nil {
			return fmt.Errorf("store: insert contribution %d: %w", c.SequenceOrder, err)
		}
	}
	return nil
}

// ContributionsByDebate returns all contributions in sequence order.
func (s *Store) ContributionsByDebate(ctx context.Context, debateID string) ([]*Contribution, error) {
	const query = `
		SELECT id, debate_id, speaker_id, speaker_name, text, text_fr,
		       sequence_order, start_time, end_time, metadata
		FROM debate_contributions WHERE debate_id = $1 ORDER BY sequence_order`

	rows, err := s.db.Query(ctx, query, debateID)
	if err != nil {
		return nil, fmt.Errorf("store: contributions by debate: %w", err)
	}
	defer rows.Close()

	var out []*Contribution
	for rows.Next() {
		c := &Contribution{}
		var metaJSON []byte
		err := rows.Scan(&c.ID, &c.DebateID, &c.SpeakerID, &c.SpeakerName, &c.Text, &c.TextFR,
			&c.SequenceOrder, &c.StartTime, &c.EndTime, &metaJSON)
		if err != nil {
			return nil, fmt.Errorf("store: scan contribution: %w", err)
		}
		if err := json.Unmarshal(metaJSON, &c.Metadata); err != nil {
			return nil, fmt.Errorf("store: unmarshal contribution metadata: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpsertTopic inserts the topic section or refreshes its counters when the
// (debate, title) pair already exists.
func (s *Store) UpsertTopic(ctx context.Context, t *Topic) error {
	partiesJSON, err := json.Marshal(emptySlice(t.PartiesInvolved))
	if err != nil {
		return fmt.Errorf("store: marshal parties: %w", err)
	}

	const query = `
		INSERT INTO debate_topics (
			debate_id, topic_title, topic_external_id, section,
			speech_count, speaker_count, parties_involved, sequence_order
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (debate_id, topic_title) DO UPDATE SET
			speech_count = EXCLUDED.speech_count,
			speaker_count = EXCLUDED.speaker_count,
			parties_involved = EXCLUDED.parties_involved,
			sequence_order = EXCLUDED.sequence_order
		RETURNING id`

	err = s.db.QueryRow(ctx, query,
		t.DebateID, t.TopicTitle, t.TopicExternalID, t.Section,
		t.SpeechCount, t.SpeakerCount, partiesJSON, t.SequenceOrder,
	).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("store: upsert topic %q: %w", t.TopicTitle, err)
	}
	return nil
}

// TopicsByDebate returns the debate's topic sections in sequence order.
func (s *Store) TopicsByDebate(ctx context.Context, debateID string) ([]*Topic, error) {
	const query = `
		SELECT id, debate_id, topic_title, topic_external_id, section,
		       speech_count, speaker_count, parties_involved, sequence_order
		FROM debate_topics WHERE debate_id = $1 ORDER BY sequence_order`

	rows, err := s.db.Query(ctx, query, debateID)
	if err != nil {
		return nil, fmt.Errorf("store: topics by debate: %w", err)
	}
	defer rows.Close()

	var out []*Topic
	for rows.Next() {
		t := &Topic{}
		var partiesJSON []byte
		err := rows.Scan(&t.ID, &t.DebateID, &t.TopicTitle, &t.TopicExternalID, &t.Section,
			&t.SpeechCount, &t.SpeakerCount, &partiesJSON, &t.SequenceOrder)
		if err != nil {
			return nil, fmt.Errorf("store: scan topic: %w", err)
		}
		if err := json.Unmarshal(partiesJSON, &t.PartiesInvolved); err != nil {
			return nil, fmt.Errorf("store: unmarshal parties: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ReplaceTranscript stores one recognition result, dropping any earlier
// transcript for the same (debate, language) so a transcribe re-run does not
// leave duplicates behind.
func (s *Store) ReplaceTranscript(ctx context.Context, t *Transcript) error {
	segJSON, err := json.Marshal(emptySlice(t.Segments))
	if err != nil {
		return fmt.Errorf("store: marshal segments: %w", err)
	}

	if _, err := s.db.Exec(ctx,
		`DELETE FROM debate_transcripts WHERE debate_id = $1 AND language = $2`,
		t.DebateID, t.Language); err != nil {
		return fmt.Errorf("store: clear transcript %s/%s: %w", t.DebateID, t.Language, err)
	}

	const query = `
		INSERT INTO debate_transcripts (
			debate_id, language, raw_text, segments, whisper_model,
			avg_confidence, word_count, processing_time_seconds
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING id, created_at`

	err = s.db.QueryRow(ctx, query,
		t.DebateID, t.Language, t.RawText, segJSON, t.Model,
		t.AvgConfidence, t.WordCount, t.ProcessingTimeSecs,
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: insert transcript: %w", err)
	}
	return nil
}

// TranscriptsByDebate returns all stored transcripts for the debate.
func (s *Store) TranscriptsByDebate(ctx context.Context, debateID string) ([]*Transcript, error) {
	const query = `
		SELECT id, debate_id, language, raw_text, segments, whisper_model,
		       avg_confidence, word_count, processing_time_seconds, created_at
		FROM debate_transcripts WHERE debate_id = $1 ORDER BY created_at`

	rows, err := s.db.Query(ctx, query, debateID)
	if err != nil {
		return nil, fmt.Errorf("store: transcripts by debate: %w", err)
	}
	defer rows.Close()

	var out []*Transcript
	for rows.Next() {
		t := &Transcript{}
		var segJSON []byte
		err := rows.Scan(&t.ID, &t.DebateID, &t.Language, &t.RawText, &segJSON, &t.Model,
			&t.AvgConfidence, &t.WordCount, &t.ProcessingTimeSecs, &t.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("store: scan transcript: %w", err)
		}
		if err := json.Unmarshal(segJSON, &t.Segments); err != nil {
			return nil, fmt.Errorf("store: unmarshal segments: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// InsertMediaAsset records one downloaded media artefact.
func (s *Store) InsertMediaAsset(ctx context.Context, m *MediaAsset) error {
	const query = `
		INSERT INTO debate_media_assets (
			debate_id, media_type, source, original_url, local_path,
			file_size_bytes, duration_seconds, language, status
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING id, created_at`

	err := s.db.QueryRow(ctx, query,
		m.DebateID, m.MediaType, m.Source, m.OriginalURL, m.LocalPath,
		m.FileSizeBytes, m.DurationSeconds, m.Language, m.Status,
	).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: insert media asset: %w", err)
	}
	return nil
}

// LatestReadyMediaAsset returns the newest asset in the ready status for the
// debate, or [ErrNotFound] when none exists.
func (s *Store) LatestReadyMediaAsset(ctx context.Context, debateID string) (*MediaAsset, error) {
	const query = `
		SELECT id, debate_id, media_type, source, original_url, local_path,
		       file_size_bytes, duration_seconds, language, status, created_at
		FROM debate_media_assets
		WHERE debate_id = $1 AND status = 'ready'
		ORDER BY created_at DESC LIMIT 1`

	m := &MediaAsset{}
	err := s.db.QueryRow(ctx, query, debateID).Scan(
		&m.ID, &m.DebateID, &m.MediaType, &m.Source, &m.OriginalURL, &m.LocalPath,
		&m.FileSizeBytes, &m.DurationSeconds, &m.Language, &m.Status, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("store: ready media for debate %q: %w", debateID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: latest ready media: %w", err)
	}
	return m, nil
}

// ReplaceVotes stores the extracted divisions for a debate, dropping the
// previous extraction first. Divisions are recomputed wholesale on each
// process run.
func (s *Store) ReplaceVotes(ctx context.Context, votes []*Vote) error {
	if len(votes) == 0 {
		return nil
	}
	if _, err := s.db.Exec(ctx,
		`DELETE FROM debate_votes WHERE debate_id = $1`, votes[0].DebateID); err != nil {
		return fmt.Errorf("store: clear votes: %w", err)
	}

	const query = `
		INSERT INTO debate_votes (
			debate_id, motion_text, bill_number, result,
			yea_count, nay_count, abstentions, external_id, metadata
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING id`

	for _, v := range votes {
		metaJSON, err := json.Marshal(emptyMap(v.Metadata))
		if err != nil {
			return fmt.Errorf("store: marshal vote metadata: %w", err)
		}
		err = s.db.QueryRow(ctx, query,
			v.DebateID, v.MotionText, v.BillNumber, v.Result,
			v.YeaCount, v.NayCount, v.Abstentions, v.ExternalID, metaJSON,
		).Scan(&v.ID)
		if err != nil {
			return fmt.Errorf("store: insert vote: %w", err)
		}
	}
	return nil
}

// VotesByDebate returns all recorded divisions for the debate.
func (s *Store) VotesByDebate(ctx context.Context, debateID string) ([]*Vote, error) {
	const query = `
		SELECT id, debate_id, motion_text, bill_number, result,
		       yea_count, nay_count, abstentions, external_id, metadata
		FROM debate_votes WHERE debate_id = $1 ORDER BY id`

	rows, err := s.db.Query(ctx, query, debateID)
	if err != nil {
		return nil, fmt.Errorf("store: votes by debate: %w", err)
	}
	defer rows.Close()

	var out []*Vote
	for rows.Next() {
		v := &Vote{}
		var metaJSON []byte
		err := rows.Scan(&v.ID, &v.DebateID, &v.MotionText, &v.BillNumber, &v.Result,
			&v.YeaCount, &v.NayCount, &v.Abstentions, &v.ExternalID, &metaJSON)
		if err != nil {
			return nil, fmt.Errorf("store: scan vote: %w", err)
		}
		if err := json.Unmarshal(metaJSON, &v.Metadata); err != nil {
			return nil, fmt.Errorf("store: unmarshal vote metadata: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
