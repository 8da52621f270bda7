package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/maplecivic/hansardflow/internal/store"
)

// CreateTestDebate records a throwaway debate around the given video URL and
// starts the audio-first chain on it. Used to exercise download, recognition
// and publishing end to end without waiting for a real sitting.
func (p *Pipeline) CreateTestDebate(ctx context.Context, videoURL, title string) (string, error) {
	leg, err := p.store.LegislatureByCode(ctx, "ON")
	if err != nil {
		return "", fmt.Errorf("pipeline: test debate: %w", err)
	}
	if title == "" {
		title = "Test Debate"
	}

	now := p.now()
	debate := &store.Debate{
		LegislatureID: leg.ID,
		ExternalID:    fmt.Sprintf("test-%d", now.Unix()),
		Title:         title,
		Date:          now.Truncate(24 * time.Hour),
		SessionType:   store.SessionHouse,
		Status:        store.StatusDetected,
		VideoURL:      videoURL,
		SourceURLs:    []store.SourceURL{{URL: videoURL, Type: "video", Label: "manual test"}},
		Metadata:      map[string]any{"test": true, "source": "manual_test"},
	}
	if err := p.store.CreateDebate(ctx, debate); err != nil {
		return "", fmt.Errorf("pipeline: create test debate: %w", err)
	}
	if err := p.TriggerDebate(ctx, debate.ID, store.StatusDetected); err != nil {
		return "", err
	}
	p.log.Info("test debate queued", "debate_id", debate.ID, "video_url", videoURL)
	return debate.ID, nil
}

// CreateTestHansard records a throwaway federal debate for the given sitting
// date and starts the transcript-first chain, scraping the real published
// Hansard for that day.
func (p *Pipeline) CreateTestHansard(ctx context.Context, sittingDate, title string) (string, error) {
	date, err := time.Parse("2006-01-02", sittingDate)
	if err != nil {
		return "", fmt.Errorf("pipeline: test hansard: bad date %q: %w", sittingDate, err)
	}
	leg, err := p.store.LegislatureByCode(ctx, "CA")
	if err != nil {
		return "", fmt.Errorf("pipeline: test hansard: %w", err)
	}
	if title == "" {
		title = "Test Hansard Sitting " + sittingDate
	}

	debate := &store.Debate{
		LegislatureID: leg.ID,
		ExternalID:    "test-hansard-" + sittingDate,
		Title:         title,
		Date:          date,
		SessionType:   store.SessionHouse,
		Status:        store.StatusDetected,
		Metadata:      map[string]any{"test": true, "source": "manual_test"},
	}
	if err := p.store.CreateDebate(ctx, debate); err != nil {
		return "", fmt.Errorf("pipeline: create test hansard debate: %w", err)
	}
	if err := p.TriggerDebate(ctx, debate.ID, store.StatusDetected); err != nil {
		return "", err
	}
	p.log.Info("test hansard queued", "debate_id", debate.ID, "sitting_date", sittingDate)
	return debate.ID, nil
}
