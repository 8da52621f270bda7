package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/maplecivic/hansardflow/internal/poller"
	"github.com/maplecivic/hansardflow/internal/store"
)

// PollResult summarises one source's poll run.
type PollResult struct {
	LegislatureCode string   `json:"legislature_code"`
	Found           int      `json:"debates_found"`
	New             int      `json:"debates_new"`
	Errors          []string `json:"errors"`
}

// PollAll polls every registered source concurrently. Individual source
// failures are reported in their result, never abort the run.
func (p *Pipeline) PollAll(ctx context.Context) []PollResult {
	codes := p.registry.Codes()
	results := make([]PollResult, len(codes))

	var g errgroup.Group
	var mu sync.Mutex
	for i, code := range codes {
		i, code := i, code
		g.Go(func() error {
			result, err := p.PollSource(ctx, code)
			if err != nil {
				p.log.Error("poll source failed", "legislature", code, "error", err)
				result = PollResult{LegislatureCode: code, Errors: []string{err.Error()}}
			}
			mu.Lock()
			results[i] = result
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	p.log.Info("poll complete", "sources", len(codes))
	return results
}

// PollSource polls one legislature, records any new debates and triggers
// their chains.
func (p *Pipeline) PollSource(ctx context.Context, code string) (PollResult, error) {
	result := PollResult{LegislatureCode: code}

	src, err := p.registry.Get(code)
	if err != nil {
		return result, fmt.Errorf("pipeline: poll: %w", err)
	}
	leg, err := p.store.LegislatureByCode(ctx, code)
	if err != nil {
		return result, fmt.Errorf("pipeline: poll: %w", err)
	}

	sittings, err := src.DetectSittings(ctx)
	if err != nil {
		return result, fmt.Errorf("pipeline: detect sittings for %s: %w", code, err)
	}
	result.Found = len(sittings)

	for _, sitting := range sittings {
		fresh, err := p.recordSitting(ctx, leg, sitting)
		if err != nil {
			p.log.Error("failed to record sitting", "legislature", code,
				"external_id", sitting.ExternalID, "error", err)
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		if fresh {
			result.New++
			p.metrics.RecordSittingPolled(ctx, code, "new")
		} else {
			p.metrics.RecordSittingPolled(ctx, code, "known")
		}
	}
	return result, nil
}

// recordSitting upserts one polled sitting. A sitting with an acquirable
// source is created as detected and auto-triggered; one without (a calendar
// hit whose documents have not appeared yet) is created as scheduled and
// waits. A sitting previously written as scheduled is promoted to detected,
// with the now-known source URLs, once a source exists.
func (p *Pipeline) recordSitting(ctx context.Context, leg *store.Legislature, sitting poller.Sitting) (bool, error) {
	date, err := time.Parse("2006-01-02", sitting.Date)
	if err != nil {
		return false, fmt.Errorf("pipeline: sitting %s has bad date %q: %w", sitting.ExternalID, sitting.Date, err)
	}
	status := sittingStatus(sitting)

	existing, err := p.store.DebateByExternalID(ctx, leg.ID, sitting.ExternalID)
	switch {
	case err == nil:
		if existing.Status != store.StatusScheduled || status != store.StatusDetected {
			return false, nil
		}
		f := store.DetectedFields{
			Title:      sitting.Title,
			VideoURL:   sitting.VideoURL,
			HansardURL: sitting.HansardURL,
			SourceURLs: sitting.SourceURLs,
			Metadata:   sitting.Metadata,
		}
		if err := p.store.UpdateDebateDetected(ctx, existing.ID, f); err != nil {
			return false, err
		}
		p.maybeTrigger(ctx, existing.ID, date)
		return true, nil

	case errors.Is(err, store.ErrNotFound):
		debate := &store.Debate{
			LegislatureID: leg.ID,
			ExternalID:    sitting.ExternalID,
			Title:         sitting.Title,
			Date:          date,
			SessionType:   sitting.SessionType,
			Status:        status,
			VideoURL:      sitting.VideoURL,
			HansardURL:    sitting.HansardURL,
			SourceURLs:    sitting.SourceURLs,
			Metadata:      sittingMetadata(sitting),
		}
		if err := p.store.CreateDebate(ctx, debate); err != nil {
			// A concurrent poll already wrote this sitting.
			if errors.Is(err, store.ErrConflict) {
				return false, nil
			}
			return false, err
		}
		p.log.Info("new debate recorded", "legislature", leg.Code,
			"external_id", sitting.ExternalID, "title", sitting.Title, "status", status)
		if status == store.StatusDetected {
			p.maybeTrigger(ctx, debate.ID, date)
		}
		return true, nil

	default:
		return false, err
	}
}

// sittingStatus resolves the status a polled sitting should be recorded in.
func sittingStatus(sitting poller.Sitting) store.Status {
	if sitting.Status != "" {
		return sitting.Status
	}
	if sitting.HansardURL == "" && sitting.VideoURL == "" && len(sitting.SourceURLs) == 0 {
		return store.StatusScheduled
	}
	return store.StatusDetected
}

// maybeTrigger starts the chain for a freshly detected debate when its
// sitting is within the auto-trigger window. Older sittings found by a deep
// poll wait for a manual retrigger.
func (p *Pipeline) maybeTrigger(ctx context.Context, debateID string, date time.Time) {
	if p.now().Sub(date) > p.cfg.AutoTriggerWindow {
		p.log.Info("sitting outside auto-trigger window, not starting chain",
			"debate_id", debateID, "date", date.Format("2006-01-02"))
		return
	}
	if err := p.TriggerDebate(ctx, debateID, store.StatusDetected); err != nil {
		p.log.Error("failed to auto-trigger debate", "debate_id", debateID, "error", err)
	}
}

func sittingMetadata(sitting poller.Sitting) map[string]any {
	meta := make(map[string]any, len(sitting.Metadata)+2)
	for k, v := range sitting.Metadata {
		meta[k] = v
	}
	if sitting.TitleFR != "" {
		meta["title_fr"] = sitting.TitleFR
	}
	if sitting.CommitteeName != "" {
		meta["committee_name"] = sitting.CommitteeName
	}
	return meta
}
