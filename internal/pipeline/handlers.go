package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/maplecivic/hansardflow/internal/align"
	"github.com/maplecivic/hansardflow/internal/media"
	"github.com/maplecivic/hansardflow/internal/publish"
	"github.com/maplecivic/hansardflow/internal/store"
	"github.com/maplecivic/hansardflow/internal/summarize"
	"github.com/maplecivic/hansardflow/pkg/provider/asr"
)

// runScrapeHansard pulls the official federal transcript and stores its
// speakers, contributions and topic sections. The Hansard IS the transcript
// for this chain; no audio is touched.
func (p *Pipeline) runScrapeHansard(ctx context.Context, debate *store.Debate) error {
	date := debate.Date.Format("2006-01-02")
	result, err := p.scraper.ScrapeSitting(ctx, date, "")
	if err != nil {
		p.metrics.RecordProviderError(ctx, "ourcommons", "scrape")
		return fmt.Errorf("pipeline: scrape hansard: %w", err)
	}
	if result.TotalSpeeches() == 0 {
		return fmt.Errorf("pipeline: no hansard speeches for %s, the sitting record may not be published yet", date)
	}

	patch := map[string]any{
		"hansard_scraped":       true,
		"hansard_speech_count":  result.TotalSpeeches(),
		"hansard_topic_count":   len(result.Sections),
		"hansard_speaker_count": len(result.Speakers),
	}
	if err := p.store.MergeDebateMetadata(ctx, debate.ID, patch); err != nil {
		return fmt.Errorf("pipeline: record scrape metadata: %w", err)
	}

	for _, speaker := range result.Speakers {
		sp := &store.Speaker{
			DebateID:   debate.ID,
			Name:       speaker.Name,
			Party:      speaker.Party,
			Riding:     speaker.Riding,
			ExternalID: speaker.MemberID,
			Metadata: map[string]any{
				"province":     speaker.Province,
				"member_url":   speaker.MemberURL,
				"speech_count": speaker.SpeechCount,
				"source":       "hansard_scrape",
			},
		}
		if err := p.store.UpsertSpeaker(ctx, sp); err != nil {
			return fmt.Errorf("pipeline: store speaker %q: %w", speaker.Name, err)
		}
	}

	var contribs []*store.Contribution
	order := 0
	for _, section := range result.Sections {
		for _, speech := range section.Speeches {
			topics := make([]string, len(speech.Topics))
			for i, t := range speech.Topics {
				topics[i] = t.Title
			}
			contribs = append(contribs, &store.Contribution{
				DebateID:      debate.ID,
				SpeakerName:   speech.SpeakerName,
				Text:          speech.Text,
				SequenceOrder: order,
				Metadata: map[string]any{
					"riding":     speech.Riding,
					"party":      speech.Party,
					"province":   speech.Province,
					"time":       speech.Time,
					"page_ref":   speech.PageRef,
					"section":    speech.Section,
					"topics":     topics,
					"member_url": speech.MemberURL,
					"source":     "hansard_scrape",
				},
			})
			order++
		}
	}
	if err := p.store.ReplaceContributions(ctx, contribs); err != nil {
		return fmt.Errorf("pipeline: store contributions: %w", err)
	}

	for i, section := range result.Sections {
		topic := &store.Topic{
			DebateID:        debate.ID,
			TopicTitle:      section.Title,
			TopicExternalID: section.TopicID,
			Section:         section.Section,
			SpeechCount:     len(section.Speeches),
			SpeakerCount:    section.SpeakerCount,
			PartiesInvolved: section.Parties,
			SequenceOrder:   i,
		}
		if err := p.store.UpsertTopic(ctx, topic); err != nil {
			return fmt.Errorf("pipeline: store topic %q: %w", section.Title, err)
		}
	}

	p.log.Info("hansard scrape complete", "debate_id", debate.ID,
		"speeches", result.TotalSpeeches(), "topics", len(result.Sections))
	return nil
}

// runIngest downloads the sitting recording and extracts audio.
func (p *Pipeline) runIngest(ctx context.Context, debate *store.Debate) error {
	asset, err := p.media.Download(ctx, debate, legislatureCode(debate))
	if err != nil {
		p.metrics.RecordProviderError(ctx, "media", "media")
		if errors.Is(err, media.ErrNoMediaSource) {
			return terminal(err)
		}
		return fmt.Errorf("pipeline: ingest: %w", err)
	}

	if err := p.store.InsertMediaAsset(ctx, asset); err != nil {
		return fmt.Errorf("pipeline: store media asset: %w", err)
	}
	if asset.DurationSeconds > 0 {
		if err := p.store.UpdateDebateDuration(ctx, debate.ID, asset.DurationSeconds); err != nil {
			return fmt.Errorf("pipeline: record duration: %w", err)
		}
	}

	p.log.Info("ingestion complete", "debate_id", debate.ID,
		"source", asset.Source, "bytes", asset.FileSizeBytes)
	return nil
}

// runTranscribe runs speech recognition on the downloaded audio, once per
// expected language of the chamber.
func (p *Pipeline) runTranscribe(ctx context.Context, debate *store.Debate) error {
	asset, err := p.store.LatestReadyMediaAsset(ctx, debate.ID)
	if err != nil {
		return fmt.Errorf("pipeline: transcribe: %w", err)
	}

	for _, lang := range languagesFor(legislatureCode(debate)) {
		p.log.Info("transcribing", "debate_id", debate.ID, "language", lang)
		result, err := p.asr.TranscribeFile(ctx, asset.LocalPath, asr.Options{Language: lang})
		if err != nil {
			p.metrics.RecordProviderError(ctx, "whisper", "asr")
			return fmt.Errorf("pipeline: transcribe %s: %w", lang, err)
		}

		transcript := &store.Transcript{
			DebateID:           debate.ID,
			Language:           lang,
			RawText:            result.RawText,
			Segments:           toStoreSegments(result.Segments),
			Model:              result.Model,
			AvgConfidence:      result.AvgConfidence,
			WordCount:          result.WordCount,
			ProcessingTimeSecs: result.ProcessingTime,
		}
		if err := p.store.ReplaceTranscript(ctx, transcript); err != nil {
			return fmt.Errorf("pipeline: store transcript %s: %w", lang, err)
		}
		p.log.Info("transcript stored", "debate_id", debate.ID,
			"language", lang, "words", result.WordCount)
	}
	return nil
}

func toStoreSegments(segments []asr.Segment) []store.TranscriptSegment {
	out := make([]store.TranscriptSegment, len(segments))
	for i, s := range segments {
		out[i] = store.TranscriptSegment{
			Start:        s.Start,
			End:          s.End,
			Text:         s.Text,
			Confidence:   s.Confidence,
			NoSpeechProb: s.NoSpeechProb,
		}
	}
	return out
}

// runProcess enriches the debate. Hansard-first debates already have
// contributions from the scrape; audio-first debates get theirs built by
// aligning recogniser segments against the published sitting record. Both
// chains then pick up recorded divisions.
func (p *Pipeline) runProcess(ctx context.Context, debate *store.Debate) error {
	if scraped, _ := debate.Metadata["hansard_scraped"].(bool); scraped {
		contribs, err := p.store.ContributionsByDebate(ctx, debate.ID)
		if err != nil {
			return fmt.Errorf("pipeline: process: %w", err)
		}
		if len(contribs) == 0 {
			return fmt.Errorf("pipeline: no contributions stored for hansard debate %s, the scrape stage may have failed", debate.ID)
		}
	} else if err := p.alignTranscripts(ctx, debate); err != nil {
		return err
	}

	votes := p.votes.Extract(ctx, debate, legislatureCode(debate))
	if len(votes) > 0 {
		ptrs := make([]*store.Vote, len(votes))
		for i := range votes {
			ptrs[i] = &votes[i]
		}
		if err := p.store.ReplaceVotes(ctx, ptrs); err != nil {
			return fmt.Errorf("pipeline: store votes: %w", err)
		}
		p.log.Info("votes stored", "debate_id", debate.ID, "count", len(votes))
	}
	return nil
}

// alignTranscripts builds contributions for an audio-first debate by
// matching transcript segments to the published record's interventions.
// A record that cannot be fetched degrades to unattributed contributions
// rather than failing the stage.
func (p *Pipeline) alignTranscripts(ctx context.Context, debate *store.Debate) error {
	transcripts, err := p.store.TranscriptsByDebate(ctx, debate.ID)
	if err != nil {
		return fmt.Errorf("pipeline: process: %w", err)
	}
	if len(transcripts) == 0 {
		return fmt.Errorf("pipeline: no transcripts for debate %s", debate.ID)
	}

	code := legislatureCode(debate)
	primary, secondary := pickTranscripts(transcripts, languagesFor(code)[0])

	record, err := p.records.Fetch(ctx, debate.HansardURL, code)
	if err != nil {
		p.log.Warn("sitting record unavailable, contributions will be unattributed",
			"debate_id", debate.ID, "error", err)
		record = &align.Record{}
	}

	for _, speaker := range record.Speakers {
		sp := &store.Speaker{
			DebateID: debate.ID,
			Name:     speaker.Name,
			Party:    speaker.Party,
			Metadata: map[string]any{"role": speaker.Role, "source": "record_parse"},
		}
		if err := p.store.UpsertSpeaker(ctx, sp); err != nil {
			return fmt.Errorf("pipeline: store speaker %q: %w", speaker.Name, err)
		}
	}

	names := align.MapSpeakers(primary.Segments, record)

	// Names heard in the audio but absent from the record roster still get
	// a speaker row, so the attribution survives on the published debate.
	roster := make(map[string]bool, len(record.Speakers))
	for _, speaker := range record.Speakers {
		roster[speaker.Name] = true
	}
	seen := make(map[string]bool)
	for _, name := range names {
		if name == "" || roster[name] || seen[name] {
			continue
		}
		seen[name] = true
		sp := &store.Speaker{
			DebateID: debate.ID,
			Name:     name,
			Metadata: map[string]any{"source": "transcript_attribution"},
		}
		if err := p.store.UpsertSpeaker(ctx, sp); err != nil {
			return fmt.Errorf("pipeline: store speaker %q: %w", name, err)
		}
	}

	contribs := align.BuildContributions(debate.ID, primary, secondary, names)
	if len(contribs) == 0 {
		return fmt.Errorf("pipeline: alignment produced no contributions for debate %s", debate.ID)
	}
	ptrs := make([]*store.Contribution, len(contribs))
	for i := range contribs {
		ptrs[i] = &contribs[i]
	}
	if err := p.store.ReplaceContributions(ctx, ptrs); err != nil {
		return fmt.Errorf("pipeline: store contributions: %w", err)
	}
	p.log.Info("contributions stored", "debate_id", debate.ID, "count", len(contribs))
	return nil
}

// pickTranscripts chooses the primary-language transcript and, for bilingual
// sittings, the other one as secondary.
func pickTranscripts(transcripts []*store.Transcript, primaryLang string) (primary, secondary *store.Transcript) {
	for _, t := range transcripts {
		if t.Language == primaryLang && primary == nil {
			primary = t
		} else if secondary == nil {
			secondary = t
		}
	}
	if primary == nil {
		primary = transcripts[0]
		if secondary == primary {
			secondary = nil
		}
	}
	return primary, secondary
}

// runSummarize generates the EN and FR summaries, then categorises the
// debate using the English one.
func (p *Pipeline) runSummarize(ctx context.Context, debate *store.Debate) error {
	in, err := p.gatherInput(ctx, debate)
	if err != nil {
		return err
	}

	enSummary, err := p.summary.Generate(ctx, in, "en")
	if err != nil {
		p.metrics.RecordProviderError(ctx, "llm", "llm")
		return fmt.Errorf("pipeline: summarize en: %w", err)
	}
	if err := p.store.UpsertSummary(ctx, enSummary); err != nil {
		return fmt.Errorf("pipeline: store en summary: %w", err)
	}

	frSummary, err := p.summary.Generate(ctx, in, "fr")
	if err != nil {
		p.metrics.RecordProviderError(ctx, "llm", "llm")
		return fmt.Errorf("pipeline: summarize fr: %w", err)
	}
	if err := p.store.UpsertSummary(ctx, frSummary); err != nil {
		return fmt.Errorf("pipeline: store fr summary: %w", err)
	}

	if err := p.store.UpdateDebateStatus(ctx, debate.ID, store.StatusCategorizing); err != nil {
		return fmt.Errorf("pipeline: enter categorizing: %w", err)
	}
	categories := p.category.Categorize(ctx, in, enSummary)
	ptrs := make([]*store.Category, len(categories))
	for i := range categories {
		ptrs[i] = &categories[i]
	}
	if err := p.store.ReplaceCategories(ctx, debate.ID, ptrs); err != nil {
		return fmt.Errorf("pipeline: store categories: %w", err)
	}

	p.log.Info("summarization complete", "debate_id", debate.ID)
	return nil
}

// gatherInput loads everything the summariser and categoriser draw on.
func (p *Pipeline) gatherInput(ctx context.Context, debate *store.Debate) (summarize.Input, error) {
	in := summarize.Input{Debate: debate}

	transcripts, err := p.store.TranscriptsByDebate(ctx, debate.ID)
	if err != nil {
		return in, fmt.Errorf("pipeline: load transcripts: %w", err)
	}
	for _, t := range transcripts {
		in.Transcripts = append(in.Transcripts, *t)
	}

	contribs, err := p.store.ContributionsByDebate(ctx, debate.ID)
	if err != nil {
		return in, fmt.Errorf("pipeline: load contributions: %w", err)
	}
	for _, c := range contribs {
		in.Contributions = append(in.Contributions, *c)
	}

	votes, err := p.store.VotesByDebate(ctx, debate.ID)
	if err != nil {
		return in, fmt.Errorf("pipeline: load votes: %w", err)
	}
	for _, v := range votes {
		in.Votes = append(in.Votes, *v)
	}
	return in, nil
}

// maxQuoteContributions caps how many contributions feed the key-quote
// selection on the rendered post.
const maxQuoteContributions = 100

// runPublish renders the debate into a forum post, creates it, and flips the
// debate to published. Retained media is cleaned up once the post exists.
func (p *Pipeline) runPublish(ctx context.Context, debate *store.Debate) error {
	enSummary, err := p.store.SummaryByLanguage(ctx, debate.ID, "en")
	if err != nil {
		return fmt.Errorf("pipeline: publish needs an english summary: %w", err)
	}
	frSummary, err := p.store.SummaryByLanguage(ctx, debate.ID, "fr")
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("pipeline: load fr summary: %w", err)
		}
		frSummary = nil
	}
	primary, err := p.store.PrimaryCategory(ctx, debate.ID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("pipeline: load primary category: %w", err)
		}
		primary = nil
	}

	votes, err := p.store.VotesByDebate(ctx, debate.ID)
	if err != nil {
		return fmt.Errorf("pipeline: load votes: %w", err)
	}
	topics, err := p.store.TopicsByDebate(ctx, debate.ID)
	if err != nil {
		return fmt.Errorf("pipeline: load topics: %w", err)
	}
	contribs, err := p.store.ContributionsByDebate(ctx, debate.ID)
	if err != nil {
		return fmt.Errorf("pipeline: load contributions: %w", err)
	}
	if len(contribs) > maxQuoteContributions {
		contribs = contribs[:maxQuoteContributions]
	}

	in := publish.PostInput{
		Debate:    debate,
		ENSummary: enSummary,
		FRSummary: frSummary,
	}
	for _, v := range votes {
		in.Votes = append(in.Votes, *v)
	}
	for _, t := range topics {
		in.Topics = append(in.Topics, *t)
	}
	for _, c := range contribs {
		in.Contributions = append(in.Contributions, *c)
	}

	title := publish.BuildTitle(debate)
	narrative, err := publish.RenderPost(in)
	if err != nil {
		return fmt.Errorf("pipeline: publish: %w", err)
	}

	created, err := p.forum.CreateIssue(ctx, publish.BuildIssue(debate, title, narrative, primary, p.cfg.BotUserID))
	if err != nil {
		p.metrics.RecordProviderError(ctx, "forum", "forum")
		return fmt.Errorf("pipeline: publish: %w", err)
	}

	post := &store.Post{
		DebateID:    debate.ID,
		ForumPostID: created.ID,
		ForumURL:    created.URL,
		Title:       title,
	}
	if primary != nil {
		post.TopicSlug = primary.TopicSlug
	}
	if err := p.store.InsertPost(ctx, post); err != nil {
		return fmt.Errorf("pipeline: record forum post: %w", err)
	}

	if err := p.store.UpdateDebateStatus(ctx, debate.ID, store.StatusPublished); err != nil {
		return fmt.Errorf("pipeline: mark published: %w", err)
	}
	p.metrics.RecordDebatePublished(ctx, legislatureCode(debate))

	// Raw audio is not retained once the post is up.
	if err := p.media.Cleanup(debate.ID); err != nil {
		p.log.Warn("media cleanup failed", "debate_id", debate.ID, "error", err)
	}

	p.log.Info("debate published", "debate_id", debate.ID, "forum_post_id", created.ID, "title", title)
	return nil
}
