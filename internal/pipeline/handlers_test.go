package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/maplecivic/hansardflow/internal/align"
	"github.com/maplecivic/hansardflow/internal/hansard"
	"github.com/maplecivic/hansardflow/internal/store"
	"github.com/maplecivic/hansardflow/pkg/provider/asr"
)

func scrapedResult() *hansard.Result {
	speech := func(name, party, text string, order int) hansard.Speech {
		return hansard.Speech{
			SpeakerName: name,
			Riding:      "Somewhere--Centre",
			MemberID:    "m-" + name,
			Party:       party,
			Province:    "Ontario",
			Time:        "14:05",
			Text:        text,
			Section:     "Government Orders",
			Order:       order,
		}
	}
	return &hansard.Result{
		SittingDate:   "2026-02-09",
		HansardNumber: "123",
		Sections: []hansard.TopicGroup{
			{
				Title:        "Bill C-12, Housing Supply Act",
				TopicID:      "t-1",
				Section:      "Government Orders",
				Speeches:     []hansard.Speech{speech("Jane Mills", "Liberal", "I rise to speak to the bill.", 0)},
				SpeakerCount: 1,
				Parties:      []string{"Liberal"},
			},
			{
				Title:        "Health Care Funding",
				TopicID:      "t-2",
				Section:      "Oral Questions",
				Speeches:     []hansard.Speech{speech("Omar Reid", "Conservative", "When will the minister act?", 1)},
				SpeakerCount: 1,
				Parties:      []string{"Conservative"},
			},
		},
		Speeches: []hansard.Speech{speech("Jane Mills", "Liberal", "a", 0), speech("Omar Reid", "Conservative", "b", 1)},
		Speakers: []hansard.SpeakerSummary{
			{Name: "Jane Mills", Party: "Liberal", Riding: "Somewhere--Centre", MemberID: "m-Jane Mills", SpeechCount: 1},
			{Name: "Omar Reid", Party: "Conservative", MemberID: "m-Omar Reid", SpeechCount: 1},
		},
	}
}

func TestRunScrapeHansardStoresEverything(t *testing.T) {
	env := newTestEnv(t, Config{})
	debate := env.federalDebate()
	env.scraper.result = scrapedResult()

	if err := env.pipeline.runScrapeHansard(context.Background(), debate); err != nil {
		t.Fatalf("runScrapeHansard: %v", err)
	}

	if len(env.store.speakers) != 2 {
		t.Errorf("speakers = %d, want 2", len(env.store.speakers))
	}
	if len(env.store.contributions) != 2 {
		t.Fatalf("contributions = %d, want 2", len(env.store.contributions))
	}
	for i, c := range env.store.contributions {
		if c.SequenceOrder != i {
			t.Errorf("contribution %d order = %d", i, c.SequenceOrder)
		}
		if c.Metadata["source"] != "hansard_scrape" {
			t.Errorf("contribution %d source = %v", i, c.Metadata["source"])
		}
	}
	if len(env.store.topics) != 2 {
		t.Fatalf("topics = %d, want 2", len(env.store.topics))
	}
	if env.store.topics[0].TopicTitle != "Bill C-12, Housing Supply Act" || env.store.topics[0].SequenceOrder != 0 {
		t.Errorf("first topic = %+v", env.store.topics[0])
	}

	reloaded, _ := env.store.DebateByID(context.Background(), debate.ID)
	if reloaded.Metadata["hansard_scraped"] != true {
		t.Error("hansard_scraped not recorded in metadata")
	}
	if reloaded.Metadata["hansard_speech_count"] != 2 {
		t.Errorf("hansard_speech_count = %v", reloaded.Metadata["hansard_speech_count"])
	}
}

func TestRunScrapeHansardRerunReplacesContributions(t *testing.T) {
	env := newTestEnv(t, Config{})
	debate := env.federalDebate()
	env.scraper.result = scrapedResult()

	for i := 0; i < 2; i++ {
		if err := env.pipeline.runScrapeHansard(context.Background(), debate); err != nil {
			t.Fatalf("runScrapeHansard run %d: %v", i+1, err)
		}
	}

	if len(env.store.contributions) != 2 {
		t.Fatalf("contributions after rerun = %d, want 2", len(env.store.contributions))
	}
	for i, c := range env.store.contributions {
		if c.SequenceOrder != i {
			t.Errorf("contribution %d order = %d after rerun", i, c.SequenceOrder)
		}
	}
}

func TestRunScrapeHansardEmptySittingFails(t *testing.T) {
	env := newTestEnv(t, Config{})
	debate := env.federalDebate()
	env.scraper.result = &hansard.Result{SittingDate: "2026-02-09"}

	err := env.pipeline.runScrapeHansard(context.Background(), debate)
	if err == nil {
		t.Fatal("want error for sitting with no speeches")
	}
	if !strings.Contains(err.Error(), "may not be published yet") {
		t.Errorf("error = %v", err)
	}
}

func TestRunTranscribeBilingual(t *testing.T) {
	env := newTestEnv(t, Config{})
	debate := env.federalDebate()
	env.store.assets = append(env.store.assets, &store.MediaAsset{
		DebateID: debate.ID, Status: "ready", LocalPath: "/media/deb/audio.wav",
	})
	env.asr.ResultsByLanguage = map[string]*asr.Result{
		"en": {RawText: "english text", WordCount: 2, Model: "large-v3"},
		"fr": {RawText: "texte francais", WordCount: 2, Model: "large-v3"},
	}

	if err := env.pipeline.runTranscribe(context.Background(), debate); err != nil {
		t.Fatalf("runTranscribe: %v", err)
	}

	if len(env.asr.Calls) != 2 {
		t.Fatalf("transcribe calls = %d, want 2", len(env.asr.Calls))
	}
	if env.asr.Calls[0].Opts.Language != "en" || env.asr.Calls[1].Opts.Language != "fr" {
		t.Errorf("languages = %q, %q", env.asr.Calls[0].Opts.Language, env.asr.Calls[1].Opts.Language)
	}
	if env.asr.Calls[0].Path != "/media/deb/audio.wav" {
		t.Errorf("path = %q", env.asr.Calls[0].Path)
	}
	if len(env.store.transcripts) != 2 {
		t.Fatalf("transcripts = %d, want 2", len(env.store.transcripts))
	}
	if env.store.transcripts[1].Language != "fr" || env.store.transcripts[1].RawText != "texte francais" {
		t.Errorf("fr transcript = %+v", env.store.transcripts[1])
	}
}

func TestRunTranscribeRerunReplacesTranscripts(t *testing.T) {
	env := newTestEnv(t, Config{})
	debate := env.federalDebate()
	env.store.assets = append(env.store.assets, &store.MediaAsset{
		DebateID: debate.ID, Status: "ready", LocalPath: "/media/deb/audio.wav",
	})
	env.asr.ResultsByLanguage = map[string]*asr.Result{
		"en": {RawText: "english text", WordCount: 2},
		"fr": {RawText: "texte francais", WordCount: 2},
	}

	for i := 0; i < 2; i++ {
		if err := env.pipeline.runTranscribe(context.Background(), debate); err != nil {
			t.Fatalf("runTranscribe run %d: %v", i+1, err)
		}
	}

	if len(env.store.transcripts) != 2 {
		t.Fatalf("transcripts after rerun = %d, want one per language", len(env.store.transcripts))
	}
}

func TestRunTranscribeSingleLanguageProvincial(t *testing.T) {
	env := newTestEnv(t, Config{})
	debate := env.provincialDebate("QC")
	env.store.assets = append(env.store.assets, &store.MediaAsset{
		DebateID: debate.ID, Status: "ready", LocalPath: "/media/deb/audio.wav",
	})

	if err := env.pipeline.runTranscribe(context.Background(), debate); err != nil {
		t.Fatalf("runTranscribe: %v", err)
	}
	if len(env.asr.Calls) != 1 || env.asr.Calls[0].Opts.Language != "fr" {
		t.Fatalf("calls = %+v, want single fr transcription", env.asr.Calls)
	}
}

func TestRunTranscribeNoReadyAsset(t *testing.T) {
	env := newTestEnv(t, Config{})
	debate := env.provincialDebate("ON")

	if err := env.pipeline.runTranscribe(context.Background(), debate); err == nil {
		t.Fatal("want error when no ready media asset exists")
	}
}

func TestRunProcessAlignsAudioFirstDebate(t *testing.T) {
	env := newTestEnv(t, Config{})
	debate := env.provincialDebate("ON")
	env.store.transcripts = append(env.store.transcripts, &store.Transcript{
		DebateID: debate.ID,
		Language: "en",
		RawText:  "Thank you Speaker. The housing file needs attention.",
		Segments: []store.TranscriptSegment{
			{Start: 0, End: 4, Text: "Thank you Speaker."},
			{Start: 4, End: 9, Text: "The housing file needs attention."},
		},
	})
	env.records.record = &align.Record{
		Available: true,
		Speakers: []align.RecordSpeaker{
			{Name: "Ms. Chen", Party: "NDP", Role: "member", Order: 0},
		},
		Interventions: []align.Intervention{
			{SpeakerName: "Ms. Chen", Text: "Thank you Speaker. The housing file needs attention.", Order: 0},
		},
	}
	env.votes.votes = []store.Vote{{ExternalID: "on-division-2026-02-09-1", Result: "passed"}}

	if err := env.pipeline.runProcess(context.Background(), debate); err != nil {
		t.Fatalf("runProcess: %v", err)
	}

	if len(env.store.speakers) != 1 || env.store.speakers[0].Name != "Ms. Chen" {
		t.Errorf("speakers = %+v", env.store.speakers)
	}
	if len(env.store.contributions) == 0 {
		t.Fatal("no contributions built from alignment")
	}
	if len(env.store.votes) != 1 {
		t.Errorf("votes = %d, want 1", len(env.store.votes))
	}
}

func TestRunProcessRerunReplacesContributionsAndVotes(t *testing.T) {
	env := newTestEnv(t, Config{})
	debate := env.provincialDebate("ON")
	env.store.transcripts = append(env.store.transcripts, &store.Transcript{
		DebateID: debate.ID,
		Language: "en",
		Segments: []store.TranscriptSegment{
			{Start: 0, End: 4, Text: "Thank you Speaker."},
			{Start: 4, End: 9, Text: "The housing file needs attention."},
		},
	})
	env.records.record = &align.Record{}
	env.votes.votes = []store.Vote{{ExternalID: "on-division-2026-02-09-1", Result: "passed"}}

	if err := env.pipeline.runProcess(context.Background(), debate); err != nil {
		t.Fatalf("runProcess: %v", err)
	}
	firstContribs := len(env.store.contributions)
	if firstContribs == 0 {
		t.Fatal("first run stored no contributions")
	}

	if err := env.pipeline.runProcess(context.Background(), debate); err != nil {
		t.Fatalf("runProcess rerun: %v", err)
	}
	if len(env.store.contributions) != firstContribs {
		t.Errorf("contributions after rerun = %d, want %d", len(env.store.contributions), firstContribs)
	}
	if len(env.store.votes) != 1 {
		t.Errorf("votes after rerun = %d, want 1", len(env.store.votes))
	}
}

func TestRunProcessDegradesWhenRecordUnavailable(t *testing.T) {
	env := newTestEnv(t, Config{})
	debate := env.provincialDebate("ON")
	env.store.transcripts = append(env.store.transcripts, &store.Transcript{
		DebateID: debate.ID,
		Language: "en",
		Segments: []store.TranscriptSegment{{Start: 0, End: 5, Text: "Some speech text here."}},
	})
	env.records.err = context.DeadlineExceeded

	if err := env.pipeline.runProcess(context.Background(), debate); err != nil {
		t.Fatalf("runProcess must degrade, got %v", err)
	}
	if len(env.store.contributions) == 0 {
		t.Fatal("expected unattributed contributions")
	}
}

func TestRunProcessKeepsSpokenAttributionWithoutRecord(t *testing.T) {
	env := newTestEnv(t, Config{})
	debate := env.provincialDebate("ON")
	env.store.transcripts = append(env.store.transcripts, &store.Transcript{
		DebateID: debate.ID,
		Language: "en",
		Segments: []store.TranscriptSegment{
			{Start: 0, End: 4, Text: "Mr. Lee: the housing file needs attention"},
			{Start: 4, End: 8, Text: "and it needs attention before the session ends"},
		},
	})
	env.records.record = &align.Record{}

	if err := env.pipeline.runProcess(context.Background(), debate); err != nil {
		t.Fatalf("runProcess: %v", err)
	}

	if len(env.store.contributions) == 0 {
		t.Fatal("no contributions stored")
	}
	if got := env.store.contributions[0].SpeakerName; got != "Mr. Lee" {
		t.Errorf("speaker = %q, want the heard attribution kept", got)
	}
	var found bool
	for _, sp := range env.store.speakers {
		if sp.Name == "Mr. Lee" {
			found = true
			if sp.Metadata["source"] != "transcript_attribution" {
				t.Errorf("speaker source = %v", sp.Metadata["source"])
			}
		}
	}
	if !found {
		t.Error("no speaker row for the heard attribution")
	}
}

func TestRunProcessHansardPathRequiresContributions(t *testing.T) {
	env := newTestEnv(t, Config{})
	debate := env.federalDebate()
	debate.Metadata = map[string]any{"hansard_scraped": true}

	if err := env.pipeline.runProcess(context.Background(), debate); err == nil {
		t.Fatal("want error when the scrape stage stored nothing")
	}

	env.store.contributions = append(env.store.contributions, &store.Contribution{
		DebateID: debate.ID, SpeakerName: "Jane Mills", Text: "text",
	})
	if err := env.pipeline.runProcess(context.Background(), debate); err != nil {
		t.Fatalf("runProcess: %v", err)
	}
}

func TestRunSummarizeStoresBothLanguagesAndCategories(t *testing.T) {
	env := newTestEnv(t, Config{})
	debate := env.provincialDebate("ON")
	env.store.contributions = append(env.store.contributions, &store.Contribution{
		DebateID: debate.ID, SpeakerName: "Ms. Chen", Text: "housing housing housing",
	})

	if err := env.pipeline.runSummarize(context.Background(), debate); err != nil {
		t.Fatalf("runSummarize: %v", err)
	}

	if len(env.summary.calls) != 2 || env.summary.calls[0] != "en" || env.summary.calls[1] != "fr" {
		t.Errorf("summarizer calls = %v, want [en fr]", env.summary.calls)
	}
	if _, err := env.store.SummaryByLanguage(context.Background(), debate.ID, "en"); err != nil {
		t.Error("en summary not stored")
	}
	if _, err := env.store.SummaryByLanguage(context.Background(), debate.ID, "fr"); err != nil {
		t.Error("fr summary not stored")
	}
	primary, err := env.store.PrimaryCategory(context.Background(), debate.ID)
	if err != nil {
		t.Fatal("no primary category stored")
	}
	if primary.TopicSlug != "housing" {
		t.Errorf("primary = %q, want housing", primary.TopicSlug)
	}
	reloaded, _ := env.store.DebateByID(context.Background(), debate.ID)
	if reloaded.Status != store.StatusCategorizing {
		t.Errorf("status = %q, want categorizing", reloaded.Status)
	}
}

func TestRunPublishCreatesForumPost(t *testing.T) {
	env := newTestEnv(t, Config{BotUserID: "bot-1"})
	debate := env.provincialDebate("ON")
	env.store.summaries[debate.ID+"/en"] = &store.Summary{
		DebateID: debate.ID, Language: "en", SummaryText: "A debate about housing.",
	}
	env.store.categories = append(env.store.categories, &store.Category{
		DebateID: debate.ID, TopicSlug: "housing", Confidence: 0.8, IsPrimary: true,
	})

	if err := env.pipeline.runPublish(context.Background(), debate); err != nil {
		t.Fatalf("runPublish: %v", err)
	}

	if len(env.forum.Issues) != 1 {
		t.Fatalf("issues created = %d, want 1", len(env.forum.Issues))
	}
	issue := env.forum.Issues[0]
	if issue.Topic != "housing" {
		t.Errorf("issue topic = %q", issue.Topic)
	}
	if issue.UserID != "bot-1" {
		t.Errorf("issue user = %q", issue.UserID)
	}
	if !strings.HasPrefix(issue.Title, "[DEBATE] [ON]") {
		t.Errorf("issue title = %q", issue.Title)
	}

	if len(env.store.posts) != 1 {
		t.Fatalf("posts recorded = %d, want 1", len(env.store.posts))
	}
	post := env.store.posts[0]
	if post.ForumPostID != "42" || post.TopicSlug != "housing" {
		t.Errorf("post = %+v", post)
	}

	reloaded, _ := env.store.DebateByID(context.Background(), debate.ID)
	if reloaded.Status != store.StatusPublished {
		t.Errorf("status = %q, want published", reloaded.Status)
	}
	if len(env.media.cleaned) != 1 || env.media.cleaned[0] != debate.ID {
		t.Errorf("media cleanup = %v", env.media.cleaned)
	}
}

func TestRunPublishRequiresEnglishSummary(t *testing.T) {
	env := newTestEnv(t, Config{})
	debate := env.provincialDebate("ON")

	if err := env.pipeline.runPublish(context.Background(), debate); err == nil {
		t.Fatal("want error without an english summary")
	}
	if len(env.forum.Issues) != 0 {
		t.Error("issue created without a summary")
	}
}

func TestRunPublishWithoutCategoryFallsBackToGeneral(t *testing.T) {
	env := newTestEnv(t, Config{})
	debate := env.provincialDebate("ON")
	env.store.summaries[debate.ID+"/en"] = &store.Summary{
		DebateID: debate.ID, Language: "en", SummaryText: "Summary.",
	}

	if err := env.pipeline.runPublish(context.Background(), debate); err != nil {
		t.Fatalf("runPublish: %v", err)
	}
	if env.forum.Issues[0].Topic != "general" {
		t.Errorf("topic = %q, want general", env.forum.Issues[0].Topic)
	}
	if env.store.posts[0].TopicSlug != "" {
		t.Errorf("post slug = %q, want empty when no category", env.store.posts[0].TopicSlug)
	}
}
