package summarize

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/maplecivic/hansardflow/internal/store"
	"github.com/maplecivic/hansardflow/pkg/provider/llm"
	"github.com/maplecivic/hansardflow/pkg/provider/llm/mock"
)

func testInput() Input {
	date, _ := time.Parse("2006-01-02", "2026-02-09")
	return Input{
		Debate: &store.Debate{
			ID:          "debate-1",
			Title:       "Second Reading of Bill C-230",
			Date:        date,
			SessionType: store.SessionHouse,
			Legislature: &store.Legislature{Code: "CA", Name: "House of Commons"},
		},
		Transcripts: []store.Transcript{
			{Language: "en", RawText: "We are debating the housing supply measures in Bill C-230."},
		},
		Contributions: []store.Contribution{
			{SpeakerName: "Anna Singh", Text: "This bill will build homes in every province."},
		},
		Votes: []store.Vote{
			{MotionText: "2nd reading of Bill C-230", YeaCount: 177, NayCount: 140, Result: "passed"},
		},
	}
}

func TestGenerateSummary(t *testing.T) {
	provider := &mock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: `{
				"summary": "MPs debated a housing bill.",
				"key_participants": [
					{"name": "Anna Singh", "party": "Lib.", "stance_summary": "Argued for the bill."}
				],
				"key_issues": [
					{"issue": "Housing supply", "description": "Whether the bill builds enough homes."}
				],
				"outcome": "Passed at second reading."
			}`,
			Model: "gpt-4o",
		},
	}
	s := NewSummarizer(provider, nil)

	summary, err := s.Generate(context.Background(), testInput(), "en")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if summary.SummaryText != "MPs debated a housing bill." {
		t.Errorf("SummaryText = %q", summary.SummaryText)
	}
	if summary.Language != "en" || summary.LLMModel != "gpt-4o" {
		t.Errorf("language/model = %q/%q", summary.Language, summary.LLMModel)
	}
	if len(summary.KeyParticipants) != 1 || summary.KeyParticipants[0] != "Anna Singh (Lib.): Argued for the bill." {
		t.Errorf("KeyParticipants = %v", summary.KeyParticipants)
	}
	if len(summary.KeyIssues) != 1 || summary.KeyIssues[0] != "Housing supply: Whether the bill builds enough homes." {
		t.Errorf("KeyIssues = %v", summary.KeyIssues)
	}
	if summary.OutcomeText != "Passed at second reading." {
		t.Errorf("OutcomeText = %q", summary.OutcomeText)
	}

	if len(provider.CompleteCalls) != 1 {
		t.Fatalf("got %d Complete calls; want 1", len(provider.CompleteCalls))
	}
	req := provider.CompleteCalls[0].Req
	if !req.JSONResponse {
		t.Error("request should ask for a JSON response")
	}
	if req.Temperature != 0.3 || req.MaxTokens != 4000 {
		t.Errorf("temperature/max tokens = %v/%d", req.Temperature, req.MaxTokens)
	}
	if !strings.Contains(req.SystemPrompt, "civic engagement summarizer") {
		t.Error("English system prompt not used")
	}
	prompt := req.Messages[0].Content
	for _, want := range []string{
		"Legislature: House of Commons (CA)",
		"Title: Second Reading of Bill C-230",
		"Date: 2026-02-09",
		"- Vote: 2nd reading of Bill C-230 - Yea: 177, Nay: 140 - Result: passed",
		"[Anna Singh]: This bill will build homes in every province.",
		"--- Transcript (en) ---",
		"Generate the summary in English.",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestGenerateFrenchUsesFrenchPrompt(t *testing.T) {
	provider := &mock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: `{"summary": "Les députés ont débattu."}`, Model: "gpt-4o"},
	}
	s := NewSummarizer(provider, nil)

	summary, err := s.Generate(context.Background(), testInput(), "fr")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if summary.SummaryText != "Les députés ont débattu." {
		t.Errorf("SummaryText = %q", summary.SummaryText)
	}
	req := provider.CompleteCalls[0].Req
	if !strings.Contains(req.SystemPrompt, "résumeur d'engagement civique") {
		t.Error("French system prompt not used")
	}
	if !strings.Contains(req.Messages[0].Content, "Generate the summary in French.") {
		t.Error("task line should request French")
	}
}

func TestGenerateRepairsMalformedJSON(t *testing.T) {
	// Trailing comma and a markdown fence: common LLM output defects.
	provider := &mock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: "```json\n{\"summary\": \"Fixed up.\", \"outcome\": \"Adopted.\",}\n```",
			Model:   "gpt-4o",
		},
	}
	s := NewSummarizer(provider, nil)

	summary, err := s.Generate(context.Background(), testInput(), "en")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if summary.SummaryText != "Fixed up." || summary.OutcomeText != "Adopted." {
		t.Errorf("summary = %q outcome = %q; repair did not recover the payload", summary.SummaryText, summary.OutcomeText)
	}
}

func TestGenerateKeepsRawTextWhenUnparseable(t *testing.T) {
	provider := &mock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "I am sorry, I cannot produce JSON today.", Model: "gpt-4o"},
	}
	s := NewSummarizer(provider, nil)

	summary, err := s.Generate(context.Background(), testInput(), "en")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if summary.SummaryText == "" {
		t.Error("raw model output should be kept as the summary text")
	}
}

func TestTranscriptExcerptSplitsBudget(t *testing.T) {
	long := strings.Repeat("a", maxTranscriptChars)
	excerpt := transcriptExcerpt([]store.Transcript{
		{Language: "en", RawText: long},
		{Language: "fr", RawText: long},
	})
	if !strings.Contains(excerpt, "--- Transcript (en) ---") || !strings.Contains(excerpt, "--- Transcript (fr) ---") {
		t.Fatal("both transcripts should contribute")
	}
	// Each transcript is capped at half the budget; allow for headers.
	if len(excerpt) > maxTranscriptChars+100 {
		t.Errorf("excerpt length %d exceeds the character budget", len(excerpt))
	}
}
