// Package summarize turns enriched debate records into layperson-friendly
// summaries and forum topic categories using an LLM.
package summarize

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	jsonrepair "github.com/RealAlexandreAI/json-repair"

	"github.com/maplecivic/hansardflow/internal/store"
	"github.com/maplecivic/hansardflow/pkg/provider/llm"
)

const (
	// maxTranscriptChars keeps the transcript excerpt around 20k tokens.
	maxTranscriptChars = 80_000

	summaryTemperature = 0.3
	summaryMaxTokens   = 4000

	maxContributionContext = 50
	contributionPreviewLen = 300
)

// Input bundles everything the summariser may draw on for one debate.
type Input struct {
	Debate        *store.Debate
	Transcripts   []store.Transcript
	Contributions []store.Contribution
	Votes         []store.Vote
}

// summaryPayload is the JSON shape the model is instructed to return.
type summaryPayload struct {
	Summary         string `json:"summary"`
	KeyParticipants []struct {
		Name          string `json:"name"`
		Party         string `json:"party"`
		Riding        string `json:"riding"`
		StanceSummary string `json:"stance_summary"`
	} `json:"key_participants"`
	KeyIssues []struct {
		Issue       string `json:"issue"`
		Description string `json:"description"`
	} `json:"key_issues"`
	Outcome string `json:"outcome"`
}

// Summarizer generates debate summaries in English and French.
type Summarizer struct {
	provider llm.Provider
	log      *slog.Logger
}

// NewSummarizer creates a summariser backed by the given LLM provider.
func NewSummarizer(provider llm.Provider, log *slog.Logger) *Summarizer {
	if log == nil {
		log = slog.Default()
	}
	return &Summarizer{provider: provider, log: log}
}

// Generate produces a summary in the requested language ("en" or "fr").
// A response that is not parseable JSON even after repair degrades to the raw
// model output as the summary text rather than failing the stage.
func (s *Summarizer) Generate(ctx context.Context, in Input, language string) (*store.Summary, error) {
	systemPrompt := englishSystemPrompt
	if language == "fr" {
		systemPrompt = frenchSystemPrompt
	}
	userPrompt := buildUserPrompt(in, language)

	s.log.Info("generating summary",
		"debate_id", in.Debate.ID, "language", language, "prompt_chars", len(userPrompt))

	resp, err := s.provider.Complete(ctx, llm.CompletionRequest{
		Messages:     []llm.Message{{Role: "user", Content: userPrompt}},
		SystemPrompt: systemPrompt,
		Temperature:  summaryTemperature,
		MaxTokens:    summaryMaxTokens,
		JSONResponse: true,
	})
	if err != nil {
		return nil, fmt.Errorf("summarize: completion: %w", err)
	}

	summary := &store.Summary{
		DebateID: in.Debate.ID,
		Language: language,
		LLMModel: resp.Model,
	}

	payload, perr := parsePayload(resp.Content)
	if perr != nil {
		s.log.Error("summary response is not valid JSON, keeping raw text",
			"debate_id", in.Debate.ID, "error", perr)
		summary.SummaryText = resp.Content
		return summary, nil
	}

	summary.SummaryText = payload.Summary
	for _, p := range payload.KeyParticipants {
		summary.KeyParticipants = append(summary.KeyParticipants, formatParticipant(p.Name, p.Party, p.StanceSummary))
	}
	for _, issue := range payload.KeyIssues {
		summary.KeyIssues = append(summary.KeyIssues, formatIssue(issue.Issue, issue.Description))
	}
	summary.OutcomeText = payload.Outcome
	return summary, nil
}

// parsePayload decodes the model output, running it through JSON repair when
// a straight unmarshal fails.
func parsePayload(content string) (*summaryPayload, error) {
	var payload summaryPayload
	if err := json.Unmarshal([]byte(content), &payload); err == nil {
		return &payload, nil
	}
	repaired, err := jsonrepair.RepairJSON(content)
	if err != nil {
		return nil, fmt.Errorf("repair: %w", err)
	}
	if err := json.Unmarshal([]byte(repaired), &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

func formatParticipant(name, party, stance string) string {
	var b strings.Builder
	b.WriteString(name)
	if party != "" {
		fmt.Fprintf(&b, " (%s)", party)
	}
	if stance != "" {
		b.WriteString(": ")
		b.WriteString(stance)
	}
	return b.String()
}

func formatIssue(issue, description string) string {
	if description == "" {
		return issue
	}
	return issue + ": " + description
}

// buildUserPrompt assembles the debate context the model summarises: header
// facts, recorded votes, a window of speaker contributions, and a transcript
// excerpt.
func buildUserPrompt(in Input, language string) string {
	var parts []string
	legName, legCode := "", ""
	if in.Debate.Legislature != nil {
		legName = in.Debate.Legislature.Name
		legCode = in.Debate.Legislature.Code
	}

	parts = append(parts,
		"## Debate Information",
		fmt.Sprintf("Legislature: %s (%s)", legName, legCode),
		fmt.Sprintf("Title: %s", in.Debate.Title),
		fmt.Sprintf("Date: %s", in.Debate.Date.Format("2006-01-02")),
		fmt.Sprintf("Type: %s", in.Debate.SessionType),
	)

	if len(in.Votes) > 0 {
		parts = append(parts, "", "## Votes")
		for _, v := range in.Votes {
			parts = append(parts, fmt.Sprintf("- Vote: %s - Yea: %d, Nay: %d - Result: %s",
				v.MotionText, v.YeaCount, v.NayCount, v.Result))
		}
	}

	if len(in.Contributions) > 0 {
		contribs := in.Contributions
		if len(contribs) > maxContributionContext {
			contribs = contribs[:maxContributionContext]
		}
		parts = append(parts, "", fmt.Sprintf("## Key Speaker Contributions (first %d)", len(contribs)))
		for _, c := range contribs {
			preview := c.Text
			if runes := []rune(preview); len(runes) > contributionPreviewLen {
				preview = string(runes[:contributionPreviewLen])
			}
			parts = append(parts, fmt.Sprintf("[%s]: %s", c.SpeakerName, preview))
		}
	}

	if excerpt := transcriptExcerpt(in.Transcripts); excerpt != "" {
		parts = append(parts, "", "## Transcript Excerpt", excerpt)
	}

	langLabel := "English"
	if language == "fr" {
		langLabel = "French"
	}
	parts = append(parts, "", "## Task",
		fmt.Sprintf("Generate the summary in %s. Respond with the JSON object only.", langLabel))

	return strings.Join(parts, "\n")
}

// transcriptExcerpt splits the character budget evenly across the stored
// transcripts so a bilingual sitting contributes both languages.
func transcriptExcerpt(transcripts []store.Transcript) string {
	if len(transcripts) == 0 {
		return ""
	}
	perTranscript := maxTranscriptChars / len(transcripts)

	var b strings.Builder
	for _, t := range transcripts {
		if t.RawText == "" {
			continue
		}
		fmt.Fprintf(&b, "\n--- Transcript (%s) ---\n", t.Language)
		text := t.RawText
		if runes := []rune(text); len(runes) > perTranscript {
			text = string(runes[:perTranscript])
		}
		b.WriteString(text)
	}
	return b.String()
}
