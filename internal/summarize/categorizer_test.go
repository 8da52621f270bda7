package summarize

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/maplecivic/hansardflow/internal/store"
	"github.com/maplecivic/hansardflow/pkg/provider/llm"
	"github.com/maplecivic/hansardflow/pkg/provider/llm/mock"
)

func TestCategorizeMergesKeywordAndLLMScores(t *testing.T) {
	provider := &mock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: `{"categories": [
				{"topic_slug": "housing", "confidence": 0.9, "reason": "housing bill"},
				{"topic_slug": "budget", "confidence": 0.4, "reason": "fiscal impact"},
				{"topic_slug": "not-a-topic", "confidence": 0.8, "reason": "invalid"}
			]}`,
			Model: "gpt-4o-mini",
		},
	}
	c := NewCategorizer(provider, nil)

	in := testInput()
	summary := &store.Summary{
		SummaryText: "The debate focused on housing supply, rent, and affordable homes.",
		KeyIssues:   []string{"Housing supply: not enough homes"},
	}

	categories := c.Categorize(context.Background(), in, summary)
	if len(categories) == 0 {
		t.Fatal("no categories")
	}
	if categories[0].TopicSlug != "housing" || !categories[0].IsPrimary {
		t.Errorf("primary = %+v; want housing primary", categories[0])
	}
	for _, cat := range categories[1:] {
		if cat.IsPrimary {
			t.Errorf("%s marked primary; only the first should be", cat.TopicSlug)
		}
	}
	for _, cat := range categories {
		if cat.TopicSlug == "not-a-topic" {
			t.Error("invalid slug survived validation")
		}
		if cat.DebateID != "debate-1" {
			t.Errorf("DebateID = %q", cat.DebateID)
		}
	}
	if len(categories) > 3 {
		t.Errorf("got %d categories; max is 3", len(categories))
	}

	req := provider.CompleteCalls[0].Req
	if req.Temperature != 0.1 || req.MaxTokens != 500 || !req.JSONResponse {
		t.Errorf("classifier request = %+v", req)
	}
	if !strings.Contains(req.Messages[0].Content, "use these exact slugs") {
		t.Error("classifier prompt missing category list")
	}
}

func TestCategorizeFallsBackToGeneral(t *testing.T) {
	provider := &mock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: `{"categories": []}`},
	}
	c := NewCategorizer(provider, nil)

	in := Input{Debate: &store.Debate{ID: "debate-2"}}
	categories := c.Categorize(context.Background(), in, &store.Summary{SummaryText: "zzz qqq"})
	if len(categories) != 1 {
		t.Fatalf("got %d categories; want the general fallback", len(categories))
	}
	if categories[0].TopicSlug != "general" || categories[0].Confidence != 0.5 || !categories[0].IsPrimary {
		t.Errorf("fallback = %+v", categories[0])
	}
}

func TestCategorizeWithoutProvider(t *testing.T) {
	c := NewCategorizer(nil, nil)
	in := testInput()
	summary := &store.Summary{
		SummaryText: "Housing, housing, housing. Rent is too high and shelter space is scarce.",
	}

	categories := c.Categorize(context.Background(), in, summary)
	if categories[0].TopicSlug != "housing" {
		t.Errorf("primary = %q; want housing from keyword rules alone", categories[0].TopicSlug)
	}
}

func TestKeywordClassifyLogDamping(t *testing.T) {
	in := Input{Debate: &store.Debate{ID: "d"}}
	summary := &store.Summary{SummaryText: strings.Repeat("hospital ", 1000)}

	scores := keywordClassify(in, summary)
	score, ok := scores["healthcare"]
	if !ok {
		t.Fatal("healthcare not scored")
	}
	if score > 1.0 {
		t.Errorf("score %v exceeds 1.0 cap", score)
	}
	want := math.Min(1.0, math.Log(1001)/5.0)
	if math.Abs(score-want) > 1e-9 {
		t.Errorf("score = %v; want %v", score, want)
	}
}

func TestMergeScoresWeighting(t *testing.T) {
	categories := mergeScores("d",
		map[string]float64{"housing": 1.0, "budget": 0.2},
		map[string]float64{"housing": 0.9, "climate": 0.8},
	)

	// housing: 1.0*0.3 + 0.9*0.7 = 0.93; climate: 0.56; budget: 0.06 (below floor).
	if len(categories) != 2 {
		t.Fatalf("got %d categories; want 2 above the 0.1 floor: %+v", len(categories), categories)
	}
	if categories[0].TopicSlug != "housing" || categories[0].Confidence != 0.93 {
		t.Errorf("top = %+v; want housing at 0.93", categories[0])
	}
	if categories[1].TopicSlug != "climate" || categories[1].Confidence != 0.56 {
		t.Errorf("second = %+v; want climate at 0.56", categories[1])
	}
}
