package summarize

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	jsonrepair "github.com/RealAlexandreAI/json-repair"

	"github.com/maplecivic/hansardflow/internal/store"
	"github.com/maplecivic/hansardflow/pkg/provider/llm"
)

// validTopics are the forum's topic slugs a debate may be filed under.
var validTopics = map[string]bool{
	"general": true, "healthcare": true, "economy": true, "housing": true,
	"climate": true, "education": true, "transit": true, "immigration": true,
	"indigenous": true, "defense": true, "justice": true, "childcare": true,
	"accessibility": true, "budget": true, "other": true,
}

// keywordMap drives the rules-based half of classification. Keywords cover
// both official languages since Quebec transcripts are French.
var keywordMap = map[string][]string{
	"healthcare": {"health", "hospital", "doctor", "nurse", "medical", "pharmaceutical", "drug", "patient",
		"santé", "hôpital", "médecin", "infirmière"},
	"economy": {"economy", "jobs", "employment", "business", "trade", "tariff", "GDP", "inflation",
		"économie", "emploi", "commerce", "entreprise"},
	"housing": {"housing", "rent", "mortgage", "affordable", "homeless", "shelter",
		"logement", "loyer", "hypothèque", "abordable", "itinérant"},
	"climate": {"climate", "environment", "carbon", "emission", "pollution", "green", "renewable", "energy",
		"climat", "environnement", "carbone", "émission", "énergie"},
	"education": {"education", "school", "university", "student", "teacher", "tuition",
		"éducation", "école", "université", "étudiant", "enseignant"},
	"transit": {"transit", "transport", "infrastructure", "highway", "road", "bridge", "rail",
		"autoroute", "route", "pont", "ferroviaire"},
	"immigration": {"immigration", "refugee", "asylum", "visa", "citizenship", "border",
		"réfugié", "asile", "citoyenneté", "frontière"},
	"indigenous": {"indigenous", "first nations", "aboriginal", "treaty", "reconciliation",
		"autochtone", "premières nations", "traité", "réconciliation"},
	"defense": {"defense", "military", "security", "nato", "armed forces", "terrorism",
		"défense", "militaire", "sécurité", "otan", "forces armées", "terrorisme"},
	"justice": {"justice", "law", "court", "crime", "police", "prison", "criminal",
		"loi", "tribunal"},
	"childcare": {"childcare", "child care", "daycare", "parental", "family", "children",
		"garde d'enfants", "garderie", "famille", "enfants"},
	"accessibility": {"accessibility", "disability", "disabled", "accommodation",
		"accessibilité", "handicap", "invalidité"},
	"budget": {"budget", "tax", "fiscal", "spending", "deficit", "debt", "revenue",
		"impôt", "dépenses", "déficit", "dette", "revenus"},
}

const (
	keywordWeight = 0.3
	llmWeight     = 0.7

	minCategoryScore = 0.1
	maxCategories    = 3
)

// classifierPayload is the JSON shape the classifier model returns.
type classifierPayload struct {
	Categories []struct {
		TopicSlug  string  `json:"topic_slug"`
		Confidence float64 `json:"confidence"`
		Reason     string  `json:"reason"`
	} `json:"categories"`
}

// Categorizer files debates under forum topics with a hybrid of keyword
// rules and LLM classification.
type Categorizer struct {
	provider llm.Provider
	log      *slog.Logger
}

// NewCategorizer creates a categorizer. The provider may be nil, in which
// case classification runs on keyword rules alone.
func NewCategorizer(provider llm.Provider, log *slog.Logger) *Categorizer {
	if log == nil {
		log = slog.Default()
	}
	return &Categorizer{provider: provider, log: log}
}

// Categorize returns up to three topic categories for a debate, the first
// marked primary. It always returns at least one category; when neither
// keywords nor the model produce a signal the debate files under "general".
func (c *Categorizer) Categorize(ctx context.Context, in Input, enSummary *store.Summary) []store.Category {
	keywordScores := keywordClassify(in, enSummary)
	llmScores := c.llmClassify(ctx, in.Debate, enSummary)
	categories := mergeScores(in.Debate.ID, keywordScores, llmScores)

	slugs := make([]string, len(categories))
	for i, cat := range categories {
		slugs[i] = cat.TopicSlug
	}
	c.log.Info("categorized debate", "debate_id", in.Debate.ID, "topics", slugs)
	return categories
}

// keywordClassify scores topics by keyword frequency across the summary,
// transcript heads, and contribution texts. Counts are log-damped so a
// debate that says "housing" two hundred times does not drown everything
// else out.
func keywordClassify(in Input, enSummary *store.Summary) map[string]float64 {
	var b strings.Builder
	if enSummary != nil {
		b.WriteString(strings.ToLower(enSummary.SummaryText))
	}
	for _, t := range in.Transcripts {
		text := t.RawText
		if runes := []rune(text); len(runes) > 20_000 {
			text = string(runes[:20_000])
		}
		b.WriteString(" ")
		b.WriteString(strings.ToLower(text))
	}
	contribs := in.Contributions
	if len(contribs) > 100 {
		contribs = contribs[:100]
	}
	for _, contrib := range contribs {
		text := contrib.Text
		if runes := []rune(text); len(runes) > 500 {
			text = string(runes[:500])
		}
		b.WriteString(" ")
		b.WriteString(strings.ToLower(text))
	}
	corpus := b.String()

	scores := make(map[string]float64)
	for topic, keywords := range keywordMap {
		count := 0
		for _, keyword := range keywords {
			count += strings.Count(corpus, strings.ToLower(keyword))
		}
		if count > 0 {
			scores[topic] = math.Min(1.0, math.Log(float64(1+count))/5.0)
		}
	}
	return scores
}

// llmClassify asks the model for 1-3 ranked categories. Any failure logs and
// returns nothing; keyword scores still stand.
func (c *Categorizer) llmClassify(ctx context.Context, debate *store.Debate, enSummary *store.Summary) map[string]float64 {
	if c.provider == nil {
		c.log.Warn("no LLM provider, skipping model classification")
		return nil
	}

	resp, err := c.provider.Complete(ctx, llm.CompletionRequest{
		Messages:     []llm.Message{{Role: "user", Content: buildClassifierPrompt(debate, enSummary)}},
		SystemPrompt: classifierSystemPrompt,
		Temperature:  0.1,
		MaxTokens:    500,
		JSONResponse: true,
	})
	if err != nil {
		c.log.Error("LLM classification failed", "debate_id", debate.ID, "error", err)
		return nil
	}

	payload, err := parseClassifierPayload(resp.Content)
	if err != nil {
		c.log.Error("classifier response is not valid JSON", "debate_id", debate.ID, "error", err)
		return nil
	}

	scores := make(map[string]float64)
	for _, cat := range payload.Categories {
		if !validTopics[cat.TopicSlug] {
			continue
		}
		scores[cat.TopicSlug] = math.Min(1.0, math.Max(0.0, cat.Confidence))
	}
	return scores
}

func parseClassifierPayload(content string) (*classifierPayload, error) {
	var payload classifierPayload
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

// mergeScores combines the two signals (keywords 0.3, model 0.7), keeps the
// top three above the floor, and marks the strongest as primary.
func mergeScores(debateID string, keywordScores, llmScores map[string]float64) []store.Category {
	merged := make(map[string]float64)
	for topic, score := range keywordScores {
		merged[topic] = score * keywordWeight
	}
	for topic, score := range llmScores {
		merged[topic] += score * llmWeight
	}

	type scored struct {
		topic string
		score float64
	}
	ranked := make([]scored, 0, len(merged))
	for topic, score := range merged {
		ranked = append(ranked, scored{topic, score})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].topic < ranked[j].topic
	})

	var categories []store.Category
	for i, entry := range ranked {
		if i >= maxCategories || entry.score < minCategoryScore {
			break
		}
		categories = append(categories, store.Category{
			DebateID:   debateID,
			TopicSlug:  entry.topic,
			Confidence: math.Round(math.Min(1.0, entry.score)*1000) / 1000,
			IsPrimary:  i == 0,
		})
	}

	if len(categories) == 0 {
		categories = []store.Category{{
			DebateID:   debateID,
			TopicSlug:  "general",
			Confidence: 0.5,
			IsPrimary:  true,
		}}
	}
	return categories
}

func buildClassifierPrompt(debate *store.Debate, enSummary *store.Summary) string {
	summaryText, issuesText := "", ""
	if enSummary != nil {
		summaryText = enSummary.SummaryText
		if runes := []rune(summaryText); len(runes) > 2000 {
			summaryText = string(runes[:2000])
		}
		var lines []string
		for _, issue := range enSummary.KeyIssues {
			lines = append(lines, "- "+issue)
		}
		issuesText = strings.Join(lines, "\n")
	}

	return fmt.Sprintf(`Classify this parliamentary debate into one or more topic categories.

Available categories (use these exact slugs):
- general: General topics not fitting other categories
- healthcare: Health, hospitals, medical policy
- economy: Economy, jobs, trade, business
- housing: Housing, affordability, homelessness
- climate: Climate, environment, energy
- education: Education, schools, universities
- transit: Transit, infrastructure, transportation
- immigration: Immigration, refugees, borders
- indigenous: Indigenous affairs, reconciliation
- defense: Defense, military, security
- justice: Justice, law, courts, policing
- childcare: Childcare, families, parental leave
- accessibility: Accessibility, disability rights
- budget: Budget, taxation, fiscal policy
- other: Other topics

Debate: %s
Date: %s

Summary: %s

Key Issues:
%s

Respond with a JSON object:
{
  "categories": [
    {"topic_slug": "slug", "confidence": 0.0-1.0, "reason": "brief reason"}
  ]
}

Rules:
- Return 1-3 categories, ordered by relevance.
- The first category should be the primary/most relevant one.
- Confidence should reflect how strongly the debate relates to the topic.
- Use "general" only if no other category fits well.`,
		debate.Title, debate.Date.Format("2006-01-02"), summaryText, issuesText)
}
