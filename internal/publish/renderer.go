// Package publish renders enriched debates into forum posts and creates
// them through the forum's issues API.
package publish

import (
	"fmt"
	"html/template"
	"strings"

	"github.com/maplecivic/hansardflow/internal/store"
)

// sessionTypeLabels maps session types to the human heading shown on posts.
var sessionTypeLabels = map[store.SessionType]string{
	store.SessionHouse:          "House Debate",
	store.SessionCommittee:      "Committee Meeting",
	store.SessionQuestionPeriod: "Question Period",
	store.SessionEmergency:      "Emergency Debate",
	store.SessionOther:          "Parliamentary Session",
}

// codeToProvince names the province for provincial legislature codes.
var codeToProvince = map[string]string{
	"ON": "Ontario",
	"QC": "Quebec",
	"BC": "British Columbia",
	"AB": "Alberta",
}

// PostInput is everything the renderer draws on for one debate post.
type PostInput struct {
	Debate        *store.Debate
	ENSummary     *store.Summary
	FRSummary     *store.Summary
	Votes         []store.Vote
	Topics        []store.Topic
	Contributions []store.Contribution
}

// BuildTitle returns the forum post title: "[DEBATE] [CODE] Title". A date
// suffix already present in the debate title is dropped since the post body
// carries the date.
func BuildTitle(debate *store.Debate) string {
	code := "??"
	if debate.Legislature != nil && debate.Legislature.Code != "" {
		code = debate.Legislature.Code
	}
	title := debate.Title
	if title == "" {
		title = "Parliamentary Debate"
	}
	title = strings.TrimSpace(strings.ReplaceAll(title, " - "+debate.Date.Format("2006-01-02"), ""))
	return fmt.Sprintf("[DEBATE] [%s] %s", code, title)
}

// RenderPost renders the HTML post body.
func RenderPost(in PostInput) (string, error) {
	data := buildPostData(in)
	var b strings.Builder
	if err := postTemplate.Execute(&b, data); err != nil {
		return "", fmt.Errorf("publish: render post: %w", err)
	}
	return b.String(), nil
}

type postData struct {
	LegislatureName   string
	SessionTypeLabel  string
	DateFormatted     string
	DurationFormatted string
	SummaryHTML       template.HTML
	KeyParticipants   []string
	KeyIssues         []string
	OutcomeText       string
	Votes             []store.Vote
	TopicSections     []store.Topic
	KeyQuotes         []Quote
	FRSummaryHTML     template.HTML
	HansardURL        string
	VideoURL          string
}

func buildPostData(in PostInput) postData {
	data := postData{
		LegislatureName:  "Parliament",
		SessionTypeLabel: "Session",
		DateFormatted:    in.Debate.Date.Format("January 2, 2006"),
		Votes:            in.Votes,
		TopicSections:    in.Topics,
		KeyQuotes:        SelectKeyQuotes(in.Contributions, maxKeyQuotes),
		HansardURL:       in.Debate.HansardURL,
		VideoURL:         in.Debate.VideoURL,
	}
	if in.Debate.Legislature != nil && in.Debate.Legislature.Name != "" {
		data.LegislatureName = in.Debate.Legislature.Name
	}
	if label, ok := sessionTypeLabels[in.Debate.SessionType]; ok {
		data.SessionTypeLabel = label
	}
	data.DurationFormatted = formatDuration(in.Debate.DurationSeconds)

	if in.ENSummary != nil {
		data.SummaryHTML = paragraphs(in.ENSummary.SummaryText)
		data.KeyParticipants = in.ENSummary.KeyParticipants
		data.KeyIssues = in.ENSummary.KeyIssues
		data.OutcomeText = in.ENSummary.OutcomeText
	}
	if in.FRSummary != nil {
		data.FRSummaryHTML = paragraphs(in.FRSummary.SummaryText)
	}
	return data
}

// formatDuration renders seconds as "2h 15m" or "45 minutes". Zero yields
// an empty string and the template skips the line.
func formatDuration(seconds int) string {
	if seconds <= 0 {
		return ""
	}
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%d minutes", minutes)
}

// paragraphs converts newline-separated plain text into escaped <p> blocks.
func paragraphs(text string) template.HTML {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	parts := strings.Split(text, "\n\n")
	if len(parts) == 1 {
		parts = strings.Split(text, "\n")
	}
	var b strings.Builder
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("<p>")
		b.WriteString(template.HTMLEscapeString(p))
		b.WriteString("</p>")
	}
	return template.HTML(b.String())
}

var postTemplate = template.Must(template.New("debate_post").Parse(`<div class="debate-post">
<p class="debate-meta"><strong>{{.LegislatureName}}</strong> | {{.SessionTypeLabel}} | {{.DateFormatted}}{{if .DurationFormatted}} | {{.DurationFormatted}}{{end}}</p>

<h2>Summary</h2>
{{.SummaryHTML}}
{{if .OutcomeText}}<p><strong>Outcome:</strong> {{.OutcomeText}}</p>
{{end}}{{if .KeyParticipants}}
<h2>Key Participants</h2>
<ul>
{{range .KeyParticipants}}<li>{{.}}</li>
{{end}}</ul>
{{end}}{{if .KeyIssues}}
<h2>Key Issues</h2>
<ul>
{{range .KeyIssues}}<li>{{.}}</li>
{{end}}</ul>
{{end}}{{if .Votes}}
<h2>Votes</h2>
<ul>
{{range .Votes}}<li>{{.MotionText}}{{if .BillNumber}} ({{.BillNumber}}){{end}} | Yea: {{.YeaCount}}, Nay: {{.NayCount}} | {{.Result}}</li>
{{end}}</ul>
{{end}}{{if .TopicSections}}
<h2>Topics Discussed</h2>
<ul>
{{range .TopicSections}}<li><strong>{{.TopicTitle}}</strong> ({{.Section}}) | {{.SpeechCount}} speeches from {{.SpeakerCount}} speakers</li>
{{end}}</ul>
{{end}}{{if .KeyQuotes}}
<h2>Key Quotes</h2>
{{range .KeyQuotes}}<blockquote><p>{{.Text}}</p><footer>{{.SpeakerName}}{{if .Party}} ({{.Party}}){{end}}</footer></blockquote>
{{end}}{{end}}{{if .FRSummaryHTML}}
<h2>Résumé (Français)</h2>
{{.FRSummaryHTML}}
{{end}}{{if or .HansardURL .VideoURL}}
<h2>Sources</h2>
<ul>
{{if .HansardURL}}<li><a href="{{.HansardURL}}">Official transcript</a></li>
{{end}}{{if .VideoURL}}<li><a href="{{.VideoURL}}">Video recording</a></li>
{{end}}</ul>
{{end}}</div>
`))
