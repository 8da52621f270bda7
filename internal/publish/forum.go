package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/maplecivic/hansardflow/internal/store"
)

// Issue is the payload the forum's issues API accepts.
type Issue struct {
	Title           string `json:"title"`
	Narrative       string `json:"narrative"`
	Type            string `json:"type"`
	Topic           string `json:"topic"`
	GovernmentLevel string `json:"government_level"`
	Province        string `json:"province,omitempty"`
	VideoURL        string `json:"video_url,omitempty"`
	MediaType       string `json:"media_type,omitempty"`
	UserID          string `json:"user_id"`
}

// CreatedIssue is the forum's response to a successful create.
type CreatedIssue struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Forum creates posts on the civic forum.
//
// Implementations must be safe for concurrent use.
type Forum interface {
	CreateIssue(ctx context.Context, issue Issue) (*CreatedIssue, error)
}

// BuildIssue assembles the forum payload for a debate: post type "Debate",
// topic from the primary category, government level from the legislature,
// and a province tag for provincial debates.
func BuildIssue(debate *store.Debate, title, narrative string, primary *store.Category, botUserID string) Issue {
	issue := Issue{
		Title:           title,
		Narrative:       narrative,
		Type:            "Debate",
		Topic:           "general",
		GovernmentLevel: string(store.LevelFederal),
		UserID:          botUserID,
	}
	if primary != nil && primary.TopicSlug != "" {
		issue.Topic = primary.TopicSlug
	}
	if debate.Legislature != nil {
		issue.GovernmentLevel = string(debate.Legislature.GovernmentLevel)
		if debate.Legislature.GovernmentLevel == store.LevelProvincial {
			issue.Province = codeToProvince[debate.Legislature.Code]
		}
	}
	if debate.VideoURL != "" {
		issue.VideoURL = debate.VideoURL
		issue.MediaType = "video"
	}
	return issue
}

// Compile-time assertion that HTTPForum satisfies Forum.
var _ Forum = (*HTTPForum)(nil)

// HTTPForum talks to the forum's REST API.
type HTTPForum struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        *slog.Logger
}

// ForumOption configures an [HTTPForum].
type ForumOption func(*HTTPForum)

// WithForumHTTPClient replaces the default HTTP client.
func WithForumHTTPClient(c *http.Client) ForumOption {
	return func(f *HTTPForum) { f.httpClient = c }
}

// WithForumLogger replaces the default slog logger.
func WithForumLogger(log *slog.Logger) ForumOption {
	return func(f *HTTPForum) { f.log = log }
}

// NewHTTPForum creates a forum client for the given API root.
func NewHTTPForum(baseURL, apiKey string, opts ...ForumOption) *HTTPForum {
	f := &HTTPForum{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CreateIssue posts the issue and returns the forum's identifier for it.
func (f *HTTPForum) CreateIssue(ctx context.Context, issue Issue) (*CreatedIssue, error) {
	body, err := json.Marshal(issue)
	if err != nil {
		return nil, fmt.Errorf("publish: marshal issue: %w", err)
	}

	url := f.baseURL + "/api/issues"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("publish: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", f.apiKey)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("publish: create issue: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("publish: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("publish: create issue: status %d: %s", resp.StatusCode, truncate(string(respBody), 300))
	}

	var created CreatedIssue
	if err := json.Unmarshal(respBody, &created); err != nil {
		return nil, fmt.Errorf("publish: decode response: %w", err)
	}
	if created.ID == "" {
		return nil, fmt.Errorf("publish: forum returned no issue id")
	}
	f.log.Info("created forum issue", "issue_id", created.ID, "title", issue.Title)
	return &created, nil
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
