package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/maplecivic/hansardflow/internal/align"
	"github.com/maplecivic/hansardflow/internal/hansard"
	"github.com/maplecivic/hansardflow/internal/queue"
	"github.com/maplecivic/hansardflow/internal/store"
	"github.com/maplecivic/hansardflow/internal/summarize"
)

// fakeStore is an in-memory Store for pipeline tests.
type fakeStore struct {
	mu sync.Mutex

	legislatures map[string]*store.Legislature
	debates      map[string]*store.Debate
	byExternal   map[string]string
	nextID       int

	speakers      []*store.Speaker
	contributions []*store.Contribution
	topics        []*store.Topic
	transcripts   []*store.Transcript
	assets        []*store.MediaAsset
	votes         []*store.Vote
	summaries     map[string]*store.Summary
	categories    []*store.Category
	posts         []*store.Post

	detectedUpdates []string

	// errOn forces the named method to fail.
	errOn map[string]error
}

var _ Store = (*fakeStore)(nil)

const fakeMaxRetries = 3

func newFakeStore() *fakeStore {
	return &fakeStore{
		legislatures: make(map[string]*store.Legislature),
		debates:      make(map[string]*store.Debate),
		byExternal:   make(map[string]string),
		summaries:    make(map[string]*store.Summary),
		errOn:        make(map[string]error),
	}
}

func (f *fakeStore) addLegislature(code string, level store.GovernmentLevel) *store.Legislature {
	f.mu.Lock()
	defer f.mu.Unlock()
	leg := &store.Legislature{ID: "leg-" + code, Code: code, GovernmentLevel: level}
	f.legislatures[code] = leg
	return leg
}

func (f *fakeStore) addDebate(d *store.Debate) *store.Debate {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d.ID == "" {
		f.nextID++
		d.ID = fmt.Sprintf("deb-%d", f.nextID)
	}
	f.debates[d.ID] = d
	f.byExternal[d.LegislatureID+"/"+d.ExternalID] = d.ID
	return d
}

func (f *fakeStore) fail(method string, err error) { f.errOn[method] = err }

func (f *fakeStore) check(method string) error { return f.errOn[method] }

func (f *fakeStore) LegislatureByCode(_ context.Context, code string) (*store.Legislature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	leg, ok := f.legislatures[code]
	if !ok {
		return nil, store.ErrNotFound
	}
	return leg, nil
}

func (f *fakeStore) CreateDebate(_ context.Context, d *store.Debate) error {
	if err := f.check("CreateDebate"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := d.LegislatureID + "/" + d.ExternalID
	if _, dup := f.byExternal[key]; dup {
		return store.ErrConflict
	}
	f.nextID++
	d.ID = fmt.Sprintf("deb-%d", f.nextID)
	if d.Legislature == nil {
		for _, leg := range f.legislatures {
			if leg.ID == d.LegislatureID {
				d.Legislature = leg
				break
			}
		}
	}
	f.debates[d.ID] = d
	f.byExternal[key] = d.ID
	return nil
}

func (f *fakeStore) DebateByID(_ context.Context, id string) (*store.Debate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.debates[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copy := *d
	return &copy, nil
}

func (f *fakeStore) DebateByExternalID(_ context.Context, legislatureID, externalID string) (*store.Debate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byExternal[legislatureID+"/"+externalID]
	if !ok {
		return nil, store.ErrNotFound
	}
	copy := *f.debates[id]
	return &copy, nil
}

func (f *fakeStore) UpdateDebateStatus(_ context.Context, debateID string, status store.Status) error {
	if err := f.check("UpdateDebateStatus"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.debates[debateID]
	if !ok {
		return store.ErrNotFound
	}
	d.Status = status
	if status != store.StatusError {
		d.ErrorMessage = ""
	}
	return nil
}

func (f *fakeStore) MarkDebateError(_ context.Context, debateID, msg string) (bool, error) {
	if err := f.check("MarkDebateError"); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.debates[debateID]
	if !ok {
		return false, store.ErrNotFound
	}
	d.RetryCount++
	if d.RetryCount > fakeMaxRetries {
		d.Status = store.StatusError
		d.ErrorMessage = "Max retries exceeded. Last error: " + msg
		return false, nil
	}
	d.ErrorMessage = msg
	return true, nil
}

func (f *fakeStore) ResetDebateForRetrigger(_ context.Context, debateID string, status store.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.debates[debateID]
	if !ok {
		return store.ErrNotFound
	}
	d.Status = status
	d.ErrorMessage = ""
	return nil
}

func (f *fakeStore) UpdateDebateDetected(_ context.Context, debateID string, fields store.DetectedFields) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.debates[debateID]
	if !ok {
		return store.ErrNotFound
	}
	d.Status = store.StatusDetected
	d.Title = fields.Title
	d.VideoURL = fields.VideoURL
	d.HansardURL = fields.HansardURL
	d.SourceURLs = fields.SourceURLs
	d.Metadata = fields.Metadata
	f.detectedUpdates = append(f.detectedUpdates, debateID)
	return nil
}

func (f *fakeStore) UpdateDebateDuration(_ context.Context, debateID string, seconds int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.debates[debateID]; ok {
		d.DurationSeconds = seconds
	}
	return nil
}

func (f *fakeStore) MergeDebateMetadata(_ context.Context, debateID string, patch map[string]any) error {
	if err := f.check("MergeDebateMetadata"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.debates[debateID]
	if !ok {
		return store.ErrNotFound
	}
	if d.Metadata == nil {
		d.Metadata = make(map[string]any)
	}
	for k, v := range patch {
		d.Metadata[k] = v
	}
	return nil
}

func (f *fakeStore) UpsertSpeaker(_ context.Context, sp *store.Speaker) error {
	if err := f.check("UpsertSpeaker"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.speakers = append(f.speakers, sp)
	return nil
}

func (f *fakeStore) ReplaceContributions(_ context.Context, contribs []*store.Contribution) error {
	if err := f.check("ReplaceContributions"); err != nil {
		return err
	}
	if len(contribs) == 0 {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var kept []*store.Contribution
	for _, c := range f.contributions {
		if c.DebateID != contribs[0].DebateID {
			kept = append(kept, c)
		}
	}
	f.contributions = append(kept, contribs...)
	return nil
}

func (f *fakeStore) ContributionsByDebate(_ context.Context, debateID string) ([]*store.Contribution, error) {
	if err := f.check("ContributionsByDebate"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*store.Contribution
	for _, c := range f.contributions {
		if c.DebateID == debateID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) UpsertTopic(_ context.Context, t *store.Topic) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topics = append(f.topics, t)
	return nil
}

func (f *fakeStore) TopicsByDebate(_ context.Context, debateID string) ([]*store.Topic, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*store.Topic
	for _, t := range f.topics {
		if t.DebateID == debateID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeStore) ReplaceTranscript(_ context.Context, t *store.Transcript) error {
	if err := f.check("ReplaceTranscript"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var kept []*store.Transcript
	for _, existing := range f.transcripts {
		if existing.DebateID != t.DebateID || existing.Language != t.Language {
			kept = append(kept, existing)
		}
	}
	f.transcripts = append(kept, t)
	return nil
}

func (f *fakeStore) TranscriptsByDebate(_ context.Context, debateID string) ([]*store.Transcript, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*store.Transcript
	for _, t := range f.transcripts {
		if t.DebateID == debateID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeStore) InsertMediaAsset(_ context.Context, m *store.MediaAsset) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assets = append(f.assets, m)
	return nil
}

func (f *fakeStore) LatestReadyMediaAsset(_ context.Context, debateID string) (*store.MediaAsset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.assets) - 1; i >= 0; i-- {
		if f.assets[i].DebateID == debateID && f.assets[i].Status == "ready" {
			return f.assets[i], nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) ReplaceVotes(_ context.Context, votes []*store.Vote) error {
	if len(votes) == 0 {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var kept []*store.Vote
	for _, v := range f.votes {
		if v.DebateID != votes[0].DebateID {
			kept = append(kept, v)
		}
	}
	f.votes = append(kept, votes...)
	return nil
}

func (f *fakeStore) VotesByDebate(_ context.Context, debateID string) ([]*store.Vote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*store.Vote
	for _, v := range f.votes {
		if v.DebateID == debateID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (f *fakeStore) UpsertSummary(_ context.Context, sum *store.Summary) error {
	if err := f.check("UpsertSummary"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summaries[sum.DebateID+"/"+sum.Language] = sum
	return nil
}

func (f *fakeStore) SummaryByLanguage(_ context.Context, debateID, language string) (*store.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sum, ok := f.summaries[debateID+"/"+language]
	if !ok {
		return nil, store.ErrNotFound
	}
	return sum, nil
}

func (f *fakeStore) ReplaceCategories(_ context.Context, debateID string, cats []*store.Category) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var kept []*store.Category
	for _, c := range f.categories {
		if c.DebateID != debateID {
			kept = append(kept, c)
		}
	}
	f.categories = append(kept, cats...)
	return nil
}

func (f *fakeStore) PrimaryCategory(_ context.Context, debateID string) (*store.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.categories {
		if c.DebateID == debateID && c.IsPrimary {
			return c, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) InsertPost(_ context.Context, p *store.Post) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts = append(f.posts, p)
	return nil
}

// fakeBroker records published tasks instead of delivering them.
type fakeBroker struct {
	mu    sync.Mutex
	items []publishedTask
}

type publishedTask struct {
	queue string
	task  queue.Task
	delay time.Duration
}

var _ queue.Broker = (*fakeBroker)(nil)

func (b *fakeBroker) Publish(_ context.Context, queueName string, task queue.Task) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = append(b.items, publishedTask{queue: queueName, task: task})
	return nil
}

func (b *fakeBroker) PublishAfter(_ context.Context, queueName string, task queue.Task, delay time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = append(b.items, publishedTask{queue: queueName, task: task, delay: delay})
	return nil
}

func (b *fakeBroker) Consume(ctx context.Context, _ string, _ queue.Handler) error {
	<-ctx.Done()
	return ctx.Err()
}

func (b *fakeBroker) Close() error { return nil }

func (b *fakeBroker) published() []publishedTask {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]publishedTask, len(b.items))
	copy(out, b.items)
	return out
}

func (b *fakeBroker) last() (publishedTask, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.items) == 0 {
		return publishedTask{}, false
	}
	return b.items[len(b.items)-1], true
}

// Stage collaborator fakes.

type fakeScraper struct {
	result *hansard.Result
	err    error
}

func (s *fakeScraper) ScrapeSitting(context.Context, string, string) (*hansard.Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

type fakeMedia struct {
	asset   *store.MediaAsset
	err     error
	cleaned []string
}

func (m *fakeMedia) Download(_ context.Context, debate *store.Debate, _ string) (*store.MediaAsset, error) {
	if m.err != nil {
		return nil, m.err
	}
	asset := *m.asset
	asset.DebateID = debate.ID
	return &asset, nil
}

func (m *fakeMedia) Cleanup(debateID string) error {
	m.cleaned = append(m.cleaned, debateID)
	return nil
}

type fakeRecords struct {
	record *align.Record
	err    error
}

func (r *fakeRecords) Fetch(context.Context, string, string) (*align.Record, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.record, nil
}

type fakeVotes struct {
	votes []store.Vote
}

func (v *fakeVotes) Extract(context.Context, *store.Debate, string) []store.Vote {
	return v.votes
}

type fakeSummarizer struct {
	err   error
	calls []string
}

func (s *fakeSummarizer) Generate(_ context.Context, in summarize.Input, language string) (*store.Summary, error) {
	s.calls = append(s.calls, language)
	if s.err != nil {
		return nil, s.err
	}
	return &store.Summary{
		DebateID:    in.Debate.ID,
		Language:    language,
		SummaryText: "summary in " + language,
		LLMModel:    "test-model",
	}, nil
}

type fakeCategorizer struct {
	cats []store.Category
}

func (c *fakeCategorizer) Categorize(_ context.Context, in summarize.Input, _ *store.Summary) []store.Category {
	out := make([]store.Category, len(c.cats))
	for i, cat := range c.cats {
		cat.DebateID = in.Debate.ID
		out[i] = cat
	}
	return out
}
