package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/maplecivic/hansardflow/internal/store"
)

const testKey = "secret-key"

type fakeStore struct {
	counts  map[store.Status]int
	errs    []store.ErrorRow
	debates []*store.Debate

	listFilter store.ListFilter
	failList   error
}

func (f *fakeStore) CountDebatesByStatus(context.Context) (map[store.Status]int, error) {
	return f.counts, nil
}

func (f *fakeStore) RecentErrors(context.Context, int) ([]store.ErrorRow, error) {
	return f.errs, nil
}

func (f *fakeStore) ListDebates(_ context.Context, filter store.ListFilter) ([]*store.Debate, error) {
	f.listFilter = filter
	if f.failList != nil {
		return nil, f.failList
	}
	return f.debates, nil
}

type fakePipeline struct {
	polls        []string
	retriggers   map[string]store.Status
	testVideos   []string
	testSittings []string
	pollErr      error
	retrigErr    error
	testErr      error
}

func (f *fakePipeline) EnqueuePoll(_ context.Context, code string) error {
	f.polls = append(f.polls, code)
	return f.pollErr
}

func (f *fakePipeline) Retrigger(_ context.Context, debateID string, status store.Status) error {
	if f.retriggers == nil {
		f.retriggers = make(map[string]store.Status)
	}
	f.retriggers[debateID] = status
	return f.retrigErr
}

func (f *fakePipeline) CreateTestDebate(_ context.Context, videoURL, _ string) (string, error) {
	if f.testErr != nil {
		return "", f.testErr
	}
	f.testVideos = append(f.testVideos, videoURL)
	return "deb-test-1", nil
}

func (f *fakePipeline) CreateTestHansard(_ context.Context, sittingDate, _ string) (string, error) {
	if f.testErr != nil {
		return "", f.testErr
	}
	f.testSittings = append(f.testSittings, sittingDate)
	return "deb-test-2", nil
}

func newTestServer(st *fakeStore, pl *fakePipeline) *httptest.Server {
	mux := http.NewServeMux()
	srv := New(st, pl, testKey, slog.New(slog.NewTextHandler(io.Discard, nil)))
	srv.Register(mux)
	return httptest.NewServer(mux)
}

func doRequest(t *testing.T, method, url, key, body string) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, rd)
	if err != nil {
		t.Fatal(err)
	}
	if key != "" {
		req.Header.Set("X-Api-Key", key)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestAuthRejectsMissingOrWrongKey(t *testing.T) {
	ts := newTestServer(&fakeStore{}, &fakePipeline{})
	defer ts.Close()

	tests := []struct {
		name string
		key  string
	}{
		{"missing key", ""},
		{"wrong key", "not-the-key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doRequest(t, http.MethodGet, ts.URL+"/api/status", tt.key, "")
			if resp.StatusCode != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", resp.StatusCode)
			}
		})
	}
}

func TestPollAllSources(t *testing.T) {
	pl := &fakePipeline{}
	ts := newTestServer(&fakeStore{}, pl)
	defer ts.Close()

	resp := doRequest(t, http.MethodPost, ts.URL+"/api/poll", testKey, "")
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	var body queuedResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "queued" || body.LegislatureCode != "ALL" {
		t.Errorf("body = %+v", body)
	}
	if len(pl.polls) != 1 || pl.polls[0] != "" {
		t.Errorf("polls = %v, want one empty-code poll", pl.polls)
	}
}

func TestPollSingleSource(t *testing.T) {
	pl := &fakePipeline{}
	ts := newTestServer(&fakeStore{}, pl)
	defer ts.Close()

	resp := doRequest(t, http.MethodPost, ts.URL+"/api/poll", testKey, `{"legislature_code":"ON"}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	if len(pl.polls) != 1 || pl.polls[0] != "ON" {
		t.Errorf("polls = %v, want [ON]", pl.polls)
	}
}

func TestStatusEndpoint(t *testing.T) {
	st := &fakeStore{
		counts: map[store.Status]int{
			store.StatusPublished: 12,
			store.StatusError:     2,
		},
		errs: []store.ErrorRow{
			{DebateID: "deb-9", Title: "Broken Sitting", ErrorMessage: "transcribe: boom", UpdatedAt: time.Now()},
		},
	}
	ts := newTestServer(st, &fakePipeline{})
	defer ts.Close()

	resp := doRequest(t, http.MethodGet, ts.URL+"/api/status", testKey, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.TotalDebates != 14 {
		t.Errorf("total = %d, want 14", body.TotalDebates)
	}
	if body.ByStatus["published"] != 12 || body.ByStatus["error"] != 2 {
		t.Errorf("by_status = %v", body.ByStatus)
	}
	if len(body.RecentErrors) != 1 || body.RecentErrors[0].DebateID != "deb-9" {
		t.Errorf("recent_errors = %+v", body.RecentErrors)
	}
}

func TestListDebatesFilters(t *testing.T) {
	st := &fakeStore{
		debates: []*store.Debate{{
			ID:          "deb-1",
			Title:       "House Sitting No. 123",
			Date:        time.Date(2026, 2, 9, 0, 0, 0, 0, time.UTC),
			SessionType: store.SessionHouse,
			Status:      store.StatusPublished,
			Legislature: &store.Legislature{Code: "CA"},
		}},
	}
	ts := newTestServer(st, &fakePipeline{})
	defer ts.Close()

	resp := doRequest(t, http.MethodGet,
		ts.URL+"/api/debates?status=published&legislature_code=CA&limit=5", testKey, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if st.listFilter.Status != store.StatusPublished || st.listFilter.LegislatureCode != "CA" || st.listFilter.Limit != 5 {
		t.Errorf("filter = %+v", st.listFilter)
	}
	var body []debateInfo
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if len(body) != 1 {
		t.Fatalf("debates = %d, want 1", len(body))
	}
	if body[0].LegislatureCode != "CA" || body[0].Date != "2026-02-09" {
		t.Errorf("debate = %+v", body[0])
	}
}

func TestListDebatesRejectsBadParams(t *testing.T) {
	ts := newTestServer(&fakeStore{}, &fakePipeline{})
	defer ts.Close()

	tests := []struct {
		name  string
		query string
	}{
		{"unknown status", "?status=exploded"},
		{"negative limit", "?limit=-3"},
		{"non-numeric limit", "?limit=many"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doRequest(t, http.MethodGet, ts.URL+"/api/debates"+tt.query, testKey, "")
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestRetrigger(t *testing.T) {
	pl := &fakePipeline{}
	ts := newTestServer(&fakeStore{}, pl)
	defer ts.Close()

	resp := doRequest(t, http.MethodPost, ts.URL+"/api/retrigger", testKey,
		`{"debate_id":"deb-7","from_status":"transcribing"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if pl.retriggers["deb-7"] != store.StatusTranscribing {
		t.Errorf("retriggered with %q, want transcribing", pl.retriggers["deb-7"])
	}
	var body queuedResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.DebateID != "deb-7" || body.FromStatus != "transcribing" {
		t.Errorf("body = %+v", body)
	}
}

func TestRetriggerValidation(t *testing.T) {
	ts := newTestServer(&fakeStore{}, &fakePipeline{})
	defer ts.Close()

	tests := []struct {
		name string
		body string
		want int
	}{
		{"missing debate_id", `{"from_status":"processing"}`, http.StatusBadRequest},
		{"unknown status", `{"debate_id":"deb-1","from_status":"warp"}`, http.StatusBadRequest},
		{"bad json", `{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doRequest(t, http.MethodPost, ts.URL+"/api/retrigger", testKey, tt.body)
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestRetriggerUnknownDebate(t *testing.T) {
	pl := &fakePipeline{retrigErr: store.ErrNotFound}
	ts := newTestServer(&fakeStore{}, pl)
	defer ts.Close()

	resp := doRequest(t, http.MethodPost, ts.URL+"/api/retrigger", testKey,
		`{"debate_id":"nope","from_status":"processing"}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestTestDebateEndpoint(t *testing.T) {
	pl := &fakePipeline{}
	ts := newTestServer(&fakeStore{}, pl)
	defer ts.Close()

	resp := doRequest(t, http.MethodPost, ts.URL+"/api/test-debate", testKey,
		`{"youtube_url":"https://youtube.com/watch?v=abc","title":"Trial Run"}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	if len(pl.testVideos) != 1 || pl.testVideos[0] != "https://youtube.com/watch?v=abc" {
		t.Errorf("videos = %v", pl.testVideos)
	}
	var body queuedResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "queued" || body.DebateID != "deb-test-1" {
		t.Errorf("body = %+v", body)
	}
}

func TestTestDebateRequiresVideoURL(t *testing.T) {
	pl := &fakePipeline{}
	ts := newTestServer(&fakeStore{}, pl)
	defer ts.Close()

	resp := doRequest(t, http.MethodPost, ts.URL+"/api/test-debate", testKey, `{"title":"no url"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	if len(pl.testVideos) != 0 {
		t.Errorf("pipeline called despite missing url: %v", pl.testVideos)
	}
}

func TestTestHansardEndpoint(t *testing.T) {
	pl := &fakePipeline{}
	ts := newTestServer(&fakeStore{}, pl)
	defer ts.Close()

	resp := doRequest(t, http.MethodPost, ts.URL+"/api/test-hansard", testKey,
		`{"sitting_date":"2026-02-09"}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	if len(pl.testSittings) != 1 || pl.testSittings[0] != "2026-02-09" {
		t.Errorf("sittings = %v", pl.testSittings)
	}
}

func TestTestHansardRejectsBadDate(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing date", `{}`},
		{"wrong format", `{"sitting_date":"Feb 9, 2026"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pl := &fakePipeline{}
			ts := newTestServer(&fakeStore{}, pl)
			defer ts.Close()

			resp := doRequest(t, http.MethodPost, ts.URL+"/api/test-hansard", testKey, tt.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
			if len(pl.testSittings) != 0 {
				t.Errorf("pipeline called despite bad date: %v", pl.testSittings)
			}
		})
	}
}

func TestListDebatesWithoutLegislatureJoin(t *testing.T) {
	st := &fakeStore{
		debates: []*store.Debate{{
			ID:     "deb-2",
			Title:  "Orphan Sitting",
			Date:   time.Date(2026, 2, 9, 0, 0, 0, 0, time.UTC),
			Status: store.StatusDetected,
		}},
	}
	ts := newTestServer(st, &fakePipeline{})
	defer ts.Close()

	resp := doRequest(t, http.MethodGet, ts.URL+"/api/debates", testKey, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body []debateInfo
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if len(body) != 1 {
		t.Fatalf("debates = %d, want 1", len(body))
	}
	if body[0].LegislatureCode != "" {
		t.Errorf("legislature_code = %q, want empty when unjoined", body[0].LegislatureCode)
	}
}

func TestPollFailure(t *testing.T) {
	pl := &fakePipeline{pollErr: errors.New("broker down")}
	ts := newTestServer(&fakeStore{}, pl)
	defer ts.Close()

	resp := doRequest(t, http.MethodPost, ts.URL+"/api/poll", testKey, "")
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
}
