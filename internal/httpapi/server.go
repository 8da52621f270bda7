// Package httpapi serves the admin endpoints: triggering polls, inspecting
// pipeline state and re-entering the chain for stuck debates.
//
// All /api/ routes require the pipeline API key in the X-Api-Key header. The
// key is compared in constant time.
package httpapi

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/maplecivic/hansardflow/internal/store"
)

// Store is the read surface the API exposes.
type Store interface {
	CountDebatesByStatus(ctx context.Context) (map[store.Status]int, error)
	RecentErrors(ctx context.Context, limit int) ([]store.ErrorRow, error)
	ListDebates(ctx context.Context, f store.ListFilter) ([]*store.Debate, error)
}

// Pipeline is the control surface the API drives.
type Pipeline interface {
	EnqueuePoll(ctx context.Context, legislatureCode string) error
	Retrigger(ctx context.Context, debateID string, status store.Status) error
	CreateTestDebate(ctx context.Context, videoURL, title string) (string, error)
	CreateTestHansard(ctx context.Context, sittingDate, title string) (string, error)
}

// recentErrorLimit caps the error listing on /api/status.
const recentErrorLimit = 10

// Server handles the admin API routes.
type Server struct {
	store    Store
	pipeline Pipeline
	keyHash  [sha256.Size]byte
	log      *slog.Logger
}

// New creates a server guarding its routes with apiKey.
func New(st Store, pl Pipeline, apiKey string, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		store:    st,
		pipeline: pl,
		keyHash:  sha256.Sum256([]byte(apiKey)),
		log:      log,
	}
}

// Register adds the /api routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.Handle("POST /api/poll", s.auth(s.handlePoll))
	mux.Handle("GET /api/status", s.auth(s.handleStatus))
	mux.Handle("GET /api/debates", s.auth(s.handleDebates))
	mux.Handle("POST /api/retrigger", s.auth(s.handleRetrigger))
	mux.Handle("POST /api/test-debate", s.auth(s.handleTestDebate))
	mux.Handle("POST /api/test-hansard", s.auth(s.handleTestHansard))
}

// auth rejects requests whose X-Api-Key header does not match the configured
// key. Hashing both sides keeps the comparison constant-time regardless of
// key length.
func (s *Server) auth(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := sha256.Sum256([]byte(r.Header.Get("X-Api-Key")))
		if subtle.ConstantTimeCompare(got[:], s.keyHash[:]) != 1 {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "invalid or missing API key"})
			return
		}
		next(w, r)
	})
}

type errorBody struct {
	Error string `json:"error"`
}

type pollRequest struct {
	LegislatureCode string `json:"legislature_code"`
}

type queuedResponse struct {
	Status          string `json:"status"`
	LegislatureCode string `json:"legislature_code,omitempty"`
	DebateID        string `json:"debate_id,omitempty"`
	FromStatus      string `json:"from_status,omitempty"`
}

// handlePoll queues a poll of one legislature, or of every source when the
// body is empty or names none.
func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	var req pollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body"})
		return
	}

	if err := s.pipeline.EnqueuePoll(r.Context(), req.LegislatureCode); err != nil {
		s.log.Error("failed to enqueue poll", "legislature", req.LegislatureCode, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "failed to queue poll"})
		return
	}

	code := req.LegislatureCode
	if code == "" {
		code = "ALL"
	}
	s.log.Info("poll queued via api", "legislature", code)
	writeJSON(w, http.StatusAccepted, queuedResponse{Status: "queued", LegislatureCode: code})
}

type statusResponse struct {
	TotalDebates int                `json:"total_debates"`
	ByStatus     map[string]int     `json:"by_status"`
	RecentErrors []recentErrorEntry `json:"recent_errors"`
}

type recentErrorEntry struct {
	DebateID     string    `json:"debate_id"`
	Title        string    `json:"title"`
	ErrorMessage string    `json:"error_message"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	counts, err := s.store.CountDebatesByStatus(r.Context())
	if err != nil {
		s.log.Error("failed to count debates", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "failed to read pipeline status"})
		return
	}
	recent, err := s.store.RecentErrors(r.Context(), recentErrorLimit)
	if err != nil {
		s.log.Error("failed to list recent errors", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "failed to read pipeline status"})
		return
	}

	resp := statusResponse{
		ByStatus:     make(map[string]int, len(counts)),
		RecentErrors: make([]recentErrorEntry, 0, len(recent)),
	}
	for status, n := range counts {
		resp.ByStatus[string(status)] = n
		resp.TotalDebates += n
	}
	for _, e := range recent {
		resp.RecentErrors = append(resp.RecentErrors, recentErrorEntry{
			DebateID:     e.DebateID,
			Title:        e.Title,
			ErrorMessage: e.ErrorMessage,
			UpdatedAt:    e.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type debateInfo struct {
	ID              string    `json:"id"`
	LegislatureCode string    `json:"legislature_code"`
	Title           string    `json:"title"`
	Date            string    `json:"date"`
	SessionType     string    `json:"session_type"`
	Status          string    `json:"status"`
	DurationSeconds int       `json:"duration_seconds,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

func (s *Server) handleDebates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.ListFilter{
		LegislatureCode: q.Get("legislature_code"),
	}
	if raw := q.Get("status"); raw != "" {
		status := store.Status(raw)
		if !status.IsValid() {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "unknown status " + raw})
			return
		}
		filter.Status = status
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "limit must be a positive integer"})
			return
		}
		filter.Limit = limit
	}

	debates, err := s.store.ListDebates(r.Context(), filter)
	if err != nil {
		s.log.Error("failed to list debates", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "failed to list debates"})
		return
	}

	out := make([]debateInfo, 0, len(debates))
	for _, d := range debates {
		info := debateInfo{
			ID:              d.ID,
			Title:           d.Title,
			Date:            d.Date.Format("2006-01-02"),
			SessionType:     string(d.SessionType),
			Status:          string(d.Status),
			DurationSeconds: d.DurationSeconds,
			CreatedAt:       d.CreatedAt,
		}
		if d.Legislature != nil {
			info.LegislatureCode = d.Legislature.Code
		}
		out = append(out, info)
	}
	writeJSON(w, http.StatusOK, out)
}

type retriggerRequest struct {
	DebateID   string `json:"debate_id"`
	FromStatus string `json:"from_status"`
}

// handleRetrigger resets a debate to the given status and re-enters its chain
// at the matching stage.
func (s *Server) handleRetrigger(w http.ResponseWriter, r *http.Request) {
	var req retriggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body"})
		return
	}
	if req.DebateID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "debate_id is required"})
		return
	}
	status := store.Status(req.FromStatus)
	if req.FromStatus == "" {
		status = store.StatusDetected
	} else if !status.IsValid() {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "unknown status " + req.FromStatus})
		return
	}

	if err := s.pipeline.Retrigger(r.Context(), req.DebateID, status); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody{Error: "debate not found"})
			return
		}
		s.log.Error("failed to retrigger debate", "debate_id", req.DebateID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "failed to retrigger debate"})
		return
	}

	s.log.Info("debate retriggered via api", "debate_id", req.DebateID, "from_status", status)
	writeJSON(w, http.StatusOK, queuedResponse{
		Status:     "queued",
		DebateID:   req.DebateID,
		FromStatus: string(status),
	})
}

type testDebateRequest struct {
	YouTubeURL string `json:"youtube_url"`
	Title      string `json:"title"`
}

// handleTestDebate records a throwaway debate around a video URL and runs the
// audio-first chain on it.
func (s *Server) handleTestDebate(w http.ResponseWriter, r *http.Request) {
	var req testDebateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body"})
		return
	}
	if req.YouTubeURL == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "youtube_url is required"})
		return
	}

	id, err := s.pipeline.CreateTestDebate(r.Context(), req.YouTubeURL, req.Title)
	if err != nil {
		s.log.Error("failed to create test debate", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "failed to create test debate"})
		return
	}

	s.log.Info("test debate queued via api", "debate_id", id)
	writeJSON(w, http.StatusAccepted, queuedResponse{Status: "queued", DebateID: id})
}

type testHansardRequest struct {
	SittingDate string `json:"sitting_date"` // YYYY-MM-DD
	Title       string `json:"title"`
}

// handleTestHansard records a throwaway federal debate for a sitting date and
// runs the transcript-first chain against the published Hansard.
func (s *Server) handleTestHansard(w http.ResponseWriter, r *http.Request) {
	var req testHansardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body"})
		return
	}
	if _, err := time.Parse("2006-01-02", req.SittingDate); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "sitting_date must be YYYY-MM-DD"})
		return
	}

	id, err := s.pipeline.CreateTestHansard(r.Context(), req.SittingDate, req.Title)
	if err != nil {
		s.log.Error("failed to create test hansard debate", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "failed to create test hansard debate"})
		return
	}

	s.log.Info("test hansard queued via api", "debate_id", id, "sitting_date", req.SittingDate)
	writeJSON(w, http.StatusAccepted, queuedResponse{Status: "queued", DebateID: id})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failure"}`, http.StatusInternalServerError)
	}
}
