// Package whisper provides whisper.cpp-backed speech recognition providers.
//
// Two implementations are available:
//
//   - NativeProvider links whisper.cpp directly via CGO and keeps the model
//     in-process. Preferred for worker nodes with local GPU/CPU inference.
//   - ServerProvider talks to a running whisper-server binary (POST
//     /inference) over HTTP, so the model can live on a separate machine.
//
// Both accept 16 kHz mono 16-bit PCM WAV files, as produced by the media
// downloader's ffmpeg extraction.
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/maplecivic/hansardflow/pkg/provider/asr"
)

// Compile-time assertion that ServerProvider satisfies asr.Provider.
var _ asr.Provider = (*ServerProvider)(nil)

// ServerProvider implements asr.Provider against a whisper-server HTTP
// endpoint. Safe for concurrent use; each call is an independent request.
type ServerProvider struct {
	serverURL string
	model     string
	client    *http.Client
}

// ServerOption is a functional option for configuring a ServerProvider.
type ServerOption func(*ServerProvider)

// WithServerModel sets the model identifier forwarded to the server (e.g.,
// "large-v3"). When empty the server uses whichever model it was started with.
func WithServerModel(model string) ServerOption {
	return func(p *ServerProvider) { p.model = model }
}

// WithHTTPClient overrides the HTTP client. The default has no timeout
// because multi-hour sittings legitimately take a long time to transcribe;
// cancellation is handled through the request context.
func WithHTTPClient(c *http.Client) ServerOption {
	return func(p *ServerProvider) { p.client = c }
}

// NewServer creates a ServerProvider for the whisper-server at serverURL
// (e.g., "http://localhost:8080").
func NewServer(serverURL string, opts ...ServerOption) (*ServerProvider, error) {
	if serverURL == "" {
		return nil, fmt.Errorf("whisper: serverURL must not be empty")
	}
	p := &ServerProvider{
		serverURL: strings.TrimRight(serverURL, "/"),
		client:    &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// serverResponse mirrors whisper-server's verbose_json response shape.
type serverResponse struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Segments []struct {
		Start        float64 `json:"start"`
		End          float64 `json:"end"`
		Text         string  `json:"text"`
		AvgLogprob   float64 `json:"avg_logprob"`
		NoSpeechProb float64 `json:"no_speech_prob"`
		Words        []struct {
			Word        string  `json:"word"`
			Start       float64 `json:"start"`
			End         float64 `json:"end"`
			Probability float64 `json:"probability"`
		} `json:"words"`
	} `json:"segments"`
}

// TranscribeFile implements asr.Provider by uploading the WAV file to the
// server's /inference endpoint as multipart/form-data.
func (p *ServerProvider) TranscribeFile(ctx context.Context, path string, opts asr.Options) (*asr.Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("whisper: open %q: %w", path, err)
	}
	defer f.Close()

	lang := opts.Language
	if lang == "" {
		lang = "en"
	}
	prompt := opts.InitialPrompt
	if prompt == "" {
		prompt = asr.InitialPrompt(lang)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := io.Copy(fw, f); err != nil {
		return nil, fmt.Errorf("whisper: copy audio: %w", err)
	}
	fields := map[string]string{
		"response_format": "verbose_json",
		"language":        lang,
		"prompt":          prompt,
		"temperature":     "0.0",
	}
	if p.model != "" {
		fields["model"] = p.model
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("whisper: write field %q: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+"/inference", &body)
	if err != nil {
		return nil, fmt.Errorf("whisper: build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("whisper: inference request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("whisper: server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var sr serverResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("whisper: decode response: %w", err)
	}

	return p.convert(&sr, lang, int(time.Since(start).Seconds())), nil
}

// convert maps the server response onto an asr.Result.
func (p *ServerProvider) convert(sr *serverResponse, lang string, elapsed int) *asr.Result {
	result := &asr.Result{
		Model:               p.model,
		ProcessingTime:      elapsed,
		DetectedLanguage:    sr.Language,
		LanguageProbability: 1,
	}
	if result.Model == "" {
		result.Model = "whisper-server"
	}
	if result.DetectedLanguage == "" {
		result.DetectedLanguage = lang
	}

	var (
		parts           []string
		confidenceTotal float64
	)
	for _, s := range sr.Segments {
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		seg := asr.Segment{
			Start:        round2(s.Start),
			End:          round2(s.End),
			Text:         text,
			Confidence:   round4(s.AvgLogprob),
			NoSpeechProb: round4(s.NoSpeechProb),
		}
		for _, w := range s.Words {
			seg.Words = append(seg.Words, asr.Word{
				Word:        w.Word,
				Start:       round2(w.Start),
				End:         round2(w.End),
				Probability: round4(w.Probability),
			})
		}
		result.Segments = append(result.Segments, seg)
		parts = append(parts, text)
		result.WordCount += len(strings.Fields(text))
		confidenceTotal += seg.Confidence
		if seg.End > result.AudioDuration {
			result.AudioDuration = seg.End
		}
	}

	result.RawText = strings.Join(parts, " ")
	if strings.TrimSpace(sr.Text) != "" {
		result.RawText = strings.TrimSpace(sr.Text)
	}
	if n := len(result.Segments); n > 0 {
		result.AvgConfidence = round4(confidenceTotal / float64(n))
	}
	return result
}
