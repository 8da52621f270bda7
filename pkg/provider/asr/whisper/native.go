// This file contains the NativeProvider implementation backed by the
// whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a)
// and headers (whisper.h) must be available at link time via LIBRARY_PATH
// and C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/maplecivic/hansardflow/pkg/provider/asr"
)

// Compile-time assertion that NativeProvider satisfies asr.Provider.
var _ asr.Provider = (*NativeProvider)(nil)

// defaultBeamSize matches the decoding beam used for parliamentary audio.
const defaultBeamSize = 5

// NativeProvider implements asr.Provider using whisper.cpp Go bindings (CGO).
// The model is loaded lazily on the first transcription and then shared by all
// workers for the lifetime of the provider; each transcription creates its own
// whisper.cpp context, which is the unit of thread confinement in the bindings.
type NativeProvider struct {
	modelPath string
	modelName string

	loadOnce sync.Once
	model    whisperlib.Model
	loadErr  error
}

// NativeOption is a functional option for configuring a NativeProvider.
type NativeOption func(*NativeProvider)

// WithNativeModelName overrides the model name recorded on results. Defaults
// to the model file path.
func WithNativeModelName(name string) NativeOption {
	return func(p *NativeProvider) { p.modelName = name }
}

// NewNative creates a NativeProvider for the whisper.cpp model at modelPath.
// The model file is not touched until the first TranscribeFile call, so
// constructing the provider is cheap even when the pipeline never reaches the
// transcription stage. The caller must call Close when done.
func NewNative(modelPath string, opts ...NativeOption) (*NativeProvider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	p := &NativeProvider{
		modelPath: modelPath,
		modelName: modelPath,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the whisper model if it was loaded.
func (p *NativeProvider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// load performs the one-time lazy model load.
func (p *NativeProvider) load() error {
	p.loadOnce.Do(func() {
		start := time.Now()
		slog.Info("loading whisper model", "path", p.modelPath)
		model, err := whisperlib.New(p.modelPath)
		if err != nil {
			p.loadErr = fmt.Errorf("whisper: load model %q: %w", p.modelPath, err)
			return
		}
		p.model = model
		slog.Info("whisper model loaded", "path", p.modelPath, "elapsed", time.Since(start))
	})
	return p.loadErr
}

// TranscribeFile implements asr.Provider. The audio file must be a 16 kHz
// 16-bit PCM WAV; stereo input is downmixed to mono.
func (p *NativeProvider) TranscribeFile(ctx context.Context, path string, opts asr.Options) (*asr.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: context already cancelled: %w", err)
	}
	if err := p.load(); err != nil {
		return nil, err
	}

	samples, sampleRate, err := readWAVFile(path)
	if err != nil {
		return nil, fmt.Errorf("whisper: read %q: %w", path, err)
	}
	audioDuration := float64(len(samples)) / float64(sampleRate)

	lang := opts.Language
	if lang == "" {
		lang = "en"
	}
	prompt := opts.InitialPrompt
	if prompt == "" {
		prompt = asr.InitialPrompt(lang)
	}
	beam := opts.BeamSize
	if beam <= 0 {
		beam = defaultBeamSize
	}

	// Each inference gets a fresh context; contexts are not thread-safe but
	// the model itself is shared.
	wctx, err := p.model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(lang); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", lang, "error", err)
	}
	wctx.SetBeamSize(beam)
	wctx.SetInitialPrompt(prompt)
	wctx.SetTokenTimestamps(true)

	start := time.Now()
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return nil, fmt.Errorf("whisper: process audio: %w", err)
	}

	result := &asr.Result{
		Model:               p.modelName,
		DetectedLanguage:    lang,
		LanguageProbability: 1,
		AudioDuration:       round2(audioDuration),
	}

	var (
		parts           []string
		confidenceTotal float64
	)
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("whisper: read segment: %w", err)
		}

		text := strings.TrimSpace(segment.Text)
		if text == "" {
			continue
		}

		seg := asr.Segment{
			Start: round2(segment.Start.Seconds()),
			End:   round2(segment.End.Seconds()),
			Text:  text,
		}
		var tokenP float64
		for _, tok := range segment.Tokens {
			tokText := tok.Text
			if strings.HasPrefix(tokText, "[_") {
				continue // special tokens like [_BEG_]
			}
			seg.Words = append(seg.Words, asr.Word{
				Word:        tokText,
				Start:       round2(tok.Start.Seconds()),
				End:         round2(tok.End.Seconds()),
				Probability: round4(float64(tok.P)),
			})
			tokenP += float64(tok.P)
		}
		if len(seg.Words) > 0 {
			seg.Confidence = round4(tokenP / float64(len(seg.Words)))
			confidenceTotal += seg.Confidence
		}

		result.Segments = append(result.Segments, seg)
		parts = append(parts, text)
		result.WordCount += len(strings.Fields(text))
	}

	result.RawText = strings.Join(parts, " ")
	result.ProcessingTime = int(time.Since(start).Seconds())
	if n := len(result.Segments); n > 0 {
		result.AvgConfidence = round4(confidenceTotal / float64(n))
	}
	return result, nil
}
