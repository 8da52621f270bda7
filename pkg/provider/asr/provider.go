// Package asr defines the Provider interface for batch speech recognition
// backends.
//
// Unlike conversational voice systems, parliamentary transcription is an
// offline batch job: a multi-hour WAV file goes in, a full transcript with
// segment and word timings comes out. Providers are therefore file-oriented
// rather than stream-oriented.
//
// Implementors must be safe for concurrent use; a single provider instance is
// shared by all transcription workers.
package asr

import "context"

// Word holds per-word timing and probability detail for one recognised word.
type Word struct {
	// Word is the recognised token, including any leading space.
	Word string `json:"word"`

	// Start and End are offsets into the audio in seconds.
	Start float64 `json:"start"`
	End   float64 `json:"end"`

	// Probability is the model's confidence for this word (0.0–1.0).
	Probability float64 `json:"probability"`
}

// Segment is one recognised utterance span.
type Segment struct {
	// Start and End are offsets into the audio in seconds.
	Start float64 `json:"start"`
	End   float64 `json:"end"`

	// Text is the recognised text, whitespace-trimmed.
	Text string `json:"text"`

	// Confidence is the average log-probability of the segment's tokens.
	// Zero when the backend does not report it.
	Confidence float64 `json:"confidence,omitempty"`

	// NoSpeechProb is the model's estimate that the span contains no speech.
	NoSpeechProb float64 `json:"no_speech_prob,omitempty"`

	// Words contains per-word detail when the backend supports word timestamps.
	Words []Word `json:"words,omitempty"`
}

// Result is a complete batch transcription of one audio file.
type Result struct {
	// RawText is the full transcript joined from all segment texts.
	RawText string

	// Segments is the ordered list of recognised spans.
	Segments []Segment

	// Model identifies the recognition model that produced the result.
	Model string

	// AvgConfidence is the mean of the segment confidences.
	AvgConfidence float64

	// WordCount is the total number of whitespace-separated words.
	WordCount int

	// ProcessingTime is the wall-clock transcription time in seconds.
	ProcessingTime int

	// DetectedLanguage is the ISO 639-1 code the model detected, with
	// LanguageProbability as its confidence. May echo the requested language
	// for backends without detection.
	DetectedLanguage    string
	LanguageProbability float64

	// AudioDuration is the length of the source audio in seconds.
	AudioDuration float64
}

// Options tunes a single transcription run.
type Options struct {
	// Language is the ISO 639-1 code to transcribe in ("en", "fr").
	// Empty means the provider default.
	Language string

	// InitialPrompt conditions the decoder with domain vocabulary. When empty
	// the provider supplies a parliamentary prompt for the chosen language.
	InitialPrompt string

	// BeamSize for decoding; zero means the provider default (5).
	BeamSize int
}

// Provider is the abstraction over any batch speech recognition backend.
type Provider interface {
	// TranscribeFile reads the audio file at path (16 kHz mono WAV) and returns
	// the full transcription. Long files can take many minutes; implementations
	// must honour ctx cancellation between segments where possible.
	TranscribeFile(ctx context.Context, path string, opts Options) (*Result, error)
}

// InitialPrompt returns the parliamentary conditioning prompt for the given
// language. The prompt primes the decoder with chamber vocabulary so that
// procedural terms are not misrecognised.
func InitialPrompt(language string) string {
	if language == "fr" {
		return "Débat parlementaire. Assemblée nationale. Chambre des communes. " +
			"Le Président, Monsieur le Premier Ministre, l'honorable député. " +
			"Projet de loi, motion, amendement, vote par appel nominal. " +
			"Période des questions orales."
	}
	return "Parliamentary debate. House of Commons. Legislative Assembly. " +
		"The Speaker, the Right Honourable Prime Minister, the honourable member. " +
		"Bill, motion, amendment, recorded division. " +
		"Oral Question Period. Order, order."
}
