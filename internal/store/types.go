package store

import "time"

// Status is the pipeline state of a debate. Transitions follow one of two
// chains depending on how the transcript is acquired:
//
//	transcript-first: detected → scraping_hansard → processing → summarizing →
//	                  categorizing → publishing → published
//	audio-first:      detected → ingesting → transcribing → processing →
//	                  summarizing → categorizing → publishing → published
//
// A debate found on a sitting calendar before its Hansard or video exists
// starts in scheduled. Any stage can park the debate in error once its retry
// budget is exhausted.
type Status string

const (
	StatusScheduled       Status = "scheduled"
	StatusDetected        Status = "detected"
	StatusScrapingHansard Status = "scraping_hansard"
	StatusIngesting       Status = "ingesting"
	StatusTranscribing    Status = "transcribing"
	StatusProcessing      Status = "processing"
	StatusSummarizing     Status = "summarizing"
	StatusCategorizing    Status = "categorizing"
	StatusPublishing      Status = "publishing"
	StatusPublished       Status = "published"
	StatusError           Status = "error"
)

// IsValid reports whether s is a known pipeline status.
func (s Status) IsValid() bool {
	switch s {
	case StatusScheduled, StatusDetected, StatusScrapingHansard, StatusIngesting,
		StatusTranscribing, StatusProcessing, StatusSummarizing, StatusCategorizing,
		StatusPublishing, StatusPublished, StatusError:
		return true
	}
	return false
}

// SessionType classifies a sitting.
type SessionType string

const (
	SessionHouse          SessionType = "house"
	SessionCommittee      SessionType = "committee"
	SessionQuestionPeriod SessionType = "question_period"
	SessionEmergency      SessionType = "emergency"
	SessionOther          SessionType = "other"
)

// GovernmentLevel distinguishes the federal Parliament from provincial
// legislatures.
type GovernmentLevel string

const (
	LevelFederal    GovernmentLevel = "federal"
	LevelProvincial GovernmentLevel = "provincial"
)

// Legislature is a chamber the pipeline polls: CA (House of Commons), ON
// (Legislative Assembly of Ontario), QC (Assemblée nationale du Québec).
type Legislature struct {
	ID              string
	Code            string
	Name            string
	GovernmentLevel GovernmentLevel
	Metadata        map[string]any
	CreatedAt       time.Time
}

// SourceURL is one acquisition candidate attached to a debate.
type SourceURL struct {
	URL   string `json:"url"`
	Type  string `json:"type"` // "video", "audio", "hansard"
	Label string `json:"label,omitempty"`
}

// Debate is one sitting moving through the pipeline.
type Debate struct {
	ID              string
	LegislatureID   string
	ExternalID      string
	Title           string
	Date            time.Time
	SessionType     SessionType
	Status          Status
	VideoURL        string
	HansardURL      string
	SourceURLs      []SourceURL
	Metadata        map[string]any
	DurationSeconds int
	ErrorMessage    string
	RetryCount      int
	CreatedAt       time.Time
	UpdatedAt       time.Time

	// Legislature is populated by reads that join the legislatures table.
	Legislature *Legislature
}

// Speaker is a member who spoke in a debate. Unique per (debate, name).
type Speaker struct {
	ID         string
	DebateID   string
	Name       string
	Party      string
	Riding     string
	ExternalID string
	Metadata   map[string]any
}

// Contribution is one speech by one speaker, ordered within the debate.
type Contribution struct {
	ID            string
	DebateID      string
	SpeakerID     string
	SpeakerName   string
	Text          string
	TextFR        string
	SequenceOrder int
	StartTime     float64
	EndTime       float64
	Metadata      map[string]any
}

// Topic is one Hansard subject-of-business section within a debate.
type Topic struct {
	ID              string
	DebateID        string
	TopicTitle      string
	TopicExternalID string
	Section         string
	SpeechCount     int
	SpeakerCount    int
	PartiesInvolved []string
	SequenceOrder   int
}

// Transcript is one full-sitting recognition result in one language.
type Transcript struct {
	ID                 string
	DebateID           string
	Language           string
	RawText            string
	Segments           []TranscriptSegment
	Model              string
	AvgConfidence      float64
	WordCount          int
	ProcessingTimeSecs int
	CreatedAt          time.Time
}

// TranscriptSegment is one recognised span inside a stored transcript.
type TranscriptSegment struct {
	Start        float64 `json:"start"`
	End          float64 `json:"end"`
	Text         string  `json:"text"`
	Confidence   float64 `json:"confidence,omitempty"`
	NoSpeechProb float64 `json:"no_speech_prob,omitempty"`
}

// MediaAsset is a downloaded audio/video artefact for a debate.
type MediaAsset struct {
	ID              string
	DebateID        string
	MediaType       string // "audio", "video"
	Source          string // "direct", "hls", "yt-dlp"
	OriginalURL     string
	LocalPath       string
	FileSizeBytes   int64
	DurationSeconds int
	Language        string
	Status          string // "ready", "failed"
	CreatedAt       time.Time
}

// Vote is one recorded division associated with a debate.
type Vote struct {
	ID          string
	DebateID    string
	MotionText  string
	BillNumber  string
	Result      string // "passed", "defeated"
	YeaCount    int
	NayCount    int
	Abstentions int
	ExternalID  string
	Metadata    map[string]any
}

// Summary is one LLM-generated debate summary in one language. Unique per
// (debate, language).
type Summary struct {
	ID              string
	DebateID        string
	Language        string
	SummaryText     string
	KeyParticipants []string
	KeyIssues       []string
	OutcomeText     string
	LLMModel        string
	CreatedAt       time.Time
}

// Category is one topic classification of a debate.
type Category struct {
	ID         string
	DebateID   string
	TopicSlug  string
	Confidence float64
	IsPrimary  bool
}

// Post records the forum post created for a published debate.
type Post struct {
	ID          string
	DebateID    string
	ForumPostID string
	ForumURL    string
	Title       string
	TopicSlug   string
	CreatedAt   time.Time
}

// ErrorRow is a row in the recent-errors listing.
type ErrorRow struct {
	DebateID     string
	Title        string
	ErrorMessage string
	UpdatedAt    time.Time
}
