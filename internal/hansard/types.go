package hansard

// TopicRef is a bill or subject-of-business tag attached to a speech.
type TopicRef struct {
	Title string `json:"title"`
	ID    string `json:"id"`
	URL   string `json:"url"`
}

// Speech is a single intervention from the official Hansard record.
type Speech struct {
	SpeakerName string     `json:"speaker_name"`
	Riding      string     `json:"riding"`
	MemberID    string     `json:"member_id"`
	MemberURL   string     `json:"member_url"`
	Party       string     `json:"party"`
	Province    string     `json:"province"`
	Date        string     `json:"date"` // YYYY-MM-DD
	Time        string     `json:"time"` // HH:MM, 24h
	PageRef     string     `json:"page_ref"`
	Text        string     `json:"text"`
	Topics      []TopicRef `json:"topics"`
	Section     string     `json:"section"`
	Order       int        `json:"order"`
}

// TopicGroup collects the speeches on one topic or bill, in chronological
// order. Speeches without a topic tag are grouped under their Order of
// Business section instead.
type TopicGroup struct {
	Title        string   `json:"topic_title"`
	TopicID      string   `json:"topic_id"`
	Section      string   `json:"section"`
	Speeches     []Speech `json:"speeches"`
	SpeakerCount int      `json:"speaker_count"`
	Parties      []string `json:"parties_involved"`
}

// SpeakerSummary describes one member who spoke during the sitting.
type SpeakerSummary struct {
	Name        string `json:"name"`
	Riding      string `json:"riding"`
	Party       string `json:"party"`
	Province    string `json:"province"`
	MemberID    string `json:"member_id"`
	MemberURL   string `json:"member_url"`
	SpeechCount int    `json:"speech_count"`
}

// Result is everything scraped for one sitting date.
type Result struct {
	SittingDate   string           `json:"sitting_date"`
	HansardNumber string           `json:"hansard_number"`
	Sections      []TopicGroup     `json:"sections"`
	Speeches      []Speech         `json:"all_speeches"`
	Speakers      []SpeakerSummary `json:"speakers"`
}

// TotalSpeeches reports the number of interventions in the result.
func (r *Result) TotalSpeeches() int {
	return len(r.Speeches)
}
