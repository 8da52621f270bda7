package llm

// Message represents a single message in an LLM conversation history.
type Message struct {
	// Role is one of "system", "user", or "assistant".
	Role string

	// Content is the text content of the message.
	Content string
}

// ModelCapabilities describes what an LLM model supports.
type ModelCapabilities struct {
	// ContextWindow is the maximum token count for input + output.
	ContextWindow int

	// MaxOutputTokens is the maximum completion length the model allows.
	MaxOutputTokens int

	// SupportsJSONMode indicates whether the backend accepts a native JSON
	// response format parameter.
	SupportsJSONMode bool

	// Languages lists the ISO 639-1 codes the model handles well. Empty means
	// unknown/unrestricted.
	Languages []string
}
