package api

// Transcript is the stored record of one gateway exchange: what was asked,
// which provider answered, and the reassembled reply. Transcripts share
// their ID with the ChatResponse they record.
type Transcript struct {
	ID       string            `json:"id"`
	Object   string            `json:"object"`
	Provider string            `json:"provider"`
	Model    string            `json:"model"`
	Messages []ChatMessage     `json:"messages,omitempty"`
	Prompt   string            `json:"prompt,omitempty"`
	Options  CompletionOptions `json:"options"`

	// Reply is the concatenation of every delta received, including a
	// partial reply when the stream failed.
	Reply string `json:"reply"`

	// Error is set when the exchange did not complete.
	Error *APIError `json:"error,omitempty"`

	CreatedAt int64 `json:"created_at"`
}

// Failed reports whether the exchange ended with an error.
func (t *Transcript) Failed() bool {
	return t.Error != nil
}
