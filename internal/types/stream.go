package types

const (
	StreamRecordToken = "token"
	StreamRecordError = "error"
	StreamRecordDone  = "done"
)

// StreamRecord is one line of the ndjson answer stream. A stream is zero
// or more token records, at most one error record, and always ends with
// a done record.
type StreamRecord struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	Message string `json:"message,omitempty"`
}
