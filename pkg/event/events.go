package event

// ============================================================================
// Event Names (constants)
// ============================================================================

const (
	DialogueRecorded = "dialogue.recorded"
	SummaryWritten   = "summary.written"
)

// DialogueRecordedEvent is emitted after a message has been appended to the store.
type DialogueRecordedEvent struct {
	MessageID      string `json:"message_id"`
	Role           string `json:"role"`
	Date           string `json:"date"`
	Repository     string `json:"repository,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
}

func (e DialogueRecordedEvent) EventName() string { return DialogueRecorded }

// SummaryWrittenEvent is emitted when a date's summary document is created or overwritten.
type SummaryWrittenEvent struct {
	Date    string `json:"date"`
	Origin  string `json:"origin"`  // remote, heuristic, heuristic-fallback, external
	Trigger string `json:"trigger"` // schedule, reconcile, manual, external
}

func (e SummaryWrittenEvent) EventName() string { return SummaryWritten }
