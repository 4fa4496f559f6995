package models

import "strings"

// Role identifies who authored a dialogue turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the recorded roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message is one recorded conversational turn. It is never mutated after append.
type Message struct {
	ID             string `json:"id"`
	Timestamp      string `json:"timestamp"` // RFC 3339, UTC, millisecond precision
	Role           Role   `json:"role"`
	Content        string `json:"content"`
	Workspace      string `json:"workspace,omitempty"`
	Repository     string `json:"repository,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	GenerationID   string `json:"generation_id,omitempty"`
}

// CreateDialogueRequest is the body accepted by POST /api/dialogues.
// role and content are checked by Validate rather than binding tags so the
// handler can answer with the envelope's error field.
type CreateDialogueRequest struct {
	Role           Role   `json:"role"`
	Content        string `json:"content"`
	Workspace      string `json:"workspace,omitempty"`
	Repository     string `json:"repository,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	GenerationID   string `json:"generation_id,omitempty"`
}

// Validate returns a user-facing message when the request is unusable.
func (r *CreateDialogueRequest) Validate() string {
	if strings.TrimSpace(string(r.Role)) == "" || r.Content == "" {
		return "role and content are required"
	}
	if !r.Role.Valid() {
		return "role must be user or assistant"
	}
	return ""
}

// ConversationInfo is a derived grouping of messages sharing a conversation_id.
type ConversationInfo struct {
	ID          string `json:"id"`
	Repository  string `json:"repository,omitempty"`
	Workspace   string `json:"workspace,omitempty"`
	Count       int    `json:"count"`
	LastMessage string `json:"lastMessage"`
}

// RepositoryInfo is a derived grouping of messages by repository.
type RepositoryInfo struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// DialogueStats summarizes the store.
type DialogueStats struct {
	Total  int            `json:"total"`
	ByDate map[string]int `json:"byDate"`
}

// AnalyzeWithCursorRequest carries a summary produced outside the engine.
type AnalyzeWithCursorRequest struct {
	Summary string `json:"summary"`
}
