package models

// Conversation roles accepted in history turns
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ConversationTurn is one prior message of the conversation
type ConversationTurn struct {
	Role    string `json:"role" validate:"required,oneof=user assistant"`
	Content string `json:"content"`
}

// Passage is one retrieved document chunk, in store relevance order
type Passage struct {
	Body     string
	TenantID string
	Rank     int
}

// SourceMetadata carries the provenance of a source
type SourceMetadata struct {
	TenantID string `json:"tenant_id"`
}

// Source is the caller-facing preview of a retrieved passage
type Source struct {
	Title    string         `json:"title"`
	Snippet  string         `json:"snippet"`
	Metadata SourceMetadata `json:"metadata"`
}
