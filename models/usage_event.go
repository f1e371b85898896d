package models

import (
	"time"

	"github.com/google/uuid"
)

// ModelType identifies the kind of model call a usage event meters
type ModelType string

const (
	ModelTypeChat      ModelType = "chat"
	ModelTypeEmbedding ModelType = "embedding"
)

// UsageTimestampLayout is a fixed-width UTC layout so partition keys sort chronologically
const UsageTimestampLayout = "2006-01-02T15:04:05.000000Z"

// UsageEvent is an immutable record of one billable model invocation
type UsageEvent struct {
	EventID       uuid.UUID `json:"event_id" db:"event_id"`
	TenantID      string    `json:"tenant_id" db:"tenant_id"`
	Timestamp     time.Time `json:"timestamp" db:"timestamp"`
	ModelID       string    `json:"model_id" db:"model_id"`
	ModelType     ModelType `json:"model_type" db:"model_type"`
	InputTokens   int       `json:"input_tokens" db:"input_tokens"`
	OutputTokens  int       `json:"output_tokens" db:"output_tokens"`
	TotalTokens   int       `json:"total_tokens" db:"total_tokens"`
	EstimatedCost float64   `json:"estimated_cost" db:"estimated_cost"`
}

// NewUsageEvent creates a usage event stamped with a fresh ID and the given time.
// TotalTokens is always derived from the input and output counts.
func NewUsageEvent(tenantID, modelID string, modelType ModelType, inputTokens, outputTokens int, cost float64, at time.Time) *UsageEvent {
	return &UsageEvent{
		EventID:       uuid.New(),
		TenantID:      tenantID,
		Timestamp:     at.UTC(),
		ModelID:       modelID,
		ModelType:     modelType,
		InputTokens:   inputTokens,
		OutputTokens:  outputTokens,
		TotalTokens:   inputTokens + outputTokens,
		EstimatedCost: cost,
	}
}

// PartitionKey returns tenant#{tenant}#usage#{YYYY-MM-DD}#{timestamp}
func (e *UsageEvent) PartitionKey() string {
	ts := e.Timestamp.UTC()
	return UsagePrefix(e.TenantID) + ts.Format("2006-01-02") + "#" + ts.Format(UsageTimestampLayout)
}

// SortKey returns event#{event_id}
func (e *UsageEvent) SortKey() string {
	return "event#" + e.EventID.String()
}

// TableName returns the table name for the UsageEvent model
func (UsageEvent) TableName() string {
	return "usage_events"
}

// UsagePrefix returns the partition-key prefix covering every usage event of a tenant
func UsagePrefix(tenantID string) string {
	return TenantPartitionKey(tenantID) + "#usage#"
}

// PageKey is the exclusive start key of a prefix scan
type PageKey struct {
	PK string
	SK string
}
