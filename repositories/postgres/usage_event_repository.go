package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/upb/rag-query-service/models"
	"github.com/upb/rag-query-service/repositories"
	"go.uber.org/zap"
)

// UsageEventRepository implements the repositories.UsageEventRepository interface
type UsageEventRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewUsageEventRepository creates a new usage event repository
func NewUsageEventRepository(db *DB, logger *zap.Logger) repositories.UsageEventRepository {
	return &UsageEventRepository{
		db:     db,
		logger: logger,
	}
}

// Insert appends a usage event
func (r *UsageEventRepository) Insert(ctx context.Context, event *models.UsageEvent) error {
	query := `
		INSERT INTO usage_events (
			pk, sk, tenant_id, event_id, timestamp, model_id, model_type,
			input_tokens, output_tokens, total_tokens, estimated_cost
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		)
	`

	_, err := r.db.ExecContext(ctx, query,
		event.PartitionKey(),
		event.SortKey(),
		event.TenantID,
		event.EventID,
		event.Timestamp,
		event.ModelID,
		string(event.ModelType),
		event.InputTokens,
		event.OutputTokens,
		event.TotalTokens,
		event.EstimatedCost,
	)

	if err != nil {
		return fmt.Errorf("failed to insert usage event: %w", err)
	}

	r.logger.Debug("usage event inserted",
		zap.String("event_id", event.EventID.String()),
		zap.String("tenant_id", event.TenantID),
		zap.String("model_id", event.ModelID))
	return nil
}

// likeEscaper escapes LIKE wildcards so a prefix matches literally
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// prefixPattern turns a key prefix into a LIKE pattern served by the
// text_pattern_ops index on pk
func prefixPattern(prefix string) string {
	return likeEscaper.Replace(prefix) + "%"
}

// ScanPrefix returns one page of events whose partition key starts with prefix.
// A page shorter than limit is the last one.
func (r *UsageEventRepository) ScanPrefix(ctx context.Context, prefix string, startKey *models.PageKey, limit int) ([]*models.UsageEvent, *models.PageKey, error) {
	if limit <= 0 {
		return nil, nil, fmt.Errorf("scan limit must be positive, got %d", limit)
	}

	columns := `pk, sk, tenant_id, event_id, timestamp, model_id, model_type,
		       input_tokens, output_tokens, total_tokens, estimated_cost`

	var (
		query string
		args  []interface{}
	)
	if startKey == nil {
		query = `SELECT ` + columns + `
		FROM usage_events
		WHERE pk LIKE $1 ESCAPE '\'
		ORDER BY pk, sk
		LIMIT $2`
		args = []interface{}{prefixPattern(prefix), limit}
	} else {
		query = `SELECT ` + columns + `
		FROM usage_events
		WHERE pk LIKE $1 ESCAPE '\' AND (pk, sk) > ($2, $3)
		ORDER BY pk, sk
		LIMIT $4`
		args = []interface{}{prefixPattern(prefix), startKey.PK, startKey.SK, limit}
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to scan usage events: %w", err)
	}
	defer rows.Close()

	var (
		events []*models.UsageEvent
		last   models.PageKey
	)
	for rows.Next() {
		event := &models.UsageEvent{}
		var modelType string
		if err := rows.Scan(
			&last.PK,
			&last.SK,
			&event.TenantID,
			&event.EventID,
			&event.Timestamp,
			&event.ModelID,
			&modelType,
			&event.InputTokens,
			&event.OutputTokens,
			&event.TotalTokens,
			&event.EstimatedCost,
		); err != nil {
			return nil, nil, fmt.Errorf("failed to scan usage event: %w", err)
		}
		event.ModelType = models.ModelType(modelType)
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("error iterating usage events: %w", err)
	}

	if len(events) < limit {
		return events, nil, nil
	}

	next := last
	return events, &next, nil
}
