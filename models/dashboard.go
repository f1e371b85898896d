package models

// ModelUsage is the per-model slice of a dashboard aggregate
type ModelUsage struct {
	Invocations  int     `json:"invocations"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	Cost         float64 `json:"cost"`
}

// DashboardAggregate summarises a tenant's usage events. It is derived on
// demand and never stored.
type DashboardAggregate struct {
	TotalCost            float64                `json:"total_cost"`
	TotalInvocations     int                    `json:"total_invocations"`
	TotalTokens          int                    `json:"total_tokens"`
	ChatInvocations      int                    `json:"chat_invocations"`
	EmbeddingInvocations int                    `json:"embedding_invocations"`
	ModelBreakdown       map[string]*ModelUsage `json:"model_breakdown"`
}

// NewDashboardAggregate returns the all-zero aggregate
func NewDashboardAggregate() *DashboardAggregate {
	return &DashboardAggregate{
		ModelBreakdown: make(map[string]*ModelUsage),
	}
}

// Add folds one event into the aggregate. Costs are summed unrounded; callers
// round once all events are added.
func (a *DashboardAggregate) Add(e *UsageEvent) {
	a.TotalInvocations++
	a.TotalTokens += e.TotalTokens
	a.TotalCost += e.EstimatedCost

	switch e.ModelType {
	case ModelTypeChat:
		a.ChatInvocations++
	case ModelTypeEmbedding:
		a.EmbeddingInvocations++
	}

	usage, ok := a.ModelBreakdown[e.ModelID]
	if !ok {
		usage = &ModelUsage{}
		a.ModelBreakdown[e.ModelID] = usage
	}
	usage.Invocations++
	usage.InputTokens += e.InputTokens
	usage.OutputTokens += e.OutputTokens
	usage.Cost += e.EstimatedCost
}
