package domain

// StatusPriorityCount is one grouped row produced by a store.
type StatusPriorityCount struct {
	Status               RequestStatus
	Priority             RequestPriority
	Count                int64
	ResolutionMinutesSum float64
	EscalatedCount       int64
	EscalationLevelSum   int64
}

// RequestCounts is the raw aggregate a store hands to the statistics aggregator.
type RequestCounts struct {
	Rows []StatusPriorityCount
}

// Statistics is the derived snapshot exposed to the console.
type Statistics struct {
	TotalRequests         int64                     `json:"total_requests"`
	StatusCounts          map[RequestStatus]int64   `json:"status_counts"`
	PriorityCounts        map[RequestPriority]int64 `json:"priority_counts"`
	AvgResolutionMinutes  float64                   `json:"avg_resolution_minutes"`
	TimeoutCount          int64                     `json:"timeout_count"`
	AvgEscalationLevel    float64                   `json:"avg_escalation_level"`
	EscalationSuccessRate float64                   `json:"escalation_success_rate"`
}
