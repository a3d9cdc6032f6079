package domain

import "time"

// Reasons recorded on escalation history entries and unresolved resolutions.
const (
	ReasonTimeout            = "timeout"
	ReasonLevelsExhausted    = "escalation levels exhausted"
	ReasonNoAssignee         = "no assignee available"
	UnresolvedResolutionText = "Unresolved: "
)

// EscalationEntry is an immutable audit trail entry appended on every escalation.
type EscalationEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     int       `json:"level"`
	Assignee  string    `json:"assignee"`
	Reason    string    `json:"reason"`
}

// EscalationPolicy is the fixed per-priority timeout window and level cap.
type EscalationPolicy struct {
	Window    time.Duration
	MaxLevels int
}

var policies = map[RequestPriority]EscalationPolicy{
	PriorityUrgent: {Window: 5 * time.Minute, MaxLevels: 3},
	PriorityHigh:   {Window: 10 * time.Minute, MaxLevels: 3},
	PriorityMedium: {Window: 15 * time.Minute, MaxLevels: 2},
	PriorityLow:    {Window: 30 * time.Minute, MaxLevels: 2},
}

// PolicyFor returns the policy for a priority. The bool is false for unknown priorities.
func PolicyFor(p RequestPriority) (EscalationPolicy, bool) {
	policy, ok := policies[p]
	return policy, ok
}

// Window is a shorthand for PolicyFor(p).Window; zero for unknown priorities.
func (p RequestPriority) Window() time.Duration {
	return policies[p].Window
}

// MaxLevels is a shorthand for PolicyFor(p).MaxLevels; zero for unknown priorities.
func (p RequestPriority) MaxLevels() int {
	return policies[p].MaxLevels
}

// UnresolvedResolution formats the resolution stored when a request gives up.
func UnresolvedResolution(reason string) string {
	return UnresolvedResolutionText + reason
}
