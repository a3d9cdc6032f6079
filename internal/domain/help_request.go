package domain

import (
	"strings"
	"time"

	apperrors "github.com/helpline/escalation-service/pkg/util/errorutil"
)

// RequestStatus enumerates lifecycle states for help requests.
type RequestStatus string

const (
	StatusPending    RequestStatus = "PENDING"
	StatusInProgress RequestStatus = "IN_PROGRESS"
	StatusTimeout    RequestStatus = "TIMEOUT"
	StatusResolved   RequestStatus = "RESOLVED"
	StatusUnresolved RequestStatus = "UNRESOLVED"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []RequestStatus{StatusPending, StatusInProgress, StatusTimeout, StatusResolved, StatusUnresolved}

// ParseStatus rejects anything outside the closed set.
func ParseStatus(raw string) (RequestStatus, error) {
	status := RequestStatus(strings.ToUpper(strings.TrimSpace(raw)))
	for _, known := range AllStatuses {
		if status == known {
			return status, nil
		}
	}
	return "", apperrors.NewValidationError("unknown status", map[string]any{"status": raw})
}

// IsTerminal reports whether no transition may leave the status.
func (s RequestStatus) IsTerminal() bool {
	return s == StatusResolved || s == StatusUnresolved
}

// Escalatable reports whether the sweep may pick up a request in this status.
func (s RequestStatus) Escalatable() bool {
	return s == StatusPending || s == StatusTimeout
}

// RequestPriority enumerates urgency.
type RequestPriority string

const (
	PriorityLow    RequestPriority = "LOW"
	PriorityMedium RequestPriority = "MEDIUM"
	PriorityHigh   RequestPriority = "HIGH"
	PriorityUrgent RequestPriority = "URGENT"
)

// AllPriorities lists priorities from least to most urgent.
var AllPriorities = []RequestPriority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}

// ParsePriority rejects anything outside the closed set.
func ParsePriority(raw string) (RequestPriority, error) {
	priority := RequestPriority(strings.ToUpper(strings.TrimSpace(raw)))
	for _, known := range AllPriorities {
		if priority == known {
			return priority, nil
		}
	}
	return "", apperrors.NewValidationError("unknown priority", map[string]any{"priority": raw})
}

// Rank orders priorities; higher is more urgent. Unknown values rank 0.
func (p RequestPriority) Rank() int {
	for i, known := range AllPriorities {
		if p == known {
			return i + 1
		}
	}
	return 0
}

// HelpRequest is the aggregate for a question routed to a human supervisor.
type HelpRequest struct {
	ID                int64
	CustomerID        string
	CustomerName      string
	Question          string
	Status            RequestStatus
	Priority          RequestPriority
	CreatedAt         time.Time
	UpdatedAt         time.Time
	AssignedTo        *string
	Resolution        *string
	Tags              []string
	Metadata          map[string]any
	TimeoutAt         time.Time
	EscalationLevel   int
	EscalationHistory []EscalationEntry
}

// Clone returns a deep copy so callers can never alias store state.
func (r HelpRequest) Clone() HelpRequest {
	out := r
	if r.AssignedTo != nil {
		v := *r.AssignedTo
		out.AssignedTo = &v
	}
	if r.Resolution != nil {
		v := *r.Resolution
		out.Resolution = &v
	}
	if r.Tags != nil {
		out.Tags = append([]string(nil), r.Tags...)
	}
	if r.Metadata != nil {
		out.Metadata = make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			out.Metadata[k] = v
		}
	}
	if r.EscalationHistory != nil {
		out.EscalationHistory = append([]EscalationEntry(nil), r.EscalationHistory...)
	}
	return out
}

// Assignee returns the current assignee or an empty string.
func (r HelpRequest) Assignee() string {
	if r.AssignedTo == nil {
		return ""
	}
	return *r.AssignedTo
}

// Expired reports whether the sweep should act on the request at now.
func (r HelpRequest) Expired(now time.Time) bool {
	return r.Status.Escalatable() && r.TimeoutAt.Before(now)
}
