package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/helpline/escalation-service/internal/domain"
	apperrors "github.com/helpline/escalation-service/pkg/util/errorutil"
)

// HelpRequestRepository encapsulates help request persistence.
//
// Every mutation is a compare-and-set against the stored record: a write that
// raced another writer fails with a CONCURRENCY_CONFLICT error and never
// overwrites. Terminal records reject every mutation with VALIDATION_FAILED.
type HelpRequestRepository interface {
	Create(ctx context.Context, req *domain.HelpRequest) error
	GetByID(ctx context.Context, id int64) (*domain.HelpRequest, error)
	ListPending(ctx context.Context, limit int) ([]domain.HelpRequest, error)
	ListExpired(ctx context.Context, now time.Time) ([]domain.HelpRequest, error)
	ListByCustomer(ctx context.Context, customerID string) ([]domain.HelpRequest, error)
	Claim(ctx context.Context, id int64, assignee string, at time.Time) (*domain.HelpRequest, error)
	AppendEscalation(ctx context.Context, id int64, update EscalationUpdate) (*domain.HelpRequest, error)
	MarkTerminal(ctx context.Context, id int64, update TerminalUpdate) (*domain.HelpRequest, error)
	Statistics(ctx context.Context) (domain.RequestCounts, error)
	Ping(ctx context.Context) error
}

// EscalationUpdate moves a request from ExpectedLevel to ExpectedLevel+1.
type EscalationUpdate struct {
	ExpectedLevel int
	Assignee      string
	Reason        string
	At            time.Time
	NextTimeoutAt time.Time
}

// TerminalUpdate moves a request into RESOLVED or UNRESOLVED.
// A nil AssignedTo keeps the current assignee; a non-nil ExpectedLevel turns
// the write into a compare-and-set on the escalation level. EscalatableOnly
// rejects records a supervisor has claimed since they were read.
type TerminalUpdate struct {
	Status          domain.RequestStatus
	Resolution      string
	AssignedTo      *string
	At              time.Time
	ExpectedLevel   *int
	EscalatableOnly bool
}

func notFound(id int64) error {
	return apperrors.NewNotFound("help request", map[string]any{"id": id})
}

func checkEscalation(current domain.HelpRequest, update EscalationUpdate) error {
	if current.Status.IsTerminal() {
		return apperrors.NewValidationError("help request is terminal", map[string]any{"id": current.ID, "status": current.Status})
	}
	if current.EscalationLevel != update.ExpectedLevel || !current.Status.Escalatable() {
		return apperrors.NewConcurrencyError("help request changed concurrently", map[string]any{
			"id":             current.ID,
			"expected_level": update.ExpectedLevel,
			"current_level":  current.EscalationLevel,
			"status":         current.Status,
		})
	}
	next := update.ExpectedLevel + 1
	if next > current.Priority.MaxLevels() {
		return apperrors.NewValidationError("escalation level exceeds policy", map[string]any{
			"id":         current.ID,
			"level":      next,
			"max_levels": current.Priority.MaxLevels(),
		})
	}
	if update.Assignee == "" {
		return apperrors.NewValidationError("escalation requires an assignee", map[string]any{"id": current.ID})
	}
	return nil
}

func applyEscalation(current domain.HelpRequest, update EscalationUpdate) domain.HelpRequest {
	next := current.Clone()
	next.EscalationLevel = update.ExpectedLevel + 1
	next.EscalationHistory = append(next.EscalationHistory, domain.EscalationEntry{
		Timestamp: update.At,
		Level:     next.EscalationLevel,
		Assignee:  update.Assignee,
		Reason:    update.Reason,
	})
	next.Status = domain.StatusTimeout
	assignee := update.Assignee
	next.AssignedTo = &assignee
	next.TimeoutAt = update.NextTimeoutAt
	next.UpdatedAt = update.At
	return next
}

func checkTerminal(current domain.HelpRequest, update TerminalUpdate) error {
	if !update.Status.IsTerminal() {
		return apperrors.NewValidationError("terminal status required", map[string]any{"status": update.Status})
	}
	if current.Status.IsTerminal() {
		return apperrors.NewValidationError("help request already terminal", map[string]any{"id": current.ID, "status": current.Status})
	}
	if update.ExpectedLevel != nil && *update.ExpectedLevel != current.EscalationLevel ||
		update.EscalatableOnly && !current.Status.Escalatable() {
		details := map[string]any{
			"id":            current.ID,
			"current_level": current.EscalationLevel,
			"status":        current.Status,
		}
		if update.ExpectedLevel != nil {
			details["expected_level"] = *update.ExpectedLevel
		}
		return apperrors.NewConcurrencyError("help request changed concurrently", details)
	}
	return nil
}

func applyTerminal(current domain.HelpRequest, update TerminalUpdate) domain.HelpRequest {
	next := current.Clone()
	next.Status = update.Status
	resolution := update.Resolution
	next.Resolution = &resolution
	if update.AssignedTo != nil {
		assignee := *update.AssignedTo
		next.AssignedTo = &assignee
	}
	next.UpdatedAt = update.At
	return next
}

func checkClaim(current domain.HelpRequest, assignee string) error {
	if assignee == "" {
		return apperrors.NewValidationError("assignee required", map[string]any{"id": current.ID})
	}
	if current.Status != domain.StatusPending {
		return apperrors.NewValidationError("only pending requests can be claimed", map[string]any{"id": current.ID, "status": current.Status})
	}
	return nil
}

func applyClaim(current domain.HelpRequest, assignee string, at time.Time) domain.HelpRequest {
	next := current.Clone()
	next.Status = domain.StatusInProgress
	next.AssignedTo = &assignee
	next.UpdatedAt = at
	return next
}

func validateNew(req *domain.HelpRequest) error {
	if req == nil {
		return apperrors.NewValidationError("help request required", nil)
	}
	if _, ok := domain.PolicyFor(req.Priority); !ok {
		return apperrors.NewValidationError("unknown priority", map[string]any{"priority": req.Priority})
	}
	if req.Status != domain.StatusPending || req.EscalationLevel != 0 || len(req.EscalationHistory) != 0 {
		return apperrors.NewValidationError("new help requests start pending at level 0", nil)
	}
	return nil
}

func encodeJSON(v any, empty string) (string, error) {
	if v == nil {
		return empty, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode json: %w", err)
	}
	if string(raw) == "null" {
		return empty, nil
	}
	return string(raw), nil
}

func decodeRequestJSON(req *domain.HelpRequest, tags, metadata, history []byte) error {
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &req.Tags); err != nil {
			return fmt.Errorf("decode tags: %w", err)
		}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &req.Metadata); err != nil {
			return fmt.Errorf("decode metadata: %w", err)
		}
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &req.EscalationHistory); err != nil {
			return fmt.Errorf("decode escalation history: %w", err)
		}
	}
	return nil
}

func normalizeScanned(req *domain.HelpRequest, status, priority string) error {
	var err error
	if req.Status, err = domain.ParseStatus(status); err != nil {
		return err
	}
	if req.Priority, err = domain.ParsePriority(priority); err != nil {
		return err
	}
	return nil
}

func tally(requests []domain.HelpRequest) domain.RequestCounts {
	type key struct {
		status   domain.RequestStatus
		priority domain.RequestPriority
	}
	index := map[key]int{}
	var counts domain.RequestCounts
	for _, req := range requests {
		k := key{req.Status, req.Priority}
		i, ok := index[k]
		if !ok {
			i = len(counts.Rows)
			index[k] = i
			counts.Rows = append(counts.Rows, domain.StatusPriorityCount{Status: req.Status, Priority: req.Priority})
		}
		row := &counts.Rows[i]
		row.Count++
		if req.Status == domain.StatusResolved {
			row.ResolutionMinutesSum += req.UpdatedAt.Sub(req.CreatedAt).Minutes()
		}
		if req.EscalationLevel > 0 {
			row.EscalatedCount++
			row.EscalationLevelSum += int64(req.EscalationLevel)
		}
	}
	return counts
}
