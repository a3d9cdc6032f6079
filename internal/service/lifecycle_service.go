package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/helpline/escalation-service/internal/domain"
	"github.com/helpline/escalation-service/internal/escalation"
	"github.com/helpline/escalation-service/internal/events"
	"github.com/helpline/escalation-service/internal/observability"
	"github.com/helpline/escalation-service/internal/repository"
	"github.com/helpline/escalation-service/internal/team"
	"github.com/helpline/escalation-service/internal/worker"
	apperrors "github.com/helpline/escalation-service/pkg/util/errorutil"
)

// ErrSweepInProgress is returned when another sweep holds the guard.
var ErrSweepInProgress = errors.New("sweep already in progress")

const (
	defaultPendingLimit = 50
	maxPendingLimit     = 500
)

// NotificationQueue accepts escalation notifications for asynchronous delivery.
type NotificationQueue interface {
	Start()
	Submit(job worker.Job) error
	Stop(ctx context.Context) error
}

// SweepGuard is a cross-instance lease. *persistence.RedisLock implements it.
type SweepGuard interface {
	TryAcquire(ctx context.Context) (release func(context.Context) error, ok bool, err error)
}

// LifecycleService owns the help request state machine and the timeout sweep.
type LifecycleService struct {
	repo          repository.HelpRequestRepository
	team          team.Provider
	notifications NotificationQueue
	dispatcher    events.Dispatcher
	logger        *zap.Logger
	metrics       *observability.Metrics
	now           func() time.Time
	guard         SweepGuard
	interval      time.Duration
	retryAttempts uint64
	retryBackoff  time.Duration

	sweepMu   sync.Mutex
	runMu     sync.Mutex
	cancelRun context.CancelFunc
	loopDone  chan struct{}
}

// LifecycleDependencies bundles collaborators for the lifecycle service.
type LifecycleDependencies struct {
	Repo          repository.HelpRequestRepository
	Team          team.Provider
	Notifications NotificationQueue
	Dispatcher    events.Dispatcher
	Logger        *zap.Logger
	Metrics       *observability.Metrics
	Now           func() time.Time
	Guard         SweepGuard
	Interval      time.Duration
	RetryAttempts int
	RetryBackoff  time.Duration
}

// NewLifecycleService creates the service.
func NewLifecycleService(deps LifecycleDependencies) *LifecycleService {
	s := &LifecycleService{
		repo:          deps.Repo,
		team:          deps.Team,
		notifications: deps.Notifications,
		dispatcher:    deps.Dispatcher,
		logger:        deps.Logger,
		metrics:       deps.Metrics,
		now:           deps.Now,
		guard:         deps.Guard,
		interval:      deps.Interval,
		retryBackoff:  deps.RetryBackoff,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.interval <= 0 {
		s.interval = time.Minute
	}
	if deps.RetryAttempts > 0 {
		s.retryAttempts = uint64(deps.RetryAttempts)
	}
	if s.retryBackoff <= 0 {
		s.retryBackoff = 50 * time.Millisecond
	}
	return s
}

// CreateRequestInput describes a new help request.
type CreateRequestInput struct {
	CustomerID   string
	CustomerName string
	Question     string
	Priority     string
	Tags         []string
	Metadata     map[string]any
}

// CreateRequest validates and stores a PENDING request with its first deadline.
func (s *LifecycleService) CreateRequest(ctx context.Context, input CreateRequestInput) (*domain.HelpRequest, error) {
	priority, err := domain.ParsePriority(input.Priority)
	if err != nil {
		return nil, err
	}
	customerID := strings.TrimSpace(input.CustomerID)
	question := strings.TrimSpace(input.Question)
	if customerID == "" || question == "" {
		return nil, apperrors.NewValidationError("customer_id and question are required", map[string]any{
			"customer_id": customerID,
		})
	}
	name := strings.TrimSpace(input.CustomerName)
	if name == "" {
		name = customerID
	}

	now := s.now().UTC()
	req := &domain.HelpRequest{
		CustomerID:   customerID,
		CustomerName: name,
		Question:     question,
		Status:       domain.StatusPending,
		Priority:     priority,
		CreatedAt:    now,
		UpdatedAt:    now,
		Tags:         input.Tags,
		Metadata:     input.Metadata,
		TimeoutAt:    now.Add(priority.Window()),
	}
	if err := s.repo.Create(ctx, req); err != nil {
		s.logger.Error("help request not stored", zap.String("customer_id", customerID), zap.Error(err))
		return nil, err
	}
	s.metrics.RecordCreated(string(priority))
	s.logger.Info("help request created",
		zap.Int64("request_id", req.ID),
		zap.String("priority", string(priority)),
		zap.Time("timeout_at", req.TimeoutAt))
	s.publishEvent(ctx, events.New(events.EventRequestCreated, req.ID, events.SystemActor, now, events.RequestCreatedPayload{
		CustomerID: req.CustomerID,
		Priority:   req.Priority,
		TimeoutAt:  req.TimeoutAt,
		Tags:       req.Tags,
	}))
	return req, nil
}

// GetRequest fetches one request.
func (s *LifecycleService) GetRequest(ctx context.Context, id int64) (*domain.HelpRequest, error) {
	return s.repo.GetByID(ctx, id)
}

// GetPendingRequests lists PENDING requests by priority rank then age.
func (s *LifecycleService) GetPendingRequests(ctx context.Context, limit int) ([]domain.HelpRequest, error) {
	if limit <= 0 {
		limit = defaultPendingLimit
	}
	if limit > maxPendingLimit {
		limit = maxPendingLimit
	}
	return s.repo.ListPending(ctx, limit)
}

// ListByCustomer lists a customer's requests, newest first.
func (s *LifecycleService) ListByCustomer(ctx context.Context, customerID string) ([]domain.HelpRequest, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, apperrors.NewValidationError("customer_id is required", nil)
	}
	return s.repo.ListByCustomer(ctx, customerID)
}

// UpdateStatusInput is a manual console transition.
type UpdateStatusInput struct {
	Status     string
	AssignedTo *string
	Resolution *string
	// ActorID is the supervisor performing the change; it is the default assignee.
	ActorID string
}

// UpdateStatus applies a supervisor's claim or closure. PENDING and TIMEOUT are
// only ever set by the engine.
func (s *LifecycleService) UpdateStatus(ctx context.Context, id int64, input UpdateStatusInput) (*domain.HelpRequest, error) {
	status, err := domain.ParseStatus(input.Status)
	if err != nil {
		return nil, err
	}
	assignee := strings.TrimSpace(input.ActorID)
	if input.AssignedTo != nil && strings.TrimSpace(*input.AssignedTo) != "" {
		assignee = strings.TrimSpace(*input.AssignedTo)
	}
	actor := events.Actor{SupervisorID: input.ActorID}
	now := s.now().UTC()

	var (
		updated *domain.HelpRequest
		before  domain.RequestStatus
	)
	switch status {
	case domain.StatusInProgress:
		if assignee == "" {
			return nil, apperrors.NewValidationError("assigned_to is required to claim a request", map[string]any{"id": id})
		}
		updated, err = s.repo.Claim(ctx, id, assignee, now)
		if err != nil {
			return nil, err
		}
		s.logger.Info("help request claimed", zap.Int64("request_id", id), zap.String("assigned_to", assignee))
		s.publishEvent(ctx, events.New(events.EventRequestClaimed, id, actor, now, events.RequestClaimedPayload{AssignedTo: assignee}))
		return updated, nil

	case domain.StatusResolved, domain.StatusUnresolved:
		resolution := ""
		if input.Resolution != nil {
			resolution = strings.TrimSpace(*input.Resolution)
		}
		if status == domain.StatusResolved && resolution == "" {
			resolution = "Resolved"
		}
		if status == domain.StatusUnresolved {
			if resolution == "" {
				resolution = "closed by supervisor"
			}
			if !strings.HasPrefix(resolution, domain.UnresolvedResolutionText) {
				resolution = domain.UnresolvedResolution(resolution)
			}
		}
		update := repository.TerminalUpdate{Status: status, Resolution: resolution, At: now}
		if assignee != "" {
			update.AssignedTo = &assignee
		}
		err = s.withRetry(ctx, func(ctx context.Context) error {
			current, err := s.repo.GetByID(ctx, id)
			if err != nil {
				return err
			}
			before = current.Status
			updated, err = s.repo.MarkTerminal(ctx, id, update)
			return err
		})
		if err != nil {
			return nil, err
		}
		s.logger.Info("help request closed by supervisor",
			zap.Int64("request_id", id),
			zap.String("status", string(status)),
			zap.String("actor", input.ActorID))
		s.publishClosed(ctx, updated, before, actor, now)
		return updated, nil

	default:
		return nil, apperrors.NewValidationError("status cannot be set manually", map[string]any{"status": status})
	}
}

// SweepReport summarises one sweep.
type SweepReport struct {
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Examined   int              `json:"examined"`
	Escalated  []int64          `json:"escalated"`
	Unresolved []int64          `json:"unresolved"`
	Skipped    []int64          `json:"skipped"`
	Failed     map[int64]string `json:"failed"`
}

type sweepOutcome int

const (
	outcomeEscalated sweepOutcome = iota
	outcomeUnresolved
	outcomeSkipped
)

// Sweep escalates or closes every expired request once. Concurrent callers get
// ErrSweepInProgress.
func (s *LifecycleService) Sweep(ctx context.Context) (*SweepReport, error) {
	if !s.sweepMu.TryLock() {
		s.metrics.RecordSweep("skipped", 0)
		return nil, ErrSweepInProgress
	}
	defer s.sweepMu.Unlock()

	if s.guard != nil {
		release, ok, err := s.guard.TryAcquire(ctx)
		if err != nil {
			s.metrics.RecordSweep("failed", 0)
			return nil, apperrors.NewStorageError("acquire sweep lease", err)
		}
		if !ok {
			s.metrics.RecordSweep("skipped", 0)
			return nil, ErrSweepInProgress
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("sweep lease release failed", zap.Error(err))
			}
		}()
	}

	started := time.Now()
	now := s.now().UTC()
	report := &SweepReport{
		StartedAt:  now,
		Escalated:  []int64{},
		Unresolved: []int64{},
		Skipped:    []int64{},
		Failed:     map[int64]string{},
	}

	expired, err := s.repo.ListExpired(ctx, now)
	if err != nil {
		s.metrics.RecordSweep("failed", time.Since(started))
		s.logger.Error("sweep could not list expired requests", zap.Error(err))
		return nil, err
	}
	report.Examined = len(expired)

	var snapshot domain.Team
	if len(expired) > 0 {
		snapshot, err = s.team.Snapshot(ctx, now)
		if err != nil {
			// an unreadable roster is not an empty one; leave the batch for the next sweep
			s.metrics.RecordSweep("failed", time.Since(started))
			s.logger.Error("sweep aborted, team roster unavailable", zap.Int("expired", len(expired)), zap.Error(err))
			return nil, fmt.Errorf("team snapshot: %w", err)
		}
	}

	for _, req := range expired {
		if ctx.Err() != nil {
			report.Skipped = append(report.Skipped, req.ID)
			continue
		}
		outcome, err := s.processExpired(ctx, req, now, snapshot)
		switch {
		case err != nil:
			report.Failed[req.ID] = err.Error()
			s.logger.Error("sweep failed for request", zap.Int64("request_id", req.ID), zap.Error(err))
		case outcome == outcomeEscalated:
			report.Escalated = append(report.Escalated, req.ID)
		case outcome == outcomeUnresolved:
			report.Unresolved = append(report.Unresolved, req.ID)
		default:
			report.Skipped = append(report.Skipped, req.ID)
		}
	}

	report.FinishedAt = s.now().UTC()
	s.metrics.RecordSweep("completed", time.Since(started))
	if report.Examined > 0 {
		s.logger.Info("sweep completed",
			zap.Int("examined", report.Examined),
			zap.Int("escalated", len(report.Escalated)),
			zap.Int("unresolved", len(report.Unresolved)),
			zap.Int("skipped", len(report.Skipped)),
			zap.Int("failed", len(report.Failed)))
	}
	return report, nil
}

// processExpired transitions one request, re-reading and retrying on CAS conflicts.
func (s *LifecycleService) processExpired(ctx context.Context, req domain.HelpRequest, now time.Time, snapshot domain.Team) (sweepOutcome, error) {
	current := req
	first := true
	var outcome sweepOutcome

	err := s.withRetry(ctx, func(ctx context.Context) error {
		if !first {
			fresh, err := s.repo.GetByID(ctx, req.ID)
			if err != nil {
				return err
			}
			current = *fresh
		}
		first = false
		if !current.Expired(now) {
			outcome = outcomeSkipped
			return nil
		}
		var err error
		outcome, err = s.transition(ctx, current, now, snapshot)
		return err
	})
	return outcome, err
}

func (s *LifecycleService) transition(ctx context.Context, req domain.HelpRequest, now time.Time, snapshot domain.Team) (sweepOutcome, error) {
	nextLevel := req.EscalationLevel + 1
	if nextLevel > req.Priority.MaxLevels() {
		return outcomeUnresolved, s.giveUp(ctx, req, now, domain.ReasonLevelsExhausted)
	}

	supervisor, ok := escalation.Resolve(req, nextLevel, snapshot)
	if !ok {
		return outcomeUnresolved, s.giveUp(ctx, req, now, domain.ReasonNoAssignee)
	}

	updated, err := s.repo.AppendEscalation(ctx, req.ID, repository.EscalationUpdate{
		ExpectedLevel: req.EscalationLevel,
		Assignee:      supervisor.ID,
		Reason:        domain.ReasonTimeout,
		At:            now,
		NextTimeoutAt: now.Add(req.Priority.Window()),
	})
	if err != nil {
		return outcomeEscalated, err
	}

	s.metrics.RecordEscalation(string(updated.Priority), updated.EscalationLevel)
	s.logger.Info("help request escalated",
		zap.Int64("request_id", updated.ID),
		zap.Int("level", updated.EscalationLevel),
		zap.String("assigned_to", supervisor.ID),
		zap.Time("timeout_at", updated.TimeoutAt))
	s.publishEvent(ctx, events.New(events.EventRequestEscalated, updated.ID, events.SystemActor, now, events.RequestEscalatedPayload{
		Level:      updated.EscalationLevel,
		AssignedTo: supervisor.ID,
		Reason:     domain.ReasonTimeout,
		TimeoutAt:  updated.TimeoutAt,
	}))
	s.dispatchNotification(*updated, supervisor)
	return outcomeEscalated, nil
}

func (s *LifecycleService) giveUp(ctx context.Context, req domain.HelpRequest, now time.Time, reason string) error {
	level := req.EscalationLevel
	updated, err := s.repo.MarkTerminal(ctx, req.ID, repository.TerminalUpdate{
		Status:          domain.StatusUnresolved,
		Resolution:      domain.UnresolvedResolution(reason),
		At:              now,
		ExpectedLevel:   &level,
		EscalatableOnly: true,
	})
	if err != nil {
		return err
	}
	s.metrics.RecordUnresolved(reason)
	s.logger.Warn("help request unresolved",
		zap.Int64("request_id", updated.ID),
		zap.Int("level", updated.EscalationLevel),
		zap.String("reason", reason))
	s.publishClosed(ctx, updated, req.Status, events.SystemActor, now)
	return nil
}

// dispatchNotification never blocks the sweep; a full queue only loses the message.
func (s *LifecycleService) dispatchNotification(req domain.HelpRequest, supervisor domain.Supervisor) {
	if s.notifications == nil {
		return
	}
	err := s.notifications.Submit(worker.Job{
		Request:    req,
		Supervisor: supervisor,
		Level:      req.EscalationLevel,
		EnqueuedAt: time.Now(),
	})
	if err != nil {
		s.logger.Warn("escalation notification not queued",
			zap.Int64("request_id", req.ID),
			zap.String("supervisor_id", supervisor.ID),
			zap.Error(err))
	}
}

// withRetry retries fn only on CONCURRENCY_CONFLICT, up to retryAttempts extra tries.
func (s *LifecycleService) withRetry(ctx context.Context, fn func(context.Context) error) error {
	backoff := retry.WithMaxRetries(s.retryAttempts, retry.NewConstant(s.retryBackoff))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil && apperrors.IsCode(err, apperrors.CodeConcurrency) {
			return retry.RetryableError(err)
		}
		return err
	})
}

// Start runs the sweep on a fixed interval until Stop is called.
func (s *LifecycleService) Start(ctx context.Context) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.cancelRun != nil {
		return
	}
	if s.notifications != nil {
		s.notifications.Start()
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRun = cancel
	s.loopDone = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		s.logger.Info("sweep loop started", zap.Duration("interval", s.interval))
		for {
			select {
			case <-runCtx.Done():
				s.logger.Info("sweep loop stopped")
				return
			case <-ticker.C:
				if _, err := s.Sweep(runCtx); err != nil && !errors.Is(err, ErrSweepInProgress) {
					s.logger.Error("sweep failed", zap.Error(err))
				}
			}
		}
	}(s.loopDone)
}

// Stop ends the loop, waits for an in-flight sweep, then drains queued
// notifications until ctx expires. Undelivered notifications are dropped.
func (s *LifecycleService) Stop(ctx context.Context) error {
	s.runMu.Lock()
	cancel, done := s.cancelRun, s.loopDone
	s.cancelRun, s.loopDone = nil, nil
	s.runMu.Unlock()

	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if s.notifications == nil {
		return nil
	}
	if err := s.notifications.Stop(ctx); err != nil {
		s.logger.Warn("notification queue abandoned at shutdown", zap.Error(err))
		return err
	}
	return nil
}

func (s *LifecycleService) publishClosed(ctx context.Context, req *domain.HelpRequest, before domain.RequestStatus, actor events.Actor, at time.Time) {
	eventType := events.EventRequestResolved
	if req.Status == domain.StatusUnresolved {
		eventType = events.EventRequestUnresolved
	}
	resolution := ""
	if req.Resolution != nil {
		resolution = *req.Resolution
	}
	s.publishEvent(ctx, events.New(eventType, req.ID, actor, at, events.RequestClosedPayload{
		OldStatus:  before,
		NewStatus:  req.Status,
		Resolution: resolution,
		Level:      req.EscalationLevel,
	}))
}

func (s *LifecycleService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handlers failed",
			zap.String("event_type", string(event.Type)),
			zap.Int64("request_id", event.RequestID),
			zap.Error(err))
	}
}
