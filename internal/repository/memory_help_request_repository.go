package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/helpline/escalation-service/internal/domain"
)

type memoryHelpRequestRepository struct {
	mu     sync.RWMutex
	nextID int64
	items  map[int64]domain.HelpRequest
}

// NewMemoryHelpRequestRepository returns a process-local store. Records never leave
// the repository by reference.
func NewMemoryHelpRequestRepository() HelpRequestRepository {
	return &memoryHelpRequestRepository{items: make(map[int64]domain.HelpRequest)}
}

func (r *memoryHelpRequestRepository) Create(ctx context.Context, req *domain.HelpRequest) error {
	if err := validateNew(req); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	req.ID = r.nextID
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now()
	}
	if req.UpdatedAt.IsZero() {
		req.UpdatedAt = req.CreatedAt
	}
	r.items[req.ID] = req.Clone()
	return nil
}

func (r *memoryHelpRequestRepository) GetByID(ctx context.Context, id int64) (*domain.HelpRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	req, ok := r.items[id]
	if !ok {
		return nil, notFound(id)
	}
	out := req.Clone()
	return &out, nil
}

func (r *memoryHelpRequestRepository) ListPending(ctx context.Context, limit int) ([]domain.HelpRequest, error) {
	out := r.filter(func(req domain.HelpRequest) bool { return req.Status == domain.StatusPending })
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority.Rank() != out[j].Priority.Rank() {
			return out[i].Priority.Rank() > out[j].Priority.Rank()
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memoryHelpRequestRepository) ListExpired(ctx context.Context, now time.Time) ([]domain.HelpRequest, error) {
	out := r.filter(func(req domain.HelpRequest) bool { return req.Expired(now) })
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].TimeoutAt.Equal(out[j].TimeoutAt) {
			return out[i].TimeoutAt.Before(out[j].TimeoutAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *memoryHelpRequestRepository) ListByCustomer(ctx context.Context, customerID string) ([]domain.HelpRequest, error) {
	out := r.filter(func(req domain.HelpRequest) bool { return req.CustomerID == customerID })
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (r *memoryHelpRequestRepository) Claim(ctx context.Context, id int64, assignee string, at time.Time) (*domain.HelpRequest, error) {
	return r.mutate(id, func(current domain.HelpRequest) (domain.HelpRequest, error) {
		if err := checkClaim(current, assignee); err != nil {
			return current, err
		}
		return applyClaim(current, assignee, at), nil
	})
}

func (r *memoryHelpRequestRepository) AppendEscalation(ctx context.Context, id int64, update EscalationUpdate) (*domain.HelpRequest, error) {
	return r.mutate(id, func(current domain.HelpRequest) (domain.HelpRequest, error) {
		if err := checkEscalation(current, update); err != nil {
			return current, err
		}
		return applyEscalation(current, update), nil
	})
}

func (r *memoryHelpRequestRepository) MarkTerminal(ctx context.Context, id int64, update TerminalUpdate) (*domain.HelpRequest, error) {
	return r.mutate(id, func(current domain.HelpRequest) (domain.HelpRequest, error) {
		if err := checkTerminal(current, update); err != nil {
			return current, err
		}
		return applyTerminal(current, update), nil
	})
}

func (r *memoryHelpRequestRepository) Statistics(ctx context.Context) (domain.RequestCounts, error) {
	return tally(r.filter(func(domain.HelpRequest) bool { return true })), nil
}

func (r *memoryHelpRequestRepository) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (r *memoryHelpRequestRepository) mutate(id int64, fn func(domain.HelpRequest) (domain.HelpRequest, error)) (*domain.HelpRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.items[id]
	if !ok {
		return nil, notFound(id)
	}
	next, err := fn(current)
	if err != nil {
		return nil, err
	}
	r.items[id] = next
	out := next.Clone()
	return &out, nil
}

func (r *memoryHelpRequestRepository) filter(keep func(domain.HelpRequest) bool) []domain.HelpRequest {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.HelpRequest, 0, len(r.items))
	for _, req := range r.items {
		if keep(req) {
			out = append(out, req.Clone())
		}
	}
	return out
}
