package repository

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/helpline/escalation-service/internal/config"
	"github.com/helpline/escalation-service/internal/domain"
	"github.com/helpline/escalation-service/internal/persistence"
	apperrors "github.com/helpline/escalation-service/pkg/util/errorutil"
)

var baseTime = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func newSQLiteRepo(t *testing.T) HelpRequestRepository {
	t.Helper()
	ctx := context.Background()
	db, err := persistence.NewSQLite(ctx, config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "repo.db")}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, persistence.RunSQLiteMigrations(ctx, db.DB, zap.NewNop()))
	return NewSQLiteHelpRequestRepository(db.DB)
}

func newRequest(customer string, priority domain.RequestPriority, createdAt time.Time) *domain.HelpRequest {
	return &domain.HelpRequest{
		CustomerID:   customer,
		CustomerName: "Customer " + customer,
		Question:     "do you take walk-ins?",
		Status:       domain.StatusPending,
		Priority:     priority,
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
		TimeoutAt:    createdAt.Add(priority.Window()),
		Tags:         []string{"hours"},
		Metadata:     map[string]any{"channel": "chat"},
	}
}

func escalation(level int, assignee string, at time.Time) EscalationUpdate {
	return EscalationUpdate{
		ExpectedLevel: level,
		Assignee:      assignee,
		Reason:        domain.ReasonTimeout,
		At:            at,
		NextTimeoutAt: at.Add(5 * time.Minute),
	}
}

func TestHelpRequestRepositories(t *testing.T) {
	backends := map[string]func(t *testing.T) HelpRequestRepository{
		"memory": func(t *testing.T) HelpRequestRepository { return NewMemoryHelpRequestRepository() },
		"sqlite": newSQLiteRepo,
	}
	for name, factory := range backends {
		t.Run(name, func(t *testing.T) {
			runRepositoryContract(t, factory)
		})
	}
}

func runRepositoryContract(t *testing.T, factory func(t *testing.T) HelpRequestRepository) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		repo := factory(t)
		req := newRequest("c-1", domain.PriorityHigh, baseTime)
		require.NoError(t, repo.Create(ctx, req))
		require.NotZero(t, req.ID)

		got, err := repo.GetByID(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusPending, got.Status)
		assert.Equal(t, domain.PriorityHigh, got.Priority)
		assert.True(t, got.TimeoutAt.Equal(baseTime.Add(10*time.Minute)))
		assert.Equal(t, []string{"hours"}, got.Tags)
		assert.Equal(t, "chat", got.Metadata["channel"])
		assert.Zero(t, got.EscalationLevel)
		assert.Empty(t, got.EscalationHistory)
		assert.Nil(t, got.Resolution)

		_, err = repo.GetByID(ctx, 9999)
		assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
	})

	t.Run("create rejects unknown priority", func(t *testing.T) {
		repo := factory(t)
		req := newRequest("c-1", "CRITICAL", baseTime)
		err := repo.Create(ctx, req)
		assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))
	})

	t.Run("list pending orders by priority then age", func(t *testing.T) {
		repo := factory(t)
		low := newRequest("c-1", domain.PriorityLow, baseTime)
		urgentLate := newRequest("c-2", domain.PriorityUrgent, baseTime.Add(2*time.Minute))
		urgentEarly := newRequest("c-3", domain.PriorityUrgent, baseTime.Add(time.Minute))
		claimed := newRequest("c-4", domain.PriorityUrgent, baseTime)
		for _, r := range []*domain.HelpRequest{low, urgentLate, urgentEarly, claimed} {
			require.NoError(t, repo.Create(ctx, r))
		}
		_, err := repo.Claim(ctx, claimed.ID, "sup-1", baseTime.Add(time.Minute))
		require.NoError(t, err)

		pending, err := repo.ListPending(ctx, 0)
		require.NoError(t, err)
		require.Len(t, pending, 3)
		assert.Equal(t, []int64{urgentEarly.ID, urgentLate.ID, low.ID}, ids(pending))

		limited, err := repo.ListPending(ctx, 2)
		require.NoError(t, err)
		assert.Len(t, limited, 2)
	})

	t.Run("list expired", func(t *testing.T) {
		repo := factory(t)
		urgent := newRequest("c-1", domain.PriorityUrgent, baseTime)
		low := newRequest("c-2", domain.PriorityLow, baseTime)
		require.NoError(t, repo.Create(ctx, urgent))
		require.NoError(t, repo.Create(ctx, low))

		expired, err := repo.ListExpired(ctx, baseTime.Add(6*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, []int64{urgent.ID}, ids(expired))

		expired, err = repo.ListExpired(ctx, baseTime.Add(5*time.Minute))
		require.NoError(t, err)
		assert.Empty(t, expired, "deadline is exclusive")

		expired, err = repo.ListExpired(ctx, baseTime.Add(31*time.Minute))
		require.NoError(t, err)
		assert.Len(t, expired, 2)
	})

	t.Run("list by customer newest first", func(t *testing.T) {
		repo := factory(t)
		first := newRequest("c-1", domain.PriorityLow, baseTime)
		second := newRequest("c-1", domain.PriorityLow, baseTime.Add(time.Minute))
		other := newRequest("c-2", domain.PriorityLow, baseTime)
		for _, r := range []*domain.HelpRequest{first, second, other} {
			require.NoError(t, repo.Create(ctx, r))
		}
		got, err := repo.ListByCustomer(ctx, "c-1")
		require.NoError(t, err)
		assert.Equal(t, []int64{second.ID, first.ID}, ids(got))
	})

	t.Run("append escalation is compare-and-set", func(t *testing.T) {
		repo := factory(t)
		req := newRequest("c-1", domain.PriorityMedium, baseTime)
		require.NoError(t, repo.Create(ctx, req))

		at := baseTime.Add(16 * time.Minute)
		updated, err := repo.AppendEscalation(ctx, req.ID, escalation(0, "sup-1", at))
		require.NoError(t, err)
		assert.Equal(t, domain.StatusTimeout, updated.Status)
		assert.Equal(t, 1, updated.EscalationLevel)
		require.Len(t, updated.EscalationHistory, 1)
		assert.Equal(t, "sup-1", updated.EscalationHistory[0].Assignee)
		assert.Equal(t, "sup-1", updated.Assignee())

		_, err = repo.AppendEscalation(ctx, req.ID, escalation(0, "sup-2", at))
		assert.True(t, apperrors.IsCode(err, apperrors.CodeConcurrency), "stale level must conflict")

		stored, err := repo.GetByID(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, stored.EscalationLevel)
		assert.Len(t, stored.EscalationHistory, 1)
		assert.True(t, stored.UpdatedAt.Equal(at))
		assert.True(t, stored.TimeoutAt.Equal(at.Add(5*time.Minute)))

		_, err = repo.AppendEscalation(ctx, req.ID, escalation(1, "sup-2", at))
		require.NoError(t, err)
		_, err = repo.AppendEscalation(ctx, req.ID, escalation(2, "sup-3", at))
		assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation), "MEDIUM caps at two levels")

		_, err = repo.AppendEscalation(ctx, 4242, escalation(0, "sup-1", at))
		assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
	})

	t.Run("escalation rejects claimed request", func(t *testing.T) {
		repo := factory(t)
		req := newRequest("c-1", domain.PriorityHigh, baseTime)
		require.NoError(t, repo.Create(ctx, req))
		_, err := repo.Claim(ctx, req.ID, "sup-1", baseTime)
		require.NoError(t, err)

		_, err = repo.AppendEscalation(ctx, req.ID, escalation(0, "sup-2", baseTime.Add(11*time.Minute)))
		assert.True(t, apperrors.IsCode(err, apperrors.CodeConcurrency))
	})

	t.Run("mark terminal once", func(t *testing.T) {
		repo := factory(t)
		req := newRequest("c-1", domain.PriorityLow, baseTime)
		require.NoError(t, repo.Create(ctx, req))

		assignee := "sup-9"
		done, err := repo.MarkTerminal(ctx, req.ID, TerminalUpdate{
			Status:     domain.StatusResolved,
			Resolution: "answered by phone",
			AssignedTo: &assignee,
			At:         baseTime.Add(5 * time.Minute),
		})
		require.NoError(t, err)
		assert.Equal(t, domain.StatusResolved, done.Status)
		require.NotNil(t, done.Resolution)
		assert.Equal(t, "answered by phone", *done.Resolution)

		_, err = repo.MarkTerminal(ctx, req.ID, TerminalUpdate{Status: domain.StatusUnresolved, Resolution: "x", At: baseTime})
		assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))
		_, err = repo.AppendEscalation(ctx, req.ID, escalation(0, "sup-1", baseTime))
		assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))
		_, err = repo.Claim(ctx, req.ID, "sup-1", baseTime)
		assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))

		stored, err := repo.GetByID(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, "answered by phone", *stored.Resolution)
		assert.Equal(t, "sup-9", stored.Assignee())
	})

	t.Run("mark terminal with stale level conflicts", func(t *testing.T) {
		repo := factory(t)
		req := newRequest("c-1", domain.PriorityUrgent, baseTime)
		require.NoError(t, repo.Create(ctx, req))
		_, err := repo.AppendEscalation(ctx, req.ID, escalation(0, "sup-1", baseTime.Add(6*time.Minute)))
		require.NoError(t, err)

		stale := 0
		_, err = repo.MarkTerminal(ctx, req.ID, TerminalUpdate{Status: domain.StatusUnresolved, Resolution: "x", At: baseTime, ExpectedLevel: &stale})
		assert.True(t, apperrors.IsCode(err, apperrors.CodeConcurrency))

		_, err = repo.MarkTerminal(ctx, req.ID, TerminalUpdate{Status: domain.StatusInProgress, At: baseTime})
		assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))
	})

	t.Run("sweep close skips claimed requests", func(t *testing.T) {
		repo := factory(t)
		req := newRequest("c-1", domain.PriorityLow, baseTime)
		require.NoError(t, repo.Create(ctx, req))
		_, err := repo.Claim(ctx, req.ID, "sup-2", baseTime.Add(time.Minute))
		require.NoError(t, err)

		zero := 0
		_, err = repo.MarkTerminal(ctx, req.ID, TerminalUpdate{
			Status: domain.StatusUnresolved, Resolution: "Unresolved: no assignee available",
			At: baseTime.Add(time.Hour), ExpectedLevel: &zero, EscalatableOnly: true,
		})
		assert.True(t, apperrors.IsCode(err, apperrors.CodeConcurrency))

		stored, err := repo.GetByID(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusInProgress, stored.Status)
	})

	t.Run("concurrent escalations never lose updates", func(t *testing.T) {
		repo := factory(t)
		req := newRequest("c-1", domain.PriorityUrgent, baseTime)
		require.NoError(t, repo.Create(ctx, req))

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			succeeded int
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := repo.AppendEscalation(ctx, req.ID, escalation(0, "sup-1", baseTime.Add(6*time.Minute))); err == nil {
					mu.Lock()
					succeeded++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, succeeded)

		stored, err := repo.GetByID(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, stored.EscalationLevel)
		assert.Len(t, stored.EscalationHistory, 1)
	})

	t.Run("statistics counts", func(t *testing.T) {
		repo := factory(t)
		a := newRequest("c-1", domain.PriorityLow, baseTime)
		b := newRequest("c-2", domain.PriorityLow, baseTime)
		c := newRequest("c-3", domain.PriorityUrgent, baseTime)
		for _, r := range []*domain.HelpRequest{a, b, c} {
			require.NoError(t, repo.Create(ctx, r))
		}
		_, err := repo.MarkTerminal(ctx, a.ID, TerminalUpdate{Status: domain.StatusResolved, Resolution: "ok", At: baseTime.Add(5 * time.Minute)})
		require.NoError(t, err)
		_, err = repo.MarkTerminal(ctx, b.ID, TerminalUpdate{Status: domain.StatusResolved, Resolution: "ok", At: baseTime.Add(15 * time.Minute)})
		require.NoError(t, err)
		_, err = repo.AppendEscalation(ctx, c.ID, escalation(0, "sup-1", baseTime.Add(6*time.Minute)))
		require.NoError(t, err)

		counts, err := repo.Statistics(ctx)
		require.NoError(t, err)

		var total, escalated int64
		var minutes float64
		for _, row := range counts.Rows {
			total += row.Count
			minutes += row.ResolutionMinutesSum
			escalated += row.EscalatedCount
		}
		assert.Equal(t, int64(3), total)
		assert.InDelta(t, 20.0, minutes, 0.001)
		assert.Equal(t, int64(1), escalated)
	})
}

func ids(reqs []domain.HelpRequest) []int64 {
	out := make([]int64, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, r.ID)
	}
	return out
}
