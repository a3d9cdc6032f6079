package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/helpline/escalation-service/internal/domain"
	apperrors "github.com/helpline/escalation-service/pkg/util/errorutil"
)

const helpRequestColumns = `id, customer_id, customer_name, question, status, priority, created_at, updated_at,
               assigned_to, resolution, tags, metadata, timeout_at, escalation_level, escalation_history`

const priorityRankSQL = `CASE priority WHEN 'URGENT' THEN 4 WHEN 'HIGH' THEN 3 WHEN 'MEDIUM' THEN 2 ELSE 1 END`

type postgresHelpRequestRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresHelpRequestRepository instantiates repository.
func NewPostgresHelpRequestRepository(pool *pgxpool.Pool) HelpRequestRepository {
	return &postgresHelpRequestRepository{pool: pool}
}

func (r *postgresHelpRequestRepository) Create(ctx context.Context, req *domain.HelpRequest) error {
	if err := validateNew(req); err != nil {
		return err
	}
	tags, err := encodeJSON(req.Tags, "[]")
	if err != nil {
		return apperrors.NewValidationError("invalid tags", map[string]any{"error": err.Error()})
	}
	metadata, err := encodeJSON(req.Metadata, "{}")
	if err != nil {
		return apperrors.NewValidationError("invalid metadata", map[string]any{"error": err.Error()})
	}
	const query = `
        INSERT INTO help_requests (customer_id, customer_name, question, status, priority, created_at, updated_at,
            assigned_to, tags, metadata, timeout_at, escalation_level, escalation_history)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9::jsonb,$10::jsonb,$11,0,'[]'::jsonb)
        RETURNING id`
	if err := r.pool.QueryRow(ctx, query,
		req.CustomerID,
		req.CustomerName,
		req.Question,
		string(req.Status),
		string(req.Priority),
		req.CreatedAt,
		req.UpdatedAt,
		req.AssignedTo,
		tags,
		metadata,
		req.TimeoutAt,
	).Scan(&req.ID); err != nil {
		return apperrors.NewStorageError("create help request", err)
	}
	return nil
}

func (r *postgresHelpRequestRepository) GetByID(ctx context.Context, id int64) (*domain.HelpRequest, error) {
	query := `SELECT ` + helpRequestColumns + ` FROM help_requests WHERE id=$1`
	req, err := scanPostgresHelpRequest(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound(id)
		}
		return nil, storageOrDomain("get help request", err)
	}
	return req, nil
}

func (r *postgresHelpRequestRepository) ListPending(ctx context.Context, limit int) ([]domain.HelpRequest, error) {
	query := `SELECT ` + helpRequestColumns + ` FROM help_requests
             WHERE status='PENDING'
             ORDER BY ` + priorityRankSQL + ` DESC, created_at ASC, id ASC`
	args := []any{}
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return r.list(ctx, "list pending", query, args...)
}

func (r *postgresHelpRequestRepository) ListExpired(ctx context.Context, now time.Time) ([]domain.HelpRequest, error) {
	query := `SELECT ` + helpRequestColumns + ` FROM help_requests
             WHERE status IN ('PENDING','TIMEOUT') AND timeout_at < $1
             ORDER BY timeout_at ASC, id ASC`
	return r.list(ctx, "list expired", query, now)
}

func (r *postgresHelpRequestRepository) ListByCustomer(ctx context.Context, customerID string) ([]domain.HelpRequest, error) {
	query := `SELECT ` + helpRequestColumns + ` FROM help_requests
             WHERE customer_id=$1
             ORDER BY created_at DESC, id DESC`
	return r.list(ctx, "list by customer", query, customerID)
}

func (r *postgresHelpRequestRepository) Claim(ctx context.Context, id int64, assignee string, at time.Time) (*domain.HelpRequest, error) {
	return r.mutate(ctx, id, "claim", func(current domain.HelpRequest) (domain.HelpRequest, error) {
		if err := checkClaim(current, assignee); err != nil {
			return current, err
		}
		return applyClaim(current, assignee, at), nil
	})
}

func (r *postgresHelpRequestRepository) AppendEscalation(ctx context.Context, id int64, update EscalationUpdate) (*domain.HelpRequest, error) {
	return r.mutate(ctx, id, "append escalation", func(current domain.HelpRequest) (domain.HelpRequest, error) {
		if err := checkEscalation(current, update); err != nil {
			return current, err
		}
		return applyEscalation(current, update), nil
	})
}

func (r *postgresHelpRequestRepository) MarkTerminal(ctx context.Context, id int64, update TerminalUpdate) (*domain.HelpRequest, error) {
	return r.mutate(ctx, id, "mark terminal", func(current domain.HelpRequest) (domain.HelpRequest, error) {
		if err := checkTerminal(current, update); err != nil {
			return current, err
		}
		return applyTerminal(current, update), nil
	})
}

func (r *postgresHelpRequestRepository) Statistics(ctx context.Context) (domain.RequestCounts, error) {
	const query = `
        SELECT status, priority, COUNT(*),
               COALESCE(SUM(CASE WHEN status='RESOLVED'
                   THEN EXTRACT(EPOCH FROM (updated_at - created_at)) / 60.0 END), 0)::float8,
               COUNT(*) FILTER (WHERE escalation_level > 0),
               COALESCE(SUM(escalation_level), 0)::bigint
        FROM help_requests
        GROUP BY status, priority`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return domain.RequestCounts{}, apperrors.NewStorageError("statistics", err)
	}
	defer rows.Close()

	var counts domain.RequestCounts
	for rows.Next() {
		var (
			row      domain.StatusPriorityCount
			status   string
			priority string
		)
		if err := rows.Scan(&status, &priority, &row.Count, &row.ResolutionMinutesSum, &row.EscalatedCount, &row.EscalationLevelSum); err != nil {
			return domain.RequestCounts{}, apperrors.NewStorageError("scan statistics", err)
		}
		row.Status = domain.RequestStatus(status)
		row.Priority = domain.RequestPriority(priority)
		counts.Rows = append(counts.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return domain.RequestCounts{}, apperrors.NewStorageError("statistics", err)
	}
	return counts, nil
}

func (r *postgresHelpRequestRepository) Ping(ctx context.Context) error {
	if r.pool == nil {
		return apperrors.NewStorageError("ping", errors.New("postgres pool not configured"))
	}
	return r.pool.Ping(ctx)
}

// mutate locks the row, lets fn validate and transform it, then writes it back
// guarded by the level read under the lock.
func (r *postgresHelpRequestRepository) mutate(ctx context.Context, id int64, op string, fn func(domain.HelpRequest) (domain.HelpRequest, error)) (*domain.HelpRequest, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, apperrors.NewStorageError(op, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	query := `SELECT ` + helpRequestColumns + ` FROM help_requests WHERE id=$1 FOR UPDATE`
	current, err := scanPostgresHelpRequest(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound(id)
		}
		return nil, storageOrDomain(op, err)
	}

	next, err := fn(*current)
	if err != nil {
		return nil, err
	}

	history, err := encodeJSON(next.EscalationHistory, "[]")
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	const update = `
        UPDATE help_requests SET status=$1, assigned_to=$2, resolution=$3, timeout_at=$4,
            escalation_level=$5, escalation_history=$6::jsonb, updated_at=$7
        WHERE id=$8 AND escalation_level=$9 AND status=$10`
	cmd, err := tx.Exec(ctx, update,
		string(next.Status),
		next.AssignedTo,
		next.Resolution,
		next.TimeoutAt,
		next.EscalationLevel,
		history,
		next.UpdatedAt,
		id,
		current.EscalationLevel,
		string(current.Status),
	)
	if err != nil {
		return nil, apperrors.NewStorageError(op, err)
	}
	if cmd.RowsAffected() == 0 {
		return nil, apperrors.NewConcurrencyError("help request changed concurrently", map[string]any{"id": id})
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, apperrors.NewStorageError(op, err)
	}
	return &next, nil
}

func (r *postgresHelpRequestRepository) list(ctx context.Context, op, query string, args ...any) ([]domain.HelpRequest, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewStorageError(op, err)
	}
	defer rows.Close()

	var out []domain.HelpRequest
	for rows.Next() {
		req, err := scanPostgresHelpRequest(rows)
		if err != nil {
			return nil, storageOrDomain(op, err)
		}
		out = append(out, *req)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStorageError(op, err)
	}
	return out, nil
}

func scanPostgresHelpRequest(row pgx.Row) (*domain.HelpRequest, error) {
	var (
		req                     domain.HelpRequest
		status, priority        string
		tags, metadata, history []byte
	)
	if err := row.Scan(
		&req.ID,
		&req.CustomerID,
		&req.CustomerName,
		&req.Question,
		&status,
		&priority,
		&req.CreatedAt,
		&req.UpdatedAt,
		&req.AssignedTo,
		&req.Resolution,
		&tags,
		&metadata,
		&req.TimeoutAt,
		&req.EscalationLevel,
		&history,
	); err != nil {
		return nil, err
	}
	if err := normalizeScanned(&req, status, priority); err != nil {
		return nil, err
	}
	if err := decodeRequestJSON(&req, tags, metadata, history); err != nil {
		return nil, err
	}
	return &req, nil
}

func storageOrDomain(op string, err error) error {
	var domainErr *apperrors.DomainError
	if errors.As(err, &domainErr) {
		return err
	}
	return apperrors.NewStorageError(op, err)
}
