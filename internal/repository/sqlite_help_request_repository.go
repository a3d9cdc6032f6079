package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/helpline/escalation-service/internal/domain"
	apperrors "github.com/helpline/escalation-service/pkg/util/errorutil"
)

type sqliteHelpRequestRepository struct {
	db *sql.DB
}

// NewSQLiteHelpRequestRepository instantiates a repository over a go-sqlite3 handle.
// Timestamps are stored as unix milliseconds.
func NewSQLiteHelpRequestRepository(db *sql.DB) HelpRequestRepository {
	return &sqliteHelpRequestRepository{db: db}
}

func (r *sqliteHelpRequestRepository) Create(ctx context.Context, req *domain.HelpRequest) error {
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
        VALUES (?,?,?,?,?,?,?,?,?,?,?,0,'[]')`
	res, err := r.db.ExecContext(ctx, query,
		req.CustomerID,
		req.CustomerName,
		req.Question,
		string(req.Status),
		string(req.Priority),
		toMillis(req.CreatedAt),
		toMillis(req.UpdatedAt),
		req.AssignedTo,
		tags,
		metadata,
		toMillis(req.TimeoutAt),
	)
	if err != nil {
		return apperrors.NewStorageError("create help request", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return apperrors.NewStorageError("create help request", err)
	}
	req.ID = id
	return nil
}

func (r *sqliteHelpRequestRepository) GetByID(ctx context.Context, id int64) (*domain.HelpRequest, error) {
	query := `SELECT ` + helpRequestColumns + ` FROM help_requests WHERE id=?`
	req, err := scanSQLiteHelpRequest(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound(id)
		}
		return nil, storageOrDomain("get help request", err)
	}
	return req, nil
}

func (r *sqliteHelpRequestRepository) ListPending(ctx context.Context, limit int) ([]domain.HelpRequest, error) {
	query := `SELECT ` + helpRequestColumns + ` FROM help_requests
             WHERE status='PENDING'
             ORDER BY ` + priorityRankSQL + ` DESC, created_at ASC, id ASC`
	if limit > 0 {
		return r.list(ctx, "list pending", query+` LIMIT ?`, limit)
	}
	return r.list(ctx, "list pending", query)
}

func (r *sqliteHelpRequestRepository) ListExpired(ctx context.Context, now time.Time) ([]domain.HelpRequest, error) {
	query := `SELECT ` + helpRequestColumns + ` FROM help_requests
             WHERE status IN ('PENDING','TIMEOUT') AND timeout_at < ?
             ORDER BY timeout_at ASC, id ASC`
	return r.list(ctx, "list expired", query, toMillis(now))
}

func (r *sqliteHelpRequestRepository) ListByCustomer(ctx context.Context, customerID string) ([]domain.HelpRequest, error) {
	query := `SELECT ` + helpRequestColumns + ` FROM help_requests
             WHERE customer_id=?
             ORDER BY created_at DESC, id DESC`
	return r.list(ctx, "list by customer", query, customerID)
}

func (r *sqliteHelpRequestRepository) Claim(ctx context.Context, id int64, assignee string, at time.Time) (*domain.HelpRequest, error) {
	return r.mutate(ctx, id, "claim", func(current domain.HelpRequest) (domain.HelpRequest, error) {
		if err := checkClaim(current, assignee); err != nil {
			return current, err
		}
		return applyClaim(current, assignee, at), nil
	})
}

func (r *sqliteHelpRequestRepository) AppendEscalation(ctx context.Context, id int64, update EscalationUpdate) (*domain.HelpRequest, error) {
	return r.mutate(ctx, id, "append escalation", func(current domain.HelpRequest) (domain.HelpRequest, error) {
		if err := checkEscalation(current, update); err != nil {
			return current, err
		}
		return applyEscalation(current, update), nil
	})
}

func (r *sqliteHelpRequestRepository) MarkTerminal(ctx context.Context, id int64, update TerminalUpdate) (*domain.HelpRequest, error) {
	return r.mutate(ctx, id, "mark terminal", func(current domain.HelpRequest) (domain.HelpRequest, error) {
		if err := checkTerminal(current, update); err != nil {
			return current, err
		}
		return applyTerminal(current, update), nil
	})
}

func (r *sqliteHelpRequestRepository) Statistics(ctx context.Context) (domain.RequestCounts, error) {
	const query = `
        SELECT status, priority, COUNT(*),
               COALESCE(SUM(CASE WHEN status='RESOLVED' THEN (updated_at - created_at) / 60000.0 END), 0.0),
               SUM(CASE WHEN escalation_level > 0 THEN 1 ELSE 0 END),
               COALESCE(SUM(escalation_level), 0)
        FROM help_requests
        GROUP BY status, priority`
	rows, err := r.db.QueryContext(ctx, query)
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

func (r *sqliteHelpRequestRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *sqliteHelpRequestRepository) mutate(ctx context.Context, id int64, op string, fn func(domain.HelpRequest) (domain.HelpRequest, error)) (*domain.HelpRequest, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperrors.NewStorageError(op, err)
	}
	defer tx.Rollback() //nolint:errcheck

	query := `SELECT ` + helpRequestColumns + ` FROM help_requests WHERE id=?`
	current, err := scanSQLiteHelpRequest(tx.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
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
        UPDATE help_requests SET status=?, assigned_to=?, resolution=?, timeout_at=?,
            escalation_level=?, escalation_history=?, updated_at=?
        WHERE id=? AND escalation_level=? AND status=?`
	res, err := tx.ExecContext(ctx, update,
		string(next.Status),
		next.AssignedTo,
		next.Resolution,
		toMillis(next.TimeoutAt),
		next.EscalationLevel,
		history,
		toMillis(next.UpdatedAt),
		id,
		current.EscalationLevel,
		string(current.Status),
	)
	if err != nil {
		return nil, apperrors.NewStorageError(op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, apperrors.NewStorageError(op, err)
	}
	if affected == 0 {
		return nil, apperrors.NewConcurrencyError("help request changed concurrently", map[string]any{"id": id})
	}
	if err := tx.Commit(); err != nil {
		return nil, apperrors.NewStorageError(op, err)
	}
	return &next, nil
}

func (r *sqliteHelpRequestRepository) list(ctx context.Context, op, query string, args ...any) ([]domain.HelpRequest, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewStorageError(op, err)
	}
	defer rows.Close()

	var out []domain.HelpRequest
	for rows.Next() {
		req, err := scanSQLiteHelpRequest(rows)
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

type sqlScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteHelpRequest(row sqlScanner) (*domain.HelpRequest, error) {
	var (
		req                     domain.HelpRequest
		status, priority        string
		createdAt, updatedAt    int64
		timeoutAt               sql.NullInt64
		assignedTo, resolution  sql.NullString
		tags, metadata, history string
	)
	if err := row.Scan(
		&req.ID,
		&req.CustomerID,
		&req.CustomerName,
		&req.Question,
		&status,
		&priority,
		&createdAt,
		&updatedAt,
		&assignedTo,
		&resolution,
		&tags,
		&metadata,
		&timeoutAt,
		&req.EscalationLevel,
		&history,
	); err != nil {
		return nil, err
	}
	if err := normalizeScanned(&req, status, priority); err != nil {
		return nil, err
	}
	req.CreatedAt = fromMillis(createdAt)
	req.UpdatedAt = fromMillis(updatedAt)
	if timeoutAt.Valid {
		req.TimeoutAt = fromMillis(timeoutAt.Int64)
	}
	if assignedTo.Valid {
		v := assignedTo.String
		req.AssignedTo = &v
	}
	if resolution.Valid {
		v := resolution.String
		req.Resolution = &v
	}
	if err := decodeRequestJSON(&req, []byte(tags), []byte(metadata), []byte(history)); err != nil {
		return nil, err
	}
	return &req, nil
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
