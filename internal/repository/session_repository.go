// internal/repository/session_repository.go
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"unilog-service/internal/database"
	"unilog-service/internal/model"
)

const sessionColumns = `id, device_id, generation, source, state, label, channels, displayable,
	point_count, receive_errors, started_at, finished_at`

// sessionRepository implements SessionRepository on postgres. Points go to
// the samples table through COPY.
type sessionRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *database.DB, logger *zap.Logger) SessionRepository {
	return &sessionRepository{
		db:     db,
		logger: logger,
	}
}

func scanSession(row rowScanner) (*model.Session, error) {
	s := &model.Session{}
	var displayable []byte
	err := row.Scan(
		&s.ID, &s.DeviceID, &s.Generation, &s.Source, &s.State, &s.Label,
		&s.Channels, &displayable, &s.PointCount, &s.ReceiveErrors,
		&s.StartedAt, &s.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(displayable, &s.Displayable); err != nil {
		return nil, fmt.Errorf("failed to decode displayable flags: %w", err)
	}
	return s, nil
}

// Save stores a finalized session and its points in one transaction
func (r *sessionRepository) Save(ctx context.Context, session *model.Session) error {
	if session.State != model.SessionStateFinalized {
		return fmt.Errorf("session %s is %s: %w", session.ID, session.State, ErrNotFinalized)
	}

	displayable, err := json.Marshal(session.Displayable)
	if err != nil {
		return fmt.Errorf("failed to encode displayable flags: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		session.ID, session.DeviceID, session.Generation, session.Source, session.State,
		session.Label, session.Channels, displayable, session.PointCount,
		session.ReceiveErrors, session.StartedAt, session.FinishedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("session %s: %w", session.ID, ErrDuplicate)
		}
		return fmt.Errorf("failed to insert session: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("samples", "session_id", "idx", "elapsed_ms", "vals"))
	if err != nil {
		return fmt.Errorf("failed to prepare sample copy: %w", err)
	}
	for _, p := range session.Points {
		vals := make(pq.Int64Array, len(p.Values))
		for i, v := range p.Values {
			vals[i] = int64(v)
		}
		if _, err := stmt.ExecContext(ctx, session.ID, p.Index, p.ElapsedMs, vals); err != nil {
			stmt.Close()
			return fmt.Errorf("failed to copy sample %d: %w", p.Index, err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return fmt.Errorf("failed to flush sample copy: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return fmt.Errorf("failed to close sample copy: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit session: %w", err)
	}

	r.logger.Info("Session stored",
		zap.String("session_id", session.ID.String()),
		zap.Int("points", session.PointCount),
	)
	return nil
}

// GetByID loads a session
func (r *sessionRepository) GetByID(ctx context.Context, id uuid.UUID, withPoints bool) (*model.Session, error) {
	s, err := scanSession(r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if !withPoints {
		return s, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT idx, elapsed_ms, vals FROM samples WHERE session_id = $1 ORDER BY idx`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load samples: %w", err)
	}
	defer rows.Close()

	s.Points = make([]*model.SamplePoint, 0, s.PointCount)
	for rows.Next() {
		p := &model.SamplePoint{}
		var vals pq.Int64Array
		if err := rows.Scan(&p.Index, &p.ElapsedMs, &vals); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		p.Values = make([]int32, len(vals))
		for i, v := range vals {
			p.Values[i] = int32(v)
		}
		s.Points = append(s.Points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate samples: %w", err)
	}
	return s, nil
}

// List retrieves sessions without points
func (r *sessionRepository) List(ctx context.Context, filter *SessionFilter) ([]*model.Session, int, error) {
	if filter == nil {
		filter = &SessionFilter{}
	}
	whereConditions := []string{}
	args := []interface{}{}
	argIndex := 1

	if filter.DeviceID != nil {
		whereConditions = append(whereConditions, fmt.Sprintf("device_id = $%d", argIndex))
		args = append(args, *filter.DeviceID)
		argIndex++
	}
	if filter.Source != nil {
		whereConditions = append(whereConditions, fmt.Sprintf("source = $%d", argIndex))
		args = append(args, *filter.Source)
		argIndex++
	}
	if filter.StartDate != nil {
		whereConditions = append(whereConditions, fmt.Sprintf("started_at >= $%d", argIndex))
		args = append(args, *filter.StartDate)
		argIndex++
	}
	if filter.EndDate != nil {
		whereConditions = append(whereConditions, fmt.Sprintf("started_at <= $%d", argIndex))
		args = append(args, *filter.EndDate)
		argIndex++
	}

	whereClause := ""
	if len(whereConditions) > 0 {
		whereClause = "WHERE " + strings.Join(whereConditions, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count sessions: %w", err)
	}

	page, perPage := normalizePage(filter.Page, filter.PerPage)
	query := fmt.Sprintf(`
		SELECT %s FROM sessions %s
		ORDER BY started_at DESC
		LIMIT $%d OFFSET $%d
	`, sessionColumns, whereClause, argIndex, argIndex+1)
	args = append(args, perPage, (page-1)*perPage)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	sessions := []*model.Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			r.logger.Error("Failed to scan session row", zap.Error(err))
			continue
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate session rows: %w", err)
	}
	return sessions, total, nil
}

// Delete removes a session and its samples
func (r *sessionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return expectOne(result, "session", id)
}
