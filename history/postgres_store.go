package history

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/godamri/helix-audit/audit"
	"github.com/godamri/helix-audit/database"
	"github.com/google/uuid"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS audit_logs (
		seq              BIGINT GENERATED ALWAYS AS IDENTITY,
		id               TEXT PRIMARY KEY,
		event_id         TEXT NOT NULL,
		event_type       TEXT NOT NULL,
		action_type      TEXT NOT NULL,
		service_name     TEXT NOT NULL,
		entity_name      TEXT NOT NULL,
		entity_id        TEXT NOT NULL,
		user_id          TEXT,
		user_info        TEXT,
		old_value        TEXT,
		new_value        TEXT,
		changes          TEXT,
		request_id       TEXT,
		event_timestamp  TIMESTAMPTZ NOT NULL,
		recorded_at      TIMESTAMPTZ NOT NULL,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		source_topic     TEXT,
		source_partition INTEGER,
		source_offset    BIGINT,
		CONSTRAINT audit_logs_event_id_key UNIQUE (event_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_logs_event_ts ON audit_logs (event_timestamp DESC, seq DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_logs_entity ON audit_logs (entity_name, entity_id, event_timestamp DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_logs_service ON audit_logs (service_name, event_timestamp DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_logs_user ON audit_logs (user_id, event_timestamp DESC)`,
}

const recordColumns = `id, event_id, event_type, action_type, service_name, entity_name, entity_id,
	user_id, user_info, old_value, new_value, changes, request_id,
	event_timestamp, recorded_at, created_at, source_topic, source_partition, source_offset`

// PostgresStore keeps audit logs in a single append-only table.
type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

// EnsureSchema creates the audit_logs table and its indexes if missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("history: ensure schema: %w", database.MapError(err))
		}
	}
	return nil
}

func (s *PostgresStore) Insert(ctx context.Context, rec Record) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	query := `
		INSERT INTO audit_logs (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (event_id) DO NOTHING
		RETURNING id`

	var id string
	err := s.db.QueryRowContext(ctx, query,
		rec.ID,
		rec.EventID,
		string(rec.EventType),
		string(rec.ActionType),
		rec.ServiceName,
		rec.EntityName,
		rec.EntityID,
		nullString(rec.UserID),
		nullString(rec.UserInfo),
		nullString(rec.OldValue),
		nullString(rec.NewValue),
		nullString(rec.Changes),
		nullString(rec.RequestID),
		rec.EventTimestamp,
		rec.Timestamp,
		s.now().UTC(),
		nullString(rec.SourceTopic),
		rec.SourcePartition,
		rec.SourceOffset,
	).Scan(&id)

	if err == nil {
		return id, nil
	}
	if !database.IsNoRows(err) {
		return "", fmt.Errorf("history: insert audit log: %w", database.MapError(err))
	}

	// DO NOTHING returns no row: the event is already stored.
	err = s.db.QueryRowContext(ctx, `SELECT id FROM audit_logs WHERE event_id = $1`, rec.EventID).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("history: lookup duplicate event: %w", database.MapError(err))
	}
	return id, ErrDuplicateEvent
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (*Record, error) {
	query := `SELECT ` + recordColumns + ` FROM audit_logs WHERE id = $1`

	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if database.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("history: find audit log: %w", database.MapError(err))
	}
	return rec, nil
}

func (s *PostgresStore) FindAll(ctx context.Context, p PageRequest) (Page[Record], error) {
	return s.Search(ctx, Criteria{}, p)
}

func (s *PostgresStore) Search(ctx context.Context, c Criteria, p PageRequest) (Page[Record], error) {
	p, err := p.Normalize()
	if err != nil {
		return Page[Record]{}, err
	}

	where, args := buildWhere(c)

	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_logs`+where, args...).Scan(&total); err != nil {
		return Page[Record]{}, fmt.Errorf("history: count audit logs: %w", database.MapError(err))
	}
	if total == 0 || int64(p.offset()) >= total {
		return NewPage[Record](nil, p, total), nil
	}

	dir := "DESC"
	if p.SortDir == SortAsc {
		dir = "ASC"
	}
	query := fmt.Sprintf(`SELECT %s FROM audit_logs%s ORDER BY %s %s, seq %s LIMIT $%d OFFSET $%d`,
		recordColumns, where, sortColumns[p.SortBy], dir, dir, len(args)+1, len(args)+2)
	args = append(args, p.Size, p.offset())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return Page[Record]{}, fmt.Errorf("history: search audit logs: %w", database.MapError(err))
	}
	defer rows.Close()

	content := make([]Record, 0, p.Size)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return Page[Record]{}, fmt.Errorf("history: scan audit log: %w", database.MapError(err))
		}
		content = append(content, *rec)
	}
	if err := rows.Err(); err != nil {
		return Page[Record]{}, fmt.Errorf("history: iterate audit logs: %w", database.MapError(err))
	}

	return NewPage(content, p, total), nil
}

// buildWhere returns a " WHERE ..." clause (or "") and its positional args.
func buildWhere(c Criteria) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if c.ServiceName != "" {
		add("service_name = $%d", c.ServiceName)
	}
	if c.EntityName != "" {
		add("entity_name = $%d", c.EntityName)
	}
	if c.EntityID != "" {
		add("entity_id = $%d", c.EntityID)
	}
	if c.ActionType != "" {
		add("action_type = $%d", string(c.ActionType))
	}
	if c.UserID != "" {
		add("user_id = $%d", c.UserID)
	}
	if c.StartDate != nil {
		add("event_timestamp >= $%d", *c.StartDate)
	}
	if c.EndDate != nil {
		add("event_timestamp <= $%d", *c.EndDate)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		rec                   Record
		eventType, actionType string
		userID, userInfo      sql.NullString
		oldValue, newValue    sql.NullString
		changes, requestID    sql.NullString
		sourceTopic           sql.NullString
		sourcePartition       sql.NullInt32
		sourceOffset          sql.NullInt64
	)

	err := row.Scan(
		&rec.ID,
		&rec.EventID,
		&eventType,
		&actionType,
		&rec.ServiceName,
		&rec.EntityName,
		&rec.EntityID,
		&userID,
		&userInfo,
		&oldValue,
		&newValue,
		&changes,
		&requestID,
		&rec.EventTimestamp,
		&rec.Timestamp,
		&rec.CreatedAt,
		&sourceTopic,
		&sourcePartition,
		&sourceOffset,
	)
	if err != nil {
		return nil, err
	}

	rec.EventType = audit.EventType(eventType)
	rec.ActionType = ActionType(actionType)
	rec.UserID = userID.String
	rec.UserInfo = userInfo.String
	rec.OldValue = oldValue.String
	rec.NewValue = newValue.String
	rec.Changes = changes.String
	rec.RequestID = requestID.String
	rec.SourceTopic = sourceTopic.String
	rec.SourcePartition = sourcePartition.Int32
	rec.SourceOffset = sourceOffset.Int64
	return &rec, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
