package history

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := NewPostgresStore(db)
	s.now = func() time.Time { return baseTime.Add(time.Minute) }
	return s, mock
}

var columnNames = []string{
	"id", "event_id", "event_type", "action_type", "service_name", "entity_name", "entity_id",
	"user_id", "user_info", "old_value", "new_value", "changes", "request_id",
	"event_timestamp", "recorded_at", "created_at", "source_topic", "source_partition", "source_offset",
}

func addRecordRow(rows *sqlmock.Rows, id string, rec Record) *sqlmock.Rows {
	return rows.AddRow(
		id, rec.EventID, string(rec.EventType), string(rec.ActionType), rec.ServiceName, rec.EntityName, rec.EntityID,
		rec.UserID, nil, nil, rec.NewValue, nil, nil,
		rec.EventTimestamp, rec.Timestamp, baseTime.Add(time.Minute), "order-service-audit-logs", int64(2), int64(41),
	)
}

func TestPostgresStore_Insert(t *testing.T) {
	s, mock := newMockStore(t)
	rec := newTestRecord("e-1", func(r *Record) { r.ID = "rec-1" })

	mock.ExpectQuery("INSERT INTO audit_logs").
		WithArgs("rec-1", "e-1", "CREATED", "CREATE", "order-service", "Order", "o-1",
			"u-1", nil, nil, `{"total":10}`, nil, nil,
			rec.EventTimestamp, rec.Timestamp, baseTime.Add(time.Minute), nil, int64(0), int64(0)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("rec-1"))

	id, err := s.Insert(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, "rec-1", id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertDuplicateReturnsExistingID(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("INSERT INTO audit_logs").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM audit_logs WHERE event_id = $1")).
		WithArgs("e-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("existing"))

	id, err := s.Insert(context.Background(), newTestRecord("e-1"))
	assert.ErrorIs(t, err, ErrDuplicateEvent)
	assert.Equal(t, "existing", id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertFailureIsWrapped(t *testing.T) {
	s, mock := newMockStore(t)
	boom := &pgconn.PgError{Code: "57014", Message: "canceling statement"}

	mock.ExpectQuery("INSERT INTO audit_logs").WillReturnError(boom)

	_, err := s.Insert(context.Background(), newTestRecord("e-1"))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrDuplicateEvent)
	assert.Contains(t, err.Error(), "SYS_GATEWAY_TIMEOUT")
}

func TestPostgresStore_FindByID(t *testing.T) {
	s, mock := newMockStore(t)
	rec := newTestRecord("e-1")

	mock.ExpectQuery(regexp.QuoteMeta("FROM audit_logs WHERE id = $1")).
		WithArgs("rec-1").
		WillReturnRows(addRecordRow(sqlmock.NewRows(columnNames), "rec-1", rec))

	got, err := s.FindByID(context.Background(), "rec-1")
	require.NoError(t, err)
	assert.Equal(t, "rec-1", got.ID)
	assert.Equal(t, ActionCreate, got.ActionType)
	assert.Equal(t, "", got.OldValue)
	assert.Equal(t, `{"total":10}`, got.NewValue)
	assert.Equal(t, int32(2), got.SourcePartition)
	assert.Equal(t, int64(41), got.SourceOffset)
	assert.True(t, got.EventTimestamp.Equal(baseTime))
}

func TestPostgresStore_FindByIDNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("FROM audit_logs WHERE id").WillReturnError(sql.ErrNoRows)

	_, err := s.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresStore_Search(t *testing.T) {
	s, mock := newMockStore(t)
	start := baseTime
	c := Criteria{EntityName: "Order", EntityID: "o-1", ActionType: ActionCreate, StartDate: &start}

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT COUNT(*) FROM audit_logs WHERE entity_name = $1 AND entity_id = $2 AND action_type = $3 AND event_timestamp >= $4")).
		WithArgs("Order", "o-1", "CREATE", start).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(12)))

	rows := sqlmock.NewRows(columnNames)
	addRecordRow(rows, "rec-a", newTestRecord("e-a"))
	addRecordRow(rows, "rec-b", newTestRecord("e-b"))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY event_timestamp DESC, seq DESC LIMIT $5 OFFSET $6")).
		WithArgs("Order", "o-1", "CREATE", start, 5, 10).
		WillReturnRows(rows)

	page, err := s.Search(context.Background(), c, PageRequest{Page: 2, Size: 5})
	require.NoError(t, err)
	assert.Equal(t, []string{"e-a", "e-b"}, eventIDs(page.Content))
	assert.Equal(t, int64(12), page.TotalElements)
	assert.Equal(t, 3, page.TotalPages)
	assert.True(t, page.Last)
	assert.False(t, page.First)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SearchSortsByWhitelistedColumn(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM audit_logs")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(1)))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY service_name ASC, seq ASC LIMIT $1 OFFSET $2")).
		WithArgs(20, 0).
		WillReturnRows(addRecordRow(sqlmock.NewRows(columnNames), "rec-a", newTestRecord("e-a")))

	_, err := s.FindAll(context.Background(), PageRequest{SortBy: "serviceName", SortDir: "ASC"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SearchSkipsSelectWhenEmpty(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM audit_logs")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(0)))

	page, err := s.FindAll(context.Background(), PageRequest{})
	require.NoError(t, err)
	assert.Empty(t, page.Content)
	assert.NotNil(t, page.Content)
	assert.Equal(t, int64(0), page.TotalElements)
	assert.Equal(t, 0, page.TotalPages)
	assert.True(t, page.First)
	assert.True(t, page.Last)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SearchRejectsBadPage(t *testing.T) {
	s, mock := newMockStore(t)
	_, err := s.FindAll(context.Background(), PageRequest{Size: 500})
	assert.ErrorIs(t, err, ErrInvalidPageRequest)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_EnsureSchema(t *testing.T) {
	s, mock := newMockStore(t)
	for range schemaStatements {
		mock.ExpectExec("CREATE").WillReturnResult(sqlmock.NewResult(0, 0))
	}
	require.NoError(t, s.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())

	s, mock = newMockStore(t)
	mock.ExpectExec("CREATE TABLE").WillReturnError(errors.New("permission denied"))
	assert.Error(t, s.EnsureSchema(context.Background()))
}
