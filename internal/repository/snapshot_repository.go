package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/spec-kit/issuelog/internal/domain"
	"github.com/spec-kit/issuelog/internal/schema"
)

const (
	colTrackerID   = "tracker_id"
	colIssueID     = "issue_id"
	colSeq         = "seq"
	colIssue       = "issue"
	colSubmittedBy = "submitted_by"
	colRecordedAt  = "recorded_at"
)

// SnapshotRepository is the append-only snapshot sink.
type SnapshotRepository interface {
	// Append stores one snapshot. Re-appending an already stored (issue, seq) is a no-op.
	Append(ctx context.Context, adapter schema.Adapter, snapshot domain.Snapshot) error
	// Persisted returns how many leading snapshots of the issue are stored without gaps.
	Persisted(ctx context.Context, adapter schema.Adapter, issueID int64) (int, error)
	ListByIssue(ctx context.Context, adapter schema.Adapter, issueID int64) ([]domain.Snapshot, error)
}

type snapshotRepository struct {
	db     DBAdapter
	logger *zap.Logger
}

// NewSnapshotRepository instantiates repository over a pgx or sqlx adapter.
func NewSnapshotRepository(db DBAdapter, logger *zap.Logger) SnapshotRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &snapshotRepository{db: db, logger: logger}
}

func (r *snapshotRepository) Append(ctx context.Context, adapter schema.Adapter, snapshot domain.Snapshot) error {
	query, err := buildAppendQuery(adapter, snapshot)
	if err != nil {
		return errors.Join(domain.ErrSinkWrite, err)
	}

	result, err := r.db.Exec(ctx, query)
	if err != nil {
		return ClassifySinkError(err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return ClassifySinkError(err)
	}
	if affected == 0 {
		r.logger.Debug("snapshot already stored",
			zap.Int64("issue_id", snapshot.IssueID),
			zap.Int("seq", snapshot.Seq))
	}
	return nil
}

func (r *snapshotRepository) Persisted(ctx context.Context, adapter schema.Adapter, issueID int64) (int, error) {
	query, err := buildPersistedQuery(adapter, issueID)
	if err != nil {
		return 0, errors.Join(domain.ErrSinkWrite, err)
	}

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return 0, ClassifySinkError(err)
	}
	defer r.closeRows(rows)

	var count, next int64
	if rows.Next() {
		if err := rows.Scan(&count, &next); err != nil {
			return 0, ClassifySinkError(err)
		}
	}
	if err := rows.Err(); err != nil {
		return 0, ClassifySinkError(err)
	}

	if count != next {
		r.logger.Warn("snapshot history has gaps; replaying the whole issue",
			zap.Int64("issue_id", issueID),
			zap.Int64("stored", count),
			zap.Int64("next_seq", next))
		return 0, nil
	}
	return int(count), nil
}

func (r *snapshotRepository) ListByIssue(ctx context.Context, adapter schema.Adapter, issueID int64) ([]domain.Snapshot, error) {
	query, err := buildListQuery(adapter, issueID)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, ClassifySinkError(err)
	}
	defer r.closeRows(rows)

	attrs := adapter.Attributes()
	var snapshots []domain.Snapshot
	for rows.Next() {
		raw := make([]any, len(logHeader)+len(attrs))
		dest := make([]any, len(raw))
		for i := range raw {
			dest[i] = &raw[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, ClassifySinkError(err)
		}
		s, err := decodeSnapshot(issueID, raw, adapter)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, ClassifySinkError(err)
	}
	return snapshots, nil
}

func (r *snapshotRepository) closeRows(rows DBRows) {
	if err := rows.Close(); err != nil {
		r.logger.Warn("closing snapshot rows failed", zap.Error(err))
	}
}

var logHeader = []string{colSeq, colTrackerID, colIssue, colSubmittedBy, colRecordedAt}

func buildAppendQuery(adapter schema.Adapter, s domain.Snapshot) (string, error) {
	record := goqu.Record{
		colTrackerID:   s.TrackerID,
		colIssueID:     s.IssueID,
		colSeq:         s.Seq,
		colIssue:       s.Issue,
		colSubmittedBy: s.ChangedBy.SQL(),
		colRecordedAt:  nil,
	}
	if !s.RecordedAt.IsZero() {
		record[colRecordedAt] = s.RecordedAt.UTC()
	}
	for _, attr := range adapter.Attributes() {
		record[attr.Name] = s.Value(attr.Name).SQL()
	}

	query, _, err := goqu.Dialect(dialectPostgres).
		Insert(adapter.LogTable()).
		Rows(record).
		OnConflict(goqu.DoNothing()).
		ToSQL()
	if err != nil {
		return "", fmt.Errorf("build append query: %w", err)
	}
	return query, nil
}

func buildPersistedQuery(adapter schema.Adapter, issueID int64) (string, error) {
	query, _, err := goqu.Dialect(dialectPostgres).
		From(adapter.LogTable()).
		Select(
			goqu.COUNT(goqu.Star()),
			goqu.L("COALESCE(MAX(?) + 1, 0)", goqu.C(colSeq)),
		).
		Where(goqu.C(colIssueID).Eq(issueID)).
		ToSQL()
	if err != nil {
		return "", fmt.Errorf("build persisted query: %w", err)
	}
	return query, nil
}

func buildListQuery(adapter schema.Adapter, issueID int64) (string, error) {
	columns := make([]any, 0, len(logHeader)+len(adapter.Attributes()))
	for _, name := range logHeader {
		columns = append(columns, goqu.C(name))
	}
	for _, attr := range adapter.Attributes() {
		columns = append(columns, goqu.C(attr.Name))
	}

	query, _, err := goqu.Dialect(dialectPostgres).
		From(adapter.LogTable()).
		Select(columns...).
		Where(goqu.C(colIssueID).Eq(issueID)).
		Order(goqu.C(colSeq).Asc()).
		ToSQL()
	if err != nil {
		return "", fmt.Errorf("build list query: %w", err)
	}
	return query, nil
}

func decodeSnapshot(issueID int64, raw []any, adapter schema.Adapter) (domain.Snapshot, error) {
	seq, err := asInt64(raw[0])
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("decode seq: %w", err)
	}
	trackerID, _ := asInt64(raw[1])
	issue := asString(raw[2])

	changedBy := domain.UnknownPerson()
	if raw[3] != nil {
		changedBy, err = adapter.FromStored(schema.Attribute{Name: colSubmittedBy, Type: schema.TypePerson}, raw[3])
		if err != nil {
			return domain.Snapshot{}, err
		}
	}
	recordedAt, _ := raw[4].(time.Time)

	attrs := adapter.Attributes()
	values := make(map[string]domain.Value, len(attrs))
	for i, attr := range attrs {
		v, err := adapter.FromStored(attr, raw[len(logHeader)+i])
		if err != nil {
			return domain.Snapshot{}, err
		}
		values[attr.Name] = v
	}

	s := domain.NewSnapshot(issueID, trackerID, issue, changedBy, recordedAt.UTC(), values)
	s.Seq = int(seq)
	return s, nil
}

func asInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case int:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("unexpected integer type %T", v)
	}
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return ""
	}
}

// ClassifySinkError tags driver errors as connection-level (ErrSinkConnection) or as isolated
// write failures (ErrSinkWrite).
func ClassifySinkError(err error) error {
	if err == nil {
		return nil
	}
	if IsConnectionError(err) {
		return errors.Join(domain.ErrSinkConnection, err)
	}
	return errors.Join(domain.ErrSinkWrite, err)
}

// IsConnectionError reports whether err means the sink connection is unusable.
func IsConnectionError(err error) bool {
	if errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, net.ErrClosed) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return isConnectionSQLState(pgErr.Code)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return isConnectionSQLState(string(pqErr.Code))
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return pgconn.Timeout(err)
}

// class 08 is connection exception, 57P01..57P03 are server shutdown states.
func isConnectionSQLState(code string) bool {
	return strings.HasPrefix(code, "08") || strings.HasPrefix(code, "57P")
}
