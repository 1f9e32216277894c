package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/issuelog/internal/domain"
	"github.com/spec-kit/issuelog/internal/schema"
)

const (
	dialectPostgres = "postgres"
	aliasIssues     = "i"
	aliasExt        = "e"
)

// ErrIssueNotFound is returned when the issues table has no such row.
var ErrIssueNotFound = errors.New("issue not found")

// IssueRepository provides the current state of harvested issues.
type IssueRepository interface {
	ListIssueIDs(ctx context.Context, trackerID int64) ([]int64, error)
	LoadCurrentState(ctx context.Context, issueID int64, adapter schema.Adapter) (domain.CurrentState, error)
}

type issueRepository struct {
	pool *pgxpool.Pool
}

// NewIssueRepository instantiates repository.
func NewIssueRepository(pool *pgxpool.Pool) IssueRepository {
	return &issueRepository{pool: pool}
}

// ListIssueIDs returns the issues of one tracker, or of every tracker when trackerID is zero.
func (r *issueRepository) ListIssueIDs(ctx context.Context, trackerID int64) ([]int64, error) {
	query := `SELECT id FROM issues ORDER BY id`
	args := []any{}
	if trackerID > 0 {
		query = `SELECT id FROM issues WHERE tracker_id=$1 ORDER BY id`
		args = append(args, trackerID)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list issues: %w", domain.ErrSourceUnavailable, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%w: scan issue id: %w", domain.ErrSourceUnavailable, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list issues: %w", domain.ErrSourceUnavailable, err)
	}
	return ids, nil
}

func (r *issueRepository) LoadCurrentState(ctx context.Context, issueID int64, adapter schema.Adapter) (domain.CurrentState, error) {
	query, err := buildCurrentStateQuery(issueID, adapter)
	if err != nil {
		return domain.CurrentState{}, err
	}

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return domain.CurrentState{}, fmt.Errorf("%w: load issue %d: %w", domain.ErrSourceUnavailable, issueID, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return domain.CurrentState{}, fmt.Errorf("%w: load issue %d: %w", domain.ErrSourceUnavailable, issueID, err)
		}
		return domain.CurrentState{}, fmt.Errorf("%w: %w: %d", domain.ErrSourceUnavailable, ErrIssueNotFound, issueID)
	}

	values, err := rows.Values()
	if err != nil {
		return domain.CurrentState{}, fmt.Errorf("%w: decode issue %d: %w", domain.ErrSourceUnavailable, issueID, err)
	}
	return decodeCurrentState(values, adapter)
}

// header columns precede the attribute columns in the current-state select.
var stateHeader = []string{"id", "tracker_id", "issue", "submitted_by", "submitted_on"}

func buildCurrentStateQuery(issueID int64, adapter schema.Adapter) (string, error) {
	base := make(map[string]bool)
	for _, name := range schema.BaseColumns() {
		base[name] = true
	}

	columns := make([]any, 0, len(stateHeader)+len(adapter.Attributes()))
	for _, name := range stateHeader {
		columns = append(columns, goqu.I(aliasIssues+"."+name))
	}

	ext := adapter.ExtTable()
	for _, attr := range adapter.Attributes() {
		switch {
		case base[attr.Name]:
			columns = append(columns, goqu.I(aliasIssues+"."+attr.Name))
		case ext != "":
			columns = append(columns, goqu.I(aliasExt+"."+attr.Name))
		default:
			return "", fmt.Errorf("attribute %s of %s has no source column", attr.Name, adapter.Kind())
		}
	}

	ds := goqu.Dialect(dialectPostgres).
		From(goqu.T("issues").As(aliasIssues)).
		Select(columns...).
		Where(goqu.I(aliasIssues + ".id").Eq(issueID))
	if ext != "" {
		ds = ds.LeftJoin(
			goqu.T(ext).As(aliasExt),
			goqu.On(goqu.I(aliasExt+".issue_id").Eq(goqu.I(aliasIssues+".id"))),
		)
	}

	query, _, err := ds.ToSQL()
	if err != nil {
		return "", fmt.Errorf("build current state query: %w", err)
	}
	return query, nil
}

func decodeCurrentState(row []any, adapter schema.Adapter) (domain.CurrentState, error) {
	attrs := adapter.Attributes()
	if len(row) != len(stateHeader)+len(attrs) {
		return domain.CurrentState{}, fmt.Errorf("%w: expected %d columns, got %d",
			domain.ErrSourceUnavailable, len(stateHeader)+len(attrs), len(row))
	}

	id, ok := row[0].(int64)
	if !ok {
		return domain.CurrentState{}, fmt.Errorf("%w: issue id has type %T", domain.ErrSourceUnavailable, row[0])
	}
	trackerID, _ := row[1].(int64)
	issue, _ := row[2].(string)

	submitter := schema.Attribute{Name: "submitted_by", Type: schema.TypePerson}
	submittedBy, err := adapter.FromStored(submitter, row[3])
	if err != nil {
		return domain.CurrentState{}, err
	}
	submittedAt, _ := row[4].(time.Time)

	state := domain.CurrentState{
		IssueID:     id,
		TrackerID:   trackerID,
		Issue:       issue,
		SubmittedBy: submittedBy,
		SubmittedAt: submittedAt.UTC(),
		Values:      make(map[string]domain.Value, len(attrs)),
	}
	for i, attr := range attrs {
		v, err := adapter.FromStored(attr, row[len(stateHeader)+i])
		if err != nil {
			// an unreadable current value is treated like a missing one
			v = domain.Null()
		}
		state.Values[attr.Name] = v
	}
	return state, nil
}
