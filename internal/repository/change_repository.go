package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/issuelog/internal/domain"
)

// ChangeRepository reads the harvested change log.
type ChangeRepository interface {
	ListChangedFields(ctx context.Context, issueID int64) ([]string, error)
	FieldHistory(ctx context.Context, issueID int64, field string) ([]domain.FieldChange, error)
}

type changeRepository struct {
	pool *pgxpool.Pool
}

// NewChangeRepository instantiates repository.
func NewChangeRepository(pool *pgxpool.Pool) ChangeRepository {
	return &changeRepository{pool: pool}
}

func (r *changeRepository) ListChangedFields(ctx context.Context, issueID int64) ([]string, error) {
	const query = `SELECT DISTINCT field FROM changes WHERE issue_id=$1 ORDER BY field`
	rows, err := r.pool.Query(ctx, query, issueID)
	if err != nil {
		return nil, fmt.Errorf("%w: list changed fields of issue %d: %w", domain.ErrSourceUnavailable, issueID, err)
	}
	defer rows.Close()

	var fields []string
	for rows.Next() {
		var field string
		if err := rows.Scan(&field); err != nil {
			return nil, fmt.Errorf("%w: scan field: %w", domain.ErrSourceUnavailable, err)
		}
		fields = append(fields, field)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list changed fields of issue %d: %w", domain.ErrSourceUnavailable, issueID, err)
	}
	return fields, nil
}

// FieldHistory returns the transitions of one field, oldest first. The author is the person's
// email, then the tracker user id, then the raw people id.
func (r *changeRepository) FieldHistory(ctx context.Context, issueID int64, field string) ([]domain.FieldChange, error) {
	const query = `
        SELECT COALESCE(c.old_value, ''), COALESCE(c.new_value, ''),
               COALESCE(NULLIF(p.email, ''), NULLIF(p.user_id, ''), c.changed_by::text, ''),
               c.changed_on
        FROM changes c
        LEFT JOIN people p ON p.id = c.changed_by
        WHERE c.issue_id=$1 AND c.field=$2
        ORDER BY c.changed_on, c.id`
	rows, err := r.pool.Query(ctx, query, issueID, field)
	if err != nil {
		return nil, fmt.Errorf("%w: history of %q on issue %d: %w", domain.ErrSourceUnavailable, field, issueID, err)
	}
	defer rows.Close()

	var history []domain.FieldChange
	for rows.Next() {
		var change domain.FieldChange
		if err := rows.Scan(&change.OldValue, &change.NewValue, &change.Author, &change.ChangedAt); err != nil {
			return nil, fmt.Errorf("%w: scan change: %w", domain.ErrSourceUnavailable, err)
		}
		change.ChangedAt = change.ChangedAt.UTC()
		history = append(history, change)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: history of %q on issue %d: %w", domain.ErrSourceUnavailable, field, issueID, err)
	}
	return history, nil
}

// LoadEvents flattens every field history of an issue into change events.
func LoadEvents(ctx context.Context, source ChangeRepository, issueID int64) ([]domain.ChangeEvent, error) {
	fields, err := source.ListChangedFields(ctx, issueID)
	if err != nil {
		return nil, err
	}

	var events []domain.ChangeEvent
	for _, field := range fields {
		history, err := source.FieldHistory(ctx, issueID, field)
		if err != nil {
			return nil, err
		}
		for _, change := range history {
			events = append(events, change.Event(issueID, field))
		}
	}
	return events, nil
}
