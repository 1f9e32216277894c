package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/issuelog/internal/domain"
)

// PeopleRepository resolves tracker identities to people rows.
type PeopleRepository interface {
	ResolvePerson(ctx context.Context, identifier string) (domain.PersonID, error)
	GetByID(ctx context.Context, id domain.PersonID) (*domain.PersonRecord, error)
}

type peopleRepository struct {
	pool *pgxpool.Pool
}

// NewPeopleRepository instantiates repository.
func NewPeopleRepository(pool *pgxpool.Pool) PeopleRepository {
	return &peopleRepository{pool: pool}
}

// ResolvePerson matches by email first, then by tracker user id, then by a raw people id.
func (r *peopleRepository) ResolvePerson(ctx context.Context, identifier string) (domain.PersonID, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return 0, fmt.Errorf("%w: empty identifier", domain.ErrPersonNotFound)
	}

	lookups := []string{
		`SELECT id FROM people WHERE email=$1 ORDER BY id LIMIT 1`,
		`SELECT id FROM people WHERE user_id=$1 ORDER BY id LIMIT 1`,
	}
	for _, query := range lookups {
		id, err := r.scanID(ctx, query, identifier)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("resolve person %q: %w", identifier, err)
		}
	}

	if raw, err := strconv.ParseInt(identifier, 10, 64); err == nil {
		id, err := r.scanID(ctx, `SELECT id FROM people WHERE id=$1`, raw)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("resolve person %q: %w", identifier, err)
		}
	}

	return 0, fmt.Errorf("%w: %q", domain.ErrPersonNotFound, identifier)
}

func (r *peopleRepository) scanID(ctx context.Context, query string, arg any) (domain.PersonID, error) {
	var id int64
	if err := r.pool.QueryRow(ctx, query, arg).Scan(&id); err != nil {
		return 0, err
	}
	return domain.PersonID(id), nil
}

func (r *peopleRepository) GetByID(ctx context.Context, id domain.PersonID) (*domain.PersonRecord, error) {
	const query = `SELECT id, COALESCE(name, ''), COALESCE(email, ''), COALESCE(user_id, '') FROM people WHERE id=$1`
	var (
		person domain.PersonRecord
		raw    int64
	)
	if err := r.pool.QueryRow(ctx, query, int64(id)).Scan(&raw, &person.Name, &person.Email, &person.UserID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: id %d", domain.ErrPersonNotFound, id)
		}
		return nil, err
	}
	person.ID = domain.PersonID(raw)
	return &person, nil
}
