package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"strata/internal/domain"
	"strata/internal/paging"
)

const principalColumns = `id, provider, identifier, uuid, created_at`

type principalScan struct {
	ID         int64
	Provider   string
	Identifier string
	Subject    string
	CreatedAt  int64
}

func (r *principalScan) scanArgs() []any {
	return []any{&r.ID, &r.Provider, &r.Identifier, &r.Subject, &r.CreatedAt}
}

func (r *principalScan) toDomain() *domain.Principal {
	return &domain.Principal{
		Provider:   r.Provider,
		Identifier: r.Identifier,
		Subject:    r.Subject,
		CreatedAt:  fromMillis(r.CreatedAt),
	}
}

// InsertPrincipal stores a principal. A taken provider/identifier pair is a Conflict.
func (s *Store) InsertPrincipal(ctx context.Context, p *domain.Principal) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO principals (provider, identifier, uuid, created_at) VALUES (?, ?, ?, ?)
	`, p.Provider, p.Identifier, p.Subject, toMillis(p.CreatedAt))
	if err != nil {
		if s.adapter.IsUniqueViolation(err, ConstraintPrincipal) {
			return domain.Conflict("principal already exist")
		}
		return fmt.Errorf("failed to insert principal: %w", err)
	}
	return nil
}

// GetPrincipal finds a principal by provider and identifier
func (s *Store) GetPrincipal(ctx context.Context, provider, identifier string) (*domain.Principal, error) {
	var r principalScan
	err := s.q.QueryRowContext(ctx, `
		SELECT `+principalColumns+` FROM principals WHERE provider = ? AND identifier = ?
	`, provider, identifier).Scan(r.scanArgs()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("principal doesn't exist")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query principal: %w", err)
	}
	return r.toDomain(), nil
}

// ListPrincipals returns one page of principals in creation order
func (s *Store) ListPrincipals(ctx context.Context, q *paging.Query) ([]paging.Row[*domain.Principal], error) {
	query := `SELECT ` + principalColumns + ` FROM principals`
	conds, args := q.Where("id")
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " " + q.OrderBy("id") + " LIMIT ?"
	args = append(args, q.Limit())

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query principals: %w", err)
	}
	defer rows.Close()

	var result []paging.Row[*domain.Principal]
	for rows.Next() {
		var r principalScan
		if err := rows.Scan(r.scanArgs()...); err != nil {
			return nil, fmt.Errorf("failed to scan principal: %w", err)
		}
		result = append(result, paging.Row[*domain.Principal]{ID: r.ID, Node: r.toDomain()})
	}
	return result, rows.Err()
}
