package service

import (
	"context"

	"strata/internal/domain"
	"strata/internal/paging"
)

// GetChangelogEvents returns one page of changelog events, oldest first
// unless the query is reversed
func (e *Engine) GetChangelogEvents(ctx context.Context, session domain.Session, query domain.ChangelogEventQuery, req paging.Request) (*paging.Connection[*domain.ChangelogEvent], error) {
	var conn *paging.Connection[*domain.ChangelogEvent]
	err := e.inTx(ctx, session, func(tx *txn) error {
		if query.EntityID != "" {
			if _, err := e.loadEntity(ctx, tx, query.EntityID); err != nil {
				return err
			}
		}
		var err error
		conn, err = paging.Page[*domain.ChangelogEvent](ctx, req, tx, query.Reverse, func(ctx context.Context, q *paging.Query) ([]paging.Row[*domain.ChangelogEvent], error) {
			return tx.QueryEvents(ctx, &query, q)
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// GetChangelogEventsTotalCount counts the changelog events matching query
func (e *Engine) GetChangelogEventsTotalCount(ctx context.Context, session domain.Session, query domain.ChangelogEventQuery) (int, error) {
	var n int
	err := e.inTx(ctx, session, func(tx *txn) error {
		var err error
		n, err = tx.CountEvents(ctx, &query)
		return err
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}
