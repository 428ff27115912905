package service

import (
	"context"

	"strata/internal/domain"
	"strata/internal/paging"
)

// DefaultSessionAuthKeys are the auth keys queried when a caller doesn't
// name any
var DefaultSessionAuthKeys = []string{domain.AuthKeyNone, domain.AuthKeySubject}

// CreatePrincipal registers an identity from an external provider. The
// principal gets a new subject.
func (e *Engine) CreatePrincipal(ctx context.Context, session domain.Session, provider, identifier string) (*domain.Principal, error) {
	if provider == "" || identifier == "" {
		return nil, domain.BadRequest("principal requires a provider and an identifier")
	}
	var principal *domain.Principal
	err := e.inTx(ctx, session, func(tx *txn) error {
		var err error
		principal, err = tx.createPrincipal(ctx, provider, identifier)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info().Str("provider", provider).Str("subject", principal.Subject).Msg("principal created")
	return principal, nil
}

// CreateSession opens a session for the principal identified by provider and
// identifier. With createIfMissing set an unknown principal is created.
func (e *Engine) CreateSession(ctx context.Context, provider, identifier string, createIfMissing bool) (*domain.Session, bool, error) {
	var (
		principal *domain.Principal
		created   bool
	)
	err := e.inTx(ctx, domain.Session{}, func(tx *txn) error {
		var err error
		principal, err = tx.GetPrincipal(ctx, provider, identifier)
		if domain.KindOf(err) == domain.ErrorNotFound && createIfMissing {
			created = true
			principal, err = tx.createPrincipal(ctx, provider, identifier)
		}
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return &domain.Session{Subject: principal.Subject, DefaultAuthKeys: DefaultSessionAuthKeys}, created, nil
}

// GetPrincipals returns one page of principals
func (e *Engine) GetPrincipals(ctx context.Context, req paging.Request) (*paging.Connection[*domain.Principal], error) {
	var conn *paging.Connection[*domain.Principal]
	err := e.inTx(ctx, domain.Session{}, func(tx *txn) error {
		var err error
		conn, err = paging.Page[*domain.Principal](ctx, req, tx, false, func(ctx context.Context, q *paging.Query) ([]paging.Row[*domain.Principal], error) {
			return tx.ListPrincipals(ctx, q)
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (tx *txn) createPrincipal(ctx context.Context, provider, identifier string) (*domain.Principal, error) {
	p := &domain.Principal{
		Provider:   provider,
		Identifier: identifier,
		Subject:    tx.RandomUUID(),
		CreatedAt:  tx.now,
	}
	if err := tx.InsertPrincipal(ctx, p); err != nil {
		return nil, err
	}
	createdBy := tx.session.Subject
	if createdBy == "" {
		createdBy = p.Subject
	}
	if err := tx.recordEventBy(ctx, createdBy, domain.EventCreatePrincipal, nil, 0); err != nil {
		return nil, err
	}
	return p, nil
}
