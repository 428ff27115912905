package service

import (
	"context"

	"strata/internal/domain"
)

// AuthorizationAdapter resolves the auth keys of a session. An entity's
// resolved auth key is stored with it; a session may access the entity only
// if it resolves the entity's auth key to the same value.
type AuthorizationAdapter interface {
	ResolveAuthKeys(ctx context.Context, session domain.Session, authKeys []string) ([]domain.ResolvedAuthKey, error)
}

// SubjectAuthorizationAdapter resolves "none" to itself and "subject" to
// "subject:<session subject>". Other keys are rejected.
type SubjectAuthorizationAdapter struct{}

// ResolveAuthKeys implements AuthorizationAdapter
func (SubjectAuthorizationAdapter) ResolveAuthKeys(ctx context.Context, session domain.Session, authKeys []string) ([]domain.ResolvedAuthKey, error) {
	resolved := make([]domain.ResolvedAuthKey, 0, len(authKeys))
	for _, key := range authKeys {
		switch key {
		case domain.AuthKeyNone:
			resolved = append(resolved, domain.ResolvedAuthKey{AuthKey: key, ResolvedAuthKey: domain.AuthKeyNone})
		case domain.AuthKeySubject:
			if session.Subject == "" {
				return nil, domain.NotAuthorized("auth key subject requires a session subject")
			}
			resolved = append(resolved, domain.ResolvedAuthKey{AuthKey: key, ResolvedAuthKey: "subject:" + session.Subject})
		default:
			return nil, domain.NotAuthorized("unsupported auth key (%s)", key)
		}
	}
	return resolved, nil
}

// resolveAuthKey resolves a single auth key
func (e *Engine) resolveAuthKey(ctx context.Context, session domain.Session, authKey string) (string, error) {
	resolved, err := e.authz.ResolveAuthKeys(ctx, session, []string{authKey})
	if err != nil {
		return "", err
	}
	if len(resolved) != 1 {
		return "", domain.NotAuthorized("failed to resolve auth key (%s)", authKey)
	}
	return resolved[0].ResolvedAuthKey, nil
}

// authorize checks that the session may access an entity
func (e *Engine) authorize(ctx context.Context, session domain.Session, authKey, resolvedAuthKey string) error {
	resolved, err := e.resolveAuthKey(ctx, session, authKey)
	if err != nil {
		return err
	}
	if resolved != resolvedAuthKey {
		return domain.NotAuthorized("wrong authKey provided")
	}
	return nil
}

// resolveQueryAuthKeys resolves the auth keys of a query, falling back to
// the session defaults
func (e *Engine) resolveQueryAuthKeys(ctx context.Context, session domain.Session, authKeys []string) ([]string, error) {
	if len(authKeys) == 0 {
		authKeys = session.DefaultAuthKeys
	}
	if len(authKeys) == 0 {
		authKeys = []string{domain.AuthKeyNone}
	}
	resolved, err := e.authz.ResolveAuthKeys(ctx, session, authKeys)
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(resolved))
	for i, r := range resolved {
		keys[i] = r.ResolvedAuthKey
	}
	return keys, nil
}
