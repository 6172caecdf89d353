// Package auth resolves caller roles and gates privileged actions.
package auth

import (
	"context"
	"errors"
	"fmt"

	"fleet_service_bot/internal/domain"
)

type roleSource interface {
	GetRole(ctx context.Context, tgID int64) (string, error)
	ListByRole(ctx context.Context, role string) ([]domain.User, error)
}

// Policy decides what a caller is allowed to do. The bootstrap admin set is
// fixed at startup and consulted before the persisted role column; stored
// admin grants remain valid alongside it.
//
// Callers that fail an admin check must no-op silently. The policy only
// answers questions; the silence itself is the handler's responsibility.
type Policy struct {
	bootstrap map[int64]struct{}
	order     []int64
	roles     roleSource
}

// NewPolicy constructs a Policy from the immutable bootstrap admin ids and a
// persisted role source.
func NewPolicy(bootstrapAdmins []int64, roles roleSource) *Policy {
	set := make(map[int64]struct{}, len(bootstrapAdmins))
	order := make([]int64, 0, len(bootstrapAdmins))
	for _, id := range bootstrapAdmins {
		if _, ok := set[id]; ok {
			continue
		}
		set[id] = struct{}{}
		order = append(order, id)
	}

	return &Policy{
		bootstrap: set,
		order:     order,
		roles:     roles,
	}
}

// ResolveRole returns the effective role for the given Telegram id. Bootstrap
// admins are always admin; unknown identities default to user.
func (p *Policy) ResolveRole(ctx context.Context, tgID int64) (string, error) {
	if p == nil {
		return "", errors.New("policy is not initialized")
	}
	if ctx == nil {
		return "", errors.New("context is required")
	}

	if _, ok := p.bootstrap[tgID]; ok {
		return domain.RoleAdmin, nil
	}
	if p.roles == nil {
		return domain.RoleUser, nil
	}

	role, err := p.roles.GetRole(ctx, tgID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.RoleUser, nil
		}
		return "", fmt.Errorf("resolve role: %w", err)
	}
	if role == "" {
		return domain.RoleUser, nil
	}

	return role, nil
}

// IsAdmin reports whether the given Telegram id holds admin privileges.
func (p *Policy) IsAdmin(ctx context.Context, tgID int64) (bool, error) {
	role, err := p.ResolveRole(ctx, tgID)
	if err != nil {
		return false, err
	}

	return role == domain.RoleAdmin, nil
}

// AdminIDs returns the union of bootstrap admins and stored admin users,
// bootstrap first, deduplicated. Used for notification fan-out.
func (p *Policy) AdminIDs(ctx context.Context) ([]int64, error) {
	if p == nil {
		return nil, errors.New("policy is not initialized")
	}
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	ids := make([]int64, 0, len(p.order))
	seen := make(map[int64]struct{}, len(p.order))
	for _, id := range p.order {
		ids = append(ids, id)
		seen[id] = struct{}{}
	}

	if p.roles == nil {
		return ids, nil
	}

	stored, err := p.roles.ListByRole(ctx, domain.RoleAdmin)
	if err != nil {
		return nil, fmt.Errorf("list stored admins: %w", err)
	}

	for _, user := range stored {
		if _, ok := seen[user.TgID]; ok {
			continue
		}
		seen[user.TgID] = struct{}{}
		ids = append(ids, user.TgID)
	}

	return ids, nil
}
