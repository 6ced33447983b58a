package service

import (
	"errors"

	"todaride/internal/domain"
	"todaride/internal/repository"
)

// authorizeTenant rejects any actor whose tenant differs from the entity's,
// whatever the actor's role.
func authorizeTenant(actor domain.Actor, tenantID string) error {
	if actor.TenantID == "" || actor.TenantID != tenantID {
		return ErrTenantScope
	}
	return nil
}

// requireActor rejects requests without an authenticated actor.
func requireActor(actor domain.Actor) error {
	if actor.ID == "" || actor.TenantID == "" || !actor.Role.Valid() {
		return ErrUnauthenticated
	}
	return nil
}

// requireRole rejects actors whose role is not listed.
func requireRole(actor domain.Actor, roles ...domain.Role) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	for _, r := range roles {
		if actor.Role == r {
			return nil
		}
	}
	return ErrForbiddenRole
}

// notFound maps repository.ErrNotFound to the typed error and passes any
// other error through.
func notFound(err error, typed error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return typed
	}
	return err
}
