package service

import (
	"context"
	"errors"
	"fmt"

	domainauth "github.com/garagebay/staffgate/internal/domain/auth"
	"github.com/garagebay/staffgate/internal/ports"
	"golang.org/x/sync/singleflight"
)

var errInactiveIdentity = errors.New("staff identity is deactivated")

// Resolver turns a bearer credential into a staff identity.
// It is the single enforcement point for credential expiry.
type Resolver struct {
	backend ports.AuthBackend
	group   singleflight.Group
}

// NewResolver constructs a Resolver backed by the staff backend.
func NewResolver(backend ports.AuthBackend) *Resolver {
	if backend == nil {
		panic("staff auth backend is required")
	}
	return &Resolver{backend: backend}
}

// Resolve returns the identity behind cred. The demo sentinel resolves locally
// without any network access. Concurrent resolutions of the same credential
// share one backend call. Failures are never retried.
func (r *Resolver) Resolve(ctx context.Context, cred domainauth.Credential) (domainauth.Identity, error) {
	return r.resolve(ctx, cred, false)
}

// ResolveFresh is Resolve without joining a call already in flight, so the
// result reflects role changes made after any earlier call started.
func (r *Resolver) ResolveFresh(ctx context.Context, cred domainauth.Credential) (domainauth.Identity, error) {
	return r.resolve(ctx, cred, true)
}

func (r *Resolver) resolve(ctx context.Context, cred domainauth.Credential, fresh bool) (domainauth.Identity, error) {
	if cred == "" {
		return domainauth.Identity{}, domainauth.ErrNoSession
	}
	if cred.IsDemo() {
		return domainauth.DemoIdentity(), nil
	}

	key := string(cred)
	if fresh {
		r.group.Forget(key)
	}
	v, err, _ := r.group.Do(key, func() (any, error) {
		return r.backend.Me(ctx, cred)
	})
	if err != nil {
		return domainauth.Identity{}, fmt.Errorf("resolve identity: %w", err)
	}
	id, ok := v.(domainauth.Identity)
	if !ok {
		return domainauth.Identity{}, fmt.Errorf("resolve identity: unexpected result %T", v)
	}
	if !id.IsActive {
		return domainauth.Identity{}, fmt.Errorf("resolve identity %q: %w", id.Login, errors.Join(errInactiveIdentity, domainauth.ErrRejected))
	}
	return id, nil
}
