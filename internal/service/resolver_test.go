package service

import (
	"context"
	"testing"
	"time"

	domainauth "github.com/garagebay/staffgate/internal/domain/auth"
	"github.com/garagebay/staffgate/internal/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestNewResolver_PanicsWithoutBackend(t *testing.T) {
	assert.Panics(t, func() { NewResolver(nil) })
}

func TestResolver_Resolve(t *testing.T) {
	ctrl := gomock.NewController(t)
	backend := mocks.NewMockAuthBackend(ctrl)
	r := NewResolver(backend)
	ctx := context.Background()

	_, err := r.Resolve(ctx, "")
	require.ErrorIs(t, err, domainauth.ErrNoSession)

	// The sentinel resolves locally; any Me call would fail the controller.
	id, err := r.Resolve(ctx, domainauth.DemoCredential)
	require.NoError(t, err)
	assert.Equal(t, domainauth.DemoIdentity(), id)

	backend.EXPECT().Me(gomock.Any(), domainauth.Credential("tok")).Return(supportIdentity(), nil)
	id, err = r.Resolve(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, supportIdentity(), id)

	backend.EXPECT().Me(gomock.Any(), domainauth.Credential("gone")).Return(domainauth.Identity{}, domainauth.ErrRejected)
	_, err = r.Resolve(ctx, "gone")
	require.ErrorIs(t, err, domainauth.ErrRejected)
}

func TestResolver_Resolve_InactiveIsRejected(t *testing.T) {
	ctrl := gomock.NewController(t)
	backend := mocks.NewMockAuthBackend(ctrl)
	inactive := supportIdentity()
	inactive.IsActive = false
	backend.EXPECT().Me(gomock.Any(), domainauth.Credential("tok")).Return(inactive, nil)

	_, err := NewResolver(backend).Resolve(context.Background(), "tok")
	require.ErrorIs(t, err, domainauth.ErrRejected)
	assert.ErrorContains(t, err, "deactivated")
}

func TestResolver_Resolve_NoRetry(t *testing.T) {
	ctrl := gomock.NewController(t)
	backend := mocks.NewMockAuthBackend(ctrl)
	backend.EXPECT().Me(gomock.Any(), domainauth.Credential("tok")).Return(domainauth.Identity{}, domainauth.ErrUnreachable).Times(1)

	_, err := NewResolver(backend).Resolve(context.Background(), "tok")
	require.ErrorIs(t, err, domainauth.ErrUnreachable)
}

func TestResolver_ResolveFresh_DoesNotJoinEarlierCall(t *testing.T) {
	ctrl := gomock.NewController(t)
	backend := mocks.NewMockAuthBackend(ctrl)
	r := NewResolver(backend)

	promoted := supportIdentity()
	promoted.Role = domainauth.NewRole(3, "Поддержка", "support", false, []domainauth.Permission{
		domainauth.PermFeedbackView, domainauth.PermOrdersView,
	})

	started := make(chan struct{})
	release := make(chan struct{})
	gomock.InOrder(
		backend.EXPECT().Me(gomock.Any(), domainauth.Credential("tok")).DoAndReturn(
			func(context.Context, domainauth.Credential) (domainauth.Identity, error) {
				close(started)
				<-release
				return supportIdentity(), nil
			}),
		backend.EXPECT().Me(gomock.Any(), domainauth.Credential("tok")).Return(promoted, nil),
	)

	stale := make(chan domainauth.Identity, 1)
	go func() {
		id, err := r.Resolve(context.Background(), "tok")
		assert.NoError(t, err)
		stale <- id
	}()
	<-started

	id, err := r.ResolveFresh(context.Background(), "tok")
	require.NoError(t, err)
	assert.True(t, domainauth.Has(&id, domainauth.PermOrdersView))

	close(release)
	select {
	case old := <-stale:
		assert.False(t, domainauth.Has(&old, domainauth.PermOrdersView))
	case <-time.After(2 * time.Second):
		t.Fatal("earlier resolution never finished")
	}
}
