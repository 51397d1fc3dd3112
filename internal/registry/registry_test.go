// ABOUTME: Tests for the connection registry
// ABOUTME: Covers duplicate rejection, expiry filtering, and idempotent removal

package registry

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/relay-broker/internal/store"
)

func newTestRegistry(t *testing.T) (*Registry, *store.MockStore) {
	t.Helper()
	st := store.NewMockStore()
	return New(st, slog.Default()), st
}

func TestRegister_AndLookupByName(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, r.Register(ctx, store.RoleClient, "c1", "svc-A", time.Hour))

	recs, err := r.LookupByName(ctx, store.RoleClient, "svc-A")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "c1", recs[0].ConnectionID)
	assert.Equal(t, store.RoleClient, recs[0].Role)
}

func TestRegister_DuplicateRejected(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, r.Register(ctx, store.RoleClient, "c1", "svc-A", time.Hour))

	err := r.Register(ctx, store.RoleClient, "c1", "svc-A", time.Hour)
	assert.ErrorIs(t, err, ErrDuplicateConnection)
}

func TestRegister_SameIDDifferentRolesAllowed(t *testing.T) {
	// Connection ids are unique per live connection, but the two roles live
	// in separate tables, so identical ids across roles must not collide.
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, r.Register(ctx, store.RoleClient, "x1", "svc-A", time.Hour))
	assert.NoError(t, r.Register(ctx, store.RoleGatekeeper, "x1", "svc-A", time.Hour))
}

func TestLookupByName_FiltersExpired(t *testing.T) {
	r, st := newTestRegistry(t)
	ctx := context.Background()

	// Expired record still physically present (sweep has not run)
	require.NoError(t, st.PutConnection(ctx, &store.ConnectionRecord{
		ConnectionID: "c-dead",
		Role:         store.RoleClient,
		Name:         "svc-A",
		ConnectedAt:  time.Now().Add(-3 * time.Hour).Unix(),
		ExpireAt:     time.Now().Add(-time.Hour).Unix(),
	}, false))

	require.NoError(t, r.Register(ctx, store.RoleClient, "c-live", "svc-A", time.Hour))

	recs, err := r.LookupByName(ctx, store.RoleClient, "svc-A")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "c-live", recs[0].ConnectionID)
}

func TestLookupByName_NewestFirst(t *testing.T) {
	r, st := newTestRegistry(t)
	ctx := context.Background()

	now := time.Now()
	for i, id := range []string{"c-1", "c-2", "c-3"} {
		require.NoError(t, st.PutConnection(ctx, &store.ConnectionRecord{
			ConnectionID: id,
			Role:         store.RoleClient,
			Name:         "svc-A",
			ConnectedAt:  now.Add(time.Duration(i) * time.Minute).Unix(),
			ExpireAt:     now.Add(time.Hour).Unix(),
		}, false))
	}

	recs, err := r.LookupByName(ctx, store.RoleClient, "svc-A")
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "c-3", recs[0].ConnectionID)
}

func TestGet_ExpiredIsNotFound(t *testing.T) {
	r, st := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, st.PutConnection(ctx, &store.ConnectionRecord{
		ConnectionID: "c1",
		Role:         store.RoleClient,
		Name:         "svc-A",
		ConnectedAt:  time.Now().Add(-2 * time.Hour).Unix(),
		ExpireAt:     time.Now().Add(-time.Hour).Unix(),
	}, false))

	_, err := r.Get(ctx, store.RoleClient, "c1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRemove_IsIdempotent(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, r.Register(ctx, store.RoleClient, "c1", "svc-A", time.Hour))
	require.NoError(t, r.Remove(ctx, store.RoleClient, "c1"))

	// Removing again is not an error
	assert.NoError(t, r.Remove(ctx, store.RoleClient, "c1"))

	recs, err := r.LookupByName(ctx, store.RoleClient, "svc-A")
	require.NoError(t, err)
	assert.Empty(t, recs)
}
