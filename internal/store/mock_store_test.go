// ABOUTME: Tests that MockStore honors the Store contract used by callers
// ABOUTME: Conditional puts, failure injection, and copy-on-return semantics

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockStore_ConditionalPut(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()

	rec := liveConnection("c1", RoleClient, "svc-A")
	require.NoError(t, m.PutConnection(ctx, rec, true))
	assert.ErrorIs(t, m.PutConnection(ctx, rec, true), ErrConditionFailed)
	assert.NoError(t, m.PutConnection(ctx, rec, false))
}

func TestMockStore_FailureInjection(t *testing.T) {
	m := NewMockStore()
	m.FailWith = assert.AnError
	ctx := context.Background()

	assert.ErrorIs(t, m.PutConnection(ctx, liveConnection("c1", RoleClient, "svc-A"), true), assert.AnError)
	_, err := m.QueryConnectionsByName(ctx, RoleClient, "svc-A")
	assert.ErrorIs(t, err, assert.AnError)
}

func TestMockStore_ReturnsCopies(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()

	require.NoError(t, m.PutConnection(ctx, liveConnection("c1", RoleClient, "svc-A"), true))

	got, err := m.GetConnection(ctx, RoleClient, "c1")
	require.NoError(t, err)
	got.Name = "mutated"

	again, err := m.GetConnection(ctx, RoleClient, "c1")
	require.NoError(t, err)
	assert.Equal(t, "svc-A", again.Name)
}

func TestMockStore_QueryPairingsOldestFirst(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()

	now := time.Now()
	for i, gatekeeperID := range []string{"g1", "g2"} {
		require.NoError(t, m.PutPairing(ctx, &PairingRecord{
			ClientConnectionID:     "c1",
			GatekeeperConnectionID: gatekeeperID,
			Name:                   "svc-A",
			PairedAt:               now.Add(time.Duration(i) * time.Minute).Unix(),
			ExpireAt:               now.Add(time.Hour).Unix(),
		}))
	}

	recs, err := m.QueryPairingsByClient(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "g1", recs[0].GatekeeperConnectionID)
}
