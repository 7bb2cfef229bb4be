// SPDX-License-Identifier: MIT

package remote

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Muscled-clients-repo/unpuzzle-mvp-sub005/internal/store"
)

func TestMemoryBackend_FailureInjectionIsOneShot(t *testing.T) {
	b := NewMemoryBackend()
	b.Seed(store.Entity{ID: "v1", Kind: store.KindVideo, Parent: "ch1", Title: "Old"})
	ctx := context.Background()

	b.FailNext = "nope"
	res, err := b.Mutate(ctx, Mutation{Kind: MutationRename, Entity: store.Entity{ID: "v1", Title: "New"}})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "nope", res.Err)

	// The injected failure is consumed; the retry succeeds.
	res, err = b.Mutate(ctx, Mutation{Kind: MutationRename, Entity: store.Entity{ID: "v1", Title: "New"}})
	require.NoError(t, err)
	assert.True(t, res.Success)

	injected := errors.New("boom")
	b.ErrNext = injected
	_, err = b.Mutate(ctx, Mutation{Kind: MutationDelete, Entity: store.Entity{ID: "v1"}})
	assert.ErrorIs(t, err, injected)
}

func TestMemoryBackend_LatencyRespectsContext(t *testing.T) {
	b := NewMemoryBackend()
	b.Latency = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := b.Mutate(ctx, Mutation{Kind: MutationCreate, Entity: store.Entity{Kind: store.KindVideo}})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMemoryBackend_FetchChildrenSorted(t *testing.T) {
	b := NewMemoryBackend()
	b.Seed(
		store.Entity{ID: "b", Parent: "p", Order: 1},
		store.Entity{ID: "a", Parent: "p", Order: 0},
		store.Entity{ID: "c", Parent: "p", Order: 1},
		store.Entity{ID: "other", Parent: "q", Order: 0},
	)

	got, err := b.FetchChildren(context.Background(), "p")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{got[0].ID, got[1].ID, got[2].ID})
}
