// SPDX-License-Identifier: MIT

package remote

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Muscled-clients-repo/unpuzzle-mvp-sub005/internal/store"
)

func newSQLiteBackend(t *testing.T) *SQLiteBackend {
	t.Helper()
	b, err := NewSQLiteBackend(filepath.Join(t.TempDir(), "entities.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestSQLiteBackend_CreateFetchRoundTrip(t *testing.T) {
	b := newSQLiteBackend(t)
	ctx := context.Background()

	res, err := b.Mutate(ctx, Mutation{Kind: MutationCreate, Entity: store.Entity{
		ID: "tmp-1", Kind: store.KindVideo, Parent: "ch1", Title: "Intro", Order: 0, Status: store.StatusPending,
	}})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.NotEqual(t, "tmp-1", res.Entity.ID, "temporary ids get a canonical replacement")

	got, err := b.FetchEntity(ctx, res.Entity.ID)
	require.NoError(t, err)
	assert.Equal(t, "Intro", got.Title)
	assert.Equal(t, store.StatusPending, got.Status)
}

func TestSQLiteBackend_RenameUnknownIDRefuses(t *testing.T) {
	b := newSQLiteBackend(t)

	res, err := b.Mutate(context.Background(), Mutation{Kind: MutationRename, Entity: store.Entity{ID: "ghost", Title: "x"}})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "not found", res.Err)
}

func TestSQLiteBackend_ReorderIsTransactional(t *testing.T) {
	b := newSQLiteBackend(t)
	ctx := context.Background()

	ids := make([]string, 3)
	for i, title := range []string{"A", "B", "C"} {
		res, err := b.Mutate(ctx, Mutation{Kind: MutationCreate, Entity: store.Entity{
			Kind: store.KindVideo, Parent: "ch1", Title: title, Order: i, Status: store.StatusReady,
		}})
		require.NoError(t, err)
		ids[i] = res.Entity.ID
	}

	// One unknown sibling aborts the whole group write.
	res, err := b.Mutate(ctx, Mutation{
		Kind:   MutationReorder,
		Entity: store.Entity{ID: ids[0], Parent: "ch1", Order: 2},
		Siblings: []store.Entity{
			{ID: ids[1], Order: 0},
			{ID: "ghost", Order: 1},
			{ID: ids[0], Order: 2},
		},
	})
	require.NoError(t, err)
	require.False(t, res.Success)

	got, err := b.FetchChildren(ctx, "ch1")
	require.NoError(t, err)
	for i := range got {
		assert.Equal(t, i, got[i].Order, "failed reorder must leave orders untouched")
	}

	// A valid group write lands atomically.
	res, err = b.Mutate(ctx, Mutation{
		Kind:   MutationReorder,
		Entity: store.Entity{ID: ids[2], Parent: "ch1", Order: 0},
		Siblings: []store.Entity{
			{ID: ids[2], Order: 0},
			{ID: ids[0], Order: 1},
			{ID: ids[1], Order: 2},
		},
	})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, 0, res.Entity.Order)

	got, err = b.FetchChildren(ctx, "ch1")
	require.NoError(t, err)
	assert.Equal(t, []string{ids[2], ids[0], ids[1]}, []string{got[0].ID, got[1].ID, got[2].ID})
}

func TestSQLiteBackend_Delete(t *testing.T) {
	b := newSQLiteBackend(t)
	ctx := context.Background()

	res, err := b.Mutate(ctx, Mutation{Kind: MutationCreate, Entity: store.Entity{
		Kind: store.KindChapter, Parent: "c1", Title: "Gone", Status: store.StatusReady,
	}})
	require.NoError(t, err)
	id := res.Entity.ID

	res, err = b.Mutate(ctx, Mutation{Kind: MutationDelete, Entity: store.Entity{ID: id}})
	require.NoError(t, err)
	require.True(t, res.Success)

	_, err = b.FetchEntity(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)

	res, err = b.Mutate(ctx, Mutation{Kind: MutationDelete, Entity: store.Entity{ID: id}})
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestSQLiteBackend_FetchChildrenOrder(t *testing.T) {
	b := newSQLiteBackend(t)
	ctx := context.Background()

	for i, title := range []string{"C", "A", "B"} {
		_, err := b.Mutate(ctx, Mutation{Kind: MutationCreate, Entity: store.Entity{
			Kind: store.KindVideo, Parent: "ch1", Title: title, Order: 2 - i, Status: store.StatusReady,
		}})
		require.NoError(t, err)
	}

	got, err := b.FetchChildren(ctx, "ch1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"B", "A", "C"}, []string{got[0].Title, got[1].Title, got[2].Title})
}
