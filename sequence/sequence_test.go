package sequence_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbolis/quick-forms/apperr"
	"github.com/mbolis/quick-forms/sequence"
	"github.com/mbolis/quick-forms/testutil"
)

func TestNextIDMonotonic(t *testing.T) {
	db := testutil.OpenDB(t)
	alloc := sequence.NewAllocator(db)
	ctx := context.Background()

	prev := 0
	for i := 0; i < 10; i++ {
		id, err := alloc.NextID(ctx, sequence.NamespaceQuestion)
		require.NoError(t, err)
		assert.Greater(t, id, prev)
		prev = id
	}
}

func TestNextIDNamespacesAreIndependent(t *testing.T) {
	db := testutil.OpenDB(t)
	alloc := sequence.NewAllocator(db)
	ctx := context.Background()

	qid, err := alloc.NextID(ctx, sequence.NamespaceQuestion)
	require.NoError(t, err)
	fid, err := alloc.NextID(ctx, sequence.NamespaceForm)
	require.NoError(t, err)

	assert.Equal(t, 1, qid)
	assert.Equal(t, 1, fid)
}

func TestNextIDMissingNamespaceIsFatal(t *testing.T) {
	db := testutil.OpenDB(t)
	alloc := sequence.NewAllocator(db)

	_, err := alloc.NextID(context.Background(), "no_such_namespace")
	require.Error(t, err)
	assert.True(t, apperr.IsFatal(err))
}

func TestNextIDConcurrent(t *testing.T) {
	db := testutil.OpenDB(t)
	alloc := sequence.NewAllocator(db)
	ctx := context.Background()

	const n = 1000
	ids := make([]int, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i], errs[i] = alloc.NextID(ctx, sequence.NamespaceSubmission)
		}(i)
	}
	wg.Wait()

	seen := map[int]bool{}
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.False(t, seen[ids[i]], "duplicate id %d", ids[i])
		seen[ids[i]] = true
	}
	assert.Len(t, seen, n)
}

func TestNextIDConsumedWhenCallerAborts(t *testing.T) {
	a := testutil.NewApp(t)
	ctx := context.Background()

	// allocate an id for an operation that then rolls back
	consumed, err := a.Sequence.NextID(ctx, sequence.NamespaceForm)
	require.NoError(t, err)

	tx, err := a.BeginTx(ctx, nil)
	require.NoError(t, err)
	_, err = tx.ExecContext(ctx, `INSERT INTO form (id, version, title) VALUES (?, 1, 'doomed')`, consumed)
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	// the consumed value leaves a gap, it is never handed out again
	next, err := a.Sequence.NextID(ctx, sequence.NamespaceForm)
	require.NoError(t, err)
	assert.Greater(t, next, consumed)
}

func TestPublicID(t *testing.T) {
	assert.Equal(t, "QST-42", sequence.PublicID("qst", 42))
	assert.Equal(t, "SUB-1", sequence.PublicID("SUB", 1))
}
