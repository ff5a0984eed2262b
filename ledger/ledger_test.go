package ledger_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbolis/quick-forms/ledger"
	"github.com/mbolis/quick-forms/model"
	"github.com/mbolis/quick-forms/testutil"
)

func TestHistoryOrderedOldestToNewest(t *testing.T) {
	a := testutil.NewApp(t)
	ctx := context.Background()
	q := testutil.SeedQuestion(t, a, "Severity?", model.TypeSelect, "High")

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		tx, err := a.BeginTx(ctx, nil)
		require.NoError(t, err)

		err = ledger.Record(ctx, tx, model.LabelChange{
			QuestionID: q.ID,
			OptionKey:  "high",
			OldLabel:   fmt.Sprintf("v%d", i),
			NewLabel:   fmt.Sprintf("v%d", i+1),
			ChangedAt:  base.Add(time.Duration(i) * time.Minute),
			ChangedBy:  "alice",
		})
		require.NoError(t, err)
		require.NoError(t, tx.Commit())
	}

	history, err := ledger.History(ctx, a.DB, q.ID, "high", 0, 0)
	require.NoError(t, err)
	require.Len(t, history, 5)

	for i, change := range history {
		assert.Equal(t, fmt.Sprintf("v%d", i), change.OldLabel)
		assert.Equal(t, fmt.Sprintf("v%d", i+1), change.NewLabel)
	}
}

func TestHistoryPaging(t *testing.T) {
	a := testutil.NewApp(t)
	ctx := context.Background()
	q := testutil.SeedQuestion(t, a, "Severity?", model.TypeSelect, "High")

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		tx, err := a.BeginTx(ctx, nil)
		require.NoError(t, err)
		err = ledger.Record(ctx, tx, model.LabelChange{
			QuestionID: q.ID,
			OptionKey:  "high",
			OldLabel:   fmt.Sprintf("v%d", i),
			NewLabel:   fmt.Sprintf("v%d", i+1),
			ChangedAt:  base.Add(time.Duration(i) * time.Minute),
			ChangedBy:  "alice",
		})
		require.NoError(t, err)
		require.NoError(t, tx.Commit())
	}

	page, err := ledger.History(ctx, a.DB, q.ID, "high", 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "v2", page[0].OldLabel)
	assert.Equal(t, "v3", page[1].OldLabel)
}

func TestHistoryEmptyForUntouchedOption(t *testing.T) {
	a := testutil.NewApp(t)
	q := testutil.SeedQuestion(t, a, "Severity?", model.TypeSelect, "High")

	history, err := ledger.History(context.Background(), a.DB, q.ID, "high", 0, 0)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestHistoryIsScopedToOption(t *testing.T) {
	a := testutil.NewApp(t)
	ctx := context.Background()
	q := testutil.SeedQuestion(t, a, "Severity?", model.TypeSelect, "High", "Low")

	_, err := a.Registry.RenameOption(ctx, q.ID, "high", "Critical", "alice", "")
	require.NoError(t, err)

	history, err := ledger.History(ctx, a.DB, q.ID, "low", 0, 0)
	require.NoError(t, err)
	assert.Empty(t, history)
}
