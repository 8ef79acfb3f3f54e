package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStore_Query(t *testing.T) {
	t.Parallel()

	seed := func(t *testing.T) *Store {
		t.Helper()

		store := testStore(t)
		require.NoError(t, store.ReplaceProcessedTweets(context.Background(), testDate(t, "2024-01-01"), []ProcessedTweet{
			testProcessedTweet("t1", "good", time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC), 1, 0),
			testProcessedTweet("t2", "bad", time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC), 1, 0),
		}))
		return store
	}

	t.Run("returns columns, types and rows", func(t *testing.T) {
		t.Parallel()

		store := seed(t)

		got, err := store.Query(context.Background(),
			fmt.Sprintf("SELECT id, polarity FROM %s.processed_tweets ORDER BY id", store.qualified()), 0)
		require.NoError(t, err)
		require.Equal(t, []string{"id", "polarity"}, got.Columns)
		require.Equal(t, []string{"VARCHAR", "DOUBLE"}, got.Types)
		require.Len(t, got.Rows, 2)
		require.Equal(t, "t1", got.Rows[0][0])
		require.Equal(t, "t2", got.Rows[1][0])
		require.False(t, got.Truncated)
	})

	t.Run("caps rows and reports truncation", func(t *testing.T) {
		t.Parallel()

		store := seed(t)

		got, err := store.Query(context.Background(),
			fmt.Sprintf("SELECT id FROM %s.processed_tweets ORDER BY id", store.qualified()), 1)
		require.NoError(t, err)
		require.Len(t, got.Rows, 1)
		require.True(t, got.Truncated)
	})

	t.Run("propagates sql errors", func(t *testing.T) {
		t.Parallel()

		store := testStore(t)

		_, err := store.Query(context.Background(), "SELECT * FROM missing_table", 0)
		require.Error(t, err)
	})
}
