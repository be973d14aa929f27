package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "golden/pkg/platform/audit"
)

func TestInMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	require.NoError(t, s.Append(ctx, audit.Event{Subject: "a", Action: string(audit.EventRequestCreated)}))
	require.NoError(t, s.Append(ctx, audit.Event{Subject: "b", Action: string(audit.EventRequestIngested)}))
	require.NoError(t, s.Append(ctx, audit.Event{Subject: "a", Action: string(audit.EventRequestSubmitted)}))

	t.Run("lists by subject in order", func(t *testing.T) {
		events, err := s.ListBySubject(ctx, "a")
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, string(audit.EventRequestCreated), events[0].Action)
		assert.Equal(t, string(audit.EventRequestSubmitted), events[1].Action)
	})

	t.Run("recent is bounded", func(t *testing.T) {
		events, err := s.ListRecent(ctx, 2)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, "b", events[0].Subject)

		all, err := s.ListRecent(ctx, 10)
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})

	t.Run("clear empties the store", func(t *testing.T) {
		s.Clear()
		events, err := s.ListBySubject(ctx, "a")
		require.NoError(t, err)
		assert.Empty(t, events)
	})
}
