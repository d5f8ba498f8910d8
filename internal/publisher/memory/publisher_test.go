package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublisherRecordsEvents(t *testing.T) {
	t.Parallel()

	pub := New()

	_, ok := pub.Last()
	require.False(t, ok)

	id1, err := pub.Publish(context.Background(), "menusync-events", map[string]string{"kind": "menu"})
	require.NoError(t, err)
	require.Equal(t, "local-1", id1)

	id2, err := pub.Publish(context.Background(), "menusync-events", map[string]string{"kind": "restaurants"})
	require.NoError(t, err)
	require.Equal(t, "local-2", id2)

	events := pub.Events()
	require.Len(t, events, 2)
	require.Equal(t, "menusync-events", events[0].Topic)

	last, ok := pub.Last()
	require.True(t, ok)
	require.Equal(t, map[string]string{"kind": "restaurants"}, last.Payload)

	// Events returns a copy, not the backing slice.
	events[0].Topic = "modified"
	require.Equal(t, "menusync-events", pub.Events()[0].Topic)
}
