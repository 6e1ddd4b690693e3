package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tablekeep/tablekeep/internal/hub"
	"github.com/tablekeep/tablekeep/internal/lockmgr"
	"github.com/tablekeep/tablekeep/internal/model"
)

func TestReleasePageScopedToTopic(t *testing.T) {
	coordinator := lockmgr.New(time.Minute)
	eventHub := hub.NewHub(8)
	locks := NewLockService(nil, coordinator, eventHub)

	_, err := coordinator.Acquire("r1", "p1", "d1", "alice")
	require.NoError(t, err)
	_, err = coordinator.Acquire("r2", "p1", "d1", "alice")
	require.NoError(t, err)
	_, err = coordinator.Acquire("r9", "p2", "d1", "alice")
	require.NoError(t, err)

	subP1 := eventHub.Subscribe(hub.Topic{DocumentID: "d1", PageID: "p1"})
	defer subP1.Close()
	subP2 := eventHub.Subscribe(hub.Topic{DocumentID: "d1", PageID: "p2"})
	defer subP2.Close()

	count := locks.ReleasePage(context.Background(), "alice", "d1", "p1")
	require.Equal(t, 2, count)

	for _, want := range []string{"r1", "r2"} {
		ev := <-subP1.Events()
		released, ok := ev.(model.LockReleased)
		require.True(t, ok)
		require.Equal(t, want, released.RowID)
		require.Equal(t, "alice", released.Holder)
	}
	select {
	case ev := <-subP2.Events():
		t.Fatalf("unexpected event on p2 topic: %#v", ev)
	default:
	}

	require.True(t, coordinator.HeldBy("r9", "alice"))
}
