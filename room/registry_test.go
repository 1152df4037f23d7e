package room

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Get_ReturnsSameRoomForSameNoteID(t *testing.T) {
	reg := NewRegistry(nil)

	r1, err := reg.Get("note-1")
	require.NoError(t, err)
	r2, err := reg.Get("note-1")
	require.NoError(t, err)

	assert.Same(t, r1, r2)
	assert.Equal(t, 1, reg.Len())

	t.Cleanup(func() {
		r1.Shutdown()
	})
}

func TestRegistry_Get_SpawnsDistinctRoomsPerNoteID(t *testing.T) {
	reg := NewRegistry(nil)

	r1, err := reg.Get("note-1")
	require.NoError(t, err)
	r2, err := reg.Get("note-2")
	require.NoError(t, err)

	assert.NotSame(t, r1, r2)
	assert.Equal(t, 2, reg.Len())

	t.Cleanup(func() {
		r1.Shutdown()
		r2.Shutdown()
	})
}

func TestRegistry_EvictsRoomWhenLastConnectionLeaves(t *testing.T) {
	reg := NewRegistry(nil)

	r, err := reg.Get("note-1")
	require.NoError(t, err)

	conn := newFakeConn("only")
	r.Join(conn)
	waitFor(t, func() bool { return len(conn.counts) == 1 })

	r.Leave(conn.ID())

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && reg.Len() != 0 {
		time.Sleep(time.Millisecond)
	}
	assert.Equal(t, 0, reg.Len())

	// A subsequent Get for the same note ID spawns a brand new room.
	r2, err := reg.Get("note-1")
	require.NoError(t, err)
	assert.NotSame(t, r, r2)
	t.Cleanup(r2.Shutdown)
}
