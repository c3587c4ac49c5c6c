package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docmill/docmill/pkg/types"
)

func TestFabricPushTakeOrder(t *testing.T) {
	f := NewFabric(4)

	require.True(t, f.TryPush(LaneIntake, 1))
	require.True(t, f.TryPush(LaneIntake, 2))
	require.True(t, f.TryPush(LaneIntake, 3))

	assert.Equal(t, 3, f.Depth(LaneIntake))

	id, ok := f.TryTake(LaneIntake)
	require.True(t, ok)
	assert.Equal(t, int64(1), id)

	id = <-f.Take(LaneIntake)
	assert.Equal(t, int64(2), id)

	id = <-f.Take(LaneIntake)
	assert.Equal(t, int64(3), id)

	assert.Equal(t, 0, f.Depth(LaneIntake))
}

func TestFabricTryPushFull(t *testing.T) {
	f := NewFabric(2)

	require.True(t, f.TryPush(LaneDispatch, 10))
	require.True(t, f.TryPush(LaneDispatch, 11))
	assert.False(t, f.TryPush(LaneDispatch, 12))

	id, ok := f.TryTake(LaneDispatch)
	require.True(t, ok)
	assert.Equal(t, int64(10), id)

	assert.True(t, f.TryPush(LaneDispatch, 12))
}

func TestFabricTryTakeEmpty(t *testing.T) {
	f := NewFabric(2)

	id, ok := f.TryTake(LaneCallback)
	assert.False(t, ok)
	assert.Zero(t, id)
}

func TestFabricPushUnblocksOnDone(t *testing.T) {
	f := NewFabric(1)
	require.True(t, f.TryPush(LaneUpdate, 1))

	done := make(chan struct{})
	pushed := make(chan bool, 1)
	go func() {
		pushed <- f.Push(LaneUpdate, 2, done)
	}()

	close(done)
	select {
	case ok := <-pushed:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("push did not unblock after done closed")
	}
}

func TestFabricPushBlocksUntilSpace(t *testing.T) {
	f := NewFabric(1)
	require.True(t, f.TryPush(LaneCleanup, 1))

	done := make(chan struct{})
	defer close(done)

	pushed := make(chan bool, 1)
	go func() {
		pushed <- f.Push(LaneCleanup, 2, done)
	}()

	// Drain the lane so the blocked push can land.
	id := <-f.Take(LaneCleanup)
	assert.Equal(t, int64(1), id)

	select {
	case ok := <-pushed:
		assert.True(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("push did not complete after space opened")
	}

	id = <-f.Take(LaneCleanup)
	assert.Equal(t, int64(2), id)
}

func TestFabricDepths(t *testing.T) {
	f := NewFabric(8)

	require.True(t, f.TryPush(LaneHigh, 1))
	require.True(t, f.TryPush(LaneHigh, 2))
	require.True(t, f.TryPush(LaneNormal, 3))

	depths := f.Depths()
	assert.Len(t, depths, len(AllLanes))
	assert.Equal(t, 2, depths["high"])
	assert.Equal(t, 1, depths["normal"])
	assert.Equal(t, 0, depths["low"])
	assert.Equal(t, 0, depths["intake"])
}

func TestFabricCapacityFloor(t *testing.T) {
	f := NewFabric(0)
	assert.Equal(t, DefaultCapacity, f.Capacity())

	f = NewFabric(-5)
	assert.Equal(t, DefaultCapacity, f.Capacity())

	f = NewFabric(7)
	assert.Equal(t, 7, f.Capacity())
}

func TestPriorityLane(t *testing.T) {
	assert.Equal(t, LaneHigh, PriorityLane(types.TaskPriorityHigh))
	assert.Equal(t, LaneNormal, PriorityLane(types.TaskPriorityNormal))
	assert.Equal(t, LaneLow, PriorityLane(types.TaskPriorityLow))
	assert.Equal(t, LaneNormal, PriorityLane(types.TaskPriority("bogus")))
}
