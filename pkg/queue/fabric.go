package queue

import (
	"github.com/docmill/docmill/pkg/types"
)

// DefaultCapacity bounds each lane when no capacity is configured.
const DefaultCapacity = 100

// Lane names one bounded queue inside the Fabric.
type Lane string

const (
	// LaneIntake receives freshly created task ids from the API.
	LaneIntake Lane = "intake"
	// LaneHigh, LaneNormal and LaneLow are the priority lanes between
	// the fetcher and the merger.
	LaneHigh   Lane = "high"
	LaneNormal Lane = "normal"
	LaneLow    Lane = "low"
	// LaneDispatch feeds the conversion worker pool.
	LaneDispatch Lane = "dispatch"
	// LaneUpdate, LaneCleanup and LaneCallback chain the post-result
	// stages.
	LaneUpdate   Lane = "update"
	LaneCleanup  Lane = "cleanup"
	LaneCallback Lane = "callback"
)

// AllLanes lists every lane in pipeline order.
var AllLanes = []Lane{
	LaneIntake,
	LaneHigh, LaneNormal, LaneLow,
	LaneDispatch,
	LaneUpdate, LaneCleanup, LaneCallback,
}

// Fabric owns the bounded in-memory queues connecting the pipeline
// stages. Lanes carry task ids only; task bodies live in the store, so
// a dropped id is recovered by the next fetcher poll. Nothing here
// survives a restart.
type Fabric struct {
	capacity int
	lanes    map[Lane]chan int64
}

// NewFabric builds all lanes with the given per-lane capacity.
func NewFabric(capacity int) *Fabric {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	lanes := make(map[Lane]chan int64, len(AllLanes))
	for _, lane := range AllLanes {
		lanes[lane] = make(chan int64, capacity)
	}
	return &Fabric{capacity: capacity, lanes: lanes}
}

// Push blocks until the id is queued or done closes; it reports whether
// the id was queued. A nil done never unblocks the wait.
func (f *Fabric) Push(lane Lane, id int64, done <-chan struct{}) bool {
	select {
	case f.lanes[lane] <- id:
		return true
	case <-done:
		return false
	}
}

// TryPush queues the id without blocking; false means the lane is full.
func (f *Fabric) TryPush(lane Lane, id int64) bool {
	select {
	case f.lanes[lane] <- id:
		return true
	default:
		return false
	}
}

// Take exposes the lane's receive side for select loops.
func (f *Fabric) Take(lane Lane) <-chan int64 {
	return f.lanes[lane]
}

// TryTake receives without blocking; false means the lane is empty.
func (f *Fabric) TryTake(lane Lane) (int64, bool) {
	select {
	case id := <-f.lanes[lane]:
		return id, true
	default:
		return 0, false
	}
}

// Depth reports how many ids are queued in one lane.
func (f *Fabric) Depth(lane Lane) int {
	return len(f.lanes[lane])
}

// Depths snapshots every lane depth, keyed by lane name.
func (f *Fabric) Depths() map[string]int {
	depths := make(map[string]int, len(f.lanes))
	for lane, ch := range f.lanes {
		depths[string(lane)] = len(ch)
	}
	return depths
}

// Capacity returns the per-lane bound.
func (f *Fabric) Capacity() int {
	return f.capacity
}

// PriorityLane maps a task priority to its fetcher routing lane.
func PriorityLane(p types.TaskPriority) Lane {
	switch p {
	case types.TaskPriorityHigh:
		return LaneHigh
	case types.TaskPriorityLow:
		return LaneLow
	default:
		return LaneNormal
	}
}
