package scheduler

import (
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/docmill/docmill/pkg/config"
	"github.com/docmill/docmill/pkg/convert"
	"github.com/docmill/docmill/pkg/events"
	"github.com/docmill/docmill/pkg/log"
	"github.com/docmill/docmill/pkg/metrics"
	"github.com/docmill/docmill/pkg/objectstore"
	"github.com/docmill/docmill/pkg/queue"
	"github.com/docmill/docmill/pkg/storage"
	"github.com/docmill/docmill/pkg/types"
	"github.com/docmill/docmill/pkg/workspace"
)

// recoveryMarker is written into error_message when a restart resets
// orphaned processing tasks back to pending.
const recoveryMarker = "recovered after restart"

// Options carries the collaborators a Scheduler needs. All fields are
// required except Broker, which defaults to an unstarted broker.
type Options struct {
	Config       *config.Config
	Store        storage.Store
	Fabric       *queue.Fabric
	Workspaces   *workspace.Manager
	Downloads    objectstore.Gateway
	Uploads      objectstore.Gateway
	UploadBucket string
	Dispatcher   *convert.Dispatcher
	Broker       *events.Broker
}

// Scheduler drives the conversion pipeline. It claims pending tasks from
// the store, routes them through the priority lanes into the conversion
// workers, and runs the post-result stages: status bookkeeping, workspace
// cleanup, callback delivery, and periodic garbage collection.
//
// The scheduler owns no task state of its own; every decision is derived
// from the store, so a crash at any point is repaired by Start's recovery
// pass on the next boot.
type Scheduler struct {
	cfg          *config.Config
	store        storage.Store
	fabric       *queue.Fabric
	spaces       *workspace.Manager
	downloads    objectstore.Gateway
	uploads      objectstore.Gateway
	uploadBucket string
	dispatcher   *convert.Dispatcher
	broker       *events.Broker

	running atomic.Bool
	active  atomic.Int64
	total   atomic.Int64

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New assembles a scheduler. Start must be called before it does anything.
func New(opts Options) *Scheduler {
	if opts.Broker == nil {
		opts.Broker = events.NewBroker()
	}
	return &Scheduler{
		cfg:          opts.Config,
		store:        opts.Store,
		fabric:       opts.Fabric,
		spaces:       opts.Workspaces,
		downloads:    opts.Downloads,
		uploads:      opts.Uploads,
		uploadBucket: opts.UploadBucket,
		dispatcher:   opts.Dispatcher,
		broker:       opts.Broker,
		stopCh:       make(chan struct{}),
	}
}

// Start recovers tasks orphaned by a previous crash, then launches the
// worker goroutines: one fetcher, one priority merger, MaxConcurrentTasks
// conversion workers, and the updater, cleaner, callback, and gc loops.
//
// Recovery runs before any worker spawns so a task cannot be claimed
// twice across a restart.
func (s *Scheduler) Start() error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("scheduler already started")
	}

	logger := log.WithComponent("scheduler")

	recovered, err := s.store.RecoverProcessing(recoveryMarker)
	if err != nil {
		s.running.Store(false)
		return fmt.Errorf("failed to recover in-flight tasks: %w", err)
	}
	if recovered > 0 {
		metrics.TasksRecovered.Add(float64(recovered))
		s.broker.Publish(&events.Event{
			Type:     events.EventTaskRecovered,
			Message:  fmt.Sprintf("%d tasks returned to pending after restart", recovered),
			Metadata: map[string]string{"count": strconv.Itoa(recovered)},
		})
		logger.Info().Int("recovered", recovered).Msg("Recovered in-flight tasks from previous run")
	}

	s.spawn(s.runFetcher)
	s.spawn(s.runMerger)
	for i := 0; i < s.cfg.MaxConcurrentTasks; i++ {
		n := i
		s.spawn(func() { s.runConverter(n) })
	}
	s.spawn(s.runUpdater)
	s.spawn(s.runCleaner)
	s.spawn(s.runCallback)
	s.spawn(s.runGC)

	metrics.RegisterComponent("scheduler", true, "")
	logger.Info().
		Int("conversion_workers", s.cfg.MaxConcurrentTasks).
		Int("queue_capacity", s.fabric.Capacity()).
		Msg("Scheduler started")
	return nil
}

// Stop signals every worker loop and waits for them to drain. In-flight
// conversions are abandoned; their tasks stay in processing and are
// repaired by the next Start's recovery pass.
func (s *Scheduler) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	close(s.stopCh)
	s.wg.Wait()
	metrics.UpdateComponent("scheduler", false, "stopped")
	logger := log.WithComponent("scheduler")
	logger.Info().Msg("Scheduler stopped")
}

// IsRunning reports whether Start has completed and Stop has not.
func (s *Scheduler) IsRunning() bool {
	return s.running.Load()
}

// Stats snapshots the live pipeline state for the health and statistics
// endpoints.
func (s *Scheduler) Stats() *types.SchedulerStats {
	stats := &types.SchedulerStats{
		IsRunning:      s.running.Load(),
		ActiveTasks:    int(s.active.Load()),
		TotalProcessed: s.total.Load(),
		QueueDepths:    s.fabric.Depths(),
	}
	if ws, err := s.spaces.Stats(); err == nil {
		stats.WorkspaceStats = *ws
	}
	return stats
}

func (s *Scheduler) spawn(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}
