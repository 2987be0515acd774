// Package manager implements the task table (C9): an ordered collection
// of task entries, parallelism-bounded so that only the configured
// number of tasks run concurrently, with the rest parked in line.
//
// SPEC_FULL.md's own Design Notes resolve an Open Question the original
// Rust source left ambiguous across two divergent copies of
// downloader/mod.rs (one DashMap-backed with an unimplemented run(), one
// implicitly ordered): this package adopts the ordered variant, because
// only an ordered table lets stop() demote a task to the back of the
// line instead of just removing it from an unordered set. Grounded in
// the algorithm the *rejected* Rust variant's absence of ordering makes
// necessary, and in the teacher's own two competing, unordered managers
// (internal/downloader.Manager and internal/download.WorkerPool) as a
// parallel illustration of the same design tension, resolved here the
// way spec.md's own Open Question concludes it should be.
package manager

import (
	"context"
	"fmt"
	"sync"
	"weak"

	"github.com/fastdown/fastdown/internal/config"
	"github.com/fastdown/fastdown/internal/engine/events"
	"github.com/fastdown/fastdown/internal/task"
)

// entry pairs a task with its run bookkeeping.
type entry struct {
	t        *task.Task
	running  bool
	runCtx   context.Context
	runCancel context.CancelFunc
}

// Manager owns an ordered task table. Order encodes priority: index 0 is
// the head (first to run), and the tail is the first candidate demoted
// when capacity is reduced or a new task is added past the parallelism
// ceiling.
type Manager struct {
	mu          sync.Mutex
	order       []task.Gid
	entries     map[task.Gid]*entry
	parallelism int
	global      config.Config
	baseCtx     context.Context
}

// New creates a Manager bounded to run up to parallelism tasks
// concurrently. baseCtx is the parent context every task's run context
// derives from; cancelling it stops every running task.
func New(baseCtx context.Context, parallelism int, global config.Config) *Manager {
	if parallelism < 1 {
		parallelism = 1
	}
	return &Manager{
		entries:     make(map[task.Gid]*entry),
		parallelism: parallelism,
		global:      global,
		baseCtx:     baseCtx,
	}
}

// Add registers a new task for rawurl with a per-task config override,
// appends it to the tail of the table, and rebalances — starting it
// immediately if there is spare capacity. Gid collisions (astronomically
// unlikely with a 128-bit random id) are retried, mirroring the retry
// loop in the original Rust source's Downloader::add.
func (m *Manager) Add(rawurl string, cfg config.Config) *task.Task {
	m.mu.Lock()
	var gid task.Gid
	for {
		gid = task.NewGid()
		if _, exists := m.entries[gid]; !exists {
			break
		}
	}
	t := task.New(gid, rawurl, cfg, &m.global)
	m.entries[gid] = &entry{t: t}
	m.order = append(m.order, gid)
	m.mu.Unlock()

	m.watch(t)
	m.rebalance()
	return t
}

// Remove aborts (if running) and removes a task from the table entirely.
func (m *Manager) Remove(gid task.Gid) error {
	m.mu.Lock()
	e, ok := m.entries[gid]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("no such task: %s", gid)
	}
	delete(m.entries, gid)
	m.order = removeGid(m.order, gid)
	m.mu.Unlock()

	e.t.Abort()
	e.t.Events().Close()
	return nil
}

// Stop aborts a running task and demotes it to the tail of the table,
// then rebalances so the next-highest-priority waiting task starts.
// Demoting to the tail (rather than leaving it in place) is what
// requires the table to be ordered in the first place.
func (m *Manager) Stop(gid task.Gid) error {
	m.mu.Lock()
	e, ok := m.entries[gid]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("no such task: %s", gid)
	}
	m.order = removeGid(m.order, gid)
	m.order = append(m.order, gid)
	m.mu.Unlock()

	e.t.Abort()
	m.rebalance()
	return nil
}

// Resume promotes a stopped or waiting task to the head of the table and
// rebalances, starting it immediately if capacity allows.
func (m *Manager) Resume(gid task.Gid) error {
	m.mu.Lock()
	if _, ok := m.entries[gid]; !ok {
		m.mu.Unlock()
		return fmt.Errorf("no such task: %s", gid)
	}
	m.order = removeGid(m.order, gid)
	m.order = append([]task.Gid{gid}, m.order...)
	m.mu.Unlock()

	m.rebalance()
	return nil
}

// SetParallelism changes the concurrency ceiling and rebalances: raising
// it starts waiting tasks from the head of the table; lowering it stops
// running tasks from the tail first, since the tail is always the
// lowest-priority position (the Open Question resolved in
// SPEC_FULL.md's Design Notes: the over-capacity deficit is computed
// with signed arithmetic, R-P, so a reduction never overshoots).
func (m *Manager) SetParallelism(p int) {
	if p < 1 {
		p = 1
	}
	m.mu.Lock()
	m.parallelism = p
	m.mu.Unlock()
	m.rebalance()
}

// RunningCount returns how many tasks are currently running.
func (m *Manager) RunningCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.entries {
		if e.running {
			n++
		}
	}
	return n
}

// Snapshot is a point-in-time view of one task table row.
type Snapshot struct {
	Gid     task.Gid
	URL     string
	State   task.State
	Running bool
}

// Get returns the task entry for gid, or nil if no such task exists.
func (m *Manager) Get(gid task.Gid) *task.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[gid]
	if !ok {
		return nil
	}
	return e.t
}

// Table returns an ordered snapshot of every task, head first.
func (m *Manager) Table() []Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Snapshot, 0, len(m.order))
	for _, gid := range m.order {
		e := m.entries[gid]
		out = append(out, Snapshot{Gid: gid, URL: e.t.URL, State: e.t.State(), Running: e.running})
	}
	return out
}

// rebalance starts tasks from the head while there is spare capacity,
// and stops running tasks from the tail while over capacity. Using
// signed arithmetic for the deficit (R - P, running count minus
// parallelism) means a negative deficit (spare capacity) and a positive
// one (over capacity) are handled by the same computation, the second
// Open Question SPEC_FULL.md's Design Notes resolve explicitly.
func (m *Manager) rebalance() {
	m.mu.Lock()
	running := 0
	for _, e := range m.entries {
		if e.running {
			running++
		}
	}
	deficit := running - m.parallelism

	var toStop []*entry
	if deficit > 0 {
		for i := len(m.order) - 1; i >= 0 && deficit > 0; i-- {
			e := m.entries[m.order[i]]
			if e.running {
				toStop = append(toStop, e)
				deficit--
			}
		}
	}

	var toStart []*entry
	if deficit < 0 {
		need := -deficit
		for _, gid := range m.order {
			if need == 0 {
				break
			}
			e := m.entries[gid]
			if !e.running {
				toStart = append(toStart, e)
				need--
			}
		}
	}
	ctx := m.baseCtx
	m.mu.Unlock()

	for _, e := range toStop {
		e.t.Abort()
	}
	for _, e := range toStart {
		m.startEntry(e, ctx)
	}
}

func (m *Manager) startEntry(e *entry, ctx context.Context) {
	m.mu.Lock()
	if e.running {
		m.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.running = true
	e.runCtx = runCtx
	e.runCancel = cancel
	m.mu.Unlock()

	go func() {
		_ = e.t.Run(runCtx)
		m.mu.Lock()
		e.running = false
		cancel()
		m.mu.Unlock()
		m.rebalance()
	}()
}

// watch spawns a reclaim goroutine that drains the task's event stream
// and triggers a rebalance on every terminal event, holding only a weak
// reference to the manager so that a manager with no remaining strong
// references can be garbage collected even while tasks it created are
// still being drained. Grounded in SPEC_FULL.md's Design Notes §9 weak
// handle pattern, implemented with Go 1.24's weak.Pointer.
func (m *Manager) watch(t *task.Task) {
	weakM := weak.Make(m)
	stream := t.Events()
	go func() {
		for {
			ev, ok := stream.Next()
			if !ok {
				return
			}
			terminal := ev.Kind == events.KindPrefetch && ev.Err != nil
			switch ev.Kind {
			case events.KindDone, events.KindError, events.KindAborted,
				events.KindClientBuildError, events.KindNoSameFile, events.KindPathError,
				events.KindPullerBuildError, events.KindPusherOpenError:
				terminal = true
			}
			if terminal {
				if mgr := weakM.Value(); mgr != nil {
					mgr.rebalance()
				} else {
					return
				}
			}
		}
	}()
}

func removeGid(order []task.Gid, gid task.Gid) []task.Gid {
	out := order[:0:0]
	for _, g := range order {
		if g != gid {
			out = append(out, g)
		}
	}
	return out
}
