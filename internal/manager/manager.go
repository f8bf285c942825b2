// Package manager implements the agent-side status update manager. It
// is responsible for
//  1. reliably sending status updates to the master (and hence, the
//     framework), retransmitting until acknowledged,
//  2. checkpointing updates and acknowledgements to disk per task, and
//  3. reconstructing stream state from the checkpoint logs on restart.
//
// All state is owned by a single serial executor goroutine: public
// methods enqueue a closure onto it and block until the handler has
// completed. This serialises every per-stream mutation and every read
// of the master endpoint without further locking.
//
// Durable appends currently run inline on the serial executor, so a
// slow disk stalls processing of other streams while a checkpoint is
// being written.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/heronworks/heron/internal/metrics"
	"github.com/heronworks/heron/internal/stream"
	"github.com/heronworks/heron/pkg/types"
)

var (
	// ErrStopped indicates the manager has been stopped.
	ErrStopped = errors.New("manager: stopped")

	// ErrUnknownStream indicates an acknowledgement for a task that has
	// no update stream on this agent.
	ErrUnknownStream = errors.New("manager: no update stream for task")

	// ErrWrongUUID indicates an acknowledgement whose UUID does not
	// match the next pending update of the stream.
	ErrWrongUUID = errors.New("manager: acknowledgement does not match next pending update")

	// ErrMissingPath indicates an update requesting checkpointing
	// without a log path.
	ErrMissingPath = errors.New("manager: checkpointing requires a log path")
)

// Sender conveys status updates to a master endpoint. Sends are
// fire-and-forget; reliability comes from the manager's
// retransmission, which is why transport failures are not errors.
type Sender interface {
	Send(master string, update types.StatusUpdate)
}

// Config holds the retransmission policy. Updates are never dropped by
// attempt count: only an acknowledgement, a framework cleanup, or a
// terminal stream error removes a pending update.
type Config struct {
	RetryInterval    time.Duration // initial retransmit interval
	MaxRetryInterval time.Duration // backoff cap
}

// DefaultConfig returns the stock retransmission policy.
func DefaultConfig() Config {
	return Config{
		RetryInterval:    10 * time.Second,
		MaxRetryInterval: time.Minute,
	}
}

func (c Config) withDefaults() Config {
	if c.RetryInterval <= 0 {
		c.RetryInterval = 10 * time.Second
	}
	if c.MaxRetryInterval < c.RetryInterval {
		c.MaxRetryInterval = c.RetryInterval
	}
	return c
}

// managedStream pairs an update stream with its retransmission state,
// which the manager owns.
type managedStream struct {
	*stream.UpdateStream

	timer   *time.Timer   // pending retransmit, nil when idle
	backoff time.Duration // interval used for the armed timer
	failed  bool          // terminal error already accounted for
}

// Manager routes status updates and acknowledgements to their update
// streams and drives retransmission to the current master.
type Manager struct {
	ops    chan func()
	stopCh chan struct{}
	wg     sync.WaitGroup

	stopMu  sync.Mutex
	stopped bool

	self    string
	master  string
	streams map[types.StreamID]*managedStream

	sender    Sender
	collector *metrics.Collector
	config    Config
	logger    *slog.Logger
}

// New creates a manager. Start must be called before use.
func New(sender Sender, collector *metrics.Collector, config Config) *Manager {
	return &Manager{
		ops:       make(chan func(), 64),
		stopCh:    make(chan struct{}),
		streams:   make(map[types.StreamID]*managedStream),
		sender:    sender,
		collector: collector,
		config:    config.withDefaults(),
		logger:    slog.With("component", "manager"),
	}
}

// Initialize records the agent's own endpoint, used when announcing
// updates outward.
func (m *Manager) Initialize(self string) {
	m.self = self
}

// Start launches the serial executor.
func (m *Manager) Start() {
	m.wg.Add(1)
	go m.run()
}

func (m *Manager) run() {
	defer m.wg.Done()
	for {
		select {
		case op := <-m.ops:
			op()
		case <-m.stopCh:
			return
		}
	}
}

// do runs f on the serial executor and waits for it to complete. The
// returned error is f's result; there is no per-call timeout beyond
// ctx covering the enqueue.
func (m *Manager) do(ctx context.Context, f func() error) error {
	done := make(chan error, 1)
	select {
	case m.ops <- func() { done <- f() }:
	case <-m.stopCh:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-done:
		return err
	case <-m.stopCh:
		return ErrStopped
	}
}

// post enqueues f without waiting for a result. Used by timer
// callbacks.
func (m *Manager) post(f func()) {
	select {
	case m.ops <- f:
	case <-m.stopCh:
	}
}

// Update records a status update from an executor, locating or
// creating the stream for its task. When checkpoint is true the stream
// checkpoints to path; a stream that already exists keeps its original
// log. If the update becomes the head of the pending queue it is
// forwarded to the current master and the retransmit timer is armed.
func (m *Manager) Update(ctx context.Context, u types.StatusUpdate, checkpoint bool, path string) error {
	return m.do(ctx, func() error { return m.handleUpdate(u, checkpoint, path) })
}

func (m *Manager) handleUpdate(u types.StatusUpdate, checkpoint bool, path string) error {
	if checkpoint && path == "" {
		return ErrMissingPath
	}

	sid := u.StreamID()
	ms, ok := m.streams[sid]
	if !ok {
		logPath := ""
		if checkpoint {
			logPath = path
		}
		m.logger.Info("Creating update stream",
			"stream", sid.String(), "checkpoint", checkpoint)
		ms = &managedStream{UpdateStream: stream.New(u.TaskID, u.FrameworkID, logPath)}
		m.streams[sid] = ms
		m.collector.SetStreams(len(m.streams))

		// A stream recovered from an existing checkpoint log may come
		// back with unacknowledged updates; put its head back in
		// flight right away.
		if ms.PendingCount() > 0 {
			m.logger.Info("Recovered pending status updates",
				"stream", sid.String(), "count", ms.PendingCount())
			m.forward(sid, ms)
		}
	}

	wasPending := ms.PendingCount()

	start := time.Now()
	if err := ms.Update(u); err != nil {
		m.noteStreamError(ms)
		return err
	}
	elapsed := time.Since(start)

	if ms.PendingCount() == wasPending {
		// Duplicate or already acknowledged: the stream ignored it.
		m.collector.RecordDuplicate()
		return nil
	}
	if checkpoint {
		m.collector.ObserveCheckpointAppend(elapsed.Seconds())
	}
	m.collector.RecordUpdate()

	// Only the head of the queue is in flight; later updates wait for
	// the ACK of their predecessors.
	if wasPending == 0 {
		m.forward(sid, ms)
	}
	return nil
}

// Acknowledge processes the framework's acknowledgement for the given
// task. The UUID must match the stream's next pending update; on
// success the retransmit timer is cancelled and the next pending
// update, if any, is sent out.
func (m *Manager) Acknowledge(ctx context.Context, taskID types.TaskID, frameworkID types.FrameworkID, id uuid.UUID) error {
	return m.do(ctx, func() error { return m.handleAck(taskID, frameworkID, id) })
}

func (m *Manager) handleAck(taskID types.TaskID, frameworkID types.FrameworkID, id uuid.UUID) error {
	sid := types.StreamID{FrameworkID: frameworkID, TaskID: taskID}
	ms, ok := m.streams[sid]
	if !ok {
		return fmt.Errorf("%w %s of framework %s", ErrUnknownStream, taskID, frameworkID)
	}

	head, ok, err := ms.Next()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: stream %s has no pending updates (UUID: %s)",
			ErrWrongUUID, sid.String(), id)
	}
	if head.UUID != id {
		return fmt.Errorf("%w: stream %s expects UUID %s, got %s",
			ErrWrongUUID, sid.String(), head.UUID, id)
	}

	if err := ms.Acknowledge(id, head); err != nil {
		m.noteStreamError(ms)
		return err
	}
	m.collector.RecordAck()

	m.cancelTimer(ms)
	m.forward(sid, ms)
	return nil
}

// NewMasterDetected rebinds the master endpoint. Every stream with
// pending updates has its head resent to the new master immediately
// and its retransmit timer reset.
func (m *Manager) NewMasterDetected(master string) {
	err := m.do(context.Background(), func() error {
		m.logger.Info("New master detected", "master", master)
		m.master = master

		for sid, ms := range m.streams {
			head, ok, err := ms.Next()
			if err != nil || !ok {
				continue
			}
			m.send(head)
			m.collector.RecordRetry()
			m.armTimer(sid, ms, head.UUID, m.config.RetryInterval)
		}
		return nil
	})
	if err != nil {
		m.logger.Warn("Dropping master change", "master", master, "error", err)
	}
}

// Cleanup closes and removes every update stream of the framework.
// Pending updates of those tasks will no longer be retried on this
// agent.
func (m *Manager) Cleanup(frameworkID types.FrameworkID) {
	err := m.do(context.Background(), func() error {
		m.logger.Info("Closing update streams", "framework", frameworkID)
		for sid, ms := range m.streams {
			if sid.FrameworkID != frameworkID {
				continue
			}
			m.cancelTimer(ms)
			ms.Close()
			delete(m.streams, sid)
		}
		m.collector.SetStreams(len(m.streams))
		return nil
	})
	if err != nil {
		m.logger.Warn("Dropping cleanup", "framework", frameworkID, "error", err)
	}
}

// forward sends the stream's head update to the current master, if one
// is known, and arms the retransmit timer. With no master the update
// stays pending and the timer still runs, so the send happens on the
// next master change or timer fire.
func (m *Manager) forward(sid types.StreamID, ms *managedStream) {
	head, ok, err := ms.Next()
	if err != nil || !ok {
		return
	}

	m.send(head)
	m.armTimer(sid, ms, head.UUID, m.config.RetryInterval)
}

func (m *Manager) send(u types.StatusUpdate) {
	if m.master == "" {
		m.logger.Warn("No master detected; holding status update", "update", u.String())
		return
	}
	m.logger.Debug("Forwarding status update to master",
		"master", m.master, "update", u.String(), "from", m.self)
	m.sender.Send(m.master, u)
}

// handleRetry runs on the serial executor when a retransmit timer
// fires. The armed UUID guards against stale fires: a timer raced with
// an ACK or a cleanup is ignored.
func (m *Manager) handleRetry(sid types.StreamID, id uuid.UUID) {
	ms, ok := m.streams[sid]
	if !ok {
		return
	}
	head, pending, err := ms.Next()
	if err != nil || !pending || head.UUID != id {
		return
	}

	if m.master != "" {
		m.logger.Warn("Resending status update", "update", head.String(), "master", m.master)
		m.sender.Send(m.master, head)
		m.collector.RecordRetry()
	}

	next := ms.backoff * 2
	if next > m.config.MaxRetryInterval {
		next = m.config.MaxRetryInterval
	}
	m.armTimer(sid, ms, id, next)
}

func (m *Manager) armTimer(sid types.StreamID, ms *managedStream, id uuid.UUID, interval time.Duration) {
	m.cancelTimer(ms)
	ms.backoff = interval
	ms.timer = time.AfterFunc(interval, func() {
		m.post(func() { m.handleRetry(sid, id) })
	})
}

func (m *Manager) cancelTimer(ms *managedStream) {
	if ms.timer != nil {
		ms.timer.Stop()
		ms.timer = nil
	}
}

// noteStreamError accounts a stream's transition into its terminal
// error state. Errors are isolated: sibling streams and the manager
// keep running.
func (m *Manager) noteStreamError(ms *managedStream) {
	if ms.failed {
		return
	}
	ms.failed = true
	m.collector.RecordStreamError()
	m.cancelTimer(ms)
}

// Pending returns a copy of the pending queue of a task's stream, or
// nil when the stream does not exist.
func (m *Manager) Pending(ctx context.Context, taskID types.TaskID, frameworkID types.FrameworkID) ([]types.StatusUpdate, error) {
	var out []types.StatusUpdate
	err := m.do(ctx, func() error {
		ms, ok := m.streams[types.StreamID{FrameworkID: frameworkID, TaskID: taskID}]
		if !ok {
			return nil
		}
		out = ms.PendingUpdates()
		return nil
	})
	return out, err
}

// StreamCount returns the number of open update streams.
func (m *Manager) StreamCount(ctx context.Context) (int, error) {
	var n int
	err := m.do(ctx, func() error {
		n = len(m.streams)
		return nil
	})
	return n, err
}

// Stop shuts the manager down.
//
// Ordering:
//  1. close(stopCh) so new calls fail fast and the executor exits,
//  2. wait for the executor goroutine, after which the state is
//     exclusively owned here,
//  3. cancel all retransmit timers and close all streams.
//
// Queued but unexecuted operations are dropped; their callers receive
// ErrStopped.
func (m *Manager) Stop() {
	m.stopMu.Lock()
	if m.stopped {
		m.stopMu.Unlock()
		return
	}
	m.stopped = true
	m.stopMu.Unlock()

	close(m.stopCh)
	m.wg.Wait()

	for _, ms := range m.streams {
		m.cancelTimer(ms)
		ms.Close()
	}
	m.logger.Info("Status update manager stopped")
}
