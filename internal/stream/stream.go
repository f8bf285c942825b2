// Package stream implements the per-task update stream: the durable
// state machine that records status updates and acknowledgements for
// one task, checkpointing them when a log path is configured.
//
// A task is expected to have a globally unique ID across the lifetime
// of a framework, so the (task, framework) pair always names exactly
// one stream. Streams are mutated only from the manager's serial
// executor; the type itself is not safe for concurrent use.
package stream

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/heronworks/heron/internal/storage/updatelog"
	"github.com/heronworks/heron/internal/wire"
	"github.com/heronworks/heron/pkg/types"
)

var (
	// ErrAckWithoutUpdate indicates a replayed ACK record with no
	// matching prior UPDATE record.
	ErrAckWithoutUpdate = errors.New("stream: acknowledgement record without prior update")

	// ErrDuplicateRecord indicates a replayed UPDATE record whose UUID
	// was already recorded.
	ErrDuplicateRecord = errors.New("stream: duplicate update record")
)

// UpdateStream holds the status updates and acknowledgements of a
// task. Every update whose UPDATE record has been durably written is
// in received; every update whose ACK record has been durably written
// is in acknowledged; pending holds received-but-unacknowledged
// updates in arrival order.
type UpdateStream struct {
	TaskID      types.TaskID
	FrameworkID types.FrameworkID

	received     map[uuid.UUID]struct{}
	acknowledged map[uuid.UUID]struct{}
	pending      []types.StatusUpdate

	log *updatelog.Log // nil when the stream is purely in-memory
	err error          // sticky non-retryable error

	logger *slog.Logger
}

// New creates a stream for the given task. When path is non-empty the
// checkpoint log is opened (creating the parent directory on demand)
// and any existing records are replayed to reconstruct the stream's
// state. Failures are not returned: they are recorded as the stream's
// sticky error and surfaced by the first operation, matching the
// lifetime of the stream in the manager's map.
func New(taskID types.TaskID, frameworkID types.FrameworkID, path string) *UpdateStream {
	s := &UpdateStream{
		TaskID:       taskID,
		FrameworkID:  frameworkID,
		received:     make(map[uuid.UUID]struct{}),
		acknowledged: make(map[uuid.UUID]struct{}),
		logger: slog.With(
			"component", "stream",
			"task", taskID,
			"framework", frameworkID),
	}

	if path == "" {
		return s
	}

	log, err := updatelog.Open(path)
	if err != nil {
		s.fail(err)
		return s
	}
	s.log = log

	if err := log.Replay(s.recover); err != nil {
		s.fail(err)
	}
	return s
}

// NewWithLog creates a stream over an already-open log without
// replaying it. Used by tests to inject log failures.
func NewWithLog(taskID types.TaskID, frameworkID types.FrameworkID, log *updatelog.Log) *UpdateStream {
	s := New(taskID, frameworkID, "")
	s.log = log
	return s
}

// recover applies one replayed checkpoint record. The rules mirror
// Update/Acknowledge; any inconsistency is fatal to the stream.
func (s *UpdateStream) recover(r wire.Record) error {
	switch r.Type {
	case wire.RecordUpdate:
		if _, ok := s.received[r.Update.UUID]; ok {
			return fmt.Errorf("%w (UUID: %s)", ErrDuplicateRecord, r.Update.UUID)
		}
		s.received[r.Update.UUID] = struct{}{}
		s.pending = append(s.pending, r.Update)
	case wire.RecordAck:
		if len(s.pending) == 0 || s.pending[0].UUID != r.UUID {
			return fmt.Errorf("%w (UUID: %s)", ErrAckWithoutUpdate, r.UUID)
		}
		s.acknowledged[r.UUID] = struct{}{}
		s.pending = s.pending[1:]
	default:
		return fmt.Errorf("stream: unknown record type %d", r.Type)
	}
	return nil
}

// Update records a status update, checkpointing it if the stream has a
// log. Updates already acknowledged or already received are ignored
// with a warning and reported as success: the first happens when the
// agent recorded the framework's ACK but died before its own ACK
// reached the executor, the second when the agent died between writing
// the record and acking the executor. Both make the executor re-send.
func (s *UpdateStream) Update(u types.StatusUpdate) error {
	if s.err != nil {
		return s.err
	}

	if _, ok := s.acknowledged[u.UUID]; ok {
		s.logger.Warn("Ignoring status update already acknowledged by the framework",
			"update", u.String())
		return nil
	}

	if _, ok := s.received[u.UUID]; ok {
		s.logger.Warn("Ignoring duplicate status update", "update", u.String())
		return nil
	}

	return s.handle(u, wire.RecordUpdate)
}

// Acknowledge records the framework's acknowledgement of u, which must
// be the head of the pending queue. The caller pairs the ACK with the
// update it refers to; a UUID mismatch here means the pairing logic is
// broken and continuing would silently diverge the on-disk state, so
// it aborts.
func (s *UpdateStream) Acknowledge(id uuid.UUID, u types.StatusUpdate) error {
	if s.err != nil {
		return s.err
	}

	if id != u.UUID {
		panic(fmt.Sprintf(
			"unexpected UUID mismatch! (received %s, expecting %s) for update %s",
			id, u.UUID, u))
	}

	return s.handle(u, wire.RecordAck)
}

// Next returns the head of the pending queue without mutating it.
func (s *UpdateStream) Next() (types.StatusUpdate, bool, error) {
	if s.err != nil {
		return types.StatusUpdate{}, false, s.err
	}
	if len(s.pending) == 0 {
		return types.StatusUpdate{}, false, nil
	}
	return s.pending[0], true, nil
}

// PendingCount returns the number of unacknowledged updates.
func (s *UpdateStream) PendingCount() int {
	return len(s.pending)
}

// PendingUpdates returns a copy of the pending queue in arrival order.
func (s *UpdateStream) PendingUpdates() []types.StatusUpdate {
	out := make([]types.StatusUpdate, len(s.pending))
	copy(out, s.pending)
	return out
}

// Received reports whether an UPDATE record for id has been durably
// written.
func (s *UpdateStream) Received(id uuid.UUID) bool {
	_, ok := s.received[id]
	return ok
}

// Acknowledged reports whether an ACK record for id has been durably
// written.
func (s *UpdateStream) Acknowledged(id uuid.UUID) bool {
	_, ok := s.acknowledged[id]
	return ok
}

// Err returns the stream's sticky error, if any.
func (s *UpdateStream) Err() error {
	return s.err
}

// handle checkpoints the record if necessary, then applies the
// in-memory mutation. The append is fully durable before the mutation
// becomes observable.
func (s *UpdateStream) handle(u types.StatusUpdate, typ wire.RecordType) error {
	s.logger.Debug("Handling status update record", "type", typ.String(), "update", u.String())

	if s.log != nil {
		record := wire.Record{Type: typ}
		if typ == wire.RecordUpdate {
			record.Update = u
		} else {
			record.UUID = u.UUID
		}

		if err := s.log.Append(record); err != nil {
			s.fail(err)
			return s.err
		}
	}

	if typ == wire.RecordUpdate {
		s.received[u.UUID] = struct{}{}
		s.pending = append(s.pending, u)
	} else {
		s.acknowledged[u.UUID] = struct{}{}
		s.pending = s.pending[1:]
	}

	return nil
}

// fail records err as the stream's terminal error and closes the log.
// All further operations fail with the same error.
func (s *UpdateStream) fail(err error) {
	s.err = err
	s.logger.Error("Update stream entered terminal error state", "error", err)
	if s.log != nil {
		if cerr := s.log.Close(); cerr != nil {
			s.logger.Error("Failed to close update log", "error", cerr)
		}
		s.log = nil
	}
}

// Close releases the stream's log handle. Pending updates are dropped;
// the caller is responsible for not using the stream afterwards.
func (s *UpdateStream) Close() {
	if s.log != nil {
		if err := s.log.Close(); err != nil {
			s.logger.Error("Failed to close update log", "path", s.log.Path(), "error", err)
		}
		s.log = nil
	}
}
