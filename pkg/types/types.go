// Package types defines the core domain model shared by the heron agent.
package types

import (
	"fmt"

	"github.com/google/uuid"
)

// TaskID identifies a task. It is unique within a framework for the
// lifetime of that framework.
type TaskID string

// FrameworkID identifies the framework (scheduler) that owns a task.
type FrameworkID string

// StreamID is the key under which the manager indexes update streams.
// The (framework, task) pair is globally unique.
type StreamID struct {
	FrameworkID FrameworkID
	TaskID      TaskID
}

func (id StreamID) String() string {
	return fmt.Sprintf("%s/%s", id.FrameworkID, id.TaskID)
}

// TaskState is the coarse task state carried by a status update.
type TaskState int32

const (
	TaskStarting TaskState = iota
	TaskRunning
	TaskFinished
	TaskFailed
	TaskKilled
	TaskLost
)

func (s TaskState) String() string {
	switch s {
	case TaskStarting:
		return "STARTING"
	case TaskRunning:
		return "RUNNING"
	case TaskFinished:
		return "FINISHED"
	case TaskFailed:
		return "FAILED"
	case TaskKilled:
		return "KILLED"
	case TaskLost:
		return "LOST"
	default:
		return "UNKNOWN"
	}
}

// StatusUpdate is an immutable record about a task, emitted by an
// executor. The UUID is globally unique per update; equality is
// bytewise and no ordering is assumed among UUIDs.
type StatusUpdate struct {
	FrameworkID FrameworkID
	TaskID      TaskID
	State       TaskState
	Message     string
	Data        []byte
	Timestamp   int64 // Unix millisecond timestamp
	UUID        uuid.UUID
}

// StreamID returns the stream key for the task this update belongs to.
func (u StatusUpdate) StreamID() StreamID {
	return StreamID{FrameworkID: u.FrameworkID, TaskID: u.TaskID}
}

func (u StatusUpdate) String() string {
	return fmt.Sprintf("%s (UUID: %s) for task %s of framework %s",
		u.State, u.UUID, u.TaskID, u.FrameworkID)
}
