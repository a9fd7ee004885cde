// Package frame implements the persistent frame stack: nested units of
// work recorded as a session progresses.
package frame

import (
	"errors"
	"time"
)

// State is the lifecycle state of a frame.
type State string

const (
	StateActive State = "active"
	StateClosed State = "closed"
)

// FrameType classifies a frame.
type FrameType string

const (
	TypeTask    FrameType = "task"
	TypeSubtask FrameType = "subtask"
)

// Sentinel errors surfaced by the store.
var (
	ErrNotFound      = errors.New("frame: not found")
	ErrInvalidParent = errors.New("frame: invalid parent")
	ErrAlreadyClosed = errors.New("frame: already closed")
	ErrChildrenOpen  = errors.New("frame: child frames still active")
)

// Frame is one recorded unit of work in a session's nested call stack.
type Frame struct {
	ID        string     `json:"id"`
	ParentID  string     `json:"parent_id,omitempty"`
	Name      string     `json:"name"`
	Type      FrameType  `json:"frame_type"`
	State     State      `json:"state"`
	RunID     string     `json:"run_id"`
	Inputs    []string   `json:"inputs,omitempty"`
	Outputs   []string   `json:"outputs,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
}

// ToolEvent is one tool invocation recorded against a frame. Events are the
// raw signal source the score engine aggregates over.
type ToolEvent struct {
	ID            int64     `json:"id"`
	FrameID       string    `json:"frame_id"`
	Tool          string    `json:"tool"`
	FilesAffected int       `json:"files_affected"`
	IsPermanent   bool      `json:"is_permanent"`
	RefCount      int       `json:"ref_count"`
	CreatedAt     time.Time `json:"created_at"`
}

// Signals are aggregated scoring inputs for one frame (or frame subtree).
type Signals struct {
	Tool          string `json:"tool"` // dominant (most frequent) tool
	FilesAffected int    `json:"files_affected"`
	IsPermanent   bool   `json:"is_permanent"`
	RefCount      int    `json:"ref_count"`
}
