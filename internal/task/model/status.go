package model

import "fmt"

// Status is the persisted lifecycle state of a task.
//
//	Created -> Running (start)
//	Running -> Paused  (pause)
//	Paused  -> Running (resume)
//	Running|Paused -> Created (remove)
//	Created -> deleted (delete)
type Status int

const (
	StatusCreated Status = iota + 1
	StatusRunning
	StatusPaused
)

// Command is a lifecycle command that moves a task between states.
type Command int

const (
	CmdStart Command = iota + 1
	CmdPause
	CmdResume
	CmdRemove
	CmdDelete
)

func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "created"
	case StatusRunning:
		return "running"
	case StatusPaused:
		return "paused"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// ParseStatus is the inverse of Status.String.
func ParseStatus(s string) (Status, error) {
	switch s {
	case "created":
		return StatusCreated, nil
	case "running":
		return StatusRunning, nil
	case "paused":
		return StatusPaused, nil
	default:
		return 0, fmt.Errorf("unknown task status %q", s)
	}
}

// Scheduled reports whether a live job should exist for this status.
func (s Status) Scheduled() bool { return s == StatusRunning || s == StatusPaused }

func (c Command) String() string {
	switch c {
	case CmdStart:
		return "start"
	case CmdPause:
		return "pause"
	case CmdResume:
		return "resume"
	case CmdRemove:
		return "remove"
	case CmdDelete:
		return "delete"
	default:
		return fmt.Sprintf("command(%d)", int(c))
	}
}

// Transition returns the status after applying c to s.
// For CmdDelete the returned status is meaningless; only the error matters.
func (s Status) Transition(c Command) (Status, error) {
	switch c {
	case CmdStart:
		if s == StatusCreated {
			return StatusRunning, nil
		}
		return s, ErrJobAlreadyRunning
	case CmdPause:
		if s == StatusRunning {
			return StatusPaused, nil
		}
		return s, ErrTaskNotSchedulable
	case CmdResume:
		if s == StatusPaused {
			return StatusRunning, nil
		}
		return s, ErrTaskNotSchedulable
	case CmdRemove:
		if s.Scheduled() {
			return StatusCreated, nil
		}
		return s, ErrTaskNotSchedulable
	case CmdDelete:
		if s == StatusCreated {
			return s, nil
		}
		return s, ErrTaskStillScheduled
	default:
		return s, fmt.Errorf("unknown command %d", int(c))
	}
}
