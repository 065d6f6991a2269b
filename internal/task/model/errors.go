package model

import "errors"

// Kind groups errors by how a caller should react to them.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindStateConflict     Kind = "state_conflict"
	KindNotFound          Kind = "not_found"
	KindSchedulerInternal Kind = "scheduler_internal"
	KindInternal          Kind = "internal"
)

var (
	ErrInvalidScheduleFormat     = newKindError(KindValidation, "invalid schedule format")
	ErrPartialNotificationConfig = newKindError(KindValidation, "notification sender, credential and recipients must be all set or all empty")
	ErrDuplicateName             = newKindError(KindValidation, "task name already exists")
	ErrInvalidTask               = newKindError(KindValidation, "invalid task")

	ErrTaskStillScheduled = newKindError(KindStateConflict, "task is still scheduled; remove it first")
	ErrTaskNotSchedulable = newKindError(KindStateConflict, "task has no matching live job")
	ErrJobAlreadyRunning  = newKindError(KindStateConflict, "task job already running")

	ErrNotFound        = newKindError(KindNotFound, "task not found")
	ErrProjectNotFound = newKindError(KindNotFound, "project not found")

	ErrSchedulerInternal = newKindError(KindSchedulerInternal, "scheduler internal error")
)

type kindError struct {
	kind Kind
	msg  string
}

func newKindError(k Kind, msg string) error { return &kindError{kind: k, msg: msg} }

func (e *kindError) Error() string { return e.msg }

// KindOf returns the kind of the first sentinel found in err's chain.
// Unknown errors are KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind
	}
	return KindInternal
}
