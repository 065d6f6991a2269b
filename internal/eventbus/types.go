package eventbus

// Event types published by the scheduler service.
const (
	TaskCreated = "task.created"
	TaskUpdated = "task.updated"
	TaskStarted = "task.started"
	TaskPaused  = "task.paused"
	TaskResumed = "task.resumed"
	TaskRemoved = "task.removed"
	TaskDeleted = "task.deleted"
	TaskFired   = "task.fired"

	RunStarted  = "run.started"
	RunFinished = "run.finished"
	RunFailed   = "run.failed"
	RunSkipped  = "run.skipped"
	RunDropped  = "run.dropped"

	NotifierSent    = "notifier.sent"
	NotifierFailed  = "notifier.failed"
	NotifierDeduped = "notifier.deduped"
	NotifierDropped = "notifier.dropped"
)

// TaskChange is the payload of task.* events.
type TaskChange struct {
	TaskID int64  `json:"task_id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}
