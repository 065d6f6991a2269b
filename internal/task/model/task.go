package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TypeCron is the only task type.
const TypeCron = "cron"

// Task is a named, schedulable bundle of test-case execution configuration.
type Task struct {
	ID          int64
	Num         int
	Name        string
	ProjectName string
	Scope       Scope
	// SetIDs is the caller's case-set selection. It is kept even when
	// explicit cases decide the scope.
	SetIDs       []int64
	Schedule     string
	Type         string
	Notification *Notification
	Status       Status
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SelectedSets returns the case-set selection, falling back to a set scope.
func (t Task) SelectedSets() []int64 {
	if len(t.SetIDs) > 0 {
		return append([]int64(nil), t.SetIDs...)
	}
	if t.Scope != nil && t.Scope.Kind() == ScopeSets {
		return t.Scope.IDs()
	}
	return nil
}

// JobID is the scheduler key of the task's live job.
func (t Task) JobID() string { return JobID(t.ID) }

func JobID(id int64) string { return strconv.FormatInt(id, 10) }

// Notification is the optional email triple attached to a task.
type Notification struct {
	Sender     string
	Credential string
	Recipients []string
}

// RecipientList renders recipients in their stored comma-separated form.
func (n *Notification) RecipientList() string {
	if n == nil {
		return ""
	}
	return strings.Join(n.Recipients, ",")
}

// NewNotification validates the (sender, credential, recipients) triple.
// All empty yields (nil, nil); a partially filled triple is rejected.
func NewNotification(sender, credential, recipients string) (*Notification, error) {
	sender = strings.TrimSpace(sender)
	recipients = strings.TrimSpace(recipients)
	if sender == "" && credential == "" && recipients == "" {
		return nil, nil
	}
	if sender == "" || credential == "" || recipients == "" {
		return nil, ErrPartialNotificationConfig
	}
	var list []string
	for _, r := range strings.Split(recipients, ",") {
		if r = strings.TrimSpace(r); r != "" {
			list = append(list, r)
		}
	}
	if len(list) == 0 {
		return nil, ErrPartialNotificationConfig
	}
	return &Notification{Sender: sender, Credential: credential, Recipients: list}, nil
}

// TaskSpec is the input of createOrUpdateTask. ID == 0 creates a new task.
type TaskSpec struct {
	ID          int64
	Num         int
	Name        string
	ProjectName string
	SetIDs      []int64
	CaseIDs     []int64
	Schedule    string

	NotifySender     string
	NotifyCredential string
	NotifyRecipients string
}

// Validate checks everything except the schedule grammar and name uniqueness,
// which need the translator and the store respectively.
func (s *TaskSpec) Validate() (*Notification, error) {
	s.Name = strings.TrimSpace(s.Name)
	s.ProjectName = strings.TrimSpace(s.ProjectName)
	s.Schedule = strings.TrimSpace(s.Schedule)
	if s.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidTask)
	}
	if s.ProjectName == "" {
		return nil, fmt.Errorf("%w: project name is required", ErrInvalidTask)
	}
	if s.Num < 0 {
		return nil, fmt.Errorf("%w: num must be >= 0", ErrInvalidTask)
	}
	return NewNotification(s.NotifySender, s.NotifyCredential, s.NotifyRecipients)
}

// Apply copies the spec onto t, leaving identity, status and timestamps alone.
func (s TaskSpec) Apply(t *Task, n *Notification) {
	t.Name = s.Name
	t.ProjectName = s.ProjectName
	t.Scope = ScopeOf(s.CaseIDs, s.SetIDs)
	t.SetIDs = append([]int64(nil), s.SetIDs...)
	if len(t.SetIDs) == 0 {
		t.SetIDs = nil
	}
	t.Schedule = s.Schedule
	t.Type = TypeCron
	t.Notification = n
	if s.Num > 0 {
		t.Num = s.Num
	}
}

// ListQuery filters and paginates listTasks.
type ListQuery struct {
	ProjectName string
	NameFilter  string
	Page        int
	PageSize    int
}

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Normalize applies pagination defaults.
func (q ListQuery) Normalize() ListQuery {
	q.ProjectName = strings.TrimSpace(q.ProjectName)
	q.NameFilter = strings.TrimSpace(q.NameFilter)
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.PageSize <= 0 {
		q.PageSize = DefaultPageSize
	}
	if q.PageSize > MaxPageSize {
		q.PageSize = MaxPageSize
	}
	return q
}

// Offset is the row offset of the requested page.
func (q ListQuery) Offset() int { return (q.Page - 1) * q.PageSize }
