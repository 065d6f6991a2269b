package httpapi

import (
	"time"

	"apitask/internal/storage"
	"apitask/internal/task/lifecycle"
	"apitask/internal/task/model"
)

const maskedCredential = "******"

type notificationRequest struct {
	Sender     string `json:"sender"`
	Credential string `json:"credential"`
	Recipients string `json:"recipients"` // comma-separated
}

type taskRequest struct {
	Num          int                  `json:"num"`
	Name         string               `json:"name"`
	ProjectName  string               `json:"project_name"`
	SetIDs       []int64              `json:"set_ids"`
	CaseIDs      []int64              `json:"case_ids"`
	Schedule     string               `json:"schedule"`
	Notification *notificationRequest `json:"notification"`
}

func (r taskRequest) spec(id int64) model.TaskSpec {
	s := model.TaskSpec{
		ID:          id,
		Num:         r.Num,
		Name:        r.Name,
		ProjectName: r.ProjectName,
		SetIDs:      r.SetIDs,
		CaseIDs:     r.CaseIDs,
		Schedule:    r.Schedule,
	}
	if n := r.Notification; n != nil {
		s.NotifySender = n.Sender
		s.NotifyCredential = n.Credential
		s.NotifyRecipients = n.Recipients
	}
	return s
}

type notificationView struct {
	Sender     string   `json:"sender"`
	Credential string   `json:"credential"`
	Recipients []string `json:"recipients"`
}

type jobView struct {
	Paused     bool       `json:"paused"`
	NextFireAt *time.Time `json:"next_fire_at,omitempty"`
	PrevFireAt *time.Time `json:"prev_fire_at,omitempty"`
}

type healthView struct {
	Status    string            `json:"status"`
	Scheduler string            `json:"scheduler,omitempty"`
	Breakers  map[string]string `json:"breakers,omitempty"`
}

type taskView struct {
	ID           int64             `json:"id"`
	Num          int               `json:"num"`
	Name         string            `json:"name"`
	ProjectName  string            `json:"project_name"`
	Scope        string            `json:"scope"`
	SetIDs       []int64           `json:"set_ids,omitempty"`
	CaseIDs      []int64           `json:"case_ids,omitempty"`
	Schedule     string            `json:"schedule"`
	TaskType     string            `json:"task_type"`
	Status       string            `json:"status"`
	Notification *notificationView `json:"notification,omitempty"`
	Job          *jobView          `json:"job,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

func viewTask(t model.Task) taskView {
	v := taskView{
		ID:          t.ID,
		Num:         t.Num,
		Name:        t.Name,
		ProjectName: t.ProjectName,
		Schedule:    t.Schedule,
		TaskType:    t.Type,
		Status:      t.Status.String(),
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
	if t.Scope != nil {
		v.Scope = string(t.Scope.Kind())
		if t.Scope.Kind() == model.ScopeCases {
			v.CaseIDs = t.Scope.IDs()
		}
	}
	if sets := t.SelectedSets(); len(sets) > 0 {
		v.SetIDs = sets
	}
	if n := t.Notification; n != nil {
		v.Notification = &notificationView{
			Sender:     n.Sender,
			Credential: maskedCredential,
			Recipients: append([]string(nil), n.Recipients...),
		}
	}
	return v
}

func viewDetail(d lifecycle.Detail) taskView {
	v := viewTask(d.Task)
	if j := d.Job; j != nil {
		jv := &jobView{Paused: j.Paused}
		if !j.Next.IsZero() {
			next := j.Next
			jv.NextFireAt = &next
		}
		if !j.Prev.IsZero() {
			prev := j.Prev
			jv.PrevFireAt = &prev
		}
		v.Job = jv
	}
	return v
}

type taskPage struct {
	Items    []taskView `json:"items"`
	Total    int        `json:"total"`
	Page     int        `json:"page"`
	PageSize int        `json:"page_size"`
}

type reportView struct {
	ID          int64     `json:"id"`
	TaskID      int64     `json:"task_id,omitempty"`
	ProjectName string    `json:"project_name"`
	Name        string    `json:"name"`
	Origin      string    `json:"origin"`
	RunID       string    `json:"run_id"`
	Total       int       `json:"total"`
	Passed      int       `json:"passed"`
	Failed      int       `json:"failed"`
	DurationMS  int64     `json:"duration_ms"`
	CreatedAt   time.Time `json:"created_at"`
}

func viewReport(r storage.Report) reportView {
	return reportView{
		ID:          r.ID,
		TaskID:      r.TaskID,
		ProjectName: r.ProjectName,
		Name:        r.Name,
		Origin:      r.Origin,
		RunID:       r.RunID,
		Total:       r.Total,
		Passed:      r.Passed,
		Failed:      r.Failed,
		DurationMS:  r.Duration.Milliseconds(),
		CreatedAt:   r.CreatedAt,
	}
}
