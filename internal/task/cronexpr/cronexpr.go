// Package cronexpr translates the 6-field task schedule string
// (seconds minutes hours day-of-month month day-of-week) into a cron trigger.
//
// Day-of-week follows crontab numbering: 0 (or 7) is Sunday. Names (MON, JAN, ...)
// are accepted. Descriptors such as "@daily" are not: a schedule must have exactly
// six fields.
package cronexpr

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"apitask/internal/task/model"
)

// Fields is the number of whitespace-separated fields a schedule must have.
const Fields = 6

var parser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Trigger is a parsed schedule. It is immutable and safe for concurrent use.
type Trigger struct {
	expr  string
	sched cron.Schedule
}

// Parse validates expr and returns its trigger.
// Errors wrap model.ErrInvalidScheduleFormat.
func Parse(expr string) (Trigger, error) {
	fields := strings.Fields(expr)
	if len(fields) != Fields {
		return Trigger{}, fmt.Errorf("%w: want %d fields, got %d", model.ErrInvalidScheduleFormat, Fields, len(fields))
	}
	norm := strings.Join(fields, " ")
	sched, err := parser.Parse(norm)
	if err != nil {
		return Trigger{}, fmt.Errorf("%w: %v", model.ErrInvalidScheduleFormat, err)
	}
	return Trigger{expr: norm, sched: sched}, nil
}

// Validate is Parse without the result.
func Validate(expr string) error {
	_, err := Parse(expr)
	return err
}

// Expr returns the normalized expression (single spaces).
func (t Trigger) Expr() string { return t.expr }

// IsZero reports whether t was never parsed.
func (t Trigger) IsZero() bool { return t.sched == nil }

// Schedule exposes the trigger to cron.Cron.
func (t Trigger) Schedule() cron.Schedule { return t.sched }

// Next returns the first fire time strictly after from, in from's location.
// Zero time means the expression can never fire (e.g. "0 0 0 30 2 *").
func (t Trigger) Next(from time.Time) time.Time {
	if t.sched == nil {
		return time.Time{}
	}
	return t.sched.Next(from)
}

// NextN returns up to n upcoming fire times after from.
func (t Trigger) NextN(from time.Time, n int) []time.Time {
	out := make([]time.Time, 0, n)
	cur := from
	for i := 0; i < n; i++ {
		cur = t.Next(cur)
		if cur.IsZero() {
			break
		}
		out = append(out, cur)
	}
	return out
}
