package logx

import (
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Field sets one key on an event. Later fields win on duplicate keys.
type Field func(e *zerolog.Event)

func String(k, v string) Field                 { return func(e *zerolog.Event) { e.Str(k, v) } }
func Int(k string, v int) Field                { return func(e *zerolog.Event) { e.Int(k, v) } }
func Int64(k string, v int64) Field            { return func(e *zerolog.Event) { e.Int64(k, v) } }
func Uint64(k string, v uint64) Field          { return func(e *zerolog.Event) { e.Uint64(k, v) } }
func Bool(k string, v bool) Field              { return func(e *zerolog.Event) { e.Bool(k, v) } }
func Duration(k string, v time.Duration) Field { return func(e *zerolog.Event) { e.Dur(k, v) } }
func Time(k string, v time.Time) Field         { return func(e *zerolog.Event) { e.Time(k, v) } }
func Any(k string, v any) Field                { return func(e *zerolog.Event) { e.Interface(k, v) } }

// Strings joins vs with commas; an empty slice is omitted.
func Strings(k string, vs []string) Field {
	return func(e *zerolog.Event) {
		if len(vs) > 0 {
			e.Str(k, strings.Join(vs, ","))
		}
	}
}

// Err is a no-op for a nil error.
func Err(err error) Field {
	return func(e *zerolog.Event) {
		if err != nil {
			e.Err(err)
		}
	}
}

// Domain keys shared by every component so log lines can be joined on them.
const (
	KeyComponent = "comp"
	KeyTask      = "task_id"
	KeyReport    = "report_id"
	KeyRun       = "run_id"
	KeyProject   = "project"
)

func Component(name string) Field { return String(KeyComponent, name) }
func TaskID(id int64) Field       { return Int64(KeyTask, id) }
func ReportID(id int64) Field     { return Int64(KeyReport, id) }
func RunID(id string) Field       { return String(KeyRun, id) }
func Project(name string) Field   { return String(KeyProject, name) }
