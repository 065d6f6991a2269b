package cronexpr

import (
	"errors"
	"testing"
	"time"

	"apitask/internal/task/model"
)

func TestParseDailyAtOne(t *testing.T) {
	t.Parallel()
	tr, err := Parse("0 0 1 * * *")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	from := time.Date(2024, 3, 10, 0, 30, 0, 0, time.UTC)
	got := tr.NextN(from, 3)
	want := []time.Time{
		time.Date(2024, 3, 10, 1, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 11, 1, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 12, 1, 0, 0, 0, time.UTC),
	}
	if len(got) != len(want) {
		t.Fatalf("NextN len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Fatalf("fire[%d] = %s, want %s", i, got[i], want[i])
		}
	}
	// Exactly at a fire time, the next one is a day later.
	if next := tr.Next(want[0]); !next.Equal(want[1]) {
		t.Fatalf("Next(at fire) = %s, want %s", next, want[1])
	}
}

func TestParseVariants(t *testing.T) {
	t.Parallel()
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) // Monday
	tests := []struct {
		name string
		expr string
		want time.Time
	}{
		{name: "every 15s", expr: "*/15 * * * * *", want: time.Date(2024, 1, 1, 0, 0, 15, 0, time.UTC)},
		{name: "range+list", expr: "0 30 9-17 * * 1,3,5", want: time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC)},
		{name: "sunday is 0", expr: "0 0 12 * * 0", want: time.Date(2024, 1, 7, 12, 0, 0, 0, time.UTC)},
		{name: "names", expr: "0 0 8 1 FEB *", want: time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)},
		{name: "extra spaces", expr: "  0  0   1 * *  * ", want: time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tr, err := Parse(tt.expr)
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", tt.expr, err)
			}
			if got := tr.Next(from); !got.Equal(tt.want) {
				t.Fatalf("Next = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestParseRejects(t *testing.T) {
	t.Parallel()
	for _, expr := range []string{
		"",
		"0 0 1 * *",
		"0 0 1 * * * *",
		"@daily",
		"61 0 1 * * *",
		"0 0 25 * * *",
		"0 0 1 * * MONX",
		"a b c d e f",
	} {
		_, err := Parse(expr)
		if !errors.Is(err, model.ErrInvalidScheduleFormat) {
			t.Fatalf("Parse(%q) err = %v, want ErrInvalidScheduleFormat", expr, err)
		}
		if model.KindOf(err) != model.KindValidation {
			t.Fatalf("Parse(%q) kind = %q", expr, model.KindOf(err))
		}
	}
}

func TestExprNormalized(t *testing.T) {
	t.Parallel()
	tr, err := Parse("0\t0  1 * * *")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if tr.Expr() != "0 0 1 * * *" {
		t.Fatalf("Expr = %q", tr.Expr())
	}
	var zero Trigger
	if !zero.IsZero() || !zero.Next(time.Now()).IsZero() {
		t.Fatal("zero trigger must never fire")
	}
}
