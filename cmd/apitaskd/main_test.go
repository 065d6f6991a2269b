package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestCronNextCommand(t *testing.T) {
	t.Parallel()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--env-file", "", "cron", "next", "0  0 1 * * *", "-n", "2", "--tz", "UTC"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 || lines[0] != "0 0 1 * * *" {
		t.Fatalf("output = %q", out.String())
	}
	for _, l := range lines[1:] {
		if !strings.HasSuffix(l, "T01:00:00Z") {
			t.Fatalf("fire time %q, want 01:00 UTC", l)
		}
	}
}

func TestCronNextRejectsBadExpr(t *testing.T) {
	t.Parallel()
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"cron", "next", "@daily"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error")
	}
}

func TestCheckConfigReportsErrors(t *testing.T) {
	t.Parallel()
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"check-config", "-c", "/nonexistent/apitask.yaml"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error for missing file")
	}
}
