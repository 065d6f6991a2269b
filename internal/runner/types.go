// Package runner is the client side of the external case execution engine.
//
// The engine receives a project name and an ordered list of case ids, runs
// them, and answers with one result per case. Client talks to it over HTTP;
// Dry marks every case as passed without calling anything.
package runner

import (
	"errors"
	"time"
)

var (
	// ErrUnavailable means the breaker in front of the engine is open.
	ErrUnavailable = errors.New("runner unavailable")
	ErrBadResponse = errors.New("runner bad response")
)

// CaseResult is the outcome of one case.
type CaseResult struct {
	CaseID     int64         `json:"case_id"`
	Name       string        `json:"name,omitempty"`
	Passed     bool          `json:"passed"`
	StatusCode int           `json:"status_code,omitempty"`
	Elapsed    time.Duration `json:"elapsed"`
	Message    string        `json:"message,omitempty"`
}

// Result is the structured result of one runCases call.
type Result struct {
	RunID    string
	Project  string
	Total    int
	Passed   int
	Failed   int
	Started  time.Time
	Duration time.Duration
	Cases    []CaseResult
}

// OK reports whether every case passed.
func (r Result) OK() bool { return r.Failed == 0 }

func (r *Result) tally() {
	r.Total, r.Passed, r.Failed = len(r.Cases), 0, 0
	for _, c := range r.Cases {
		if c.Passed {
			r.Passed++
		} else {
			r.Failed++
		}
	}
}

// Config configures the HTTP client.
type Config struct {
	URL     string
	Token   string
	Timeout time.Duration

	// Breaker: trips after BreakerFailures consecutive failures and stays
	// open for BreakerCooldown.
	BreakerFailures int
	BreakerCooldown time.Duration
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Minute
	}
	if c.BreakerFailures <= 0 {
		c.BreakerFailures = 5
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = 30 * time.Second
	}
	return c
}
