package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	logx "apitask/pkg/logx"
)

// Client calls the execution engine over HTTP. It is safe for concurrent use.
type Client struct {
	cfg  Config
	http *http.Client
	cb   *gobreaker.CircuitBreaker
	log  logx.Logger
}

type runRequest struct {
	RunID   string  `json:"run_id"`
	Project string  `json:"project"`
	CaseIDs []int64 `json:"case_ids"`
}

type runResponse struct {
	Cases []struct {
		CaseID     int64  `json:"case_id"`
		Name       string `json:"name"`
		Passed     bool   `json:"passed"`
		StatusCode int    `json:"status_code"`
		ElapsedMS  int64  `json:"elapsed_ms"`
		Message    string `json:"message"`
	} `json:"cases"`
}

func NewClient(cfg Config, log logx.Logger) (*Client, error) {
	cfg = cfg.withDefaults()
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("runner url is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	c := &Client{cfg: cfg, log: log, http: &http.Client{Timeout: cfg.Timeout}}
	c.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "runner",
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(cfg.BreakerFailures)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("runner breaker state changed", logx.String("from", from.String()), logx.String("to", to.String()))
		},
		IsSuccessful: func(err error) bool {
			// Caller cancellation says nothing about the engine.
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	return c, nil
}

// RunCases runs caseIDs of project in order and blocks until the engine answers.
func (c *Client) RunCases(ctx context.Context, project string, caseIDs []int64) (Result, error) {
	res := Result{RunID: uuid.NewString(), Project: project, Started: time.Now()}
	if len(caseIDs) == 0 {
		return res, nil
	}

	out, err := c.cb.Execute(func() (interface{}, error) {
		return c.post(ctx, runRequest{RunID: res.RunID, Project: project, CaseIDs: caseIDs})
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return res, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return res, err
	}

	rr := out.(runResponse)
	res.Cases = make([]CaseResult, 0, len(rr.Cases))
	for _, cr := range rr.Cases {
		res.Cases = append(res.Cases, CaseResult{
			CaseID:     cr.CaseID,
			Name:       cr.Name,
			Passed:     cr.Passed,
			StatusCode: cr.StatusCode,
			Elapsed:    time.Duration(cr.ElapsedMS) * time.Millisecond,
			Message:    cr.Message,
		})
	}
	res.tally()
	res.Duration = time.Since(res.Started)
	c.log.Debug("run finished",
		logx.String("run_id", res.RunID),
		logx.String("project", project),
		logx.Int("total", res.Total),
		logx.Int("failed", res.Failed),
		logx.Duration("took", res.Duration),
	)
	return res, nil
}

func (c *Client) post(ctx context.Context, body runRequest) (runResponse, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return runResponse{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(b))
	if err != nil {
		return runResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Run-ID", body.RunID)
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return runResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return runResponse{}, fmt.Errorf("%w: http %d: %s", ErrBadResponse, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	var out runResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return runResponse{}, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	return out, nil
}

// BreakerStates exposes the engine breaker for health output.
func (c *Client) BreakerStates() map[string]string {
	return map[string]string{"runner": c.cb.State().String()}
}
