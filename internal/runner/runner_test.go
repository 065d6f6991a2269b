package runner

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	logx "apitask/pkg/logx"
)

func TestClientRunCases(t *testing.T) {
	t.Parallel()
	var got runRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"cases":[
			{"case_id":5,"name":"login","passed":true,"status_code":200,"elapsed_ms":12},
			{"case_id":3,"name":"logout","passed":false,"status_code":500,"message":"want 200"}]}`))
	}))
	defer srv.Close()

	c, err := NewClient(Config{URL: srv.URL, Token: "tok"}, logx.Nop())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	res, err := c.RunCases(context.Background(), "Demo", []int64{5, 3})
	if err != nil {
		t.Fatalf("RunCases: %v", err)
	}
	if got.Project != "Demo" || !reflect.DeepEqual(got.CaseIDs, []int64{5, 3}) || got.RunID != res.RunID {
		t.Fatalf("request = %+v, run id %q", got, res.RunID)
	}
	if res.Total != 2 || res.Passed != 1 || res.Failed != 1 || res.OK() {
		t.Fatalf("tally = %+v", res)
	}
	if res.Cases[0].Elapsed != 12*time.Millisecond || res.Cases[1].Message != "want 200" {
		t.Fatalf("cases = %+v", res.Cases)
	}
}

func TestClientEmptyCaseListSkipsCall(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	c, _ := NewClient(Config{URL: srv.URL}, logx.Nop())
	res, err := c.RunCases(context.Background(), "Demo", nil)
	if err != nil || res.Total != 0 || !res.OK() {
		t.Fatalf("RunCases = %+v, %v", res, err)
	}
	if calls.Load() != 0 {
		t.Fatalf("engine called %d times", calls.Load())
	}
}

func TestClientBreakerOpens(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c, _ := NewClient(Config{URL: srv.URL, BreakerFailures: 2, BreakerCooldown: time.Minute}, logx.Nop())
	for i := 0; i < 2; i++ {
		if _, err := c.RunCases(context.Background(), "Demo", []int64{1}); !errors.Is(err, ErrBadResponse) {
			t.Fatalf("call %d err = %v, want ErrBadResponse", i, err)
		}
	}
	if _, err := c.RunCases(context.Background(), "Demo", []int64{1}); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("engine called %d times, want 2", calls.Load())
	}
	if st := c.BreakerStates()["runner"]; st != "open" {
		t.Fatalf("state = %q", st)
	}
}

func TestNewClientRequiresURL(t *testing.T) {
	t.Parallel()
	if _, err := NewClient(Config{}, logx.Nop()); err == nil {
		t.Fatal("expected error for empty url")
	}
}

func TestDryPassesEverything(t *testing.T) {
	t.Parallel()
	res, err := Dry{}.RunCases(context.Background(), "Demo", []int64{7, 8, 9})
	if err != nil {
		t.Fatalf("RunCases: %v", err)
	}
	if res.Total != 3 || res.Passed != 3 || res.Cases[2].CaseID != 9 || res.RunID == "" {
		t.Fatalf("result = %+v", res)
	}
}
