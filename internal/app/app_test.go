package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"apitask/internal/catalog"
	"apitask/internal/config"
	"apitask/internal/task/engine"
	logx "apitask/pkg/logx"
)

func seedCatalog(t *testing.T, path string) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	if err := catalog.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := catalog.Seed(context.Background(), db, catalog.SeedProject{
		Name: "demo",
		Sets: []catalog.SeedSet{{Num: 1, Name: "smoke", Cases: []catalog.SeedCase{
			{Num: 1, Name: "login"},
			{Num: 2, Name: "logout"},
		}}},
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	sqlDB, _ := db.DB()
	_ = sqlDB.Close()
}

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	catalogPath := filepath.Join(dir, "catalog.db")
	seedCatalog(t, catalogPath)
	body := fmt.Sprintf(`
logging:
  level: error
http:
  addr: 127.0.0.1:0
storage:
  path: %s
catalog:
  dsn: %s
runner:
  mode: dry
`, filepath.Join(dir, "apitask.db"), catalogPath)
	p := filepath.Join(dir, "apitask.yaml")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

type apiClient struct {
	t    *testing.T
	base string
}

func (c apiClient) call(method, path, body string) (int, json.RawMessage) {
	c.t.Helper()
	req, err := http.NewRequest(method, c.base+path, strings.NewReader(body))
	if err != nil {
		c.t.Fatalf("request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	_ = json.Unmarshal(raw, &env)
	return resp.StatusCode, env.Data
}

func startApp(t *testing.T, cfgPath string) (*App, apiClient) {
	t.Helper()
	a, err := New(cfgPath)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return a, apiClient{t: t, base: "http://" + a.Addr()}
}

func stopApp(t *testing.T, a *App) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.Stop(ctx, StopSIGTERM); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestAppServesAndRestoresJobs(t *testing.T) {
	cfgPath := writeConfig(t, t.TempDir())

	a, api := startApp(t, cfgPath)
	code, data := api.call(http.MethodPost, "/tasks", `{"name":"nightly","project_name":"demo","schedule":"0 0 1 * * *"}`)
	if code != http.StatusCreated {
		t.Fatalf("create status = %d", code)
	}
	var created struct {
		ID int64 `json:"id"`
	}
	_ = json.Unmarshal(data, &created)

	if code, _ := api.call(http.MethodPost, fmt.Sprintf("/tasks/%d/start", created.ID), ""); code != http.StatusOK {
		t.Fatalf("start status = %d", code)
	}
	code, data = api.call(http.MethodPost, fmt.Sprintf("/tasks/%d/run", created.ID), "")
	if code != http.StatusOK || !strings.Contains(string(data), "report_id") {
		t.Fatalf("run: %d %s", code, data)
	}
	stopApp(t, a)

	// A fresh process restores the running task's job from storage.
	b, api := startApp(t, cfgPath)
	defer stopApp(t, b)
	code, data = api.call(http.MethodGet, fmt.Sprintf("/tasks/%d", created.ID), "")
	if code != http.StatusOK {
		t.Fatalf("get status = %d", code)
	}
	var got struct {
		Status string `json:"status"`
		Job    *struct {
			NextFireAt *time.Time `json:"next_fire_at"`
		} `json:"job"`
	}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Status != "running" || got.Job == nil || got.Job.NextFireAt == nil {
		t.Fatalf("restored task = %s", data)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	t.Parallel()
	p := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(p, []byte("storage:\n  path: a.db\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := New(p); err == nil || !strings.Contains(err.Error(), "catalog.dsn") {
		t.Fatalf("err = %v, want catalog.dsn error", err)
	}
}

func TestMapSchedulerOverlap(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want engine.OverlapPolicy
	}{
		{"", engine.OverlapSkipIfRunning},
		{"skip", engine.OverlapSkipIfRunning},
		{"Allow", engine.OverlapAllow},
	}
	for _, tt := range tests {
		sc, err := mapSchedulerConfig(&config.Config{Scheduler: config.SchedulerConfig{Overlap: tt.in, RunTimeout: "5m"}})
		if err != nil {
			t.Fatalf("overlap %q: %v", tt.in, err)
		}
		if sc.Overlap != tt.want || sc.RunTimeout != 5*time.Minute {
			t.Fatalf("overlap %q => %+v", tt.in, sc)
		}
	}
}

func TestMapNotifierDefaults(t *testing.T) {
	t.Parallel()
	nc, err := mapNotifierConfig(&config.Config{})
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	if !nc.Enabled || nc.RetryMax != 3 || nc.DedupWindow != time.Minute {
		t.Fatalf("defaults = %+v", nc)
	}
	if _, err := mapNotifierConfig(&config.Config{Notifier: &config.NotifierConfig{RetryBase: "x"}}); err == nil {
		t.Fatal("bad duration must fail")
	}
}

func TestNewSendersFromConfig(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		SMTP:     &config.SMTPConfig{Host: "smtp.example.com"},
		Telegram: &config.TelegramConfig{Enabled: true, Token: "123:abc", ChatID: 42},
	}
	senders, err := newSenders(cfg, logx.Nop())
	if err != nil {
		t.Fatalf("newSenders: %v", err)
	}
	if len(senders) != 2 || senders[0].Channel() != "email" || senders[1].Channel() != "telegram" {
		t.Fatalf("senders = %v", senders)
	}
}
