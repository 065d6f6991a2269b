package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"apitask/internal/eventbus"
	kit "apitask/internal/transport"
	logx "apitask/pkg/logx"
)

type fakeSender struct {
	ch kit.Channel

	mu    sync.Mutex
	fails int // remaining failures before success
	perm  bool
	sent  []kit.Message
	calls int
}

func (f *fakeSender) Channel() kit.Channel { return f.ch }

func (f *fakeSender) Send(ctx context.Context, m kit.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.perm {
		return kit.Permanent(errors.New("bad address"))
	}
	if f.fails > 0 {
		f.fails--
		return errors.New("smtp 451 try later")
	}
	f.sent = append(f.sent, m)
	return nil
}

func (f *fakeSender) snapshot() (calls, sent int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls, len(f.sent)
}

type memDedup struct {
	mu sync.Mutex
	m  map[string]time.Time
}

func (d *memDedup) GetDedup(ctx context.Context, key string) (time.Time, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.m[key]
	return u, ok, nil
}

func (d *memDedup) PutDedup(ctx context.Context, key string, until time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.m[key] = until
	return nil
}

func testConfig() Config {
	return Config{
		Enabled:    true,
		Workers:    1,
		RatePerSec: 1000,
		RetryMax:   3,
		RetryBase:  time.Millisecond,
	}
}

func waitEvent(t *testing.T, ch <-chan eventbus.Event, typ string) eventbus.Event {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case e := <-ch:
			if e.Type == typ {
				return e
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", typ)
		}
	}
}

func TestNotifyRetriesTransientFailures(t *testing.T) {
	t.Parallel()
	snd := &fakeSender{ch: kit.ChannelEmail, fails: 2}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()

	s := New(testConfig(), []kit.Sender{snd}, logx.Nop(), bus, nil)
	s.Start(context.Background())
	defer s.Stop(context.Background())

	m := kit.Message{Channel: kit.ChannelEmail, From: "qa@example.com", To: []string{"a@example.com"}, Subject: "report"}
	if err := s.Notify(context.Background(), m); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	waitEvent(t, events, eventbus.NotifierSent)
	if calls, sent := snd.snapshot(); calls != 3 || sent != 1 {
		t.Fatalf("calls=%d sent=%d, want 3/1", calls, sent)
	}
	h := s.Snapshot()
	if len(h) != 1 || h[0].Subject != "report" || h[0].Error != "" {
		t.Fatalf("history = %+v", h)
	}
}

func TestNotifyPermanentFailureIsNotRetried(t *testing.T) {
	t.Parallel()
	snd := &fakeSender{ch: kit.ChannelEmail, perm: true}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()

	s := New(testConfig(), []kit.Sender{snd}, logx.Nop(), bus, nil)
	s.Start(context.Background())
	defer s.Stop(context.Background())

	if err := s.Notify(context.Background(), kit.Message{Channel: kit.ChannelEmail, Text: "x"}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	e := waitEvent(t, events, eventbus.NotifierFailed)
	if ev := e.Data.(NotificationEvent); ev.Error != "bad address" {
		t.Fatalf("event = %+v", ev)
	}
	if calls, _ := snd.snapshot(); calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestNotifyDedupWindow(t *testing.T) {
	t.Parallel()
	snd := &fakeSender{ch: kit.ChannelTelegram}
	store := &memDedup{m: map[string]time.Time{}}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()

	cfg := testConfig()
	cfg.DedupWindow = time.Minute
	cfg.PersistDedup = true
	s := New(cfg, []kit.Sender{snd}, logx.Nop(), bus, store)
	s.Start(context.Background())

	m := kit.Message{Channel: kit.ChannelTelegram, Text: "[PASS] nightly"}
	for i := 0; i < 2; i++ {
		if err := s.Notify(context.Background(), m); err != nil {
			t.Fatalf("Notify %d: %v", i, err)
		}
	}
	waitEvent(t, events, eventbus.NotifierDeduped)
	s.Stop(context.Background())

	if _, sent := snd.snapshot(); sent != 1 {
		t.Fatalf("sent = %d, want 1", sent)
	}
	// The persisted mark suppresses the same message after a restart.
	s2 := New(cfg, []kit.Sender{snd}, logx.Nop(), bus, store)
	s2.Start(context.Background())
	defer s2.Stop(context.Background())
	if err := s2.Notify(context.Background(), m); err != nil {
		t.Fatalf("Notify after restart: %v", err)
	}
	waitEvent(t, events, eventbus.NotifierDeduped)
}

func TestNotifyRejects(t *testing.T) {
	t.Parallel()
	snd := &fakeSender{ch: kit.ChannelEmail}

	off := New(Config{}, []kit.Sender{snd}, logx.Nop(), nil, nil)
	if err := off.Notify(context.Background(), kit.Message{Channel: kit.ChannelEmail}); !errors.Is(err, ErrDisabled) {
		t.Fatalf("disabled err = %v", err)
	}

	s := New(testConfig(), []kit.Sender{snd}, logx.Nop(), nil, nil)
	if err := s.Notify(context.Background(), kit.Message{Channel: kit.ChannelEmail}); !errors.Is(err, ErrStopped) {
		t.Fatalf("not started err = %v", err)
	}
	if err := s.Notify(context.Background(), kit.Message{Channel: kit.ChannelTelegram}); !errors.Is(err, ErrUnknownChannel) {
		t.Fatalf("unknown channel err = %v", err)
	}
	if !s.HasChannel(kit.ChannelEmail) || s.HasChannel(kit.ChannelTelegram) {
		t.Fatal("HasChannel mismatch")
	}
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	t.Parallel()
	snd := &fakeSender{ch: kit.ChannelEmail, fails: 100}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(64)
	defer unsub()

	cfg := testConfig()
	cfg.RetryMax = 0
	cfg.BreakerFailures = 2
	cfg.BreakerCooldown = time.Minute
	s := New(cfg, []kit.Sender{snd}, logx.Nop(), bus, nil)
	s.Start(context.Background())
	defer s.Stop(context.Background())

	for i := 0; i < 3; i++ {
		m := kit.Message{Channel: kit.ChannelEmail, Subject: string(rune('a' + i))}
		if err := s.Notify(context.Background(), m); err != nil {
			t.Fatalf("Notify: %v", err)
		}
		waitEvent(t, events, eventbus.NotifierFailed)
	}
	if calls, _ := snd.snapshot(); calls != 2 {
		t.Fatalf("calls = %d, want 2 (third rejected by open breaker)", calls)
	}
	if st := s.BreakerStates()[string(kit.ChannelEmail)]; st != "open" {
		t.Fatalf("breaker = %q", st)
	}
}

func TestDedupCacheEvictsClosestToExpiry(t *testing.T) {
	t.Parallel()
	var c dedupCache
	now := time.Now()
	c.mark("a", now.Add(1*time.Minute), now, 2)
	c.mark("b", now.Add(3*time.Minute), now, 2)
	c.mark("c", now.Add(2*time.Minute), now, 2)

	if c.suppressed("a", now) {
		t.Fatal("a expires first and should have been evicted")
	}
	if !c.suppressed("b", now) || !c.suppressed("c", now) {
		t.Fatal("b and c should still be suppressed")
	}
	if c.suppressed("b", now.Add(4*time.Minute)) {
		t.Fatal("b should not be suppressed after its window")
	}

	// Expired entries go on the next mark.
	later := now.Add(150 * time.Second)
	c.mark("d", later.Add(time.Minute), later, 10)
	if _, ok := c.until["c"]; ok {
		t.Fatal("expired entry c should be pruned")
	}
}
