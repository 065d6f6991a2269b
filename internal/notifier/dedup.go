package notifier

import (
	"context"
	"fmt"
	"hash/fnv"
	"slices"
	"strings"
	"sync"
	"time"

	kit "apitask/internal/transport"
)

// dedupCache remembers until when a message key is suppressed.
type dedupCache struct {
	mu    sync.Mutex
	until map[string]time.Time
}

func (c *dedupCache) suppressed(key string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	u, ok := c.until[key]
	return ok && now.Before(u)
}

// mark records key and prunes expired entries. Above maxEntries the
// entries closest to expiry go first.
func (c *dedupCache) mark(key string, until, now time.Time, maxEntries int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.until == nil {
		c.until = make(map[string]time.Time)
	}
	c.until[key] = until
	for k, u := range c.until {
		if !now.Before(u) {
			delete(c.until, k)
		}
	}
	if maxEntries <= 0 || len(c.until) <= maxEntries {
		return
	}
	keys := make([]string, 0, len(c.until))
	for k := range c.until {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b string) int { return c.until[a].Compare(c.until[b]) })
	for _, k := range keys[:len(keys)-maxEntries] {
		delete(c.until, k)
	}
}

type dedupMark struct {
	key   string
	until time.Time
}

// claim reports whether key may be sent now and, if so, suppresses it for
// window. With a store the mark also survives a restart.
func (s *Service) claim(ctx context.Context, key string, window time.Duration, maxEntries int, st DedupStore, pch chan<- dedupMark) bool {
	now := time.Now()
	if s.seen.suppressed(key, now) {
		return false
	}
	if st != nil {
		cctx, cancel := context.WithTimeout(ctx, 25*time.Millisecond)
		until, ok, err := st.GetDedup(cctx, key)
		cancel()
		if err == nil && ok && now.Before(until) {
			s.seen.mark(key, until, now, maxEntries)
			return false
		}
	}

	until := now.Add(window)
	s.seen.mark(key, until, now, maxEntries)
	if st != nil && pch != nil {
		select {
		case pch <- dedupMark{key: key, until: until}:
		default:
		}
	}
	return true
}

// persistLoop writes marks off the Notify path.
func (s *Service) persistLoop(ctx context.Context, ch <-chan dedupMark, st DedupStore) {
	for {
		select {
		case <-ctx.Done():
			return
		case w, ok := <-ch:
			if !ok {
				return
			}
			cctx, cancel := context.WithTimeout(ctx, 250*time.Millisecond)
			_ = st.PutDedup(cctx, w.key, w.until)
			cancel()
		}
	}
}

// dedupKey hashes everything that makes two messages the same notification.
func dedupKey(m kit.Message) string {
	h := fnv.New64a()
	for _, part := range []string{
		string(m.Channel), m.From, strings.Join(m.To, ","),
		fmt.Sprintf("%d:%d", m.Chat.ChatID, m.Chat.ThreadID),
		m.Subject, m.Text, m.HTML,
	} {
		_, _ = h.Write([]byte(part))
		_, _ = h.Write([]byte{0})
	}
	return fmt.Sprintf("%x", h.Sum64())
}
