// Package telegram posts run summaries to a Telegram chat through the Bot API.
package telegram

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	kit "apitask/internal/transport"
	logx "apitask/pkg/logx"
)

type Config struct {
	Token    string
	ChatID   int64
	ThreadID int
	APIURL   string // empty means the public Bot API
	Timeout  time.Duration
}

// Sender is send-only: it never polls for updates.
type Sender struct {
	cfg Config
	log logx.Logger
	bot *tele.Bot
}

func New(cfg Config, log logx.Logger) (*Sender, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		URL:     cfg.APIURL,
		Offline: true,
		Client:  &http.Client{Timeout: cfg.Timeout},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Sender{cfg: cfg, log: log, bot: b}, nil
}

func (s *Sender) Channel() kit.Channel { return kit.ChannelTelegram }

func (s *Sender) Send(ctx context.Context, m kit.Message) error {
	to := m.Chat
	if to.IsZero() {
		to = kit.ChatTarget{ChatID: s.cfg.ChatID, ThreadID: s.cfg.ThreadID}
	}
	if to.IsZero() {
		return kit.Permanent(errors.New("telegram chat id is not set"))
	}

	chat := &tele.Chat{ID: to.ChatID}
	for _, chunk := range splitText(m.Text, textLimit, m.ParseMode) {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, err := s.bot.Send(chat, chunk, &tele.SendOptions{
			ParseMode:             tele.ParseMode(m.ParseMode),
			DisableWebPagePreview: true,
			ThreadID:              to.ThreadID,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

const textLimit = 4000

// splitText cuts long messages into chunks Telegram accepts. It prefers newline
// boundaries and, for HTML parse mode, avoids cutting inside a tag.
func splitText(s string, limit int, parseMode string) []string {
	if limit <= 0 {
		limit = textLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := min(start+limit, len(rs))

		if end < len(rs) {
			for i := end - 1; i > start; i-- {
				if rs[i] == '\n' && i-start >= limit/3 {
					end = i + 1
					break
				}
			}
		}

		if strings.EqualFold(parseMode, "HTML") && end < len(rs) {
			open, closed := -1, -1
			for i := start; i < end; i++ {
				switch rs[i] {
				case '<':
					open = i
				case '>':
					closed = i
				}
			}
			if open > closed && open > start+1 {
				end = open
			}
		}

		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}
