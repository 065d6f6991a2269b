// Package email sends notifications over SMTP.
package email

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wneessen/go-mail"

	kit "apitask/internal/transport"
	logx "apitask/pkg/logx"
)

// Config is the SMTP relay. Credentials are per message: the task's sender
// address is the SMTP username and its credential the password.
type Config struct {
	Host    string
	Port    int
	SSL     bool   // implicit TLS (usually port 465)
	TLS     string // "mandatory", "opportunistic" (default) or "none"
	Timeout time.Duration
}

type Sender struct {
	cfg Config
	log logx.Logger
}

func New(cfg Config, log logx.Logger) (*Sender, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, errors.New("smtp host is empty")
	}
	if cfg.Port <= 0 {
		cfg.Port = 587
		if cfg.SSL {
			cfg.Port = 465
		}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Sender{cfg: cfg, log: log}, nil
}

func (s *Sender) Channel() kit.Channel { return kit.ChannelEmail }

func (s *Sender) Send(ctx context.Context, m kit.Message) error {
	msg, err := buildMsg(m)
	if err != nil {
		return kit.Permanent(err)
	}
	c, err := s.client(m.From, m.Credential)
	if err != nil {
		return kit.Permanent(err)
	}
	if err := c.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	s.log.Debug("mail sent", logx.String("from", m.From), logx.Int("rcpt", len(m.To)))
	return nil
}

func (s *Sender) client(user, pass string) (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
		mail.WithTimeout(s.cfg.Timeout),
		mail.WithTLSPolicy(tlsPolicy(s.cfg.TLS)),
	}
	if user != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(user),
			mail.WithPassword(pass),
		)
	}
	if s.cfg.SSL {
		opts = append(opts, mail.WithSSL())
	}
	return mail.NewClient(s.cfg.Host, opts...)
}

func tlsPolicy(v string) mail.TLSPolicy {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "mandatory":
		return mail.TLSMandatory
	case "none":
		return mail.NoTLS
	default:
		return mail.TLSOpportunistic
	}
}

func buildMsg(m kit.Message) (*mail.Msg, error) {
	if len(m.To) == 0 {
		return nil, errors.New("no recipients")
	}
	msg := mail.NewMsg()
	if err := msg.From(m.From); err != nil {
		return nil, fmt.Errorf("from: %w", err)
	}
	if err := msg.To(m.To...); err != nil {
		return nil, fmt.Errorf("to: %w", err)
	}
	msg.Subject(m.Subject)
	msg.SetDate()
	switch {
	case m.HTML != "":
		msg.SetBodyString(mail.TypeTextHTML, m.HTML)
		if m.Text != "" {
			msg.AddAlternativeString(mail.TypeTextPlain, m.Text)
		}
	default:
		msg.SetBodyString(mail.TypeTextPlain, m.Text)
	}
	return msg, nil
}
