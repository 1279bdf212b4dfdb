package email

import (
	"context"
	"fmt"
	"time"

	imap "github.com/BrianLeishman/go-imap"

	"acquisition_backend/platform/config"
	"acquisition_backend/platform/logger"
	"acquisition_backend/platform/sanitize"
)

// InboundReply is a human reply pulled from the inbox, cleaned of quoted
// text and signatures. The orchestrator correlates it with a lead by
// sender address.
type InboundReply struct {
	UID      int
	From     string
	FromName string
	Subject  string
	Body     string
	Sent     time.Time
}

// IMAPPoller reads unseen inbox messages. Auto-generated mail (bounces,
// out-of-office, share notifications) is marked seen and dropped; human
// replies are returned unseen so a crash before the workflow commits them
// surfaces the same messages on the next poll.
type IMAPPoller struct {
	host     string
	port     int
	username string
	password string
	folder   string
	log      *logger.Logger
}

func NewIMAPPoller(cfg config.IMAPConfig, log *logger.Logger) *IMAPPoller {
	return &IMAPPoller{
		host:     cfg.GetIMAPHost(),
		port:     cfg.GetIMAPPort(),
		username: cfg.GetIMAPUsername(),
		password: cfg.GetIMAPPassword(),
		folder:   cfg.GetIMAPFolder(),
		log:      log.WithComponent("imap"),
	}
}

func (p *IMAPPoller) connect() (*imap.Dialer, error) {
	dialer, err := imap.New(p.username, p.password, p.host, p.port)
	if err != nil {
		return nil, fmt.Errorf("imap connect: %w", err)
	}
	if err := dialer.SelectFolder(p.folder); err != nil {
		_ = dialer.Close()
		return nil, fmt.Errorf("imap select %s: %w", p.folder, err)
	}
	return dialer, nil
}

// FetchUnread returns the unseen human replies in the folder.
func (p *IMAPPoller) FetchUnread(ctx context.Context) ([]InboundReply, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dialer, err := p.connect()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := dialer.Close(); err != nil {
			p.log.Warn("imap close failed", "error", err)
		}
	}()

	uids, err := dialer.GetUIDs("UNSEEN")
	if err != nil {
		return nil, fmt.Errorf("imap search unseen: %w", err)
	}
	if len(uids) == 0 {
		return nil, nil
	}

	emails, err := dialer.GetEmails(uids...)
	if err != nil {
		return nil, fmt.Errorf("imap fetch: %w", err)
	}

	replies := make([]InboundReply, 0, len(emails))
	for uid, msg := range emails {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		fromAddr, fromName := firstAddress(msg.From)
		if fromAddr == "" {
			continue
		}

		if IsAutoReply(fromAddr, msg.Subject, msg.Text) {
			p.log.Debug("skipping automated message", "from", fromAddr, "subject", msg.Subject)
			if err := dialer.MarkSeen(uid); err != nil {
				p.log.Warn("imap mark seen failed", "uid", uid, "error", err)
			}
			continue
		}

		body := ExtractReply(sanitize.Text(msg.Text))
		if body == "" {
			continue
		}

		replies = append(replies, InboundReply{
			UID:      uid,
			From:     fromAddr,
			FromName: fromName,
			Subject:  msg.Subject,
			Body:     body,
			Sent:     msg.Sent,
		})
	}

	return replies, nil
}

// MarkProcessed flags messages as seen once their replies are committed.
func (p *IMAPPoller) MarkProcessed(ctx context.Context, uids ...int) error {
	if len(uids) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	dialer, err := p.connect()
	if err != nil {
		return err
	}
	defer func() {
		if err := dialer.Close(); err != nil {
			p.log.Warn("imap close failed", "error", err)
		}
	}()

	for _, uid := range uids {
		if err := dialer.MarkSeen(uid); err != nil {
			return fmt.Errorf("imap mark seen %d: %w", uid, err)
		}
	}
	return nil
}

func firstAddress(addrs imap.EmailAddresses) (string, string) {
	for addr, name := range addrs {
		return addr, name
	}
	return "", ""
}
