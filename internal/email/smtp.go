package email

import (
	"context"
	"fmt"
	"net"
	"time"

	gomail "github.com/wneessen/go-mail"

	"acquisition_backend/platform/config"
)

// SMTPSender implements Sender over a direct SMTP connection via go-mail.
type SMTPSender struct {
	host      string
	port      int
	username  string
	password  string
	fromName  string
	fromEmail string
}

// NewSMTPSender creates a sender from the SMTP configuration.
func NewSMTPSender(cfg config.SMTPConfig) *SMTPSender {
	return &SMTPSender{
		host:      cfg.GetSMTPHost(),
		port:      cfg.GetSMTPPort(),
		username:  cfg.GetSMTPUsername(),
		password:  cfg.GetSMTPPassword(),
		fromName:  cfg.GetEmailFromName(),
		fromEmail: cfg.GetEmailFromAddress(),
	}
}

func (s *SMTPSender) send(ctx context.Context, toEmail, toName, subject, body string, contentType gomail.ContentType) error {
	msg := gomail.NewMsg()
	if err := msg.FromFormat(s.fromName, s.fromEmail); err != nil {
		return fmt.Errorf("smtp from: %w", err)
	}
	if toName != "" {
		if err := msg.AddToFormat(toName, toEmail); err != nil {
			return fmt.Errorf("smtp to: %w", err)
		}
	} else if err := msg.To(toEmail); err != nil {
		return fmt.Errorf("smtp to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(contentType, body)

	client, err := gomail.NewClient(s.host,
		gomail.WithPort(s.port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(s.username),
		gomail.WithPassword(s.password),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15*time.Second),
		gomail.WithDialContextFunc(func(dctx context.Context, _ string, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(dctx, "tcp4", addr)
		}),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}

	return nil
}

// SendOutreach delivers the approved draft verbatim as plain text. The
// draft is the message; no template wraps it.
func (s *SMTPSender) SendOutreach(ctx context.Context, toEmail, toName, subject, body string) error {
	return s.send(ctx, toEmail, toName, subject, body, gomail.TypeTextPlain)
}

func (s *SMTPSender) SendApprovalRequest(ctx context.Context, toEmail, stage, summary, approveURL, rejectURL string) error {
	content, err := renderEmailTemplate("approval_request.html", approvalRequestEmailData{
		baseEmailData: baseEmailData{
			Title:   "Approval needed",
			Heading: "A lead is waiting on you",
		},
		Stage:      stage,
		Summary:    summary,
		ApproveURL: approveURL,
		RejectURL:  rejectURL,
	})
	if err != nil {
		return err
	}
	return s.send(ctx, toEmail, "", "Approval needed: "+stage, content, gomail.TypeTextHTML)
}

func (s *SMTPSender) SendSchedulingFollowUp(ctx context.Context, toEmail, toName string) error {
	content, err := renderEmailTemplate("follow_up.html", followUpEmailData{
		baseEmailData: baseEmailData{
			Title:   "Finding a time",
			Heading: "Thanks for getting back to us",
		},
		Name: toName,
	})
	if err != nil {
		return err
	}
	return s.send(ctx, toEmail, toName, "Re: finding a time that works", content, gomail.TypeTextHTML)
}

func (s *SMTPSender) SendMeetingConfirmation(ctx context.Context, toEmail, toName string, start, end time.Time) error {
	content, err := renderEmailTemplate("meeting_confirmation.html", meetingConfirmationEmailData{
		baseEmailData: baseEmailData{
			Title:   "Meeting confirmed",
			Heading: "Your meeting is booked",
		},
		Name:  toName,
		Date:  start.Format("Monday, January 2"),
		Start: start.Format("15:04 MST"),
		End:   end.Format("15:04 MST"),
	})
	if err != nil {
		return err
	}
	return s.send(ctx, toEmail, toName, "Your meeting is confirmed", content, gomail.TypeTextHTML)
}

var _ Sender = (*SMTPSender)(nil)
