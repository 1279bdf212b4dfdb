package approval

import (
	"context"

	"github.com/google/uuid"

	"acquisition_backend/internal/email"
	"acquisition_backend/internal/events"
	"acquisition_backend/platform/logger"
)

// Notifier emails the operator when a request is filed, carrying signed
// one-click approve and reject links.
type Notifier struct {
	sender email.Sender
	signer *LinkSigner
	to     string
	log    *logger.Logger
}

func NewNotifier(sender email.Sender, signer *LinkSigner, operatorEmail string, log *logger.Logger) *Notifier {
	return &Notifier{
		sender: sender,
		signer: signer,
		to:     operatorEmail,
		log:    log.WithComponent("approval-notifier"),
	}
}

// Subscribe attaches the notifier to the event bus.
func (n *Notifier) Subscribe(bus events.Bus) {
	bus.Subscribe(events.ApprovalRequested{}.EventName(), events.HandlerFunc(n.handle))
}

func (n *Notifier) handle(ctx context.Context, e events.Event) error {
	evt, ok := e.(events.ApprovalRequested)
	if !ok {
		return nil
	}
	if n.to == "" {
		n.log.Debug("no operator email configured, skipping approval notification")
		return nil
	}

	requestID, err := uuid.Parse(evt.RequestID)
	if err != nil {
		return err
	}
	approveURL, err := n.signer.ResolveURL(requestID, LinkApprove)
	if err != nil {
		return err
	}
	rejectURL, err := n.signer.ResolveURL(requestID, LinkReject)
	if err != nil {
		return err
	}

	return n.sender.SendApprovalRequest(ctx, n.to, string(evt.Stage), evt.Summary, approveURL, rejectURL)
}
