package requests

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"municipalrecords-backend/services/requests/db"

	"github.com/jordan-wright/email"
	"go.opentelemetry.io/otel/codes"
)

type SmtpConfig struct {
	Server       string
	Port         int
	EmailAddress string
	Password     string
}

// Notifier sends requestors their status emails. It is optional
// wiring: a nil Notifier on the worker disables all mail.
type Notifier struct {
	smtp SmtpConfig
}

func NewNotifier(config SmtpConfig) *Notifier {
	return &Notifier{smtp: config}
}

func (n *Notifier) SubmissionConfirmed(ctx context.Context, request db.Request, confirmation string) error {
	body := fmt.Sprintf(`Hi %s,

Your records request has been submitted to the Phoenix Police Department.

Confirmation number: %s

We will email you again once the records are ready. Most requests are
fulfilled within 10 business days.`, request.FirstName, confirmation)

	return n.send(ctx, request.Email, "Your records request has been submitted", body)
}

func (n *Notifier) RecordsReady(ctx context.Context, request db.Request) error {
	body := fmt.Sprintf(`Hi %s,

The Phoenix Police Department reports your requested records are ready.

Confirmation number: %s

Follow the instructions on the Phoenix PD public records portal to
retrieve them.`, request.FirstName, request.Confirmation)

	return n.send(ctx, request.Email, "Your requested records are ready", body)
}

func (n *Notifier) send(ctx context.Context, to, subject, body string) error {
	ctx, span := tracer.Start(ctx, "notifier.send")
	defer span.End()

	if to == "" {
		return nil
	}

	mail := email.NewEmail()
	mail.From = fmt.Sprintf("Municipal Records <%s>", n.smtp.EmailAddress)
	mail.To = []string{to}
	mail.Subject = subject
	mail.Text = []byte(body)

	addr := fmt.Sprintf("%s:%d", n.smtp.Server, n.smtp.Port)
	err := mail.Send(
		addr,
		smtp.PlainAuth("", n.smtp.EmailAddress, n.smtp.Password, n.smtp.Server),
	)
	if err != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = mail.Send(addr, nil)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send email")
		return err
	}
	return nil
}
