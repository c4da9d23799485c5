package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"html/template"
	"strings"

	mail "github.com/go-mail/mail"
)

// OwnerAuthorizationMail carries everything needed to render the
// owner-approval request. The authorize URL embeds the one-time raw token;
// this is the only place the raw token ever leaves the process.
type OwnerAuthorizationMail struct {
	To              string
	OwnerName       string
	TenantName      string
	PropertyAddress string
	AuthorizeURL    string
}

// Sender delivers transactional mail. Delivery failure is non-fatal to the
// operations that trigger it; callers log and continue.
type Sender interface {
	SendOwnerAuthorization(ctx context.Context, m OwnerAuthorizationMail) error
}

var ownerAuthTmpl = template.Must(template.New("owner_authorization").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h1 style="color:#3b82f6;">Novy</h1>
  <p>Hello {{if .OwnerName}}{{.OwnerName}}{{else}}Property Owner{{end}},</p>
  <p>Your tenant, <strong>{{.TenantName}}</strong>, has requested to list the following property for lease transfer on Novy:</p>
  <p><strong>{{.PropertyAddress}}</strong></p>
  <p>As the property owner/manager, your authorization is required before this listing can go live.</p>
  <p><strong>Important:</strong> this authorization link can only be used once and expires in 7 days.</p>
  <p><a href="{{.AuthorizeURL}}">Review &amp; Authorize Listing</a></p>
  <p style="font-size:12px;color:#64748b;">If the button does not work, copy this link: {{.AuthorizeURL}}</p>
  <p style="font-size:12px;color:#94a3b8;">Novy is a lease-transfer marketplace. We are not a real estate broker and do not negotiate rent.</p>
</body>
</html>`))

// SMTPSender implements Sender over SMTP.
type SMTPSender struct {
	Host               string
	Port               int
	From               string
	User               string
	Pass               string
	InsecureSkipVerify bool
}

// NewSMTPSender creates an SMTP sender with STARTTLS negotiation.
func NewSMTPSender(host string, port int, from, user, pass string) *SMTPSender {
	return &SMTPSender{Host: host, Port: port, From: from, User: user, Pass: pass}
}

var _ Sender = (*SMTPSender)(nil)

// SendOwnerAuthorization renders and sends the owner approval request.
func (s *SMTPSender) SendOwnerAuthorization(ctx context.Context, m OwnerAuthorizationMail) error {
	if strings.TrimSpace(m.To) == "" {
		return fmt.Errorf("owner email is required")
	}

	var html bytes.Buffer
	if err := ownerAuthTmpl.Execute(&html, m); err != nil {
		return fmt.Errorf("render email: %w", err)
	}
	text := fmt.Sprintf(
		"Your tenant %s has requested authorization to list %s for lease transfer on Novy.\n"+
			"Review and decide (one-time link, expires in 7 days): %s\n",
		m.TenantName, m.PropertyAddress, m.AuthorizeURL)

	msg := mail.NewMessage()
	msg.SetHeader("From", s.From)
	msg.SetHeader("To", m.To)
	msg.SetHeader("Subject", "Lease Transfer Authorization Request - "+m.PropertyAddress)
	msg.SetBody("text/plain", text)
	msg.AddAlternative("text/html", html.String())

	d := mail.NewDialer(s.Host, s.Port, s.User, s.Pass)
	d.TLSConfig = &tls.Config{
		ServerName:         s.Host,
		InsecureSkipVerify: s.InsecureSkipVerify,
	}

	done := make(chan error, 1)
	go func() { done <- d.DialAndSend(msg) }()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send: %w", err)
		}
		return nil
	}
}
