package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"mime"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"

	"github.com/grendelpress/manuscript-vault/internal/config"
	"github.com/grendelpress/manuscript-vault/internal/telemetry"
)

// sendFunc matches smtp.SendMail so tests can capture outgoing messages.
type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPNotifier sends multipart (HTML + text) emails through an SMTP relay.
type SMTPNotifier struct {
	cfg    *config.NotificationsConfig
	appURL string
	send   sendFunc
}

// NewSMTPNotifier creates a notifier for cfg. With smtp.use_tls the connection is
// always encrypted: implicit TLS on 465, STARTTLS otherwise.
func NewSMTPNotifier(cfg *config.NotificationsConfig) *SMTPNotifier {
	n := &SMTPNotifier{
		cfg:    cfg,
		appURL: strings.TrimRight(cfg.AppURL, "/"),
		send:   smtp.SendMail,
	}
	if cfg.SMTP.UseTLS {
		n.send = sendMailTLS
	}
	return n
}

// AccessRequestSubmitted emails the author about a new request.
func (n *SMTPNotifier) AccessRequestSubmitted(ctx context.Context, an AccessRequestNotice) error {
	to := an.To
	if to == "" {
		to = n.cfg.AdminEmail
	}
	if to == "" {
		return fmt.Errorf("no recipient for access request notification")
	}
	author := an.AuthorName
	if author == "" {
		author = "Author"
	}
	return n.deliver(ctx, KindAccessRequest, to,
		fmt.Sprintf("New Access Request for %q", an.BookTitle),
		emailData{
			Heading:        "New Access Request",
			AuthorName:     author,
			BookTitle:      an.BookTitle,
			RequesterName:  an.RequesterName,
			RequesterEmail: an.RequesterEmail,
			When:           formatDateTime(an.RequestedAt),
			Link:           n.appURL + "/admin",
		})
}

// AccessRequestApproved emails the reader their temporary password.
func (n *SMTPNotifier) AccessRequestApproved(ctx context.Context, ap ApprovalNotice) error {
	return n.deliver(ctx, KindApproval, ap.To,
		fmt.Sprintf("Access Approved: %q", ap.BookTitle),
		emailData{
			Heading:    "Access Approved",
			ReaderName: ap.ReaderName,
			BookTitle:  ap.BookTitle,
			Password:   ap.TemporaryPassword,
			When:       formatDate(ap.ExpiresAt),
			Link:       n.bookURL(ap.BookSlug),
		})
}

// TemporaryAccessExpiring reminds the reader to use their password.
func (n *SMTPNotifier) TemporaryAccessExpiring(ctx context.Context, ex ExpiryNotice) error {
	return n.deliver(ctx, KindExpiry, ex.To,
		fmt.Sprintf("Your access to %q expires soon", ex.BookTitle),
		emailData{
			Heading:    "Access Expiring",
			ReaderName: ex.ReaderName,
			BookTitle:  ex.BookTitle,
			When:       formatDateTime(ex.ExpiresAt),
			Link:       n.bookURL(ex.BookSlug),
		})
}

func (n *SMTPNotifier) bookURL(slug string) string {
	return fmt.Sprintf("%s/books/%s", n.appURL, slug)
}

func (n *SMTPNotifier) deliver(ctx context.Context, kind, to, subject string, data emailData) error {
	data.Year = time.Now().Year()
	htmlBody, textBody, err := render(kind, data)
	if err != nil {
		return err
	}
	msg, err := buildMessage(n.cfg.SMTP.From, to, subject, htmlBody, textBody)
	if err != nil {
		return err
	}

	smtpCfg := &n.cfg.SMTP
	addr := net.JoinHostPort(smtpCfg.Host, fmt.Sprintf("%d", smtpCfg.Port))
	var auth smtp.Auth
	if smtpCfg.Username != "" {
		auth = smtp.PlainAuth("", smtpCfg.Username, smtpCfg.Password, smtpCfg.Host)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- n.send(addr, auth, smtpCfg.From, []string{to}, msg) }()

	select {
	case err = <-errCh:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		telemetry.NotificationsFailedTotal.WithLabelValues(kind).Inc()
		return fmt.Errorf("send %s email: %w", kind, err)
	}
	telemetry.NotificationsSentTotal.WithLabelValues(kind).Inc()
	slog.InfoContext(ctx, "notification sent", "kind", kind)
	return nil
}

// buildMessage assembles a multipart/alternative message with a text and an HTML part.
func buildMessage(from, to, subject, htmlBody, textBody string) ([]byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	parts := []struct {
		contentType string
		content     string
	}{
		{"text/plain; charset=utf-8", textBody},
		{"text/html; charset=utf-8", htmlBody},
	}
	for _, p := range parts {
		w, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {p.contentType},
			"Content-Transfer-Encoding": {"8bit"},
		})
		if err != nil {
			return nil, fmt.Errorf("create mime part: %w", err)
		}
		if _, err := w.Write([]byte(p.content)); err != nil {
			return nil, fmt.Errorf("write mime part: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close mime writer: %w", err)
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	msg.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=%s\r\n\r\n", mw.Boundary())
	msg.Write(body.Bytes())
	return msg.Bytes(), nil
}

// sendMailTLS connects via implicit TLS (port 465 / SMTPS) and sends a message.
// When the implicit TLS handshake fails it falls back to smtp.SendMail, which
// upgrades with STARTTLS when the server offers it (port 587).
func sendMailTLS(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("smtp address %q: %w", addr, err)
	}
	tlsConfig := &tls.Config{
		ServerName: host,
		MinVersion: tls.VersionTLS12,
	}

	conn, err := tls.Dial("tcp", addr, tlsConfig)
	if err != nil {
		return smtp.SendMail(addr, auth, from, to, msg)
	}
	defer conn.Close()

	c, err := smtp.NewClient(conn, host)
	if err != nil {
		return fmt.Errorf("smtp new client: %w", err)
	}
	defer c.Quit() //nolint:errcheck

	if auth != nil {
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := c.Mail(from); err != nil {
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp RCPT TO %s: %w", rcpt, err)
		}
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	return w.Close()
}
