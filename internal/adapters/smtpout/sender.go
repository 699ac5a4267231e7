package smtpout

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/mikey/support-mailer/internal/core"
	"go.uber.org/zap"
)

const (
	dialTimeout    = 10 * time.Second
	sessionTimeout = 30 * time.Second
)

// Sender submits a single reply message through the account's submission
// server. Implicit-TLS accounts get a TLS dial; everything else dials
// plaintext and upgrades via STARTTLS before authenticating.
type Sender struct {
	logger *zap.Logger
}

// NewSender creates an outbound sender.
func NewSender(logger *zap.Logger) *Sender {
	return &Sender{logger: logger}
}

// Send builds a UTF-8 plain-text message, authenticates, submits to exactly
// one recipient and always terminates the session before returning. The
// returned token is the transport acknowledgment.
func (s *Sender) Send(ctx context.Context, account *core.MailAccount, to, subject, body string) (string, error) {
	addr := fmt.Sprintf("%s:%d", account.SMTPHost, account.SMTPPort)

	dialer := &net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return "", &core.ConnectionError{Host: account.SMTPHost, Err: err}
	}
	if err := conn.SetDeadline(time.Now().Add(sessionTimeout)); err != nil {
		conn.Close()
		return "", &core.ConnectionError{Host: account.SMTPHost, Err: err}
	}

	tlsConfig := &tls.Config{ServerName: account.SMTPHost}
	var c *smtp.Client
	if account.UseSSL {
		conn = tls.Client(conn, tlsConfig)
		c = smtp.NewClient(conn)
		if err := c.Hello("localhost"); err != nil {
			c.Close()
			return "", &core.ConnectionError{Host: account.SMTPHost, Err: err}
		}
	} else {
		c, err = smtp.NewClientStartTLS(conn, tlsConfig)
		if err != nil {
			return "", &core.ConnectionError{Host: account.SMTPHost, Err: err}
		}
	}
	defer c.Close()

	auth := sasl.NewPlainClient("", account.Username, account.Password)
	if err := c.Auth(auth); err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrAuthentication, err)
	}

	if err := s.submit(c, account.Username, to, subject, body); err != nil {
		// The session is still terminated; Quit failure on a broken
		// connection is irrelevant at this point.
		c.Quit()
		return "", err
	}

	if err := c.Quit(); err != nil {
		s.logger.Warn("QUIT after send failed", zap.Error(err))
	}

	s.logger.Info("Reply sent",
		zap.String("to", to),
		zap.String("subject", subject))
	return "250 OK", nil
}

func (s *Sender) submit(c *smtp.Client, from, to, subject, body string) error {
	if err := c.Mail(from, nil); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}
	if err := c.Rcpt(to, nil); err != nil {
		return fmt.Errorf("RCPT TO failed: %w", err)
	}

	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("DATA command failed: %w", err)
	}
	if _, err := wc.Write([]byte(buildMessage(from, to, subject, body))); err != nil {
		wc.Close()
		return fmt.Errorf("failed to write message data: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to finish message data: %w", err)
	}
	return nil
}

// buildMessage assembles a minimal single-part message with a UTF-8 body.
func buildMessage(from, to, subject, body string) string {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	b.WriteString("\r\n")
	return b.String()
}
