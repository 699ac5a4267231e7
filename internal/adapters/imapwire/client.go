package imapwire

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/mikey/support-mailer/internal/core"
	"go.uber.org/zap"
)

const (
	dialTimeout  = 30 * time.Second
	replyTimeout = 15 * time.Second
	readChunk    = 8192
)

// Client speaks the tagged retrieval protocol over an encrypted socket. It is
// single-use: Connect once, issue commands, Close.
type Client struct {
	host               string
	port               int
	insecureSkipVerify bool
	logger             *zap.Logger

	conn   net.Conn
	tagSeq int
}

// NewClient creates a protocol client for the given endpoint. Certificate
// verification is on unless insecureSkipVerify is set.
func NewClient(host string, port int, insecureSkipVerify bool, logger *zap.Logger) *Client {
	return &Client{
		host:               host,
		port:               port,
		insecureSkipVerify: insecureSkipVerify,
		logger:             logger,
	}
}

// Connect dials the server, performs the TLS handshake and consumes the
// greeting line.
func (c *Client) Connect(ctx context.Context) error {
	dialer := &net.Dialer{Timeout: dialTimeout}
	raw, err := dialer.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", c.host, c.port))
	if err != nil {
		return &core.ConnectionError{Host: c.host, Err: err}
	}

	tlsConn := tls.Client(raw, &tls.Config{
		ServerName:         c.host,
		InsecureSkipVerify: c.insecureSkipVerify,
	})
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		raw.Close()
		return &core.ConnectionError{Host: c.host, Err: err}
	}
	c.conn = tlsConn

	// Greeting line; servers send it unprompted.
	greeting := make([]byte, 4096)
	c.conn.SetReadDeadline(time.Now().Add(replyTimeout))
	if _, err := c.conn.Read(greeting); err != nil {
		c.conn.Close()
		return &core.ConnectionError{Host: c.host, Err: err}
	}

	return nil
}

// Login authenticates with the server. It fails with ErrAuthentication when
// the response does not affirmatively acknowledge success.
func (c *Client) Login(username, password string) error {
	tag := c.nextTag()
	resp, err := c.command(tag, fmt.Sprintf("LOGIN %s %s", username, password))
	if err != nil {
		return err
	}
	if !IsTaggedOK(resp, tag) {
		return fmt.Errorf("%w: %s", core.ErrAuthentication, snippet(resp))
	}
	return nil
}

// Identify sends the optional client-identification command. Some providers
// require it before allowing FETCH; its failure is ignored by callers.
func (c *Client) Identify(email string) error {
	tag := c.nextTag()
	cmd := fmt.Sprintf(`ID ("name" "SupportMailer" "version" "1.0" "vendor" "Support" "support-email" "%s")`, email)
	resp, err := c.command(tag, cmd)
	if err != nil {
		return err
	}
	c.logger.Debug("Sent client identification", zap.String("response", snippet(resp)))
	return nil
}

// SelectInbox opens INBOX and returns the reported message count.
func (c *Client) SelectInbox() (int, error) {
	tag := c.nextTag()
	resp, err := c.command(tag, "SELECT INBOX")
	if err != nil {
		return 0, err
	}
	return ParseExistsCount(resp), nil
}

// Search returns the ordered identifiers matching the criterion (ALL or UNSEEN).
func (c *Client) Search(criterion string) ([]string, error) {
	tag := c.nextTag()
	resp, err := c.command(tag, "SEARCH "+criterion)
	if err != nil {
		return nil, err
	}
	return ParseSearchIDs(resp), nil
}

// Fetch retrieves the raw message for one identifier. It returns nil with a
// nil error when no literal framing pattern matches; the caller drops that
// message and continues.
func (c *Client) Fetch(id string) ([]byte, error) {
	tag := c.nextTag()
	resp, err := c.command(tag, fmt.Sprintf("FETCH %s RFC822", id))
	if err != nil {
		return nil, err
	}
	literal, ok := ExtractLiteral(resp)
	if !ok {
		c.logger.Warn("Unrecognized fetch framing, dropping message", zap.String("id", id))
		return nil, nil
	}
	return literal, nil
}

// Close attempts a graceful logout but unconditionally closes the socket.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	c.conn.SetDeadline(time.Now().Add(2 * time.Second))
	if _, err := c.conn.Write([]byte(c.nextTag() + " LOGOUT\r\n")); err == nil {
		buf := make([]byte, 1024)
		c.conn.Read(buf)
	}
	return c.conn.Close()
}

// command writes one tagged command and accumulates the response until the
// tag reappears or the reply timeout elapses. Responses are treated as raw
// bytes since wire content may mix encodings.
func (c *Client) command(tag, cmd string) ([]byte, error) {
	if c.conn == nil {
		return nil, &core.ConnectionError{Host: c.host, Err: fmt.Errorf("not connected")}
	}
	if _, err := c.conn.Write([]byte(tag + " " + cmd + "\r\n")); err != nil {
		return nil, &core.ConnectionError{Host: c.host, Err: err}
	}
	return c.readUntilTag(tag)
}

func (c *Client) readUntilTag(tag string) ([]byte, error) {
	deadline := time.Now().Add(replyTimeout)
	var data []byte
	chunk := make([]byte, readChunk)

	for time.Now().Before(deadline) {
		c.conn.SetReadDeadline(deadline)
		n, err := c.conn.Read(chunk)
		if n > 0 {
			data = append(data, chunk[:n]...)
			if ContainsTag(data, tag) {
				break
			}
		}
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				break
			}
			if len(data) > 0 {
				break
			}
			return nil, &core.ConnectionError{Host: c.host, Err: err}
		}
	}

	return data, nil
}

func (c *Client) nextTag() string {
	c.tagSeq++
	return fmt.Sprintf("A%03d", c.tagSeq)
}

func snippet(resp []byte) string {
	const max = 100
	if len(resp) > max {
		resp = resp[:max]
	}
	return string(resp)
}
