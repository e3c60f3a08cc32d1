// Package client implements a small client for the framed TCP protocol.
// A failed send is retried with exponential backoff up to a configured
// number of retries.
package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"

	"shardindex/internal/protocol"
)

// Config configures a Client's connection and retry behavior.
type Config struct {
	Host string
	Port int

	// MaxRetries bounds the number of retries after the first failed
	// attempt, so a send makes at most MaxRetries+1 attempts.
	MaxRetries int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns sane defaults for local development.
func DefaultConfig(host string, port int) Config {
	return Config{
		Host:         host,
		Port:         port,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
}

// Client sends framed requests and reads the single framed reply.
type Client struct {
	cfg Config
}

// New constructs a Client.
func New(cfg Config) *Client {
	return &Client{cfg: cfg}
}

// Send transmits one request of the given class, format, and payload,
// retrying the whole send-and-receive attempt on failure with
// exponential backoff, and returns the decoded reply frame.
func (c *Client) Send(ctx context.Context, class string, format protocol.Format, payload string) (*protocol.Frame, error) {
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(c.cfg.MaxRetries)), ctx)

	var reply *protocol.Frame
	op := func() error {
		f, err := c.sendOnce(ctx, class, format, payload)
		if err != nil {
			return err
		}
		reply = f
		return nil
	}

	if err := backoff.Retry(op, bo); err != nil {
		return nil, fmt.Errorf("client: send failed after retries: %w", err)
	}
	return reply, nil
}

func (c *Client) sendOnce(ctx context.Context, class string, format protocol.Format, payload string) (*protocol.Frame, error) {
	addr := fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port)

	dialer := net.Dialer{Timeout: c.cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", addr, err)
	}
	defer conn.Close()

	request := buildRequest(class, format, encodePayload(format, payload))

	if err := conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
		return nil, err
	}
	if _, err := conn.Write(request); err != nil {
		return nil, fmt.Errorf("client: write request: %w", err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout)); err != nil {
		return nil, err
	}
	raw, err := io.ReadAll(conn)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("client: read reply: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("client: connection closed with no reply")
	}

	frame, err := protocol.ParseFrame(raw)
	if err != nil {
		return nil, fmt.Errorf("client: parse reply: %w", err)
	}
	return frame, nil
}

func encodePayload(format protocol.Format, payload string) string {
	if format == protocol.FormatBase64 {
		return base64.StdEncoding.EncodeToString([]byte(payload))
	}
	return payload
}

func buildRequest(class string, format protocol.Format, payload string) []byte {
	var buf bytes.Buffer
	buf.WriteByte('<')
	buf.WriteString(class)
	buf.WriteString(` format="`)
	buf.WriteString(string(format))
	buf.WriteString(`">`)
	xml.EscapeText(&buf, []byte(payload))
	buf.WriteString("</")
	buf.WriteString(class)
	buf.WriteByte('>')
	return buf.Bytes()
}

// SendSearch is a convenience wrapper that sends a search request with a
// JSON payload.
func (c *Client) SendSearch(ctx context.Context, payloadJSON string) (*protocol.Frame, error) {
	return c.Send(ctx, "search", protocol.FormatJSON, payloadJSON)
}

// Ping sends a ping request and returns true if the reply's response
// field is "alive".
func (c *Client) Ping(ctx context.Context) (bool, error) {
	frame, err := c.Send(ctx, "ping", protocol.FormatText, "")
	if err != nil {
		return false, err
	}
	var body struct {
		Response string `json:"response"`
	}
	if err := json.Unmarshal([]byte(frame.Payload), &body); err != nil {
		return false, fmt.Errorf("client: parse ping reply: %w", err)
	}
	return body.Response == "alive", nil
}
