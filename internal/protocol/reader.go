package protocol

import (
	"bytes"
	"errors"
	"io"
	"net"
	"strings"
	"time"
)

// ErrReadTimeout is returned when a chunk read exceeds the configured
// per-chunk deadline before a closing tag is observed.
var ErrReadTimeout = errors.New("protocol: read timeout")

// Reader accumulates chunks from a connection until the buffer ends with
// the closing tag matching its own opening element, implementing the
// WAIT_DATA -> ACCUMULATE state transition. It never attempts to fully
// parse the buffer as XML until a closing tag is seen; this keeps the
// hot loop to a cheap suffix check. Whether the tag names a registered
// handler is a dispatch-time concern, not a framing concern.
type Reader struct {
	chunkTimeout time.Duration
}

// NewReader builds a Reader that enforces chunkTimeout between reads.
func NewReader(chunkTimeout time.Duration) *Reader {
	return &Reader{chunkTimeout: chunkTimeout}
}

// ReadFrame reads from conn until a closing tag matching the frame's
// opening element is observed, returning the accumulated bytes. A
// per-chunk deadline is renewed on every read; exceeding it returns
// ErrReadTimeout. A connection closed by the peer before any closing tag
// is seen returns io.EOF if nothing was read yet, or ErrMalformedFrame
// if a partial frame was read.
func (r *Reader) ReadFrame(conn net.Conn) ([]byte, error) {
	var buf bytes.Buffer
	var tag string
	chunk := make([]byte, 4096)

	for {
		if err := conn.SetReadDeadline(time.Now().Add(r.chunkTimeout)); err != nil {
			return nil, err
		}
		n, err := conn.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
			if tag == "" {
				tag = openingTag(buf.Bytes())
			}
			if tag != "" && hasClosingTag(buf.Bytes(), tag) {
				return buf.Bytes(), nil
			}
		}
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return nil, ErrReadTimeout
			}
			if errors.Is(err, io.EOF) {
				if buf.Len() == 0 {
					return nil, io.EOF
				}
				return nil, ErrMalformedFrame
			}
			return nil, err
		}
	}
}

// openingTag extracts the element name of the first tag in b, or "" if
// the buffer does not yet contain one (still waiting on more data).
func openingTag(b []byte) string {
	start := bytes.IndexByte(b, '<')
	if start < 0 {
		return ""
	}
	rest := b[start+1:]
	end := bytes.IndexAny(rest, " \t\r\n>")
	if end < 0 {
		return ""
	}
	name := strings.TrimSpace(string(rest[:end]))
	if name == "" {
		return ""
	}
	return name
}

func hasClosingTag(b []byte, tag string) bool {
	s := strings.TrimRight(string(b), " \t\r\n")
	return strings.HasSuffix(s, "</"+tag+">")
}
