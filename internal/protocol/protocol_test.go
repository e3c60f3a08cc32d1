package protocol

import (
	"net"
	"testing"
	"time"
)

func TestParseFrameRoundTrip(t *testing.T) {
	raw := []byte(`<search format="json">{"a":"b &amp; c"}</search>`)
	f, err := ParseFrame(raw)
	if err != nil {
		t.Fatalf("ParseFrame: %v", err)
	}
	if f.Class != "search" || f.Format != FormatJSON {
		t.Fatalf("unexpected frame: %+v", f)
	}
	if f.Payload != `{"a":"b & c"}` {
		t.Fatalf("expected entity-unescaped payload, got %q", f.Payload)
	}
}

func TestParseFrameDefaultsFormatToText(t *testing.T) {
	f, err := ParseFrame([]byte(`<ping>hello</ping>`))
	if err != nil {
		t.Fatalf("ParseFrame: %v", err)
	}
	if f.Format != FormatText {
		t.Fatalf("expected default format text, got %q", f.Format)
	}
}

func TestParseFrameRejectsMalformed(t *testing.T) {
	cases := [][]byte{
		[]byte(`<search format="json">{not json</search>`),
		[]byte(`not even xml`),
		[]byte(`<search>payload</ping>`),
	}
	for _, c := range cases {
		if _, err := ParseFrame(c); err == nil {
			t.Fatalf("expected malformed frame error for %q", c)
		}
	}
}

func TestDecodePayloadBase64(t *testing.T) {
	f := &Frame{Format: FormatBase64, Payload: "aGVsbG8="}
	decoded, err := DecodePayload(f)
	if err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if decoded != "hello" {
		t.Fatalf("got %q, want hello", decoded)
	}
}

func TestEncodeReplyEscapesPayload(t *testing.T) {
	reply := EncodeReply("search", []byte(`{"a":"<b>"}`))
	f, err := ParseFrame(reply)
	if err != nil {
		t.Fatalf("ParseFrame(EncodeReply(...)): %v", err)
	}
	if f.Payload != `{"a":"<b>"}` {
		t.Fatalf("round trip mismatch, got %q", f.Payload)
	}
}

func TestReaderAccumulatesUntilClosingTag(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	r := NewReader(2 * time.Second)

	done := make(chan struct{})
	var gotErr error
	var got []byte
	go func() {
		got, gotErr = r.ReadFrame(serverConn)
		close(done)
	}()

	clientConn.Write([]byte(`<search format="json">{"a":`))
	clientConn.Write([]byte(`1}</search>`))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for ReadFrame")
	}

	if gotErr != nil {
		t.Fatalf("ReadFrame: %v", gotErr)
	}
	if string(got) != `<search format="json">{"a":1}</search>` {
		t.Fatalf("unexpected accumulated frame: %q", got)
	}
}

func TestReaderTimesOutOnIdleConnection(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	r := NewReader(50 * time.Millisecond)

	errCh := make(chan error, 1)
	go func() {
		_, err := r.ReadFrame(serverConn)
		errCh <- err
	}()

	select {
	case err := <-errCh:
		if err != ErrReadTimeout {
			t.Fatalf("expected ErrReadTimeout, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for ReadFrame to time out")
	}
}
