// Package protocol implements the XML-framed request/reply wire format:
// <CLASS format="FMT">PAYLOAD</CLASS>. CLASS selects a handler, FMT names
// the payload encoding, and the reply reuses CLASS with a JSON document
// as its body.
package protocol

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"encoding/xml"
	"fmt"
)

// Format is the payload encoding named by a frame's format attribute.
type Format string

const (
	FormatText   Format = "text"
	FormatJSON   Format = "json"
	FormatBase64 Format = "base64"
)

// Frame is one decoded request: the handler class, its declared payload
// format, and the raw (already XML-unescaped) payload text.
type Frame struct {
	Class   string
	Format  Format
	Payload string
}

// ErrMalformedFrame is returned when a frame's bytes do not parse as a
// single well-formed <CLASS format="FMT">PAYLOAD</CLASS> element, or when
// a json-format frame's payload is not valid JSON.
var ErrMalformedFrame = fmt.Errorf("protocol: malformed frame")

// ParseFrame decodes data into a Frame. XML entity escapes in the
// payload are unescaped by the decoder as part of normal XML character
// data handling. A json-format payload must be a valid JSON document.
func ParseFrame(data []byte) (*Frame, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))

	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		class := start.Name.Local
		format := FormatText
		for _, attr := range start.Attr {
			if attr.Name.Local == "format" {
				format = Format(attr.Value)
			}
		}

		var payload bytes.Buffer
		for {
			tok, err := dec.Token()
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
			}
			switch t := tok.(type) {
			case xml.CharData:
				payload.Write(t)
			case xml.EndElement:
				if t.Name.Local != class {
					return nil, fmt.Errorf("%w: mismatched end tag %q for %q", ErrMalformedFrame, t.Name.Local, class)
				}
				if format == FormatJSON && !json.Valid(payload.Bytes()) {
					return nil, fmt.Errorf("%w: json payload is not valid JSON", ErrMalformedFrame)
				}
				return &Frame{Class: class, Format: format, Payload: payload.String()}, nil
			}
		}
	}
}

// DecodePayload returns f's payload in its final decoded form: base64
// payloads are base64-decoded, text and json payloads pass through
// unchanged (a json-format payload is handled by the caller's JSON
// decoder, not here).
func DecodePayload(f *Frame) (string, error) {
	switch f.Format {
	case FormatBase64:
		decoded, err := base64.StdEncoding.DecodeString(f.Payload)
		if err != nil {
			return "", fmt.Errorf("protocol: bad base64 payload: %w", err)
		}
		return string(decoded), nil
	case FormatJSON, FormatText, "":
		return f.Payload, nil
	default:
		return "", fmt.Errorf("protocol: unknown format %q", f.Format)
	}
}

// EncodeReply builds the reply envelope <class>reply</class>, escaping
// reply for safe embedding in XML character data.
func EncodeReply(class string, reply []byte) []byte {
	var buf bytes.Buffer
	buf.WriteByte('<')
	buf.WriteString(class)
	buf.WriteByte('>')
	xml.EscapeText(&buf, reply)
	buf.WriteString("</")
	buf.WriteString(class)
	buf.WriteByte('>')
	return buf.Bytes()
}
