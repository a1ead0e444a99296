// SPDX-License-Identifier: GPL-3.0-or-later

package stomp

import (
	"bytes"
	"strings"

	"github.com/bassosimone/framewire"
)

// Frame is a STOMP frame.
type Frame struct {
	// Command is the frame command (e.g., "CONNECTED").
	Command string `json:"command"`

	// Headers contains the headers in wire order.
	Headers []framewire.Field `json:"headers,omitempty"`

	// Body is the frame body.
	Body string `json:"body,omitempty"`
}

// Header returns the value of the first header named key. Repeated
// headers after the first are ignored.
func (f Frame) Header(key string) (string, bool) {
	for _, field := range f.Headers {
		if field.Key == key {
			return field.Value, true
		}
	}
	return "", false
}

// escapes reports whether the headers of command are escaped. CONNECT
// and CONNECTED frames are sent verbatim for compatibility with STOMP 1.0.
func escapes(command string) bool {
	return command != CommandConnect && command != CommandConnected
}

// Marshal returns the wire encoding of f, including the NUL terminator.
func (f Frame) Marshal() []byte {
	var buf bytes.Buffer
	buf.WriteString(f.Command)
	buf.WriteByte('\n')
	for _, field := range f.Headers {
		key, value := field.Key, field.Value
		if escapes(f.Command) {
			key, value = escapeHeader(key), escapeHeader(value)
		}
		buf.WriteString(key)
		buf.WriteByte(':')
		buf.WriteString(value)
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
	buf.WriteString(f.Body)
	buf.WriteByte(0)
	return buf.Bytes()
}

// ParseFrame parses data as a frame without its NUL terminator.
//
// Leading end-of-line heart-beats are skipped.
func ParseFrame(data []byte) (Frame, error) {
	text := strings.TrimLeft(string(data), "\r\n")
	head, body, found := strings.Cut(text, "\n\n")
	if !found {
		head, body, found = strings.Cut(text, "\r\n\r\n")
	}
	if !found {
		return Frame{}, framewire.NewDecodeError(framewire.KindMalformedHeader, "frame lacks the header terminator")
	}
	lines := strings.Split(head, "\n")
	frame := Frame{Command: strings.TrimSuffix(lines[0], "\r"), Body: body}
	if frame.Command == "" {
		return Frame{}, framewire.NewDecodeError(framewire.KindMalformedHeader, "frame lacks a command")
	}
	for _, line := range lines[1:] {
		line = strings.TrimSuffix(line, "\r")
		key, value, found := strings.Cut(line, ":")
		if !found {
			return Frame{}, framewire.NewDecodeError(framewire.KindMalformedHeader, "header %q lacks a colon", line)
		}
		if escapes(frame.Command) {
			var err error
			if key, err = unescapeHeader(key); err != nil {
				return Frame{}, err
			}
			if value, err = unescapeHeader(value); err != nil {
				return Frame{}, err
			}
		}
		frame.Headers = append(frame.Headers, framewire.Field{Key: key, Value: value})
	}
	return frame, nil
}

var headerEscaper = strings.NewReplacer(
	`\`, `\\`,
	"\r", `\r`,
	"\n", `\n`,
	":", `\c`,
)

func escapeHeader(s string) string {
	return headerEscaper.Replace(s)
}

// unescapeHeader decodes the STOMP 1.2 escapes. Undefined escapes are
// a fatal protocol error.
func unescapeHeader(s string) (string, error) {
	if !strings.Contains(s, `\`) {
		return s, nil
	}
	var sb strings.Builder
	for idx := 0; idx < len(s); idx++ {
		if s[idx] != '\\' {
			sb.WriteByte(s[idx])
			continue
		}
		if idx+1 >= len(s) {
			return "", framewire.NewDecodeError(framewire.KindMalformedHeader, "dangling escape in %q", s)
		}
		idx++
		switch s[idx] {
		case '\\':
			sb.WriteByte('\\')
		case 'r':
			sb.WriteByte('\r')
		case 'n':
			sb.WriteByte('\n')
		case 'c':
			sb.WriteByte(':')
		default:
			return "", framewire.NewDecodeError(framewire.KindMalformedHeader,
				"undefined escape \\%c in %q", s[idx], s)
		}
	}
	return sb.String(), nil
}
