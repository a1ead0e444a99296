// SPDX-License-Identifier: GPL-3.0-or-later

// Package dnstcp probes DNS servers over TCP (RFC 7766) and, when the
// operation dials with TLS, over TLS (RFC 7858).
//
// Each DNS message travels with a two-byte big-endian length prefix. The
// probe sends one query and reads one response. The response code is the
// message type: NOERROR advances, while NXDOMAIN, REFUSED and SERVFAIL are
// application outcomes proving a live DNS server.
package dnstcp

import (
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"github.com/bassosimone/dnscodec"
	"github.com/bassosimone/framewire"
	"github.com/miekg/dns"
)

// Well-known ports.
const (
	Port    = 53
	TLSPort = 853
)

// FrameSpec describes a length-prefixed DNS message.
var FrameSpec = framewire.LengthPrefixed{
	HeaderLen:        2,
	LengthFieldWidth: 2,
	Endianness:       framewire.BigEndian,
}

// Terminal lists the response codes reported as application outcomes.
var Terminal = []string{
	dns.RcodeToString[dns.RcodeNameError],
	dns.RcodeToString[dns.RcodeRefused],
	dns.RcodeToString[dns.RcodeServerFailure],
}

// Response is the payload of a DNS probe.
type Response struct {
	// ID is the message ID of the response.
	ID uint16 `json:"id"`

	// Rcode is the response code (e.g., "NOERROR").
	Rcode string `json:"rcode"`

	// Answers contains the answer records in presentation format. When
	// the response matches the query, only the records relevant to the
	// question (following CNAME chains) are kept.
	Answers []string `json:"answers,omitempty"`

	// Error is the resolver-style error for the response code, or for a
	// NOERROR response without answers (e.g., "no such host").
	Error string `json:"error,omitempty"`

	// Truncated is the TC bit.
	Truncated bool `json:"truncated,omitempty"`

	// Msg is the parsed response.
	Msg *dns.Msg `json:"-"`
}

// NewQuery returns a recursive query for name and the qtype mnemonic
// (e.g., "AAAA") using a random message ID.
//
// The name is IDNA-encoded and the query advertises an EDNS(0) buffer
// sized for TCP.
func NewQuery(rnd *framewire.WeakRandom, name, qtype string) (*dns.Msg, error) {
	if name == "" {
		return nil, fmt.Errorf("dnstcp: empty query name")
	}
	if qtype == "" {
		qtype = "A"
	}
	t, found := dns.StringToType[strings.ToUpper(qtype)]
	if !found {
		return nil, fmt.Errorf("dnstcp: unknown query type %q", qtype)
	}
	query := dnscodec.NewQuery(name, t)
	query.ID = rnd.Uint16()
	query.MaxSize = dnscodec.QueryMaxResponseSizeTCP
	msg, err := query.NewMsg()
	if err != nil {
		return nil, fmt.Errorf("dnstcp: query name %q: %w", name, err)
	}
	return msg, nil
}

// Script returns a script exchanging query.
func Script(query *dns.Msg, timeout time.Duration) (framewire.Script, error) {
	if query == nil || len(query.Question) != 1 {
		return framewire.Script{}, fmt.Errorf("dnstcp: query needs exactly one question")
	}
	phase := framewire.Phase{
		Name:     "query",
		Request:  query,
		Codec:    Codec{Query: query},
		Expect:   FrameSpec,
		Timeout:  timeout,
		Advance:  []string{dns.RcodeToString[dns.RcodeSuccess]},
		Terminal: Terminal,
	}
	return framewire.Script{Phases: []framewire.Phase{phase}, Timeout: timeout}, nil
}

// Codec encodes queries and decodes the responses to Query.
type Codec struct {
	Query *dns.Msg
}

var _ framewire.Codec = Codec{}

// Encode implements [framewire.Codec].
func (c Codec) Encode(request any) ([]byte, error) {
	query, ok := request.(*dns.Msg)
	if !ok {
		return nil, fmt.Errorf("dnstcp: cannot encode %T", request)
	}
	rawQuery, err := query.Pack()
	if err != nil {
		return nil, err
	}
	if len(rawQuery) > dns.MaxMsgSize {
		return nil, fmt.Errorf("dnstcp: query of %d bytes is too large", len(rawQuery))
	}
	frame := binary.BigEndian.AppendUint16(make([]byte, 0, 2+len(rawQuery)), uint16(len(rawQuery)))
	return append(frame, rawQuery...), nil
}

// Decode implements [framewire.Codec].
//
// A response whose ID or question differs from the query is kept with a
// warning.
func (c Codec) Decode(frame framewire.Frame) (framewire.Message, error) {
	if len(frame.Data) < 2 {
		return framewire.Message{}, framewire.NewDecodeError(
			framewire.KindMalformedHeader, "frame of %d bytes lacks the length prefix", len(frame.Data))
	}
	resp := new(dns.Msg)
	if err := resp.Unpack(frame.Data[2:]); err != nil {
		return framewire.Message{}, framewire.NewDecodeError(framewire.KindMalformedHeader,
			"%w: %w", dnscodec.ErrCannotUnmarshalMessage, err)
	}
	if !resp.Response {
		return framewire.Message{}, framewire.NewDecodeError(
			framewire.KindMalformedHeader, "message is not a response")
	}

	rcode, found := dns.RcodeToString[resp.Rcode]
	if !found {
		rcode = fmt.Sprintf("RCODE%d", resp.Rcode)
	}
	payload := Response{ID: resp.Id, Rcode: rcode, Truncated: resp.Truncated, Msg: resp}
	if err := dnscodec.ResponseErrorFromRCODE(resp); err != nil {
		payload.Error = err.Error()
	}
	answers := resp.Answer
	msg := framewire.Message{Type: rcode}

	var ierr error
	if c.Query != nil {
		var question dns.Question
		var qerr error
		ierr = framewire.CheckIntegrity(&msg, "message ID or question", func([]byte) bool {
			question, qerr = dnscodec.ValidateResponseForQuery(c.Query, resp)
			return qerr == nil
		}, frame.Data[2:])
		if ierr == nil {
			answers, _ = dnscodec.ResponseExtractValidAnswers(question, resp)
		}
	}
	for _, rr := range answers {
		payload.Answers = append(payload.Answers, rr.String())
	}
	msg.Payload = payload
	return msg, ierr
}
