package codec

import (
	"crypto/hmac"
	"crypto/md5"
	"errors"
	"fmt"

	"layeh.com/radius"
	"layeh.com/radius/rfc2869"
)

// ErrBadPdu is returned when a datagram cannot be parsed as a RADIUS packet.
var ErrBadPdu = errors.New("bad pdu")

// Command identifies a RADIUS packet kind routed by the server.
type Command int

const (
	CmdUnknown Command = iota
	CmdAccessRequest
	CmdAccessAccept
	CmdAccessReject
	CmdAccessChallenge
	CmdAccountingRequest
	CmdAccountingResponse
	CmdCoARequest
	CmdCoAACK
	CmdCoANAK
	CmdDisconnectRequest
	CmdDisconnectACK
	CmdDisconnectNAK
)

var commandNames = map[Command]string{
	CmdAccessRequest:      "Access-Request",
	CmdAccessAccept:       "Access-Accept",
	CmdAccessReject:       "Access-Reject",
	CmdAccessChallenge:    "Access-Challenge",
	CmdAccountingRequest:  "Accounting-Request",
	CmdAccountingResponse: "Accounting-Response",
	CmdCoARequest:         "CoA-Request",
	CmdCoAACK:             "CoA-ACK",
	CmdCoANAK:             "CoA-NAK",
	CmdDisconnectRequest:  "Disconnect-Request",
	CmdDisconnectACK:      "Disconnect-ACK",
	CmdDisconnectNAK:      "Disconnect-NAK",
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Command(%d)", int(c))
}

// IsRequest reports whether the command is one the server accepts from a NAS.
func (c Command) IsRequest() bool {
	switch c {
	case CmdAccessRequest, CmdAccountingRequest, CmdCoARequest, CmdDisconnectRequest:
		return true
	}
	return false
}

var codeToCommand = map[radius.Code]Command{
	radius.CodeAccessRequest:      CmdAccessRequest,
	radius.CodeAccessAccept:       CmdAccessAccept,
	radius.CodeAccessReject:       CmdAccessReject,
	radius.CodeAccessChallenge:    CmdAccessChallenge,
	radius.CodeAccountingRequest:  CmdAccountingRequest,
	radius.CodeAccountingResponse: CmdAccountingResponse,
	radius.CodeCoARequest:         CmdCoARequest,
	radius.CodeCoAACK:             CmdCoAACK,
	radius.CodeCoANAK:             CmdCoANAK,
	radius.CodeDisconnectRequest:  CmdDisconnectRequest,
	radius.CodeDisconnectACK:      CmdDisconnectACK,
	radius.CodeDisconnectNAK:      CmdDisconnectNAK,
}

var commandToCode = map[Command]radius.Code{}

func init() {
	for code, cmd := range codeToCommand {
		commandToCode[cmd] = code
	}
}

// Request is a decoded RADIUS request plus the wire-level facts the server
// needs to build a matching reply.
type Request struct {
	ID     uint8
	Cmd    Command
	Packet *radius.Packet
	Secret []byte

	// MsgAuth is set when the request carried a Message-Authenticator.
	MsgAuth bool

	// EAPMessage is the concatenated EAP-Message payload, nil when absent.
	EAPMessage []byte
}

// AVPair is one attribute-value pair a handler puts into a reply.
type AVPair struct {
	Type  radius.Type
	Value radius.Attribute
}

// Reply is what a handler returns when it wants a response sent.
type Reply struct {
	Cmd     Command
	Attrs   []AVPair
	MsgAuth bool
}

// RequestID extracts the one-byte request identifier from a raw datagram.
// It performs the minimal parse only: at least two bytes must be present.
func RequestID(b []byte) (uint8, bool) {
	if len(b) < 2 {
		return 0, false
	}
	return b[1], true
}

// Decode parses a raw datagram using the NAS shared secret. Any parse
// failure is reported as ErrBadPdu; the caller counts it as malformed.
func Decode(b []byte, secret []byte) (*Request, error) {
	pkt, err := radius.Parse(b, secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPdu, err)
	}

	cmd, ok := codeToCommand[pkt.Code]
	if !ok || !cmd.IsRequest() {
		return nil, fmt.Errorf("%w: unexpected code %d", ErrBadPdu, pkt.Code)
	}

	req := &Request{
		ID:     pkt.Identifier,
		Cmd:    cmd,
		Packet: pkt,
		Secret: secret,
	}

	if ma, err := rfc2869.MessageAuthenticator_Lookup(pkt); err == nil && len(ma) > 0 {
		req.MsgAuth = true
	}
	if eap, err := rfc2869.EAPMessage_Lookup(pkt); err == nil && len(eap) > 0 {
		// Long EAP payloads are split across attributes; concatenate them.
		var full []byte
		for _, avp := range pkt.Attributes {
			if avp.Type == rfc2869.EAPMessage_Type {
				full = append(full, avp.Attribute...)
			}
		}
		req.EAPMessage = full
	}

	return req, nil
}

// EncodeReply builds the wire bytes for a reply to req. The reply inherits
// the request identifier and authenticator base; the Message-Authenticator
// attribute is added when the request had one, the handler asked for one,
// or the request carried an EAP-Message payload.
func EncodeReply(req *Request, rep *Reply) ([]byte, error) {
	code, ok := commandToCode[rep.Cmd]
	if !ok || rep.Cmd.IsRequest() {
		return nil, fmt.Errorf("invalid reply command %v", rep.Cmd)
	}

	pkt := req.Packet.Response(code)
	for _, av := range rep.Attrs {
		pkt.Add(av.Type, av.Value)
	}

	if req.MsgAuth || rep.MsgAuth || len(req.EAPMessage) > 0 {
		if err := signMessageAuthenticator(pkt, req.Secret); err != nil {
			return nil, err
		}
	}

	return pkt.Encode()
}

// signMessageAuthenticator computes the RFC 2869 §5.14 HMAC-MD5 over the
// reply with the attribute zeroed and the request authenticator still in
// the authenticator field, then stores the result.
func signMessageAuthenticator(pkt *radius.Packet, secret []byte) error {
	var zero [16]byte
	if err := rfc2869.MessageAuthenticator_Set(pkt, zero[:]); err != nil {
		return fmt.Errorf("zeroing Message-Authenticator: %w", err)
	}

	wire, err := pkt.MarshalBinary()
	if err != nil {
		return fmt.Errorf("marshaling reply for signing: %w", err)
	}

	mac := hmac.New(md5.New, secret)
	mac.Write(wire)

	if err := rfc2869.MessageAuthenticator_Set(pkt, mac.Sum(nil)); err != nil {
		return fmt.Errorf("storing Message-Authenticator: %w", err)
	}
	return nil
}
