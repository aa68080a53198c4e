package common

import (
	"encoding/json"
	"fmt"

	"github.com/ValentinKolb/dCtl/lib/errs"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message is the envelope of every RPC exchanged between control plane
// members. Params and replies travel as JSON in Payload so they can be
// validated against the method schemas on both sides.
type Message struct {
	// Type of message
	MsgType MessageType `json:"msg_type" cbor:"1,keyasint"`

	// Request fields
	Service   string `json:"service,omitempty" cbor:"2,keyasint,omitempty"`
	Method    string `json:"method,omitempty" cbor:"3,keyasint,omitempty"`
	AuthToken string `json:"auth_token,omitempty" cbor:"4,keyasint,omitempty"`

	// JSON encoded params (request) or reply (response)
	Payload []byte `json:"payload,omitempty" cbor:"5,keyasint,omitempty"`

	// Error fields, set on MsgTError
	ErrCode string `json:"err_code,omitempty" cbor:"6,keyasint,omitempty"`
	Err     string `json:"err,omitempty" cbor:"7,keyasint,omitempty"`
}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

// NewCallRequest creates a new request for service.method
func NewCallRequest(service, method, authToken string, params []byte) *Message {
	return &Message{
		MsgType:   MsgTCall,
		Service:   service,
		Method:    method,
		AuthToken: authToken,
		Payload:   params,
	}
}

// NewCallResponse creates a response carrying either the reply or err
func NewCallResponse(reply []byte, err error) *Message {
	if err != nil {
		return NewErrorResponse(err)
	}
	return &Message{
		MsgType: MsgTSuccess,
		Payload: reply,
	}
}

// NewErrorResponse creates an error response. The error code survives the
// round trip, see Message.AsError.
func NewErrorResponse(err error) *Message {
	return &Message{
		MsgType: MsgTError,
		ErrCode: string(errs.CodeOf(err)),
		Err:     errs.MessageOf(err),
	}
}

// AsError rebuilds the error of an error response, nil for other messages
func (m *Message) AsError(op string) error {
	if m.MsgType != MsgTError {
		return nil
	}
	return &errs.Error{Code: errs.ParseCode(m.ErrCode), Op: op, Msg: m.Err}
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message used in RPC communication.
type MessageType uint8

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	switch t {
	case MsgTSuccess:
		return "success"
	case MsgTError:
		return "error"
	case MsgTCall:
		return "call"
	case MsgTPing:
		return "ping"
	default:
		return "unknown"
	}
}

// MarshalJSON serializes MessageType as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	switch s {
	case "success":
		*t = MsgTSuccess
	case "error":
		*t = MsgTError
	case "call":
		*t = MsgTCall
	case "ping":
		*t = MsgTPing
	default:
		return fmt.Errorf("unknown message type: %s", s)
	}
	return nil
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	MsgTUnknown MessageType = iota
	MsgTSuccess             // reply of a successful call
	MsgTError               // reply of a failed call
	MsgTCall                // invoke service.method
	MsgTPing                // liveness probe, answered with MsgTSuccess
)
