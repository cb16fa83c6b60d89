package gateway

import "encoding/json"

// ProtocolVersion is the operator socket protocol spoken by this server.
const ProtocolVersion = 1

// Frame types.
const (
	FrameTypeRequest  = "req"
	FrameTypeResponse = "res"
	FrameTypeEvent    = "event"
)

// Events pushed to operators.
const (
	EventConnectChallenge = "connect.challenge"
	EventLivechatMessage  = "livechat.message"
)

// Frame is the envelope of every operator socket message. Requests carry
// ID, Method and Params; responses carry ID, OK and either Payload or
// Error; events carry Event, Seq and Payload.
type Frame struct {
	Type string `json:"type"`

	ID     string          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`

	OK      *bool           `json:"ok,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *ErrorShape     `json:"error,omitempty"`

	Event string `json:"event,omitempty"`
	Seq   int64  `json:"seq,omitempty"`
}

// ErrorShape is the error carried by a failed response frame. Codes are
// snake_case: invalid_params, not_found, forbidden, unavailable,
// agent_error, method_not_found, unauthorized, protocol_error.
type ErrorShape struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ConnectParams open an operator session.
type ConnectParams struct {
	MinProtocol int          `json:"minProtocol"`
	MaxProtocol int          `json:"maxProtocol"`
	Operator    OperatorInfo `json:"operator"`
	Auth        *ConnectAuth `json:"auth,omitempty"`
}

// supports reports whether ProtocolVersion falls in the requested range.
// A zero bound is open.
func (p ConnectParams) supports(v int) bool {
	if p.MinProtocol != 0 && v < p.MinProtocol {
		return false
	}
	return p.MaxProtocol == 0 || v <= p.MaxProtocol
}

// OperatorInfo identifies the console or tool behind a socket.
type OperatorInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName,omitempty"`
	Version     string `json:"version,omitempty"`
}

// ConnectAuth carries credentials in the connect request.
type ConnectAuth struct {
	Token    string `json:"token,omitempty"`
	Password string `json:"password,omitempty"`
}

// HelloOK answers a successful connect.
type HelloOK struct {
	Protocol int        `json:"protocol"`
	Server   ServerInfo `json:"server"`
	Features Features   `json:"features"`
	Limits   Limits     `json:"limits"`
}

type ServerInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit,omitempty"`
	ConnID  string `json:"connId"`
}

type Features struct {
	Methods []string `json:"methods"`
	Events  []string `json:"events"`
}

type Limits struct {
	MaxPayload         int   `json:"maxPayload"`
	HandshakeTimeoutMs int64 `json:"handshakeTimeoutMs"`
}

func NewRequest(id, method string, params any) (Frame, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: FrameTypeRequest, ID: id, Method: method, Params: raw}, nil
}

func NewResponse(id string, payload any) (Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: FrameTypeResponse, ID: id, OK: boolPtr(true), Payload: raw}, nil
}

func NewErrorResponse(id string, e ErrorShape) Frame {
	return Frame{Type: FrameTypeResponse, ID: id, OK: boolPtr(false), Error: &e}
}

func NewEvent(event string, payload any, seq int64) (Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: FrameTypeEvent, Event: event, Seq: seq, Payload: raw}, nil
}

func boolPtr(b bool) *bool { return &b }
