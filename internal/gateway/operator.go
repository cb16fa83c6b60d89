package gateway

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/soyeahso/flowbridge/internal/logging"
)

var ErrOperatorClosed = errors.New("operator connection closed")

const operatorWriteWait = 10 * time.Second

// Operator is an authenticated operator socket. It receives livechat
// events for the rooms it watches, or for every room while it watches none.
type Operator struct {
	ID          string
	Info        OperatorInfo
	AuthMethod  string
	ConnectedAt time.Time

	conn *websocket.Conn

	mu     sync.Mutex
	closed bool
	rooms  map[string]struct{}
}

func newOperator(conn *websocket.Conn, info OperatorInfo, authMethod string) *Operator {
	return &Operator{
		ID:          uuid.NewString(),
		Info:        info,
		AuthMethod:  authMethod,
		ConnectedAt: time.Now(),
		conn:        conn,
	}
}

// write serializes frames onto the socket.
func (o *Operator) write(f Frame) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrOperatorClosed
	}
	if err := o.conn.SetWriteDeadline(time.Now().Add(operatorWriteWait)); err != nil {
		return err
	}
	return o.conn.WriteJSON(f)
}

func (o *Operator) reply(id string, payload any) error {
	f, err := NewResponse(id, payload)
	if err != nil {
		return err
	}
	return o.write(f)
}

func (o *Operator) fail(id, code, message string) error {
	return o.write(NewErrorResponse(id, ErrorShape{Code: code, Message: message}))
}

// next blocks for the operator's next frame.
func (o *Operator) next() (Frame, error) {
	var f Frame
	err := o.conn.ReadJSON(&f)
	return f, err
}

// Watch replaces the set of watched rooms. An empty list watches all rooms.
func (o *Operator) Watch(roomIDs []string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(roomIDs) == 0 {
		o.rooms = nil
		return
	}
	o.rooms = make(map[string]struct{}, len(roomIDs))
	for _, id := range roomIDs {
		o.rooms[id] = struct{}{}
	}
}

// Watching reports whether events for roomID reach this operator.
func (o *Operator) Watching(roomID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.rooms == nil {
		return true
	}
	_, ok := o.rooms[roomID]
	return ok
}

// Rooms returns the watched room ids in order, or nil when watching all.
func (o *Operator) Rooms() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.rooms == nil {
		return nil
	}
	ids := make([]string, 0, len(o.rooms))
	for id := range o.rooms {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (o *Operator) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}
	o.closed = true
	return o.conn.Close()
}

// operatorHub tracks connected operators.
type operatorHub struct {
	mu  sync.RWMutex
	ops map[string]*Operator
	log *logging.Logger
}

func newOperatorHub(log *logging.Logger) *operatorHub {
	return &operatorHub{ops: make(map[string]*Operator), log: log}
}

func (h *operatorHub) join(op *Operator) {
	h.mu.Lock()
	h.ops[op.ID] = op
	n := len(h.ops)
	h.mu.Unlock()
	h.log.Info().Str("connId", op.ID).Str("operator", op.Info.ID).Int("connected", n).Msg("operator joined")
}

func (h *operatorHub) leave(id string) {
	h.mu.Lock()
	delete(h.ops, id)
	h.mu.Unlock()
	h.log.Info().Str("connId", id).Msg("operator left")
}

func (h *operatorHub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.ops)
}

// publish sends an event about roomID to every operator watching it and
// returns how many received it. A slow or broken socket only costs its
// own delivery.
func (h *operatorHub) publish(roomID, event string, payload any, seq int64) int {
	f, err := NewEvent(event, payload, seq)
	if err != nil {
		h.log.Error().Err(err).Str("event", event).Msg("encoding event")
		return 0
	}

	h.mu.RLock()
	targets := make([]*Operator, 0, len(h.ops))
	for _, op := range h.ops {
		if op.Watching(roomID) {
			targets = append(targets, op)
		}
	}
	h.mu.RUnlock()

	delivered := 0
	for _, op := range targets {
		if err := op.write(f); err != nil {
			h.log.Warn().Err(err).Str("connId", op.ID).Str("event", event).Msg("event delivery failed")
			continue
		}
		delivered++
	}
	return delivered
}

func (h *operatorHub) closeAll() {
	h.mu.Lock()
	ops := h.ops
	h.ops = make(map[string]*Operator)
	h.mu.Unlock()
	for _, op := range ops {
		op.Close()
	}
}
