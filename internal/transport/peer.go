// Package transport implements the Farmer's three peer roles — harvester
// listener, solver listener, and full-node client — over JSON-framed
// gorilla/websocket connections. Grounded on the teacher's deleted
// internal/slave/websocket.go (connection/upgrade/read-loop shape) and
// internal/rpc/upstream.go (failover/health-tracking shape, generalized
// from "mining-job upstream" to "full-node message sink").
package transport

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"
)

// ConnectionType distinguishes the three peer roles (spec.md §9 "Dynamic
// dispatch over transports").
type ConnectionType int

const (
	Harvester ConnectionType = iota
	Solver
	FullNode
)

func (c ConnectionType) String() string {
	switch c {
	case Harvester:
		return "harvester"
	case Solver:
		return "solver"
	case FullNode:
		return "full_node"
	default:
		return "unknown"
	}
}

// Frame is the wire envelope: a type tag plus a JSON payload. Grounded on
// the teacher's WSRequest/WSNotify JSON-struct framing (deleted
// internal/slave/websocket.go) — no binary/protobuf framing library
// appears anywhere in the example pack, so JSON is the idiomatic choice
// here too.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	ID      uint64          `json:"id,omitempty"`
}

// Peer is the capability set the Farmer core depends on: send a
// fire-and-forget message, or place a best-effort request/response call
// with a deadline. spec.md §9: "Represent as an interface/trait with a
// tagged variant for the three concrete kinds; the Farmer does not branch
// on concrete transport."
type Peer interface {
	Send(msgType string, payload any) error
	Call(ctx context.Context, msgType string, payload any) (Frame, error)
	PeerNodeID() string
	ConnectionType() ConnectionType
}

// wsPeer is the common gorilla/websocket-backed Peer implementation shared
// by all three listener/client roles.
type wsPeer struct {
	id       string
	connType ConnectionType
	conn     *websocket.Conn

	sendCh chan Frame
	calls  *pendingCalls
}

func newWSPeer(id string, connType ConnectionType, conn *websocket.Conn) *wsPeer {
	p := &wsPeer{
		id:       id,
		connType: connType,
		conn:     conn,
		sendCh:   make(chan Frame, 64),
		calls:    newPendingCalls(),
	}
	go p.writeLoop()
	return p
}

func (p *wsPeer) PeerNodeID() string          { return p.id }
func (p *wsPeer) ConnectionType() ConnectionType { return p.connType }

func (p *wsPeer) Send(msgType string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	select {
	case p.sendCh <- Frame{Type: msgType, Payload: raw}:
		return nil
	default:
		return fmt.Errorf("transport: send queue full for peer %s", p.id)
	}
}

func (p *wsPeer) Call(ctx context.Context, msgType string, payload any) (Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	id, wait := p.calls.register()
	defer p.calls.cancel(id)

	frame := Frame{Type: msgType, Payload: raw, ID: id}
	select {
	case p.sendCh <- frame:
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}

	select {
	case resp := <-wait:
		return resp, nil
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

func (p *wsPeer) writeLoop() {
	for frame := range p.sendCh {
		data, err := json.Marshal(frame)
		if err != nil {
			continue
		}
		_ = p.conn.WriteMessage(websocket.TextMessage, data)
	}
}

func (p *wsPeer) close() {
	close(p.sendCh)
	_ = p.conn.Close()
}
