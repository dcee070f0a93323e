package transport

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/chia-farm/farmer-core/internal/util"
)

// Listener accepts inbound websocket connections for a single peer role
// (harvester or solver) and dispatches decoded frames to Handler. Grounded
// on the deleted internal/slave/websocket.go's upgrader + handleConnection
// read-loop shape.
type Listener struct {
	Registry *Registry
	Handler  func(Peer, Frame)

	upgrader websocket.Upgrader
	server   *http.Server
}

// NewListener constructs a listener for the given connection type.
func NewListener(connType ConnectionType, handler func(Peer, Frame)) *Listener {
	return &Listener{
		Registry: NewRegistry(connType),
		Handler:  handler,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Start begins serving websocket upgrades on bind.
func (l *Listener) Start(bind string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", l.handleUpgrade)

	l.server = &http.Server{Addr: bind, Handler: mux}
	util.Infof("transport: %s listener on %s", l.Registry.connType, bind)

	go func() {
		if err := l.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			util.Errorf("transport: %s listener error: %v", l.Registry.connType, err)
		}
	}()
	return nil
}

// Stop closes the listening socket. Already-connected peers are left to
// the caller to drain via Registry.All.
func (l *Listener) Stop() error {
	if l.server == nil {
		return nil
	}
	return l.server.Close()
}

func (l *Listener) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		util.Warnf("transport: %s upgrade failed: %v", l.Registry.connType, err)
		return
	}

	peerID := r.RemoteAddr
	if id := r.URL.Query().Get("peer_id"); id != "" {
		peerID = id
	}

	peer := newWSPeer(peerID, l.Registry.connType, conn)
	l.Registry.Add(peer)

	go l.readLoop(peer, conn)
}

func (l *Listener) readLoop(peer *wsPeer, conn *websocket.Conn) {
	defer func() {
		l.Registry.Remove(peer)
		peer.close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			util.Warnf("transport: malformed frame from %s: %v", peer.PeerNodeID(), err)
			continue
		}

		if frame.ID != 0 && peer.calls.deliver(frame.ID, frame) {
			continue
		}

		if l.Handler != nil {
			l.Handler(peer, frame)
		}
	}
}
