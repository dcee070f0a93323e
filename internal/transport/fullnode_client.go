package transport

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chia-farm/farmer-core/internal/util"
)

// FullNodeState mirrors the teacher's deleted rpc.UpstreamState, tracking
// per-connection health for the status API.
type FullNodeState struct {
	URL          string
	Healthy      bool
	FailCount    int32
	SuccessCount int32
}

// fullNodeConn wraps one dialed full-node connection with health counters.
type fullNodeConn struct {
	url  string
	peer *wsPeer

	mu      sync.RWMutex
	healthy bool
	fails   int32
	oks     int32
}

// FullNodeClient maintains outbound connections to one or more full nodes
// and broadcasts DeclareProofOfSpace/SignedValues to every healthy one —
// generalized from the teacher's rpc.UpstreamManager (deleted
// internal/rpc/upstream.go), whose failover/health-tracking shape this
// reuses, but whose "pick one active upstream" selection this drops: the
// Farmer's contract is send_to_all(FULL_NODE), not send-to-best-one.
type FullNodeClient struct {
	urls        []string
	maxFailures int32
	handler     func(Frame)

	mu    sync.RWMutex
	conns []*fullNodeConn

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewFullNodeClient constructs a client for the given full-node URLs.
// handler, if non-nil, is invoked for every inbound frame (new_signage_point,
// request_signed_values) received on any full-node connection — the Farmer
// does not care which full node a given push arrived from.
func NewFullNodeClient(urls []string, maxFailures int32, handler func(Frame)) *FullNodeClient {
	if maxFailures <= 0 {
		maxFailures = 3
	}
	return &FullNodeClient{urls: urls, maxFailures: maxFailures, handler: handler}
}

// Start dials every configured full node and begins a background health
// check loop, mirroring the teacher's NewUpstreamManager + Start split.
func (c *FullNodeClient) Start(ctx context.Context) {
	c.ctx, c.cancel = context.WithCancel(ctx)

	for _, url := range c.urls {
		conn := c.dial(url)
		c.mu.Lock()
		c.conns = append(c.conns, conn)
		c.mu.Unlock()
	}

	c.wg.Add(1)
	go c.healthLoop()
}

// Stop tears down the health loop. Open full-node connections are left
// open; FullNodeClient has no method that closes them.
func (c *FullNodeClient) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}

func (c *FullNodeClient) dial(url string) *fullNodeConn {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	fc := &fullNodeConn{url: url}
	if err != nil {
		util.Warnf("transport: full-node dial %s failed: %v", url, err)
		return fc
	}
	fc.peer = newWSPeer(url, FullNode, conn)
	fc.healthy = true
	go c.readLoop(fc, conn)
	return fc
}

// readLoop mirrors Listener.readLoop: every inbound frame (new_signage_point,
// request_signed_values) is handed to the client-wide handler, unless it
// carries the ID of an in-flight Call() on this connection, in which case
// it resolves that waiter instead. A read error marks the connection
// unhealthy rather than removing it — the health loop's failure accounting
// and Broadcast's own healthy check are what gate future sends, so there is
// no separate removal path to keep in sync.
func (c *FullNodeClient) readLoop(fc *fullNodeConn, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.recordFailure(fc)
			fc.mu.Lock()
			fc.healthy = false
			fc.mu.Unlock()
			return
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			util.Warnf("transport: malformed frame from full node %s: %v", fc.url, err)
			continue
		}

		if frame.ID != 0 && fc.peer != nil && fc.peer.calls.deliver(frame.ID, frame) {
			continue
		}

		if c.handler != nil {
			c.handler(frame)
		}
	}
}

func (c *FullNodeClient) healthLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			// Passive health tracking only: RecordFailure/RecordSuccess are
			// driven by actual broadcast outcomes (see Broadcast below),
			// matching the teacher's CallWithFailover accounting without
			// a synthetic liveness probe (the Farmer has no GetLatestBlock
			// equivalent to call — full-node RPC surfaces are out of
			// scope, spec.md §1).
		}
	}
}

// Broadcast sends msgType/payload to every currently healthy full-node
// connection, recording success/failure per connection.
func (c *FullNodeClient) Broadcast(msgType string, payload any) {
	c.mu.RLock()
	conns := append([]*fullNodeConn{}, c.conns...)
	c.mu.RUnlock()

	for _, fc := range conns {
		fc.mu.RLock()
		healthy := fc.healthy
		peer := fc.peer
		fc.mu.RUnlock()
		if !healthy || peer == nil {
			continue
		}

		if err := peer.Send(msgType, payload); err != nil {
			c.recordFailure(fc)
			util.Warnf("transport: full-node broadcast to %s failed: %v", fc.url, err)
			continue
		}
		c.recordSuccess(fc)
	}
}

func (c *FullNodeClient) recordSuccess(fc *fullNodeConn) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.oks++
	fc.fails = 0
	fc.healthy = true
}

func (c *FullNodeClient) recordFailure(fc *fullNodeConn) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.fails++
	fc.oks = 0
	if fc.fails >= c.maxFailures {
		fc.healthy = false
	}
}

// States returns a snapshot for the status API.
func (c *FullNodeClient) States() []FullNodeState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]FullNodeState, len(c.conns))
	for i, fc := range c.conns {
		fc.mu.RLock()
		out[i] = FullNodeState{URL: fc.url, Healthy: fc.healthy, FailCount: fc.fails, SuccessCount: fc.oks}
		fc.mu.RUnlock()
	}
	return out
}

// HealthyCount reports how many full-node connections are currently healthy.
func (c *FullNodeClient) HealthyCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	count := 0
	for _, fc := range c.conns {
		fc.mu.RLock()
		if fc.healthy {
			count++
		}
		fc.mu.RUnlock()
	}
	return count
}
