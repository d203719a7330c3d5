// peers.go keeps track of the receivers connected to the relay.
package relay

import (
	"sync"

	"github.com/google/uuid"
	"github.com/relaydrop/relaydrop/internal/conn"
)

// Peer is a receiver connected over /ws/connect.
type Peer struct {
	ID string // tags the log lines of one connection
	ws *conn.WS
	sc conn.Signal

	mu      sync.Mutex
	pending string // path offered in the last transfer request
}

func newPeer(ws *conn.WS) *Peer {
	return &Peer{ID: uuid.NewString(), ws: ws, sc: conn.Signal{Conn: ws}}
}

func (p *Peer) offer(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = path
}

// take returns and clears the pending path.
func (p *Peer) take() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	path := p.pending
	p.pending = ""
	return path
}

// Peers maps client IPs to connected receivers. A newer connection from the
// same IP replaces the older one.
type Peers struct{ *sync.Map }

func (peers *Peers) Register(ip string, p *Peer) {
	peers.Store(ip, p)
}

func (peers *Peers) Get(ip string) (*Peer, bool) {
	p, ok := peers.Load(ip)
	if !ok {
		return nil, false
	}
	return p.(*Peer), true
}

// Unregister removes p unless it has already been replaced.
func (peers *Peers) Unregister(ip string, p *Peer) {
	peers.CompareAndDelete(ip, p)
}

// CloseAll closes every connected peer.
func (peers *Peers) CloseAll(reason string) {
	peers.Range(func(_, value any) bool {
		value.(*Peer).ws.Close(reason) //nolint:errcheck
		return true
	})
}
