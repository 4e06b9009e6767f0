package linux

import (
	"sync"
	"time"
)

// Conn is one tracked connection. Handle is 0 while the connect command
// is in flight and is updated in place once the controller assigns one.
type Conn struct {
	Peer     PeerID
	Handle   uint16
	Identity *PeerID // resolved identity address, if the peer uses RPA
}

type pendingDisconnect struct {
	peer   PeerID
	handle uint16
	at     time.Time
}

// connTracker is the authoritative table of in-flight and established
// connections, plus the pending-disconnect table used to keep a new
// connect attempt from racing a disconnect still in flight.
//
// Invariants: at most one Conn per PeerID, at most one Conn per nonzero
// handle.
type connTracker struct {
	mu      sync.Mutex
	conns   []*Conn
	pending map[uint16]pendingDisconnect
}

func newConnTracker() *connTracker {
	return &connTracker{pending: make(map[uint16]pendingDisconnect)}
}

// add inserts (or returns) the tracking entry for peer. The entry is
// created with handle 0 before the connect command is written, so a
// racing connection-complete always finds an entry to update.
func (t *connTracker) add(peer PeerID) *Conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c := t.findPeer(peer); c != nil {
		return c
	}
	c := &Conn{Peer: peer}
	t.conns = append(t.conns, c)
	return c
}

// assign records the controller-assigned handle for peer, creating the
// entry if the handle was first observed without a connect of ours.
func (t *connTracker) assign(peer PeerID, handle uint16) *Conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := t.findPeer(peer)
	if c == nil {
		c = &Conn{Peer: peer}
		t.conns = append(t.conns, c)
	}
	c.Handle = handle
	return c
}

func (t *connTracker) byPeer(peer PeerID) *Conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.findPeer(peer)
}

func (t *connTracker) byHandle(handle uint16) *Conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	if handle == 0 {
		return nil
	}
	for _, c := range t.conns {
		if c.Handle == handle {
			return c
		}
	}
	return nil
}

// removePeer drops the entry for peer, returning it if present.
func (t *connTracker) removePeer(peer PeerID) *Conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, c := range t.conns {
		if c.Peer == peer {
			t.conns = append(t.conns[:i], t.conns[i+1:]...)
			return c
		}
	}
	return nil
}

// removeHandle drops the entry with the given nonzero handle,
// returning it if present.
func (t *connTracker) removeHandle(handle uint16) *Conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	if handle == 0 {
		return nil
	}
	for i, c := range t.conns {
		if c.Handle == handle {
			t.conns = append(t.conns[:i], t.conns[i+1:]...)
			return c
		}
	}
	return nil
}

// pendingCount is the number of connects still awaiting a handle.
func (t *connTracker) pendingCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, c := range t.conns {
		if c.Handle == 0 {
			n++
		}
	}
	return n
}

func (t *connTracker) findPeer(peer PeerID) *Conn {
	for _, c := range t.conns {
		if c.Peer == peer {
			return c
		}
	}
	return nil
}

func (t *connTracker) addPendingDisconnect(peer PeerID, handle uint16) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending[handle] = pendingDisconnect{peer: peer, handle: handle, at: time.Now()}
}

// resolvePendingDisconnect removes the pending entry for handle,
// reporting whether one existed.
func (t *connTracker) resolvePendingDisconnect(handle uint16) (PeerID, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	pd, ok := t.pending[handle]
	if ok {
		delete(t.pending, handle)
	}
	return pd.peer, ok
}

func (t *connTracker) hasPendingDisconnect(peer PeerID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, pd := range t.pending {
		if pd.peer == peer {
			return true
		}
	}
	return false
}
