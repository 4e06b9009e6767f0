package linux

import "testing"

var (
	peerA = PeerID{Addr: Addr{0xAA, 0x11, 0x22, 0x33, 0x44, 0x55}, Type: AddrTypePublic}
	peerB = PeerID{Addr: Addr{0xBB, 0x11, 0x22, 0x33, 0x44, 0x66}, Type: AddrTypeRandom}
)

func TestTrackerAddIsIdempotent(t *testing.T) {
	tr := newConnTracker()
	c1 := tr.add(peerA)
	c2 := tr.add(peerA)
	if c1 != c2 {
		t.Fatal("second add created a new entry for the same peer")
	}
	if tr.pendingCount() != 1 {
		t.Fatalf("pendingCount = %d, want 1", tr.pendingCount())
	}
}

func TestTrackerAssignUpdatesInPlace(t *testing.T) {
	tr := newConnTracker()
	c := tr.add(peerA)
	got := tr.assign(peerA, 0x40)
	if got != c {
		t.Fatal("assign replaced the entry instead of updating it")
	}
	if c.Handle != 0x40 {
		t.Fatalf("handle = 0x%04X, want 0x40", c.Handle)
	}
	if tr.pendingCount() != 0 {
		t.Fatalf("pendingCount = %d, want 0", tr.pendingCount())
	}
}

func TestTrackerHandleZeroNeverResolves(t *testing.T) {
	tr := newConnTracker()
	tr.add(peerA)
	if c := tr.byHandle(0); c != nil {
		t.Fatal("byHandle(0) resolved a pending connection")
	}
	if c := tr.removeHandle(0); c != nil {
		t.Fatal("removeHandle(0) removed a pending connection")
	}
}

func TestTrackerUniqueness(t *testing.T) {
	tr := newConnTracker()
	// Arbitrary connect/fail/disconnect churn.
	tr.add(peerA)
	tr.assign(peerA, 0x40)
	tr.add(peerB)
	tr.removePeer(peerB) // connect failed
	tr.add(peerB)
	tr.assign(peerB, 0x41)
	tr.removeHandle(0x40) // disconnected
	tr.add(peerA)
	tr.assign(peerA, 0x42)

	seenPeer := map[PeerID]bool{}
	seenHandle := map[uint16]bool{}
	tr.mu.Lock()
	defer tr.mu.Unlock()
	for _, c := range tr.conns {
		if seenPeer[c.Peer] {
			t.Fatalf("duplicate entry for peer %s", c.Peer)
		}
		seenPeer[c.Peer] = true
		if c.Handle != 0 {
			if seenHandle[c.Handle] {
				t.Fatalf("duplicate entry for handle 0x%04X", c.Handle)
			}
			seenHandle[c.Handle] = true
		}
	}
}

func TestTrackerPendingDisconnect(t *testing.T) {
	tr := newConnTracker()
	tr.add(peerA)
	tr.assign(peerA, 0x40)
	tr.addPendingDisconnect(peerA, 0x40)
	if !tr.hasPendingDisconnect(peerA) {
		t.Fatal("pending disconnect not recorded")
	}
	peer, ok := tr.resolvePendingDisconnect(0x40)
	if !ok || peer != peerA {
		t.Fatalf("resolve = (%s, %v), want (%s, true)", peer, ok, peerA)
	}
	if tr.hasPendingDisconnect(peerA) {
		t.Fatal("pending disconnect survived resolution")
	}
	if _, ok := tr.resolvePendingDisconnect(0x40); ok {
		t.Fatal("second resolve reported an entry")
	}
}
