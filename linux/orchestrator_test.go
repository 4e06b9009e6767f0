package linux

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

type fakeChannel struct{ closed bool }

func (c *fakeChannel) Close() error { c.closed = true; return nil }

type fakeGatt struct {
	mu          sync.Mutex
	openLevels  []SecurityLevel
	openErr     error
	discoverErr error
}

func (g *fakeGatt) OpenChannel(peer PeerID, level SecurityLevel) (Channel, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.openErr != nil {
		return nil, g.openErr
	}
	g.openLevels = append(g.openLevels, level)
	return &fakeChannel{}, nil
}

func (g *fakeGatt) DiscoverServices(ch Channel) ([]Service, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.discoverErr != nil {
		return nil, g.discoverErr
	}
	return []Service{{Primary: true}}, nil
}

func (g *fakeGatt) Ping(ch Channel) bool { return true }

func (g *fakeGatt) levels() []SecurityLevel {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]SecurityLevel(nil), g.openLevels...)
}

type fakeAuth struct {
	mu       sync.Mutex
	unpaired []PeerID
}

func (a *fakeAuth) SubmitPasskey(peer PeerID, passkey uint32) error { return nil }
func (a *fakeAuth) ConfirmCompare(peer PeerID, accept bool) error   { return nil }
func (a *fakeAuth) Unpair(peer PeerID) error {
	a.mu.Lock()
	a.unpaired = append(a.unpaired, peer)
	a.mu.Unlock()
	return nil
}

func newTestStack(gatt *fakeGatt, auth *fakeAuth) (*HCI, *testShim, *SecurityMachine, *Orchestrator) {
	h, s := newTestEngine()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	entry := log.WithField("hci", 0)
	m := NewSecurityMachine(h, entry, IOCapNoInputNoOutput, false)
	oc := NewOrchestrator(h, m, gatt, auth, entry)
	oc.prePairedDelay = time.Millisecond
	return h, s, m, oc
}

// pump answers controller traffic for the ready-sequence scenario: the
// connect and feature-read commands, and the SMP exchange in which the
// responder declares that the initiator distributes no keys.
func pump(s *testShim, handle uint16, peer PeerID, failPairing bool) {
	for {
		var w []byte
		select {
		case w = <-s.writec:
		case <-s.done:
			return
		}
		switch packetType(w[0]) {
		case typCommandPkt:
			switch writtenOpcode(w) {
			case opLECreateConn:
				s.feed(evtCmdStatus(0x00, opLECreateConn))
			case opLEReadRemoteUsedFeatures:
				s.feed(evtCmdStatus(0x00, opLEReadRemoteUsedFeatures))
				p := make([]byte, 12)
				p[0] = byte(leReadRemoteUsedFeaturesComplete)
				p[1] = 0x00
				o.PutUint16(p[2:], handle)
				p[4] = leFeatureEncryption
				s.feed(append([]byte{byte(typEventPkt), byte(leMeta), byte(len(p))}, p...))
			case opDisconnect:
				s.feed(evtCmdStatus(0x00, opDisconnect))
			default:
				s.feed(evtCmdComplete(writtenOpcode(w), 0x00))
			}
		case typACLDataPkt:
			// Our Pairing Request; answer as the responder.
			if w[9] != smpPairingRequest {
				continue
			}
			if failPairing {
				s.feed(marshalL2CAP(handle, cidSMP, marshalSmpPDU(SmpPairingFailed{Reason: smpReasonPairingNotSupp})))
				continue
			}
			rsp := SmpPairingResponse{
				IOCap: IOCapNoInputNoOutput, AuthReq: authBonding, MaxKeySize: 16,
				InitKeyDist: 0, RespKeyDist: KeyEnc,
			}
			s.feed(marshalL2CAP(handle, cidSMP, marshalSmpPDU(rsp)))
			s.feed(marshalL2CAP(handle, cidSMP, marshalSmpPDU(SmpEncryptionInfo{LTK: [16]byte{9}})))
		}
	}
}

func TestReadySequence(t *testing.T) {
	gatt := &fakeGatt{}
	auth := &fakeAuth{}
	h, s, _, _ := newTestStack(gatt, auth)
	defer h.Close()

	ready := make(chan LinkEvent, 2)
	h.Subscribe(EvtDeviceReady, func(ev LinkEvent) { ready <- ev })
	go pump(s, 0x40, peerA, false)

	if st := h.LEConnect(peerA, DefaultConnParams); !st.Ok() {
		t.Fatalf("connect: %s", st)
	}
	s.feed(evtLEConnComplete(0x00, 0x40, peerA))

	ev := waitEvent(t, ready)
	if ev.Peer != peerA {
		t.Fatalf("ready peer = %s", ev.Peer)
	}
	// Local side is NoInputNoOutput: encryption without authentication.
	if lv := gatt.levels(); len(lv) != 1 || lv[0] != SecurityEncrypted {
		t.Fatalf("channel levels = %v", lv)
	}
	// Exactly once.
	select {
	case <-ready:
		t.Fatal("ready fired twice")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPairingFailureFallsBackUnauthenticated(t *testing.T) {
	gatt := &fakeGatt{}
	auth := &fakeAuth{}
	h, s, _, _ := newTestStack(gatt, auth)
	defer h.Close()

	ready := make(chan LinkEvent, 1)
	h.Subscribe(EvtDeviceReady, func(ev LinkEvent) { ready <- ev })
	go pump(s, 0x40, peerA, true)

	if st := h.LEConnect(peerA, DefaultConnParams); !st.Ok() {
		t.Fatalf("connect: %s", st)
	}
	s.feed(evtLEConnComplete(0x00, 0x40, peerA))

	waitEvent(t, ready)
	lv := gatt.levels()
	if len(lv) != 2 || lv[0] != SecurityEncrypted || lv[1] != SecurityNone {
		t.Fatalf("channel levels = %v, want encrypted then plaintext retry", lv)
	}
	if len(auth.unpaired) != 0 {
		t.Fatal("fresh pairing failure must not unpair")
	}
}

func TestChannelOpenFailureDisconnects(t *testing.T) {
	gatt := &fakeGatt{openErr: errors.New("no channel")}
	auth := &fakeAuth{}
	h, s, _, _ := newTestStack(gatt, auth)
	defer h.Close()

	failed := make(chan LinkEvent, 1)
	h.Subscribe(EvtDeviceFailed, func(ev LinkEvent) { failed <- ev })
	go pump(s, 0x40, peerA, false)

	if st := h.LEConnect(peerA, DefaultConnParams); !st.Ok() {
		t.Fatalf("connect: %s", st)
	}
	s.feed(evtLEConnComplete(0x00, 0x40, peerA))

	ev := waitEvent(t, failed)
	if ev.Status != StatusInternalFailure {
		t.Fatalf("failure status = %s", ev.Status)
	}
}

func TestPrePairedGattFailureUnpairs(t *testing.T) {
	gatt := &fakeGatt{discoverErr: errors.New("att timed out")}
	auth := &fakeAuth{}
	h, _, m, oc := newTestStack(gatt, auth)
	defer h.Close()

	failed := make(chan LinkEvent, 1)
	h.Subscribe(EvtDeviceFailed, func(ev LinkEvent) { failed <- ev })

	// Connection with an open channel and no SMP exchange in flight.
	h.tracker.add(peerA)
	h.tracker.assign(peerA, 0x40)
	d := oc.dev(peerA)
	d.ch = &fakeChannel{}
	m.OnConnect(peerA)

	oc.ClaimPairingState(peerA, PairingCompleted, ModeJustWorks)

	ev := waitEvent(t, failed)
	if ev.Status != StatusAuthFailure {
		t.Fatalf("failure status = %s", ev.Status)
	}
	auth.mu.Lock()
	defer auth.mu.Unlock()
	if len(auth.unpaired) != 1 || auth.unpaired[0] != peerA {
		t.Fatalf("unpaired = %v, want stale keys dropped for %s", auth.unpaired, peerA)
	}
}
