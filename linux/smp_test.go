package linux

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

type fakeSender struct {
	sent []SmpPDU
	st   Status
}

func (f *fakeSender) SendSMP(peer PeerID, pdu SmpPDU) Status {
	f.sent = append(f.sent, pdu)
	return f.st
}

func newTestMachine(localIO IOCapability, sc bool) (*SecurityMachine, *fakeSender) {
	f := &fakeSender{}
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	m := NewSecurityMachine(f, log.WithField("hci", 0), localIO, sc)
	return m, f
}

// Method-selection matrix, initiator rows by responder columns, in IO
// capability order DisplayOnly, DisplayYesNo, KeyboardOnly,
// NoInputNoOutput, KeyboardDisplay. MITM requested by both sides, no
// OOB data.
var (
	jw = ModeJustWorks
	pi = ModePasskeyEntryInitiator
	pr = ModePasskeyEntryResponder
	nc = ModeNumericCompareInitiator

	methodSC = [5][5]PairingMode{
		{jw, jw, pr, jw, pr},
		{jw, nc, pr, jw, nc},
		{pi, pi, pi, jw, pi},
		{jw, jw, jw, jw, jw},
		{pi, nc, pr, jw, nc},
	}
	methodLegacy = [5][5]PairingMode{
		{jw, jw, pr, jw, pr},
		{jw, jw, pr, jw, pr},
		{pi, pi, pi, jw, pi},
		{jw, jw, jw, jw, jw},
		{pi, pi, pr, jw, pr},
	}
)

func TestPairingMethodMatrix(t *testing.T) {
	caps := []IOCapability{
		IOCapDisplayOnly, IOCapDisplayYesNo, IOCapKeyboardOnly,
		IOCapNoInputNoOutput, IOCapKeyboardDisplay,
	}
	for _, sc := range []bool{true, false} {
		table := methodLegacy
		if sc {
			table = methodSC
		}
		for i, init := range caps {
			for r, resp := range caps {
				got := pairingMethod(sc, authBonding|authMITM, authBonding|authMITM, init, resp, false, false)
				if got != table[i][r] {
					t.Errorf("sc=%v init=%s resp=%s: got %s, want %s",
						sc, init, resp, got, table[i][r])
				}
			}
		}
	}
}

func TestPairingMethodNoMITMIsJustWorks(t *testing.T) {
	got := pairingMethod(true, authBonding, authBonding, IOCapKeyboardDisplay, IOCapKeyboardDisplay, false, false)
	if got != ModeJustWorks {
		t.Fatalf("got %s, want just works", got)
	}
}

func TestPairingMethodOOB(t *testing.T) {
	// Secure Connections: OOB on either side wins.
	if got := pairingMethod(true, authMITM, authMITM, IOCapDisplayOnly, IOCapDisplayOnly, true, false); got != ModeOutOfBand {
		t.Fatalf("sc one-sided oob: got %s", got)
	}
	// Legacy: OOB requires both sides.
	if got := pairingMethod(false, authMITM, authMITM, IOCapKeyboardOnly, IOCapDisplayOnly, true, false); got != ModePasskeyEntryInitiator {
		t.Fatalf("legacy one-sided oob: got %s", got)
	}
	if got := pairingMethod(false, authMITM, authMITM, IOCapKeyboardOnly, IOCapDisplayOnly, true, true); got != ModeOutOfBand {
		t.Fatalf("legacy two-sided oob: got %s", got)
	}
}

func feedIncoming(m *SecurityMachine, pdu SmpPDU) {
	m.HandlePDU(peerA, pdu, L2CAPFrame{Incoming: true, At: time.Now()})
}

func TestKeyDistributionCompletion(t *testing.T) {
	m, _ := newTestMachine(IOCapNoInputNoOutput, false)
	ready := make(chan PairingMode, 1)
	m.onReady(func(peer PeerID, mode PairingMode) { ready <- mode })
	m.OnConnect(peerA)

	// Peer initiates; agreed masks carried in the response.
	feedIncoming(m, SmpPairingRequest{
		IOCap: IOCapNoInputNoOutput, AuthReq: authBonding, MaxKeySize: 16,
		InitKeyDist: KeyEnc | KeyID | KeySign, RespKeyDist: KeyEnc | KeyID | KeySign,
	})
	m.HandlePDU(peerA, SmpPairingResponse{
		IOCap: IOCapNoInputNoOutput, AuthReq: authBonding, MaxKeySize: 16,
		InitKeyDist: KeyEnc | KeyID | KeySign, RespKeyDist: KeyEnc | KeyID | KeySign,
	}, L2CAPFrame{Incoming: false, At: time.Now()})

	// Initiator's keys trickle in; not complete until all three kinds
	// have arrived, responder keys never required.
	feedIncoming(m, SmpEncryptionInfo{LTK: [16]byte{1}})
	feedIncoming(m, SmpMasterIdentification{EDIV: 7, Rand: 9})
	feedIncoming(m, SmpIdentityInfo{IRK: [16]byte{2}})
	feedIncoming(m, SmpIdentityAddrInfo{AddrType: AddrTypePublic, Addr: peerA.Addr})
	if st, _ := m.State(peerA); st == PairingCompleted {
		t.Fatal("completed before signing key arrived")
	}
	feedIncoming(m, SmpSigningInfo{CSRK: [16]byte{3}})
	if st, _ := m.State(peerA); st != PairingCompleted {
		t.Fatalf("state = %s, want completed", st)
	}
	select {
	case mode := <-ready:
		if mode != ModeJustWorks {
			t.Fatalf("ready mode = %s", mode)
		}
	case <-time.After(time.Second):
		t.Fatal("ready never fired")
	}
}

func TestNoOpSuppression(t *testing.T) {
	m, _ := newTestMachine(IOCapNoInputNoOutput, false)
	var events []LinkEvent
	m.onStateChanged(func(ev LinkEvent) { events = append(events, ev) })
	m.OnConnect(peerA)

	feedIncoming(m, SmpPairingRequest{
		IOCap: IOCapNoInputNoOutput, AuthReq: authBonding, MaxKeySize: 16,
		InitKeyDist: KeyEnc,
	})
	feedIncoming(m, SmpPairingConfirm{Value: [16]byte{1}})
	feedIncoming(m, SmpPairingConfirm{Value: [16]byte{2}})

	if len(events) != 2 {
		t.Fatalf("got %d notifications, want 2 (request, key distribution)", len(events))
	}
	if events[1].State != PairingKeyDistribution {
		t.Fatalf("second event state = %s", events[1].State)
	}
}

func TestNotificationCarriesFrameTime(t *testing.T) {
	m, _ := newTestMachine(IOCapNoInputNoOutput, false)
	var got time.Time
	m.onStateChanged(func(ev LinkEvent) { got = ev.At })
	m.OnConnect(peerA)

	at := time.Now().Add(-3 * time.Second)
	m.HandlePDU(peerA, SmpSecurityRequest{AuthReq: authBonding}, L2CAPFrame{Incoming: true, At: at})
	if !got.Equal(at) {
		t.Fatalf("event time = %v, want the frame's read time %v", got, at)
	}
}

func TestPairingFailedDemotes(t *testing.T) {
	m, _ := newTestMachine(IOCapNoInputNoOutput, false)
	demoted := make(chan PeerID, 1)
	m.onDemote(func(peer PeerID) { demoted <- peer })
	m.OnConnect(peerA)

	feedIncoming(m, SmpPairingRequest{IOCap: IOCapNoInputNoOutput, AuthReq: authBonding, MaxKeySize: 16})
	feedIncoming(m, SmpPairingFailed{Reason: smpReasonAuthRequirement})

	st, mode := m.State(peerA)
	if st != PairingFailed || mode != ModeNone {
		t.Fatalf("state = %s mode = %s", st, mode)
	}
	if m.SecurityRequested(peerA) {
		t.Fatal("security-requested flag survived failure")
	}
	select {
	case peer := <-demoted:
		if peer != peerA {
			t.Fatalf("demoted %s", peer)
		}
	case <-time.After(time.Second):
		t.Fatal("demote never fired")
	}
}

func TestClaimCompletedMeansPrePaired(t *testing.T) {
	m, _ := newTestMachine(IOCapNoInputNoOutput, false)
	ready := make(chan PairingMode, 1)
	m.onReady(func(peer PeerID, mode PairingMode) { ready <- mode })
	m.OnConnect(peerA)

	m.ClaimState(peerA, PairingCompleted, ModeJustWorks, time.Now())
	st, mode := m.State(peerA)
	if st != PairingCompleted || mode != ModePrePaired {
		t.Fatalf("state = %s mode = %s, want completed/pre-paired", st, mode)
	}
	select {
	case <-ready:
	case <-time.After(time.Second):
		t.Fatal("ready never fired for reused keys")
	}
}

func TestClaimCompletedIgnoredDuringExchange(t *testing.T) {
	m, _ := newTestMachine(IOCapNoInputNoOutput, false)
	m.OnConnect(peerA)
	feedIncoming(m, SmpPairingRequest{IOCap: IOCapNoInputNoOutput, AuthReq: authBonding, MaxKeySize: 16})

	m.ClaimState(peerA, PairingCompleted, ModeJustWorks, time.Now())
	if st, _ := m.State(peerA); st != PairingFeatureExchangeStarted {
		t.Fatalf("state = %s, claimed completion should be ignored mid-exchange", st)
	}
}

func TestClaimSameStateIsNoOp(t *testing.T) {
	m, _ := newTestMachine(IOCapKeyboardDisplay, false)
	var count int
	m.onStateChanged(func(LinkEvent) { count++ })
	m.OnConnect(peerA)

	m.ClaimState(peerA, PairingPasskeyExpected, ModePasskeyEntryInitiator, time.Now())
	m.ClaimState(peerA, PairingPasskeyExpected, ModePasskeyEntryInitiator, time.Now())
	if count != 1 {
		t.Fatalf("got %d notifications, want 1", count)
	}
}

func TestInitiateSecuritySendsRequest(t *testing.T) {
	m, f := newTestMachine(IOCapKeyboardDisplay, true)
	m.OnConnect(peerA)

	if st := m.InitiateSecurity(peerA, SecurityEncryptedAuthSC); !st.Ok() {
		t.Fatalf("initiate: %s", st)
	}
	if len(f.sent) != 1 {
		t.Fatalf("sent %d pdus, want 1", len(f.sent))
	}
	req, ok := f.sent[0].(SmpPairingRequest)
	if !ok {
		t.Fatalf("sent %T", f.sent[0])
	}
	if !req.AuthReq.MITM() || !req.AuthReq.SecureConnections() || !req.AuthReq.Bonding() {
		t.Fatalf("authreq = 0x%02X", uint8(req.AuthReq))
	}
	if st, _ := m.State(peerA); st != PairingFeatureExchangeStarted {
		t.Fatalf("state = %s", st)
	}
}

func TestSecureConnectionsKeyCompletion(t *testing.T) {
	m, _ := newTestMachine(IOCapNoInputNoOutput, true)
	m.OnConnect(peerA)

	feedIncoming(m, SmpPairingRequest{
		IOCap: IOCapNoInputNoOutput, AuthReq: authBonding | authSC, MaxKeySize: 16,
		InitKeyDist: KeyID | KeySign, RespKeyDist: KeyID | KeySign,
	})
	m.HandlePDU(peerA, SmpPairingResponse{
		IOCap: IOCapNoInputNoOutput, AuthReq: authBonding | authSC, MaxKeySize: 16,
		InitKeyDist: KeyID | KeySign, RespKeyDist: KeyID | KeySign,
	}, L2CAPFrame{Incoming: false, At: time.Now()})

	// No LTK distribution under Secure Connections.
	feedIncoming(m, SmpIdentityInfo{IRK: [16]byte{4}})
	feedIncoming(m, SmpIdentityAddrInfo{AddrType: AddrTypePublic, Addr: peerA.Addr})
	if st, _ := m.State(peerA); st == PairingCompleted {
		t.Fatal("completed before signing key arrived")
	}
	feedIncoming(m, SmpSigningInfo{CSRK: [16]byte{5}})
	if st, _ := m.State(peerA); st != PairingCompleted {
		t.Fatalf("state = %s, want completed", st)
	}
}
