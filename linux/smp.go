package linux

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// SMP Pairing Failed reason codes [Vol 3, Part H, 3.5.5].
const (
	smpReasonPasskeyFailed   = 0x01
	smpReasonOOBNotAvailable = 0x02
	smpReasonAuthRequirement = 0x03
	smpReasonConfirmFailed   = 0x04
	smpReasonPairingNotSupp  = 0x05
	smpReasonEncKeySize      = 0x06
	smpReasonUnspecified     = 0x08
)

const defaultMaxKeySize = 16

// smpSender is the outbound PDU path the machine needs from the engine.
type smpSender interface {
	SendSMP(peer PeerID, pdu SmpPDU) Status
}

// sideKeys holds the key material distributed by one side of a pairing,
// and the mask of keys received so far from that side.
type sideKeys struct {
	ltk      [16]byte
	haveLTK  bool
	ediv     uint16
	rand     uint64
	irk      [16]byte
	identity *PeerID
	csrk     [16]byte
	received KeyDist
}

// pairingData is the per-connection pairing context. requestedLevel and
// localIO are user preferences and survive reconnects; everything else
// is reset when a new connection is established.
type pairingData struct {
	mu sync.Mutex

	requestedLevel SecurityLevel
	haveRequested  bool
	localIO        IOCapability

	state             PairingState
	mode              PairingMode
	negotiatedLevel   SecurityLevel
	securityRequested bool
	secureConn        bool
	peerIsInitiator   bool

	initAuth, respAuth     AuthReq
	initIO, respIO         IOCapability
	initOOB, respOOB       bool
	initMaxKey, respMaxKey uint8
	initExpected           KeyDist
	respExpected           KeyDist

	initKeys sideKeys
	respKeys sideKeys
}

func (pd *pairingData) reset() {
	pd.state = PairingNone
	pd.mode = ModeNone
	pd.negotiatedLevel = SecurityNone
	pd.securityRequested = false
	pd.secureConn = false
	pd.peerIsInitiator = false
	pd.initAuth, pd.respAuth = 0, 0
	pd.initIO, pd.respIO = 0, 0
	pd.initOOB, pd.respOOB = false, false
	pd.initMaxKey, pd.respMaxKey = 0, 0
	pd.initExpected, pd.respExpected = 0, 0
	pd.initKeys = sideKeys{}
	pd.respKeys = sideKeys{}
}

// SecurityMachine is the per-adapter SMP pairing state machine. One
// pairingData per peer, each guarded by its own lock; the machine-level
// lock only guards the peer map.
type SecurityMachine struct {
	sender smpSender
	log    *logrus.Entry

	localIO    IOCapability
	secureConn bool

	mu    sync.Mutex
	peers map[PeerID]*pairingData

	// notify delivers PairingStateChanged; ready and demote are the
	// orchestrator hand-offs. All may be nil.
	notify func(LinkEvent)
	ready  func(peer PeerID, mode PairingMode)
	demote func(peer PeerID)
}

// NewSecurityMachine builds a machine bound to the engine's SMP send
// path. localIO and secureConn describe the local adapter.
func NewSecurityMachine(sender smpSender, log *logrus.Entry, localIO IOCapability, secureConn bool) *SecurityMachine {
	return &SecurityMachine{
		sender:     sender,
		log:        log,
		localIO:    localIO,
		secureConn: secureConn,
		peers:      make(map[PeerID]*pairingData),
	}
}

func (m *SecurityMachine) onStateChanged(fn func(LinkEvent))    { m.notify = fn }
func (m *SecurityMachine) onReady(fn func(PeerID, PairingMode)) { m.ready = fn }
func (m *SecurityMachine) onDemote(fn func(PeerID))             { m.demote = fn }

func (m *SecurityMachine) data(peer PeerID) *pairingData {
	m.mu.Lock()
	defer m.mu.Unlock()
	pd, ok := m.peers[peer]
	if !ok {
		pd = &pairingData{localIO: m.localIO}
		m.peers[peer] = pd
	}
	return pd
}

// OnConnect resets the pairing bookkeeping for a fresh connection. User
// preferences set through SetSecurityLevel survive.
func (m *SecurityMachine) OnConnect(peer PeerID) {
	pd := m.data(peer)
	pd.mu.Lock()
	pd.reset()
	pd.mu.Unlock()
}

// OnDisconnect clears the non-persistent pairing state.
func (m *SecurityMachine) OnDisconnect(peer PeerID) {
	pd := m.data(peer)
	pd.mu.Lock()
	pd.reset()
	pd.mu.Unlock()
}

// SetSecurityLevel records the user-requested level for peer. It is a
// preference, consulted when the orchestrator computes the channel
// security level, and survives reconnects.
func (m *SecurityMachine) SetSecurityLevel(peer PeerID, level SecurityLevel) {
	pd := m.data(peer)
	pd.mu.Lock()
	pd.requestedLevel = level
	pd.haveRequested = true
	pd.mu.Unlock()
}

// RequestedLevel returns the user preference, if one was set.
func (m *SecurityMachine) RequestedLevel(peer PeerID) (SecurityLevel, bool) {
	pd := m.data(peer)
	pd.mu.Lock()
	defer pd.mu.Unlock()
	return pd.requestedLevel, pd.haveRequested
}

// State returns the current pairing state and mode for peer.
func (m *SecurityMachine) State(peer PeerID) (PairingState, PairingMode) {
	pd := m.data(peer)
	pd.mu.Lock()
	defer pd.mu.Unlock()
	return pd.state, pd.mode
}

// SecurityRequested reports whether the peer asked for pairing with a
// Security Request PDU on this connection.
func (m *SecurityMachine) SecurityRequested(peer PeerID) bool {
	pd := m.data(peer)
	pd.mu.Lock()
	defer pd.mu.Unlock()
	return pd.securityRequested
}

// InitiateSecurity starts a fresh feature exchange toward peer for the
// given level. We are the initiator, so the sent request seeds the
// initiator side of the context.
func (m *SecurityMachine) InitiateSecurity(peer PeerID, level SecurityLevel) Status {
	var auth AuthReq = authBonding
	if level >= SecurityEncryptedAuth {
		auth |= authMITM
	}
	if level >= SecurityEncryptedAuthSC && m.secureConn {
		auth |= authSC
	}
	req := SmpPairingRequest{
		IOCap:       m.localIO,
		AuthReq:     auth,
		MaxKeySize:  defaultMaxKeySize,
		InitKeyDist: KeyEnc | KeyID | KeySign,
		RespKeyDist: KeyEnc | KeyID | KeySign,
	}
	st := m.sender.SendSMP(peer, req)
	if !st.Ok() {
		return st
	}
	m.HandlePDU(peer, req, L2CAPFrame{Incoming: false, At: time.Now()})
	return StatusSuccess
}

// HandlePDU consumes one SMP PDU for peer, either incoming (from the
// engine's SMP routing) or outgoing (recorded by InitiateSecurity). The
// per-connection lock is taken exactly once and released before any
// notification or follow-up runs.
func (m *SecurityMachine) HandlePDU(peer PeerID, pdu SmpPDU, f L2CAPFrame) {
	pd := m.data(peer)
	pd.mu.Lock()
	prev := pd.state
	m.apply(pd, pdu, f)
	if pd.state == PairingKeyDistribution && m.complete(pd) {
		pd.state = PairingCompleted
	}
	next, mode := pd.state, pd.mode
	pd.mu.Unlock()

	if next == prev {
		return
	}
	m.emit(peer, next, mode, f.At)
	switch next {
	case PairingCompleted:
		m.scheduleReady(peer, mode)
	case PairingFailed:
		if m.demote != nil {
			go m.demote(peer)
		}
	}
}

// apply is the transition function proper. Called with pd.mu held.
func (m *SecurityMachine) apply(pd *pairingData, pdu SmpPDU, f L2CAPFrame) {
	switch p := pdu.(type) {
	case SmpSecurityRequest:
		pd.mode = ModeNegotiating
		pd.state = PairingRequestedByResponder
		pd.securityRequested = true

	case SmpPairingRequest:
		// Whoever sends the request is the initiator.
		pd.peerIsInitiator = f.Incoming
		pd.mode = ModeNegotiating
		pd.state = PairingFeatureExchangeStarted
		pd.initAuth = p.AuthReq
		pd.initIO = p.IOCap
		pd.initOOB = p.OOBFlag == oobPresent
		pd.initMaxKey = p.MaxKeySize
		pd.initExpected = p.InitKeyDist

	case SmpPairingResponse:
		pd.respAuth = p.AuthReq
		pd.respIO = p.IOCap
		pd.respOOB = p.OOBFlag == oobPresent
		pd.respMaxKey = p.MaxKeySize
		// The response carries the agreed masks for both sides,
		// overriding the request's wishes.
		pd.initExpected = p.InitKeyDist
		pd.respExpected = p.RespKeyDist
		pd.secureConn = pd.initAuth.SecureConnections() && pd.respAuth.SecureConnections()
		pd.mode = pairingMethod(pd.secureConn, pd.initAuth, pd.respAuth,
			pd.initIO, pd.respIO, pd.initOOB, pd.respOOB)
		pd.state = PairingFeatureExchangeCompleted

	case SmpPairingConfirm, SmpPairingPublicKey, SmpPairingRandom, SmpPairingDHKeyCheck:
		// The confirm/random/public-key rounds collapse into one
		// observable state.
		if pd.inProgress() {
			pd.state = PairingKeyDistribution
		}

	case SmpPairingFailed:
		m.log.Warnf("pairing failed, reason 0x%02X", p.Reason)
		pd.mode = ModeNone
		pd.state = PairingFailed
		pd.securityRequested = false
		pd.negotiatedLevel = SecurityNone

	case SmpEncryptionInfo:
		if !pd.inProgress() {
			return
		}
		pd.state = PairingKeyDistribution
		k := pd.sideFor(f.Incoming)
		k.ltk = p.LTK
		k.haveLTK = true

	case SmpMasterIdentification:
		if !pd.inProgress() {
			return
		}
		pd.state = PairingKeyDistribution
		k := pd.sideFor(f.Incoming)
		k.ediv = p.EDIV
		k.rand = p.Rand
		k.received |= KeyEnc

	case SmpIdentityInfo:
		if !pd.inProgress() {
			return
		}
		pd.state = PairingKeyDistribution
		k := pd.sideFor(f.Incoming)
		k.irk = p.IRK

	case SmpIdentityAddrInfo:
		if !pd.inProgress() {
			return
		}
		pd.state = PairingKeyDistribution
		k := pd.sideFor(f.Incoming)
		id := PeerID{Addr: p.Addr, Type: p.AddrType}
		k.identity = &id
		k.received |= KeyID

	case SmpSigningInfo:
		if !pd.inProgress() {
			return
		}
		pd.state = PairingKeyDistribution
		k := pd.sideFor(f.Incoming)
		k.csrk = p.CSRK
		k.received |= KeySign

	case SmpKeypressNotify:
		// Informational only.
	}
}

// inProgress reports whether a pairing exchange can still advance:
// neither completed nor failed.
func (pd *pairingData) inProgress() bool { return pd.state < PairingCompleted }

// sideFor attributes a key PDU to its sender's role: flow direction
// decides, not our local role.
func (pd *pairingData) sideFor(incoming bool) *sideKeys {
	senderIsInitiator := pd.peerIsInitiator == incoming
	if senderIsInitiator {
		return &pd.initKeys
	}
	return &pd.respKeys
}

// complete reports whether key distribution has finished. The responder
// may skip sending its keys, so only the initiator's side is judged:
// every key the agreed mask expected from the initiator must have been
// received.
func (m *SecurityMachine) complete(pd *pairingData) bool {
	relevant := KeyEnc | KeyID | KeySign
	if pd.secureConn {
		// Under Secure Connections the LTK is generated, not
		// distributed.
		relevant = KeyID | KeySign | KeyLink
	}
	want := pd.initExpected & relevant
	return pd.initKeys.received.Covers(want)
}

// ClaimState force-asserts a pairing state observed out of band, e.g. a
// passkey-request surfaced by the pairing agent. The no-op rule is the
// same as for PDUs; a claimed COMPLETED additionally requires that no
// feature exchange is underway, which models stored-key reuse.
func (m *SecurityMachine) ClaimState(peer PeerID, state PairingState, mode PairingMode, at time.Time) {
	pd := m.data(peer)
	pd.mu.Lock()
	prev := pd.state
	if state == PairingCompleted {
		if prev >= PairingFeatureExchangeStarted {
			pd.mu.Unlock()
			m.log.Debugf("ignoring claimed completion for %s: exchange in progress", peer)
			return
		}
		mode = ModePrePaired
	}
	if state == prev {
		pd.mu.Unlock()
		return
	}
	pd.state = state
	pd.mode = mode
	pd.mu.Unlock()

	m.emit(peer, state, mode, at)
	if state == PairingCompleted {
		m.scheduleReady(peer, mode)
	}
}

// SubmitPasskey forwards a user-entered passkey while the machine is in
// a passkey-expected state.
func (m *SecurityMachine) SubmitPasskey(peer PeerID, auth Authenticator, passkey uint32) error {
	return auth.SubmitPasskey(peer, passkey)
}

func (m *SecurityMachine) emit(peer PeerID, state PairingState, mode PairingMode, at time.Time) {
	m.log.WithFields(logrus.Fields{"peer": peer.String(), "state": state.String(), "mode": mode.String()}).
		Debug("pairing state changed")
	if m.notify == nil {
		return
	}
	m.notify(LinkEvent{Kind: EvtPairingStateChanged, Peer: peer, State: state, Mode: mode, At: at})
}

// scheduleReady hands completion off to a separate task. Running it
// inline would let a reader-loop delivery block on work that itself
// needs the reader loop.
func (m *SecurityMachine) scheduleReady(peer PeerID, mode PairingMode) {
	if m.ready == nil {
		return
	}
	go m.ready(peer, mode)
}
