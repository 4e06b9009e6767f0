package linux

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// leFeatureEncryption is bit 0 of the LE feature set.
const leFeatureEncryption = 1 << 0

// defaultPrePairedDelay is the settle time before the first GATT access
// after stored-key reuse; immediate requests after key reuse are
// unreliable on common controllers.
const defaultPrePairedDelay = 500 * time.Millisecond

// devState is the orchestrator's per-device progress. readying is the
// single-flight guard for GATT discovery: discovery is never invoked
// concurrently for the same device.
type devState struct {
	ch       Channel
	level    SecurityLevel
	readying bool
	ready    bool
}

// Orchestrator sequences a device from connected to ready: remote
// feature read, ATT channel open at a computed security level, SMP if
// required, then GATT discovery.
type Orchestrator struct {
	hci  *HCI
	sm   *SecurityMachine
	gatt GattClient
	auth Authenticator
	log  *logrus.Entry

	prePairedDelay time.Duration

	mu   sync.Mutex
	devs map[PeerID]*devState
}

// NewOrchestrator wires the machine into the engine's SMP routing and
// subscribes to the link events that drive the ready sequence.
func NewOrchestrator(h *HCI, sm *SecurityMachine, gatt GattClient, auth Authenticator, log *logrus.Entry) *Orchestrator {
	oc := &Orchestrator{
		hci:            h,
		sm:             sm,
		gatt:           gatt,
		auth:           auth,
		log:            log,
		prePairedDelay: defaultPrePairedDelay,
		devs:           make(map[PeerID]*devState),
	}
	h.Subscribe(EvtDeviceConnected, oc.onConnected)
	h.Subscribe(EvtDeviceDisconnected, oc.onDisconnected)
	h.Subscribe(EvtRemoteFeatures, oc.onFeatures)
	h.HandleSMP(sm.HandlePDU)
	sm.onStateChanged(h.dispatch)
	sm.onReady(oc.onSecured)
	sm.onDemote(oc.demote)
	return oc
}

func (oc *Orchestrator) dev(peer PeerID) *devState {
	oc.mu.Lock()
	defer oc.mu.Unlock()
	d, ok := oc.devs[peer]
	if !ok {
		d = &devState{}
		oc.devs[peer] = d
	}
	return d
}

func (oc *Orchestrator) onConnected(ev LinkEvent) {
	peer := ev.Peer
	oc.sm.OnConnect(peer)
	oc.mu.Lock()
	oc.devs[peer] = &devState{}
	oc.mu.Unlock()
	// Feature read is a command; never issued from the reader loop.
	go func() {
		if st := oc.hci.ReadRemoteFeatures(peer); !st.Ok() {
			oc.log.Warnf("remote feature read for %s failed: %s", peer, st)
		}
	}()
}

func (oc *Orchestrator) onDisconnected(ev LinkEvent) {
	peer := ev.Peer
	oc.sm.OnDisconnect(peer)
	oc.mu.Lock()
	d := oc.devs[peer]
	delete(oc.devs, peer)
	oc.mu.Unlock()
	if d != nil && d.ch != nil {
		if err := d.ch.Close(); err != nil {
			oc.log.WithError(err).Debugf("att channel close for %s", peer)
		}
	}
}

func (oc *Orchestrator) onFeatures(ev LinkEvent) {
	if !ev.Status.Ok() {
		oc.log.Warnf("remote features for %s: %s", ev.Peer, ev.Status)
		return
	}
	peer := ev.Peer
	d := oc.dev(peer)
	oc.mu.Lock()
	open := d.ch != nil
	oc.mu.Unlock()
	if open {
		return
	}
	level := oc.securityLevel(peer, ev.Features)
	go oc.establish(peer, level)
}

// securityLevel computes the target channel security: an explicit user
// preference wins; a keyboard-less, display-less local side cannot
// authenticate, so it gets encryption only; otherwise a peer that
// signals encryption interest gets the highest level the adapter
// supports, and an indifferent peer gets plaintext.
func (oc *Orchestrator) securityLevel(peer PeerID, features uint64) SecurityLevel {
	if level, ok := oc.sm.RequestedLevel(peer); ok {
		return level
	}
	if oc.sm.localIO == IOCapNoInputNoOutput {
		return SecurityEncrypted
	}
	if oc.sm.SecurityRequested(peer) || features&leFeatureEncryption != 0 {
		if oc.hci.SecureConnectionsSupported() {
			return SecurityEncryptedAuthSC
		}
		return SecurityEncryptedAuth
	}
	return SecurityNone
}

// establish opens the ATT channel at level and, if security is wanted,
// starts the SMP exchange. A channel that cannot open force-disconnects
// the device.
func (oc *Orchestrator) establish(peer PeerID, level SecurityLevel) {
	ch, err := oc.gatt.OpenChannel(peer, level)
	if err != nil {
		oc.log.WithError(err).Errorf("att channel open for %s at %s", peer, level)
		oc.hci.Disconnect(peer, ReasonInternalFailure)
		oc.hci.dispatch(LinkEvent{Kind: EvtDeviceFailed, Peer: peer, Status: StatusInternalFailure, At: time.Now()})
		return
	}
	d := oc.dev(peer)
	oc.mu.Lock()
	d.ch = ch
	d.level = level
	oc.mu.Unlock()

	if level == SecurityNone {
		oc.finishReady(peer, ModeNone)
		return
	}
	if st := oc.sm.InitiateSecurity(peer, level); !st.Ok() {
		oc.log.Warnf("pairing request to %s failed: %s, proceeding unauthenticated", peer, st)
		oc.finishReady(peer, ModeNone)
	}
}

// onSecured runs on the machine's ready hand-off, off the reader loop.
func (oc *Orchestrator) onSecured(peer PeerID, mode PairingMode) {
	oc.finishReady(peer, mode)
}

// demote is the Pairing-Failed fallback: drop to plaintext and reopen
// the ATT channel so GATT access proceeds unauthenticated. The failure
// becomes fatal only if the GATT step then fails too.
func (oc *Orchestrator) demote(peer PeerID) {
	d := oc.dev(peer)
	oc.mu.Lock()
	ch := d.ch
	d.ch = nil
	d.level = SecurityNone
	oc.mu.Unlock()
	if ch != nil {
		if err := ch.Close(); err != nil {
			oc.log.WithError(err).Debugf("att channel close for %s", peer)
		}
	}
	oc.establish(peer, SecurityNone)
}

// finishReady runs GATT discovery and reports the terminal outcome for
// this connection attempt. Single-flight per device; the ready event
// fires at most once per connection.
func (oc *Orchestrator) finishReady(peer PeerID, mode PairingMode) {
	d := oc.dev(peer)
	oc.mu.Lock()
	if d.readying || d.ready {
		oc.mu.Unlock()
		return
	}
	d.readying = true
	ch := d.ch
	oc.mu.Unlock()

	defer func() {
		oc.mu.Lock()
		d.readying = false
		oc.mu.Unlock()
	}()

	if ch == nil {
		oc.log.Warnf("device %s secured with no open att channel", peer)
		return
	}
	if mode == ModePrePaired {
		time.Sleep(oc.prePairedDelay)
	}
	svcs, err := oc.gatt.DiscoverServices(ch)
	if err != nil {
		oc.log.WithError(err).Warnf("gatt discovery for %s", peer)
		if mode == ModePrePaired {
			// Stale stored keys: drop them rather than leaving the
			// device wedged.
			if uerr := oc.auth.Unpair(peer); uerr != nil {
				oc.log.WithError(uerr).Warnf("unpair for %s", peer)
			}
			oc.hci.dispatch(LinkEvent{Kind: EvtDeviceFailed, Peer: peer, Status: StatusAuthFailure, At: time.Now()})
			return
		}
		oc.hci.Disconnect(peer, ReasonInternalFailure)
		oc.hci.dispatch(LinkEvent{Kind: EvtDeviceFailed, Peer: peer, Status: StatusInternalFailure, At: time.Now()})
		return
	}
	oc.log.Infof("device %s ready, %d services", peer, len(svcs))
	oc.mu.Lock()
	d.ready = true
	oc.mu.Unlock()
	oc.hci.dispatch(LinkEvent{Kind: EvtDeviceReady, Peer: peer, At: time.Now()})
}

// ClaimPairingState forwards an externally-observed pairing state, e.g.
// from the pairing agent, into the machine.
func (oc *Orchestrator) ClaimPairingState(peer PeerID, state PairingState, mode PairingMode) {
	oc.sm.ClaimState(peer, state, mode, time.Now())
}
