// +build linux

// Package agent bridges the BlueZ pairing UX into the link engine. It
// exports an org.bluez.Agent1 object on the system bus and translates
// its callbacks into externally-claimed pairing states, while
// implementing the engine's Authenticator for user responses.
package agent

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	dbus "github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"

	"github.com/XC-/blelink/linux"
)

const (
	bluezService      = "org.bluez"
	agentIface        = "org.bluez.Agent1"
	agentManagerIface = "org.bluez.AgentManager1"
	adapterIface      = "org.bluez.Adapter1"
	agentPath         = dbus.ObjectPath("/com/xc/blelink/agent")
)

var errRejected = &dbus.Error{Name: "org.bluez.Error.Rejected"}
var errCanceled = &dbus.Error{Name: "org.bluez.Error.Canceled"}

// ErrNoPending is returned when a user response arrives with no pairing
// request outstanding for that peer.
var ErrNoPending = errors.New("agent: no pending request for peer")

// Claimer receives externally-observed pairing states; the device
// facade satisfies it.
type Claimer interface {
	ClaimPairingState(peer linux.PeerID, state linux.PairingState, mode linux.PairingMode)
}

type pendingRequest struct {
	passkey chan uint32
	confirm chan bool
	cancel  chan struct{}
}

// Agent is the exported pairing agent. It satisfies linux.Authenticator.
type Agent struct {
	bus         *dbus.Conn
	log         *logrus.Entry
	claimer     Claimer
	adapterPath dbus.ObjectPath
	timeout     time.Duration

	mu      sync.Mutex
	pending map[linux.PeerID]*pendingRequest
}

// New connects to the system bus, exports the agent object and
// registers it as the default agent. capability is the BlueZ
// capability string, e.g. "KeyboardDisplay" or "NoInputNoOutput".
func New(claimer Claimer, capability string, adapterID int, log *logrus.Entry) (*Agent, error) {
	bus, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("agent: connect system bus: %w", err)
	}
	a := &Agent{
		bus:         bus,
		log:         log,
		claimer:     claimer,
		adapterPath: dbus.ObjectPath(fmt.Sprintf("/org/bluez/hci%d", adapterID)),
		timeout:     60 * time.Second,
		pending:     make(map[linux.PeerID]*pendingRequest),
	}
	if err := bus.Export(a, agentPath, agentIface); err != nil {
		return nil, fmt.Errorf("agent: export: %w", err)
	}
	mgr := bus.Object(bluezService, dbus.ObjectPath("/org/bluez"))
	if call := mgr.Call(agentManagerIface+".RegisterAgent", 0, agentPath, capability); call.Err != nil {
		return nil, fmt.Errorf("agent: register: %w", call.Err)
	}
	if call := mgr.Call(agentManagerIface+".RequestDefaultAgent", 0, agentPath); call.Err != nil {
		a.log.WithError(call.Err).Warn("could not become default agent")
	}
	return a, nil
}

// Close unregisters the agent and releases the bus connection.
func (a *Agent) Close() error {
	mgr := a.bus.Object(bluezService, dbus.ObjectPath("/org/bluez"))
	if call := mgr.Call(agentManagerIface+".UnregisterAgent", 0, agentPath); call.Err != nil {
		a.log.WithError(call.Err).Debug("unregister agent")
	}
	return a.bus.Close()
}

// peerFromPath parses a BlueZ device object path such as
// /org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF into a PeerID.
func peerFromPath(path dbus.ObjectPath) (linux.PeerID, error) {
	s := string(path)
	i := strings.LastIndex(s, "dev_")
	if i < 0 {
		return linux.PeerID{}, fmt.Errorf("agent: no device in path %q", s)
	}
	parts := strings.Split(s[i+4:], "_")
	if len(parts) != 6 {
		return linux.PeerID{}, fmt.Errorf("agent: malformed address in path %q", s)
	}
	var addr linux.Addr
	for j, p := range parts {
		var b byte
		if _, err := fmt.Sscanf(p, "%02X", &b); err != nil {
			return linux.PeerID{}, fmt.Errorf("agent: malformed address in path %q", s)
		}
		addr[j] = b
	}
	return linux.PeerID{Addr: addr, Type: linux.AddrTypePublic}, nil
}

func (a *Agent) request(peer linux.PeerID) *pendingRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	r, ok := a.pending[peer]
	if !ok {
		r = &pendingRequest{
			passkey: make(chan uint32, 1),
			confirm: make(chan bool, 1),
			cancel:  make(chan struct{}),
		}
		a.pending[peer] = r
	}
	return r
}

func (a *Agent) drop(peer linux.PeerID) {
	a.mu.Lock()
	delete(a.pending, peer)
	a.mu.Unlock()
}

// Release is called by BlueZ when the agent is unregistered.
func (a *Agent) Release() *dbus.Error { return nil }

// RequestPasskey blocks until the application supplies a passkey via
// SubmitPasskey or the request times out.
func (a *Agent) RequestPasskey(device dbus.ObjectPath) (uint32, *dbus.Error) {
	peer, err := peerFromPath(device)
	if err != nil {
		a.log.WithError(err).Warn("passkey request for unparseable device")
		return 0, errRejected
	}
	a.claimer.ClaimPairingState(peer, linux.PairingPasskeyExpected, linux.ModePasskeyEntryInitiator)
	r := a.request(peer)
	defer a.drop(peer)
	select {
	case pk := <-r.passkey:
		return pk, nil
	case <-r.cancel:
		return 0, errCanceled
	case <-time.After(a.timeout):
		return 0, errCanceled
	}
}

// DisplayPasskey surfaces a responder-input passkey.
func (a *Agent) DisplayPasskey(device dbus.ObjectPath, passkey uint32, entered uint16) *dbus.Error {
	peer, err := peerFromPath(device)
	if err != nil {
		return errRejected
	}
	a.log.Infof("display passkey %06d for %s (%d entered)", passkey, peer, entered)
	a.claimer.ClaimPairingState(peer, linux.PairingPasskeyExpected, linux.ModePasskeyEntryResponder)
	return nil
}

// RequestConfirmation blocks until the application confirms or denies
// the numeric comparison via ConfirmCompare.
func (a *Agent) RequestConfirmation(device dbus.ObjectPath, passkey uint32) *dbus.Error {
	peer, err := peerFromPath(device)
	if err != nil {
		return errRejected
	}
	a.log.Infof("confirm passkey %06d for %s", passkey, peer)
	a.claimer.ClaimPairingState(peer, linux.PairingNumericCompareExpected, linux.ModeNumericCompareInitiator)
	r := a.request(peer)
	defer a.drop(peer)
	select {
	case ok := <-r.confirm:
		if !ok {
			return errRejected
		}
		return nil
	case <-r.cancel:
		return errCanceled
	case <-time.After(a.timeout):
		return errCanceled
	}
}

// RequestAuthorization approves just-works pairing.
func (a *Agent) RequestAuthorization(device dbus.ObjectPath) *dbus.Error {
	return nil
}

// AuthorizeService approves service connections unconditionally; the
// engine's own security level decides what the link allows.
func (a *Agent) AuthorizeService(device dbus.ObjectPath, uuid string) *dbus.Error {
	return nil
}

// Cancel aborts the outstanding request for every pending peer. A
// canceled blocked request answers BlueZ with org.bluez.Error.Canceled,
// never with a zero-value passkey.
func (a *Agent) Cancel() *dbus.Error {
	a.mu.Lock()
	for peer, r := range a.pending {
		close(r.cancel)
		delete(a.pending, peer)
	}
	a.mu.Unlock()
	return nil
}

// SubmitPasskey implements linux.Authenticator.
func (a *Agent) SubmitPasskey(peer linux.PeerID, passkey uint32) error {
	a.mu.Lock()
	r, ok := a.pending[peer]
	a.mu.Unlock()
	if !ok {
		return ErrNoPending
	}
	select {
	case r.passkey <- passkey:
		return nil
	default:
		return ErrNoPending
	}
}

// ConfirmCompare implements linux.Authenticator.
func (a *Agent) ConfirmCompare(peer linux.PeerID, accept bool) error {
	a.mu.Lock()
	r, ok := a.pending[peer]
	a.mu.Unlock()
	if !ok {
		return ErrNoPending
	}
	select {
	case r.confirm <- accept:
		return nil
	default:
		return ErrNoPending
	}
}

// Unpair implements linux.Authenticator: it removes the stored bond via
// the adapter, which discards stale key material.
func (a *Agent) Unpair(peer linux.PeerID) error {
	devPath := dbus.ObjectPath(fmt.Sprintf("%s/dev_%s", a.adapterPath,
		strings.ReplaceAll(peer.Addr.String(), ":", "_")))
	obj := a.bus.Object(bluezService, a.adapterPath)
	if call := obj.Call(adapterIface+".RemoveDevice", 0, devPath); call.Err != nil {
		return fmt.Errorf("agent: remove device: %w", call.Err)
	}
	return nil
}
