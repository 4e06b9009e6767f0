package blelink

import (
	"github.com/sirupsen/logrus"

	"github.com/XC-/blelink/linux"
)

// Device is one local Bluetooth adapter with its link engine, pairing
// machine and connection orchestrator assembled.
type Device struct {
	hci *linux.HCI
	sm  *linux.SecurityMachine
	orc *linux.Orchestrator
	log *logrus.Logger

	devID      int
	ioCap      linux.IOCapability
	secureConn bool
	parser     linux.AdvParser
	engineOpts []linux.Option
}

// NewDevice opens the HCI device and assembles the stack. gatt and auth
// are the external GATT and pairing-UX collaborators; both are
// required.
func NewDevice(gatt linux.GattClient, auth linux.Authenticator, opts ...Option) (*Device, error) {
	d := &Device{
		log:   logrus.StandardLogger(),
		ioCap: linux.IOCapNoInputNoOutput,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.parser == nil {
		d.parser = NewAdvReportParser()
	}
	eo := []linux.Option{
		linux.WithLogger(d.log),
		linux.WithSecureConnections(d.secureConn),
		linux.WithAdvParser(d.parser),
	}
	eo = append(eo, d.engineOpts...)

	h, err := linux.NewHCI(d.devID, eo...)
	if err != nil {
		return nil, err
	}
	d.hci = h
	entry := d.log.WithField("hci", d.devID)
	d.sm = linux.NewSecurityMachine(h, entry, d.ioCap, d.secureConn)
	d.orc = linux.NewOrchestrator(h, d.sm, gatt, auth, entry)
	return d, nil
}

// Close shuts the adapter down. No listener fires after Close returns.
func (d *Device) Close() error { return d.hci.Close() }

// Addr is the adapter's own device address.
func (d *Device) Addr() linux.Addr { return d.hci.Addr() }

// Handle registers a listener for one link-event kind.
func (d *Device) Handle(kind linux.EventKind, fn linux.LinkEventHandler) {
	d.hci.Subscribe(kind, fn)
}

// Connect initiates an LE connection to peer with default timing.
func (d *Device) Connect(peer linux.PeerID) linux.Status {
	return d.hci.LEConnect(peer, linux.DefaultConnParams)
}

// ConnectWithParams initiates an LE connection with explicit timing.
func (d *Device) ConnectWithParams(peer linux.PeerID, prm linux.ConnParams) linux.Status {
	return d.hci.LEConnect(peer, prm)
}

// Disconnect terminates the connection to peer. Safe to call twice.
func (d *Device) Disconnect(peer linux.PeerID) linux.Status {
	return d.hci.Disconnect(peer, linux.ReasonRemoteUserTerminated)
}

// Scan starts LE discovery; results arrive as EvtDeviceFound events
// when an advertising parser is configured.
func (d *Device) Scan(active, filterDuplicates bool) linux.Status {
	return d.hci.Scan(active, filterDuplicates)
}

// StopScan stops LE discovery.
func (d *Device) StopScan() linux.Status { return d.hci.StopScan() }

// SetAdvertisement programs the advertising and scan response
// payloads. scanRsp may be nil.
func (d *Device) SetAdvertisement(adv, scanRsp *AdvPayload) linux.Status {
	n, b := adv.Packed()
	if st := d.hci.SetAdvertisingData(n, b); !st.Ok() {
		return st
	}
	if scanRsp == nil {
		return linux.StatusSuccess
	}
	n, b = scanRsp.Packed()
	return d.hci.SetScanResponseData(n, b)
}

// Advertise enables advertising with the current parameters.
func (d *Device) Advertise() linux.Status { return d.hci.Advertise() }

// StopAdvertising disables advertising.
func (d *Device) StopAdvertising() linux.Status { return d.hci.StopAdvertising() }

// SetSecurityLevel records the wanted link security for peer; it is
// applied on the next connection sequence.
func (d *Device) SetSecurityLevel(peer linux.PeerID, level linux.SecurityLevel) {
	d.sm.SetSecurityLevel(peer, level)
}

// PairingState reports the current pairing progression for peer.
func (d *Device) PairingState(peer linux.PeerID) (linux.PairingState, linux.PairingMode) {
	return d.sm.State(peer)
}

// ClaimPairingState feeds an externally-observed pairing state (e.g. a
// passkey request surfaced by the pairing agent) into the machine.
func (d *Device) ClaimPairingState(peer linux.PeerID, state linux.PairingState, mode linux.PairingMode) {
	d.orc.ClaimPairingState(peer, state, mode)
}

// Engine exposes the underlying link engine for callers that need the
// full command surface.
func (d *Device) Engine() *linux.HCI { return d.hci }
