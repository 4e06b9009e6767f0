package linux

import (
	"time"

	"github.com/google/uuid"
)

// EventKind keys listener registration. One listener list per kind.
type EventKind int

const (
	EvtDeviceConnected EventKind = iota
	EvtDeviceConnectFailed
	EvtDeviceDisconnected
	EvtEncryptionChanged
	EvtEncryptionKeyRefreshed
	EvtPairingStateChanged
	EvtLTKRequest
	EvtRemoteFeatures
	EvtPHYUpdate
	EvtDiscovering
	EvtDeviceFound
	EvtDeviceReady
	EvtDeviceFailed
)

// LinkEvent is the abstract event surfaced to listeners. Kind selects
// which payload fields are meaningful. Immutable once dispatched.
type LinkEvent struct {
	Kind    EventKind
	Adapter int
	Peer    PeerID
	At      time.Time

	Status   Status
	Reason   uint8
	Enabled  bool
	ScanType uint8
	Features uint64
	TxPHY    uint8
	RxPHY    uint8
	Rand     uint64
	EDIV     uint16
	State    PairingState
	Mode     PairingMode
	Record   *DiscoveryRecord
}

// LinkEventHandler receives link events for one registered kind.
type LinkEventHandler func(LinkEvent)

// L2CAPFrame is the raw frame context handed to SMP listeners along
// with the decoded PDU. At is the transport read time of the frame.
type L2CAPFrame struct {
	Handle   uint16
	CID      uint16
	Incoming bool
	Payload  []byte
	At       time.Time
}

// SmpHandler receives every SMP PDU routed through the engine,
// unfiltered by kind.
type SmpHandler func(peer PeerID, pdu SmpPDU, f L2CAPFrame)

// DiscoveryRecord is one structured advertising report, produced by the
// external AD/EIR parser.
type DiscoveryRecord struct {
	Peer        PeerID
	EventType   uint8
	Connectable bool
	RSSI        int8
	Name        string
	Services    []uuid.UUID
	Data        []byte
}

// AdvParser turns a raw advertising-report event payload into
// structured discovery records. Implementations must preserve input
// order and drop (not fail on) malformed trailing records.
type AdvParser interface {
	ParseReports(b []byte) []DiscoveryRecord
	ParseExtendedReports(b []byte) []DiscoveryRecord
}

// Channel is an opaque open ATT channel owned by the GATT collaborator.
type Channel interface {
	Close() error
}

// Service is the minimal view of a discovered GATT service.
type Service struct {
	UUID    uuid.UUID
	Primary bool
}

// GattClient is the external GATT collaborator. Any of these failing
// means "device not ready".
type GattClient interface {
	OpenChannel(peer PeerID, level SecurityLevel) (Channel, error)
	DiscoverServices(ch Channel) ([]Service, error)
	Ping(ch Channel) bool
}

// Authenticator is the management/pairing-UX collaborator. It accepts
// user responses and owns stored key material; Unpair removes it.
type Authenticator interface {
	SubmitPasskey(peer PeerID, passkey uint32) error
	ConfirmCompare(peer PeerID, accept bool) error
	Unpair(peer PeerID) error
}
