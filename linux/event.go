package linux

import "fmt"

type eventCode uint8

const (
	connectionComplete           eventCode = 0x03
	disconnectionComplete        eventCode = 0x05
	encryptionChange             eventCode = 0x08
	readRemoteFeaturesComplete   eventCode = 0x0B
	commandComplete              eventCode = 0x0E
	commandStatus                eventCode = 0x0F
	hardwareError                eventCode = 0x10
	numberOfCompletedPkts        eventCode = 0x13
	encryptionKeyRefreshComplete eventCode = 0x30
	leMeta                       eventCode = 0x3E
)

var eventName = map[eventCode]string{
	connectionComplete:           "Connection Complete",
	disconnectionComplete:        "Disconnection Complete",
	encryptionChange:             "Encryption Change",
	readRemoteFeaturesComplete:   "Read Remote Supported Features Complete",
	commandComplete:              "Command Complete",
	commandStatus:                "Command Status",
	hardwareError:                "Hardware Error",
	numberOfCompletedPkts:        "Number Of Completed Packets",
	encryptionKeyRefreshComplete: "Encryption Key Refresh Complete",
	leMeta:                       "LE Meta",
}

func (e eventCode) String() string {
	if n, ok := eventName[e]; ok {
		return n
	}
	return fmt.Sprintf("event 0x%02X", uint8(e))
}

type leEventCode uint8

const (
	leConnectionComplete             leEventCode = 0x01
	leAdvertisingReport              leEventCode = 0x02
	leConnectionUpdateComplete       leEventCode = 0x03
	leReadRemoteUsedFeaturesComplete leEventCode = 0x04
	leLTKRequest                     leEventCode = 0x05
	leEnhancedConnectionComplete     leEventCode = 0x0A
	lePHYUpdateComplete              leEventCode = 0x0C
	leExtendedAdvertisingReport      leEventCode = 0x0D
)

var leEventName = map[leEventCode]string{
	leConnectionComplete:             "LE Connection Complete",
	leAdvertisingReport:              "LE Advertising Report",
	leConnectionUpdateComplete:       "LE Connection Update Complete",
	leReadRemoteUsedFeaturesComplete: "LE Read Remote Used Features Complete",
	leLTKRequest:                     "LE LTK Request",
	leEnhancedConnectionComplete:     "LE Enhanced Connection Complete",
	lePHYUpdateComplete:              "LE PHY Update Complete",
	leExtendedAdvertisingReport:      "LE Extended Advertising Report",
}

func (e leEventCode) String() string {
	if n, ok := leEventName[e]; ok {
		return n
	}
	return fmt.Sprintf("le event 0x%02X", uint8(e))
}

// Event Parameters

type connectionCompleteEP struct {
	status            uint8
	connectionHandle  uint16
	bdaddr            [6]byte
	linkType          uint8
	encryptionEnabled uint8
}

func (ep *connectionCompleteEP) unmarshal(b []byte) error {
	if len(b) < 11 {
		return fmt.Errorf("connection complete: short event")
	}
	ep.status = o.Uint8(b[0:])
	ep.connectionHandle = o.Uint16(b[1:])
	ep.bdaddr = o.MAC(b[3:])
	ep.linkType = o.Uint8(b[9:])
	ep.encryptionEnabled = o.Uint8(b[10:])
	return nil
}

type disconnectionCompleteEP struct {
	status           uint8
	connectionHandle uint16
	reason           uint8
}

func (ep *disconnectionCompleteEP) unmarshal(b []byte) error {
	if len(b) < 4 {
		return fmt.Errorf("disconnection complete: short event")
	}
	ep.status = o.Uint8(b[0:])
	ep.connectionHandle = o.Uint16(b[1:])
	ep.reason = o.Uint8(b[3:])
	return nil
}

type encryptionChangeEP struct {
	status            uint8
	connectionHandle  uint16
	encryptionEnabled uint8
}

func (ep *encryptionChangeEP) unmarshal(b []byte) error {
	if len(b) < 4 {
		return fmt.Errorf("encryption change: short event")
	}
	ep.status = o.Uint8(b[0:])
	ep.connectionHandle = o.Uint16(b[1:])
	ep.encryptionEnabled = o.Uint8(b[3:])
	return nil
}

type encryptionKeyRefreshCompleteEP struct {
	status           uint8
	connectionHandle uint16
}

func (ep *encryptionKeyRefreshCompleteEP) unmarshal(b []byte) error {
	if len(b) < 3 {
		return fmt.Errorf("key refresh complete: short event")
	}
	ep.status = o.Uint8(b[0:])
	ep.connectionHandle = o.Uint16(b[1:])
	return nil
}

type commandCompleteEP struct {
	numHCICommandPackets uint8
	commandOpcode        uint16
	returnParameters     []byte
}

func (ep *commandCompleteEP) unmarshal(b []byte) error {
	if len(b) < 3 {
		return fmt.Errorf("command complete: short event")
	}
	ep.numHCICommandPackets = o.Uint8(b[0:])
	ep.commandOpcode = o.Uint16(b[1:])
	ep.returnParameters = b[3:]
	return nil
}

type commandStatusEP struct {
	status               uint8
	numHCICommandPackets uint8
	commandOpcode        uint16
}

func (ep *commandStatusEP) unmarshal(b []byte) error {
	if len(b) < 4 {
		return fmt.Errorf("command status: short event")
	}
	ep.status = o.Uint8(b[0:])
	ep.numHCICommandPackets = o.Uint8(b[1:])
	ep.commandOpcode = o.Uint16(b[2:])
	return nil
}

// LE Meta Subevents

type leConnectionCompleteEP struct {
	subeventCode     uint8
	status           uint8
	connectionHandle uint16
	role             uint8
	peerAddressType  uint8
	peerAddress      [6]byte
}

func (ep *leConnectionCompleteEP) unmarshal(b []byte) error {
	if len(b) < 12 {
		return fmt.Errorf("le connection complete: short event")
	}
	ep.subeventCode = o.Uint8(b[0:])
	ep.status = o.Uint8(b[1:])
	ep.connectionHandle = o.Uint16(b[2:])
	ep.role = o.Uint8(b[4:])
	ep.peerAddressType = o.Uint8(b[5:])
	ep.peerAddress = o.MAC(b[6:])
	return nil
}

// leEnhancedConnectionCompleteEP additionally carries the local and
// peer resolvable private addresses.
type leEnhancedConnectionCompleteEP struct {
	subeventCode     uint8
	status           uint8
	connectionHandle uint16
	role             uint8
	peerAddressType  uint8
	peerAddress      [6]byte
	localRPA         [6]byte
	peerRPA          [6]byte
}

func (ep *leEnhancedConnectionCompleteEP) unmarshal(b []byte) error {
	if len(b) < 24 {
		return fmt.Errorf("le enhanced connection complete: short event")
	}
	ep.subeventCode = o.Uint8(b[0:])
	ep.status = o.Uint8(b[1:])
	ep.connectionHandle = o.Uint16(b[2:])
	ep.role = o.Uint8(b[4:])
	ep.peerAddressType = o.Uint8(b[5:])
	ep.peerAddress = o.MAC(b[6:])
	ep.localRPA = o.MAC(b[12:])
	ep.peerRPA = o.MAC(b[18:])
	return nil
}

type leReadRemoteUsedFeaturesCompleteEP struct {
	subeventCode     uint8
	status           uint8
	connectionHandle uint16
	leFeatures       uint64
}

func (ep *leReadRemoteUsedFeaturesCompleteEP) unmarshal(b []byte) error {
	if len(b) < 12 {
		return fmt.Errorf("le remote features complete: short event")
	}
	ep.subeventCode = o.Uint8(b[0:])
	ep.status = o.Uint8(b[1:])
	ep.connectionHandle = o.Uint16(b[2:])
	ep.leFeatures = o.Uint64(b[4:])
	return nil
}

type leLTKRequestEP struct {
	subeventCode          uint8
	connectionHandle      uint16
	randomNumber          uint64
	encryptionDiversifier uint16
}

func (ep *leLTKRequestEP) unmarshal(b []byte) error {
	if len(b) < 13 {
		return fmt.Errorf("le ltk request: short event")
	}
	ep.subeventCode = o.Uint8(b[0:])
	ep.connectionHandle = o.Uint16(b[1:])
	ep.randomNumber = o.Uint64(b[3:])
	ep.encryptionDiversifier = o.Uint16(b[11:])
	return nil
}

type lePHYUpdateCompleteEP struct {
	subeventCode     uint8
	status           uint8
	connectionHandle uint16
	txPHY            uint8
	rxPHY            uint8
}

func (ep *lePHYUpdateCompleteEP) unmarshal(b []byte) error {
	if len(b) < 6 {
		return fmt.Errorf("le phy update complete: short event")
	}
	ep.subeventCode = o.Uint8(b[0:])
	ep.status = o.Uint8(b[1:])
	ep.connectionHandle = o.Uint16(b[2:])
	ep.txPHY = o.Uint8(b[4:])
	ep.rxPHY = o.Uint8(b[5:])
	return nil
}

// readRemoteFeaturesCompleteEP is the BR/EDR variant.
type readRemoteFeaturesCompleteEP struct {
	status           uint8
	connectionHandle uint16
	lmpFeatures      uint64
}

func (ep *readRemoteFeaturesCompleteEP) unmarshal(b []byte) error {
	if len(b) < 11 {
		return fmt.Errorf("remote features complete: short event")
	}
	ep.status = o.Uint8(b[0:])
	ep.connectionHandle = o.Uint16(b[1:])
	ep.lmpFeatures = o.Uint64(b[3:])
	return nil
}
