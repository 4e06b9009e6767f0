package linux

import "fmt"

// Status is an HCI-style status code. Controller-reported codes occupy
// 0x00-0x45; the 0xFD-0xFF band carries conditions detected on the host
// side, so a controller status can never alias an internal one.
type Status uint8

const (
	StatusSuccess           Status = 0x00
	StatusUnknownCommand    Status = 0x01
	StatusUnknownConnID     Status = 0x02
	StatusAuthFailure       Status = 0x05
	StatusPinOrKeyMissing   Status = 0x06
	StatusMemoryCapacity    Status = 0x07
	StatusConnectionTimeout Status = 0x08
	StatusCommandDisallowed Status = 0x0C
	StatusInvalidParams     Status = 0x12
	StatusRemoteTerminated  Status = 0x13
	StatusLocalTerminated   Status = 0x16
	StatusPairingNotAllowed Status = 0x18
	StatusUnspecifiedError  Status = 0x1F
	StatusConnectionFailed  Status = 0x3E

	StatusInternalTimeout Status = 0xFD
	StatusInternalFailure Status = 0xFE
	StatusDisconnected    Status = 0xFF
)

var statusName = map[Status]string{
	StatusSuccess:           "success",
	StatusUnknownCommand:    "unknown command",
	StatusUnknownConnID:     "unknown connection identifier",
	StatusAuthFailure:       "authentication failure",
	StatusPinOrKeyMissing:   "pin or key missing",
	StatusMemoryCapacity:    "memory capacity exceeded",
	StatusConnectionTimeout: "connection timeout",
	StatusCommandDisallowed: "command disallowed",
	StatusInvalidParams:     "invalid command parameters",
	StatusRemoteTerminated:  "remote user terminated connection",
	StatusLocalTerminated:   "connection terminated by local host",
	StatusPairingNotAllowed: "pairing not allowed",
	StatusUnspecifiedError:  "unspecified error",
	StatusConnectionFailed:  "connection failed to be established",
	StatusInternalTimeout:   "internal timeout",
	StatusInternalFailure:   "internal failure",
	StatusDisconnected:      "disconnected",
}

func (s Status) String() string {
	if n, ok := statusName[s]; ok {
		return n
	}
	return fmt.Sprintf("status 0x%02X", uint8(s))
}

// Ok reports whether s is the controller success code.
func (s Status) Ok() bool { return s == StatusSuccess }
