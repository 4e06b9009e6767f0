package linux

import "fmt"

// Addr is a 6-byte Bluetooth device address, most significant byte first.
type Addr [6]byte

func (a Addr) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", a[0], a[1], a[2], a[3], a[4], a[5])
}

// AddrType distinguishes public and random device addresses.
type AddrType uint8

const (
	AddrTypePublic AddrType = 0x00
	AddrTypeRandom AddrType = 0x01
)

func (t AddrType) String() string {
	if t == AddrTypeRandom {
		return "random"
	}
	return "public"
}

// PeerID identifies a remote device: address plus address type.
// It is comparable and immutable once a connection exists.
type PeerID struct {
	Addr Addr
	Type AddrType
}

func (p PeerID) String() string {
	return fmt.Sprintf("%s/%s", p.Addr, p.Type)
}
