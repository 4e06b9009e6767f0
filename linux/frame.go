package linux

import (
	"errors"
	"fmt"
)

// eventHeader is the two-byte header of every HCI event packet.
type eventHeader struct {
	code eventCode
	plen uint8
}

func (h *eventHeader) unmarshal(b []byte) error {
	if len(b) < 2 {
		return errors.New("malformed event header")
	}
	h.code = eventCode(b[0])
	h.plen = b[1]
	if len(b) != 2+int(h.plen) {
		return fmt.Errorf("event %s: declared plen %d, have %d bytes", h.code, h.plen, len(b)-2)
	}
	return nil
}

// aclData is an HCI ACL data packet, header already stripped of the
// packet-type octet.
type aclData struct {
	handle uint16
	flags  uint8 // PB and BC flags
	dlen   uint16
	b      []byte
}

func (a *aclData) unmarshal(b []byte) error {
	if len(b) < 4 {
		return errors.New("malformed acl packet")
	}
	a.handle = uint16(b[0]) | (uint16(b[1]&0x0f) << 8)
	a.flags = b[1] >> 4
	a.dlen = uint16(b[2]) | (uint16(b[3]) << 8)
	if len(b) != 4+int(a.dlen) {
		return errors.New("malformed acl packet")
	}
	a.b = b[4:]
	return nil
}

func (a *aclData) String() string {
	return fmt.Sprintf("ACL Data: handle 0x%04X flags 0x%02X dlen %d", a.handle, a.flags, a.dlen)
}

// l2capFrame is a basic L2CAP frame reassembled from a single ACL packet.
type l2capFrame struct {
	handle uint16
	pb     uint8
	cid    uint16
	b      []byte
}

func (f *l2capFrame) unmarshal(a *aclData) error {
	if len(a.b) < 4 {
		return errors.New("malformed l2cap frame")
	}
	dlen := uint16(a.b[0]) | uint16(a.b[1])<<8
	f.handle = a.handle
	f.pb = a.flags & 0x3
	f.cid = uint16(a.b[2]) | uint16(a.b[3])<<8
	if len(a.b)-4 < int(dlen) {
		return fmt.Errorf("l2cap frame: declared length %d, have %d bytes", dlen, len(a.b)-4)
	}
	f.b = a.b[4 : 4+dlen]
	return nil
}

// isSMP reports whether the frame is carried on the SMP fixed channel
// (LE or BR/EDR variant).
func (f *l2capFrame) isSMP() bool { return f.cid == cidSMP || f.cid == cidSMPBREDR }

// SMP PDU opcodes [Vol 3, Part H, 3.3]
const (
	smpPairingRequest       = 0x01
	smpPairingResponse      = 0x02
	smpPairingConfirm       = 0x03
	smpPairingRandom        = 0x04
	smpPairingFailed        = 0x05
	smpEncryptionInfo       = 0x06
	smpMasterIdentification = 0x07
	smpIdentityInfo         = 0x08
	smpIdentityAddrInfo     = 0x09
	smpSigningInfo          = 0x0A
	smpSecurityRequest      = 0x0B
	smpPairingPublicKey     = 0x0C
	smpPairingDHKeyCheck    = 0x0D
	smpKeypressNotify       = 0x0E
)

// SmpPDU is a decoded Security Manager Protocol PDU.
type SmpPDU interface {
	Code() uint8
}

// SmpSecurityRequest is sent by a responder to ask the initiator to
// start pairing or re-encrypt.
type SmpSecurityRequest struct {
	AuthReq AuthReq
}

func (SmpSecurityRequest) Code() uint8 { return smpSecurityRequest }

// SmpPairingRequest / SmpPairingResponse carry the feature exchange.
type SmpPairingRequest struct {
	IOCap       IOCapability
	OOBFlag     uint8
	AuthReq     AuthReq
	MaxKeySize  uint8
	InitKeyDist KeyDist
	RespKeyDist KeyDist
}

func (SmpPairingRequest) Code() uint8 { return smpPairingRequest }

type SmpPairingResponse struct {
	IOCap       IOCapability
	OOBFlag     uint8
	AuthReq     AuthReq
	MaxKeySize  uint8
	InitKeyDist KeyDist
	RespKeyDist KeyDist
}

func (SmpPairingResponse) Code() uint8 { return smpPairingResponse }

type SmpPairingConfirm struct {
	Value [16]byte
}

func (SmpPairingConfirm) Code() uint8 { return smpPairingConfirm }

type SmpPairingRandom struct {
	Value [16]byte
}

func (SmpPairingRandom) Code() uint8 { return smpPairingRandom }

type SmpPairingPublicKey struct {
	X, Y [32]byte
}

func (SmpPairingPublicKey) Code() uint8 { return smpPairingPublicKey }

type SmpPairingDHKeyCheck struct {
	Value [16]byte
}

func (SmpPairingDHKeyCheck) Code() uint8 { return smpPairingDHKeyCheck }

type SmpPairingFailed struct {
	Reason uint8
}

func (SmpPairingFailed) Code() uint8 { return smpPairingFailed }

type SmpEncryptionInfo struct {
	LTK [16]byte
}

func (SmpEncryptionInfo) Code() uint8 { return smpEncryptionInfo }

type SmpMasterIdentification struct {
	EDIV uint16
	Rand uint64
}

func (SmpMasterIdentification) Code() uint8 { return smpMasterIdentification }

type SmpIdentityInfo struct {
	IRK [16]byte
}

func (SmpIdentityInfo) Code() uint8 { return smpIdentityInfo }

type SmpIdentityAddrInfo struct {
	AddrType AddrType
	Addr     Addr
}

func (SmpIdentityAddrInfo) Code() uint8 { return smpIdentityAddrInfo }

type SmpSigningInfo struct {
	CSRK [16]byte
}

func (SmpSigningInfo) Code() uint8 { return smpSigningInfo }

type SmpKeypressNotify struct {
	Type uint8
}

func (SmpKeypressNotify) Code() uint8 { return smpKeypressNotify }

func get16(b []byte) (v [16]byte) { copy(v[:], b); return }
func get32(b []byte) (v [32]byte) { copy(v[:], b); return }

// marshalSmpPDU encodes a typed PDU into an SMP channel payload.
func marshalSmpPDU(pdu SmpPDU) []byte {
	switch p := pdu.(type) {
	case SmpSecurityRequest:
		return []byte{p.Code(), uint8(p.AuthReq)}
	case SmpPairingRequest:
		return []byte{p.Code(), uint8(p.IOCap), p.OOBFlag, uint8(p.AuthReq), p.MaxKeySize, uint8(p.InitKeyDist), uint8(p.RespKeyDist)}
	case SmpPairingResponse:
		return []byte{p.Code(), uint8(p.IOCap), p.OOBFlag, uint8(p.AuthReq), p.MaxKeySize, uint8(p.InitKeyDist), uint8(p.RespKeyDist)}
	case SmpPairingConfirm:
		return append([]byte{p.Code()}, p.Value[:]...)
	case SmpPairingRandom:
		return append([]byte{p.Code()}, p.Value[:]...)
	case SmpPairingPublicKey:
		b := make([]byte, 0, 65)
		b = append(b, p.Code())
		b = append(b, p.X[:]...)
		return append(b, p.Y[:]...)
	case SmpPairingDHKeyCheck:
		return append([]byte{p.Code()}, p.Value[:]...)
	case SmpPairingFailed:
		return []byte{p.Code(), p.Reason}
	case SmpEncryptionInfo:
		return append([]byte{p.Code()}, p.LTK[:]...)
	case SmpMasterIdentification:
		b := make([]byte, 11)
		b[0] = p.Code()
		o.PutUint16(b[1:], p.EDIV)
		o.PutUint64(b[3:], p.Rand)
		return b
	case SmpIdentityInfo:
		return append([]byte{p.Code()}, p.IRK[:]...)
	case SmpIdentityAddrInfo:
		b := make([]byte, 8)
		b[0] = p.Code()
		b[1] = uint8(p.AddrType)
		o.PutMAC(b[2:], [6]byte(p.Addr))
		return b
	case SmpSigningInfo:
		return append([]byte{p.Code()}, p.CSRK[:]...)
	case SmpKeypressNotify:
		return []byte{p.Code(), p.Type}
	}
	return nil
}

// marshalL2CAP frames a channel payload into a complete HCI ACL packet,
// packet-type octet included.
func marshalL2CAP(handle, cid uint16, payload []byte) []byte {
	b := make([]byte, 9+len(payload))
	b[0] = byte(typACLDataPkt)
	o.PutUint16(b[1:], handle&0x0fff) // PB flags 00: first, non-flushable
	o.PutUint16(b[3:], uint16(4+len(payload)))
	o.PutUint16(b[5:], uint16(len(payload)))
	o.PutUint16(b[7:], cid)
	copy(b[9:], payload)
	return b
}

// unmarshalSmpPDU decodes an SMP channel payload into a typed PDU.
// Reserved codes are reported as errors; per [Vol 3, Part H, 3.3] the
// caller drops them without failing the link.
func unmarshalSmpPDU(b []byte) (SmpPDU, error) {
	if len(b) < 1 {
		return nil, errors.New("empty smp pdu")
	}
	code, p := b[0], b[1:]
	short := func(want int) error {
		return fmt.Errorf("smp pdu 0x%02X: want %d bytes, have %d", code, want, len(p))
	}
	switch code {
	case smpSecurityRequest:
		if len(p) < 1 {
			return nil, short(1)
		}
		return SmpSecurityRequest{AuthReq: AuthReq(p[0])}, nil
	case smpPairingRequest, smpPairingResponse:
		if len(p) < 6 {
			return nil, short(6)
		}
		if code == smpPairingRequest {
			return SmpPairingRequest{
				IOCap:       IOCapability(p[0]),
				OOBFlag:     p[1],
				AuthReq:     AuthReq(p[2]),
				MaxKeySize:  p[3],
				InitKeyDist: KeyDist(p[4]),
				RespKeyDist: KeyDist(p[5]),
			}, nil
		}
		return SmpPairingResponse{
			IOCap:       IOCapability(p[0]),
			OOBFlag:     p[1],
			AuthReq:     AuthReq(p[2]),
			MaxKeySize:  p[3],
			InitKeyDist: KeyDist(p[4]),
			RespKeyDist: KeyDist(p[5]),
		}, nil
	case smpPairingConfirm:
		if len(p) < 16 {
			return nil, short(16)
		}
		return SmpPairingConfirm{Value: get16(p)}, nil
	case smpPairingRandom:
		if len(p) < 16 {
			return nil, short(16)
		}
		return SmpPairingRandom{Value: get16(p)}, nil
	case smpPairingPublicKey:
		if len(p) < 64 {
			return nil, short(64)
		}
		return SmpPairingPublicKey{X: get32(p), Y: get32(p[32:])}, nil
	case smpPairingDHKeyCheck:
		if len(p) < 16 {
			return nil, short(16)
		}
		return SmpPairingDHKeyCheck{Value: get16(p)}, nil
	case smpPairingFailed:
		if len(p) < 1 {
			return nil, short(1)
		}
		return SmpPairingFailed{Reason: p[0]}, nil
	case smpEncryptionInfo:
		if len(p) < 16 {
			return nil, short(16)
		}
		return SmpEncryptionInfo{LTK: get16(p)}, nil
	case smpMasterIdentification:
		if len(p) < 10 {
			return nil, short(10)
		}
		return SmpMasterIdentification{
			EDIV: o.Uint16(p),
			Rand: o.Uint64(p[2:]),
		}, nil
	case smpIdentityInfo:
		if len(p) < 16 {
			return nil, short(16)
		}
		return SmpIdentityInfo{IRK: get16(p)}, nil
	case smpIdentityAddrInfo:
		if len(p) < 7 {
			return nil, short(7)
		}
		return SmpIdentityAddrInfo{AddrType: AddrType(p[0]), Addr: o.MAC(p[1:])}, nil
	case smpSigningInfo:
		if len(p) < 16 {
			return nil, short(16)
		}
		return SmpSigningInfo{CSRK: get16(p)}, nil
	case smpKeypressNotify:
		if len(p) < 1 {
			return nil, short(1)
		}
		return SmpKeypressNotify{Type: p[0]}, nil
	}
	return nil, fmt.Errorf("smp pdu: reserved code 0x%02X", code)
}
