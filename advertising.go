package blelink

import (
	"errors"

	"github.com/google/uuid"

	"github.com/XC-/blelink/linux"
)

// MaxADLength is the maximum advertising or scan response payload
// length.
const MaxADLength = 31

// ErrADTooLong is returned when a payload would exceed MaxADLength.
var ErrADTooLong = errors.New("max advertising payload length is 31")

// advertising data structure types
const (
	adFlags            = 0x01 // Flags
	adSomeUUID16       = 0x02 // Incomplete List of 16-bit Service Class UUIDs
	adAllUUID16        = 0x03 // Complete List of 16-bit Service Class UUIDs
	adSomeUUID128      = 0x06 // Incomplete List of 128-bit Service Class UUIDs
	adAllUUID128       = 0x07 // Complete List of 128-bit Service Class UUIDs
	adShortName        = 0x08 // Shortened Local Name
	adCompleteName     = 0x09 // Complete Local Name
	adTxPower          = 0x0A // Tx Power Level
	adServiceData16    = 0x16 // Service Data - 16-bit UUID
	adManufacturerData = 0xFF // Manufacturer Specific Data
)

// flag bits
const (
	FlagLimitedDiscoverable = 1 << iota // LE Limited Discoverable Mode
	FlagGeneralDiscoverable             // LE General Discoverable Mode
	FlagLEOnly                          // BR/EDR Not Supported
)

// baseUUID is the Bluetooth base UUID; 16-bit service identifiers are
// aliases into it.
var baseUUID = uuid.MustParse("00000000-0000-1000-8000-00805F9B34FB")

func uuid16(v uint16) uuid.UUID {
	u := baseUUID
	u[2] = byte(v >> 8)
	u[3] = byte(v)
	return u
}

// isUUID16 reports whether u is a base-UUID alias, and its 16-bit form.
func isUUID16(u uuid.UUID) (uint16, bool) {
	probe := uuid16(uint16(u[2])<<8 | uint16(u[3]))
	if probe != u {
		return 0, false
	}
	return uint16(u[2])<<8 | uint16(u[3]), true
}

// AdvPayload accumulates advertising data structures up to the 31-byte
// limit. The zero value is an empty payload.
type AdvPayload struct {
	b []byte
}

// AppendField appends one length/type/data structure. It refuses a
// field that would not fit.
func (p *AdvPayload) AppendField(typ byte, data []byte) error {
	if len(p.b)+2+len(data) > MaxADLength {
		return ErrADTooLong
	}
	p.b = append(p.b, byte(len(data)+1), typ)
	p.b = append(p.b, data...)
	return nil
}

// AppendFlags appends the Flags structure.
func (p *AdvPayload) AppendFlags(f byte) error {
	return p.AppendField(adFlags, []byte{f})
}

// AppendName appends the local name, shortened if it cannot fit
// complete.
func (p *AdvPayload) AppendName(name string) error {
	typ := byte(adCompleteName)
	if max := MaxADLength - len(p.b) - 2; len(name) > max {
		if max <= 0 {
			return ErrADTooLong
		}
		name = name[:max]
		typ = adShortName
	}
	return p.AppendField(typ, []byte(name))
}

// AppendManufacturerData appends company-specific data for cid.
func (p *AdvPayload) AppendManufacturerData(cid uint16, data []byte) error {
	d := make([]byte, 2+len(data))
	d[0], d[1] = byte(cid), byte(cid>>8)
	copy(d[2:], data)
	return p.AppendField(adManufacturerData, d)
}

// AppendServiceUUID appends one advertised service. A base-UUID alias
// goes out in its 2-byte form. It reports whether the service fit; a
// payload with more services than room advertises the ones that fit.
func (p *AdvPayload) AppendServiceUUID(u uuid.UUID) bool {
	if v, ok := isUUID16(u); ok {
		return p.AppendField(adSomeUUID16, []byte{byte(v), byte(v >> 8)}) == nil
	}
	d := make([]byte, 16)
	for i := range u {
		d[i] = u[15-i]
	}
	return p.AppendField(adSomeUUID128, d) == nil
}

// Packed returns the payload in the fixed-size form the controller
// command takes.
func (p *AdvPayload) Packed() (uint8, [31]byte) {
	var b [31]byte
	copy(b[:], p.b)
	return uint8(len(p.b)), b
}

// AdvReportParser decodes LE advertising report event payloads into
// discovery records. It implements linux.AdvParser; malformed trailing
// records are dropped, not failed on.
type AdvReportParser struct{}

// NewAdvReportParser returns the standard report parser.
func NewAdvReportParser() *AdvReportParser { return &AdvReportParser{} }

// ParseReports decodes a legacy advertising report payload. b starts at
// the subevent code.
func (*AdvReportParser) ParseReports(b []byte) []linux.DiscoveryRecord {
	if len(b) < 2 {
		return nil
	}
	n := int(b[1])
	b = b[2:]
	recs := make([]linux.DiscoveryRecord, 0, n)
	for i := 0; i < n; i++ {
		// eventType, addrType, addr, dataLen, data, rssi
		if len(b) < 9 {
			break
		}
		et := b[0]
		peer := peerFromReport(b[1], b[2:8])
		dlen := int(b[8])
		if len(b) < 9+dlen+1 {
			break
		}
		r := linux.DiscoveryRecord{
			Peer:        peer,
			EventType:   et,
			Connectable: et == 0x00 || et == 0x01,
			RSSI:        int8(b[9+dlen]),
		}
		parseADStructures(b[9:9+dlen], &r)
		recs = append(recs, r)
		b = b[9+dlen+1:]
	}
	return recs
}

// ParseExtendedReports decodes an extended advertising report payload.
func (*AdvReportParser) ParseExtendedReports(b []byte) []linux.DiscoveryRecord {
	if len(b) < 2 {
		return nil
	}
	n := int(b[1])
	b = b[2:]
	recs := make([]linux.DiscoveryRecord, 0, n)
	for i := 0; i < n; i++ {
		// eventType(2), addrType, addr(6), phys(2), sid, txPower,
		// rssi, periodicInterval(2), directAddrType, directAddr(6),
		// dataLen, data
		if len(b) < 24 {
			break
		}
		et := uint16(b[0]) | uint16(b[1])<<8
		peer := peerFromReport(b[2], b[3:9])
		rssi := int8(b[13])
		dlen := int(b[23])
		if len(b) < 24+dlen {
			break
		}
		r := linux.DiscoveryRecord{
			Peer:        peer,
			EventType:   uint8(et),
			Connectable: et&0x0001 != 0,
			RSSI:        rssi,
		}
		parseADStructures(b[24:24+dlen], &r)
		recs = append(recs, r)
		b = b[24+dlen:]
	}
	return recs
}

func peerFromReport(addrType uint8, addr []byte) linux.PeerID {
	p := linux.PeerID{Type: linux.AddrType(addrType)}
	copy(p.Addr[:], addr)
	return p
}

// parseADStructures walks the length/type/data structures in an
// advertising payload. A malformed tail ends the walk.
func parseADStructures(b []byte, r *linux.DiscoveryRecord) {
	r.Data = append([]byte(nil), b...)
	for len(b) > 0 {
		l := int(b[0])
		if l == 0 || len(b) < 1+l {
			return
		}
		t, d := b[1], b[2:1+l]
		switch t {
		case adSomeUUID16, adAllUUID16:
			for ; len(d) >= 2; d = d[2:] {
				r.Services = append(r.Services, uuid16(uint16(d[0])|uint16(d[1])<<8))
			}
		case adSomeUUID128, adAllUUID128:
			for ; len(d) >= 16; d = d[16:] {
				var u uuid.UUID
				for i := range u {
					u[i] = d[15-i]
				}
				r.Services = append(r.Services, u)
			}
		case adShortName:
			if r.Name == "" {
				r.Name = string(d)
			}
		case adCompleteName:
			r.Name = string(d)
		}
		b = b[1+l:]
	}
}
