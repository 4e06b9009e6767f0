package linux

import (
	"bytes"
	"testing"
)

func TestEventHeaderLengthValidation(t *testing.T) {
	cases := []struct {
		name string
		b    []byte
		ok   bool
	}{
		{"valid", []byte{0x0E, 0x03, 0x01, 0x03, 0x0C}, true},
		{"short header", []byte{0x0E}, false},
		{"truncated payload", []byte{0x0E, 0x04, 0x01, 0x03, 0x0C}, false},
		{"trailing garbage", []byte{0x0E, 0x02, 0x01, 0x03, 0x0C}, false},
	}
	for _, c := range cases {
		hdr := eventHeader{}
		err := hdr.unmarshal(c.b)
		if (err == nil) != c.ok {
			t.Errorf("%s: err = %v, want ok=%v", c.name, err, c.ok)
		}
	}
}

func TestACLAndL2CAPDecode(t *testing.T) {
	// Handle 0x0040, PB=10, 7-byte L2CAP frame on the SMP channel
	// carrying a Pairing Failed PDU.
	b := []byte{
		0x40, 0x20, 0x06, 0x00, // ACL header: handle+flags, dlen
		0x02, 0x00, 0x06, 0x00, // L2CAP header: len=2, cid=SMP
		0x05, 0x03, // Pairing Failed, reason 0x03
	}
	a := &aclData{}
	if err := a.unmarshal(b); err != nil {
		t.Fatalf("acl unmarshal: %v", err)
	}
	if a.handle != 0x0040 {
		t.Fatalf("handle = 0x%04X", a.handle)
	}
	f := &l2capFrame{}
	if err := f.unmarshal(a); err != nil {
		t.Fatalf("l2cap unmarshal: %v", err)
	}
	if !f.isSMP() {
		t.Fatal("frame not classified as SMP")
	}
	pdu, err := unmarshalSmpPDU(f.b)
	if err != nil {
		t.Fatalf("smp unmarshal: %v", err)
	}
	pf, ok := pdu.(SmpPairingFailed)
	if !ok {
		t.Fatalf("pdu = %T", pdu)
	}
	if pf.Reason != smpReasonAuthRequirement {
		t.Fatalf("reason = 0x%02X", pf.Reason)
	}
}

func TestACLTruncatedRejected(t *testing.T) {
	b := []byte{0x40, 0x20, 0x08, 0x00, 0x02, 0x00, 0x06, 0x00}
	a := &aclData{}
	if err := a.unmarshal(b); err == nil {
		t.Fatal("truncated acl accepted")
	}
}

func TestSmpPairingRequestDecode(t *testing.T) {
	b := []byte{0x01, 0x03, 0x00, 0x01, 0x10, 0x07, 0x07}
	pdu, err := unmarshalSmpPDU(b)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	req, ok := pdu.(SmpPairingRequest)
	if !ok {
		t.Fatalf("pdu = %T", pdu)
	}
	if req.IOCap != IOCapNoInputNoOutput {
		t.Fatalf("iocap = %s", req.IOCap)
	}
	if !req.AuthReq.Bonding() || req.AuthReq.MITM() {
		t.Fatalf("authreq = 0x%02X", uint8(req.AuthReq))
	}
	if req.InitKeyDist != KeyEnc|KeyID|KeySign {
		t.Fatalf("init key dist = 0x%02X", uint8(req.InitKeyDist))
	}
}

func TestSmpReservedCodeRejected(t *testing.T) {
	if _, err := unmarshalSmpPDU([]byte{0x0F, 0x00}); err == nil {
		t.Fatal("reserved code accepted")
	}
	if _, err := unmarshalSmpPDU(nil); err == nil {
		t.Fatal("empty pdu accepted")
	}
}

func TestSmpShortPDURejected(t *testing.T) {
	cases := [][]byte{
		{smpPairingRequest, 0x03, 0x00},
		{smpPairingConfirm, 0x01},
		{smpPairingPublicKey, 0x01},
		{smpMasterIdentification, 0x01, 0x02},
		{smpIdentityAddrInfo, 0x00, 0x01, 0x02},
	}
	for _, b := range cases {
		if _, err := unmarshalSmpPDU(b); err == nil {
			t.Errorf("short pdu 0x%02X accepted", b[0])
		}
	}
}

func TestSmpMarshalDecodesBack(t *testing.T) {
	pdus := []SmpPDU{
		SmpSecurityRequest{AuthReq: authBonding | authMITM},
		SmpPairingResponse{IOCap: IOCapDisplayYesNo, AuthReq: authBonding, MaxKeySize: 16, InitKeyDist: KeyEnc, RespKeyDist: KeyEnc | KeyID},
		SmpMasterIdentification{EDIV: 0x1234, Rand: 0x1122334455667788},
		SmpIdentityAddrInfo{AddrType: AddrTypeRandom, Addr: Addr{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}},
	}
	for _, pdu := range pdus {
		b := marshalSmpPDU(pdu)
		if len(b) == 0 || b[0] != pdu.Code() {
			t.Fatalf("marshal 0x%02X: bad payload % X", pdu.Code(), b)
		}
		got, err := unmarshalSmpPDU(b)
		if err != nil {
			t.Fatalf("unmarshal 0x%02X: %v", pdu.Code(), err)
		}
		if got != pdu {
			t.Fatalf("round trip 0x%02X: got %#v", pdu.Code(), got)
		}
	}
}

func TestMarshalL2CAPFraming(t *testing.T) {
	b := marshalL2CAP(0x0040, cidSMP, []byte{0x05, 0x03})
	want := []byte{0x02, 0x40, 0x00, 0x06, 0x00, 0x02, 0x00, 0x06, 0x00, 0x05, 0x03}
	if !bytes.Equal(b, want) {
		t.Fatalf("framed packet = % X, want % X", b, want)
	}
}
