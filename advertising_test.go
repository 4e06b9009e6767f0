package blelink

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/XC-/blelink/linux"
)

func TestAdvPayloadFields(t *testing.T) {
	p := &AdvPayload{}
	if err := p.AppendFlags(FlagGeneralDiscoverable | FlagLEOnly); err != nil {
		t.Fatalf("flags: %v", err)
	}
	if err := p.AppendName("sensor"); err != nil {
		t.Fatalf("name: %v", err)
	}
	n, b := p.Packed()
	want := []byte{0x02, adFlags, 0x06, 0x07, adCompleteName, 's', 'e', 'n', 's', 'o', 'r'}
	if int(n) != len(want) || !bytes.Equal(b[:n], want) {
		t.Fatalf("payload = % X, want % X", b[:n], want)
	}
}

func TestAdvPayloadNameShortened(t *testing.T) {
	p := &AdvPayload{}
	long := strings.Repeat("n", 40)
	if err := p.AppendName(long); err != nil {
		t.Fatalf("name: %v", err)
	}
	n, b := p.Packed()
	if n != MaxADLength {
		t.Fatalf("packed length = %d", n)
	}
	if b[1] != adShortName {
		t.Fatalf("type = 0x%02X, want shortened name", b[1])
	}
}

func TestAdvPayloadOverflowRefused(t *testing.T) {
	p := &AdvPayload{}
	if err := p.AppendManufacturerData(0x004C, make([]byte, 27)); err != nil {
		t.Fatalf("first field: %v", err)
	}
	if err := p.AppendFlags(FlagLEOnly); err != ErrADTooLong {
		t.Fatalf("err = %v, want ErrADTooLong", err)
	}
}

func TestAdvPayloadServiceUUIDForms(t *testing.T) {
	p := &AdvPayload{}
	if !p.AppendServiceUUID(uuid16(0x180D)) {
		t.Fatal("16-bit service did not fit")
	}
	custom := uuid.MustParse("11223344-5566-7788-99AA-BBCCDDEEFF00")
	if !p.AppendServiceUUID(custom) {
		t.Fatal("128-bit service did not fit")
	}
	n, b := p.Packed()
	// 2-byte alias first, little endian.
	if b[1] != adSomeUUID16 || b[2] != 0x0D || b[3] != 0x18 {
		t.Fatalf("16-bit field = % X", b[:4])
	}
	if b[5] != adSomeUUID128 || b[6] != 0x00 || b[21] != 0x11 {
		t.Fatalf("128-bit field = % X", b[4:n])
	}
	// No more room for another 128-bit service.
	if p.AppendServiceUUID(custom) {
		t.Fatal("third service reported as fitting")
	}
}

func TestParseReports(t *testing.T) {
	ad := []byte{
		0x02, adFlags, 0x06,
		0x03, adAllUUID16, 0x0D, 0x18,
		0x05, adCompleteName, 'h', 'r', 'm', '1',
	}
	rpt := []byte{
		0x02, 0x01, // subevent, one report
		0x00,                               // ADV_IND
		0x01,                               // random address
		0x11, 0x22, 0x33, 0x44, 0x55, 0x66, // address
		byte(len(ad)),
	}
	rpt = append(rpt, ad...)
	rpt = append(rpt, 0xC8) // rssi -56

	recs := NewAdvReportParser().ParseReports(rpt)
	if len(recs) != 1 {
		t.Fatalf("records = %d", len(recs))
	}
	r := recs[0]
	if !r.Connectable || r.RSSI != -56 {
		t.Fatalf("connectable=%v rssi=%d", r.Connectable, r.RSSI)
	}
	if r.Peer.Type != linux.AddrTypeRandom || r.Peer.Addr[0] != 0x11 {
		t.Fatalf("peer = %v", r.Peer)
	}
	if r.Name != "hrm1" {
		t.Fatalf("name = %q", r.Name)
	}
	if len(r.Services) != 1 || r.Services[0] != uuid16(0x180D) {
		t.Fatalf("services = %v", r.Services)
	}
}

func TestParseReportsMalformedTailDropped(t *testing.T) {
	rpt := []byte{
		0x02, 0x02, // claims two reports
		0x00, 0x00,
		0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF,
		0x00, // no data
		0xD0, // rssi
		0x03, // second report truncated mid-header
	}
	recs := NewAdvReportParser().ParseReports(rpt)
	if len(recs) != 1 {
		t.Fatalf("records = %d, want truncated report dropped", len(recs))
	}
}

func TestParseExtendedReports(t *testing.T) {
	ad := []byte{0x04, adShortName, 'x', 'y', 'z'}
	rpt := []byte{
		0x0D, 0x01, // subevent, one report
		0x13, 0x00, // connectable legacy
		0x00,                               // public
		0x0A, 0x0B, 0x0C, 0x0D, 0x0E, 0x0F, // address
		0x01, 0x00, // phys
		0xFF,       // sid
		0x7F,       // tx power
		0xC4,       // rssi -60
		0x00, 0x00, // periodic interval
		0x00,                               // direct addr type
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, // direct addr
		byte(len(ad)),
	}
	rpt = append(rpt, ad...)

	recs := NewAdvReportParser().ParseExtendedReports(rpt)
	if len(recs) != 1 {
		t.Fatalf("records = %d", len(recs))
	}
	r := recs[0]
	if !r.Connectable || r.RSSI != -60 || r.Name != "xyz" {
		t.Fatalf("record = %+v", r)
	}
}
