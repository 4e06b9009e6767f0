package linux

type packetType uint8

// HCI packet types
const (
	typCommandPkt packetType = 0x01
	typACLDataPkt packetType = 0x02
	typSCODataPkt packetType = 0x03
	typEventPkt   packetType = 0x04
	typVendorPkt  packetType = 0xFF
)

// Advertising PDU types
const (
	advInd        = 0x00 // Connectable undirected advertising (ADV_IND).
	advDirectInd  = 0x01 // Connectable directed advertising (ADV_DIRECT_IND)
	advScanInd    = 0x02 // Scannable undirected advertising (ADV_SCAN_IND)
	advNonconnInd = 0x03 // Non connectable undirected advertising (ADV_NONCONN_IND)
	scanRsp       = 0x04 // Scan Response (SCAN_RSP)
)

// Fixed L2CAP channel IDs [Vol 3, Part A, 2.1]
const (
	cidATT      uint16 = 0x0004
	cidLESignal uint16 = 0x0005
	cidSMP      uint16 = 0x0006
	cidSMPBREDR uint16 = 0x0007
)

// Disconnect reasons we issue ourselves.
const (
	ReasonRemoteUserTerminated uint8 = 0x13
	ReasonInternalFailure      uint8 = 0x16 // Connection Terminated By Local Host
)
