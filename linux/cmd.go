package linux

import "fmt"

// cmdParam is an HCI command parameter block.
type cmdParam interface {
	marshal([]byte)
	opcode() opcode
	len() int
}

// cmdResp is a typed CMD_COMPLETE return parameter block. The first
// byte is always the status code.
type cmdResp interface {
	unmarshal(b []byte) error
	size() int
}

const (
	linkCtl   = 0x01
	hostCtl   = 0x03
	infoParam = 0x04
	leCtl     = 0x08
)

type opcode uint16

func (op opcode) ogf() uint8  { return uint8((uint16(op) & 0xFC00) >> 10) }
func (op opcode) ocf() uint16 { return uint16(op) & 0x03FF }

func (op opcode) String() string {
	if n, ok := opName[op]; ok {
		return n
	}
	return fmt.Sprintf("opcode 0x%04X", uint16(op))
}

const (
	opCreateConn = opcode(linkCtl<<10 | 0x0005)
	opDisconnect = opcode(linkCtl<<10 | 0x0006)

	opSetEventMask = opcode(hostCtl<<10 | 0x0001)
	opReset        = opcode(hostCtl<<10 | 0x0003)

	opReadLocalVersion           = opcode(infoParam<<10 | 0x0001)
	opReadLocalSupportedCommands = opcode(infoParam<<10 | 0x0002)
	opReadBDADDR                 = opcode(infoParam<<10 | 0x0009)

	opLESetEventMask                = opcode(leCtl<<10 | 0x0001)
	opLEReadBufferSize              = opcode(leCtl<<10 | 0x0002)
	opLESetAdvertisingParameters    = opcode(leCtl<<10 | 0x0006)
	opLESetAdvertisingData          = opcode(leCtl<<10 | 0x0008)
	opLESetScanResponseData         = opcode(leCtl<<10 | 0x0009)
	opLESetAdvertiseEnable          = opcode(leCtl<<10 | 0x000A)
	opLESetScanParameters           = opcode(leCtl<<10 | 0x000B)
	opLESetScanEnable               = opcode(leCtl<<10 | 0x000C)
	opLECreateConn                  = opcode(leCtl<<10 | 0x000D)
	opLECreateConnCancel            = opcode(leCtl<<10 | 0x000E)
	opLEReadWhiteListSize           = opcode(leCtl<<10 | 0x000F)
	opLEClearWhiteList              = opcode(leCtl<<10 | 0x0010)
	opLEAddDeviceToWhiteList        = opcode(leCtl<<10 | 0x0011)
	opLERemoveDeviceFromWhiteList   = opcode(leCtl<<10 | 0x0012)
	opLEReadRemoteUsedFeatures      = opcode(leCtl<<10 | 0x0016)
	opLEStartEncryption             = opcode(leCtl<<10 | 0x0019)
	opLELTKReply                    = opcode(leCtl<<10 | 0x001A)
	opLELTKNegReply                 = opcode(leCtl<<10 | 0x001B)
	opLEAddDeviceToResolvingList    = opcode(leCtl<<10 | 0x0027)
	opLERemoveDeviceFromResolvList  = opcode(leCtl<<10 | 0x0028)
	opLEClearResolvingList          = opcode(leCtl<<10 | 0x0029)
	opLEReadResolvingListSize       = opcode(leCtl<<10 | 0x002A)
	opLESetAddressResolutionEnable  = opcode(leCtl<<10 | 0x002D)
	opLEReadPHY                     = opcode(leCtl<<10 | 0x0030)
	opLESetPHY                      = opcode(leCtl<<10 | 0x0032)
	opLEExtendedCreateConn          = opcode(leCtl<<10 | 0x0043)
)

var opName = map[opcode]string{
	opCreateConn: "Create Connection",
	opDisconnect: "Disconnect",

	opSetEventMask: "Set Event Mask",
	opReset:        "Reset",

	opReadLocalVersion:           "Read Local Version Information",
	opReadLocalSupportedCommands: "Read Local Supported Commands",
	opReadBDADDR:                 "Read BD_ADDR",

	opLESetEventMask:               "LE Set Event Mask",
	opLEReadBufferSize:             "LE Read Buffer Size",
	opLESetAdvertisingParameters:   "LE Set Advertising Parameters",
	opLESetAdvertisingData:         "LE Set Advertising Data",
	opLESetScanResponseData:        "LE Set Scan Response Data",
	opLESetAdvertiseEnable:         "LE Set Advertising Enable",
	opLESetScanParameters:          "LE Set Scan Parameters",
	opLESetScanEnable:              "LE Set Scan Enable",
	opLECreateConn:                 "LE Create Connection",
	opLECreateConnCancel:           "LE Create Connection Cancel",
	opLEReadWhiteListSize:          "LE Read White List Size",
	opLEClearWhiteList:             "LE Clear White List",
	opLEAddDeviceToWhiteList:       "LE Add Device To White List",
	opLERemoveDeviceFromWhiteList:  "LE Remove Device From White List",
	opLEReadRemoteUsedFeatures:     "LE Read Remote Used Features",
	opLEStartEncryption:            "LE Start Encryption",
	opLELTKReply:                   "LE Long Term Key Request Reply",
	opLELTKNegReply:                "LE Long Term Key Request Negative Reply",
	opLEAddDeviceToResolvingList:   "LE Add Device To Resolving List",
	opLERemoveDeviceFromResolvList: "LE Remove Device From Resolving List",
	opLEClearResolvingList:         "LE Clear Resolving List",
	opLEReadResolvingListSize:      "LE Read Resolving List Size",
	opLESetAddressResolutionEnable: "LE Set Address Resolution Enable",
	opLEReadPHY:                    "LE Read PHY",
	opLESetPHY:                     "LE Set PHY",
	opLEExtendedCreateConn:         "LE Extended Create Connection",
}

// marshalCmd frames a command parameter block as a full HCI command
// packet ready for the transport.
func marshalCmd(cp cmdParam) []byte {
	op := cp.opcode()
	b := make([]byte, 1+2+1+cp.len())
	b[0] = byte(typCommandPkt)
	b[1], b[2] = byte(op), byte(op>>8)
	b[3] = byte(cp.len())
	cp.marshal(b[4:])
	return b
}

// statusRP is the single-status return of most configuration commands.
type statusRP struct{ status uint8 }

func (r *statusRP) size() int { return 1 }
func (r *statusRP) unmarshal(b []byte) error {
	r.status = b[0]
	return nil
}

// Link Control Commands

// Create Connection (0x0005)
type createConn struct {
	bdaddr                 [6]byte
	packetType             uint16
	pageScanRepetitionMode uint8
	clockOffset            uint16
	allowRoleSwitch        uint8
}

func (c createConn) opcode() opcode { return opCreateConn }
func (c createConn) len() int       { return 13 }
func (c createConn) marshal(b []byte) {
	o.PutMAC(b[0:], c.bdaddr)
	o.PutUint16(b[6:], c.packetType)
	o.PutUint8(b[8:], c.pageScanRepetitionMode)
	o.PutUint8(b[9:], 0) // reserved
	o.PutUint16(b[10:], c.clockOffset)
	o.PutUint8(b[12:], c.allowRoleSwitch)
}

// Disconnect (0x0006)
type disconnect struct {
	connectionHandle uint16
	reason           uint8
}

func (c disconnect) opcode() opcode { return opDisconnect }
func (c disconnect) len() int       { return 3 }
func (c disconnect) marshal(b []byte) {
	o.PutUint16(b[0:], c.connectionHandle)
	b[2] = c.reason
}

// Host Control Commands

// Set Event Mask (0x0001)
type setEventMask struct{ eventMask uint64 }

func (c setEventMask) opcode() opcode   { return opSetEventMask }
func (c setEventMask) len() int         { return 8 }
func (c setEventMask) marshal(b []byte) { o.PutUint64(b, c.eventMask) }

// Reset (0x0003)
type reset struct{}

func (c reset) opcode() opcode   { return opReset }
func (c reset) len() int         { return 0 }
func (c reset) marshal(b []byte) {}

// Informational Parameters

// Read Local Version Information (0x0001)
type readLocalVersion struct{}

func (c readLocalVersion) opcode() opcode   { return opReadLocalVersion }
func (c readLocalVersion) len() int         { return 0 }
func (c readLocalVersion) marshal(b []byte) {}

type readLocalVersionRP struct {
	status           uint8
	hciVersion       uint8
	hciRevision      uint16
	lmpVersion       uint8
	manufacturerName uint16
	lmpSubversion    uint16
}

func (r *readLocalVersionRP) size() int { return 9 }
func (r *readLocalVersionRP) unmarshal(b []byte) error {
	r.status = o.Uint8(b[0:])
	r.hciVersion = o.Uint8(b[1:])
	r.hciRevision = o.Uint16(b[2:])
	r.lmpVersion = o.Uint8(b[4:])
	r.manufacturerName = o.Uint16(b[5:])
	r.lmpSubversion = o.Uint16(b[7:])
	return nil
}

// Read Local Supported Commands (0x0002)
type readLocalSupportedCommands struct{}

func (c readLocalSupportedCommands) opcode() opcode   { return opReadLocalSupportedCommands }
func (c readLocalSupportedCommands) len() int         { return 0 }
func (c readLocalSupportedCommands) marshal(b []byte) {}

type readLocalSupportedCommandsRP struct {
	status   uint8
	commands [64]byte
}

func (r *readLocalSupportedCommandsRP) size() int { return 65 }
func (r *readLocalSupportedCommandsRP) unmarshal(b []byte) error {
	r.status = b[0]
	copy(r.commands[:], b[1:])
	return nil
}

// Read BD_ADDR (0x0009)
type readBDADDR struct{}

func (c readBDADDR) opcode() opcode   { return opReadBDADDR }
func (c readBDADDR) len() int         { return 0 }
func (c readBDADDR) marshal(b []byte) {}

type readBDADDRRP struct {
	status uint8
	bdaddr [6]byte
}

func (r *readBDADDRRP) size() int { return 7 }
func (r *readBDADDRRP) unmarshal(b []byte) error {
	r.status = b[0]
	r.bdaddr = o.MAC(b[1:])
	return nil
}

// LE Controller Commands

// LE Set Event Mask (0x0001)
type leSetEventMask struct{ leEventMask uint64 }

func (c leSetEventMask) opcode() opcode   { return opLESetEventMask }
func (c leSetEventMask) len() int         { return 8 }
func (c leSetEventMask) marshal(b []byte) { o.PutUint64(b, c.leEventMask) }

// LE Read Buffer Size (0x0002)
type leReadBufferSize struct{}

func (c leReadBufferSize) opcode() opcode   { return opLEReadBufferSize }
func (c leReadBufferSize) len() int         { return 0 }
func (c leReadBufferSize) marshal(b []byte) {}

type leReadBufferSizeRP struct {
	status                     uint8
	hcLEACLDataPacketLength    uint16
	hcTotalNumLEACLDataPackets uint8
}

func (r *leReadBufferSizeRP) size() int { return 4 }
func (r *leReadBufferSizeRP) unmarshal(b []byte) error {
	r.status = o.Uint8(b[0:])
	r.hcLEACLDataPacketLength = o.Uint16(b[1:])
	r.hcTotalNumLEACLDataPackets = o.Uint8(b[3:])
	return nil
}

// LE Set Advertising Parameters (0x0006)
type leSetAdvertisingParameters struct {
	advertisingIntervalMin  uint16
	advertisingIntervalMax  uint16
	advertisingType         uint8
	ownAddressType          uint8
	directAddressType       uint8
	directAddress           [6]byte
	advertisingChannelMap   uint8
	advertisingFilterPolicy uint8
}

func (c leSetAdvertisingParameters) opcode() opcode { return opLESetAdvertisingParameters }
func (c leSetAdvertisingParameters) len() int       { return 15 }
func (c leSetAdvertisingParameters) marshal(b []byte) {
	o.PutUint16(b[0:], c.advertisingIntervalMin)
	o.PutUint16(b[2:], c.advertisingIntervalMax)
	o.PutUint8(b[4:], c.advertisingType)
	o.PutUint8(b[5:], c.ownAddressType)
	o.PutUint8(b[6:], c.directAddressType)
	o.PutMAC(b[7:], c.directAddress)
	o.PutUint8(b[13:], c.advertisingChannelMap)
	o.PutUint8(b[14:], c.advertisingFilterPolicy)
}

// LE Set Advertising Data (0x0008)
type leSetAdvertisingData struct {
	advertisingDataLength uint8
	advertisingData       [31]byte
}

func (c leSetAdvertisingData) opcode() opcode { return opLESetAdvertisingData }
func (c leSetAdvertisingData) len() int       { return 32 }
func (c leSetAdvertisingData) marshal(b []byte) {
	b[0] = c.advertisingDataLength
	copy(b[1:], c.advertisingData[:])
}

// LE Set Scan Response Data (0x0009)
type leSetScanResponseData struct {
	scanResponseDataLength uint8
	scanResponseData       [31]byte
}

func (c leSetScanResponseData) opcode() opcode { return opLESetScanResponseData }
func (c leSetScanResponseData) len() int       { return 32 }
func (c leSetScanResponseData) marshal(b []byte) {
	b[0] = c.scanResponseDataLength
	copy(b[1:], c.scanResponseData[:])
}

// LE Set Advertising Enable (0x000A)
type leSetAdvertiseEnable struct{ advertisingEnable uint8 }

func (c leSetAdvertiseEnable) opcode() opcode   { return opLESetAdvertiseEnable }
func (c leSetAdvertiseEnable) len() int         { return 1 }
func (c leSetAdvertiseEnable) marshal(b []byte) { b[0] = c.advertisingEnable }

// LE Set Scan Parameters (0x000B)
type leSetScanParameters struct {
	leScanType           uint8
	leScanInterval       uint16
	leScanWindow         uint16
	ownAddressType       uint8
	scanningFilterPolicy uint8
}

func (c leSetScanParameters) opcode() opcode { return opLESetScanParameters }
func (c leSetScanParameters) len() int       { return 7 }
func (c leSetScanParameters) marshal(b []byte) {
	o.PutUint8(b[0:], c.leScanType)
	o.PutUint16(b[1:], c.leScanInterval)
	o.PutUint16(b[3:], c.leScanWindow)
	o.PutUint8(b[5:], c.ownAddressType)
	o.PutUint8(b[6:], c.scanningFilterPolicy)
}

// LE Set Scan Enable (0x000C)
type leSetScanEnable struct {
	leScanEnable     uint8
	filterDuplicates uint8
}

func (c leSetScanEnable) opcode() opcode   { return opLESetScanEnable }
func (c leSetScanEnable) len() int         { return 2 }
func (c leSetScanEnable) marshal(b []byte) { b[0], b[1] = c.leScanEnable, c.filterDuplicates }

// LE Create Connection (0x000D)
type leCreateConn struct {
	leScanInterval        uint16
	leScanWindow          uint16
	initiatorFilterPolicy uint8
	peerAddressType       uint8
	peerAddress           [6]byte
	ownAddressType        uint8
	connIntervalMin       uint16
	connIntervalMax       uint16
	connLatency           uint16
	supervisionTimeout    uint16
	minimumCELength       uint16
	maximumCELength       uint16
}

func (c leCreateConn) opcode() opcode { return opLECreateConn }
func (c leCreateConn) len() int       { return 25 }
func (c leCreateConn) marshal(b []byte) {
	o.PutUint16(b[0:], c.leScanInterval)
	o.PutUint16(b[2:], c.leScanWindow)
	o.PutUint8(b[4:], c.initiatorFilterPolicy)
	o.PutUint8(b[5:], c.peerAddressType)
	o.PutMAC(b[6:], c.peerAddress)
	o.PutUint8(b[12:], c.ownAddressType)
	o.PutUint16(b[13:], c.connIntervalMin)
	o.PutUint16(b[15:], c.connIntervalMax)
	o.PutUint16(b[17:], c.connLatency)
	o.PutUint16(b[19:], c.supervisionTimeout)
	o.PutUint16(b[21:], c.minimumCELength)
	o.PutUint16(b[23:], c.maximumCELength)
}

// LE Create Connection Cancel (0x000E)
type leCreateConnCancel struct{}

func (c leCreateConnCancel) opcode() opcode   { return opLECreateConnCancel }
func (c leCreateConnCancel) len() int         { return 0 }
func (c leCreateConnCancel) marshal(b []byte) {}

// LE Read White List Size (0x000F)
type leReadWhiteListSize struct{}

func (c leReadWhiteListSize) opcode() opcode   { return opLEReadWhiteListSize }
func (c leReadWhiteListSize) len() int         { return 0 }
func (c leReadWhiteListSize) marshal(b []byte) {}

type leReadWhiteListSizeRP struct {
	status        uint8
	whiteListSize uint8
}

func (r *leReadWhiteListSizeRP) size() int { return 2 }
func (r *leReadWhiteListSizeRP) unmarshal(b []byte) error {
	r.status, r.whiteListSize = b[0], b[1]
	return nil
}

// LE Clear White List (0x0010)
type leClearWhiteList struct{}

func (c leClearWhiteList) opcode() opcode   { return opLEClearWhiteList }
func (c leClearWhiteList) len() int         { return 0 }
func (c leClearWhiteList) marshal(b []byte) {}

// LE Add Device To White List (0x0011)
type leAddDeviceToWhiteList struct {
	addressType uint8
	address     [6]byte
}

func (c leAddDeviceToWhiteList) opcode() opcode { return opLEAddDeviceToWhiteList }
func (c leAddDeviceToWhiteList) len() int       { return 7 }
func (c leAddDeviceToWhiteList) marshal(b []byte) {
	b[0] = c.addressType
	o.PutMAC(b[1:], c.address)
}

// LE Remove Device From White List (0x0012)
type leRemoveDeviceFromWhiteList struct {
	addressType uint8
	address     [6]byte
}

func (c leRemoveDeviceFromWhiteList) opcode() opcode { return opLERemoveDeviceFromWhiteList }
func (c leRemoveDeviceFromWhiteList) len() int       { return 7 }
func (c leRemoveDeviceFromWhiteList) marshal(b []byte) {
	b[0] = c.addressType
	o.PutMAC(b[1:], c.address)
}

// LE Read Remote Used Features (0x0016)
type leReadRemoteUsedFeatures struct{ connectionHandle uint16 }

func (c leReadRemoteUsedFeatures) opcode() opcode   { return opLEReadRemoteUsedFeatures }
func (c leReadRemoteUsedFeatures) len() int         { return 2 }
func (c leReadRemoteUsedFeatures) marshal(b []byte) { o.PutUint16(b, c.connectionHandle) }

// LE Start Encryption (0x0019)
type leStartEncryption struct {
	connectionHandle     uint16
	randomNumber         uint64
	encryptedDiversifier uint16
	longTermKey          [16]byte
}

func (c leStartEncryption) opcode() opcode { return opLEStartEncryption }
func (c leStartEncryption) len() int       { return 28 }
func (c leStartEncryption) marshal(b []byte) {
	o.PutUint16(b[0:], c.connectionHandle)
	o.PutUint64(b[2:], c.randomNumber)
	o.PutUint16(b[10:], c.encryptedDiversifier)
	copy(b[12:], c.longTermKey[:])
}

// LE Long Term Key Request Reply (0x001A)
type leLTKReply struct {
	connectionHandle uint16
	longTermKey      [16]byte
}

func (c leLTKReply) opcode() opcode { return opLELTKReply }
func (c leLTKReply) len() int       { return 18 }
func (c leLTKReply) marshal(b []byte) {
	o.PutUint16(b[0:], c.connectionHandle)
	copy(b[2:], c.longTermKey[:])
}

// LE Long Term Key Request Negative Reply (0x001B)
type leLTKNegReply struct{ connectionHandle uint16 }

func (c leLTKNegReply) opcode() opcode   { return opLELTKNegReply }
func (c leLTKNegReply) len() int         { return 2 }
func (c leLTKNegReply) marshal(b []byte) { o.PutUint16(b, c.connectionHandle) }

// LE Add Device To Resolving List (0x0027)
type leAddDeviceToResolvingList struct {
	peerAddressType uint8
	peerAddress     [6]byte
	peerIRK         [16]byte
	localIRK        [16]byte
}

func (c leAddDeviceToResolvingList) opcode() opcode { return opLEAddDeviceToResolvingList }
func (c leAddDeviceToResolvingList) len() int       { return 39 }
func (c leAddDeviceToResolvingList) marshal(b []byte) {
	b[0] = c.peerAddressType
	o.PutMAC(b[1:], c.peerAddress)
	copy(b[7:], c.peerIRK[:])
	copy(b[23:], c.localIRK[:])
}

// LE Remove Device From Resolving List (0x0028)
type leRemoveDeviceFromResolvingList struct {
	peerAddressType uint8
	peerAddress     [6]byte
}

func (c leRemoveDeviceFromResolvingList) opcode() opcode { return opLERemoveDeviceFromResolvList }
func (c leRemoveDeviceFromResolvingList) len() int       { return 7 }
func (c leRemoveDeviceFromResolvingList) marshal(b []byte) {
	b[0] = c.peerAddressType
	o.PutMAC(b[1:], c.peerAddress)
}

// LE Clear Resolving List (0x0029)
type leClearResolvingList struct{}

func (c leClearResolvingList) opcode() opcode   { return opLEClearResolvingList }
func (c leClearResolvingList) len() int         { return 0 }
func (c leClearResolvingList) marshal(b []byte) {}

// LE Read Resolving List Size (0x002A)
type leReadResolvingListSize struct{}

func (c leReadResolvingListSize) opcode() opcode   { return opLEReadResolvingListSize }
func (c leReadResolvingListSize) len() int         { return 0 }
func (c leReadResolvingListSize) marshal(b []byte) {}

type leReadResolvingListSizeRP struct {
	status            uint8
	resolvingListSize uint8
}

func (r *leReadResolvingListSizeRP) size() int { return 2 }
func (r *leReadResolvingListSizeRP) unmarshal(b []byte) error {
	r.status, r.resolvingListSize = b[0], b[1]
	return nil
}

// LE Set Address Resolution Enable (0x002D)
type leSetAddressResolutionEnable struct{ enable uint8 }

func (c leSetAddressResolutionEnable) opcode() opcode   { return opLESetAddressResolutionEnable }
func (c leSetAddressResolutionEnable) len() int         { return 1 }
func (c leSetAddressResolutionEnable) marshal(b []byte) { b[0] = c.enable }

// LE Read PHY (0x0030)
type leReadPHY struct{ connectionHandle uint16 }

func (c leReadPHY) opcode() opcode   { return opLEReadPHY }
func (c leReadPHY) len() int         { return 2 }
func (c leReadPHY) marshal(b []byte) { o.PutUint16(b, c.connectionHandle) }

type leReadPHYRP struct {
	status           uint8
	connectionHandle uint16
	txPHY            uint8
	rxPHY            uint8
}

func (r *leReadPHYRP) size() int { return 5 }
func (r *leReadPHYRP) unmarshal(b []byte) error {
	r.status = o.Uint8(b[0:])
	r.connectionHandle = o.Uint16(b[1:])
	r.txPHY = o.Uint8(b[3:])
	r.rxPHY = o.Uint8(b[4:])
	return nil
}

// LE Set PHY (0x0032)
type leSetPHY struct {
	connectionHandle uint16
	allPHYs          uint8
	txPHYs           uint8
	rxPHYs           uint8
	phyOptions       uint16
}

func (c leSetPHY) opcode() opcode { return opLESetPHY }
func (c leSetPHY) len() int       { return 7 }
func (c leSetPHY) marshal(b []byte) {
	o.PutUint16(b[0:], c.connectionHandle)
	o.PutUint8(b[2:], c.allPHYs)
	o.PutUint8(b[3:], c.txPHYs)
	o.PutUint8(b[4:], c.rxPHYs)
	o.PutUint16(b[5:], c.phyOptions)
}

// LE Extended Create Connection (0x0043), 1M PHY initiating only.
type leExtendedCreateConn struct {
	initiatorFilterPolicy uint8
	ownAddressType        uint8
	peerAddressType       uint8
	peerAddress           [6]byte
	leScanInterval        uint16
	leScanWindow          uint16
	connIntervalMin       uint16
	connIntervalMax       uint16
	connLatency           uint16
	supervisionTimeout    uint16
	minimumCELength       uint16
	maximumCELength       uint16
}

func (c leExtendedCreateConn) opcode() opcode { return opLEExtendedCreateConn }
func (c leExtendedCreateConn) len() int       { return 26 }
func (c leExtendedCreateConn) marshal(b []byte) {
	o.PutUint8(b[0:], c.initiatorFilterPolicy)
	o.PutUint8(b[1:], c.ownAddressType)
	o.PutUint8(b[2:], c.peerAddressType)
	o.PutMAC(b[3:], c.peerAddress)
	o.PutUint8(b[9:], 0x01) // initiating PHYs: LE 1M
	o.PutUint16(b[10:], c.leScanInterval)
	o.PutUint16(b[12:], c.leScanWindow)
	o.PutUint16(b[14:], c.connIntervalMin)
	o.PutUint16(b[16:], c.connIntervalMax)
	o.PutUint16(b[18:], c.connLatency)
	o.PutUint16(b[20:], c.supervisionTimeout)
	o.PutUint16(b[22:], c.minimumCELength)
	o.PutUint16(b[24:], c.maximumCELength)
}
