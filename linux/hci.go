package linux

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/XC-/blelink/linux/socket"
)

// ErrClosed is returned for operations on a closed adapter.
var ErrClosed = errors.New("hci: adapter closed")

const (
	defaultRingSize        = 16
	defaultStatusTimeout   = 1 * time.Second
	defaultCompleteTimeout = 3 * time.Second
	defaultPollPeriod      = 50 * time.Millisecond
)

// Option configures an HCI engine.
type Option func(*HCI)

// WithLogger replaces the default logger.
func WithLogger(l *logrus.Logger) Option {
	return func(h *HCI) { h.log = l.WithField("hci", h.id) }
}

// WithStatusTimeout bounds the wait for a CMD_STATUS reply.
func WithStatusTimeout(d time.Duration) Option {
	return func(h *HCI) { h.statusTimeout = d }
}

// WithCompleteTimeout bounds the wait for a CMD_COMPLETE reply.
func WithCompleteTimeout(d time.Duration) Option {
	return func(h *HCI) { h.completeTimeout = d }
}

// WithRingSize sets the reply ring capacity, which is also the retry
// budget for mismatched replies.
func WithRingSize(n int) Option {
	return func(h *HCI) { h.ringSize = n }
}

// WithAdvParser installs the external AD/EIR parser collaborator.
func WithAdvParser(p AdvParser) Option {
	return func(h *HCI) { h.parser = p }
}

// WithSecureConnections declares controller support for LE Secure
// Connections; the orchestrator uses it when computing security levels.
func WithSecureConnections(on bool) Option {
	return func(h *HCI) { h.secureConn = on }
}

// HCI owns the transport for one adapter: it runs the single reader
// loop, correlates command replies through the reply ring, translates
// controller events into link events, and routes SMP PDUs to listeners.
type HCI struct {
	id  int
	d   io.ReadWriteCloser
	log *logrus.Entry

	ring    *replyRing
	tracker *connTracker
	parser  AdvParser
	filter  eventFilter

	ringSize        int
	statusTimeout   time.Duration
	completeTimeout time.Duration
	pollPeriod      time.Duration

	secureConn bool
	addr       Addr

	// cmdmu serializes command issuance: at most one command is
	// outstanding per adapter. Deliberately separate from mu so a
	// command in flight never blocks listener bookkeeping.
	cmdmu sync.Mutex

	mu          sync.Mutex
	handlers    map[EventKind][]LinkEventHandler
	smpHandlers []SmpHandler
	scanning    bool
	advertising bool

	closing   int32
	closeOnce sync.Once
	done      chan struct{}
}

// NewHCI opens the raw HCI socket for device id, starts the reader loop
// and runs the bring-up sequence.
func NewHCI(id int, opts ...Option) (*HCI, error) {
	d, err := socket.New(id)
	if err != nil {
		return nil, err
	}
	h := newEngine(d, id, opts...)
	h.run()
	if st := h.bringUp(); !st.Ok() {
		h.Close()
		return nil, errors.New("hci: bring-up failed: " + st.String())
	}
	return h, nil
}

func newEngine(d io.ReadWriteCloser, id int, opts ...Option) *HCI {
	h := &HCI{
		id:              id,
		d:               d,
		tracker:         newConnTracker(),
		filter:          defaultFilter(),
		ringSize:        defaultRingSize,
		statusTimeout:   defaultStatusTimeout,
		completeTimeout: defaultCompleteTimeout,
		pollPeriod:      defaultPollPeriod,
		handlers:        make(map[EventKind][]LinkEventHandler),
		done:            make(chan struct{}),
	}
	h.log = logrus.StandardLogger().WithField("hci", id)
	for _, opt := range opts {
		opt(h)
	}
	h.ring = newReplyRing(h.ringSize, func(n int) {
		h.log.Warnf("reply ring overflow, dropped %d oldest replies", n)
	})
	return h
}

func (h *HCI) run() { go h.loop() }

// Addr is the adapter's own device address, read during bring-up.
func (h *HCI) Addr() Addr { return h.addr }

// SecureConnectionsSupported reports the configured controller support.
func (h *HCI) SecureConnectionsSupported() bool { return h.secureConn }

// Close stops the adapter. The blocked transport read is interrupted by
// closing the descriptor, and Close joins the reader loop before
// returning, so no callback fires afterwards.
func (h *HCI) Close() error {
	atomic.StoreInt32(&h.closing, 1)
	var err error
	h.closeOnce.Do(func() { err = h.d.Close() })
	<-h.done
	return err
}

// Subscribe registers a listener for one event kind.
func (h *HCI) Subscribe(kind EventKind, fn LinkEventHandler) {
	h.mu.Lock()
	h.handlers[kind] = append(h.handlers[kind], fn)
	h.mu.Unlock()
}

// HandleSMP registers an SMP PDU listener. All listeners receive every
// PDU.
func (h *HCI) HandleSMP(fn SmpHandler) {
	h.mu.Lock()
	h.smpHandlers = append(h.smpHandlers, fn)
	h.mu.Unlock()
}

// SendSMP writes an SMP PDU to the peer over the LE fixed channel.
// Writes go straight to the transport; they are not serialized with
// command issuance.
func (h *HCI) SendSMP(peer PeerID, pdu SmpPDU) Status {
	if atomic.LoadInt32(&h.closing) != 0 {
		return StatusDisconnected
	}
	c := h.tracker.byPeer(peer)
	if c == nil || c.Handle == 0 {
		return StatusUnknownConnID
	}
	payload := marshalSmpPDU(pdu)
	if payload == nil {
		return StatusInternalFailure
	}
	if _, err := h.d.Write(marshalL2CAP(c.Handle, cidSMP, payload)); err != nil {
		h.log.WithError(err).Errorf("smp write failed for %s", peer)
		return StatusInternalFailure
	}
	return StatusSuccess
}

// Connection looks up the tracked connection for peer, if any.
func (h *HCI) Connection(peer PeerID) (Conn, bool) {
	c := h.tracker.byPeer(peer)
	if c == nil {
		return Conn{}, false
	}
	return *c, true
}

// bringUp is the adapter initialization sequence.
func (h *HCI) bringUp() Status {
	if st := h.sendComplete(reset{}, nil); !st.Ok() {
		return st
	}
	if st := h.sendComplete(setEventMask{eventMask: 0x3dbff807fffbffff}, nil); !st.Ok() {
		return st
	}
	if st := h.sendComplete(leSetEventMask{leEventMask: 0x000000000000341F}, nil); !st.Ok() {
		return st
	}
	rp := readBDADDRRP{}
	if st := h.sendComplete(readBDADDR{}, &rp); !st.Ok() {
		return st
	}
	h.addr = Addr(rp.bdaddr)
	bs := leReadBufferSizeRP{}
	return h.sendComplete(leReadBufferSize{}, &bs)
}

// loop is the single reader task for the adapter.
func (h *HCI) loop() {
	defer close(h.done)
	b := make([]byte, 4096)
	for {
		n, err := h.d.Read(b)
		if err != nil || n == 0 {
			// A hard read error still releases the descriptor; a later
			// Close finds it already closed and just joins.
			if atomic.CompareAndSwapInt32(&h.closing, 0, 1) {
				h.log.WithError(err).Error("transport read failed, stopping reader")
				h.closeOnce.Do(func() { h.d.Close() })
			}
			return
		}
		p := make([]byte, n)
		copy(p, b)
		h.handlePacket(p, time.Now())
	}
}

func (h *HCI) handlePacket(b []byte, at time.Time) {
	if len(b) < 1 {
		return
	}
	t, b := packetType(b[0]), b[1:]
	switch t {
	case typCommandPkt:
		if len(b) >= 2 {
			h.log.Debugf("unmanaged command packet: %s", opcode(o.Uint16(b)))
		}
	case typACLDataPkt:
		h.handleACL(b, at)
	case typEventPkt:
		h.handleEvt(b, at)
	case typSCODataPkt, typVendorPkt:
		h.log.Debugf("unsupported packet type 0x%02X", uint8(t))
	default:
		h.log.Warnf("unknown packet type 0x%02X", uint8(t))
	}
}

func (h *HCI) handleACL(b []byte, at time.Time) {
	a := &aclData{}
	if err := a.unmarshal(b); err != nil {
		h.log.WithError(err).Warn("dropping malformed acl packet")
		return
	}
	f := &l2capFrame{}
	if err := f.unmarshal(a); err != nil {
		h.log.WithError(err).Warn("dropping malformed l2cap frame")
		return
	}
	if !f.isSMP() {
		// ATT and signaling traffic belongs to the GATT collaborator.
		return
	}
	pdu, err := unmarshalSmpPDU(f.b)
	if err != nil {
		h.log.WithError(err).Warn("dropping smp pdu")
		return
	}
	c := h.tracker.byHandle(f.handle)
	if c == nil {
		h.log.Warnf("smp pdu for unknown handle 0x%04X", f.handle)
		return
	}
	frame := L2CAPFrame{Handle: f.handle, CID: f.cid, Incoming: true, Payload: f.b, At: at}
	h.mu.Lock()
	ls := append([]SmpHandler(nil), h.smpHandlers...)
	h.mu.Unlock()
	for _, fn := range ls {
		h.invokeSMP(fn, c.Peer, pdu, frame)
	}
}

func (h *HCI) invokeSMP(fn SmpHandler, peer PeerID, pdu SmpPDU, f L2CAPFrame) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Errorf("smp listener panic: %v", r)
		}
	}()
	fn(peer, pdu, f)
}

func (h *HCI) handleEvt(b []byte, at time.Time) {
	hdr := eventHeader{}
	if err := hdr.unmarshal(b); err != nil {
		h.log.WithError(err).Warn("dropping malformed event")
		return
	}
	p := b[2:]
	switch hdr.code {
	case commandComplete:
		ep := commandCompleteEP{}
		if err := ep.unmarshal(p); err != nil {
			h.log.WithError(err).Warn("dropping command complete")
			return
		}
		h.ring.push(reply{opcode: ep.commandOpcode, complete: true, params: ep.returnParameters, at: at})
	case commandStatus:
		ep := commandStatusEP{}
		if err := ep.unmarshal(p); err != nil {
			h.log.WithError(err).Warn("dropping command status")
			return
		}
		h.ring.push(reply{opcode: ep.commandOpcode, status: ep.status, at: at})
	case leMeta:
		h.handleLEMeta(p, at)
	default:
		if !h.filter.wantsEvent(hdr.code) {
			h.log.Debugf("ignoring filtered event %s", hdr.code)
			return
		}
		h.translate(hdr.code, p, at)
	}
}

// translate maps a generic controller event to a link event, resolving
// handles through the connection tracker. Unknown kinds translate to
// nothing.
func (h *HCI) translate(code eventCode, p []byte, at time.Time) {
	switch code {
	case connectionComplete:
		ep := connectionCompleteEP{}
		if err := ep.unmarshal(p); err != nil {
			h.log.WithError(err).Warn("dropping connection complete")
			return
		}
		peer := PeerID{Addr: Addr(ep.bdaddr), Type: AddrTypePublic}
		h.connComplete(peer, ep.connectionHandle, ep.status, at)
	case disconnectionComplete:
		ep := disconnectionCompleteEP{}
		if err := ep.unmarshal(p); err != nil {
			h.log.WithError(err).Warn("dropping disconnection complete")
			return
		}
		h.tracker.resolvePendingDisconnect(ep.connectionHandle)
		c := h.tracker.removeHandle(ep.connectionHandle)
		if c == nil {
			// Expected after adapter reset or teardown races.
			h.log.Warnf("disconnection complete for unknown handle 0x%04X", ep.connectionHandle)
			return
		}
		h.dispatch(LinkEvent{Kind: EvtDeviceDisconnected, Peer: c.Peer, Reason: ep.reason, At: at})
	case encryptionChange:
		ep := encryptionChangeEP{}
		if err := ep.unmarshal(p); err != nil {
			h.log.WithError(err).Warn("dropping encryption change")
			return
		}
		c := h.tracker.byHandle(ep.connectionHandle)
		if c == nil {
			h.log.Warnf("encryption change for unknown handle 0x%04X", ep.connectionHandle)
			return
		}
		h.dispatch(LinkEvent{
			Kind:    EvtEncryptionChanged,
			Peer:    c.Peer,
			Status:  Status(ep.status),
			Enabled: ep.encryptionEnabled != 0,
			At:      at,
		})
	case encryptionKeyRefreshComplete:
		ep := encryptionKeyRefreshCompleteEP{}
		if err := ep.unmarshal(p); err != nil {
			h.log.WithError(err).Warn("dropping key refresh complete")
			return
		}
		c := h.tracker.byHandle(ep.connectionHandle)
		if c == nil {
			h.log.Warnf("key refresh for unknown handle 0x%04X", ep.connectionHandle)
			return
		}
		h.dispatch(LinkEvent{Kind: EvtEncryptionKeyRefreshed, Peer: c.Peer, Status: Status(ep.status), At: at})
	case readRemoteFeaturesComplete:
		ep := readRemoteFeaturesCompleteEP{}
		if err := ep.unmarshal(p); err != nil {
			h.log.WithError(err).Warn("dropping remote features complete")
			return
		}
		c := h.tracker.byHandle(ep.connectionHandle)
		if c == nil {
			h.log.Warnf("remote features for unknown handle 0x%04X", ep.connectionHandle)
			return
		}
		h.dispatch(LinkEvent{Kind: EvtRemoteFeatures, Peer: c.Peer, Status: Status(ep.status), Features: ep.lmpFeatures, At: at})
	case hardwareError:
		h.log.Error("controller hardware error")
	}
}

func (h *HCI) handleLEMeta(p []byte, at time.Time) {
	if len(p) < 1 {
		return
	}
	sub := leEventCode(p[0])
	if !h.filter.wantsSub(sub) {
		h.log.Debugf("ignoring filtered subevent %s", sub)
		return
	}
	switch sub {
	case leConnectionComplete:
		ep := leConnectionCompleteEP{}
		if err := ep.unmarshal(p); err != nil {
			h.log.WithError(err).Warn("dropping le connection complete")
			return
		}
		peer := PeerID{Addr: Addr(ep.peerAddress), Type: AddrType(ep.peerAddressType)}
		h.connComplete(peer, ep.connectionHandle, ep.status, at)
	case leEnhancedConnectionComplete:
		ep := leEnhancedConnectionCompleteEP{}
		if err := ep.unmarshal(p); err != nil {
			h.log.WithError(err).Warn("dropping le enhanced connection complete")
			return
		}
		peer := PeerID{Addr: Addr(ep.peerAddress), Type: AddrType(ep.peerAddressType)}
		h.connComplete(peer, ep.connectionHandle, ep.status, at)
	case leAdvertisingReport, leExtendedAdvertisingReport:
		if h.parser == nil {
			return
		}
		var recs []DiscoveryRecord
		if sub == leAdvertisingReport {
			recs = h.parser.ParseReports(p)
		} else {
			recs = h.parser.ParseExtendedReports(p)
		}
		// Per-record order within a burst is preserved.
		for i := range recs {
			r := recs[i]
			h.dispatch(LinkEvent{Kind: EvtDeviceFound, Peer: r.Peer, Record: &r, At: at})
		}
	case leReadRemoteUsedFeaturesComplete:
		ep := leReadRemoteUsedFeaturesCompleteEP{}
		if err := ep.unmarshal(p); err != nil {
			h.log.WithError(err).Warn("dropping le remote features complete")
			return
		}
		c := h.tracker.byHandle(ep.connectionHandle)
		if c == nil {
			h.log.Warnf("le remote features for unknown handle 0x%04X", ep.connectionHandle)
			return
		}
		h.dispatch(LinkEvent{Kind: EvtRemoteFeatures, Peer: c.Peer, Status: Status(ep.status), Features: ep.leFeatures, At: at})
	case leLTKRequest:
		ep := leLTKRequestEP{}
		if err := ep.unmarshal(p); err != nil {
			h.log.WithError(err).Warn("dropping le ltk request")
			return
		}
		c := h.tracker.byHandle(ep.connectionHandle)
		if c == nil {
			h.log.Warnf("ltk request for unknown handle 0x%04X", ep.connectionHandle)
			return
		}
		if h.listenerCount(EvtLTKRequest) == 0 {
			// No key store registered; refuse so the peer fails fast
			// instead of timing out. Issued off the reader loop since
			// the reply would otherwise deadlock against ourselves.
			handle := ep.connectionHandle
			go func() {
				if st := h.sendStatus(leLTKNegReply{connectionHandle: handle}); !st.Ok() {
					h.log.Warnf("ltk negative reply failed: %s", st)
				}
			}()
			return
		}
		h.dispatch(LinkEvent{
			Kind: EvtLTKRequest,
			Peer: c.Peer,
			Rand: ep.randomNumber,
			EDIV: ep.encryptionDiversifier,
			At:   at,
		})
	case lePHYUpdateComplete:
		ep := lePHYUpdateCompleteEP{}
		if err := ep.unmarshal(p); err != nil {
			h.log.WithError(err).Warn("dropping le phy update complete")
			return
		}
		c := h.tracker.byHandle(ep.connectionHandle)
		if c == nil {
			h.log.Warnf("phy update for unknown handle 0x%04X", ep.connectionHandle)
			return
		}
		h.dispatch(LinkEvent{Kind: EvtPHYUpdate, Peer: c.Peer, Status: Status(ep.status), TxPHY: ep.txPHY, RxPHY: ep.rxPHY, At: at})
	}
}

func (h *HCI) connComplete(peer PeerID, handle uint16, status uint8, at time.Time) {
	if !Status(status).Ok() {
		h.tracker.removePeer(peer)
		h.dispatch(LinkEvent{Kind: EvtDeviceConnectFailed, Peer: peer, Status: Status(status), At: at})
		return
	}
	h.tracker.assign(peer, handle)
	h.dispatch(LinkEvent{Kind: EvtDeviceConnected, Peer: peer, At: at})
}

func (h *HCI) listenerCount(kind EventKind) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.handlers[kind])
}

// dispatch delivers ev to every listener of its kind, in registration
// order. A panicking listener is isolated and logged; the rest still
// run.
func (h *HCI) dispatch(ev LinkEvent) {
	ev.Adapter = h.id
	h.mu.Lock()
	ls := append([]LinkEventHandler(nil), h.handlers[ev.Kind]...)
	h.mu.Unlock()
	for _, fn := range ls {
		h.invoke(fn, ev)
	}
}

func (h *HCI) invoke(fn LinkEventHandler, ev LinkEvent) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Errorf("link event listener panic: %v", r)
		}
	}()
	fn(ev)
}

// Command primitives.

// sendStatus issues a command that is acknowledged with CMD_STATUS.
func (h *HCI) sendStatus(cp cmdParam) Status { return h.issue(cp, nil, h.statusTimeout) }

// sendComplete issues a command that returns parameters in a
// CMD_COMPLETE. rp may be nil when only the status byte matters.
func (h *HCI) sendComplete(cp cmdParam, rp cmdResp) Status {
	return h.issue(cp, rp, h.completeTimeout)
}

func (h *HCI) issue(cp cmdParam, rp cmdResp, timeout time.Duration) Status {
	if atomic.LoadInt32(&h.closing) != 0 {
		return StatusDisconnected
	}
	h.cmdmu.Lock()
	defer h.cmdmu.Unlock()

	raw := marshalCmd(cp)
	if n, err := h.d.Write(raw); err != nil {
		h.log.WithError(err).Errorf("write failed for %s", cp.opcode())
		return StatusInternalFailure
	} else if n != len(raw) {
		h.log.Errorf("short write for %s", cp.opcode())
		return StatusInternalFailure
	}

	op := uint16(cp.opcode())
	// Retry budget covers mismatched replies only; a ring timeout is
	// final.
	for i := 0; i < h.ring.capacity(); i++ {
		ev, ok := h.ring.pull(timeout)
		if !ok {
			h.log.Warnf("timeout waiting for reply to %s", cp.opcode())
			return StatusInternalTimeout
		}
		if ev.opcode != op {
			h.log.Debugf("skipping reply for %s while waiting for %s", opcode(ev.opcode), cp.opcode())
			continue
		}
		if !ev.complete {
			st := Status(ev.status)
			if rp == nil || !st.Ok() {
				// Status-only command, or the controller rejected a
				// command that would otherwise complete later.
				return st
			}
			// Accepted, pending: keep waiting for CMD_COMPLETE.
			continue
		}
		if rp == nil {
			if len(ev.params) > 0 {
				return Status(ev.params[0])
			}
			return StatusSuccess
		}
		if len(ev.params) < rp.size() {
			h.log.Warnf("short return parameters for %s: [% X]", cp.opcode(), ev.params)
			return StatusInternalFailure
		}
		if err := rp.unmarshal(ev.params); err != nil {
			h.log.WithError(err).Warnf("bad return parameters for %s", cp.opcode())
			return StatusInternalFailure
		}
		return Status(ev.params[0])
	}
	return StatusInternalTimeout
}

// waitConnSettled delays a connect to peer until no handle-less connect
// is pending and no disconnect to the same peer is in flight. Bounded:
// proceeds anyway after the complete timeout, since the controller
// rejects truly conflicting requests itself.
func (h *HCI) waitConnSettled(peer PeerID) {
	deadline := time.Now().Add(h.completeTimeout)
	for time.Now().Before(deadline) {
		if h.tracker.pendingCount() == 0 && !h.tracker.hasPendingDisconnect(peer) {
			return
		}
		t := time.NewTimer(h.pollPeriod)
		select {
		case <-h.done:
			t.Stop()
			return
		case <-t.C:
		}
	}
	h.log.Warnf("proceeding with connect to %s despite unsettled connections", peer)
}

// ConnParams is the timing parameter set for connection establishment.
type ConnParams struct {
	ScanInterval       uint16
	ScanWindow         uint16
	IntervalMin        uint16
	IntervalMax        uint16
	Latency            uint16
	SupervisionTimeout uint16
	MinCELength        uint16
	MaxCELength        uint16
}

// DefaultConnParams matches common controller defaults.
var DefaultConnParams = ConnParams{
	ScanInterval:       0x0060,
	ScanWindow:         0x0030,
	IntervalMin:        0x0018,
	IntervalMax:        0x0028,
	Latency:            0x0000,
	SupervisionTimeout: 0x002A,
	MinCELength:        0x0000,
	MaxCELength:        0x0000,
}

// LEConnect issues an LE Create Connection to peer. The tracking entry
// is inserted with handle 0 before the command is written so a racing
// connection-complete always finds it.
func (h *HCI) LEConnect(peer PeerID, prm ConnParams) Status {
	return h.connect(peer, leCreateConn{
		leScanInterval:     prm.ScanInterval,
		leScanWindow:       prm.ScanWindow,
		peerAddressType:    uint8(peer.Type),
		peerAddress:        [6]byte(peer.Addr),
		connIntervalMin:    prm.IntervalMin,
		connIntervalMax:    prm.IntervalMax,
		connLatency:        prm.Latency,
		supervisionTimeout: prm.SupervisionTimeout,
		minimumCELength:    prm.MinCELength,
		maximumCELength:    prm.MaxCELength,
	})
}

// LEConnectExtended is the extended (LE 1M initiating) variant.
func (h *HCI) LEConnectExtended(peer PeerID, prm ConnParams) Status {
	return h.connect(peer, leExtendedCreateConn{
		peerAddressType:    uint8(peer.Type),
		peerAddress:        [6]byte(peer.Addr),
		leScanInterval:     prm.ScanInterval,
		leScanWindow:       prm.ScanWindow,
		connIntervalMin:    prm.IntervalMin,
		connIntervalMax:    prm.IntervalMax,
		connLatency:        prm.Latency,
		supervisionTimeout: prm.SupervisionTimeout,
		minimumCELength:    prm.MinCELength,
		maximumCELength:    prm.MaxCELength,
	})
}

// Connect issues a BR/EDR Create Connection.
func (h *HCI) Connect(addr Addr) Status {
	peer := PeerID{Addr: addr, Type: AddrTypePublic}
	return h.connect(peer, createConn{
		bdaddr:          [6]byte(addr),
		packetType:      0xCC18,
		allowRoleSwitch: 1,
	})
}

func (h *HCI) connect(peer PeerID, cp cmdParam) Status {
	h.waitConnSettled(peer)
	h.tracker.add(peer)
	st := h.sendStatus(cp)
	if !st.Ok() {
		h.tracker.removePeer(peer)
	}
	return st
}

// Disconnect terminates the connection to peer. Disconnecting a peer
// with no tracked connection, or one whose disconnect is already in
// flight, is a harmless no-op: a second DISCONNECT is never issued.
func (h *HCI) Disconnect(peer PeerID, reason uint8) Status {
	c := h.tracker.byPeer(peer)
	if c == nil || c.Handle == 0 {
		return StatusSuccess
	}
	if h.tracker.hasPendingDisconnect(peer) {
		return StatusSuccess
	}
	h.tracker.addPendingDisconnect(peer, c.Handle)
	st := h.sendStatus(disconnect{connectionHandle: c.Handle, reason: reason})
	if !st.Ok() {
		h.tracker.resolvePendingDisconnect(c.Handle)
	}
	return st
}

// Scan enables LE scanning. Disallowed while advertising is active;
// rejected before reaching the transport.
func (h *HCI) Scan(active, filterDuplicates bool) Status {
	h.mu.Lock()
	if h.advertising {
		h.mu.Unlock()
		return StatusCommandDisallowed
	}
	h.mu.Unlock()
	scanType := uint8(0x00)
	if active {
		scanType = 0x01
	}
	if st := h.sendComplete(leSetScanParameters{
		leScanType:     scanType,
		leScanInterval: 0x0010,
		leScanWindow:   0x0010,
	}, nil); !st.Ok() {
		return st
	}
	fd := uint8(0)
	if filterDuplicates {
		fd = 1
	}
	st := h.sendComplete(leSetScanEnable{leScanEnable: 1, filterDuplicates: fd}, nil)
	if st.Ok() {
		h.mu.Lock()
		h.scanning = true
		h.mu.Unlock()
		h.dispatch(LinkEvent{Kind: EvtDiscovering, ScanType: scanType, Enabled: true, At: time.Now()})
	}
	return st
}

// StopScan disables LE scanning.
func (h *HCI) StopScan() Status {
	st := h.sendComplete(leSetScanEnable{leScanEnable: 0, filterDuplicates: 1}, nil)
	if st.Ok() {
		h.mu.Lock()
		h.scanning = false
		h.mu.Unlock()
		h.dispatch(LinkEvent{Kind: EvtDiscovering, Enabled: false, At: time.Now()})
	}
	return st
}

// Advertise enables advertising. Disallowed while scanning is active.
func (h *HCI) Advertise() Status {
	h.mu.Lock()
	if h.scanning {
		h.mu.Unlock()
		return StatusCommandDisallowed
	}
	h.mu.Unlock()
	st := h.sendComplete(leSetAdvertiseEnable{advertisingEnable: 1}, nil)
	if st.Ok() {
		h.mu.Lock()
		h.advertising = true
		h.mu.Unlock()
	}
	return st
}

// StopAdvertising disables advertising.
func (h *HCI) StopAdvertising() Status {
	st := h.sendComplete(leSetAdvertiseEnable{advertisingEnable: 0}, nil)
	if st.Ok() {
		h.mu.Lock()
		h.advertising = false
		h.mu.Unlock()
	}
	return st
}

// SetAdvertisingParameters configures undirected advertising timing.
func (h *HCI) SetAdvertisingParameters(intMin, intMax uint16, chnlMap uint8) Status {
	return h.sendComplete(leSetAdvertisingParameters{
		advertisingIntervalMin: intMin,
		advertisingIntervalMax: intMax,
		advertisingChannelMap:  chnlMap,
	}, nil)
}

// SetAdvertisingData sets the advertising payload.
func (h *HCI) SetAdvertisingData(n uint8, data [31]byte) Status {
	return h.sendComplete(leSetAdvertisingData{advertisingDataLength: n, advertisingData: data}, nil)
}

// SetScanResponseData sets the scan response payload.
func (h *HCI) SetScanResponseData(n uint8, data [31]byte) Status {
	return h.sendComplete(leSetScanResponseData{scanResponseDataLength: n, scanResponseData: data}, nil)
}

// ReadRemoteFeatures requests the peer's LE feature set; completion
// arrives as an EvtRemoteFeatures link event.
func (h *HCI) ReadRemoteFeatures(peer PeerID) Status {
	c := h.tracker.byPeer(peer)
	if c == nil || c.Handle == 0 {
		return StatusUnknownConnID
	}
	return h.sendStatus(leReadRemoteUsedFeatures{connectionHandle: c.Handle})
}

// StartEncryption initiates link encryption with a stored LTK.
func (h *HCI) StartEncryption(peer PeerID, rand uint64, ediv uint16, ltk [16]byte) Status {
	c := h.tracker.byPeer(peer)
	if c == nil || c.Handle == 0 {
		return StatusUnknownConnID
	}
	return h.sendStatus(leStartEncryption{
		connectionHandle:     c.Handle,
		randomNumber:         rand,
		encryptedDiversifier: ediv,
		longTermKey:          ltk,
	})
}

// LTKReply answers an LTK request with key material.
func (h *HCI) LTKReply(peer PeerID, ltk [16]byte) Status {
	c := h.tracker.byPeer(peer)
	if c == nil || c.Handle == 0 {
		return StatusUnknownConnID
	}
	return h.sendComplete(leLTKReply{connectionHandle: c.Handle, longTermKey: ltk}, nil)
}

// LTKNegativeReply refuses an LTK request.
func (h *HCI) LTKNegativeReply(peer PeerID) Status {
	c := h.tracker.byPeer(peer)
	if c == nil || c.Handle == 0 {
		return StatusUnknownConnID
	}
	return h.sendComplete(leLTKNegReply{connectionHandle: c.Handle}, nil)
}

// ReadPHY reads the current TX/RX PHY for the connection to peer.
func (h *HCI) ReadPHY(peer PeerID) (tx, rx uint8, st Status) {
	c := h.tracker.byPeer(peer)
	if c == nil || c.Handle == 0 {
		return 0, 0, StatusUnknownConnID
	}
	rp := leReadPHYRP{}
	st = h.sendComplete(leReadPHY{connectionHandle: c.Handle}, &rp)
	return rp.txPHY, rp.rxPHY, st
}

// SetPHY requests a PHY change; completion arrives as an EvtPHYUpdate
// link event.
func (h *HCI) SetPHY(peer PeerID, txPHYs, rxPHYs uint8) Status {
	c := h.tracker.byPeer(peer)
	if c == nil || c.Handle == 0 {
		return StatusUnknownConnID
	}
	return h.sendStatus(leSetPHY{connectionHandle: c.Handle, txPHYs: txPHYs, rxPHYs: rxPHYs})
}

// Resolving list maintenance.

func (h *HCI) AddToResolvingList(peer PeerID, peerIRK, localIRK [16]byte) Status {
	return h.sendComplete(leAddDeviceToResolvingList{
		peerAddressType: uint8(peer.Type),
		peerAddress:     [6]byte(peer.Addr),
		peerIRK:         peerIRK,
		localIRK:        localIRK,
	}, nil)
}

func (h *HCI) RemoveFromResolvingList(peer PeerID) Status {
	return h.sendComplete(leRemoveDeviceFromResolvingList{
		peerAddressType: uint8(peer.Type),
		peerAddress:     [6]byte(peer.Addr),
	}, nil)
}

func (h *HCI) ClearResolvingList() Status {
	return h.sendComplete(leClearResolvingList{}, nil)
}

func (h *HCI) ResolvingListSize() (int, Status) {
	rp := leReadResolvingListSizeRP{}
	st := h.sendComplete(leReadResolvingListSize{}, &rp)
	return int(rp.resolvingListSize), st
}

func (h *HCI) SetAddressResolution(on bool) Status {
	e := uint8(0)
	if on {
		e = 1
	}
	return h.sendComplete(leSetAddressResolutionEnable{enable: e}, nil)
}

// White list maintenance.

func (h *HCI) AddToWhiteList(peer PeerID) Status {
	return h.sendComplete(leAddDeviceToWhiteList{
		addressType: uint8(peer.Type),
		address:     [6]byte(peer.Addr),
	}, nil)
}

func (h *HCI) RemoveFromWhiteList(peer PeerID) Status {
	return h.sendComplete(leRemoveDeviceFromWhiteList{
		addressType: uint8(peer.Type),
		address:     [6]byte(peer.Addr),
	}, nil)
}

func (h *HCI) ClearWhiteList() Status {
	return h.sendComplete(leClearWhiteList{}, nil)
}

func (h *HCI) WhiteListSize() (int, Status) {
	rp := leReadWhiteListSizeRP{}
	st := h.sendComplete(leReadWhiteListSize{}, &rp)
	return int(rp.whiteListSize), st
}

// LocalVersion is the controller's version information.
type LocalVersion struct {
	HCIVersion   uint8
	HCIRevision  uint16
	LMPVersion   uint8
	Manufacturer uint16
	LMPSubver    uint16
}

func (h *HCI) LocalVersion() (LocalVersion, Status) {
	rp := readLocalVersionRP{}
	st := h.sendComplete(readLocalVersion{}, &rp)
	return LocalVersion{
		HCIVersion:   rp.hciVersion,
		HCIRevision:  rp.hciRevision,
		LMPVersion:   rp.lmpVersion,
		Manufacturer: rp.manufacturerName,
		LMPSubver:    rp.lmpSubversion,
	}, st
}

func (h *HCI) SupportedCommands() ([64]byte, Status) {
	rp := readLocalSupportedCommandsRP{}
	st := h.sendComplete(readLocalSupportedCommands{}, &rp)
	return rp.commands, st
}

// eventFilter is the static per-adapter accept set. Events outside it
// are still decoded for housekeeping but not acted on.
type eventFilter struct {
	events map[eventCode]bool
	subs   map[leEventCode]bool
}

func defaultFilter() eventFilter {
	return eventFilter{
		events: map[eventCode]bool{
			connectionComplete:           true,
			disconnectionComplete:        true,
			encryptionChange:             true,
			readRemoteFeaturesComplete:   true,
			encryptionKeyRefreshComplete: true,
			hardwareError:                true,
			leMeta:                       true,
		},
		subs: map[leEventCode]bool{
			leConnectionComplete:             true,
			leAdvertisingReport:              true,
			leReadRemoteUsedFeaturesComplete: true,
			leLTKRequest:                     true,
			leEnhancedConnectionComplete:     true,
			lePHYUpdateComplete:              true,
			leExtendedAdvertisingReport:      true,
		},
	}
}

func (f eventFilter) wantsEvent(c eventCode) bool { return f.events[c] }
func (f eventFilter) wantsSub(c leEventCode) bool { return f.subs[c] }
