package linux

// IOCapability is the SMP IO capability value exchanged during pairing
// feature exchange [Vol 3, Part H, 2.3.2].
type IOCapability uint8

const (
	IOCapDisplayOnly     IOCapability = 0x00
	IOCapDisplayYesNo    IOCapability = 0x01
	IOCapKeyboardOnly    IOCapability = 0x02
	IOCapNoInputNoOutput IOCapability = 0x03
	IOCapKeyboardDisplay IOCapability = 0x04
)

var ioCapName = map[IOCapability]string{
	IOCapDisplayOnly:     "DisplayOnly",
	IOCapDisplayYesNo:    "DisplayYesNo",
	IOCapKeyboardOnly:    "KeyboardOnly",
	IOCapNoInputNoOutput: "NoInputNoOutput",
	IOCapKeyboardDisplay: "KeyboardDisplay",
}

func (c IOCapability) String() string { return ioCapName[c] }

// AuthReq is the SMP auth-requirements bit field.
type AuthReq uint8

const (
	authBonding  AuthReq = 0x01
	authMITM     AuthReq = 0x04
	authSC       AuthReq = 0x08
	authKeypress AuthReq = 0x10
)

func (a AuthReq) Bonding() bool           { return a&authBonding != 0 }
func (a AuthReq) MITM() bool              { return a&authMITM != 0 }
func (a AuthReq) SecureConnections() bool { return a&authSC != 0 }
func (a AuthReq) Keypress() bool          { return a&authKeypress != 0 }

// KeyDist is the SMP key-distribution bit set.
type KeyDist uint8

const (
	KeyEnc  KeyDist = 0x01 // LTK + EDIV/Rand
	KeyID   KeyDist = 0x02 // IRK + identity address
	KeySign KeyDist = 0x04 // CSRK
	KeyLink KeyDist = 0x08 // BR/EDR link key derivation
)

func (k KeyDist) Has(b KeyDist) bool    { return k&b == b }
func (k KeyDist) Union(b KeyDist) KeyDist { return k | b }

// Covers reports whether every key named in want has been received.
func (k KeyDist) Covers(want KeyDist) bool { return k&want == want }

// SecurityLevel is the link security requested for the ATT channel.
type SecurityLevel int

const (
	SecurityNone SecurityLevel = iota
	SecurityEncrypted
	SecurityEncryptedAuth
	SecurityEncryptedAuthSC
)

var secLevelName = map[SecurityLevel]string{
	SecurityNone:            "none",
	SecurityEncrypted:       "encrypted",
	SecurityEncryptedAuth:   "encrypted+auth",
	SecurityEncryptedAuthSC: "encrypted+auth+sc",
}

func (l SecurityLevel) String() string { return secLevelName[l] }

// PairingState is the observable pairing progression for a connection.
// Values order by progress; comparisons against the feature-exchange
// threshold rely on it.
type PairingState int

const (
	PairingNone PairingState = iota
	PairingRequestedByResponder
	PairingFeatureExchangeStarted
	PairingFeatureExchangeCompleted
	PairingPasskeyExpected
	PairingNumericCompareExpected
	PairingOOBExpected
	PairingKeyDistribution
	PairingCompleted
	PairingFailed
)

var pairingStateName = map[PairingState]string{
	PairingNone:                     "none",
	PairingRequestedByResponder:     "requested-by-responder",
	PairingFeatureExchangeStarted:   "feature-exchange-started",
	PairingFeatureExchangeCompleted: "feature-exchange-completed",
	PairingPasskeyExpected:          "passkey-expected",
	PairingNumericCompareExpected:   "numeric-compare-expected",
	PairingOOBExpected:              "oob-expected",
	PairingKeyDistribution:          "key-distribution",
	PairingCompleted:                "completed",
	PairingFailed:                   "failed",
}

func (s PairingState) String() string { return pairingStateName[s] }

// PairingMode is the association model negotiated (or reused) for a
// connection.
type PairingMode int

const (
	ModeNone PairingMode = iota
	ModeNegotiating
	ModeJustWorks
	ModePasskeyEntryInitiator // initiator inputs the passkey
	ModePasskeyEntryResponder // responder inputs the passkey
	ModeNumericCompareInitiator
	ModeNumericCompareResponder
	ModeOutOfBand
	ModePrePaired // stored keys reused, no fresh SMP exchange
)

var pairingModeName = map[PairingMode]string{
	ModeNone:                    "none",
	ModeNegotiating:             "negotiating",
	ModeJustWorks:               "just-works",
	ModePasskeyEntryInitiator:   "passkey-entry-initiator",
	ModePasskeyEntryResponder:   "passkey-entry-responder",
	ModeNumericCompareInitiator: "numeric-compare-initiator",
	ModeNumericCompareResponder: "numeric-compare-responder",
	ModeOutOfBand:               "out-of-band",
	ModePrePaired:               "pre-paired",
}

func (m PairingMode) String() string { return pairingModeName[m] }

const oobPresent = 0x01

// pairingMethod selects the association model from the exchanged
// pairing features, per the method-selection tables in
// [Vol 3, Part H, 2.3.5.1]. OOB wins first (legacy requires both sides,
// Secure Connections either side), then the MITM bits, then the IO
// capability matrix.
func pairingMethod(useSC bool, initAuth, respAuth AuthReq, initIO, respIO IOCapability, initOOB, respOOB bool) PairingMode {
	if useSC {
		if initOOB || respOOB {
			return ModeOutOfBand
		}
	} else if initOOB && respOOB {
		return ModeOutOfBand
	}
	if !initAuth.MITM() && !respAuth.MITM() {
		return ModeJustWorks
	}
	return ioCapMethod(useSC, initIO, respIO)
}

// ioCapMethod is the 5x5 IO capability matrix, initiator rows by
// responder columns. Numeric comparison cells degrade to Just Works
// under legacy pairing; the KeyboardOnly/KeyboardOnly cell is
// classified as initiator-input passkey entry.
func ioCapMethod(useSC bool, init, resp IOCapability) PairingMode {
	nc := func(m PairingMode) PairingMode {
		if useSC {
			return m
		}
		return ModeJustWorks
	}
	switch init {
	case IOCapDisplayOnly:
		switch resp {
		case IOCapKeyboardOnly, IOCapKeyboardDisplay:
			return ModePasskeyEntryResponder
		}
		return ModeJustWorks
	case IOCapDisplayYesNo:
		switch resp {
		case IOCapDisplayYesNo:
			return nc(ModeNumericCompareInitiator)
		case IOCapKeyboardOnly:
			return ModePasskeyEntryResponder
		case IOCapKeyboardDisplay:
			if useSC {
				return ModeNumericCompareInitiator
			}
			return ModePasskeyEntryResponder
		}
		return ModeJustWorks
	case IOCapKeyboardOnly:
		switch resp {
		case IOCapNoInputNoOutput:
			return ModeJustWorks
		}
		return ModePasskeyEntryInitiator
	case IOCapNoInputNoOutput:
		return ModeJustWorks
	case IOCapKeyboardDisplay:
		switch resp {
		case IOCapDisplayOnly:
			return ModePasskeyEntryInitiator
		case IOCapDisplayYesNo:
			if useSC {
				return ModeNumericCompareInitiator
			}
			return ModePasskeyEntryInitiator
		case IOCapKeyboardOnly:
			return ModePasskeyEntryResponder
		case IOCapKeyboardDisplay:
			if useSC {
				return ModeNumericCompareInitiator
			}
			// Legacy: initiator displays, responder inputs.
			return ModePasskeyEntryResponder
		}
		return ModeJustWorks
	}
	return ModeJustWorks
}
