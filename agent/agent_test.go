// +build linux

package agent

import (
	"sync"
	"testing"
	"time"

	dbus "github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"

	"github.com/XC-/blelink/linux"
)

type fakeClaimer struct {
	mu     sync.Mutex
	states []linux.PairingState
}

func (c *fakeClaimer) ClaimPairingState(peer linux.PeerID, state linux.PairingState, mode linux.PairingMode) {
	c.mu.Lock()
	c.states = append(c.states, state)
	c.mu.Unlock()
}

func newTestAgent(timeout time.Duration) (*Agent, *fakeClaimer) {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	c := &fakeClaimer{}
	return &Agent{
		log:     log.WithField("hci", 0),
		claimer: c,
		timeout: timeout,
		pending: make(map[linux.PeerID]*pendingRequest),
	}, c
}

const devPath = dbus.ObjectPath("/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF")

func TestPeerFromPath(t *testing.T) {
	peer, err := peerFromPath(devPath)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := linux.Addr{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}
	if peer.Addr != want {
		t.Fatalf("addr = %v, want %v", peer.Addr, want)
	}
	if _, err := peerFromPath("/org/bluez/hci0"); err == nil {
		t.Fatal("deviceless path accepted")
	}
	if _, err := peerFromPath("/org/bluez/hci0/dev_AA_BB"); err == nil {
		t.Fatal("short address accepted")
	}
}

func TestRequestPasskeyAnswered(t *testing.T) {
	a, _ := newTestAgent(time.Second)
	peer, _ := peerFromPath(devPath)

	type result struct {
		pk   uint32
		derr *dbus.Error
	}
	done := make(chan result, 1)
	go func() {
		pk, derr := a.RequestPasskey(devPath)
		done <- result{pk, derr}
	}()

	waitPending(t, a, peer)
	if err := a.SubmitPasskey(peer, 123456); err != nil {
		t.Fatalf("submit: %v", err)
	}
	r := <-done
	if r.derr != nil || r.pk != 123456 {
		t.Fatalf("request = (%d, %v)", r.pk, r.derr)
	}
	if err := a.SubmitPasskey(peer, 1); err != ErrNoPending {
		t.Fatalf("late submit = %v, want ErrNoPending", err)
	}
}

func TestCancelRejectsBlockedRequest(t *testing.T) {
	a, _ := newTestAgent(time.Minute)
	peer, _ := peerFromPath(devPath)

	done := make(chan *dbus.Error, 2)
	go func() {
		_, derr := a.RequestPasskey(devPath)
		done <- derr
	}()
	waitPending(t, a, peer)
	a.Cancel()

	select {
	case derr := <-done:
		if derr == nil || derr.Name != errCanceled.Name {
			t.Fatalf("canceled passkey request returned %v, want %s", derr, errCanceled.Name)
		}
	case <-time.After(time.Second):
		t.Fatal("canceled passkey request did not return")
	}

	go func() { done <- a.RequestConfirmation(devPath, 42) }()
	waitPending(t, a, peer)
	a.Cancel()
	select {
	case derr := <-done:
		if derr == nil || derr.Name != errCanceled.Name {
			t.Fatalf("canceled confirmation returned %v, want %s", derr, errCanceled.Name)
		}
	case <-time.After(time.Second):
		t.Fatal("canceled confirmation did not return")
	}
}

func TestConfirmCompareDeniedRejects(t *testing.T) {
	a, _ := newTestAgent(time.Second)
	peer, _ := peerFromPath(devPath)

	done := make(chan *dbus.Error, 1)
	go func() { done <- a.RequestConfirmation(devPath, 42) }()
	waitPending(t, a, peer)
	if err := a.ConfirmCompare(peer, false); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	derr := <-done
	if derr == nil || derr.Name != errRejected.Name {
		t.Fatalf("denied comparison returned %v, want %s", derr, errRejected.Name)
	}
}

func waitPending(t *testing.T, a *Agent, peer linux.PeerID) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		a.mu.Lock()
		_, ok := a.pending[peer]
		a.mu.Unlock()
		if ok {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("request never became pending")
}
