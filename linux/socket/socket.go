// +build linux

// Package socket opens the raw AF_BLUETOOTH HCI socket for one adapter.
package socket

import (
	"io"
	"sync"
	"syscall"
	"unsafe"
)

const (
	AF_BLUETOOTH = 31
	BTPROTO_HCI  = 1

	HCI_CHANNEL_RAW  = 0
	HCI_CHANNEL_USER = 1
)

// SockaddrHCI is the bind address for an HCI socket.
type SockaddrHCI struct {
	Dev     int
	Channel uint16
}

type rawSockaddrHCI struct {
	Family  uint16
	Dev     uint16
	Channel uint16
}

// Socket creates an unbound raw HCI socket.
func Socket() (int, error) {
	return syscall.Socket(AF_BLUETOOTH, syscall.SOCK_RAW|syscall.SOCK_CLOEXEC, BTPROTO_HCI)
}

// Bind attaches the socket to one adapter on the given channel.
func Bind(fd int, sa *SockaddrHCI) error {
	raw := rawSockaddrHCI{
		Family:  AF_BLUETOOTH,
		Dev:     uint16(sa.Dev),
		Channel: sa.Channel,
	}
	_, _, e1 := syscall.Syscall(syscall.SYS_BIND, uintptr(fd),
		uintptr(unsafe.Pointer(&raw)), unsafe.Sizeof(raw))
	if e1 != 0 {
		return e1
	}
	return nil
}

type device struct {
	fd  int
	rmu sync.Mutex
	wmu sync.Mutex
}

// New opens the HCI socket for device n. The user channel (kernel 3.14+,
// exclusive access with the bluetooth daemon stopped) is tried first;
// EINVAL falls back to raw access for older kernels.
func New(n int) (io.ReadWriteCloser, error) {
	fd, err := Socket()
	if err != nil {
		return nil, err
	}
	sa := SockaddrHCI{Dev: n, Channel: HCI_CHANNEL_USER}
	if err = Bind(fd, &sa); err == syscall.EINVAL {
		sa = SockaddrHCI{Dev: n, Channel: HCI_CHANNEL_RAW}
		err = Bind(fd, &sa)
	}
	if err != nil {
		syscall.Close(fd)
		return nil, err
	}
	return &device{fd: fd}, nil
}

func (d *device) Read(b []byte) (int, error) {
	d.rmu.Lock()
	defer d.rmu.Unlock()
	return syscall.Read(d.fd, b)
}

func (d *device) Write(b []byte) (int, error) {
	d.wmu.Lock()
	defer d.wmu.Unlock()
	return syscall.Write(d.fd, b)
}

// Close interrupts any blocked Read by closing the descriptor.
func (d *device) Close() error {
	return syscall.Close(d.fd)
}
