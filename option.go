package blelink

import (
	"github.com/sirupsen/logrus"

	"github.com/XC-/blelink/linux"
)

// Option configures a Device before the HCI socket is opened.
type Option func(*Device)

// DeviceID specifies which HCI device to use. Defaults to hci0.
func DeviceID(n int) Option {
	return func(d *Device) { d.devID = n }
}

// Logger replaces the default logger.
func Logger(l *logrus.Logger) Option {
	return func(d *Device) { d.log = l }
}

// IOCapability declares the local side's pairing IO capability. It
// drives both the computed channel security level and the SMP feature
// exchange. Defaults to NoInputNoOutput.
func IOCapability(c linux.IOCapability) Option {
	return func(d *Device) { d.ioCap = c }
}

// SecureConnections declares controller support for LE Secure
// Connections.
func SecureConnections(on bool) Option {
	return func(d *Device) { d.secureConn = on }
}

// AdvertisingParser replaces the built-in AD/EIR report parser.
func AdvertisingParser(p linux.AdvParser) Option {
	return func(d *Device) { d.parser = p }
}

// EngineOptions appends raw engine options, e.g. timeout overrides.
func EngineOptions(opts ...linux.Option) Option {
	return func(d *Device) { d.engineOpts = append(d.engineOpts, opts...) }
}
