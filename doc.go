// Package blelink establishes and secures Bluetooth links over the raw
// kernel HCI transport, bypassing the system bluetooth daemon.
//
// It implements the HCI command/event protocol, the SMP pairing state
// machine and the connection sequencing that brings a remote device
// from discovered to ready: connected, encrypted or authenticated as
// negotiated, with its GATT services discovered. GATT itself and the
// pairing UX are external collaborators supplied by the caller; a
// standard advertising-record parser is built in and replaceable.
//
// SETUP
//
// blelink only supports Linux. To gain complete and exclusive control
// of the HCI device it uses HCI_CHANNEL_USER (introduced in Linux
// v3.14) and falls back to HCI_CHANNEL_RAW on older kernels. Once the
// device is open no other program may access it.
//
// Before starting a blelink program, make sure that your BLE device is
// down and that the built-in bluetooth server is stopped:
//
//     sudo hciconfig hci0 down
//     sudo service bluetooth stop
//
// USAGE
//
// Open a device, register listeners for the link events you care
// about, and connect:
//
//     d, err := blelink.NewDevice(gattClient, authenticator)
//     d.Handle(linux.EvtDeviceReady, func(ev linux.LinkEvent) { ... })
//     d.Connect(peer)
//
// All commands return HCI-style status codes; asynchronous outcomes
// arrive as link events.
package blelink
