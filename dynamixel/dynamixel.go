// Package dynamixel enables working with Robotis Dynamixel actuators over a
// half duplex TTL/RS485 bus, using either packet protocol 1.0 or 2.0.
//
// Link implements register.Port, so it can be handed directly to the
// compliance control loop.  MockLink simulates a bus of actuators for
// development without hardware.
package dynamixel

import (
	"bytes"

	"github.com/pkg/errors"
	"github.com/roboajay/gravity-compensation/comm"
	"github.com/roboajay/gravity-compensation/register"
)

// maxStatusLen caps the length field of a reply before we allocate for it
const maxStatusLen = 1024

// Link is a Dynamixel bus
type Link struct {
	*comm.RemoteDevice

	// Protocol is the packet protocol spoken on the bus
	Protocol Protocol
}

// NewLink returns a new Link.  addr is a serial device (serial=true) or the
// host:port of a serial server.
func NewLink(addr string, serial bool, baud int, proto Protocol) *Link {
	return &Link{RemoteDevice: comm.NewRemoteDevice(addr, serial, baud), Protocol: proto}
}

// SetBaudRate changes the transfer rate of the bus
func (l *Link) SetBaudRate(baud int) error {
	return l.SetBaud(baud)
}

// Ping checks that the actuator with the given id answers
func (l *Link) Ping(id uint8) error {
	_, err := l.txrx("ping", id, instPing, nil)
	return err
}

// Read reads width bytes at addr on actuator id.  If the actuator flags a
// fault the value is returned along with a *register.DeviceError.
func (l *Link) Read(id uint8, addr uint16, width register.Width) (uint32, error) {
	if !width.Valid() {
		return 0, errors.Errorf("invalid register width %d", width)
	}
	if id == BroadcastID {
		return 0, errors.New("cannot read from the broadcast id")
	}
	params, err := l.Protocol.readParams(addr, int(width))
	if err != nil {
		return 0, err
	}
	st, err := l.txrx("read", id, instRead, params)
	if err != nil && !register.IsDeviceError(err) {
		return 0, err
	}
	if len(st.Params) != int(width) {
		return 0, &register.CommFailure{Op: "read", ID: id, Err: ErrShortPacket}
	}
	return getValue(st.Params), err
}

// Write writes value as width bytes at addr on actuator id
func (l *Link) Write(id uint8, addr uint16, width register.Width, value uint32) error {
	if !width.Valid() {
		return errors.Errorf("invalid register width %d", width)
	}
	params, err := l.Protocol.addrParams(addr)
	if err != nil {
		return err
	}
	params = append(params, putValue(value, int(width))...)
	_, err = l.txrx("write", id, instWrite, params)
	return err
}

// txrx sends one instruction and waits for its status packet
func (l *Link) txrx(op string, id, inst byte, params []byte) (status, error) {
	fail := func(err error) (status, error) {
		return status{}, &register.CommFailure{Op: op, ID: id, Fatal: fatal(err), Err: err}
	}
	if !l.Protocol.Valid() {
		return status{}, errors.Errorf("unsupported protocol %d", l.Protocol)
	}
	if l.Conn == nil {
		return fail(comm.ErrNotConnected)
	}
	l.Discard()
	if err := l.Send(l.Protocol.encode(id, inst, params)); err != nil {
		return fail(err)
	}
	if id == BroadcastID {
		return status{}, nil
	}
	pkt, err := l.recvStatus()
	if err != nil {
		return fail(err)
	}
	// a garbled reply says nothing about the health of the port
	st, err := l.Protocol.parse(pkt)
	if err != nil {
		return status{}, &register.CommFailure{Op: op, ID: id, Err: err}
	}
	if st.ID != id {
		return status{}, &register.CommFailure{Op: op, ID: id, Err: ErrIDMismatch}
	}
	return st, StatusErr(l.Protocol, id, st.Err)
}

// recvStatus reads one raw status packet off the bus
func (l *Link) recvStatus() ([]byte, error) {
	hdr := l.Protocol.header()
	if err := l.syncHeader(hdr); err != nil {
		return nil, err
	}
	pkt := append([]byte{}, hdr...)

	// 1.0: ID LEN           2.0: RSRV ID LEN_L LEN_H
	var n int
	if l.Protocol == Protocol2 {
		head := make([]byte, 4)
		if err := l.RecvFull(head); err != nil {
			return nil, err
		}
		pkt = append(pkt, head...)
		n = int(dataOrder.Uint16(head[2:]))
	} else {
		head := make([]byte, 2)
		if err := l.RecvFull(head); err != nil {
			return nil, err
		}
		pkt = append(pkt, head...)
		n = int(head[1])
	}
	if n > maxStatusLen {
		return nil, ErrShortPacket
	}
	body := make([]byte, n)
	if err := l.RecvFull(body); err != nil {
		return nil, err
	}
	return append(pkt, body...), nil
}

// syncHeader consumes bytes until hdr has been seen
func (l *Link) syncHeader(hdr []byte) error {
	window := make([]byte, 0, len(hdr)+1)
	b := make([]byte, 1)
	for i := 0; i < maxGarbage+len(hdr); i++ {
		if err := l.RecvFull(b); err != nil {
			return err
		}
		window = append(window, b[0])
		if len(window) > len(hdr) {
			window = append(window[:0], window[1:]...)
		}
		if bytes.Equal(window, hdr) {
			return nil
		}
	}
	return ErrNoHeader
}

// fatal returns true for transport errors after which the port is unusable.
// Silence and corrupt replies are expected on a noisy bus and are not fatal.
func fatal(err error) bool {
	if comm.IsTimeout(err) {
		return false
	}
	switch err {
	case ErrShortPacket, ErrNoHeader:
		return false
	}
	return true
}
