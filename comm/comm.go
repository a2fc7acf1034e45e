/*Package comm provides an embeddable byte transport for actuator buses.

A RemoteDevice is either a serial port (an RS485/TTL adapter such as a U2D2
shows up as /dev/ttyUSB0 or COM3) or a TCP connection to a serial server which
forwards bytes to the bus.  Framing is left to the embedding type:

	type MyBus struct {
		*comm.RemoteDevice
	}

	func (b *MyBus) Ping() error {
		if err := b.Send([]byte{0xFF, 0xFF, 0x01, 0x02, 0x01, 0xFB}); err != nil {
			return err
		}
		buf := make([]byte, 6)
		return b.RecvFull(buf)
	}

RemoteDevice is not safe for concurrent use; the owner serializes transactions.
*/
package comm

import (
	"io"
	"log"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/pkg/errors"
	"github.com/tarm/serial"
)

const (
	// DefaultTimeout is the per-transaction timeout used when none is given
	DefaultTimeout = 100 * time.Millisecond
)

var (
	// ErrNotConnected is generated when .Conn is nil and Send or Recv is called.
	ErrNotConnected = errors.New("conn is nil, not connected to remote")
)

// flusher is implemented by serial ports which can discard pending input
type flusher interface {
	Flush() error
}

// deadliner is implemented by network connections
type deadliner interface {
	SetDeadline(time.Time) error
}

/*RemoteDevice has an address and carries raw bytes to and from it.

if IsSerial is true, Addr is a device path and Baud is used to configure the
port.  Otherwise Addr is a host:port dialed over TCP.
*/
type RemoteDevice struct {
	Addr     string
	IsSerial bool
	Baud     int

	// Timeout bounds each read and write
	Timeout time.Duration

	Conn io.ReadWriteCloser

	// Backoff governs retries of Open; nil uses the package default
	Backoff backoff.BackOff
}

// NewRemoteDevice creates a new RemoteDevice instance
func NewRemoteDevice(addr string, serial bool, baud int) *RemoteDevice {
	return &RemoteDevice{
		Addr:     addr,
		IsSerial: serial,
		Baud:     baud,
		Timeout:  DefaultTimeout}
}

// SerialConf yields a serial config object for use with serial.OpenPort
func (rd *RemoteDevice) SerialConf() *serial.Config {
	return &serial.Config{
		Name:        rd.Addr,
		Baud:        rd.Baud,
		Size:        8,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
		ReadTimeout: rd.timeout()}
}

func (rd *RemoteDevice) timeout() time.Duration {
	if rd.Timeout <= 0 {
		return DefaultTimeout
	}
	return rd.Timeout
}

func (rd *RemoteDevice) backoff() backoff.BackOff {
	if rd.Backoff != nil {
		return rd.Backoff
	}
	// serial adapters take a moment to re-enumerate after a replug and
	// serial servers reject connections while a previous session drains
	return &backoff.ExponentialBackOff{
		InitialInterval:     25 * time.Millisecond,
		RandomizationFactor: 0.,
		Multiplier:          2.,
		MaxInterval:         1 * time.Second,
		MaxElapsedTime:      3 * time.Second,
		Clock:               backoff.SystemClock}
}

// Open the connection, setting the Conn variable
func (rd *RemoteDevice) Open() error {
	op := func() error {
		err := rd.open()
		if err == nil {
			return nil
		}
		errS := strings.ToLower(err.Error())
		if strings.Contains(errS, "refused") ||
			strings.Contains(errS, "no such") ||
			strings.Contains(errS, "permission denied") {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		log.Printf("opening %s failed (%v), retrying in %v", rd.Addr, err, wait)
	}
	err := backoff.RetryNotify(op, rd.backoff(), notify)
	if err != nil {
		return errors.Wrapf(err, "opening %s", rd.Addr)
	}
	return nil
}

func (rd *RemoteDevice) open() error {
	var err error
	var conn io.ReadWriteCloser
	if rd.IsSerial {
		conn, err = serial.OpenPort(rd.SerialConf())
	} else {
		conn, err = TCPSetup(rd.Addr, rd.timeout())
	}
	if err != nil {
		return err
	}
	rd.Conn = conn
	return nil
}

// SetBaud changes the baud rate.  An open serial port is closed and reopened
// at the new rate.  Over TCP the rate belongs to the serial server and is
// only recorded.
func (rd *RemoteDevice) SetBaud(baud int) error {
	if baud <= 0 {
		return errors.Errorf("invalid baud rate %d", baud)
	}
	if baud == rd.Baud {
		return nil
	}
	rd.Baud = baud
	if !rd.IsSerial || rd.Conn == nil {
		return nil
	}
	if err := rd.Close(); err != nil {
		return errors.Wrap(err, "closing port to change baud rate")
	}
	return errors.Wrapf(rd.open(), "reopening %s at %d baud", rd.Addr, baud)
}

// Close the connection, nil-ing the Conn variable
func (rd *RemoteDevice) Close() error {
	if rd.Conn == nil {
		return nil
	}
	err := rd.Conn.Close()
	if err == nil {
		rd.Conn = nil
	}
	return err
}

func (rd *RemoteDevice) arm() {
	if d, ok := rd.Conn.(deadliner); ok {
		d.SetDeadline(time.Now().Add(rd.timeout()))
	}
}

// Discard drops any bytes waiting in the input buffer, if the connection
// supports it.  Stale bytes from an earlier timed out reply would otherwise
// be parsed as the head of the next one.
func (rd *RemoteDevice) Discard() {
	if f, ok := rd.Conn.(flusher); ok {
		f.Flush()
	}
}

// Send writes b to the remote in full
func (rd *RemoteDevice) Send(b []byte) error {
	if rd.Conn == nil {
		return ErrNotConnected
	}
	rd.arm()
	n, err := rd.Conn.Write(b)
	if err != nil {
		return err
	}
	if n != len(b) {
		return io.ErrShortWrite
	}
	return nil
}

// RecvFull fills buf from the remote, returning an error if it could not
func (rd *RemoteDevice) RecvFull(buf []byte) error {
	if rd.Conn == nil {
		return ErrNotConnected
	}
	rd.arm()
	_, err := io.ReadFull(rd.Conn, buf)
	return err
}

// IsTimeout returns true if err means the remote did not answer in time.
// A serial port with a read timeout reports silence as EOF.
func IsTimeout(err error) bool {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}

// TCPSetup opens a new TCP connection with a timeout on connect
func TCPSetup(addr string, timeout time.Duration) (net.Conn, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
