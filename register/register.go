// Package register describes synchronous register access to addressable
// actuators on a shared bus.
//
// A Link reads and writes fixed-width values at addresses of a specific
// actuator id.  Every call blocks until the remote answers or the transport
// gives up.  Failures come in two flavors:
//
//	*CommFailure  the transaction did not complete (port error, timeout,
//	              corrupt reply).  No value is available.
//	*DeviceError  the transaction completed but the actuator raised a fault
//	              flag.  Values returned alongside it are still valid.
package register

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/roboajay/gravity-compensation/util"
)

// Width is the size of a register in bytes
type Width int

const (
	// Byte is a one byte register
	Byte = Width(1)

	// Word is a two byte register
	Word = Width(2)

	// Long is a four byte register
	Long = Width(4)
)

// Valid returns true if w is 1, 2, or 4 bytes
func (w Width) Valid() bool {
	return w == Byte || w == Word || w == Long
}

// Link is the register access contract consumed by the control loop
type Link interface {
	// Read reads width bytes at addr on actuator id
	Read(id uint8, addr uint16, width Width) (uint32, error)

	// Write writes value as width bytes at addr on actuator id
	Write(id uint8, addr uint16, width Width, value uint32) error

	// Close releases the link
	Close() error
}

// Port is a Link which must be opened and tuned before use
type Port interface {
	Link

	// Open establishes the connection to the bus
	Open() error

	// SetBaudRate changes the transfer rate of the bus
	SetBaudRate(int) error
}

// Register is a location in an actuator's control table
type Register struct {
	Addr   uint16 `koanf:"Addr" yaml:"Addr"`
	Width  Width  `koanf:"Width" yaml:"Width"`
	Signed bool   `koanf:"Signed" yaml:"Signed"`
}

// Defined returns true if the register has a width, registers with no width
// are not read
func (r Register) Defined() bool {
	return r.Width != 0
}

// Decode converts a raw value read from the register to an int,
// sign extending if the register holds a two's complement value
func (r Register) Decode(raw uint32) int {
	if !r.Signed {
		return int(raw)
	}
	switch r.Width {
	case Byte:
		return int(int8(raw))
	case Word:
		return int(int16(raw))
	default:
		return int(int32(raw))
	}
}

// Encode converts v to the raw representation written to the register
func (r Register) Encode(v int) uint32 {
	switch r.Width {
	case Byte:
		return uint32(v) & 0xff
	case Word:
		return uint32(v) & 0xffff
	default:
		return uint32(v)
	}
}

// Range is the span of values the register can hold.  Encode wraps values
// outside of it.
func (r Register) Range() util.Limiter {
	bits := uint(8 * r.Width)
	if r.Signed {
		half := float64(uint64(1) << (bits - 1))
		return util.Limiter{Min: -half, Max: half - 1}
	}
	return util.Limiter{Min: 0, Max: float64(uint64(1)<<bits - 1)}
}

// Map names the registers the compliance loop uses on one actuator
type Map struct {
	TorqueEnable    Register `koanf:"TorqueEnable" yaml:"TorqueEnable"`
	GoalPosition    Register `koanf:"GoalPosition" yaml:"GoalPosition"`
	PresentPosition Register `koanf:"PresentPosition" yaml:"PresentPosition"`
	Current         Register `koanf:"Current" yaml:"Current"`

	// PresentLoad is optional and only reported, it does not feed the control law
	PresentLoad Register `koanf:"PresentLoad" yaml:"PresentLoad"`
}

// MXSeries is the control table of MX series actuators speaking protocol 1.0
var MXSeries = Map{
	TorqueEnable:    Register{Addr: 24, Width: Byte},
	GoalPosition:    Register{Addr: 30, Width: Word},
	PresentPosition: Register{Addr: 36, Width: Word},
	Current:         Register{Addr: 68, Width: Word},
	PresentLoad:     Register{Addr: 40, Width: Word},
}

// Validate checks that every mandatory register has a legal width
func (m Map) Validate() error {
	for name, r := range map[string]Register{
		"TorqueEnable":    m.TorqueEnable,
		"GoalPosition":    m.GoalPosition,
		"PresentPosition": m.PresentPosition,
		"Current":         m.Current,
	} {
		if !r.Width.Valid() {
			return fmt.Errorf("register %s has invalid width %d", name, r.Width)
		}
	}
	if m.PresentLoad.Defined() && !m.PresentLoad.Width.Valid() {
		return fmt.Errorf("register PresentLoad has invalid width %d", m.PresentLoad.Width)
	}
	return nil
}

// CommFailure is returned when a transaction could not be completed
type CommFailure struct {
	// Op is the operation that failed, e.g. "read"
	Op string

	// ID is the actuator addressed
	ID uint8

	// Fatal is true when the port itself is gone and no further
	// transaction can succeed
	Fatal bool

	Err error
}

func (e *CommFailure) Error() string {
	s := fmt.Sprintf("%s id %d: communication failure: %v", e.Op, e.ID, e.Err)
	if e.Fatal {
		s += " (fatal)"
	}
	return s
}

// Unwrap returns the underlying transport error
func (e *CommFailure) Unwrap() error {
	return e.Err
}

// DeviceError is returned when an actuator answers with a fault flag set
type DeviceError struct {
	// ID is the actuator which reported the fault
	ID uint8

	// Code is the raw status byte
	Code byte

	// Faults are the human readable fault names decoded from Code
	Faults []string
}

func (e *DeviceError) Error() string {
	if len(e.Faults) == 0 {
		return fmt.Sprintf("id %d: device error 0x%02X", e.ID, e.Code)
	}
	return fmt.Sprintf("id %d: device error 0x%02X - %s", e.ID, e.Code, strings.Join(e.Faults, ", "))
}

// IsDeviceError returns true if err is or wraps a *DeviceError
func IsDeviceError(err error) bool {
	var de *DeviceError
	return errors.As(err, &de)
}

// IsFatal returns true if err is or wraps a fatal *CommFailure
func IsFatal(err error) bool {
	var cf *CommFailure
	if errors.As(err, &cf) {
		return cf.Fatal
	}
	return false
}
