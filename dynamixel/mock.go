package dynamixel

import (
	"errors"
	"sync"
	"time"

	"github.com/roboajay/gravity-compensation/register"
)

const (
	// mockStep is how far a mock actuator slews toward its goal per position sample
	mockStep = 16

	// mockMidpoint is the current reading of an unloaded mock actuator
	mockMidpoint = 2048

	// loadDirectionBit marks clockwise load in the MX present load register
	loadDirectionBit = 1 << 10
)

var errNoReply = errors.New("no reply")

type mockServo struct {
	regs   register.Map
	table  map[uint16]uint32
	torque bool
	goal   int
	pos    int
	load   int
}

// MockLink simulates a bus of actuators, each with its own control table.
// While torque is enabled an actuator slews toward its goal each time its
// position is sampled.  Its current reads as the midpoint plus the external
// load.
type MockLink struct {
	sync.Mutex

	// Step is the slew per position sample, 0 uses a default
	Step int

	// Disturbance, if not nil, adds a time varying external load
	Disturbance func(id uint8, t time.Time) int

	servos map[uint8]*mockServo
	faults map[uint8][]error
	open   bool
	baud   int

	// Reads and Writes count completed transactions
	Reads, Writes int
}

// NewMockLink returns a new mock bus holding actuators with the given ids
// and control table, each resting at the middle of its travel
func NewMockLink(regs register.Map, ids ...uint8) *MockLink {
	m := &MockLink{
		servos: make(map[uint8]*mockServo),
		faults: make(map[uint8][]error)}
	for _, id := range ids {
		m.AddServo(id, regs)
	}
	return m
}

// AddServo places an actuator with the given control table on the bus,
// replacing any actuator already at id
func (m *MockLink) AddServo(id uint8, regs register.Map) {
	m.Lock()
	defer m.Unlock()
	m.servos[id] = &mockServo{
		regs:  regs,
		table: make(map[uint16]uint32),
		goal:  mockMidpoint,
		pos:   mockMidpoint}
}

// Open opens the mock bus
func (m *MockLink) Open() error {
	m.Lock()
	defer m.Unlock()
	m.open = true
	return nil
}

// SetBaudRate records the baud rate
func (m *MockLink) SetBaudRate(baud int) error {
	m.Lock()
	defer m.Unlock()
	if baud <= 0 {
		return errors.New("invalid baud rate")
	}
	m.baud = baud
	return nil
}

// Close closes the mock bus, further transactions fail fatally
func (m *MockLink) Close() error {
	m.Lock()
	defer m.Unlock()
	m.open = false
	return nil
}

// SetLoad sets the external load on an actuator, in raw current units
func (m *MockLink) SetLoad(id uint8, load int) {
	m.Lock()
	defer m.Unlock()
	if s, ok := m.servos[id]; ok {
		s.load = load
	}
}

// SetPosition teleports an actuator
func (m *MockLink) SetPosition(id uint8, pos int) {
	m.Lock()
	defer m.Unlock()
	if s, ok := m.servos[id]; ok {
		s.pos = pos
	}
}

// Position returns the present position of an actuator
func (m *MockLink) Position(id uint8) int {
	m.Lock()
	defer m.Unlock()
	if s, ok := m.servos[id]; ok {
		return s.pos
	}
	return 0
}

// Goal returns the goal position of an actuator
func (m *MockLink) Goal(id uint8) int {
	m.Lock()
	defer m.Unlock()
	if s, ok := m.servos[id]; ok {
		return s.goal
	}
	return 0
}

// TorqueEnabled returns true if torque is on for an actuator
func (m *MockLink) TorqueEnabled(id uint8) bool {
	m.Lock()
	defer m.Unlock()
	if s, ok := m.servos[id]; ok {
		return s.torque
	}
	return false
}

// InjectFault queues err to be returned by the next transaction with id.
// A *register.DeviceError still performs the transaction, anything else
// aborts it.
func (m *MockLink) InjectFault(id uint8, err error) {
	m.Lock()
	defer m.Unlock()
	m.faults[id] = append(m.faults[id], err)
}

// begin looks up the servo and pops any queued fault.  Lock must be held.
func (m *MockLink) begin(op string, id uint8) (s *mockServo, fault, err error) {
	if !m.open {
		return nil, nil, &register.CommFailure{Op: op, ID: id, Fatal: true, Err: errors.New("port closed")}
	}
	if q := m.faults[id]; len(q) > 0 {
		fault, m.faults[id] = q[0], q[1:]
	}
	if fault != nil && !register.IsDeviceError(fault) {
		return nil, nil, fault
	}
	s, ok := m.servos[id]
	if !ok {
		return nil, nil, &register.CommFailure{Op: op, ID: id, Err: errNoReply}
	}
	return s, fault, nil
}

func (m *MockLink) step() int {
	if m.Step <= 0 {
		return mockStep
	}
	return m.Step
}

func (m *MockLink) current(id uint8, s *mockServo) int {
	c := mockMidpoint + s.load
	if m.Disturbance != nil {
		c += m.Disturbance(id, time.Now())
	}
	return c
}

// Ping succeeds if the mock actuator exists
func (m *MockLink) Ping(id uint8) error {
	m.Lock()
	defer m.Unlock()
	_, fault, err := m.begin("ping", id)
	if err != nil {
		return err
	}
	return fault
}

// Read reads a register of a mock actuator
func (m *MockLink) Read(id uint8, addr uint16, width register.Width) (uint32, error) {
	m.Lock()
	defer m.Unlock()
	s, fault, err := m.begin("read", id)
	if err != nil {
		return 0, err
	}
	m.Reads++
	var v int
	switch addr {
	case s.regs.PresentPosition.Addr:
		if s.torque {
			d := s.goal - s.pos
			if d > m.step() {
				d = m.step()
			} else if d < -m.step() {
				d = -m.step()
			}
			s.pos += d
		}
		v = s.pos
	case s.regs.Current.Addr:
		v = m.current(id, s)
	case s.regs.GoalPosition.Addr:
		v = s.goal
	case s.regs.TorqueEnable.Addr:
		if s.torque {
			v = 1
		}
	case s.regs.PresentLoad.Addr:
		if !s.regs.PresentLoad.Defined() {
			return s.table[addr], fault
		}
		v = m.current(id, s) - mockMidpoint
		if v < 0 {
			v = -v | loadDirectionBit
		}
	default:
		return s.table[addr], fault
	}
	return register.Register{Width: width}.Encode(v), fault
}

// Write writes a register of a mock actuator
func (m *MockLink) Write(id uint8, addr uint16, width register.Width, value uint32) error {
	m.Lock()
	defer m.Unlock()
	s, fault, err := m.begin("write", id)
	if err != nil {
		return err
	}
	m.Writes++
	switch addr {
	case s.regs.GoalPosition.Addr:
		s.goal = s.regs.GoalPosition.Decode(value)
	case s.regs.TorqueEnable.Addr:
		s.torque = value != 0
	default:
		s.table[addr] = value
	}
	return fault
}
