package dynamixel_test

import (
	"testing"

	"github.com/roboajay/gravity-compensation/dynamixel"
	"github.com/roboajay/gravity-compensation/register"
)

func openMock(t *testing.T, ids ...uint8) *dynamixel.MockLink {
	m := dynamixel.NewMockLink(register.MXSeries, ids...)
	if err := m.Open(); err != nil {
		t.Fatal(err)
	}
	return m
}

func TestMockCurrentReflectsLoad(t *testing.T) {
	m := openMock(t, 1)
	m.SetLoad(1, -12)
	v, err := m.Read(1, register.MXSeries.Current.Addr, register.Word)
	if err != nil {
		t.Fatal(err)
	}
	if v != 2036 {
		t.Errorf("expected 2036, got %d", v)
	}
	v, _ = m.Read(1, register.MXSeries.PresentLoad.Addr, register.Word)
	if v != 12|1024 {
		t.Errorf("expected clockwise load of 12, got %d", v)
	}
}

func TestMockSlewsOnlyWithTorque(t *testing.T) {
	m := openMock(t, 1)
	m.Step = 10
	regs := register.MXSeries
	if err := m.Write(1, regs.GoalPosition.Addr, register.Word, 2100); err != nil {
		t.Fatal(err)
	}
	v, _ := m.Read(1, regs.PresentPosition.Addr, register.Word)
	if v != 2048 {
		t.Errorf("expected no motion without torque, got %d", v)
	}
	m.Write(1, regs.TorqueEnable.Addr, register.Byte, 1)
	v, _ = m.Read(1, regs.PresentPosition.Addr, register.Word)
	if v != 2058 {
		t.Errorf("expected one step toward the goal, got %d", v)
	}
	if !m.TorqueEnabled(1) || m.Goal(1) != 2100 {
		t.Errorf("unexpected state torque=%v goal=%d", m.TorqueEnabled(1), m.Goal(1))
	}
}

func TestMockFaults(t *testing.T) {
	m := openMock(t, 1)
	m.InjectFault(1, dynamixel.StatusErr(dynamixel.Protocol1, 1, 0x20))
	v, err := m.Read(1, register.MXSeries.Current.Addr, register.Word)
	if !register.IsDeviceError(err) || v != 2048 {
		t.Errorf("expected value 2048 with a device error, got %d, %v", v, err)
	}
	if _, err = m.Read(1, register.MXSeries.Current.Addr, register.Word); err != nil {
		t.Errorf("fault should be consumed, got %v", err)
	}
	if _, err = m.Read(7, register.MXSeries.Current.Addr, register.Word); err == nil || register.IsFatal(err) {
		t.Errorf("expected non fatal failure for an absent id, got %v", err)
	}
	m.Close()
	if err = m.Write(1, register.MXSeries.GoalPosition.Addr, register.Word, 0); !register.IsFatal(err) {
		t.Errorf("expected fatal failure on a closed mock, got %v", err)
	}
}

func TestMockPing(t *testing.T) {
	m := openMock(t, 1)
	if err := m.Ping(1); err != nil {
		t.Errorf("expected id 1 to answer, got %v", err)
	}
	if err := m.Ping(2); err == nil || register.IsFatal(err) {
		t.Errorf("expected a non fatal failure for an absent id, got %v", err)
	}
}

func TestMockServosKeepTheirOwnTable(t *testing.T) {
	m := openMock(t, 1)
	other := register.MXSeries
	other.Current = register.Register{Addr: 126, Width: register.Word, Signed: true}
	other.GoalPosition = register.Register{Addr: 116, Width: register.Long}
	m.AddServo(2, other)
	m.SetLoad(1, 5)
	m.SetLoad(2, 7)

	if v, _ := m.Read(1, register.MXSeries.Current.Addr, register.Word); v != 2053 {
		t.Errorf("expected id 1 current at the MX address, got %d", v)
	}
	if v, _ := m.Read(2, 126, register.Word); v != 2055 {
		t.Errorf("expected id 2 current at its own address, got %d", v)
	}
	if err := m.Write(2, 116, register.Long, 3000); err != nil {
		t.Fatal(err)
	}
	if m.Goal(2) != 3000 || m.Goal(1) != 2048 {
		t.Errorf("expected only id 2 goal to move, got %d and %d", m.Goal(1), m.Goal(2))
	}
}
