package dynamixel

import (
	"bytes"
	"testing"
)

func TestEncode1ManualReadExample(t *testing.T) {
	// read the internal temperature of id 1, e-manual protocol 1.0 example
	pkt := Protocol1.encode(1, instRead, []byte{0x2B, 0x01})
	truth := []byte{0xFF, 0xFF, 0x01, 0x04, 0x02, 0x2B, 0x01, 0xCC}
	if !bytes.Equal(pkt, truth) {
		t.Errorf("expected %X, got %X", truth, pkt)
	}
}

func TestEncode1ManualBroadcastWriteExample(t *testing.T) {
	// set the id of every actuator on the bus to 1
	pkt := Protocol1.encode(BroadcastID, instWrite, []byte{0x03, 0x01})
	truth := []byte{0xFF, 0xFF, 0xFE, 0x04, 0x03, 0x03, 0x01, 0xF6}
	if !bytes.Equal(pkt, truth) {
		t.Errorf("expected %X, got %X", truth, pkt)
	}
}

func TestParseStatus1ManualExample(t *testing.T) {
	// internal temperature of 32 degrees
	st, err := parseStatus1([]byte{0xFF, 0xFF, 0x01, 0x03, 0x00, 0x20, 0xDB})
	if err != nil {
		t.Fatal(err)
	}
	if st.ID != 1 || st.Err != 0 || !bytes.Equal(st.Params, []byte{0x20}) {
		t.Errorf("unexpected status %+v", st)
	}
}

func TestParseStatus1BadChecksum(t *testing.T) {
	_, err := parseStatus1([]byte{0xFF, 0xFF, 0x01, 0x03, 0x00, 0x20, 0xDC})
	if err != ErrBadChecksum {
		t.Errorf("expected ErrBadChecksum, got %v", err)
	}
}

func TestParseStatus1Truncated(t *testing.T) {
	_, err := parseStatus1([]byte{0xFF, 0xFF, 0x01, 0x05, 0x00, 0x20, 0xDB})
	if err != ErrShortPacket {
		t.Errorf("expected ErrShortPacket, got %v", err)
	}
}

func TestEncode2ManualPingExample(t *testing.T) {
	pkt := Protocol2.encode(1, instPing, nil)
	truth := []byte{0xFF, 0xFF, 0xFD, 0x00, 0x01, 0x03, 0x00, 0x01, 0x19, 0x4E}
	if !bytes.Equal(pkt, truth) {
		t.Errorf("expected %X, got %X", truth, pkt)
	}
}

func TestEncode2ManualReadExample(t *testing.T) {
	// read 4 bytes of present position (132) from id 1
	params, err := Protocol2.readParams(132, 4)
	if err != nil {
		t.Fatal(err)
	}
	pkt := Protocol2.encode(1, instRead, params)
	truth := []byte{0xFF, 0xFF, 0xFD, 0x00, 0x01, 0x07, 0x00, 0x02, 0x84, 0x00, 0x04, 0x00, 0x1D, 0x15}
	if !bytes.Equal(pkt, truth) {
		t.Errorf("expected %X, got %X", truth, pkt)
	}
}

func makeStatus2(id, errByte byte, params []byte) []byte {
	body := stuff(append([]byte{instStatus, errByte}, params...))
	n := len(body) + 2
	pkt := []byte{0xFF, 0xFF, 0xFD, 0x00, id, byte(n), byte(n >> 8)}
	pkt = append(pkt, body...)
	c := crc16(pkt)
	return append(pkt, byte(c), byte(c>>8))
}

func TestParseStatus2RoundTripsStuffedParams(t *testing.T) {
	params := []byte{0xFF, 0xFF, 0xFD, 0x00}
	pkt := makeStatus2(3, 0, params)
	st, err := parseStatus2(pkt)
	if err != nil {
		t.Fatal(err)
	}
	if st.ID != 3 || !bytes.Equal(st.Params, params) {
		t.Errorf("expected id 3 params %X, got %+v", params, st)
	}
}

func TestParseStatus2BadCRC(t *testing.T) {
	pkt := makeStatus2(1, 0, []byte{0xA6, 0x00, 0x00, 0x00})
	pkt[len(pkt)-1] ^= 0xFF
	if _, err := parseStatus2(pkt); err != ErrBadChecksum {
		t.Errorf("expected ErrBadChecksum, got %v", err)
	}
}

func TestStuffing(t *testing.T) {
	in := []byte{0x01, 0xFF, 0xFF, 0xFD, 0x02}
	stuffed := stuff(in)
	truth := []byte{0x01, 0xFF, 0xFF, 0xFD, 0xFD, 0x02}
	if !bytes.Equal(stuffed, truth) {
		t.Fatalf("expected %X, got %X", truth, stuffed)
	}
	if out := unstuff(stuffed); !bytes.Equal(out, in) {
		t.Errorf("expected unstuff to restore %X, got %X", in, out)
	}
}

func TestAddressTooWideForProtocol1(t *testing.T) {
	if _, err := Protocol1.addrParams(300); err == nil {
		t.Error("expected address 300 to be rejected on protocol 1.0")
	}
}

func TestValueCodec(t *testing.T) {
	if v := getValue(putValue(0x0403, 2)); v != 0x0403 {
		t.Errorf("expected 0x0403, got 0x%X", v)
	}
	if b := putValue(1000, 2); !bytes.Equal(b, []byte{0xE8, 0x03}) {
		t.Errorf("expected E803, got %X", b)
	}
}

func TestStatusErrDecodesBits(t *testing.T) {
	if StatusErr(Protocol1, 1, 0) != nil {
		t.Error("zero status byte should not be an error")
	}
	err := StatusErr(Protocol1, 1, 0x24)
	if err == nil {
		t.Fatal("expected an error")
	}
	want := "id 1: device error 0x24 - overheating error, overload error"
	if err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}
	err = StatusErr(Protocol2, 2, 0x80|0x04)
	want = "id 2: device error 0x84 - data range error, hardware alert"
	if err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}
}
