package dynamixel

import (
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
	"github.com/snksoft/crc"
)

// Protocol is the Dynamixel packet protocol version
type Protocol int

const (
	// Protocol1 is the 1.0 protocol (AX, RX, MX series), one byte
	// addresses and an inverted-sum checksum
	Protocol1 = Protocol(1)

	// Protocol2 is the 2.0 protocol (X, PRO series), two byte addresses,
	// CRC-16 and byte stuffing
	Protocol2 = Protocol(2)
)

// instructions
const (
	instPing   = 0x01
	instRead   = 0x02
	instWrite  = 0x03
	instStatus = 0x55 // 2.0 only
)

const (
	// BroadcastID addresses every actuator on the bus, they do not reply
	BroadcastID = 0xFE

	// MaxID is the highest id an actuator may be given
	MaxID = 0xFC

	// maxGarbage is how many bytes are skipped looking for a header
	maxGarbage = 64
)

var (
	dataOrder = binary.LittleEndian

	header1 = []byte{0xFF, 0xFF}
	header2 = []byte{0xFF, 0xFF, 0xFD}

	// CRC-16 (IBM polynomial, no reflection, zero init) as used by protocol 2.0
	crcTable = crc.NewTable(&crc.Parameters{
		Width:      16,
		Polynomial: 0x8005,
		ReflectIn:  false,
		ReflectOut: false,
		Init:       0x0000,
		FinalXor:   0x0000})

	// ErrBadChecksum is generated when a reply fails its checksum or CRC
	ErrBadChecksum = errors.New("status packet checksum mismatch")

	// ErrShortPacket is generated when a reply is shorter than its header claims
	// or carries fewer bytes than requested
	ErrShortPacket = errors.New("status packet too short")

	// ErrNoHeader is generated when no packet header is found in the reply
	ErrNoHeader = errors.New("no status packet header found")

	// ErrIDMismatch is generated when a reply comes from a different actuator
	// than the one addressed
	ErrIDMismatch = errors.New("status packet from unexpected id")
)

// status is a decoded status (reply) packet
type status struct {
	ID     byte
	Err    byte
	Params []byte
}

// Valid returns true for the supported protocol versions
func (p Protocol) Valid() bool {
	return p == Protocol1 || p == Protocol2
}

func (p Protocol) header() []byte {
	if p == Protocol2 {
		return header2
	}
	return header1
}

// encode builds an instruction packet
func (p Protocol) encode(id, inst byte, params []byte) []byte {
	if p == Protocol2 {
		return encode2(id, inst, params)
	}
	return encode1(id, inst, params)
}

// addrParams is the address field of READ and WRITE instructions
func (p Protocol) addrParams(addr uint16) ([]byte, error) {
	if p == Protocol2 {
		return []byte{byte(addr), byte(addr >> 8)}, nil
	}
	if addr > 0xFF {
		return nil, fmt.Errorf("address %d does not fit protocol 1.0", addr)
	}
	return []byte{byte(addr)}, nil
}

// readParams is the parameter block of a READ instruction
func (p Protocol) readParams(addr uint16, width int) ([]byte, error) {
	params, err := p.addrParams(addr)
	if err != nil {
		return nil, err
	}
	if p == Protocol2 {
		return append(params, byte(width), byte(width>>8)), nil
	}
	return append(params, byte(width)), nil
}

// checksum is the protocol 1.0 inverted byte sum
func checksum(b []byte) byte {
	var sum byte
	for _, v := range b {
		sum += v
	}
	return ^sum
}

func crc16(b []byte) uint16 {
	c := crcTable.InitCrc()
	c = crcTable.UpdateCrc(c, b)
	return crcTable.CRC16(c)
}

// [0xFF][0xFF][ID][LEN][INST][PARAM...][CHK]
// LEN counts INST, the params, and CHK
func encode1(id, inst byte, params []byte) []byte {
	pkt := make([]byte, 0, len(params)+6)
	pkt = append(pkt, 0xFF, 0xFF, id, byte(len(params)+2), inst)
	pkt = append(pkt, params...)
	return append(pkt, checksum(pkt[2:]))
}

// [0xFF][0xFF][0xFD][0x00][ID][LEN_L][LEN_H][INST][PARAM...][CRC_L][CRC_H]
// LEN counts INST, the (stuffed) params, and the CRC
func encode2(id, inst byte, params []byte) []byte {
	body := stuff(append([]byte{inst}, params...))
	n := len(body) + 2
	pkt := make([]byte, 0, n+7)
	pkt = append(pkt, 0xFF, 0xFF, 0xFD, 0x00, id, byte(n), byte(n>>8))
	pkt = append(pkt, body...)
	c := crc16(pkt)
	return append(pkt, byte(c), byte(c>>8))
}

// stuff inserts 0xFD after every FF FF FD sequence so the body can never be
// mistaken for a header
func stuff(b []byte) []byte {
	out := make([]byte, 0, len(b)+len(b)/3)
	for _, v := range b {
		out = append(out, v)
		n := len(out)
		if n >= 3 && out[n-3] == 0xFF && out[n-2] == 0xFF && out[n-1] == 0xFD {
			out = append(out, 0xFD)
		}
	}
	return out
}

// unstuff reverses stuff
func unstuff(b []byte) []byte {
	out := make([]byte, 0, len(b))
	for i := 0; i < len(b); i++ {
		out = append(out, b[i])
		n := len(out)
		if n >= 3 && out[n-3] == 0xFF && out[n-2] == 0xFF && out[n-1] == 0xFD &&
			i+1 < len(b) && b[i+1] == 0xFD {
			i++
		}
	}
	return out
}

// parseStatus1 decodes a complete protocol 1.0 status packet
func parseStatus1(pkt []byte) (status, error) {
	// FF FF ID LEN ERR CHK is the shortest reply
	if len(pkt) < 6 {
		return status{}, ErrShortPacket
	}
	if pkt[0] != 0xFF || pkt[1] != 0xFF {
		return status{}, ErrNoHeader
	}
	n := int(pkt[3])
	if n < 2 || len(pkt) != n+4 {
		return status{}, ErrShortPacket
	}
	last := len(pkt) - 1
	if checksum(pkt[2:last]) != pkt[last] {
		return status{}, ErrBadChecksum
	}
	return status{ID: pkt[2], Err: pkt[4], Params: pkt[5:last]}, nil
}

// parseStatus2 decodes a complete protocol 2.0 status packet
func parseStatus2(pkt []byte) (status, error) {
	// header(4) ID LEN_L LEN_H INST ERR CRC_L CRC_H is the shortest reply
	if len(pkt) < 11 {
		return status{}, ErrShortPacket
	}
	if pkt[0] != 0xFF || pkt[1] != 0xFF || pkt[2] != 0xFD {
		return status{}, ErrNoHeader
	}
	n := int(dataOrder.Uint16(pkt[5:7]))
	if n < 4 || len(pkt) != n+7 {
		return status{}, ErrShortPacket
	}
	last := len(pkt) - 2
	if crc16(pkt[:last]) != dataOrder.Uint16(pkt[last:]) {
		return status{}, ErrBadChecksum
	}
	if pkt[7] != instStatus {
		return status{}, fmt.Errorf("expected status instruction 0x55, got 0x%02X", pkt[7])
	}
	return status{ID: pkt[4], Err: pkt[8], Params: unstuff(pkt[9:last])}, nil
}

// parse decodes a complete status packet
func (p Protocol) parse(pkt []byte) (status, error) {
	if p == Protocol2 {
		return parseStatus2(pkt)
	}
	return parseStatus1(pkt)
}

// putValue encodes v little endian in width bytes
func putValue(v uint32, width int) []byte {
	buf := make([]byte, 4)
	dataOrder.PutUint32(buf, v)
	return buf[:width]
}

// getValue decodes a little endian value of up to 4 bytes
func getValue(b []byte) uint32 {
	var v uint32
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | uint32(b[i])
	}
	return v
}
