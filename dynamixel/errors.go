package dynamixel

import (
	"github.com/roboajay/gravity-compensation/register"
)

var (
	// ErrBits1 names the bits of a protocol 1.0 status error byte
	ErrBits1 = []string{
		"input voltage error", // bit 0
		"angle limit error",   // bit 1
		"overheating error",   // bit 2
		"range error",         // bit 3
		"checksum error",      // bit 4
		"overload error",      // bit 5
		"instruction error",   // bit 6
	}

	// ErrMap2 maps protocol 2.0 status error numbers to friendly strings
	ErrMap2 = map[byte]string{
		1: "result fail",
		2: "instruction error",
		3: "crc error",
		4: "data range error",
		5: "data length error",
		6: "data limit error",
		7: "access error",
	}
)

// hardwareAlert is bit 7 of a protocol 2.0 error byte
const hardwareAlert = 0x80

// StatusErr converts the error byte of a status packet into a go error,
// nil when no fault is flagged
func StatusErr(p Protocol, id uint8, code byte) error {
	if code == 0 {
		return nil
	}
	faults := []string{}
	if p == Protocol2 {
		if num := code &^ hardwareAlert; num != 0 {
			if s, ok := ErrMap2[num]; ok {
				faults = append(faults, s)
			} else {
				faults = append(faults, "unknown error")
			}
		}
		if code&hardwareAlert != 0 {
			faults = append(faults, "hardware alert")
		}
	} else {
		for i, s := range ErrBits1 {
			if code&(1<<i) != 0 {
				faults = append(faults, s)
			}
		}
	}
	return &register.DeviceError{ID: id, Code: code, Faults: faults}
}
