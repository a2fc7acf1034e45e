package main

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/pkg/errors"
	"github.com/theckman/yacspin"

	"github.com/roboajay/gravity-compensation/compliance"
	"github.com/roboajay/gravity-compensation/dynamixel"
	"github.com/roboajay/gravity-compensation/generichttp"
	"github.com/roboajay/gravity-compensation/register"
	"github.com/roboajay/gravity-compensation/telemetry"
)

// LinkSetup describes how to reach the actuator bus
type LinkSetup struct {
	// Addr holds the network or filesystem address of the bus,
	// e.g. /dev/ttyUSB0 for a USB2Dynamixel or 192.168.100.123:2006 for a
	// serial server
	Addr string `koanf:"Addr" yaml:"Addr"`

	// Serial determines if the connection is serial (True) or TCP (False)
	Serial bool `koanf:"Serial" yaml:"Serial"`

	// Baud is the transfer rate of the bus
	Baud int `koanf:"Baud" yaml:"Baud"`

	// Protocol is the Dynamixel packet protocol, 1 or 2
	Protocol int `koanf:"Protocol" yaml:"Protocol"`

	// Timeout bounds each transaction
	Timeout time.Duration `koanf:"Timeout" yaml:"Timeout"`
}

// Config is a struct that holds the initialization parameters of the
// controller.  It is populated by koanf.
type Config struct {
	// Addr is the address to serve telemetry at, empty disables it
	Addr string `koanf:"Addr" yaml:"Addr"`

	// Mock substitutes a simulated bus for the hardware
	Mock bool `koanf:"Mock" yaml:"Mock"`

	// LogTicks prints one line per channel per tick
	LogTicks bool `koanf:"LogTicks" yaml:"LogTicks"`

	// History is the number of observations kept per channel for telemetry
	History int `koanf:"History" yaml:"History"`

	// Period is the control period, zero runs as fast as the bus allows
	Period time.Duration `koanf:"Period" yaml:"Period"`

	Link LinkSetup `koanf:"Link" yaml:"Link"`

	// Channels are the actuators to control, in tick order
	Channels []compliance.ChannelConfig `koanf:"Channels" yaml:"Channels"`
}

// mockPeriod paces the loop on a simulated bus, which answers instantly
const mockPeriod = 10 * time.Millisecond

// DefaultConfig is the configuration used when no file overrides it, the
// two actuator arm
func DefaultConfig() Config {
	full := compliance.DefaultLimits
	return Config{
		Addr:     ":8000",
		LogTicks: true,
		History:  telemetry.DefaultCapacity,
		Link: LinkSetup{
			Addr:     "/dev/ttyUSB0",
			Serial:   true,
			Baud:     1000000,
			Protocol: 1,
			Timeout:  100 * time.Millisecond},
		Channels: []compliance.ChannelConfig{
			{ID: 1, Gain: 3, Threshold: 5, Midpoint: compliance.Midpoint, Limits: full, Registers: register.MXSeries},
			{ID: 2, Gain: 1, Threshold: 2, Midpoint: compliance.Midpoint, Limits: full, Registers: register.MXSeries},
		}}
}

// Validate checks the configuration before any hardware is touched
func (c Config) Validate() error {
	if len(c.Channels) == 0 {
		return errors.New("no channels configured")
	}
	if c.Link.Baud <= 0 {
		return fmt.Errorf("invalid baud rate %d", c.Link.Baud)
	}
	if !dynamixel.Protocol(c.Link.Protocol).Valid() {
		return fmt.Errorf("unsupported protocol %d, must be 1 or 2", c.Link.Protocol)
	}
	seen := map[uint8]bool{}
	for _, ch := range c.Channels {
		if ch.ID > dynamixel.MaxID {
			return fmt.Errorf("channel id %d exceeds %d", ch.ID, dynamixel.MaxID)
		}
		if seen[ch.ID] {
			return fmt.Errorf("duplicate channel id %d", ch.ID)
		}
		seen[ch.ID] = true
		if err := ch.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// IDs returns the channel ids in order
func (c Config) IDs() []uint8 {
	ids := make([]uint8, len(c.Channels))
	for i, ch := range c.Channels {
		ids[i] = ch.ID
	}
	return ids
}

// sway is the external load on a simulated actuator, a slow sinusoid
// offset in phase per id
func sway(start time.Time) func(uint8, time.Time) int {
	return func(id uint8, t time.Time) int {
		phase := 2*math.Pi*t.Sub(start).Seconds()/4 + float64(id)
		return int(40 * math.Sin(phase))
	}
}

// BuildPort returns the bus described by c, not yet opened
func BuildPort(c Config) register.Port {
	if c.Mock {
		m := dynamixel.NewMockLink(register.MXSeries)
		for _, ch := range c.Channels {
			regs := ch.Registers
			if regs == (register.Map{}) {
				regs = register.MXSeries
			}
			m.AddServo(ch.ID, regs)
		}
		m.Disturbance = sway(time.Now())
		return m
	}
	l := dynamixel.NewLink(c.Link.Addr, c.Link.Serial, c.Link.Baud, dynamixel.Protocol(c.Link.Protocol))
	l.Timeout = c.Link.Timeout
	return l
}

// Connect opens the port and sets its transfer rate.  A spinner is shown
// while this happens if stdout is a terminal.
func Connect(p register.Port, c LinkSetup) error {
	spinner, err := yacspin.New(yacspin.Config{
		Frequency:         100 * time.Millisecond,
		CharSet:           yacspin.CharSets[11],
		Suffix:            " connecting to " + c.Addr,
		StopCharacter:     "✓",
		StopColors:        []string{"fgGreen"},
		StopFailCharacter: "✗",
		StopFailColors:    []string{"fgRed"},
	})
	if err != nil || !isTerminal(os.Stdout) {
		spinner = nil
	}
	if spinner != nil {
		spinner.Start()
	}
	err = p.Open()
	if err == nil {
		err = errors.Wrapf(p.SetBaudRate(c.Baud), "setting baud rate to %d", c.Baud)
	}
	if spinner != nil {
		if err != nil {
			spinner.StopFail()
		} else {
			spinner.Stop()
		}
	}
	return err
}

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

// BuildDriver creates the compliance loop over p, recording into rec
func BuildDriver(c Config, p register.Port, rec *telemetry.Recorder) (*compliance.Driver, error) {
	obs := compliance.Observers{rec}
	if c.LogTicks {
		obs = append(obs, compliance.LogObserver{Logger: log.New(os.Stdout, "", log.LstdFlags)})
	}
	period := c.Period
	if c.Mock && period == 0 {
		period = mockPeriod
	}
	return compliance.NewDriver(p, compliance.Config{
		Channels: c.Channels,
		Period:   period,
		Observer: obs})
}

// BuildMux builds the telemetry router.  The root serves a special route,
// /endpoints, which returns all routes as JSON.
func BuildMux(rec *telemetry.Recorder) chi.Router {
	root := chi.NewRouter()
	root.Use(middleware.Logger)
	var httper generichttp.HTTPer = telemetry.NewHTTPWrapper(rec)
	supergraph := map[string][]string{"/": httper.RT().Endpoints()}
	httper.RT().Bind(root)
	root.Get("/endpoints", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		err := json.NewEncoder(w).Encode(supergraph)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	return root
}
