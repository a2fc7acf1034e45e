package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/pkg/errors"

	"github.com/roboajay/gravity-compensation/register"
	"github.com/roboajay/gravity-compensation/telemetry"

	yml "gopkg.in/yaml.v2"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "compliance.yml"
	k              = koanf.New(".")
)

func setupconfig() {
	k.Load(structs.Provider(DefaultConfig(), "koanf"), nil)
	if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		errtxt := err.Error()
		if !strings.Contains(errtxt, "no such") { // file missing, who cares
			log.Fatalf("error loading config: %v", err)
		}
	}
}

func root() {
	str := `compliance makes Dynamixel actuators yield to force applied to them.
It reads motor current as a measure of external load and moves the goal
position away from sustained load, while serving telemetry over HTTP.

Usage:
	compliance <command>

Commands:
	run
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `compliance is amenable to configuration via its .yaml file.  For a primer on YAML, see
https://yaml.org/start.html

mkconf writes the defaults, a two actuator MX series arm on /dev/ttyUSB0 at
1Mbaud, to compliance.yml in the working directory.

Each channel yields Gain position units per unit of current beyond Threshold.
Current is measured from Midpoint (2048 for MX series).  A reversal of the
load direction is only acted on once it persists for a second tick.  Goals
never leave Limits, which default to 0..4095 when omitted and must fit the
goal position register.

At startup every actuator is pinged and those which do not answer are logged.

Registers may be omitted, in which case the MX series protocol 1.0 control
table is used.  Set Link.Protocol to 2 and provide Registers for X series.

Set Mock to true to run against a simulated bus with a swaying load.

With Addr set, telemetry is served:
	GET /channels
	GET /channel/{id}/latest
	GET /channel/{id}/history
	GET /ticks
	GET /endpoints

The controller runs until interrupted; torque is then disabled on every
actuator.`
	fmt.Println(str)
}

func mkconf() {
	c := Config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	f, err := os.Create(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	err = yml.NewEncoder(f).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func printconf() {
	c := Config{}
	k.Unmarshal("", &c)
	err := yml.NewEncoder(os.Stdout).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("compliance version %v\n", Version)
}

func run() error {
	c := Config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		return err
	}
	if err = c.Validate(); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}
	port := BuildPort(c)
	if err = Connect(port, c.Link); err != nil {
		return err
	}
	rec := telemetry.NewRecorder(c.History, c.IDs()...)
	d, err := BuildDriver(c, port, rec)
	if err != nil {
		port.Close()
		return err
	}
	defer func() {
		if err := d.Close(); err != nil {
			log.Println("error shutting down:", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if c.Addr != "" {
		srv := &http.Server{Addr: c.Addr, Handler: BuildMux(rec)}
		go func() {
			log.Println("now listening for requests at ", c.Addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Println(err)
			}
		}()
		defer srv.Shutdown(context.Background())
	}

	if err = d.Start(); err != nil {
		return err
	}
	log.Printf("controlling %d actuators", len(c.Channels))
	err = d.Run(ctx)
	if register.IsFatal(err) {
		return err
	}
	log.Println("shutting down")
	return nil
}

func main() {
	var cmd string
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	setupconfig()
	cmd = args[1]
	cmd = strings.ToLower(cmd)
	switch cmd {
	case "help":
		help()
		return
	case "mkconf":
		mkconf()
		return
	case "conf":
		printconf()
		return
	case "run":
		if err := run(); err != nil {
			log.Fatal(err)
		}
		return
	case "version":
		pversion()
		return
	default:
		log.Fatal("unknown command")
	}
}
