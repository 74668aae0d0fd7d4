// Package config loads the controller's CLI flags and optional YAML fleet
// file, producing the values cmd/p4ctl wires into the rest of the module.
package config

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/flowplane/p4ctl/internal/model"
)

// Flags holds every command-line-configurable setting, parsed with pflag
// per the teacher's own CLI entrypoints.
type Flags struct {
	Verbose     bool
	FleetFile   string
	RestoreFile string
	HTTPAddr    string
	MetricsAddr string
}

// ParseFlags parses os.Args[1:] (via pflag's default CommandLine) into a
// Flags value.
func ParseFlags() Flags {
	var f Flags
	flag.BoolVarP(&f.Verbose, "verbose", "v", false, "enable debug logging")
	flag.StringVar(&f.FleetFile, "fleet-file", "", "path to a YAML fleet file describing devices to dial at startup")
	flag.StringVar(&f.RestoreFile, "restore-file", "", "path to the device restore-store JSON snapshot (disabled if empty)")
	flag.StringVar(&f.HTTPAddr, "http-addr", ":8080", "listen address for the northbound HTTP/WS frontend")
	flag.StringVar(&f.MetricsAddr, "metrics-addr", ":9090", "listen address for the Prometheus /metrics endpoint")
	flag.Parse()
	return f
}

// DeviceSpec is one fleet-file entry.
type DeviceSpec struct {
	Name       string   `yaml:"name"`
	Address    string   `yaml:"address"`
	Type       string   `yaml:"type"` // "bmv2", "stratum", or "virtual"
	Pipeconf   string   `yaml:"pipeconf"`
	P4DeviceID uint64   `yaml:"p4DeviceId"`
	Elect      bool     `yaml:"elect"`
	Ports      []uint32 `yaml:"ports"`
}

// Fleet is the top-level YAML fleet-file shape.
type Fleet struct {
	Devices []DeviceSpec `yaml:"devices"`
}

// LoadFleet reads and parses a YAML fleet file. An empty path is not an
// error: it returns an empty Fleet, matching "no static fleet configured,
// devices are added only through the northbound API".
func LoadFleet(path string) (Fleet, error) {
	if path == "" {
		return Fleet{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Fleet{}, fmt.Errorf("config: reading fleet file: %w", err)
	}
	var fleet Fleet
	if err := yaml.Unmarshal(data, &fleet); err != nil {
		return Fleet{}, fmt.Errorf("config: parsing fleet file: %w", err)
	}
	for i, d := range fleet.Devices {
		if d.Name == "" {
			return Fleet{}, fmt.Errorf("config: fleet device at index %d has no name", i)
		}
		if d.Address == "" && d.Type != "virtual" {
			return Fleet{}, fmt.Errorf("config: fleet device %q has no address", d.Name)
		}
	}
	return fleet, nil
}

// ToDevice builds the typed model.Device this spec describes, dispatching
// on Type: "bmv2" (the default) and "stratum" dial the device over
// P4Runtime, "virtual" never dials and is topology-only, per spec.md §3.
func (d DeviceSpec) ToDevice() (*model.Device, error) {
	var typ model.DeviceType
	switch d.Type {
	case "", "bmv2":
		typ = model.Bmv2Master{Address: d.Address, DeviceID: d.P4DeviceID, Pipeconf: model.NewPipeconfID(d.Pipeconf)}
	case "stratum":
		typ = model.StratumMaster{Address: d.Address, DeviceID: d.P4DeviceID, Pipeconf: model.NewPipeconfID(d.Pipeconf)}
	case "virtual":
		typ = model.Virtual{}
	default:
		return nil, fmt.Errorf("config: device %q has unknown type %q", d.Name, d.Type)
	}

	dev := model.NewDevice(d.Name, model.NewDeviceID(d.Name), typ)
	for _, port := range d.Ports {
		dev.AddPort(model.Port{Number: port})
	}
	return dev, nil
}
