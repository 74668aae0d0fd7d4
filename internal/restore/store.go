// Package restore persists the fleet's device set to a JSON snapshot file
// and replays it as core.RequestAddDevice requests on startup, per spec.md
// §6's "Persisted state" section.
package restore

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/flowplane/p4ctl/internal/core"
	"github.com/flowplane/p4ctl/internal/device"
	"github.com/flowplane/p4ctl/internal/manager"
	"github.com/flowplane/p4ctl/internal/model"
)

// deviceRecord is the persisted projection of a model.Device: enough to
// rebuild the typed Device and resubmit a RequestAddDevice. Pipeconf
// contents themselves are never persisted here, only the ID naming which
// one to rebind once the registry is repopulated.
type deviceRecord struct {
	Name         string   `json:"name"`
	Type         string   `json:"type"` // "bmv2", "stratum", or "virtual"
	Address      string   `json:"address,omitempty"`
	P4DeviceID   uint64   `json:"p4DeviceId,omitempty"`
	PipeconfID   uint64   `json:"pipeconfId,omitempty"`
	Ports        []uint32 `json:"ports,omitempty"`
	ElectionHigh uint64   `json:"electionHigh,omitempty"`
	ElectionLow  uint64   `json:"electionLow,omitempty"`
	HasElection  bool     `json:"hasElection"`
}

// snapshot is the on-disk shape: {"devices": {id: record, ...}}.
type snapshot struct {
	Devices map[model.DeviceID]deviceRecord `json:"devices"`
}

// Store owns one snapshot file. It is not safe for concurrent writers; the
// spec's restore file is never read concurrently with writes, so callers
// serialize mutations themselves (the core driver's single select loop
// already does this naturally, since Put/Remove are only ever called from
// applyRequest).
type Store struct {
	path string
}

// Open returns a Store bound to path. The file need not exist yet; the
// first Put creates it. Open's return value satisfies core.PersistentStore.
func Open(path string) *Store {
	return &Store{path: path}
}

// Load reads the snapshot file. A missing file is not an error: it returns
// an empty snapshot, matching "first run, nothing persisted yet".
func (s *Store) Load() (map[model.DeviceID]deviceRecord, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[model.DeviceID]deviceRecord{}, nil
	}
	if err != nil {
		return nil, err
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	if snap.Devices == nil {
		snap.Devices = map[model.DeviceID]deviceRecord{}
	}
	return snap.Devices, nil
}

// Save truncates and rewrites the snapshot file with the given device set.
func (s *Store) Save(devices map[model.DeviceID]deviceRecord) error {
	data, err := json.MarshalIndent(snapshot{Devices: devices}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o644)
}

func recordOf(d *model.Device, election *device.ElectionID) deviceRecord {
	rec := deviceRecord{Name: d.Name}

	switch t := d.Type.(type) {
	case model.Bmv2Master:
		rec.Type = "bmv2"
		rec.Address = t.Address
		rec.P4DeviceID = t.DeviceID
		rec.PipeconfID = uint64(t.Pipeconf)
	case model.StratumMaster:
		rec.Type = "stratum"
		rec.Address = t.Address
		rec.P4DeviceID = t.DeviceID
		rec.PipeconfID = uint64(t.Pipeconf)
	case model.Virtual:
		rec.Type = "virtual"
	}

	for _, p := range d.Ports {
		rec.Ports = append(rec.Ports, p.Number)
	}

	if election != nil {
		rec.HasElection = true
		rec.ElectionHigh = election.High
		rec.ElectionLow = election.Low
	}
	return rec
}

func (rec deviceRecord) toDevice(id model.DeviceID) (*model.Device, error) {
	var typ model.DeviceType
	switch rec.Type {
	case "", "bmv2":
		typ = model.Bmv2Master{Address: rec.Address, DeviceID: rec.P4DeviceID, Pipeconf: model.PipeconfID(rec.PipeconfID)}
	case "stratum":
		typ = model.StratumMaster{Address: rec.Address, DeviceID: rec.P4DeviceID, Pipeconf: model.PipeconfID(rec.PipeconfID)}
	case "virtual":
		typ = model.Virtual{}
	default:
		return nil, fmt.Errorf("restore: record %q has unknown type %q", rec.Name, rec.Type)
	}

	d := model.NewDevice(rec.Name, id, typ)
	for _, port := range rec.Ports {
		d.AddPort(model.Port{Number: port})
	}
	return d, nil
}

// Put records or updates one device's entry and rewrites the file. It
// implements core.PersistentStore.
func (s *Store) Put(d *model.Device, election *device.ElectionID) error {
	devices, err := s.Load()
	if err != nil {
		return err
	}
	devices[d.ID] = recordOf(d, election)
	return s.Save(devices)
}

// Remove deletes one device's entry and rewrites the file. It implements
// core.PersistentStore.
func (s *Store) Remove(id model.DeviceID) error {
	devices, err := s.Load()
	if err != nil {
		return err
	}
	delete(devices, id)
	return s.Save(devices)
}

// Replay submits one RequestAddDevice per persisted record to c, in
// unspecified order, and waits for each to be applied before submitting the
// next. It is meant to run once, before the driver's main loop starts
// accepting northbound traffic.
func Replay(c *core.Core, devices map[model.DeviceID]deviceRecord) error {
	for id, rec := range devices {
		d, err := rec.toDevice(id)
		if err != nil {
			return err
		}

		var election *device.ElectionID
		if rec.HasElection {
			election = &device.ElectionID{High: rec.ElectionHigh, Low: rec.ElectionLow}
		}

		reply := make(chan error, 1)
		c.Submit(core.Request{
			Kind:   core.RequestAddDevice,
			Device: d,
			AddDeviceOpts: manager.AddDeviceOptions{
				Election: election,
			},
			Reply: reply,
		})
		if err := <-reply; err != nil {
			return err
		}
	}
	return nil
}
