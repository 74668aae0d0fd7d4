package core

import (
	"github.com/flowplane/p4ctl/internal/manager"
	"github.com/flowplane/p4ctl/internal/model"
	"github.com/flowplane/p4ctl/internal/pipeconf"
)

// RequestKind discriminates the mutations the driver applies to core
// state, per spec.md §4.5's core_requests channel.
type RequestKind int

const (
	RequestAddDevice RequestKind = iota
	RequestRemoveDevice
	RequestAddPipeconf
	RequestUpdatePipeconf
	RequestRemovePipeconf
)

// Request is a single core-state mutation. Reply, if non-nil, receives the
// mutation's error and is then closed by the driver once the mutation has
// been applied; any resulting event is enqueued after the reply, letting a
// caller await completion without coupling request submission to event
// delivery.
type Request struct {
	Kind RequestKind

	// DeviceID names the target of RequestRemoveDevice. RequestAddDevice
	// instead carries the full typed Device (its ID is Device.ID).
	DeviceID      model.DeviceID
	Device        *model.Device
	AddDeviceOpts manager.AddDeviceOptions

	PipeconfID   model.PipeconfID
	PipeconfName string
	Pipeconf     *pipeconf.Pipeconf

	Reply chan error
}

func (r Request) reply(err error) {
	if r.Reply != nil {
		r.Reply <- err
		close(r.Reply)
	}
}
