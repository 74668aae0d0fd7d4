package manager

import (
	"context"

	p4v1 "github.com/p4lang/p4runtime/go/p4/v1"

	"github.com/flowplane/p4ctl/internal/device"
	"github.com/flowplane/p4ctl/internal/model"
	"github.com/flowplane/p4ctl/internal/pipeconf"
)

// Handle is the lightweight reference app code receives from GetDevice: it
// shares the connection's stream sender but exposes no way to take its
// receiver or close its transport, per spec.md §4.4 ("a handle sharing the
// underlying stream sender but NOT the receiver") and §3's ownership note
// ("a lightweight handle whose drop does not close the stream"). Only the
// Manager that created the underlying Connection may tear it down.
type Handle struct {
	conn *device.Connection
}

// Name is the device's configured name.
func (h *Handle) Name() string { return h.conn.Name }

// State returns the connection's current lifecycle state.
func (h *Handle) State() device.State { return h.conn.State() }

// Pipeconf returns the pipeconf currently pushed to the device, if any.
func (h *Handle) Pipeconf() *pipeconf.Pipeconf { return h.conn.Pipeconf() }

// SendPacketOut encodes and enqueues a packet-out on the shared sender.
func (h *Handle) SendPacketOut(port uint32, payload []byte) error {
	return h.conn.SendPacketOut(port, payload)
}

// WriteEntity writes a single update, subject to the connection's
// Master-state requirement.
func (h *Handle) WriteEntity(ctx context.Context, entity *p4v1.Entity, op model.UpdateType) (*p4v1.WriteResponse, error) {
	return h.conn.WriteEntity(ctx, entity, op)
}
