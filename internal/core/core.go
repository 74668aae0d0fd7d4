// Package core is the single cooperative event driver: it owns the three
// inbound channels described in spec.md §4.5 (core_requests, events,
// northbound_requests), is the sole writer of the pipeconf and device
// registries, and fans events out to the installed application chain.
//
// Per spec.md §9's first Open Question ("two overlapping lifecycle
// paths... pick one"), this package keeps only this richer Core variant;
// there is no second "direct Context" API. A caller that would have used
// one instead submits a Request and observes the resulting Event.
package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/flowplane/p4ctl/internal/device"
	"github.com/flowplane/p4ctl/internal/manager"
	"github.com/flowplane/p4ctl/internal/model"
	"github.com/flowplane/p4ctl/internal/pipeconf"
)

// PersistentStore is implemented by internal/restore.Store. It is
// declared here, not there, because restore already depends on core (for
// Replay); Core depends only on this narrow interface, never on the
// restore package itself.
type PersistentStore interface {
	Put(d *model.Device, election *device.ElectionID) error
	Remove(id model.DeviceID) error
}

// NorthboundRequest is a request arriving from the service bus (§4.7),
// routed by the driver's third channel.
type NorthboundRequest struct {
	Service string
	Action  string
	Params  []byte
	Reply   chan NorthboundResponse
}

// NorthboundResponse is the service bus's answer to a NorthboundRequest.
type NorthboundResponse struct {
	Body []byte
	Err  error
}

// Config configures channel buffer sizes; zero values fall back to the
// defaults below (10240, matching rusty-p4's try_new channel capacity).
type Config struct {
	Logger           *slog.Logger
	RequestBuffer    int
	EventBuffer      int
	NorthboundBuffer int
	Manager          *manager.Manager
	Pipeconfs        *pipeconf.Registry
	Restore          PersistentStore
}

const defaultBuffer = 10240

// Core is the cooperative single-threaded driver described in spec.md
// §4.5. It must run on exactly one goroutine (Run); every other component
// interacts with it only through its channels.
type Core struct {
	log *slog.Logger

	manager   *manager.Manager
	pipeconfs *pipeconf.Registry
	restore   PersistentStore
	chain     Chain

	requests   chan Request
	events     chan Event
	northbound chan NorthboundRequest
}

// New constructs a Core. The caller must still call Run to start the
// driver loop and Install to register apps before events can be acted on.
func New(cfg Config) *Core {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	requestBuf := cfg.RequestBuffer
	if requestBuf <= 0 {
		requestBuf = defaultBuffer
	}
	eventBuf := cfg.EventBuffer
	if eventBuf <= 0 {
		eventBuf = defaultBuffer
	}
	nbBuf := cfg.NorthboundBuffer
	if nbBuf <= 0 {
		nbBuf = defaultBuffer
	}

	return &Core{
		log:        logger,
		manager:    cfg.Manager,
		pipeconfs:  cfg.Pipeconfs,
		restore:    cfg.Restore,
		requests:   make(chan Request, requestBuf),
		events:     make(chan Event, eventBuf),
		northbound: make(chan NorthboundRequest, nbBuf),
	}
}

// Install registers app on the priority chain. Must be called before Run,
// or from within an app's own on_start, never concurrently with Dispatch.
func (c *Core) Install(priority int, app AppHandler) {
	c.chain.Install(priority, app)
}

// Submit enqueues a core request for the driver to process. It is safe to
// call from any goroutine.
func (c *Core) Submit(r Request) { c.requests <- r }

// Emit enqueues an event for the driver to fan out to the app chain.
func (c *Core) Emit(e Event) { c.events <- e }

// Northbound enqueues a request originating from the service bus.
func (c *Core) Northbound(r NorthboundRequest) { c.northbound <- r }

// Run is the cooperative select loop: it is the single writer of the
// pipeconf and device registries, translating each Request into zero or
// more Events, and dispatching every Event through the installed chain.
// Run blocks until ctx is cancelled.
func (c *Core) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			c.log.Info("core driver stopping", "reason", ctx.Err())
			return
		case req := <-c.requests:
			c.applyRequest(ctx, req)
		case ev := <-c.events:
			c.chain.Dispatch(ev)
		case nbReq := <-c.northbound:
			c.handleNorthbound(nbReq)
		}
	}
}

func (c *Core) applyRequest(ctx context.Context, req Request) {
	switch req.Kind {
	case RequestAddDevice:
		var pc *pipeconf.Pipeconf
		if id, ok := req.Device.PipeconfID(); ok {
			pc, _ = c.pipeconfs.Get(id)
		}
		err := c.manager.AddDevice(ctx, req.Device, pc, req.AddDeviceOpts)
		if err == nil && c.restore != nil {
			if perr := c.restore.Put(req.Device, req.AddDeviceOpts.Election); perr != nil {
				c.log.Warn("restore store put failed", "device", req.Device.Name, "error", perr)
			}
		}
		req.reply(err)
		if err == nil {
			c.events <- Event{Kind: EventDeviceAdded, Device: req.Device.ID}
		}

	case RequestRemoveDevice:
		c.manager.RemoveDevice(req.DeviceID)
		if c.restore != nil {
			if err := c.restore.Remove(req.DeviceID); err != nil {
				c.log.Warn("restore store remove failed", "device", req.DeviceID, "error", err)
			}
		}
		req.reply(nil)
		c.events <- Event{Kind: EventDeviceLost, Device: req.DeviceID}

	case RequestAddPipeconf:
		c.pipeconfs.Update(req.PipeconfID, req.Pipeconf)
		req.reply(nil)

	case RequestUpdatePipeconf:
		if _, ok := c.pipeconfs.Get(req.PipeconfID); !ok {
			req.reply(fmt.Errorf("core: pipeconf %d not found", req.PipeconfID))
			return
		}
		c.pipeconfs.Update(req.PipeconfID, req.Pipeconf)
		req.reply(nil)
		// The new pipeconf is live immediately: manager.currentPipeconf
		// resolves it through this same registry on every arbitration and
		// packet-in, rather than a value captured when the device was added.

	case RequestRemovePipeconf:
		c.pipeconfs.Remove(req.PipeconfID)
		req.reply(nil)

	default:
		req.reply(fmt.Errorf("core: unknown request kind %d", req.Kind))
	}
}

// handleNorthbound answers a request routed in from the service bus
// (spec.md §4.5/§4.7), on the driver's own goroutine so reads of device
// and pipeconf state never race its writers.
func (c *Core) handleNorthbound(req NorthboundRequest) {
	switch req.Action {
	case "devices":
		body, err := json.Marshal(c.manager.DeviceIDs())
		req.Reply <- NorthboundResponse{Body: body, Err: err}

	case "pipeconfs":
		snap := c.pipeconfs.Snapshot()
		names := make([]string, 0, len(snap))
		for _, pc := range snap {
			names = append(names, pc.Name)
		}
		body, err := json.Marshal(names)
		req.Reply <- NorthboundResponse{Body: body, Err: err}

	default:
		req.Reply <- NorthboundResponse{Err: fmt.Errorf("core: unknown northbound action %q", req.Action)}
	}
}

// Manager exposes the underlying connection manager for wiring apps that
// need to send packets or write entities directly, matching the "handles
// observe state via snapshot references" model of spec.md §4.5.
func (c *Core) Manager() *manager.Manager { return c.manager }

// Pipeconfs exposes the pipeconf registry.
func (c *Core) Pipeconfs() *pipeconf.Registry { return c.pipeconfs }
