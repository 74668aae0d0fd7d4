// Package manager owns every device's Connection, demultiplexes each
// device's stream into packet and device-lifecycle events, and is the
// only caller allowed to mutate a Connection's lifecycle state, per
// spec.md §4.4.
package manager

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	p4v1 "github.com/p4lang/p4runtime/go/p4/v1"
	"golang.org/x/sync/errgroup"

	"github.com/flowplane/p4ctl/internal/device"
	"github.com/flowplane/p4ctl/internal/eventbus"
	"github.com/flowplane/p4ctl/internal/metrics"
	"github.com/flowplane/p4ctl/internal/model"
	"github.com/flowplane/p4ctl/internal/p4rtclient"
	"github.com/flowplane/p4ctl/internal/pipeconf"
	"github.com/flowplane/p4ctl/internal/wire"
)

// ErrDeviceNotConnected is returned by SendPacket/WriteEntity for an
// unknown DeviceID, per spec.md §4.4.
var ErrDeviceNotConnected = errors.New("manager: device not connected")

// DeviceEvent is published on device lifecycle transitions.
type DeviceEvent struct {
	Kind DeviceEventKind
	ID   model.DeviceID
}

type DeviceEventKind int

const (
	DeviceAdded DeviceEventKind = iota
	DeviceLost
	DeviceMasterUp
)

// AddDeviceOptions configures a new device connection. Address and
// Pipeconf come from the model.Device/pipeconf.Pipeconf passed to
// AddDevice, not from here: this struct only carries the dial-level
// knobs that don't belong on the domain type.
type AddDeviceOptions struct {
	Election *device.ElectionID
	Dial     device.DialOptions
}

// Manager maintains DeviceID -> *device.Connection, a packet publisher,
// and a device-event publisher. It exclusively owns every Connection it
// holds; app code only ever sees a Handle.
type Manager struct {
	log *slog.Logger

	mu          sync.RWMutex
	devices     map[model.DeviceID]*device.Connection
	names       map[model.DeviceID]string
	pipeconfIDs map[model.DeviceID]model.PipeconfID
	virtual     map[model.DeviceID]struct{}

	packets *eventbus.Publisher[model.PacketReceived]
	events  *eventbus.Publisher[DeviceEvent]

	pipeconfs *pipeconf.Registry
	metrics   *metrics.Metrics

	group *errgroup.Group

	finishOnce sync.Once
	finished   chan struct{}
}

// New constructs an empty Manager.
func New(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		log:         logger,
		devices:     make(map[model.DeviceID]*device.Connection),
		names:       make(map[model.DeviceID]string),
		pipeconfIDs: make(map[model.DeviceID]model.PipeconfID),
		virtual:     make(map[model.DeviceID]struct{}),
		packets:     eventbus.New[model.PacketReceived](logger),
		events:      eventbus.New[DeviceEvent](logger),
		group:       &errgroup.Group{},
		finished:    make(chan struct{}),
	}
}

// SetPipeconfs wires the pipeconf registry a connected device's current
// pipeconf is resolved against on every arbitration and packet-in, so a
// RequestUpdatePipeconf takes effect on already-connected devices without
// needing a fresh AddDevice call.
func (m *Manager) SetPipeconfs(r *pipeconf.Registry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pipeconfs = r
}

// SetMetrics wires the Prometheus instrumentation. A nil Metrics (the
// zero value of Manager) disables instrumentation, which is the default
// so that tests needn't construct a registry.
func (m *Manager) SetMetrics(met *metrics.Metrics) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics = met
}

// SubscribePacket registers a handler for every PacketReceived, in
// registration order.
func (m *Manager) SubscribePacket(h eventbus.Handler[model.PacketReceived]) {
	m.packets.Subscribe(h)
}

// SubscribeEvent registers a handler for device lifecycle events.
func (m *Manager) SubscribeEvent(h eventbus.Handler[DeviceEvent]) {
	m.events.Subscribe(h)
}

// Finished returns a channel closed once the last device is removed after
// at least one device was ever added, letting the process shut down
// gracefully per spec.md §4.3's teardown paragraph.
func (m *Manager) Finished() <-chan struct{} {
	return m.finished
}

// DeviceIDs returns every currently registered device, dialed or
// virtual.
func (m *Manager) DeviceIDs() []model.DeviceID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.DeviceID, 0, len(m.devices)+len(m.virtual))
	for id := range m.devices {
		out = append(out, id)
	}
	for id := range m.virtual {
		out = append(out, id)
	}
	return out
}

// AddDevice registers d, dispatching on its DeviceType per spec.md §3: a
// Virtual device is topology-only and is never dialed; a Bmv2Master or
// StratumMaster is dialed over P4Runtime, with a Stratum device also
// dialing the companion gNMI channel on the same host:port. On success,
// on every arbitration win it pushes the device's current pipeconf (the
// registry's copy of pc's ID, else pc itself, if non-nil). Any error
// before the connection is registered is reported to the caller and
// published as DeviceLost; the device is never inserted in that case.
func (m *Manager) AddDevice(ctx context.Context, d *model.Device, pc *pipeconf.Pipeconf, opts AddDeviceOptions) error {
	switch t := d.Type.(type) {
	case model.Virtual:
		return m.addVirtual(d.ID, d.Name)
	case model.Bmv2Master:
		return m.dialAndAdd(ctx, d.ID, d.Name, t.Address, pc, opts)
	case model.StratumMaster:
		return m.dialAndAddStratum(ctx, d.ID, d.Name, t.Address, pc, opts)
	default:
		m.events.Emit(DeviceEvent{Kind: DeviceLost, ID: d.ID})
		return errors.New("manager: device has an unknown DeviceType")
	}
}

// addVirtual registers a topology-only device: no Connection, no dial,
// no stream, per spec.md §3 "Virtual — topology-only, no connection".
func (m *Manager) addVirtual(id model.DeviceID, name string) error {
	m.mu.Lock()
	m.virtual[id] = struct{}{}
	m.names[id] = name
	m.mu.Unlock()

	m.events.Emit(DeviceEvent{Kind: DeviceAdded, ID: id})
	m.log.Info("virtual device added", "device", name)
	return nil
}

func resolvedDialOptions(opts AddDeviceOptions) device.DialOptions {
	dial := opts.Dial
	if dial.ElectionID == nil {
		dial.ElectionID = opts.Election
	}
	return dial
}

// dialAndAdd dials a Bmv2Master device's P4Runtime channel.
func (m *Manager) dialAndAdd(ctx context.Context, id model.DeviceID, name, address string, pc *pipeconf.Pipeconf, opts AddDeviceOptions) error {
	conn, err := device.Dial(ctx, m.log, name, address, resolvedDialOptions(opts))
	if err != nil {
		m.events.Emit(DeviceEvent{Kind: DeviceLost, ID: id})
		return err
	}
	return m.addConnection(ctx, id, name, conn, pc)
}

// dialAndAddStratum dials a StratumMaster's P4Runtime channel and then
// its companion gNMI channel on the same host:port, per spec.md §6,
// attaching the latter to the Connection before registering it.
func (m *Manager) dialAndAddStratum(ctx context.Context, id model.DeviceID, name, address string, pc *pipeconf.Pipeconf, opts AddDeviceOptions) error {
	dial := resolvedDialOptions(opts)
	conn, err := device.Dial(ctx, m.log, name, address, dial)
	if err != nil {
		m.events.Emit(DeviceEvent{Kind: DeviceLost, ID: id})
		return err
	}

	gnmiConn, err := p4rtclient.DialGNMI(ctx, address, dial.GRPCDialOptions...)
	if err != nil {
		conn.Close()
		m.events.Emit(DeviceEvent{Kind: DeviceLost, ID: id})
		return err
	}
	conn.SetGNMI(gnmiConn)

	return m.addConnection(ctx, id, name, conn, pc)
}

// AddConnection registers an already-established Connection, bypassing
// the dial step. Tests use this to wire in a device.Connection built
// around a p4rtclient.FakeClient.
func (m *Manager) AddConnection(ctx context.Context, id model.DeviceID, name string, conn *device.Connection, pc *pipeconf.Pipeconf) error {
	return m.addConnection(ctx, id, name, conn, pc)
}

func (m *Manager) addConnection(ctx context.Context, id model.DeviceID, name string, conn *device.Connection, pc *pipeconf.Pipeconf) error {
	if _, err := conn.OpenStream(ctx); err != nil {
		m.events.Emit(DeviceEvent{Kind: DeviceLost, ID: id})
		return err
	}

	receiver, ok := conn.TakeReceiver()
	if !ok {
		m.events.Emit(DeviceEvent{Kind: DeviceLost, ID: id})
		return device.ErrReceiverAlreadyTaken
	}

	m.mu.Lock()
	m.devices[id] = conn
	m.names[id] = name
	if pc != nil {
		m.pipeconfIDs[id] = pc.ID
	}
	met := m.metrics
	m.mu.Unlock()

	m.group.Go(func() error {
		m.demultiplex(ctx, id, conn, receiver, pc)
		return nil
	})

	m.events.Emit(DeviceEvent{Kind: DeviceAdded, ID: id})
	if met != nil {
		met.DevicesConnected.Inc()
	}
	m.log.Info("device added", "device", name)
	return nil
}

// currentPipeconf resolves the pipeconf currently bound to id through the
// registry, falling back to the value captured when the device was
// added (or nil) if no registry is wired or the device has none bound.
// This is what makes RequestUpdatePipeconf visible to an already-
// connected device: the registry, not a stale snapshot, is consulted on
// every arbitration and packet-in.
func (m *Manager) currentPipeconf(id model.DeviceID, fallback *pipeconf.Pipeconf) *pipeconf.Pipeconf {
	m.mu.RLock()
	reg := m.pipeconfs
	pcID, hasID := m.pipeconfIDs[id]
	m.mu.RUnlock()

	if reg == nil || !hasID {
		return fallback
	}
	if pc, ok := reg.Get(pcID); ok {
		return pc
	}
	return fallback
}

// demultiplex runs for the lifetime of one device's stream, translating
// each StreamMessageResponse per spec.md §4.3's table, and removes the
// device when the stream ends for any reason.
func (m *Manager) demultiplex(ctx context.Context, id model.DeviceID, conn *device.Connection, recv *device.Receiver, pc *pipeconf.Pipeconf) {
	defer m.RemoveDevice(id)

	for {
		resp, err := recv.Recv()
		if err != nil {
			m.log.Info("device stream ended", "device", conn.Name, "error", err)
			conn.MarkDisconnected()
			return
		}

		switch u := resp.GetUpdate().(type) {
		case *p4v1.StreamMessageResponse_Arbitration:
			if conn.ApplyMasterUpdate(u.Arbitration) {
				m.events.Emit(DeviceEvent{Kind: DeviceMasterUp, ID: id})
				if live := m.currentPipeconf(id, pc); live != nil {
					if err := conn.SetPipelineConfig(ctx, live); err != nil {
						m.log.Error("pipeline config push failed", "device", conn.Name, "error", err)
					}
				}
			}
		case *p4v1.StreamMessageResponse_Packet:
			pr := model.PacketReceived{Device: id, Payload: u.Packet.GetPayload()}
			if live := m.currentPipeconf(id, pc); live != nil {
				pr = wire.DecodePacketIn(live, id, u.Packet)
			}
			m.packets.Emit(pr)
			if met := m.metricsSnapshot(); met != nil {
				met.PacketsInTotal.Inc()
			}
		case *p4v1.StreamMessageResponse_Digest, *p4v1.StreamMessageResponse_IdleTimeoutNotification:
			m.log.Debug("stream message ignored", "device", conn.Name)
		case *p4v1.StreamMessageResponse_Error:
			m.log.Warn("device reported stream error", "device", conn.Name, "error", u.Error)
		default:
			m.log.Debug("unhandled stream message", "device", conn.Name)
		}
	}
}

func (m *Manager) metricsSnapshot() *metrics.Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.metrics
}

// RemoveDevice removes id from the registry, closes its transport, and
// publishes DeviceLost. If this empties the manager after at least one
// device was ever added, Finished's channel is closed.
func (m *Manager) RemoveDevice(id model.DeviceID) {
	m.mu.Lock()
	conn, wasConnected := m.devices[id]
	_, wasVirtual := m.virtual[id]
	if wasConnected {
		delete(m.devices, id)
		delete(m.names, id)
		delete(m.pipeconfIDs, id)
	}
	if wasVirtual {
		delete(m.virtual, id)
		delete(m.names, id)
	}
	empty := len(m.devices) == 0 && len(m.virtual) == 0
	met := m.metrics
	m.mu.Unlock()

	if !wasConnected && !wasVirtual {
		return
	}

	if conn != nil {
		conn.Close()
	}
	m.events.Emit(DeviceEvent{Kind: DeviceLost, ID: id})
	if met != nil {
		met.DeviceLostTotal.Inc()
		if wasConnected {
			met.DevicesConnected.Dec()
		}
	}

	if empty {
		m.finishOnce.Do(func() { close(m.finished) })
	}
}

// GetDevice returns a lightweight Handle sharing the connection's stream
// sender but not its receiver, per spec.md §4.4.
func (m *Manager) GetDevice(id model.DeviceID) (*Handle, bool) {
	m.mu.RLock()
	conn, ok := m.devices[id]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return &Handle{conn: conn}, true
}

// SendPacket looks up the device owning the ConnectPoint and encodes a
// packet-out onto it.
func (m *Manager) SendPacket(to model.ConnectPoint, payload []byte) error {
	m.mu.RLock()
	conn, ok := m.devices[to.Device]
	met := m.metrics
	m.mu.RUnlock()
	if !ok {
		return ErrDeviceNotConnected
	}
	if err := conn.SendPacketOut(to.Port, payload); err != nil {
		return err
	}
	if met != nil {
		met.PacketsOutTotal.Inc()
	}
	return nil
}

// WriteEntity writes a single update to the named device.
func (m *Manager) WriteEntity(ctx context.Context, device_ model.DeviceID, entity *p4v1.Entity, op model.UpdateType) (*p4v1.WriteResponse, error) {
	m.mu.RLock()
	conn, ok := m.devices[device_]
	met := m.metrics
	m.mu.RUnlock()
	if !ok {
		return nil, ErrDeviceNotConnected
	}

	start := time.Now()
	resp, err := conn.WriteEntity(ctx, entity, op)
	if met != nil {
		met.WriteEntityDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			met.WriteEntityErrors.WithLabelValues(writeEntityErrorReason(err)).Inc()
		}
	}
	return resp, err
}

func writeEntityErrorReason(err error) string {
	var notMaster *device.NotMasterError
	var transport *device.TransportError
	switch {
	case errors.As(err, &notMaster):
		return "not_master"
	case errors.As(err, &transport):
		return "transport"
	default:
		return "other"
	}
}

// Wait blocks until every demultiplexer goroutine spawned by AddDevice has
// returned, for use during process shutdown.
func (m *Manager) Wait() error {
	return m.group.Wait()
}
