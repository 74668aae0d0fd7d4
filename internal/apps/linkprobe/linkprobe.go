// Package linkprobe periodically emits an Ethernet probe frame on every
// known port and recognizes probes from other devices arriving as
// packet-ins, announcing LinkDetected events, per spec.md §8 scenario S6.
package linkprobe

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/jonboulle/clockwork"

	"github.com/flowplane/p4ctl/internal/core"
	"github.com/flowplane/p4ctl/internal/manager"
	"github.com/flowplane/p4ctl/internal/model"
)

// EtherType is the probe frame's ethertype, per spec.md §8 S6.
const EtherType = layers.EthernetType(0x0861)

// ProbeInterval is how often each known port is probed.
const ProbeInterval = 3 * time.Second

var broadcastMAC = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// App probes every (device, port) pair it's told about and turns inbound
// probe frames into LinkDetected events.
type App struct {
	log    *slog.Logger
	mgr    *manager.Manager
	core   *core.Core
	clock  clockwork.Clock
	srcMAC net.HardwareAddr
	ports  map[model.DeviceID][]uint32
}

// Config is the construction parameters for App.
type Config struct {
	Logger *slog.Logger
	Clock  clockwork.Clock // nil means clockwork.NewRealClock()
	SrcMAC net.HardwareAddr
	Ports  map[model.DeviceID][]uint32
}

// New builds an App bound to mgr (for sending probes) and c (for emitting
// LinkDetected events).
func New(mgr *manager.Manager, c *core.Core, cfg Config) *App {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &App{
		log:    logger,
		mgr:    mgr,
		core:   c,
		clock:  clock,
		srcMAC: cfg.SrcMAC,
		ports:  cfg.Ports,
	}
}

func (a *App) Name() string { return "link-probe" }

// Run starts the periodic probe loop; it blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context, _ *core.Core) error {
	ticker := a.clock.NewTicker(ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			a.probeAll()
		}
	}
}

func (a *App) probeAll() {
	for id, ports := range a.ports {
		h, ok := a.mgr.GetDevice(id)
		if !ok {
			continue
		}
		for _, port := range ports {
			frame, err := buildProbeFrame(a.srcMAC, model.ConnectPoint{Device: id, Port: port})
			if err != nil {
				a.log.Warn("failed to build link probe frame", "device", id, "port", port, "error", err)
				continue
			}
			if err := h.SendPacketOut(port, frame); err != nil {
				a.log.Debug("link probe send failed", "device", id, "port", port, "error", err)
			}
		}
	}
}

func buildProbeFrame(src net.HardwareAddr, cp model.ConnectPoint) ([]byte, error) {
	payload, err := json.Marshal(cp)
	if err != nil {
		return nil, err
	}
	eth := layers.Ethernet{
		SrcMAC:       src,
		DstMAC:       broadcastMAC,
		EthernetType: EtherType,
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, &eth, gopacket.Payload(payload)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// HandleEvent recognizes inbound probe frames on PacketReceived events and
// emits exactly one LinkDetected event per probe, per spec.md §8 S6.
// Non-probe packets are propagated unchanged.
func (a *App) HandleEvent(ev core.Event) (core.Event, bool) {
	if ev.Kind != core.EventPacketReceived {
		return ev, true
	}

	src, ok := parseProbeFrame(ev.Packet.Payload)
	if !ok {
		return ev, true
	}
	if !ev.Packet.HasConnectPoint {
		return ev, true
	}

	a.core.Emit(core.Event{
		Kind: core.EventLinkDetected,
		Link: model.Link{Src: src, Dst: ev.Packet.ConnectPoint},
	})
	return ev, true
}

// parseProbeFrame extracts the sender's ConnectPoint from a raw Ethernet
// frame if it is a link-probe frame, else reports ok=false.
func parseProbeFrame(raw []byte) (model.ConnectPoint, bool) {
	packet := gopacket.NewPacket(raw, layers.LayerTypeEthernet, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
	ethLayer := packet.Layer(layers.LayerTypeEthernet)
	if ethLayer == nil {
		return model.ConnectPoint{}, false
	}
	eth, ok := ethLayer.(*layers.Ethernet)
	if !ok || eth.EthernetType != EtherType {
		return model.ConnectPoint{}, false
	}

	var cp model.ConnectPoint
	if err := json.Unmarshal(eth.Payload, &cp); err != nil {
		return model.ConnectPoint{}, false
	}
	return cp, true
}
