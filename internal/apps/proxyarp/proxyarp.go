// Package proxyarp is a reference app answering ARP requests for known
// host IPs on the topology app's behalf, demonstrating a typed dependency
// on another app resolved through internal/app's DI store.
package proxyarp

import (
	"log/slog"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/flowplane/p4ctl/internal/app"
	"github.com/flowplane/p4ctl/internal/core"
	"github.com/flowplane/p4ctl/internal/manager"
	"github.com/flowplane/p4ctl/internal/topology"
)

// App answers ARP requests for IPs it finds in the topology app's host
// table, replying from a fixed MAC on the querying ConnectPoint.
type App struct {
	log      *slog.Logger
	mgr      *manager.Manager
	topology *topology.Store
	replyMAC net.HardwareAddr
}

// Install builds an App via the DI store, resolving its *topology.Store
// dependency by type — the Go reading of spec.md §4.6's
// "Dependency{Topology}" composition example.
func Install(store *app.Store, mgr *manager.Manager, replyMAC net.HardwareAddr, logger *slog.Logger) (*App, error) {
	return app.Install(store, func(s *app.Store) (*App, error) {
		topo, err := app.Install(s, func(*app.Store) (*topology.Store, error) {
			return topology.New(nil), nil
		})
		if err != nil {
			return nil, err
		}
		if logger == nil {
			logger = slog.Default()
		}
		return &App{log: logger, mgr: mgr, topology: topo, replyMAC: replyMAC}, nil
	})
}

func (a *App) Name() string { return "proxy-arp" }

// HandleEvent answers ARP requests for known hosts in place and consumes
// them once the reply has been handed to the device; if the reply cannot
// be built or sent, and for every other event, the event propagates
// unchanged.
func (a *App) HandleEvent(ev core.Event) (core.Event, bool) {
	if ev.Kind != core.EventPacketReceived {
		return ev, true
	}
	if !ev.Packet.HasConnectPoint {
		return ev, true
	}

	req, ok := parseARPRequest(ev.Packet.Payload)
	if !ok {
		return ev, true
	}

	host, ok := a.topology.HostByIP(req.targetIP)
	if !ok {
		return ev, true
	}

	reply, err := buildARPReply(a.replyMAC, host.MAC, req)
	if err != nil {
		a.log.Warn("failed to build ARP reply", "error", err)
		return ev, true
	}

	h, ok := a.mgr.GetDevice(ev.Packet.ConnectPoint.Device)
	if !ok {
		return ev, true
	}
	if err := h.SendPacketOut(ev.Packet.ConnectPoint.Port, reply); err != nil {
		a.log.Debug("ARP reply send failed", "error", err)
		return ev, true
	}
	return ev, false
}

type arpRequest struct {
	senderMAC net.HardwareAddr
	senderIP  net.IP
	targetIP  net.IP
}

func parseARPRequest(raw []byte) (arpRequest, bool) {
	packet := gopacket.NewPacket(raw, layers.LayerTypeEthernet, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
	arpLayer := packet.Layer(layers.LayerTypeARP)
	if arpLayer == nil {
		return arpRequest{}, false
	}
	arp, ok := arpLayer.(*layers.ARP)
	if !ok || arp.Operation != layers.ARPRequest {
		return arpRequest{}, false
	}
	return arpRequest{
		senderMAC: net.HardwareAddr(arp.SourceHwAddress),
		senderIP:  net.IP(arp.SourceProtAddress),
		targetIP:  net.IP(arp.DstProtAddress),
	}, true
}

func buildARPReply(replyMAC, targetMAC net.HardwareAddr, req arpRequest) ([]byte, error) {
	eth := layers.Ethernet{
		SrcMAC:       replyMAC,
		DstMAC:       req.senderMAC,
		EthernetType: layers.EthernetTypeARP,
	}
	arp := layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPReply,
		SourceHwAddress:   replyMAC,
		SourceProtAddress: req.targetIP.To4(),
		DstHwAddress:      req.senderMAC,
		DstProtAddress:    req.senderIP.To4(),
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, &eth, &arp); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
