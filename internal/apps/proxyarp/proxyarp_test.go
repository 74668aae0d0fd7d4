package proxyarp

import (
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowplane/p4ctl/internal/app"
	"github.com/flowplane/p4ctl/internal/core"
	"github.com/flowplane/p4ctl/internal/manager"
	"github.com/flowplane/p4ctl/internal/model"
)

func buildARPRequestFrame(t *testing.T, senderMAC net.HardwareAddr, senderIP, targetIP net.IP) []byte {
	t.Helper()
	eth := layers.Ethernet{
		SrcMAC:       senderMAC,
		DstMAC:       net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
		EthernetType: layers.EthernetTypeARP,
	}
	arp := layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   senderMAC,
		SourceProtAddress: senderIP.To4(),
		DstHwAddress:      net.HardwareAddr{0, 0, 0, 0, 0, 0},
		DstProtAddress:    targetIP.To4(),
	}
	buf := gopacket.NewSerializeBuffer()
	require.NoError(t, gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true}, &eth, &arp))
	return buf.Bytes()
}

func TestParseARPRequest_ExtractsSenderAndTarget(t *testing.T) {
	t.Parallel()

	senderMAC := net.HardwareAddr{0x02, 0, 0, 0, 0, 1}
	frame := buildARPRequestFrame(t, senderMAC, net.ParseIP("10.0.0.1"), net.ParseIP("10.0.0.2"))

	req, ok := parseARPRequest(frame)
	require.True(t, ok)
	assert.Equal(t, senderMAC.String(), req.senderMAC.String())
	assert.True(t, req.targetIP.Equal(net.ParseIP("10.0.0.2")))
}

func TestHandleEvent_UnknownHostPropagatesWithoutReplying(t *testing.T) {
	t.Parallel()

	store := app.NewStore()
	mgr := manager.New(nil)
	a, err := Install(store, mgr, net.HardwareAddr{0, 0, 0, 0, 0, 9}, nil)
	require.NoError(t, err)

	frame := buildARPRequestFrame(t, net.HardwareAddr{1, 2, 3, 4, 5, 6}, net.ParseIP("10.0.0.1"), net.ParseIP("10.0.0.99"))

	_, cont := a.HandleEvent(core.Event{
		Kind: core.EventPacketReceived,
		Packet: model.PacketReceived{
			Payload:         frame,
			HasConnectPoint: true,
			ConnectPoint:    model.ConnectPoint{Device: model.NewDeviceID("leaf1"), Port: 1},
		},
	})
	assert.True(t, cont, "no known host for the target IP, so the ARP request must propagate")
}

func TestHandleEvent_NonARPPacketPropagates(t *testing.T) {
	t.Parallel()

	store := app.NewStore()
	mgr := manager.New(nil)
	a, err := Install(store, mgr, net.HardwareAddr{0, 0, 0, 0, 0, 9}, nil)
	require.NoError(t, err)

	_, cont := a.HandleEvent(core.Event{
		Kind: core.EventPacketReceived,
		Packet: model.PacketReceived{
			Payload:         []byte{0x01, 0x02, 0x03},
			HasConnectPoint: true,
		},
	})
	assert.True(t, cont)
}
