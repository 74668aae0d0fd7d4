package linkprobe

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowplane/p4ctl/internal/core"
	"github.com/flowplane/p4ctl/internal/model"
)

type recordingApp struct {
	mu   sync.Mutex
	seen []core.Event
}

func (a *recordingApp) Name() string { return "recorder" }

func (a *recordingApp) HandleEvent(ev core.Event) (core.Event, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.seen = append(a.seen, ev)
	return ev, true
}

func (a *recordingApp) waitForOne(t *testing.T) core.Event {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		a.mu.Lock()
		if len(a.seen) > 0 {
			ev := a.seen[0]
			a.mu.Unlock()
			return ev
		}
		a.mu.Unlock()
		time.Sleep(time.Millisecond)
	}
	t.Fatal("timed out waiting for event")
	return core.Event{}
}

func TestBuildProbeFrame_RoundTripsThroughParseProbeFrame(t *testing.T) {
	t.Parallel()

	src := net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	cp := model.ConnectPoint{Device: model.NewDeviceID("leaf1"), Port: 3}

	frame, err := buildProbeFrame(src, cp)
	require.NoError(t, err)

	got, ok := parseProbeFrame(frame)
	require.True(t, ok)
	assert.Equal(t, cp, got)
}

func TestParseProbeFrame_RejectsNonProbeEthertype(t *testing.T) {
	t.Parallel()

	eth := layers.Ethernet{
		SrcMAC:       net.HardwareAddr{1, 2, 3, 4, 5, 6},
		DstMAC:       broadcastMAC,
		EthernetType: layers.EthernetTypeIPv4,
	}
	buf := gopacket.NewSerializeBuffer()
	require.NoError(t, gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true}, &eth, gopacket.Payload("not a probe")))

	_, ok := parseProbeFrame(buf.Bytes())
	assert.False(t, ok)
}

func TestHandleEvent_ProbeFrameEmitsExactlyOneLinkDetected(t *testing.T) {
	t.Parallel()

	c := core.New(core.Config{EventBuffer: 4})
	recorder := &recordingApp{}
	c.Install(0, recorder)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	app := New(nil, c, Config{SrcMAC: net.HardwareAddr{0, 0, 0, 0, 0, 1}})

	srcCP := model.ConnectPoint{Device: model.NewDeviceID("leaf1"), Port: 1}
	dstCP := model.ConnectPoint{Device: model.NewDeviceID("leaf2"), Port: 2}
	frame, err := buildProbeFrame(app.srcMAC, srcCP)
	require.NoError(t, err)

	_, cont := app.HandleEvent(core.Event{
		Kind: core.EventPacketReceived,
		Packet: model.PacketReceived{
			Payload:         frame,
			ConnectPoint:    dstCP,
			HasConnectPoint: true,
		},
	})
	assert.True(t, cont)

	ev := recorder.waitForOne(t)
	require.Equal(t, core.EventLinkDetected, ev.Kind)
	assert.Equal(t, srcCP, ev.Link.Src)
	assert.Equal(t, dstCP, ev.Link.Dst)
}
