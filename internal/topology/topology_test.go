package topology

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowplane/p4ctl/internal/core"
	"github.com/flowplane/p4ctl/internal/model"
)

func TestHandleEvent_LinkDetectedAssignsCompactIndices(t *testing.T) {
	t.Parallel()

	store := New(nil)
	leaf1 := model.NewDeviceID("leaf1")
	leaf2 := model.NewDeviceID("leaf2")

	_, cont := store.HandleEvent(core.Event{
		Kind: core.EventLinkDetected,
		Link: model.Link{
			Src: model.ConnectPoint{Device: leaf1, Port: 1},
			Dst: model.ConnectPoint{Device: leaf2, Port: 1},
		},
	})
	assert.True(t, cont, "topology never consumes")

	links := store.LinksFrom(leaf1)
	require.Len(t, links, 1)
	assert.Equal(t, leaf2, links[0].Dst.Device)
}

func TestRemoveDevice_ForgetsDeviceAndIncidentLinks(t *testing.T) {
	t.Parallel()

	c := core.New(core.Config{EventBuffer: 16})
	store := New(c)

	leaf1 := model.NewDeviceID("leaf1")
	leaf2 := model.NewDeviceID("leaf2")
	store.addLink(model.Link{
		Src: model.ConnectPoint{Device: leaf1, Port: 1},
		Dst: model.ConnectPoint{Device: leaf2, Port: 1},
	})

	store.RemoveDevice(leaf1)

	_, stillThere := store.index[leaf1]
	assert.False(t, stillThere)
	assert.Empty(t, store.LinksFrom(leaf2))
}

func TestHostByIP_FindsMatchingHost(t *testing.T) {
	t.Parallel()

	store := New(nil)
	leaf1 := model.NewDeviceID("leaf1")
	host := model.Host{
		MAC:      net.HardwareAddr{0, 1, 2, 3, 4, 5},
		IP:       net.ParseIP("10.0.0.5"),
		Location: model.ConnectPoint{Device: leaf1, Port: 3},
	}
	store.addHost(host)

	found, ok := store.HostByIP(net.ParseIP("10.0.0.5"))
	require.True(t, ok)
	assert.True(t, found.Equal(host))
}
