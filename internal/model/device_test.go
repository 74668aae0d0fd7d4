package model

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDevice_DerivesIDFromNameWhenZero(t *testing.T) {
	t.Parallel()

	d := NewDevice("leaf1", 0, Bmv2Master{Address: "leaf1:9559"})
	assert.Equal(t, NewDeviceID("leaf1"), d.ID)
	assert.Equal(t, "leaf1", d.Name)
}

func TestNewDevice_KeepsExplicitID(t *testing.T) {
	t.Parallel()

	id := DeviceID(42)
	d := NewDevice("leaf1", id, Virtual{})
	assert.Equal(t, id, d.ID)
}

func TestAddPort_InsertsKeyedByNumber(t *testing.T) {
	t.Parallel()

	d := NewDevice("leaf1", 0, Virtual{})
	d.AddPort(Port{Name: "eth0", Number: 1, Interface: &Interface{Name: "eth0", IP: net.ParseIP("10.0.0.1")}})
	d.AddPort(Port{Name: "eth1", Number: 2})

	require.Len(t, d.Ports, 2)
	assert.Equal(t, "eth0", d.Ports[1].Name)
	assert.Equal(t, "10.0.0.1", d.Ports[1].Interface.IP.String())
}

func TestAddPort_ReplacesExistingNumber(t *testing.T) {
	t.Parallel()

	d := NewDevice("leaf1", 0, Virtual{})
	d.AddPort(Port{Name: "stale", Number: 1})
	d.AddPort(Port{Name: "fresh", Number: 1})

	require.Len(t, d.Ports, 1)
	assert.Equal(t, "fresh", d.Ports[1].Name)
}

func TestDeviceType_DiscriminatesBmv2StratumVirtual(t *testing.T) {
	t.Parallel()

	bmv2 := NewDevice("a", 0, Bmv2Master{Address: "a:1", DeviceID: 1, Pipeconf: NewPipeconfID("p")})
	stratum := NewDevice("b", 0, StratumMaster{Address: "b:1", DeviceID: 2, Pipeconf: NewPipeconfID("p")})
	virtual := NewDevice("c", 0, Virtual{})

	_, isBmv2 := bmv2.Type.(Bmv2Master)
	_, isStratum := stratum.Type.(StratumMaster)
	_, isVirtual := virtual.Type.(Virtual)

	assert.True(t, isBmv2)
	assert.True(t, isStratum)
	assert.True(t, isVirtual)
}

func TestDevice_PipeconfIDAndAddress(t *testing.T) {
	t.Parallel()

	bmv2 := NewDevice("a", 0, Bmv2Master{Address: "a:1", Pipeconf: NewPipeconfID("p")})
	id, ok := bmv2.PipeconfID()
	assert.True(t, ok)
	assert.Equal(t, NewPipeconfID("p"), id)
	addr, ok := bmv2.Address()
	assert.True(t, ok)
	assert.Equal(t, "a:1", addr)

	virtual := NewDevice("c", 0, Virtual{})
	_, ok = virtual.PipeconfID()
	assert.False(t, ok)
	_, ok = virtual.Address()
	assert.False(t, ok)
}
