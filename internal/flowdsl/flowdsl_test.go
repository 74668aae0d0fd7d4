package flowdsl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowplane/p4ctl/internal/model"
)

func TestBuild_ProducesCanonicalizedFlow(t *testing.T) {
	t.Parallel()

	flow := Flow("ipv4_lpm").
		Pipe("ingress").
		Lpm("hdr.ipv4.dst_addr", []byte{10, 0, 0, 0}, 24).
		Exact("meta.vrf", []byte{0, 1}).
		Action("forward").
		Param("port", []byte{0, 0, 0, 1}).
		Priority(10).
		Metadata(42).
		Build()

	assert.Equal(t, "ipv4_lpm", flow.Table.Name)
	assert.Equal(t, "ingress", flow.Pipe)
	assert.Equal(t, int32(10), flow.Priority)
	assert.Equal(t, uint64(42), flow.Metadata)
	assert.Equal(t, model.Insert, flow.Op)
	assert.Equal(t, "forward", flow.Action.Name)
	require.Len(t, flow.Table.Matches, 2)
	// matches sorted by field name regardless of call order
	assert.Equal(t, "hdr.ipv4.dst_addr", flow.Table.Matches[0].Name)
	assert.Equal(t, "meta.vrf", flow.Table.Matches[1].Name)
}

func TestAsDelete_SetsDeleteVerb(t *testing.T) {
	t.Parallel()

	flow := Flow("ipv4_lpm").Exact("hdr.ipv4.dst_addr", []byte{1}).Action("drop").AsDelete().Build()
	assert.Equal(t, model.Delete, flow.Op)
}
