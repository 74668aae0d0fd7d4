package wire

import (
	"math/rand"
	"testing"

	p4v1 "github.com/p4lang/p4runtime/go/p4/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowplane/p4ctl/internal/model"
	"github.com/flowplane/p4ctl/internal/pipeconf"
)

const lpmP4Info = `
tables {
  preamble { id: 33554688 name: "MyIngress.ipv4_lpm" alias: "ipv4_lpm" }
  match_fields { id: 1 name: "hdr.ipv4.dstAddr" bitwidth: 32 match_type: LPM }
  match_fields { id: 2 name: "hdr.eth.srcAddr" bitwidth: 12 match_type: TERNARY }
}
actions {
  preamble { id: 16794911 name: "MyIngress.myTunnel_ingress" alias: "myTunnel_ingress" }
  params { id: 1 name: "dst_id" bitwidth: 32 }
}
actions {
  preamble { id: 16800567 name: "NoAction" alias: "NoAction" }
}
controller_packet_metadata {
  preamble { id: 1 name: "packet_in" }
  metadata { id: 1 name: "ingress_port" bitwidth: 9 }
}
controller_packet_metadata {
  preamble { id: 2 name: "packet_out" }
  metadata { id: 1 name: "egress_port" bitwidth: 9 }
}
`

func loadTestPipeconf(t *testing.T) *pipeconf.Pipeconf {
	t.Helper()
	pc, err := pipeconf.Load("MyIngress", []byte(lpmP4Info), nil)
	require.NoError(t, err)
	return pc
}

func TestAdjust_LengthIsExact(t *testing.T) {
	t.Parallel()

	rnd := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		w := rnd.Intn(64) + 1
		v := make([]byte, rnd.Intn(10))
		rnd.Read(v)

		got := Adjust(v, w)
		assert.Equal(t, (w+7)/8, len(got))
	}
}

func TestAdjust_PreservesValueWithinWidth(t *testing.T) {
	t.Parallel()

	// 0x0ABC fits comfortably in 12 bits.
	v := []byte{0x0A, 0xBC}
	got := Adjust(v, 12)
	assert.Equal(t, []byte{0x0A, 0xBC}, got)

	// Shorter than target width: left-padded with zero bytes.
	got = Adjust([]byte{0x64}, 32)
	assert.Equal(t, []byte{0, 0, 0, 0x64}, got)

	// Longer than target width: trailing bytes kept, leading zero padding dropped.
	got = Adjust([]byte{0x00, 0x00, 0x0A, 0xBC}, 12)
	assert.Equal(t, []byte{0x0A, 0xBC}, got)
}

// S1 — LPM flow install, per spec.md §8.
func TestEncodeFlow_LPMInstall(t *testing.T) {
	t.Parallel()
	pc := loadTestPipeconf(t)

	f := model.NewFlow("MyIngress", "ipv4_lpm",
		[]model.FlowMatch{{Name: "hdr.ipv4.dstAddr", Value: model.Lpm{Value: []byte{10, 0, 2, 2}, PrefixLen: 32}}},
		model.FlowAction{Name: "myTunnel_ingress", Params: []model.FlowActionParam{{Name: "dst_id", Value: []byte{100}}}},
		1, model.Insert,
	)

	entry, err := EncodeFlow(pc, f)
	require.NoError(t, err)

	assert.EqualValues(t, 33554688, entry.TableId)
	require.Len(t, entry.Match, 1)
	assert.EqualValues(t, 1, entry.Match[0].FieldId)
	lpm := entry.Match[0].GetLpm()
	require.NotNil(t, lpm)
	assert.Equal(t, []byte{10, 0, 2, 2}, lpm.Value)
	assert.EqualValues(t, 32, lpm.PrefixLen)

	action := entry.Action.GetAction()
	require.NotNil(t, action)
	assert.EqualValues(t, 16794911, action.ActionId)
	require.Len(t, action.Params, 1)
	assert.EqualValues(t, 1, action.Params[0].ParamId)
	assert.Equal(t, []byte{0, 0, 0, 100}, action.Params[0].Value)

	assert.EqualValues(t, 1, entry.Priority)
}

// S2 — ternary value truncation, per spec.md §8.
func TestEncodeFlow_TernaryTruncation(t *testing.T) {
	t.Parallel()
	pc := loadTestPipeconf(t)

	f := model.NewFlow("MyIngress", "ipv4_lpm",
		[]model.FlowMatch{{Name: "hdr.eth.srcAddr", Value: model.Ternary{
			Value: []byte{0x0A, 0xBC},
			Mask:  []byte{0xFF, 0xFF},
		}}},
		model.FlowAction{Name: "NoAction"},
		1, model.Insert,
	)

	entry, err := EncodeFlow(pc, f)
	require.NoError(t, err)

	ternary := entry.Match[0].GetTernary()
	require.NotNil(t, ternary)
	assert.Equal(t, []byte{0x0A, 0xBC}, ternary.Value)
	assert.Equal(t, []byte{0x0F, 0xFF}, ternary.Mask)
}

func TestEncodeFlow_NoActionNeverQualified(t *testing.T) {
	t.Parallel()
	pc := loadTestPipeconf(t)

	f := model.NewFlow("MyIngress", "ipv4_lpm", nil, model.FlowAction{Name: "NoAction"}, 1, model.Insert)
	entry, err := EncodeFlow(pc, f)
	require.NoError(t, err)
	assert.EqualValues(t, 16800567, entry.Action.GetAction().ActionId)
}

func TestEncodeFlow_MatchTypeMismatch(t *testing.T) {
	t.Parallel()
	pc := loadTestPipeconf(t)

	f := model.NewFlow("MyIngress", "ipv4_lpm",
		[]model.FlowMatch{{Name: "hdr.ipv4.dstAddr", Value: model.Exact{Value: []byte{10, 0, 2, 2}}}},
		model.FlowAction{Name: "NoAction"}, 1, model.Insert,
	)

	_, err := EncodeFlow(pc, f)
	require.Error(t, err)
	var encErr *EncodingError
	require.ErrorAs(t, err, &encErr)
	assert.Equal(t, "MatchTypeMismatch", encErr.Kind)
}

// S3 — packet-out egress metadata, per spec.md §8.
func TestEncodePacketOut_SetsEgressMetadata(t *testing.T) {
	t.Parallel()
	pc := loadTestPipeconf(t)

	out, err := EncodePacketOut(pc, 2, []byte("hello"))
	require.NoError(t, err)

	require.Len(t, out.Metadata, 1)
	assert.EqualValues(t, pc.PacketOutEgressID, out.Metadata[0].MetadataId)
	assert.Equal(t, []byte{0x00, 0x02}, out.Metadata[0].Value) // 9-bit field -> 2 bytes
	assert.Equal(t, []byte("hello"), out.Payload)
}

// property 6 — packet-in port recovery.
func TestDecodePacketIn_RecoversIngressConnectPoint(t *testing.T) {
	t.Parallel()
	pc := loadTestPipeconf(t)

	in := &p4v1.PacketIn{
		Payload: []byte{1, 2, 3},
		Metadata: []*p4v1.PacketMetadata{
			{MetadataId: pc.PacketInIngressID, Value: []byte{0x00, 0x01}},
		},
	}

	pr := DecodePacketIn(pc, model.DeviceID(7), in)
	require.True(t, pr.HasConnectPoint)
	assert.EqualValues(t, 1, pr.ConnectPoint.Port)
	assert.Equal(t, model.DeviceID(7), pr.ConnectPoint.Device)
}

func TestDecodePacketIn_NoIngressMetadata(t *testing.T) {
	t.Parallel()
	pc := loadTestPipeconf(t)

	in := &p4v1.PacketIn{Payload: []byte{1}}
	pr := DecodePacketIn(pc, model.DeviceID(1), in)
	assert.False(t, pr.HasConnectPoint)
}
