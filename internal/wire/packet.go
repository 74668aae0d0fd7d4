package wire

import (
	"encoding/binary"

	p4v1 "github.com/p4lang/p4runtime/go/p4/v1"

	"github.com/flowplane/p4ctl/internal/model"
	"github.com/flowplane/p4ctl/internal/pipeconf"
)

// EncodePacketOut builds a PacketOut whose payload is the raw bytes and
// whose metadata contains a single entry: the device's
// packet_out_egress_id, bit-width-adjusted from the port number, per
// spec.md §4.2.
func EncodePacketOut(pc *pipeconf.Pipeconf, port uint32, payload []byte) (*p4v1.PacketOut, error) {
	field, err := egressField(pc)
	if err != nil {
		return nil, err
	}

	var portBuf [4]byte
	binary.BigEndian.PutUint32(portBuf[:], port)

	return &p4v1.PacketOut{
		Payload: payload,
		Metadata: []*p4v1.PacketMetadata{
			{
				MetadataId: pc.PacketOutEgressID,
				Value:      Adjust(portBuf[:], int(field.BitWidth)),
			},
		},
	}, nil
}

// egressField resolves the packet_out controller-packet-metadata
// egress_port field's bit-width, by scanning the indexed P4Info for the
// matching metadata id. Pipeconf indexes tables/actions/meters/counters by
// name but not controller packet metadata (there is only ever one pair),
// so this walks the raw P4Info once.
func egressField(pc *pipeconf.Pipeconf) (*pipeconf.MatchFieldInfo, error) {
	for _, cpm := range pc.P4Info.GetControllerPacketMetadata() {
		if cpm.GetPreamble().GetName() != "packet_out" {
			continue
		}
		for _, m := range cpm.GetMetadata() {
			if m.GetId() == pc.PacketOutEgressID {
				return &pipeconf.MatchFieldInfo{ID: m.GetId(), Name: m.GetName(), BitWidth: m.GetBitwidth()}, nil
			}
		}
	}
	return nil, resolveFailed("packet_out egress_port field", pipeconf.ErrNotFound)
}

// DecodePacketIn enriches a raw PacketIn with the ingress ConnectPoint,
// recovered by finding the metadata entry whose id equals
// pc.PacketInIngressID and parsing its value as a big-endian unsigned
// integer. If no such entry is present, the returned PacketReceived has
// HasConnectPoint == false, per spec.md §4.2.
func DecodePacketIn(pc *pipeconf.Pipeconf, device model.DeviceID, in *p4v1.PacketIn) model.PacketReceived {
	pr := model.PacketReceived{
		Device:  device,
		Payload: in.GetPayload(),
	}

	for _, md := range in.GetMetadata() {
		pr.Metadata = append(pr.Metadata, model.PacketMetadata{ID: md.GetMetadataId(), Value: md.GetValue()})
		if md.GetMetadataId() == pc.PacketInIngressID {
			pr.ConnectPoint = model.ConnectPoint{Device: device, Port: beUint(md.GetValue())}
			pr.HasConnectPoint = true
		}
	}

	return pr
}

// beUint parses b as a big-endian unsigned integer, left-padding to 4 bytes
// (any width up to 4 bytes is supported, wider values are truncated to
// their trailing 4 bytes, mirroring Adjust's own truncation rule).
func beUint(b []byte) uint32 {
	var buf [4]byte
	if len(b) >= 4 {
		copy(buf[:], b[len(b)-4:])
	} else {
		copy(buf[4-len(b):], b)
	}
	return binary.BigEndian.Uint32(buf[:])
}
