package wire

import (
	p4v1 "github.com/p4lang/p4runtime/go/p4/v1"

	"github.com/flowplane/p4ctl/internal/model"
	"github.com/flowplane/p4ctl/internal/pipeconf"
)

// EncodeMeter translates a model.Meter into a MeterEntry against pc.
func EncodeMeter(pc *pipeconf.Pipeconf, m model.Meter) (*p4v1.MeterEntry, error) {
	info, err := pc.ResolveMeter(m.Name)
	if err != nil {
		return nil, resolveFailed("meter "+m.Name, err)
	}
	return &p4v1.MeterEntry{
		MeterId: info.ID,
		Index:   &p4v1.Index{Index: m.Index},
		Config: &p4v1.MeterConfig{
			Cir:    m.CIR,
			Cburst: m.CBurst,
			Pir:    m.PIR,
			Pburst: m.PBurst,
		},
	}, nil
}

// EncodeMulticastGroup translates a model.MulticastGroup into a
// MulticastGroupEntry wrapped in a PacketReplicationEngineEntry, the
// P4Runtime envelope for multicast/clone entities.
func EncodeMulticastGroup(g model.MulticastGroup) *p4v1.PacketReplicationEngineEntry {
	replicas := make([]*p4v1.Replica, 0, len(g.Replicas))
	for _, r := range g.Replicas {
		replicas = append(replicas, &p4v1.Replica{EgressPort: r.Port, Instance: r.Instance})
	}
	return &p4v1.PacketReplicationEngineEntry{
		Type: &p4v1.PacketReplicationEngineEntry_MulticastGroupEntry{
			MulticastGroupEntry: &p4v1.MulticastGroupEntry{
				MulticastGroupId: g.GroupID,
				Replicas:         replicas,
			},
		},
	}
}
