package device

import (
	"context"
	"log/slog"
	"sync"

	"github.com/cenkalti/backoff/v4"
	p4v1 "github.com/p4lang/p4runtime/go/p4/v1"
	"google.golang.org/grpc"

	"github.com/flowplane/p4ctl/internal/model"
	"github.com/flowplane/p4ctl/internal/p4rtclient"
	"github.com/flowplane/p4ctl/internal/pipeconf"
	"github.com/flowplane/p4ctl/internal/wire"
)

// DefaultSendQueueSize is the default depth of a device's packet-out send
// queue before SendPacketOut starts applying backpressure, per spec.md §5.
const DefaultSendQueueSize = 4096

// DialOptions configures Dial and the stream it opens.
type DialOptions struct {
	// ElectionID, if non-nil, requests mastership with this 128-bit id. A
	// nil ElectionID means NoElect: the connection is read-only and write
	// operations are rejected.
	ElectionID *ElectionID

	// SendQueueSize bounds the packet-out send queue. Zero means
	// DefaultSendQueueSize.
	SendQueueSize int

	// Backoff, if non-nil, retries a failed dial with this exponential
	// backoff policy instead of failing immediately. Grounded on
	// gnmitunnel.Client.Run's reconnect loop.
	Backoff *backoff.ExponentialBackOff

	GRPCDialOptions []grpc.DialOption
}

// Connection owns one P4Runtime device's gRPC channel and, once
// OpenStream is called, its bidirectional StreamChannel. The connection
// manager is its exclusive owner; see spec.md §3 "Ownership".
type Connection struct {
	log     *slog.Logger
	Name    string
	Address string

	client   p4rtclient.Client
	grpcConn *grpc.ClientConn
	gnmiConn *grpc.ClientConn

	mu            sync.Mutex
	state         State
	electionID    *ElectionID
	stream        p4rtclient.StreamClient
	sender        *StreamSender
	receiverTaken bool
	pipeconf      *pipeconf.Pipeconf

	sendQueue chan *p4v1.StreamMessageRequest
	sendDone  chan struct{}
}

// Wrap builds a Connection around an already-established p4rtclient.Client,
// bypassing the gRPC dial. The connection manager's tests use this to wire
// in a p4rtclient.FakeClient.
func Wrap(logger *slog.Logger, name, address string, client p4rtclient.Client, opts DialOptions) *Connection {
	return newConnection(logger, name, address, client, nil, opts)
}

// Dial establishes the P4Runtime gRPC transport for a device and returns a
// Connection in state Disconnected, then NoElect or Elect depending on
// opts.ElectionID, per spec.md §3.
func Dial(ctx context.Context, logger *slog.Logger, name, address string, opts DialOptions) (*Connection, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("device", name, "address", address)

	dial := func() (*grpc.ClientConn, p4rtclient.Client, error) {
		return p4rtclient.Dial(ctx, address, opts.GRPCDialOptions...)
	}

	var conn *grpc.ClientConn
	var client p4rtclient.Client
	var err error

	if opts.Backoff != nil {
		opts.Backoff.Reset()
		err = backoff.Retry(func() error {
			conn, client, err = dial()
			return err
		}, opts.Backoff)
	} else {
		conn, client, err = dial()
	}
	if err != nil {
		return nil, &TransportError{Device: name, Err: err}
	}

	c := newConnection(logger, name, address, client, conn, opts)
	logger.Info("device dialed", "state", c.state)
	return c, nil
}

// newConnection builds a Connection around an already-established client,
// factored out of Dial so tests can wire in a p4rtclient.FakeClient
// without a real gRPC dial.
func newConnection(logger *slog.Logger, name, address string, client p4rtclient.Client, conn *grpc.ClientConn, opts DialOptions) *Connection {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Connection{
		log:      logger,
		Name:     name,
		Address:  address,
		client:   client,
		grpcConn: conn,
		state:    Disconnected,
	}

	queueSize := opts.SendQueueSize
	if queueSize <= 0 {
		queueSize = DefaultSendQueueSize
	}
	c.sendQueue = make(chan *p4v1.StreamMessageRequest, queueSize)

	if opts.ElectionID != nil {
		c.electionID = opts.ElectionID
		c.state = Elect
	} else {
		c.state = NoElect
	}

	return c
}

// State returns the connection's current lifecycle state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Pipeconf returns the pipeconf currently pushed to the device, if any.
func (c *Connection) Pipeconf() *pipeconf.Pipeconf {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pipeconf
}

// OpenStream opens the bidirectional StreamChannel, idempotently: a second
// call while already streaming returns the same StreamSender, per spec.md
// §4.3 and §8 property 5.
func (c *Connection) OpenStream(ctx context.Context) (*StreamSender, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stream != nil {
		return c.sender, nil
	}

	stream, err := c.client.StreamChannel(ctx)
	if err != nil {
		return nil, &TransportError{Device: c.Name, Err: err}
	}
	c.stream = stream

	req := &p4v1.StreamMessageRequest{
		Update: &p4v1.StreamMessageRequest_Arbitration{
			Arbitration: c.arbitrationUpdateLocked(),
		},
	}
	if err := stream.Send(req); err != nil {
		c.stream = nil
		return nil, &TransportError{Device: c.Name, Err: err}
	}

	c.sendDone = make(chan struct{})
	sender := &StreamSender{stream: c.stream, queue: c.sendQueue}
	c.sender = sender
	go c.drainSendQueue(sender)

	c.log.Info("stream opened", "election_id", c.electionID)
	return sender, nil
}

func (c *Connection) arbitrationUpdateLocked() *p4v1.MasterArbitrationUpdate {
	upd := &p4v1.MasterArbitrationUpdate{}
	if c.electionID != nil {
		upd.ElectionId = &p4v1.Uint128{High: c.electionID.High, Low: c.electionID.Low}
	}
	return upd
}

// drainSendQueue serializes packet-out writes onto the single underlying
// stream, providing the backpressure point described in spec.md §5: once
// the bounded sendQueue fills, SendPacketOut blocks rather than the stream
// buffer growing unbounded.
func (c *Connection) drainSendQueue(sender *StreamSender) {
	for {
		select {
		case msg, ok := <-c.sendQueue:
			if !ok {
				return
			}
			if err := sender.rawSend(msg); err != nil {
				c.log.Error("packet-out send failed", "error", err)
				return
			}
		case <-c.sendDoneChan():
			return
		}
	}
}

func (c *Connection) sendDoneChan() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sendDone
}

// TakeReceiver transfers ownership of the stream's response side to the
// caller (the connection manager), exactly once. A nil, false result means
// the receiver was already taken or no stream has been opened yet, per
// spec.md §4.3 and §5 ("receiver is not [clonable] — it is single-owner").
func (c *Connection) TakeReceiver() (*Receiver, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stream == nil || c.receiverTaken {
		return nil, false
	}
	c.receiverTaken = true
	return &Receiver{conn: c, stream: c.stream}, true
}

// SetPipelineConfig requires Master; it sends a
// SetForwardingPipelineConfig with action VerifyAndCommit and, on success,
// transitions Master -> Ready.
func (c *Connection) SetPipelineConfig(ctx context.Context, pc *pipeconf.Pipeconf) error {
	c.mu.Lock()
	if c.state != Master {
		state := c.state
		c.mu.Unlock()
		return &NotMasterError{Device: c.Name, State: state}
	}
	election := c.electionID
	c.mu.Unlock()

	req := &p4v1.SetForwardingPipelineConfigRequest{
		ElectionId: electionProto(election),
		Action:     p4v1.SetForwardingPipelineConfigRequest_VERIFY_AND_COMMIT,
		Config: &p4v1.ForwardingPipelineConfig{
			P4Info:         pc.P4Info,
			P4DeviceConfig: pc.DeviceConfig,
		},
	}

	if _, err := c.client.SetForwardingPipelineConfig(ctx, req); err != nil {
		return &TransportError{Device: c.Name, Err: err}
	}

	c.mu.Lock()
	c.pipeconf = pc
	c.state = Ready
	c.mu.Unlock()

	c.log.Info("pipeline config pushed", "pipeconf", pc.Name)
	return nil
}

// SendPacketOut encodes a packet-out against the device's current pipeconf
// and enqueues it on the send queue. It requires a pipeconf to already be
// set and an open stream on a connection that is not Disconnected.
func (c *Connection) SendPacketOut(port uint32, payload []byte) error {
	c.mu.Lock()
	pc := c.pipeconf
	queue := c.sendQueue
	stream := c.stream
	state := c.state
	c.mu.Unlock()

	if pc == nil {
		return ErrPipeconfUnset
	}
	if stream == nil || state == Disconnected {
		return ErrStreamClosed
	}

	out, err := wire.EncodePacketOut(pc, port, payload)
	if err != nil {
		return err
	}

	req := &p4v1.StreamMessageRequest{
		Update: &p4v1.StreamMessageRequest_Packet{Packet: out},
	}

	select {
	case queue <- req:
		return nil
	default:
	}
	// Queue saturated: block, applying backpressure as spec.md §5 requires.
	queue <- req
	return nil
}

// WriteEntity writes a single Insert/Modify/Delete update. It requires
// Master and carries the current election id; in any other state it
// returns NotMasterError without issuing network I/O, per spec.md §8
// property 9.
func (c *Connection) WriteEntity(ctx context.Context, entity *p4v1.Entity, op model.UpdateType) (*p4v1.WriteResponse, error) {
	c.mu.Lock()
	if c.state != Master {
		state := c.state
		c.mu.Unlock()
		return nil, &NotMasterError{Device: c.Name, State: state}
	}
	election := c.electionID
	c.mu.Unlock()

	req := &p4v1.WriteRequest{
		ElectionId: electionProto(election),
		Updates: []*p4v1.Update{
			{
				Type:   wire.UpdateType(op),
				Entity: entity,
			},
		},
	}

	resp, err := c.client.Write(ctx, req)
	if err != nil {
		return nil, &TransportError{Device: c.Name, Err: err}
	}
	return resp, nil
}

// ApplyMasterUpdate interprets a received ArbitrationUpdate: it transitions
// to Master when the update's status is OK (or absent), adopting the
// election id the update carries, else -> NotMaster, per spec.md §4.3.
func (c *Connection) ApplyMasterUpdate(upd *p4v1.MasterArbitrationUpdate) (becameMaster bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	won := upd.GetStatus() == nil || upd.GetStatus().GetCode() == 0
	if won {
		c.state = Master
		if id := upd.GetElectionId(); id != nil {
			c.electionID = &ElectionID{High: id.GetHigh(), Low: id.GetLow()}
		}
		return true
	}

	c.state = NotMaster
	return false
}

// MarkDisconnected transitions the connection to Disconnected after a
// transport failure, per spec.md §3: "any transport error -> Disconnected
// (device considered lost; removed from manager)."
func (c *Connection) MarkDisconnected() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = Disconnected
	if c.sendDone != nil {
		select {
		case <-c.sendDone:
		default:
			close(c.sendDone)
		}
	}
}

// SetGNMI attaches a Stratum device's companion gNMI channel, dialed
// separately from the P4Runtime channel but sharing the same host:port.
func (c *Connection) SetGNMI(conn *grpc.ClientConn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gnmiConn = conn
}

// GNMI returns the companion gNMI channel, if one was attached via SetGNMI.
func (c *Connection) GNMI() *grpc.ClientConn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gnmiConn
}

// Close tears down the underlying gRPC channel(s).
func (c *Connection) Close() error {
	c.MarkDisconnected()
	c.mu.Lock()
	gnmiConn := c.gnmiConn
	c.mu.Unlock()
	if gnmiConn != nil {
		gnmiConn.Close()
	}
	if c.grpcConn != nil {
		return c.grpcConn.Close()
	}
	return nil
}

func electionProto(e *ElectionID) *p4v1.Uint128 {
	if e == nil {
		return nil
	}
	return &p4v1.Uint128{High: e.High, Low: e.Low}
}
