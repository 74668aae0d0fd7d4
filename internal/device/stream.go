package device

import (
	p4v1 "github.com/p4lang/p4runtime/go/p4/v1"

	"github.com/flowplane/p4ctl/internal/p4rtclient"
)

// StreamSender is the shareable send half of a device's StreamChannel.
// Multiple callers may hold a StreamSender concurrently; sends are
// serialized through the connection's bounded queue rather than calling
// the underlying stream directly, since gRPC streams do not tolerate
// concurrent Send calls.
type StreamSender struct {
	stream p4rtclient.StreamClient
	queue  chan *p4v1.StreamMessageRequest
}

// rawSend writes directly to the underlying stream. Only the connection's
// single drain goroutine may call this.
func (s *StreamSender) rawSend(req *p4v1.StreamMessageRequest) error {
	return s.stream.Send(req)
}

// Receiver is the one-shot receive half of a device's StreamChannel,
// obtained via Connection.TakeReceiver. It is single-owner: the
// connection manager holds it and runs the demultiplex loop, routing
// arbitration updates back into Connection.ApplyMasterUpdate and packet-in
// messages to its own publisher.
type Receiver struct {
	conn   *Connection
	stream p4rtclient.StreamClient
}

// Recv blocks for the next message from the device.
func (r *Receiver) Recv() (*p4v1.StreamMessageResponse, error) {
	return r.stream.Recv()
}

// Device returns the owning connection, so the manager can call back into
// ApplyMasterUpdate or MarkDisconnected.
func (r *Receiver) Device() *Connection {
	return r.conn
}
