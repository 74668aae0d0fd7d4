package p4rtclient

import (
	"context"
	"errors"
	"io"
	"sync"

	p4v1 "github.com/p4lang/p4runtime/go/p4/v1"
)

// ErrStreamClosed is returned by FakeStream.Send after CloseSend has been
// called. Recv instead returns io.EOF once CloseInbox has been called.
var ErrStreamClosed = errors.New("p4rtclient: fake stream closed")

// FakeStream is an in-memory StreamClient used by device/manager tests: it
// captures every message the code under test Sends, and lets the test feed
// messages for Recv to return, without a real gRPC transport. It matches
// the pack's preference for hand-written fakes over a mocking framework.
type FakeStream struct {
	mu     sync.Mutex
	sent   []*p4v1.StreamMessageRequest
	inbox  chan *p4v1.StreamMessageResponse
	closed bool
}

// NewFakeStream constructs a FakeStream with an inbox of the given
// capacity.
func NewFakeStream(inboxCapacity int) *FakeStream {
	return &FakeStream{inbox: make(chan *p4v1.StreamMessageResponse, inboxCapacity)}
}

func (s *FakeStream) Send(msg *p4v1.StreamMessageRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *FakeStream) Recv() (*p4v1.StreamMessageResponse, error) {
	msg, ok := <-s.inbox
	if !ok {
		return nil, io.EOF
	}
	return msg, nil
}

func (s *FakeStream) CloseSend() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Push enqueues a response for the next Recv call.
func (s *FakeStream) Push(resp *p4v1.StreamMessageResponse) {
	s.inbox <- resp
}

// CloseInbox makes subsequent Recv calls return io.EOF, simulating the
// transport ending.
func (s *FakeStream) CloseInbox() {
	close(s.inbox)
}

// Sent returns a snapshot of every message handed to Send, in order.
func (s *FakeStream) Sent() []*p4v1.StreamMessageRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*p4v1.StreamMessageRequest, len(s.sent))
	copy(out, s.sent)
	return out
}

// FakeClient is an in-memory Client for tests.
type FakeClient struct {
	mu     sync.Mutex
	Stream *FakeStream

	WriteFunc func(ctx context.Context, req *p4v1.WriteRequest) (*p4v1.WriteResponse, error)
	PipelineFunc func(ctx context.Context, req *p4v1.SetForwardingPipelineConfigRequest) (*p4v1.SetForwardingPipelineConfigResponse, error)

	StreamErr error
}

// NewFakeClient constructs a FakeClient with a fresh FakeStream.
func NewFakeClient() *FakeClient {
	return &FakeClient{Stream: NewFakeStream(64)}
}

func (c *FakeClient) StreamChannel(ctx context.Context) (StreamClient, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.StreamErr != nil {
		return nil, c.StreamErr
	}
	return c.Stream, nil
}

func (c *FakeClient) Write(ctx context.Context, req *p4v1.WriteRequest) (*p4v1.WriteResponse, error) {
	if c.WriteFunc != nil {
		return c.WriteFunc(ctx, req)
	}
	return &p4v1.WriteResponse{}, nil
}

func (c *FakeClient) SetForwardingPipelineConfig(ctx context.Context, req *p4v1.SetForwardingPipelineConfigRequest) (*p4v1.SetForwardingPipelineConfigResponse, error) {
	if c.PipelineFunc != nil {
		return c.PipelineFunc(ctx, req)
	}
	return &p4v1.SetForwardingPipelineConfigResponse{}, nil
}
