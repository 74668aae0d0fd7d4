// Package p4rtclient defines the boundary between the controller core and
// the concrete P4Runtime gRPC stub. spec.md §1 treats that stub as an
// external collaborator, "specified only by the interface the core
// requires" — this package is that interface, plus a thin wrapper around
// the real generated client for production use.
package p4rtclient

import (
	"context"
	"fmt"

	p4v1 "github.com/p4lang/p4runtime/go/p4/v1"
	"google.golang.org/grpc"
)

// Client is the subset of the generated p4v1.P4RuntimeClient the device
// connection layer drives.
type Client interface {
	StreamChannel(ctx context.Context) (StreamClient, error)
	Write(ctx context.Context, req *p4v1.WriteRequest) (*p4v1.WriteResponse, error)
	SetForwardingPipelineConfig(ctx context.Context, req *p4v1.SetForwardingPipelineConfigRequest) (*p4v1.SetForwardingPipelineConfigResponse, error)
}

// StreamClient is the bidirectional StreamChannel handle: send arbitration
// updates and packet-outs, receive arbitration/packet/digest/error
// messages. It mirrors the shape grpc.ClientStream generated code exposes.
type StreamClient interface {
	Send(*p4v1.StreamMessageRequest) error
	Recv() (*p4v1.StreamMessageResponse, error)
	CloseSend() error
}

// grpcClient wraps a real *grpc.ClientConn via the generated
// p4v1.NewP4RuntimeClient stub.
type grpcClient struct {
	inner p4v1.P4RuntimeClient
}

// NewGRPCClient returns a Client backed by a live gRPC connection.
func NewGRPCClient(conn *grpc.ClientConn) Client {
	return &grpcClient{inner: p4v1.NewP4RuntimeClient(conn)}
}

func (c *grpcClient) StreamChannel(ctx context.Context) (StreamClient, error) {
	stream, err := c.inner.StreamChannel(ctx)
	if err != nil {
		return nil, fmt.Errorf("p4rtclient: open StreamChannel: %w", err)
	}
	return stream, nil
}

func (c *grpcClient) Write(ctx context.Context, req *p4v1.WriteRequest) (*p4v1.WriteResponse, error) {
	return c.inner.Write(ctx, req)
}

func (c *grpcClient) SetForwardingPipelineConfig(ctx context.Context, req *p4v1.SetForwardingPipelineConfigRequest) (*p4v1.SetForwardingPipelineConfigResponse, error) {
	return c.inner.SetForwardingPipelineConfig(ctx, req)
}

// Dial opens a gRPC connection to a P4Runtime-speaking device at address
// and wraps it as a Client. Callers that want a retrying dial should wrap
// this with the backoff loop in internal/device.
func Dial(ctx context.Context, address string, opts ...grpc.DialOption) (*grpc.ClientConn, Client, error) {
	conn, err := grpc.NewClient(address, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("p4rtclient: dial %s: %w", address, err)
	}
	return conn, NewGRPCClient(conn), nil
}
