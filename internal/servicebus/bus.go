// Package servicebus is the name-routed dispatcher for northbound
// operations described in spec.md §4.7: services register under a static
// name, a Request names a target/action/path/params, and Send streams
// back Responses multiplexed through a reply channel.
package servicebus

import (
	"context"
	"sync"
)

// Request is the generic shape every service receives, independent of
// the frontend (HTTP, WS, CLI) that produced it.
type Request struct {
	Source string
	Target string
	Action string
	Path   []string
	Params map[string]string
	Body   []byte
	Option Option
}

// Option configures how Send multiplexes a service's responses.
type Option struct {
	// QueueSizeHint bounds the reply channel's buffer. Zero means 1 (no
	// buffering beyond the in-flight response).
	QueueSizeHint int
}

// Response is one item of a service's reply stream.
type Response struct {
	Body []byte
	Err  error
}

// EncodeTarget lets a frontend serialize a service's result into the
// wire format it needs (JSON, pretty-printed JSON, …), keeping the bus
// itself transport-agnostic, per spec.md §4.7.
type EncodeTarget interface {
	Encode(v any) ([]byte, error)
}

// Service is installed under its own static Name and handles every
// Request routed to that name. Process returns a channel of Responses
// (closed when the service is done replying) and an optional pointer to
// an upper bound on the number of responses, for callers that want to
// size buffers ahead of time.
type Service interface {
	Name() string
	Process(ctx context.Context, req Request) (<-chan Response, *int, error)
}

// Bus routes Requests to installed Services by name.
type Bus struct {
	mu       sync.RWMutex
	services map[string]Service
}

// New constructs an empty Bus.
func New() *Bus {
	return &Bus{services: make(map[string]Service)}
}

// InstallService registers svc under its own Name(). A duplicate name is
// rejected with *ErrDuplicateService.
func (b *Bus) InstallService(svc Service) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	name := svc.Name()
	if _, exists := b.services[name]; exists {
		return &ErrDuplicateService{Name: name}
	}
	b.services[name] = svc
	return nil
}

// Send finds the target service and delegates to its Process, per
// spec.md §4.7, forwarding the service's responses through a reply
// channel buffered to req.Option.QueueSizeHint. A missing target returns
// *ErrServiceNotFound immediately without calling the service.
func (b *Bus) Send(ctx context.Context, target string, req Request) (<-chan Response, *int, error) {
	b.mu.RLock()
	svc, ok := b.services[target]
	b.mu.RUnlock()

	if !ok {
		return nil, nil, &ErrServiceNotFound{Name: target}
	}

	req.Target = target
	in, hint, err := svc.Process(ctx, req)
	if err != nil || in == nil {
		return in, hint, err
	}
	size := req.Option.QueueSizeHint
	if size <= 0 {
		size = 1
	}
	reply := make(chan Response, size)
	go func() {
		defer close(reply)
		for r := range in {
			reply <- r
		}
	}()
	return reply, hint, nil
}
