package core

import (
	"context"

	"github.com/flowplane/p4ctl/internal/servicebus"
)

// Service adapts Core onto the service bus described in spec.md §4.7,
// under the static name "core". Every request is forwarded through the
// driver's northbound channel so reads of device and pipeconf state run
// on the same goroutine that owns them, rather than racing Run's select
// loop from an HTTP handler's goroutine.
type Service struct {
	core *Core
}

// NewService returns a servicebus.Service wrapping c. Install it on a
// servicebus.Bus with bus.InstallService to expose it over the
// northbound frontends.
func NewService(c *Core) *Service {
	return &Service{core: c}
}

func (s *Service) Name() string { return "core" }

// Process forwards req onto the driver as a NorthboundRequest and
// streams back its single reply as one servicebus.Response.
func (s *Service) Process(ctx context.Context, req servicebus.Request) (<-chan servicebus.Response, *int, error) {
	reply := make(chan NorthboundResponse, 1)
	s.core.Northbound(NorthboundRequest{
		Service: req.Target,
		Action:  req.Action,
		Params:  req.Body,
		Reply:   reply,
	})

	out := make(chan servicebus.Response, 1)
	one := 1
	go func() {
		defer close(out)
		select {
		case resp := <-reply:
			out <- servicebus.Response{Body: resp.Body, Err: resp.Err}
		case <-ctx.Done():
			out <- servicebus.Response{Err: ctx.Err()}
		}
	}()
	return out, &one, nil
}
