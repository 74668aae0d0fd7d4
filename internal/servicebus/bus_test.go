package servicebus

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// dummyService is the scenario-S5 fixture from spec.md §8: an internal
// counter "size", GET streams "0".."size-1", POST "set" changes size.
type dummyService struct {
	size int
}

func (s *dummyService) Name() string { return "dummy" }

func (s *dummyService) Process(ctx context.Context, req Request) (<-chan Response, *int, error) {
	switch req.Action {
	case "get":
		n := s.size
		out := make(chan Response, n)
		for i := 0; i < n; i++ {
			out <- Response{Body: []byte(fmt.Sprintf("%d", i))}
		}
		close(out)
		return out, &n, nil
	case "set":
		s.size = len(req.Body)
		out := make(chan Response)
		close(out)
		zero := 0
		return out, &zero, nil
	default:
		return nil, nil, &ErrActionNotFound{Name: req.Action}
	}
}

func drain(t *testing.T, ch <-chan Response) []string {
	t.Helper()
	var out []string
	for r := range ch {
		require.NoError(t, r.Err)
		out = append(out, string(r.Body))
	}
	return out
}

func TestSend_StreamsDummyServiceResponses(t *testing.T) {
	t.Parallel()

	bus := New()
	svc := &dummyService{size: 3}
	require.NoError(t, bus.InstallService(svc))

	ch, hint, err := bus.Send(context.Background(), "dummy", Request{Action: "get"})
	require.NoError(t, err)
	require.NotNil(t, hint)
	assert.Equal(t, 3, *hint)
	assert.Equal(t, []string{"0", "1", "2"}, drain(t, ch))

	_, _, err = bus.Send(context.Background(), "dummy", Request{Action: "set", Body: make([]byte, 5)})
	require.NoError(t, err)

	ch, _, err = bus.Send(context.Background(), "dummy", Request{Action: "get"})
	require.NoError(t, err)
	assert.Equal(t, []string{"0", "1", "2", "3", "4"}, drain(t, ch))
}

func TestSend_UnknownActionReturnsServiceError(t *testing.T) {
	t.Parallel()

	bus := New()
	require.NoError(t, bus.InstallService(&dummyService{size: 1}))

	_, _, err := bus.Send(context.Background(), "dummy", Request{Action: "bogus"})
	require.Error(t, err)
	var notFound *ErrActionNotFound
	require.ErrorAs(t, err, &notFound)
}

func TestSend_UnknownTargetReturnsServiceNotFound(t *testing.T) {
	t.Parallel()

	bus := New()
	_, _, err := bus.Send(context.Background(), "ghost", Request{Action: "get"})
	require.Error(t, err)
	var notFound *ErrServiceNotFound
	require.ErrorAs(t, err, &notFound)
}

func TestInstallService_RejectsDuplicateName(t *testing.T) {
	t.Parallel()

	bus := New()
	require.NoError(t, bus.InstallService(&dummyService{}))
	err := bus.InstallService(&dummyService{})
	require.Error(t, err)
	var dup *ErrDuplicateService
	require.ErrorAs(t, err, &dup)
}
