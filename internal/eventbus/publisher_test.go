package eventbus

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmit_InvokesHandlersInRegistrationOrder(t *testing.T) {
	t.Parallel()

	p := New[int](nil)
	var order []int

	require.True(t, p.Subscribe(HandlerFunc[int](func(e int) { order = append(order, e*10+1) })))
	require.True(t, p.Subscribe(HandlerFunc[int](func(e int) { order = append(order, e*10+2) })))
	require.True(t, p.Subscribe(HandlerFunc[int](func(e int) { order = append(order, e*10+3) })))

	p.Emit(7)

	assert.Equal(t, []int{71, 72, 73}, order)
}

func TestEmit_ContainsHandlerPanic(t *testing.T) {
	t.Parallel()

	p := New[string](nil)
	var secondCalled bool

	p.Subscribe(HandlerFunc[string](func(e string) { panic("boom") }))
	p.Subscribe(HandlerFunc[string](func(e string) { secondCalled = true }))

	assert.NotPanics(t, func() { p.Emit("x") })
	assert.True(t, secondCalled, "handlers after a panicking one must still run")
}

func TestSubscribe_RejectsReentrantDuringEmit(t *testing.T) {
	t.Parallel()

	p := New[int](nil)
	var accepted bool

	p.Subscribe(HandlerFunc[int](func(e int) {
		accepted = p.Subscribe(HandlerFunc[int](func(int) {}))
	}))

	p.Emit(1)

	assert.False(t, accepted)
	assert.Equal(t, 1, p.Len())
}

func TestSubscribe_UnrelatedGoroutineNotBlockedByAnotherGoroutinesEmit(t *testing.T) {
	t.Parallel()

	p := New[int](nil)

	inHandler := make(chan struct{})
	release := make(chan struct{})
	p.Subscribe(HandlerFunc[int](func(int) {
		close(inHandler)
		<-release
	}))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.Emit(1)
	}()

	select {
	case <-inHandler:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for handler to start")
	}

	accepted := p.Subscribe(HandlerFunc[int](func(int) {}))
	assert.True(t, accepted, "a different goroutine's Subscribe must not be rejected by someone else's in-flight Emit")

	close(release)
	wg.Wait()
}
