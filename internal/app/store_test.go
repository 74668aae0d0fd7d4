package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counterApp struct {
	builds int
}

func (a *counterApp) Name() string { return "counter" }

type dependentApp struct {
	counter *counterApp
}

func (a *dependentApp) Name() string { return "dependent" }

func TestInstall_ConstructsOnceAndCachesByType(t *testing.T) {
	t.Parallel()

	s := NewStore()
	builds := 0
	factory := func(*Store) (*counterApp, error) {
		builds++
		return &counterApp{builds: builds}, nil
	}

	a1, err := Install(s, factory)
	require.NoError(t, err)
	a2, err := Install(s, factory)
	require.NoError(t, err)

	assert.Same(t, a1, a2)
	assert.Equal(t, 1, builds)
}

func TestInstall_ResolvesDependencyByType(t *testing.T) {
	t.Parallel()

	s := NewStore()

	dep, err := Install(s, func(s *Store) (*dependentApp, error) {
		c, err := Install(s, func(*Store) (*counterApp, error) {
			return &counterApp{}, nil
		})
		if err != nil {
			return nil, err
		}
		return &dependentApp{counter: c}, nil
	})
	require.NoError(t, err)
	require.NotNil(t, dep.counter)

	again, ok := Get[*counterApp](s)
	require.True(t, ok)
	assert.Same(t, dep.counter, again)
}

func TestInstall_RejectsCyclicDependency(t *testing.T) {
	t.Parallel()

	s := NewStore()

	var cycleErr error
	_, err := Install(s, func(s *Store) (*counterApp, error) {
		_, cycleErr = Install(s, func(*Store) (*counterApp, error) {
			return &counterApp{}, nil
		})
		return &counterApp{}, nil
	})

	require.Error(t, cycleErr)
	var cyclic *ErrCyclicDependency
	require.ErrorAs(t, cycleErr, &cyclic)
	require.NoError(t, err)
}

func TestSharedState_UpdateIsVisibleFromAnyHandle(t *testing.T) {
	t.Parallel()

	state := NewSharedState(0)
	handle2 := state // a second "handle" is just another reference to the same pointer

	state.Update(func(v int) int { return v + 1 })
	handle2.Update(func(v int) int { return v + 1 })

	assert.Equal(t, 2, state.Get())
	assert.Equal(t, 2, handle2.Get())
}
