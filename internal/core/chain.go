package core

import "sort"

// AppHandler is installed on the priority chain (spec.md §4.6's
// "alternative composition"): events and packets traverse the chain in
// descending-priority order. HandleEvent returns the event to hand to the
// next app (an app may transform it before passing it on) and whether to
// continue at all; returning false consumes the event, stopping further
// propagation, and the returned Event is discarded.
type AppHandler interface {
	Name() string
	HandleEvent(ev Event) (Event, bool)
}

type chainEntry struct {
	priority int
	app      AppHandler
}

// Chain is a priority-ordered, descending list of AppHandlers.
type Chain struct {
	entries []chainEntry
}

// Install adds app to the chain at the given priority. Higher priority
// runs first.
func (c *Chain) Install(priority int, app AppHandler) {
	c.entries = append(c.entries, chainEntry{priority: priority, app: app})
	sort.SliceStable(c.entries, func(i, j int) bool {
		return c.entries[i].priority > c.entries[j].priority
	})
}

// Dispatch runs ev through the chain until an app consumes it or the
// chain is exhausted, threading each app's (possibly transformed) event
// into the next.
func (c *Chain) Dispatch(ev Event) {
	for _, e := range c.entries {
		next, cont := e.app.HandleEvent(ev)
		if !cont {
			return
		}
		ev = next
	}
}
