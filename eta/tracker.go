// eta/tracker.go
package eta

import (
	"context"
	"slices"
	"strings"
	"sync"

	"friendsnav/models"
)

// Tracker recomputes the view of one team for every snapshot it is given and publishes the
// result. Each computation is tagged with the version of the snapshot that started it; a
// result is published only if no newer snapshot has arrived in the meantime.
//
// Cached legs are dropped whenever someone joins or leaves, so every remaining member is
// routed again against the new roster.
type Tracker struct {
	engine  *Engine
	publish func(*models.ViewModel)
	cache   *legCache

	ctx    context.Context
	cancel context.CancelFunc

	mutex   sync.Mutex
	version uint64
	closed  bool
	roster  string

	// serializes publish calls with the version check that guards them
	publishMutex sync.Mutex
}

func NewTracker(engine *Engine, publish func(*models.ViewModel)) *Tracker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Tracker{
		engine:  engine,
		publish: publish,
		cache:   newLegCache(),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Update starts the computation for a new snapshot. A nil team means the team is gone.
func (t *Tracker) Update(team *models.Team) {
	t.mutex.Lock()
	if t.closed {
		t.mutex.Unlock()
		return
	}
	t.version++
	v := t.version
	if r := roster(team); r != t.roster {
		t.roster = r
		t.cache = newLegCache()
	}
	cache := t.cache
	t.mutex.Unlock()

	if team == nil || team.MeetupPoint == nil {
		vm, _ := t.engine.compute(t.ctx, team, nil)
		t.finish(v, vm, cache, nil)
		return
	}

	go func() {
		vm, legs := t.engine.compute(t.ctx, team, cache)
		t.finish(v, vm, cache, legs)
	}()
}

// roster identifies the set of member ids of a snapshot.
func roster(team *models.Team) string {
	if team == nil {
		return ""
	}
	ids := make([]string, 0, len(team.Members))
	for id := range team.Members {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return strings.Join(ids, "\x00")
}

func (t *Tracker) finish(v uint64, vm *models.ViewModel, cache *legCache, legs map[legKey]struct{}) {
	t.publishMutex.Lock()
	defer t.publishMutex.Unlock()

	if !t.current(v) {
		return
	}
	vm.Version = v
	cache.retain(legs)
	t.publish(vm)
}

func (t *Tracker) current(v uint64) bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return !t.closed && t.version == v
}

// Close stops publishing and abandons computations in flight.
func (t *Tracker) Close() {
	t.mutex.Lock()
	t.closed = true
	t.mutex.Unlock()
	t.cancel()
}
