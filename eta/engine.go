// eta/engine.go
package eta

import (
	"context"
	"log"
	"sync"
	"time"

	"friendsnav/models"
	"friendsnav/routing"
)

type Options struct {
	// Timeout bounds each route request. A request that times out fails for its member only.
	Timeout time.Duration
	// MaxConcurrent caps the number of route requests in flight for one computation.
	MaxConcurrent int
}

// Engine derives the ETA view of a team snapshot.
type Engine struct {
	router routing.Provider
	opts   Options
}

func NewEngine(router routing.Provider, opts Options) *Engine {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 8
	}
	return &Engine{router: router, opts: opts}
}

// Compute returns the view of team with a route attached to every located member when a
// meet-up point is set. Members whose route fails are marked ETA-unavailable.
func (e *Engine) Compute(ctx context.Context, team *models.Team) *models.ViewModel {
	vm, _ := e.compute(ctx, team, nil)
	return vm
}

// ComputeToward routes every located member to wp instead of the team's meet-up point. The
// team itself is left untouched.
func (e *Engine) ComputeToward(ctx context.Context, team *models.Team, wp models.Waypoint) *models.ViewModel {
	target := team.Clone()
	target.MeetupPoint = &models.MeetupPoint{Lat: wp.Lat, Lng: wp.Lng, Name: wp.Name, WaypointID: wp.ID}
	vm, _ := e.compute(ctx, target, nil)
	return vm
}

// compute also returns the legs the view is made of.
func (e *Engine) compute(ctx context.Context, team *models.Team, cache *legCache) (*models.ViewModel, map[legKey]struct{}) {
	vm := models.NewViewModel(team)
	if vm.MeetupPoint == nil {
		return vm, nil
	}
	dest := routing.Point{Lat: vm.MeetupPoint.Lat, Lng: vm.MeetupPoint.Lng}

	var wg sync.WaitGroup
	sem := make(chan struct{}, e.opts.MaxConcurrent)
	keys := make(map[legKey]struct{}, len(vm.Members))

	for i := range vm.Members {
		m := &vm.Members[i]
		if m.Location == nil {
			continue
		}
		key := legKey{member: m.ID, from: routing.Point{Lat: m.Location.Lat, Lng: m.Location.Lng}, to: dest}
		keys[key] = struct{}{}
		if route, ok := cache.get(key); ok {
			attach(m, route)
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			reqCtx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
			defer cancel()
			route, err := e.router.Route(reqCtx, key.from, key.to)
			if err != nil {
				log.Printf("ETA unavailable for %s in team %s: %v", m.ID, vm.TeamID, err)
				m.ETAUnavailable = true
				return
			}
			cache.put(key, route)
			attach(m, route)
		}()
	}
	wg.Wait()
	return vm, keys
}

func attach(m *models.MemberView, route *models.Route) {
	r := *route
	eta, dist := r.Duration, r.Distance
	m.Route = &r
	m.ETA = &eta
	m.Distance = &dist
}

type legKey struct {
	member string
	from   routing.Point
	to     routing.Point
}

// legCache keeps the last successful leg of every member so that a snapshot in which only one
// member moved asks the router for that member's leg alone. A nil cache is valid and empty.
type legCache struct {
	mutex sync.Mutex
	legs  map[legKey]*models.Route
}

func newLegCache() *legCache {
	return &legCache{legs: make(map[legKey]*models.Route)}
}

func (c *legCache) get(key legKey) (*models.Route, bool) {
	if c == nil {
		return nil, false
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	r, ok := c.legs[key]
	return r, ok
}

func (c *legCache) put(key legKey, route *models.Route) {
	if c == nil {
		return
	}
	c.mutex.Lock()
	c.legs[key] = route
	c.mutex.Unlock()
}

// retain drops every leg not in keep.
func (c *legCache) retain(keep map[legKey]struct{}) {
	if c == nil {
		return
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	for k := range c.legs {
		if _, ok := keep[k]; !ok {
			delete(c.legs, k)
		}
	}
}
