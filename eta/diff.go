// eta/diff.go
package eta

import (
	"slices"

	"friendsnav/models"
)

// Changes lists what a renderer has to touch to go from one view to the next.
type Changes struct {
	AddedMarkers    []string `json:"addedMarkers,omitempty"`
	MovedMarkers    []string `json:"movedMarkers,omitempty"`
	RemovedMarkers  []string `json:"removedMarkers,omitempty"`
	DrawnRoutes     []string `json:"drawnRoutes,omitempty"`
	RetractedRoutes []string `json:"retractedRoutes,omitempty"`
	MeetupChanged   bool     `json:"meetupChanged,omitempty"`
	// WaypointsChanged is set when a waypoint was added, removed or edited.
	WaypointsChanged bool `json:"waypointsChanged,omitempty"`
}

func (c Changes) Empty() bool {
	return len(c.AddedMarkers) == 0 && len(c.MovedMarkers) == 0 && len(c.RemovedMarkers) == 0 &&
		len(c.DrawnRoutes) == 0 && len(c.RetractedRoutes) == 0 && !c.MeetupChanged &&
		!c.WaypointsChanged
}

// Diff compares two views. A member has a marker when it is located and a route when the
// engine produced one. A nil prev is an empty view.
func Diff(prev, next *models.ViewModel) Changes {
	var c Changes
	before := index(prev)
	after := index(next)

	for id, n := range after {
		p, existed := before[id]
		switch {
		case n.Location != nil && (!existed || p.Location == nil):
			c.AddedMarkers = append(c.AddedMarkers, id)
		case n.Location != nil && (p.Location.Lat != n.Location.Lat || p.Location.Lng != n.Location.Lng):
			c.MovedMarkers = append(c.MovedMarkers, id)
		case n.Location == nil && existed && p.Location != nil:
			c.RemovedMarkers = append(c.RemovedMarkers, id)
		}

		switch {
		case n.Route != nil && (!existed || !sameRoute(p.Route, n.Route)):
			c.DrawnRoutes = append(c.DrawnRoutes, id)
		case n.Route == nil && existed && p.Route != nil:
			c.RetractedRoutes = append(c.RetractedRoutes, id)
		}
	}
	for id, p := range before {
		if _, ok := after[id]; ok {
			continue
		}
		if p.Location != nil {
			c.RemovedMarkers = append(c.RemovedMarkers, id)
		}
		if p.Route != nil {
			c.RetractedRoutes = append(c.RetractedRoutes, id)
		}
	}

	c.MeetupChanged = !sameMeetup(meetup(prev), meetup(next))
	c.WaypointsChanged = !slices.Equal(waypoints(prev), waypoints(next))

	slices.Sort(c.AddedMarkers)
	slices.Sort(c.MovedMarkers)
	slices.Sort(c.RemovedMarkers)
	slices.Sort(c.DrawnRoutes)
	slices.Sort(c.RetractedRoutes)
	return c
}

func index(vm *models.ViewModel) map[string]models.MemberView {
	out := map[string]models.MemberView{}
	if vm == nil {
		return out
	}
	for _, m := range vm.Members {
		out[m.ID] = m
	}
	return out
}

func meetup(vm *models.ViewModel) *models.MeetupPoint {
	if vm == nil {
		return nil
	}
	return vm.MeetupPoint
}

func sameMeetup(a, b *models.MeetupPoint) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Lat == b.Lat && a.Lng == b.Lng && a.Name == b.Name && a.WaypointID == b.WaypointID
}

func waypoints(vm *models.ViewModel) []models.Waypoint {
	if vm == nil {
		return nil
	}
	return vm.Waypoints
}

func sameRoute(a, b *models.Route) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Duration == b.Duration && a.Distance == b.Distance && slices.Equal(a.Geometry, b.Geometry)
}
