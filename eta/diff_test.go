package eta

import (
	"reflect"
	"testing"

	"friendsnav/models"
)

func view(members ...models.MemberView) *models.ViewModel {
	return &models.ViewModel{TeamID: "T", Members: members}
}

func located(id string, lat, lng float64) models.MemberView {
	return models.MemberView{Member: models.Member{ID: id, Location: loc(lat, lng)}, Status: models.StatusLocated}
}

func routed(id string, lat, lng, duration float64) models.MemberView {
	m := located(id, lat, lng)
	attach(&m, &models.Route{Duration: duration, Distance: duration * 10})
	return m
}

func waiting(id string) models.MemberView {
	return models.MemberView{Member: models.Member{ID: id}, Status: models.StatusWaiting}
}

func TestDiff(t *testing.T) {
	tests := []struct {
		name     string
		prev     *models.ViewModel
		next     *models.ViewModel
		expected Changes
	}{
		{
			name:     "first view",
			prev:     nil,
			next:     view(located("a", 1, 1), waiting("b")),
			expected: Changes{AddedMarkers: []string{"a"}},
		},
		{
			name:     "member located",
			prev:     view(waiting("a")),
			next:     view(located("a", 1, 1)),
			expected: Changes{AddedMarkers: []string{"a"}},
		},
		{
			name:     "member moved",
			prev:     view(located("a", 1, 1), located("b", 2, 2)),
			next:     view(located("a", 1, 1), located("b", 2, 3)),
			expected: Changes{MovedMarkers: []string{"b"}},
		},
		{
			name:     "member left",
			prev:     view(routed("a", 1, 1, 60), located("b", 2, 2)),
			next:     view(located("b", 2, 2)),
			expected: Changes{RemovedMarkers: []string{"a"}, RetractedRoutes: []string{"a"}},
		},
		{
			name:     "route drawn",
			prev:     view(located("a", 1, 1)),
			next:     view(routed("a", 1, 1, 60)),
			expected: Changes{DrawnRoutes: []string{"a"}},
		},
		{
			name:     "route updated",
			prev:     view(routed("a", 1, 1, 60)),
			next:     view(routed("a", 1, 1, 90)),
			expected: Changes{DrawnRoutes: []string{"a"}},
		},
		{
			name:     "route retracted",
			prev:     view(routed("a", 1, 1, 60)),
			next:     view(located("a", 1, 1)),
			expected: Changes{RetractedRoutes: []string{"a"}},
		},
		{
			name:     "unchanged",
			prev:     view(routed("a", 1, 1, 60), waiting("b")),
			next:     view(routed("a", 1, 1, 60), waiting("b")),
			expected: Changes{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Diff(tt.prev, tt.next)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("Diff() = %+v, expected %+v", got, tt.expected)
			}
		})
	}
}

func TestDiff_Meetup(t *testing.T) {
	prev := view()
	next := view()
	next.MeetupPoint = &models.MeetupPoint{Lat: 1, Lng: 1}

	if !Diff(prev, next).MeetupChanged {
		t.Error("set meetup should be a change")
	}
	if !Diff(next, prev).MeetupChanged {
		t.Error("cleared meetup should be a change")
	}
	same := view()
	same.MeetupPoint = &models.MeetupPoint{Lat: 1, Lng: 1}
	if c := Diff(next, same); !c.Empty() {
		t.Errorf("equal meetups should produce no changes, got %+v", c)
	}
}

func TestDiff_Waypoints(t *testing.T) {
	pier := models.Waypoint{ID: "wp_1", Name: "Pier", Lat: 1, Lng: 1}

	tests := []struct {
		name     string
		before   []models.Waypoint
		after    []models.Waypoint
		expected bool
	}{
		{name: "none", expected: false},
		{name: "added", after: []models.Waypoint{pier}, expected: true},
		{name: "removed", before: []models.Waypoint{pier}, expected: true},
		{name: "renamed", before: []models.Waypoint{pier}, after: []models.Waypoint{{ID: "wp_1", Name: "Dock", Lat: 1, Lng: 1}}, expected: true},
		{name: "unchanged", before: []models.Waypoint{pier}, after: []models.Waypoint{pier}, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prev, next := view(), view()
			prev.Waypoints, next.Waypoints = tt.before, tt.after
			c := Diff(prev, next)
			if c.WaypointsChanged != tt.expected {
				t.Errorf("WaypointsChanged = %v, expected %v", c.WaypointsChanged, tt.expected)
			}
			if c.Empty() == tt.expected {
				t.Errorf("Empty() = %v with WaypointsChanged %v", c.Empty(), c.WaypointsChanged)
			}
		})
	}
}

func TestDiff_MeetupFromWaypoint(t *testing.T) {
	prev, next := view(), view()
	prev.MeetupPoint = &models.MeetupPoint{Lat: 1, Lng: 1, Name: "Pier"}
	next.MeetupPoint = &models.MeetupPoint{Lat: 1, Lng: 1, Name: "Pier", WaypointID: "wp_1"}
	if !Diff(prev, next).MeetupChanged {
		t.Error("picking the same spot from a waypoint should be a change")
	}
}
