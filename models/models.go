// models/models.go
package models

import "sort"

// Location is the most recent known fix for a member. Older fixes are overwritten.
type Location struct {
	Lat       float64 `bson:"lat" json:"lat" validate:"latitude"`
	Lng       float64 `bson:"lng" json:"lng" validate:"longitude"`
	Timestamp int64   `bson:"timestamp,omitempty" json:"timestamp,omitempty"`
	Accuracy  float64 `bson:"accuracy,omitempty" json:"accuracy,omitempty" validate:"gte=0"`
}

type Member struct {
	ID          string    `bson:"id" json:"id"`
	Name        string    `bson:"name,omitempty" json:"name,omitempty"`
	Location    *Location `bson:"location,omitempty" json:"location,omitempty"`
	Color       string    `bson:"color,omitempty" json:"color,omitempty"`
	LastUpdated int64     `bson:"lastUpdated,omitempty" json:"lastUpdated,omitempty"`
}

// MeetupPoint is the single shared destination of a team.
type MeetupPoint struct {
	Lat       float64 `bson:"lat" json:"lat" validate:"latitude"`
	Lng       float64 `bson:"lng" json:"lng" validate:"longitude"`
	Name      string  `bson:"name,omitempty" json:"name,omitempty"`
	SetBy     string  `bson:"setBy,omitempty" json:"setBy,omitempty"`
	Timestamp int64   `bson:"timestamp,omitempty" json:"timestamp,omitempty"`
	// set when the point was picked from the team's waypoints
	WaypointID string `bson:"waypointId,omitempty" json:"waypointId,omitempty"`
}

// Waypoint is a named place a team keeps on its map. Any waypoint can be made the meetup point.
type Waypoint struct {
	ID        string  `bson:"id" json:"id"`
	Name      string  `bson:"name" json:"name"`
	Lat       float64 `bson:"lat" json:"lat" validate:"latitude"`
	Lng       float64 `bson:"lng" json:"lng" validate:"longitude"`
	Order     int     `bson:"order" json:"order"`
	CreatedBy string  `bson:"createdBy,omitempty" json:"createdBy,omitempty"`
	CreatedAt int64   `bson:"createdAt" json:"createdAt"`
}

// Team is the complete state of a team as stored and as delivered by a subscription push.
type Team struct {
	ID          string              `bson:"_id" json:"id"`
	Name        string              `bson:"name" json:"name"`
	CreatedAt   int64               `bson:"createdAt" json:"createdAt"`
	CreatedBy   string              `bson:"createdBy" json:"createdBy"`
	MeetupPoint *MeetupPoint        `bson:"meetupPoint,omitempty" json:"meetupPoint,omitempty"`
	Members     map[string]Member   `bson:"members,omitempty" json:"members,omitempty"`
	Waypoints   map[string]Waypoint `bson:"waypoints,omitempty" json:"waypoints,omitempty"`
}

// Clone returns a deep copy so snapshots handed to subscribers never share state.
func (t *Team) Clone() *Team {
	if t == nil {
		return nil
	}
	c := *t
	if t.MeetupPoint != nil {
		mp := *t.MeetupPoint
		c.MeetupPoint = &mp
	}
	if t.Members != nil {
		c.Members = make(map[string]Member, len(t.Members))
		for id, m := range t.Members {
			if m.Location != nil {
				loc := *m.Location
				m.Location = &loc
			}
			c.Members[id] = m
		}
	}
	if t.Waypoints != nil {
		c.Waypoints = make(map[string]Waypoint, len(t.Waypoints))
		for id, wp := range t.Waypoints {
			c.Waypoints[id] = wp
		}
	}
	return &c
}

// SortedWaypoints lists the waypoints of a team in display order.
func (t *Team) SortedWaypoints() []Waypoint {
	if t == nil {
		return nil
	}
	wps := make([]Waypoint, 0, len(t.Waypoints))
	for id, wp := range t.Waypoints {
		if wp.ID == "" {
			wp.ID = id
		}
		wps = append(wps, wp)
	}
	sort.Slice(wps, func(i, j int) bool {
		if wps[i].Order == wps[j].Order {
			return wps[i].ID < wps[j].ID
		}
		return wps[i].Order < wps[j].Order
	})
	return wps
}

// RecentTeam is the listing projection used for team discovery.
type RecentTeam struct {
	ID        string `bson:"_id" json:"id"`
	Name      string `bson:"name" json:"name"`
	CreatedAt int64  `bson:"createdAt" json:"createdAt"`
}
