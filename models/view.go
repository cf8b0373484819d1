// models/view.go
package models

import "sort"

const (
	StatusWaiting = "waiting"
	StatusLocated = "located"
)

// Route is a routed leg from a member to the meetup point.
type Route struct {
	Duration float64      `json:"duration"`
	Distance float64      `json:"distance"`
	Geometry [][2]float64 `json:"geometry"` // [lng, lat] pairs
}

// MemberView is a member as presented to clients, with ETA fields when a meetup point is set.
type MemberView struct {
	Member
	Status         string   `json:"status"`
	ETA            *float64 `json:"eta,omitempty"`
	Distance       *float64 `json:"distance,omitempty"`
	Route          *Route   `json:"route,omitempty"`
	ETAUnavailable bool     `json:"etaUnavailable,omitempty"`
}

// HasETA reports whether the routing provider produced a leg for this member.
func (m MemberView) HasETA() bool {
	return m.ETA != nil && m.Distance != nil
}

type ViewModel struct {
	TeamID      string       `json:"teamId"`
	TeamName    string       `json:"teamName"`
	Version     uint64       `json:"version"`
	Members     []MemberView `json:"members"`
	MeetupPoint *MeetupPoint `json:"meetupPoint,omitempty"`
	Waypoints   []Waypoint   `json:"waypoints,omitempty"`
}

var MemberColors = []string{
	"#2563eb", // blue
	"#16a34a", // green
	"#dc2626", // red
	"#9333ea", // purple
	"#ea580c", // orange
	"#0891b2", // cyan
	"#c026d3", // fuchsia
	"#65a30d", // lime
}

func ColorForMember(index int) string {
	return MemberColors[index%len(MemberColors)]
}

// NewViewModel builds the route-free view of a snapshot. Members are ordered by id.
func NewViewModel(team *Team) *ViewModel {
	vm := &ViewModel{Members: []MemberView{}}
	if team == nil {
		return vm
	}
	vm.TeamID = team.ID
	vm.TeamName = team.Name
	if team.MeetupPoint != nil {
		mp := *team.MeetupPoint
		vm.MeetupPoint = &mp
	}
	if wps := team.SortedWaypoints(); len(wps) > 0 {
		vm.Waypoints = wps
	}

	ids := make([]string, 0, len(team.Members))
	for id := range team.Members {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for i, id := range ids {
		m := team.Members[id]
		if m.ID == "" {
			m.ID = id
		}
		if m.Color == "" {
			m.Color = ColorForMember(i)
		}
		if m.Location != nil {
			loc := *m.Location
			m.Location = &loc
		}
		mv := MemberView{Member: m, Status: StatusWaiting}
		if m.Location != nil {
			mv.Status = StatusLocated
		}
		vm.Members = append(vm.Members, mv)
	}
	return vm
}
