// presence/waypoints.go
package presence

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"friendsnav/models"
)

func NewWaypointID() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "wp_" + id[:12]
}

// AddWaypoint appends a waypoint after the team's existing ones. An empty name becomes
// "Waypoint N".
func (s *Synchronizer) AddWaypoint(ctx context.Context, teamID string, req models.WaypointRequest) (*models.Waypoint, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, invalid(err)
	}
	team, err := s.store.GetTeam(ctx, teamID)
	if err != nil {
		return nil, storeErr("add waypoint", err)
	}

	existing := team.SortedWaypoints()
	wp := models.Waypoint{
		ID:        NewWaypointID(),
		Name:      strings.TrimSpace(req.Name),
		Lat:       *req.Lat,
		Lng:       *req.Lng,
		CreatedBy: req.CreatedBy,
		CreatedAt: time.Now().UnixMilli(),
	}
	if wp.Name == "" {
		wp.Name = fmt.Sprintf("Waypoint %d", len(existing)+1)
	}
	if n := len(existing); n > 0 {
		wp.Order = existing[n-1].Order + 1
	}

	if err := s.store.PutWaypoint(ctx, teamID, wp); err != nil {
		return nil, storeErr("add waypoint", err)
	}
	log.Printf("Waypoint %s (%s) added to team %s", wp.ID, wp.Name, teamID)
	return &wp, nil
}

// RemoveWaypoint deletes a waypoint. A meetup point picked from it stays where it is.
func (s *Synchronizer) RemoveWaypoint(ctx context.Context, teamID, waypointID string) error {
	if err := s.store.DeleteWaypoint(ctx, teamID, waypointID); err != nil {
		return storeErr("remove waypoint", err)
	}
	log.Printf("Waypoint %s removed from team %s", waypointID, teamID)
	return nil
}

// Waypoint reads the team together with one of its waypoints.
func (s *Synchronizer) Waypoint(ctx context.Context, teamID, waypointID string) (*models.Team, models.Waypoint, error) {
	team, err := s.store.GetTeam(ctx, teamID)
	if err != nil {
		return nil, models.Waypoint{}, storeErr("read waypoint", err)
	}
	wp, ok := team.Waypoints[waypointID]
	if !ok {
		return nil, models.Waypoint{}, fmt.Errorf("%w: %s", ErrWaypointNotFound, waypointID)
	}
	if wp.ID == "" {
		wp.ID = waypointID
	}
	return team, wp, nil
}

// SetMeetupWaypoint makes a waypoint the team's meetup point.
func (s *Synchronizer) SetMeetupWaypoint(ctx context.Context, teamID, waypointID, setBy string) error {
	_, wp, err := s.Waypoint(ctx, teamID, waypointID)
	if err != nil {
		return err
	}
	return s.SetMeetup(ctx, teamID, models.MeetupPoint{
		Lat:        wp.Lat,
		Lng:        wp.Lng,
		Name:       wp.Name,
		SetBy:      setBy,
		WaypointID: wp.ID,
	})
}
