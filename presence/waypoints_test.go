package presence

import (
	"context"
	"errors"
	"strings"
	"testing"

	"friendsnav/models"
)

func coord(v float64) *float64 { return &v }

func TestAddWaypoint(t *testing.T) {
	s, _, teamID := setup(t, Options{})
	ctx := context.Background()

	first, err := s.AddWaypoint(ctx, teamID, models.WaypointRequest{Lat: coord(40.7), Lng: coord(-74), CreatedBy: "user_1"})
	if err != nil {
		t.Fatalf("add waypoint: %v", err)
	}
	if !strings.HasPrefix(first.ID, "wp_") || first.Name != "Waypoint 1" || first.Order != 0 || first.CreatedAt == 0 {
		t.Errorf("unexpected first waypoint %+v", first)
	}

	second, err := s.AddWaypoint(ctx, teamID, models.WaypointRequest{Lat: coord(40.8), Lng: coord(-73.9), Name: "  Pier  "})
	if err != nil {
		t.Fatalf("add waypoint: %v", err)
	}
	if second.Name != "Pier" || second.Order != 1 {
		t.Errorf("unexpected second waypoint %+v", second)
	}

	team, _ := s.Team(ctx, teamID)
	got := team.SortedWaypoints()
	if len(got) != 2 || got[0].ID != first.ID || got[1].ID != second.ID {
		t.Errorf("unexpected waypoints %+v", got)
	}
	t.Logf("✓ waypoints appended in order: %s, %s", got[0].Name, got[1].Name)
}

func TestAddWaypoint_Invalid(t *testing.T) {
	s, _, teamID := setup(t, Options{})
	ctx := context.Background()

	tests := []struct {
		name     string
		teamID   string
		req      models.WaypointRequest
		expected error
	}{
		{name: "missing coordinates", teamID: teamID, req: models.WaypointRequest{}, expected: ErrInvalidInput},
		{name: "zero latitude only", teamID: teamID, req: models.WaypointRequest{Lat: coord(0)}, expected: ErrInvalidInput},
		{name: "out of range", teamID: teamID, req: models.WaypointRequest{Lat: coord(91), Lng: coord(0)}, expected: ErrInvalidInput},
		{name: "missing team", teamID: "TEAM_NOPE", req: models.WaypointRequest{Lat: coord(1), Lng: coord(1)}, expected: ErrTeamNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.AddWaypoint(ctx, tt.teamID, tt.req); !errors.Is(err, tt.expected) {
				t.Errorf("expected %v, got %v", tt.expected, err)
			}
		})
	}

	team, _ := s.Team(ctx, teamID)
	if len(team.Waypoints) != 0 {
		t.Errorf("rejected waypoints were stored: %+v", team.Waypoints)
	}
}

func TestSetMeetupWaypoint(t *testing.T) {
	s, _, teamID := setup(t, Options{})
	ctx := context.Background()

	wp, err := s.AddWaypoint(ctx, teamID, models.WaypointRequest{Lat: coord(0), Lng: coord(0), Name: "Null Island"})
	if err != nil {
		t.Fatalf("add waypoint: %v", err)
	}

	if err := s.SetMeetupWaypoint(ctx, teamID, "wp_missing", "user_1"); !errors.Is(err, ErrWaypointNotFound) {
		t.Errorf("expected ErrWaypointNotFound, got %v", err)
	}
	if err := s.SetMeetupWaypoint(ctx, teamID, wp.ID, "user_1"); err != nil {
		t.Fatalf("set meetup waypoint: %v", err)
	}

	team, _ := s.Team(ctx, teamID)
	mp := team.MeetupPoint
	if mp == nil || mp.WaypointID != wp.ID || mp.Name != "Null Island" || mp.SetBy != "user_1" || mp.Lat != 0 || mp.Lng != 0 {
		t.Fatalf("unexpected meetup %+v", mp)
	}

	if err := s.RemoveWaypoint(ctx, teamID, wp.ID); err != nil {
		t.Fatalf("remove waypoint: %v", err)
	}
	if _, _, err := s.Waypoint(ctx, teamID, wp.ID); !errors.Is(err, ErrWaypointNotFound) {
		t.Errorf("expected ErrWaypointNotFound after removal, got %v", err)
	}
	team, _ = s.Team(ctx, teamID)
	if team.MeetupPoint == nil || team.MeetupPoint.WaypointID != wp.ID {
		t.Error("removing a waypoint should leave the meetup in place")
	}
	t.Logf("✓ meetup kept at %s after waypoint removal", team.MeetupPoint.Name)
}
