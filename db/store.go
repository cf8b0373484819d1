// db/store.go
package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"friendsnav/models"
)

var (
	ErrNotFound       = errors.New("team not found")
	ErrMemberNotFound = errors.New("member not found")
	ErrTeamExists     = errors.New("team already exists")
	ErrInvalidKey     = errors.New("invalid key")
)

// Store is the team state store. Every team lives under a single key (its id) and all
// subordinate data (members, meetup point) is addressed through it.
type Store interface {
	CreateTeam(ctx context.Context, team *models.Team) error
	GetTeam(ctx context.Context, teamID string) (*models.Team, error)

	// PutMember overwrites the member record at members/{member.ID}.
	PutMember(ctx context.Context, teamID string, member models.Member) error
	// UpdateMemberLocation sets location and lastUpdated on an existing member only.
	UpdateMemberLocation(ctx context.Context, teamID, memberID string, loc models.Location, updatedAt int64) error
	UpdateMemberName(ctx context.Context, teamID, memberID, name string) error
	DeleteMember(ctx context.Context, teamID, memberID string) error

	// PutWaypoint overwrites the waypoint at waypoints/{wp.ID}.
	PutWaypoint(ctx context.Context, teamID string, wp models.Waypoint) error
	DeleteWaypoint(ctx context.Context, teamID, waypointID string) error

	SetMeetup(ctx context.Context, teamID string, point models.MeetupPoint) error
	ClearMeetup(ctx context.Context, teamID string) error

	// RecentTeams lists teams by creation time, newest first.
	RecentTeams(ctx context.Context, limit int) ([]models.RecentTeam, error)

	// Watch delivers the complete team (nil once it is gone) now and after every change.
	// The returned func stops deliveries, including ones already queued.
	Watch(ctx context.Context, teamID string, onSnapshot func(*models.Team), onError func(error)) (func(), error)

	Close(ctx context.Context) error
}

func memberKey(memberID string) (string, error) {
	return childKey("members", memberID)
}

func waypointKey(waypointID string) (string, error) {
	return childKey("waypoints", waypointID)
}

// childKey is the document path of an entry in one of a team's maps.
func childKey(field, id string) (string, error) {
	if id == "" || strings.ContainsAny(id, ".$") {
		return "", fmt.Errorf("%s id %q: %w", strings.TrimSuffix(field, "s"), id, ErrInvalidKey)
	}
	return field + "." + id, nil
}

// subscription hands snapshots to one listener from its own goroutine. Snapshots are full
// state, so a listener that falls behind only ever needs the latest one.
type subscription struct {
	fn      func(*models.Team)
	stopped atomic.Bool
	done    chan struct{}
	notify  chan struct{}

	mu      sync.Mutex
	latest  *models.Team
	pending bool
}

func newSubscription(fn func(*models.Team)) *subscription {
	s := &subscription{
		fn:     fn,
		done:   make(chan struct{}),
		notify: make(chan struct{}, 1),
	}
	go s.run()
	return s
}

func (s *subscription) offer(team *models.Team) {
	if s.stopped.Load() {
		return
	}
	s.mu.Lock()
	s.latest = team.Clone()
	s.pending = true
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *subscription) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.notify:
		}

		s.mu.Lock()
		team, ok := s.latest, s.pending
		s.latest, s.pending = nil, false
		s.mu.Unlock()

		if !ok || s.stopped.Load() {
			continue
		}
		s.fn(team)
	}
}

func (s *subscription) stop() {
	if s.stopped.CompareAndSwap(false, true) {
		close(s.done)
	}
}
