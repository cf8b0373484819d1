// db/memory.go
package db

import (
	"context"
	"sort"
	"sync"

	"friendsnav/models"
)

// MemoryStore keeps teams in process memory. It has the same push semantics as MongoStore
// and backs tests and single-instance deployments.
type MemoryStore struct {
	mutex sync.RWMutex
	teams map[string]*models.Team
	subs  map[string]map[*subscription]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		teams: make(map[string]*models.Team),
		subs:  make(map[string]map[*subscription]struct{}),
	}
}

func (s *MemoryStore) CreateTeam(ctx context.Context, team *models.Team) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.teams[team.ID]; exists {
		return ErrTeamExists
	}
	stored := team.Clone()
	if stored.Members == nil {
		stored.Members = map[string]models.Member{}
	}
	s.teams[team.ID] = stored
	s.publishLocked(team.ID)
	return nil
}

func (s *MemoryStore) GetTeam(ctx context.Context, teamID string) (*models.Team, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	team, ok := s.teams[teamID]
	if !ok {
		return nil, ErrNotFound
	}
	return team.Clone(), nil
}

func (s *MemoryStore) PutMember(ctx context.Context, teamID string, member models.Member) error {
	if _, err := memberKey(member.ID); err != nil {
		return err
	}
	return s.mutate(teamID, func(team *models.Team) error {
		if member.Location != nil {
			loc := *member.Location
			member.Location = &loc
		}
		team.Members[member.ID] = member
		return nil
	})
}

func (s *MemoryStore) UpdateMemberLocation(ctx context.Context, teamID, memberID string, loc models.Location, updatedAt int64) error {
	if _, err := memberKey(memberID); err != nil {
		return err
	}
	return s.mutate(teamID, func(team *models.Team) error {
		m, ok := team.Members[memberID]
		if !ok {
			return ErrMemberNotFound
		}
		m.Location = &loc
		m.LastUpdated = updatedAt
		team.Members[memberID] = m
		return nil
	})
}

func (s *MemoryStore) UpdateMemberName(ctx context.Context, teamID, memberID, name string) error {
	if _, err := memberKey(memberID); err != nil {
		return err
	}
	return s.mutate(teamID, func(team *models.Team) error {
		m, ok := team.Members[memberID]
		if !ok {
			return ErrMemberNotFound
		}
		m.Name = name
		team.Members[memberID] = m
		return nil
	})
}

func (s *MemoryStore) DeleteMember(ctx context.Context, teamID, memberID string) error {
	if _, err := memberKey(memberID); err != nil {
		return err
	}
	err := s.mutate(teamID, func(team *models.Team) error {
		delete(team.Members, memberID)
		return nil
	})
	if err == ErrNotFound {
		return nil
	}
	return err
}

func (s *MemoryStore) PutWaypoint(ctx context.Context, teamID string, wp models.Waypoint) error {
	if _, err := waypointKey(wp.ID); err != nil {
		return err
	}
	return s.mutate(teamID, func(team *models.Team) error {
		team.Waypoints[wp.ID] = wp
		return nil
	})
}

func (s *MemoryStore) DeleteWaypoint(ctx context.Context, teamID, waypointID string) error {
	if _, err := waypointKey(waypointID); err != nil {
		return err
	}
	err := s.mutate(teamID, func(team *models.Team) error {
		delete(team.Waypoints, waypointID)
		return nil
	})
	if err == ErrNotFound {
		return nil
	}
	return err
}

func (s *MemoryStore) SetMeetup(ctx context.Context, teamID string, point models.MeetupPoint) error {
	return s.mutate(teamID, func(team *models.Team) error {
		team.MeetupPoint = &point
		return nil
	})
}

func (s *MemoryStore) ClearMeetup(ctx context.Context, teamID string) error {
	return s.mutate(teamID, func(team *models.Team) error {
		team.MeetupPoint = nil
		return nil
	})
}

func (s *MemoryStore) RecentTeams(ctx context.Context, limit int) ([]models.RecentTeam, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	teams := make([]models.RecentTeam, 0, len(s.teams))
	for _, t := range s.teams {
		teams = append(teams, models.RecentTeam{ID: t.ID, Name: t.Name, CreatedAt: t.CreatedAt})
	}
	sort.Slice(teams, func(i, j int) bool {
		if teams[i].CreatedAt == teams[j].CreatedAt {
			return teams[i].ID > teams[j].ID
		}
		return teams[i].CreatedAt > teams[j].CreatedAt
	})
	if limit > 0 && len(teams) > limit {
		teams = teams[:limit]
	}
	return teams, nil
}

func (s *MemoryStore) Watch(ctx context.Context, teamID string, onSnapshot func(*models.Team), onError func(error)) (func(), error) {
	sub := newSubscription(onSnapshot)

	s.mutex.Lock()
	if s.subs[teamID] == nil {
		s.subs[teamID] = make(map[*subscription]struct{})
	}
	s.subs[teamID][sub] = struct{}{}
	sub.offer(s.teams[teamID])
	s.mutex.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			sub.stop()
			s.mutex.Lock()
			delete(s.subs[teamID], sub)
			if len(s.subs[teamID]) == 0 {
				delete(s.subs, teamID)
			}
			s.mutex.Unlock()
		})
	}, nil
}

func (s *MemoryStore) Close(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	for teamID, subs := range s.subs {
		for sub := range subs {
			sub.stop()
		}
		delete(s.subs, teamID)
	}
	return nil
}

func (s *MemoryStore) mutate(teamID string, fn func(*models.Team) error) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	team, ok := s.teams[teamID]
	if !ok {
		return ErrNotFound
	}
	if team.Members == nil {
		team.Members = map[string]models.Member{}
	}
	if team.Waypoints == nil {
		team.Waypoints = map[string]models.Waypoint{}
	}
	if err := fn(team); err != nil {
		return err
	}
	s.publishLocked(teamID)
	return nil
}

func (s *MemoryStore) publishLocked(teamID string) {
	team := s.teams[teamID]
	for sub := range s.subs[teamID] {
		sub.offer(team)
	}
}
