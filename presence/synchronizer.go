// presence/synchronizer.go
package presence

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"friendsnav/db"
	"friendsnav/location"
	"friendsnav/models"
)

const createAttempts = 3

type Options struct {
	// MinReportInterval is the shortest gap between two location writes of one member.
	MinReportInterval time.Duration
	// WriteTimeout bounds background writes that have no caller context.
	WriteTimeout time.Duration
	// OnNotice receives failures that happen outside a caller's request, such as location
	// source errors or a held-back write that could not be stored.
	OnNotice func(teamID, memberID string, err error)
}

// Synchronizer keeps the team store and the local members' sessions in step.
type Synchronizer struct {
	store    db.Store
	opts     Options
	validate *validator.Validate

	mutex    sync.Mutex
	sessions map[sessionKey]*Session
}

type sessionKey struct {
	teamID   string
	memberID string
}

func New(store db.Store, opts Options) *Synchronizer {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	return &Synchronizer{
		store:    store,
		opts:     opts,
		validate: validator.New(),
		sessions: make(map[sessionKey]*Session),
	}
}

func NewTeamID() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "TEAM_" + strings.ToUpper(id[:8])
}

func NewMemberID() string {
	return "user_" + uuid.NewString()
}

// DefaultName is the display name of a member that did not pick one.
func DefaultName(memberID string) string {
	if len(memberID) > 8 {
		return memberID[:8]
	}
	return memberID
}

func (s *Synchronizer) CreateTeam(ctx context.Context, name, creatorID string) (*models.Team, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "Team"
	}

	var err error
	for attempt := 0; attempt < createAttempts; attempt++ {
		team := &models.Team{
			ID:        NewTeamID(),
			Name:      name,
			CreatedAt: time.Now().UnixMilli(),
			CreatedBy: creatorID,
			Members:   map[string]models.Member{},
		}
		err = s.store.CreateTeam(ctx, team)
		if err == nil {
			log.Printf("Team %s (%s) created by %s", team.ID, team.Name, creatorID)
			return team, nil
		}
		if !errors.Is(err, db.ErrTeamExists) {
			return nil, storeErr("create team", err)
		}
	}
	return nil, &StoreError{Op: "create team", Err: err}
}

// Team reads the current team state once.
func (s *Synchronizer) Team(ctx context.Context, teamID string) (*models.Team, error) {
	team, err := s.store.GetTeam(ctx, teamID)
	if err != nil {
		return nil, storeErr("read team", err)
	}
	return team, nil
}

func (s *Synchronizer) RecentTeams(ctx context.Context, limit int) ([]models.RecentTeam, error) {
	teams, err := s.store.RecentTeams(ctx, limit)
	if err != nil {
		return nil, storeErr("list teams", err)
	}
	return teams, nil
}

// Join records the member in the team with no location and returns its session. Joining
// again overwrites the member record.
func (s *Synchronizer) Join(ctx context.Context, teamID, memberID, displayName string) (*Session, error) {
	if teamID == "" || memberID == "" {
		return nil, fmt.Errorf("%w: team and member id are required", ErrInvalidInput)
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName = DefaultName(memberID)
	}

	key := sessionKey{teamID, memberID}
	s.mutex.Lock()
	sess, ok := s.sessions[key]
	if !ok {
		sess = newSession(s, teamID, memberID)
		s.sessions[key] = sess
	}
	s.mutex.Unlock()

	if err := sess.join(ctx, displayName); err != nil {
		s.mutex.Lock()
		if s.sessions[key] == sess && sess.State() == Unjoined {
			delete(s.sessions, key)
		}
		s.mutex.Unlock()
		return nil, err
	}
	log.Printf("Member %s (%s) joined team %s", memberID, displayName, teamID)
	return sess, nil
}

// Session returns the live session of a member, if it joined through this synchronizer.
func (s *Synchronizer) Session(teamID, memberID string) (*Session, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	sess, ok := s.sessions[sessionKey{teamID, memberID}]
	return sess, ok
}

func (s *Synchronizer) ReportLocation(ctx context.Context, teamID, memberID string, loc models.Location) error {
	sess, ok := s.Session(teamID, memberID)
	if !ok {
		return ErrNotJoined
	}
	return sess.ReportLocation(ctx, loc)
}

func (s *Synchronizer) Track(ctx context.Context, teamID, memberID string, src *location.Source) error {
	sess, ok := s.Session(teamID, memberID)
	if !ok {
		return ErrNotJoined
	}
	return sess.Track(ctx, src)
}

// Leave removes the member from the team. It is safe to call without a session, which makes
// it usable to retry a removal that failed earlier.
func (s *Synchronizer) Leave(ctx context.Context, teamID, memberID string) error {
	key := sessionKey{teamID, memberID}
	s.mutex.Lock()
	sess, ok := s.sessions[key]
	delete(s.sessions, key)
	s.mutex.Unlock()

	if ok {
		return sess.Leave(ctx)
	}
	if err := s.store.DeleteMember(ctx, teamID, memberID); err != nil {
		return storeErr("leave team", err)
	}
	return nil
}

func (s *Synchronizer) Rename(ctx context.Context, teamID, memberID, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	return storeErr("rename member", s.store.UpdateMemberName(ctx, teamID, memberID, name))
}

// SetMeetup replaces the team's meet-up point. Concurrent writers race and the last one wins.
func (s *Synchronizer) SetMeetup(ctx context.Context, teamID string, point models.MeetupPoint) error {
	if err := s.validate.Struct(point); err != nil {
		return invalid(err)
	}
	point.Timestamp = time.Now().UnixMilli()
	if err := s.store.SetMeetup(ctx, teamID, point); err != nil {
		return storeErr("set meetup", err)
	}
	log.Printf("Meetup for team %s set to %.5f,%.5f by %s", teamID, point.Lat, point.Lng, point.SetBy)
	return nil
}

func (s *Synchronizer) ClearMeetup(ctx context.Context, teamID string) error {
	if err := s.store.ClearMeetup(ctx, teamID); err != nil {
		return storeErr("clear meetup", err)
	}
	log.Printf("Meetup for team %s cleared", teamID)
	return nil
}

// Subscribe delivers the complete team now and after every change until the returned func is
// called. A nil team means it no longer exists.
func (s *Synchronizer) Subscribe(ctx context.Context, teamID string, onSnapshot func(*models.Team)) (func(), error) {
	if _, err := s.store.GetTeam(ctx, teamID); err != nil {
		return nil, storeErr("subscribe", err)
	}
	cancel, err := s.store.Watch(ctx, teamID, onSnapshot, func(err error) {
		s.notice(teamID, "", &StoreError{Op: "team subscription", Err: err})
	})
	if err != nil {
		return nil, storeErr("subscribe", err)
	}
	return cancel, nil
}

func (s *Synchronizer) notice(teamID, memberID string, err error) {
	if s.opts.OnNotice != nil {
		s.opts.OnNotice(teamID, memberID, err)
		return
	}
	log.Printf("Team %s member %s: %v", teamID, memberID, err)
}
