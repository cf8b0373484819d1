// presence/session.go
package presence

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"friendsnav/location"
	"friendsnav/models"
)

type State int

const (
	Unjoined State = iota
	Joining
	Joined
	Leaving
)

func (s State) String() string {
	switch s {
	case Joining:
		return "joining"
	case Joined:
		return "joined"
	case Leaving:
		return "leaving"
	}
	return "unjoined"
}

// Session is one member's presence in one team. Only a Joined session forwards samples.
type Session struct {
	TeamID   string
	MemberID string

	sync *Synchronizer

	mutex     sync.Mutex
	state     State
	lastWrite time.Time
	pending   *models.Location
	flush     *time.Timer
	sources   []func()
}

func newSession(s *Synchronizer, teamID, memberID string) *Session {
	return &Session{TeamID: teamID, MemberID: memberID, sync: s}
}

func (s *Session) State() State {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.state
}

func (s *Session) join(ctx context.Context, name string) error {
	s.mutex.Lock()
	if s.state == Leaving {
		s.mutex.Unlock()
		return ErrNotJoined
	}
	s.state = Joining
	s.mutex.Unlock()

	member := models.Member{
		ID:          s.MemberID,
		Name:        name,
		LastUpdated: time.Now().UnixMilli(),
	}
	err := s.sync.store.PutMember(ctx, s.TeamID, member)

	s.mutex.Lock()
	defer s.mutex.Unlock()
	if err != nil {
		s.state = Unjoined
		return storeErr("join team", err)
	}
	s.state = Joined
	s.lastWrite = time.Time{}
	return nil
}

// ReportLocation writes the newest fix for this member. Fixes arriving faster than the minimum
// report interval are held back and only the latest of them is written once it elapses.
func (s *Session) ReportLocation(ctx context.Context, loc models.Location) error {
	if err := s.sync.validate.Struct(loc); err != nil {
		return invalid(err)
	}
	if loc.Timestamp == 0 {
		loc.Timestamp = time.Now().UnixMilli()
	}

	s.mutex.Lock()
	if s.state != Joined {
		s.mutex.Unlock()
		return ErrNotJoined
	}
	now := time.Now()
	if wait := s.sync.opts.MinReportInterval - now.Sub(s.lastWrite); !s.lastWrite.IsZero() && wait > 0 {
		s.pending = &loc
		if s.flush == nil {
			s.flush = time.AfterFunc(wait, s.flushPending)
		}
		s.mutex.Unlock()
		return nil
	}
	s.lastWrite = now
	s.pending = nil
	s.mutex.Unlock()

	return s.write(ctx, loc)
}

func (s *Session) flushPending() {
	s.mutex.Lock()
	s.flush = nil
	loc := s.pending
	s.pending = nil
	if loc == nil || s.state != Joined {
		s.mutex.Unlock()
		return
	}
	s.lastWrite = time.Now()
	s.mutex.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.sync.opts.WriteTimeout)
	defer cancel()
	if err := s.write(ctx, *loc); err != nil {
		s.sync.notice(s.TeamID, s.MemberID, err)
	}
}

func (s *Session) write(ctx context.Context, loc models.Location) error {
	err := s.sync.store.UpdateMemberLocation(ctx, s.TeamID, s.MemberID, loc, time.Now().UnixMilli())
	if err == nil {
		return nil
	}
	err = storeErr("report location", err)
	if errors.Is(err, ErrNotJoined) || errors.Is(err, ErrTeamNotFound) {
		s.mutex.Lock()
		leaving := s.state != Joined
		if !leaving {
			// removed by someone else
			s.state = Unjoined
		}
		s.mutex.Unlock()
		if leaving {
			return nil
		}
	}
	return err
}

// Track forwards every fix of src into ReportLocation until the session leaves or ctx is
// done. A member connected more than once tracks one source per connection and the latest
// fix of any of them wins. Source failures and failed background writes are reported through
// the notice callback.
func (s *Session) Track(ctx context.Context, src *location.Source) error {
	if s.State() != Joined {
		return ErrNotJoined
	}

	onFix := func(loc models.Location) {
		if err := s.ReportLocation(ctx, loc); err != nil && !errors.Is(err, ErrNotJoined) {
			s.sync.notice(s.TeamID, s.MemberID, err)
		}
	}
	onErr := func(err error) {
		s.sync.notice(s.TeamID, s.MemberID, err)
	}

	stop, err := src.Start(ctx, onFix, onErr)
	if err != nil {
		return err
	}

	s.mutex.Lock()
	if s.state != Joined {
		s.mutex.Unlock()
		stop()
		return ErrNotJoined
	}
	s.sources = append(s.sources, stop)
	s.mutex.Unlock()
	return nil
}

// Rename changes the member's display name.
func (s *Session) Rename(ctx context.Context, name string) error {
	if s.State() != Joined {
		return ErrNotJoined
	}
	return s.sync.Rename(ctx, s.TeamID, s.MemberID, name)
}

// Leave stops the location source, drops any held-back fix and deletes the member record.
// A write already in flight is neither awaited nor cancelled; the store refuses to recreate
// the member for it.
func (s *Session) Leave(ctx context.Context) error {
	s.mutex.Lock()
	s.state = Leaving
	sources := s.sources
	s.sources = nil
	if s.flush != nil {
		s.flush.Stop()
		s.flush = nil
	}
	s.pending = nil
	s.mutex.Unlock()

	for _, stop := range sources {
		stop()
	}

	err := s.sync.store.DeleteMember(ctx, s.TeamID, s.MemberID)

	s.mutex.Lock()
	s.state = Unjoined
	s.mutex.Unlock()

	if err != nil {
		log.Printf("Failed to remove member %s from team %s: %v", s.MemberID, s.TeamID, err)
		return storeErr("leave team", err)
	}
	log.Printf("Member %s left team %s", s.MemberID, s.TeamID)
	return nil
}
