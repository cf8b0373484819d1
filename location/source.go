// location/source.go
// Package location produces a member's stream of position fixes.
//
// A Provider is the device-facing side (on this server, the fixes a websocket client sends).
// Source wraps a Provider with the start/stop contract the presence layer relies on: an
// immediate best-effort fix on start, continuous updates afterwards and an explicit stop after
// which no callback fires.
package location

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"friendsnav/models"
)

// Options mirror the browser geolocation watch options. Feed and Source only enforce Timeout
// and MaximumAge; the device owner receives all of them and applies HighAccuracy itself.
type Options struct {
	HighAccuracy bool
	// Timeout bounds the wait for the first fix. Zero waits forever.
	Timeout time.Duration
	// MaximumAge is the oldest cached fix accepted as the immediate fix on start. Zero accepts any.
	MaximumAge time.Duration
}

type Provider interface {
	// Current returns the last known fix.
	Current() (models.Location, bool)
	// Watch reports fixes and failures until stop is called or ctx is done.
	Watch(ctx context.Context, opts Options, onFix func(models.Location), onErr func(error)) (stop func(), err error)
}

type Source struct {
	provider Provider
	opts     Options
}

func NewSource(provider Provider, opts Options) *Source {
	return &Source{provider: provider, opts: opts}
}

func (s *Source) Start(ctx context.Context, onFix func(models.Location), onErr func(error)) (func(), error) {
	var stopped atomic.Bool
	fix := func(loc models.Location) {
		if !stopped.Load() {
			onFix(loc)
		}
	}
	fail := func(err error) {
		if !stopped.Load() && onErr != nil {
			onErr(err)
		}
	}

	if loc, ok := s.provider.Current(); ok && s.fresh(loc) {
		fix(loc)
	}

	stopWatch, err := s.provider.Watch(ctx, s.opts, fix, fail)
	if err != nil {
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			stopped.Store(true)
			stopWatch()
		})
	}, nil
}

func (s *Source) fresh(loc models.Location) bool {
	if s.opts.MaximumAge <= 0 || loc.Timestamp == 0 {
		return true
	}
	return time.Since(time.UnixMilli(loc.Timestamp)) <= s.opts.MaximumAge
}
