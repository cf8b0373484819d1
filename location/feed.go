// location/feed.go
package location

import (
	"context"
	"sync"
	"time"

	"friendsnav/models"
)

// Feed is a Provider fed from outside, typically by the fixes and geolocation errors a
// websocket client sends for its device.
type Feed struct {
	mutex    sync.Mutex
	last     *models.Location
	watchers map[int]*feedWatcher
	nextID   int
}

type feedWatcher struct {
	onFix  func(models.Location)
	onErr  func(error)
	timer  *time.Timer
	gotFix bool
}

func NewFeed() *Feed {
	return &Feed{watchers: make(map[int]*feedWatcher)}
}

// Push records a fix and hands it to every watcher. A missing timestamp is stamped now.
func (f *Feed) Push(loc models.Location) {
	if loc.Timestamp == 0 {
		loc.Timestamp = time.Now().UnixMilli()
	}

	f.mutex.Lock()
	f.last = &loc
	callbacks := make([]func(models.Location), 0, len(f.watchers))
	for _, w := range f.watchers {
		w.gotFix = true
		if w.timer != nil {
			w.timer.Stop()
			w.timer = nil
		}
		callbacks = append(callbacks, w.onFix)
	}
	f.mutex.Unlock()

	for _, cb := range callbacks {
		cb(loc)
	}
}

// Fail reports a device failure to every watcher.
func (f *Feed) Fail(code Code) {
	f.mutex.Lock()
	callbacks := make([]func(error), 0, len(f.watchers))
	for _, w := range f.watchers {
		if w.onErr != nil {
			callbacks = append(callbacks, w.onErr)
		}
	}
	f.mutex.Unlock()

	err := &Error{Code: code}
	for _, cb := range callbacks {
		cb(err)
	}
}

func (f *Feed) Current() (models.Location, bool) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.last == nil {
		return models.Location{}, false
	}
	return *f.last, true
}

func (f *Feed) Watch(ctx context.Context, opts Options, onFix func(models.Location), onErr func(error)) (func(), error) {
	f.mutex.Lock()
	id := f.nextID
	f.nextID++
	w := &feedWatcher{onFix: onFix, onErr: onErr, gotFix: f.last != nil}
	if opts.Timeout > 0 && !w.gotFix {
		w.timer = time.AfterFunc(opts.Timeout, func() { f.timeout(id) })
	}
	f.watchers[id] = w
	f.mutex.Unlock()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			f.mutex.Lock()
			if w.timer != nil {
				w.timer.Stop()
			}
			delete(f.watchers, id)
			f.mutex.Unlock()
		})
	}
	context.AfterFunc(ctx, stop)
	return stop, nil
}

func (f *Feed) timeout(id int) {
	f.mutex.Lock()
	w, ok := f.watchers[id]
	if !ok || w.gotFix {
		f.mutex.Unlock()
		return
	}
	w.timer = nil
	onErr := w.onErr
	f.mutex.Unlock()

	if onErr != nil {
		onErr(&Error{Code: Timeout})
	}
}
