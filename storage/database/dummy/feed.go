package dummydb

import (
	"sync"

	"github.com/trezcool/eagleeye/core/tracker"
)

// feed fans change events out to the subscribers of each user.
type feed struct {
	sync.Mutex
	subs map[string]map[*subscription]struct{}
}

type subscription struct {
	feed   *feed
	userID string
	ch     chan tracker.ChangeEvent
	once   sync.Once
}

var _ tracker.Subscription = (*subscription)(nil) // interface compliance check

func (f *feed) subscribe(userID string) *subscription {
	f.Lock()
	defer f.Unlock()

	sub := &subscription{feed: f, userID: userID, ch: make(chan tracker.ChangeEvent, eventBuffer)}
	if f.subs[userID] == nil {
		f.subs[userID] = make(map[*subscription]struct{})
	}
	f.subs[userID][sub] = struct{}{}
	return sub
}

// publish never blocks: a full buffer already guarantees a pending reload.
func (f *feed) publish(userID, table, op string) {
	f.Lock()
	defer f.Unlock()

	ev := tracker.ChangeEvent{Table: table, Op: op}
	for sub := range f.subs[userID] {
		select {
		case sub.ch <- ev:
		default:
		}
	}
}

func (s *subscription) Events() <-chan tracker.ChangeEvent { return s.ch }

func (s *subscription) Unsubscribe() error {
	s.once.Do(func() {
		s.feed.Lock()
		defer s.feed.Unlock()

		delete(s.feed.subs[s.userID], s)
		if len(s.feed.subs[s.userID]) == 0 {
			delete(s.feed.subs, s.userID)
		}
		close(s.ch)
	})
	return nil
}
