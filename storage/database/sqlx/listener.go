package sqlxrepos

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/eagleeye/core"
	"github.com/trezcool/eagleeye/core/tracker"
)

const (
	minReconnectInterval = 10 * time.Second
	maxReconnectInterval = time.Minute
	pingInterval         = 90 * time.Second
	eventBuffer          = 16

	opReconnect = "RECONNECT"
)

// listenerSubscription turns the notifications of one LISTEN channel into change events.
type listenerSubscription struct {
	listener *pq.Listener
	logger   core.Logger
	events   chan tracker.ChangeEvent
	done     chan struct{}
	once     sync.Once
	wg       sync.WaitGroup
}

var _ tracker.Subscription = (*listenerSubscription)(nil) // interface compliance check

// Subscribe listens to the user's channel on a dedicated connection.
// A lost connection is re-established by the listener and reported as a RECONNECT event,
// since notifications sent meanwhile are lost.
func (c remoteClient) Subscribe(ctx context.Context, userID string) (tracker.Subscription, error) {
	logger := c.logger
	listener := pq.NewListener(c.dsn, minReconnectInterval, maxReconnectInterval, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			logger.Warn("change listener", errors.Wrap(err, "listening to changes"))
		}
	})
	if err := listener.Listen(ChannelName(userID)); err != nil {
		_ = listener.Close()
		return nil, errors.Wrap(err, "listening to changes")
	}

	sub := &listenerSubscription{
		listener: listener,
		logger:   logger,
		events:   make(chan tracker.ChangeEvent, eventBuffer),
		done:     make(chan struct{}),
	}
	sub.wg.Add(1)
	go sub.run(ctx)
	return sub, nil
}

func (s *listenerSubscription) run(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.events)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case n, ok := <-s.listener.Notify:
			if !ok {
				return
			}
			s.emit(decodeNotification(n))
		case <-time.After(pingInterval):
			go func() { _ = s.listener.Ping() }()
		}
	}
}

// emit never blocks: a full buffer already guarantees a pending reload.
func (s *listenerSubscription) emit(ev tracker.ChangeEvent) {
	select {
	case s.events <- ev:
	default:
	}
}

func (s *listenerSubscription) Events() <-chan tracker.ChangeEvent { return s.events }

func (s *listenerSubscription) Unsubscribe() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.listener.Close()
		s.wg.Wait()
	})
	return errors.Wrap(err, "closing change listener")
}

// decodeNotification reads the {"table", "op"} payload of notify_row_change.
// A nil notification means the connection was re-established.
func decodeNotification(n *pq.Notification) tracker.ChangeEvent {
	if n == nil {
		return tracker.ChangeEvent{Op: opReconnect}
	}
	var ev tracker.ChangeEvent
	if err := json.Unmarshal([]byte(n.Extra), &ev); err != nil {
		return tracker.ChangeEvent{Op: "UNKNOWN"}
	}
	return ev
}
