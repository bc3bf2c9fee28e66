package db

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"
)

// AdvisoryEvent announces a newly stored advisory.
type AdvisoryEvent struct {
	UserID     string
	AdvisoryID string
}

func (e AdvisoryEvent) payload() string { return e.UserID + ":" + e.AdvisoryID }

// ParseAdvisoryEvent decodes a "userID:advisoryID" notification payload.
func ParseAdvisoryEvent(payload string) (AdvisoryEvent, bool) {
	userID, advisoryID, ok := strings.Cut(payload, ":")
	if !ok || userID == "" || advisoryID == "" {
		return AdvisoryEvent{}, false
	}
	return AdvisoryEvent{UserID: userID, AdvisoryID: advisoryID}, true
}

// Notifier wraps the LISTEN/NOTIFY mechanism in PostgreSQL.  Notify runs
// on the shared pool; Listen opens its own connection through pq.Listener.
type Notifier struct {
	DB      *sql.DB
	DSN     string
	Channel string
}

// NewNotifier constructs a new Notifier.  The channel should match the
// POSTGRES_NOTIFY_CHANNEL environment variable.
func NewNotifier(db *sql.DB, dsn, channel string) *Notifier {
	return &Notifier{DB: db, DSN: dsn, Channel: channel}
}

// Notify publishes a new advisory on the channel.
func (n *Notifier) Notify(ctx context.Context, userID, advisoryID string) error {
	ev := AdvisoryEvent{UserID: userID, AdvisoryID: advisoryID}
	// NOTIFY takes no bind parameters; pg_notify does.
	_, err := n.DB.ExecContext(ctx, "SELECT pg_notify($1, $2)", n.Channel, ev.payload())
	return err
}

// Listen delivers advisory events received on the channel until ctx is
// cancelled, at which point the returned channel is closed.  The listener
// reconnects on its own after connection loss.
func (n *Notifier) Listen(ctx context.Context) (<-chan AdvisoryEvent, error) {
	l := pq.NewListener(n.DSN, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.Println("advisory listener:", err)
		}
	})
	if err := l.Listen(n.Channel); err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("listen %s: %w", n.Channel, err)
	}

	ch := make(chan AdvisoryEvent)
	go func() {
		defer close(ch)
		defer l.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case note := <-l.Notify:
				// nil after a reconnect
				if note == nil {
					continue
				}
				ev, ok := ParseAdvisoryEvent(note.Extra)
				if !ok {
					log.Printf("advisory listener: bad payload %q", note.Extra)
					continue
				}
				select {
				case ch <- ev:
				case <-ctx.Done():
					return
				}
			case <-time.After(90 * time.Second):
				go func() {
					if err := l.Ping(); err != nil {
						log.Println("advisory listener ping:", err)
					}
				}()
			}
		}
	}()
	return ch, nil
}

// subscriberBuffer bounds how far a slow stream may fall behind before
// events for it are dropped.
const subscriberBuffer = 8

// Broadcaster fans advisory events out to per-user subscribers.  One
// Broadcaster serves every open advisory stream.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[string]map[chan AdvisoryEvent]struct{}
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[string]map[chan AdvisoryEvent]struct{})}
}

// Run publishes every event from events until it is closed.
func (b *Broadcaster) Run(events <-chan AdvisoryEvent) {
	for ev := range events {
		b.Publish(ev)
	}
}

// Publish delivers ev to the subscribers of ev.UserID without blocking.
func (b *Broadcaster) Publish(ev AdvisoryEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[ev.UserID] {
		select {
		case ch <- ev:
		default:
			log.Printf("advisory stream for user %s is behind, dropping %s", ev.UserID, ev.AdvisoryID)
		}
	}
}

// Subscribe registers interest in userID's advisories.  The returned
// function unsubscribes and must be called once.
func (b *Broadcaster) Subscribe(userID string) (<-chan AdvisoryEvent, func()) {
	ch := make(chan AdvisoryEvent, subscriberBuffer)
	b.mu.Lock()
	if b.subs[userID] == nil {
		b.subs[userID] = make(map[chan AdvisoryEvent]struct{})
	}
	b.subs[userID][ch] = struct{}{}
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[userID], ch)
		if len(b.subs[userID]) == 0 {
			delete(b.subs, userID)
		}
	}
}
