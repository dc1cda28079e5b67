package chat

import (
	"log"
	"sort"
	"sync"

	"github.com/pawhaven/chatkit/internal/stats"
	"github.com/pawhaven/chatkit/internal/types"
)

// frameSender is the outbound half of the transport connection.
type frameSender interface {
	Send(payload []byte) error
}

// Subscription is the cancelable handle for one room's push feed. Owned
// by the multiplexer; Cancel is safe to call more than once.
type Subscription struct {
	RoomID string

	mux  *SubscriptionMultiplexer
	once sync.Once
}

func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.mux.Unsubscribe(s.RoomID)
	})
}

// SubscriptionMultiplexer decides which channels ride on the shared
// connection. USER sessions keep at most one room-detail subscription
// plus the unread-total channel; OPERATOR sessions keep one per visible
// room plus the room-list and unread-total channels.
type SubscriptionMultiplexer struct {
	log    *log.Logger
	stats  stats.StatsProvider
	role   types.Role
	sender frameSender

	// onDrop tells the dispatcher to discard late frames for a room.
	onDrop func(roomID string)
	// onRestore re-admits a room's frames on subscribe.
	onRestore func(roomID string)

	mu     sync.Mutex
	active map[string]*Subscription
}

func NewSubscriptionMultiplexer(role types.Role, sender frameSender, logger *log.Logger, sp stats.StatsProvider) *SubscriptionMultiplexer {
	return &SubscriptionMultiplexer{
		log:    logger,
		stats:  sp,
		role:   role,
		sender: sender,
		active: make(map[string]*Subscription),
	}
}

// SetDropHandlers wires the dispatcher's frame-drop bookkeeping.
func (m *SubscriptionMultiplexer) SetDropHandlers(onDrop, onRestore func(roomID string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onDrop = onDrop
	m.onRestore = onRestore
}

// Subscribe opens the room's push feed. Idempotent: an already
// subscribed room returns its existing handle. In USER mode the
// previous room-detail subscription is dropped first.
func (m *SubscriptionMultiplexer) Subscribe(roomID string) (*Subscription, error) {
	m.mu.Lock()

	if sub, ok := m.active[roomID]; ok {
		m.mu.Unlock()
		return sub, nil
	}

	var evicted []string
	if m.role == types.RoleUser {
		for id := range m.active {
			evicted = append(evicted, id)
		}
	}
	m.mu.Unlock()

	for _, id := range evicted {
		m.Unsubscribe(id)
	}

	if err := m.sendFrame(&ClientFrame{Subscribe: &Subscribe{Channel: roomChannel(roomID)}}); err != nil {
		return nil, err
	}

	m.mu.Lock()
	sub := &Subscription{RoomID: roomID, mux: m}
	m.active[roomID] = sub
	restore := m.onRestore
	m.mu.Unlock()

	m.stats.Incr(stats.ActiveSubscriptions)
	if restore != nil {
		restore(roomID)
	}
	return sub, nil
}

// Unsubscribe closes the room's push feed and tells the dispatcher to
// drop any frames still in flight for it.
func (m *SubscriptionMultiplexer) Unsubscribe(roomID string) {
	m.mu.Lock()
	if _, ok := m.active[roomID]; !ok {
		m.mu.Unlock()
		return
	}
	delete(m.active, roomID)
	drop := m.onDrop
	m.mu.Unlock()

	m.stats.Decr(stats.ActiveSubscriptions)
	if drop != nil {
		drop(roomID)
	}

	if err := m.sendFrame(&ClientFrame{Unsubscribe: &Unsubscribe{Channel: roomChannel(roomID)}}); err != nil {
		// non-fatal: the server drops the subscription with the session
		m.log.Printf("unsubscribe %q: %v", roomID, err)
	}
}

// Resubscribe replays the account channels and the active room set on a
// fresh connection. Rooms are replayed ascending by id so the replay is
// deterministic; the server treats replays as idempotent.
func (m *SubscriptionMultiplexer) Resubscribe() {
	channels := []string{unreadTotalChannel}
	if m.role == types.RoleOperator {
		channels = append(channels, roomListChannel)
	}
	for _, ch := range channels {
		if err := m.sendFrame(&ClientFrame{Subscribe: &Subscribe{Channel: ch}}); err != nil {
			m.log.Printf("resubscribe %q: %v", ch, err)
		}
	}

	for _, roomID := range m.ActiveSet() {
		if err := m.sendFrame(&ClientFrame{Subscribe: &Subscribe{Channel: roomChannel(roomID)}}); err != nil {
			m.log.Printf("resubscribe room %q: %v", roomID, err)
		}
	}
}

// ActiveSet returns the subscribed room ids in ascending order.
func (m *SubscriptionMultiplexer) ActiveSet() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.active))
	for id := range m.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (m *SubscriptionMultiplexer) sendFrame(frame *ClientFrame) error {
	payload, err := encodeClientFrame(frame)
	if err != nil {
		return err
	}
	return m.sender.Send(payload)
}
