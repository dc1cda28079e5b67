package chat

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/pawhaven/chatkit/internal/rest"
	"github.com/pawhaven/chatkit/internal/stats"
	"github.com/pawhaven/chatkit/internal/types"
)

// ChatAPI is the full REST collaborator surface the client consumes.
type ChatAPI interface {
	RoomAPI
	History(ctx context.Context, roomID string, page, size int) (rest.HistoryPage, error)
	UnreadCount(ctx context.Context) (int, error)
}

// connection abstracts the ConnectionManager for tests.
type connection interface {
	Connect() error
	Disconnect()
	Send(payload []byte) error
	Frames() <-chan []byte
	State() types.ConnectionState
	OnConnected(func())
	OnStateChange(func(types.ConnectionState))
}

// ChatClient owns the serialized dispatch loop. Inbound frames, REST
// completions and local user actions all mutate the directory, stores
// and counter from the one Run goroutine; snapshots can be read from
// anywhere.
type ChatClient struct {
	log     *log.Logger
	stats   stats.StatsProvider
	session types.Session
	conn    connection
	api     ChatAPI

	Directory *RoomDirectory
	Store     *MessageStore
	Unread    *UnreadCounter
	Subs      *SubscriptionMultiplexer

	// onMessage, when set before Start, observes every routed message
	// frame. Invoked on the dispatch goroutine; must not block.
	onMessage func(types.Message)

	actions chan func()
	// dropped holds room ids whose late frames are discarded after an
	// unsubscribe. Touched only on the dispatch goroutine.
	dropped map[string]struct{}

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func NewChatClient(session types.Session, conn connection, api ChatAPI, logger *log.Logger, sp stats.StatsProvider) *ChatClient {
	c := &ChatClient{
		log:     logger,
		stats:   sp,
		session: session,
		conn:    conn,
		api:     api,
		actions: make(chan func(), 64),
		dropped: make(map[string]struct{}),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	c.Directory = NewRoomDirectory(api, logger)
	c.Store = NewMessageStore(logger, sp, c.post)
	c.Unread = NewUnreadCounter(logger)
	c.Subs = NewSubscriptionMultiplexer(session.Role, conn, logger, sp)
	c.Subs.SetDropHandlers(c.dropRoom, c.restoreRoom)

	conn.OnConnected(c.Subs.Resubscribe)

	return c
}

// SetMessageHandler registers the message observer. Call before Start.
func (c *ChatClient) SetMessageHandler(handler func(types.Message)) {
	c.onMessage = handler
}

// Start connects the transport and begins dispatching.
func (c *ChatClient) Start() error {
	if err := c.conn.Connect(); err != nil {
		return err
	}
	go c.run()
	return nil
}

// Stop disconnects and stops the dispatch loop. Terminal.
func (c *ChatClient) Stop() {
	c.stopOnce.Do(func() {
		c.conn.Disconnect()
		close(c.stop)
		<-c.done
	})
}

func (c *ChatClient) run() {
	defer close(c.done)

	frames := c.conn.Frames()
	for {
		select {
		case raw, ok := <-frames:
			if !ok {
				frames = nil
				continue
			}
			c.handleFrame(raw)
		case f := <-c.actions:
			f()
		case <-c.stop:
			return
		}
	}
}

// post queues work onto the dispatch loop. Used for user actions, REST
// completions and timer fires alike.
func (c *ChatClient) post(f func()) {
	select {
	case c.actions <- f:
	case <-c.stop:
	}
}

func (c *ChatClient) handleFrame(raw []byte) {
	frame, err := decodeServerFrame(raw)
	if err != nil {
		c.log.Println("rejecting frame:", err)
		c.stats.Incr(stats.FramesDropped)
		return
	}

	switch {
	case frame.Message != nil:
		msg := frame.Message
		if _, ok := c.dropped[msg.RoomID]; ok {
			c.stats.Incr(stats.FramesDropped)
			return
		}
		c.stats.Incr(stats.FramesRouted)
		c.Store.AppendIncoming(*msg)
		c.Directory.NoteMessage(msg.RoomID, msg.SentAt)
		if c.onMessage != nil {
			c.onMessage(*msg)
		}
	case frame.RoomEvent != nil:
		ev := *frame.RoomEvent
		c.stats.Incr(stats.FramesRouted)
		c.Directory.ApplyRoomEvent(ev)
		if ev.Kind == types.RoomEventMessage {
			c.Unread.OnRoomListPush(ev.RoomID, ev.UnreadCount, ev.LastMessageAt)
		}
	case frame.Unread != nil:
		c.stats.Incr(stats.FramesRouted)
		c.Unread.OnServerUnreadPush(frame.Unread.Total)
	}
}

func (c *ChatClient) dropRoom(roomID string) {
	c.post(func() {
		c.dropped[roomID] = struct{}{}
	})
}

func (c *ChatClient) restoreRoom(roomID string) {
	c.post(func() {
		delete(c.dropped, roomID)
	})
}

type sendResult struct {
	msg types.Message
	err error
}

// SendMessage appends an optimistic PENDING message and publishes its
// content. The server assigns the id and timestamp; the echo confirms
// the local entry. A transport failure leaves the entry pending until
// the failure timeout marks it FAILED.
func (c *ChatClient) SendMessage(roomID, content string) (types.Message, error) {
	resCh := make(chan sendResult, 1)
	c.post(func() {
		msg := c.Store.AppendOptimistic(roomID, c.session.UserID, content)
		resCh <- sendResult{msg, c.publish(roomID, content, msg.CorrelationID)}
	})

	select {
	case res := <-resCh:
		return res.msg, res.err
	case <-c.stop:
		return types.Message{}, errors.New("client stopped")
	}
}

// ResendMessage re-appends a FAILED message as a fresh send. Explicit
// and user-triggered only.
func (c *ChatClient) ResendMessage(roomID, localID string) (types.Message, error) {
	resCh := make(chan sendResult, 1)
	c.post(func() {
		msg, err := c.Store.Resend(roomID, localID)
		if err != nil {
			resCh <- sendResult{err: err}
			return
		}
		resCh <- sendResult{msg, c.publish(roomID, msg.Content, msg.CorrelationID)}
	})

	select {
	case res := <-resCh:
		return res.msg, res.err
	case <-c.stop:
		return types.Message{}, errors.New("client stopped")
	}
}

func (c *ChatClient) publish(roomID, content, correlationID string) error {
	payload, err := encodeClientFrame(&ClientFrame{Publish: &Publish{
		RoomID:        roomID,
		Content:       content,
		CorrelationID: correlationID,
	}})
	if err != nil {
		return err
	}
	return c.conn.Send(payload)
}

// FocusRoom subscribes the room's push feed, optimistically zeroes its
// unread count and opens it server-side, which resets the server's
// count for it.
func (c *ChatClient) FocusRoom(ctx context.Context, roomID string) (*Subscription, error) {
	sub, err := c.Subs.Subscribe(roomID)
	if err != nil {
		return nil, err
	}

	done := make(chan struct{})
	c.post(func() {
		c.Unread.OnRoomFocus(roomID)
		close(done)
	})
	select {
	case <-done:
	case <-c.stop:
		return sub, errors.New("client stopped")
	}

	if _, err := c.Directory.Open(ctx, roomID); err != nil {
		// focus stands; the server-side reset catches up on the next push
		c.log.Printf("open room %q: %v", roomID, err)
	}
	return sub, nil
}

// BlurRoom unfocuses the room: its subscription is destroyed and the
// unread counts become authoritative again.
func (c *ChatClient) BlurRoom(roomID string) {
	c.Subs.Unsubscribe(roomID)
	c.post(c.Unread.OnRoomBlur)
}

// LoadOlder fetches the next history page for a room and merges it on
// the dispatch loop. Reports whether more pages remain. A fetch error
// leaves previously loaded pages intact.
func (c *ChatClient) LoadOlder(ctx context.Context, roomID string) (bool, error) {
	page, size := c.Store.NextPage(roomID)
	envelope, err := c.api.History(ctx, roomID, page, size)
	if err != nil {
		return c.Store.HasMore(roomID), err
	}

	done := make(chan struct{})
	c.post(func() {
		c.Store.MergePage(roomID, envelope)
		close(done)
	})
	select {
	case <-done:
	case <-c.stop:
		return false, errors.New("client stopped")
	}

	return c.Store.HasMore(roomID), nil
}

// Sync reloads the room directory and the global unread total from the
// REST collaborators.
func (c *ChatClient) Sync(ctx context.Context) error {
	if err := c.Directory.Refresh(ctx); err != nil {
		return err
	}

	total, err := c.api.UnreadCount(ctx)
	if err != nil {
		return err
	}
	c.post(func() {
		c.Unread.OnServerUnreadPush(total)
	})
	return nil
}

// HideRoom soft-deletes a room and drops its subscription if one is
// active.
func (c *ChatClient) HideRoom(ctx context.Context, roomID string) error {
	c.Subs.Unsubscribe(roomID)
	return c.Directory.Hide(ctx, roomID)
}

// ConnectionState reports the transport state for the UI indicator.
func (c *ChatClient) ConnectionState() types.ConnectionState {
	return c.conn.State()
}

// OnConnectionStateChange registers a transport state observer.
func (c *ChatClient) OnConnectionStateChange(handler func(types.ConnectionState)) {
	c.conn.OnStateChange(handler)
}
