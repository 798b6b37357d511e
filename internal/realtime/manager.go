package realtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/johnyarcher2100/chatwithyou-sync/internal/baas"
	"github.com/johnyarcher2100/chatwithyou-sync/internal/bus"
	"go.uber.org/zap"
)

// EventChannel is an open change-feed subscription.
type EventChannel interface {
	Events() <-chan baas.ChangeEvent
	Close(ctx context.Context) error
}

// ChannelOpener opens change-feed channels on the backend stream.
type ChannelOpener interface {
	OpenChannel(ctx context.Context, table, filter string) (EventChannel, error)
}

// Directory resolves user profiles for participant enrichment.
type Directory interface {
	GetProfile(ctx context.Context, userID string) (*baas.ProfileRow, error)
}

// SubscriptionError wraps a failed channel open with its topic.
type SubscriptionError struct {
	Table  string
	Filter string
	Err    error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("subscribe %s (%s): %v", e.Table, e.Filter, e.Err)
}

func (e *SubscriptionError) Unwrap() error { return e.Err }

// NotificationHandle identifies one notification subscription so it can be
// released independently of others on the same feed.
type NotificationHandle struct {
	userID string
	id     int
}

type chatSub struct {
	channels []EventChannel
}

type notifFeed struct {
	ch        EventChannel
	callbacks map[int]func(baas.NotificationRow)
}

// Manager multiplexes backend change feeds into typed events. Per chat it
// keeps three channels open (messages, chat metadata, participants);
// subscribing twice to the same chat is a no-op. All events also land on
// the bus for the cache ingester.
type Manager struct {
	opener ChannelOpener
	dir    Directory
	reg    *Registry
	bus    *bus.Bus
	logger *zap.Logger
	userID string

	mu      sync.Mutex
	chats   map[string]*chatSub
	friends []EventChannel
	notifs  map[string]*notifFeed
	nextID  int
	closed  bool
	wg      sync.WaitGroup
}

func NewManager(opener ChannelOpener, dir Directory, reg *Registry, b *bus.Bus, logger *zap.Logger, userID string) *Manager {
	return &Manager{
		opener: opener,
		dir:    dir,
		reg:    reg,
		bus:    b,
		logger: logger,
		userID: userID,
		chats:  make(map[string]*chatSub),
		notifs: make(map[string]*notifFeed),
	}
}

// SubscribeChat opens the three change feeds for one chat. Calling it again
// for a chat that is already subscribed does nothing and opens nothing.
func (m *Manager) SubscribeChat(ctx context.Context, chatID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("realtime manager closed")
	}
	if _, ok := m.chats[chatID]; ok {
		return nil
	}

	feeds := []struct {
		table  string
		filter string
		handle func(baas.ChangeEvent)
	}{
		{baas.TableMessages, "chat_id=eq." + chatID, m.handleMessageChange},
		{baas.TableChats, "id=eq." + chatID, m.handleChatChange},
		{baas.TableParticipants, "chat_id=eq." + chatID, m.handleParticipantChange},
	}

	opened := make([]EventChannel, 0, len(feeds))
	for _, sp := range feeds {
		ch, err := m.opener.OpenChannel(ctx, sp.table, sp.filter)
		if err != nil {
			for _, c := range opened {
				_ = c.Close(ctx)
			}
			return &SubscriptionError{Table: sp.table, Filter: sp.filter, Err: err}
		}
		opened = append(opened, ch)
		m.wg.Add(1)
		go m.pump(ch, sp.handle)
	}

	m.chats[chatID] = &chatSub{channels: opened}
	m.logger.Debug("chat subscribed", zap.String("chat_id", chatID))
	return nil
}

// UnsubscribeChat closes the chat's channels. Unknown chat ids are ignored.
func (m *Manager) UnsubscribeChat(ctx context.Context, chatID string) {
	m.mu.Lock()
	sub, ok := m.chats[chatID]
	if ok {
		delete(m.chats, chatID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	for _, ch := range sub.channels {
		_ = ch.Close(ctx)
	}
	m.logger.Debug("chat unsubscribed", zap.String("chat_id", chatID))
}

// SubscribeFriendRequests watches friend-request rows in both directions
// for the local user. Idempotent.
func (m *Manager) SubscribeFriendRequests(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("realtime manager closed")
	}
	if len(m.friends) > 0 {
		return nil
	}

	filters := []string{"sender_id=eq." + m.userID, "receiver_id=eq." + m.userID}
	opened := make([]EventChannel, 0, len(filters))
	for _, f := range filters {
		ch, err := m.opener.OpenChannel(ctx, baas.TableFriendRequests, f)
		if err != nil {
			for _, c := range opened {
				_ = c.Close(ctx)
			}
			return &SubscriptionError{Table: baas.TableFriendRequests, Filter: f, Err: err}
		}
		opened = append(opened, ch)
		m.wg.Add(1)
		go m.pump(ch, m.handleFriendChange)
	}
	m.friends = opened
	return nil
}

// UnsubscribeFriendRequests closes the friend-request channels. No-op when
// not subscribed.
func (m *Manager) UnsubscribeFriendRequests(ctx context.Context) {
	m.mu.Lock()
	chans := m.friends
	m.friends = nil
	m.mu.Unlock()
	for _, ch := range chans {
		_ = ch.Close(ctx)
	}
}

// SubscribeNotifications registers a callback for a user's notification
// rows and returns a handle for release. The underlying channel is shared
// between callbacks on the same user and closed when the last one leaves.
func (m *Manager) SubscribeNotifications(ctx context.Context, userID string, fn func(baas.NotificationRow)) (NotificationHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return NotificationHandle{}, fmt.Errorf("realtime manager closed")
	}

	feed, ok := m.notifs[userID]
	if !ok {
		ch, err := m.opener.OpenChannel(ctx, baas.TableNotifications, "user_id=eq."+userID)
		if err != nil {
			return NotificationHandle{}, &SubscriptionError{Table: baas.TableNotifications, Filter: "user_id=eq." + userID, Err: err}
		}
		feed = &notifFeed{ch: ch, callbacks: make(map[int]func(baas.NotificationRow))}
		m.notifs[userID] = feed
		m.wg.Add(1)
		go m.pump(ch, func(evt baas.ChangeEvent) { m.dispatchNotification(userID, evt) })
	}

	m.nextID++
	feed.callbacks[m.nextID] = fn
	return NotificationHandle{userID: userID, id: m.nextID}, nil
}

// UnsubscribeNotifications releases one notification subscription. Closing
// an already-released or zero handle is a no-op.
func (m *Manager) UnsubscribeNotifications(ctx context.Context, h NotificationHandle) {
	m.mu.Lock()
	feed, ok := m.notifs[h.userID]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(feed.callbacks, h.id)
	var toClose EventChannel
	if len(feed.callbacks) == 0 {
		delete(m.notifs, h.userID)
		toClose = feed.ch
	}
	m.mu.Unlock()

	if toClose != nil {
		_ = toClose.Close(ctx)
	}
}

// Close tears down every open channel and waits for the pumps to drain.
// The manager cannot be reused afterwards.
func (m *Manager) Close(ctx context.Context) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	var chans []EventChannel
	for _, sub := range m.chats {
		chans = append(chans, sub.channels...)
	}
	chans = append(chans, m.friends...)
	for _, feed := range m.notifs {
		chans = append(chans, feed.ch)
	}
	m.chats = make(map[string]*chatSub)
	m.friends = nil
	m.notifs = make(map[string]*notifFeed)
	m.mu.Unlock()

	for _, ch := range chans {
		_ = ch.Close(ctx)
	}
	m.wg.Wait()
	m.logger.Info("realtime manager closed")
}

func (m *Manager) pump(ch EventChannel, handle func(baas.ChangeEvent)) {
	defer m.wg.Done()
	for evt := range ch.Events() {
		handle(evt)
	}
}

func (m *Manager) handleMessageChange(evt baas.ChangeEvent) {
	if evt.Type == baas.ChangeDelete {
		return
	}
	row, err := baas.DecodeMessage(evt.New)
	if err != nil {
		m.logger.Warn("bad message change", zap.Error(err))
		return
	}
	msg := row.ToStoreMessage()
	msg.FromMe = row.SenderID == m.userID

	m.bus.Publish(bus.Event{Kind: bus.KindRealtimeMessage, Timestamp: time.Now(), Payload: msg})
	if evt.Type == baas.ChangeInsert {
		m.reg.emitNewMessage(msg)
	}
}

func (m *Manager) handleChatChange(evt baas.ChangeEvent) {
	if evt.Type == baas.ChangeDelete {
		return
	}
	row, err := baas.DecodeChat(evt.New)
	if err != nil {
		m.logger.Warn("bad chat change", zap.Error(err))
		return
	}
	chat := row.ToStoreChat()

	m.bus.Publish(bus.Event{Kind: bus.KindRealtimeChat, Timestamp: time.Now(), Payload: chat})
	if evt.Type == baas.ChangeInsert {
		m.reg.emitNewChat(chat)
	} else {
		m.reg.emitChatUpdate(chat)
	}
}

func (m *Manager) handleParticipantChange(evt baas.ChangeEvent) {
	var change ParticipantChange
	switch evt.Type {
	case baas.ChangeInsert:
		row, err := baas.DecodeParticipant(evt.New)
		if err != nil {
			m.logger.Warn("bad participant change", zap.Error(err))
			return
		}
		change = ParticipantChange{ChatID: row.ChatID, UserID: row.UserID, Joined: true}
		if m.dir != nil {
			lookupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			profile, err := m.dir.GetProfile(lookupCtx, row.UserID)
			cancel()
			if err != nil {
				m.logger.Debug("participant profile lookup failed",
					zap.String("user_id", row.UserID), zap.Error(err))
			} else {
				change.Profile = profile
			}
		}
	case baas.ChangeDelete:
		row, err := baas.DecodeParticipant(evt.Old)
		if err != nil {
			m.logger.Warn("bad participant change", zap.Error(err))
			return
		}
		change = ParticipantChange{ChatID: row.ChatID, UserID: row.UserID, Joined: false}
	default:
		return
	}

	m.bus.Publish(bus.Event{Kind: bus.KindRealtimeParticipant, Timestamp: time.Now(), Payload: change})
	m.reg.emitParticipant(change)
}

func (m *Manager) handleFriendChange(evt baas.ChangeEvent) {
	if evt.Type == baas.ChangeDelete {
		return
	}
	row, err := baas.DecodeFriendRequest(evt.New)
	if err != nil {
		m.logger.Warn("bad friend request change", zap.Error(err))
		return
	}
	fe := FriendEvent{Request: *row, Incoming: row.ReceiverID == m.userID}

	m.bus.Publish(bus.Event{Kind: bus.KindRealtimeFriend, Timestamp: time.Now(), Payload: fe})
	if evt.Type == baas.ChangeInsert && row.Status == "pending" {
		m.reg.emitFriendRequest(fe)
	} else {
		m.reg.emitFriendStatusChange(fe)
	}
}

func (m *Manager) dispatchNotification(userID string, evt baas.ChangeEvent) {
	if evt.Type != baas.ChangeInsert {
		return
	}
	row, err := baas.DecodeNotification(evt.New)
	if err != nil {
		m.logger.Warn("bad notification change", zap.Error(err))
		return
	}

	m.mu.Lock()
	var callbacks []func(baas.NotificationRow)
	if feed, ok := m.notifs[userID]; ok {
		for _, fn := range feed.callbacks {
			callbacks = append(callbacks, fn)
		}
	}
	m.mu.Unlock()

	for _, fn := range callbacks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error("notification handler panicked", zap.Any("panic", r))
				}
			}()
			fn(*row)
		}()
	}
}
