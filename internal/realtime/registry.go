package realtime

import (
	"reflect"
	"sync"

	"github.com/johnyarcher2100/chatwithyou-sync/internal/store"
	"go.uber.org/zap"
)

// handlerList keeps registered callbacks in insertion order. A function is
// registered at most once; adding it again is a no-op, and removal matches
// the same function value.
type handlerList[T any] struct {
	mu       sync.Mutex
	handlers []func(T)
}

func fnKey[T any](fn func(T)) uintptr {
	return reflect.ValueOf(fn).Pointer()
}

func (l *handlerList[T]) add(fn func(T)) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	key := fnKey(fn)
	for _, h := range l.handlers {
		if fnKey(h) == key {
			return
		}
	}
	l.handlers = append(l.handlers, fn)
}

func (l *handlerList[T]) remove(fn func(T)) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	key := fnKey(fn)
	for i, h := range l.handlers {
		if fnKey(h) == key {
			l.handlers = append(l.handlers[:i], l.handlers[i+1:]...)
			return
		}
	}
}

// emit calls every handler in registration order. A panicking handler is
// logged and skipped; the rest still run.
func (l *handlerList[T]) emit(v T, logger *zap.Logger) {
	l.mu.Lock()
	handlers := make([]func(T), len(l.handlers))
	copy(handlers, l.handlers)
	l.mu.Unlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("event handler panicked", zap.Any("panic", r))
				}
			}()
			h(v)
		}()
	}
}

// Registry holds application callbacks for realtime events. The manager
// feeds it; UI layers register and unregister handlers as views come and go.
type Registry struct {
	logger *zap.Logger

	newMessage   handlerList[*store.Message]
	newChat      handlerList[*store.Chat]
	chatUpdate   handlerList[*store.Chat]
	participant  handlerList[ParticipantChange]
	friendReq    handlerList[FriendEvent]
	friendStatus handlerList[FriendEvent]
}

func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{logger: logger}
}

func (r *Registry) OnNewMessage(fn func(*store.Message))     { r.newMessage.add(fn) }
func (r *Registry) RemoveNewMessage(fn func(*store.Message)) { r.newMessage.remove(fn) }

func (r *Registry) OnNewChat(fn func(*store.Chat))     { r.newChat.add(fn) }
func (r *Registry) RemoveNewChat(fn func(*store.Chat)) { r.newChat.remove(fn) }

func (r *Registry) OnChatUpdate(fn func(*store.Chat))     { r.chatUpdate.add(fn) }
func (r *Registry) RemoveChatUpdate(fn func(*store.Chat)) { r.chatUpdate.remove(fn) }

func (r *Registry) OnParticipantChange(fn func(ParticipantChange))     { r.participant.add(fn) }
func (r *Registry) RemoveParticipantChange(fn func(ParticipantChange)) { r.participant.remove(fn) }

func (r *Registry) OnFriendRequest(fn func(FriendEvent))     { r.friendReq.add(fn) }
func (r *Registry) RemoveFriendRequest(fn func(FriendEvent)) { r.friendReq.remove(fn) }

func (r *Registry) OnFriendStatusChange(fn func(FriendEvent))     { r.friendStatus.add(fn) }
func (r *Registry) RemoveFriendStatusChange(fn func(FriendEvent)) { r.friendStatus.remove(fn) }

func (r *Registry) emitNewMessage(m *store.Message)      { r.newMessage.emit(m, r.logger) }
func (r *Registry) emitNewChat(c *store.Chat)            { r.newChat.emit(c, r.logger) }
func (r *Registry) emitChatUpdate(c *store.Chat)         { r.chatUpdate.emit(c, r.logger) }
func (r *Registry) emitParticipant(p ParticipantChange)  { r.participant.emit(p, r.logger) }
func (r *Registry) emitFriendRequest(e FriendEvent)      { r.friendReq.emit(e, r.logger) }
func (r *Registry) emitFriendStatusChange(e FriendEvent) { r.friendStatus.emit(e, r.logger) }
