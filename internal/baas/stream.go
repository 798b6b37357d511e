package baas

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/johnyarcher2100/chatwithyou-sync/internal/config"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

const heartbeatInterval = 25 * time.Second

// frame is the wire envelope for the realtime websocket. The server pushes
// "change" frames scoped to a topic; the client sends "subscribe",
// "unsubscribe" and "heartbeat".
type frame struct {
	Topic   string          `json:"topic,omitempty"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Ref     int             `json:"ref,omitempty"`
}

// Channel is an open change-feed subscription for one table+filter topic.
type Channel struct {
	topic  string
	stream *Stream
	once   sync.Once

	mu     sync.Mutex
	events chan ChangeEvent
	closed bool
}

// Events returns the channel delivering row changes for this topic.
func (ch *Channel) Events() <-chan ChangeEvent {
	return ch.events
}

// deliver hands an event to the consumer without blocking. Events arriving
// while the channel is closing are discarded; only a full buffer reports
// false.
func (ch *Channel) deliver(evt ChangeEvent) bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.closed {
		return true
	}
	select {
	case ch.events <- evt:
		return true
	default:
		return false
	}
}

// shutdown closes the events channel exactly once, excluding any in-flight
// deliver.
func (ch *Channel) shutdown() {
	ch.mu.Lock()
	if !ch.closed {
		ch.closed = true
		close(ch.events)
	}
	ch.mu.Unlock()
}

// Close unsubscribes the topic and releases the channel. Idempotent and
// safe to call while the stream itself is closing.
func (ch *Channel) Close(ctx context.Context) error {
	var err error
	ch.once.Do(func() {
		err = ch.stream.closeChannel(ctx, ch)
	})
	return err
}

// Stream multiplexes the backend's change-notification websocket into
// per-topic channels. It reconnects with backoff and re-subscribes every
// open topic after a drop.
type Stream struct {
	url    string
	apikey string
	token  string
	logger *zap.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	channels  map[string]*Channel
	nextRef   int
	closed    bool
	connected bool
	loopCtx   context.Context
	cancel    context.CancelFunc

	recon *reconnector
}

// NewStream creates a realtime stream client for the configured backend.
func NewStream(cfg config.Backend, logger *zap.Logger) *Stream {
	wsURL := strings.Replace(cfg.URL, "https://", "wss://", 1)
	wsURL = strings.Replace(wsURL, "http://", "ws://", 1)
	return &Stream{
		url:      strings.TrimRight(wsURL, "/") + "/realtime/v1/websocket",
		apikey:   cfg.AnonKey,
		token:    cfg.AccessToken,
		logger:   logger,
		channels: make(map[string]*Channel),
		recon:    newReconnector(),
	}
}

// Connect dials the websocket and starts the read and heartbeat loops.
func (s *Stream) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("stream closed")
	}
	if s.connected {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	dialURL := s.url + "?apikey=" + s.apikey
	if s.token != "" {
		dialURL += "&token=" + s.token
	}
	conn, _, err := websocket.Dial(ctx, dialURL, nil)
	if err != nil {
		return fmt.Errorf("realtime dial: %w", err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	// Stop the previous connection's loops before installing new ones.
	if s.cancel != nil {
		s.cancel()
	}
	s.conn = conn
	s.connected = true
	s.loopCtx = loopCtx
	s.cancel = cancel
	topics := make([]string, 0, len(s.channels))
	for t := range s.channels {
		topics = append(topics, t)
	}
	s.mu.Unlock()

	s.recon.markConnected()

	// Re-subscribe topics that were open before a reconnect.
	for _, topic := range topics {
		if err := s.send(ctx, frame{Topic: topic, Event: "subscribe"}); err != nil {
			s.logger.Warn("resubscribe failed", zap.String("topic", topic), zap.Error(err))
		}
	}

	go s.readLoop(loopCtx, conn)
	go s.heartbeatLoop(loopCtx)

	s.logger.Info("realtime stream connected")
	return nil
}

// Close tears down the stream and every open channel. Idempotent.
func (s *Stream) Close(_ context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.connected = false
	if s.cancel != nil {
		s.cancel()
	}
	conn := s.conn
	s.conn = nil
	chans := s.channels
	s.channels = make(map[string]*Channel)
	s.mu.Unlock()

	for _, ch := range chans {
		ch.once.Do(func() {})
		ch.shutdown()
	}
	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "client shutdown")
	}
	return nil
}

// OpenChannel subscribes to change events for a table, optionally filtered
// (e.g. "chat_id=eq.123"). One channel per topic; opening a topic that is
// already open returns the existing channel.
func (s *Stream) OpenChannel(ctx context.Context, table, filter string) (*Channel, error) {
	topic := table
	if filter != "" {
		topic = table + ":" + filter
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("stream closed")
	}
	if existing, ok := s.channels[topic]; ok {
		s.mu.Unlock()
		return existing, nil
	}
	ch := &Channel{
		topic:  topic,
		events: make(chan ChangeEvent, 64),
		stream: s,
	}
	s.channels[topic] = ch
	connected := s.connected
	s.mu.Unlock()

	if connected {
		if err := s.send(ctx, frame{Topic: topic, Event: "subscribe"}); err != nil {
			s.mu.Lock()
			delete(s.channels, topic)
			s.mu.Unlock()
			return nil, fmt.Errorf("subscribe %s: %w", topic, err)
		}
	}
	return ch, nil
}

func (s *Stream) closeChannel(ctx context.Context, ch *Channel) error {
	s.mu.Lock()
	if _, ok := s.channels[ch.topic]; !ok {
		s.mu.Unlock()
		return nil
	}
	delete(s.channels, ch.topic)
	connected := s.connected
	s.mu.Unlock()

	ch.shutdown()

	if connected {
		if err := s.send(ctx, frame{Topic: ch.topic, Event: "unsubscribe"}); err != nil {
			// The server drops the topic on disconnect anyway.
			s.logger.Warn("unsubscribe failed", zap.String("topic", ch.topic), zap.Error(err))
		}
	}
	return nil
}

func (s *Stream) send(ctx context.Context, f frame) error {
	s.mu.Lock()
	conn := s.conn
	s.nextRef++
	f.Ref = s.nextRef
	s.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("not connected")
	}
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

func (s *Stream) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			s.mu.Lock()
			// A superseded loop must not flip state owned by the new
			// connection.
			stale := s.conn != conn
			if !stale {
				s.connected = false
			}
			closed := s.closed
			s.mu.Unlock()
			if closed || stale || ctx.Err() != nil {
				return
			}
			s.logger.Warn("realtime stream dropped", zap.Error(err))
			s.scheduleReconnect(ctx)
			return
		}

		var f frame
		if json.Unmarshal(data, &f) != nil {
			continue
		}
		if f.Event != "change" {
			continue
		}

		var evt ChangeEvent
		if err := json.Unmarshal(f.Payload, &evt); err != nil {
			s.logger.Warn("bad change payload", zap.String("topic", f.Topic), zap.Error(err))
			continue
		}

		s.mu.Lock()
		ch, ok := s.channels[f.Topic]
		s.mu.Unlock()
		if !ok {
			continue
		}
		if !ch.deliver(evt) {
			// Slow consumer: drop rather than stall the whole stream.
			s.logger.Warn("dropping change event, channel full", zap.String("topic", f.Topic))
		}
	}
}

func (s *Stream) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.send(ctx, frame{Event: "heartbeat"}); err != nil {
				return
			}
		}
	}
}

func (s *Stream) scheduleReconnect(ctx context.Context) {
	for {
		delay := s.recon.nextDelay()
		s.logger.Info("reconnecting realtime stream", zap.Duration("delay", delay))

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return
		}

		if err := s.Connect(context.Background()); err == nil {
			return
		}
	}
}
