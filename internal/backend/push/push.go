// Package push subscribes to the backend task notifications streamed over a
// websocket. Delivery is at-most-once: notifications sent while the connection
// is down or while the consumer is behind are lost, the status queries are the
// source of truth.
package push

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"

	"github.com/slok/btorch/internal/backend"
	"github.com/slok/btorch/internal/log"
	"github.com/slok/btorch/internal/model"
)

// SubscriberConfig is the configuration of the websocket subscriber.
type SubscriberConfig struct {
	// URL is the websocket endpoint (e.g. "ws://localhost:8000/ws").
	URL string
	// Dialer is the websocket dialer.
	Dialer *websocket.Dialer
	// BufferSize is the number of events buffered per subscription.
	BufferSize int
	// ReconnectInitialInterval is the first wait before reconnecting.
	ReconnectInitialInterval time.Duration
	// ReconnectMaxInterval caps the wait between reconnects.
	ReconnectMaxInterval time.Duration
	Logger               log.Logger
}

func (c *SubscriberConfig) defaults() error {
	if c.URL == "" {
		return fmt.Errorf("websocket URL is required")
	}
	if !strings.HasPrefix(c.URL, "ws://") && !strings.HasPrefix(c.URL, "wss://") {
		return fmt.Errorf("websocket URL %q must be a ws(s) URL", c.URL)
	}
	if c.Dialer == nil {
		c.Dialer = &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	}
	if c.BufferSize <= 0 {
		c.BufferSize = 64
	}
	if c.ReconnectInitialInterval <= 0 {
		c.ReconnectInitialInterval = 500 * time.Millisecond
	}
	if c.ReconnectMaxInterval <= 0 {
		c.ReconnectMaxInterval = 15 * time.Second
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "backend.push.Subscriber"})
	return nil
}

// Subscriber opens task subscriptions on the backend websocket.
type Subscriber struct {
	url             string
	dialer          *websocket.Dialer
	bufferSize      int
	initialInterval time.Duration
	maxInterval     time.Duration
	logger          log.Logger
}

// NewSubscriber returns a new websocket subscriber.
func NewSubscriber(cfg SubscriberConfig) (*Subscriber, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Subscriber{
		url:             cfg.URL,
		dialer:          cfg.Dialer,
		bufferSize:      cfg.BufferSize,
		initialInterval: cfg.ReconnectInitialInterval,
		maxInterval:     cfg.ReconnectMaxInterval,
		logger:          cfg.Logger,
	}, nil
}

// SubscribeMessage is sent after connecting to join a task topic.
type SubscribeMessage struct {
	Action string `json:"action"`
	Topic  string `json:"topic"`
}

// Subscribe connects and joins the topic of the task. The first connection
// must succeed, the following ones are retried with backoff until the
// subscription is closed.
func (s *Subscriber) Subscribe(ctx context.Context, taskID string) (backend.Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)
	sub := &subscription{
		subscriber: s,
		taskID:     taskID,
		events:     make(chan model.ProgressEvent, s.bufferSize),
		cancel:     cancel,
		logger:     s.logger.WithValues(log.Kv{"task-id": taskID}),
	}

	conn, err := s.connect(ctx, taskID)
	if err != nil {
		cancel()
		return nil, err
	}
	sub.setConn(conn)

	go sub.run(ctx)

	return sub, nil
}

func (s *Subscriber) connect(ctx context.Context, taskID string) (*websocket.Conn, error) {
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("could not connect to %s: %w: %w", s.url, model.ErrTransport, err)
	}

	msg := SubscribeMessage{Action: "subscribe", Topic: backend.Topic(taskID)}
	if err := conn.WriteJSON(msg); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("could not subscribe to %s: %w: %w", msg.Topic, model.ErrTransport, err)
	}

	return conn, nil
}

type subscription struct {
	subscriber *Subscriber
	taskID     string
	events     chan model.ProgressEvent
	cancel     context.CancelFunc
	logger     log.Logger

	mu   sync.Mutex
	conn *websocket.Conn
	once sync.Once
}

func (s *subscription) Events() <-chan model.ProgressEvent { return s.events }

// Close stops the subscription, the events channel is closed asynchronously.
func (s *subscription) Close() error {
	s.once.Do(func() {
		s.cancel()
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.conn != nil {
			_ = s.conn.Close()
		}
	})
	return nil
}

func (s *subscription) setConn(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn = conn
}

func (s *subscription) run(ctx context.Context) {
	defer close(s.events)

	// Unblock the reads when the parent context ends.
	go func() {
		<-ctx.Done()
		_ = s.Close()
	}()

	for {
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()

		s.readLoop(conn)
		_ = conn.Close()

		if ctx.Err() != nil {
			return
		}

		s.logger.Warningf("Push connection lost, reconnecting")
		conn, err := s.reconnect(ctx)
		if err != nil {
			s.logger.Debugf("Push subscription stopped: %s", err)
			return
		}
		s.setConn(conn)

		// Closed while reconnecting.
		if ctx.Err() != nil {
			_ = conn.Close()
			return
		}
	}
}

func (s *subscription) reconnect(ctx context.Context) (*websocket.Conn, error) {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = s.subscriber.initialInterval
	expBackoff.MaxInterval = s.subscriber.maxInterval
	expBackoff.MaxElapsedTime = 0

	var conn *websocket.Conn
	operation := func() error {
		var err error
		conn, err = s.subscriber.connect(ctx, s.taskID)
		return err
	}
	notify := func(err error, next time.Duration) {
		s.logger.Debugf("Push reconnect failed, retrying in %s: %s", next, err)
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(expBackoff, ctx), notify); err != nil {
		return nil, err
	}

	return conn, nil
}

func (s *subscription) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg backend.StatusMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Debugf("Ignoring non JSON push message: %s", err)
			continue
		}
		// Subscription acks and other control messages carry no status.
		if msg.Status == "" {
			continue
		}

		st, err := msg.ToJobStatus()
		if err != nil {
			s.logger.Warningf("Ignoring invalid push message: %s", err)
			continue
		}
		if st.TaskID != s.taskID {
			continue
		}

		select {
		case s.events <- st.ToEvent(model.EventSourcePush):
		default:
			s.logger.Warningf("Push event dropped, consumer is behind")
		}
	}
}
