package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/estately/priceuq/internal/domain"
)

// runChannelPrefix namespaces run progress channels in Redis
const runChannelPrefix = "priceuq:runs:"

// RunChannel returns the pub/sub channel carrying progress for a run
func RunChannel(runID uuid.UUID) string {
	return runChannelPrefix + runID.String()
}

// MessageBus publishes raw messages to a channel
type MessageBus interface {
	Publish(ctx context.Context, channel string, message any) error
}

// ProgressPublisher emits run progress events
type ProgressPublisher interface {
	PublishProgress(ctx context.Context, event domain.RunProgressEvent) error
}

// BusPublisher sends progress events over a MessageBus as JSON
type BusPublisher struct {
	bus MessageBus
}

// NewBusPublisher creates a publisher on bus
func NewBusPublisher(bus MessageBus) *BusPublisher {
	return &BusPublisher{bus: bus}
}

// PublishProgress publishes event on the run's channel
func (p *BusPublisher) PublishProgress(ctx context.Context, event domain.RunProgressEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal progress event: %w", err)
	}
	return p.bus.Publish(ctx, RunChannel(event.RunID), data)
}

// Subscriber is one client following a run
type Subscriber struct {
	ID      string
	RunID   uuid.UUID
	Channel chan domain.RunProgressEvent
	Done    chan struct{}
}

// RealtimeService fans progress events out to in-process subscribers
type RealtimeService struct {
	logger *zap.Logger

	mu          sync.RWMutex
	subscribers map[string]*Subscriber
}

// NewRealtimeService creates a new realtime service
func NewRealtimeService(logger *zap.Logger) *RealtimeService {
	return &RealtimeService{
		logger:      logger,
		subscribers: make(map[string]*Subscriber),
	}
}

// Subscribe registers a subscriber for runID until ctx ends or Unsubscribe
func (s *RealtimeService) Subscribe(ctx context.Context, runID uuid.UUID) *Subscriber {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub := &Subscriber{
		ID:      uuid.New().String(),
		RunID:   runID,
		Channel: make(chan domain.RunProgressEvent, 64),
		Done:    make(chan struct{}),
	}
	s.subscribers[sub.ID] = sub

	go func() {
		select {
		case <-ctx.Done():
			s.Unsubscribe(sub.ID)
		case <-sub.Done:
		}
	}()

	return sub
}

// Unsubscribe removes a subscription and closes its channel
func (s *RealtimeService) Unsubscribe(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sub, ok := s.subscribers[id]; ok {
		close(sub.Done)
		close(sub.Channel)
		delete(s.subscribers, id)
	}
}

// Subscribers returns the number of active subscriptions
func (s *RealtimeService) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscribers)
}

// PublishProgress delivers event to local subscribers of its run. Slow
// subscribers drop events rather than block training.
func (s *RealtimeService) PublishProgress(_ context.Context, event domain.RunProgressEvent) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sub := range s.subscribers {
		if sub.RunID != event.RunID {
			continue
		}
		select {
		case sub.Channel <- event:
		default:
		}
	}
	return nil
}

// Relay forwards events received from Redis to local subscribers until ctx
// ends or msgs is closed.
func (s *RealtimeService) Relay(ctx context.Context, msgs <-chan *redis.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			if !strings.HasPrefix(msg.Channel, runChannelPrefix) {
				continue
			}
			var event domain.RunProgressEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				s.logger.Warn("dropping malformed progress event",
					zap.String("channel", msg.Channel),
					zap.Error(err),
				)
				continue
			}
			_ = s.PublishProgress(ctx, event)
		}
	}
}

// RunChannelPattern matches every run progress channel
const RunChannelPattern = runChannelPrefix + "*"
