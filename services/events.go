package services

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"go.uber.org/zap"

	"github.com/linkup-social/linkup/models"
	"github.com/linkup-social/linkup/utils"
)

// FeedTopic is the watermill topic carrying post changes.
const FeedTopic = "feed.events"

// Feed event types.
const (
	EventPostCreated = "post.created"
	EventPostUpdated = "post.updated"
	EventPostDeleted = "post.deleted"
)

// FeedEvent describes a change to one post. Post is the authoritative state
// after the change and is nil for deletions.
type FeedEvent struct {
	Type   string       `json:"type"`
	PostID uint         `json:"postId"`
	Post   *models.Post `json:"post,omitempty"`
}

// EventBus fans feed events out to in-process subscribers.
type EventBus struct {
	pubsub *gochannel.GoChannel
}

// NewEventBus creates an in-memory event bus.
func NewEventBus() *EventBus {
	return &EventBus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 64},
			zapLoggerAdapter{log: utils.Logger},
		),
	}
}

// Publish sends ev to every current subscriber. Events published with no
// subscriber attached are dropped.
func (b *EventBus) Publish(ev FeedEvent) error {
	if b == nil {
		return nil
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	msg := message.NewMessage(watermill.NewUUID(), data)
	return b.pubsub.Publish(FeedTopic, msg)
}

// Subscribe returns a channel of feed events that closes when ctx is done or the bus closes.
// A subscriber that falls behind by more than buffer events misses the overflow.
func (b *EventBus) Subscribe(ctx context.Context, buffer int) (<-chan FeedEvent, error) {
	messages, err := b.pubsub.Subscribe(ctx, FeedTopic)
	if err != nil {
		return nil, err
	}
	if buffer <= 0 {
		buffer = 16
	}
	out := make(chan FeedEvent, buffer)
	go func() {
		defer close(out)
		for msg := range messages {
			msg.Ack()

			var ev FeedEvent
			if err := json.Unmarshal(msg.Payload, &ev); err != nil {
				utils.Sugar.Warnf("drop malformed feed event %s: %v", msg.UUID, err)
				continue
			}
			select {
			case out <- ev:
			default:
				utils.Sugar.Debugf("feed subscriber lagging, dropped event %s", ev.Type)
			}
		}
	}()
	return out, nil
}

// Close stops the bus and closes every subscription.
func (b *EventBus) Close() error {
	return b.pubsub.Close()
}

// zapLoggerAdapter routes watermill's logs through zap.
type zapLoggerAdapter struct {
	log    *zap.Logger
	fields watermill.LogFields
}

func (a zapLoggerAdapter) zapFields(fields watermill.LogFields) []zap.Field {
	out := make([]zap.Field, 0, len(a.fields)+len(fields))
	for k, v := range a.fields.Add(fields) {
		out = append(out, zap.Any(k, v))
	}
	return out
}

func (a zapLoggerAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.log.Error(msg, append(a.zapFields(fields), zap.Error(err))...)
}

func (a zapLoggerAdapter) Info(msg string, fields watermill.LogFields) {
	a.log.Info(msg, a.zapFields(fields)...)
}

func (a zapLoggerAdapter) Debug(msg string, fields watermill.LogFields) {
	a.log.Debug(msg, a.zapFields(fields)...)
}

func (a zapLoggerAdapter) Trace(msg string, fields watermill.LogFields) {
	a.log.Debug(msg, a.zapFields(fields)...)
}

func (a zapLoggerAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return zapLoggerAdapter{log: a.log, fields: a.fields.Add(fields)}
}
