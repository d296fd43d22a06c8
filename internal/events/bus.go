// Package events carries state-change notifications from the sync services to
// whatever renders them.
package events

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"gwi.com/chatsync/internal/store"
)

const Topic = "chatsync"

type Type string

const (
	TypeSessionsUpdated    Type = "sessions.updated"
	TypeConversationLoaded Type = "conversation.loaded"
	TypeMessageAppended    Type = "conversation.appended"
	TypeSendState          Type = "send.state"
	TypeUploadStatus       Type = "upload.status"
)

// Event is one observable change. Only the fields relevant to Type are set.
// A conversation.loaded event with Loading set announces a cleared
// conversation whose messages are still being fetched.
type Event struct {
	Type      Type                `json:"type"`
	SessionID string              `json:"session_id,omitempty"`
	Sessions  []store.Session     `json:"sessions,omitempty"`
	Messages  []store.Message     `json:"messages,omitempty"`
	Message   *store.Message      `json:"message,omitempty"`
	Loading   bool                `json:"loading,omitempty"`
	Sending   bool                `json:"sending,omitempty"`
	Upload    *store.UploadStatus `json:"upload,omitempty"`
}

// Publisher is what the services need from a bus.
type Publisher interface {
	Publish(e Event)
}

// Bus is an in-process pub/sub. Publish blocks until every subscriber has
// taken the event, so subscribers see events in publish order.
type Bus struct {
	pubsub *gochannel.GoChannel
}

func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			BlockPublishUntilSubscriberAck: true,
		}, NewZerologAdapter(logger)),
	}
}

// Publish sends e to all current subscribers. Failures are logged; a closed
// bus drops events.
func (b *Bus) Publish(e Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		log.Error().Err(err).Str("type", string(e.Type)).Msg("events: encode")
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := b.pubsub.Publish(Topic, msg); err != nil {
		log.Debug().Err(err).Str("type", string(e.Type)).Msg("events: publish")
	}
}

// Subscribe returns a channel of events published from now on. The channel is
// closed when ctx is done or the bus is closed.
func (b *Bus) Subscribe(ctx context.Context) (<-chan Event, error) {
	messages, err := b.pubsub.Subscribe(ctx, Topic)
	if err != nil {
		return nil, errors.Wrap(err, "events: subscribe")
	}

	out := make(chan Event)
	go func() {
		defer close(out)
		for msg := range messages {
			var e Event
			if err := json.Unmarshal(msg.Payload, &e); err != nil {
				log.Error().Err(err).Str("message_id", msg.UUID).Msg("events: decode")
				msg.Ack()
				continue
			}
			select {
			case out <- e:
				msg.Ack()
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (b *Bus) Close() error {
	return b.pubsub.Close()
}

var _ Publisher = &Bus{}
