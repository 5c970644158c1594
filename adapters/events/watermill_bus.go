// Package events bridges verification events onto a Watermill pub/sub so
// webhook deliveries reach subscribers on every gateway instance.
package events

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/formbt/ndi-gateway/channel"
	"github.com/formbt/ndi-gateway/core"
	"github.com/formbt/ndi-gateway/ports"
)

// Topic carries all verification events; routing by thread happens in the
// hub, not in topic names.
const Topic = "ndi.verification.events"

const (
	metaKind     = "kind"
	metaThreadID = "thread_id"
)

// WatermillBus implements ports.EventBus over a Watermill publisher and
// subscriber pair (Redis Streams in production, GoChannel in tests).
type WatermillBus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
}

var _ ports.EventBus = (*WatermillBus)(nil)

// NewWatermillBus creates a bus over the given pub/sub pair.
func NewWatermillBus(publisher message.Publisher, subscriber message.Subscriber) *WatermillBus {
	return &WatermillBus{publisher: publisher, subscriber: subscriber}
}

// Publish sends one verification event. The event kind and thread ID travel
// as message metadata, the raw JSON body as the payload.
func (b *WatermillBus) Publish(ctx context.Context, ev core.ChannelEvent) error {
	msg := message.NewMessage(watermill.NewUUID(), ev.Payload)
	msg.Metadata.Set(metaKind, string(ev.Kind))
	msg.Metadata.Set(metaThreadID, ev.ThreadID)
	msg.SetContext(ctx)
	return b.publisher.Publish(Topic, msg)
}

// Subscribe returns classified events from the bus. Unknown kinds are
// logged by the classifier and dropped here; they carry nothing a
// subscriber could act on.
func (b *WatermillBus) Subscribe(ctx context.Context) (<-chan core.ChannelEvent, error) {
	messages, err := b.subscriber.Subscribe(ctx, Topic)
	if err != nil {
		return nil, err
	}

	out := make(chan core.ChannelEvent)
	go func() {
		defer close(out)
		for msg := range messages {
			ev := channel.Classify(msg.Metadata.Get(metaThreadID), msg.Metadata.Get(metaKind), msg.Payload)
			msg.Ack()
			if ev.Kind == core.EventUnknown {
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Close releases the underlying pub/sub connections.
func (b *WatermillBus) Close() error {
	if err := b.publisher.Close(); err != nil {
		return err
	}
	return b.subscriber.Close()
}
