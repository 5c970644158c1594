package ports

import (
	"context"

	"github.com/formbt/ndi-gateway/core"
)

// EventBus moves verification events between instances. The webhook ingress
// publishes; each instance's hub subscribes and fans out locally.
type EventBus interface {
	Publish(ctx context.Context, ev core.ChannelEvent) error
	Subscribe(ctx context.Context) (<-chan core.ChannelEvent, error)
	Close() error
}
