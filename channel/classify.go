package channel

import (
	"log"

	"github.com/tidwall/gjson"

	"github.com/formbt/ndi-gateway/core"
)

// Classify maps a raw event kind and JSON body onto a typed ChannelEvent.
// The known kinds are connected, heartbeat, and ndi-verification; anything
// else becomes EventUnknown and is logged rather than surfaced as an error.
// A known kind with an unparseable body is also downgraded to EventUnknown
// so a single bad message never tears the channel down.
func Classify(threadID, kind string, payload []byte) core.ChannelEvent {
	switch core.EventKind(kind) {
	case core.EventConnected, core.EventHeartbeat, core.EventVerification:
		if len(payload) > 0 && !gjson.ValidBytes(payload) {
			log.Printf("channel: unparseable %s event body on thread %s", kind, threadID)
			return core.ChannelEvent{Kind: core.EventUnknown, ThreadID: threadID}
		}
		return core.ChannelEvent{Kind: core.EventKind(kind), ThreadID: threadID, Payload: payload}
	default:
		log.Printf("channel: ignoring unknown event kind %q on thread %s", kind, threadID)
		return core.ChannelEvent{Kind: core.EventUnknown, ThreadID: threadID}
	}
}
