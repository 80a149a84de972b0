package eventfabric

import "context"

// Fabric is the Event Fabric contract: publish appends to the durable
// log and fans out to the live channel; subscribe replays the log in
// order and then tails the channel, de-duplicated by Seq.
type Fabric interface {
	Publish(ctx context.Context, messageID, sessionID string, typ Type, payload map[string]any) (Event, error)
	// Subscribe returns a channel of events (replay followed by live
	// tail) and a cancel func that must be called to release the
	// underlying subscription. The returned channel is closed once ctx
	// is done; calling cancel stops delivery but does not close it.
	Subscribe(ctx context.Context, messageID string) (<-chan Event, func())
	// Log returns the full ordered event log for a message as it stands
	// right now, with no live tail. Used for post-completion archival.
	Log(ctx context.Context, messageID string) ([]Event, error)
}

// EventLogTTL is the TTL of a Message's durable event log.
const EventLogTTL = 24 * 60 * 60 // seconds, 24h

// EventLogCap bounds the durable log to the most recent N events.
const EventLogCap = 1000
