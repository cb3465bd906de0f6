package server

import (
	"context"

	"github.com/Tyrowin/linechat/internal/logging"
)

// Broadcaster fans a line out to every session in a registry snapshot.
type Broadcaster struct {
	registry *Registry
	log      logging.Logger
}

func NewBroadcaster(registry *Registry, log logging.Logger) *Broadcaster {
	return &Broadcaster{registry: registry, log: log}
}

// Broadcast queues line on every registered session and returns how many
// accepted it. A session whose queue is full is disconnected; delivery to
// the others continues.
func (b *Broadcaster) Broadcast(ctx context.Context, line string) int {
	return b.deliver(ctx, b.registry.Snapshot(), line)
}

// BroadcastRoster sends the USERLIST line built from the same snapshot it is
// delivered to.
func (b *Broadcaster) BroadcastRoster(ctx context.Context) int {
	sessions := b.registry.Snapshot()
	return b.deliver(ctx, sessions, RosterLine(usernames(sessions)))
}

func (b *Broadcaster) deliver(ctx context.Context, sessions []*Session, line string) int {
	delivered := 0
	for _, s := range sessions {
		if s.Send(line) {
			delivered++
			continue
		}
		if s.isClosed() {
			// Already leaving; its handler will broadcast the departure.
			continue
		}
		b.log.Warn(ctx, "dropping client with full send queue",
			"session", s.ID(), "user", s.Username(), "remote", s.RemoteAddr())
		s.abort()
	}

	b.log.Debug(ctx, "message broadcast", "line", line, "targets", len(sessions), "delivered", delivered)
	return delivered
}
