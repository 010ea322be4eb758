package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"
	"strings"

	"diary/internal/middleware"
	"diary/internal/models"

	"github.com/redis/go-redis/v9"
)

const userChannelPrefix = "diary:user:"

// UserChannel derives the Redis channel name for a user's entry events.
func UserChannel(userID uint) string {
	return userChannelPrefix + strconv.FormatUint(uint64(userID), 10)
}

func parseUserChannel(channel string) (uint, bool) {
	rest, ok := strings.CutPrefix(channel, userChannelPrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseUint(rest, 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// Notifier publishes entry events. With Redis the event goes to the owner's
// channel and every instance's hub picks it up; without Redis it is handed
// to the local hub directly.
type Notifier struct {
	rdb   *redis.Client
	local *Hub
}

// NewNotifier creates a Notifier. Either argument may be nil.
func NewNotifier(rdb *redis.Client, local *Hub) *Notifier {
	return &Notifier{rdb: rdb, local: local}
}

// PublishEntryEvent sends the event to the entry owner's connections.
func (n *Notifier) PublishEntryEvent(ctx context.Context, event models.EntryEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal entry event: %w", err)
	}

	if n.rdb != nil {
		return n.rdb.Publish(ctx, UserChannel(event.UserID), payload).Err()
	}
	if n.local != nil {
		n.local.Deliver(event.UserID, payload)
	}
	return nil
}

// Subscribe listens on every user channel until ctx is done and calls onMessage
// for each event. It is a no-op without Redis.
func (n *Notifier) Subscribe(ctx context.Context, onMessage func(userID uint, payload []byte)) error {
	if n.rdb == nil {
		return nil
	}
	sub := n.rdb.PSubscribe(ctx, userChannelPrefix+"*")
	// wait for the subscription to be confirmed so no early publish is lost
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe to entry events: %w", err)
	}
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				userID, ok := parseUserChannel(msg.Channel)
				if !ok {
					middleware.Logger.Warn("invalid entry event channel", slog.String("channel", msg.Channel))
					continue
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							middleware.Logger.Error("panic in entry event subscriber",
								slog.Any("panic", r),
								slog.String("stack", string(debug.Stack())),
							)
						}
					}()
					onMessage(userID, []byte(msg.Payload))
				}()
			}
		}
	}()

	return nil
}
