package worker

import (
	"context"
	"encoding/json"
	"log"

	"nesturechat/internal/redis"
)

const redisInvalidateChannel = "widget:invalidate"

type invalidateMessage struct {
	VisitorID string `json:"visitor_id"`
	Key       string `json:"key"`
	Origin    string `json:"origin"`
}

// Invalidator broadcasts persisted writes so other instances reload.
type Invalidator struct {
	client *redis.Client
}

func NewInvalidator(client *redis.Client) *Invalidator {
	if client == nil {
		return nil
	}
	return &Invalidator{client: client}
}

// startListener redis listener using sub chan
func (r *Invalidator) startListener(ctx context.Context, handler func(invalidateMessage)) {
	if r == nil || r.client == nil || handler == nil {
		return
	}
	pubsub, err := r.client.Subscribe(ctx, redisInvalidateChannel)
	if err != nil {
		log.Printf("worker invalidation subscribe failed: %v", err)
		return
	}
	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var inv invalidateMessage
				if err := json.Unmarshal([]byte(msg.Payload), &inv); err != nil {
					log.Printf("worker invalidation decode failed: %v", err)
					continue
				}
				handler(inv)
			}
		}
	}()
}

// publish broadcast invalidate msg
func (r *Invalidator) publish(msg invalidateMessage) {
	if r == nil || r.client == nil {
		return
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		log.Printf("worker invalidation marshal failed: %v", err)
		return
	}
	if err := r.client.Publish(context.Background(), redisInvalidateChannel, payload); err != nil {
		log.Printf("worker publish invalidation failed: %v", err)
	}
}
