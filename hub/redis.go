package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const eventsChannel = "moun:events"

type envelope struct {
	Group string `json:"group"`
	Data  []byte `json:"data"`
}

// RedisBridge routes publishes through a Redis channel so that events reach
// group members connected to any instance. Every instance relays received
// envelopes into its local Hub; subscribing stays purely local.
type RedisBridge struct {
	local  *Hub
	client *redis.Client
}

func NewRedisBridge(ctx context.Context, url string, local *Hub) (*RedisBridge, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	client := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return &RedisBridge{local: local, client: client}, nil
}

// Publish sends the event through Redis. A publish failure only costs the
// real-time notification, never the operation that triggered it.
func (b *RedisBridge) Publish(group string, data []byte) {
	payload, err := json.Marshal(envelope{Group: group, Data: data})
	if err != nil {
		log.Printf("bridge: marshal event for %s: %v", group, err)
		return
	}
	if err := b.client.Publish(context.Background(), eventsChannel, payload).Err(); err != nil {
		log.Printf("bridge: publish to %s: %v", group, err)
	}
}

// Run relays events from Redis into the local hub until ctx is canceled.
func (b *RedisBridge) Run(ctx context.Context) {
	sub := b.client.Subscribe(ctx, eventsChannel)
	defer sub.Close()
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				log.Printf("bridge: bad envelope: %v", err)
				continue
			}
			b.local.Publish(env.Group, env.Data)
		}
	}
}

func (b *RedisBridge) Close() error {
	return b.client.Close()
}
