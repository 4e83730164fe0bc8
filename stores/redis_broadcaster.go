package stores

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/linguahub/permission/logger"
)

// DefaultInvalidationChannel is the pub/sub channel invalidations travel on.
const DefaultInvalidationChannel = "permission:invalidate"

// Invalidator is the local cache surface the subscribe loop drives.
type Invalidator interface {
	Invalidate(subjectID, groupID string)
	InvalidateAll()
}

type invalidationMessage struct {
	Origin    string `json:"origin"`
	SubjectID string `json:"subject_id"`
	GroupID   string `json:"group_id,omitempty"`
	All       bool   `json:"all,omitempty"`
}

// RedisBroadcaster fans cache invalidations out to peer processes over Redis
// pub/sub. Each process publishes with its own origin id and skips its own
// messages on receipt, since the publisher already invalidated locally.
type RedisBroadcaster struct {
	client  *redis.Client
	channel string
	origin  string
	log     logger.Logger
}

func NewRedisBroadcaster(client *redis.Client, channel string, log logger.Logger) *RedisBroadcaster {
	if channel == "" {
		channel = DefaultInvalidationChannel
	}
	if log == nil {
		log = logger.NewNullLogger()
	}
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return &RedisBroadcaster{client: client, channel: channel, origin: hex.EncodeToString(buf), log: log}
}

func (b *RedisBroadcaster) Publish(ctx context.Context, subjectID, groupID string) error {
	return b.publish(ctx, invalidationMessage{Origin: b.origin, SubjectID: subjectID, GroupID: groupID})
}

// PublishAll broadcasts a full cache flush.
func (b *RedisBroadcaster) PublishAll(ctx context.Context) error {
	return b.publish(ctx, invalidationMessage{Origin: b.origin, All: true})
}

func (b *RedisBroadcaster) publish(ctx context.Context, msg invalidationMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode invalidation: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish invalidation: %w", err)
	}
	return nil
}

// Subscribe consumes invalidations from peers and applies them to inv until
// ctx is cancelled. It blocks; run it in its own goroutine.
func (b *RedisBroadcaster) Subscribe(ctx context.Context, inv Invalidator) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var msg invalidationMessage
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				b.log.Error("malformed invalidation message", "payload", m.Payload, "error", err)
				continue
			}
			if msg.Origin == b.origin {
				continue
			}
			if msg.All {
				inv.InvalidateAll()
				continue
			}
			inv.Invalidate(msg.SubjectID, msg.GroupID)
		}
	}
}
