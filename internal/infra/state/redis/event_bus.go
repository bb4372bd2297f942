package redisstate

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// RoomEventHandler 处理从频道收到的房间事件
type RoomEventHandler func(roomID string, payload []byte)

// RedisRoomEventBus 基于 Redis Pub/Sub 在多个实例之间分发房间事件。
// 它实现了 repository.RoomEventPublisher。
type RedisRoomEventBus struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisRoomEventBus 创建 RedisRoomEventBus 实例
func NewRedisRoomEventBus(client *redis.Client, keyPrefix string) *RedisRoomEventBus {
	if client == nil {
		panic("redis client cannot be nil for RedisRoomEventBus")
	}
	if keyPrefix == "" {
		keyPrefix = "ttt:"
	}
	return &RedisRoomEventBus{client: client, keyPrefix: keyPrefix}
}

func (b *RedisRoomEventBus) roomEventChannel(roomID string) string {
	return fmt.Sprintf("%sroom:%s:events", b.keyPrefix, roomID)
}

func (b *RedisRoomEventBus) roomEventPattern() string {
	return b.keyPrefix + "room:*:events"
}

// roomIDFromChannel 从频道名中解析房间 ID
func (b *RedisRoomEventBus) roomIDFromChannel(channel string) (string, bool) {
	rest := strings.TrimPrefix(channel, b.keyPrefix+"room:")
	if rest == channel || !strings.HasSuffix(rest, ":events") {
		return "", false
	}
	roomID := strings.TrimSuffix(rest, ":events")
	return roomID, roomID != ""
}

// PublishRoomEvent 将房间事件发布到该房间的频道
func (b *RedisRoomEventBus) PublishRoomEvent(ctx context.Context, roomID string, payload []byte) error {
	channel := b.roomEventChannel(roomID)
	if err := b.client.Publish(ctx, channel, payload).Err(); err != nil {
		logrus.WithFields(logrus.Fields{
			"channel":      channel,
			"payload_size": len(payload),
			"room_id":      roomID,
		}).WithError(err).Error("Redis Publish failed")
		return fmt.Errorf("redis: failed to publish room event to channel %s: %w", channel, err)
	}
	return nil
}

// Subscribe 订阅所有房间的事件频道。
// 订阅确认后才返回，之后事件在后台 goroutine 中交给 handler，直到 ctx 结束或调用返回的 stop。
func (b *RedisRoomEventBus) Subscribe(ctx context.Context, handler RoomEventHandler) (stop func() error, err error) {
	pattern := b.roomEventPattern()
	pubsub := b.client.PSubscribe(ctx, pattern)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: failed to subscribe to %s: %w", pattern, err)
	}

	logCtx := logrus.WithFields(logrus.Fields{"component": "room_event_bus", "pattern": pattern})
	logCtx.Info("Subscribed to room events")

	ch := pubsub.Channel()
	go func() {
		for {
			select {
			case <-ctx.Done():
				_ = pubsub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					logCtx.Info("Room event subscription closed")
					return
				}
				roomID, ok := b.roomIDFromChannel(msg.Channel)
				if !ok {
					logCtx.WithField("channel", msg.Channel).Warn("Ignoring message from unexpected channel")
					continue
				}
				handler(roomID, []byte(msg.Payload))
			}
		}
	}()
	return pubsub.Close, nil
}
