package repository

import "context"

// RoomEventPublisher 将房间变更事件发布给其他实例 (通常由 Redis Pub/Sub 实现)。
type RoomEventPublisher interface {
	// PublishRoomEvent 发布已序列化的房间事件。
	PublishRoomEvent(ctx context.Context, roomID string, payload []byte) error
}
