package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"callwire/internal/core/domain"
	"callwire/internal/core/ports"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisCallStore keeps call records as JSON values under prefixed keys, a
// per-room set for membership, and a per-room pub/sub channel for live
// additions. Replay-on-subscribe reads the room set, then the channel takes
// over; records seen during replay are deduplicated so a subscription sees
// each record at most once.
type RedisCallStore struct {
	client *redis.Client
	prefix string
	logger *zap.SugaredLogger
}

func NewRedisCallStore(client *redis.Client, logger *zap.SugaredLogger) ports.CallStore {
	return &RedisCallStore{
		client: client,
		prefix: "callwire:",
		logger: logger,
	}
}

func (r *RedisCallStore) callKey(id string) string {
	return r.prefix + "call:" + id
}

func (r *RedisCallStore) roomSetKey(roomName string) string {
	return r.prefix + "room:" + roomName + ":calls"
}

func (r *RedisCallStore) roomChannel(roomName string) string {
	return r.prefix + "room:" + roomName + ":added"
}

func (r *RedisCallStore) Create(ctx context.Context, rec *domain.CallRequest) (string, error) {
	id := uuid.NewString()
	stored := *rec
	stored.ID = id

	data, err := json.Marshal(&stored)
	if err != nil {
		return "", fmt.Errorf("failed to marshal call record: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.callKey(id), data, 0)
	pipe.SAdd(ctx, r.roomSetKey(stored.RoomName), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("%w: store call record: %v", domain.ErrStoreUnavailable, err)
	}

	if err := r.client.Publish(ctx, r.roomChannel(stored.RoomName), data).Err(); err != nil {
		// The record is persisted; live subscribers miss the push but will
		// still see it on their next replay.
		r.logger.Warnw("failed to publish call record",
			"request_id", id,
			"error", err,
		)
	}

	return id, nil
}

func (r *RedisCallStore) Subscribe(ctx context.Context, roomName string, onAdded func(*domain.CallRequest)) error {
	// Subscribe before replaying so records created mid-replay are not lost;
	// the seen set keeps the overlap from double-delivering.
	pubsub := r.client.Subscribe(ctx, r.roomChannel(roomName))
	defer pubsub.Close()

	seen := make(map[string]struct{})

	ids, err := r.client.SMembers(ctx, r.roomSetKey(roomName)).Result()
	if err != nil {
		return fmt.Errorf("%w: replay room %s: %v", domain.ErrStoreUnavailable, roomName, err)
	}
	for _, id := range ids {
		data, err := r.client.Get(ctx, r.callKey(id)).Result()
		if err == redis.Nil {
			// Deleted between SMembers and Get.
			continue
		}
		if err != nil {
			return fmt.Errorf("%w: replay record %s: %v", domain.ErrStoreUnavailable, id, err)
		}
		if rec := r.decode([]byte(data)); rec != nil {
			seen[rec.ID] = struct{}{}
			onAdded(rec)
		}
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("%w: subscription channel closed", domain.ErrStoreUnavailable)
			}
			rec := r.decode([]byte(msg.Payload))
			if rec == nil {
				continue
			}
			if _, dup := seen[rec.ID]; dup {
				continue
			}
			seen[rec.ID] = struct{}{}
			onAdded(rec)
		}
	}
}

// decode unmarshals and validates a stored payload. Malformed records are
// logged and dropped instead of being handed to listeners.
func (r *RedisCallStore) decode(data []byte) *domain.CallRequest {
	var rec domain.CallRequest
	if err := json.Unmarshal(data, &rec); err != nil {
		r.logger.Warnw("failed to unmarshal call record",
			"error", err,
			"payload", string(data),
		)
		return nil
	}
	if err := rec.Validate(); err != nil {
		r.logger.Warnw("dropping malformed call record",
			"request_id", rec.ID,
			"error", err,
		)
		return nil
	}
	return &rec
}

func (r *RedisCallStore) Delete(ctx context.Context, id string) error {
	data, err := r.client.Get(ctx, r.callKey(id)).Result()
	if err == redis.Nil {
		// Already gone; deletes are idempotent.
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: load record %s for delete: %v", domain.ErrStoreUnavailable, id, err)
	}

	var rec domain.CallRequest
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		// Unparseable records are still removed by key.
		if err := r.client.Del(ctx, r.callKey(id)).Err(); err != nil {
			return fmt.Errorf("%w: delete record %s: %v", domain.ErrStoreUnavailable, id, err)
		}
		return nil
	}

	pipe := r.client.TxPipeline()
	pipe.SRem(ctx, r.roomSetKey(rec.RoomName), id)
	pipe.Del(ctx, r.callKey(id))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: delete record %s: %v", domain.ErrStoreUnavailable, id, err)
	}
	return nil
}
