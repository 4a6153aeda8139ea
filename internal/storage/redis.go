package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisChangesChannel = "storefront:changes"

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// NewRedisClient creates a new Redis client with the provided configuration.
// Performs health check to ensure connectivity before returning.
func NewRedisClient(cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return client, nil
}

// Redis stores values under "storefront:<key>" and announces every write on
// a pub/sub channel so other handles can react.
type Redis struct {
	client *redis.Client
	origin string
	logger *zap.Logger
	subs   *registry
	pubsub *redis.PubSub
}

// NewRedis subscribes to the change channel before returning, so no change
// published after construction is missed.
func NewRedis(ctx context.Context, client *redis.Client, logger *zap.Logger) (*Redis, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	pubsub := client.Subscribe(ctx, redisChangesChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", redisChangesChannel, err)
	}

	r := &Redis{
		client: client,
		origin: uuid.NewString(),
		logger: logger,
		subs:   newRegistry(),
		pubsub: pubsub,
	}
	go r.listen(pubsub.Channel())

	return r, nil
}

func (r *Redis) listen(ch <-chan *redis.Message) {
	for msg := range ch {
		var change Change
		if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
			r.logger.Warn("ignoring malformed change event", zap.Error(err))
			continue
		}
		r.subs.dispatch(change)
	}
}

func (r *Redis) Origin() string {
	return r.origin
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := r.client.Get(ctx, redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}
	return data, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte) error {
	if err := r.client.Set(ctx, redisKey(key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return r.publish(ctx, key)
}

func (r *Redis) Clear(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, redisKey(key)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return r.publish(ctx, key)
}

func (r *Redis) Subscribe(key string, fn func(Change)) func() {
	return r.subs.add(key, r.origin, fn)
}

// Close stops the change subscription. The client is owned by the caller.
func (r *Redis) Close() error {
	return r.pubsub.Close()
}

func (r *Redis) publish(ctx context.Context, key string) error {
	payload, err := json.Marshal(Change{Key: key, Origin: r.origin})
	if err != nil {
		return fmt.Errorf("marshal change failed: %w", err)
	}
	if err := r.client.Publish(ctx, redisChangesChannel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish failed: %w", err)
	}
	return nil
}

func redisKey(key string) string {
	return fmt.Sprintf("storefront:%s", key)
}
