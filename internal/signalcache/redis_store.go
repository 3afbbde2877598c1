package signalcache

import (
	"context"
	"encoding/json"
	"log"
	"sort"

	"github.com/redis/go-redis/v9"

	"visgw/internal/constants"
	"visgw/internal/protocol"
)

// RedisStore keeps latest signal values in Redis, one key per path with a
// rolling TTL, so several gateway instances can share one view.
type RedisStore struct {
	client *redis.Client
	ctx    context.Context
	cancel func()
}

func NewRedisStore(host, port, username, password string) (*RedisStore, error) {
	opts := &redis.Options{
		Addr:     host + ":" + port,
		Username: username,
		Password: password,
		DB:       0,
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithCancel(context.Background())

	store := &RedisStore{
		client: client,
		ctx:    ctx,
		cancel: cancel,
	}

	if err := store.client.Ping(ctx).Err(); err != nil {
		cancel()
		return nil, err
	}

	return store, nil
}

func (st *RedisStore) Update(samples []protocol.SignalSample) {
	pipe := st.client.Pipeline()
	for _, sample := range samples {
		data, err := json.Marshal(sample)
		if err != nil {
			log.Printf("Failed to marshal signal sample: %v", err)
			continue
		}
		key := constants.RedisKeyPrefix + sample.Path
		pipe.Set(st.ctx, key, data, constants.RedisSignalTTL)
	}
	if _, err := pipe.Exec(st.ctx); err != nil {
		log.Printf("Failed to save signals to Redis: %v", err)
	}
}

func (st *RedisStore) Latest() []protocol.SignalSample {
	pattern := constants.RedisKeyPrefix + "*"
	iter := st.client.Scan(st.ctx, 0, pattern, 100).Iterator()

	var out []protocol.SignalSample
	for iter.Next(st.ctx) {
		data, err := st.client.Get(st.ctx, iter.Val()).Result()
		if err != nil {
			continue
		}
		var sample protocol.SignalSample
		if err := json.Unmarshal([]byte(data), &sample); err != nil {
			log.Printf("Failed to unmarshal signal sample: %v", err)
			continue
		}
		out = append(out, sample)
	}
	if err := iter.Err(); err != nil {
		log.Printf("Redis scan error: %v", err)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func (st *RedisStore) Close() error {
	st.cancel()
	return st.client.Close()
}
