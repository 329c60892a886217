package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisRecordsKey   = "birdbrain:incomplete"
	redisInstalledKey = "birdbrain:installed"
)

// RedisStore keeps the incomplete set in a single hash keyed by rest_id.
type RedisStore struct {
	client *redis.Client
}

func OpenRedis(ctx context.Context, addr string, db int) (*RedisStore, bool, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, false, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	fresh, err := client.SetNX(ctx, redisInstalledKey, time.Now().UTC().Format(time.RFC3339), 0).Result()
	if err != nil {
		client.Close()
		return nil, false, fmt.Errorf("failed to check install marker: %w", err)
	}

	slog.Info("Connected to Redis", "addr", addr, "db", db, "fresh", fresh)
	return &RedisStore{client: client}, fresh, nil
}

func (s *RedisStore) Load(ctx context.Context) (map[string]Record, error) {
	fields, err := s.client.HGetAll(ctx, redisRecordsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load incomplete tweets: %w", err)
	}
	return decodeRecords(fields)
}

func (s *RedisStore) Replace(ctx context.Context, records map[string]Record) error {
	fields, err := encodeRecords(records)
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, redisRecordsKey)
		if len(fields) > 0 {
			pipe.HSet(ctx, redisRecordsKey, fields)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to replace incomplete tweets: %w", err)
	}

	return nil
}

func (s *RedisStore) Delete(ctx context.Context, restID string) error {
	if err := s.client.HDel(ctx, redisRecordsKey, restID).Err(); err != nil {
		return fmt.Errorf("failed to delete incomplete tweet %s: %w", restID, err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func encodeRecords(records map[string]Record) (map[string]any, error) {
	fields := make(map[string]any, len(records))
	for id, rec := range records {
		rec.RestID = id
		data, err := json.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal incomplete tweet %s: %w", id, err)
		}
		fields[id] = string(data)
	}
	return fields, nil
}

func decodeRecords(fields map[string]string) (map[string]Record, error) {
	records := make(map[string]Record, len(fields))
	for id, raw := range fields {
		var rec Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal incomplete tweet %s: %w", id, err)
		}
		rec.RestID = id
		records[id] = rec
	}
	return records, nil
}
